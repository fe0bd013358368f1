package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateLot      = errors.New("duplicate lot number")
	ErrLotNotFound       = errors.New("lot not found")
)

func NewInsufficientStockError(productID string, want, have int) error {
	return fmt.Errorf("%w: product %s has %d, need %d", ErrInsufficientStock, productID, have, want)
}

func NewDuplicateLotError(lot string) error {
	return fmt.Errorf("%w: %s", ErrDuplicateLot, lot)
}

func NewLotNotFoundError(productID, lot string) error {
	return fmt.Errorf("%w: lot %s for product %s", ErrLotNotFound, lot, productID)
}
