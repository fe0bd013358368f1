package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/inventory"
	"mizanpos/backend/internal/store"
)

// CreateInTransit opens a logistics invoice for goods ordered from a
// supplier. All quantities start in the at-factory bucket; nothing touches
// the sellable catalog until units are moved to received.
func (s *Service) CreateInTransit(ctx context.Context, draft domain.InTransitDraft) (domain.InTransitInvoice, error) {
	draft.SupplierID = strings.TrimSpace(draft.SupplierID)
	draft.Currency = strings.ToUpper(strings.TrimSpace(draft.Currency))
	for i := range draft.Lines {
		draft.Lines[i].Lot = strings.TrimSpace(draft.Lines[i].Lot)
	}
	if err := s.validate.Struct(draft); err != nil {
		return domain.InTransitInvoice{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if err := s.checkRate(draft.Currency, draft.ExchangeRate); err != nil {
		return domain.InTransitInvoice{}, err
	}

	if _, err := s.fetchSupplier(ctx, draft.SupplierID); err != nil {
		return domain.InTransitInvoice{}, err
	}

	reserved, err := s.repo.ReservedLots(ctx)
	if err != nil {
		return domain.InTransitInvoice{}, err
	}
	reservedSet := make(map[string]struct{}, len(reserved))
	for _, lot := range reserved {
		reservedSet[lot] = struct{}{}
	}
	seen := make(map[string]struct{}, len(draft.Lines))
	for _, l := range draft.Lines {
		if _, taken := reservedSet[l.Lot]; taken {
			return domain.InTransitInvoice{}, inventory.NewDuplicateLotError(l.Lot)
		}
		if _, dup := seen[l.Lot]; dup {
			return domain.InTransitInvoice{}, fmt.Errorf("%w: lot %s repeated within invoice", store.ErrDuplicateLot, l.Lot)
		}
		seen[l.Lot] = struct{}{}
		if l.UnitCost.Sign() < 0 {
			return domain.InTransitInvoice{}, fmt.Errorf("%w: unit cost must not be negative", store.ErrValidation)
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, inTransitProductIDs(draft.Lines))
	if err != nil {
		return domain.InTransitInvoice{}, err
	}
	for _, l := range draft.Lines {
		if _, ok := products[l.ProductID]; !ok {
			return domain.InTransitInvoice{}, fmt.Errorf("%w: product %s", store.ErrNotFound, l.ProductID)
		}
	}

	lines := make([]domain.InTransitLine, 0, len(draft.Lines))
	for _, l := range draft.Lines {
		lines = append(lines, domain.InTransitLine{
			ProductID:    l.ProductID,
			Lot:          l.Lot,
			Qty:          l.Qty,
			UnitCost:     l.UnitCost,
			AtFactoryQty: l.Qty,
			ExpiresAt:    l.ExpiresAt,
		})
	}

	invoice := domain.InTransitInvoice{
		SupplierID:   draft.SupplierID,
		Currency:     draft.Currency,
		ExchangeRate: draft.ExchangeRate,
		Lines:        lines,
		Status:       domain.InTransitOpen,
		CreatedAt:    time.Now().UTC(),
	}

	saved, err := s.repo.CreateInTransit(ctx, invoice)
	if err != nil {
		return domain.InTransitInvoice{}, err
	}

	s.logAudit(ctx, "intransit_create", "in_transit", saved.ID, fmt.Sprintf("supplier=%s,lines=%d", saved.SupplierID, len(saved.Lines)))
	return *saved, nil
}

func inTransitProductIDs(lines []domain.InTransitLineDraft) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

func (s *Service) GetInTransit(ctx context.Context, id string) (*domain.InTransitInvoice, error) {
	return s.repo.GetInTransit(ctx, strings.TrimSpace(id))
}

func (s *Service) ListInTransit(ctx context.Context, status string) ([]domain.InTransitInvoice, error) {
	return s.repo.ListInTransit(ctx, strings.TrimSpace(status))
}

// MoveInTransitItems advances units through the factory -> transit ->
// received pipeline. Moves are clamped to what each source bucket actually
// holds. Units reaching received are materialized as a regular purchase
// invoice on the supplier, carrying the logistics invoice's cost, currency
// and rate; when every unit is received the invoice closes.
func (s *Service) MoveInTransitItems(ctx context.Context, id string, moves []domain.InTransitMovement, paidAmount decimal.Decimal) (domain.InTransitInvoice, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(moves) == 0 {
		return domain.InTransitInvoice{}, fmt.Errorf("%w: invoice id and movements required", store.ErrValidation)
	}
	for _, m := range moves {
		if err := s.validate.Struct(m); err != nil {
			return domain.InTransitInvoice{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
	}
	if paidAmount.Sign() < 0 {
		return domain.InTransitInvoice{}, fmt.Errorf("%w: paid amount must not be negative", store.ErrValidation)
	}

	invoice, err := s.repo.GetInTransit(ctx, id)
	if err != nil {
		return domain.InTransitInvoice{}, err
	}
	if invoice.Status != domain.InTransitOpen {
		return domain.InTransitInvoice{}, fmt.Errorf("%w: in-transit invoice %s is %s", store.ErrValidation, id, invoice.Status)
	}

	previous := *invoice
	previous.Lines = make([]domain.InTransitLine, len(invoice.Lines))
	copy(previous.Lines, invoice.Lines)

	received := make(map[string]int)
	for _, m := range moves {
		idx := -1
		for i := range invoice.Lines {
			if invoice.Lines[i].ProductID == m.ProductID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return domain.InTransitInvoice{}, fmt.Errorf("%w: product %s is not on invoice %s", store.ErrValidation, m.ProductID, id)
		}
		line := &invoice.Lines[idx]

		toTransit := m.ToTransit
		if toTransit > line.AtFactoryQty {
			toTransit = line.AtFactoryQty
		}
		line.AtFactoryQty -= toTransit
		line.InTransitQty += toTransit

		toReceived := m.ToReceived
		if toReceived > line.InTransitQty {
			toReceived = line.InTransitQty
		}
		line.InTransitQty -= toReceived
		line.ReceivedQty += toReceived
		if toReceived > 0 {
			received[line.Lot] = toReceived
		}
	}

	// The paid amount accumulates on the logistics invoice across moves, on
	// top of funding the purchase the received units spawn.
	invoice.PaidAmount = invoice.PaidAmount.Add(paidAmount)

	allReceived := true
	for _, l := range invoice.Lines {
		if l.ReceivedQty != l.Qty {
			allReceived = false
			break
		}
	}
	if allReceived {
		now := time.Now().UTC()
		invoice.Status = domain.InTransitClosed
		invoice.ClosedAt = &now
	}

	saved, err := s.repo.UpdateInTransit(ctx, *invoice)
	if err != nil {
		return domain.InTransitInvoice{}, err
	}

	if len(received) > 0 {
		if err := s.receiveGoods(ctx, saved, received, paidAmount); err != nil {
			// Compensate: put the logistics invoice back so received units
			// are not lost between the two writes.
			if _, revertErr := s.repo.UpdateInTransit(ctx, previous); revertErr != nil {
				s.log.WithFields(logrus.Fields{
					"invoice": id,
				}).WithError(revertErr).Error("failed to revert in-transit movement after purchase failure")
			}
			return domain.InTransitInvoice{}, err
		}
	}

	s.logAudit(ctx, "intransit_move", "in_transit", saved.ID, fmt.Sprintf("received_lots=%d,status=%s", len(received), saved.Status))
	return *saved, nil
}

// receiveGoods turns the units just moved to received into a purchase
// invoice. Repeat receipts against the same lot get a numeric suffix so the
// catalog's lot uniqueness holds.
func (s *Service) receiveGoods(ctx context.Context, inv *domain.InTransitInvoice, received map[string]int, paidAmount decimal.Decimal) error {
	reserved, err := s.repo.ReservedLots(ctx)
	if err != nil {
		return err
	}
	taken := make(map[string]struct{}, len(reserved))
	for _, lot := range reserved {
		taken[lot] = struct{}{}
	}

	draft := domain.PurchaseDraft{
		SupplierID:   inv.SupplierID,
		Currency:     inv.Currency,
		ExchangeRate: inv.ExchangeRate,
		PaidAmount:   paidAmount,
	}
	for _, line := range inv.Lines {
		qty, ok := received[line.Lot]
		if !ok {
			continue
		}
		lot := line.Lot
		for suffix := 2; ; suffix++ {
			if _, exists := taken[lot]; !exists {
				break
			}
			lot = fmt.Sprintf("%s-%d", line.Lot, suffix)
		}
		taken[lot] = struct{}{}
		draft.Lines = append(draft.Lines, domain.PurchaseLineDraft{
			ProductID: line.ProductID,
			Lot:       lot,
			Qty:       qty,
			UnitCost:  line.UnitCost,
			ExpiresAt: line.ExpiresAt,
		})
	}
	if len(draft.Lines) == 0 {
		return nil
	}

	_, err = s.createPurchase(ctx, draft, inv.ID)
	return err
}

// ArchiveInTransit retires an open logistics invoice without receiving the
// outstanding units. Its lots stop being reserved.
func (s *Service) ArchiveInTransit(ctx context.Context, id string) (domain.InTransitInvoice, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InTransitInvoice{}, fmt.Errorf("%w: invoice id required", store.ErrValidation)
	}

	invoice, err := s.repo.GetInTransit(ctx, id)
	if err != nil {
		return domain.InTransitInvoice{}, err
	}
	if invoice.Status != domain.InTransitOpen {
		return domain.InTransitInvoice{}, fmt.Errorf("%w: in-transit invoice %s is %s", store.ErrValidation, id, invoice.Status)
	}

	now := time.Now().UTC()
	invoice.Status = domain.InTransitArchived
	invoice.ClosedAt = &now

	saved, err := s.repo.UpdateInTransit(ctx, *invoice)
	if err != nil {
		return domain.InTransitInvoice{}, err
	}

	s.logAudit(ctx, "intransit_archive", "in_transit", saved.ID, "")
	return *saved, nil
}
