package inventory

import (
	"sort"

	"github.com/sirupsen/logrus"

	"mizanpos/backend/internal/domain"
)

// Snapshot is a copy-on-write working view over the batches of just the
// products one settlement operation touches. All FIFO simulation runs here;
// nothing is persisted until the engine commits the whole diff, so a failed
// simulation leaves no side effects.
type Snapshot struct {
	products map[string][]domain.Batch
	// lots indexes every lot number known to the catalog and the in-transit
	// set, for duplicate-lot rejection.
	lots map[string]struct{}
	log  *logrus.Logger
}

func NewSnapshot(products []domain.Product, reservedLots []string, log *logrus.Logger) *Snapshot {
	s := &Snapshot{
		products: make(map[string][]domain.Batch, len(products)),
		lots:     make(map[string]struct{}, len(reservedLots)),
		log:      log,
	}
	for _, p := range products {
		batches := make([]domain.Batch, len(p.Batches))
		copy(batches, p.Batches)
		s.products[p.ID] = batches
		for _, b := range p.Batches {
			s.lots[b.Lot] = struct{}{}
		}
	}
	for _, lot := range reservedLots {
		s.lots[lot] = struct{}{}
	}
	return s
}

// Has reports whether the snapshot tracks the product.
func (s *Snapshot) Has(productID string) bool {
	_, ok := s.products[productID]
	return ok
}

// Stock returns the total available stock for a product in this snapshot.
func (s *Snapshot) Stock(productID string) int {
	total := 0
	for _, b := range s.products[productID] {
		total += b.Stock
	}
	return total
}

// Batches returns the product's working batches (callers must not mutate).
func (s *Snapshot) Batches(productID string) []domain.Batch {
	return s.products[productID]
}

// LotExists reports whether a lot number is already taken anywhere in the
// catalog or the in-transit set.
func (s *Snapshot) LotExists(lot string) bool {
	_, ok := s.lots[lot]
	return ok
}

// Append registers a new batch for the product. Duplicate lot numbers are
// rejected across the whole catalog, not just this product.
func (s *Snapshot) Append(productID string, batch domain.Batch) error {
	if s.LotExists(batch.Lot) {
		return NewDuplicateLotError(batch.Lot)
	}
	s.products[productID] = append(s.products[productID], batch)
	s.lots[batch.Lot] = struct{}{}
	return nil
}

// DeductFIFO consumes qty units from the product's batches, oldest purchase
// date first, partially consuming a batch when needed. It returns the ordered
// deduction list the sale line must record. When total stock is short it
// fails with an insufficient-stock error and leaves the snapshot untouched.
func (s *Snapshot) DeductFIFO(productID string, qty int) ([]domain.Deduction, error) {
	batches := s.products[productID]
	if s.Stock(productID) < qty {
		return nil, NewInsufficientStockError(productID, qty, s.Stock(productID))
	}

	ordered := make([]int, 0, len(batches))
	for i := range batches {
		if batches[i].Stock > 0 {
			ordered = append(ordered, i)
		}
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return batches[ordered[a]].PurchasedAt.Before(batches[ordered[b]].PurchasedAt)
	})

	remaining := qty
	deductions := make([]domain.Deduction, 0, 2)
	for _, i := range ordered {
		if remaining == 0 {
			break
		}
		take := batches[i].Stock
		if take > remaining {
			take = remaining
		}
		batches[i].Stock -= take
		remaining -= take
		deductions = append(deductions, domain.Deduction{
			BatchID:  batches[i].ID,
			Qty:      take,
			UnitCost: batches[i].UnitCostBase,
		})
	}
	s.products[productID] = batches
	return deductions, nil
}

// Restore reverses a recorded deduction list by adding quantities back to the
// referenced batches. A deduction pointing at a batch this snapshot does not
// hold is tolerated and logged; under the no-delete invariant it should not
// happen.
func (s *Snapshot) Restore(productID string, deductions []domain.Deduction) {
	batches := s.products[productID]
	for _, d := range deductions {
		found := false
		for i := range batches {
			if batches[i].ID == d.BatchID {
				batches[i].Stock += d.Qty
				found = true
				break
			}
		}
		if !found && s.log != nil {
			s.log.WithFields(logrus.Fields{
				"component": "inventory",
				"product":   productID,
				"batch":     d.BatchID,
			}).Warn("restore skipped: batch no longer exists")
		}
	}
	s.products[productID] = batches
}

// DeductLot removes qty from the specific named lot, used by purchase
// returns where the caller addresses a lot directly instead of FIFO.
func (s *Snapshot) DeductLot(productID, lot string, qty int) (domain.Deduction, error) {
	batches := s.products[productID]
	for i := range batches {
		if batches[i].Lot != lot {
			continue
		}
		if batches[i].Stock < qty {
			return domain.Deduction{}, NewInsufficientStockError(productID, qty, batches[i].Stock)
		}
		batches[i].Stock -= qty
		s.products[productID] = batches
		return domain.Deduction{BatchID: batches[i].ID, Qty: qty, UnitCost: batches[i].UnitCostBase}, nil
	}
	return domain.Deduction{}, NewLotNotFoundError(productID, lot)
}

// Diff returns the absolute stock value of every batch the snapshot holds
// for the listed products, for persistence as full replacements rather than
// increments.
func (s *Snapshot) Diff(productIDs []string) []BatchUpdate {
	updates := make([]BatchUpdate, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, b := range s.products[id] {
			updates = append(updates, BatchUpdate{
				ProductID: id,
				BatchID:   b.ID,
				Lot:       b.Lot,
				Stock:     b.Stock,
			})
		}
	}
	return updates
}

// BatchUpdate carries the final stock value a settlement writes for one
// batch. Edits are full replacements, never additive deltas.
type BatchUpdate struct {
	ProductID string
	BatchID   string
	Lot       string
	Stock     int
}
