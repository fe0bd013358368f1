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
	"mizanpos/backend/internal/xid"
)

func (s *Service) normalizePurchaseDraft(draft *domain.PurchaseDraft) error {
	draft.SupplierID = strings.TrimSpace(draft.SupplierID)
	draft.Currency = strings.ToUpper(strings.TrimSpace(draft.Currency))
	for i := range draft.Lines {
		draft.Lines[i].Lot = strings.TrimSpace(draft.Lines[i].Lot)
	}

	if err := s.validate.Struct(*draft); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if err := s.checkRate(draft.Currency, draft.ExchangeRate); err != nil {
		return err
	}
	if draft.Discount.Sign() < 0 || draft.PaidAmount.Sign() < 0 {
		return fmt.Errorf("%w: discount and paid amount must not be negative", store.ErrValidation)
	}
	for _, l := range draft.Lines {
		if l.UnitCost.Sign() < 0 {
			return fmt.Errorf("%w: unit cost must not be negative", store.ErrValidation)
		}
	}

	seen := make(map[string]struct{}, len(draft.Lines))
	for _, l := range draft.Lines {
		if _, dup := seen[l.Lot]; dup {
			return fmt.Errorf("%w: lot %s repeated within invoice", store.ErrDuplicateLot, l.Lot)
		}
		seen[l.Lot] = struct{}{}
	}
	return nil
}

func (s *Service) fetchSupplier(ctx context.Context, id string) (*domain.Party, error) {
	supplier, err := s.repo.GetParty(ctx, id)
	if err != nil {
		return nil, err
	}
	if supplier.Type != domain.PartySupplier {
		return nil, fmt.Errorf("%w: party %s is not a supplier", store.ErrValidation, id)
	}
	return supplier, nil
}

// buildPurchaseLines converts draft lines into invoice lines, summing the
// transactional subtotal. Unit costs stay in the transactional currency on
// the invoice; the batch carries the base-converted cost.
func (s *Service) buildPurchaseLines(draft domain.PurchaseDraft, products map[string]domain.Product) ([]domain.InvoiceLine, decimal.Decimal, error) {
	lines := make([]domain.InvoiceLine, 0, len(draft.Lines))
	subtotal := decimal.Zero
	for _, l := range draft.Lines {
		product, ok := products[l.ProductID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: product %s", store.ErrNotFound, l.ProductID)
		}
		lineTotal := l.UnitCost.Mul(decimal.NewFromInt(int64(l.Qty)))
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, domain.InvoiceLine{
			ProductID: l.ProductID,
			Name:      product.Name,
			Qty:       l.Qty,
			UnitPrice: l.UnitCost,
			LineTotal: lineTotal,
			Lot:       l.Lot,
			ExpiresAt: l.ExpiresAt,
		})
	}
	return lines, subtotal, nil
}

// CreatePurchase records a supplier invoice: one new batch per line, lot
// numbers checked against everything already reserved, supplier balance
// credited with the unpaid portion.
func (s *Service) CreatePurchase(ctx context.Context, draft domain.PurchaseDraft) (domain.Invoice, error) {
	return s.createPurchase(ctx, draft, "")
}

func (s *Service) createPurchase(ctx context.Context, draft domain.PurchaseDraft, sourceInTransitID string) (domain.Invoice, error) {
	if err := s.normalizePurchaseDraft(&draft); err != nil {
		return domain.Invoice{}, err
	}

	supplier, err := s.fetchSupplier(ctx, draft.SupplierID)
	if err != nil {
		return domain.Invoice{}, err
	}

	reserved, err := s.repo.ReservedLots(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	reservedSet := make(map[string]struct{}, len(reserved))
	for _, lot := range reserved {
		reservedSet[lot] = struct{}{}
	}
	for _, l := range draft.Lines {
		if _, taken := reservedSet[l.Lot]; taken {
			return domain.Invoice{}, inventory.NewDuplicateLotError(l.Lot)
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, purchaseProductIDs(draft, nil))
	if err != nil {
		return domain.Invoice{}, err
	}

	lines, subtotal, err := s.buildPurchaseLines(draft, products)
	if err != nil {
		return domain.Invoice{}, err
	}

	now := time.Now().UTC()
	batches := make([]store.NewBatch, 0, len(draft.Lines))
	for _, l := range draft.Lines {
		batches = append(batches, store.NewBatch{
			ProductID: l.ProductID,
			Batch: domain.Batch{
				ID:           xid.New("bat"),
				Lot:          l.Lot,
				Stock:        l.Qty,
				UnitCostBase: s.currencies.ToBase(l.UnitCost, draft.Currency, draft.ExchangeRate),
				PurchasedAt:  now,
				ExpiresAt:    l.ExpiresAt,
			},
		})
	}

	total := subtotal.Sub(draft.Discount)
	invoice := domain.Invoice{
		Type:              domain.InvoicePurchase,
		PartyID:           supplier.ID,
		Lines:             lines,
		Subtotal:          subtotal,
		Discount:          draft.Discount,
		Total:             total,
		TotalBase:         s.currencies.ToBase(total, draft.Currency, draft.ExchangeRate),
		Currency:          draft.Currency,
		ExchangeRate:      draft.ExchangeRate,
		PaidAmount:        draft.PaidAmount,
		SourceInTransitID: sourceInTransitID,
		CreatedAt:         now,
	}

	credit, creditBase := s.creditOf(invoice)
	bal := supplier.Balances
	bal.Apply(invoice.Currency, credit, creditBase)
	balance := &store.BalanceUpdate{PartyID: supplier.ID, Balances: bal}
	entry := &domain.LedgerEntry{
		ID:         xid.New("led"),
		PartyID:    supplier.ID,
		PartyType:  domain.PartySupplier,
		Type:       domain.EntryPurchase,
		Amount:     credit,
		Currency:   invoice.Currency,
		BaseAmount: creditBase,
		CreatedAt:  now,
	}

	saved, err := s.repo.CreatePurchase(ctx, invoice, batches, balance, entry)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "purchase_create", "invoice", saved.ID, fmt.Sprintf("supplier=%s,total=%s %s", supplier.ID, saved.Total, saved.Currency))
	return *saved, nil
}

func purchaseProductIDs(draft domain.PurchaseDraft, extra []domain.InvoiceLine) []string {
	seen := make(map[string]struct{}, len(draft.Lines)+len(extra))
	ids := make([]string, 0, len(draft.Lines)+len(extra))
	for _, l := range draft.Lines {
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			ids = append(ids, l.ProductID)
		}
	}
	for _, l := range extra {
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// UpdatePurchase replaces a committed purchase with a new draft from the
// same supplier. Lots kept from the old invoice have their batch stock
// adjusted by the quantity delta; dropped lots are zeroed; new lots become
// new batches. Stock already sold out of an adjusted batch is not clawed
// back, only logged.
func (s *Service) UpdatePurchase(ctx context.Context, id string, draft domain.PurchaseDraft) (domain.Invoice, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Invoice{}, fmt.Errorf("%w: invoice id required", store.ErrValidation)
	}
	if err := s.normalizePurchaseDraft(&draft); err != nil {
		return domain.Invoice{}, err
	}

	previous, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if previous.Type != domain.InvoicePurchase {
		return domain.Invoice{}, fmt.Errorf("%w: invoice %s is not a purchase", store.ErrValidation, id)
	}
	if previous.PartyID != draft.SupplierID {
		return domain.Invoice{}, fmt.Errorf("%w: purchase edits cannot change the supplier", store.ErrValidation)
	}

	supplier, err := s.fetchSupplier(ctx, draft.SupplierID)
	if err != nil {
		return domain.Invoice{}, err
	}

	products, err := s.repo.GetProductsByIDs(ctx, purchaseProductIDs(draft, previous.Lines))
	if err != nil {
		return domain.Invoice{}, err
	}

	oldByLot := make(map[string]domain.InvoiceLine, len(previous.Lines))
	for _, l := range previous.Lines {
		oldByLot[l.Lot] = l
	}
	batchByLot := make(map[string]struct {
		productID string
		batch     domain.Batch
	})
	for _, p := range products {
		for _, b := range p.Batches {
			batchByLot[b.Lot] = struct {
				productID string
				batch     domain.Batch
			}{p.ID, b}
		}
	}

	now := time.Now().UTC()
	var updates []inventory.BatchUpdate
	var newBatches []store.NewBatch
	keptLots := make(map[string]struct{}, len(draft.Lines))

	for _, l := range draft.Lines {
		old, existed := oldByLot[l.Lot]
		if existed && old.ProductID == l.ProductID {
			keptLots[l.Lot] = struct{}{}
			entry, ok := batchByLot[l.Lot]
			if !ok {
				return domain.Invoice{}, inventory.NewLotNotFoundError(l.ProductID, l.Lot)
			}
			newStock := entry.batch.Stock - old.Qty + l.Qty
			if newStock < 0 {
				s.log.WithFields(logrus.Fields{
					"invoice": id,
					"lot":     l.Lot,
					"stock":   entry.batch.Stock,
					"old_qty": old.Qty,
					"new_qty": l.Qty,
				}).Warn("purchase edit shrinks a lot below its consumed stock; clamping to zero")
				newStock = 0
			}
			updates = append(updates, inventory.BatchUpdate{
				ProductID: l.ProductID,
				BatchID:   entry.batch.ID,
				Lot:       l.Lot,
				Stock:     newStock,
			})
			continue
		}
		if entry, taken := batchByLot[l.Lot]; taken && entry.productID != l.ProductID {
			return domain.Invoice{}, inventory.NewDuplicateLotError(l.Lot)
		}
		newBatches = append(newBatches, store.NewBatch{
			ProductID: l.ProductID,
			Batch: domain.Batch{
				ID:           xid.New("bat"),
				Lot:          l.Lot,
				Stock:        l.Qty,
				UnitCostBase: s.currencies.ToBase(l.UnitCost, draft.Currency, draft.ExchangeRate),
				PurchasedAt:  now,
				ExpiresAt:    l.ExpiresAt,
			},
		})
	}

	// Lots the edit dropped: zero their remaining stock, keep the batch row.
	for _, old := range previous.Lines {
		if _, kept := keptLots[old.Lot]; kept {
			continue
		}
		entry, ok := batchByLot[old.Lot]
		if !ok {
			continue
		}
		updates = append(updates, inventory.BatchUpdate{
			ProductID: old.ProductID,
			BatchID:   entry.batch.ID,
			Lot:       old.Lot,
			Stock:     0,
		})
	}

	lines, subtotal, err := s.buildPurchaseLines(draft, products)
	if err != nil {
		return domain.Invoice{}, err
	}

	total := subtotal.Sub(draft.Discount)
	invoice := domain.Invoice{
		ID:           previous.ID,
		Type:         domain.InvoicePurchase,
		PartyID:      supplier.ID,
		Lines:        lines,
		Subtotal:     subtotal,
		Discount:     draft.Discount,
		Total:        total,
		TotalBase:    s.currencies.ToBase(total, draft.Currency, draft.ExchangeRate),
		Currency:     draft.Currency,
		ExchangeRate: draft.ExchangeRate,
		PaidAmount:   draft.PaidAmount,
		CreatedAt:    previous.CreatedAt,
	}

	oldCredit, oldCreditBase := s.creditOf(*previous)
	newCredit, newCreditBase := s.creditOf(invoice)
	bal := supplier.Balances
	bal.Apply(previous.Currency, oldCredit.Neg(), oldCreditBase.Neg())
	bal.Apply(invoice.Currency, newCredit, newCreditBase)
	balance := &store.BalanceUpdate{PartyID: supplier.ID, Balances: bal}
	// Reversal of the old payable plus the new one, so the supplier's entry
	// sum keeps matching the balance total.
	entries := nonZeroEntries(
		domain.LedgerEntry{
			ID:          xid.New("led"),
			PartyID:     supplier.ID,
			PartyType:   domain.PartySupplier,
			Type:        domain.EntryPurchase,
			Amount:      oldCredit.Neg(),
			Currency:    previous.Currency,
			BaseAmount:  oldCreditBase.Neg(),
			Description: "purchase edit reversal",
			InvoiceID:   previous.ID,
			CreatedAt:   now,
		},
		domain.LedgerEntry{
			ID:          xid.New("led"),
			PartyID:     supplier.ID,
			PartyType:   domain.PartySupplier,
			Type:        domain.EntryPurchase,
			Amount:      newCredit,
			Currency:    invoice.Currency,
			BaseAmount:  newCreditBase,
			Description: "purchase edited",
			InvoiceID:   previous.ID,
			CreatedAt:   now,
		},
	)

	saved, err := s.repo.UpdatePurchase(ctx, id, invoice, updates, newBatches, balance, entries)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "purchase_update", "invoice", saved.ID, fmt.Sprintf("total=%s %s", saved.Total, saved.Currency))
	return *saved, nil
}

// ReturnPurchase sends units back to the supplier out of the exact lots the
// purchase delivered. The refund is valued at the original per-unit cost and
// the original exchange rate, and the supplier's payable shrinks by it.
func (s *Service) ReturnPurchase(ctx context.Context, originalID string, lines []domain.ReturnLine) (domain.Invoice, error) {
	originalID = strings.TrimSpace(originalID)
	if originalID == "" || len(lines) == 0 {
		return domain.Invoice{}, fmt.Errorf("%w: invoice id and return lines required", store.ErrValidation)
	}
	for i := range lines {
		lines[i].Lot = strings.TrimSpace(lines[i].Lot)
		if err := s.validate.Struct(lines[i]); err != nil {
			return domain.Invoice{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		if lines[i].Lot == "" {
			return domain.Invoice{}, fmt.Errorf("%w: purchase returns must name the lot", store.ErrValidation)
		}
	}

	original, err := s.repo.GetInvoice(ctx, originalID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if original.Type != domain.InvoicePurchase {
		return domain.Invoice{}, fmt.Errorf("%w: invoice %s is not a purchase", store.ErrValidation, originalID)
	}

	priorReturns, err := s.repo.ListReturnsForInvoice(ctx, originalID)
	if err != nil {
		return domain.Invoice{}, err
	}
	returnedByLot := make(map[string]int)
	for _, ret := range priorReturns {
		for _, l := range ret.Lines {
			returnedByLot[l.Lot] += l.Qty
		}
	}

	origByLot := make(map[string]domain.InvoiceLine, len(original.Lines))
	for _, l := range original.Lines {
		origByLot[l.Lot] = l
	}

	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			ids = append(ids, l.ProductID)
		}
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Invoice{}, err
	}
	snap := inventory.NewSnapshot(productList(products), nil, s.log)

	now := time.Now().UTC()
	returnLines := make([]domain.InvoiceLine, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		origLine, ok := origByLot[l.Lot]
		if !ok || origLine.ProductID != l.ProductID {
			return domain.Invoice{}, fmt.Errorf("%w: lot %s is not on invoice %s", store.ErrValidation, l.Lot, originalID)
		}
		if returnedByLot[l.Lot]+l.Qty > origLine.Qty {
			return domain.Invoice{}, fmt.Errorf("%w: lot %s purchased %d, already returned %d, requested %d",
				store.ErrOverReturn, l.Lot, origLine.Qty, returnedByLot[l.Lot], l.Qty)
		}
		returnedByLot[l.Lot] += l.Qty

		// The units must still be on the shelf to go back.
		if _, err := snap.DeductLot(l.ProductID, l.Lot, l.Qty); err != nil {
			return domain.Invoice{}, err
		}

		amount := origLine.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
		subtotal = subtotal.Add(amount)
		returnLines = append(returnLines, domain.InvoiceLine{
			ProductID: l.ProductID,
			Name:      origLine.Name,
			Qty:       l.Qty,
			UnitPrice: origLine.UnitPrice,
			LineTotal: amount,
			Lot:       l.Lot,
		})
	}

	totalBase := s.currencies.ToBase(subtotal, original.Currency, original.ExchangeRate)
	invoice := domain.Invoice{
		Type:              domain.InvoiceReturn,
		PartyID:           original.PartyID,
		Lines:             returnLines,
		Subtotal:          subtotal,
		Total:             subtotal,
		TotalBase:         totalBase,
		Currency:          original.Currency,
		ExchangeRate:      original.ExchangeRate,
		OriginalInvoiceID: original.ID,
		CreatedAt:         now,
	}

	supplier, err := s.fetchSupplier(ctx, original.PartyID)
	if err != nil {
		return domain.Invoice{}, err
	}
	bal := supplier.Balances
	bal.Apply(invoice.Currency, subtotal.Neg(), totalBase.Neg())
	balance := &store.BalanceUpdate{PartyID: supplier.ID, Balances: bal}
	entry := &domain.LedgerEntry{
		ID:         xid.New("led"),
		PartyID:    supplier.ID,
		PartyType:  domain.PartySupplier,
		Type:       domain.EntryReturn,
		Amount:     subtotal.Neg(),
		Currency:   invoice.Currency,
		BaseAmount: totalBase.Neg(),
		InvoiceID:  original.ID,
		CreatedAt:  now,
	}

	saved, err := s.repo.CreatePurchaseReturn(ctx, invoice, snap.Diff(ids), balance, entry)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "purchase_return", "invoice", saved.ID, fmt.Sprintf("original=%s,amount=%s %s", original.ID, saved.Total, saved.Currency))
	return *saved, nil
}

// ProcessPayment settles part of a party's outstanding balance (payment) or
// records money handed over ahead of any invoice (advance). Both post a
// negative amount: balances track what the store is owed by customers and
// owes suppliers, and incoming or prepaid money reduces that figure.
func (s *Service) ProcessPayment(ctx context.Context, draft domain.PaymentDraft) (domain.LedgerEntry, error) {
	draft.PartyID = strings.TrimSpace(draft.PartyID)
	draft.Currency = strings.ToUpper(strings.TrimSpace(draft.Currency))
	if err := s.validate.Struct(draft); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if draft.Amount.Sign() <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if err := s.checkRate(draft.Currency, draft.ExchangeRate); err != nil {
		return domain.LedgerEntry{}, err
	}

	party, err := s.repo.GetParty(ctx, draft.PartyID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if party.Type != draft.PartyType {
		return domain.LedgerEntry{}, fmt.Errorf("%w: party %s is a %s, not a %s", store.ErrValidation, party.ID, party.Type, draft.PartyType)
	}

	baseAmount := s.currencies.ToBase(draft.Amount, draft.Currency, draft.ExchangeRate)
	bal := party.Balances
	bal.Apply(draft.Currency, draft.Amount.Neg(), baseAmount.Neg())

	entryType := domain.EntryPayment
	if draft.Type == domain.EntryAdvance {
		entryType = domain.EntryAdvance
	}
	entry := domain.LedgerEntry{
		ID:          xid.New("led"),
		PartyID:     party.ID,
		PartyType:   party.Type,
		Type:        entryType,
		Amount:      draft.Amount.Neg(),
		Currency:    draft.Currency,
		BaseAmount:  baseAmount.Neg(),
		Description: draft.Description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.ProcessPayment(ctx, store.BalanceUpdate{PartyID: party.ID, Balances: bal}, entry); err != nil {
		return domain.LedgerEntry{}, err
	}

	s.logAudit(ctx, "payment_process", party.Type, party.ID, fmt.Sprintf("type=%s,amount=%s %s", entryType, draft.Amount, draft.Currency))
	return entry, nil
}
