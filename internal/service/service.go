package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mizanpos/backend/internal/cache"
	"mizanpos/backend/internal/currency"
	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/inventory"
	"mizanpos/backend/internal/store"
	"mizanpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the invoice settlement engine. It owns the mutation sequence
// for the invoice/batch/balance triple: every operation validates its draft,
// simulates against a scoped inventory snapshot, then issues exactly one
// atomic repository write. Persisted state is the source of truth; nothing
// is cached in the engine between calls.
type Service struct {
	repo       store.Repository
	cache      cache.Cache
	currencies currency.Config
	validate   *validator.Validate
	log        *logrus.Logger
	rateTTL    time.Duration
	reportTTL  time.Duration
}

func New(repo store.Repository, c cache.Cache, log *logrus.Logger, rateTTL, reportTTL time.Duration) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = logrus.New()
	}
	if rateTTL <= 0 {
		rateTTL = 5 * time.Minute
	}
	if reportTTL <= 0 {
		reportTTL = time.Minute
	}

	return &Service{
		repo:       repo,
		cache:      c,
		currencies: currency.NewDefault(),
		validate:   validator.New(),
		log:        log,
		rateTTL:    rateTTL,
		reportTTL:  reportTTL,
	}
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.log.WithFields(logrus.Fields{
			"component": "service",
			"action":    action,
			"entity":    entityID,
		}).WithError(err).Warn("audit log write failed")
	}
}

// checkRate rejects unsupported currencies and non-positive rates before any
// settlement work starts.
func (s *Service) checkRate(code string, rate decimal.Decimal) error {
	if err := s.currencies.ValidateRate(code, rate); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, strings.TrimSpace(id))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.validate.Struct(req); err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if req.SalePrice.Sign() < 0 {
		return domain.Product{}, fmt.Errorf("%w: sale price must not be negative", store.ErrValidation)
	}

	product := domain.Product{
		ID:        xid.New("prd"),
		Name:      req.Name,
		Category:  req.Category,
		SalePrice: req.SalePrice,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s", created.Name, created.SalePrice))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", store.ErrValidation)
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.SalePrice != nil {
		if req.SalePrice.Sign() < 0 {
			return domain.Product{}, fmt.Errorf("%w: sale price must not be negative", store.ErrValidation)
		}
		updated.SalePrice = *req.SalePrice
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%s", saved.Active, saved.SalePrice))
	return *saved, nil
}

func (s *Service) ListParties(ctx context.Context, partyType string) ([]domain.Party, error) {
	return s.repo.ListParties(ctx, strings.TrimSpace(partyType))
}

func (s *Service) GetParty(ctx context.Context, id string) (*domain.Party, error) {
	return s.repo.GetParty(ctx, strings.TrimSpace(id))
}

func (s *Service) CreateParty(ctx context.Context, req domain.PartyCreateRequest) (domain.Party, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		return domain.Party{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	prefix := "cus"
	if req.Type == domain.PartySupplier {
		prefix = "sup"
	}
	party := domain.Party{
		ID:        xid.New(prefix),
		Type:      req.Type,
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: time.Now().UTC(),
	}

	saved, err := s.repo.CreateParty(ctx, party)
	if err != nil {
		return domain.Party{}, err
	}

	s.logAudit(ctx, "party_create", party.Type, saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.repo.GetInvoice(ctx, strings.TrimSpace(id))
}

func (s *Service) ListInvoices(ctx context.Context, invoiceType string, limit int) ([]domain.Invoice, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListInvoices(ctx, strings.TrimSpace(invoiceType), limit)
}

func (s *Service) ListLedgerEntries(ctx context.Context, partyID string, limit int) ([]domain.LedgerEntry, error) {
	partyID = strings.TrimSpace(partyID)
	if partyID == "" {
		return nil, fmt.Errorf("%w: party id required", store.ErrValidation)
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListLedgerEntries(ctx, partyID, limit)
}

// allocateSaleLines runs every cart line through the snapshot, consuming
// FIFO stock and pricing each line in the transactional currency. The
// snapshot carries all side effects; on error it is simply discarded.
func (s *Service) allocateSaleLines(snap *inventory.Snapshot, draft domain.SaleDraft, products map[string]domain.Product) ([]domain.InvoiceLine, decimal.Decimal, error) {
	lines := make([]domain.InvoiceLine, 0, len(draft.Lines))
	subtotal := decimal.Zero

	for _, l := range draft.Lines {
		product, ok := products[l.ProductID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: product %s", store.ErrNotFound, l.ProductID)
		}

		deductions, err := snap.DeductFIFO(l.ProductID, l.Qty)
		if err != nil {
			return nil, decimal.Zero, err
		}

		costBase := decimal.Zero
		for _, d := range deductions {
			costBase = costBase.Add(d.UnitCost.Mul(decimal.NewFromInt(int64(d.Qty))))
		}

		unitPrice := s.currencies.ToTransactional(product.SalePrice, draft.Currency, draft.ExchangeRate)
		if l.UnitPrice != nil {
			unitPrice = *l.UnitPrice
		}
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
		subtotal = subtotal.Add(lineTotal)

		lines = append(lines, domain.InvoiceLine{
			ProductID:  l.ProductID,
			Name:       product.Name,
			Qty:        l.Qty,
			UnitPrice:  unitPrice,
			LineTotal:  lineTotal,
			CostBase:   costBase,
			Deductions: deductions,
		})
	}

	return lines, subtotal, nil
}

func (s *Service) normalizeSaleDraft(draft *domain.SaleDraft) error {
	draft.CustomerID = strings.TrimSpace(draft.CustomerID)
	draft.Currency = strings.ToUpper(strings.TrimSpace(draft.Currency))

	if len(draft.Lines) == 0 {
		return store.ErrEmptyCart
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
	return nil
}

func saleProductIDs(draft domain.SaleDraft, extra []domain.InvoiceLine) []string {
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

// creditOf is the portion of an invoice that went on the party's account,
// in the transactional currency and in base.
func (s *Service) creditOf(inv domain.Invoice) (decimal.Decimal, decimal.Decimal) {
	credit := inv.Total.Sub(inv.PaidAmount)
	return credit, s.currencies.ToBase(credit, inv.Currency, inv.ExchangeRate)
}

// CompleteSale settles a cart as a new sale invoice: FIFO allocation,
// currency-converted totals, customer balance posting and one ledger entry,
// persisted as a single transaction.
func (s *Service) CompleteSale(ctx context.Context, draft domain.SaleDraft) (domain.Invoice, error) {
	if err := s.normalizeSaleDraft(&draft); err != nil {
		return domain.Invoice{}, err
	}

	ids := saleProductIDs(draft, nil)
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Invoice{}, err
	}

	snap := inventory.NewSnapshot(productList(products), nil, s.log)
	lines, subtotal, err := s.allocateSaleLines(snap, draft, products)
	if err != nil {
		return domain.Invoice{}, err
	}

	total := subtotal.Sub(draft.Discount)
	invoice := domain.Invoice{
		Type:         domain.InvoiceSale,
		PartyID:      draft.CustomerID,
		Cashier:      draft.Cashier,
		Lines:        lines,
		Subtotal:     subtotal,
		Discount:     draft.Discount,
		Total:        total,
		TotalBase:    s.currencies.ToBase(total, draft.Currency, draft.ExchangeRate),
		Currency:     draft.Currency,
		ExchangeRate: draft.ExchangeRate,
		PaidAmount:   draft.PaidAmount,
		CreatedAt:    time.Now().UTC(),
	}

	var balance *store.BalanceUpdate
	var entry *domain.LedgerEntry
	if draft.CustomerID != "" {
		customer, err := s.repo.GetParty(ctx, draft.CustomerID)
		if err != nil {
			return domain.Invoice{}, err
		}
		if customer.Type != domain.PartyCustomer {
			return domain.Invoice{}, fmt.Errorf("%w: party %s is not a customer", store.ErrValidation, draft.CustomerID)
		}

		credit, creditBase := s.creditOf(invoice)
		next := customer.Balances
		next.Apply(invoice.Currency, credit, creditBase)
		balance = &store.BalanceUpdate{PartyID: customer.ID, Balances: next}
		entry = &domain.LedgerEntry{
			ID:         xid.New("led"),
			PartyID:    customer.ID,
			PartyType:  domain.PartyCustomer,
			Type:       domain.EntrySale,
			Amount:     credit,
			Currency:   invoice.Currency,
			BaseAmount: creditBase,
			CreatedAt:  invoice.CreatedAt,
		}
	}

	saved, err := s.repo.CreateSale(ctx, invoice, snap.Diff(ids), balance, entry)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "sale_complete", "invoice", saved.ID, fmt.Sprintf("total=%s %s,lines=%d", saved.Total, saved.Currency, len(saved.Lines)))
	return *saved, nil
}

// UpdateSale replaces a committed sale with a new draft. The prior version's
// deductions are restored into a scratch snapshot before the new allocation
// runs, and balances are recomputed as revert-then-apply, so an edit to
// identical contents is a no-op on stock and balances.
func (s *Service) UpdateSale(ctx context.Context, id string, draft domain.SaleDraft) (domain.Invoice, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Invoice{}, fmt.Errorf("%w: invoice id required", store.ErrValidation)
	}
	if err := s.normalizeSaleDraft(&draft); err != nil {
		return domain.Invoice{}, err
	}

	previous, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if previous.Type != domain.InvoiceSale {
		return domain.Invoice{}, fmt.Errorf("%w: invoice %s is not a sale", store.ErrValidation, id)
	}

	ids := saleProductIDs(draft, previous.Lines)
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Invoice{}, err
	}

	// Virtual reversal: put the old sale's stock back before reallocating.
	snap := inventory.NewSnapshot(productList(products), nil, s.log)
	for _, line := range previous.Lines {
		snap.Restore(line.ProductID, line.Deductions)
	}

	lines, subtotal, err := s.allocateSaleLines(snap, draft, products)
	if err != nil {
		return domain.Invoice{}, err
	}

	total := subtotal.Sub(draft.Discount)
	invoice := domain.Invoice{
		ID:           previous.ID,
		Type:         domain.InvoiceSale,
		PartyID:      draft.CustomerID,
		Cashier:      draft.Cashier,
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

	balances, entries, err := s.saleEditBalances(ctx, *previous, invoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	saved, err := s.repo.UpdateSale(ctx, id, invoice, snap.Diff(ids), balances, entries)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "sale_update", "invoice", saved.ID, fmt.Sprintf("total=%s %s", saved.Total, saved.Currency))
	return *saved, nil
}

// saleEditBalances computes full-replacement balance values for a sale edit:
// the old invoice's contribution is reverted from its customer and the new
// contribution applied, covering the case where the customer changed. The
// ledger gets the same treatment as an entry pair, an offsetting reversal of
// the old contribution plus the new one, so every party's entry sum keeps
// matching its balance total.
func (s *Service) saleEditBalances(ctx context.Context, old, next domain.Invoice) ([]store.BalanceUpdate, []domain.LedgerEntry, error) {
	if old.PartyID == "" && next.PartyID == "" {
		return nil, nil, nil
	}

	oldCredit, oldCreditBase := s.creditOf(old)
	newCredit, newCreditBase := s.creditOf(next)

	if old.PartyID == next.PartyID {
		customer, err := s.repo.GetParty(ctx, next.PartyID)
		if err != nil {
			return nil, nil, err
		}
		bal := customer.Balances
		bal.Apply(old.Currency, oldCredit.Neg(), oldCreditBase.Neg())
		bal.Apply(next.Currency, newCredit, newCreditBase)
		entries := nonZeroEntries(
			s.saleEditEntry(old, oldCredit.Neg(), oldCreditBase.Neg(), "sale edit reversal"),
			s.saleEditEntry(next, newCredit, newCreditBase, "sale edited"),
		)
		return []store.BalanceUpdate{{PartyID: customer.ID, Balances: bal}}, entries, nil
	}

	updates := make([]store.BalanceUpdate, 0, 2)
	var entries []domain.LedgerEntry
	if old.PartyID != "" {
		prior, err := s.repo.GetParty(ctx, old.PartyID)
		if err != nil {
			return nil, nil, err
		}
		bal := prior.Balances
		bal.Apply(old.Currency, oldCredit.Neg(), oldCreditBase.Neg())
		updates = append(updates, store.BalanceUpdate{PartyID: prior.ID, Balances: bal})
		entries = append(entries, nonZeroEntries(
			s.saleEditEntry(old, oldCredit.Neg(), oldCreditBase.Neg(), "sale edit reversal"))...)
	}

	if next.PartyID != "" {
		customer, err := s.repo.GetParty(ctx, next.PartyID)
		if err != nil {
			return nil, nil, err
		}
		if customer.Type != domain.PartyCustomer {
			return nil, nil, fmt.Errorf("%w: party %s is not a customer", store.ErrValidation, next.PartyID)
		}
		bal := customer.Balances
		bal.Apply(next.Currency, newCredit, newCreditBase)
		updates = append(updates, store.BalanceUpdate{PartyID: customer.ID, Balances: bal})
		entries = append(entries, nonZeroEntries(
			s.saleEditEntry(next, newCredit, newCreditBase, "sale edited"))...)
	}

	return updates, entries, nil
}

func (s *Service) saleEditEntry(inv domain.Invoice, amount, baseAmount decimal.Decimal, description string) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:          xid.New("led"),
		PartyID:     inv.PartyID,
		PartyType:   domain.PartyCustomer,
		Type:        domain.EntrySale,
		Amount:      amount,
		Currency:    inv.Currency,
		BaseAmount:  baseAmount,
		Description: description,
		InvoiceID:   inv.ID,
		CreatedAt:   time.Now().UTC(),
	}
}

// nonZeroEntries drops entries that would record nothing, like the reversal
// pair an edit of a fully paid sale would otherwise write.
func nonZeroEntries(entries ...domain.LedgerEntry) []domain.LedgerEntry {
	kept := entries[:0]
	for _, e := range entries {
		if e.Amount.IsZero() && e.BaseAmount.IsZero() {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// ReturnSale restores part of a sale back into stock. Returned units go back
// to exactly the batches the original sale consumed, oldest deduction first,
// and a linked return invoice is created; the original is never mutated.
func (s *Service) ReturnSale(ctx context.Context, originalID string, lines []domain.ReturnLine, cashier string) (domain.Invoice, error) {
	originalID = strings.TrimSpace(originalID)
	if originalID == "" || len(lines) == 0 {
		return domain.Invoice{}, fmt.Errorf("%w: invoice id and return lines required", store.ErrValidation)
	}
	for _, l := range lines {
		if err := s.validate.Struct(l); err != nil {
			return domain.Invoice{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
	}

	original, err := s.repo.GetInvoice(ctx, originalID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if original.Type != domain.InvoiceSale {
		return domain.Invoice{}, fmt.Errorf("%w: invoice %s is not a sale", store.ErrValidation, originalID)
	}

	priorReturns, err := s.repo.ListReturnsForInvoice(ctx, originalID)
	if err != nil {
		return domain.Invoice{}, err
	}

	soldQty := make(map[string]int, len(original.Lines))
	for _, l := range original.Lines {
		soldQty[l.ProductID] += l.Qty
	}
	returnedQty := make(map[string]int)
	restoredPerBatch := make(map[string]int)
	for _, ret := range priorReturns {
		for _, l := range ret.Lines {
			returnedQty[l.ProductID] += l.Qty
			for _, d := range l.Deductions {
				restoredPerBatch[d.BatchID] += d.Qty
			}
		}
	}

	requested := make(map[string]int, len(lines))
	for _, l := range lines {
		requested[l.ProductID] += l.Qty
	}
	for productID, qty := range requested {
		if returnedQty[productID]+qty > soldQty[productID] {
			return domain.Invoice{}, fmt.Errorf("%w: product %s sold %d, already returned %d, requested %d",
				store.ErrOverReturn, productID, soldQty[productID], returnedQty[productID], qty)
		}
	}

	ids := make([]string, 0, len(requested))
	for productID := range requested {
		ids = append(ids, productID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Invoice{}, err
	}
	snap := inventory.NewSnapshot(productList(products), nil, s.log)

	returnLines := make([]domain.InvoiceLine, 0, len(requested))
	subtotal := decimal.Zero
	for _, origLine := range original.Lines {
		qty, wanted := requested[origLine.ProductID]
		if !wanted || qty == 0 {
			continue
		}
		if qty > origLine.Qty {
			qty = origLine.Qty
		}
		requested[origLine.ProductID] -= qty

		restored := pickRestorations(origLine.Deductions, restoredPerBatch, qty)
		snap.Restore(origLine.ProductID, restored)

		amount := origLine.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		subtotal = subtotal.Add(amount)

		costBase := decimal.Zero
		for _, d := range restored {
			costBase = costBase.Add(d.UnitCost.Mul(decimal.NewFromInt(int64(d.Qty))))
		}

		returnLines = append(returnLines, domain.InvoiceLine{
			ProductID:  origLine.ProductID,
			Name:       origLine.Name,
			Qty:        qty,
			UnitPrice:  origLine.UnitPrice,
			LineTotal:  amount,
			CostBase:   costBase,
			Deductions: restored,
		})
	}

	totalBase := s.currencies.ToBase(subtotal, original.Currency, original.ExchangeRate)
	invoice := domain.Invoice{
		Type:              domain.InvoiceReturn,
		PartyID:           original.PartyID,
		Cashier:           cashier,
		Lines:             returnLines,
		Subtotal:          subtotal,
		Total:             subtotal,
		TotalBase:         totalBase,
		Currency:          original.Currency,
		ExchangeRate:      original.ExchangeRate,
		OriginalInvoiceID: original.ID,
		CreatedAt:         time.Now().UTC(),
	}

	var balance *store.BalanceUpdate
	var entry *domain.LedgerEntry
	if original.PartyID != "" {
		customer, err := s.repo.GetParty(ctx, original.PartyID)
		if err != nil {
			return domain.Invoice{}, err
		}
		bal := customer.Balances
		bal.Apply(invoice.Currency, subtotal.Neg(), totalBase.Neg())
		balance = &store.BalanceUpdate{PartyID: customer.ID, Balances: bal}
		entry = &domain.LedgerEntry{
			ID:         xid.New("led"),
			PartyID:    customer.ID,
			PartyType:  domain.PartyCustomer,
			Type:       domain.EntryReturn,
			Amount:     subtotal.Neg(),
			Currency:   invoice.Currency,
			BaseAmount: totalBase.Neg(),
			InvoiceID:  original.ID,
			CreatedAt:  invoice.CreatedAt,
		}
	}

	saved, err := s.repo.CreateSaleReturn(ctx, invoice, snap.Diff(ids), balance, entry)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "sale_return", "invoice", saved.ID, fmt.Sprintf("original=%s,amount=%s %s", original.ID, saved.Total, saved.Currency))
	return *saved, nil
}

// pickRestorations selects up to qty units from the recorded deductions in
// their original order, skipping portions already restored by earlier
// returns. alreadyRestored is advanced in place so multiple lines in one
// call never double-restore a batch.
func pickRestorations(deductions []domain.Deduction, alreadyRestored map[string]int, qty int) []domain.Deduction {
	out := make([]domain.Deduction, 0, 2)
	remaining := qty
	for _, d := range deductions {
		if remaining == 0 {
			break
		}
		available := d.Qty - alreadyRestored[d.BatchID]
		if available <= 0 {
			continue
		}
		take := available
		if take > remaining {
			take = remaining
		}
		alreadyRestored[d.BatchID] += take
		remaining -= take
		out = append(out, domain.Deduction{BatchID: d.BatchID, Qty: take, UnitCost: d.UnitCost})
	}
	return out
}

func productList(products map[string]domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		out = append(out, p)
	}
	return out
}
