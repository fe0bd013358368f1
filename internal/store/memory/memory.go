package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/inventory"
	"mizanpos/backend/internal/store"
	"mizanpos/backend/internal/xid"
)

// Store is the in-memory repository used for dev/demo mode and tests. All
// multi-entity writes happen under one lock, which gives the same
// all-or-nothing behaviour the postgres store gets from transactions.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	parties         map[string]domain.Party
	invoices        map[string]domain.Invoice
	invoiceOrder    []string
	ledger          map[string][]domain.LedgerEntry
	inTransit       map[string]domain.InTransitInvoice
	inTransitOrder  []string
	rates           map[string][]domain.ExchangeRate
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	counters        map[string]int
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Production runs against
// PostgreSQL and never touches these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	day := 24 * time.Hour

	products := []domain.Product{
		{
			ID: "prd-rice-01", Name: "Rice 25kg", Category: "grocery", SalePrice: dec("2100"), Active: true,
			Batches: []domain.Batch{
				{ID: "bat-rice-01", Lot: "RICE-2401", Stock: 40, UnitCostBase: dec("1850"), PurchasedAt: now.Add(-30 * day)},
				{ID: "bat-rice-02", Lot: "RICE-2402", Stock: 25, UnitCostBase: dec("1900"), PurchasedAt: now.Add(-12 * day)},
			},
			CreatedAt: now.Add(-90 * day),
		},
		{
			ID: "prd-oil-01", Name: "Cooking Oil 5L", Category: "grocery", SalePrice: dec("780"), Active: true,
			Batches: []domain.Batch{
				{ID: "bat-oil-01", Lot: "OIL-2401", Stock: 60, UnitCostBase: dec("640"), PurchasedAt: now.Add(-20 * day)},
			},
			CreatedAt: now.Add(-90 * day),
		},
		{
			ID: "prd-tea-01", Name: "Green Tea 500g", Category: "beverage", SalePrice: dec("320"), Active: true,
			Batches: []domain.Batch{
				{ID: "bat-tea-01", Lot: "TEA-2401", Stock: 80, UnitCostBase: dec("240"), PurchasedAt: now.Add(-45 * day)},
				{ID: "bat-tea-02", Lot: "TEA-2402", Stock: 50, UnitCostBase: dec("255"), PurchasedAt: now.Add(-5 * day)},
			},
			CreatedAt: now.Add(-120 * day),
		},
		{
			ID: "prd-sugar-01", Name: "Sugar 10kg", Category: "grocery", SalePrice: dec("950"), Active: true,
			Batches: []domain.Batch{
				{ID: "bat-sugar-01", Lot: "SUG-2401", Stock: 30, UnitCostBase: dec("820"), PurchasedAt: now.Add(-15 * day)},
			},
			CreatedAt: now.Add(-60 * day),
		},
		{
			ID: "prd-flour-01", Name: "Wheat Flour 50kg", Category: "grocery", SalePrice: dec("3400"), Active: true,
			CreatedAt: now.Add(-60 * day),
		},
	}

	parties := []domain.Party{
		{ID: "cus-ahmad", Type: domain.PartyCustomer, Name: "Ahmad Wali", Phone: "+93700000001", CreatedAt: now.Add(-80 * day)},
		{ID: "cus-maryam", Type: domain.PartyCustomer, Name: "Maryam Hotak", Phone: "+93700000002", CreatedAt: now.Add(-40 * day)},
		{ID: "sup-herat", Type: domain.PartySupplier, Name: "Herat Trading Co", Phone: "+93790000001", CreatedAt: now.Add(-100 * day)},
		{ID: "sup-kabul", Type: domain.PartySupplier, Name: "Kabul Wholesale", Phone: "+93790000002", CreatedAt: now.Add(-100 * day)},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	partyMap := make(map[string]domain.Party, len(parties))
	for _, p := range parties {
		partyMap[p.ID] = p
	}

	rates := map[string][]domain.ExchangeRate{
		domain.CurrencyUSD: {{Currency: domain.CurrencyUSD, Rate: dec("70"), CreatedAt: now}},
		domain.CurrencyIRT: {{Currency: domain.CurrencyIRT, Rate: dec("600"), CreatedAt: now}},
	}

	return &Store{
		products:        productMap,
		parties:         partyMap,
		invoices:        map[string]domain.Invoice{},
		ledger:          map[string][]domain.LedgerEntry{},
		inTransit:       map[string]domain.InTransitInvoice{},
		rates:           rates,
		usersByUsername: seedUsers(),
		counters:        map[string]int{},
	}
}

// nextInvoiceID allocates the next sequential id for an invoice prefix.
// Callers must hold the write lock.
func (s *Store) nextInvoiceID(prefix string) string {
	s.counters[prefix]++
	return fmt.Sprintf("%s%d", prefix, s.counters[prefix])
}

func cloneProduct(p domain.Product) domain.Product {
	out := p
	out.Batches = make([]domain.Batch, len(p.Batches))
	copy(out.Batches, p.Batches)
	return out
}

func cloneInvoice(inv domain.Invoice) domain.Invoice {
	out := inv
	out.Lines = make([]domain.InvoiceLine, len(inv.Lines))
	copy(out.Lines, inv.Lines)
	for i, l := range inv.Lines {
		if len(l.Deductions) > 0 {
			out.Lines[i].Deductions = make([]domain.Deduction, len(l.Deductions))
			copy(out.Lines[i].Deductions, l.Deductions)
		}
	}
	return out
}

func cloneInTransit(inv domain.InTransitInvoice) domain.InTransitInvoice {
	out := inv
	out.Lines = make([]domain.InTransitLine, len(inv.Lines))
	copy(out.Lines, inv.Lines)
	return out
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, cloneProduct(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	copyProduct := cloneProduct(product)
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
	}
	s.products[product.ID] = cloneProduct(product)
	copyProduct := cloneProduct(product)
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}
	// Batch contents are owned by the settlement writes, not the catalog
	// update path.
	product.Batches = existing.Batches
	s.products[product.ID] = product
	copyProduct := cloneProduct(product)
	return &copyProduct, nil
}

func (s *Store) ListParties(_ context.Context, partyType string) ([]domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Party, 0, len(s.parties))
	for _, p := range s.parties {
		if partyType != "" && p.Type != partyType {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) GetParty(_ context.Context, id string) (*domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	party, ok := s.parties[id]
	if !ok {
		return nil, fmt.Errorf("%w: party %s", store.ErrNotFound, id)
	}
	copyParty := party
	return &copyParty, nil
}

func (s *Store) CreateParty(_ context.Context, party domain.Party) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if party.ID == "" {
		party.ID = xid.New("pty")
	}
	if _, exists := s.parties[party.ID]; exists {
		return nil, fmt.Errorf("%w: party %s already exists", store.ErrValidation, party.ID)
	}
	s.parties[party.ID] = party
	copyParty := party
	return &copyParty, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %s", store.ErrNotFound, id)
	}
	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func (s *Store) ListInvoices(_ context.Context, invoiceType string, limit int) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Invoice, 0, limit)
	for i := len(s.invoiceOrder) - 1; i >= 0 && len(result) < limit; i-- {
		inv := s.invoices[s.invoiceOrder[i]]
		if invoiceType != "" && inv.Type != invoiceType {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}
	return result, nil
}

func (s *Store) ListInvoicesBetween(_ context.Context, from, to time.Time) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Invoice
	for _, id := range s.invoiceOrder {
		inv := s.invoices[id]
		if inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}
	return result, nil
}

func (s *Store) ListReturnsForInvoice(_ context.Context, originalInvoiceID string) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Invoice
	for _, id := range s.invoiceOrder {
		inv := s.invoices[id]
		if inv.Type == domain.InvoiceReturn && inv.OriginalInvoiceID == originalInvoiceID {
			result = append(result, cloneInvoice(inv))
		}
	}
	return result, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, partyID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[partyID]
	start := 0
	if len(entries) > limit {
		start = len(entries) - limit
	}
	result := make([]domain.LedgerEntry, len(entries)-start)
	copy(result, entries[start:])
	return result, nil
}

func (s *Store) ReservedLots(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lots []string
	for _, p := range s.products {
		for _, b := range p.Batches {
			lots = append(lots, b.Lot)
		}
	}
	for _, inv := range s.inTransit {
		if inv.Status != domain.InTransitOpen {
			continue
		}
		for _, l := range inv.Lines {
			lots = append(lots, l.Lot)
		}
	}
	return lots, nil
}

// staging accumulates a settlement write against cloned entities so a
// failure partway through leaves the live maps untouched; commitLocked is
// the only point that mutates them.
type staging struct {
	store    *Store
	products map[string]domain.Product
	parties  map[string]domain.Party
}

func (s *Store) newStagingLocked() *staging {
	return &staging{
		store:    s,
		products: map[string]domain.Product{},
		parties:  map[string]domain.Party{},
	}
}

func (st *staging) product(id string) (domain.Product, bool) {
	if p, ok := st.products[id]; ok {
		return p, true
	}
	p, ok := st.store.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return cloneProduct(p), true
}

// applyBatchUpdates stages absolute stock values onto existing batches.
// Unknown batch ids fail the whole write.
func (st *staging) applyBatchUpdates(updates []inventory.BatchUpdate) error {
	for _, u := range updates {
		product, ok := st.product(u.ProductID)
		if !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, u.ProductID)
		}
		found := false
		for i := range product.Batches {
			if product.Batches[i].ID == u.BatchID {
				product.Batches[i].Stock = u.Stock
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: batch %s on product %s", store.ErrNotFound, u.BatchID, u.ProductID)
		}
		st.products[u.ProductID] = product
	}
	return nil
}

func (st *staging) appendBatches(batches []store.NewBatch) error {
	for _, nb := range batches {
		product, ok := st.product(nb.ProductID)
		if !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, nb.ProductID)
		}
		for _, existing := range product.Batches {
			if existing.Lot == nb.Batch.Lot {
				return inventory.NewDuplicateLotError(nb.Batch.Lot)
			}
		}
		product.Batches = append(product.Batches, nb.Batch)
		st.products[nb.ProductID] = product
	}
	return nil
}

func (st *staging) applyBalance(balance *store.BalanceUpdate) error {
	if balance == nil {
		return nil
	}
	party, ok := st.parties[balance.PartyID]
	if !ok {
		party, ok = st.store.parties[balance.PartyID]
		if !ok {
			return fmt.Errorf("%w: party %s", store.ErrNotFound, balance.PartyID)
		}
	}
	party.Balances = balance.Balances
	st.parties[balance.PartyID] = party
	return nil
}

func (st *staging) commitLocked() {
	for id, p := range st.products {
		st.store.products[id] = p
	}
	for id, p := range st.parties {
		st.store.parties[id] = p
	}
}

func (s *Store) appendEntryLocked(entry *domain.LedgerEntry) {
	if entry == nil {
		return
	}
	s.ledger[entry.PartyID] = append(s.ledger[entry.PartyID], *entry)
}

func (s *Store) appendEntriesLocked(entries []domain.LedgerEntry) {
	for i := range entries {
		s.appendEntryLocked(&entries[i])
	}
}

func (s *Store) CreateSale(_ context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.newStagingLocked()
	if err := staged.applyBatchUpdates(updates); err != nil {
		return nil, err
	}
	if err := staged.applyBalance(balance); err != nil {
		return nil, err
	}
	staged.commitLocked()

	invoice.ID = s.nextInvoiceID("F")
	if entry != nil {
		entry.InvoiceID = invoice.ID
	}
	s.appendEntryLocked(entry)
	s.invoices[invoice.ID] = cloneInvoice(invoice)
	s.invoiceOrder = append(s.invoiceOrder, invoice.ID)

	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func (s *Store) UpdateSale(_ context.Context, id string, invoice domain.Invoice, updates []inventory.BatchUpdate, balances []store.BalanceUpdate, entries []domain.LedgerEntry) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return nil, fmt.Errorf("%w: invoice %s", store.ErrNotFound, id)
	}
	staged := s.newStagingLocked()
	if err := staged.applyBatchUpdates(updates); err != nil {
		return nil, err
	}
	for i := range balances {
		if err := staged.applyBalance(&balances[i]); err != nil {
			return nil, err
		}
	}
	staged.commitLocked()
	s.appendEntriesLocked(entries)

	invoice.ID = id
	s.invoices[id] = cloneInvoice(invoice)
	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func (s *Store) CreateSaleReturn(_ context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.newStagingLocked()
	if err := staged.applyBatchUpdates(updates); err != nil {
		return nil, err
	}
	if err := staged.applyBalance(balance); err != nil {
		return nil, err
	}
	staged.commitLocked()

	invoice.ID = s.nextInvoiceID("R")
	if entry != nil {
		entry.Description = joinDescription(entry.Description, "return "+invoice.ID)
	}
	s.appendEntryLocked(entry)
	s.invoices[invoice.ID] = cloneInvoice(invoice)
	s.invoiceOrder = append(s.invoiceOrder, invoice.ID)

	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func joinDescription(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}

func (s *Store) CreatePurchase(_ context.Context, invoice domain.Invoice, batches []store.NewBatch, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.newStagingLocked()
	if err := staged.appendBatches(batches); err != nil {
		return nil, err
	}
	if err := staged.applyBalance(balance); err != nil {
		return nil, err
	}
	staged.commitLocked()

	invoice.ID = s.nextInvoiceID("P")
	if entry != nil {
		entry.InvoiceID = invoice.ID
	}
	s.appendEntryLocked(entry)
	s.invoices[invoice.ID] = cloneInvoice(invoice)
	s.invoiceOrder = append(s.invoiceOrder, invoice.ID)

	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func (s *Store) UpdatePurchase(_ context.Context, id string, invoice domain.Invoice, updates []inventory.BatchUpdate, batches []store.NewBatch, balance *store.BalanceUpdate, entries []domain.LedgerEntry) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return nil, fmt.Errorf("%w: invoice %s", store.ErrNotFound, id)
	}
	staged := s.newStagingLocked()
	if err := staged.applyBatchUpdates(updates); err != nil {
		return nil, err
	}
	if err := staged.appendBatches(batches); err != nil {
		return nil, err
	}
	if err := staged.applyBalance(balance); err != nil {
		return nil, err
	}
	staged.commitLocked()
	s.appendEntriesLocked(entries)

	invoice.ID = id
	s.invoices[id] = cloneInvoice(invoice)
	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func (s *Store) CreatePurchaseReturn(_ context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.newStagingLocked()
	if err := staged.applyBatchUpdates(updates); err != nil {
		return nil, err
	}
	if err := staged.applyBalance(balance); err != nil {
		return nil, err
	}
	staged.commitLocked()

	invoice.ID = s.nextInvoiceID("R")
	if entry != nil {
		entry.Description = joinDescription(entry.Description, "return "+invoice.ID)
	}
	s.appendEntryLocked(entry)
	s.invoices[invoice.ID] = cloneInvoice(invoice)
	s.invoiceOrder = append(s.invoiceOrder, invoice.ID)

	copyInvoice := cloneInvoice(invoice)
	return &copyInvoice, nil
}

func (s *Store) CreateInTransit(_ context.Context, inv domain.InTransitInvoice) (*domain.InTransitInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv.ID = s.nextInvoiceID("T")
	s.inTransit[inv.ID] = cloneInTransit(inv)
	s.inTransitOrder = append(s.inTransitOrder, inv.ID)

	copyInv := cloneInTransit(inv)
	return &copyInv, nil
}

func (s *Store) UpdateInTransit(_ context.Context, inv domain.InTransitInvoice) (*domain.InTransitInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inTransit[inv.ID]; !ok {
		return nil, fmt.Errorf("%w: in-transit invoice %s", store.ErrNotFound, inv.ID)
	}
	s.inTransit[inv.ID] = cloneInTransit(inv)
	copyInv := cloneInTransit(inv)
	return &copyInv, nil
}

func (s *Store) GetInTransit(_ context.Context, id string) (*domain.InTransitInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.inTransit[id]
	if !ok {
		return nil, fmt.Errorf("%w: in-transit invoice %s", store.ErrNotFound, id)
	}
	copyInv := cloneInTransit(inv)
	return &copyInv, nil
}

func (s *Store) ListInTransit(_ context.Context, status string) ([]domain.InTransitInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InTransitInvoice, 0, len(s.inTransitOrder))
	for i := len(s.inTransitOrder) - 1; i >= 0; i-- {
		inv := s.inTransit[s.inTransitOrder[i]]
		if status != "" && inv.Status != status {
			continue
		}
		result = append(result, cloneInTransit(inv))
	}
	return result, nil
}

func (s *Store) ProcessPayment(_ context.Context, balance store.BalanceUpdate, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.newStagingLocked()
	if err := staged.applyBalance(&balance); err != nil {
		return err
	}
	staged.commitLocked()
	s.appendEntryLocked(&entry)
	return nil
}

func (s *Store) GetLatestRate(_ context.Context, code string) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.rates[code]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no rate for %s", store.ErrNotFound, code)
	}
	copyRate := history[len(history)-1]
	return &copyRate, nil
}

func (s *Store) PutRate(_ context.Context, rate domain.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rates[rate.Currency] = append(s.rates[rate.Currency], rate)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.AuditLog
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: user %s already exists", store.ErrValidation, user.Username)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	copyUser := user
	return &copyUser, nil
}
