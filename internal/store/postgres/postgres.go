package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/inventory"
	"mizanpos/backend/internal/store"
)

// Store is the PostgreSQL repository. Multi-entity settlement writes run in
// serializable transactions; invoice numbers come from a counters table
// whose UPSERT takes a per-prefix row lock. Decimal columns scan through
// database/sql via shopspring decimal's Scanner/Valuer.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, sale_price, active, created_at
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.SalePrice, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range products {
		batches, err := loadBatches(ctx, s.db, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Batches = batches
	}
	return products, nil
}

func loadBatches(ctx context.Context, q querier, productID string) ([]domain.Batch, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, lot, stock, unit_cost_base, purchased_at, expires_at
		FROM batches
		WHERE product_id = $1
		ORDER BY purchased_at, id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		var expires sql.NullTime
		if err := rows.Scan(&b.ID, &b.Lot, &b.Stock, &b.UnitCostBase, &b.PurchasedAt, &expires); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			b.ExpiresAt = &t
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func getProduct(ctx context.Context, q querier, id string) (*domain.Product, error) {
	var p domain.Product
	err := q.QueryRowContext(ctx, `
		SELECT id, name, category, sale_price, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.SalePrice, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	batches, err := loadBatches(ctx, q, id)
	if err != nil {
		return nil, err
	}
	p.Batches = batches
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, err := getProduct(ctx, s.db, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result[id] = *p
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, sale_price, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, product.ID, product.Name, product.Category, product.SalePrice, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, sale_price = $4, active = $5
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.SalePrice, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}
	return s.GetProduct(ctx, product.ID)
}

const partyColumns = `id, type, name, phone, bal_afn, bal_usd, bal_irt, bal_total, created_at`

func scanParty(row interface{ Scan(...any) error }) (domain.Party, error) {
	var p domain.Party
	err := row.Scan(&p.ID, &p.Type, &p.Name, &p.Phone,
		&p.Balances.AFN, &p.Balances.USD, &p.Balances.IRT, &p.Balances.Total, &p.CreatedAt)
	return p, err
}

func (s *Store) ListParties(ctx context.Context, partyType string) ([]domain.Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties`
	args := []any{}
	if partyType != "" {
		query += ` WHERE type = $1`
		args = append(args, partyType)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parties []domain.Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (s *Store) GetParty(ctx context.Context, id string) (*domain.Party, error) {
	p, err := scanParty(s.db.QueryRowContext(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: party %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateParty(ctx context.Context, party domain.Party) (*domain.Party, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (id, type, name, phone, bal_afn, bal_usd, bal_irt, bal_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, party.ID, party.Type, party.Name, party.Phone,
		party.Balances.AFN, party.Balances.USD, party.Balances.IRT, party.Balances.Total, party.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: party %s already exists", store.ErrValidation, party.ID)
		}
		return nil, err
	}
	created := party
	return &created, nil
}

const invoiceColumns = `id, type, party_id, cashier, lines, subtotal, discount, total, total_base,
	currency, exchange_rate, paid_amount, original_invoice_id, source_in_transit_id, created_at`

func scanInvoice(row interface{ Scan(...any) error }) (domain.Invoice, error) {
	var inv domain.Invoice
	var lines []byte
	var partyID, cashier, originalID, sourceID sql.NullString
	err := row.Scan(&inv.ID, &inv.Type, &partyID, &cashier, &lines,
		&inv.Subtotal, &inv.Discount, &inv.Total, &inv.TotalBase,
		&inv.Currency, &inv.ExchangeRate, &inv.PaidAmount, &originalID, &sourceID, &inv.CreatedAt)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.PartyID = partyID.String
	inv.Cashier = cashier.String
	inv.OriginalInvoiceID = originalID.String
	inv.SourceInTransitID = sourceID.String
	if err := json.Unmarshal(lines, &inv.Lines); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func insertInvoice(ctx context.Context, q querier, inv domain.Invoice) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO invoices (id, type, party_id, cashier, lines, subtotal, discount, total, total_base,
			currency, exchange_rate, paid_amount, original_invoice_id, source_in_transit_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, inv.ID, inv.Type, nullable(inv.PartyID), nullable(inv.Cashier), lines,
		inv.Subtotal, inv.Discount, inv.Total, inv.TotalBase,
		inv.Currency, inv.ExchangeRate, inv.PaidAmount,
		nullable(inv.OriginalInvoiceID), nullable(inv.SourceInTransitID), inv.CreatedAt)
	return err
}

func replaceInvoice(ctx context.Context, q querier, inv domain.Invoice) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE invoices
		SET party_id = $2, cashier = $3, lines = $4, subtotal = $5, discount = $6, total = $7,
			total_base = $8, currency = $9, exchange_rate = $10, paid_amount = $11
		WHERE id = $1
	`, inv.ID, nullable(inv.PartyID), nullable(inv.Cashier), lines,
		inv.Subtotal, inv.Discount, inv.Total, inv.TotalBase,
		inv.Currency, inv.ExchangeRate, inv.PaidAmount)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: invoice %s", store.ErrNotFound, inv.ID)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, invoiceType string, limit int) ([]domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	args := []any{}
	if invoiceType != "" {
		query += ` WHERE type = $1`
		args = append(args, invoiceType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	return s.queryInvoices(ctx, query, args...)
}

func (s *Store) ListInvoicesBetween(ctx context.Context, from, to time.Time) ([]domain.Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`, from, to)
}

func (s *Store) ListReturnsForInvoice(ctx context.Context, originalInvoiceID string) ([]domain.Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE type = $1 AND original_invoice_id = $2
		ORDER BY created_at
	`, domain.InvoiceReturn, originalInvoiceID)
}

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *Store) ListLedgerEntries(ctx context.Context, partyID string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, party_id, party_type, type, amount, currency, base_amount, description, invoice_id, created_at
		FROM ledger_entries
		WHERE party_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, partyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var description, invoiceID sql.NullString
		if err := rows.Scan(&e.ID, &e.PartyID, &e.PartyType, &e.Type, &e.Amount, &e.Currency,
			&e.BaseAmount, &description, &invoiceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Description = description.String
		e.InvoiceID = invoiceID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query reads newest-first to honor the limit; flip back to
	// chronological order for callers.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *Store) ReservedLots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT lot FROM batches`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []string
	for rows.Next() {
		var lot string
		if err := rows.Scan(&lot); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	transitRows, err := s.db.QueryContext(ctx, `SELECT lines FROM in_transit WHERE status = $1`, domain.InTransitOpen)
	if err != nil {
		return nil, err
	}
	defer transitRows.Close()

	for transitRows.Next() {
		var raw []byte
		if err := transitRows.Scan(&raw); err != nil {
			return nil, err
		}
		var lines []domain.InTransitLine
		if err := json.Unmarshal(raw, &lines); err != nil {
			return nil, err
		}
		for _, l := range lines {
			lots = append(lots, l.Lot)
		}
	}
	return lots, transitRows.Err()
}

// nextInvoiceID bumps the counter row for a prefix and returns the formatted
// invoice number. The UPSERT takes a row lock, serializing allocation.
func nextInvoiceID(ctx context.Context, q querier, prefix string) (string, error) {
	var value int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (prefix, value)
		VALUES ($1, 1)
		ON CONFLICT (prefix) DO UPDATE SET value = invoice_counters.value + 1
		RETURNING value
	`, prefix).Scan(&value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", prefix, value), nil
}

func applyBatchUpdates(ctx context.Context, q querier, updates []inventory.BatchUpdate) error {
	for _, u := range updates {
		res, err := q.ExecContext(ctx, `UPDATE batches SET stock = $2 WHERE id = $1`, u.BatchID, u.Stock)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: batch %s", store.ErrNotFound, u.BatchID)
		}
	}
	return nil
}

func insertBatches(ctx context.Context, q querier, batches []store.NewBatch) error {
	for _, nb := range batches {
		_, err := q.ExecContext(ctx, `
			INSERT INTO batches (id, product_id, lot, stock, unit_cost_base, purchased_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, nb.Batch.ID, nb.ProductID, nb.Batch.Lot, nb.Batch.Stock, nb.Batch.UnitCostBase,
			nb.Batch.PurchasedAt, nb.Batch.ExpiresAt)
		if err != nil {
			if isUniqueViolation(err) {
				return inventory.NewDuplicateLotError(nb.Batch.Lot)
			}
			return err
		}
	}
	return nil
}

func applyBalance(ctx context.Context, q querier, balance *store.BalanceUpdate) error {
	if balance == nil {
		return nil
	}
	res, err := q.ExecContext(ctx, `
		UPDATE parties SET bal_afn = $2, bal_usd = $3, bal_irt = $4, bal_total = $5 WHERE id = $1
	`, balance.PartyID, balance.Balances.AFN, balance.Balances.USD, balance.Balances.IRT, balance.Balances.Total)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: party %s", store.ErrNotFound, balance.PartyID)
	}
	return nil
}

func insertEntry(ctx context.Context, q querier, entry *domain.LedgerEntry) error {
	if entry == nil {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, party_id, party_type, type, amount, currency, base_amount, description, invoice_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.PartyID, entry.PartyType, entry.Type, entry.Amount, entry.Currency,
		entry.BaseAmount, nullable(entry.Description), nullable(entry.InvoiceID), entry.CreatedAt)
	return err
}

func (s *Store) settle(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateSale(ctx context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	err := s.settle(ctx, func(tx *sql.Tx) error {
		id, err := nextInvoiceID(ctx, tx, "F")
		if err != nil {
			return err
		}
		invoice.ID = id
		if entry != nil {
			entry.InvoiceID = id
		}
		if err := applyBatchUpdates(ctx, tx, updates); err != nil {
			return err
		}
		if err := applyBalance(ctx, tx, balance); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		return insertInvoice(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) UpdateSale(ctx context.Context, id string, invoice domain.Invoice, updates []inventory.BatchUpdate, balances []store.BalanceUpdate, entries []domain.LedgerEntry) (*domain.Invoice, error) {
	invoice.ID = id
	err := s.settle(ctx, func(tx *sql.Tx) error {
		if err := applyBatchUpdates(ctx, tx, updates); err != nil {
			return err
		}
		for i := range balances {
			if err := applyBalance(ctx, tx, &balances[i]); err != nil {
				return err
			}
		}
		for i := range entries {
			if err := insertEntry(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}
		return replaceInvoice(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	updated := invoice
	return &updated, nil
}

func (s *Store) CreateSaleReturn(ctx context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	return s.createReturn(ctx, invoice, updates, balance, entry)
}

func (s *Store) CreatePurchaseReturn(ctx context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	return s.createReturn(ctx, invoice, updates, balance, entry)
}

func (s *Store) createReturn(ctx context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	err := s.settle(ctx, func(tx *sql.Tx) error {
		id, err := nextInvoiceID(ctx, tx, "R")
		if err != nil {
			return err
		}
		invoice.ID = id
		if err := applyBatchUpdates(ctx, tx, updates); err != nil {
			return err
		}
		if err := applyBalance(ctx, tx, balance); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		return insertInvoice(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) CreatePurchase(ctx context.Context, invoice domain.Invoice, batches []store.NewBatch, balance *store.BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error) {
	err := s.settle(ctx, func(tx *sql.Tx) error {
		id, err := nextInvoiceID(ctx, tx, "P")
		if err != nil {
			return err
		}
		invoice.ID = id
		if entry != nil {
			entry.InvoiceID = id
		}
		if err := insertBatches(ctx, tx, batches); err != nil {
			return err
		}
		if err := applyBalance(ctx, tx, balance); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		return insertInvoice(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) UpdatePurchase(ctx context.Context, id string, invoice domain.Invoice, updates []inventory.BatchUpdate, batches []store.NewBatch, balance *store.BalanceUpdate, entries []domain.LedgerEntry) (*domain.Invoice, error) {
	invoice.ID = id
	err := s.settle(ctx, func(tx *sql.Tx) error {
		if err := applyBatchUpdates(ctx, tx, updates); err != nil {
			return err
		}
		if err := insertBatches(ctx, tx, batches); err != nil {
			return err
		}
		if err := applyBalance(ctx, tx, balance); err != nil {
			return err
		}
		for i := range entries {
			if err := insertEntry(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}
		return replaceInvoice(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	updated := invoice
	return &updated, nil
}

const inTransitColumns = `id, supplier_id, currency, exchange_rate, lines, paid_amount, status, created_at, closed_at`

func scanInTransit(row interface{ Scan(...any) error }) (domain.InTransitInvoice, error) {
	var inv domain.InTransitInvoice
	var lines []byte
	var closedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.SupplierID, &inv.Currency, &inv.ExchangeRate,
		&lines, &inv.PaidAmount, &inv.Status, &inv.CreatedAt, &closedAt)
	if err != nil {
		return domain.InTransitInvoice{}, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		inv.ClosedAt = &t
	}
	if err := json.Unmarshal(lines, &inv.Lines); err != nil {
		return domain.InTransitInvoice{}, err
	}
	return inv, nil
}

func (s *Store) CreateInTransit(ctx context.Context, inv domain.InTransitInvoice) (*domain.InTransitInvoice, error) {
	err := s.settle(ctx, func(tx *sql.Tx) error {
		id, err := nextInvoiceID(ctx, tx, "T")
		if err != nil {
			return err
		}
		inv.ID = id
		lines, err := json.Marshal(inv.Lines)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO in_transit (id, supplier_id, currency, exchange_rate, lines, paid_amount, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, inv.ID, inv.SupplierID, inv.Currency, inv.ExchangeRate, lines, inv.PaidAmount, inv.Status, inv.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	created := inv
	return &created, nil
}

func (s *Store) UpdateInTransit(ctx context.Context, inv domain.InTransitInvoice) (*domain.InTransitInvoice, error) {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE in_transit
		SET lines = $2, paid_amount = $3, status = $4, closed_at = $5
		WHERE id = $1
	`, inv.ID, lines, inv.PaidAmount, inv.Status, inv.ClosedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: in-transit invoice %s", store.ErrNotFound, inv.ID)
	}
	updated := inv
	return &updated, nil
}

func (s *Store) GetInTransit(ctx context.Context, id string) (*domain.InTransitInvoice, error) {
	inv, err := scanInTransit(s.db.QueryRowContext(ctx, `SELECT `+inTransitColumns+` FROM in_transit WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: in-transit invoice %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInTransit(ctx context.Context, status string) ([]domain.InTransitInvoice, error) {
	query := `SELECT ` + inTransitColumns + ` FROM in_transit`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.InTransitInvoice
	for rows.Next() {
		inv, err := scanInTransit(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *Store) ProcessPayment(ctx context.Context, balance store.BalanceUpdate, entry domain.LedgerEntry) error {
	return s.settle(ctx, func(tx *sql.Tx) error {
		if err := applyBalance(ctx, tx, &balance); err != nil {
			return err
		}
		return insertEntry(ctx, tx, &entry)
	})
}

func (s *Store) GetLatestRate(ctx context.Context, code string) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := s.db.QueryRowContext(ctx, `
		SELECT currency, rate, created_at
		FROM exchange_rates
		WHERE currency = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, code).Scan(&rate.Currency, &rate.Rate, &rate.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no rate for %s", store.ErrNotFound, code)
		}
		return nil, err
	}
	return &rate, nil
}

func (s *Store) PutRate(ctx context.Context, rate domain.ExchangeRate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (currency, rate, created_at)
		VALUES ($1,$2,$3)
	`, rate.Currency, rate.Rate, rate.CreatedAt)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ActorUsername, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already exists", store.ErrValidation, user.Username)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.UserAccount
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
		}
		return nil, err
	}
	return &u, nil
}
