package store

import (
	"context"
	"errors"
	"time"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/inventory"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrEmptyCart  = errors.New("cart is empty")
	ErrOverReturn = errors.New("return exceeds sold quantity")

	// Stock errors originate in the inventory snapshot; aliased here so
	// callers match them the same way as the other store sentinels.
	ErrInsufficientStock = inventory.ErrInsufficientStock
	ErrDuplicateLot      = inventory.ErrDuplicateLot
)

// BalanceUpdate replaces a party's balances wholesale. The engine computes
// the new value from the last-fetched snapshot with revert-then-apply pairs;
// the store never increments.
type BalanceUpdate struct {
	PartyID  string
	Balances domain.Balances
}

// NewBatch describes a batch a purchase write must create.
type NewBatch struct {
	ProductID string
	Batch     domain.Batch
}

// Repository is the persistence collaborator. Every multi-entity write
// method is all-or-nothing: either the invoice, batch and balance changes
// all land, or none do.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListParties(ctx context.Context, partyType string) ([]domain.Party, error)
	GetParty(ctx context.Context, id string) (*domain.Party, error)
	CreateParty(ctx context.Context, party domain.Party) (*domain.Party, error)

	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, invoiceType string, limit int) ([]domain.Invoice, error)
	ListInvoicesBetween(ctx context.Context, from, to time.Time) ([]domain.Invoice, error)
	// ListReturnsForInvoice returns all return invoices linked to the
	// original invoice id, for cumulative over-return checks.
	ListReturnsForInvoice(ctx context.Context, originalInvoiceID string) ([]domain.Invoice, error)

	ListLedgerEntries(ctx context.Context, partyID string, limit int) ([]domain.LedgerEntry, error)

	// ReservedLots returns every lot number in use across product batches
	// and open in-transit invoices.
	ReservedLots(ctx context.Context) ([]string, error)

	CreateSale(ctx context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error)
	// UpdateSale and UpdatePurchase take an entry list: an edit appends an
	// offsetting reversal of the old invoice's ledger contribution plus the
	// new contribution, keeping each party's entry sum equal to its balance.
	UpdateSale(ctx context.Context, id string, invoice domain.Invoice, updates []inventory.BatchUpdate, balances []BalanceUpdate, entries []domain.LedgerEntry) (*domain.Invoice, error)
	CreateSaleReturn(ctx context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error)

	CreatePurchase(ctx context.Context, invoice domain.Invoice, batches []NewBatch, balance *BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error)
	UpdatePurchase(ctx context.Context, id string, invoice domain.Invoice, updates []inventory.BatchUpdate, batches []NewBatch, balance *BalanceUpdate, entries []domain.LedgerEntry) (*domain.Invoice, error)
	CreatePurchaseReturn(ctx context.Context, invoice domain.Invoice, updates []inventory.BatchUpdate, balance *BalanceUpdate, entry *domain.LedgerEntry) (*domain.Invoice, error)

	CreateInTransit(ctx context.Context, inv domain.InTransitInvoice) (*domain.InTransitInvoice, error)
	UpdateInTransit(ctx context.Context, inv domain.InTransitInvoice) (*domain.InTransitInvoice, error)
	GetInTransit(ctx context.Context, id string) (*domain.InTransitInvoice, error)
	ListInTransit(ctx context.Context, status string) ([]domain.InTransitInvoice, error)

	ProcessPayment(ctx context.Context, balance BalanceUpdate, entry domain.LedgerEntry) error

	GetLatestRate(ctx context.Context, code string) (*domain.ExchangeRate, error)
	PutRate(ctx context.Context, rate domain.ExchangeRate) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
}
