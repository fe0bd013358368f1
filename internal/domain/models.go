package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CurrencyAFN = "AFN"
	CurrencyUSD = "USD"
	CurrencyIRT = "IRT"

	// BaseCurrency is the store's accounting currency. All aggregate
	// balances and batch unit costs are expressed in it.
	BaseCurrency = CurrencyAFN
)

type Batch struct {
	ID           string          `json:"id"`
	Lot          string          `json:"lot"`
	Stock        int             `json:"stock"`
	UnitCostBase decimal.Decimal `json:"unit_cost_base"`
	PurchasedAt  time.Time       `json:"purchased_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Active    bool            `json:"active"`
	Batches   []Batch         `json:"batches"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stock is the sum of all batch stocks.
func (p Product) Stock() int {
	total := 0
	for _, b := range p.Batches {
		total += b.Stock
	}
	return total
}

type ProductCreateRequest struct {
	Name      string          `json:"name" validate:"required"`
	Category  string          `json:"category"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

type ProductUpdateRequest struct {
	Name      *string          `json:"name,omitempty"`
	Category  *string          `json:"category,omitempty"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	Active    *bool            `json:"active,omitempty"`
}

const (
	PartyCustomer = "customer"
	PartySupplier = "supplier"
)

// Balances holds a party's per-currency wallets plus the aggregate Total.
// The wallets are informational per-currency positions; Total is the
// authoritative net position in the base currency.
type Balances struct {
	AFN   decimal.Decimal `json:"afn"`
	USD   decimal.Decimal `json:"usd"`
	IRT   decimal.Decimal `json:"irt"`
	Total decimal.Decimal `json:"total"`
}

// Apply adds amount to the named currency wallet and baseAmount to Total.
// Callers editing prior state must issue a revert/apply pair, never a raw
// increment against unknown prior state.
func (b *Balances) Apply(currency string, amount, baseAmount decimal.Decimal) {
	switch currency {
	case CurrencyAFN:
		b.AFN = b.AFN.Add(amount)
	case CurrencyUSD:
		b.USD = b.USD.Add(amount)
	case CurrencyIRT:
		b.IRT = b.IRT.Add(amount)
	}
	b.Total = b.Total.Add(baseAmount)
}

type Party struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Balances  Balances  `json:"balances"`
	CreatedAt time.Time `json:"created_at"`
}

type PartyCreateRequest struct {
	Type  string `json:"type" validate:"required,oneof=customer supplier"`
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
}

const (
	InvoiceSale     = "sale"
	InvoicePurchase = "purchase"
	InvoiceReturn   = "return"
)

// Deduction records one FIFO consumption against a batch. Sale lines carry
// their deduction list so a later edit or return can restore exactly the
// batches the sale consumed.
type Deduction struct {
	BatchID  string          `json:"batch_id"`
	Qty      int             `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type InvoiceLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	// CostBase is the FIFO cost basis of a sale line in base currency.
	CostBase   decimal.Decimal `json:"cost_base"`
	Deductions []Deduction     `json:"deductions,omitempty"`
	// Purchase and purchase-return lines address a specific lot.
	Lot       string     `json:"lot,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Invoice struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	PartyID  string          `json:"party_id,omitempty"`
	Cashier  string          `json:"cashier,omitempty"`
	Lines    []InvoiceLine   `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	// TotalBase mirrors Total in the base currency using the rate snapshot
	// below; the rate is captured at invoice time and never recalculated.
	TotalBase    decimal.Decimal `json:"total_base"`
	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	// OriginalInvoiceID links a return to the invoice it reverses.
	OriginalInvoiceID string `json:"original_invoice_id,omitempty"`
	// SourceInTransitID links a purchase spawned by a goods receipt.
	SourceInTransitID string    `json:"source_in_transit_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SaleLineDraft is one validated cart line.
type SaleLineDraft struct {
	ProductID string           `json:"product_id" validate:"required"`
	Qty       int              `json:"qty" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type SaleDraft struct {
	Cashier      string          `json:"cashier"`
	CustomerID   string          `json:"customer_id,omitempty"`
	Currency     string          `json:"currency" validate:"required,oneof=AFN USD IRT"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Discount     decimal.Decimal `json:"discount"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Lines        []SaleLineDraft `json:"lines" validate:"dive"`
}

type PurchaseLineDraft struct {
	ProductID string          `json:"product_id" validate:"required"`
	Lot       string          `json:"lot" validate:"required"`
	Qty       int             `json:"qty" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

type PurchaseDraft struct {
	SupplierID   string              `json:"supplier_id" validate:"required"`
	Currency     string              `json:"currency" validate:"required,oneof=AFN USD IRT"`
	ExchangeRate decimal.Decimal     `json:"exchange_rate"`
	Discount     decimal.Decimal     `json:"discount"`
	PaidAmount   decimal.Decimal     `json:"paid_amount"`
	Lines        []PurchaseLineDraft `json:"lines" validate:"min=1,dive"`
}

type ReturnLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int    `json:"qty" validate:"gt=0"`
	// Lot addresses the batch for purchase returns; ignored for sale returns.
	Lot string `json:"lot,omitempty"`
}

const (
	EntrySale     = "sale"
	EntryPurchase = "purchase"
	EntryReturn   = "return"
	EntryPayment  = "payment"
	EntryAdvance  = "advance"
)

// LedgerEntry is an immutable, append-only record of one balance-affecting
// event. Reversals append offsetting entries; entries are never edited.
type LedgerEntry struct {
	ID          string          `json:"id"`
	PartyID     string          `json:"party_id"`
	PartyType   string          `json:"party_type"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Description string          `json:"description,omitempty"`
	InvoiceID   string          `json:"invoice_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PaymentDraft struct {
	PartyID      string          `json:"party_id" validate:"required"`
	PartyType    string          `json:"party_type" validate:"required,oneof=customer supplier"`
	Type         string          `json:"type" validate:"required,oneof=payment advance"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency" validate:"required,oneof=AFN USD IRT"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Description  string          `json:"description"`
}

const (
	InTransitOpen     = "open"
	InTransitClosed   = "closed"
	InTransitArchived = "archived"
)

// InTransitLine splits an ordered quantity across the three logistics
// buckets. AtFactoryQty + InTransitQty + ReceivedQty always equals Qty.
type InTransitLine struct {
	ProductID    string          `json:"product_id"`
	Lot          string          `json:"lot"`
	Qty          int             `json:"qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	AtFactoryQty int             `json:"at_factory_qty"`
	InTransitQty int             `json:"in_transit_qty"`
	ReceivedQty  int             `json:"received_qty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

type InTransitInvoice struct {
	ID           string          `json:"id"`
	SupplierID   string          `json:"supplier_id"`
	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Lines        []InTransitLine `json:"lines"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}

type InTransitLineDraft struct {
	ProductID string          `json:"product_id" validate:"required"`
	Lot       string          `json:"lot" validate:"required"`
	Qty       int             `json:"qty" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

type InTransitDraft struct {
	SupplierID   string               `json:"supplier_id" validate:"required"`
	Currency     string               `json:"currency" validate:"required,oneof=AFN USD IRT"`
	ExchangeRate decimal.Decimal      `json:"exchange_rate"`
	Lines        []InTransitLineDraft `json:"lines" validate:"min=1,dive"`
}

// InTransitMovement moves units of one line forward through the buckets.
type InTransitMovement struct {
	ProductID  string `json:"product_id" validate:"required"`
	ToTransit  int    `json:"to_transit" validate:"gte=0"`
	ToReceived int    `json:"to_received" validate:"gte=0"`
}

type ExchangeRate struct {
	Currency  string          `json:"currency"`
	Rate      decimal.Decimal `json:"rate"`
	CreatedAt time.Time       `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type DailyReportCurrency struct {
	Currency   string          `json:"currency"`
	Invoices   int64           `json:"invoices"`
	SalesTotal decimal.Decimal `json:"sales_total"`
}

type DailyReport struct {
	Date        string                `json:"date"`
	Sales       int64                 `json:"sales"`
	Returns     int64                 `json:"returns"`
	Purchases   int64                 `json:"purchases"`
	SalesBase   decimal.Decimal       `json:"sales_base"`
	ReturnsBase decimal.Decimal       `json:"returns_base"`
	CostBase    decimal.Decimal       `json:"cost_base"`
	GrossProfit decimal.Decimal       `json:"gross_profit"`
	ByCurrency  []DailyReportCurrency `json:"by_currency"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
