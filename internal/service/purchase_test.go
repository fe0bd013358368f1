package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/store"
)

func TestCreatePurchaseAddsBatchesWithBaseCost(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyUSD,
		ExchangeRate: dec("70"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("10")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	if inv.ID != "P1" {
		t.Fatalf("expected first purchase invoice P1, got %s", inv.ID)
	}
	if !inv.Total.Equal(dec("200")) {
		t.Fatalf("20 x 10 USD should total 200, got %s", inv.Total)
	}
	if !inv.TotalBase.Equal(dec("14000")) {
		t.Fatalf("base total should be 14000 AFN, got %s", inv.TotalBase)
	}

	product, err := svc.GetProduct(ctx, "prd-flour-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if len(product.Batches) != 1 {
		t.Fatalf("expected one new batch, got %d", len(product.Batches))
	}
	batch := product.Batches[0]
	if batch.Lot != "FLR-2501" || batch.Stock != 20 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	// 10 USD at rate 70.
	if !batch.UnitCostBase.Equal(dec("700")) {
		t.Fatalf("unit cost should convert to 700 AFN, got %s", batch.UnitCostBase)
	}

	supplier, err := svc.GetParty(ctx, "sup-herat")
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	if !supplier.Balances.USD.Equal(dec("200")) || !supplier.Balances.Total.Equal(dec("14000")) {
		t.Fatalf("unpaid purchase should land on the supplier balance, got %+v", supplier.Balances)
	}
}

func TestCreatePurchaseRejectsReservedLot(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreatePurchase(context.Background(), domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "RICE-2401", Qty: 5, UnitCost: dec("100")},
		},
	})
	if !errors.Is(err, store.ErrDuplicateLot) {
		t.Fatalf("lot already in the catalog must be rejected, got %v", err)
	}
}

func TestCreatePurchaseRejectsRepeatedLotInDraft(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreatePurchase(context.Background(), domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 5, UnitCost: dec("100")},
			{ProductID: "prd-sugar-01", Lot: "FLR-2501", Qty: 3, UnitCost: dec("80")},
		},
	})
	if !errors.Is(err, store.ErrDuplicateLot) {
		t.Fatalf("lot repeated within one draft must be rejected, got %v", err)
	}
}

func TestCreatePurchaseRejectsCustomerAsSupplier(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreatePurchase(context.Background(), domain.PurchaseDraft{
		SupplierID:   "cus-ahmad",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 5, UnitCost: dec("100")},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("customer party must be rejected as supplier, got %v", err)
	}
}

func TestUpdatePurchaseCannotChangeSupplier(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("3000")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	_, err = svc.UpdatePurchase(ctx, inv.ID, domain.PurchaseDraft{
		SupplierID:   "sup-kabul",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("3000")},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("supplier change on edit must be rejected, got %v", err)
	}
}

func TestUpdatePurchaseAdjustsKeptLotStock(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("3000")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	updated, err := svc.UpdatePurchase(ctx, inv.ID, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 30, UnitCost: dec("3000")},
		},
	})
	if err != nil {
		t.Fatalf("update purchase: %v", err)
	}
	if !updated.Total.Equal(dec("90000")) {
		t.Fatalf("edited total should be 30*3000, got %s", updated.Total)
	}

	product, err := svc.GetProduct(ctx, "prd-flour-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if len(product.Batches) != 1 || product.Batches[0].Stock != 30 {
		t.Fatalf("kept lot should adjust to the new quantity, got %+v", product.Batches)
	}

	supplier, err := svc.GetParty(ctx, "sup-herat")
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	// Old 60000 credit reverted, new 90000 applied.
	if !supplier.Balances.Total.Equal(dec("90000")) {
		t.Fatalf("supplier balance should be 90000 after the edit, got %s", supplier.Balances.Total)
	}
}

func TestUpdatePurchaseKeepsLedgerConsistent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("3000")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	if _, err := svc.UpdatePurchase(ctx, inv.ID, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 30, UnitCost: dec("3000")},
		},
	}); err != nil {
		t.Fatalf("update purchase: %v", err)
	}

	supplier, err := svc.GetParty(ctx, "sup-herat")
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	if !supplier.Balances.Total.Equal(dec("90000")) {
		t.Fatalf("edited purchase should leave a 90000 payable, got %s", supplier.Balances.Total)
	}

	entries, err := svc.ListLedgerEntries(ctx, "sup-herat", 100)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected original, reversal and new entry, got %d", len(entries))
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.BaseAmount)
	}
	if !sum.Equal(supplier.Balances.Total) {
		t.Fatalf("ledger sum %s must equal balance total %s after edit", sum, supplier.Balances.Total)
	}
}

func TestUpdatePurchaseDroppedLotIsZeroedNotDeleted(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("3000")},
			{ProductID: "prd-flour-01", Lot: "FLR-2502", Qty: 10, UnitCost: dec("3100")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	if _, err := svc.UpdatePurchase(ctx, inv.ID, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("3000")},
		},
	}); err != nil {
		t.Fatalf("update purchase: %v", err)
	}

	product, err := svc.GetProduct(ctx, "prd-flour-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if len(product.Batches) != 2 {
		t.Fatalf("dropped lot must keep its batch row, got %d batches", len(product.Batches))
	}
	for _, b := range product.Batches {
		if b.Lot == "FLR-2502" && b.Stock != 0 {
			t.Fatalf("dropped lot should be zeroed, got stock %d", b.Stock)
		}
	}
}

func TestReturnPurchaseShrinksStockAndPayable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 20, UnitCost: dec("50")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	ret, err := svc.ReturnPurchase(ctx, inv.ID, []domain.ReturnLine{
		{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 5},
	})
	if err != nil {
		t.Fatalf("return purchase: %v", err)
	}

	if ret.OriginalInvoiceID != inv.ID {
		t.Fatalf("return must link to %s, got %s", inv.ID, ret.OriginalInvoiceID)
	}
	if !ret.Total.Equal(dec("250")) {
		t.Fatalf("5 units at original cost 50 should total 250, got %s", ret.Total)
	}

	product, err := svc.GetProduct(ctx, "prd-flour-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Batches[0].Stock != 15 {
		t.Fatalf("returned units should leave the shelf, got %d", product.Batches[0].Stock)
	}

	supplier, err := svc.GetParty(ctx, "sup-herat")
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	// 1000 payable minus the 250 refund.
	if !supplier.Balances.Total.Equal(dec("750")) {
		t.Fatalf("payable should shrink to 750, got %s", supplier.Balances.Total)
	}
}

func TestReturnPurchaseCumulativeOverReturn(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 10, UnitCost: dec("50")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	if _, err := svc.ReturnPurchase(ctx, inv.ID, []domain.ReturnLine{
		{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 7},
	}); err != nil {
		t.Fatalf("first return: %v", err)
	}
	_, err = svc.ReturnPurchase(ctx, inv.ID, []domain.ReturnLine{
		{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 4},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("7+4 of 10 must fail as over-return, got %v", err)
	}
}

func TestReturnPurchaseRequiresLot(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 10, UnitCost: dec("50")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	_, err = svc.ReturnPurchase(ctx, inv.ID, []domain.ReturnLine{
		{ProductID: "prd-flour-01", Qty: 2},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("purchase return without a lot must fail, got %v", err)
	}
}

func TestReturnPurchaseFailsWhenStockAlreadySold(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 10, UnitCost: dec("50")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if _, err := svc.CompleteSale(ctx, domain.SaleDraft{
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines:        []domain.SaleLineDraft{{ProductID: "prd-flour-01", Qty: 8}},
	}); err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	_, err = svc.ReturnPurchase(ctx, inv.ID, []domain.ReturnLine{
		{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 5},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("units no longer on the shelf cannot go back, got %v", err)
	}
}

func TestProcessPaymentReducesCustomerBalance(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.CompleteSale(ctx, domain.SaleDraft{
		CustomerID:   "cus-ahmad",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines:        []domain.SaleLineDraft{{ProductID: "prd-rice-01", Qty: 2}},
	}); err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	entry, err := svc.ProcessPayment(ctx, domain.PaymentDraft{
		PartyID:      "cus-ahmad",
		PartyType:    domain.PartyCustomer,
		Type:         domain.EntryPayment,
		Amount:       dec("1000"),
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
	})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if !entry.Amount.Equal(dec("-1000")) {
		t.Fatalf("payments post negative, got %s", entry.Amount)
	}

	customer, err := svc.GetParty(ctx, "cus-ahmad")
	if err != nil {
		t.Fatalf("get party: %v", err)
	}
	if !customer.Balances.Total.Equal(dec("3200")) {
		t.Fatalf("4200 debt minus 1000 payment should leave 3200, got %s", customer.Balances.Total)
	}
}

func TestProcessPaymentAdvanceGoesNegative(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.ProcessPayment(ctx, domain.PaymentDraft{
		PartyID:      "sup-kabul",
		PartyType:    domain.PartySupplier,
		Type:         domain.EntryAdvance,
		Amount:       dec("100"),
		Currency:     domain.CurrencyUSD,
		ExchangeRate: dec("70"),
	}); err != nil {
		t.Fatalf("process advance: %v", err)
	}

	supplier, err := svc.GetParty(ctx, "sup-kabul")
	if err != nil {
		t.Fatalf("get party: %v", err)
	}
	if !supplier.Balances.USD.Equal(dec("-100")) || !supplier.Balances.Total.Equal(dec("-7000")) {
		t.Fatalf("advance should push the balance negative, got %+v", supplier.Balances)
	}
}

func TestProcessPaymentRejectsPartyTypeMismatch(t *testing.T) {
	svc := newTestService()

	_, err := svc.ProcessPayment(context.Background(), domain.PaymentDraft{
		PartyID:      "sup-herat",
		PartyType:    domain.PartyCustomer,
		Type:         domain.EntryPayment,
		Amount:       dec("100"),
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("party type mismatch must fail, got %v", err)
	}
}

func TestProcessPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService()

	_, err := svc.ProcessPayment(context.Background(), domain.PaymentDraft{
		PartyID:      "cus-ahmad",
		PartyType:    domain.PartyCustomer,
		Type:         domain.EntryPayment,
		Amount:       dec("0"),
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("zero amount must fail, got %v", err)
	}
}
