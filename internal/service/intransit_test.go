package service

import (
	"context"
	"errors"
	"testing"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/store"
)

func newTestInTransit(t *testing.T, svc *Service) domain.InTransitInvoice {
	t.Helper()
	inv, err := svc.CreateInTransit(context.Background(), domain.InTransitDraft{
		SupplierID:   "sup-kabul",
		Currency:     domain.CurrencyUSD,
		ExchangeRate: dec("70"),
		Lines: []domain.InTransitLineDraft{
			{ProductID: "prd-flour-01", Lot: "TRN-2501", Qty: 10, UnitCost: dec("40")},
		},
	})
	if err != nil {
		t.Fatalf("create in-transit: %v", err)
	}
	return inv
}

func TestCreateInTransitStartsAtFactory(t *testing.T) {
	svc := newTestService()

	inv := newTestInTransit(t, svc)
	if inv.ID != "T1" {
		t.Fatalf("expected first logistics invoice T1, got %s", inv.ID)
	}
	if inv.Status != domain.InTransitOpen {
		t.Fatalf("new invoice should be open, got %s", inv.Status)
	}
	line := inv.Lines[0]
	if line.AtFactoryQty != 10 || line.InTransitQty != 0 || line.ReceivedQty != 0 {
		t.Fatalf("all units should start at the factory, got %+v", line)
	}
}

func TestInTransitLotsAreReserved(t *testing.T) {
	svc := newTestService()
	newTestInTransit(t, svc)

	_, err := svc.CreatePurchase(context.Background(), domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-sugar-01", Lot: "TRN-2501", Qty: 5, UnitCost: dec("100")},
		},
	})
	if !errors.Is(err, store.ErrDuplicateLot) {
		t.Fatalf("lot on an open logistics invoice must be reserved, got %v", err)
	}
}

func TestMoveInTransitPartialReceiptSpawnsPurchase(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := newTestInTransit(t, svc)

	moved, err := svc.MoveInTransitItems(ctx, inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-flour-01", ToTransit: 10, ToReceived: 4},
	}, dec("0"))
	if err != nil {
		t.Fatalf("move items: %v", err)
	}

	line := moved.Lines[0]
	if line.AtFactoryQty != 0 || line.InTransitQty != 6 || line.ReceivedQty != 4 {
		t.Fatalf("buckets should be 0/6/4, got %+v", line)
	}
	if moved.Status != domain.InTransitOpen {
		t.Fatalf("partially received invoice stays open, got %s", moved.Status)
	}

	purchases, err := svc.ListInvoices(ctx, domain.InvoicePurchase, 10)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(purchases) != 1 {
		t.Fatalf("receipt should spawn one purchase, got %d", len(purchases))
	}
	purchase := purchases[0]
	if purchase.SourceInTransitID != inv.ID {
		t.Fatalf("purchase should link back to %s, got %s", inv.ID, purchase.SourceInTransitID)
	}
	if purchase.Lines[0].Qty != 4 {
		t.Fatalf("purchase should carry the 4 received units, got %d", purchase.Lines[0].Qty)
	}
	// The original lot stays reserved by the still-open invoice, so the
	// spawned batch takes a suffixed lot.
	if purchase.Lines[0].Lot != "TRN-2501-2" {
		t.Fatalf("expected suffixed lot TRN-2501-2, got %s", purchase.Lines[0].Lot)
	}

	product, err := svc.GetProduct(ctx, "prd-flour-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock() != 4 {
		t.Fatalf("received units should be sellable, got %d", product.Stock())
	}
}

func TestMoveInTransitFullReceiptClosesInvoice(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := newTestInTransit(t, svc)

	moved, err := svc.MoveInTransitItems(ctx, inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-flour-01", ToTransit: 10, ToReceived: 10},
	}, dec("400"))
	if err != nil {
		t.Fatalf("move items: %v", err)
	}

	if moved.Status != domain.InTransitClosed {
		t.Fatalf("fully received invoice should close, got %s", moved.Status)
	}
	if moved.ClosedAt == nil {
		t.Fatalf("closed invoice should record its close time")
	}

	purchases, err := svc.ListInvoices(ctx, domain.InvoicePurchase, 10)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(purchases) != 1 {
		t.Fatalf("expected one spawned purchase, got %d", len(purchases))
	}
	purchase := purchases[0]
	// The invoice closed before the receipt, freeing its lot.
	if purchase.Lines[0].Lot != "TRN-2501" {
		t.Fatalf("expected original lot TRN-2501, got %s", purchase.Lines[0].Lot)
	}
	if !purchase.PaidAmount.Equal(dec("400")) {
		t.Fatalf("paid amount should flow to the purchase, got %s", purchase.PaidAmount)
	}
	// 10 units at 40 USD, fully paid: no balance movement.
	supplier, err := svc.GetParty(ctx, "sup-kabul")
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	if !supplier.Balances.Total.IsZero() {
		t.Fatalf("fully paid receipt should not move the balance, got %s", supplier.Balances.Total)
	}
}

func TestMoveInTransitAccumulatesPaidAmount(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := newTestInTransit(t, svc)

	moved, err := svc.MoveInTransitItems(ctx, inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-flour-01", ToTransit: 10, ToReceived: 4},
	}, dec("100"))
	if err != nil {
		t.Fatalf("first move: %v", err)
	}
	if !moved.PaidAmount.Equal(dec("100")) {
		t.Fatalf("logistics invoice should record the 100 paid, got %s", moved.PaidAmount)
	}

	moved, err = svc.MoveInTransitItems(ctx, inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-flour-01", ToReceived: 6},
	}, dec("300"))
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	if !moved.PaidAmount.Equal(dec("400")) {
		t.Fatalf("payments should accumulate to 400 across moves, got %s", moved.PaidAmount)
	}
}

func TestMoveInTransitClampsToBuckets(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := newTestInTransit(t, svc)

	moved, err := svc.MoveInTransitItems(ctx, inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-flour-01", ToTransit: 99, ToReceived: 0},
	}, dec("0"))
	if err != nil {
		t.Fatalf("move items: %v", err)
	}
	line := moved.Lines[0]
	if line.AtFactoryQty != 0 || line.InTransitQty != 10 {
		t.Fatalf("move should clamp to the 10 available units, got %+v", line)
	}
}

func TestMoveInTransitRejectsClosedInvoice(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := newTestInTransit(t, svc)

	if _, err := svc.MoveInTransitItems(ctx, inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-flour-01", ToTransit: 10, ToReceived: 10},
	}, dec("0")); err != nil {
		t.Fatalf("move items: %v", err)
	}

	_, err := svc.MoveInTransitItems(ctx, inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-flour-01", ToTransit: 1},
	}, dec("0"))
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("moves against a closed invoice must fail, got %v", err)
	}
}

func TestMoveInTransitRejectsUnknownProduct(t *testing.T) {
	svc := newTestService()
	inv := newTestInTransit(t, svc)

	_, err := svc.MoveInTransitItems(context.Background(), inv.ID, []domain.InTransitMovement{
		{ProductID: "prd-rice-01", ToTransit: 1},
	}, dec("0"))
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("product not on the invoice must fail, got %v", err)
	}
}

func TestArchiveInTransitFreesLots(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	inv := newTestInTransit(t, svc)

	archived, err := svc.ArchiveInTransit(ctx, inv.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != domain.InTransitArchived {
		t.Fatalf("expected archived status, got %s", archived.Status)
	}
	if archived.ClosedAt == nil {
		t.Fatalf("archived invoice should record its close time")
	}

	// The lot stops being reserved once the invoice is no longer open.
	if _, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-sugar-01", Lot: "TRN-2501", Qty: 5, UnitCost: dec("100")},
		},
	}); err != nil {
		t.Fatalf("lot should be free after archive, got %v", err)
	}

	if _, err := svc.ArchiveInTransit(ctx, inv.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("double archive must fail, got %v", err)
	}
}
