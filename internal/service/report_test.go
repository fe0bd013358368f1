package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/store"
)

func TestGetExchangeRateBaseIsAlwaysOne(t *testing.T) {
	svc := newTestService()

	rate, err := svc.GetExchangeRate(context.Background(), domain.CurrencyAFN)
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if !rate.Rate.Equal(dec("1")) {
		t.Fatalf("base currency rate must be 1, got %s", rate.Rate)
	}
}

func TestGetExchangeRateReadsSeededRate(t *testing.T) {
	svc := newTestService()

	rate, err := svc.GetExchangeRate(context.Background(), domain.CurrencyUSD)
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if !rate.Rate.Equal(dec("70")) {
		t.Fatalf("expected seeded rate 70, got %s", rate.Rate)
	}
}

func TestGetExchangeRateRejectsUnknownCurrency(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GetExchangeRate(context.Background(), "EUR"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("unsupported currency must fail, got %v", err)
	}
}

func TestSetExchangeRate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.SetExchangeRate(ctx, domain.CurrencyUSD, dec("72.5")); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	rate, err := svc.GetExchangeRate(ctx, domain.CurrencyUSD)
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if !rate.Rate.Equal(dec("72.5")) {
		t.Fatalf("expected updated rate 72.5, got %s", rate.Rate)
	}

	if _, err := svc.SetExchangeRate(ctx, domain.CurrencyAFN, dec("2")); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("setting a rate for the base currency must fail, got %v", err)
	}
	if _, err := svc.SetExchangeRate(ctx, domain.CurrencyUSD, dec("0")); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("non-positive rate must fail, got %v", err)
	}
}

func TestDailyReportAggregates(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CompleteSale(ctx, domain.SaleDraft{
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines:        []domain.SaleLineDraft{{ProductID: "prd-rice-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}
	if _, err := svc.ReturnSale(ctx, inv.ID, []domain.ReturnLine{{ProductID: "prd-rice-01", Qty: 1}}, ""); err != nil {
		t.Fatalf("return sale: %v", err)
	}
	if _, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 10, UnitCost: dec("3000")},
		},
	}); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	report, err := svc.DailyReport(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}

	if report.Sales != 1 || report.Returns != 1 || report.Purchases != 1 {
		t.Fatalf("expected 1 sale, 1 return, 1 purchase, got %d/%d/%d", report.Sales, report.Returns, report.Purchases)
	}
	if !report.SalesBase.Equal(dec("4200")) {
		t.Fatalf("sales base should be 4200, got %s", report.SalesBase)
	}
	if !report.ReturnsBase.Equal(dec("2100")) {
		t.Fatalf("returns base should be 2100, got %s", report.ReturnsBase)
	}
	// 2 units sold at 1850 cost, 1 returned.
	if !report.CostBase.Equal(dec("1850")) {
		t.Fatalf("net cost should be 1850, got %s", report.CostBase)
	}
	if !report.GrossProfit.Equal(dec("250")) {
		t.Fatalf("gross profit should be 4200-2100-1850=250, got %s", report.GrossProfit)
	}
	if len(report.ByCurrency) != 1 || report.ByCurrency[0].Currency != domain.CurrencyAFN {
		t.Fatalf("expected one AFN bucket, got %+v", report.ByCurrency)
	}
	if !report.ByCurrency[0].SalesTotal.Equal(dec("4200")) {
		t.Fatalf("AFN sales total should be 4200, got %s", report.ByCurrency[0].SalesTotal)
	}
}

func TestDailyReportIgnoresPurchaseReturns(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	sale, err := svc.CompleteSale(ctx, domain.SaleDraft{
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines:        []domain.SaleLineDraft{{ProductID: "prd-rice-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}
	if _, err := svc.ReturnSale(ctx, sale.ID, []domain.ReturnLine{{ProductID: "prd-rice-01", Qty: 1}}, ""); err != nil {
		t.Fatalf("return sale: %v", err)
	}
	purchase, err := svc.CreatePurchase(ctx, domain.PurchaseDraft{
		SupplierID:   "sup-herat",
		Currency:     domain.CurrencyAFN,
		ExchangeRate: dec("1"),
		Lines: []domain.PurchaseLineDraft{
			{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 10, UnitCost: dec("3000")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if _, err := svc.ReturnPurchase(ctx, purchase.ID, []domain.ReturnLine{
		{ProductID: "prd-flour-01", Lot: "FLR-2501", Qty: 5},
	}); err != nil {
		t.Fatalf("return purchase: %v", err)
	}

	report, err := svc.DailyReport(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}

	// Only the sale return counts; goods handed back to the supplier are
	// not refunded revenue.
	if report.Returns != 1 {
		t.Fatalf("expected only the sale return counted, got %d", report.Returns)
	}
	if !report.ReturnsBase.Equal(dec("2100")) {
		t.Fatalf("returns base should be 2100, got %s", report.ReturnsBase)
	}
	if !report.GrossProfit.Equal(dec("250")) {
		t.Fatalf("gross profit should stay 4200-2100-1850=250, got %s", report.GrossProfit)
	}
}

func TestDailyReportEmptyDay(t *testing.T) {
	svc := newTestService()

	report, err := svc.DailyReport(context.Background(), time.Now().UTC().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if report.Sales != 0 || !report.GrossProfit.IsZero() {
		t.Fatalf("empty day should report zeroes, got %+v", report)
	}
}

func TestAuditTrailRecordsActor(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})

	if _, err := svc.SetExchangeRate(ctx, domain.CurrencyUSD, dec("71")); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected an audit log entry")
	}
	if logs[0].Action != "rate_set" || logs[0].ActorUsername != "admin" {
		t.Fatalf("unexpected audit entry %+v", logs[0])
	}
}
