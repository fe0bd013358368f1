package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mizanpos/backend/internal/domain"
	"mizanpos/backend/internal/store"
)

func rateCacheKey(code string) string {
	return "rate:" + code
}

// GetExchangeRate returns the most recently posted rate for a currency,
// read through the cache. The base currency always reports 1.
func (s *Service) GetExchangeRate(ctx context.Context, code string) (domain.ExchangeRate, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !s.currencies.Supported(code) {
		return domain.ExchangeRate{}, fmt.Errorf("%w: unsupported currency %s", store.ErrValidation, code)
	}
	if code == domain.BaseCurrency {
		return domain.ExchangeRate{Currency: code, Rate: decimal.NewFromInt(1)}, nil
	}

	var cached domain.ExchangeRate
	if hit, err := s.cache.GetJSON(ctx, rateCacheKey(code), &cached); err == nil && hit {
		return cached, nil
	}

	rate, err := s.repo.GetLatestRate(ctx, code)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	if err := s.cache.SetJSON(ctx, rateCacheKey(code), rate, s.rateTTL); err != nil {
		s.log.WithError(err).Warn("rate cache write failed")
	}
	return *rate, nil
}

// SetExchangeRate records a new rate quote and invalidates the cached one.
func (s *Service) SetExchangeRate(ctx context.Context, code string, rate decimal.Decimal) (domain.ExchangeRate, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == domain.BaseCurrency {
		return domain.ExchangeRate{}, fmt.Errorf("%w: cannot set a rate for the base currency", store.ErrValidation)
	}
	if err := s.checkRate(code, rate); err != nil {
		return domain.ExchangeRate{}, err
	}

	record := domain.ExchangeRate{Currency: code, Rate: rate, CreatedAt: time.Now().UTC()}
	if err := s.repo.PutRate(ctx, record); err != nil {
		return domain.ExchangeRate{}, err
	}
	if err := s.cache.Delete(ctx, rateCacheKey(code)); err != nil {
		s.log.WithError(err).Warn("rate cache invalidation failed")
	}

	s.logAudit(ctx, "rate_set", "exchange_rate", code, rate.String())
	return record, nil
}

// DailyReport aggregates the day's invoices into sales, return and purchase
// totals in base currency, plus a per-currency sales breakdown. Results are
// cached briefly; the report for a past day never changes.
func (s *Service) DailyReport(ctx context.Context, day time.Time) (domain.DailyReport, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	key := "report:daily:" + day.Format("2006-01-02")

	var cached domain.DailyReport
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	invoices, err := s.repo.ListInvoicesBetween(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		return domain.DailyReport{}, err
	}

	report := domain.DailyReport{Date: day.Format("2006-01-02")}
	byCurrency := make(map[string]*domain.DailyReportCurrency)

	for _, inv := range invoices {
		switch inv.Type {
		case domain.InvoiceSale:
			report.Sales++
			report.SalesBase = report.SalesBase.Add(inv.TotalBase)
			for _, l := range inv.Lines {
				report.CostBase = report.CostBase.Add(l.CostBase)
			}
			c, ok := byCurrency[inv.Currency]
			if !ok {
				c = &domain.DailyReportCurrency{Currency: inv.Currency}
				byCurrency[inv.Currency] = c
			}
			c.Invoices++
			c.SalesTotal = c.SalesTotal.Add(inv.Total)
		case domain.InvoiceReturn:
			// Purchase returns (original invoice P...) hand goods back to a
			// supplier; they are not refunded sales and must not touch the
			// profit figures.
			if !strings.HasPrefix(inv.OriginalInvoiceID, "F") {
				continue
			}
			report.Returns++
			report.ReturnsBase = report.ReturnsBase.Add(inv.TotalBase)
			for _, l := range inv.Lines {
				report.CostBase = report.CostBase.Sub(l.CostBase)
			}
		case domain.InvoicePurchase:
			report.Purchases++
		}
	}

	report.GrossProfit = report.SalesBase.Sub(report.ReturnsBase).Sub(report.CostBase)
	for _, c := range byCurrency {
		report.ByCurrency = append(report.ByCurrency, *c)
	}
	sort.Slice(report.ByCurrency, func(i, j int) bool {
		return report.ByCurrency[i].Currency < report.ByCurrency[j].Currency
	})

	if err := s.cache.SetJSON(ctx, key, report, s.reportTTL); err != nil {
		s.log.WithError(err).Warn("report cache write failed")
	}
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username required", store.ErrValidation)
	}
	return s.repo.GetUser(ctx, username)
}
