package currency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"mizanpos/backend/internal/domain"
)

// Method selects how a transactional amount maps onto the base currency.
type Method string

const (
	// MethodMultiply: base = amount × rate (e.g. USD at 70 AFN per USD).
	MethodMultiply Method = "multiply"
	// MethodDivide: base = amount ÷ rate (e.g. IRT quoted per one AFN).
	MethodDivide Method = "divide"
)

// Config maps each non-base currency to its conversion method. The base
// currency converts as identity and needs no entry.
type Config struct {
	Base    string
	Methods map[string]Method
}

// NewDefault returns the store's currency setup: AFN base, USD quoted as
// AFN per USD, IRT quoted as IRT per AFN.
func NewDefault() Config {
	return Config{
		Base: domain.BaseCurrency,
		Methods: map[string]Method{
			domain.CurrencyUSD: MethodMultiply,
			domain.CurrencyIRT: MethodDivide,
		},
	}
}

// Supported reports whether code is the base currency or has a configured
// conversion method.
func (c Config) Supported(code string) bool {
	if code == c.Base {
		return true
	}
	_, ok := c.Methods[code]
	return ok
}

// ValidateRate rejects non-positive rates before any conversion runs.
// The base currency ignores the rate entirely.
func (c Config) ValidateRate(code string, rate decimal.Decimal) error {
	if code == c.Base {
		return nil
	}
	if !c.Supported(code) {
		return fmt.Errorf("currency %s is not configured", code)
	}
	if rate.Sign() <= 0 {
		return fmt.Errorf("exchange rate for %s must be positive, got %s", code, rate)
	}
	return nil
}

// divisionPrecision is the scale kept on divide-direction conversions.
// Quotients like 1/3 have no finite decimal form, so these conversions
// carry rounding error below 10^-24; multiply-direction conversions are
// exact.
const divisionPrecision = 24

// ToBase converts a transactional amount into the base currency. Callers
// round for display only.
func (c Config) ToBase(amount decimal.Decimal, code string, rate decimal.Decimal) decimal.Decimal {
	if code == c.Base {
		return amount
	}
	switch c.Methods[code] {
	case MethodMultiply:
		return amount.Mul(rate)
	case MethodDivide:
		return amount.DivRound(rate, divisionPrecision)
	}
	return amount
}

// ToTransactional converts a base-currency amount into the transactional
// currency. It inverts ToBase: exactly in the multiplying direction, to
// within divisionPrecision in the dividing one.
func (c Config) ToTransactional(base decimal.Decimal, code string, rate decimal.Decimal) decimal.Decimal {
	if code == c.Base {
		return base
	}
	switch c.Methods[code] {
	case MethodMultiply:
		return base.DivRound(rate, divisionPrecision)
	case MethodDivide:
		return base.Mul(rate)
	}
	return base
}
