// Package currency centralizes exchange-rate arithmetic for the books.
// Every conversion in the system goes through a Converter so the rate
// fallback and rounding rules live in exactly one place.
package currency

import (
	"fmt"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/marketbooks/internal/errs"
)

const (
	// Scale is the stored precision of monetary amounts.
	Scale = 2
	// RateScale is the stored precision of exchange rates.
	RateScale = 4
)

// Converter expresses values across an original currency, a container
// currency and a market's base currency. All math is fixed-point decimal. A
// rate is always "units of base currency per one unit of the foreign
// currency".
type Converter struct {
	Base string
}

// New returns a converter for a market's base currency.
func New(base string) Converter { return Converter{Base: base} }

// ToBase converts amount into base currency using rate. A zero or negative
// rate is a hard validation error: silently treating the value as already in
// base currency would misprice cross-currency entries.
func (c Converter) ToBase(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPos() {
		return decimal.MustNew(0, 0), fmt.Errorf("%w: rate must be positive, got %s", errs.ErrExchangeRate, rate)
	}
	return amount.Mul(rate)
}

// ToBaseDefaulting converts amount into base currency, treating an unset or
// zero rate as 1. Only historical batch data uses this: batches denominated
// in base currency were stored with a zero rate by older imports.
func (c Converter) ToBaseDefaulting(amount, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPos() {
		return amount
	}
	if v, err := amount.Mul(rate); err == nil {
		return v
	}
	return amount
}

// IntoContainer expresses an expense in the container's currency. Same
// currency passes through unchanged; otherwise the expense goes to base
// currency first (defaulting its own rate to 1) and is divided by the
// container rate.
func (c Converter) IntoContainer(amount decimal.Decimal, cur string, rate decimal.Decimal, containerCur string, containerRate decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.MustNew(0, 0), nil
	}
	if cur == containerCur {
		return amount, nil
	}
	base := c.ToBaseDefaulting(amount, rate)
	if !containerRate.IsPos() {
		return decimal.MustNew(0, 0), fmt.Errorf("%w: container rate must be positive, got %s", errs.ErrExchangeRate, containerRate)
	}
	return base.Quo(containerRate)
}

// RateOrOne normalizes a possibly-unset rate to 1.
func RateOrOne(rate decimal.Decimal) decimal.Decimal {
	if rate.IsPos() {
		return rate
	}
	return decimal.MustNew(1, 0)
}

// RoundAmount rounds to the stored amount precision.
func RoundAmount(d decimal.Decimal) decimal.Decimal { return d.Round(Scale) }

// ParseCode validates an ISO 4217 currency code.
func ParseCode(code string) (money.Currency, error) {
	curr, err := money.ParseCurr(code)
	if err != nil {
		return money.Currency(0), fmt.Errorf("%w: unknown currency %q", errs.ErrInvalid, code)
	}
	return curr, nil
}

// AmountOf tags a decimal value with its currency for API surfaces.
func AmountOf(code string, d decimal.Decimal) (money.Amount, error) {
	curr, err := ParseCode(code)
	if err != nil {
		return money.Amount{}, err
	}
	return money.NewAmountFromDecimal(curr, d.Round(Scale))
}
