package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rounding turns an exact amount into a currency amount.
type Rounding func(decimal.Decimal) decimal.Decimal

const (
	RoundingHalfUp  = "half_up"
	RoundingBankers = "bankers"
)

// RoundHalfUp rounds halves away from zero.
func RoundHalfUp(places int32) Rounding {
	return func(d decimal.Decimal) decimal.Decimal { return d.Round(places) }
}

// RoundBankers rounds halves to the nearest even digit.
func RoundBankers(places int32) Rounding {
	return func(d decimal.Decimal) decimal.Decimal { return d.RoundBank(places) }
}

func RoundingByName(name string, places int32) (Rounding, error) {
	switch name {
	case RoundingHalfUp, "":
		return RoundHalfUp(places), nil
	case RoundingBankers:
		return RoundBankers(places), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown rounding mode %q", name)
}
