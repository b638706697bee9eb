package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 currencies whose minor unit is not 1/100.
var currencyExponents = map[string]int32{
	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"KWD": 3,
	"LYD": 3,
	"OMR": 3,
	"TND": 3,
	"JPY": 0,
	"KRW": 0,
}

func minorUnitExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts a provider decimal amount to integer minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(minorUnitExponent(currency)).Round(0).IntPart()
}

func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -minorUnitExponent(currency))
}

// jsonAmount encodes a decimal as a bare JSON number; providers reject quoted amounts.
type jsonAmount struct {
	decimal.Decimal
}

func (a jsonAmount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// FormatMinorUnits renders an amount with the currency's fixed number of decimals.
func FormatMinorUnits(amount int64, currency string) string {
	return FromMinorUnits(amount, currency).StringFixed(minorUnitExponent(currency))
}
