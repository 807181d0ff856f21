package market

import (
	"fmt"
	"math/big"
	"strings"
)

// PriceDecimals is the scaling between the ledger's smallest currency unit
// and the human-entered decimal amount.
const PriceDecimals = 18

var priceUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil)

// ParsePrice converts a human-entered decimal amount into the ledger's
// smallest unit. Non-numeric input, zero or negative amounts, and amounts
// finer than the smallest unit are rejected.
func ParsePrice(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("failed to parse %q as a decimal number", s)
	}
	r.Mul(r, new(big.Rat).SetInt(priceUnit))
	if !r.IsInt() {
		return nil, fmt.Errorf("price %q has more than %d decimal places", s, PriceDecimals)
	}
	if r.Num().Sign() <= 0 {
		return nil, fmt.Errorf("price must be greater than zero, got %q", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatPrice renders a smallest-unit amount back as a decimal string.
// It is the inverse of ParsePrice.
func FormatPrice(v *big.Int) string {
	r := new(big.Rat).SetFrac(v, priceUnit)
	s := strings.TrimRight(r.FloatString(PriceDecimals), "0")
	return strings.TrimSuffix(s, ".")
}
