package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"lendcore/core/types"
)

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s", raw)
	}
	return price, nil
}

// StaticPrices decodes the static quote table.
func (p PriceConfig) StaticPrices() (map[types.ExtendedSymbol]decimal.Decimal, error) {
	out := make(map[types.ExtendedSymbol]decimal.Decimal, len(p.Static))
	for key, raw := range p.Static {
		token, err := types.ParseExtendedSymbol(key)
		if err != nil {
			return nil, err
		}
		price, err := parsePrice(raw)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", key, err)
		}
		out[token] = price
	}
	return out, nil
}
