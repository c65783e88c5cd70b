package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// SortKey selects the column the table is ordered by.
type SortKey string

const (
	SortMarketCap    SortKey = "Market Cap"
	SortPctChange24h SortKey = "24h % Change"
	SortPrice        SortKey = "Price (USD)"
)

// SortKeys lists the selectable keys in display order.
var SortKeys = []SortKey{SortMarketCap, SortPctChange24h, SortPrice}

var ErrUnknownSortKey = errors.New("unknown sort key")

// Slug is the URL-friendly form of the key.
func (k SortKey) Slug() string {
	switch k {
	case SortPctChange24h:
		return "pct_change_24h"
	case SortPrice:
		return "price"
	default:
		return "market_cap"
	}
}

func (k SortKey) value(c Coin) float64 {
	switch k {
	case SortPctChange24h:
		return c.PctChange24h
	case SortPrice:
		return c.PriceUSD
	default:
		return c.MarketCap
	}
}

// ParseSortKey accepts a display label or a slug. An empty string selects
// SortMarketCap.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SortMarketCap, nil
	}
	for _, k := range SortKeys {
		if strings.EqualFold(s, string(k)) || strings.EqualFold(s, k.Slug()) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSortKey, s)
}

// Transform filters coins by a case-insensitive name substring and orders the
// result descending by key. Equal values keep their input order and NaN values
// go last. The input slice is left untouched.
func Transform(coins []Coin, search string, key SortKey) []Coin {
	out := make([]Coin, 0, len(coins))
	needle := strings.ToLower(search)
	for _, c := range coins {
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := key.value(out[i]), key.value(out[j])
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		if math.IsNaN(a) {
			return false
		}
		return a > b
	})
	return out
}
