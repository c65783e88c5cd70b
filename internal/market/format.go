package market

import (
	"math"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const missing = "n/a"

// FormatPrice renders a price with two decimals, e.g. "$1234.50".
func FormatPrice(v float64) string {
	if math.IsNaN(v) {
		return missing
	}
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// FormatUSD renders a whole-dollar amount with thousands separators, e.g.
// "$1,234,567".
func FormatUSD(v float64) string {
	if math.IsNaN(v) {
		return missing
	}
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.", -v)
	}
	return "$" + humanize.FormatFloat("#,###.", v)
}

// FormatPercent renders a percentage with two decimals, e.g. "-1.25%".
func FormatPercent(v float64) string {
	if math.IsNaN(v) {
		return missing
	}
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

// Row is a coin with every field formatted for display.
type Row struct {
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	PriceUSD     string `json:"price_usd"`
	MarketCap    string `json:"market_cap"`
	Volume24h    string `json:"volume_24h"`
	PctChange24h string `json:"pct_change_24h"`
	// Negative is set when the 24h change is below zero.
	Negative bool `json:"-"`
}

// FormatRow formats c for the dashboard table.
func FormatRow(c Coin) Row {
	return Row{
		Name:         c.Name,
		Symbol:       c.Symbol,
		PriceUSD:     FormatPrice(c.PriceUSD),
		MarketCap:    FormatUSD(c.MarketCap),
		Volume24h:    FormatUSD(c.Volume24h),
		PctChange24h: FormatPercent(c.PctChange24h),
		Negative:     c.PctChange24h < 0,
	}
}
