package market

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Coin is one coin's market attributes at fetch time. Only the six display
// fields survive decoding; every other field of the upstream payload is dropped.
// Missing numbers are NaN.
type Coin struct {
	Name         string
	Symbol       string
	PriceUSD     float64
	MarketCap    float64
	Volume24h    float64
	PctChange24h float64
}

// coinJSON is the wire shape used both by the upstream markets endpoint and by
// stored snapshots. Numbers are pointers because the API reports unknown
// values as null.
type coinJSON struct {
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	PriceUSD     *float64 `json:"current_price"`
	MarketCap    *float64 `json:"market_cap"`
	Volume24h    *float64 `json:"total_volume"`
	PctChange24h *float64 `json:"price_change_percentage_24h"`
}

func (c Coin) MarshalJSON() ([]byte, error) {
	return json.Marshal(coinJSON{
		Name:         c.Name,
		Symbol:       c.Symbol,
		PriceUSD:     nullable(c.PriceUSD),
		MarketCap:    nullable(c.MarketCap),
		Volume24h:    nullable(c.Volume24h),
		PctChange24h: nullable(c.PctChange24h),
	})
}

func (c *Coin) UnmarshalJSON(b []byte) error {
	var raw coinJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Coin{
		Name:         raw.Name,
		Symbol:       raw.Symbol,
		PriceUSD:     orNaN(raw.PriceUSD),
		MarketCap:    orNaN(raw.MarketCap),
		Volume24h:    orNaN(raw.Volume24h),
		PctChange24h: orNaN(raw.PctChange24h),
	}
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Query holds the parameters sent to the markets endpoint.
type Query struct {
	VsCurrency string `json:"vs_currency" yaml:"vs_currency"`
	Order      string `json:"order" yaml:"order"`
	PerPage    int    `json:"per_page" yaml:"per_page"`
	Page       int    `json:"page" yaml:"page"`
	Sparkline  bool   `json:"sparkline" yaml:"sparkline"`
}

// DefaultQuery selects the top 50 coins by market cap priced in USD.
func DefaultQuery() Query {
	return Query{
		VsCurrency: "usd",
		Order:      "market_cap_desc",
		PerPage:    50,
		Page:       1,
		Sparkline:  false,
	}
}

// Key identifies the query in caches and storage. Every parameter takes part
// so that two different queries never share an entry.
func (q Query) Key() string {
	return fmt.Sprintf("markets:%s:%s:%d:%d:%t", q.VsCurrency, q.Order, q.PerPage, q.Page, q.Sparkline)
}

// Snapshot is the immutable result of one successful fetch. Pipeline stages
// read it and build new slices; they never modify Coins in place.
type Snapshot struct {
	Query     Query     `json:"query"`
	Coins     []Coin    `json:"coins"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Age reports how long ago the snapshot was fetched relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
