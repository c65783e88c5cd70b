// Package charts renders the dashboard's market charts as standalone HTML
// pages.
package charts

import (
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/bher20/cryptotracker/internal/market"
)

// TopN is how many leading rows the market-cap chart shows.
const TopN = 10

const (
	MarketCapTitle = "Top 10 Cryptos by Market Cap"
	PctChangeTitle = "24h Price Change (%)"
)

func initOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle:       title,
		Width:           "100%",
		Height:          "420px",
		BackgroundColor: "#1e1e1e",
	})
}

func xAxisOpts() charts.GlobalOpts {
	return charts.WithXAxisOpts(opts.XAxis{
		AxisLabel: &opts.AxisLabel{Rotate: 45, Interval: "0"},
	})
}

// MarketCapBar builds a bar chart of name against market cap for the first
// TopN coins in their current order. Bars are colored by value.
func MarketCapBar(coins []market.Coin) *charts.Bar {
	if len(coins) > TopN {
		coins = coins[:TopN]
	}

	names := make([]string, 0, len(coins))
	data := make([]opts.BarData, 0, len(coins))
	maxCap := 0.0
	for _, c := range coins {
		names = append(names, c.Name)
		data = append(data, opts.BarData{Name: c.Name, Value: chartValue(c.MarketCap)})
		if !math.IsNaN(c.MarketCap) && c.MarketCap > maxCap {
			maxCap = c.MarketCap
		}
	}
	if maxCap == 0 {
		maxCap = 1
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(MarketCapTitle),
		charts.WithTitleOpts(opts.Title{
			Title:      MarketCapTitle,
			TitleStyle: &opts.TextStyle{Color: "#ffffff"},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCap),
			InRange:    &opts.VisualMapInRange{Color: []string{"#0d0887", "#cc4778", "#f0f921"}},
		}),
		xAxisOpts(),
	)
	bar.SetXAxis(names).AddSeries("Market Cap", data)
	return bar
}

// PctChangeLine builds a line chart with markers of name against 24h percent
// change for every coin.
func PctChangeLine(coins []market.Coin) *charts.Line {
	names := make([]string, 0, len(coins))
	data := make([]opts.LineData, 0, len(coins))
	for _, c := range coins {
		names = append(names, c.Name)
		data = append(data, opts.LineData{Name: c.Name, Value: chartValue(c.PctChange24h)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		initOpts(PctChangeTitle),
		charts.WithTitleOpts(opts.Title{
			Title:      PctChangeTitle,
			TitleStyle: &opts.TextStyle{Color: "#ffffff"},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		xAxisOpts(),
	)
	line.SetXAxis(names).AddSeries("24h % Change", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
	)
	return line
}

// chartValue maps NaN to nil so the point is drawn as a gap; NaN cannot be
// encoded in the chart's JSON options.
func chartValue(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// RenderMarketCap writes the market-cap bar chart page to w.
func RenderMarketCap(w io.Writer, coins []market.Coin) error {
	return MarketCapBar(coins).Render(w)
}

// RenderPctChange writes the percent-change line chart page to w.
func RenderPctChange(w io.Writer, coins []market.Coin) error {
	return PctChangeLine(coins).Render(w)
}
