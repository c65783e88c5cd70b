// Package export writes the market table to a spreadsheet.
package export

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/bher20/cryptotracker/internal/market"
	"github.com/bher20/cryptotracker/internal/metrics"
)

const (
	// DefaultFilename is the fixed name of the exported workbook.
	DefaultFilename = "crypto_data.xlsx"
	// ContentType is the MIME type of an .xlsx workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName = "Sheet1"
)

// Columns is the header row, in order.
var Columns = []string{"Name", "Symbol", "Price (USD)", "Market Cap", "24h Volume", "24h % Change"}

// Number formats for columns C..F. Cells keep raw numbers; these only change
// how a spreadsheet application displays them.
var numFmts = map[string]string{
	"C": `"$"0.00`,
	"D": `"$"#,##0`,
	"E": `"$"#,##0`,
	"F": `0.00"%"`,
}

// Build returns a workbook holding coins. The caller must Close it.
func Build(coins []market.Coin) (*excelize.File, error) {
	f := excelize.NewFile()

	for col, fmtCode := range numFmts {
		code := fmtCode
		style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &code})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("number format %s: %w", col, err)
		}
		if err := f.SetColStyle(sheetName, col, style); err != nil {
			f.Close()
			return nil, fmt.Errorf("column style %s: %w", col, err)
		}
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", "F1", headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	for i, c := range coins {
		row := []interface{}{
			c.Name,
			c.Symbol,
			cellNumber(c.PriceUSD),
			cellNumber(c.MarketCap),
			cellNumber(c.Volume24h),
			cellNumber(c.PctChange24h),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "F", 18); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// cellNumber leaves NaN cells empty.
func cellNumber(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// WriteXLSX encodes coins as an .xlsx workbook to w.
func WriteXLSX(w io.Writer, coins []market.Coin) error {
	f, err := Build(coins)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	return nil
}

// SaveXLSX overwrites the workbook at path with coins. The file is replaced by
// rename, so readers never observe a partially written workbook.
func SaveXLSX(path string, coins []market.Coin) error {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, coins); err != nil {
		metrics.ExportWritesTotal.WithLabelValues("error").Inc()
		return err
	}
	if err := writeFileAtomically(path, &buf); err != nil {
		metrics.ExportWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write %s: %w", path, err)
	}
	metrics.ExportWritesTotal.WithLabelValues("ok").Inc()
	return nil
}
