// Package dashboard runs the fetch, transform and export stages behind every
// page render.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/bher20/cryptotracker/internal/export"
	"github.com/bher20/cryptotracker/internal/market"
)

// SnapshotSource supplies the current market snapshot. *market.Service
// implements it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*market.Snapshot, error)
	NextRefresh() time.Time
}

// Params are the user's inputs for one render.
type Params struct {
	Search string
	Sort   market.SortKey
}

// View is everything a page render needs. It is built fresh per run.
type View struct {
	Params Params

	// FetchFailed is set when upstream data could not be retrieved; no other
	// field except Params is populated then.
	FetchFailed bool

	Coins       []market.Coin
	Rows        []market.Row
	FetchedAt   time.Time
	NextRefresh time.Time
	ExportPath  string
}

// MinutesUntilRefresh rounds the time left before the next refresh up to
// whole minutes.
func (v *View) MinutesUntilRefresh(now time.Time) int {
	if v.NextRefresh.IsZero() {
		return 0
	}
	left := v.NextRefresh.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}

// Pipeline wires a snapshot source to the transform and export stages.
type Pipeline struct {
	src        SnapshotSource
	exportPath string
}

// New returns a Pipeline. An empty exportPath disables the spreadsheet write.
func New(src SnapshotSource, exportPath string) *Pipeline {
	return &Pipeline{src: src, exportPath: exportPath}
}

// ExportPath returns the workbook path written on each run.
func (p *Pipeline) ExportPath() string { return p.exportPath }

// Run fetches (or reuses) the snapshot, filters and sorts it, and overwrites
// the export file. A fetch failure yields a View with FetchFailed set and a
// nil error; every other failure is returned.
func (p *Pipeline) Run(ctx context.Context, params Params) (*View, error) {
	if params.Sort == "" {
		params.Sort = market.SortMarketCap
	}
	view := &View{Params: params}

	snap, err := p.src.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, market.ErrFetchFailed) {
			log.Printf("dashboard: %v", err)
			view.FetchFailed = true
			return view, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	view.Coins = market.Transform(snap.Coins, params.Search, params.Sort)
	view.Rows = make([]market.Row, len(view.Coins))
	for i, c := range view.Coins {
		view.Rows[i] = market.FormatRow(c)
	}
	view.FetchedAt = snap.FetchedAt
	view.NextRefresh = p.src.NextRefresh()

	if p.exportPath != "" {
		if err := export.SaveXLSX(p.exportPath, view.Coins); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		view.ExportPath = p.exportPath
	}
	return view, nil
}
