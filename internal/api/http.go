package api

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bher20/cryptotracker/internal/api/swagger"
	"github.com/bher20/cryptotracker/internal/charts"
	"github.com/bher20/cryptotracker/internal/dashboard"
	"github.com/bher20/cryptotracker/internal/export"
	"github.com/bher20/cryptotracker/internal/market"
	"github.com/bher20/cryptotracker/internal/metrics"
	"github.com/bher20/cryptotracker/internal/storage"
	"github.com/bher20/cryptotracker/internal/ui"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Pipeline *dashboard.Pipeline
	// Refresher backs POST /api/v1/refresh; nil disables the endpoint.
	Refresher Refresher
	// Store is pinged by /readyz; nil reports ready.
	Store storage.Storage
	// PerPage is shown in the dashboard heading.
	PerPage int
}

// NewMux constructs the HTTP mux, wiring in the dashboard pipeline, metrics,
// and health endpoints.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", handleReady(d.Store))
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	// Presenter outputs.
	mux.HandleFunc("/export.xlsx", handleExport(d.Pipeline))
	mux.HandleFunc("/charts/market-cap", handleChart(d.Pipeline, "/charts/market-cap", charts.RenderMarketCap))
	mux.HandleFunc("/charts/pct-change", handleChart(d.Pipeline, "/charts/pct-change", charts.RenderPctChange))

	// JSON API.
	RegisterCoinsHandler(mux, d.Pipeline)
	if d.Refresher != nil {
		RegisterRefreshHandler(mux, d.Refresher)
	}

	// API docs
	mux.Handle("/docs/", http.StripPrefix("/docs", swagger.Handler()))

	// Web UI
	mux.Handle("/ui/static/", http.StripPrefix("/ui/static/", ui.StaticHandler()))
	mux.HandleFunc("/ui/", handleDashboard(d.Pipeline, d.PerPage))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	return mux
}

func handleReady(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st != nil {
			if err := st.Ping(r.Context()); err != nil {
				log.Printf("readyz: db ping failed: %v", err)
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// parseParams reads the sort and search query parameters. It writes a 400
// and returns false when the sort key is not recognised.
func parseParams(w http.ResponseWriter, r *http.Request, path string) (dashboard.Params, bool) {
	q := r.URL.Query()
	key, err := market.ParseSortKey(q.Get("sort"))
	if err != nil {
		metrics.RequestErrorsTotal.WithLabelValues(path, "400").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return dashboard.Params{}, false
	}
	return dashboard.Params{Search: q.Get("search"), Sort: key}, true
}

// runPipeline runs p and maps a non-fetch failure to a 500. The returned view
// is nil when a response has already been written.
func runPipeline(w http.ResponseWriter, r *http.Request, p *dashboard.Pipeline, path string) *dashboard.View {
	params, ok := parseParams(w, r, path)
	if !ok {
		return nil
	}
	view, err := p.Run(r.Context(), params)
	if err != nil {
		log.Printf("api: %s: %v", path, err)
		metrics.RequestErrorsTotal.WithLabelValues(path, "500").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	return view
}

func noData(w http.ResponseWriter, path string) {
	metrics.RequestErrorsTotal.WithLabelValues(path, "503").Inc()
	http.Error(w, "No data available. Please try again later.", http.StatusServiceUnavailable)
}

// handleDashboard renders the dashboard page. A failed upstream fetch still
// renders with 200 and the error banners in place of the table.
func handleDashboard(p *dashboard.Pipeline, perPage int) http.HandlerFunc {
	const path = "/ui/"
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		start := time.Now()
		defer metrics.ObserveRequest(path, start)

		view := runPipeline(w, r, p, path)
		if view == nil {
			return
		}

		var buf bytes.Buffer
		if err := ui.RenderDashboard(&buf, view, perPage, time.Now()); err != nil {
			log.Printf("api: render dashboard failed: %v", err)
			metrics.RequestErrorsTotal.WithLabelValues(path, "500").Inc()
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	}
}

// handleExport serves the spreadsheet for the current view as an attachment.
// The workbook written to the export path is the one served; without an
// export path it is built in memory.
func handleExport(p *dashboard.Pipeline) http.HandlerFunc {
	const path = "/export.xlsx"
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer metrics.ObserveRequest(path, start)

		view := runPipeline(w, r, p, path)
		if view == nil {
			return
		}
		if view.FetchFailed {
			noData(w, path)
			return
		}

		var body []byte
		if view.ExportPath != "" {
			b, err := os.ReadFile(view.ExportPath)
			if err != nil {
				log.Printf("api: read export %s failed: %v", view.ExportPath, err)
				metrics.RequestErrorsTotal.WithLabelValues(path, "500").Inc()
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			body = b
		} else {
			var buf bytes.Buffer
			if err := export.WriteXLSX(&buf, view.Coins); err != nil {
				log.Printf("api: build export failed: %v", err)
				metrics.RequestErrorsTotal.WithLabelValues(path, "500").Inc()
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			body = buf.Bytes()
		}

		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", "attachment; filename="+export.DefaultFilename)
		_, _ = w.Write(body)
	}
}

type chartRenderer func(w io.Writer, coins []market.Coin) error

func handleChart(p *dashboard.Pipeline, path string, render chartRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer metrics.ObserveRequest(path, start)

		view := runPipeline(w, r, p, path)
		if view == nil {
			return
		}
		if view.FetchFailed {
			noData(w, path)
			return
		}

		var buf bytes.Buffer
		if err := render(&buf, view.Coins); err != nil {
			log.Printf("api: render %s failed: %v", path, err)
			metrics.RequestErrorsTotal.WithLabelValues(path, "500").Inc()
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	}
}

// isFetchFailure reports whether err came from the upstream call.
func isFetchFailure(err error) bool {
	return errors.Is(err, market.ErrFetchFailed)
}
