package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/bher20/cryptotracker/internal/market"
	"github.com/bher20/cryptotracker/internal/metrics"
)

// Refresher forces a new market snapshot. *market.Service implements it.
type Refresher interface {
	Refresh(ctx context.Context) (*market.Snapshot, error)
}

// RefreshResponse is the response structure for the refresh endpoint.
type RefreshResponse struct {
	Status    string    `json:"status"`
	Coins     int       `json:"coins"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// RegisterRefreshHandler mounts POST /api/v1/refresh, used by CronJobs and
// manual refreshes.
func RegisterRefreshHandler(mux *http.ServeMux, svc Refresher) {
	const path = "/api/v1/refresh"
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		defer metrics.ObserveRequest(path, start)

		status := http.StatusOK
		var resp RefreshResponse
		snap, err := svc.Refresh(r.Context())
		switch {
		case err == nil:
			resp = RefreshResponse{Status: "ok", Coins: len(snap.Coins), FetchedAt: snap.FetchedAt}
		case isFetchFailure(err):
			log.Printf("api: refresh failed: %v", err)
			status = http.StatusBadGateway
			resp = RefreshResponse{Status: "error", Error: err.Error()}
		default:
			log.Printf("api: refresh failed: %v", err)
			status = http.StatusInternalServerError
			resp = RefreshResponse{Status: "error", Error: "internal error"}
		}
		if status != http.StatusOK {
			metrics.RequestErrorsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	})
}
