package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/bher20/cryptotracker/internal/dashboard"
	"github.com/bher20/cryptotracker/internal/market"
	"github.com/bher20/cryptotracker/internal/metrics"
)

// CoinsResponse is the body of GET /api/v1/coins.
type CoinsResponse struct {
	Sort        string        `json:"sort"`
	Search      string        `json:"search,omitempty"`
	FetchedAt   time.Time     `json:"fetched_at"`
	NextRefresh time.Time     `json:"next_refresh"`
	Count       int           `json:"count"`
	Coins       []market.Coin `json:"coins"`
}

func RegisterCoinsHandler(mux *http.ServeMux, p *dashboard.Pipeline) {
	const path = "/api/v1/coins"
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
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

		coins := view.Coins
		if coins == nil {
			coins = []market.Coin{}
		}
		resp := CoinsResponse{
			Sort:        view.Params.Sort.Slug(),
			Search:      view.Params.Search,
			FetchedAt:   view.FetchedAt,
			NextRefresh: view.NextRefresh,
			Count:       len(coins),
			Coins:       coins,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("api: encode coins response failed: %v", err)
		}
	})
}
