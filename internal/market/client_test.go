package market

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

const marketsJSON = `[
  {"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":65000.12,"market_cap":1000000,"total_volume":300,"price_change_percentage_24h":1.5,"ath":69000},
  {"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3000,"market_cap":500000,"total_volume":200,"price_change_percentage_24h":null}
]`

func TestFetchMarkets_SendsQueryAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		want := map[string]string{
			"vs_currency": "usd",
			"order":       "market_cap_desc",
			"per_page":    "50",
			"page":        "1",
			"sparkline":   "false",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(marketsJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	coins, err := c.FetchMarkets(context.Background(), DefaultQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(coins) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(coins))
	}
	btc := coins[0]
	if btc.Name != "Bitcoin" || btc.Symbol != "btc" || btc.PriceUSD != 65000.12 || btc.MarketCap != 1000000 || btc.Volume24h != 300 || btc.PctChange24h != 1.5 {
		t.Fatalf("unexpected first coin: %+v", btc)
	}
	if !math.IsNaN(coins[1].PctChange24h) {
		t.Fatalf("expected NaN for null change, got %v", coins[1].PctChange24h)
	}
}

func TestFetchMarkets_Non200IsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).FetchMarkets(context.Background(), DefaultQuery())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFetchMarkets_TransportErrorIsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil).FetchMarkets(context.Background(), DefaultQuery())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFetchMarkets_MalformedJSONIsNotFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"not an array"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).FetchMarkets(context.Background(), DefaultQuery())
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if errors.Is(err, ErrFetchFailed) {
		t.Fatalf("decode error must not be reported as fetch failure: %v", err)
	}
}

func TestCoinJSON_NaNBecomesNull(t *testing.T) {
	c := Coin{Name: "X", Symbol: "x", PriceUSD: 1, MarketCap: 2, Volume24h: 3, PctChange24h: math.NaN()}
	b, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"name":"X","symbol":"x","current_price":1,"market_cap":2,"total_volume":3,"price_change_percentage_24h":null}`
	if string(b) != want {
		t.Fatalf("got %s\nwant %s", b, want)
	}
}
