package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bher20/cryptotracker/internal/dashboard"
	"github.com/bher20/cryptotracker/internal/export"
	"github.com/bher20/cryptotracker/internal/market"
	"github.com/bher20/cryptotracker/internal/storage"
)

const marketsBody = `[
  {"id":"ripple","symbol":"xrp","name":"XRP","current_price":0.5,"market_cap":200000,"total_volume":10,"price_change_percentage_24h":3.1},
  {"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":65000,"market_cap":1000000,"total_volume":30,"price_change_percentage_24h":-1.2},
  {"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3000,"market_cap":500000,"total_volume":20,"price_change_percentage_24h":0.4}
]`

type testEnv struct {
	mux        *http.ServeMux
	calls      *atomic.Int32
	exportPath string
}

func newTestEnv(t *testing.T, upstreamStatus int) *testEnv {
	t.Helper()
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if upstreamStatus != http.StatusOK {
			http.Error(w, "boom", upstreamStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(marketsBody))
	}))
	t.Cleanup(upstream.Close)

	st := storage.NewMemory()
	svc := market.NewServiceWithStorage(market.Config{}, market.NewClient(upstream.URL, upstream.Client()), st)
	exportPath := filepath.Join(t.TempDir(), export.DefaultFilename)
	mux := NewMux(Deps{
		Pipeline:  dashboard.New(svc, exportPath),
		Refresher: svc,
		Store:     st,
		PerPage:   50,
	})
	return &testEnv{mux: mux, calls: &calls, exportPath: exportPath}
}

func (e *testEnv) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func assertOrder(t *testing.T, body string, names ...string) {
	t.Helper()
	last := -1
	for _, n := range names {
		idx := strings.Index(body, n)
		if idx < 0 {
			t.Fatalf("expected %q in body", n)
		}
		if idx <= last {
			t.Fatalf("expected %q after previous names", n)
		}
		last = idx
	}
}

func TestDashboard_SortedByMarketCap(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodGet, "/ui/?sort=market_cap")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	assertOrder(t, body, "Bitcoin", "Ethereum", "XRP")

	if n := strings.Count(body, `<table class="coins">`); n != 1 {
		t.Errorf("expected table rendered once, got %d", n)
	}
	if !strings.Contains(body, "$1,000,000") {
		t.Errorf("expected formatted market cap in body")
	}
	if !strings.Contains(body, "Data updated! Next update in 5 minutes.") {
		t.Errorf("expected success banner")
	}
	if !strings.Contains(body, "/charts/market-cap?") || !strings.Contains(body, "/charts/pct-change?") {
		t.Errorf("expected both charts embedded")
	}
	if _, err := os.Stat(env.exportPath); err != nil {
		t.Errorf("expected export file written: %v", err)
	}
}

func TestDashboard_Search(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	body := env.do(http.MethodGet, "/ui/?search=et").Body.String()
	if !strings.Contains(body, "Ethereum") {
		t.Fatalf("expected Ethereum in filtered table")
	}
	if strings.Contains(body, "Bitcoin") || strings.Contains(body, "<td>XRP</td>") {
		t.Errorf("expected only Ethereum in filtered table")
	}
	if !strings.Contains(body, `value="et"`) {
		t.Errorf("expected search box to keep its value")
	}
}

func TestDashboard_MemoizedAcrossRenders(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.do(http.MethodGet, "/ui/")
	env.do(http.MethodGet, "/ui/?sort=price")
	env.do(http.MethodGet, "/ui/?search=bit")
	if got := env.calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}

func TestDashboard_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusInternalServerError)

	rec := env.do(http.MethodGet, "/ui/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Error fetching data!") {
		t.Errorf("expected error banner")
	}
	if !strings.Contains(body, "No data available. Please try again later.") {
		t.Errorf("expected no-data banner")
	}
	if strings.Contains(body, "<table") || strings.Contains(body, "/charts/") {
		t.Errorf("expected no table or charts on fetch failure")
	}
	if strings.Contains(body, "Data updated!") {
		t.Errorf("unexpected success banner")
	}
	if _, err := os.Stat(env.exportPath); !os.IsNotExist(err) {
		t.Errorf("expected no export file, stat err=%v", err)
	}
}

func TestDashboard_UnknownSort(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	if rec := env.do(http.MethodGet, "/ui/?sort=volume"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestExport_Download(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodGet, "/export.xlsx?sort=price")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=crypto_data.xlsx" {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Errorf("expected a zip container")
	}
	onDisk, err := os.ReadFile(env.exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(onDisk) != rec.Body.String() {
		t.Errorf("expected download to match the file on disk")
	}
}

func TestExport_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusBadGateway)

	if rec := env.do(http.MethodGet, "/export.xlsx"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestCharts(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodGet, "/charts/market-cap")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Top 10 Cryptos by Market Cap") {
		t.Errorf("expected market cap chart title")
	}

	rec = env.do(http.MethodGet, "/charts/pct-change?search=coin")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "24h Price Change (%)") {
		t.Errorf("expected pct change chart title")
	}
}

func TestCoinsAPI(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodGet, "/api/v1/coins?sort=pct_change_24h")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp CoinsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sort != "pct_change_24h" || resp.Count != 3 {
		t.Fatalf("unexpected response header fields: %+v", resp)
	}
	want := []string{"XRP", "Ethereum", "Bitcoin"}
	for i, c := range resp.Coins {
		if c.Name != want[i] {
			t.Errorf("coin %d: expected %s, got %s", i, want[i], c.Name)
		}
	}

	rec = env.do(http.MethodGet, "/api/v1/coins?search=zzz")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || len(resp.Coins) != 0 {
		t.Errorf("expected empty result, got %+v", resp)
	}

	if rec := env.do(http.MethodPost, "/api/v1/coins"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRefreshAPI(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.do(http.MethodGet, "/ui/")
	rec := env.do(http.MethodPost, "/api/v1/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp RefreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Coins != 3 {
		t.Errorf("unexpected refresh response %+v", resp)
	}
	if got := env.calls.Load(); got != 2 {
		t.Errorf("expected refresh to bypass the cache, got %d upstream calls", got)
	}

	if rec := env.do(http.MethodGet, "/api/v1/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRefreshAPI_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusInternalServerError)

	rec := env.do(http.MethodPost, "/api/v1/refresh")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHealthAndDocs(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	cases := []struct {
		target string
		code   int
		want   string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/readyz", http.StatusOK, "ready"},
		{"/livez", http.StatusOK, "live"},
		{"/docs/", http.StatusOK, "swagger-ui"},
		{"/docs/openapi.yaml", http.StatusOK, "/api/v1/coins"},
		{"/ui/static/style.css", http.StatusOK, "table.coins"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		rec := env.do(http.MethodGet, tc.target)
		if rec.Code != tc.code {
			t.Errorf("%s: expected %d, got %d", tc.target, tc.code, rec.Code)
			continue
		}
		if tc.want != "" && !strings.Contains(rec.Body.String(), tc.want) {
			t.Errorf("%s: expected body to contain %q", tc.target, tc.want)
		}
	}

	rec := env.do(http.MethodGet, "/")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/ui/" {
		t.Errorf("expected redirect to /ui/, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}
