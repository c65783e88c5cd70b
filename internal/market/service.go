package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bher20/cryptotracker/internal/metrics"
	"github.com/bher20/cryptotracker/internal/storage"
)

// Fetcher retrieves coins for a query. *Client implements it.
type Fetcher interface {
	FetchMarkets(ctx context.Context, q Query) ([]Coin, error)
}

// Config controls how the market service behaves.
type Config struct {
	// Query is sent on every upstream fetch.
	Query Query
	// TTL is the memoization window; zero selects DefaultTTL.
	TTL time.Duration
}

// Service coordinates fetching and caching of market snapshots.
type Service struct {
	cfg     Config
	fetcher Fetcher
	store   storage.Storage // may be nil for memory-only caching
	cache   *Cache
	now     func() time.Time
}

// NewService returns a Service that caches in memory only.
func NewService(cfg Config, f Fetcher) *Service {
	return NewServiceWithStorage(cfg, f, nil)
}

// NewServiceWithStorage returns a Service that also persists the latest
// snapshot, so a restart inside the TTL window does not refetch.
func NewServiceWithStorage(cfg Config, f Fetcher, st storage.Storage) *Service {
	if cfg.Query == (Query{}) {
		cfg.Query = DefaultQuery()
	}
	cache := NewCache(cfg.TTL)
	cfg.TTL = cache.TTL()
	return &Service{
		cfg:     cfg,
		fetcher: f,
		store:   st,
		cache:   cache,
		now:     time.Now,
	}
}

// WithClock replaces the time source; tests use it to step through the TTL.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.cache.now = now
	return s
}

// Query returns the upstream query this service issues.
func (s *Service) Query() Query { return s.cfg.Query }

// TTL returns the memoization window.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Snapshot returns the current market snapshot. It consults the memo cache,
// then persistent storage, and only then calls upstream; a fetched result is
// written back to storage on a best-effort basis.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	key := s.cfg.Query.Key()
	snap, hit, err := s.cache.Load(key, func() (*Snapshot, error) {
		metrics.CacheLookupsTotal.WithLabelValues("memory", "miss").Inc()
		if snap := s.loadStored(ctx, key); snap != nil {
			return snap, nil
		}
		return s.fetch(ctx)
	})
	if hit {
		metrics.CacheLookupsTotal.WithLabelValues("memory", "hit").Inc()
	}
	return snap, err
}

// Refresh fetches upstream regardless of the cache and replaces the cached
// snapshot on success. On failure the previous snapshot stays in place.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Put(s.cfg.Query.Key(), snap)
	return snap, nil
}

// NextRefresh reports when the cached snapshot expires. It returns the zero
// time when nothing is cached.
func (s *Service) NextRefresh() time.Time {
	return s.cache.Expires(s.cfg.Query.Key())
}

func (s *Service) fetch(ctx context.Context) (*Snapshot, error) {
	coins, err := s.fetcher.FetchMarkets(ctx, s.cfg.Query)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Query:     s.cfg.Query,
		Coins:     coins,
		FetchedAt: s.now(),
	}
	log.Printf("market: fetched %d coins (query=%s)", len(coins), s.cfg.Query.Key())

	// Best-effort write-back to storage.
	if s.store != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := s.store.SaveMarketSnapshot(ctx, storage.MarketSnapshot{
				Key:       s.cfg.Query.Key(),
				Payload:   payload,
				FetchedAt: snap.FetchedAt,
			}); err != nil {
				log.Printf("market: save snapshot failed: %v", err)
			}
		}
	}
	return snap, nil
}

// loadStored returns the stored snapshot for key when it is still inside the
// TTL window. Any storage or decode problem is treated as a miss.
func (s *Service) loadStored(ctx context.Context, key string) *Snapshot {
	if s.store == nil {
		return nil
	}
	rec, err := s.store.GetMarketSnapshot(ctx, key)
	if err != nil {
		log.Printf("market: read stored snapshot failed: %v", err)
		return nil
	}
	if rec == nil || len(rec.Payload) == 0 {
		metrics.CacheLookupsTotal.WithLabelValues("storage", "miss").Inc()
		return nil
	}
	if s.now().Sub(rec.FetchedAt) >= s.cfg.TTL {
		metrics.CacheLookupsTotal.WithLabelValues("storage", "stale").Inc()
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Payload, &snap); err != nil {
		log.Printf("market: %v", fmt.Errorf("decode stored snapshot %s: %w", key, err))
		return nil
	}
	snap.FetchedAt = rec.FetchedAt
	metrics.CacheLookupsTotal.WithLabelValues("storage", "hit").Inc()
	return &snap
}
