package market

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bher20/cryptotracker/internal/storage"
)

type countingFetcher struct {
	calls atomic.Int32
	coins []Coin
	err   error
	delay time.Duration
}

func (f *countingFetcher) FetchMarkets(ctx context.Context, q Query) ([]Coin, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]Coin(nil), f.coins...), nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestSnapshot_CachedWithinTTL(t *testing.T) {
	f := &countingFetcher{coins: scenarioCoins()}
	clock := newClock()
	svc := NewService(Config{}, f).WithClock(clock.Now)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(299 * time.Second)
	second, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", f.calls.Load())
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected equal snapshots")
	}

	clock.Advance(time.Second)
	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls.Load() != 2 {
		t.Fatalf("expected refetch after TTL, got %d calls", f.calls.Load())
	}
}

func TestSnapshot_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := &countingFetcher{coins: scenarioCoins(), delay: 50 * time.Millisecond}
	svc := NewService(Config{}, f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Snapshot(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", f.calls.Load())
	}
}

func TestSnapshot_FailureIsNotCached(t *testing.T) {
	f := &countingFetcher{err: ErrFetchFailed}
	svc := NewService(Config{}, f)
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	f.err = nil
	f.coins = scenarioCoins()
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if len(snap.Coins) != 3 || f.calls.Load() != 2 {
		t.Fatalf("expected a fresh fetch after failure; coins=%d calls=%d", len(snap.Coins), f.calls.Load())
	}
}

func TestSnapshot_RestoresFromStorageWithinTTL(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	clock := newClock()

	stored := Snapshot{Query: DefaultQuery(), Coins: scenarioCoins(), FetchedAt: clock.Now().Add(-time.Minute)}
	payload, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := st.SaveMarketSnapshot(ctx, storage.MarketSnapshot{
		Key: DefaultQuery().Key(), Payload: payload, FetchedAt: stored.FetchedAt,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	f := &countingFetcher{coins: []Coin{{Name: "Fresh"}}}
	svc := NewServiceWithStorage(Config{}, f, st).WithClock(clock.Now)

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls.Load() != 0 {
		t.Fatalf("expected stored snapshot to be used, got %d upstream calls", f.calls.Load())
	}
	if len(snap.Coins) != 3 {
		t.Fatalf("expected stored coins, got %+v", snap.Coins)
	}
	if want := stored.FetchedAt.Add(DefaultTTL); !svc.NextRefresh().Equal(want) {
		t.Fatalf("next refresh = %v, want %v", svc.NextRefresh(), want)
	}

	// Once the stored snapshot ages out, upstream is consulted.
	clock.Advance(4 * time.Minute)
	snap, err = svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls.Load() != 1 || snap.Coins[0].Name != "Fresh" {
		t.Fatalf("expected refetch of stale snapshot; calls=%d", f.calls.Load())
	}

	rec, _ := st.GetMarketSnapshot(ctx, DefaultQuery().Key())
	if rec == nil || !rec.FetchedAt.Equal(clock.Now()) {
		t.Fatalf("expected write-back of fresh snapshot, got %+v", rec)
	}
}

func TestRefresh_BypassesCacheAndKeepsOldOnFailure(t *testing.T) {
	f := &countingFetcher{coins: scenarioCoins()}
	svc := NewService(Config{}, f)
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls.Load() != 2 {
		t.Fatalf("expected refresh to hit upstream, got %d calls", f.calls.Load())
	}

	f.err = ErrFetchFailed
	if _, err := svc.Refresh(ctx); err == nil {
		t.Fatalf("expected refresh error")
	}
	snap, err := svc.Snapshot(ctx)
	if err != nil || len(snap.Coins) != 3 {
		t.Fatalf("expected previous snapshot to survive failed refresh; err=%v", err)
	}
}

func TestQueryKeyIncludesParameters(t *testing.T) {
	a := DefaultQuery()
	b := DefaultQuery()
	b.Page = 2
	if a.Key() == b.Key() {
		t.Fatalf("queries with different pages must not share a key")
	}
}
