package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) Storage {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(context.Background(), Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestGormSQLite_SnapshotUpsert(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t)

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	first := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	if err := st.SaveMarketSnapshot(ctx, MarketSnapshot{Key: "k", Payload: []byte("one"), FetchedAt: first}); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := first.Add(30 * time.Second)
	if err := st.SaveMarketSnapshot(ctx, MarketSnapshot{Key: "k", Payload: []byte("two"), FetchedAt: second}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.GetMarketSnapshot(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || string(got.Payload) != "two" {
		t.Fatalf("expected upserted payload, got %+v", got)
	}
	if !got.FetchedAt.Equal(second) {
		t.Fatalf("fetched_at mismatch: want %v got %v", second, got.FetchedAt)
	}

	missing, err := st.GetMarketSnapshot(ctx, "other")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing key; got %+v, %v", missing, err)
	}
}

func TestGormSQLite_SettingsAndJobs(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t)

	if v, err := st.GetSetting(ctx, SettingRefreshSchedule); err != nil || v != "" {
		t.Fatalf("expected empty setting, got %q, %v", v, err)
	}
	if err := st.SetSetting(ctx, SettingRefreshSchedule, "600"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.SetSetting(ctx, SettingRefreshSchedule, "120"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := st.GetSetting(ctx, SettingRefreshSchedule); v != "120" {
		t.Fatalf("unexpected setting: %q", v)
	}

	if err := st.UpdateScheduledJob(ctx, "refresh_markets", time.Now(), time.Second, true, ""); err != nil {
		t.Fatalf("update job: %v", err)
	}
	job, err := st.GetScheduledJob(ctx, "refresh_markets")
	if err != nil || job == nil || job.LastSuccess != 1 {
		t.Fatalf("unexpected job: %+v, %v", job, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
