package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for market snapshots, settings and job runs.
type Storage interface {
	// Market snapshots. Lookups return nil, nil when nothing is stored.
	GetMarketSnapshot(ctx context.Context, key string) (*MarketSnapshot, error)
	SaveMarketSnapshot(ctx context.Context, snap MarketSnapshot) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Scheduled jobs
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error)

	Ping(ctx context.Context) error

	// Close releases any resources (no-op for in-memory).
	Close() error
}
