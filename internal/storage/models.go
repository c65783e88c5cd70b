package storage

import "time"

// MarketSnapshot stores the latest encoded market snapshot for a query key.
// Saving replaces the previous row; no history is kept.
type MarketSnapshot struct {
	Key       string    `json:"key" gorm:"primaryKey;column:key"`
	Payload   []byte    `json:"payload" gorm:"column:payload"`
	FetchedAt time.Time `json:"fetched_at" gorm:"column:fetched_at"`
}

// Setting is a runtime-adjustable key/value pair.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the outcome of the last run of a background job.
type ScheduledJob struct {
	Name           string    `json:"name" gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastDurationMs int64     `json:"last_duration_ms" gorm:"column:last_duration_ms"`
	LastSuccess    int       `json:"last_success" gorm:"column:last_success"`
	LastError      string    `json:"last_error,omitempty" gorm:"column:last_error"`
}

// SettingRefreshSchedule overrides the configured refresh schedule at runtime.
const SettingRefreshSchedule = "refresh_schedule"
