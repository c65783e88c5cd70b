package cron

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/bher20/cryptotracker/internal/alerting"
	"github.com/bher20/cryptotracker/internal/market"
	"github.com/bher20/cryptotracker/internal/metrics"
	"github.com/bher20/cryptotracker/internal/storage"
)

// JobName labels the refresh job in metrics, logs and the scheduled_jobs table.
const JobName = "refresh_markets"

// defaultInterval applies when the schedule setting cannot be parsed.
const defaultInterval = 5 * time.Minute

// Refresher forces a new market snapshot. *market.Service implements it.
type Refresher interface {
	Refresh(ctx context.Context) (*market.Snapshot, error)
}

// Worker periodically refreshes the market snapshot so page renders find a
// warm cache.
type Worker struct {
	svc      Refresher
	st       storage.Storage
	alerter  *alerting.Alerter
	schedule string
	source   string
	tick     time.Duration

	failures    int
	lastSuccess time.Time
}

// NewWorker returns a Worker. schedule is integer seconds or a standard cron
// expression; a non-empty refresh_schedule setting in storage overrides it.
// st and alerter may be nil.
func NewWorker(svc Refresher, st storage.Storage, alerter *alerting.Alerter, schedule, source string) *Worker {
	return &Worker{
		svc:      svc,
		st:       st,
		alerter:  alerter,
		schedule: schedule,
		source:   source,
		tick:     10 * time.Second,
	}
}

// NextRun computes the run after lastRun for setting, which is either a
// positive number of seconds or a standard five-field cron expression.
func NextRun(setting string, lastRun time.Time) time.Time {
	setting = strings.TrimSpace(setting)
	// Try integer seconds
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return lastRun.Add(time.Duration(v) * time.Second)
	}
	// Try cron expression
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(lastRun)
	}
	return lastRun.Add(defaultInterval)
}

// Failures returns the current streak of failed runs.
func (w *Worker) Failures() int { return w.failures }

// RunOnce performs a single refresh, records job metrics and the job row, and
// alerts when the failure streak reaches the alert threshold.
func (w *Worker) RunOnce(ctx context.Context) error {
	started := time.Now()
	runID := uuid.NewString()

	snap, runErr := w.svc.Refresh(ctx)

	metrics.UpdateJobMetrics(JobName, started, runErr)
	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if w.st != nil {
		if err := w.st.UpdateScheduledJob(ctx, JobName, started, dur, runErr == nil, errMsg); err != nil {
			log.Printf("cron: update scheduled_jobs failed: %v", err)
		}
	}

	if runErr == nil {
		w.failures = 0
		w.lastSuccess = started
		log.Printf("cron: job %s run=%s refreshed %d coins (duration=%s)", JobName, runID, len(snap.Coins), dur)
		return nil
	}

	w.failures++
	log.Printf("cron: job %s run=%s failed (%d in a row): %v", JobName, runID, w.failures, runErr)
	if w.alerter != nil {
		alert := alerting.FetchAlert{
			JobName:             JobName,
			RunID:               runID,
			Source:              w.source,
			ConsecutiveFailures: w.failures,
			Error:               errMsg,
			LastSuccess:         w.lastSuccess,
			Timestamp:           time.Now(),
		}
		if err := w.alerter.SendFetchAlert(ctx, alert); err != nil {
			log.Printf("cron: send alert failed: %v", err)
		}
	}
	return runErr
}

// Run refreshes immediately and then on every scheduled time until ctx is
// done. The schedule setting is re-read from storage on every tick.
func (w *Worker) Run(ctx context.Context) error {
	setting := w.schedule
	if v := w.storedSchedule(ctx); v != "" {
		setting = v
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	nextRun := time.Now()
	log.Printf("cron worker starting, schedule=%q", setting)

	for {
		if !time.Now().Before(nextRun) {
			_ = w.RunOnce(ctx)
			nextRun = NextRun(setting, time.Now())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if v := w.storedSchedule(ctx); v != "" && v != setting {
				log.Printf("cron: schedule updated from %q to %q", setting, v)
				setting = v
				nextRun = NextRun(setting, time.Now())
			}
		}
	}
}

func (w *Worker) storedSchedule(ctx context.Context) string {
	if w.st == nil {
		return ""
	}
	v, err := w.st.GetSetting(ctx, storage.SettingRefreshSchedule)
	if err != nil {
		log.Printf("cron: read schedule setting failed: %v", err)
		return ""
	}
	return v
}
