package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// Enabled controls whether alerts are sent
	Enabled bool
	// MinFailuresBeforeAlert is the number of consecutive failed refreshes
	// before an alert goes out
	MinFailuresBeforeAlert int
	// Timeout for HTTP requests
	Timeout time.Duration
}

// NewAlertConfig builds an AlertConfig, detecting the webhook type from the
// URL when webhookType is empty.
func NewAlertConfig(webhookURL, webhookType string, minFailures int) AlertConfig {
	cfg := AlertConfig{
		WebhookURL:             webhookURL,
		WebhookType:            webhookType,
		Enabled:                webhookURL != "",
		MinFailuresBeforeAlert: minFailures,
		Timeout:                10 * time.Second,
	}
	if cfg.MinFailuresBeforeAlert <= 0 {
		cfg.MinFailuresBeforeAlert = 1
	}

	if cfg.WebhookType == "" {
		switch {
		case strings.Contains(webhookURL, "slack.com"):
			cfg.WebhookType = "slack"
		case strings.Contains(webhookURL, "discord.com"):
			cfg.WebhookType = "discord"
		default:
			cfg.WebhookType = "generic"
		}
	}
	return cfg
}

// Alerter sends alerts to configured webhooks.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig) *Alerter {
	return &Alerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// FetchAlert describes a run of failed market data refreshes.
type FetchAlert struct {
	JobName             string
	RunID               string
	Source              string
	ConsecutiveFailures int
	Error               string
	LastSuccess         time.Time
	Timestamp           time.Time
}

// SendFetchAlert posts alert to the webhook once the failure streak reaches
// the configured threshold.
func (a *Alerter) SendFetchAlert(ctx context.Context, alert FetchAlert) error {
	if !a.cfg.Enabled {
		return nil
	}

	if alert.ConsecutiveFailures < a.cfg.MinFailuresBeforeAlert {
		log.Printf("alerting: %d failures below threshold (%d), skipping",
			alert.ConsecutiveFailures, a.cfg.MinFailuresBeforeAlert)
		return nil
	}

	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = a.buildSlackPayload(alert)
	case "discord":
		payload, err = a.buildDiscordPayload(alert)
	default:
		payload, err = a.buildGenericPayload(alert)
	}

	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Printf("alerting: sent alert after %d consecutive failures", alert.ConsecutiveFailures)
	return nil
}

func lastSuccessText(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func (a *Alerter) buildSlackPayload(alert FetchAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":x: Market data refresh failing: %s", alert.JobName),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", alert.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Last success:*\n%s", lastSuccessText(alert.LastSuccess))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Source:*\n%s", alert.Source)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Error:*\n```%s```", alert.Error),
				},
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildDiscordPayload(alert FetchAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Market data refresh failing: %s", alert.JobName),
				"description": alert.Error,
				"color":       16711680, // Red
				"fields": []map[string]interface{}{
					{"name": "Consecutive failures", "value": fmt.Sprintf("%d", alert.ConsecutiveFailures), "inline": true},
					{"name": "Last success", "value": lastSuccessText(alert.LastSuccess), "inline": true},
					{"name": "Source", "value": alert.Source, "inline": false},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildGenericPayload(alert FetchAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":           "market_fetch_failure",
		"job_name":             alert.JobName,
		"run_id":               alert.RunID,
		"source":               alert.Source,
		"consecutive_failures": alert.ConsecutiveFailures,
		"error":                alert.Error,
		"last_success":         lastSuccessText(alert.LastSuccess),
		"timestamp":            alert.Timestamp.Format(time.RFC3339),
	}

	return json.Marshal(payload)
}
