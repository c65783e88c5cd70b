package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bher20/cryptotracker/internal/market"
)

type Config struct {
	Addr        string        `yaml:"addr"`
	MarketsURL  string        `yaml:"markets_url"`
	Query       market.Query  `yaml:"query"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	ExportPath  string        `yaml:"export_path"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	// RefreshSchedule is integer seconds or a standard cron expression.
	// Empty disables the background refresh worker.
	RefreshSchedule string `yaml:"refresh_schedule"`

	Alert AlertConfig `yaml:"alert"`
}

type AlertConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	WebhookType string `yaml:"webhook_type"`
	MinFailures int    `yaml:"min_failures"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:        ":8000",
		MarketsURL:  market.DefaultMarketsURL,
		Query:       market.DefaultQuery(),
		CacheTTL:    market.DefaultTTL,
		HTTPTimeout: 30 * time.Second,
		ExportPath:  "crypto_data.xlsx",
		DBDriver:    "memory",
		Alert:       AlertConfig{MinFailures: 1},
	}
}

// FromEnv builds a Config from environment variables, with sane defaults.
// When CRYPTOTRACKER_CONFIG names a YAML file it is applied before the
// environment, so environment variables win.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CRYPTOTRACKER_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CRYPTOTRACKER_ADDR"); v != "" {
		c.Addr = v
	} else if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if v := os.Getenv("CRYPTOTRACKER_MARKETS_URL"); v != "" {
		c.MarketsURL = v
	}
	if v := os.Getenv("CRYPTOTRACKER_VS_CURRENCY"); v != "" {
		c.Query.VsCurrency = v
	}
	if v := os.Getenv("CRYPTOTRACKER_PER_PAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("CRYPTOTRACKER_PER_PAGE: invalid value %q", v)
		}
		c.Query.PerPage = n
	}
	if v := os.Getenv("CRYPTOTRACKER_CACHE_TTL_SECONDS"); v != "" {
		d, err := seconds("CRYPTOTRACKER_CACHE_TTL_SECONDS", v)
		if err != nil {
			return err
		}
		c.CacheTTL = d
	}
	if v := os.Getenv("CRYPTOTRACKER_HTTP_TIMEOUT_SECONDS"); v != "" {
		d, err := seconds("CRYPTOTRACKER_HTTP_TIMEOUT_SECONDS", v)
		if err != nil {
			return err
		}
		c.HTTPTimeout = d
	}
	if v := os.Getenv("CRYPTOTRACKER_EXPORT_PATH"); v != "" {
		c.ExportPath = v
	}
	if v := os.Getenv("CRYPTOTRACKER_DB_DRIVER"); v != "" {
		c.DBDriver = v
	}
	if v := os.Getenv("CRYPTOTRACKER_DB_DSN"); v != "" {
		c.DBDSN = v
	}
	if v := os.Getenv("CRYPTOTRACKER_REFRESH_SCHEDULE"); v != "" {
		c.RefreshSchedule = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alert.WebhookURL = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_TYPE"); v != "" {
		c.Alert.WebhookType = v
	}
	if v := os.Getenv("ALERT_MIN_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("ALERT_MIN_FAILURES: invalid value %q", v)
		}
		c.Alert.MinFailures = n
	}
	return nil
}

func seconds(name, v string) (time.Duration, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid value %q", name, v)
	}
	return time.Duration(n) * time.Second, nil
}
