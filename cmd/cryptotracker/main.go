package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bher20/cryptotracker/internal/alerting"
	"github.com/bher20/cryptotracker/internal/api"
	"github.com/bher20/cryptotracker/internal/charts"
	"github.com/bher20/cryptotracker/internal/config"
	"github.com/bher20/cryptotracker/internal/cron"
	"github.com/bher20/cryptotracker/internal/dashboard"
	"github.com/bher20/cryptotracker/internal/export"
	"github.com/bher20/cryptotracker/internal/market"
	"github.com/bher20/cryptotracker/internal/storage"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "cryptotracker",
		Short:         "Live cryptocurrency market dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides CRYPTOTRACKER_CONFIG)")

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	if err := root.Execute(); err != nil {
		log.Fatalf("cryptotracker: %v", err)
	}
}

// loadConfig applies .env, the optional YAML file and the environment.
func loadConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: load .env: %v", err)
	}
	if configPath != "" {
		if err := os.Setenv("CRYPTOTRACKER_CONFIG", configPath); err != nil {
			return config.Config{}, err
		}
	}
	return config.FromEnv()
}

func openMarket(ctx context.Context, cfg config.Config) (*market.Service, storage.Storage, error) {
	st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return nil, nil, fmt.Errorf("open storage (driver=%s): %w", cfg.DBDriver, err)
	}
	client := market.NewClient(cfg.MarketsURL, market.NewHTTPClient(cfg.HTTPTimeout, false))
	svc := market.NewServiceWithStorage(market.Config{Query: cfg.Query, TTL: cfg.CacheTTL}, client, st)
	return svc, st, nil
}

func serveCmd() *cobra.Command {
	var (
		addr       string
		exportPath string
		schedule   string
		dbDriver   string
		dbDSN      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("export-path") {
				cfg.ExportPath = exportPath
			}
			if flags.Changed("refresh-schedule") {
				cfg.RefreshSchedule = schedule
			}
			if flags.Changed("db-driver") {
				cfg.DBDriver = dbDriver
			}
			if flags.Changed("db-dsn") {
				cfg.DBDSN = dbDSN
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8000)")
	cmd.Flags().StringVar(&exportPath, "export-path", "", "spreadsheet written on every render")
	cmd.Flags().StringVar(&schedule, "refresh-schedule", "", "background refresh: seconds or cron expression")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "", "storage driver: memory, sqlite or postgres")
	cmd.Flags().StringVar(&dbDSN, "db-dsn", "", "storage DSN")
	return cmd
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, st, err := openMarket(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.RefreshSchedule != "" {
		alerter := alerting.NewAlerter(alerting.NewAlertConfig(cfg.Alert.WebhookURL, cfg.Alert.WebhookType, cfg.Alert.MinFailures))
		w := cron.NewWorker(svc, st, alerter, cfg.RefreshSchedule, cfg.MarketsURL)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("cron: worker stopped: %v", err)
			}
		}()
	}

	mux := api.NewMux(api.Deps{
		Pipeline:  dashboard.New(svc, cfg.ExportPath),
		Refresher: svc,
		Store:     st,
		PerPage:   cfg.Query.PerPage,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("cryptotracker listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("cryptotracker shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func exportCmd() *cobra.Command {
	var (
		out       string
		sortBy    string
		search    string
		chartsDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch once and write the spreadsheet (and optionally the charts)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.ExportPath
			}
			key, err := market.ParseSortKey(sortBy)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, st, err := openMarket(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			view, err := dashboard.New(svc, out).Run(ctx, dashboard.Params{Search: search, Sort: key})
			if err != nil {
				return err
			}
			if view.FetchFailed {
				return errors.New("error fetching data: no data available")
			}
			log.Printf("export: wrote %d rows to %s", len(view.Coins), view.ExportPath)

			if chartsDir != "" {
				if err := writeCharts(chartsDir, view.Coins); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default "+export.DefaultFilename+")")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort key: market_cap, pct_change_24h or price")
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive name filter")
	cmd.Flags().StringVar(&chartsDir, "charts-dir", "", "also write chart pages into this directory")
	return cmd
}

func writeCharts(dir string, coins []market.Coin) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create charts dir: %w", err)
	}
	pages := []struct {
		name   string
		render func(w io.Writer, coins []market.Coin) error
	}{
		{"market_cap.html", charts.RenderMarketCap},
		{"pct_change.html", charts.RenderPctChange},
	}
	for _, p := range pages {
		path := filepath.Join(dir, p.name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		err = p.render(f, coins)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("render %s: %w", path, err)
		}
		log.Printf("export: wrote chart %s", path)
	}
	return nil
}
