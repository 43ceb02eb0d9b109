// escrowd runs the escrow engine as a standalone process serving the
// read-only query API, Prometheus metrics and the scheduled maturity sweep.
//
// The journal is kept in memory, so every run starts from the genesis in the
// --config file, which is required. Embed the library with one of the SQL or
// Mongo stores for durable history.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/api"
	audithook "github.com/xraph/escrow/audit_hook"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/observability"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/sweeper"
)

// errConfigRequired is returned when no --config is given. The journal
// starts empty on every run and the genesis admin comes from the file.
var errConfigRequired = errors.New("--config is required: it supplies the genesis admin and treasury")

// fileConfig is the YAML layout read by --config.
type fileConfig struct {
	Listen               string         `yaml:"listen"`
	LogLevel             string         `yaml:"log_level"`
	StalenessWindow      time.Duration  `yaml:"staleness_window"`
	TokenDecimals        int32          `yaml:"token_decimals"`
	ThirdPartySettlement bool           `yaml:"third_party_settlement"`
	SweepSchedule        string         `yaml:"sweep_schedule"`
	Genesis              escrow.Genesis `yaml:"genesis"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listen     string
		logLevel   string
		schedule   string
	)
	flagSet := pflag.NewFlagSet("escrowd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file with the genesis (required)")
	flagSet.StringVar(&listen, "listen", "", "HTTP listen address (default :8080)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&schedule, "sweep-schedule", "", "cron expression of the maturity sweep")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage: escrowd --config escrowd.yaml [flags]\n\n%s", flagSet.FlagUsages())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Flags override the file.
	if listen != "" {
		cfg.Listen = listen
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if schedule != "" {
		cfg.SweepSchedule = schedule
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewPrometheusFactory(nil)
	audit := audithook.New(audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		logger.Info("audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
		)
		return nil
	}), audithook.WithLogger(logger))

	engine := escrow.New(memory.New(),
		escrow.WithLogger(logger),
		escrow.WithStalenessWindow(cfg.StalenessWindow),
		escrow.WithTokenDecimals(cfg.TokenDecimals),
		escrow.WithThirdPartySettlement(cfg.ThirdPartySettlement),
		escrow.WithGenesis(cfg.Genesis),
		escrow.WithPlugin(observability.NewMetricsExtension(metrics)),
		escrow.WithPlugin(audit),
	)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Error("escrow stop failed", "error", err)
		}
	}()

	sw, err := sweeper.New(engine, cfg.SweepSchedule, sweeper.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := sw.Start(ctx); err != nil {
		return err
	}
	defer sw.Stop()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.New(engine, api.WithLogger(logger), api.WithMetrics(metrics.Handler())),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("escrowd listening", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadConfig(path string) (fileConfig, error) {
	params := config.Default()
	cfg := fileConfig{
		Listen:          ":8080",
		LogLevel:        "info",
		StalenessWindow: time.Hour,
		SweepSchedule:   sweeper.DefaultSchedule,
		Genesis:         escrow.Genesis{Config: &params},
	}
	if path == "" {
		return cfg, errConfigRequired
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
