package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dyluth/larder/internal/config"
	"github.com/dyluth/larder/internal/freshness"
	"github.com/dyluth/larder/internal/gate"
	"github.com/dyluth/larder/internal/generator"
	"github.com/dyluth/larder/internal/logging"
	"github.com/dyluth/larder/internal/normalize"
	"github.com/dyluth/larder/internal/printer"
	"github.com/dyluth/larder/internal/quota"
	"github.com/dyluth/larder/internal/records"
	"github.com/dyluth/larder/pkg/larder"
	"go.uber.org/zap"
)

var errRedisUnavailable = errors.New("redis unavailable")

// app is the wired set of components behind every command.
type app struct {
	cfg     *config.LarderConfig
	logger  *zap.Logger
	client  *larder.Client
	records *records.Store
	ledger  *quota.Ledger
	gate    *gate.Gate
}

// loadConfig reads the config file, printing a formatted error on failure.
func loadConfig(path string) (*config.LarderConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"failed to load configuration",
			err.Error(),
			map[string]string{"Config": path},
			[]string{"Create a configuration first:\n  larder init"},
		)
	}
	return cfg, nil
}

// openApp loads the configuration at path and wires every component.
// Logs go to logOut in the configured level; format overrides the
// configured log format when set.
func openApp(ctx context.Context, path string, logOut io.Writer, format string) (*app, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = cfg.Log.Format
	}

	logger, err := logging.New(cfg.Log.Level, format, logOut)
	if err != nil {
		return nil, printer.Error("failed to create logger", err.Error(), nil)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx, path); err != nil {
		a.Close()
		if errors.Is(err, errRedisUnavailable) {
			return nil, printer.ErrorWithContext(
				"Redis not accessible",
				err.Error(),
				map[string]string{"URL": cfg.Redis.URL, "Namespace": cfg.Namespace},
				[]string{"Check that Redis is running and redis.url is correct"},
			)
		}
		return nil, printer.Error("failed to start larder", err.Error(), nil)
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, path string) error {
	cfg := a.cfg

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return fmt.Errorf("invalid redis.url: %w", err)
	}
	a.client, err = larder.NewClient(redisOpts, cfg.Namespace)
	if err != nil {
		return fmt.Errorf("failed to create cache client: %w", err)
	}
	if err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}

	a.records, err = records.Open(cfg.Records.Path, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open records store: %w", err)
	}

	rules, err := freshness.NewRules(cfg.Sources())
	if err != nil {
		return fmt.Errorf("invalid freshness rules: %w", err)
	}

	a.ledger, err = quota.NewLedger(a.client, cfg.DailyLimits(),
		quota.WithLocation(cfg.Location()),
		quota.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create quota ledger: %w", err)
	}

	norm, err := newNormalizer(cfg, path)
	if err != nil {
		return err
	}

	gen, err := newGenerator(ctx, cfg, a.logger)
	if err != nil {
		return err
	}

	a.gate, err = gate.New(gate.Deps{
		Cache:      a.client,
		Ledger:     a.ledger,
		Oracle:     freshness.NewOracle(a.records),
		Rules:      rules,
		Generator:  gen,
		Normalizer: norm,
	}, gate.Config{
		TTL:               cfg.TTLs(),
		Retention:         cfg.Retention.Duration(),
		GenerationTimeout: cfg.Gate.GenerationTimeout.Duration(),
		Coalesce:          *cfg.Gate.Coalesce,
	}, gate.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to create gate: %w", err)
	}
	return nil
}

// Close releases the cache connection and the records store.
func (a *app) Close() {
	if a.records != nil {
		a.records.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newNormalizer loads the default tables, resolving a relative
// defaults_file against the directory of the config file.
func newNormalizer(cfg *config.LarderConfig, configFile string) (*normalize.Normalizer, error) {
	var defaults *normalize.Defaults
	if cfg.DefaultsFile != "" {
		path := cfg.DefaultsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(configFile), path)
		}
		d, err := normalize.LoadDefaults(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load defaults_file: %w", err)
		}
		defaults = d
	}

	norm, err := normalize.New(defaults)
	if err != nil {
		return nil, fmt.Errorf("invalid default tables: %w", err)
	}
	return norm, nil
}

func newGenerator(ctx context.Context, cfg *config.LarderConfig, logger *zap.Logger) (generator.Generator, error) {
	gc := cfg.Generator
	switch gc.Backend {
	case "static":
		return &generator.Static{Text: gc.StaticText}, nil
	default:
		gen, err := generator.NewGenAI(ctx, generator.Config{
			APIKey:     gc.APIKey,
			Model:      gc.Model,
			RatePerSec: gc.RatePerSec,
			Burst:      gc.Burst,
			MaxRetries: gc.MaxRetries,
			Timeout:    gc.Timeout.Duration(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create generator: %w", err)
		}
		return gen, nil
	}
}

// cliLogOutput is where one-shot commands write logs.
var cliLogOutput io.Writer = os.Stderr
