package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nemsql/backend/libs/db"
	"nemsql/backend/libs/redis"
	"nemsql/backend/services/converter/internal/config"
	"nemsql/backend/services/converter/internal/pipeline"
	"nemsql/backend/services/converter/internal/repository"
)

// readingsLoader applies generated output files to the database.
type readingsLoader interface {
	EnsureSchema(ctx context.Context) error
	ApplyFile(ctx context.Context, path string) (int64, error)
}

// App wires converter dependencies.
type App struct {
	cfg      *config.Config
	pool     *pipeline.Pool
	db       *sql.DB
	readings readingsLoader
	redis    *goredis.Client
	runs     *repository.RunRegistry
	logger   *zap.Logger
}

// New constructs application components. PostgreSQL is opened only when loading is enabled
// and redis only when an address is configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
		pool: pipeline.NewPool(pipeline.Options{
			Workers:       cfg.WorkerCount(),
			QueueCapacity: cfg.Pipeline.QueueCapacity,
			OutputDir:     cfg.Output.Dir,
			OutputPrefix:  cfg.Output.Prefix,
			WaitTimeout:   cfg.WaitTimeout(),
		}, logger),
	}

	if cfg.Database.Load {
		sqlDB, err := db.NewPostgresDB(ctx, cfg.Database.DSN, db.PoolOptions{
			MaxOpenConns: cfg.Database.MaxOpenConns,
		})
		if err != nil {
			return nil, fmt.Errorf("app: open postgres: %w", err)
		}
		a.db = sqlDB
		a.readings = repository.NewReadingsRepository(sqlDB)
	}

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client, err := redis.NewRedisClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: open redis: %w", err)
		}
		a.redis = client
		a.runs = repository.NewRunRegistry(client, cfg.Redis.TTL)
	}

	return a, nil
}

// Run converts the configured input, optionally loads the output and records the run.
// With a run registry, an input whose fingerprint was already loaded is not loaded again.
func (a *App) Run(ctx context.Context) (*pipeline.Result, error) {
	input := a.cfg.Input.Path
	a.logger.Info("converting NEM12 file",
		zap.String("input", input),
		zap.Int("workers", a.cfg.WorkerCount()),
	)

	res, err := a.pool.RunFile(ctx, input)
	if err != nil {
		return res, err
	}

	a.logger.Info("execution finished",
		zap.Int64("elapsed_ms", res.Elapsed.Milliseconds()),
		zap.Int("readings", res.Readings),
		zap.Strings("outputs", res.Outputs),
	)

	fingerprint := a.fingerprint(input)
	loaded := a.previouslyLoaded(ctx, fingerprint)

	if a.readings != nil {
		if loaded {
			a.logger.Info("input already loaded, skipping database load",
				zap.String("input", input),
				zap.String("fingerprint", fingerprint),
			)
		} else {
			if err := a.load(ctx, res.Outputs); err != nil {
				return res, err
			}
			loaded = true
		}
	}

	if fingerprint != "" {
		a.record(ctx, fingerprint, input, res, loaded)
	}

	return res, nil
}

// fingerprint returns "" when no registry is configured or hashing fails.
func (a *App) fingerprint(input string) string {
	if a.runs == nil {
		return ""
	}
	fingerprint, err := repository.Fingerprint(input)
	if err != nil {
		a.logger.Warn("failed to fingerprint input", zap.Error(err))
		return ""
	}
	return fingerprint
}

func (a *App) previouslyLoaded(ctx context.Context, fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	previous, err := a.runs.Last(ctx, fingerprint)
	if errors.Is(err, repository.ErrRunNotFound) {
		return false
	}
	if err != nil {
		a.logger.Warn("failed to read previous run", zap.Error(err))
		return false
	}
	return previous.Loaded
}

func (a *App) load(ctx context.Context, outputs []string) error {
	if err := a.readings.EnsureSchema(ctx); err != nil {
		return err
	}

	var errs *multierror.Error
	for _, path := range outputs {
		rows, err := a.readings.ApplyFile(ctx, path)
		if err != nil {
			a.logger.Error("failed to load output", zap.String("path", path), zap.Error(err))
			errs = multierror.Append(errs, err)
			continue
		}
		a.logger.Info("output loaded", zap.String("path", path), zap.Int64("rows", rows))
	}
	return errs.ErrorOrNil()
}

// record is best effort: registry failures never fail a conversion.
func (a *App) record(ctx context.Context, fingerprint, input string, res *pipeline.Result, loaded bool) {
	summary := repository.RunSummary{
		Fingerprint:  fingerprint,
		Input:        input,
		Workers:      len(res.Workers),
		Blocks:       res.Blocks,
		Readings:     res.Readings,
		FailedBlocks: res.FailedBlocks,
		Loaded:       loaded,
		Outputs:      res.Outputs,
		Elapsed:      res.Elapsed,
		FinishedAt:   time.Now().UTC(),
	}
	if err := a.runs.Record(ctx, summary); err != nil {
		a.logger.Warn("failed to record run", zap.Error(err))
		return
	}
	a.logger.Debug("run recorded", zap.String("fingerprint", fingerprint))
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
