package parcsv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	gfcontext "github.com/vnykmshr/parcsv/pkg/common/context"
	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/logging"
	"github.com/vnykmshr/parcsv/pkg/common/validation"
	"github.com/vnykmshr/parcsv/pkg/mapper"
	"github.com/vnykmshr/parcsv/pkg/metrics"
	"github.com/vnykmshr/parcsv/pkg/progress"
	"github.com/vnykmshr/parcsv/pkg/scheduling/pipeline"
	"github.com/vnykmshr/parcsv/pkg/scheduling/scheduler"
	"github.com/vnykmshr/parcsv/pkg/store/history"
)

// Config holds everything a run needs besides the mapper and the files.
type Config struct {
	pipeline.Options

	// Log configures the log sink. Default: append to parcsv.log.
	Log logging.Config

	// Progress prints a live row counter per file to ErrOut.
	// Default: true
	Progress bool

	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string

	// RedisAddr publishes per-file progress to Redis when set.
	RedisAddr string

	// RedisKey prefixes the Redis progress keys.
	// Default: "parcsv"
	RedisKey string

	// RedisInterval is the minimum time between row updates sent to Redis.
	// Default: 1s
	RedisInterval time.Duration

	// HistoryPath records a summary of every file in a SQLite database
	// when set.
	HistoryPath string

	// Schedule reruns the job on a cron schedule when set.
	Schedule string

	// MaxRuns limits scheduled runs. Zero means no limit.
	MaxRuns int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Options:       pipeline.DefaultOptions(),
		Log:           logging.DefaultConfig(),
		Progress:      true,
		RedisKey:      progress.DefaultRedisConfig().Key,
		RedisInterval: time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Options.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("parcsv", "redis_interval", c.RedisInterval); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("parcsv", "max_runs", c.MaxRuns); err != nil {
		return err
	}
	if c.Schedule != "" {
		return scheduler.ValidateExpression(c.Schedule)
	}
	return nil
}

// Main maps files with m using the default configuration and returns the
// process exit status. SIGINT and SIGTERM cancel the job.
func Main(m mapper.Mapper, files []string) int {
	return MainWithConfig(m, files, DefaultConfig())
}

// MainWithConfig is Main with an explicit configuration.
func MainWithConfig(m mapper.Mapper, files []string, cfg Config) int {
	ctx, stop := gfcontext.NotifyInterrupt(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := Run(ctx, m, files, cfg)
	if err != nil && !gferrors.IsInterrupted(err) {
		errOut := cfg.ErrOut
		if errOut == nil {
			errOut = os.Stderr
		}
		fmt.Fprintf(errOut, "parcsv: %v\n", err)
	}
	return pipeline.ExitCode(err)
}

// Run builds the collaborators described by cfg and processes files, once
// or on cfg.Schedule. The error maps to an exit status with
// pipeline.ExitCode.
func Run(ctx context.Context, m mapper.Mapper, files []string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ErrOut == nil {
		cfg.ErrOut = os.Stderr
	}

	logger := cfg.Logger
	if logger == nil {
		l, closer, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer closer.Close()
		logger = l
	}

	var reporters []progress.Reporter
	if cfg.Reporter != nil {
		reporters = append(reporters, cfg.Reporter)
	}
	if cfg.Progress {
		reporters = append(reporters, progress.NewConsole(cfg.ErrOut))
	}
	reporters = append(reporters, progress.NewLogger(logger))

	if cfg.MetricsAddr != "" && cfg.Metrics == nil {
		registry, stopServer := serveMetrics(cfg.MetricsAddr, logger)
		defer stopServer()
		cfg.Metrics = registry
	}
	if cfg.Metrics != nil {
		reporters = append(reporters, progress.NewMetrics(cfg.Metrics))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		defer client.Close()

		rc := progress.DefaultRedisConfig()
		rc.Redis = client
		rc.Key = cfg.RedisKey
		rc.Logger = logger
		pub, err := progress.NewRedis(rc)
		if err != nil {
			return err
		}
		reporters = append(reporters, progress.Throttle(pub, cfg.RedisInterval))
	}

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		reporters = append(reporters, store)
	}

	opts := cfg.Options
	opts.Logger = logger
	opts.Reporter = progress.Multi(reporters...)

	if cfg.Schedule == "" {
		_, err := pipeline.Process(ctx, m, files, opts)
		return err
	}
	return runScheduled(ctx, m, files, opts, cfg)
}

// runScheduled reruns the job on cfg.Schedule. Each run gets its own job ID.
func runScheduled(ctx context.Context, m mapper.Mapper, files []string, opts pipeline.Options, cfg Config) error {
	runner, err := scheduler.New(scheduler.Config{
		Schedule: cfg.Schedule,
		MaxRuns:  cfg.MaxRuns,
		Logger:   opts.Logger,
	})
	if err != nil {
		return err
	}

	base := opts.JobID
	err = runner.Run(ctx, func(ctx context.Context, run int) error {
		o := opts
		if base != "" {
			o.JobID = fmt.Sprintf("%s-%d", base, run)
		}
		_, err := pipeline.Process(ctx, m, files, o)
		return err
	})
	if err != nil {
		return err
	}

	// interrupted between runs: no job was active to print the notice
	if ctx.Err() != nil {
		fmt.Fprintln(cfg.ErrOut, pipeline.CancelNotice)
		opts.Logger.Error(pipeline.CancelNotice)
		return gferrors.ErrInterrupted
	}
	return nil
}

// serveMetrics registers a fresh metrics registry and serves it on addr.
func serveMetrics(addr string, logger *slog.Logger) (*metrics.Registry, func()) {
	registry, gatherer := metrics.Setup(metrics.Config{
		Enabled:  true,
		Registry: prometheus.NewRegistry(),
		Addr:     addr,
	})

	srv := metrics.NewServer(addr, gatherer)
	go func() {
		logger.Info("metrics server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return registry, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
		}
	}
}
