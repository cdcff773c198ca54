package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/parcsv/pkg/common/validation"
)

// RedisConfig holds configuration for the Redis reporter.
type RedisConfig struct {
	// Redis client used to publish progress
	Redis redis.UniversalClient

	// Key is the prefix of every key written
	Key string

	// KeyTTL is how long progress keys live after the last update
	KeyTTL time.Duration

	// Timeout bounds each Redis round trip
	Timeout time.Duration

	// Logger receives publish failures
	Logger *slog.Logger
}

// DefaultRedisConfig returns a default Redis reporter configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Key:     "parcsv",
		KeyTTL:  24 * time.Hour,
		Timeout: 500 * time.Millisecond,
	}
}

// Redis publishes per-file progress as Redis hashes so other processes can
// watch a running job.
//
// Keys, for prefix P:
//
//	P:job:<job>:files          set of input paths seen by the job
//	P:job:<job>:file:<input>   hash with status, output, rows, succeeded,
//	                           failed, dropped, started, finished, error
//
// Publishing is best effort: failures are logged and never affect the job.
type Redis struct {
	config RedisConfig
}

// NewRedis creates a Redis reporter.
func NewRedis(config RedisConfig) (*Redis, error) {
	if err := validation.ValidateNotNil("progress", "redis", config.Redis); err != nil {
		return nil, err
	}
	defaults := DefaultRedisConfig()
	if config.Key == "" {
		config.Key = defaults.Key
	}
	if config.KeyTTL <= 0 {
		config.KeyTTL = defaults.KeyTTL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Redis{config: config}, nil
}

// FilesKey returns the key of the set of files of a job.
func (r *Redis) FilesKey(jobID string) string {
	return r.config.Key + ":job:" + jobID + ":files"
}

// FileKey returns the key of the progress hash of one file.
func (r *Redis) FileKey(jobID, input string) string {
	return r.config.Key + ":job:" + jobID + ":file:" + input
}

func (r *Redis) FileStarted(info FileInfo) {
	r.publish("FileStarted", info.JobID, info.Input, map[string]interface{}{
		"status":    "running",
		"output":    info.Output,
		"rows":      0,
		"succeeded": 0,
		"failed":    0,
		"dropped":   0,
		"started":   info.Started.UTC().Format(time.RFC3339Nano),
	})
}

func (r *Redis) RowWritten(info FileInfo, row Row) {
	r.publish("RowWritten", info.JobID, info.Input, map[string]interface{}{
		"rows":      row.Totals.Rows,
		"succeeded": row.Totals.Succeeded,
		"failed":    row.Totals.Failed,
		"dropped":   row.Totals.Dropped,
	})
}

func (r *Redis) FileFinished(s Summary) {
	fields := map[string]interface{}{
		"status":    string(s.Status),
		"output":    s.Output,
		"rows":      s.Rows,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"dropped":   s.Dropped,
		"finished":  s.Finished.UTC().Format(time.RFC3339Nano),
	}
	if s.Err != nil {
		fields["error"] = s.Err.Error()
	}
	r.publish("FileFinished", s.JobID, s.Input, fields)
}

// publish writes fields to the file hash and refreshes key expiry.
func (r *Redis) publish(op, jobID, input string, fields map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	fileKey := r.FileKey(jobID, input)
	filesKey := r.FilesKey(jobID)

	pipe := r.config.Redis.Pipeline()
	pipe.HSet(ctx, fileKey, fields)
	pipe.Expire(ctx, fileKey, r.config.KeyTTL)
	pipe.SAdd(ctx, filesKey, input)
	pipe.Expire(ctx, filesKey, r.config.KeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		r.config.Logger.Warn("progress publish failed",
			slog.String("op", op),
			slog.String("key", fileKey),
			slog.String("error", err.Error()),
		)
	}
}
