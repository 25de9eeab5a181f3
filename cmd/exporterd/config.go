package main

import (
	"time"

	"github.com/Abdullah0297445/clickup-exporter/internal/export"
)

const (
	defaultConcurrency      = 5
	defaultMaxRetries       = 5
	defaultInitialBackoff   = 1 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultRedisURL         = "redis://127.0.0.1:6379/0"
	defaultLockTTL          = 30 * time.Minute
	defaultKeepLastNExports = 7
	defaultExportInterval   = 5 * time.Hour
	defaultBindHost         = "0.0.0.0"
	defaultAPIPort          = 8000
	defaultSnapshotInterval = 24 * time.Hour
	defaultLogLevel         = "info"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	ClickupToken     string        `mapstructure:"clickup-token" yaml:"clickup-token"`
	ClickupTeamID    string        `mapstructure:"clickup-team-id" yaml:"clickup-team-id"`
	APIAuthToken     string        `mapstructure:"api-auth-token" yaml:"api-auth-token"`
	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRetries       int           `mapstructure:"max-retries" yaml:"max-retries"`
	InitialBackoff   time.Duration `mapstructure:"initial-backoff" yaml:"initial-backoff"`
	RequestTimeout   time.Duration `mapstructure:"request-timeout" yaml:"request-timeout"`
	TimeEntriesStart int64         `mapstructure:"time-entries-start" yaml:"time-entries-start"`
	RedisURL         string        `mapstructure:"redis-url" yaml:"redis-url"`
	RedisLockTTL     time.Duration `mapstructure:"redis-lock-ttl" yaml:"redis-lock-ttl"`
	KeepLastNExports int           `mapstructure:"keep-last-n-exports" yaml:"keep-last-n-exports"`
	ExportInterval   time.Duration `mapstructure:"export-interval" yaml:"export-interval"`
	APIPort          int           `mapstructure:"api-port" yaml:"api-port"`
	APIAddr          string        `mapstructure:"api-addr" yaml:"api-addr"`
	SnapshotEnabled  bool          `mapstructure:"snapshot-enabled" yaml:"snapshot-enabled"`
	SnapshotInterval time.Duration `mapstructure:"snapshot-interval" yaml:"snapshot-interval"`
	SnapshotDir      string        `mapstructure:"snapshot-dir" yaml:"snapshot-dir"`
	SnapshotKeepLast int           `mapstructure:"snapshot-keep-last" yaml:"snapshot-keep-last"`
	SnapshotBucket   string        `mapstructure:"snapshot-bucket-url" yaml:"snapshot-bucket-url"`
	S3Endpoint       string        `mapstructure:"s3-endpoint" yaml:"s3-endpoint"`
	S3Region         string        `mapstructure:"s3-region" yaml:"s3-region"`
	S3AccessKey      string        `mapstructure:"s3-access-key" yaml:"s3-access-key"`
	S3SecretKey      string        `mapstructure:"s3-secret-key" yaml:"s3-secret-key"`
	S3SessionToken   string        `mapstructure:"s3-session-token" yaml:"s3-session-token"`
	S3UseSSL         bool          `mapstructure:"s3-use-ssl" yaml:"s3-use-ssl"`
	LogLevel         string        `mapstructure:"log-level" yaml:"log-level"`
	ConfigPath       string        `mapstructure:"-" yaml:"-"` // not from config file
}

var defaultTimeEntriesStart = export.DefaultTimeEntriesStartMS
