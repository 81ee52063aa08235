// Package config resolves runtime settings from environment variables and
// command-line overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Dialect is the database family selected by the DATABASE_URL scheme.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgresql"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect maps a connection URL's scheme to a Dialect.
func ParseDialect(databaseURL string) (Dialect, error) {
	scheme, _, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return "", errors.New("invalid DATABASE_URL: missing scheme (want mysql://, postgres:// or sqlite://)")
	}
	switch strings.ToLower(scheme) {
	case "mysql":
		return DialectMySQL, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("invalid DATABASE_URL: unsupported scheme %q", scheme)
	}
}

type Config struct {
	DatabaseURL  string
	Dialect      Dialect
	ReadOnly     bool
	MaxRows      int
	QueryTimeout time.Duration

	Schemas    []string // PostgreSQL only; empty means all non-system schemas
	PolicyFile string

	LogLevel slog.Level

	Transport       string // "stdio" or "http"
	HTTPAddr        string
	HTTPBearerToken string // required when Transport is "http"

	SessionTimeout       time.Duration // idle time before a session is evicted
	SessionSweepInterval time.Duration

	PoolMaxConns        int32
	PoolMinConns        int32
	PoolMaxConnLifetime time.Duration

	OTelEnabled bool

	// Flag-only settings.
	DryRun      bool   // connect, list the catalog and exit
	ExplainOnly bool   // execute_read_only_query returns plans only
	AuditLog    string // NDJSON audit file, "-" for the log stream
}

// Overrides holds CLI flag values. Nil pointers mean the flag was not given.
type Overrides struct {
	DatabaseURL          *string
	LogLevel             *string
	MaxRows              *int
	QueryTimeout         *time.Duration
	PolicyFile           *string
	Transport            *string
	HTTPAddr             *string
	HTTPBearerToken      *string
	SessionTimeout       *time.Duration
	SessionSweepInterval *time.Duration
	PoolMaxConns         *int32
	PoolMinConns         *int32
	PoolMaxConnLifetime  *time.Duration

	OTelEnabled bool
	DryRun      bool
	ExplainOnly bool
	AuditLog    string
}

// Load resolves defaults, then environment variables, then overrides, and
// validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := &Config{
		ReadOnly:             true,
		MaxRows:              100,
		QueryTimeout:         30 * time.Second,
		LogLevel:             slog.LevelInfo,
		Transport:            "stdio",
		HTTPAddr:             ":8080",
		SessionTimeout:       30 * time.Minute,
		SessionSweepInterval: time.Minute,
		PoolMaxConns:         5,
		PoolMinConns:         1,
		PoolMaxConnLifetime:  30 * time.Minute,
	}

	if err := readEnv(cfg); err != nil {
		return nil, err
	}
	if err := overrides.apply(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envReader decodes environment variables into config fields, keeping the
// first error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) value(name string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := r.lookup(name)
	return v, ok && v != ""
}

func (r *envReader) fail(name, v string, reason any) {
	r.err = fmt.Errorf("invalid %s value %q: %v", name, v, reason)
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.value(name); ok {
		*dst = v
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = b
}

func (r *envReader) count(name string, dst *int) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.fail(name, v, "must be a positive integer")
		return
	}
	*dst = n
}

func (r *envReader) conns(name string, dst *int32, allowZero bool) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		r.fail(name, v, "must be a positive integer")
		return
	}
	*dst = int32(n)
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = d
}

func (r *envReader) list(name string, dst *[]string) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*dst = append(*dst, s)
		}
	}
}

func (r *envReader) level(name string, dst *slog.Level) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	l, err := parseLogLevel(v)
	if err != nil {
		r.err = err
		return
	}
	*dst = l
}

func readEnv(cfg *Config) error {
	r := &envReader{lookup: os.LookupEnv}

	r.str("DATABASE_URL", &cfg.DatabaseURL)
	r.boolean("READ_ONLY", &cfg.ReadOnly)
	r.count("MAX_ROWS", &cfg.MaxRows)
	r.duration("QUERY_TIMEOUT", &cfg.QueryTimeout)
	r.level("LOG_LEVEL", &cfg.LogLevel)
	r.list("SCHEMAS", &cfg.Schemas)
	r.str("POLICY_FILE", &cfg.PolicyFile)
	r.str("TRANSPORT", &cfg.Transport)
	r.str("HTTP_ADDR", &cfg.HTTPAddr)
	r.str("HTTP_BEARER_TOKEN", &cfg.HTTPBearerToken)
	r.duration("SESSION_TIMEOUT", &cfg.SessionTimeout)
	r.duration("SESSION_SWEEP_INTERVAL", &cfg.SessionSweepInterval)
	r.conns("POOL_MAX_CONNS", &cfg.PoolMaxConns, false)
	r.conns("POOL_MIN_CONNS", &cfg.PoolMinConns, true)
	r.duration("POOL_MAX_CONN_LIFETIME", &cfg.PoolMaxConnLifetime)
	r.boolean("OTEL_ENABLED", &cfg.OTelEnabled)

	return r.err
}

func (o Overrides) apply(cfg *Config) error {
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.MaxRows != nil && *o.MaxRows <= 0 {
		return errors.New("invalid --max-rows value: must be a positive integer")
	}
	if o.PoolMaxConns != nil && *o.PoolMaxConns <= 0 {
		return errors.New("invalid --pool-max-conns value: must be a positive integer")
	}
	if o.PoolMinConns != nil && *o.PoolMinConns < 0 {
		return errors.New("invalid --pool-min-conns value: must be a non-negative integer")
	}

	set(&cfg.DatabaseURL, o.DatabaseURL)
	set(&cfg.MaxRows, o.MaxRows)
	set(&cfg.QueryTimeout, o.QueryTimeout)
	set(&cfg.PolicyFile, o.PolicyFile)
	set(&cfg.Transport, o.Transport)
	set(&cfg.HTTPAddr, o.HTTPAddr)
	set(&cfg.HTTPBearerToken, o.HTTPBearerToken)
	set(&cfg.SessionTimeout, o.SessionTimeout)
	set(&cfg.SessionSweepInterval, o.SessionSweepInterval)
	set(&cfg.PoolMaxConns, o.PoolMaxConns)
	set(&cfg.PoolMinConns, o.PoolMinConns)
	set(&cfg.PoolMaxConnLifetime, o.PoolMaxConnLifetime)

	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	cfg.DryRun = o.DryRun
	cfg.ExplainOnly = o.ExplainOnly
	cfg.AuditLog = o.AuditLog
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// validate checks cross-field constraints and derives the dialect.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required (set via env var or --database-url flag)")
	}
	dialect, err := ParseDialect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	cfg.Dialect = dialect

	switch {
	case len(cfg.Schemas) > 0 && dialect != DialectPostgres:
		return errors.New("SCHEMAS is only supported for PostgreSQL")
	case cfg.Transport != "stdio" && cfg.Transport != "http":
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	case cfg.Transport == "http" && cfg.HTTPBearerToken == "":
		return errors.New("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	case cfg.QueryTimeout <= 0:
		return errors.New("QUERY_TIMEOUT must be positive")
	case cfg.SessionTimeout <= 0 || cfg.SessionSweepInterval <= 0:
		return errors.New("SESSION_TIMEOUT and SESSION_SWEEP_INTERVAL must be positive")
	case cfg.PoolMinConns > cfg.PoolMaxConns:
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
}
