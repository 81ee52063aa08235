package main

import (
	"io"
	"time"

	"github.com/querylens/querylens/internal/config"
	"github.com/spf13/pflag"
)

// serveFlags holds the raw flag values. Only flags the user set become
// overrides, so env vars keep their say otherwise.
type serveFlags struct {
	databaseURL          string
	logLevel             string
	maxRows              int
	queryTimeout         time.Duration
	policyFile           string
	transport            string
	httpAddr             string
	httpBearerToken      string
	sessionTimeout       time.Duration
	sessionSweepInterval time.Duration
	poolMaxConns         int32
	poolMinConns         int32
	poolMaxConnLifetime  time.Duration
	otel                 bool
	dryRun               bool
	explainOnly          bool
	auditLog             string
}

func addServeFlags(fs *pflag.FlagSet) *serveFlags {
	f := &serveFlags{}
	fs.StringVar(&f.databaseURL, "database-url", "", "database URL: mysql://, postgres:// or sqlite:// (env DATABASE_URL)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (env LOG_LEVEL)")
	fs.IntVar(&f.maxRows, "max-rows", 0, "maximum rows returned per query (env MAX_ROWS)")
	fs.DurationVar(&f.queryTimeout, "query-timeout", 0, "per-query timeout (env QUERY_TIMEOUT)")
	fs.StringVar(&f.policyFile, "policy-file", "", "policy YAML with table context, masks and analysis tuning (env POLICY_FILE)")
	fs.StringVar(&f.transport, "transport", "", "MCP transport: stdio or http (env TRANSPORT)")
	fs.StringVar(&f.httpAddr, "http-addr", "", "listen address for the HTTP transport (env HTTP_ADDR)")
	fs.StringVar(&f.httpBearerToken, "http-bearer-token", "", "bearer token required by the HTTP transport (env HTTP_BEARER_TOKEN)")
	fs.DurationVar(&f.sessionTimeout, "session-timeout", 0, "idle time before an MCP session is evicted (env SESSION_TIMEOUT)")
	fs.DurationVar(&f.sessionSweepInterval, "session-sweep-interval", 0, "how often idle sessions are swept (env SESSION_SWEEP_INTERVAL)")
	fs.Int32Var(&f.poolMaxConns, "pool-max-conns", 0, "maximum open connections (env POOL_MAX_CONNS)")
	fs.Int32Var(&f.poolMinConns, "pool-min-conns", 0, "minimum idle connections (env POOL_MIN_CONNS)")
	fs.DurationVar(&f.poolMaxConnLifetime, "pool-max-conn-lifetime", 0, "maximum connection lifetime (env POOL_MAX_CONN_LIFETIME)")
	fs.BoolVar(&f.otel, "otel", false, "enable OpenTelemetry traces and metrics (env OTEL_ENABLED)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "connect, check the catalog and exit")
	fs.BoolVar(&f.explainOnly, "explain-only", false, "execute_read_only_query returns EXPLAIN output only")
	fs.StringVar(&f.auditLog, "audit-log", "", `NDJSON audit log path, "-" for the log stream`)
	return f
}

func (f *serveFlags) overrides(fs *pflag.FlagSet) config.Overrides {
	o := config.Overrides{
		OTelEnabled: f.otel,
		DryRun:      f.dryRun,
		ExplainOnly: f.explainOnly,
		AuditLog:    f.auditLog,
	}
	if fs.Changed("database-url") {
		o.DatabaseURL = &f.databaseURL
	}
	if fs.Changed("log-level") {
		o.LogLevel = &f.logLevel
	}
	if fs.Changed("max-rows") {
		o.MaxRows = &f.maxRows
	}
	if fs.Changed("query-timeout") {
		o.QueryTimeout = &f.queryTimeout
	}
	if fs.Changed("policy-file") {
		o.PolicyFile = &f.policyFile
	}
	if fs.Changed("transport") {
		o.Transport = &f.transport
	}
	if fs.Changed("http-addr") {
		o.HTTPAddr = &f.httpAddr
	}
	if fs.Changed("http-bearer-token") {
		o.HTTPBearerToken = &f.httpBearerToken
	}
	if fs.Changed("session-timeout") {
		o.SessionTimeout = &f.sessionTimeout
	}
	if fs.Changed("session-sweep-interval") {
		o.SessionSweepInterval = &f.sessionSweepInterval
	}
	if fs.Changed("pool-max-conns") {
		o.PoolMaxConns = &f.poolMaxConns
	}
	if fs.Changed("pool-min-conns") {
		o.PoolMinConns = &f.poolMinConns
	}
	if fs.Changed("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = &f.poolMaxConnLifetime
	}
	return o
}

// parseFlags parses serve flags outside of cobra.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("querylens", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := addServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	return f.overrides(fs), nil
}
