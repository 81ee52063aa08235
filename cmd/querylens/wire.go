package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/querylens/querylens/internal/adapter/explainonly"
	mcpadapter "github.com/querylens/querylens/internal/adapter/mcp"
	"github.com/querylens/querylens/internal/adapter/mysql"
	"github.com/querylens/querylens/internal/adapter/policy"
	"github.com/querylens/querylens/internal/adapter/postgres"
	"github.com/querylens/querylens/internal/adapter/sqlite"
	"github.com/querylens/querylens/internal/audit"
	"github.com/querylens/querylens/internal/config"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/core/service"
	"github.com/querylens/querylens/internal/session"
	"github.com/querylens/querylens/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// backend is one database's set of port implementations.
type backend struct {
	system        string
	validator     port.QueryValidator
	metadata      port.MetadataReader
	executor      port.QueryExecutor
	explainer     port.PlanExplainer
	workload      port.WorkloadInspector
	explainPrefix string
	close         func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Dialect {
	case config.DialectPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		return &backend{
			system:        string(config.DialectPostgres),
			validator:     validatorFor(config.DialectPostgres),
			metadata:      postgres.NewMetadataReader(pool, cfg.Schemas, cfg.QueryTimeout),
			executor:      postgres.NewExecutor(pool, cfg.ReadOnly, cfg.MaxRows, cfg.QueryTimeout),
			explainer:     postgres.NewExplainer(pool, cfg.QueryTimeout),
			workload:      postgres.NewWorkloadInspector(pool, cfg.Schemas, cfg.QueryTimeout),
			explainPrefix: "EXPLAIN ",
			close:         pool.Close,
		}, nil

	case config.DialectMySQL:
		dsn, err := mysql.DSNFromURL(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db, err := mysql.Open(ctx, dsn, mysql.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		return &backend{
			system:        string(config.DialectMySQL),
			validator:     validatorFor(config.DialectMySQL),
			metadata:      mysql.NewMetadataReader(db, cfg.QueryTimeout),
			executor:      mysql.NewExecutor(db, cfg.ReadOnly, cfg.MaxRows, cfg.QueryTimeout),
			explainer:     mysql.NewExplainer(db, cfg.QueryTimeout),
			workload:      mysql.NewWorkloadInspector(db, cfg.QueryTimeout),
			explainPrefix: "EXPLAIN ",
			close:         func() { _ = db.Close() },
		}, nil

	case config.DialectSQLite:
		path, err := sqlite.PathFromURL(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db, err := sqlite.Open(ctx, path, cfg.PoolMaxConns)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return &backend{
			system:        string(config.DialectSQLite),
			validator:     validatorFor(config.DialectSQLite),
			metadata:      sqlite.NewMetadataReader(db, cfg.QueryTimeout),
			executor:      sqlite.NewExecutor(db, cfg.ReadOnly, cfg.MaxRows, cfg.QueryTimeout),
			explainer:     sqlite.NewExplainer(db, cfg.QueryTimeout),
			workload:      sqlite.NewWorkloadInspector(db, cfg.QueryTimeout),
			explainPrefix: "EXPLAIN QUERY PLAN ",
			close:         func() { _ = db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
}

// validatorFor returns the read-only gate for a dialect. PostgreSQL adds a
// real parse on top of the lexical checks.
func validatorFor(d config.Dialect) port.QueryValidator {
	if d == config.DialectPostgres {
		return domain.NewChainValidator(domain.NewReadOnlyValidator(), domain.NewPgQueryValidator())
	}
	return domain.NewReadOnlyValidator()
}

func newLogger(level slog.Level) *slog.Logger {
	// stdout is reserved for the MCP stdio transport.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runServe(ctx context.Context, overrides config.Overrides) error {
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting querylens",
		slog.String("version", version),
		slog.String("db.system", string(cfg.Dialect)),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.String("transport", cfg.Transport),
		slog.Bool("read_only", cfg.ReadOnly),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.Bool("explain_only", cfg.ExplainOnly),
	)

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	logger.LogAttrs(ctx, slog.LevelInfo, "database connected", slog.String("db.system", b.system))

	if cfg.DryRun {
		return dryRun(ctx, b, logger)
	}

	var (
		tracer trace.Tracer         = telemetry.NoopTracer()
		inst   port.Instrumentation = port.NoopInstrumentation{}
	)
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, telemetry.Options{
			ServiceName: "querylens",
			Version:     version,
			DBSystem:    b.system,
			Transport:   cfg.Transport,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
		tracer = telemetry.Tracer()
		inst = telemetry.NewInstruments(b.system)
		logger.Info("opentelemetry enabled")
	}

	metadata := b.metadata
	analyzer := domain.NewDefaultAnalyzer()
	thresholds := domain.DefaultThresholds()
	var masks map[string]domain.MaskType
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		metadata = policy.NewMetadataReader(metadata, pol)
		masks = policy.MaskSpec(pol.Context)
		analyzer = pol.Analysis.Analyzer()
		thresholds = pol.Analysis.Thresholds.Apply(thresholds)
		logger.Info("policy loaded",
			slog.String("file", cfg.PolicyFile),
			slog.Int("masked_columns", len(masks)),
		)
	}

	executor := b.executor
	if cfg.ExplainOnly {
		executor = explainonly.NewWithPrefix(executor, b.explainPrefix)
	}

	auditor, err := audit.Open(cfg.AuditLog, logger)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() { _ = auditor.Close() }()

	svc := mcpadapter.Services{
		Analysis: service.NewAnalysisService(b.validator, analyzer, metadata, b.explainer, logger, tracer, inst),
		Query:    service.NewQueryService(b.system, b.validator, executor, b.explainer, auditor, logger, masks, tracer, inst),
		Workload: service.NewWorkloadService(b.workload, domain.NewComplexityScorer(thresholds), logger, tracer),
	}

	sessions := session.NewRegistry(cfg.SessionTimeout, logger)
	go sessions.Run(ctx, cfg.SessionSweepInterval)

	mcpServer := mcpadapter.NewServer(version, svc, sessions, logger, tracer, inst)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, cfg, mcpServer, sessions, logger)
	}

	logger.Info("serving MCP over stdio")
	if err := server.NewStdioServer(mcpServer).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// dryRun proves the connection and catalog access, then exits.
func dryRun(ctx context.Context, b *backend, logger *slog.Logger) error {
	tables, err := b.metadata.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("dry run: listing tables: %w", err)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "dry run complete",
		slog.String("db.system", b.system),
		slog.Int("tables", len(tables)),
	)
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *server.MCPServer, sessions *session.Registry, logger *slog.Logger) error {
	streamable := server.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/mcp", bearerAuthMiddleware(streamable, cfg.HTTPBearerToken))
	mux.Handle("/sessions", bearerAuthMiddleware(sessionsHandler(sessions), cfg.HTTPBearerToken))
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := streamable.Shutdown(shutdownCtx); err != nil {
		logger.Warn("mcp http shutdown", slog.String("error", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
