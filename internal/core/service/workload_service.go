package service

import (
	"context"
	"log/slog"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/domain/sqltext"
	"github.com/querylens/querylens/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ScoredQuery is a slow statement with its heuristic complexity.
type ScoredQuery struct {
	port.SlowQuery
	StatementType string                   `json:"statement_type"`
	Complexity    domain.ComplexityMetrics `json:"complexity"`
}

// WorkloadSummary aggregates a slow-query listing.
type WorkloadSummary struct {
	QueryCount      int            `json:"query_count"`
	TotalMS         float64        `json:"total_ms"`
	TotalCalls      int64          `json:"total_calls"`
	MaxMS           float64        `json:"max_ms"`
	ByStatementType map[string]int `json:"by_statement_type"`
}

type WorkloadReport struct {
	MinMeanMS float64         `json:"min_mean_ms"`
	Queries   []ScoredQuery   `json:"queries"`
	Summary   WorkloadSummary `json:"summary"`
}

type WorkloadService struct {
	inspector port.WorkloadInspector
	scorer    *domain.ComplexityScorer
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewWorkloadService(inspector port.WorkloadInspector, scorer *domain.ComplexityScorer, logger *slog.Logger, tracer trace.Tracer) *WorkloadService {
	if scorer == nil {
		scorer = domain.NewComplexityScorer(domain.DefaultThresholds())
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &WorkloadService{inspector: inspector, scorer: scorer, logger: logger, tracer: tracer}
}

// SlowQueries lists statements whose mean execution time is at least
// minMeanMS, slowest first, each scored for complexity.
func (s *WorkloadService) SlowQueries(ctx context.Context, minMeanMS float64, limit int) (*WorkloadReport, error) {
	ctx, span := s.tracer.Start(ctx, "WorkloadService.SlowQueries",
		trace.WithAttributes(
			attribute.Float64("querylens.min_mean_ms", minMeanMS),
			attribute.Int("querylens.limit", limit),
		),
	)
	defer span.End()

	rows, err := s.inspector.SlowQueries(ctx, minMeanMS, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &WorkloadReport{
		MinMeanMS: minMeanMS,
		Queries:   make([]ScoredQuery, 0, len(rows)),
		Summary:   WorkloadSummary{ByStatementType: make(map[string]int)},
	}
	for _, q := range rows {
		kind := statementType(q.Query)
		report.Queries = append(report.Queries, ScoredQuery{
			SlowQuery:     q,
			StatementType: kind,
			Complexity:    s.scorer.Score(q.Query),
		})
		report.Summary.QueryCount++
		report.Summary.TotalMS += q.TotalMS
		report.Summary.TotalCalls += q.Calls
		report.Summary.MaxMS = max(report.Summary.MaxMS, q.MaxMS)
		report.Summary.ByStatementType[kind]++
	}

	s.logger.DebugContext(ctx, "slow queries read", slog.Int("count", len(rows)))
	return report, nil
}

func (s *WorkloadService) Settings(ctx context.Context, pattern string) ([]port.Setting, error) {
	ctx, span := s.tracer.Start(ctx, "WorkloadService.Settings")
	defer span.End()

	settings, err := s.inspector.Settings(ctx, pattern)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return settings, nil
}

// BufferPool reports page cache usage and hit ratio with resize advice.
func (s *WorkloadService) BufferPool(ctx context.Context) (*domain.BufferPoolReport, error) {
	ctx, span := s.tracer.Start(ctx, "WorkloadService.BufferPool")
	defer span.End()

	stats, err := s.inspector.BufferPool(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report := domain.AnalyzeBufferPool(*stats)
	s.logger.DebugContext(ctx, "buffer pool read",
		slog.String("kind", stats.Kind),
		slog.Int("recommendations", len(report.Recommendations)),
	)
	return report, nil
}

// Fragmentation reports free space per table and which tables to rebuild.
func (s *WorkloadService) Fragmentation(ctx context.Context) (*domain.FragmentationReport, error) {
	ctx, span := s.tracer.Start(ctx, "WorkloadService.Fragmentation")
	defer span.End()

	tables, err := s.inspector.TableSpace(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report := domain.AnalyzeFragmentation(tables)
	s.logger.DebugContext(ctx, "table space read",
		slog.Int("tables", len(tables)),
		slog.Int("fragmented", len(report.Recommendations)),
	)
	return report, nil
}

// statementType is the first keyword of sql, upper-cased.
func statementType(sql string) string {
	for _, tok := range sqltext.Tokenize(sql) {
		if tok.Kind == sqltext.Word {
			return tok.Upper
		}
		if tok.Kind != sqltext.LParen {
			break
		}
	}
	return "UNKNOWN"
}
