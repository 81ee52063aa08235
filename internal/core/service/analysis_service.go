package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// QueryAnalysis is the full report behind analyze_query.
type QueryAnalysis struct {
	domain.QueryReport
	Plan   *domain.ExecutionPlan `json:"plan,omitempty"`
	Tables domain.SchemaMetadata `json:"tables"`
}

// IndexAnalysis is the report behind recommend_indexes.
type IndexAnalysis struct {
	domain.IndexReport
	Tables domain.SchemaMetadata `json:"tables"`
}

// RewriteAnalysis is the report behind suggest_query_rewrite. It carries
// only what can be derived from the text and the plan.
type RewriteAnalysis struct {
	AntiPatterns []domain.AntiPatternFinding `json:"anti_patterns"`
	Complexity   domain.ComplexityMetrics    `json:"complexity"`
	PlanFindings []domain.PlanFinding        `json:"plan_findings"`
}

// AnalysisService runs the heuristic engine against live metadata and plans.
// A nil metadata reader or explainer disables that part of each report,
// which is how the offline CLI uses it.
type AnalysisService struct {
	validator port.QueryValidator
	analyzer  *domain.Analyzer
	metadata  port.MetadataReader
	explainer port.PlanExplainer
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewAnalysisService(validator port.QueryValidator, analyzer *domain.Analyzer, metadata port.MetadataReader, explainer port.PlanExplainer, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *AnalysisService {
	if analyzer == nil {
		analyzer = domain.NewDefaultAnalyzer()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &AnalysisService{
		validator: validator,
		analyzer:  analyzer,
		metadata:  metadata,
		explainer: explainer,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
	}
}

// Validate runs the read-only gate without touching the database.
func (s *AnalysisService) Validate(sql string) error {
	return s.validator.Validate(sql)
}

func (s *AnalysisService) AnalyzeQuery(ctx context.Context, sql string) (*QueryAnalysis, error) {
	ctx, span := s.start(ctx, "AnalysisService.AnalyzeQuery", sql)
	defer span.End()

	if err := s.gate(ctx, span, sql); err != nil {
		return nil, err
	}

	out := &QueryAnalysis{QueryReport: s.analyzer.Inspect(sql)}

	plan, err := s.explain(ctx, sql)
	if err != nil {
		return nil, s.fail(span, err)
	}
	out.Plan = plan

	out.Tables, err = s.describe(ctx, domain.ReferencedTables(sql))
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.inst.RecordFindings(ctx, "anti_pattern", len(out.AntiPatterns))
	s.inst.RecordFindings(ctx, "complexity_warning", len(out.Complexity.Warnings))
	span.SetAttributes(
		attribute.Int("querylens.anti_patterns", len(out.AntiPatterns)),
		attribute.Int("querylens.complexity.score", out.Complexity.Score),
	)
	return out, nil
}

func (s *AnalysisService) RecommendIndexes(ctx context.Context, sql string) (*IndexAnalysis, error) {
	ctx, span := s.start(ctx, "AnalysisService.RecommendIndexes", sql)
	defer span.End()

	if err := s.gate(ctx, span, sql); err != nil {
		return nil, err
	}

	schema, err := s.describe(ctx, domain.ReferencedTables(sql))
	if err != nil {
		return nil, s.fail(span, err)
	}

	report := s.analyzer.Indexes(sql, schema)
	s.inst.RecordFindings(ctx, "missing_index", len(report.Missing))
	span.SetAttributes(
		attribute.Int("querylens.index.candidates", len(report.Candidates)),
		attribute.Int("querylens.index.missing", len(report.Missing)),
	)
	return &IndexAnalysis{IndexReport: report, Tables: schema}, nil
}

func (s *AnalysisService) SuggestRewrite(ctx context.Context, sql string) (*RewriteAnalysis, error) {
	ctx, span := s.start(ctx, "AnalysisService.SuggestRewrite", sql)
	defer span.End()

	if err := s.gate(ctx, span, sql); err != nil {
		return nil, err
	}

	report := s.analyzer.Inspect(sql)
	out := &RewriteAnalysis{
		AntiPatterns: report.AntiPatterns,
		Complexity:   report.Complexity,
		PlanFindings: []domain.PlanFinding{},
	}

	plan, err := s.explain(ctx, sql)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if plan != nil {
		out.PlanFindings = plan.Findings
	}

	s.inst.RecordFindings(ctx, "anti_pattern", len(out.AntiPatterns))
	return out, nil
}

// DescribeTables returns metadata for the named tables. It fails with
// domain.ErrNotFound when none of them exist.
func (s *AnalysisService) DescribeTables(ctx context.Context, names []string) (domain.SchemaMetadata, error) {
	if s.metadata == nil {
		return nil, domain.ErrUnsupported
	}
	schema, err := s.metadata.DescribeTables(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("table %v: %w", names, domain.ErrNotFound)
	}
	return schema, nil
}

func (s *AnalysisService) ListTables(ctx context.Context) ([]domain.TableSummary, error) {
	if s.metadata == nil {
		return nil, domain.ErrUnsupported
	}
	return s.metadata.ListTables(ctx)
}

// AnalyzeStructure describes every base table and reviews the schema as a
// whole: missing primary keys, index-heavy tables, large tables and foreign
// keys. Views are skipped.
func (s *AnalysisService) AnalyzeStructure(ctx context.Context) (*domain.StructureReport, error) {
	ctx, span := s.tracer.Start(ctx, "AnalysisService.AnalyzeStructure")
	defer span.End()

	if s.metadata == nil {
		return nil, domain.ErrUnsupported
	}
	tables, err := s.metadata.ListTables(ctx)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("listing tables: %w", err))
	}
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		if t.Type == "table" {
			names = append(names, t.Name)
		}
	}
	schema, err := s.describe(ctx, names)
	if err != nil {
		return nil, s.fail(span, err)
	}

	report := domain.AnalyzeStructure(schema)
	span.SetAttributes(attribute.Int("querylens.table_count", report.Overview.Tables))
	s.inst.RecordFindings(ctx, "structure", len(report.Findings))
	return report, nil
}

func (s *AnalysisService) start(ctx context.Context, name, sql string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("db.statement", sql)))
}

func (s *AnalysisService) gate(ctx context.Context, span trace.Span, sql string) error {
	err := s.validator.Validate(sql)
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "analysis rejected",
		slog.String("db.statement", sql),
		slog.String("error.type", "validation_error"),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("validation: %w", err)
}

func (s *AnalysisService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *AnalysisService) explain(ctx context.Context, sql string) (*domain.ExecutionPlan, error) {
	if s.explainer == nil {
		return nil, nil
	}
	plan, err := s.explainer.Explain(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("explaining query: %w", err)
	}
	if plan == nil {
		return nil, nil
	}
	s.inst.RecordFindings(ctx, "plan", len(plan.Findings))
	return plan, nil
}

func (s *AnalysisService) describe(ctx context.Context, names []string) (domain.SchemaMetadata, error) {
	if s.metadata == nil || len(names) == 0 {
		return domain.SchemaMetadata{}, nil
	}
	schema, err := s.metadata.DescribeTables(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("reading table metadata: %w", err)
	}
	return schema, nil
}
