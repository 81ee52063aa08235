package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// QueryService orchestrates SQL validation (domain) and execution (infrastructure).
type QueryService struct {
	dbSystem  string
	validator port.QueryValidator
	executor  port.QueryExecutor
	explainer port.PlanExplainer
	auditor   port.QueryAuditor
	logger    *slog.Logger
	masks     map[string]domain.MaskType // column name -> mask (nil = no masking)
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewQueryService(dbSystem string, validator port.QueryValidator, executor port.QueryExecutor, explainer port.PlanExplainer, auditor port.QueryAuditor, logger *slog.Logger, masks map[string]domain.MaskType, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		dbSystem:  dbSystem,
		validator: validator,
		executor:  executor,
		explainer: explainer,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		tracer:    tracer,
		inst:      inst,
	}
}

// Execute validates the SQL statement and, if allowed, delegates to the executor.
// Masked columns are rewritten under their own name and any select-list alias.
func (s *QueryService) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.system", s.dbSystem),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	if err := s.validate(ctx, span, "query", sql); err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := s.executor.Execute(ctx, sql)
	durationMS := time.Since(start).Milliseconds()

	entry := s.entry(ctx, "query", sql)
	entry.RowsReturned = len(results)
	entry.DurationMS = durationMS
	entry.Err = err
	s.auditor.Record(ctx, entry)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.RecordStatement(ctx, "query", port.OutcomeFailed, float64(durationMS))
		return results, err
	}

	s.inst.RecordStatement(ctx, "query", port.OutcomeOK, float64(durationMS))
	span.SetAttributes(attribute.Int("db.response.rows", len(results)))
	domain.MaskRows(results, domain.MasksForQuery(sql, s.masks))

	return results, nil
}

// Explain validates sql and returns the planner's view of it.
func (s *QueryService) Explain(ctx context.Context, sql string) (*domain.ExecutionPlan, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Explain",
		trace.WithAttributes(
			attribute.String("db.system", s.dbSystem),
			attribute.String("db.operation.name", "explain"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	if err := s.validate(ctx, span, "explain", sql); err != nil {
		return nil, err
	}

	start := time.Now()
	plan, err := s.explainer.Explain(ctx, sql)

	durationMS := time.Since(start).Milliseconds()

	entry := s.entry(ctx, "explain", sql)
	entry.DurationMS = durationMS
	entry.Err = err
	if plan != nil {
		entry.PlanFindings = len(plan.Findings)
	}
	s.auditor.Record(ctx, entry)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.RecordStatement(ctx, "explain", port.OutcomeFailed, float64(durationMS))
		return nil, err
	}
	s.inst.RecordStatement(ctx, "explain", port.OutcomeOK, float64(durationMS))
	if plan == nil {
		return nil, fmt.Errorf("statement is already an EXPLAIN: %w", domain.ErrUnsupported)
	}
	span.SetAttributes(attribute.Int("querylens.plan.findings", len(plan.Findings)))
	s.inst.RecordFindings(ctx, "plan", len(plan.Findings))
	return plan, nil
}

func (s *QueryService) validate(ctx context.Context, span trace.Span, op, sql string) error {
	err := s.validator.Validate(sql)
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "query validation rejected",
		slog.String("db.operation.name", op),
		slog.String("db.statement", sql),
		slog.String("error.type", "validation_error"),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.inst.RecordStatement(ctx, op, port.OutcomeRejected, 0)

	entry := s.entry(ctx, op, sql)
	entry.Rejected = true
	entry.Err = err
	s.auditor.Record(ctx, entry)

	return fmt.Errorf("validation: %w", err)
}

func (s *QueryService) entry(ctx context.Context, op, sql string) port.AuditEntry {
	return port.AuditEntry{
		Tool:      toolNameFromCtx(ctx),
		SessionID: sessionIDFromCtx(ctx),
		DBSystem:  s.dbSystem,
		Operation: op,
		SQL:       sql,
	}
}
