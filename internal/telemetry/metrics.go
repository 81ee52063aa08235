package telemetry

import (
	"context"

	"github.com/querylens/querylens/internal/core/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/querylens/querylens"

// Instruments implements port.Instrumentation on OTel metric instruments.
// Every measurement carries the db.system attribute of the connected database.
type Instruments struct {
	Statements        metric.Int64Counter
	StatementDuration metric.Float64Histogram
	ToolDuration      metric.Float64Histogram
	Findings          metric.Int64Counter

	system attribute.KeyValue
}

var _ port.Instrumentation = (*Instruments)(nil)

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments(dbSystem string) *Instruments {
	return newInstrumentsFromMeter(otel.Meter(instrumentationName), dbSystem)
}

func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(instrumentationName), "")
}

func newInstrumentsFromMeter(meter metric.Meter, dbSystem string) *Instruments {
	// Instrument constructors fall back to noop instruments on error.
	statements, _ := meter.Int64Counter("querylens.statements",
		metric.WithDescription("Statements received by the query tools, by operation and outcome"),
	)
	statementDuration, _ := meter.Float64Histogram("querylens.statement.duration",
		metric.WithDescription("Time spent in the database per executed or explained statement"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("querylens.tool.duration",
		metric.WithDescription("MCP tool call duration"),
		metric.WithUnit("ms"),
	)
	findings, _ := meter.Int64Counter("querylens.analysis.findings",
		metric.WithDescription("Analysis results reported, by kind"),
	)

	return &Instruments{
		Statements:        statements,
		StatementDuration: statementDuration,
		ToolDuration:      toolDuration,
		Findings:          findings,
		system:            attribute.String("db.system", dbSystem),
	}
}

func (i *Instruments) RecordStatement(ctx context.Context, operation, outcome string, ms float64) {
	op := attribute.String("db.operation.name", operation)
	i.Statements.Add(ctx, 1, metric.WithAttributes(i.system, op, attribute.String("querylens.outcome", outcome)))
	if outcome != port.OutcomeRejected {
		i.StatementDuration.Record(ctx, ms, metric.WithAttributes(i.system, op))
	}
}

func (i *Instruments) RecordToolCall(ctx context.Context, tool string, ms float64, failed bool) {
	i.ToolDuration.Record(ctx, ms, metric.WithAttributes(
		i.system,
		attribute.String("mcp.tool", tool),
		attribute.Bool("error", failed),
	))
}

// RecordFindings adds n findings of kind. Zero counts are skipped.
func (i *Instruments) RecordFindings(ctx context.Context, kind string, n int) {
	if n <= 0 {
		return
	}
	i.Findings.Add(ctx, int64(n), metric.WithAttributes(i.system, attribute.String("querylens.finding.kind", kind)))
}
