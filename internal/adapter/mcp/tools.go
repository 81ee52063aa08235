package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mysqladapter "github.com/querylens/querylens/internal/adapter/mysql"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/domain/sqltext"
	"github.com/querylens/querylens/internal/core/service"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "querylens"

// Tool defaults
const (
	defaultMinExecutionMS = 100
	defaultSlowQueryLimit = 10
	maxSlowQueryLimit     = 100
)

// Tool descriptions
const (
	descAnalyzeQuery = "Analyze a SQL query for performance problems. " +
		"Returns the query structure (tables, aliases, WHERE and JOIN conditions, ORDER BY, GROUP BY), " +
		"anti-patterns found in the text, a weighted complexity score with warnings, " +
		"the database execution plan with costly operations (full scans, temporary tables, filesorts, " +
		"joins without an index) and metadata for every referenced table. The query is not executed."

	descRecommendIndexes = "Recommend indexes for a SQL query. " +
		"Columns used in WHERE equalities, JOIN conditions, ORDER BY and GROUP BY become index candidates; " +
		"each candidate is matched against the existing indexes by leading-column prefix. " +
		"Returns the candidates already served by an index and CREATE INDEX statements for the rest. " +
		"Candidates marked speculative come from an unqualified column in a multi-table query."

	descSuggestRewrite = "Suggest rewrites for a SQL query. Returns each anti-pattern found with a " +
		"concrete suggestion, the complexity warnings and the costly operations from the execution plan."

	descValidateQuery = "Check whether a SQL statement would be accepted as read-only. " +
		"Returns valid=true or the list of reasons it was rejected. Nothing is sent to the database."

	descListTables = "List all tables and views with type, estimated row count and total size. " +
		"Use this to find large tables before writing or analyzing queries against them."

	descDescribeTable = "Describe a table: columns with types, nullability and key role (PRI, UNI, MUL), " +
		"indexes with their column order, and size statistics. " +
		"Use this to see which indexes already exist before adding new ones."

	descDescribeTableParam = "Name of the table to describe"

	descAnalyzeStructure = "Review the whole schema. Returns every base table with columns, indexes, " +
		"foreign keys and size, an overview by storage engine, and recommendations for tables without " +
		"a primary key, tables with more than 5 indexes and tables holding more than 100 MiB of data."

	descBufferPool = "Analyze the database page cache (the InnoDB buffer pool on MySQL, shared_buffers on " +
		"PostgreSQL). Returns its size, page usage, hit ratio and the tables occupying it where the " +
		"database exposes them, with resize advice when it is nearly full, mostly idle or missing reads."

	descFragmentation = "Analyze per-table free space. Returns data, index and free bytes with the " +
		"fragmentation ratio for each table, and a rebuild statement (OPTIMIZE TABLE on MySQL, " +
		"VACUUM FULL on PostgreSQL) for tables over 10% fragmented with more than 10 MiB of data."

	descSlowQueries = "List the slowest statements recorded by the database's statement statistics " +
		"(performance_schema on MySQL, pg_stat_statements on PostgreSQL), slowest mean first. " +
		"Each statement is scored for complexity and the report includes a summary by statement type."

	descShowSettings = "Show server configuration variables, optionally filtered by a name pattern " +
		"(for example 'buffer' or 'work_mem')."

	descExecuteQuery = "Execute a read-only SQL query and return results as a JSON array of objects. " +
		"A server-side row limit and query timeout are enforced. " +
		"Set explain=true to return the decoded execution plan instead of running the query."

	descSQLParam = "SQL query to analyze (SELECT statements only)"
)

// RegisterTools adds the querylens tools to s. A nil workload service leaves
// out get_slow_queries, show_settings, analyze_innodb_buffer_pool and
// analyze_table_fragmentation.
func RegisterTools(s *server.MCPServer, analysis *service.AnalysisService, query *service.QueryService, workload *service.WorkloadService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("analyze_query",
			mcp.WithDescription(descAnalyzeQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descSQLParam),
			),
		),
		analyzeQueryHandler(analysis, logger),
	)

	s.AddTool(
		mcp.NewTool("recommend_indexes",
			mcp.WithDescription(descRecommendIndexes),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descSQLParam),
			),
		),
		recommendIndexesHandler(analysis, logger),
	)

	s.AddTool(
		mcp.NewTool("suggest_query_rewrite",
			mcp.WithDescription(descSuggestRewrite),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descSQLParam),
			),
		),
		suggestRewriteHandler(analysis, logger),
	)

	s.AddTool(
		mcp.NewTool("validate_query",
			mcp.WithDescription(descValidateQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL statement to check"),
			),
		),
		validateQueryHandler(analysis),
	)

	s.AddTool(
		mcp.NewTool("analyze_database_structure",
			mcp.WithDescription(descAnalyzeStructure),
		),
		analyzeStructureHandler(analysis, logger),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
		),
		listTablesHandler(analysis, logger),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descDescribeTableParam),
			),
		),
		describeTableHandler(analysis, logger),
	)

	if workload != nil {
		s.AddTool(
			mcp.NewTool("get_slow_queries",
				mcp.WithDescription(descSlowQueries),
				mcp.WithNumber("min_execution_time_ms",
					mcp.Description("Minimum mean execution time in milliseconds (default 100)"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of statements to return (default 10, max 100)"),
				),
			),
			slowQueriesHandler(workload, logger),
		)

		s.AddTool(
			mcp.NewTool("show_settings",
				mcp.WithDescription(descShowSettings),
				mcp.WithString("pattern",
					mcp.Description("Substring of the variable name (optional)"),
				),
			),
			showSettingsHandler(workload, logger),
		)

		s.AddTool(
			mcp.NewTool("analyze_innodb_buffer_pool",
				mcp.WithDescription(descBufferPool),
			),
			bufferPoolHandler(workload, logger),
		)

		s.AddTool(
			mcp.NewTool("analyze_table_fragmentation",
				mcp.WithDescription(descFragmentation),
			),
			fragmentationHandler(workload, logger),
		)
	}

	s.AddTool(
		mcp.NewTool("execute_read_only_query",
			mcp.WithDescription(descExecuteQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL query to execute (SELECT, SHOW, EXPLAIN or DESCRIBE)"),
			),
			mcp.WithBoolean("explain",
				mcp.Description("Return the execution plan instead of rows. Defaults to false."),
			),
		),
		executeQueryHandler(query, logger),
	)
}

func analyzeQueryHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		report, err := analysis.AnalyzeQuery(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "analyze query")), nil
		}
		return jsonResult(report)
	}
}

func recommendIndexesHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		report, err := analysis.RecommendIndexes(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "recommend indexes")), nil
		}
		return jsonResult(report)
	}
}

func suggestRewriteHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		report, err := analysis.SuggestRewrite(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "suggest rewrite")), nil
		}
		return jsonResult(report)
	}
}

// validationResult is the validate_query payload.
type validationResult struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

func validateQueryHandler(analysis *service.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, _ := request.GetArguments()["sql"].(string)

		err := analysis.Validate(sql)
		return jsonResult(validationResult{
			Valid:   err == nil,
			Reasons: domain.Reasons(err),
		})
	}
}

func listTablesHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := analysis.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list tables")), nil
		}
		return jsonResult(tables)
	}
}

func analyzeStructureHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := analysis.AnalyzeStructure(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "analyze database structure")), nil
		}
		return jsonResult(report)
	}
}

func describeTableHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, err := analysis.DescribeTables(ctx, []string{tableName})
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "describe table")), nil
		}
		md, _ := schema.Lookup(tableName)
		return jsonResult(md)
	}
}

func slowQueriesHandler(workload *service.WorkloadService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		minMS := request.GetFloat("min_execution_time_ms", defaultMinExecutionMS)
		if minMS < 0 {
			return mcp.NewToolResultError("min_execution_time_ms must not be negative"), nil
		}
		limit := request.GetInt("limit", defaultSlowQueryLimit)
		if limit <= 0 {
			return mcp.NewToolResultError("limit must be positive"), nil
		}
		limit = min(limit, maxSlowQueryLimit)

		report, err := workload.SlowQueries(ctx, minMS, limit)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "get slow queries")), nil
		}
		return jsonResult(report)
	}
}

func showSettingsHandler(workload *service.WorkloadService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pattern := request.GetString("pattern", "")

		settings, err := workload.Settings(ctx, pattern)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "show settings")), nil
		}
		return jsonResult(settings)
	}
}

func bufferPoolHandler(workload *service.WorkloadService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := workload.BufferPool(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "analyze buffer pool")), nil
		}
		return jsonResult(report)
	}
}

func fragmentationHandler(workload *service.WorkloadService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := workload.Fragmentation(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "analyze table fragmentation")), nil
		}
		return jsonResult(report)
	}
}

func executeQueryHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "execute_read_only_query")
		ctx = service.WithSessionID(ctx, sessionID(ctx))

		if explain, _ := request.GetArguments()["explain"].(bool); explain && !sqltext.IsExplain(sql) {
			plan, err := query.Explain(ctx, sql)
			if err != nil {
				return mcp.NewToolResultError(sanitizeError(logger, err, "explain")), nil
			}
			return jsonResult(plan)
		}

		results, err := query.Execute(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "query")), nil
		}
		return jsonResult(results)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// sanitizeError turns err into a message safe to return to the client.
// Validation, not-found and unsupported errors are returned as is. Timeouts
// get a fixed message. Anything else is logged and replaced by a generic one.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	if domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnsupported) {
		return err.Error()
	}

	if isTimeout(err) {
		return "query timed out"
	}

	logger.Error("tool error",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("internal error during %s; check server logs for details", op)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57014" {
		return true
	}
	return mysqladapter.IsTimeout(err)
}
