package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/querylens/querylens/internal/adapter/policy"
	"github.com/querylens/querylens/internal/adapter/snapshot"
	"github.com/querylens/querylens/internal/config"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/core/service"
	"github.com/spf13/cobra"
)

type analyzeReport struct {
	Analysis *service.QueryAnalysis `json:"analysis"`
	Indexes  *service.IndexAnalysis `json:"indexes,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		schemaFile string
		policyFile string
		dialect    string
		compact    bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [flags] [sql-file]",
		Short: "Analyze a query offline and print a JSON report",
		Long: `Analyze reads one SQL statement from a file, or from stdin when the
file is omitted or "-", and prints anti-patterns and complexity. With
--schema, index candidates are matched against the tables in a YAML
schema snapshot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, args)
			if err != nil {
				return err
			}
			d, err := parseDialectFlag(dialect)
			if err != nil {
				return err
			}

			analyzer := domain.NewDefaultAnalyzer()
			if policyFile != "" {
				pol, err := policy.LoadFromFile(policyFile)
				if err != nil {
					return fmt.Errorf("loading policy: %w", err)
				}
				analyzer = pol.Analysis.Analyzer()
			}

			var metadata port.MetadataReader
			if schemaFile != "" {
				r, err := snapshot.LoadFile(schemaFile)
				if err != nil {
					return err
				}
				metadata = r
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			svc := service.NewAnalysisService(validatorFor(d), analyzer, metadata, nil, logger, nil, nil)

			report := analyzeReport{}
			report.Analysis, err = svc.AnalyzeQuery(cmd.Context(), sql)
			if err != nil {
				return rejected(cmd, err)
			}
			if metadata != nil {
				report.Indexes, err = svc.RecommendIndexes(cmd.Context(), sql)
				if err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "YAML schema snapshot for index matching")
	cmd.Flags().StringVarP(&policyFile, "policy", "p", "", "policy YAML with disabled rules and thresholds")
	cmd.Flags().StringVarP(&dialect, "dialect", "d", string(config.DialectMySQL), "SQL dialect: mysql, postgresql or sqlite")
	cmd.Flags().BoolVar(&compact, "compact", false, "print the report on one line")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:   "validate [flags] [sql-file]",
		Short: "Check that a query passes the read-only gate",
		Long: `Validate reads one SQL statement from a file or stdin and reports
whether the server would accept it. Each broken rule is printed on its own
line and the command exits non-zero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, args)
			if err != nil {
				return err
			}
			d, err := parseDialectFlag(dialect)
			if err != nil {
				return err
			}
			if err := validatorFor(d).Validate(sql); err != nil {
				return rejected(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&dialect, "dialect", "d", string(config.DialectMySQL), "SQL dialect: mysql, postgresql or sqlite")
	return cmd
}

// readSQL returns the statement from the file argument or stdin.
func readSQL(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("reading SQL: %w", err)
	}
	sql := strings.TrimSpace(string(data))
	if sql == "" {
		return "", domain.ErrEmptyQuery
	}
	return sql, nil
}

func parseDialectFlag(s string) (config.Dialect, error) {
	switch strings.ToLower(s) {
	case "mysql":
		return config.DialectMySQL, nil
	case "postgres", "postgresql":
		return config.DialectPostgres, nil
	case "sqlite":
		return config.DialectSQLite, nil
	}
	return "", fmt.Errorf("invalid --dialect %q: must be mysql, postgresql or sqlite", s)
}

// rejected prints validation reasons and returns a short error.
func rejected(cmd *cobra.Command, err error) error {
	if !domain.IsValidation(err) {
		return err
	}
	for _, reason := range domain.Reasons(err) {
		fmt.Fprintln(cmd.OutOrStdout(), reason)
	}
	return fmt.Errorf("query rejected: %w", err)
}
