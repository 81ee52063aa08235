package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrEmptyQuery       = errors.New("empty query")
	ErrNotReadOnly      = errors.New("statement is not read-only")
	ErrForbiddenKeyword = errors.New("forbidden keyword")
	ErrMultiStatement   = errors.New("multiple statements are not allowed")
	ErrNotAllowed       = errors.New("only SELECT queries are allowed")
	ErrParseFailed      = errors.New("failed to parse SQL")
	ErrNotFound         = errors.New("not found")
	ErrUnsupported      = errors.New("not supported by this database")
)

// IsValidation reports whether err is a rejection produced by a validator,
// as opposed to an infrastructure failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyQuery, ErrNotReadOnly, ErrForbiddenKeyword,
		ErrMultiStatement, ErrNotAllowed, ErrParseFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PgQueryValidator validates SQL statements using PostgreSQL's actual parser.
// Only SELECT and EXPLAIN statements are permitted.
type PgQueryValidator struct{}

func NewPgQueryValidator() *PgQueryValidator {
	return &PgQueryValidator{}
}

// Validate parses the SQL and rejects anything that isn't a single SELECT statement.
func (v *PgQueryValidator) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	switch len(tree.Stmts) {
	case 0:
		return ErrEmptyQuery
	case 1:
	default:
		return ErrMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return ErrEmptyQuery
	}

	switch stmt.Node.(type) {
	case *pg_query.Node_SelectStmt, *pg_query.Node_ExplainStmt:
		return nil
	default:
		return ErrNotAllowed
	}
}

// Validator is satisfied by every validator in this package.
type Validator interface {
	Validate(sql string) error
}

// ChainValidator runs validators in order and stops at the first rejection.
type ChainValidator struct {
	validators []Validator
}

func NewChainValidator(validators ...Validator) *ChainValidator {
	return &ChainValidator{validators: validators}
}

func (c *ChainValidator) Validate(sql string) error {
	for _, v := range c.validators {
		if err := v.Validate(sql); err != nil {
			return err
		}
	}
	return nil
}
