package domain

import (
	"errors"
	"strings"
	"unicode"
)

var readOnlyPrefixes = []string{"SELECT", "SHOW", "EXPLAIN", "DESC", "DESCRIBE"}

// Checked in this order; a query citing several gets one violation each.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE",
	"GRANT", "REVOKE", "RESET", "LOAD", "OPTIMIZE", "REPAIR", "FLUSH",
}

// Violation is one broken read-only rule. It unwraps to the rule's sentinel.
type Violation struct {
	Rule   error  `json:"-"`
	Reason string `json:"reason"`
}

func (v *Violation) Error() string { return v.Reason }
func (v *Violation) Unwrap() error { return v.Rule }

// ReadOnlyValidator is a lexical gate that rejects anything but a single
// read-only statement. It looks at the raw text, so a forbidden word inside a
// string literal or comment is rejected too.
type ReadOnlyValidator struct{}

func NewReadOnlyValidator() *ReadOnlyValidator {
	return &ReadOnlyValidator{}
}

// Check returns every rule sql violates, or nil when it passes.
func (v *ReadOnlyValidator) Check(sql string) []*Violation {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return []*Violation{{Rule: ErrEmptyQuery, Reason: "The query is empty."}}
	}

	words := strings.FieldsFunc(strings.ToUpper(trimmed), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})

	var out []*Violation
	if !startsReadOnly(trimmed, words) {
		out = append(out, &Violation{
			Rule:   ErrNotReadOnly,
			Reason: "Only SELECT, SHOW, EXPLAIN, and DESCRIBE queries are allowed in read-only mode.",
		})
	}

	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	for _, kw := range forbiddenKeywords {
		if seen[kw] {
			out = append(out, &Violation{
				Rule:   ErrForbiddenKeyword,
				Reason: "The query contains a potentially dangerous operation: " + kw,
			})
		}
	}

	if strings.Contains(trimmed[:len(trimmed)-1], ";") {
		out = append(out, &Violation{
			Rule:   ErrMultiStatement,
			Reason: "Multi-statement queries are not allowed.",
		})
	}
	return out
}

// Validate joins every violation into one error. errors.Is matches each
// violated rule's sentinel.
func (v *ReadOnlyValidator) Validate(sql string) error {
	violations := v.Check(sql)
	if len(violations) == 0 {
		return nil
	}
	errs := make([]error, len(violations))
	for i, vi := range violations {
		errs[i] = vi
	}
	return errors.Join(errs...)
}

// Reasons flattens a validation error into its human-readable reasons.
// Errors without a Violation inside are reported by their message.
func Reasons(err error) []string {
	if err == nil {
		return nil
	}
	var v *Violation
	if !errors.As(err, &v) {
		return []string{err.Error()}
	}
	if err == error(v) {
		return []string{v.Reason}
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, Reasons(e)...)
		}
		return out
	}
	return Reasons(errors.Unwrap(err))
}

func startsReadOnly(trimmed string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	// The first word must open the text; "(SELECT" or "'x' SELECT" do not count.
	if !strings.HasPrefix(strings.ToUpper(trimmed), words[0]) {
		return false
	}
	for _, p := range readOnlyPrefixes {
		if words[0] == p {
			return true
		}
	}
	return false
}
