package domain

import (
	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// Issue names a known inefficient query construct.
type Issue string

const (
	IssueSelectStar           Issue = "SELECT *"
	IssueLeadingWildcard      Issue = "LIKE with Leading Wildcard"
	IssueFunctionOnColumn     Issue = "Function on Indexed Column"
	IssueOrConditions         Issue = "OR Conditions"
	IssueImplicitConversion   Issue = "Implicit Type Conversion"
	IssueNotInOrNotExists     Issue = "NOT IN or NOT EXISTS"
	IssueHavingWithoutGroupBy Issue = "HAVING without GROUP BY"
	IssueOrderByRand          Issue = "ORDER BY RAND()"
)

// Issues lists every detectable issue in report order.
var Issues = []Issue{
	IssueSelectStar,
	IssueLeadingWildcard,
	IssueFunctionOnColumn,
	IssueOrConditions,
	IssueImplicitConversion,
	IssueNotInOrNotExists,
	IssueHavingWithoutGroupBy,
	IssueOrderByRand,
}

// Valid reports whether i is a known issue.
func (i Issue) Valid() bool {
	_, ok := antiPatternCatalog[i]
	return ok
}

// AntiPatternFinding describes one detected construct with static guidance.
type AntiPatternFinding struct {
	Issue       Issue  `json:"issue"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	Example     string `json:"example"`
}

var antiPatternCatalog = map[Issue]AntiPatternFinding{
	IssueSelectStar: {
		Description: "SELECT * reads every column, including ones the caller never uses.",
		Suggestion:  "List only the columns you need.",
		Example:     "SELECT id, name, email FROM users WHERE active = 1",
	},
	IssueLeadingWildcard: {
		Description: "A LIKE pattern that starts with % cannot use a B-tree index.",
		Suggestion:  "Anchor the pattern at the start, or use a full-text index for substring search.",
		Example: "SELECT * FROM products WHERE name LIKE 'apple%' -- can use an index\n" +
			"SELECT * FROM products WHERE name LIKE '%apple' -- scans",
	},
	IssueFunctionOnColumn: {
		Description: "Wrapping a column in a function inside WHERE or JOIN conditions prevents index lookups on that column.",
		Suggestion:  "Rewrite the condition so the bare column is compared against a computed value.",
		Example: "SELECT * FROM users WHERE YEAR(created_at) = 2023 -- scans\n" +
			"SELECT * FROM users WHERE created_at >= '2023-01-01' AND created_at < '2024-01-01' -- range on index",
	},
	IssueOrConditions: {
		Description: "OR between conditions on different columns often prevents a single index from serving the query.",
		Suggestion:  "Make sure every OR branch is indexed, or split the query with UNION ALL.",
		Example: "SELECT * FROM users WHERE last_name = 'Smith' OR first_name = 'John'\n" +
			"SELECT * FROM users WHERE last_name = 'Smith' UNION ALL SELECT * FROM users WHERE first_name = 'John' AND last_name <> 'Smith'",
	},
	IssueImplicitConversion: {
		Description: "Comparing a column with a quoted number forces a type conversion that can disable index use.",
		Suggestion:  "Compare values of the column's own type.",
		Example: "SELECT * FROM users WHERE id = '123' -- string literal against a numeric column\n" +
			"SELECT * FROM users WHERE id = 123",
	},
	IssueNotInOrNotExists: {
		Description: "NOT IN and NOT EXISTS against large subqueries can be slow, and NOT IN behaves surprisingly with NULLs.",
		Suggestion:  "Consider an anti-join: LEFT JOIN ... WHERE right.key IS NULL.",
		Example: "SELECT * FROM users WHERE id NOT IN (SELECT user_id FROM orders)\n" +
			"SELECT u.* FROM users u LEFT JOIN orders o ON u.id = o.user_id WHERE o.user_id IS NULL",
	},
	IssueHavingWithoutGroupBy: {
		Description: "HAVING without GROUP BY treats the whole result as a single group.",
		Suggestion:  "Add the intended GROUP BY, or move row filters to WHERE.",
		Example: "SELECT user_id, COUNT(*) FROM orders HAVING COUNT(*) > 5 -- no grouping\n" +
			"SELECT user_id, COUNT(*) FROM orders GROUP BY user_id HAVING COUNT(*) > 5",
	},
	IssueOrderByRand: {
		Description: "ORDER BY RAND() generates a random value for every row and sorts the entire result.",
		Suggestion:  "Pick random keys in application code, or seek from a random key value.",
		Example: "SELECT * FROM products ORDER BY RAND() LIMIT 5 -- sorts every row\n" +
			"SELECT * FROM products WHERE id >= (SELECT FLOOR(RAND() * (SELECT MAX(id) FROM products))) ORDER BY id LIMIT 5",
	},
}

// FindingFor returns the catalog entry for issue.
func FindingFor(issue Issue) AntiPatternFinding {
	f := antiPatternCatalog[issue]
	f.Issue = issue
	return f
}

// DetectorOption configures an AntiPatternDetector.
type DetectorOption func(*AntiPatternDetector)

// WithDisabledIssues turns off the given rules.
func WithDisabledIssues(issues ...Issue) DetectorOption {
	return func(d *AntiPatternDetector) {
		for _, i := range issues {
			d.disabled[i] = true
		}
	}
}

// AntiPatternDetector scans query text for known inefficient constructs.
// It holds no per-query state and is safe for concurrent use.
type AntiPatternDetector struct {
	disabled map[Issue]bool
}

func NewAntiPatternDetector(opts ...DetectorOption) *AntiPatternDetector {
	d := &AntiPatternDetector{disabled: make(map[Issue]bool)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type detectFunc func(tokens []sqltext.Token) bool

var detectors = map[Issue]detectFunc{
	IssueSelectStar:           hasSelectStar,
	IssueLeadingWildcard:      hasLeadingWildcard,
	IssueFunctionOnColumn:     hasFunctionOnColumn,
	IssueOrConditions:         hasWhereOr,
	IssueImplicitConversion:   hasQuotedNumberComparison,
	IssueNotInOrNotExists:     hasNotInOrExists,
	IssueHavingWithoutGroupBy: hasHavingWithoutGroupBy,
	IssueOrderByRand:          hasOrderByRand,
}

// Detect returns at most one finding per enabled issue, in catalog order.
func (d *AntiPatternDetector) Detect(sql string) []AntiPatternFinding {
	return d.detectTokens(sqltext.Tokenize(sql))
}

func (d *AntiPatternDetector) detectTokens(tokens []sqltext.Token) []AntiPatternFinding {
	findings := []AntiPatternFinding{}
	for _, issue := range Issues {
		if d.disabled[issue] {
			continue
		}
		if detectors[issue](tokens) {
			findings = append(findings, FindingFor(issue))
		}
	}
	return findings
}

func at(tokens []sqltext.Token, i int) sqltext.Token {
	if i < 0 || i >= len(tokens) {
		return sqltext.Token{Kind: -1}
	}
	return tokens[i]
}

func hasSelectStar(tokens []sqltext.Token) bool {
	for i, tok := range tokens {
		if !tok.Is("SELECT") {
			continue
		}
		j := i + 1
		for at(tokens, j).Is("DISTINCT") || at(tokens, j).Is("ALL") {
			j++
		}
		if at(tokens, j).Kind == sqltext.Star {
			return true
		}
	}
	return false
}

func hasLeadingWildcard(tokens []sqltext.Token) bool {
	for i, tok := range tokens {
		if !tok.Is("LIKE") && !tok.Is("ILIKE") {
			continue
		}
		next := at(tokens, i+1)
		if next.Kind == sqltext.String && len(next.Value) > 0 && next.Value[0] == '%' {
			return true
		}
	}
	return false
}

// predicateStarters open a position where a new predicate operand can begin.
var predicateStarters = map[string]bool{"WHERE": true, "ON": true, "AND": true, "OR": true, "NOT": true}

var comparisonFollowers = map[string]bool{"LIKE": true, "ILIKE": true, "IN": true, "BETWEEN": true, "IS": true, "NOT": true, "REGEXP": true}

func hasFunctionOnColumn(tokens []sqltext.Token) bool {
	for _, span := range conditionSpans(tokens) {
		for i := span.start; i < span.end; i++ {
			prev := at(tokens, i-1)
			if i != span.start && !(prev.Kind == sqltext.Word && predicateStarters[prev.Upper]) && prev.Kind != sqltext.LParen {
				continue
			}
			if wrapsColumn(tokens, i) {
				return true
			}
		}
	}
	return false
}

// wrapsColumn reports whether tokens[i] starts `fn(... column ...) <comparison>`.
func wrapsColumn(tokens []sqltext.Token, i int) bool {
	fn := at(tokens, i)
	if fn.Kind != sqltext.Word || !fn.IsIdent() || at(tokens, i+1).Kind != sqltext.LParen {
		return false
	}
	depth := fn.Depth
	column := false
	j := i + 2
	for ; j < len(tokens); j++ {
		tok := tokens[j]
		if tok.Kind == sqltext.RParen && tok.Depth == depth {
			break
		}
		if tok.IsIdent() && at(tokens, j+1).Kind != sqltext.LParen && !at(tokens, j-1).Is("AS") {
			column = true
		}
	}
	if !column || j >= len(tokens) {
		return false
	}
	next := at(tokens, j+1)
	return next.Kind == sqltext.Operator || (next.Kind == sqltext.Word && comparisonFollowers[next.Upper])
}

type condSpan struct{ start, end int }

// conditionSpans returns the token ranges of every WHERE and ON condition.
func conditionSpans(tokens []sqltext.Token) []condSpan {
	var spans []condSpan
	for i, tok := range tokens {
		switch {
		case tok.Is("WHERE"):
			spans = append(spans, condSpan{i + 1, sqltext.ClauseEnd(tokens, i)})
		case tok.Is("ON"):
			spans = append(spans, condSpan{i + 1, onEnd(tokens, i)})
		}
	}
	return spans
}

func onEnd(tokens []sqltext.Token, start int) int {
	end := sqltext.ClauseEnd(tokens, start)
	depth := tokens[start].Depth
	for i := start + 1; i < end; i++ {
		tok := tokens[i]
		if tok.Depth != depth {
			continue
		}
		if tok.Is("JOIN") || tok.Is("STRAIGHT_JOIN") || tok.Kind == sqltext.Comma {
			return i
		}
		if (tok.Is("LEFT") || tok.Is("RIGHT") || tok.Is("INNER") || tok.Is("CROSS") ||
			tok.Is("FULL") || tok.Is("NATURAL")) && at(tokens, i+1).Kind != sqltext.LParen {
			return i
		}
	}
	return end
}

func hasWhereOr(tokens []sqltext.Token) bool {
	for i, tok := range tokens {
		if !tok.Is("WHERE") {
			continue
		}
		end := sqltext.ClauseEnd(tokens, i)
		if sqltext.CountTopLevel(tokens[i+1:end], tok.Depth, "OR") > 0 {
			return true
		}
	}
	return false
}

func hasQuotedNumberComparison(tokens []sqltext.Token) bool {
	for i, tok := range tokens {
		if tok.Kind != sqltext.Operator || !isComparison(tok.Value) {
			continue
		}
		left, right := at(tokens, i-1), at(tokens, i+1)
		if left.IsIdent() && right.Kind == sqltext.String && isNumeric(right.Value) {
			return true
		}
		if right.IsIdent() && at(tokens, i+2).Kind != sqltext.LParen && left.Kind == sqltext.String && isNumeric(left.Value) {
			return true
		}
	}
	return false
}

func isComparison(op string) bool {
	switch op {
	case "=", "<>", "!=", "<", ">", "<=", ">=", "<=>":
		return true
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	digits, dot := 0, false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

func hasNotInOrExists(tokens []sqltext.Token) bool {
	for i, tok := range tokens {
		if tok.Is("NOT") && (at(tokens, i+1).Is("IN") || at(tokens, i+1).Is("EXISTS")) {
			return true
		}
	}
	return false
}

func hasHavingWithoutGroupBy(tokens []sqltext.Token) bool {
	for i, tok := range tokens {
		if !tok.Is("HAVING") {
			continue
		}
		grouped := false
		for j := i - 1; j >= 0; j-- {
			prev := tokens[j]
			if prev.Depth < tok.Depth || (prev.Depth == tok.Depth && prev.Is("SELECT")) {
				break
			}
			if prev.Depth == tok.Depth && prev.Is("GROUP") && at(tokens, j+1).Is("BY") {
				grouped = true
				break
			}
		}
		if !grouped {
			return true
		}
	}
	return false
}

func hasOrderByRand(tokens []sqltext.Token) bool {
	for i, tok := range tokens {
		if !tok.Is("ORDER") || !at(tokens, i+1).Is("BY") {
			continue
		}
		end := sqltext.ClauseEnd(tokens, i)
		for j := i + 2; j < end; j++ {
			cur := tokens[j]
			if cur.Depth == tok.Depth && (cur.Is("RAND") || cur.Is("RANDOM")) && at(tokens, j+1).Kind == sqltext.LParen {
				return true
			}
		}
	}
	return false
}
