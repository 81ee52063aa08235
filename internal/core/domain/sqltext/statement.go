package sqltext

import "strings"

// Table is one FROM or JOIN item. Schema qualifiers are dropped and the alias
// defaults to the table name.
type Table struct {
	Name  string
	Alias string
}

// ColumnRef is a possibly qualified column reference.
type ColumnRef struct {
	Qualifier string
	Column    string
}

func (c ColumnRef) String() string {
	if c.Qualifier == "" {
		return c.Column
	}
	return c.Qualifier + "." + c.Column
}

// Join is a table brought in with a JOIN keyword.
type Join struct {
	Kind  string // e.g. "JOIN", "LEFT OUTER JOIN", "STRAIGHT_JOIN"
	Table Table
	On    []Token
	Using []string
}

// SelectItem is one entry of the select list. Column is set when the
// expression is a bare column reference; Alias when one is given.
type SelectItem struct {
	Column string
	Alias  string
}

// Statement is the clause tree of the outermost SELECT. Clause slices hold the
// tokens following the clause keyword(s); tokens inside parentheses are kept
// as is. Depth is the nesting level of the SELECT's own clauses.
type Statement struct {
	Tokens     []Token
	Depth      int
	SelectList []Token
	From       []Token
	Where      []Token
	GroupBy    []Token
	Having     []Token
	OrderBy    []Token
	Limit      []Token

	Tables []Table
	Joins  []Join
}

type clause int

const (
	clauseNone clause = iota
	clauseSelect
	clauseFrom
	clauseWhere
	clauseGroupBy
	clauseHaving
	clauseOrderBy
	clauseLimit
	clauseOther
)

// Parse tokenizes sql and builds the clause tree. Text without a SELECT yields
// a Statement with no clauses.
func Parse(sql string) *Statement {
	return ParseTokens(Tokenize(sql))
}

// ParseTokens builds the clause tree from an existing token stream.
func ParseTokens(tokens []Token) *Statement {
	stmt := &Statement{Tokens: tokens}

	sel := -1
	for i, tok := range tokens {
		if tok.Is("SELECT") && (sel < 0 || tok.Depth < tokens[sel].Depth) {
			sel = i
			if tok.Depth == 0 {
				break
			}
		}
	}
	if sel < 0 {
		return stmt
	}
	stmt.Depth = tokens[sel].Depth
	stmt.segment(tokens[sel+1:])
	stmt.Tables, stmt.Joins = parseFrom(stmt.From, stmt.Depth)
	return stmt
}

func (s *Statement) segment(tokens []Token) {
	current := clauseSelect
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Depth < s.Depth {
			return
		}
		if tok.Depth == s.Depth {
			next, skip, stop := clauseKeyword(tokens, i)
			if stop {
				return
			}
			if next != clauseNone {
				current = next
				i += skip
				continue
			}
		}
		switch current {
		case clauseSelect:
			s.SelectList = append(s.SelectList, tok)
		case clauseFrom:
			s.From = append(s.From, tok)
		case clauseWhere:
			s.Where = append(s.Where, tok)
		case clauseGroupBy:
			s.GroupBy = append(s.GroupBy, tok)
		case clauseHaving:
			s.Having = append(s.Having, tok)
		case clauseOrderBy:
			s.OrderBy = append(s.OrderBy, tok)
		case clauseLimit:
			s.Limit = append(s.Limit, tok)
		}
	}
}

// clauseKeyword reports the clause started at tokens[i], how many extra tokens
// the keyword spans, and whether the statement ends there.
func clauseKeyword(tokens []Token, i int) (clause, int, bool) {
	tok := tokens[i]
	switch tok.Kind {
	case Semicolon:
		return clauseNone, 0, true
	case RParen:
		return clauseNone, 0, false
	case Word:
	default:
		return clauseNone, 0, false
	}
	switch tok.Upper {
	case "FROM":
		return clauseFrom, 0, false
	case "WHERE":
		return clauseWhere, 0, false
	case "GROUP":
		if followedBy(tokens, i, "BY") {
			return clauseGroupBy, 1, false
		}
	case "HAVING":
		return clauseHaving, 0, false
	case "ORDER":
		if followedBy(tokens, i, "BY") {
			return clauseOrderBy, 1, false
		}
	case "LIMIT", "OFFSET", "FETCH":
		return clauseLimit, 0, false
	case "WINDOW", "INTO", "LOCK", "PROCEDURE", "QUALIFY":
		return clauseOther, 0, false
	case "FOR":
		if followedBy(tokens, i, "UPDATE") || followedBy(tokens, i, "SHARE") {
			return clauseOther, 0, false
		}
	case "UNION", "EXCEPT", "INTERSECT":
		return clauseNone, 0, true
	}
	return clauseNone, 0, false
}

func followedBy(tokens []Token, i int, keyword string) bool {
	return i+1 < len(tokens) && tokens[i+1].Is(keyword)
}

// ClauseEnd returns the index one past the last token of the clause whose
// keyword sits at tokens[start]. The clause ends at the next clause keyword on
// the same level, at a closing parenthesis of the enclosing level or at the end.
func ClauseEnd(tokens []Token, start int) int {
	depth := tokens[start].Depth
	for i := start + 1; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Depth < depth {
			return i
		}
		if tok.Depth != depth {
			continue
		}
		next, _, stop := clauseKeyword(tokens, i)
		if stop || next != clauseNone {
			return i
		}
	}
	return len(tokens)
}

var joinWords = map[string]bool{
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"OUTER": true, "CROSS": true, "NATURAL": true,
}

type fromItem struct {
	join   string
	tokens []Token
}

func parseFrom(tokens []Token, depth int) ([]Table, []Join) {
	var items []fromItem
	current := fromItem{}
	var pending []string

	flush := func(join string) {
		if len(current.tokens) > 0 || current.join != "" {
			items = append(items, current)
		}
		current = fromItem{join: join}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Depth == depth {
			switch {
			case tok.Kind == Comma:
				pending = nil
				flush("")
				continue
			case tok.Is("JOIN") || tok.Is("STRAIGHT_JOIN"):
				kind := strings.Join(append(pending, tok.Upper), " ")
				pending = nil
				flush(kind)
				continue
			case tok.Kind == Word && joinWords[tok.Upper] && !(i+1 < len(tokens) && tokens[i+1].Kind == LParen):
				pending = append(pending, tok.Upper)
				continue
			}
		}
		current.tokens = append(current.tokens, tok)
	}
	flush("")

	var tables []Table
	var joins []Join
	for _, item := range items {
		table, on, using, ok := parseTableItem(item.tokens, depth)
		if item.join != "" {
			j := Join{Kind: item.join, Table: table, On: on, Using: using}
			if ok {
				joins = append(joins, j)
			}
		}
		if ok {
			tables = append(tables, table)
		}
	}
	return tables, joins
}

// parseTableItem reads `name [[AS] alias] [index hints] [ON ... | USING (...)]`.
// Derived tables report ok=false.
func parseTableItem(tokens []Token, depth int) (Table, []Token, []string, bool) {
	var on []Token
	var using []string
	body := tokens
	for i, tok := range tokens {
		if tok.Depth != depth {
			continue
		}
		if tok.Is("ON") {
			body, on = tokens[:i], tokens[i+1:]
			break
		}
		if tok.Is("USING") {
			body = tokens[:i]
			using = identList(tokens[i+1:], depth+1)
			break
		}
	}

	for len(body) > 0 && (body[0].Is("ONLY") || body[0].Is("LATERAL")) {
		body = body[1:]
	}
	if len(body) == 0 || !body[0].IsIdent() {
		return Table{}, on, using, false
	}

	pos := 0
	name := body[0].Name()
	for pos+2 < len(body) && body[pos+1].Kind == Dot && body[pos+2].IsIdent() {
		pos += 2
		name = body[pos].Name()
	}
	pos++

	alias := name
	if pos < len(body) && body[pos].Is("AS") {
		pos++
	}
	if pos < len(body) && body[pos].IsIdent() && body[pos].Depth == depth {
		alias = body[pos].Name()
	}
	return Table{Name: name, Alias: alias}, on, using, true
}

func identList(tokens []Token, depth int) []string {
	var out []string
	for _, tok := range tokens {
		if tok.Depth == depth && tok.IsIdent() {
			out = append(out, tok.Name())
		}
	}
	return out
}

// Predicate is a run of tokens whose top level sits at Depth.
type Predicate struct {
	Tokens []Token
	Depth  int
}

func (p Predicate) String() string {
	return Text(p.Tokens)
}

// SplitConjuncts splits a predicate on AND at the given depth. The AND of a
// BETWEEN range is not a separator. A conjunct fully wrapped in parentheses
// with no OR at its own level is unwrapped and split again.
func SplitConjuncts(tokens []Token, depth int) []Predicate {
	var out []Predicate
	start := 0
	between := false
	emit := func(part []Token) {
		if len(part) == 0 {
			return
		}
		if inner, ok := unwrap(part, depth); ok && !hasTopLevel(inner, depth+1, "OR") {
			out = append(out, SplitConjuncts(inner, depth+1)...)
			return
		}
		out = append(out, Predicate{Tokens: part, Depth: depth})
	}
	for i, tok := range tokens {
		if tok.Depth != depth {
			continue
		}
		if tok.Is("BETWEEN") {
			between = true
			continue
		}
		if tok.Is("AND") {
			if between {
				between = false
				continue
			}
			emit(tokens[start:i])
			start = i + 1
		}
	}
	emit(tokens[start:])
	return out
}

func unwrap(tokens []Token, depth int) ([]Token, bool) {
	if len(tokens) < 2 || tokens[0].Kind != LParen || tokens[0].Depth != depth {
		return nil, false
	}
	last := tokens[len(tokens)-1]
	if last.Kind != RParen || last.Depth != depth {
		return nil, false
	}
	for _, tok := range tokens[1 : len(tokens)-1] {
		if tok.Depth == depth {
			return nil, false
		}
	}
	return tokens[1 : len(tokens)-1], true
}

func hasTopLevel(tokens []Token, depth int, keyword string) bool {
	for _, tok := range tokens {
		if tok.Depth == depth && tok.Is(keyword) {
			return true
		}
	}
	return false
}

// CountTopLevel counts occurrences of keyword at the given depth.
func CountTopLevel(tokens []Token, depth int, keyword string) int {
	n := 0
	for _, tok := range tokens {
		if tok.Depth == depth && tok.Is(keyword) {
			n++
		}
	}
	return n
}

// EqualityColumn returns the column on the left of the first top-level `=`
// whose left operand is a plain column reference.
func EqualityColumn(pred []Token, depth int) (ColumnRef, bool) {
	for i, tok := range pred {
		if tok.Depth != depth || tok.Kind != Operator || tok.Value != "=" {
			continue
		}
		if ref, ok := columnEndingAt(pred, i-1); ok {
			return ref, true
		}
	}
	return ColumnRef{}, false
}

// EqualityPair returns both sides of the first top-level `col = col` in pred.
func EqualityPair(pred []Token, depth int) (ColumnRef, ColumnRef, bool) {
	for i, tok := range pred {
		if tok.Depth != depth || tok.Kind != Operator || tok.Value != "=" {
			continue
		}
		left, ok := columnEndingAt(pred, i-1)
		if !ok {
			continue
		}
		right, ok := columnStartingAt(pred, i+1)
		if !ok {
			continue
		}
		return left, right, true
	}
	return ColumnRef{}, ColumnRef{}, false
}

func columnEndingAt(tokens []Token, end int) (ColumnRef, bool) {
	if end < 0 || !tokens[end].IsIdent() {
		return ColumnRef{}, false
	}
	ref := ColumnRef{Column: tokens[end].Name()}
	if end >= 2 && tokens[end-1].Kind == Dot && tokens[end-2].IsIdent() {
		ref.Qualifier = tokens[end-2].Name()
	}
	return ref, true
}

func columnStartingAt(tokens []Token, start int) (ColumnRef, bool) {
	if start >= len(tokens) || !tokens[start].IsIdent() {
		return ColumnRef{}, false
	}
	end := start
	for end+2 < len(tokens) && tokens[end+1].Kind == Dot && tokens[end+2].IsIdent() {
		end += 2
	}
	if end+1 < len(tokens) && tokens[end+1].Kind == LParen {
		return ColumnRef{}, false
	}
	return columnEndingAt(tokens, end)
}

// SplitList splits tokens on commas at the given depth.
func SplitList(tokens []Token, depth int) [][]Token {
	var out [][]Token
	start := 0
	for i, tok := range tokens {
		if tok.Depth == depth && tok.Kind == Comma {
			if i > start {
				out = append(out, tokens[start:i])
			}
			start = i + 1
		}
	}
	if start < len(tokens) {
		out = append(out, tokens[start:])
	}
	return out
}

// SortColumns reads an ORDER BY or GROUP BY list. Direction and null-ordering
// modifiers are stripped; items that are not plain column references
// (expressions, function calls, ordinals) are skipped.
func SortColumns(tokens []Token, depth int) []ColumnRef {
	var refs []ColumnRef
	for _, item := range SplitList(tokens, depth) {
		item = trimSortModifiers(item)
		ref, ok := columnStartingAt(item, 0)
		if !ok || columnLen(item) != len(item) {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func trimSortModifiers(item []Token) []Token {
	for i, tok := range item {
		if tok.Is("WITH") && i+1 < len(item) && item[i+1].Is("ROLLUP") {
			item = item[:i]
			break
		}
	}
	for len(item) > 0 {
		last := item[len(item)-1]
		switch {
		case last.Is("ASC") || last.Is("DESC"):
			item = item[:len(item)-1]
		case (last.Is("FIRST") || last.Is("LAST")) && len(item) >= 2 && item[len(item)-2].Is("NULLS"):
			item = item[:len(item)-2]
		default:
			return item
		}
	}
	return item
}

// SelectItems reads the select list into column/alias pairs.
func (s *Statement) SelectItems() []SelectItem {
	var out []SelectItem
	for _, item := range SplitList(s.SelectList, s.Depth) {
		for len(item) > 0 && (item[0].Is("DISTINCT") || item[0].Is("ALL")) {
			item = item[1:]
		}
		if len(item) == 0 {
			continue
		}
		var si SelectItem
		expr := item
		n := len(item)
		switch {
		case n >= 3 && item[n-2].Is("AS") && item[n-1].IsIdent():
			si.Alias = item[n-1].Name()
			expr = item[:n-2]
		case n >= 2 && item[n-1].IsIdent() && item[n-1].Depth == s.Depth && endsOperand(item[n-2]):
			si.Alias = item[n-1].Name()
			expr = item[:n-1]
		}
		if ref, ok := columnStartingAt(expr, 0); ok && columnLen(expr) == len(expr) {
			si.Column = ref.Column
		}
		out = append(out, si)
	}
	return out
}

func endsOperand(tok Token) bool {
	switch tok.Kind {
	case QuotedIdent, String, Number, RParen, Placeholder:
		return true
	case Word:
		return tok.IsIdent()
	}
	return false
}

func columnLen(tokens []Token) int {
	end := 0
	for end+2 < len(tokens) && tokens[end+1].Kind == Dot && tokens[end+2].IsIdent() {
		end += 2
	}
	return end + 1
}

// Text renders tokens back into compact SQL text.
func Text(tokens []Token) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 && spaceBetween(tokens[i-1], tok) {
			b.WriteByte(' ')
		}
		switch tok.Kind {
		case String:
			b.WriteByte('\'')
			b.WriteString(strings.ReplaceAll(tok.Value, "'", "''"))
			b.WriteByte('\'')
		case QuotedIdent:
			b.WriteByte('`')
			b.WriteString(tok.Value)
			b.WriteByte('`')
		default:
			b.WriteString(tok.Value)
		}
	}
	return b.String()
}

func spaceBetween(prev, next Token) bool {
	switch {
	case prev.Kind == Dot || next.Kind == Dot:
		return false
	case prev.Kind == LParen || next.Kind == RParen || next.Kind == Comma:
		return false
	case next.Kind == LParen && (prev.Kind == Word || prev.Kind == QuotedIdent) && !prev.Is("IN") && !prev.Is("AND") && !prev.Is("OR"):
		return false
	}
	return true
}

// IsExplain reports whether sql is an EXPLAIN statement. Leading comments
// are skipped.
func IsExplain(sql string) bool {
	tokens := Tokenize(sql)
	return len(tokens) > 0 && tokens[0].Is("EXPLAIN")
}

// TrimTerminators cuts trailing semicolons, and anything after them, from
// sql so it can be embedded as a subquery.
func TrimTerminators(sql string) string {
	tokens := Tokenize(sql)
	cut := len(sql)
	for i := len(tokens) - 1; i >= 0 && tokens[i].Kind == Semicolon; i-- {
		cut = tokens[i].Pos
	}
	return sql[:cut]
}
