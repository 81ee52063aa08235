// Package sqltext tokenizes SQL text and builds a shallow clause tree for the
// outermost SELECT. It is not a full parser: unknown constructs are carried as
// opaque tokens and never produce errors.
package sqltext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	Word Kind = iota
	QuotedIdent
	String
	Number
	Placeholder
	Operator
	LParen
	RParen
	Comma
	Dot
	Semicolon
	Star
)

func (k Kind) String() string {
	switch k {
	case Word:
		return "word"
	case QuotedIdent:
		return "quoted_ident"
	case String:
		return "string"
	case Number:
		return "number"
	case Placeholder:
		return "placeholder"
	case Operator:
		return "operator"
	case LParen:
		return "lparen"
	case RParen:
		return "rparen"
	case Comma:
		return "comma"
	case Dot:
		return "dot"
	case Semicolon:
		return "semicolon"
	case Star:
		return "star"
	default:
		return "unknown"
	}
}

// Token is a single lexeme. Value holds the unquoted text for identifiers and
// string literals; Upper is the upper-cased Value for words and is empty for
// everything else. Depth is the parenthesis nesting level the token sits at;
// a paren token carries the depth of its enclosing level.
type Token struct {
	Kind  Kind
	Value string
	Upper string
	Pos   int
	Depth int
}

// Is reports whether t is an unquoted word equal to keyword (upper case).
func (t Token) Is(keyword string) bool {
	return t.Kind == Word && t.Upper == keyword
}

// IsIdent reports whether t can name a table or column.
func (t Token) IsIdent() bool {
	switch t.Kind {
	case QuotedIdent:
		return true
	case Word:
		return !reserved[t.Upper]
	}
	return false
}

// Name returns the identifier in canonical lower case.
func (t Token) Name() string {
	return strings.ToLower(t.Value)
}

// reserved words never act as identifiers or aliases.
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "HAVING": true,
	"ORDER": true, "BY": true, "LIMIT": true, "OFFSET": true, "JOIN": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true,
	"CROSS": true, "NATURAL": true, "STRAIGHT_JOIN": true, "ON": true, "USING": true,
	"AND": true, "OR": true, "NOT": true, "IN": true, "IS": true, "NULL": true,
	"LIKE": true, "BETWEEN": true, "EXISTS": true, "AS": true, "UNION": true,
	"EXCEPT": true, "INTERSECT": true, "ALL": true, "DISTINCT": true, "CASE": true,
	"WHEN": true, "THEN": true, "ELSE": true, "END": true, "ASC": true, "DESC": true,
	"FOR": true, "WINDOW": true, "USE": true, "FORCE": true, "IGNORE": true,
	"INDEX": true, "KEY": true, "WITH": true, "INTO": true, "LOCK": true,
	"PROCEDURE": true, "FETCH": true, "QUALIFY": true, "RETURNING": true,
	"PARTITION": true, "TABLESAMPLE": true,
}

// Tokenize splits sql into tokens. Comments and whitespace are dropped.
// Unterminated literals or comments consume the rest of the input.
func Tokenize(sql string) []Token {
	lx := &lexer{src: sql}
	lx.run()
	return lx.tokens
}

type lexer struct {
	src    string
	pos    int
	depth  int
	tokens []Token
}

func (l *lexer) emit(kind Kind, value string, start int) {
	tok := Token{Kind: kind, Value: value, Pos: start, Depth: l.depth}
	if kind == Word {
		tok.Upper = strings.ToUpper(value)
	}
	l.tokens = append(l.tokens, tok)
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		start := l.pos
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
		case c == '-' && l.peek(1) == '-':
			l.skipLine()
		case c == '#':
			l.skipLine()
		case c == '/' && l.peek(1) == '*':
			l.skipBlockComment()
		case c == '\'':
			l.emit(String, l.quoted('\''), start)
		case c == '`':
			l.emit(QuotedIdent, l.quoted('`'), start)
		case c == '"':
			l.emit(QuotedIdent, l.quoted('"'), start)
		case c == '(':
			l.emit(LParen, "(", start)
			l.pos++
			l.depth++
		case c == ')':
			if l.depth > 0 {
				l.depth--
			}
			l.emit(RParen, ")", start)
			l.pos++
		case c == ',':
			l.single(Comma)
		case c == ';':
			l.single(Semicolon)
		case c == '*':
			l.single(Star)
		case c == '.' && !isDigit(l.peek(1)):
			l.single(Dot)
		case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
			l.emit(Number, l.number(), start)
		case c == '?':
			l.single(Placeholder)
		case (c == '$' || c == ':') && isWordStart(l.peekRune(1)):
			l.pos++
			l.word()
			l.emit(Placeholder, l.src[start:l.pos], start)
		case c == '$' && isDigit(l.peek(1)):
			l.pos++
			l.number()
			l.emit(Placeholder, l.src[start:l.pos], start)
		case isOperatorByte(c):
			l.emit(Operator, l.operator(), start)
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if isWordStart(r) {
				l.emit(Word, l.word(), start)
				continue
			}
			l.pos += size
		}
	}
}

func (l *lexer) single(kind Kind) {
	l.emit(kind, l.src[l.pos:l.pos+1], l.pos)
	l.pos++
}

func (l *lexer) peekRune(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+offset:])
	return r
}

func (l *lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *lexer) skipBlockComment() {
	end := strings.Index(l.src[l.pos+2:], "*/")
	if end < 0 {
		l.pos = len(l.src)
		return
	}
	l.pos += end + 4
}

// quoted reads a literal delimited by q. A doubled delimiter is an escaped
// delimiter; inside single quotes a backslash escapes the next byte.
func (l *lexer) quoted(q byte) string {
	var b strings.Builder
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && q == '\'' && l.pos+1 < len(l.src):
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case c == q && l.peek(1) == q:
			b.WriteByte(q)
			l.pos += 2
		case c == q:
			l.pos++
			return b.String()
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return b.String()
}

func (l *lexer) number() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isDigit(c) || c == '.' {
			l.pos++
			continue
		}
		if (c == 'e' || c == 'E') && l.pos > start {
			next := l.peek(1)
			if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peek(2))) {
				l.pos += 2
				continue
			}
		}
		break
	}
	return l.src[start:l.pos]
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isWordPart(r) {
			break
		}
		l.pos += size
	}
	return l.src[start:l.pos]
}

var twoCharOperators = []string{"<=>", "<>", "!=", "<=", ">=", "||", "&&", "::", "->", "<<", ">>"}

func (l *lexer) operator() string {
	rest := l.src[l.pos:]
	for _, op := range twoCharOperators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return op
		}
	}
	l.pos++
	return rest[:1]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isOperatorByte(c byte) bool {
	return strings.IndexByte("=<>!+-/%|&^~:@", c) >= 0
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
