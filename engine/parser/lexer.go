package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokNot
	tokCmp
	tokDot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string // identifier, operator, number literal or unquoted string
	pos  int
}

// ParseError reports a syntax error at a byte offset of the expression.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at %d: %s", e.Expr, e.Pos, e.Msg)
}

var keywords = map[string]tokenKind{
	"and": tokAnd,
	"or":  tokOr,
	"not": tokNot,
}

// lex splits an expression into tokens. It rejects every character that
// is not part of the condition grammar.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++

		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++

		case c == '.' && !(i+1 < len(src) && isDigit(src[i+1])):
			toks = append(toks, token{kind: tokDot, text: ".", pos: i})
			i++

		case c == '=' || c == '!' || c == '<' || c == '>':
			op, n := cmpOperator(src[i:])
			if n == 0 {
				return nil, &ParseError{Expr: src, Pos: i, Msg: fmt.Sprintf("unexpected %q", c)}
			}
			toks = append(toks, token{kind: tokCmp, text: op, pos: i})
			i += n

		case c == '\'' || c == '"':
			s, n, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i += n

		case isDigit(c) || c == '.' || (c == '-' && negativeAllowed(toks) && i+1 < len(src) && (isDigit(src[i+1]) || src[i+1] == '.')):
			n := lexNumber(src[i:])
			if n == 0 {
				return nil, &ParseError{Expr: src, Pos: i, Msg: "malformed number"}
			}
			toks = append(toks, token{kind: tokNumber, text: src[i : i+n], pos: i})
			i += n

		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			switch {
			case strings.EqualFold(word, "true"):
				toks = append(toks, token{kind: tokTrue, text: word, pos: i})
			case strings.EqualFold(word, "false"):
				toks = append(toks, token{kind: tokFalse, text: word, pos: i})
			default:
				kind, ok := keywords[word]
				if !ok {
					kind = tokIdent
				}
				toks = append(toks, token{kind: kind, text: word, pos: i})
			}
			i = j

		default:
			r, _ := utf8.DecodeRuneInString(src[i:])
			return nil, &ParseError{Expr: src, Pos: i, Msg: fmt.Sprintf("unsupported character %q", r)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func cmpOperator(s string) (string, int) {
	if len(s) >= 2 {
		switch s[:2] {
		case "==", "!=", "<=", ">=":
			return s[:2], 2
		}
	}
	switch s[0] {
	case '<', '>':
		return s[:1], 1
	}
	return "", 0
}

// negativeAllowed reports whether a '-' at this point can only start a
// negative literal. After an operand it would be subtraction.
func negativeAllowed(prev []token) bool {
	if len(prev) == 0 {
		return true
	}
	switch prev[len(prev)-1].kind {
	case tokCmp, tokLParen, tokAnd, tokOr, tokNot:
		return true
	}
	return false
}

func lexNumber(s string) int {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k == j {
			return 0
		}
		i = k
	}
	if i < len(s) && isIdentPart(s[i]) {
		return 0
	}
	return i
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return b.String(), i + 1 - start, nil
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(src[i])
			}
		case c == '\n':
			return "", 0, &ParseError{Expr: src, Pos: i, Msg: "newline in string literal"}
		default:
			b.WriteByte(c)
		}
		i++
	}
	return "", 0, &ParseError{Expr: src, Pos: start, Msg: "unterminated string literal"}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
