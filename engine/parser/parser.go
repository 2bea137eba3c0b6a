// Package parser converts condition expressions into a small AST.
// The grammar is boolean logic over state lookups: no calls, no arithmetic,
// no assignment.
//
//	expr       = or
//	or         = and { "or" and }
//	and        = not { "and" not }
//	not        = "not" not | comparison
//	comparison = primary { cmpop primary }
//	primary    = literal | name { "." name } | "(" expr ")"
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nathoo/talecore/engine/value"
)

// Node is one of Literal, Name, Attr, Compare, BoolOp or Not.
type Node interface {
	node()
}

// Literal is a constant boolean, number or string.
type Literal struct {
	Value value.Value
}

// Name resolves a root state key.
type Name struct {
	ID string
}

// Attr resolves a key inside the object X evaluates to.
type Attr struct {
	X    Node
	Attr string
}

// Compare is a comparison chain: Left Ops[0] Rights[0] Ops[1] Rights[1] ...
type Compare struct {
	Left   Node
	Ops    []string
	Rights []Node
}

// BoolOp is a left-to-right "and" or "or" over two or more operands.
type BoolOp struct {
	Op       string
	Operands []Node
}

// Not negates the truthiness of X.
type Not struct {
	X Node
}

func (Literal) node() {}
func (Name) node()    {}
func (Attr) node()    {}
func (Compare) node() {}
func (BoolOp) node()  {}
func (Not) node()     {}

// Parse converts an expression into its AST.
func Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &ParseError{Expr: expr, Msg: "empty expression"}
	}
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{src: expr, toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return n, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &ParseError{Expr: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Node, error) {
	return p.parseBool(tokOr, "or", p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseBool(tokAnd, "and", p.parseNot)
}

func (p *parser) parseBool(kind tokenKind, op string, operand func() (Node, error)) (Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	operands := []Node{first}
	for p.peek().kind == kind {
		p.next()
		n, err := operand()
		if err != nil {
			return nil, err
		}
		operands = append(operands, n)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return BoolOp{Op: op, Operands: operands}, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rights []Node
	for p.peek().kind == tokCmp {
		ops = append(ops, p.next().text)
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		rights = append(rights, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return Compare{Left: left, Ops: ops, Rights: rights}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	var n Node
	switch t.kind {
	case tokTrue:
		return Literal{Value: value.NewBool(true)}, nil
	case tokFalse:
		return Literal{Value: value.NewBool(false)}, nil
	case tokNumber:
		v, err := value.FromAny(json.Number(t.text))
		if err != nil {
			return nil, p.errorf(t, "invalid number %q", t.text)
		}
		return Literal{Value: v}, nil
	case tokString:
		return Literal{Value: value.NewString(t.text)}, nil
	case tokIdent:
		n = Name{ID: t.text}
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')'")
		}
		n = inner
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of expression")
	default:
		return nil, p.errorf(t, "unexpected %q", t.text)
	}

	for p.peek().kind == tokDot {
		p.next()
		attr := p.next()
		if attr.kind != tokIdent {
			return nil, p.errorf(attr, "expected attribute name after '.'")
		}
		n = Attr{X: n, Attr: attr.text}
	}
	if p.peek().kind == tokLParen {
		return nil, p.errorf(p.peek(), "function calls are not supported")
	}
	return n, nil
}
