package rules

import (
	"errors"
	"fmt"

	"github.com/nathoo/talecore/engine/parser"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
)

var (
	// ErrUnresolved is returned when a name or attribute is not in the state.
	ErrUnresolved = errors.New("unresolved name")
	// ErrTypeMismatch is returned when operands cannot be ordered.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Condition is a compiled condition expression. A Condition that failed to
// compile always evaluates to false.
type Condition struct {
	Source string
	root   parser.Node
	err    error
}

// CompileCondition parses expr once for repeated evaluation.
func CompileCondition(expr string) *Condition {
	c := &Condition{Source: expr}
	if expr == "" {
		c.err = errors.New("empty condition")
		return c
	}
	c.root, c.err = parser.Parse(expr)
	return c
}

// Err returns the parse error, if any.
func (c *Condition) Err() error { return c.err }

// Eval evaluates the condition against the state. Any parse or evaluation
// error yields false.
func (c *Condition) Eval(s state.Tree) bool {
	ok, _ := c.Check(s)
	return ok
}

// Check is Eval that also reports why a condition did not hold.
func (c *Condition) Check(s state.Tree) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	v, err := evalNode(c.root, s)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// EvalCondition compiles and evaluates expr in one step.
func EvalCondition(expr string, s state.Tree) bool {
	return CompileCondition(expr).Eval(s)
}

func evalNode(n parser.Node, s state.Tree) (value.Value, error) {
	switch n := n.(type) {
	case parser.Literal:
		return n.Value, nil

	case parser.Name:
		v, ok := s[n.ID]
		if !ok {
			return value.Value{}, fmt.Errorf("%w: %s", ErrUnresolved, n.ID)
		}
		return v, nil

	case parser.Attr:
		base, err := evalNode(n.X, s)
		if err != nil {
			return value.Value{}, err
		}
		obj, ok := base.Object()
		if !ok {
			return value.Value{}, fmt.Errorf("%w: .%s on %s", ErrUnresolved, n.Attr, base.Kind())
		}
		v, ok := obj[n.Attr]
		if !ok {
			return value.Value{}, fmt.Errorf("%w: .%s", ErrUnresolved, n.Attr)
		}
		return v, nil

	case parser.Not:
		v, err := evalNode(n.X, s)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(!v.Truthy()), nil

	case parser.BoolOp:
		// Short-circuits: operands after the deciding one are not evaluated.
		want := n.Op == "or"
		for _, operand := range n.Operands {
			v, err := evalNode(operand, s)
			if err != nil {
				return value.Value{}, err
			}
			if v.Truthy() == want {
				return value.NewBool(want), nil
			}
		}
		return value.NewBool(!want), nil

	case parser.Compare:
		left, err := evalNode(n.Left, s)
		if err != nil {
			return value.Value{}, err
		}
		for i, op := range n.Ops {
			right, err := evalNode(n.Rights[i], s)
			if err != nil {
				return value.Value{}, err
			}
			ok, err := compare(op, left, right)
			if err != nil {
				return value.Value{}, err
			}
			if !ok {
				return value.NewBool(false), nil
			}
			left = right
		}
		return value.NewBool(true), nil

	default:
		return value.Value{}, fmt.Errorf("unsupported node %T", n)
	}
}

func compare(op string, a, b value.Value) (bool, error) {
	switch op {
	case "==":
		return a.Equal(b), nil
	case "!=":
		return !a.Equal(b), nil
	}

	c, err := order(a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// order compares two numbers or two strings.
func order(a, b value.Value) (int, error) {
	if a.IsNumeric() && b.IsNumeric() {
		ai, aInt := a.Int()
		bi, bInt := b.Int()
		if aInt && bInt {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			}
			return 0, nil
		}
		x, _ := a.Float()
		y, _ := b.Float()
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	as, aok := a.Str()
	bs, bok := b.Str()
	if aok && bok {
		switch {
		case as < bs:
			return -1, nil
		case as > bs:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, a.Kind(), b.Kind())
}
