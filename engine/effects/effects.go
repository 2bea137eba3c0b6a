// Package effects implements centralized state mutation via the Apply function.
// Every update operation is one atomic mutation of one path.
package effects

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

var (
	ErrUnknownVariable = errors.New("unknown variable")
	ErrReadonly        = errors.New("variable is readonly")
	ErrPolicy          = errors.New("operation not allowed by update policy")
	ErrUnknownOp       = errors.New("unknown operation")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrEnumValue       = errors.New("value not in enum")
	ErrNotNumeric      = errors.New("operands must be numeric")
	ErrNotList         = errors.New("target is not a list")
	ErrNotBool         = errors.New("target is not a boolean")
)

// Violation is the error returned for a rejected update.
type Violation struct {
	Op  types.UpdateOp
	Err error
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s %s: %v", v.Op.Op, v.Op.Path, v.Err)
}

func (v *Violation) Unwrap() error { return v.Err }

// Mode selects which checks Apply enforces.
type Mode int

const (
	// Proposed updates come from the generator and are fully checked.
	Proposed Mode = iota
	// Trusted updates come from trigger effects. Readonly and update
	// policy checks are skipped; type checks still apply.
	Trusted
)

var opAliases = map[string]string{
	types.OpSet:    types.OpSet,
	types.OpInc:    types.OpInc,
	types.OpDec:    types.OpDec,
	types.OpPush:   types.OpPush,
	types.OpRemove: types.OpRemove,
	types.OpToggle: types.OpToggle,
	"increment":    types.OpInc,
	"decrement":    types.OpDec,
}

// CanonicalOp maps an operation name, including the long aliases
// "increment" and "decrement", to its wire name.
func CanonicalOp(name string) (string, bool) {
	op, ok := opAliases[name]
	return op, ok
}

// Allowed reports whether policy permits op.
func Allowed(policy types.UpdatePolicy, op string) bool {
	switch policy {
	case types.PolicyIncDecOnly:
		return op == types.OpInc || op == types.OpDec
	case types.PolicySetOnly:
		return op == types.OpSet
	default:
		return true
	}
}

// Apply applies a single update to s in place. On failure s is unchanged
// and the returned error is a *Violation.
func Apply(s state.Tree, defs *state.Defs, u types.UpdateOp, mode Mode) error {
	if err := apply(s, defs, u, mode); err != nil {
		return &Violation{Op: u, Err: err}
	}
	return nil
}

func apply(s state.Tree, defs *state.Defs, u types.UpdateOp, mode Mode) error {
	op, ok := CanonicalOp(u.Op)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownOp, u.Op)
	}
	def, ok := defs.Variable(state.Root(u.Path))
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownVariable, state.Root(u.Path))
	}
	if mode != Trusted {
		if def.Rules.Readonly {
			return ErrReadonly
		}
		if !Allowed(def.Rules.UpdatePolicy, op) {
			return fmt.Errorf("%w: %s under %s", ErrPolicy, op, def.Rules.UpdatePolicy)
		}
	}

	cur, err := state.Get(s, u.Path)
	if err != nil {
		return err
	}
	val, err := value.FromAny(u.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	integer := isIntegerTarget(def, u.Path, cur)

	switch op {
	case types.OpInc, types.OpDec:
		if !cur.IsNumeric() || !val.IsNumeric() {
			return ErrNotNumeric
		}
		if op == types.OpDec {
			val = negate(val)
		}
		return state.Set(s, u.Path, add(cur, val, integer))

	case types.OpSet:
		if state.IsRoot(u.Path) {
			if err := CheckType(def, val); err != nil {
				return err
			}
		} else if !compatible(cur, val) {
			return fmt.Errorf("%w: cannot set %s to %s", ErrTypeMismatch, cur.Kind(), val.Kind())
		}
		if integer && val.IsNumeric() {
			val = Round(val)
		}
		return state.Set(s, u.Path, val)

	case types.OpPush:
		items, ok := cur.List()
		if !ok {
			return ErrNotList
		}
		next := append(slices.Clone(items), val)
		return state.Set(s, u.Path, value.NewList(next...))

	case types.OpRemove:
		items, ok := cur.List()
		if !ok {
			return ErrNotList
		}
		idx := slices.IndexFunc(items, val.Equal)
		if idx < 0 {
			return nil
		}
		next := slices.Delete(slices.Clone(items), idx, idx+1)
		return state.Set(s, u.Path, value.NewList(next...))

	case types.OpToggle:
		b, ok := cur.Bool()
		if !ok {
			return ErrNotBool
		}
		return state.Set(s, u.Path, value.NewBool(!b))
	}
	return fmt.Errorf("%w %q", ErrUnknownOp, u.Op)
}

// isIntegerTarget reports whether results written to path are rounded.
// At the root the declared type decides; below it the current value does.
func isIntegerTarget(def types.VariableDef, path string, cur value.Value) bool {
	if state.IsRoot(path) {
		return def.Type == types.VarInteger
	}
	return cur.Kind() == value.Integer
}

// CheckType reports whether v matches the declared type of def.
func CheckType(def types.VariableDef, v value.Value) error {
	var ok bool
	switch def.Type {
	case types.VarInteger, types.VarNumber:
		ok = v.IsNumeric()
	case types.VarBoolean:
		ok = v.Kind() == value.Bool
	case types.VarEnum:
		s, isStr := v.Str()
		if !isStr {
			return fmt.Errorf("%w: enum %s requires a string", ErrTypeMismatch, def.ID)
		}
		if len(def.EnumValues) > 0 && !slices.Contains(def.EnumValues, s) {
			return fmt.Errorf("%w: %q", ErrEnumValue, s)
		}
		return nil
	case types.VarString:
		ok = v.Kind() == value.String
	case types.VarList:
		ok = v.Kind() == value.List
	case types.VarObject:
		ok = v.Kind() == value.Object
	default:
		ok = true
	}
	if !ok {
		return fmt.Errorf("%w: %s declared %s, got %s", ErrTypeMismatch, def.ID, def.Type, v.Kind())
	}
	return nil
}

// compatible reports whether v may replace cur at a nested path.
func compatible(cur, v value.Value) bool {
	if cur.IsNumeric() {
		return v.IsNumeric()
	}
	return cur.Kind() == v.Kind()
}

func add(a, b value.Value, integer bool) value.Value {
	ai, aInt := a.Int()
	bi, bInt := b.Int()
	if aInt && bInt && !overflows(ai, bi) {
		return value.NewInt(ai + bi)
	}
	x, _ := a.Float()
	y, _ := b.Float()
	sum := value.NewNumber(x + y)
	if integer {
		return Round(sum)
	}
	return sum
}

// overflows reports whether a+b falls outside the int64 range.
func overflows(a, b int64) bool {
	return (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b)
}

func negate(v value.Value) value.Value {
	if i, ok := v.Int(); ok && i != math.MinInt64 {
		return value.NewInt(-i)
	}
	f, _ := v.Float()
	return value.NewNumber(-f)
}

// Round converts a numeric value to the nearest Integer, ties to even.
// Values beyond the int64 range saturate at its bounds and NaN becomes 0.
func Round(v value.Value) value.Value {
	if v.Kind() == value.Integer {
		return v
	}
	f, _ := v.Float()
	switch {
	case math.IsNaN(f):
		return value.NewInt(0)
	case f >= math.MaxInt64:
		return value.NewInt(math.MaxInt64)
	case f <= math.MinInt64:
		return value.NewInt(math.MinInt64)
	}
	return value.NewInt(int64(math.RoundToEven(f)))
}
