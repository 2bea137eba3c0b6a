package effects

import (
	"errors"
	"math"
	"testing"

	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

func f64(f float64) *float64 { return &f }

func testSetup() (state.Tree, *state.Defs) {
	defs := &state.Defs{
		Variables: map[string]types.VariableDef{
			"energy": {ID: "energy", Type: types.VarInteger, Min: f64(0), Max: f64(100),
				Rules: types.VariableRules{Clamp: true, UpdatePolicy: types.PolicyAny}},
			"trust": {ID: "trust", Type: types.VarNumber,
				Rules: types.VariableRules{UpdatePolicy: types.PolicyIncDecOnly}},
			"location": {ID: "location", Type: types.VarEnum, EnumValues: []string{"harbor", "market"},
				Rules: types.VariableRules{UpdatePolicy: types.PolicySetOnly}},
			"codename": {ID: "codename", Type: types.VarString},
			"sealed":   {ID: "sealed", Type: types.VarBoolean, Rules: types.VariableRules{Readonly: true}},
			"lit":      {ID: "lit", Type: types.VarBoolean},
			"notes":    {ID: "notes", Type: types.VarList},
			"time":     {ID: "time", Type: types.VarObject},
		},
	}
	s := state.Tree{
		"energy":   value.NewInt(50),
		"trust":    value.NewNumber(0.5),
		"location": value.NewString("harbor"),
		"codename": value.NewString("gull"),
		"sealed":   value.NewBool(false),
		"lit":      value.NewBool(false),
		"notes":    value.NewList(value.NewString("a"), value.NewString("b"), value.NewString("a")),
		"time": value.NewObject(map[string]value.Value{
			"hour":   value.NewInt(20),
			"minute": value.NewInt(55),
			"label":  value.NewString("dusk"),
		}),
	}
	return s, defs
}

func TestApply_Accepted(t *testing.T) {
	tests := []struct {
		name string
		op   types.UpdateOp
		path string
		want value.Value
	}{
		{"inc integer", types.UpdateOp{Op: "inc", Path: "energy", Value: 5}, "energy", value.NewInt(55)},
		{"dec integer", types.UpdateOp{Op: "dec", Path: "energy", Value: 7}, "energy", value.NewInt(43)},
		{"increment alias", types.UpdateOp{Op: "increment", Path: "energy", Value: 1}, "energy", value.NewInt(51)},
		{"decrement alias", types.UpdateOp{Op: "decrement", Path: "energy", Value: 1}, "energy", value.NewInt(49)},
		{"inc rounds integer target", types.UpdateOp{Op: "inc", Path: "energy", Value: 2.5}, "energy", value.NewInt(52)},
		{"inc number", types.UpdateOp{Op: "inc", Path: "trust", Value: 0.25}, "trust", value.NewNumber(0.75)},
		{"inc nested", types.UpdateOp{Op: "inc", Path: "time.minute", Value: 10}, "time.minute", value.NewInt(65)},
		{"inc nested slash path", types.UpdateOp{Op: "inc", Path: "/time/hour", Value: 1}, "time.hour", value.NewInt(21)},
		{"set enum", types.UpdateOp{Op: "set", Path: "location", Value: "market"}, "location", value.NewString("market")},
		{"set string", types.UpdateOp{Op: "set", Path: "codename", Value: "heron"}, "codename", value.NewString("heron")},
		{"set integer rounds", types.UpdateOp{Op: "set", Path: "energy", Value: 12.6}, "energy", value.NewInt(13)},
		{"set nested numeric", types.UpdateOp{Op: "set", Path: "time.hour", Value: 7.4}, "time.hour", value.NewInt(7)},
		{"set nested string", types.UpdateOp{Op: "set", Path: "time.label", Value: "night"}, "time.label", value.NewString("night")},
		{"push", types.UpdateOp{Op: "push", Path: "notes", Value: "c"}, "notes",
			value.NewList(value.NewString("a"), value.NewString("b"), value.NewString("a"), value.NewString("c"))},
		{"remove first occurrence", types.UpdateOp{Op: "remove", Path: "notes", Value: "a"}, "notes",
			value.NewList(value.NewString("b"), value.NewString("a"))},
		{"remove absent is no-op", types.UpdateOp{Op: "remove", Path: "notes", Value: "z"}, "notes",
			value.NewList(value.NewString("a"), value.NewString("b"), value.NewString("a"))},
		{"toggle ignores value", types.UpdateOp{Op: "toggle", Path: "lit", Value: "anything"}, "lit", value.NewBool(true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, defs := testSetup()
			if err := Apply(s, defs, tt.op, Proposed); err != nil {
				t.Fatalf("Apply(%+v) error: %v", tt.op, err)
			}
			got, err := state.Get(s, tt.path)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) || got.Kind() != tt.want.Kind() {
				t.Errorf("%s = %v (%s), want %v (%s)", tt.path, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestApply_Rejected(t *testing.T) {
	tests := []struct {
		name string
		op   types.UpdateOp
		want error
	}{
		{"unknown root", types.UpdateOp{Op: "set", Path: "gold", Value: 1}, ErrUnknownVariable},
		{"unknown op", types.UpdateOp{Op: "multiply", Path: "energy", Value: 2}, ErrUnknownOp},
		{"readonly", types.UpdateOp{Op: "set", Path: "sealed", Value: true}, ErrReadonly},
		{"inc_dec_only rejects set", types.UpdateOp{Op: "set", Path: "trust", Value: 1}, ErrPolicy},
		{"set_only rejects inc", types.UpdateOp{Op: "inc", Path: "location", Value: 1}, ErrPolicy},
		{"enum outside set", types.UpdateOp{Op: "set", Path: "location", Value: "moon"}, ErrEnumValue},
		{"enum non-string", types.UpdateOp{Op: "set", Path: "location", Value: 3}, ErrTypeMismatch},
		{"declared type mismatch", types.UpdateOp{Op: "set", Path: "energy", Value: "lots"}, ErrTypeMismatch},
		{"bool is not numeric", types.UpdateOp{Op: "set", Path: "energy", Value: true}, ErrTypeMismatch},
		{"nested type mismatch", types.UpdateOp{Op: "set", Path: "time.label", Value: 3}, ErrTypeMismatch},
		{"inc non-numeric value", types.UpdateOp{Op: "inc", Path: "energy", Value: "5"}, ErrNotNumeric},
		{"inc non-numeric target", types.UpdateOp{Op: "inc", Path: "codename", Value: 1}, ErrNotNumeric},
		{"push to non-list", types.UpdateOp{Op: "push", Path: "codename", Value: "x"}, ErrNotList},
		{"remove from non-list", types.UpdateOp{Op: "remove", Path: "energy", Value: 1}, ErrNotList},
		{"toggle non-bool", types.UpdateOp{Op: "toggle", Path: "energy"}, ErrNotBool},
		{"missing nested path", types.UpdateOp{Op: "set", Path: "time.second", Value: 1}, state.ErrPathNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, defs := testSetup()
			before := s.Clone()
			err := Apply(s, defs, tt.op, Proposed)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply(%+v) error = %v, want %v", tt.op, err, tt.want)
			}
			var v *Violation
			if !errors.As(err, &v) {
				t.Errorf("error type = %T, want *Violation", err)
			}
			if !s.Equal(before) {
				t.Errorf("state changed after rejected update")
			}
		})
	}
}

func TestApply_TrustedBypassesReadonlyAndPolicy(t *testing.T) {
	s, defs := testSetup()

	if err := Apply(s, defs, types.UpdateOp{Op: "set", Path: "sealed", Value: true}, Trusted); err != nil {
		t.Fatalf("trusted set on readonly: %v", err)
	}
	if err := Apply(s, defs, types.UpdateOp{Op: "set", Path: "trust", Value: 2}, Trusted); err != nil {
		t.Fatalf("trusted set on inc_dec_only: %v", err)
	}
	if err := Apply(s, defs, types.UpdateOp{Op: "set", Path: "energy", Value: "x"}, Trusted); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("trusted updates must still be type checked, got %v", err)
	}
}

func TestApply_PushDoesNotAliasSnapshot(t *testing.T) {
	s, defs := testSetup()
	snap := s.Clone()
	if err := Apply(s, defs, types.UpdateOp{Op: "push", Path: "notes", Value: "c"}, Proposed); err != nil {
		t.Fatal(err)
	}
	items, _ := snap["notes"].List()
	if len(items) != 3 {
		t.Errorf("snapshot list mutated: %v", snap["notes"])
	}
}

func TestCanonicalOp(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"inc", "inc", true},
		{"increment", "inc", true},
		{"decrement", "dec", true},
		{"toggle", "toggle", true},
		{"INC", "", false},
		{"add", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalOp(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalOp(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRound_TiesToEven(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{2.5, 2},
		{3.5, 4},
		{-1.5, -2},
		{7.49, 7},
	}
	for _, tt := range tests {
		got, _ := Round(value.NewNumber(tt.in)).Int()
		if got != tt.want {
			t.Errorf("Round(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRound_Saturates(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{1e30, math.MaxInt64},
		{-1e30, math.MinInt64},
		{math.Inf(1), math.MaxInt64},
		{math.Inf(-1), math.MinInt64},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		got, _ := Round(value.NewNumber(tt.in)).Int()
		if got != tt.want {
			t.Errorf("Round(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestApply_IntegerOverflowSaturates(t *testing.T) {
	tests := []struct {
		name string
		op   types.UpdateOp
		want int64
	}{
		{"inc max int64", types.UpdateOp{Op: "inc", Path: "energy", Value: int64(math.MaxInt64)}, math.MaxInt64},
		{"dec min int64", types.UpdateOp{Op: "dec", Path: "energy", Value: int64(math.MinInt64)}, math.MaxInt64},
		{"inc huge negative", types.UpdateOp{Op: "inc", Path: "energy", Value: -1e30}, math.MinInt64},
		{"set huge", types.UpdateOp{Op: "set", Path: "energy", Value: 1e30}, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, defs := testSetup()
			if err := Apply(s, defs, tt.op, Proposed); err != nil {
				t.Fatal(err)
			}
			got, ok := s["energy"].Int()
			if !ok || got != tt.want {
				t.Errorf("energy = %v, want %d", s["energy"], tt.want)
			}
		})
	}
}
