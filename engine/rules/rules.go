// Package rules implements the per-turn rules pipeline: proposed updates,
// clamping, normalization, triggers and terminal conditions.
package rules

import (
	"log/slog"
	"sort"

	"github.com/nathoo/talecore/engine/effects"
	"github.com/nathoo/talecore/engine/events"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/logging"
	"github.com/nathoo/talecore/types"
)

// Ending ids reported by terminal evaluation.
const (
	EndingWin  = "win"
	EndingLose = "lose"
)

// Observer receives rules engine activity. Implementations must be cheap;
// they run inline with Apply.
type Observer interface {
	UpdateRejected(u types.UpdateOp, err error)
	TriggerFired(id string)
}

// Result is the outcome of one Apply call.
type Result struct {
	State     state.Tree
	Applied   []types.UpdateOp
	Rejected  []types.UpdateOp
	Events    []types.Event
	End       types.EndState
	Triggered map[string]bool
}

type compiledTrigger struct {
	types.Trigger
	when *Condition
}

// Engine applies updates against immutable definitions. It holds no
// per-session state and may be shared.
type Engine struct {
	defs        *state.Defs
	triggers    []compiledTrigger
	win         []*Condition
	lose        []*Condition
	normalizers []Normalizer
	logger      *slog.Logger
	observer    Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithNormalizers replaces the default normalizer list.
func WithNormalizers(n ...Normalizer) Option {
	return func(e *Engine) { e.normalizers = n }
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an engine for defs. Conditions are compiled once here.
func New(defs *state.Defs, opts ...Option) *Engine {
	e := &Engine{
		defs:        defs,
		normalizers: []Normalizer{TimeNormalizer("time")},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, t := range defs.Triggers {
		e.triggers = append(e.triggers, compiledTrigger{Trigger: t, when: CompileCondition(t.When)})
	}
	// Ascending priority, then declaration order.
	sort.SliceStable(e.triggers, func(i, j int) bool {
		if e.triggers[i].Priority != e.triggers[j].Priority {
			return e.triggers[i].Priority < e.triggers[j].Priority
		}
		return e.triggers[i].SourceOrder < e.triggers[j].SourceOrder
	})

	for _, expr := range defs.Win {
		e.win = append(e.win, CompileCondition(expr))
	}
	for _, expr := range defs.Lose {
		e.lose = append(e.lose, CompileCondition(expr))
	}
	return e
}

// Apply runs the full pipeline against s, mutating it in place. triggered
// is the set of fired trigger ids; it is updated and returned in the result.
func (e *Engine) Apply(s state.Tree, updates []types.UpdateOp, triggered map[string]bool) Result {
	if triggered == nil {
		triggered = map[string]bool{}
	}
	res := Result{
		State:     s,
		Applied:   []types.UpdateOp{},
		Rejected:  []types.UpdateOp{},
		Events:    []types.Event{},
		Triggered: triggered,
	}

	// 1. Proposed updates, in order.
	for _, u := range updates {
		if err := effects.Apply(s, e.defs, u, effects.Proposed); err != nil {
			e.logger.Debug("update rejected", "op", u.Op, "path", u.Path, "error", err)
			if e.observer != nil {
				e.observer.UpdateRejected(u, err)
			}
			res.Rejected = append(res.Rejected, u)
			res.Events = append(res.Events, events.RejectedUpdate(u.Path))
			continue
		}
		res.Applied = append(res.Applied, u)
	}

	// 2-3. Clamp and normalize.
	e.settle(s)

	// 4. Triggers.
	for _, t := range e.triggers {
		if t.Once && triggered[t.ID] {
			continue
		}
		ok, err := t.when.Check(s)
		if !ok {
			if err != nil {
				e.logger.Debug("trigger condition failed", "trigger", t.ID, "error", err)
			}
			continue
		}
		for _, eff := range t.Effects {
			if err := effects.Apply(s, e.defs, eff, effects.Trusted); err != nil {
				e.logger.Debug("trigger effect skipped", "trigger", t.ID, "error", err)
			}
		}
		res.Events = append(res.Events, t.Events...)
		triggered[t.ID] = true
		e.logger.Debug("trigger fired", "trigger", t.ID)
		if e.observer != nil {
			e.observer.TriggerFired(t.ID)
		}
	}

	// 5. Triggers may have broken bounds again.
	e.settle(s)

	// 6. Terminal evaluation.
	res.End = e.Evaluate(s)
	return res
}

// Evaluate checks win and lose conditions. Lose takes precedence.
func (e *Engine) Evaluate(s state.Tree) types.EndState {
	if anyHolds(e.lose, s) {
		return types.EndState{IsGameOver: true, EndingID: EndingLose, Reason: EndingLose}
	}
	if anyHolds(e.win, s) {
		return types.EndState{IsGameOver: true, EndingID: EndingWin, Reason: EndingWin}
	}
	return types.EndState{}
}

func anyHolds(conds []*Condition, s state.Tree) bool {
	for _, c := range conds {
		if c.Eval(s) {
			return true
		}
	}
	return false
}

func (e *Engine) settle(s state.Tree) {
	Clamp(s, e.defs)
	for _, n := range e.normalizers {
		n.Normalize(s)
	}
}

// Clamp forces every clamped numeric variable into its bounds and rounds
// integer variables.
func Clamp(s state.Tree, defs *state.Defs) {
	for id, def := range defs.Variables {
		if !def.Rules.Clamp {
			continue
		}
		if def.Type != types.VarInteger && def.Type != types.VarNumber {
			continue
		}
		cur, ok := s[id]
		if !ok || !cur.IsNumeric() {
			continue
		}
		f, _ := cur.Float()
		next := cur
		if def.Min != nil && f < *def.Min {
			next = value.NewNumber(*def.Min)
		}
		if def.Max != nil && f > *def.Max {
			next = value.NewNumber(*def.Max)
		}
		if def.Type == types.VarInteger {
			next = effects.Round(next)
		}
		s[id] = next
	}
}
