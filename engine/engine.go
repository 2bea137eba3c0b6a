// Package engine provides the Step() orchestrator that wires together
// prompt building, generation, the rules pipeline and history into a
// single turn.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nathoo/talecore/engine/events"
	"github.com/nathoo/talecore/engine/generate"
	"github.com/nathoo/talecore/engine/prompt"
	"github.com/nathoo/talecore/engine/resolve"
	"github.com/nathoo/talecore/engine/rules"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/logging"
	"github.com/nathoo/talecore/types"
)

// History window sizes.
const (
	RecentTurns       = 4
	SummaryInterval   = 5
	SummarySnippetLen = 120
	SummaryMaxLen     = 600
)

const (
	summarySeparator = " | "
	retryPlayerInput = "retry"
	gameOverNotice   = "Game over. Use /load to restore a save or /quit to exit."
	recoveryNotice   = "Choose retry, rollback or exit."
	rolledBackNotice = "Rolled back. The story continues from the current state."
	emptyInputNotice = "What do you do?"
)

// TurnRecorder receives one transcript entry per completed turn.
type TurnRecorder interface {
	Write(e logging.TurnEntry) error
}

// Observer receives per-turn timing.
type Observer interface {
	TurnCompleted(d time.Duration, usedFallback bool)
}

// TurnResult is the outcome of Step. Turn is nil when no generation ran;
// Notice then explains why.
type TurnResult struct {
	Turn         *types.TurnRecord
	Output       types.GeneratedOutput
	Deltas       map[string]state.DeltaInfo
	UsedFallback bool
	Notice       string
	Exit         bool
}

// Engine holds the game definitions and the mutable session.
type Engine struct {
	Defs  *state.Defs
	Store *state.Store

	rules    *rules.Engine
	gen      *generate.Service
	prompts  *prompt.Builder
	turnLog  TurnRecorder
	observer Observer
	logger   *slog.Logger

	lastPrompt []types.Message
	lastRaw    string
	recovering bool
	end        types.EndState
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRules replaces the default rules engine.
func WithRules(r *rules.Engine) Option {
	return func(e *Engine) { e.rules = r }
}

// WithPromptBuilder replaces the default prompt builder.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(e *Engine) { e.prompts = b }
}

// WithTurnLog records a transcript entry after every turn.
func WithTurnLog(r TurnRecorder) Option {
	return func(e *Engine) { e.turnLog = r }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an engine for defs that generates turns with gen.
func New(defs *state.Defs, gen *generate.Service, opts ...Option) *Engine {
	e := &Engine{
		Defs:   defs,
		Store:  state.NewStore(defs),
		gen:    gen,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rules == nil {
		e.rules = rules.New(defs, rules.WithLogger(e.logger))
	}
	if e.prompts == nil {
		e.prompts = &prompt.Builder{Defs: defs}
	}
	return e
}

// GameOver reports whether the last turn ended the game.
func (e *Engine) GameOver() bool { return e.end.IsGameOver }

// End returns the last turn's terminal verdict.
func (e *Engine) End() types.EndState { return e.end }

// Recovering reports whether the last generation fell back and the engine
// is waiting for retry, rollback or exit.
func (e *Engine) Recovering() bool { return e.recovering }

// LastRaw returns the raw generator text of the last turn.
func (e *Engine) LastRaw() string { return e.lastRaw }

// LastPrompt returns the messages sent for the last turn.
func (e *Engine) LastPrompt() []types.Message { return e.lastPrompt }

// Step processes one player input and returns the result.
func (e *Engine) Step(ctx context.Context, input string) TurnResult {
	input = strings.TrimSpace(input)

	// 0. Game over blocks all play.
	if e.end.IsGameOver {
		return TurnResult{Notice: gameOverNotice}
	}

	// 1. Empty input.
	if input == "" {
		return TurnResult{Notice: emptyInputNotice}
	}

	// 2. Recovery mode accepts only the fallback choices.
	if e.recovering {
		return e.recover(ctx, input)
	}

	return e.runTurn(ctx, input, false)
}

func (e *Engine) recover(ctx context.Context, input string) TurnResult {
	id := strings.ToLower(input)
	if c, ok := e.resolveChoice(input); ok {
		id = c.ID
	}
	switch id {
	case generate.ChoiceRetry:
		if e.lastPrompt != nil {
			return e.runTurn(ctx, retryPlayerInput, true)
		}
		e.recovering = false
		return TurnResult{Notice: rolledBackNotice}
	case generate.ChoiceRollback:
		e.recovering = false
		return TurnResult{Notice: rolledBackNotice}
	case generate.ChoiceExit:
		return TurnResult{Exit: true}
	}
	return TurnResult{Notice: recoveryNotice}
}

func (e *Engine) runTurn(ctx context.Context, input string, reusePrompt bool) TurnResult {
	start := time.Now()
	store := e.Store

	// 3. Baseline for deltas.
	store.UpdateLastState()

	// 4. A choice number becomes the choice's label.
	playerInput := input
	if c, ok := e.resolveChoice(input); ok {
		playerInput = c.Label
	}

	// 5. Build or reuse the prompt.
	msgs := e.lastPrompt
	if !reusePrompt || msgs == nil {
		built, err := e.prompts.Build(prompt.Context{
			State:         store.State,
			MemorySummary: store.MemorySummary,
			RecentTurns:   store.RecentTurns(RecentTurns),
			LastChoices:   store.LastChoices,
			PlayerInput:   playerInput,
		})
		if err != nil {
			e.logger.Error("prompt build failed", "error", err)
			return TurnResult{Notice: "Could not build prompt: " + err.Error()}
		}
		msgs = built
		e.lastPrompt = msgs
	}

	// 6. Generate.
	gen := e.gen.Generate(ctx, msgs)
	e.lastRaw = gen.Raw
	out := gen.Output

	// 7. Rules pipeline.
	res := e.rules.Apply(store.State, out.StateUpdates, store.Triggered)
	store.State = res.State
	store.Triggered = res.Triggered
	deltas := store.ComputeDeltas()
	e.recovering = gen.UsedFallback

	// 8. Merge events; a terminal rules verdict beats the proposed end.
	evts := events.Merge(out.Events, res.Events)
	end := out.End
	if res.End.IsGameOver {
		end = res.End
	}
	e.end = end

	// 9. Record history.
	rec := types.TurnRecord{
		TurnIndex:         len(store.History) + 1,
		PlayerInput:       playerInput,
		NarrativeMarkdown: out.NarrativeMarkdown,
		Choices:           out.Choices,
		AppliedUpdates:    res.Applied,
		RejectedUpdates:   res.Rejected,
		Events:            evts,
		End:               end,
	}
	store.Append(rec)
	store.LastChoices = out.Choices
	e.updateMemorySummary()

	// 10. Transcript and telemetry.
	if e.turnLog != nil {
		err := e.turnLog.Write(logging.TurnEntry{
			TurnIndex:       rec.TurnIndex,
			PlayerInput:     rec.PlayerInput,
			Prompt:          msgs,
			RawOutput:       gen.Raw,
			UsedFallback:    gen.UsedFallback,
			AppliedUpdates:  rec.AppliedUpdates,
			RejectedUpdates: rec.RejectedUpdates,
			Events:          rec.Events,
			End:             rec.End,
		})
		if err != nil {
			e.logger.Warn("turn log write failed", "error", err)
		}
	}
	if e.observer != nil {
		e.observer.TurnCompleted(time.Since(start), gen.UsedFallback)
	}
	e.logger.Debug("turn complete",
		"turn", rec.TurnIndex,
		"applied", len(res.Applied),
		"rejected", len(res.Rejected),
		"fallback", gen.UsedFallback,
		"game_over", end.IsGameOver)

	return TurnResult{
		Turn:         &store.History[len(store.History)-1],
		Output:       out,
		Deltas:       deltas,
		UsedFallback: gen.UsedFallback,
	}
}

// resolveChoice maps a choice number, id or label to the current choices.
func (e *Engine) resolveChoice(input string) (types.Choice, bool) {
	c, err := resolve.Choice(input, e.Store.LastChoices)
	if err != nil {
		e.logger.Debug("input is not a choice", "input", input, "err", err)
		return types.Choice{}, false
	}
	return c, true
}

// updateMemorySummary condenses the last few narratives every
// SummaryInterval turns.
func (e *Engine) updateMemorySummary() {
	h := e.Store.History
	if len(h) == 0 || len(h)%SummaryInterval != 0 {
		return
	}
	var snippets []string
	for _, t := range h[len(h)-SummaryInterval:] {
		s := strings.ReplaceAll(strings.TrimSpace(t.NarrativeMarkdown), "\n", " ")
		snippets = append(snippets, truncateRunes(s, SummarySnippetLen))
	}
	e.Store.MemorySummary = truncateRunes(strings.Join(snippets, summarySeparator), SummaryMaxLen)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
