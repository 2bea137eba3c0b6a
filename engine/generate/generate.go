// Package generate runs the bounded retry protocol around an untrusted
// completion source: one attempt, up to MaxRetries repair attempts, then a
// fixed fallback.
package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nathoo/talecore/engine/events"
	"github.com/nathoo/talecore/engine/schema"
	"github.com/nathoo/talecore/logging"
	"github.com/nathoo/talecore/types"
)

// DefaultMaxRetries is the number of repair attempts after the first call.
const DefaultMaxRetries = 2

// Completer turns an ordered message list into raw text.
type Completer interface {
	Complete(ctx context.Context, msgs []types.Message) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, msgs []types.Message) (string, error)

// Complete calls f(ctx, msgs).
func (f CompleterFunc) Complete(ctx context.Context, msgs []types.Message) (string, error) {
	return f(ctx, msgs)
}

// TransportError wraps a completion failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Outcome labels one attempt.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeSchemaError    Outcome = "schema_error"
)

// Observer receives per-attempt and per-call activity.
type Observer interface {
	Attempt(outcome Outcome)
	Fallback()
}

// Result is the outcome of Generate.
type Result struct {
	Output       types.GeneratedOutput
	Raw          string
	UsedFallback bool
	Attempts     int
	// Err is the last failure, kept for diagnostics only.
	Err error
}

// Service validates completion output and repairs or falls back on failure.
type Service struct {
	completer  Completer
	maxRetries int
	lenient    bool
	logger     *slog.Logger
	observer   Observer
}

// Option configures a Service.
type Option func(*Service)

// WithMaxRetries sets the number of repair attempts. Negative values are
// treated as zero.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n < 0 {
			n = 0
		}
		s.maxRetries = n
	}
}

// WithLenient coerces the last raw text instead of falling back when all
// attempts fail and that text is non-empty.
func WithLenient(on bool) Option {
	return func(s *Service) { s.lenient = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// New creates a Service around c.
func New(c Completer, opts ...Option) *Service {
	s := &Service{
		completer:  c,
		maxRetries: DefaultMaxRetries,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs the protocol. It never fails; exhausted attempts produce
// the fallback output with UsedFallback set.
func (s *Service) Generate(ctx context.Context, msgs []types.Message) Result {
	var (
		lastRaw string
		lastErr error
	)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		req := msgs
		if attempt > 0 {
			req = RepairMessages(lastErr, lastRaw)
		}

		raw, err := s.completer.Complete(ctx, req)
		if err != nil {
			lastErr = &TransportError{Err: err}
			s.record(OutcomeTransportError)
			s.logger.Warn("completion failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				return s.exhausted(lastRaw, lastErr, attempt+1)
			}
			continue
		}
		lastRaw = raw

		out, err := schema.Parse(raw)
		if err != nil {
			lastErr = err
			s.record(OutcomeSchemaError)
			s.logger.Warn("output failed validation", "attempt", attempt, "error", err)
			continue
		}

		s.record(OutcomeOK)
		return Result{Output: out, Raw: raw, Attempts: attempt + 1}
	}

	return s.exhausted(lastRaw, lastErr, s.maxRetries+1)
}

func (s *Service) exhausted(lastRaw string, lastErr error, attempts int) Result {
	if s.lenient && lastRaw != "" {
		s.logger.Info("coercing invalid output", "error", lastErr)
		return Result{Output: schema.Coerce(lastRaw), Raw: lastRaw, Attempts: attempts, Err: lastErr}
	}
	if s.observer != nil {
		s.observer.Fallback()
	}
	s.logger.Error("generation exhausted, using fallback", "attempts", attempts, "error", lastErr)
	return Result{Output: Fallback(), Raw: lastRaw, UsedFallback: true, Attempts: attempts, Err: lastErr}
}

func (s *Service) record(o Outcome) {
	if s.observer != nil {
		s.observer.Attempt(o)
	}
}

// RepairMessages builds the request sent after a failed attempt.
func RepairMessages(lastErr error, lastRaw string) []types.Message {
	msg := "unknown error"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return []types.Message{
		{Role: "system", Content: "You are a JSON repair engine. Output ONLY valid JSON that matches the schema."},
		{Role: "user", Content: fmt.Sprintf("Fix the JSON. Error: %s\nRaw:\n%s", msg, lastRaw)},
	}
}

// Fallback ids, offered only while recovering from a failed generation.
const (
	ChoiceRetry    = "retry"
	ChoiceRollback = "rollback"
	ChoiceExit     = "exit"
)

// Fallback returns the fixed recovery output.
func Fallback() types.GeneratedOutput {
	sys := func(id, label, hint string) types.Choice {
		return types.Choice{ID: id, Label: label, Hint: hint, Risk: types.RiskLow, Tags: []string{"system"}}
	}
	return types.GeneratedOutput{
		NarrativeMarkdown: "System: LLM output invalid. Choose an action.",
		Choices: []types.Choice{
			sys(ChoiceRetry, "Retry", "Try generating again."),
			sys(ChoiceRollback, "Rollback", "Keep current state and wait."),
			sys(ChoiceExit, "Exit", "Quit the game."),
		},
		StateUpdates: []types.UpdateOp{},
		NewFacts:     []string{},
		Events:       []types.Event{events.Error("LLM output invalid")},
		End:          types.EndState{},
	}
}
