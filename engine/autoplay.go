package engine

import (
	"context"

	"github.com/nathoo/talecore/engine/replay"
)

// StopReason says why Autoplay returned.
type StopReason string

const (
	StopFinished    StopReason = "finished"
	StopGameOver    StopReason = "game_over"
	StopFallback    StopReason = "fallback"
	StopInterrupted StopReason = "interrupted"
)

// Interrupter is implemented by sources that can be stopped from outside,
// such as replay.Queue.
type Interrupter interface {
	Interrupted() bool
}

// Autoplay feeds inputs from src into Step until the source is exhausted,
// the game ends, a turn falls back, or ctx is cancelled. Stops are checked
// between turns; a running turn is never abandoned. onTurn, if non-nil, is
// called after every step.
func (e *Engine) Autoplay(ctx context.Context, src replay.Source, onTurn func(input string, r TurnResult)) StopReason {
	for {
		if ctx.Err() != nil {
			return StopInterrupted
		}
		input, ok := src.Next()
		if !ok {
			if i, ok := src.(Interrupter); ok && i.Interrupted() {
				return StopInterrupted
			}
			return StopFinished
		}

		r := e.Step(ctx, input)
		if onTurn != nil {
			onTurn(input, r)
		}

		switch {
		case r.Exit:
			return StopInterrupted
		case e.GameOver():
			return StopGameOver
		case r.UsedFallback:
			return StopFallback
		}
	}
}
