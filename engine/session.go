package engine

import (
	"context"

	"github.com/nathoo/talecore/engine/save"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/types"
)

// Save writes the current session to store under name.
func (e *Engine) Save(ctx context.Context, store save.Store, name string) error {
	return store.Save(ctx, name, save.Snapshot(e.Store, e.Defs.Game))
}

// Load replaces the current session with a saved one. Recovery mode is
// cleared and the terminal verdict is taken from the last saved turn.
func (e *Engine) Load(ctx context.Context, store save.Store, name string) error {
	sd, err := store.Load(ctx, name)
	if err != nil {
		return err
	}
	if err := save.Apply(e.Store, sd, e.Defs.Game); err != nil {
		return err
	}
	e.recovering = false
	e.lastPrompt = nil
	e.lastRaw = ""
	e.end = types.EndState{}
	if n := len(e.Store.History); n > 0 {
		e.end = e.Store.History[n-1].End
	}
	e.logger.Info("session loaded", "name", name, "turns", len(e.Store.History))
	return nil
}

// Reset starts a new session from the initial state.
func (e *Engine) Reset() {
	e.Store = state.NewStore(e.Defs)
	e.recovering = false
	e.lastPrompt = nil
	e.lastRaw = ""
	e.end = types.EndState{}
}
