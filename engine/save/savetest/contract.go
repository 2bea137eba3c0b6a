// Package savetest provides a behavioral contract shared by save.Store
// implementations.
package savetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathoo/talecore/engine/save"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

// Sample returns a populated save for game "harbor".
func Sample() *save.SaveData {
	return &save.SaveData{
		SaveVersion:        save.Version,
		GameID:             "harbor",
		GameContentVersion: "0.3",
		Timestamp:          "2026-01-02T03:04:05Z",
		TurnIndex:          1,
		State: state.Tree{
			"energy": value.NewInt(70),
			"trust":  value.NewNumber(0.5),
			"time": value.NewObject(map[string]value.Value{
				"hour": value.NewInt(21), "minute": value.NewInt(5),
			}),
		},
		History: []types.TurnRecord{{
			TurnIndex:         1,
			PlayerInput:       "wait",
			NarrativeMarkdown: "Fog rolls in.",
			Choices:           []types.Choice{{ID: "a", Label: "Listen", Risk: "low", Tags: []string{}}},
			AppliedUpdates:    []types.UpdateOp{{Op: "inc", Path: "time.minute", Value: 10}},
			RejectedUpdates:   []types.UpdateOp{},
			Events:            []types.Event{},
		}},
		MemorySummary:     "",
		TriggeredTriggers: []string{"fog"},
	}
}

// RunStoreContract exercises the save.Store behavior every backend must
// provide. The store must start empty.
func RunStoreContract(t *testing.T, store save.Store) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		sd := Sample()
		require.NoError(t, store.Save(ctx, "slot1", sd))

		loaded, err := store.Load(ctx, "slot1")
		require.NoError(t, err)
		assert.Equal(t, sd.GameID, loaded.GameID)
		assert.Equal(t, sd.TurnIndex, loaded.TurnIndex)
		assert.True(t, sd.State.Equal(loaded.State), "state differs after round trip")
		assert.Equal(t, value.Integer, loaded.State["energy"].Kind())
		assert.Equal(t, []string{"fog"}, loaded.TriggeredTriggers)
		require.Len(t, loaded.History, 1)
		assert.Equal(t, "Fog rolls in.", loaded.History[0].NarrativeMarkdown)
	})

	t.Run("Overwrite", func(t *testing.T) {
		sd := Sample()
		sd.MemorySummary = "second"
		require.NoError(t, store.Save(ctx, "slot1", sd))

		loaded, err := store.Load(ctx, "slot1")
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.MemorySummary)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing")
		assert.ErrorIs(t, err, save.ErrNotFound)
	})

	t.Run("Invalid Name", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, "../escape", Sample()), save.ErrInvalidName)
		_, err := store.Load(ctx, "")
		assert.ErrorIs(t, err, save.ErrInvalidName)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "slot2", Sample()))
		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "slot1")
		assert.Contains(t, names, "slot2")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "slot2"))
		_, err := store.Load(ctx, "slot2")
		assert.ErrorIs(t, err, save.ErrNotFound)

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, names, "slot2")

		assert.NoError(t, store.Delete(ctx, "never-saved"))
	})
}
