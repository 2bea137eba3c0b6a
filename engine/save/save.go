// Package save converts a session to and from its persisted form and
// defines the storage contract used by the save backends.
package save

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/types"
)

// Version is the save format written by this package.
const Version = "1.0"

var (
	ErrNotFound           = errors.New("save not found")
	ErrInvalidName        = errors.New("invalid save name")
	ErrGameMismatch       = errors.New("save belongs to a different game")
	ErrUnsupportedVersion = errors.New("unsupported save version")
)

// SaveData is the persisted form of a session.
type SaveData struct {
	SaveVersion        string             `json:"save_version"`
	GameID             string             `json:"game_id"`
	GameContentVersion string             `json:"game_content_version"`
	Timestamp          string             `json:"timestamp"`
	TurnIndex          int                `json:"turn_index"`
	State              state.Tree         `json:"state"`
	History            []types.TurnRecord `json:"history"`
	MemorySummary      string             `json:"memory_summary"`
	TriggeredTriggers  []string           `json:"triggered_triggers"`
}

// Store persists saves under short names.
type Store interface {
	Save(ctx context.Context, name string, sd *SaveData) error
	Load(ctx context.Context, name string) (*SaveData, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateName rejects names that are empty, too long, or could escape a
// save directory.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Snapshot captures the session held by store.
func Snapshot(store *state.Store, game types.GameDef) *SaveData {
	history := make([]types.TurnRecord, len(store.History))
	copy(history, store.History)
	return &SaveData{
		SaveVersion:        Version,
		GameID:             game.ID,
		GameContentVersion: game.Version,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		TurnIndex:          len(store.History),
		State:              store.Snapshot(),
		History:            history,
		MemorySummary:      store.MemorySummary,
		TriggeredTriggers:  store.TriggeredIDs(),
	}
}

// Marshal encodes sd as indented JSON.
func Marshal(sd *SaveData) ([]byte, error) {
	return json.MarshalIndent(sd, "", "  ")
}

// Unmarshal decodes a save. Numbers inside update values decode as
// json.Number so integers survive the round trip.
func Unmarshal(data []byte) (*SaveData, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var sd SaveData
	if err := dec.Decode(&sd); err != nil {
		return nil, fmt.Errorf("decoding save: %w", err)
	}
	if sd.SaveVersion != Version {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, sd.SaveVersion)
	}

	// Ensure collections are never nil after load.
	if sd.State == nil {
		sd.State = state.Tree{}
	}
	if sd.History == nil {
		sd.History = []types.TurnRecord{}
	}
	if sd.TriggeredTriggers == nil {
		sd.TriggeredTriggers = []string{}
	}
	for i := range sd.History {
		repairRecord(&sd.History[i])
	}
	return &sd, nil
}

func repairRecord(r *types.TurnRecord) {
	if r.Choices == nil {
		r.Choices = []types.Choice{}
	}
	if r.AppliedUpdates == nil {
		r.AppliedUpdates = []types.UpdateOp{}
	}
	if r.RejectedUpdates == nil {
		r.RejectedUpdates = []types.UpdateOp{}
	}
	if r.Events == nil {
		r.Events = []types.Event{}
	}
}

// Apply replaces the session in store with sd. The delta baseline is reset
// to the loaded state and the last turn's choices become current.
func Apply(store *state.Store, sd *SaveData, game types.GameDef) error {
	if sd.GameID != game.ID {
		return fmt.Errorf("%w: save is for %q, loaded game is %q", ErrGameMismatch, sd.GameID, game.ID)
	}

	store.State = sd.State.Clone()
	store.History = append([]types.TurnRecord{}, sd.History...)
	store.MemorySummary = sd.MemorySummary
	store.Triggered = make(map[string]bool, len(sd.TriggeredTriggers))
	for _, id := range sd.TriggeredTriggers {
		store.Triggered[id] = true
	}
	store.LastChoices = nil
	if n := len(store.History); n > 0 {
		store.LastChoices = store.History[n-1].Choices
	}
	store.UpdateLastState()
	store.LastDeltas = map[string]state.DeltaInfo{}
	return nil
}
