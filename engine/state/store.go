package state

import (
	"fmt"
	"sort"

	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

// DeltaInfo describes how one variable changed between two snapshots.
type DeltaInfo struct {
	Changed      bool     `json:"changed"`
	Summary      string   `json:"summary"`
	NumericDelta *float64 `json:"numeric_delta,omitempty"`
}

// Store owns everything that persists across turns of one session.
type Store struct {
	State         Tree
	History       []types.TurnRecord
	MemorySummary string
	LastState     Tree
	LastDeltas    map[string]DeltaInfo
	LastChoices   []types.Choice
	Triggered     map[string]bool
}

// NewStore creates a store holding the initial state for defs.
func NewStore(defs *Defs) *Store {
	return &Store{
		State:      NewState(defs),
		History:    []types.TurnRecord{},
		LastDeltas: map[string]DeltaInfo{},
		Triggered:  map[string]bool{},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Tree {
	return s.State.Clone()
}

// UpdateLastState records the current state as the baseline for deltas.
func (s *Store) UpdateLastState() {
	s.LastState = s.State.Clone()
}

// ComputeDeltas compares the current state against the last baseline and
// caches the result in LastDeltas. Without a baseline nothing is reported.
func (s *Store) ComputeDeltas() map[string]DeltaInfo {
	deltas := map[string]DeltaInfo{}
	if len(s.LastState) == 0 {
		s.LastDeltas = deltas
		return deltas
	}

	for key, cur := range s.State {
		prev, ok := s.LastState[key]
		if !ok {
			deltas[key] = DeltaInfo{Changed: true, Summary: "new"}
			continue
		}
		deltas[key] = diff(prev, cur)
	}

	s.LastDeltas = deltas
	return deltas
}

func diff(prev, cur value.Value) DeltaInfo {
	if cur.IsNumeric() && prev.IsNumeric() {
		a, _ := prev.Float()
		b, _ := cur.Float()
		d := b - a
		if d == 0 {
			return DeltaInfo{}
		}
		return DeltaInfo{Changed: true, Summary: fmt.Sprintf("%+.0f", d), NumericDelta: &d}
	}
	if cur.Equal(prev) {
		return DeltaInfo{}
	}
	if (cur.Kind() == value.List && prev.Kind() == value.List) ||
		(cur.Kind() == value.Object && prev.Kind() == value.Object) {
		return DeltaInfo{Changed: true, Summary: "updated"}
	}
	return DeltaInfo{Changed: true, Summary: fmt.Sprintf("%s → %s", prev, cur)}
}

// Delta returns the cached delta for a variable.
func (s *Store) Delta(id string) (DeltaInfo, bool) {
	d, ok := s.LastDeltas[id]
	return d, ok
}

// Value resolves a path against the current state.
func (s *Store) Value(path string) (value.Value, error) {
	return Get(s.State, path)
}

// Append adds a turn record to history.
func (s *Store) Append(rec types.TurnRecord) {
	s.History = append(s.History, rec)
}

// RecentTurns returns up to n of the most recent turns, oldest first.
func (s *Store) RecentTurns(n int) []types.TurnRecord {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	return s.History[len(s.History)-n:]
}

// TriggeredIDs returns the fired trigger ids in sorted order.
func (s *Store) TriggeredIDs() []string {
	ids := make([]string, 0, len(s.Triggered))
	for id := range s.Triggered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
