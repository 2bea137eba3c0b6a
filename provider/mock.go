package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nathoo/talecore/types"
)

// MockSeed seeds the mock's random source so runs are reproducible.
const MockSeed = 42

var mockChoices = []types.Choice{
	{ID: "press_lead", Label: "Press the lead for more detail", Hint: "May add clues, may provoke someone.", Risk: types.RiskMedium, Tags: []string{"investigate"}},
	{ID: "move_on", Label: "Move to a new location", Hint: "Advance time and seek a new angle.", Risk: types.RiskLow, Tags: []string{"travel"}},
	{ID: "lay_low", Label: "Lie low and observe", Hint: "Lower risk but lose momentum.", Risk: types.RiskLow, Tags: []string{"stealth"}},
	{ID: "trade", Label: "Trade resources for intel", Hint: "Spend to learn more.", Risk: types.RiskMedium, Tags: []string{"resource"}},
}

// Mock produces deterministic, schema-valid output that exercises the
// variables a game declares. It ignores the request.
type Mock struct {
	vars      map[string]bool
	locations []string
	rng       *RNG
	turn      int
}

// NewMock creates a mock for a game declaring vars.
func NewMock(vars map[string]bool, locations []string) *Mock {
	return &Mock{
		vars:      vars,
		locations: locations,
		rng:       NewRNG(MockSeed),
	}
}

func (m *Mock) Name() string { return "mock" }

// Turn returns the number of completions served.
func (m *Mock) Turn() int { return m.turn }

// RNG exposes the random source for diagnostics.
func (m *Mock) RNG() *RNG { return m.rng }

func (m *Mock) Close() error { return nil }

// Complete returns the next scripted turn.
func (m *Mock) Complete(ctx context.Context, _ []types.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.turn++

	updates := []types.UpdateOp{}
	add := func(op, path string, v any, reason string) {
		updates = append(updates, types.UpdateOp{Op: op, Path: path, Value: v, Reason: reason})
	}
	if m.vars["time"] {
		add(types.OpInc, "time.minute", 10, "Action takes time")
	}
	if m.vars["clues"] && m.rng.Chance(0.6) {
		add(types.OpInc, "clues", 1, "New clue found")
	}
	if m.vars["suspicion"] && m.rng.Chance(0.4) {
		add(types.OpInc, "suspicion", 2, "You draw attention")
	}
	if m.vars["energy"] && m.rng.Chance(0.4) {
		add(types.OpDec, "energy", 5, "Fatigue builds")
	}
	if m.vars["truth_map"] && m.rng.Chance(0.3) {
		add(types.OpPush, "truth_map", "A new fragment surfaces.", "Record the fact")
	}
	if m.vars["location"] && len(m.locations) > 0 && m.rng.Chance(0.2) {
		add(types.OpSet, "location", m.locations[m.rng.Pick(len(m.locations))], "Relocate")
	}

	out := types.GeneratedOutput{
		NarrativeMarkdown: fmt.Sprintf("The harbor wind tastes of salt; you press on at turn %d.\n\n"+
			"Clues are scarce, but every door in the city feels half-open.", m.turn),
		Choices:      mockChoices,
		StateUpdates: updates,
		NewFacts:     []string{},
		Events:       []types.Event{},
		End:          types.EndState{},
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
