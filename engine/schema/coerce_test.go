package schema

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nathoo/talecore/types"
)

func lastEvent(out types.GeneratedOutput) types.Event {
	return out.Events[len(out.Events)-1]
}

func TestCoerce_NonJSON(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json at all", "{broken", "[1,2]", `{"a": }`} {
		out := Coerce(raw)
		if out.NarrativeMarkdown != PlaceholderNarrative {
			t.Errorf("Coerce(%q) narrative = %q", raw, out.NarrativeMarkdown)
		}
		if len(out.Choices) != 3 || out.Choices[0].ID != "observe" || out.Choices[2].ID != "move" {
			t.Errorf("Coerce(%q) choices = %+v", raw, out.Choices)
		}
		if len(out.StateUpdates) != 0 {
			t.Errorf("Coerce(%q) updates = %+v", raw, out.StateUpdates)
		}
		if lastEvent(out).Type != "coerced_output" {
			t.Errorf("Coerce(%q) missing coerced_output event", raw)
		}
	}
}

func TestCoerce_NarrativeFallbacks(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"narrative_markdown": "a", "narrative": "b"}`, "a"},
		{`{"narrative": "b", "story": "c"}`, "b"},
		{`{"narrative_markdown": 3, "story": "c"}`, "c"},
		{`{"text": "ignored"}`, PlaceholderNarrative},
	}
	for _, tt := range tests {
		if got := Coerce(tt.raw).NarrativeMarkdown; got != tt.want {
			t.Errorf("Coerce(%s) narrative = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCoerce_Choices(t *testing.T) {
	raw := `{"choices": [
		"Open the door",
		{"text": "Knock", "risk": "extreme", "tags": ["social", 4]},
		{"id": 7, "title": "Leave", "risk": "high", "hint": "Safe."},
		42,
		{"label": 9}
	]}`
	out := Coerce(raw)

	want := []types.Choice{
		{ID: "choice_1", Label: "Open the door", Risk: "low", Tags: []string{}},
		{ID: "choice_2", Label: "Knock", Risk: "low", Tags: []string{"social"}},
		{ID: "7", Label: "Leave", Hint: "Safe.", Risk: "high", Tags: []string{}},
		{ID: "choice_5", Label: "Option 5", Risk: "low", Tags: []string{}},
	}
	if len(out.Choices) != len(want) {
		t.Fatalf("choices = %+v", out.Choices)
	}
	for i, w := range want {
		got := out.Choices[i]
		if got.ID != w.ID || got.Label != w.Label || got.Hint != w.Hint || got.Risk != w.Risk || len(got.Tags) != len(w.Tags) {
			t.Errorf("choice %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestCoerce_PadsAndTruncates(t *testing.T) {
	out := Coerce(`{"choices": ["only one"]}`)
	if len(out.Choices) != 3 || out.Choices[1].ID != "ask" || out.Choices[2].ID != "move" {
		t.Errorf("padding = %+v", out.Choices)
	}

	out = Coerce(`{"choices": ["1","2","3","4","5","6","7","8"]}`)
	if len(out.Choices) != 6 || out.Choices[5].Label != "6" {
		t.Errorf("truncation = %+v", out.Choices)
	}
}

func TestCoerce_Updates(t *testing.T) {
	raw := `{"state_updates": [
		{"op": "inc", "path": "energy", "value": 5},
		{"op": "decrement", "path": "energy", "value": 1},
		{"op": "explode", "path": "energy"},
		{"op": "set", "path": 3, "value": 1},
		"set energy 5",
		{"op": "toggle", "path": "flag", "reason": 12}
	]}`
	out := Coerce(raw)
	if len(out.StateUpdates) != 3 {
		t.Fatalf("updates = %+v", out.StateUpdates)
	}
	if out.StateUpdates[1].Op != "dec" {
		t.Errorf("alias not normalized: %q", out.StateUpdates[1].Op)
	}
	if out.StateUpdates[2].Reason != "" {
		t.Errorf("non-string reason kept: %q", out.StateUpdates[2].Reason)
	}
}

func TestCoerce_FactsEventsEnd(t *testing.T) {
	raw := `{
		"new_facts": ["a", 1, null, "b"],
		"events": [{"type": "clue", "message": "x"}, {"message": "y"}, {"type": "clue", "message": ""}, "z"],
		"end": true
	}`
	out := Coerce(raw)
	if len(out.NewFacts) != 2 {
		t.Errorf("facts = %v", out.NewFacts)
	}
	if len(out.Events) != 3 || out.Events[1].Type != "info" || out.Events[2].Type != "coerced_output" {
		t.Errorf("events = %+v", out.Events)
	}
	if !out.End.IsGameOver {
		t.Error("bare true end not honored")
	}

	out = Coerce(`{"end": {"is_game_over": 1, "ending_id": "escape", "reason": "left town"}}`)
	if !out.End.IsGameOver || out.End.EndingID != "escape" || out.End.Reason != "left town" {
		t.Errorf("end = %+v", out.End)
	}

	if Coerce(`{"end": "soon"}`).End.IsGameOver {
		t.Error("string end should default to non-terminal")
	}
}

func TestProperties_CoerceIsTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	valid := func(out types.GeneratedOutput) bool {
		return out.NarrativeMarkdown != "" &&
			len(out.Choices) >= MinChoices && len(out.Choices) <= MaxChoices &&
			len(out.Events) > 0 && lastEvent(out).Type == "coerced_output"
	}

	properties.Property("arbitrary text coerces to a valid output", prop.ForAll(
		func(raw string) bool { return valid(Coerce(raw)) },
		gen.AnyString(),
	))

	properties.Property("any number of string choices coerces to 3-6", prop.ForAll(
		func(labels []string) bool {
			raw := `{"narrative": "n", "choices": [`
			for i := range labels {
				if i > 0 {
					raw += ","
				}
				raw += `"x"`
			}
			raw += "]}"
			return valid(Coerce(raw))
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("braced noise coerces to a valid output", prop.ForAll(
		func(inner string) bool { return valid(Coerce("{" + inner + "}")) },
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
