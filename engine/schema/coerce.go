package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nathoo/talecore/engine/effects"
	"github.com/nathoo/talecore/engine/events"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

// PlaceholderNarrative is used when coerced output carries no narrative.
const PlaceholderNarrative = "You gather your thoughts. The night presses on."

// DefaultChoices pad coerced output that offers fewer than MinChoices.
func DefaultChoices() []types.Choice {
	return []types.Choice{
		{ID: "observe", Label: "Observe your surroundings", Hint: "Steady the situation first.", Risk: types.RiskLow, Tags: []string{"stealth"}},
		{ID: "ask", Label: "Press for details", Hint: "May turn up a lead.", Risk: types.RiskMedium, Tags: []string{"investigate"}},
		{ID: "move", Label: "Move elsewhere", Hint: "Advances time and the situation.", Risk: types.RiskMedium, Tags: []string{"travel"}},
	}
}

// Coerce repairs raw generator text into a valid output. Text that holds no
// decodable object is treated as an empty object. The result always carries
// a coerced_output event.
func Coerce(raw string) types.GeneratedOutput {
	data := decodeObject(raw)

	out := types.GeneratedOutput{
		NarrativeMarkdown: coerceNarrative(data),
		Choices:           coerceChoices(data["choices"]),
		StateUpdates:      coerceUpdates(data["state_updates"]),
		NewFacts:          stringsOnly(data["new_facts"]),
		Events:            coerceEvents(data["events"]),
		End:               coerceEnd(data["end"]),
	}
	out.Events = append(out.Events, events.Coerced())
	return out
}

func decodeObject(raw string) map[string]any {
	text, err := ExtractJSON(raw)
	if err != nil {
		return map[string]any{}
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil || data == nil {
		return map[string]any{}
	}
	return data
}

func coerceNarrative(data map[string]any) string {
	for _, key := range []string{"narrative_markdown", "narrative", "story"} {
		if s, ok := data[key].(string); ok {
			return s
		}
	}
	return PlaceholderNarrative
}

func coerceChoices(raw any) []types.Choice {
	choices := []types.Choice{}
	items, _ := raw.([]any)
	for i, item := range items {
		fallbackID := fmt.Sprintf("choice_%d", i+1)
		switch c := item.(type) {
		case string:
			choices = append(choices, types.Choice{ID: fallbackID, Label: c, Risk: types.RiskLow, Tags: []string{}})
		case map[string]any:
			label := fmt.Sprintf("Option %d", i+1)
			for _, key := range []string{"label", "text", "title"} {
				if v := c[key]; truthy(v) {
					if s, ok := v.(string); ok {
						label = s
					}
					break
				}
			}
			id := fallbackID
			if v := c["id"]; truthy(v) && scalarText(v) != "" {
				id = scalarText(v)
			}
			hint, _ := c["hint"].(string)
			risk, _ := c["risk"].(string)
			if !validRisk(risk) {
				risk = types.RiskLow
			}
			choices = append(choices, types.Choice{ID: id, Label: label, Hint: hint, Risk: risk, Tags: stringsOnly(c["tags"])})
		}
	}

	if len(choices) < MinChoices {
		choices = append(choices, DefaultChoices()[len(choices):MinChoices]...)
	}
	if len(choices) > MaxChoices {
		choices = choices[:MaxChoices]
	}
	return choices
}

func coerceUpdates(raw any) []types.UpdateOp {
	updates := []types.UpdateOp{}
	items, _ := raw.([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		opName, _ := m["op"].(string)
		op, ok := effects.CanonicalOp(opName)
		if !ok {
			continue
		}
		path, ok := m["path"].(string)
		if !ok {
			continue
		}
		reason, _ := m["reason"].(string)
		updates = append(updates, types.UpdateOp{Op: op, Path: path, Value: m["value"], Reason: reason})
	}
	return updates
}

func coerceEvents(raw any) []types.Event {
	evts := []types.Event{}
	items, _ := raw.([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, ok := m["type"].(string)
		if !ok {
			typ = events.TypeInfo
		}
		msg, _ := m["message"].(string)
		if msg == "" {
			continue
		}
		evts = append(evts, types.Event{Type: typ, Message: msg})
	}
	return evts
}

func coerceEnd(raw any) types.EndState {
	switch e := raw.(type) {
	case map[string]any:
		end := types.EndState{IsGameOver: truthy(e["is_game_over"])}
		if v, ok := e["ending_id"]; ok {
			end.EndingID = scalarText(v)
		}
		if v, ok := e["reason"]; ok {
			end.Reason = scalarText(v)
		}
		return end
	case bool:
		return types.EndState{IsGameOver: e}
	}
	return types.EndState{}
}

func stringsOnly(raw any) []string {
	out := []string{}
	items, _ := raw.([]any)
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func truthy(v any) bool {
	tv, err := value.FromAny(v)
	if err != nil {
		return false
	}
	return tv.Truthy()
}

// scalarText renders a decoded scalar as text. Composite values render empty.
func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	}
	return ""
}
