package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

// StatusEntry is one rendered status bar item.
type StatusEntry struct {
	Label    string
	Value    string
	Delta    string // signed change, empty when unchanged or not shown
	Critical bool
	Meter    bool
	Fraction float64 // position within the variable's bounds, meters only
}

// Card is one entry of the variable panel.
type Card struct {
	ID          string
	Label       string
	Value       string
	Change      string
	Description string
	Format      string
}

// Status renders the game's status bar against the current state.
func (e *Engine) Status() []StatusEntry {
	store := e.Store
	out := make([]StatusEntry, 0, len(e.Defs.Game.StatusBar))
	for _, item := range e.Defs.Game.StatusBar {
		entry := StatusEntry{Label: item.Label, Value: "?"}
		if entry.Label == "" {
			entry.Label = item.VarID
		}
		v, err := store.Value(item.VarID)
		if err == nil {
			entry.Value = FormatValue(v)
		}
		if d, ok := store.Delta(item.VarID); ok && item.ShowDelta && d.NumericDelta != nil && *d.NumericDelta != 0 {
			entry.Delta = fmt.Sprintf("%+g", *d.NumericDelta)
		}
		if f, ok := v.Float(); ok {
			if item.CriticalThreshold != nil && f <= *item.CriticalThreshold {
				entry.Critical = true
			}
			if item.Style == "meter" {
				entry.Meter, entry.Fraction = e.meter(item.VarID, f)
			}
		}
		out = append(out, entry)
	}
	return out
}

func (e *Engine) meter(path string, f float64) (bool, float64) {
	def, ok := e.Defs.Variable(state.Root(path))
	if !ok || def.Min == nil || def.Max == nil || *def.Max <= *def.Min {
		return false, 0
	}
	frac := (f - *def.Min) / (*def.Max - *def.Min)
	return true, min(max(frac, 0), 1)
}

// Cards returns the visible variables in card order with their last change.
func (e *Engine) Cards() []Card {
	var defs []types.VariableDef
	for _, def := range e.Defs.OrderedVariables() {
		if def.Card.Visible {
			defs = append(defs, def)
		}
	}
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Card.Order < defs[j].Card.Order })

	cards := make([]Card, 0, len(defs))
	for _, def := range defs {
		c := Card{
			ID:          def.ID,
			Label:       def.Label,
			Value:       FormatValue(e.Store.State[def.ID]),
			Description: def.Card.Description,
			Format:      def.Card.Format,
		}
		if d, ok := e.Store.Delta(def.ID); ok && d.Changed {
			c.Change = d.Summary
		}
		cards = append(cards, c)
	}
	return cards
}

// FormatValue renders a state value for display. Objects holding hour and
// minute render as a clock, lists as a comma-separated line.
func FormatValue(v value.Value) string {
	switch v.Kind() {
	case value.Object:
		obj, _ := v.Object()
		hour, hok := obj["hour"].Float()
		minute, mok := obj["minute"].Float()
		if hok && mok {
			day := 1.0
			if d, ok := obj["day"].Float(); ok {
				day = d
			}
			return fmt.Sprintf("D%d %02d:%02d", int(day), int(hour), int(minute))
		}
		return v.String()
	case value.List:
		items, _ := v.List()
		if len(items) == 0 {
			return "(empty)"
		}
		parts := make([]string, len(items))
		for i, it := range items {
			if s, ok := it.Str(); ok {
				parts[i] = s
			} else {
				parts[i] = it.String()
			}
		}
		return strings.Join(parts, ", ")
	case value.String:
		s, _ := v.Str()
		return s
	default:
		return v.String()
	}
}
