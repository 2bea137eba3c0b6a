// Package events defines the event types the engine itself emits.
// Generated output may carry any other event type.
package events

import (
	"github.com/nathoo/talecore/types"
)

const (
	TypeRejectedUpdate = "rejected_update"
	TypeCoercedOutput  = "coerced_output"
	TypeError          = "error"
	TypeInfo           = "info"
)

// RejectedUpdate reports an update that failed validation.
func RejectedUpdate(path string) types.Event {
	return types.Event{Type: TypeRejectedUpdate, Message: "Rejected " + path}
}

// Coerced marks output that only passed lenient validation.
func Coerced() types.Event {
	return types.Event{Type: TypeCoercedOutput, Message: "Coerced invalid LLM JSON into schema."}
}

// Error reports a system-level failure to the player.
func Error(message string) types.Event {
	return types.Event{Type: TypeError, Message: message}
}

// Merge concatenates event lists in order into a new slice.
func Merge(lists ...[]types.Event) []types.Event {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]types.Event, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Filter returns the events whose type is in kinds.
func Filter(evts []types.Event, kinds ...string) []types.Event {
	var out []types.Event
	for _, e := range evts {
		for _, k := range kinds {
			if e.Type == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// System reports whether an event was produced by the engine rather than
// by the generator.
func System(e types.Event) bool {
	switch e.Type {
	case TypeRejectedUpdate, TypeCoercedOutput, TypeError:
		return true
	}
	return false
}
