// Package schema validates untrusted generator output.
//
// Parse is strict and returns *Error on any deviation from the output
// contract. Coerce is lenient and never fails.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nathoo/talecore/engine/effects"
	"github.com/nathoo/talecore/types"
)

// Output bounds.
const (
	MinChoices = 3
	MaxChoices = 6
	MaxUpdates = 6
)

// ErrNoJSON is returned when no object can be located in the raw text.
var ErrNoJSON = errors.New("no JSON object found")

// Error is a strict validation failure.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

//go:embed output.schema.json
var outputSchema []byte

// JSONSchema returns the JSON Schema document describing valid output.
func JSONSchema() json.RawMessage {
	return json.RawMessage(bytes.Clone(outputSchema))
}

// ExtractJSON locates the candidate object in raw. If the trimmed text is
// itself braced it is used whole; otherwise the span from the first '{' to
// the last '}' is returned.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

type wireChoice struct {
	ID    *string  `json:"id"`
	Label *string  `json:"label"`
	Hint  string   `json:"hint"`
	Risk  *string  `json:"risk"`
	Tags  []string `json:"tags"`
}

type wireUpdate struct {
	Op     *string `json:"op"`
	Path   *string `json:"path"`
	Value  any     `json:"value"`
	Reason string  `json:"reason"`
}

type wireEvent struct {
	Type    *string `json:"type"`
	Message *string `json:"message"`
}

type wireOutput struct {
	NarrativeMarkdown *string         `json:"narrative_markdown"`
	Choices           *[]wireChoice   `json:"choices"`
	StateUpdates      *[]wireUpdate   `json:"state_updates"`
	NewFacts          []string        `json:"new_facts"`
	Events            []wireEvent     `json:"events"`
	End               *types.EndState `json:"end"`
}

// Parse strictly validates raw generator text.
func Parse(raw string) (types.GeneratedOutput, error) {
	text, err := ExtractJSON(raw)
	if err != nil {
		return types.GeneratedOutput{}, &Error{Err: err}
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var w wireOutput
	if err := dec.Decode(&w); err != nil {
		return types.GeneratedOutput{}, &Error{Msg: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return types.GeneratedOutput{}, &Error{Msg: "invalid JSON: trailing data after object"}
	}

	return w.validate()
}

func (w *wireOutput) validate() (types.GeneratedOutput, error) {
	fail := func(format string, args ...any) (types.GeneratedOutput, error) {
		return types.GeneratedOutput{}, &Error{Msg: fmt.Sprintf(format, args...)}
	}

	if w.NarrativeMarkdown == nil {
		return fail("narrative_markdown is required")
	}
	if w.Choices == nil {
		return fail("choices is required")
	}
	if w.StateUpdates == nil {
		return fail("state_updates is required")
	}
	if n := len(*w.Choices); n < MinChoices || n > MaxChoices {
		return fail("choices must be %d-%d, got %d", MinChoices, MaxChoices, n)
	}
	if n := len(*w.StateUpdates); n > MaxUpdates {
		return fail("state_updates must be 0-%d, got %d", MaxUpdates, n)
	}

	out := types.GeneratedOutput{
		NarrativeMarkdown: *w.NarrativeMarkdown,
		Choices:           make([]types.Choice, 0, len(*w.Choices)),
		StateUpdates:      make([]types.UpdateOp, 0, len(*w.StateUpdates)),
		NewFacts:          []string{},
		Events:            []types.Event{},
	}

	for i, c := range *w.Choices {
		if c.ID == nil || c.Label == nil {
			return fail("choices[%d]: id and label are required", i)
		}
		risk := types.RiskLow
		if c.Risk != nil {
			if !validRisk(*c.Risk) {
				return fail("choices[%d]: invalid risk %q", i, *c.Risk)
			}
			risk = *c.Risk
		}
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		out.Choices = append(out.Choices, types.Choice{ID: *c.ID, Label: *c.Label, Hint: c.Hint, Risk: risk, Tags: tags})
	}

	for i, u := range *w.StateUpdates {
		if u.Op == nil || u.Path == nil {
			return fail("state_updates[%d]: op and path are required", i)
		}
		op, ok := effects.CanonicalOp(*u.Op)
		if !ok {
			return fail("state_updates[%d]: unknown op %q", i, *u.Op)
		}
		out.StateUpdates = append(out.StateUpdates, types.UpdateOp{Op: op, Path: *u.Path, Value: u.Value, Reason: u.Reason})
	}

	if w.NewFacts != nil {
		out.NewFacts = w.NewFacts
	}
	for i, e := range w.Events {
		if e.Type == nil || e.Message == nil {
			return fail("events[%d]: type and message are required", i)
		}
		out.Events = append(out.Events, types.Event{Type: *e.Type, Message: *e.Message})
	}
	if w.End != nil {
		out.End = *w.End
	}
	return out, nil
}

func validRisk(r string) bool {
	switch r {
	case types.RiskLow, types.RiskMedium, types.RiskHigh:
		return true
	}
	return false
}
