// Package replay supplies queued player inputs for automatic play.
package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for JSON documents that hold no inputs.
var ErrUnsupported = errors.New("unsupported replay format")

// Source yields inputs until exhausted.
type Source interface {
	Next() (string, bool)
}

// Queue is an interruptible FIFO of inputs. It is owned by a single loop.
type Queue struct {
	inputs      []string
	interrupted bool
}

// NewQueue creates a queue over inputs.
func NewQueue(inputs []string) *Queue {
	return &Queue{inputs: append([]string(nil), inputs...)}
}

// Next pops the next input. It reports false once the queue is empty or
// has been interrupted.
func (q *Queue) Next() (string, bool) {
	if q.interrupted || len(q.inputs) == 0 {
		return "", false
	}
	in := q.inputs[0]
	q.inputs = q.inputs[1:]
	return in, true
}

// Interrupt drops all pending inputs.
func (q *Queue) Interrupt() {
	q.interrupted = true
	q.inputs = nil
}

// Interrupted reports whether Interrupt was called.
func (q *Queue) Interrupted() bool { return q.interrupted }

// Len returns the number of pending inputs.
func (q *Queue) Len() int { return len(q.inputs) }

// LoadFile reads replay inputs from path. ".txt" and ".log" files hold one
// input per line, ".json" a string, a list, {"inputs": [...]} or
// {"input": ...}, and ".jsonl" one input or JSON document per line. Other
// extensions are tried as JSON, then as text. Blank lines and lines starting
// with '#' are skipped in line formats.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".log":
		return textLines(data), nil
	case ".jsonl":
		return jsonLines(data)
	case ".json":
		return jsonDocument(data)
	}
	if inputs, err := jsonDocument(data); err == nil {
		return inputs, nil
	}
	return textLines(data), nil
}

func textLines(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func jsonDocument(data []byte) ([]string, error) {
	text := bytes.TrimSpace(data)
	if len(text) == 0 {
		return nil, nil
	}
	if !isDocument(string(text)) {
		return jsonLines(text)
	}
	doc, err := decode(text)
	if err != nil {
		return nil, err
	}
	return normalize(doc)
}

func jsonLines(data []byte) ([]string, error) {
	var out []string
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !isDocument(line) {
			out = append(out, line)
			continue
		}
		doc, err := decode([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		inputs, err := normalize(doc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, inputs...)
	}
	return out, nil
}

// isDocument reports whether s starts like a JSON object, list or string.
func isDocument(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") || strings.HasPrefix(s, `"`)
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func normalize(doc any) ([]string, error) {
	switch d := doc.(type) {
	case string:
		return []string{d}, nil
	case []any:
		return stringify(d), nil
	case map[string]any:
		if items, ok := d["inputs"].([]any); ok {
			return stringify(items), nil
		}
		if in, ok := d["input"]; ok {
			return []string{text(in)}, nil
		}
	}
	return nil, ErrUnsupported
}

func stringify(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, text(it))
	}
	return out
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
