// Package state manages the game state tree, path lookups into it, and the
// per-session store of snapshots, deltas and history.
package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

// ErrPathNotFound is returned when a path does not resolve against a tree.
var ErrPathNotFound = errors.New("path not found")

// Tree is the complete mutable game state, keyed by variable id.
type Tree map[string]value.Value

// Defs holds the immutable game definitions produced by the loader.
// It is shared by reference and never mutated after loading.
type Defs struct {
	Game      types.GameDef
	Variables map[string]types.VariableDef
	Order     []string // variable ids in declaration order
	Initial   Tree
	Triggers  []types.Trigger // ascending priority, ties by source order
	Win       []string
	Lose      []string
}

// Variable returns the definition for a root variable id.
func (d *Defs) Variable(id string) (types.VariableDef, bool) {
	v, ok := d.Variables[id]
	return v, ok
}

// OrderedVariables returns variable definitions in declaration order.
func (d *Defs) OrderedVariables() []types.VariableDef {
	out := make([]types.VariableDef, 0, len(d.Order))
	for _, id := range d.Order {
		if v, ok := d.Variables[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// NewState creates a fresh game state from definitions.
func NewState(defs *Defs) Tree {
	return defs.Initial.Clone()
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	out := make(Tree, len(t))
	for k, v := range t {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether two trees hold equal values under the same keys.
func (t Tree) Equal(o Tree) bool {
	if len(t) != len(o) {
		return false
	}
	for k, v := range t {
		w, ok := o[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// Segments splits a path on "." or "/". A leading separator is ignored, so
// "/time/hour" and "time.hour" resolve identically.
func Segments(path string) []string {
	path = strings.ReplaceAll(path, "/", ".")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Root returns the first segment of a path, the variable id it addresses.
func Root(path string) string {
	segs := Segments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// IsRoot reports whether the path addresses a top-level variable directly.
func IsRoot(path string) bool {
	return len(Segments(path)) == 1
}

// Get resolves a path against the tree.
func Get(t Tree, path string) (value.Value, error) {
	segs := Segments(path)
	if len(segs) == 0 {
		return value.Value{}, fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	cur, ok := t[segs[0]]
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	for _, seg := range segs[1:] {
		obj, isObj := cur.Object()
		if !isObj {
			return value.Value{}, fmt.Errorf("%w: %q", ErrPathNotFound, path)
		}
		if cur, ok = obj[seg]; !ok {
			return value.Value{}, fmt.Errorf("%w: %q", ErrPathNotFound, path)
		}
	}
	return cur, nil
}

// Set replaces the value at an existing path. It never creates keys.
func Set(t Tree, path string, v value.Value) error {
	segs := Segments(path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	if len(segs) == 1 {
		if _, ok := t[segs[0]]; !ok {
			return fmt.Errorf("%w: %q", ErrPathNotFound, path)
		}
		t[segs[0]] = v
		return nil
	}
	parent, err := Get(t, strings.Join(segs[:len(segs)-1], "."))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	obj, ok := parent.Object()
	if !ok {
		return fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	last := segs[len(segs)-1]
	if _, ok := obj[last]; !ok {
		return fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	obj[last] = v
	return nil
}

// Exists reports whether the path resolves.
func Exists(t Tree, path string) bool {
	_, err := Get(t, path)
	return err == nil
}
