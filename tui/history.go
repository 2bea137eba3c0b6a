package tui

import (
	"slices"
	"strconv"
)

// History recalls earlier inputs at the prompt. Browsing starts from the
// text being typed, which is restored when browsing moves past the newest
// entry.
type History struct {
	entries []string // oldest first
	limit   int
	back    int // steps back from the draft; 0 while editing
	draft   string
}

// NewHistory creates a history holding at most limit entries.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Push records input and ends browsing. An earlier copy of the same input
// moves to the newest slot. Bare choice numbers are not kept since they
// only mean something for the turn that offered them.
func (h *History) Push(input string) {
	h.back, h.draft = 0, ""
	if _, err := strconv.Atoi(input); err == nil {
		return
	}
	if i := slices.Index(h.entries, input); i >= 0 {
		h.entries = slices.Delete(h.entries, i, i+1)
	}
	h.entries = append(h.entries, input)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = slices.Delete(h.entries, 0, over)
	}
}

// Len returns the number of stored entries.
func (h *History) Len() int { return len(h.entries) }

// Back steps to an older entry, remembering draft on the first step. It
// stays on the oldest entry and reports false when there is nothing to
// recall.
func (h *History) Back(draft string) (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.back == 0 {
		h.draft = draft
	}
	if h.back < len(h.entries) {
		h.back++
	}
	return h.entries[len(h.entries)-h.back], true
}

// Forward steps to a newer entry. Past the newest it returns the saved
// draft and reports false.
func (h *History) Forward() (string, bool) {
	if h.back == 0 {
		return h.draft, false
	}
	h.back--
	if h.back == 0 {
		return h.draft, false
	}
	return h.entries[len(h.entries)-h.back], true
}
