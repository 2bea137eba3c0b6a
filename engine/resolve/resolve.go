// Package resolve maps player input to one of the offered choices.
package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nathoo/talecore/types"
)

// AmbiguityError indicates several choices matched the input.
type AmbiguityError struct {
	Input      string
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("which %s? (%s)", e.Input, strings.Join(e.Candidates, ", "))
}

// NotFoundError indicates no choice matched the input.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no choice matches %q", e.Input)
}

// Choice resolves input against choices. A 1-based number selects by
// position; otherwise the input must equal a choice id or label, ignoring
// case, with spaces standing in for underscores in ids.
func Choice(input string, choices []types.Choice) (types.Choice, error) {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(choices) {
			return types.Choice{}, &NotFoundError{Input: input}
		}
		return choices[n-1], nil
	}

	lower := strings.ToLower(input)
	var matches []types.Choice
	for _, c := range choices {
		if matchesChoice(c, lower) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return types.Choice{}, &NotFoundError{Input: input}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, c := range matches {
			ids[i] = c.ID
		}
		return types.Choice{}, &AmbiguityError{Input: input, Candidates: ids}
	}
}

func matchesChoice(c types.Choice, lower string) bool {
	if lower == "" {
		return false
	}
	id := strings.ToLower(c.ID)
	if id == lower || id == strings.ReplaceAll(lower, " ", "_") {
		return true
	}
	return strings.ToLower(strings.TrimSpace(c.Label)) == lower
}
