package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nathoo/talecore/types"
)

// TurnLogFile is the transcript file name inside the log directory.
const TurnLogFile = "turns.jsonl"

// TurnEntry is one line of the turn transcript.
type TurnEntry struct {
	TurnIndex       int              `json:"turn_index"`
	PlayerInput     string           `json:"player_input"`
	Prompt          []types.Message  `json:"prompt"`
	RawOutput       string           `json:"raw_output"`
	UsedFallback    bool             `json:"used_fallback"`
	AppliedUpdates  []types.UpdateOp `json:"applied_updates"`
	RejectedUpdates []types.UpdateOp `json:"rejected_updates"`
	Events          []types.Event    `json:"events"`
	End             types.EndState   `json:"end"`
}

// TurnLog appends turn entries as JSON lines. The file is opened per write
// so an external rotation or deletion is picked up on the next turn.
type TurnLog struct {
	mu   sync.Mutex
	path string
}

// NewTurnLog creates dir if needed and returns a log writing to
// dir/turns.jsonl.
func NewTurnLog(dir string) (*TurnLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	return &TurnLog{path: filepath.Join(dir, TurnLogFile)}, nil
}

// Path returns the transcript file path.
func (l *TurnLog) Path() string { return l.path }

// Write appends one entry.
func (l *TurnLog) Write(e TurnEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding turn entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening turn log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("writing turn log: %w", err)
	}
	return f.Close()
}
