// Package cli provides the plain line-mode front end: terminal I/O, output
// formatting and meta-command dispatch.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nathoo/talecore/engine"
	"github.com/nathoo/talecore/engine/replay"
	"github.com/nathoo/talecore/engine/save"
	"github.com/nathoo/talecore/types"
)

// DefaultSaveName is used by /save and /load without an argument.
const DefaultSaveName = "quicksave"

// CLI handles terminal interaction with the player.
type CLI struct {
	Engine    *engine.Engine
	Saves     save.Store
	In        io.Reader
	Out       io.Writer
	Trace     bool
	EchoInput bool   // echo each input line after the prompt (for script playback)
	Replay    string // inputs file played after the intro

	queue *replay.Queue
}

// New creates a CLI wired to the given engine and save store.
func New(eng *engine.Engine, saves save.Store) *CLI {
	return &CLI{
		Engine: eng,
		Saves:  saves,
		In:     os.Stdin,
		Out:    os.Stdout,
	}
}

// Run shows the intro, then loops: prompt, input, dispatch, output. It
// returns when input ends, the player quits, or ctx is cancelled.
func (c *CLI) Run(ctx context.Context) error {
	g := c.Engine.Defs.Game
	c.printLine(g.Title)
	if g.Intro != "" {
		c.printLine("")
		c.printLine(g.Intro)
	}
	c.printLine("")
	c.printStatus()

	if c.Replay != "" {
		if err := c.StartReplay(ctx, c.Replay); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}

	scanner := bufio.NewScanner(c.In)
	for ctx.Err() == nil {
		c.print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" || strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		if strings.HasPrefix(input, "/") {
			if c.handleMeta(ctx, input) {
				return nil
			}
			continue
		}

		if c.queue != nil {
			c.queue.Interrupt()
			c.queue = nil
			c.printSystem("Replay stopped.")
		}
		r := c.Engine.Step(ctx, input)
		c.printResult(r)
		if r.Exit {
			c.printSystem("Goodbye.")
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return ctx.Err()
}

// StartReplay queues the inputs in path and plays them.
func (c *CLI) StartReplay(ctx context.Context, path string) error {
	inputs, err := replay.LoadFile(path)
	if err != nil {
		return err
	}
	c.queue = replay.NewQueue(inputs)
	c.printSystem(fmt.Sprintf("Replaying %d inputs from %s.", len(inputs), path))
	c.runQueue(ctx)
	return nil
}

func (c *CLI) runQueue(ctx context.Context) {
	reason := c.Engine.Autoplay(ctx, c.queue, func(input string, r engine.TurnResult) {
		c.printLine("> " + input)
		c.printResult(r)
	})
	switch reason {
	case engine.StopFinished:
		c.printSystem("Replay finished.")
		c.queue = nil
	case engine.StopFallback:
		c.printSystem(fmt.Sprintf("Replay paused after a failed turn (%d inputs left). Use /replay to resume or /replay stop.", c.queue.Len()))
	case engine.StopGameOver:
		c.printSystem("Replay stopped: game over.")
		c.queue = nil
	default:
		c.printSystem("Replay interrupted.")
		c.queue = nil
	}
}

// handleMeta dispatches meta-commands. Returns true if the game should exit.
func (c *CLI) handleMeta(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		c.printSystem("Goodbye.")
		return true

	case "/save":
		c.cmdSave(ctx, arg)

	case "/load":
		c.cmdLoad(ctx, arg)

	case "/saves":
		c.cmdSaves(ctx)

	case "/replay":
		c.cmdReplay(ctx, arg)

	case "/help":
		c.cmdHelp()

	case "/state":
		c.cmdState()

	case "/trace":
		c.Trace = !c.Trace
		if c.Trace {
			c.printSystem("Trace output enabled.")
		} else {
			c.printSystem("Trace output disabled.")
		}

	default:
		c.printSystem(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
	}

	return false
}

func (c *CLI) cmdSave(ctx context.Context, name string) {
	if name == "" {
		name = DefaultSaveName
	}
	if err := c.Engine.Save(ctx, c.Saves, name); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}
	c.printSystem(fmt.Sprintf("Game saved to %s.", name))
}

func (c *CLI) cmdLoad(ctx context.Context, name string) {
	if name == "" {
		name = DefaultSaveName
	}
	if err := c.Engine.Load(ctx, c.Saves, name); err != nil {
		if errors.Is(err, save.ErrNotFound) {
			c.printSystem(fmt.Sprintf("No save named %s.", name))
			return
		}
		c.printSystem(fmt.Sprintf("Load failed: %v", err))
		return
	}
	c.printSystem(fmt.Sprintf("Game loaded from %s (turn %d).", name, len(c.Engine.Store.History)))
	c.printStatus()
	c.printChoices(c.Engine.Store.LastChoices)
}

func (c *CLI) cmdSaves(ctx context.Context) {
	names, err := c.Saves.List(ctx)
	if err != nil {
		c.printSystem(fmt.Sprintf("Listing saves failed: %v", err))
		return
	}
	if len(names) == 0 {
		c.printSystem("No saves.")
		return
	}
	c.printSystem("Saves: " + strings.Join(names, ", "))
}

func (c *CLI) cmdReplay(ctx context.Context, arg string) {
	switch {
	case arg == "stop":
		if c.queue == nil {
			c.printSystem("No replay in progress.")
			return
		}
		c.queue.Interrupt()
		c.queue = nil
		c.printSystem("Replay stopped.")
	case arg == "" && c.queue != nil:
		c.runQueue(ctx)
	case arg == "":
		c.printSystem("Usage: /replay <file> | /replay stop")
	default:
		if err := c.StartReplay(ctx, arg); err != nil {
			c.printSystem(fmt.Sprintf("Replay failed: %v", err))
		}
	}
}

func (c *CLI) cmdHelp() {
	help := []string{
		"System:",
		"  /save [name]    Save game (default: quicksave)",
		"  /load [name]    Load game (default: quicksave)",
		"  /saves          List saves",
		"  /replay <file>  Play inputs from a file",
		"  /replay         Resume a paused replay",
		"  /replay stop    Abandon the current replay",
		"  /state          Debug: dump current state",
		"  /trace          Toggle raw output and update trace",
		"  /help           Show this help",
		"  /quit           Exit game",
		"",
		"Play:",
		"  Type a choice number or describe what you do.",
		"  After a failed turn: retry, rollback or exit.",
	}
	for _, line := range help {
		c.printLine(line)
	}
}

func (c *CLI) cmdState() {
	store := c.Engine.Store
	c.printSystem(fmt.Sprintf("Turn: %d", len(store.History)))
	for _, id := range c.Engine.Defs.Order {
		c.printSystem(fmt.Sprintf("%s = %s", id, store.State[id]))
	}
	if ids := store.TriggeredIDs(); len(ids) > 0 {
		c.printSystem("Triggered: " + strings.Join(ids, ", "))
	}
	if store.MemorySummary != "" {
		c.printSystem("Memory: " + store.MemorySummary)
	}
}

func (c *CLI) printResult(r engine.TurnResult) {
	if r.Notice != "" {
		c.printSystem(r.Notice)
	}
	if r.Turn == nil {
		return
	}
	c.printLine("")
	c.printLine(strings.TrimSpace(r.Turn.NarrativeMarkdown))
	c.printLine("")
	for _, ev := range r.Turn.Events {
		c.printLine(fmt.Sprintf("! [%s] %s", ev.Type, ev.Message))
	}
	c.printStatus()
	if c.Trace {
		c.printTrace(r)
	}
	if r.Turn.End.IsGameOver {
		c.printEnd(r.Turn.End)
		return
	}
	c.printChoices(r.Turn.Choices)
}

func (c *CLI) printEnd(end types.EndState) {
	msg := "THE END"
	if end.EndingID != "" {
		msg += " (" + end.EndingID + ")"
	}
	if end.Reason != "" {
		msg += ": " + end.Reason
	}
	c.printSystem(msg)
}

func (c *CLI) printChoices(choices []types.Choice) {
	for i, ch := range choices {
		line := fmt.Sprintf("%d. %s", i+1, ch.Label)
		if ch.Hint != "" {
			line += " - " + ch.Hint
		}
		c.printLine(line)
	}
}

func (c *CLI) printStatus() {
	var parts []string
	for _, s := range c.Engine.Status() {
		text := s.Label + ": " + s.Value
		if s.Delta != "" {
			text += " (" + s.Delta + ")"
		}
		if s.Critical {
			text += " !"
		}
		parts = append(parts, text)
	}
	if len(parts) > 0 {
		c.printLine(strings.Join(parts, " | "))
	}
}

func (c *CLI) printTrace(r engine.TurnResult) {
	c.printSystem(fmt.Sprintf("[trace] fallback=%v", r.UsedFallback))
	for _, u := range r.Turn.AppliedUpdates {
		c.printSystem(fmt.Sprintf("[trace]   applied %s %s %v", u.Op, u.Path, jsonText(u.Value)))
	}
	for _, u := range r.Turn.RejectedUpdates {
		c.printSystem(fmt.Sprintf("[trace]   rejected %s %s %v", u.Op, u.Path, jsonText(u.Value)))
	}
	if raw := c.Engine.LastRaw(); raw != "" {
		c.printSystem("[trace] raw: " + raw)
	}
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
