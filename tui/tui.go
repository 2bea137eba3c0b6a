// Package tui provides a Bubble Tea terminal UI: a markdown story pane, a
// variable panel, the status bar, choices and events.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/talecore/engine"
	"github.com/nathoo/talecore/engine/replay"
	"github.com/nathoo/talecore/engine/save"
	"github.com/nathoo/talecore/types"
)

const (
	defaultSaveName = "quicksave"
	historyLimit    = 100
	choicesHeight   = 7
	eventsHeight    = 3
)

// rawLine stores an unstyled transcript line with its classification,
// so it can be re-rendered when the terminal is resized.
type rawLine struct {
	text string
	kind lineKind
}

type keyMap struct {
	Quit     key.Binding
	Submit   key.Binding
	Prev     key.Binding
	Next     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Prev:     key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous input")),
	Next:     key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next input")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
}

// Model is the Bubble Tea model for the game UI. The engine is only touched
// from Update and from the single in-flight turn command; View reads the
// snapshots taken after each turn.
type Model struct {
	ctx    context.Context
	engine *engine.Engine
	saves  save.Store

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	history  *History
	renderer *glamour.TermRenderer
	style    string

	lines   []rawLine
	status  []engine.StatusEntry
	cards   []engine.Card
	choices []types.Choice
	events  []types.Event
	turn    int

	queue      *replay.Queue
	replayPath string

	width    int
	height   int
	ready    bool
	busy     bool
	trace    bool
	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithReplay plays the inputs in path once the UI starts.
func WithReplay(path string) Option {
	return func(m *Model) { m.replayPath = path }
}

// WithTrace starts with trace output enabled.
func WithTrace(on bool) Option {
	return func(m *Model) { m.trace = on }
}

// WithStyle selects the glamour markdown style.
func WithStyle(style string) Option {
	return func(m *Model) { m.style = style }
}

// turnMsg carries a finished turn into the Update loop.
type turnMsg struct {
	input  string
	result engine.TurnResult
}

// replayMsg asks Update to start a replay.
type replayMsg struct {
	path string
}

// New creates a TUI model wired to the given engine and save store.
func New(ctx context.Context, eng *engine.Engine, saves save.Store, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Enter a number or action..."
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 512
	ti.PromptStyle = styleInputPrompt

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:     ctx,
		engine:  eng,
		saves:   saves,
		input:   ti,
		spinner: sp,
		history: NewHistory(historyLimit),
		style:   "dark",
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.snapshot()

	g := eng.Defs.Game
	if g.Intro != "" {
		m.lines = append(m.lines, rawLine{text: g.Intro, kind: kindNarrative})
	}
	return m
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(ctx context.Context, eng *engine.Engine, saves save.Store, opts ...Option) error {
	m := New(ctx, eng, saves, opts...)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init starts the cursor blink and a pending replay.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.replayPath != "" {
		path := m.replayPath
		cmds = append(cmds, func() tea.Msg { return replayMsg{path: path} })
	}
	return tea.Batch(cmds...)
}

// Update handles key presses, resizes, finished turns and replays.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Submit):
			return m.handleEnter()

		case key.Matches(msg, keys.Prev):
			if prev, ok := m.history.Back(m.input.Value()); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Next):
			next, _ := m.history.Forward()
			m.input.SetValue(next)
			m.input.CursorEnd()
			return m, nil

		case key.Matches(msg, keys.PageUp), key.Matches(msg, keys.PageDown):
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

	case turnMsg:
		return m.handleTurn(msg)

	case replayMsg:
		return m.startReplay(msg.path)

	case spinner.TickMsg:
		var spCmd tea.Cmd
		m.spinner, spCmd = m.spinner.Update(msg)
		cmds = append(cmds, spCmd)
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

// handleEnter processes the submitted input line.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	if input == "" {
		return m, nil
	}
	if m.busy && input != "/replay stop" && input != "/quit" {
		m.system("Waiting for the story to continue...")
		return m, nil
	}
	m.input.SetValue("")
	m.history.Push(input)

	if strings.HasPrefix(input, "/") {
		m.lines = append(m.lines, rawLine{text: input, kind: kindInput})
		return m.handleMeta(input)
	}
	if m.queue != nil {
		m.queue.Interrupt()
		m.queue = nil
		m.system("Replay stopped.")
	}
	return m.send(input)
}

// send echoes input and starts a turn in the background.
func (m Model) send(input string) (Model, tea.Cmd) {
	m.lines = append(m.lines, rawLine{text: input, kind: kindInput})
	m.refresh()
	m.busy = true
	eng, ctx := m.engine, m.ctx
	return m, func() tea.Msg {
		return turnMsg{input: input, result: eng.Step(ctx, input)}
	}
}

// handleTurn renders a finished turn and advances an active replay.
func (m Model) handleTurn(msg turnMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	r := msg.result
	if r.Exit {
		m.quitting = true
		return m, tea.Quit
	}
	if r.Notice != "" {
		m.lines = append(m.lines, rawLine{text: r.Notice, kind: kindSystem})
	}
	if r.Turn != nil {
		m.lines = append(m.lines, rawLine{text: r.Turn.NarrativeMarkdown, kind: kindNarrative})
		if m.trace {
			m.appendTrace(r)
		}
		if r.Turn.End.IsGameOver {
			m.lines = append(m.lines, rawLine{text: endText(r.Turn.End), kind: kindSystem})
		}
		m.events = r.Turn.Events
	}
	m.snapshot()

	if m.queue == nil {
		m.refresh()
		return m, nil
	}
	return m.advanceReplay(r)
}

func (m Model) advanceReplay(r engine.TurnResult) (Model, tea.Cmd) {
	switch {
	case m.queue.Interrupted():
		m.queue = nil
		return m, nil
	case m.engine.GameOver():
		m.queue = nil
		m.system("Replay stopped: game over.")
		return m, nil
	case r.UsedFallback:
		m.system(fmt.Sprintf("Replay paused after a failed turn (%d inputs left). Use /replay to resume or /replay stop.", m.queue.Len()))
		return m, nil
	}
	next, ok := m.queue.Next()
	if !ok {
		m.queue = nil
		m.system("Replay finished.")
		return m, nil
	}
	return m.send(next)
}

func (m Model) startReplay(path string) (Model, tea.Cmd) {
	inputs, err := replay.LoadFile(path)
	if err != nil {
		m.system(fmt.Sprintf("Replay failed: %v", err))
		return m, nil
	}
	m.queue = replay.NewQueue(inputs)
	m.system(fmt.Sprintf("Replaying %d inputs from %s.", len(inputs), path))
	if m.busy {
		return m, nil
	}
	return m.advanceReplay(engine.TurnResult{})
}

// snapshot copies the display state out of the engine.
func (m *Model) snapshot() {
	m.status = m.engine.Status()
	m.cards = m.engine.Cards()
	m.choices = m.engine.Store.LastChoices
	m.turn = len(m.engine.Store.History)
}

func (m *Model) system(text string) {
	m.lines = append(m.lines, rawLine{text: text, kind: kindSystem})
	m.refresh()
}

func (m *Model) appendTrace(r engine.TurnResult) {
	add := func(s string) { m.lines = append(m.lines, rawLine{text: s, kind: kindTrace}) }
	add(fmt.Sprintf("[trace] fallback=%v", r.UsedFallback))
	for _, u := range r.Turn.AppliedUpdates {
		add(fmt.Sprintf("[trace]   applied %s %s %s", u.Op, u.Path, jsonText(u.Value)))
	}
	for _, u := range r.Turn.RejectedUpdates {
		add(fmt.Sprintf("[trace]   rejected %s %s %s", u.Op, u.Path, jsonText(u.Value)))
	}
	if raw := m.engine.LastRaw(); raw != "" {
		add("[trace] raw: " + raw)
	}
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func endText(end types.EndState) string {
	msg := "THE END"
	if end.EndingID != "" {
		msg += " (" + end.EndingID + ")"
	}
	if end.Reason != "" {
		msg += ": " + end.Reason
	}
	return msg
}

// storyWidth is the width left for the story column beside the panel.
func (m Model) storyWidth() int {
	return max(m.width-panelWidth, 20)
}

func (m *Model) resize() {
	vpHeight := max(m.height-3-choicesHeight-eventsHeight, 3) // header + status + input
	if !m.ready {
		m.viewport = viewport.New(m.storyWidth(), vpHeight)
		m.viewport.KeyMap = viewportKeyMap()
		m.ready = true
	} else {
		m.viewport.Width = m.storyWidth()
		m.viewport.Height = vpHeight
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(m.storyWidth()-2),
	)
	if err == nil {
		m.renderer = r
	}
	m.refresh()
}

// refresh re-renders the transcript at the current width.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	width := m.storyWidth()

	var out []string
	for _, rl := range m.lines {
		switch rl.kind {
		case kindNarrative:
			out = append(out, m.renderMarkdown(rl.text, width))
		case kindInput:
			out = append(out, stylePlayerInput.Render(wordWrap("> "+rl.text, width)))
		case kindTrace:
			out = append(out, styleTrace.Render(wordWrap(rl.text, width)))
		default:
			out = append(out, styledSystemMsg(wordWrap(rl.text, width-2)))
		}
	}
	m.viewport.SetContent(strings.Join(out, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) renderMarkdown(text string, width int) string {
	if m.renderer != nil {
		if s, err := m.renderer.Render(text); err == nil {
			return strings.TrimRight(s, "\n")
		}
	}
	return styleNarrative.Render(wordWrap(strings.TrimSpace(text), width))
}

// View renders header, status bar, panel, story, choices, events and input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	g := m.engine.Defs.Game
	header := g.Title
	if g.Tone != "" {
		header += " - " + g.Tone
	}

	story := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.renderChoices(),
		m.renderEvents(),
	)
	main := lipgloss.JoinHorizontal(lipgloss.Top, m.renderPanel(lipgloss.Height(story)), story)

	input := m.input.View()
	if m.busy {
		input = m.spinner.View() + " thinking..."
	}
	return strings.Join([]string{
		styleHeader.Render(header),
		m.renderStatusBar(),
		main,
		input,
	}, "\n")
}

func (m Model) renderChoices() string {
	width := m.storyWidth()
	lines := []string{}
	if len(m.choices) == 0 {
		lines = append(lines, styleHint.Render("(no choices yet)"))
	}
	for i, c := range m.choices {
		line := styleChoice.Render(fmt.Sprintf("%d. %s", i+1, c.Label))
		if c.Hint != "" {
			line += styleHint.Render(" - " + c.Hint)
		}
		lines = append(lines, line)
	}
	return lipgloss.NewStyle().Width(width).Height(choicesHeight).MaxHeight(choicesHeight).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderEvents() string {
	lines := make([]string, 0, len(m.events))
	for _, e := range m.events {
		lines = append(lines, styledEvent(e))
	}
	return lipgloss.NewStyle().Width(m.storyWidth()).Height(eventsHeight).MaxHeight(eventsHeight).
		Render(strings.Join(lines, "\n"))
}

// handleMeta dispatches meta-commands.
func (m Model) handleMeta(input string) (tea.Model, tea.Cmd) {
	out, quit := m.meta(input)
	for _, line := range out {
		m.lines = append(m.lines, rawLine{text: line, kind: kindSystem})
	}
	m.refresh()
	if quit {
		m.quitting = true
		return m, tea.Quit
	}
	if fields := strings.Fields(input); fields[0] == "/replay" {
		switch {
		case len(fields) > 1 && fields[1] != "stop":
			return m.startReplay(fields[1])
		case len(fields) == 1 && m.queue != nil && !m.busy:
			return m.advanceReplay(engine.TurnResult{})
		}
	}
	return m, nil
}

// meta runs a meta-command and returns its output lines and whether the
// program should exit. /replay with a file is started by handleMeta.
func (m *Model) meta(input string) ([]string, bool) {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		return []string{"Goodbye."}, true

	case "/save":
		return m.cmdSave(arg), false

	case "/load":
		return m.cmdLoad(arg), false

	case "/saves":
		return m.cmdSaves(), false

	case "/replay":
		return m.cmdReplay(arg), false

	case "/help":
		return cmdHelp(), false

	case "/state":
		return m.cmdState(), false

	case "/trace":
		m.trace = !m.trace
		if m.trace {
			return []string{"Trace output enabled."}, false
		}
		return []string{"Trace output disabled."}, false

	default:
		return []string{fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)}, false
	}
}

func (m *Model) cmdSave(name string) []string {
	if name == "" {
		name = defaultSaveName
	}
	if err := m.engine.Save(m.ctx, m.saves, name); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	return []string{fmt.Sprintf("Game saved to %s.", name)}
}

func (m *Model) cmdLoad(name string) []string {
	if name == "" {
		name = defaultSaveName
	}
	if err := m.engine.Load(m.ctx, m.saves, name); err != nil {
		if errors.Is(err, save.ErrNotFound) {
			return []string{fmt.Sprintf("Load failed: no save named %s.", name)}
		}
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}
	m.snapshot()
	m.events = nil
	out := []string{fmt.Sprintf("Game loaded from %s (turn %d).", name, m.turn)}
	if n := len(m.engine.Store.History); n > 0 {
		m.lines = append(m.lines, rawLine{text: m.engine.Store.History[n-1].NarrativeMarkdown, kind: kindNarrative})
	}
	return out
}

func (m *Model) cmdSaves() []string {
	names, err := m.saves.List(m.ctx)
	if err != nil {
		return []string{fmt.Sprintf("Listing saves failed: %v", err)}
	}
	if len(names) == 0 {
		return []string{"No saves."}
	}
	return []string{"Saves: " + strings.Join(names, ", ")}
}

func (m *Model) cmdReplay(arg string) []string {
	switch {
	case arg == "stop":
		if m.queue == nil {
			return []string{"No replay in progress."}
		}
		m.queue.Interrupt()
		if !m.busy {
			m.queue = nil
		}
		return []string{"Replay stopped."}
	case arg == "" && m.queue == nil:
		return []string{"Usage: /replay <file> | /replay stop"}
	}
	return nil
}

func cmdHelp() []string {
	return []string{
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
		"Play: type a choice number or describe what you do.",
		"After a failed turn: retry, rollback or exit.",
		"",
		"Navigation: PgUp/PgDn to scroll, Up/Down for input history",
	}
}

func (m *Model) cmdState() []string {
	store := m.engine.Store
	out := []string{fmt.Sprintf("Turn: %d", len(store.History))}
	for _, id := range m.engine.Defs.Order {
		out = append(out, fmt.Sprintf("%s = %s", id, store.State[id]))
	}
	if ids := store.TriggeredIDs(); len(ids) > 0 {
		out = append(out, "Triggered: "+strings.Join(ids, ", "))
	}
	return out
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (those drive input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     keys.PageDown,
		PageUp:       keys.PageUp,
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries. Existing newlines are preserved.
func wordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	paras := strings.Split(text, "\n")
	for i, p := range paras {
		paras[i] = wrapLine(p, width)
	}
	return strings.Join(paras, "\n")
}

func wrapLine(text string, width int) string {
	if len(text) <= width {
		return text
	}
	var b strings.Builder
	lineLen := 0
	for i, word := range strings.Fields(text) {
		wLen := len([]rune(word))
		switch {
		case i == 0:
			lineLen = wLen
		case lineLen+1+wLen > width:
			b.WriteString("\n")
			lineLen = wLen
		default:
			b.WriteString(" ")
			lineLen += 1 + wLen
		}
		b.WriteString(word)
	}
	return b.String()
}
