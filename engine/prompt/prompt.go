// Package prompt renders the completion request for one turn.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/nathoo/talecore/engine/schema"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/types"
)

//go:embed prompts/system.txt
var systemPrompt string

//go:embed prompts/developer.txt
var developerPrompt string

//go:embed prompts/user.txt
var userPrompt string

var funcs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

var (
	systemTmpl    = template.Must(template.New("system").Parse(systemPrompt))
	developerTmpl = template.Must(template.New("developer").Parse(developerPrompt))
	userTmpl      = template.Must(template.New("user").Funcs(funcs).Parse(userPrompt))
)

// Limits on advertised update paths.
const (
	maxSimplePaths       = 8
	maxNestedPaths       = 6
	compactFallbackChars = 1200
)

// TruncatedMarker ends world text that was cut short.
const TruncatedMarker = "[...truncated...]"

// CompactSections are the world.md "## " sections kept in compact mode.
// Text before the first heading is always kept.
var CompactSections = []string{
	"Locations",
	"Factions",
	"Key Characters",
	"Narrative Principles",
	"Endings",
}

// Context carries the per-turn inputs.
type Context struct {
	State         state.Tree
	MemorySummary string
	RecentTurns   []types.TurnRecord
	LastChoices   []types.Choice
	PlayerInput   string
}

// Builder renders requests against fixed game definitions.
type Builder struct {
	Defs          *state.Defs
	Compact       bool
	WorldMaxChars int // 0 means unlimited
}

// Build returns the system, developer and user messages for one turn.
func (b *Builder) Build(ctx Context) ([]types.Message, error) {
	system, err := render(systemTmpl, struct{ MinChoices, MaxChoices, MaxUpdates int }{
		schema.MinChoices, schema.MaxChoices, schema.MaxUpdates,
	})
	if err != nil {
		return nil, err
	}
	developer, err := render(developerTmpl, b.developerData())
	if err != nil {
		return nil, err
	}
	user, err := render(userTmpl, b.userData(ctx))
	if err != nil {
		return nil, err
	}
	return []types.Message{
		{Role: "system", Content: system},
		{Role: "developer", Content: developer},
		{Role: "user", Content: user},
	}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

type developerData struct {
	Title         string
	Tone          string
	ContentRating string
	Language      string
	World         string
	Rules         []string
}

func (b *Builder) developerData() developerData {
	g := b.Defs.Game
	world := g.World
	if b.Compact {
		world = CompactWorld(world)
	}
	world = Truncate(world, b.WorldMaxChars)

	var rules []string
	rules = append(rules, g.PromptRules.StyleNotes...)
	rules = append(rules, g.PromptRules.Boundaries...)

	return developerData{
		Title:         g.Title,
		Tone:          g.Tone,
		ContentRating: g.ContentRating,
		Language:      g.Language,
		World:         world,
		Rules:         rules,
	}
}

type userData struct {
	StateLines    []string
	SimplePaths   []string
	NestedPaths   []string
	MemorySummary string
	RecentTurns   []types.TurnRecord
	Choices       []types.Choice
	PlayerInput   string
}

func (b *Builder) userData(ctx Context) userData {
	simple, nested := UpdatePaths(b.Defs, ctx.State)
	return userData{
		StateLines:    b.stateLines(ctx.State),
		SimplePaths:   simple,
		NestedPaths:   nested,
		MemorySummary: ctx.MemorySummary,
		RecentTurns:   ctx.RecentTurns,
		Choices:       ctx.LastChoices,
		PlayerInput:   ctx.PlayerInput,
	}
}

func (b *Builder) stateLines(s state.Tree) []string {
	var lines []string
	for _, def := range b.Defs.OrderedVariables() {
		switch def.Card.PromptWeight {
		case "high", "medium":
		case "low":
			if b.Compact {
				continue
			}
		default:
			continue
		}
		label := def.Label
		if label == "" {
			label = def.ID
		}
		lines = append(lines, fmt.Sprintf("%s (%s): %s", label, def.ID, s[def.ID]))
	}
	return lines
}

// UpdatePaths lists the paths a generator may target: writable scalar
// variables, and the keys of writable object variables.
func UpdatePaths(defs *state.Defs, s state.Tree) (simple, nested []string) {
	for _, def := range defs.OrderedVariables() {
		if def.Rules.Readonly {
			continue
		}
		switch def.Type {
		case types.VarInteger:
			simple = append(simple, "/"+def.ID+" (int)")
		case types.VarNumber:
			simple = append(simple, "/"+def.ID+" (number)")
		case types.VarBoolean:
			simple = append(simple, "/"+def.ID+" (bool)")
		case types.VarEnum:
			simple = append(simple, "/"+def.ID+" (enum: "+strings.Join(def.EnumValues, "|")+")")
		case types.VarObject:
			obj, ok := s[def.ID].Object()
			if !ok {
				continue
			}
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				nested = append(nested, "/"+def.ID+"/"+k)
			}
		}
	}
	if len(simple) > maxSimplePaths {
		simple = simple[:maxSimplePaths]
	}
	if len(nested) > maxNestedPaths {
		nested = nested[:maxNestedPaths]
	}
	return simple, nested
}

// Truncate cuts text to limit characters and appends TruncatedMarker.
// A limit of zero or less disables truncation.
func Truncate(text string, limit int) string {
	r := []rune(text)
	if limit <= 0 || len(r) <= limit {
		return text
	}
	return strings.TrimRight(string(r[:limit]), " \t\r\n") + "\n\n" + TruncatedMarker
}

// CompactWorld keeps the untitled preamble and the CompactSections of a
// world document. If none of them are present the first 1200 characters are
// kept instead.
func CompactWorld(text string) string {
	if text == "" {
		return ""
	}

	type section struct {
		title string
		lines []string
	}
	var (
		sections []section
		cur      section
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "## ") {
			if len(cur.lines) > 0 {
				sections = append(sections, cur)
			}
			cur = section{title: strings.TrimSpace(line[3:]), lines: []string{line}}
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	if len(cur.lines) > 0 {
		sections = append(sections, cur)
	}

	allow := make(map[string]bool, len(CompactSections))
	for _, s := range CompactSections {
		allow[strings.ToLower(s)] = true
	}

	var kept []string
	for _, s := range sections {
		if s.title != "" && !allow[strings.ToLower(s.title)] {
			continue
		}
		if part := strings.TrimSpace(strings.Join(s.lines, "\n")); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return Truncate(text, compactFallbackChars)
	}
	return strings.Join(kept, "\n\n")
}
