package loader

import (
	"fmt"
	"math"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/nathoo/talecore/engine/effects"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
	lua "github.com/yuin/gopher-lua"
)

// Defaults applied to omitted fields.
const (
	DefaultLanguage        = "en"
	DefaultContentRating   = "PG-13"
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 900
	DefaultPriority        = 100
	DefaultPromptWeight    = "medium"
)

// rawGame is the decoded form shared by the YAML and Lua formats.
type rawGame struct {
	GameID         string         `mapstructure:"game_id"`
	Title          string         `mapstructure:"title"`
	Version        string         `mapstructure:"version"`
	Language       string         `mapstructure:"language"`
	Tone           string         `mapstructure:"tone"`
	ContentRating  string         `mapstructure:"content_rating"`
	StatusBar      rawStatusBar   `mapstructure:"status_bar"`
	Variables      []rawVariable  `mapstructure:"variables"`
	InitialState   map[string]any `mapstructure:"initial_state"`
	WinConditions  []string       `mapstructure:"win_conditions"`
	LoseConditions []string       `mapstructure:"lose_conditions"`
	LLM            rawLLM         `mapstructure:"llm"`
	PromptRules    rawPromptRules `mapstructure:"prompt_rules"`
	Triggers       []rawTrigger   `mapstructure:"triggers"`
}

type rawStatusBar struct {
	Items []rawStatusItem `mapstructure:"items"`
}

type rawStatusItem struct {
	VarID             string   `mapstructure:"var_id"`
	Style             string   `mapstructure:"style"`
	Label             string   `mapstructure:"label"`
	ShowDelta         bool     `mapstructure:"show_delta"`
	CriticalThreshold *float64 `mapstructure:"critical_threshold"`
}

type rawVariable struct {
	ID         string   `mapstructure:"id"`
	Label      string   `mapstructure:"label"`
	Type       string   `mapstructure:"type"`
	Min        *float64 `mapstructure:"min"`
	Max        *float64 `mapstructure:"max"`
	EnumValues []string `mapstructure:"enum_values"`
	Default    any      `mapstructure:"default"`
	Card       rawCard  `mapstructure:"card"`
	Rules      rawRules `mapstructure:"rules"`
	Tags       []string `mapstructure:"tags"`
}

type rawCard struct {
	Visible      *bool  `mapstructure:"visible"`
	Order        int    `mapstructure:"order"`
	Format       string `mapstructure:"format"`
	Description  string `mapstructure:"description"`
	PromptWeight string `mapstructure:"prompt_weight"`
}

type rawRules struct {
	Clamp        *bool  `mapstructure:"clamp"`
	Readonly     bool   `mapstructure:"readonly"`
	UpdatePolicy string `mapstructure:"update_policy"`
}

type rawLLM struct {
	RecommendedModel string   `mapstructure:"recommended_model"`
	Temperature      *float64 `mapstructure:"temperature"`
	MaxOutputTokens  int      `mapstructure:"max_output_tokens"`
}

// rawPromptRules tolerates author notes beyond the two known lists.
type rawPromptRules struct {
	StyleNotes []string       `mapstructure:"style_notes"`
	Boundaries []string       `mapstructure:"boundaries"`
	Extra      map[string]any `mapstructure:",remain"`
}

type rawTrigger struct {
	ID       string      `mapstructure:"id"`
	Priority *int        `mapstructure:"priority"`
	Once     bool        `mapstructure:"once"`
	When     string      `mapstructure:"when"`
	Effects  []rawEffect `mapstructure:"effects"`
	Events   []rawEvent  `mapstructure:"events"`
}

type rawEffect struct {
	Op     string `mapstructure:"op"`
	Path   string `mapstructure:"path"`
	Value  any    `mapstructure:"value"`
	Reason string `mapstructure:"reason"`
}

type rawEvent struct {
	Type    string `mapstructure:"type"`
	Message string `mapstructure:"message"`
}

type rawTriggerFile struct {
	Triggers []rawTrigger `mapstructure:"triggers"`
}

// decode maps a generic document onto a raw struct. Unknown keys are
// errors so that typos in content surface at load time.
func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func decodeGame(doc map[string]any) (*rawGame, error) {
	raw := &rawGame{}
	if err := decode(doc, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// compile converts validated raw content into definitions.
func compile(raw *rawGame) (*state.Defs, error) {
	defs := &state.Defs{
		Game:      compileGame(raw),
		Variables: make(map[string]types.VariableDef, len(raw.Variables)),
		Initial:   state.Tree{},
		Win:       raw.WinConditions,
		Lose:      raw.LoseConditions,
	}

	for _, rv := range raw.Variables {
		def := compileVariable(rv)
		defs.Variables[def.ID] = def
		defs.Order = append(defs.Order, def.ID)
	}
	for _, id := range defs.Order {
		def := defs.Variables[id]
		x, ok := raw.InitialState[id]
		if !ok {
			x = def.Default
		}
		v, err := initialValue(def, x)
		if err != nil {
			return nil, fmt.Errorf("initial value of %s: %w", id, err)
		}
		defs.Initial[id] = v
	}

	defs.Game.StatusBar = compileStatusBar(raw.StatusBar.Items, defs.Variables)

	for i, rt := range raw.Triggers {
		defs.Triggers = append(defs.Triggers, compileTrigger(rt, i))
	}
	sort.SliceStable(defs.Triggers, func(i, j int) bool {
		a, b := defs.Triggers[i], defs.Triggers[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.SourceOrder < b.SourceOrder
	})

	return defs, nil
}

func compileGame(raw *rawGame) types.GameDef {
	g := types.GameDef{
		ID:            raw.GameID,
		Title:         raw.Title,
		Version:       raw.Version,
		Language:      orDefault(raw.Language, DefaultLanguage),
		Tone:          raw.Tone,
		ContentRating: orDefault(raw.ContentRating, DefaultContentRating),
		LLM: types.LLMConfig{
			RecommendedModel: raw.LLM.RecommendedModel,
			Temperature:      DefaultTemperature,
			MaxOutputTokens:  raw.LLM.MaxOutputTokens,
		},
		PromptRules: types.PromptRules{
			StyleNotes: raw.PromptRules.StyleNotes,
			Boundaries: raw.PromptRules.Boundaries,
		},
	}
	if raw.LLM.Temperature != nil {
		g.LLM.Temperature = *raw.LLM.Temperature
	}
	if g.LLM.MaxOutputTokens <= 0 {
		g.LLM.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return g
}

func compileVariable(rv rawVariable) types.VariableDef {
	def := types.VariableDef{
		ID:         rv.ID,
		Label:      rv.Label,
		Type:       types.VarType(rv.Type),
		Min:        rv.Min,
		Max:        rv.Max,
		EnumValues: rv.EnumValues,
		Default:    rv.Default,
		Rules: types.VariableRules{
			Clamp:        rv.Rules.Clamp == nil || *rv.Rules.Clamp,
			Readonly:     rv.Rules.Readonly,
			UpdatePolicy: types.UpdatePolicy(orDefault(rv.Rules.UpdatePolicy, string(types.PolicyAny))),
		},
		Card: types.VariableCard{
			Visible:      rv.Card.Visible == nil || *rv.Card.Visible,
			Order:        rv.Card.Order,
			Format:       rv.Card.Format,
			Description:  rv.Card.Description,
			PromptWeight: orDefault(rv.Card.PromptWeight, DefaultPromptWeight),
		},
		Tags: rv.Tags,
	}
	if def.Label == "" {
		def.Label = def.ID
	}
	return def
}

// initialValue converts a declared default or initial_state entry.
// Numbers follow the declared numeric type and must lie within bounds.
func initialValue(def types.VariableDef, x any) (value.Value, error) {
	if x == nil {
		return zeroValue(def), nil
	}
	v, err := value.FromAny(x)
	if err != nil {
		return value.Value{}, err
	}

	switch def.Type {
	case types.VarNumber:
		if f, ok := v.Float(); ok {
			v = value.NewNumber(f)
		}
	case types.VarInteger:
		if f, ok := v.Float(); ok {
			if f != math.Trunc(f) {
				return value.Value{}, fmt.Errorf("%v is not an integer", f)
			}
			v = value.NewInt(int64(f))
		}
	}
	if err := effects.CheckType(def, v); err != nil {
		return value.Value{}, err
	}
	if f, ok := v.Float(); ok {
		if def.Min != nil && f < *def.Min {
			return value.Value{}, fmt.Errorf("%v is below min %v", f, *def.Min)
		}
		if def.Max != nil && f > *def.Max {
			return value.Value{}, fmt.Errorf("%v is above max %v", f, *def.Max)
		}
	}
	return v, nil
}

// zeroValue is the value of a variable with no default. Lua cannot tell an
// empty list from an empty table, so both decode to nil and land here.
func zeroValue(def types.VariableDef) value.Value {
	switch def.Type {
	case types.VarInteger:
		return value.NewInt(0)
	case types.VarNumber:
		return value.NewNumber(0)
	case types.VarBoolean:
		return value.NewBool(false)
	case types.VarString:
		return value.NewString("")
	case types.VarEnum:
		if len(def.EnumValues) > 0 {
			return value.NewString(def.EnumValues[0])
		}
		return value.NewString("")
	case types.VarList:
		return value.NewList()
	case types.VarObject:
		return value.NewObject(map[string]value.Value{})
	default:
		return value.Value{}
	}
}

func compileStatusBar(items []rawStatusItem, vars map[string]types.VariableDef) []types.StatusItem {
	out := make([]types.StatusItem, 0, len(items))
	for _, it := range items {
		si := types.StatusItem{
			VarID:             it.VarID,
			Style:             it.Style,
			Label:             it.Label,
			ShowDelta:         it.ShowDelta,
			CriticalThreshold: it.CriticalThreshold,
		}
		def, known := vars[it.VarID]
		if si.Style == "" {
			si.Style = "text"
			if known && (def.Type == types.VarInteger || def.Type == types.VarNumber) {
				si.Style = "meter"
			}
		}
		if si.Label == "" && known {
			si.Label = def.Label
		}
		out = append(out, si)
	}
	return out
}

func compileTrigger(rt rawTrigger, index int) types.Trigger {
	t := types.Trigger{
		ID:          rt.ID,
		Priority:    DefaultPriority,
		Once:        rt.Once,
		When:        rt.When,
		SourceOrder: index,
	}
	if rt.Priority != nil {
		t.Priority = *rt.Priority
	}
	for _, e := range rt.Effects {
		op, _ := effects.CanonicalOp(e.Op)
		t.Effects = append(t.Effects, types.UpdateOp{
			Op:     op,
			Path:   e.Path,
			Value:  e.Value,
			Reason: orDefault(e.Reason, "trigger "+rt.ID),
		})
	}
	for _, ev := range rt.Events {
		t.Events = append(t.Events, types.Event{Type: ev.Type, Message: ev.Message})
	}
	return t
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// toGoValue converts a Lua value to plain Go data. Tables with a sequence
// part become slices, other tables become maps, and empty tables become nil.
func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGoValue(v)
			}
		})
		if len(m) == 0 {
			return nil
		}
		return m
	default:
		return nil
	}
}
