package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/types"
)

func TestLoad_YAML(t *testing.T) {
	defs, warnings, err := LoadWithWarnings("testdata/yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	g := defs.Game
	if g.ID != "night_market" || g.Title != "Night Market" || g.Version != "0.1" {
		t.Errorf("metadata = %+v", g)
	}
	if g.Language != DefaultLanguage || g.ContentRating != DefaultContentRating {
		t.Errorf("defaults not applied: language %q, rating %q", g.Language, g.ContentRating)
	}
	if g.World != "A rain-soaked city." {
		t.Errorf("World = %q", g.World)
	}
	if g.Intro != "" {
		t.Errorf("Intro = %q, want empty", g.Intro)
	}
	if g.LLM.Temperature != 0 {
		t.Errorf("explicit zero temperature replaced: %v", g.LLM.Temperature)
	}
	if g.LLM.MaxOutputTokens != DefaultMaxOutputTokens {
		t.Errorf("MaxOutputTokens = %d", g.LLM.MaxOutputTokens)
	}
	if len(g.PromptRules.StyleNotes) != 1 || len(g.PromptRules.Boundaries) != 1 {
		t.Errorf("PromptRules = %+v", g.PromptRules)
	}

	wantOrder := []string{"energy", "trust", "mood", "notes", "time", "alarm"}
	if strings.Join(defs.Order, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("Order = %v", defs.Order)
	}

	if len(warnings) != 1 || !strings.Contains(warnings[0], "ghost") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestLoad_YAMLVariables(t *testing.T) {
	defs, err := Load("testdata/yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	energy := defs.Variables["energy"]
	if energy.Type != types.VarInteger || *energy.Min != 0 || *energy.Max != 100 {
		t.Errorf("energy = %+v", energy)
	}
	if !energy.Rules.Clamp || energy.Rules.UpdatePolicy != types.PolicyIncDecOnly {
		t.Errorf("energy rules = %+v", energy.Rules)
	}
	if !energy.Card.Visible || energy.Card.PromptWeight != DefaultPromptWeight {
		t.Errorf("energy card = %+v", energy.Card)
	}

	trust := defs.Variables["trust"]
	if trust.Rules.Clamp {
		t.Error("explicit clamp: false ignored")
	}
	if trust.Label != "trust" {
		t.Errorf("label fallback = %q", trust.Label)
	}
	if defs.Variables["mood"].Rules.UpdatePolicy != types.PolicyAny {
		t.Errorf("default policy = %q", defs.Variables["mood"].Rules.UpdatePolicy)
	}

	alarm := defs.Variables["alarm"]
	if !alarm.Rules.Readonly || alarm.Card.Visible || alarm.Card.PromptWeight != "hidden" {
		t.Errorf("alarm = %+v", alarm)
	}
}

func TestLoad_YAMLInitialState(t *testing.T) {
	defs, err := Load("testdata/yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		id   string
		want value.Value
	}{
		{"energy", value.NewInt(40)},  // initial_state beats default
		{"trust", value.NewNumber(1)}, // number type keeps a float
		{"mood", value.NewString("tense")},
		{"notes", value.NewList()},
		{"time", value.NewObject(map[string]value.Value{"hour": value.NewInt(21), "minute": value.NewInt(0)})},
		{"alarm", value.NewBool(false)},
	}
	for _, tt := range tests {
		got := defs.Initial[tt.id]
		if !got.Equal(tt.want) || got.Kind() != tt.want.Kind() {
			t.Errorf("Initial[%s] = %s (%s), want %s (%s)", tt.id, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
}

func TestLoad_YAMLTriggers(t *testing.T) {
	defs, err := Load("testdata/yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(defs.Triggers) != 2 {
		t.Fatalf("got %d triggers", len(defs.Triggers))
	}

	first, second := defs.Triggers[0], defs.Triggers[1]
	if first.ID != "alarm_raised" || first.Priority != 5 || !first.Once {
		t.Errorf("first trigger = %+v", first)
	}
	if first.Effects[0].Reason != "Too tired to hide" {
		t.Errorf("reason = %q", first.Effects[0].Reason)
	}
	if len(first.Events) != 1 || first.Events[0].Type != "alarm" {
		t.Errorf("events = %+v", first.Events)
	}

	if second.ID != "late" || second.Priority != DefaultPriority || second.SourceOrder != 0 {
		t.Errorf("second trigger = %+v", second)
	}
	eff := second.Effects[0]
	if eff.Op != types.OpInc {
		t.Errorf("alias not canonicalized: %q", eff.Op)
	}
	if eff.Reason != "trigger late" {
		t.Errorf("default reason = %q", eff.Reason)
	}

	if len(defs.Win) != 1 || len(defs.Lose) != 1 {
		t.Errorf("win %v lose %v", defs.Win, defs.Lose)
	}
}

func TestLoad_Lua(t *testing.T) {
	defs, err := Load("testdata/lua")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if defs.Game.Language != "en-GB" {
		t.Errorf("Language = %q", defs.Game.Language)
	}
	if defs.Game.LLM.RecommendedModel != "llama3.1" || defs.Game.LLM.MaxOutputTokens != 400 {
		t.Errorf("LLM = %+v", defs.Game.LLM)
	}
	if defs.Game.LLM.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v", defs.Game.LLM.Temperature)
	}

	if got := strings.Join(defs.Order, ","); got != "energy,notes,time,alarm" {
		t.Errorf("Order = %s", got)
	}
	if !defs.Initial["notes"].Equal(value.NewList()) {
		t.Errorf("empty table default = %s", defs.Initial["notes"])
	}
	minute, _ := defs.Initial["time"].Object()
	if !minute["minute"].Equal(value.NewInt(30)) {
		t.Errorf("time = %s", defs.Initial["time"])
	}

	var ids []string
	for _, tr := range defs.Triggers {
		ids = append(ids, tr.ID)
	}
	if got := strings.Join(ids, ","); got != "alarm_raised,late_1,late_2" {
		t.Errorf("trigger order = %s", got)
	}
	late := defs.Triggers[1]
	if len(late.Effects) != 2 || late.Effects[0].Op != types.OpDec || late.Effects[0].Value != 5 {
		t.Errorf("late_1 effects = %+v", late.Effects)
	}
	if late.Effects[1].Op != types.OpPush || late.Effects[1].Value != "a late hour" {
		t.Errorf("push effect = %+v", late.Effects[1])
	}
	toggle := defs.Triggers[0].Effects[0]
	if toggle.Op != types.OpToggle || toggle.Value != nil {
		t.Errorf("toggle effect = %+v", toggle)
	}

	if len(defs.Win) != 1 || len(defs.Lose) != 2 {
		t.Errorf("win %v lose %v", defs.Win, defs.Lose)
	}
}

func TestLoad_SampleGame(t *testing.T) {
	defs, err := Load("../games/mist_harbor")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if defs.Game.Intro == "" || defs.Game.World == "" {
		t.Error("sample game is missing world or intro text")
	}
	if len(defs.Game.StatusBar) != 5 {
		t.Errorf("status bar has %d items", len(defs.Game.StatusBar))
	}
}

func TestLoad_Errors(t *testing.T) {
	write := func(t *testing.T, files map[string]string) string {
		t.Helper()
		dir := t.TempDir()
		for name, body := range files {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		return dir
	}

	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"empty dir", nil, "no game.yaml or game.lua"},
		{"both formats", map[string]string{GameYAML: "", GameLua: ""}, "contains both"},
		{"bad yaml", map[string]string{GameYAML: "title: [unclosed"}, "parsing game.yaml"},
		{"unknown key", map[string]string{GameYAML: "game_id: x\ntitel: typo\n"}, "titel"},
		{"bad triggers file", map[string]string{
			GameYAML:     "game_id: x\ntitle: X\nvariables: [{id: a, type: integer}]\n",
			TriggersYAML: "triggers: [{id: t, when: a > 1, colour: red}]\n",
		}, "decoding triggers.yaml"},
		{"lua error", map[string]string{GameLua: "Game {"}, "executing game.lua"},
		{"lua sandbox", map[string]string{GameLua: `dofile("/etc/passwd")`}, "executing game.lua"},
		{"lua os library", map[string]string{GameLua: `os.exit(1)`}, "executing game.lua"},
		{"validation", map[string]string{GameYAML: "title: X\n"}, "game_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.files))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}
