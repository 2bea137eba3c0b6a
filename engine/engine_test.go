package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nathoo/talecore/engine/generate"
	"github.com/nathoo/talecore/engine/replay"
	"github.com/nathoo/talecore/engine/save/filestore"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
	"github.com/nathoo/talecore/logging"
	"github.com/nathoo/talecore/types"
)

func ptr(f float64) *float64 { return &f }

// testDefs builds a small game: an energy meter that loses at zero, a
// readonly alarm flag, and a time object.
func testDefs() *state.Defs {
	vars := []types.VariableDef{
		{ID: "energy", Label: "Energy", Type: types.VarInteger, Min: ptr(0), Max: ptr(100),
			Rules: types.VariableRules{Clamp: true}, Card: types.VariableCard{PromptWeight: "high"}},
		{ID: "alarm", Label: "Alarm", Type: types.VarBoolean,
			Rules: types.VariableRules{Readonly: true}, Card: types.VariableCard{PromptWeight: "medium"}},
		{ID: "time", Label: "Time", Type: types.VarObject, Card: types.VariableCard{PromptWeight: "medium"}},
	}
	defs := &state.Defs{
		Game:      types.GameDef{ID: "harbor", Title: "Harbor", Version: "0.1"},
		Variables: map[string]types.VariableDef{},
		Initial: state.Tree{
			"energy": value.NewInt(50),
			"alarm":  value.NewBool(false),
			"time": value.NewObject(map[string]value.Value{
				"day": value.NewInt(1), "hour": value.NewInt(20), "minute": value.NewInt(0),
			}),
		},
		Lose: []string{"energy <= 0"},
	}
	for _, v := range vars {
		defs.Variables[v.ID] = v
		defs.Order = append(defs.Order, v.ID)
	}
	return defs
}

func output(narrative, updates string) string {
	return fmt.Sprintf(`{"narrative_markdown":%q,"choices":[{"id":"wait","label":"Wait"},{"id":"hide","label":"Hide"},{"id":"run","label":"Run"}],"state_updates":[%s]}`, narrative, updates)
}

// fakeLLM replies with the next scripted text and records requests.
type fakeLLM struct {
	replies []string
	calls   [][]types.Message
}

func (f *fakeLLM) Complete(_ context.Context, msgs []types.Message) (string, error) {
	f.calls = append(f.calls, msgs)
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r, nil
}

func newTestEngine(llm *fakeLLM, opts ...Option) *Engine {
	gen := generate.New(llm, generate.WithMaxRetries(0))
	return New(testDefs(), gen, opts...)
}

func energy(t *testing.T, e *Engine) int64 {
	t.Helper()
	v, err := e.Store.Value("energy")
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	n, _ := v.Int()
	return n
}

func TestStep_AppliesUpdates(t *testing.T) {
	llm := &fakeLLM{replies: []string{output("You rest.", `{"op":"inc","path":"energy","value":5},{"op":"set","path":"alarm","value":true}`)}}
	e := newTestEngine(llm)

	r := e.Step(context.Background(), "rest")
	if r.Turn == nil {
		t.Fatalf("no turn: %+v", r)
	}
	if got := energy(t, e); got != 55 {
		t.Errorf("energy = %d, want 55", got)
	}
	if len(r.Turn.AppliedUpdates) != 1 || len(r.Turn.RejectedUpdates) != 1 {
		t.Errorf("applied=%v rejected=%v", r.Turn.AppliedUpdates, r.Turn.RejectedUpdates)
	}
	if d := r.Deltas["energy"]; !d.Changed || d.Summary != "+5" {
		t.Errorf("energy delta = %+v", d)
	}
	if r.Turn.TurnIndex != 1 || len(e.Store.History) != 1 {
		t.Errorf("history = %+v", e.Store.History)
	}
	if len(e.Store.LastChoices) != 3 {
		t.Errorf("last choices = %v", e.Store.LastChoices)
	}
	last := r.Turn.Events[len(r.Turn.Events)-1]
	if last.Type != "rejected_update" || last.Message != "Rejected alarm" {
		t.Errorf("rules events not appended after output events: %+v", r.Turn.Events)
	}
}

func TestStep_ChoiceNumberUsesLabel(t *testing.T) {
	llm := &fakeLLM{replies: []string{output("Start.", "")}}
	e := newTestEngine(llm)
	ctx := context.Background()

	e.Step(ctx, "look")
	r := e.Step(ctx, "2")
	if r.Turn.PlayerInput != "Hide" {
		t.Errorf("player input = %q, want Hide", r.Turn.PlayerInput)
	}
	user := llm.calls[1][2].Content
	if !strings.Contains(user, "Player input: Hide") {
		t.Errorf("prompt does not carry the label:\n%s", user)
	}
	if !strings.Contains(user, "Player: look\nStory: Start.") {
		t.Errorf("prompt missing recent turn:\n%s", user)
	}

	r = e.Step(ctx, "9")
	if r.Turn.PlayerInput != "9" {
		t.Errorf("out-of-range number rewritten: %q", r.Turn.PlayerInput)
	}
}

func TestStep_ChoiceIDUsesLabel(t *testing.T) {
	llm := &fakeLLM{replies: []string{output("Start.", "")}}
	e := newTestEngine(llm)
	ctx := context.Background()

	e.Step(ctx, "look")
	if r := e.Step(ctx, "RUN"); r.Turn.PlayerInput != "Run" {
		t.Errorf("player input = %q, want Run", r.Turn.PlayerInput)
	}
	if r := e.Step(ctx, "run away fast"); r.Turn.PlayerInput != "run away fast" {
		t.Errorf("free text rewritten: %q", r.Turn.PlayerInput)
	}
}

func TestStep_EmptyInput(t *testing.T) {
	llm := &fakeLLM{replies: []string{output("x", "")}}
	e := newTestEngine(llm)
	r := e.Step(context.Background(), "   ")
	if r.Turn != nil || r.Notice == "" || len(llm.calls) != 0 {
		t.Errorf("empty input ran a turn: %+v", r)
	}
}

func TestStep_RulesEndBeatsProposedEnd(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`{"narrative_markdown":"You collapse.","choices":[{"id":"a","label":"A"},{"id":"b","label":"B"},{"id":"c","label":"C"}],"state_updates":[{"op":"dec","path":"energy","value":80}],"end":{"is_game_over":false}}`,
	}}
	e := newTestEngine(llm)
	ctx := context.Background()

	r := e.Step(ctx, "sprint")
	if got := energy(t, e); got != 0 {
		t.Errorf("energy = %d, want clamped 0", got)
	}
	if !r.Turn.End.IsGameOver || r.Turn.End.EndingID != "lose" {
		t.Errorf("end = %+v", r.Turn.End)
	}
	if !e.GameOver() {
		t.Fatal("engine not over")
	}

	r = e.Step(ctx, "get up")
	if r.Turn != nil || !strings.HasPrefix(r.Notice, "Game over") || len(llm.calls) != 1 {
		t.Errorf("game over did not block play: %+v", r)
	}
}

func TestStep_ProposedEndHonored(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`{"narrative_markdown":"The ferry leaves.","choices":[{"id":"a","label":"A"},{"id":"b","label":"B"},{"id":"c","label":"C"}],"state_updates":[],"end":{"is_game_over":true,"ending_id":"escape","reason":"left"}}`,
	}}
	e := newTestEngine(llm)
	r := e.Step(context.Background(), "board")
	if !e.GameOver() || r.Turn.End.EndingID != "escape" {
		t.Errorf("end = %+v", r.Turn.End)
	}
}

func TestStep_FallbackRecovery(t *testing.T) {
	llm := &fakeLLM{replies: []string{"not json", output("Recovered.", "")}}
	e := newTestEngine(llm)
	ctx := context.Background()

	r := e.Step(ctx, "look")
	if !r.UsedFallback || !e.Recovering() {
		t.Fatalf("expected fallback: %+v", r)
	}
	if got := energy(t, e); got != 50 {
		t.Errorf("fallback changed state: energy = %d", got)
	}
	if r.Turn.Choices[0].ID != generate.ChoiceRetry {
		t.Errorf("choices = %+v", r.Turn.Choices)
	}

	// Free text is refused while recovering.
	r = e.Step(ctx, "open the door")
	if r.Turn != nil || r.Notice != recoveryNotice || len(llm.calls) != 1 {
		t.Errorf("recovery accepted free text: %+v", r)
	}

	// "1" selects retry, which re-sends the previous prompt.
	r = e.Step(ctx, "1")
	if r.UsedFallback || e.Recovering() {
		t.Fatalf("retry did not recover: %+v", r)
	}
	if len(llm.calls) != 2 || llm.calls[1][2].Content != llm.calls[0][2].Content {
		t.Error("retry did not reuse the last prompt")
	}
	if r.Turn.PlayerInput != "retry" {
		t.Errorf("player input = %q", r.Turn.PlayerInput)
	}
}

func TestStep_Rollback(t *testing.T) {
	llm := &fakeLLM{replies: []string{"garbage", output("Fine.", "")}}
	e := newTestEngine(llm)
	ctx := context.Background()

	e.Step(ctx, "look")
	r := e.Step(ctx, "ROLLBACK")
	if r.Notice != rolledBackNotice || e.Recovering() || len(llm.calls) != 1 {
		t.Errorf("rollback = %+v", r)
	}
	r = e.Step(ctx, "look again")
	if r.Turn == nil || r.Turn.PlayerInput != "look again" {
		t.Errorf("play did not resume: %+v", r)
	}
}

func TestStep_Exit(t *testing.T) {
	llm := &fakeLLM{replies: []string{"garbage"}}
	e := newTestEngine(llm)
	ctx := context.Background()

	e.Step(ctx, "look")
	if r := e.Step(ctx, "3"); !r.Exit {
		t.Errorf("choice 3 should exit: %+v", r)
	}
}

func TestStep_MemorySummary(t *testing.T) {
	long := strings.Repeat("a", 200)
	llm := &fakeLLM{replies: []string{output("line one\nline two", ""), output("second", ""), output("third", ""), output("fourth", ""), output(long, "")}}
	e := newTestEngine(llm)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e.Step(ctx, "wait")
	}
	if e.Store.MemorySummary != "" {
		t.Fatalf("summary before interval: %q", e.Store.MemorySummary)
	}
	e.Step(ctx, "wait")

	want := "line one line two | second | third | fourth | " + strings.Repeat("a", SummarySnippetLen)
	if e.Store.MemorySummary != want {
		t.Errorf("summary = %q", e.Store.MemorySummary)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("hi", 5); got != "hi" {
		t.Errorf("got %q", got)
	}
}

type memLog struct{ entries []logging.TurnEntry }

func (m *memLog) Write(e logging.TurnEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestStep_TurnLog(t *testing.T) {
	raw := output("Logged.", `{"op":"inc","path":"energy","value":1}`)
	llm := &fakeLLM{replies: []string{raw}}
	log := &memLog{}
	e := newTestEngine(llm, WithTurnLog(log))

	e.Step(context.Background(), "wait")
	if len(log.entries) != 1 {
		t.Fatalf("entries = %d", len(log.entries))
	}
	got := log.entries[0]
	if got.TurnIndex != 1 || got.RawOutput != raw || len(got.Prompt) != 3 || len(got.AppliedUpdates) != 1 {
		t.Errorf("entry = %+v", got)
	}
}

func TestSaveLoad(t *testing.T) {
	llm := &fakeLLM{replies: []string{output("Turn.", `{"op":"inc","path":"energy","value":10}`)}}
	e := newTestEngine(llm)
	ctx := context.Background()
	store := filestore.New(t.TempDir())

	e.Step(ctx, "wait")
	if err := e.Save(ctx, store, "slot"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	e.Step(ctx, "wait")
	if got := energy(t, e); got != 70 {
		t.Fatalf("energy = %d", got)
	}

	if err := e.Load(ctx, store, "slot"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := energy(t, e); got != 60 {
		t.Errorf("energy after load = %d, want 60", got)
	}
	if len(e.Store.History) != 1 || len(e.Store.LastChoices) != 3 {
		t.Errorf("history = %d, choices = %d", len(e.Store.History), len(e.Store.LastChoices))
	}

	e.Reset()
	if got := energy(t, e); got != 50 || len(e.Store.History) != 0 {
		t.Errorf("reset left state: energy=%d history=%d", got, len(e.Store.History))
	}
}

func TestAutoplay(t *testing.T) {
	ctx := context.Background()

	t.Run("finished", func(t *testing.T) {
		e := newTestEngine(&fakeLLM{replies: []string{output("ok", "")}})
		var seen []string
		reason := e.Autoplay(ctx, replay.NewQueue([]string{"a", "b", "c"}), func(in string, _ TurnResult) {
			seen = append(seen, in)
		})
		if reason != StopFinished || strings.Join(seen, ",") != "a,b,c" {
			t.Errorf("reason=%s seen=%v", reason, seen)
		}
	})

	t.Run("game over", func(t *testing.T) {
		e := newTestEngine(&fakeLLM{replies: []string{output("drain", `{"op":"dec","path":"energy","value":30}`)}})
		reason := e.Autoplay(ctx, replay.NewQueue([]string{"a", "b", "c", "d"}), nil)
		if reason != StopGameOver || len(e.Store.History) != 2 {
			t.Errorf("reason=%s turns=%d", reason, len(e.Store.History))
		}
	})

	t.Run("fallback", func(t *testing.T) {
		e := newTestEngine(&fakeLLM{replies: []string{output("ok", ""), "bad"}})
		q := replay.NewQueue([]string{"a", "b", "c"})
		reason := e.Autoplay(ctx, q, nil)
		if reason != StopFallback || q.Len() != 1 {
			t.Errorf("reason=%s remaining=%d", reason, q.Len())
		}
	})

	t.Run("interrupted", func(t *testing.T) {
		e := newTestEngine(&fakeLLM{replies: []string{output("ok", "")}})
		q := replay.NewQueue([]string{"a", "b", "c"})
		reason := e.Autoplay(ctx, q, func(string, TurnResult) { q.Interrupt() })
		if reason != StopInterrupted || len(e.Store.History) != 1 {
			t.Errorf("reason=%s turns=%d", reason, len(e.Store.History))
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		e := newTestEngine(&fakeLLM{replies: []string{output("ok", "")}})
		if reason := e.Autoplay(cctx, replay.NewQueue([]string{"a"}), nil); reason != StopInterrupted {
			t.Errorf("reason = %s", reason)
		}
	})
}
