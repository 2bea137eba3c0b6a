package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathoo/talecore/config"
	"github.com/nathoo/talecore/engine/schema"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/types"
)

var testMessages = []types.Message{
	{Role: "system", Content: "sys"},
	{Role: "developer", Content: "dev"},
	{Role: "user", Content: "look"},
}

func harborDefs() *state.Defs {
	return &state.Defs{
		Game: types.GameDef{ID: "harbor", LLM: types.LLMConfig{RecommendedModel: "game-model", Temperature: 0.7, MaxOutputTokens: 900}},
		Variables: map[string]types.VariableDef{
			"time":      {ID: "time", Type: types.VarObject},
			"clues":     {ID: "clues", Type: types.VarInteger},
			"suspicion": {ID: "suspicion", Type: types.VarInteger},
			"energy":    {ID: "energy", Type: types.VarInteger},
			"truth_map": {ID: "truth_map", Type: types.VarList},
			"location":  {ID: "location", Type: types.VarEnum, EnumValues: []string{"pier", "market"}},
		},
	}
}

func TestMock_ValidAndDeterministic(t *testing.T) {
	defs := harborDefs()
	a := NewMock(VariableIDs(defs), Locations(defs))
	b := NewMock(VariableIDs(defs), Locations(defs))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		ra, err := a.Complete(ctx, testMessages)
		require.NoError(t, err)
		rb, err := b.Complete(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, ra, rb, "turn %d differs between seeded mocks", i)

		out, err := schema.Parse(ra)
		require.NoError(t, err, "mock output must pass strict validation")
		assert.Len(t, out.Choices, 4)
		require.NotEmpty(t, out.StateUpdates)
		assert.Equal(t, "time.minute", out.StateUpdates[0].Path)
	}
	assert.Equal(t, 10, a.Turn())
	assert.Equal(t, a.RNG().Position(), b.RNG().Position())
}

func TestMock_NarrativeCountsTurns(t *testing.T) {
	m := NewMock(map[string]bool{}, nil)
	ctx := context.Background()
	_, _ = m.Complete(ctx, nil)
	raw, err := m.Complete(ctx, nil)
	require.NoError(t, err)

	out, err := schema.Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, out.NarrativeMarkdown, "turn 2")
	assert.Empty(t, out.StateUpdates)
}

func TestMock_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock(nil, nil).Complete(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRNG(t *testing.T) {
	r1, r2 := NewRNG(7), NewRNG(7)
	for i := 0; i < 50; i++ {
		require.Equal(t, r1.Chance(0.5), r2.Chance(0.5))
		p := r1.Pick(3)
		require.Equal(t, p, r2.Pick(3))
		require.True(t, p >= 0 && p < 3)
	}
	assert.Equal(t, int64(100), r1.Position())
	assert.Equal(t, int64(7), r1.Seed())
	assert.False(t, NewRNG(1).Chance(0))
}

func TestOpenAI_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI(srv.URL+"/v1/", "sk-test", Sampling{Model: "m", Temperature: 0.3, MaxOutputTokens: 50}, time.Second)
	require.NoError(t, err)

	text, err := p.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, "m", got["model"])
	assert.Equal(t, 0.3, got["temperature"])
	assert.Equal(t, float64(50), got["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.Len(t, got["messages"], 3)
}

func TestOpenAI_Errors(t *testing.T) {
	_, err := NewOpenAI("http://x", "", Sampling{}, time.Second)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewOpenAI(srv.URL, "k", Sampling{}, time.Second)
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), testMessages)
	var apiErr *openai.Error
	require.True(t, errors.As(err, &apiErr), "err = %v", err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	p, _ = NewOpenAI(empty.URL, "k", Sampling{}, time.Second)
	_, err = p.Complete(context.Background(), testMessages)
	assert.ErrorContains(t, err, "no choices")
}

func TestOllama_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{}"}}`))
	}))
	defer srv.Close()

	p, err := NewOllama(srv.URL, Sampling{Model: "llama", Temperature: 0.5, MaxOutputTokens: 64}, time.Second)
	require.NoError(t, err)
	text, err := p.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "llama", got["model"])

	format, ok := got["format"].(map[string]any)
	require.True(t, ok, "format should be the JSON schema object, got %T", got["format"])
	assert.Equal(t, "object", format["type"])
	assert.Equal(t, map[string]any{"temperature": 0.5, "num_predict": float64(64)}, got["options"])

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[1].(map[string]any)["role"], "developer role folds into system")
}

func TestOllama_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama\" not found"}`))
	}))
	defer srv.Close()

	p, err := NewOllama(srv.URL, Sampling{Model: "llama"}, time.Second)
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), testMessages)
	var se api.StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.ErrorMessage, "not found")
}

func TestOllama_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p, err := NewOllama(srv.URL, Sampling{}, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), testMessages)
	assert.Error(t, err)
}

func TestSplitMessages(t *testing.T) {
	sys, user := splitMessages(testMessages)
	assert.Equal(t, "sys\n\ndev", sys)
	assert.Equal(t, "look", user)
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	defs := harborDefs()

	p, err := New(ctx, config.LLM{Provider: config.ProviderMock}, defs)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	p, err = New(ctx, config.LLM{Provider: config.ProviderOllama, OllamaBaseURL: "http://localhost:1", Timeout: time.Second}, defs)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, "game-model", p.(*Ollama).sampling.Model)
	assert.Equal(t, 900, p.(*Ollama).sampling.MaxOutputTokens)

	p, err = New(ctx, config.LLM{Provider: config.ProviderOpenAI, OpenAIKey: "k", Model: "env-model", Timeout: time.Second}, defs)
	require.NoError(t, err)
	assert.Equal(t, "env-model", p.(*OpenAI).sampling.Model)

	defs.Game.LLM.RecommendedModel = ""
	p, err = New(ctx, config.LLM{Provider: config.ProviderOpenAI, OpenAIKey: "k", Timeout: time.Second}, defs)
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, p.(*OpenAI).sampling.Model)

	_, err = New(ctx, config.LLM{Provider: config.ProviderGemini}, defs)
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	_, err = New(ctx, config.LLM{Provider: "bard"}, defs)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestLocations(t *testing.T) {
	assert.Equal(t, []string{"pier", "market"}, Locations(harborDefs()))
	assert.Nil(t, Locations(&state.Defs{Variables: map[string]types.VariableDef{
		"location": {ID: "location", Type: types.VarString},
	}}))
}
