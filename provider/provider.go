// Package provider implements the completion backends the generation
// service can talk to.
package provider

import (
	"context"
	"fmt"

	"github.com/nathoo/talecore/config"
	"github.com/nathoo/talecore/engine/generate"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/types"
)

// Default models when neither the environment nor the game names one.
const (
	DefaultOpenAIModel = "gpt-4.1-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOllamaModel = "llama3.1"
)

// Provider is a completion backend.
type Provider interface {
	generate.Completer
	Name() string
	Close() error
}

// Sampling holds generation parameters taken from the game definition.
type Sampling struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// New builds the provider selected by cfg. Model precedence is the
// environment, then the game's recommended model, then the provider default.
func New(ctx context.Context, cfg config.LLM, defs *state.Defs) (Provider, error) {
	s := Sampling{
		Model:           cfg.Model,
		Temperature:     defs.Game.LLM.Temperature,
		MaxOutputTokens: defs.Game.LLM.MaxOutputTokens,
	}
	if s.Model == "" {
		s.Model = defs.Game.LLM.RecommendedModel
	}
	model := func(def string) Sampling {
		if s.Model == "" {
			s.Model = def
		}
		return s
	}

	switch cfg.Provider {
	case config.ProviderMock, "":
		return NewMock(VariableIDs(defs), Locations(defs)), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIKey, model(DefaultOpenAIModel), cfg.Timeout)
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaBaseURL, model(DefaultOllamaModel), cfg.Timeout)
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.GeminiKey, model(DefaultGeminiModel))
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// VariableIDs returns the declared variable ids.
func VariableIDs(defs *state.Defs) map[string]bool {
	ids := make(map[string]bool, len(defs.Variables))
	for id := range defs.Variables {
		ids[id] = true
	}
	return ids
}

// Locations returns the enum values of a "location" variable, if any.
func Locations(defs *state.Defs) []string {
	def, ok := defs.Variable("location")
	if !ok || def.Type != types.VarEnum {
		return nil
	}
	return def.EnumValues
}
