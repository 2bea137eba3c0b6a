package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/nathoo/talecore/engine/schema"
	"github.com/nathoo/talecore/types"
)

// Ollama talks to a local Ollama server's chat API.
type Ollama struct {
	client   *api.Client
	sampling Sampling
}

// NewOllama creates an Ollama provider.
func NewOllama(baseURL string, s Sampling, timeout time.Duration) (*Ollama, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama base url: %w", err)
	}
	return &Ollama{
		client:   api.NewClient(u, &http.Client{Timeout: timeout}),
		sampling: s,
	}, nil
}

func (p *Ollama) Name() string { return "ollama" }

func (p *Ollama) Close() error { return nil }

// Complete sends msgs to /api/chat, constraining output to the response
// schema.
func (p *Ollama) Complete(ctx context.Context, msgs []types.Message) (string, error) {
	stream := false
	options := map[string]any{"temperature": p.sampling.Temperature}
	if p.sampling.MaxOutputTokens > 0 {
		options["num_predict"] = p.sampling.MaxOutputTokens
	}
	req := &api.ChatRequest{
		Model:    p.sampling.Model,
		Messages: ollamaMessages(msgs),
		Stream:   &stream,
		Format:   schema.JSONSchema(),
		Options:  options,
	}

	var content string
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// ollamaMessages folds the developer role into system, which is the
// highest-authority role Ollama accepts.
func ollamaMessages(msgs []types.Message) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "developer" {
			role = "system"
		}
		out = append(out, api.Message{Role: role, Content: m.Content})
	}
	return out
}
