package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/nathoo/talecore/types"
)

// Gemini talks to the Gemini API through the genai client.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini provider. An API key is required.
func NewGemini(ctx context.Context, apiKey string, s Sampling, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(s.Model)
	model.SetTemperature(float32(s.Temperature))
	if s.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(s.MaxOutputTokens))
	}
	model.ResponseMIMEType = "application/json"
	return &Gemini{client: client, model: model}, nil
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) Close() error { return p.client.Close() }

// Complete sends the system and developer messages as the system
// instruction and the rest as one user turn.
func (p *Gemini) Complete(ctx context.Context, msgs []types.Message) (string, error) {
	system, user := splitMessages(msgs)

	// Per-call copy; SystemInstruction differs between requests.
	model := *p.model
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content returned from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("unexpected response type from Gemini")
	}
	return b.String(), nil
}

// splitMessages joins system and developer content into one instruction
// and the remaining messages into one prompt.
func splitMessages(msgs []types.Message) (system, user string) {
	var sys, rest []string
	for _, m := range msgs {
		switch m.Role {
		case "system", "developer":
			sys = append(sys, m.Content)
		default:
			rest = append(rest, m.Content)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(rest, "\n\n")
}
