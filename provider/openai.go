package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nathoo/talecore/types"
)

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client   openai.Client
	sampling Sampling
}

// NewOpenAI creates an OpenAI provider. An API key is required. The SDK's
// own retries are disabled; the generation service owns retry policy.
func NewOpenAI(baseURL, apiKey string, s Sampling, timeout time.Duration) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	client := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	)
	return &OpenAI{client: client, sampling: s}, nil
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Close() error { return nil }

// Complete sends msgs to the chat completions API in JSON mode.
func (p *OpenAI) Complete(ctx context.Context, msgs []types.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.sampling.Model),
		Messages:    openAIMessages(msgs),
		Temperature: openai.Float(p.sampling.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if p.sampling.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.sampling.MaxOutputTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(msgs []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "developer":
			out = append(out, openai.DeveloperMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
