package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/amishk599/inboxsheet/internal/model"
)

const systemPrompt = "You are a precise structured data extractor for job posting emails. You reply with JSON only."

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint. The
// default configuration points it at Gemini's compatibility endpoint.
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	jsonMode bool
}

// NewOpenAIProvider creates a provider for baseURL (without the
// /chat/completions suffix). With jsonMode the request asks for a JSON
// object response; not every compatible endpoint honours it.
func NewOpenAIProvider(baseURL, apiKey, model string, jsonMode bool, httpClient *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		jsonMode: jsonMode,
	}
}

// Complete sends prompt as a single user turn and returns the first choice.
// HTTP failures are returned as *model.HTTPError.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	}
	if p.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			return "", &model.HTTPError{StatusCode: apiErr.HTTPStatusCode, Err: err}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &model.HTTPError{StatusCode: reqErr.HTTPStatusCode, Err: err}
		}
		return "", fmt.Errorf("llm request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
