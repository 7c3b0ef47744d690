package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
	"github.com/mediscan/mediscan-api/internal/infra/ai/prompt"
)

const maxTokens = 1024

// Client adapts an OpenAI-compatible chat-completions endpoint to the
// Vision port. OpenRouter-style gateways expose Gemini models through this
// shape, so it doubles as the alternate provider.
type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Identify(ctx context.Context, img domain.SourceImage) (string, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MIME, base64.StdEncoding.EncodeToString(img.Data))

	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.Identification()},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}},
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return fmt.Errorf("openai: %w", domain.ErrQuotaExceeded)
		case 401, 403:
			return fmt.Errorf("openai: %w", domain.ErrInvalidAPIKey)
		}
	}
	return fmt.Errorf("failed to create chat completion: %w", err)
}
