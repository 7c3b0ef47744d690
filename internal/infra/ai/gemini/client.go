package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
	"github.com/mediscan/mediscan-api/internal/infra/ai/prompt"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel    = "gemini-2.5-flash"
	maxOutputTokens = 1024
)

// Client calls the Gemini generateContent REST API with an inline image.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

func NewClient(apiKey, model, endpoint string) *Client {
	if model == "" {
		model = defaultModel
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Wire types for the generateContent schema: one text part and one
// inline-image part per request.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Identify sends the image with the identification prompt and returns the
// raw model text. Generation parameters favor determinism.
func (c *Client) Identify(ctx context.Context, img domain.SourceImage) (string, error) {
	body := generateRequest{
		Contents: []content{{Parts: []part{
			{Text: prompt.Identification()},
			{InlineData: &inlineData{
				MIMEType: img.MIME,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			}},
		}}},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			TopK:            16,
			TopP:            0.8,
			MaxOutputTokens: maxOutputTokens,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("gemini response read: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, data)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("gemini response decode: %w", err)
	}
	if out.Error != nil {
		return "", classifyStatus(out.Error.Code, data)
	}
	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: block reason %s: %w", out.PromptFeedback.BlockReason, domain.ErrSafetyBlocked)
	}
	if len(out.Candidates) == 0 {
		return "", domain.ErrEmptyResponse
	}
	cand := out.Candidates[0]
	if strings.EqualFold(cand.FinishReason, "SAFETY") {
		return "", fmt.Errorf("gemini: finish reason SAFETY: %w", domain.ErrSafetyBlocked)
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", domain.ErrEmptyResponse
	}
	return sb.String(), nil
}

func classifyStatus(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("gemini: %s: %w", msg, domain.ErrQuotaExceeded)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("gemini: %s: %w", msg, domain.ErrInvalidAPIKey)
	}
	if strings.Contains(msg, "API key") {
		return fmt.Errorf("gemini: %s: %w", msg, domain.ErrInvalidAPIKey)
	}
	return fmt.Errorf("gemini: status %d: %s", code, msg)
}
