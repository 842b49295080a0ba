package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIProvider calls an OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	client *resty.Client
	model  string
}

// NewOpenAIProvider creates a provider against baseURL. The timeout
// bounds the whole request; enrichment must never hold a card hostage.
func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey).
		SetTimeout(timeout)

	return &OpenAIProvider{client: c, model: model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are a knowledge management assistant. Given a knowledge card, respond with a JSON object holding:
"summary": a concise 2-3 sentence summary of the content,
"tags": up to 5 short lowercase topic tags,
"relatedCards": up to 3 card IDs from the candidate list that cover related topics (empty array if none fit).
Only use card IDs that appear in the candidate list.`

func (p *OpenAIProvider) Enrich(ctx context.Context, input Input) (Result, error) {
	candidatesJSON, err := json.Marshal(input.Candidates)
	if err != nil {
		return Result{}, fmt.Errorf("encode candidates: %w", err)
	}

	var userPrompt strings.Builder
	fmt.Fprintf(&userPrompt, "Title: %s\n\nContent:\n%s\n\nCandidate cards:\n%s\n", input.Title, input.Content, candidatesJSON)

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt.String()},
		},
		Temperature: 0.7,
	}
	req.ResponseFormat.Type = "json_object"

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&req).
		Post("/chat/completions")
	if err != nil {
		return Result{}, fmt.Errorf("enrichment request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Result{}, fmt.Errorf("enrichment status %d: %s", resp.StatusCode(), resp.String())
	}

	var chat chatResponse
	if err := json.Unmarshal(resp.Body(), &chat); err != nil {
		return Result{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat response")
	}

	var result Result
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &result); err != nil {
		return Result{}, fmt.Errorf("decode enrichment payload: %w", err)
	}
	return result, nil
}
