package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a Gemini client. The SDK client is built lazily on
// first use because construction needs a context.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

func (g *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	g.client = c
	return c, nil
}

// Complete sends a non-streaming completion request to Gemini.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	c, err := g.sdk(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: err.Error(), Err: err}
	}

	model := g.model
	if req.Model != "" && req.Model != "gemini" {
		model = req.Model
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     floatPtr32(req.Temperature),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	result, err := c.Models.GenerateContent(ctx, model, geminiContents(req.Messages), cfg)
	if err != nil {
		return nil, wrapError("gemini", geminiStatus(err), err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return nil, &ProviderError{Provider: "gemini", Message: "empty response", Code: 502}
	}

	resp := &CompletionResponse{
		Content:    result.Text(),
		StopReason: string(result.Candidates[0].FinishReason),
		Model:      model,
		Duration:   time.Since(start),
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = Usage{InputTokens: int(u.PromptTokenCount), OutputTokens: int(u.CandidatesTokenCount)}
	}
	return resp, nil
}

// Name returns the provider name.
func (g *GeminiClient) Name() string { return "gemini" }

func geminiContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" || m.Role == RoleSystem {
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

func geminiStatus(err error) int {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
