package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates an Ollama client. An empty or invalid host falls
// back to localhost.
func NewOllamaClient(host, model string) *OllamaClient {
	if host == "" {
		host = defaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		u, _ = url.Parse(defaultOllamaHost)
	}
	return &OllamaClient{client: api.NewClient(u, http.DefaultClient), model: model}
}

// Complete sends a non-streaming chat request.
func (o *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	options := map[string]any{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	var final api.ChatResponse
	var content strings.Builder
	err := o.client.Chat(ctx, &api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		final = resp
		return nil
	})
	if err != nil {
		code := 0
		if strings.Contains(err.Error(), "connection refused") {
			code = 503
		}
		return nil, wrapError("ollama", code, err)
	}

	return &CompletionResponse{
		Content:    content.String(),
		StopReason: final.DoneReason,
		Model:      final.Model,
		Usage: Usage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
		},
		Duration: time.Since(start),
	}, nil
}

// Name returns the provider name.
func (o *OllamaClient) Name() string { return "ollama" }
