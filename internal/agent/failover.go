package agent

import (
	"context"

	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/logging"
)

var _ llm.Client = (*FailoverClient)(nil)

// FailoverClient wraps an LLM registry to try fallback providers on failure.
type FailoverClient struct {
	registry  *llm.Registry
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient creates a client that tries the primary provider first,
// then falls back through the list on retryable errors (401, 429, 5xx).
func NewFailoverClient(registry *llm.Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry:  registry,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

// Name reports the primary provider.
func (f *FailoverClient) Name() string { return f.primary }

func (f *FailoverClient) providers() []string {
	out := make([]string, 0, 1+len(f.fallbacks))
	seen := map[string]bool{}
	for _, p := range append([]string{f.primary}, f.fallbacks...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Complete tries the primary provider, falling back on retryable errors.
// req.Model is passed through untouched; each provider applies its own
// configured model when it is empty.
func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for _, provider := range f.providers() {
		client, err := f.registry.Resolve(provider)
		if err != nil {
			f.log.Debug().Str("provider", provider).Err(err).Msg("no client for provider, skipping")
			lastErr = err
			continue
		}

		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if llm.IsRetryable(err) {
			f.log.Warn().
				Str("provider", provider).
				Err(err).
				Msg("retryable error, trying next provider")
			continue
		}

		return nil, err
	}

	return nil, lastErr
}
