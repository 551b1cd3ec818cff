package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/metrics"
)

// Registry manages LLM provider clients and resolves provider references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Debug().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a short name to a provider.
// e.g., Alias("claude", "anthropic") means "claude" resolves to the "anthropic" provider.
func (r *Registry) Alias(alias, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = provider
}

// SetFallback sets the default provider used when no provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given provider reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[name]; ok {
		return c, nil
	}

	if provider, ok := r.aliases[name]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}

	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no LLM provider for %q", name)
}

// Has reports whether a provider is registered under exactly this name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig builds a Registry with every provider that has
// enough configuration to be usable. Keyed SaaS providers are skipped when
// their key is missing; ollama is always registered since it needs no key.
// The autopilot client is passed in so callers can load agent plans into it.
func NewRegistryFromConfig(cfg config.LLMConfig, autopilot *AutopilotClient, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	if p := cfg.Providers["gemini"]; p.APIKey != "" {
		reg.Register("gemini", Instrument(NewGeminiClient(p.APIKey, cfg.ProviderModel("gemini"))))
	}
	if p := cfg.Providers["anthropic"]; p.APIKey != "" {
		reg.Register("anthropic", Instrument(NewAnthropicClient(p.APIKey, cfg.ProviderModel("anthropic"), p.BaseURL)))
	}
	if p := cfg.Providers["openai"]; p.APIKey != "" {
		reg.Register("openai", Instrument(NewOpenAIClient(p.APIKey, cfg.ProviderModel("openai"), p.BaseURL)))
	}
	p := cfg.Providers["ollama"]
	reg.Register("ollama", Instrument(NewOllamaClient(p.BaseURL, cfg.ProviderModel("ollama"))))

	if autopilot != nil {
		reg.Register("autopilot", Instrument(autopilot))
	}

	for alias, provider := range map[string]string{
		"claude":  "anthropic",
		"gpt":     "openai",
		"google":  "gemini",
		"llama":   "ollama",
		"offline": "autopilot",
	} {
		reg.Alias(alias, provider)
	}

	if cfg.Provider != "" && reg.Has(cfg.Provider) {
		reg.SetFallback(cfg.Provider)
	}
	return reg
}

// Instrument wraps a client so every completion is counted in metrics.
func Instrument(c Client) Client {
	return &instrumented{Client: c}
}

type instrumented struct {
	Client
}

func (i *instrumented) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := i.Client.Complete(ctx, req)
	metrics.RecordLLMRequest(i.Client.Name(), err == nil, time.Since(start))
	return resp, err
}
