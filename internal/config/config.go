package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

const (
	DefaultOutputDir   = "./test-outputs"
	DefaultProvider    = "gemini"
	DefaultModel       = "gemini-2.0-flash"
	DefaultPortalPort  = 8000
	DefaultScanTimeout = 120
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// StopOnErrorEnabled reports whether the pipeline aborts on the first failed stage.
func (p PipelineConfig) StopOnErrorEnabled() bool {
	return p.StopOnError == nil || *p.StopOnError
}

// ProviderModel returns the model configured for a provider, falling back to llm.model.
func (l LLMConfig) ProviderModel(provider string) string {
	if p, ok := l.Providers[provider]; ok && p.Model != "" {
		return p.Model
	}
	return l.Model
}
