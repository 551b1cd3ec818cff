package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Providers lists the model client names accepted in llm.provider.
var Providers = []string{"gemini", "anthropic", "openai", "ollama", "autopilot"}

// keyedProviders need an API key to be usable.
var keyedProviders = []string{"gemini", "anthropic", "openai"}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// LLM
	if !slices.Contains(Providers, cfg.LLM.Provider) {
		add("llm.provider", "must be one of %v, got %q", Providers, cfg.LLM.Provider)
	} else if slices.Contains(keyedProviders, cfg.LLM.Provider) && cfg.LLM.Providers[cfg.LLM.Provider].APIKey == "" {
		add("llm.providers."+cfg.LLM.Provider+".apiKey", "required for provider %q (or set %s)", cfg.LLM.Provider, providerKeyEnv[cfg.LLM.Provider])
	}
	for i, fb := range cfg.LLM.Fallbacks {
		if !slices.Contains(Providers, fb) {
			add(fmt.Sprintf("llm.fallbacks[%d]", i), "must be one of %v, got %q", Providers, fb)
		}
		if fb == cfg.LLM.Provider {
			add(fmt.Sprintf("llm.fallbacks[%d]", i), "duplicates the primary provider")
		}
	}
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("llm.temperature", "must be between 0 and 2, got %g", *t)
	}
	if cfg.LLM.MaxTokens < 0 {
		add("llm.maxTokens", "must be positive, got %d", cfg.LLM.MaxTokens)
	}

	// Pipeline
	seen := map[string]bool{}
	for i, name := range cfg.Pipeline.Agents {
		if name == "" {
			add(fmt.Sprintf("pipeline.agents[%d]", i), "agent name is empty")
			continue
		}
		if seen[name] {
			add(fmt.Sprintf("pipeline.agents[%d]", i), "agent %q listed twice", name)
		}
		seen[name] = true
	}
	if cfg.Pipeline.MaxToolIterations < 1 {
		add("pipeline.maxToolIterations", "must be at least 1, got %d", cfg.Pipeline.MaxToolIterations)
	}
	if cfg.Pipeline.StageTimeoutSeconds < 0 {
		add("pipeline.stageTimeoutSeconds", "must not be negative")
	}

	if cfg.Output.Dir == "" {
		add("output.dir", "required")
	}
	if cfg.Scanner.TimeoutSeconds < 0 {
		add("scanner.timeoutSeconds", "must not be negative")
	}

	// Portal
	if cfg.Portal.Port < 0 || cfg.Portal.Port > 65535 {
		add("portal.port", "port must be 0-65535, got %d", cfg.Portal.Port)
	}
	if cfg.Portal.RateLimit < 0 {
		add("portal.rateLimit", "must not be negative")
	}

	// Hooks
	for event, entries := range cfg.Hooks {
		for i, h := range entries {
			if h.Command == "" {
				add(fmt.Sprintf("hooks.%s[%d].command", event, i), "command is required")
			}
			if h.Timeout < 0 {
				add(fmt.Sprintf("hooks.%s[%d].timeout", event, i), "must not be negative")
			}
		}
	}

	// IRC notifier (only if configured)
	if irc := cfg.Notify.IRC; irc != nil {
		if irc.Server == "" {
			add("notify.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("notify.irc.nick", "nick is required")
		}
		if irc.Channel == "" {
			add("notify.irc.channel", "channel is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("notify.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("notify.irc.sasl", "SASL requires a password to be set")
		}
	}

	// Logging
	validLogLevels := []string{"silent", "error", "warn", "info", "debug", "trace"}
	if !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validFormats := []string{"console", "json"}
	if !slices.Contains(validFormats, cfg.Logging.Format) {
		add("logging.format", "must be one of %v, got %q", validFormats, cfg.Logging.Format)
	}

	return issues
}
