package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	for name, p := range cfg.LLM.Providers {
		p.APIKey = expandEnvVars(p.APIKey)
		p.BaseURL = expandEnvVars(p.BaseURL)
		cfg.LLM.Providers[name] = p
	}
	cfg.DigitalOcean.Token = expandEnvVars(cfg.DigitalOcean.Token)
	cfg.Output.Dir = expandEnvVars(cfg.Output.Dir)
	if cfg.Notify.IRC != nil {
		cfg.Notify.IRC.Password = expandEnvVars(cfg.Notify.IRC.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Defaults(), &ConfigError{Path: path, Message: "read failed", Err: err}
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), &ConfigError{Path: path, Message: "failed to parse config: " + err.Error(), Err: err}
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Path: path, Message: "failed to parse config: " + err.Error(), Err: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes raw back to path. The document must still decode into a
// Config, so "config set portal.port abc" is refused instead of persisted.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	var check Config
	if err := yaml.Unmarshal(data, &check); err != nil {
		return &ConfigError{Path: path, Message: "refusing to write: " + err.Error(), Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &ConfigError{Path: path, Message: "creating config directory", Err: err}
	}
	return renameio.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultProvider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 8192
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderConfig{}
	}
	if cfg.Pipeline.MaxToolIterations == 0 {
		cfg.Pipeline.MaxToolIterations = 8
	}
	if cfg.Pipeline.StageTimeoutSeconds == 0 {
		cfg.Pipeline.StageTimeoutSeconds = 600
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
	if cfg.Scanner.TimeoutSeconds == 0 {
		cfg.Scanner.TimeoutSeconds = DefaultScanTimeout
	}
	if cfg.Scanner.Service == "" {
		cfg.Scanner.Service = "security-scanner"
	}
	if cfg.Portal.Bind == "" {
		cfg.Portal.Bind = "127.0.0.1"
	}
	if cfg.Portal.Port == 0 {
		cfg.Portal.Port = DefaultPortalPort
	}
	if cfg.Portal.RateLimit == 0 {
		cfg.Portal.RateLimit = 120
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Notify.IRC != nil && cfg.Notify.IRC.Port == 0 {
		if cfg.Notify.IRC.UseTLS {
			cfg.Notify.IRC.Port = 6697
		} else {
			cfg.Notify.IRC.Port = 6667
		}
	}
}

// providerKeyEnv maps provider names to the environment variables holding their API keys.
var providerKeyEnv = map[string]string{
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// applyEnvOverrides reads IDPFORGE_* and the provider environment variables.
// ADK_OUTPUT_DIR and GEMINI_MODEL are honoured for compatibility with
// existing demo scripts; the IDPFORGE_ names win when both are set.
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("IDPFORGE_OUTPUT_DIR", "ADK_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("IDPFORGE_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := firstEnv("IDPFORGE_MODEL", "GEMINI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("IDPFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("IDPFORGE_PORTAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Portal.Port = port
		}
	}
	if v := os.Getenv("DIGITALOCEAN_TOKEN"); v != "" && cfg.DigitalOcean.Token == "" {
		cfg.DigitalOcean.Token = v
	}

	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderConfig{}
	}
	for name, env := range providerKeyEnv {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		p := cfg.LLM.Providers[name]
		if p.APIKey == "" {
			p.APIKey = v
			cfg.LLM.Providers[name] = p
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		p := cfg.LLM.Providers["ollama"]
		if p.BaseURL == "" {
			p.BaseURL = v
			cfg.LLM.Providers["ollama"] = p
		}
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
