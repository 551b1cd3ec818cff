package config

// Config is the root configuration for idpforge.
type Config struct {
	LLM          LLMConfig          `yaml:"llm,omitempty" jsonschema:"description=Model provider selection and credentials"`
	Pipeline     PipelineConfig     `yaml:"pipeline,omitempty"`
	Output       OutputConfig       `yaml:"output,omitempty"`
	Preferences  PreferencesConfig  `yaml:"preferences,omitempty"`
	Scanner      ScannerConfig      `yaml:"scanner,omitempty"`
	Portal       PortalConfig       `yaml:"portal,omitempty"`
	Store        StoreConfig        `yaml:"store,omitempty"`
	Hooks        HooksConfig        `yaml:"hooks,omitempty"`
	Notify       NotifyConfig       `yaml:"notify,omitempty"`
	DigitalOcean DigitalOceanConfig `yaml:"digitalocean,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
}

// LLMConfig selects the model client used by every agent.
type LLMConfig struct {
	Provider    string                    `yaml:"provider,omitempty" jsonschema:"enum=gemini,enum=anthropic,enum=openai,enum=ollama,enum=autopilot"`
	Model       string                    `yaml:"model,omitempty"`
	Fallbacks   []string                  `yaml:"fallbacks,omitempty" jsonschema:"description=Providers tried in order when the primary fails with a retryable error"`
	Temperature *float64                  `yaml:"temperature,omitempty"`
	MaxTokens   int                       `yaml:"maxTokens,omitempty"`
	Providers   map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig holds per-provider credentials and endpoints.
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"`
	Model   string `yaml:"model,omitempty"` // overrides llm.model for this provider
}

// PipelineConfig controls the sequential agent chain.
type PipelineConfig struct {
	Agents              []string `yaml:"agents,omitempty" jsonschema:"description=Agent names in execution order; empty means the full chain"`
	MaxToolIterations   int      `yaml:"maxToolIterations,omitempty"`
	StageTimeoutSeconds int      `yaml:"stageTimeoutSeconds,omitempty"`
	StopOnError         *bool    `yaml:"stopOnError,omitempty"`
}

// OutputConfig locates the shared artifact directory.
type OutputConfig struct {
	Dir        string `yaml:"dir,omitempty"`
	Transcript bool   `yaml:"transcript,omitempty" jsonschema:"description=Write demo logs under <dir>/logs"`
}

// PreferencesConfig points at an optional user-preferences.yaml.
type PreferencesConfig struct {
	File string `yaml:"file,omitempty"`
}

// ScannerConfig tunes the security scan invocation.
type ScannerConfig struct {
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
	Service        string `yaml:"service,omitempty"`
}

// PortalConfig controls the dashboard server.
type PortalConfig struct {
	Bind           string   `yaml:"bind,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	RateLimit      int      `yaml:"rateLimit,omitempty" jsonschema:"description=Requests per minute per client on /api"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// HooksConfig maps event names (pipeline.start, agent.complete, ...) to shell commands.
type HooksConfig map[string][]HookEntry

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// NotifyConfig configures run summaries sent to chat.
type NotifyConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines the IRC notifier.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
	SASL     bool   `yaml:"sasl,omitempty"`
}

// DigitalOceanConfig enables the DigitalOcean deployment planner.
type DigitalOceanConfig struct {
	Token  string `yaml:"token,omitempty"`
	Region string `yaml:"region,omitempty"`
	Size   string `yaml:"size,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" jsonschema:"enum=silent,enum=error,enum=warn,enum=info,enum=debug,enum=trace"`
	Format string `yaml:"format,omitempty" jsonschema:"enum=console,enum=json"`
}
