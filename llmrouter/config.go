package llmrouter

import (
	"github.com/caarlos0/env/v11"
)

// Credentials is one OpenAI-compatible endpoint triple. A triple is
// configured when all three fields are present.
type Credentials struct {
	BaseURL string `env:"OPENAI_BASE_URL"`
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_MODEL"`
}

// Configured reports whether the triple is complete.
func (c Credentials) Configured() bool {
	return c.BaseURL != "" && c.APIKey != "" && c.Model != ""
}

// Config is the startup configuration surface: backend credential triples,
// the routing threshold, the loop iteration cap, and the default page size
// for paged sub-tasks.
type Config struct {
	Local      Credentials `envPrefix:"LOCAL_"`
	Remote     Credentials `envPrefix:"REMOTE_"`
	Multimodal Credentials `envPrefix:"MULTIMODAL_"`

	RouterThreshold int    `env:"LLM_ROUTER_THRESHOLD" envDefault:"10000"`
	MaxIterations   int    `env:"AGENT_MAX_ITERATIONS" envDefault:"30"`
	PageSize        int    `env:"AGENT_PAGE_SIZE" envDefault:"15000"`
	JinaAPIKey      string `env:"JINA_API_KEY"`
}

// LoadConfig reads configuration from the environment. Local and remote
// triples are required; multimodal is optional and its absence only
// surfaces when a turn carries image content.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, &ConfigurationError{RouterError{Message: "parsing environment", Cause: err}}
	}
	if !cfg.Local.Configured() {
		return nil, &ConfigurationError{RouterError{
			Message: "LOCAL_OPENAI_BASE_URL, LOCAL_OPENAI_API_KEY, and LOCAL_OPENAI_MODEL must be set",
		}}
	}
	if !cfg.Remote.Configured() {
		return nil, &ConfigurationError{RouterError{
			Message: "REMOTE_OPENAI_BASE_URL, REMOTE_OPENAI_API_KEY, and REMOTE_OPENAI_MODEL must be set",
		}}
	}
	return &cfg, nil
}

// Backends constructs the backend set from the configured credential
// triples. Every endpoint speaks the OpenAI chat-completion wire format;
// the multimodal backend is the only one that accepts image parts.
func (c *Config) Backends() (BackendSet, error) {
	var set BackendSet
	if c.Local.Configured() {
		set.Local = bindOpenAI("local", c.Local, false)
	}
	if c.Remote.Configured() {
		set.Remote = bindOpenAI("remote", c.Remote, false)
	}
	if c.Multimodal.Configured() {
		set.Multimodal = bindOpenAI("multimodal", c.Multimodal, true)
	}
	if set.Local == nil && set.Remote == nil {
		return BackendSet{}, &ConfigurationError{RouterError{
			Message: "no general-purpose backend configured",
		}}
	}
	return set, nil
}

func bindOpenAI(id string, creds Credentials, images bool) *BoundBackend {
	backend := Backend{
		ID:             id,
		Model:          creds.Model,
		BaseURL:        creds.BaseURL,
		APIKey:         creds.APIKey,
		SupportsImages: images,
	}
	return &BoundBackend{
		Backend: backend,
		Client:  NewOpenAIBackend(backend),
	}
}
