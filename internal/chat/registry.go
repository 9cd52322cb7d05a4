package chat

import (
	"fmt"
	"sort"
	"strings"
)

const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderDeepSeek   = "deepseek"
	ProviderGroq       = "groq"
	ProviderOllama     = "ollama"
	ProviderCustom     = "custom"

	// DefaultProviderName is used when settings leave the provider blank.
	DefaultProviderName = ProviderOpenAI
)

// ProviderInfo describes one known provider.
type ProviderInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DefaultBaseURL string `json:"default_base_url,omitempty"`
	DefaultModel   string `json:"default_model,omitempty"`
	Keyless        bool   `json:"keyless"`
}

// Registry stores provider descriptions and resolves a default provider.
type Registry struct {
	providers       map[string]ProviderInfo
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	normalizedDefault := NormalizeProviderID(defaultProvider)
	if normalizedDefault == "" {
		normalizedDefault = DefaultProviderName
	}

	return &Registry{
		providers:       make(map[string]ProviderInfo),
		defaultProvider: normalizedDefault,
	}
}

// DefaultRegistry returns a registry pre-populated with the built-in providers.
func DefaultRegistry() *Registry {
	registry := NewRegistry(DefaultProviderName)
	for _, info := range []ProviderInfo{
		{ID: ProviderOpenAI, Name: "OpenAI", DefaultBaseURL: "https://api.openai.com/v1", DefaultModel: "gpt-4o-mini"},
		{ID: ProviderAnthropic, Name: "Anthropic", DefaultBaseURL: "https://api.anthropic.com/v1", DefaultModel: "claude-3-5-haiku-latest"},
		{ID: ProviderOpenRouter, Name: "OpenRouter", DefaultBaseURL: "https://openrouter.ai/api/v1", DefaultModel: "openai/gpt-4o-mini"},
		{ID: ProviderDeepSeek, Name: "DeepSeek", DefaultBaseURL: "https://api.deepseek.com/v1", DefaultModel: "deepseek-chat"},
		{ID: ProviderGroq, Name: "Groq", DefaultBaseURL: "https://api.groq.com/openai/v1", DefaultModel: "llama-3.1-8b-instant"},
		{ID: ProviderOllama, Name: "Ollama", DefaultBaseURL: "http://127.0.0.1:11434/v1", DefaultModel: "qwen2.5:7b", Keyless: true},
		{ID: ProviderCustom, Name: "Custom (OpenAI-compatible)"},
	} {
		_ = registry.Register(info)
	}
	return registry
}

// Register adds one provider.
func (r *Registry) Register(info ProviderInfo) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	id := NormalizeProviderID(info.ID)
	if id == "" {
		return fmt.Errorf("provider id is required")
	}
	info.ID = id
	r.providers[id] = info
	return nil
}

// Provider resolves a provider by id. Empty ids use the default provider.
func (r *Registry) Provider(id string) (ProviderInfo, error) {
	if r == nil {
		return ProviderInfo{}, fmt.Errorf("registry is nil")
	}
	if len(r.providers) == 0 {
		return ProviderInfo{}, fmt.Errorf("no chat providers are registered")
	}

	resolved := NormalizeProviderID(id)
	if resolved == "" {
		resolved = r.defaultProvider
	}
	info, ok := r.providers[resolved]
	if ok {
		return info, nil
	}

	return ProviderInfo{}, fmt.Errorf("chat provider %q is not registered (available: %s)", resolved, strings.Join(r.ProviderIDs(), ", "))
}

func (r *Registry) DefaultProvider() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

func (r *Registry) ProviderIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns provider descriptions ordered by id.
func (r *Registry) List() []ProviderInfo {
	ids := r.ProviderIDs()
	out := make([]ProviderInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.providers[id])
	}
	return out
}

// Resolve fills BaseURL and ModelID from the registry defaults when the
// configuration leaves them blank.
func (r *Registry) Resolve(cfg ProviderConfig) (ProviderConfig, error) {
	info, err := r.Provider(cfg.ProviderID)
	if err != nil {
		return ProviderConfig{}, err
	}

	out := cfg
	out.ProviderID = info.ID
	out.BaseURL = strings.TrimSpace(out.BaseURL)
	if out.BaseURL == "" {
		out.BaseURL = info.DefaultBaseURL
	}
	if out.BaseURL == "" {
		return ProviderConfig{}, fmt.Errorf("provider %q requires a base URL", info.ID)
	}
	out.ModelID = strings.TrimSpace(out.ModelID)
	if out.ModelID == "" {
		out.ModelID = info.DefaultModel
	}
	if out.ModelID == "" {
		return ProviderConfig{}, fmt.Errorf("provider %q requires a model id", info.ID)
	}
	out.APIKey = strings.TrimSpace(out.APIKey)
	if out.APIKey == "" && !info.Keyless {
		return ProviderConfig{}, ErrMissingAPIKey
	}
	return out, nil
}

// NormalizeProviderID lowercases and trims a provider id.
func NormalizeProviderID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
