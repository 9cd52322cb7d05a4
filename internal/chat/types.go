// Package chat talks to chat-completion providers over their HTTP APIs.
//
// Two wire protocols are supported behind one Client: the OpenAI-compatible
// chat/completions endpoint, used by most providers, and the Anthropic messages
// endpoint. The protocol is chosen from the provider id alone.
package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingAPIKey is returned before any network call when a provider that
// needs a key has none configured.
var ErrMissingAPIKey = errors.New("api key is not configured")

// ProviderConfig is the provider section of the user's settings.
type ProviderConfig struct {
	ProviderID string `json:"provider_id" yaml:"provider_id" toml:"provider_id"`
	APIKey     string `json:"api_key" yaml:"api_key" toml:"api_key"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	ModelID    string `json:"model_id" yaml:"model_id" toml:"model_id"`
}

// HasAPIKey reports whether an API key is present.
func (c ProviderConfig) HasAPIKey() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ChunkFunc receives the cumulative response text after each new fragment.
type ChunkFunc func(cumulative string)

// Protocol identifies a provider wire format.
type Protocol int

const (
	ProtocolOpenAI Protocol = iota
	ProtocolAnthropic
)

func (p Protocol) String() string {
	switch p {
	case ProtocolAnthropic:
		return "anthropic"
	default:
		return "openai"
	}
}

// ProtocolFor returns the wire protocol for a provider id.
func ProtocolFor(providerID string) Protocol {
	if NormalizeProviderID(providerID) == ProviderAnthropic {
		return ProtocolAnthropic
	}
	return ProtocolOpenAI
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}
