// Package settings loads and stores the user's provider settings.
//
// A Store persists one Document, either as a YAML file or as a Postgres row
// with the API key sealed. A Snapshot keeps the latest Document in memory,
// loads it in the background and refreshes it on change notification.
package settings

import (
	"context"
	"errors"
	"strings"

	"horse.fit/glance/internal/chat"
)

// ErrNotLoaded is returned when a snapshot has never loaded successfully.
var ErrNotLoaded = errors.New("settings have not been loaded")

// DefaultShortcut is the modifier that turns on hover translation.
const DefaultShortcut = "Control"

// Document is the persisted settings.
type Document struct {
	Provider chat.ProviderConfig `json:"provider" yaml:"provider" toml:"provider"`
	Shortcut string              `json:"shortcut" yaml:"shortcut" toml:"shortcut"`
}

func DefaultDocument() Document {
	return Document{
		Provider: chat.ProviderConfig{ProviderID: chat.DefaultProviderName},
		Shortcut: DefaultShortcut,
	}
}

// Normalized trims every field and fills the provider and shortcut defaults.
func (d Document) Normalized() Document {
	out := d
	out.Provider.ProviderID = chat.NormalizeProviderID(out.Provider.ProviderID)
	if out.Provider.ProviderID == "" {
		out.Provider.ProviderID = chat.DefaultProviderName
	}
	out.Provider.APIKey = strings.TrimSpace(out.Provider.APIKey)
	out.Provider.BaseURL = strings.TrimSpace(out.Provider.BaseURL)
	out.Provider.ModelID = strings.TrimSpace(out.Provider.ModelID)
	out.Shortcut = strings.TrimSpace(out.Shortcut)
	if out.Shortcut == "" {
		out.Shortcut = DefaultShortcut
	}
	return out
}

// Redacted returns a copy safe to log or return over HTTP.
func (d Document) Redacted() Document {
	out := d
	if out.Provider.HasAPIKey() {
		out.Provider.APIKey = maskKey(out.Provider.APIKey)
	}
	return out
}

func maskKey(key string) string {
	runes := []rune(strings.TrimSpace(key))
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:3]) + strings.Repeat("*", len(runes)-7) + string(runes[len(runes)-4:])
}

// Store persists a Document.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
}
