// Package schema validates JSON documents against the embedded schemas:
// settings payloads sent to the HTTP API and hover replay scripts.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/settings"
)

//go:embed settings.schema.json
var settingsSchemaJSON string

//go:embed replay_script.schema.json
var replayScriptSchemaJSON string

const (
	settingsSchemaName = "settings.schema.json"
	replaySchemaName   = "replay_script.schema.json"
)

// ReplayEvent is one scripted page event.
type ReplayEvent struct {
	Type   string `json:"type"`
	Key    string `json:"key,omitempty"`
	Ctrl   bool   `json:"ctrl,omitempty"`
	Alt    bool   `json:"alt,omitempty"`
	Shift  bool   `json:"shift,omitempty"`
	Meta   bool   `json:"meta,omitempty"`
	MS     int    `json:"ms,omitempty"`
	Target string `json:"target,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ReplayScript is a sequence of events to drive a hover controller.
type ReplayScript struct {
	Version  int           `json:"version"`
	Shortcut string        `json:"shortcut,omitempty"`
	Events   []ReplayEvent `json:"events"`
}

type compiled struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

var (
	settingsSchema compiled
	replaySchema   compiled
)

// ValidateSettingsPayload checks a settings PUT body and returns the
// normalized document.
func ValidateSettingsPayload(payload json.RawMessage) (settings.Document, error) {
	var doc settings.Document
	if err := validateInto(&settingsSchema, settingsSchemaName, settingsSchemaJSON, payload, &doc); err != nil {
		return settings.Document{}, err
	}

	doc = doc.Normalized()
	if strings.TrimSpace(chat.NormalizeProviderID(doc.Provider.ProviderID)) == "" {
		return settings.Document{}, fmt.Errorf("provider_id must not be empty")
	}
	if doc.Provider.BaseURL != "" {
		if err := validateURI("base_url", doc.Provider.BaseURL); err != nil {
			return settings.Document{}, err
		}
	}
	return doc, nil
}

// ValidateReplayScript checks a replay script.
func ValidateReplayScript(payload json.RawMessage) (*ReplayScript, error) {
	var script ReplayScript
	if err := validateInto(&replaySchema, replaySchemaName, replayScriptSchemaJSON, payload, &script); err != nil {
		return nil, err
	}
	for i, ev := range script.Events {
		if ev.Target != "" && strings.TrimSpace(ev.Target) == "" {
			return nil, fmt.Errorf("events[%d].target must not be blank", i)
		}
	}
	return &script, nil
}

func validateInto(c *compiled, name, source string, payload json.RawMessage, out any) error {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := c.load(name, source)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("normalize payload JSON: %w", err)
	}
	if err := json.Unmarshal(normalized, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

func (c *compiled) load(name, source string) (*jsonschema.Schema, error) {
	c.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
			c.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			c.err = fmt.Errorf("compile schema: %w", err)
			return
		}
		c.schema = schema
	})

	if c.err != nil {
		return nil, c.err
	}
	if c.schema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return c.schema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func validateURI(fieldName, value string) error {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", fieldName)
	}
	return nil
}
