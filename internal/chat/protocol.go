package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"horse.fit/glance/internal/sse"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// protocolAdapter hides the request and response shape of one wire protocol.
type protocolAdapter interface {
	endpoint(baseURL string) string
	setAuth(req *http.Request, apiKey string)
	buildBody(model, systemPrompt string, messages []Message, stream bool) ([]byte, error)
	parseResponse(raw []byte) (string, error)
	readStream(ctx context.Context, body io.Reader, onChunk ChunkFunc) (string, error)
}

func protocolAdapterFor(p Protocol) protocolAdapter {
	if p == ProtocolAnthropic {
		return anthropicProtocol{}
	}
	return openAIProtocol{}
}

// ---------------------------------------------------------------------------
// OpenAI-compatible chat/completions
// ---------------------------------------------------------------------------

type openAIProtocol struct{}

type openAIRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (openAIProtocol) endpoint(baseURL string) string {
	return joinEndpoint(baseURL, "/chat/completions")
}

func (openAIProtocol) setAuth(req *http.Request, apiKey string) {
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (openAIProtocol) buildBody(model, systemPrompt string, messages []Message, stream bool) ([]byte, error) {
	all := make([]Message, 0, len(messages)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		all = append(all, Message{Role: RoleSystem, Content: systemPrompt})
	}
	all = append(all, messages...)
	return json.Marshal(openAIRequest{Model: model, Messages: all, Stream: stream})
}

func (openAIProtocol) parseResponse(raw []byte) (string, error) {
	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response missing choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (openAIProtocol) readStream(ctx context.Context, body io.Reader, onChunk ChunkFunc) (string, error) {
	var text strings.Builder
	err := sse.Read(ctx, body, func(ev sse.Event) error {
		data := strings.TrimSpace(string(ev.Data))
		if data == "[DONE]" {
			return sse.ErrStop
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			return nil
		}
		text.WriteString(chunk.Choices[0].Delta.Content)
		onChunk(text.String())
		return nil
	})
	if err != nil {
		return text.String(), fmt.Errorf("read chat stream: %w", err)
	}
	return text.String(), nil
}

// ---------------------------------------------------------------------------
// Anthropic messages
// ---------------------------------------------------------------------------

type anthropicProtocol struct{}

type anthropicRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (anthropicProtocol) endpoint(baseURL string) string {
	return joinEndpoint(baseURL, "/messages")
}

func (anthropicProtocol) setAuth(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (anthropicProtocol) buildBody(model, systemPrompt string, messages []Message, stream bool) ([]byte, error) {
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		// The system instruction travels in its own top-level field.
		if m.Role == RoleSystem {
			continue
		}
		turns = append(turns, m)
	}
	return json.Marshal(anthropicRequest{
		Model:     model,
		System:    strings.TrimSpace(systemPrompt),
		Messages:  turns,
		MaxTokens: anthropicMaxTokens,
		Stream:    stream,
	})
}

func (anthropicProtocol) parseResponse(raw []byte) (string, error) {
	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

var errAnthropicStream = errors.New("anthropic stream error")

func (anthropicProtocol) readStream(ctx context.Context, body io.Reader, onChunk ChunkFunc) (string, error) {
	var text strings.Builder
	err := sse.Read(ctx, body, func(ev sse.Event) error {
		var event anthropicStreamEvent
		if err := json.Unmarshal(ev.Data, &event); err != nil {
			return nil
		}

		eventType := event.Type
		if eventType == "" {
			eventType = ev.Type
		}

		switch eventType {
		case "content_block_delta":
			if event.Delta.Text == "" {
				return nil
			}
			text.WriteString(event.Delta.Text)
			onChunk(text.String())
		case "message_stop":
			return sse.ErrStop
		case "error":
			msg := strings.TrimSpace(event.Error.Message)
			if msg == "" {
				return errAnthropicStream
			}
			return &APIError{Message: msg}
		}
		return nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return text.String(), apiErr
		}
		return text.String(), fmt.Errorf("read chat stream: %w", err)
	}
	return text.String(), nil
}
