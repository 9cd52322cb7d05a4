package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/glance/internal/globaltime"
)

const (
	// DefaultTimeout bounds a whole request, streaming included.
	DefaultTimeout = 120 * time.Second

	errorBodyLimit = 64 * 1024
	appReferer     = "https://github.com/horse-fit/glance"
	appTitle       = "glance"
)

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Registry   *Registry
	Logger     zerolog.Logger
	Timeout    time.Duration
}

// Client sends chat completions to whichever provider a ProviderConfig names.
type Client struct {
	httpClient *http.Client
	registry   *Registry
	logger     zerolog.Logger
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Client{
		httpClient: httpClient,
		registry:   registry,
		logger:     opts.Logger,
	}
}

// Complete sends systemPrompt and messages to the configured provider. With a
// non-nil onChunk the response is streamed and onChunk sees the cumulative text
// after every fragment; otherwise one JSON response is read. The final text is
// returned either way.
func (c *Client) Complete(ctx context.Context, cfg ProviderConfig, systemPrompt string, messages []Message, onChunk ChunkFunc) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", fmt.Errorf("chat client is not initialized")
	}

	resolved, err := c.registry.Resolve(cfg)
	if err != nil {
		return "", err
	}

	proto := protocolAdapterFor(ProtocolFor(resolved.ProviderID))
	stream := onChunk != nil

	body, err := proto.buildBody(resolved.ModelID, systemPrompt, messages, stream)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, proto.endpoint(resolved.BaseURL), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	proto.setAuth(req, resolved.APIKey)
	setProviderHeaders(req, resolved.ProviderID)

	started := globaltime.Now()
	c.logger.Debug().
		Str("provider", resolved.ProviderID).
		Str("model", resolved.ModelID).
		Str("protocol", ProtocolFor(resolved.ProviderID).String()).
		Bool("stream", stream).
		Int("messages", len(messages)).
		Msg("chat request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeAPIError(resp)
	}

	var text string
	if stream {
		text, err = proto.readStream(ctx, resp.Body, onChunk)
	} else {
		text, err = readJSONResponse(resp.Body, proto)
	}
	if err != nil {
		return text, err
	}

	c.logger.Debug().
		Str("provider", resolved.ProviderID).
		Dur("latency", globaltime.Since(started)).
		Int("chars", len([]rune(text))).
		Msg("chat response")
	return text, nil
}

func readJSONResponse(body io.Reader, proto protocolAdapter) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	text, err := proto.parseResponse(raw)
	if err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return text, nil
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if msg := strings.TrimSpace(envelope.Error.Message); msg != "" {
			apiErr.Message = msg
			return apiErr
		}
		if msg := strings.TrimSpace(envelope.Message); msg != "" {
			apiErr.Message = msg
			return apiErr
		}
	}

	apiErr.Message = http.StatusText(resp.StatusCode)
	return apiErr
}

func setProviderHeaders(req *http.Request, providerID string) {
	switch NormalizeProviderID(providerID) {
	case ProviderOpenRouter:
		req.Header.Set("HTTP-Referer", appReferer)
		req.Header.Set("X-Title", appTitle)
	case ProviderAnthropic:
		req.Header.Set("anthropic-dangerous-direct-browser-access", "true")
	}
}

func joinEndpoint(baseURL, suffix string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(base, suffix) {
		return base
	}
	return base + suffix
}
