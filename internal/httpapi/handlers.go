package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/globaltime"
	"horse.fit/glance/internal/hover"
	"horse.fit/glance/internal/page"
	"horse.fit/glance/internal/reader"
	"horse.fit/glance/internal/schema"
	"horse.fit/glance/internal/settings"
	"horse.fit/glance/internal/sse"
)

const (
	maxRequestBodyBytes = 1 << 20
	maxChatMessages     = 64

	defaultExtractMaxChars = 0
	maxExtractMaxChars     = 200_000
)

type extractRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type chatRequest struct {
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Messages []chat.Message `json:"messages"`
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type settingsResponse struct {
	Settings  settings.Document `json:"settings"`
	HasAPIKey bool              `json:"has_api_key"`
}

func (s *Server) handleHealth(c echo.Context) error {
	database := "disabled"
	if s.database != nil {
		database = "ok"
		if err := s.database.Ping(c.Request().Context()); err != nil {
			s.logger.Warn().Err(err).Msg("database ping failed")
			database = "unavailable"
		}
	}
	return success(c, map[string]any{
		"service":  "glance",
		"time":     globaltime.UTC(),
		"database": database,
	})
}

func (s *Server) handleProviders(c echo.Context) error {
	return success(c, map[string]any{
		"items":   s.registry.List(),
		"default": s.registry.DefaultProvider(),
	})
}

func (s *Server) handleGetSettings(c echo.Context) error {
	doc, err := s.settings.WaitDocument(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load settings failed")
		return internalError(c, "Failed to load settings")
	}
	return success(c, settingsResponse{
		Settings:  doc.Redacted(),
		HasAPIKey: doc.Provider.HasAPIKey(),
	})
}

// handlePutSettings replaces the stored settings. A payload without an
// api_key keeps the stored key when the provider is unchanged, since GET
// only ever hands out the masked form.
func (s *Server) handlePutSettings(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	doc, err := schema.ValidateSettingsPayload(raw)
	if err != nil {
		return failValidation(c, map[string]string{"settings": err.Error()})
	}
	if _, err := hover.ParseModifier(doc.Shortcut); err != nil {
		return failValidation(c, map[string]string{"shortcut": err.Error()})
	}
	if _, err := s.registry.Provider(doc.Provider.ProviderID); err != nil {
		return failValidation(c, map[string]string{"provider_id": err.Error()})
	}

	ctx := c.Request().Context()
	if !apiKeyPresent(raw) {
		current, err := s.settings.WaitDocument(ctx)
		if err == nil && current.Provider.ProviderID == doc.Provider.ProviderID {
			doc.Provider.APIKey = current.Provider.APIKey
		}
	}

	if err := s.settings.Save(ctx, doc); err != nil {
		s.logger.Error().Err(err).Str("provider", doc.Provider.ProviderID).Msg("save settings failed")
		return internalError(c, "Failed to save settings")
	}
	s.logger.Info().
		Str("provider", doc.Provider.ProviderID).
		Str("model", doc.Provider.ModelID).
		Str("shortcut", doc.Shortcut).
		Msg("settings updated")

	return success(c, settingsResponse{
		Settings:  doc.Redacted(),
		HasAPIKey: doc.Provider.HasAPIKey(),
	})
}

func (s *Server) handleExtract(c echo.Context) error {
	maxChars, err := parsePositiveInt(c.QueryParam("max_chars"), defaultExtractMaxChars, 1, maxExtractMaxChars)
	if err != nil {
		return failValidation(c, map[string]string{"max_chars": err.Error()})
	}

	var req extractRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return failValidation(c, map[string]string{"url": "is required"})
	}

	pg, err := s.fetch(c.Request().Context(), req.URL, strings.TrimSpace(req.Title))
	if err != nil {
		s.logger.Warn().Err(err).Str("url", req.URL).Msg("extract page failed")
		return fail(c, http.StatusBadGateway, "Failed to extract page", map[string]any{
			"error": err.Error(),
		})
	}

	truncated := false
	if maxChars > 0 {
		pg.Text, truncated = reader.TruncateText(pg.Text, maxChars)
	}
	return success(c, map[string]any{
		"page":       pg,
		"char_count": len([]rune(pg.Text)),
		"truncated":  truncated,
	})
}

// handleChat streams the assistant's answer as server-sent events. Each
// default event carries {"text": cumulative}; a final "done" or "error"
// event ends the stream.
func (s *Server) handleChat(c echo.Context) error {
	if s.assistant == nil {
		return internalError(c, "Assistant is not configured")
	}

	var req chatRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	history, question, fieldErrors := splitConversation(req.Messages)
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	ctx := c.Request().Context()
	cfg, ok, err := s.providerConfig(c)
	if !ok {
		return err
	}

	pg := reader.Page{
		URL:   strings.TrimSpace(req.URL),
		Title: strings.TrimSpace(req.Title),
		Text:  reader.CleanText(req.Text),
	}
	if pg.Text == "" && pg.URL != "" {
		fetched, err := s.fetch(ctx, pg.URL, pg.Title)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", pg.URL).Msg("chat page fetch failed")
			return fail(c, http.StatusBadGateway, "Failed to extract page", map[string]any{
				"error": err.Error(),
			})
		}
		pg = fetched
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	stream := sse.NewWriter(res)
	var writeErr error
	answer, err := s.assistant.Ask(ctx, cfg, pg, history, question, func(cumulative string) {
		if writeErr != nil {
			return
		}
		writeErr = writeEvent(stream, "", map[string]string{"text": cumulative})
	})
	if writeErr != nil {
		s.logger.Debug().Err(writeErr).Msg("chat client went away")
		return nil
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Str("provider", cfg.ProviderID).Msg("chat completion failed")
		}
		_ = writeEvent(stream, "error", map[string]string{
			"message": providerErrorMessage(err),
			"text":    answer,
		})
		return nil
	}
	_ = writeEvent(stream, "done", map[string]string{"text": answer})
	return nil
}

func (s *Server) handleTranslate(c echo.Context) error {
	if s.translator == nil {
		return internalError(c, "Translator is not configured")
	}

	var req translateRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	source := strings.TrimSpace(req.Text)
	if source == "" {
		return failValidation(c, map[string]string{"text": "is required"})
	}
	if n := len([]rune(source)); n > page.HardCap {
		return failValidation(c, map[string]string{
			"text": fmt.Sprintf("must be at most %d characters", page.HardCap),
		})
	}

	cfg, ok, err := s.providerConfig(c)
	if !ok {
		return err
	}

	result, err := s.translator.Translate(c.Request().Context(), cfg, source, nil)
	if err != nil {
		return failProvider(c, err)
	}
	return success(c, translateResponse{
		Text:       result.Text,
		SourceLang: result.Direction.Source,
		TargetLang: result.Direction.Target,
	})
}

// providerConfig loads the settings and checks them without touching the
// network. When ok is false the response has already been written and err
// is what the handler should return.
func (s *Server) providerConfig(c echo.Context) (chat.ProviderConfig, bool, error) {
	doc, err := s.settings.WaitDocument(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load settings failed")
		return chat.ProviderConfig{}, false, internalError(c, "Failed to load settings")
	}
	if _, err := s.registry.Resolve(doc.Provider); err != nil {
		return chat.ProviderConfig{}, false, failProvider(c, err)
	}
	return doc.Provider, true, nil
}

func failProvider(c echo.Context, err error) error {
	var apiErr *chat.APIError
	switch {
	case errors.Is(err, chat.ErrMissingAPIKey):
		return fail(c, http.StatusBadRequest, providerErrorMessage(err), nil)
	case errors.As(err, &apiErr):
		return fail(c, http.StatusBadGateway, providerErrorMessage(err), map[string]any{
			"provider_status": apiErr.StatusCode,
		})
	case errors.Is(err, context.DeadlineExceeded):
		return fail(c, http.StatusGatewayTimeout, "Provider request timed out", nil)
	default:
		return fail(c, http.StatusBadGateway, providerErrorMessage(err), nil)
	}
}

func providerErrorMessage(err error) string {
	if errors.Is(err, chat.ErrMissingAPIKey) {
		return "API key is not configured"
	}
	var apiErr *chat.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

// splitConversation takes the last message as the question and the rest as
// history. The last message must come from the user.
func splitConversation(messages []chat.Message) ([]chat.Message, string, map[string]string) {
	if len(messages) == 0 {
		return nil, "", map[string]string{"messages": "is required"}
	}
	if len(messages) > maxChatMessages {
		return nil, "", map[string]string{"messages": fmt.Sprintf("must hold at most %d messages", maxChatMessages)}
	}
	for i, m := range messages {
		if m.Role != chat.RoleUser && m.Role != chat.RoleAssistant {
			return nil, "", map[string]string{
				fmt.Sprintf("messages[%d].role", i): "must be user or assistant",
			}
		}
	}
	last := messages[len(messages)-1]
	if last.Role != chat.RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, "", map[string]string{"messages": "must end with a non-empty user message"}
	}
	return messages[:len(messages)-1], strings.TrimSpace(last.Content), nil
}

func writeEvent(w *sse.Writer, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return w.Write(sse.Event{Type: eventType, Data: data})
}

func readBody(c echo.Context) (json.RawMessage, error) {
	body := c.Request().Body
	if body == nil {
		return nil, fmt.Errorf("request body is required")
	}
	raw, err := io.ReadAll(io.LimitReader(body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(raw) > maxRequestBodyBytes {
		return nil, fmt.Errorf("request body is too large")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("request body is required")
	}
	return raw, nil
}

func decodeJSONBody(c echo.Context, out any) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("invalid JSON body: trailing data")
	}
	return nil
}

func apiKeyPresent(raw json.RawMessage) bool {
	var probe struct {
		Provider struct {
			APIKey *string `json:"api_key"`
		} `json:"provider"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Provider.APIKey != nil
}
