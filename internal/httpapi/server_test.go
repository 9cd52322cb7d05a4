package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/glance/internal/assistant"
	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/globaltime"
	"horse.fit/glance/internal/hover"
	"horse.fit/glance/internal/reader"
	"horse.fit/glance/internal/settings"
)

type fakeSettingsStore struct {
	doc     settings.Document
	loadErr error
	saves   []settings.Document
}

func (s *fakeSettingsStore) WaitDocument(context.Context) (settings.Document, error) {
	if s.loadErr != nil {
		return settings.Document{}, s.loadErr
	}
	return s.doc, nil
}

func (s *fakeSettingsStore) Save(_ context.Context, doc settings.Document) error {
	s.saves = append(s.saves, doc)
	s.doc = doc
	return nil
}

type stubCompleter struct {
	pieces  []string
	err     error
	prompts []string
	sent    [][]chat.Message
}

func (s *stubCompleter) Complete(_ context.Context, _ chat.ProviderConfig, systemPrompt string, messages []chat.Message, onChunk chat.ChunkFunc) (string, error) {
	s.prompts = append(s.prompts, systemPrompt)
	s.sent = append(s.sent, messages)
	var b strings.Builder
	for _, piece := range s.pieces {
		b.WriteString(piece)
		if onChunk != nil {
			onChunk(b.String())
		}
	}
	return b.String(), s.err
}

type jsendBody struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newJSONContext(
	method string,
	path string,
	body string,
) (*echo.Echo, echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e, e.NewContext(req, rec), rec
}

func decodeJSend(t *testing.T, rec *httptest.ResponseRecorder) jsendBody {
	t.Helper()
	var body jsendBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func configuredDocument() settings.Document {
	return settings.Document{
		Provider: chat.ProviderConfig{
			ProviderID: chat.ProviderOpenAI,
			APIKey:     "sk-test-1234567890",
			ModelID:    "gpt-4o-mini",
		},
		Shortcut: settings.DefaultShortcut,
	}
}

func newTestServer(store *fakeSettingsStore, completer *stubCompleter) *Server {
	return NewServer(Deps{
		Settings:   store,
		Assistant:  assistant.New(completer, assistant.Options{Logger: zerolog.Nop()}),
		Translator: hover.NewTranslator(completer, nil, zerolog.Nop()),
		Fetch: func(_ context.Context, pageURL, title string) (reader.Page, error) {
			return reader.Page{URL: pageURL, Title: title, Text: "Fetched body text about otters."}, nil
		},
	}, zerolog.Nop(), Options{})
}

func TestHandleHealthReportsServiceAndTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(fixed)
	defer globaltime.ResetTime()

	server := newTestServer(&fakeSettingsStore{}, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodGet, "/api/v1/health", "")
	if err := server.handleHealth(c); err != nil {
		t.Fatalf("handleHealth returned error: %v", err)
	}

	body := decodeJSend(t, rec)
	var data struct {
		Service  string    `json:"service"`
		Time     time.Time `json:"time"`
		Database string    `json:"database"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Service != "glance" || !data.Time.Equal(fixed) || data.Database != "disabled" {
		t.Fatalf("unexpected health payload: %+v", data)
	}
}

func TestHandleProvidersListsRegistry(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSettingsStore{}, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodGet, "/api/v1/providers", "")
	if err := server.handleProviders(c); err != nil {
		t.Fatalf("handleProviders returned error: %v", err)
	}

	body := decodeJSend(t, rec)
	var data struct {
		Items   []chat.ProviderInfo `json:"items"`
		Default string              `json:"default"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Default != chat.DefaultProviderName {
		t.Fatalf("unexpected default provider %q", data.Default)
	}
	if len(data.Items) != len(chat.DefaultRegistry().List()) {
		t.Fatalf("unexpected provider count %d", len(data.Items))
	}
}

func TestHandleGetSettingsRedactsKey(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSettingsStore{doc: configuredDocument()}, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodGet, "/api/v1/settings", "")
	if err := server.handleGetSettings(c); err != nil {
		t.Fatalf("handleGetSettings returned error: %v", err)
	}

	if strings.Contains(rec.Body.String(), "sk-test-1234567890") {
		t.Fatalf("response leaked the api key: %s", rec.Body.String())
	}
	body := decodeJSend(t, rec)
	var data settingsResponse
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !data.HasAPIKey {
		t.Fatalf("expected has_api_key to be true")
	}
}

func TestHandlePutSettingsKeepsStoredKeyWhenOmitted(t *testing.T) {
	t.Parallel()

	store := &fakeSettingsStore{doc: configuredDocument()}
	server := newTestServer(store, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodPut, "/api/v1/settings", `{"provider":{"provider_id":"openai","model_id":"gpt-4o"},"shortcut":"Alt"}`)
	if err := server.handlePutSettings(c); err != nil {
		t.Fatalf("handlePutSettings returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(store.saves) != 1 {
		t.Fatalf("expected one save, got %d", len(store.saves))
	}
	saved := store.saves[0]
	if saved.Provider.APIKey != "sk-test-1234567890" {
		t.Fatalf("expected stored key to be kept, got %q", saved.Provider.APIKey)
	}
	if saved.Provider.ModelID != "gpt-4o" || saved.Shortcut != "Alt" {
		t.Fatalf("unexpected saved document: %+v", saved)
	}
}

func TestHandlePutSettingsExplicitEmptyKeyClears(t *testing.T) {
	t.Parallel()

	store := &fakeSettingsStore{doc: configuredDocument()}
	server := newTestServer(store, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodPut, "/api/v1/settings", `{"provider":{"provider_id":"openai","api_key":""}}`)
	if err := server.handlePutSettings(c); err != nil {
		t.Fatalf("handlePutSettings returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if store.saves[0].Provider.HasAPIKey() {
		t.Fatalf("expected api key to be cleared")
	}
}

func TestHandlePutSettingsRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `{"provider":{"provider_id":"openai"},"theme":"dark"}`},
		{name: "bad shortcut", body: `{"provider":{"provider_id":"openai"},"shortcut":"Tab"}`},
		{name: "unknown provider", body: `{"provider":{"provider_id":"nope"}}`},
		{name: "bad base url", body: `{"provider":{"provider_id":"custom","base_url":"ftp://x"}}`},
		{name: "empty body", body: ``},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := &fakeSettingsStore{doc: configuredDocument()}
			server := newTestServer(store, &stubCompleter{})
			_, c, rec := newJSONContext(http.MethodPut, "/api/v1/settings", tc.body)
			if err := server.handlePutSettings(c); err != nil {
				t.Fatalf("handlePutSettings returned error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
			}
			if len(store.saves) != 0 {
				t.Fatalf("expected no save, got %d", len(store.saves))
			}
		})
	}
}

func TestHandleExtractTruncates(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSettingsStore{}, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/extract?max_chars=7", `{"url":"https://example.com/a"}`)
	if err := server.handleExtract(c); err != nil {
		t.Fatalf("handleExtract returned error: %v", err)
	}

	body := decodeJSend(t, rec)
	var data struct {
		Page      reader.Page `json:"page"`
		Truncated bool        `json:"truncated"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !data.Truncated || data.Page.URL != "https://example.com/a" {
		t.Fatalf("unexpected extract payload: %+v", data)
	}
	if n := len([]rune(data.Page.Text)); n > 7 {
		t.Fatalf("expected at most 7 characters, got %d (%q)", n, data.Page.Text)
	}
}

func TestHandleExtractRequiresURL(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSettingsStore{}, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/extract", `{"url":"  "}`)
	if err := server.handleExtract(c); err != nil {
		t.Fatalf("handleExtract returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleTranslateReturnsDirection(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{pieces: []string{"你好，", "今天过得怎么样？"}}
	server := newTestServer(&fakeSettingsStore{doc: configuredDocument()}, completer)
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/translate", `{"text":"Hello, how is your day going today?"}`)
	if err := server.handleTranslate(c); err != nil {
		t.Fatalf("handleTranslate returned error: %v", err)
	}

	body := decodeJSend(t, rec)
	var data translateResponse
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Text != "你好，今天过得怎么样？" {
		t.Fatalf("unexpected translation %q", data.Text)
	}
	if data.SourceLang != "en" || data.TargetLang != "zh" {
		t.Fatalf("unexpected direction %s->%s", data.SourceLang, data.TargetLang)
	}
	if completer.prompts[0] != hover.SystemPrompt {
		t.Fatalf("expected the hover prompt to be used")
	}
}

func TestHandleTranslateWithoutKeyFailsBeforeNetwork(t *testing.T) {
	t.Parallel()

	doc := configuredDocument()
	doc.Provider.APIKey = ""
	completer := &stubCompleter{pieces: []string{"unused"}}
	server := newTestServer(&fakeSettingsStore{doc: doc}, completer)
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/translate", `{"text":"hello there"}`)
	if err := server.handleTranslate(c); err != nil {
		t.Fatalf("handleTranslate returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
	if body := decodeJSend(t, rec); body.Message != "API key is not configured" {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if len(completer.prompts) != 0 {
		t.Fatalf("expected no completion call, got %d", len(completer.prompts))
	}
}

func TestHandleTranslateMapsProviderErrors(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{err: &chat.APIError{StatusCode: http.StatusTooManyRequests, Message: "Rate limit reached"}}
	server := newTestServer(&fakeSettingsStore{doc: configuredDocument()}, completer)
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/translate", `{"text":"hello there"}`)
	if err := server.handleTranslate(c); err != nil {
		t.Fatalf("handleTranslate returned error: %v", err)
	}

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadGateway)
	}
	if body := decodeJSend(t, rec); body.Message != "Rate limit reached" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestHandleChatStreamsCumulativeText(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{pieces: []string{"Otters ", "hold hands."}}
	server := newTestServer(&fakeSettingsStore{doc: configuredDocument()}, completer)
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/chat", `{
		"url": "https://example.com/otters",
		"messages": [
			{"role": "user", "content": "What is this?"},
			{"role": "assistant", "content": "A page about otters."},
			{"role": "user", "content": "What do they do?"}
		]
	}`)
	if err := server.handleChat(c); err != nil {
		t.Fatalf("handleChat returned error: %v", err)
	}

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	want := "data: {\"text\":\"Otters \"}\n\n" +
		"data: {\"text\":\"Otters hold hands.\"}\n\n" +
		"event: done\ndata: {\"text\":\"Otters hold hands.\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected stream:\n%s", rec.Body.String())
	}

	if !strings.Contains(completer.prompts[0], "Fetched body text about otters.") {
		t.Fatalf("expected fetched page text in the system prompt")
	}
	sent := completer.sent[0]
	if len(sent) != 3 || sent[2].Content != "What do they do?" {
		t.Fatalf("unexpected messages sent: %+v", sent)
	}
}

func TestHandleChatReportsErrorsInStream(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{pieces: []string{"Partial"}, err: errors.New("stream broke")}
	server := newTestServer(&fakeSettingsStore{doc: configuredDocument()}, completer)
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/chat", `{"text":"inline page","messages":[{"role":"user","content":"hi"}]}`)
	if err := server.handleChat(c); err != nil {
		t.Fatalf("handleChat returned error: %v", err)
	}

	if !strings.Contains(rec.Body.String(), "event: error\ndata: {\"message\":\"stream broke\",\"text\":\"Partial\"}") {
		t.Fatalf("expected error event, got:\n%s", rec.Body.String())
	}
}

func TestHandleChatRejectsConversationNotEndingWithUser(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSettingsStore{doc: configuredDocument()}, &stubCompleter{})
	_, c, rec := newJSONContext(http.MethodPost, "/api/v1/chat", `{"messages":[{"role":"assistant","content":"hello"}]}`)
	if err := server.handleChat(c); err != nil {
		t.Fatalf("handleChat returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRoutesAreRegistered(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSettingsStore{doc: configuredDocument()}, &stubCompleter{})
	e := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/missing", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusNotFound)
	}
	if body := decodeJSend(t, rec); body.Status != "fail" {
		t.Fatalf("expected jsend fail envelope, got %q", body.Status)
	}
}

func TestProviderRoutesAreRateLimited(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{pieces: []string{"你好"}}
	server := NewServer(Deps{
		Settings:   &fakeSettingsStore{doc: configuredDocument()},
		Translator: hover.NewTranslator(completer, nil, zerolog.Nop()),
	}, zerolog.Nop(), Options{RateLimit: 0.001, RateBurst: 1})
	e := server.Handler()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/translate", strings.NewReader(`{"text":"hello"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("unexpected first status: got %d body=%s", rec.Code, rec.Body.String())
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected second status: got %d want %d", rec.Code, http.StatusTooManyRequests)
	}
	if body := decodeJSend(t, rec); body.Status != "fail" || body.Message != "Too many requests" {
		t.Fatalf("unexpected limit response: %+v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	healthRec := httptest.NewRecorder()
	e.ServeHTTP(healthRec, req)
	if healthRec.Code != http.StatusOK {
		t.Fatalf("health should not be limited, got %d", healthRec.Code)
	}
}
