package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/db"
)

func TestFileStoreRoundTripAndDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "glance.yaml")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	doc, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	if doc != DefaultDocument() {
		t.Fatalf("missing file should yield defaults, got %+v", doc)
	}

	want := Document{
		Provider: chat.ProviderConfig{ProviderID: " Anthropic ", APIKey: "ak-123", ModelID: "claude-test"},
		Shortcut: "Alt",
	}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 settings file, got %v", info.Mode().Perm())
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Provider.ProviderID != "anthropic" || got.Provider.APIKey != "ak-123" || got.Shortcut != "Alt" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestFileStoreParsesHandWrittenYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "glance.yaml")
	content := "provider:\n  provider_id: ollama\n  model_id: qwen2.5:7b\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewFileStore(path)
	doc, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Provider.ProviderID != "ollama" || doc.Shortcut != DefaultShortcut {
		t.Fatalf("unexpected document: %+v", doc)
	}

	if err := os.WriteFile(path, []byte("provider: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFileStoreTOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "glance.toml")
	content := "shortcut = \"Meta\"\n\n[provider]\nprovider_id = \"deepseek\"\napi_key = \"sk-toml\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewFileStore(path)
	doc, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Provider.ProviderID != "deepseek" || doc.Provider.APIKey != "sk-toml" || doc.Shortcut != "Meta" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	doc.Provider.ModelID = "deepseek-chat"
	if err := store.Save(context.Background(), doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "model_id = \"deepseek-chat\"") {
		t.Fatalf("expected TOML output, got:\n%s", raw)
	}
	if strings.Contains(string(raw), "base_url") {
		t.Fatalf("expected empty base_url to be omitted, got:\n%s", raw)
	}
}

func TestFileStoreWatchReportsChanges(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "glance.yaml")
	store, _ := NewFileStore(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func() { changed <- struct{}{} })
	}()

	deadline := time.After(5 * time.Second)
	for {
		if err := store.Save(context.Background(), DefaultDocument()); err != nil {
			t.Fatalf("save: %v", err)
		}
		select {
		case <-changed:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("watch: %v", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no change notification")
		}
	}
}

func TestSealerRoundTrip(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer("correct horse battery staple")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, err := sealer.Seal("sk-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(string(sealed), "sk-secret") {
		t.Fatalf("sealed value leaks plaintext")
	}
	again, _ := sealer.Seal("sk-secret")
	if string(again) == string(sealed) {
		t.Fatalf("nonces should differ between seals")
	}

	plain, err := sealer.Open(sealed)
	if err != nil || plain != "sk-secret" {
		t.Fatalf("open: %q %v", plain, err)
	}

	other, _ := NewSealer("another secret")
	if _, err := other.Open(sealed); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("expected ErrSealBroken with wrong secret, got %v", err)
	}
	if _, err := NewSealer(" "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
	if empty, _ := sealer.Seal(""); empty != nil {
		t.Fatalf("empty key should seal to nil")
	}
}

type memoryQueries struct {
	mu  sync.Mutex
	row *db.ProviderSettingRecord
	err error
}

func (m *memoryQueries) GetProviderSetting(_ context.Context, profile string) (*db.ProviderSettingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.row == nil || m.row.Profile != profile {
		return nil, db.ErrNoRows
	}
	row := *m.row
	return &row, nil
}

func (m *memoryQueries) UpsertProviderSetting(_ context.Context, params db.UpsertProviderSettingParams) (*db.ProviderSettingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row = &db.ProviderSettingRecord{
		Profile:      params.Profile,
		ProviderID:   params.ProviderID,
		ModelID:      params.ModelID,
		BaseURL:      params.BaseURL,
		APIKeySealed: params.APIKeySealed,
		Shortcut:     params.Shortcut,
		UpdatedAt:    time.Now(),
	}
	row := *m.row
	return &row, nil
}

func TestDBStoreSealsAPIKey(t *testing.T) {
	t.Parallel()

	sealer, _ := NewSealer("secret")
	queries := &memoryQueries{}
	store, err := NewDBStore(queries, sealer, "")
	if err != nil {
		t.Fatalf("new db store: %v", err)
	}

	doc, err := store.Load(context.Background())
	if err != nil || doc != DefaultDocument() {
		t.Fatalf("empty table should yield defaults: %+v %v", doc, err)
	}

	want := Document{Provider: chat.ProviderConfig{ProviderID: "groq", APIKey: "gsk-1", ModelID: "llama"}, Shortcut: "Shift"}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.Contains(string(queries.row.APIKeySealed), "gsk-1") {
		t.Fatalf("api key stored in plaintext")
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want.Normalized() {
		t.Fatalf("unexpected document: %+v", got)
	}

	queries.err = errors.New("connection refused")
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
}

type countingStore struct {
	mu    sync.Mutex
	doc   Document
	err   error
	loads int
	gate  chan struct{}
}

func (s *countingStore) Load(context.Context) (Document, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.doc, s.err
}

func (s *countingStore) Save(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	return nil
}

func TestSnapshotWaitBlocksUntilLoaded(t *testing.T) {
	t.Parallel()

	store := &countingStore{
		doc:  Document{Provider: chat.ProviderConfig{ProviderID: "openai", APIKey: "sk"}},
		gate: make(chan struct{}),
	}
	snap := NewSnapshot(store, zerolog.Nop())
	snap.Start(context.Background())

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := snap.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wait to time out before load, got %v", err)
	}
	if _, ok := snap.Current(); ok {
		t.Fatalf("snapshot should not be loaded yet")
	}

	close(store.gate)
	cfg, err := snap.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if cfg.APIKey != "sk" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestSnapshotRefreshNotifiesAndKeepsLastGood(t *testing.T) {
	t.Parallel()

	store := &countingStore{doc: DefaultDocument()}
	snap := NewSnapshot(store, zerolog.Nop())

	var seen []Document
	snap.Subscribe(func(doc Document) { seen = append(seen, doc) })

	if err := snap.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	next := Document{Provider: chat.ProviderConfig{ProviderID: "deepseek", APIKey: "k"}}
	if err := snap.Save(context.Background(), next); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(seen) != 2 || seen[1].Provider.ProviderID != "deepseek" {
		t.Fatalf("unexpected notifications: %+v", seen)
	}

	store.err = errors.New("disk gone")
	if err := snap.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	current, ok := snap.Current()
	if !ok || current.Provider.ProviderID != "deepseek" {
		t.Fatalf("failed refresh should keep last good document: %+v", current)
	}
}

func TestSnapshotFirstLoadFailure(t *testing.T) {
	t.Parallel()

	store := &countingStore{err: errors.New("boom")}
	snap := NewSnapshot(store, zerolog.Nop())
	_ = snap.Refresh(context.Background())
	if _, err := snap.Wait(context.Background()); err == nil || err.Error() != "boom" {
		t.Fatalf("expected load error from wait, got %v", err)
	}
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	doc := Document{Provider: chat.ProviderConfig{APIKey: "sk-abcdefghijklmnop"}}
	if got := doc.Redacted().Provider.APIKey; got != "sk-************mnop" {
		t.Fatalf("unexpected mask: %q", got)
	}
	if got := (Document{Provider: chat.ProviderConfig{APIKey: "short"}}).Redacted().Provider.APIKey; got != "*****" {
		t.Fatalf("unexpected mask: %q", got)
	}
}
