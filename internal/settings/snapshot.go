package settings

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"horse.fit/glance/internal/chat"
)

// Snapshot is the in-memory copy of the stored Document. Readers block in
// Wait until the first load attempt has finished.
type Snapshot struct {
	store  Store
	logger zerolog.Logger

	mu     sync.RWMutex
	doc    Document
	loaded bool
	err    error
	subs   []func(Document)

	ready     chan struct{}
	readyOnce sync.Once
}

func NewSnapshot(store Store, logger zerolog.Logger) *Snapshot {
	return &Snapshot{
		store:  store,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Start loads the document in the background.
func (s *Snapshot) Start(ctx context.Context) {
	go func() {
		_ = s.Refresh(ctx)
	}()
}

// Refresh reloads from the store. A failed reload keeps the previous
// document.
func (s *Snapshot) Refresh(ctx context.Context) error {
	doc, err := s.store.Load(ctx)

	s.mu.Lock()
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.markReady()
		s.logger.Warn().Err(err).Msg("settings load failed")
		return err
	}
	doc = doc.Normalized()
	s.doc = doc
	s.loaded = true
	s.err = nil
	subs := append([]func(Document){}, s.subs...)
	s.mu.Unlock()

	s.markReady()
	s.logger.Debug().
		Str("provider", doc.Provider.ProviderID).
		Str("model", doc.Provider.ModelID).
		Bool("api_key", doc.Provider.HasAPIKey()).
		Msg("settings loaded")
	for _, fn := range subs {
		fn(doc)
	}
	return nil
}

// Save writes doc to the store and refreshes the snapshot from it.
func (s *Snapshot) Save(ctx context.Context, doc Document) error {
	if err := s.store.Save(ctx, doc); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// WaitDocument blocks until the first load attempt finishes or ctx ends.
func (s *Snapshot) WaitDocument(ctx context.Context) (Document, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return Document{}, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		if s.err != nil {
			return Document{}, s.err
		}
		return Document{}, ErrNotLoaded
	}
	return s.doc, nil
}

// Wait returns the provider configuration once loaded.
func (s *Snapshot) Wait(ctx context.Context) (chat.ProviderConfig, error) {
	doc, err := s.WaitDocument(ctx)
	if err != nil {
		return chat.ProviderConfig{}, err
	}
	return doc.Provider, nil
}

// Current returns the latest document without waiting.
func (s *Snapshot) Current() (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc, s.loaded
}

// Subscribe registers fn to run after every successful load.
func (s *Snapshot) Subscribe(fn func(Document)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Snapshot) markReady() {
	s.readyOnce.Do(func() {
		close(s.ready)
	})
}
