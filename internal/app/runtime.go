package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/glance/internal/assistant"
	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/cli"
	"horse.fit/glance/internal/config"
	"horse.fit/glance/internal/db"
	"horse.fit/glance/internal/hover"
	"horse.fit/glance/internal/logging"
	"horse.fit/glance/internal/settings"
)

// runtime is the wiring shared by every command: configuration, logger,
// settings storage and the chat client.
type runtime struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *db.Pool
	fileStore *settings.FileStore
	snapshot  *settings.Snapshot
	registry  *chat.Registry
	client    *chat.Client
}

func bootstrap(ctx context.Context, envLoader *cli.EnvLoader) (*runtime, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: chat.DefaultRegistry(),
	}

	var store settings.Store
	if cfg.UsesDatabase() {
		dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
		defer dbCancel()

		pool, err := db.NewPool(dbCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sealer, err := settings.NewSealer(cfg.SettingsSecret)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("failed to build settings sealer: %w", err)
		}
		dbStore, err := settings.NewDBStore(pool, sealer, db.DefaultProfile)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("failed to build settings store: %w", err)
		}
		rt.pool = pool
		store = dbStore
	} else {
		fileStore, err := settings.NewFileStore(cfg.SettingsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open settings file: %w", err)
		}
		rt.fileStore = fileStore
		store = fileStore
	}

	rt.snapshot = settings.NewSnapshot(store, logging.Component(logger, "settings"))
	rt.client = chat.NewClient(chat.Options{
		Registry: rt.registry,
		Logger:   logging.Component(logger, "chat"),
		Timeout:  cfg.HTTPTimeout,
	})
	return rt, nil
}

func (r *runtime) Close() {
	if r == nil || r.pool == nil {
		return
	}
	if err := r.pool.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("close database failed")
	}
}

// settingsSource names where settings are kept, for log lines.
func (r *runtime) settingsSource() string {
	if r.fileStore != nil {
		return r.fileStore.Path()
	}
	return "database"
}

func (r *runtime) translator() *hover.Translator {
	return hover.NewTranslator(r.client, r.registry, logging.Component(r.logger, "hover"))
}

func (r *runtime) assistant() *assistant.Assistant {
	return assistant.New(r.client, assistant.Options{
		TextBudget: r.cfg.PageTextBudget,
		Logger:     r.logger,
	})
}

// loadSettings reads settings once, for commands that do not watch them.
func (r *runtime) loadSettings(ctx context.Context) (settings.Document, error) {
	if err := r.snapshot.Refresh(ctx); err != nil {
		return settings.Document{}, fmt.Errorf("load settings from %s: %w", r.settingsSource(), err)
	}
	return r.snapshot.WaitDocument(ctx)
}

// streamPrinter writes the new suffix of each cumulative chunk.
type streamPrinter struct {
	w       io.Writer
	printed int
}

func (p *streamPrinter) chunk(cumulative string) {
	if len(cumulative) <= p.printed {
		return
	}
	fmt.Fprint(p.w, cumulative[p.printed:])
	p.printed = len(cumulative)
}

// finish prints whatever the stream did not and ends the line.
func (p *streamPrinter) finish(final string) {
	p.chunk(final)
	if p.printed > 0 {
		fmt.Fprintln(p.w)
	}
}

func reportProviderError(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", action, err)
	if errors.Is(err, chat.ErrMissingAPIKey) {
		fmt.Fprintln(os.Stderr, "Set provider.api_key in the settings file or PUT /api/v1/settings.")
	}
}
