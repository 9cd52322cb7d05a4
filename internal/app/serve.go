package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/glance/internal/cli"
	"horse.fit/glance/internal/httpapi"
	"horse.fit/glance/internal/logging"
	"horse.fit/glance/internal/reader"
	"horse.fit/glance/internal/settings"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "127.0.0.1", "Host interface to bind")
	port := fs.Int("port", 8790, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 5*time.Minute, "HTTP write timeout, bounds a streamed chat answer")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.Close()
	logger := rt.logger

	rt.snapshot.Subscribe(func(doc settings.Document) {
		logger.Info().
			Str("provider", doc.Provider.ProviderID).
			Str("model", doc.Provider.ModelID).
			Bool("api_key", doc.Provider.HasAPIKey()).
			Msg("settings active")
	})
	rt.snapshot.Start(ctx)
	if rt.fileStore != nil {
		go func() {
			err := rt.fileStore.Watch(ctx, func() {
				_ = rt.snapshot.Refresh(ctx)
			})
			if err != nil {
				logger.Warn().Err(err).Str("path", rt.fileStore.Path()).Msg("settings watcher stopped")
			}
		}()
	}

	deps := httpapi.Deps{
		Settings:   rt.snapshot,
		Registry:   rt.registry,
		Assistant:  rt.assistant(),
		Translator: rt.translator(),
		Fetch: func(ctx context.Context, pageURL, title string) (reader.Page, error) {
			return reader.Fetch(ctx, pageURL, title, reader.FetchOptions{})
		},
	}
	if rt.pool != nil {
		deps.Database = rt.pool
	}

	srv := httpapi.NewServer(deps, logging.Component(logger, "httpapi"), httpapi.Options{
		Host:               *host,
		Port:               *port,
		ReadTimeout:        *readTimeout,
		WriteTimeout:       *writeTimeout,
		ShutdownTimeout:    *shutdownTimeout,
		CORSAllowedOrigins: rt.cfg.CORSAllowedOriginsList(),
		RateLimit:          rt.cfg.RateLimit,
		RateBurst:          rt.cfg.RateBurst,
	})

	logger.Info().Str("settings", rt.settingsSource()).Msg("serving side panel api")
	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
