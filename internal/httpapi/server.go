// Package httpapi serves the side panel's JSON API.
//
// Every response except the chat stream is a jsend envelope. The chat
// endpoint streams server-sent events carrying the cumulative answer.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"horse.fit/glance/internal/assistant"
	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/hover"
	"horse.fit/glance/internal/reader"
	"horse.fit/glance/internal/settings"
)

type Options struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string
	// RateLimit is requests per second per client on the routes that call
	// a provider or fetch pages. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// SettingsStore is the settings capability the API needs. *settings.Snapshot
// satisfies it.
type SettingsStore interface {
	WaitDocument(ctx context.Context) (settings.Document, error)
	Save(ctx context.Context, doc settings.Document) error
}

// PageFetcher loads the readable text of a page.
type PageFetcher func(ctx context.Context, pageURL, title string) (reader.Page, error)

// Pinger reports backing store health. It is nil for file-backed settings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the handlers call into.
type Deps struct {
	Settings   SettingsStore
	Registry   *chat.Registry
	Assistant  *assistant.Assistant
	Translator *hover.Translator
	Fetch      PageFetcher
	Database   Pinger
}

type Server struct {
	settings   SettingsStore
	registry   *chat.Registry
	assistant  *assistant.Assistant
	translator *hover.Translator
	fetch      PageFetcher
	database   Pinger
	logger     zerolog.Logger
	opts       Options
}

func NewServer(deps Deps, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port <= 0 {
		port = 8790
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	// Chat answers stream for as long as the provider keeps talking.
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	registry := deps.Registry
	if registry == nil {
		registry = chat.DefaultRegistry()
	}
	fetch := deps.Fetch
	if fetch == nil {
		fetch = func(ctx context.Context, pageURL, title string) (reader.Page, error) {
			return reader.Fetch(ctx, pageURL, title, reader.FetchOptions{})
		}
	}

	return &Server{
		settings:   deps.Settings,
		registry:   registry,
		assistant:  deps.Assistant,
		translator: deps.Translator,
		fetch:      fetch,
		database:   deps.Database,
		logger:     logger,
		opts: Options{
			Host:               host,
			Port:               port,
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			ShutdownTimeout:    shutdownTimeout,
			CORSAllowedOrigins: origins,
			RateLimit:          opts.RateLimit,
			RateBurst:          opts.RateBurst,
		},
	}
}

// Handler builds the echo instance with middleware and routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/providers", s.handleProviders)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)

	limited := s.providerLimiter()
	api.POST("/extract", s.handleExtract, limited...)
	api.POST("/chat", s.handleChat, limited...)
	api.POST("/translate", s.handleTranslate, limited...)

	return e
}

func (s *Server) providerLimiter() []echo.MiddlewareFunc {
	if s.opts.RateLimit <= 0 {
		return nil
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.opts.RateLimit),
		Burst:     s.opts.RateBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return []echo.MiddlewareFunc{
		middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: store,
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				s.logger.Warn().
					Str("client", identifier).
					Str("uri", c.Request().RequestURI).
					Msg("rate limit exceeded")
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
			},
		}),
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.settings == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("glance api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("glance api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
