// Package hover implements hover-to-translate over an HTML document.
//
// A Controller receives pointer, keyboard, selection and click events for one
// page. While translate mode is active it resolves the paragraph or selection
// under the pointer, streams its translation from the chat provider and shows
// the result in an overlay inserted right after the source element.
//
// One mutex serializes event handling and every document mutation. Provider
// I/O and the settings wait run outside it, so a slow stream never blocks
// later events.
package hover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"horse.fit/glance/internal/chat"
)

// ConfigSource yields the provider settings, waiting for the first load.
type ConfigSource interface {
	Wait(ctx context.Context) (chat.ProviderConfig, error)
}

// Outcome is the result of one translation attempt.
type Outcome int

const (
	OutcomeInactive Outcome = iota
	OutcomeNoConfig
	OutcomeNoTarget
	OutcomeInFlight
	OutcomeCached
	OutcomeAlreadyShown
	OutcomeTranslated
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInactive:
		return "inactive"
	case OutcomeNoConfig:
		return "no_config"
	case OutcomeNoTarget:
		return "no_target"
	case OutcomeInFlight:
		return "in_flight"
	case OutcomeCached:
		return "cached"
	case OutcomeAlreadyShown:
		return "already_shown"
	case OutcomeTranslated:
		return "translated"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options configures a Controller.
type Options struct {
	Config          ConfigSource
	Translator      *Translator
	Scheduler       Scheduler
	Modifier        Modifier
	ActivationDelay time.Duration
	// AttemptTimeout bounds one attempt started by an event handler.
	AttemptTimeout time.Duration
	Logger         zerolog.Logger
}

// Controller holds the hover-translation state of one page.
type Controller struct {
	mu sync.Mutex

	doc        *html.Node
	hovered    *html.Node
	selection  Selection
	activation *Activation
	armed      bool
	cache      map[string]string
	inFlight   *html.Node

	config         ConfigSource
	translator     *Translator
	attemptTimeout time.Duration
	logger         zerolog.Logger

	attempts sync.WaitGroup
}

func NewController(doc *html.Node, opts Options) (*Controller, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config source is required")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}

	c := &Controller{
		doc:            doc,
		cache:          make(map[string]string),
		config:         opts.Config,
		translator:     opts.Translator,
		attemptTimeout: opts.AttemptTimeout,
		logger:         opts.Logger,
	}
	c.activation = NewActivation(opts.Modifier, opts.ActivationDelay, opts.Scheduler, c.activationElapsed)
	return c, nil
}

// Document returns the page the controller mutates. Callers must not read it
// while attempts are running; use Wait first.
func (c *Controller) Document() *html.Node {
	return c.doc
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activation.State()
}

// SetModifier changes the shortcut modifier.
func (c *Controller) SetModifier(m Modifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activation.SetModifier(m)
}

// CacheLen returns the number of cached translations. The cache is never
// evicted for the lifetime of the controller.
func (c *Controller) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Cached returns the cached translation of source.
func (c *Controller) Cached(source string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.cache[source]
	return text, ok
}

// Wait blocks until every attempt started by an event handler has finished.
func (c *Controller) Wait() {
	c.attempts.Wait()
}

// CheckAndTranslate runs one translation attempt for the current target.
func (c *Controller) CheckAndTranslate(ctx context.Context) Outcome {
	c.mu.Lock()
	active := c.activation.State() == StateActive
	c.mu.Unlock()
	if !active {
		return OutcomeInactive
	}

	cfg, err := c.config.Wait(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("provider settings unavailable")
		return OutcomeNoConfig
	}
	if err := c.translator.Ready(cfg); err != nil {
		if !errors.Is(err, chat.ErrMissingAPIKey) {
			c.logger.Warn().Err(err).Str("provider", cfg.ProviderID).Msg("provider settings invalid")
		}
		return OutcomeNoConfig
	}

	c.mu.Lock()
	target := Resolve(c.hovered, c.selection)
	if target == nil {
		c.mu.Unlock()
		return OutcomeNoTarget
	}
	anchor := target.InsertionAnchor
	if c.inFlight != nil && c.inFlight == anchor {
		c.mu.Unlock()
		return OutcomeInFlight
	}
	if cached, ok := c.cache[target.SourceText]; ok {
		Update(Show(target, false), cached)
		c.mu.Unlock()
		return OutcomeCached
	}
	if OverlayAfter(InsertionPoint(anchor)) != nil {
		c.mu.Unlock()
		return OutcomeAlreadyShown
	}
	c.inFlight = anchor
	overlay := Show(target, true)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.inFlight == anchor {
			c.inFlight = nil
		}
		c.mu.Unlock()
	}()

	result, err := c.translator.Translate(ctx, cfg, target.SourceText, func(cumulative string) {
		c.mu.Lock()
		Update(overlay, cumulative)
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		Update(overlay, err.Error())
		return OutcomeFailed
	}
	c.cache[target.SourceText] = result.Text
	Update(overlay, result.Text)
	c.logger.Debug().
		Str("kind", target.Kind.String()).
		Str("direction", result.Direction.String()).
		Int("cache_size", len(c.cache)).
		Msg("translation cached")
	return OutcomeTranslated
}

// PointerMove records the element under the pointer. While translate mode is
// active, moving onto a new element starts an attempt.
func (c *Controller) PointerMove(n *html.Node) {
	c.pointerAt(n)
}

// PointerOver is handled like PointerMove.
func (c *Controller) PointerOver(n *html.Node) {
	c.pointerAt(n)
}

func (c *Controller) pointerAt(n *html.Node) {
	if n == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.hovered != n
	c.hovered = n
	if c.activation.State() != StateActive {
		return
	}
	if c.armed {
		c.armed = false
		c.startAttempt()
		return
	}
	if changed {
		c.startAttempt()
	}
}

// KeyDown feeds the activation machine.
func (c *Controller) KeyDown(ev KeyEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activation.KeyDown(ev)
}

// KeyUp feeds the activation machine. Leaving translate mode disarms any
// pending pointer listener.
func (c *Controller) KeyUp(ev KeyEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activation.KeyUp(ev) == StateInactive {
		c.armed = false
	}
}

// Select replaces the current selection. A nil selection clears it.
func (c *Controller) Select(sel Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = sel
	if sel != nil && c.activation.State() == StateActive {
		c.startAttempt()
	}
}

// Click closes the overlay when n is inside its close control. It reports
// whether the click was consumed and must not reach hover handling.
func (c *Controller) Click(n *html.Node) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	overlay := closeTarget(n)
	if overlay == nil {
		return false
	}
	Close(overlay)
	return true
}

func (c *Controller) activationElapsed(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activation.Elapse(generation) {
		return
	}
	if c.hovered != nil || c.selection != nil {
		c.startAttempt()
		return
	}
	c.armed = true
}

// startAttempt runs CheckAndTranslate in the background. Callers hold mu.
func (c *Controller) startAttempt() {
	c.attempts.Add(1)
	go func() {
		defer c.attempts.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Interface("panic", r).Msg("hover attempt panicked")
			}
		}()

		ctx := context.Background()
		if c.attemptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
			defer cancel()
		}
		outcome := c.CheckAndTranslate(ctx)
		c.logger.Debug().Str("outcome", outcome.String()).Msg("hover attempt finished")
	}()
}
