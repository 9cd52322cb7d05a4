package hover

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/globaltime"
	"horse.fit/glance/internal/langdetect"
	"horse.fit/glance/internal/language"
)

// SystemPrompt is the fixed instruction sent with every hover translation.
const SystemPrompt = "You are a translation engine. If the text is Chinese, translate it into English. " +
	"Otherwise translate it into Simplified Chinese. Return only the translation, with no notes or quotes."

// Completer is the chat capability the translator needs.
type Completer interface {
	Complete(ctx context.Context, cfg chat.ProviderConfig, systemPrompt string, messages []chat.Message, onChunk chat.ChunkFunc) (string, error)
}

// Result is one finished translation.
type Result struct {
	Text      string        `json:"text"`
	Direction language.Pair `json:"direction"`
}

// Translator sends source text to the chat provider with the hover prompt.
type Translator struct {
	completer Completer
	registry  *chat.Registry
	logger    zerolog.Logger
}

func NewTranslator(completer Completer, registry *chat.Registry, logger zerolog.Logger) *Translator {
	if registry == nil {
		registry = chat.DefaultRegistry()
	}
	return &Translator{
		completer: completer,
		registry:  registry,
		logger:    logger,
	}
}

// Ready checks cfg without touching the network. It returns
// chat.ErrMissingAPIKey when a key is needed and absent.
func (t *Translator) Ready(cfg chat.ProviderConfig) error {
	if t == nil || t.completer == nil {
		return fmt.Errorf("translator is not initialized")
	}
	_, err := t.registry.Resolve(cfg)
	return err
}

// Translate streams the translation of source. onChunk may be nil.
func (t *Translator) Translate(ctx context.Context, cfg chat.ProviderConfig, source string, onChunk chat.ChunkFunc) (Result, error) {
	if t == nil || t.completer == nil {
		return Result{}, fmt.Errorf("translator is not initialized")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return Result{}, fmt.Errorf("source text is empty")
	}

	direction := langdetect.Direction(source)
	started := globaltime.Now()
	text, err := t.completer.Complete(ctx, cfg, SystemPrompt, []chat.Message{chat.UserMessage(source)}, onChunk)
	if err != nil {
		t.logger.Warn().
			Err(err).
			Str("direction", direction.String()).
			Int("source_chars", len([]rune(source))).
			Msg("hover translation failed")
		return Result{Text: text, Direction: direction}, err
	}

	t.logger.Debug().
		Str("direction", direction.String()).
		Int("source_chars", len([]rune(source))).
		Dur("latency", globaltime.Since(started)).
		Msg("hover translation finished")
	return Result{Text: strings.TrimSpace(text), Direction: direction}, nil
}
