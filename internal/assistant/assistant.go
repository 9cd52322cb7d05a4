// Package assistant answers side-panel questions about the current page.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/reader"
)

// DefaultTextBudget bounds the page text embedded in the system prompt.
const DefaultTextBudget = 12000

const basePrompt = "You are a helpful assistant in a browser side panel. " +
	"Answer the user's questions about the web page below. " +
	"Answer in the language of the question and say so when the page does not contain the answer."

// Completer is the chat capability the assistant needs.
type Completer interface {
	Complete(ctx context.Context, cfg chat.ProviderConfig, systemPrompt string, messages []chat.Message, onChunk chat.ChunkFunc) (string, error)
}

type Options struct {
	TextBudget int
	Logger     zerolog.Logger
}

type Assistant struct {
	completer  Completer
	textBudget int
	logger     zerolog.Logger
}

func New(completer Completer, opts Options) *Assistant {
	budget := opts.TextBudget
	if budget <= 0 {
		budget = DefaultTextBudget
	}
	return &Assistant{
		completer:  completer,
		textBudget: budget,
		logger:     opts.Logger,
	}
}

// Ask sends history plus question with the page as context. onChunk may be
// nil for a single response.
func (a *Assistant) Ask(ctx context.Context, cfg chat.ProviderConfig, page reader.Page, history []chat.Message, question string, onChunk chat.ChunkFunc) (string, error) {
	if a == nil || a.completer == nil {
		return "", fmt.Errorf("assistant is not initialized")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is required")
	}

	prompt, truncated := SystemPrompt(page, a.textBudget)
	messages := make([]chat.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role != chat.RoleUser && m.Role != chat.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, chat.UserMessage(question))

	a.logger.Debug().
		Str("url", page.URL).
		Int("history", len(history)).
		Bool("page_truncated", truncated).
		Msg("assistant question")
	return a.completer.Complete(ctx, cfg, prompt, messages, onChunk)
}

// SystemPrompt embeds page into the assistant instruction, clipping its text
// to budget runes.
func SystemPrompt(page reader.Page, budget int) (string, bool) {
	var b strings.Builder
	b.WriteString(basePrompt)

	text, truncated := reader.TruncateText(page.Text, budget)
	if title := strings.TrimSpace(page.Title); title != "" {
		b.WriteString("\n\nPage title: ")
		b.WriteString(title)
	}
	if u := strings.TrimSpace(page.URL); u != "" {
		b.WriteString("\nPage URL: ")
		b.WriteString(u)
	}
	if text != "" {
		b.WriteString("\n\nPage content:\n")
		b.WriteString(text)
	}
	return b.String(), truncated
}
