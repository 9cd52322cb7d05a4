package hover

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/page"
)

var validConfig = chat.ProviderConfig{ProviderID: "openai", APIKey: "sk-test", ModelID: "gpt-test"}

type staticConfig struct {
	cfg chat.ProviderConfig
	err error
}

func (s staticConfig) Wait(context.Context) (chat.ProviderConfig, error) {
	return s.cfg, s.err
}

type stubCompleter struct {
	mu      sync.Mutex
	calls   int
	sources []string

	chunks  []string
	echo    bool
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubCompleter) Complete(_ context.Context, _ chat.ProviderConfig, systemPrompt string, messages []chat.Message, onChunk chat.ChunkFunc) (string, error) {
	s.mu.Lock()
	s.calls++
	if len(messages) > 0 {
		s.sources = append(s.sources, messages[len(messages)-1].Content)
	}
	s.mu.Unlock()

	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}

	chunks := s.chunks
	if s.echo {
		chunks = []string{"T:", messages[len(messages)-1].Content}
	}
	var acc strings.Builder
	for _, chunk := range chunks {
		acc.WriteString(chunk)
		if onChunk != nil {
			onChunk(acc.String())
		}
	}
	return acc.String(), s.err
}

func (s *stubCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	ctrlDown = KeyEvent{Key: "Control", Ctrl: true}
	ctrlUp   = KeyEvent{Key: "Control"}
)

func parseDoc(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := page.Parse(strings.NewReader("<html><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func find(t *testing.T, root *html.Node, selector string) *html.Node {
	t.Helper()
	n, err := page.ElementAt(root, selector)
	if err != nil {
		t.Fatalf("find %s: %v", selector, err)
	}
	return n
}

func newTestController(t *testing.T, doc *html.Node, cfg chat.ProviderConfig, completer Completer) (*Controller, *ManualScheduler) {
	t.Helper()
	scheduler := &ManualScheduler{}
	c, err := NewController(doc, Options{
		Config:     staticConfig{cfg: cfg},
		Translator: NewTranslator(completer, nil, zerolog.Nop()),
		Scheduler:  scheduler,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c, scheduler
}

func activate(t *testing.T, c *Controller, scheduler *ManualScheduler) {
	t.Helper()
	c.KeyDown(ctrlDown)
	scheduler.Advance(DefaultActivationDelay)
	if got := c.State(); got != StateActive {
		t.Fatalf("expected active state, got %s", got)
	}
}

func overlaysIn(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isOverlay(n) {
			out = append(out, n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return out
}
