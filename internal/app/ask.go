package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/glance/internal/cli"
	"horse.fit/glance/internal/reader"
)

func runAsk(args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	pageURL := fs.String("url", "", "Page to ask about")
	title := fs.String("title", "", "Page title, used when the page has none")
	textFile := fs.String("text-file", "", "Read page text from this file instead of fetching --url")
	timeout := fs.Duration("timeout", 3*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "ask requires a question")
		return 2
	}
	if strings.TrimSpace(*pageURL) == "" && strings.TrimSpace(*textFile) == "" {
		fmt.Fprintln(os.Stderr, "ask requires --url or --text-file")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.Close()

	doc, err := rt.loadSettings(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	page := reader.Page{
		URL:   strings.TrimSpace(*pageURL),
		Title: strings.TrimSpace(*title),
	}
	if path := strings.TrimSpace(*textFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read page text failed: %v\n", err)
			return 1
		}
		page.Text = reader.CleanText(string(raw))
	} else {
		page, err = reader.Fetch(ctx, page.URL, page.Title, reader.FetchOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fetch page failed: %v\n", err)
			return 1
		}
	}

	printer := &streamPrinter{w: os.Stdout}
	answer, err := rt.assistant().Ask(ctx, doc.Provider, page, nil, question, printer.chunk)
	printer.finish(answer)
	if err != nil {
		reportProviderError("Ask", err)
		return 1
	}
	return 0
}
