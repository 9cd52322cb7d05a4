package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/glance/internal/cli"
	"horse.fit/glance/internal/page"
)

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	source := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if source == "-" {
		raw, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read stdin failed: %v\n", err)
			return 1
		}
		source = strings.TrimSpace(string(raw))
	}
	if source == "" {
		fmt.Fprintln(os.Stderr, "translate requires text, or - to read stdin")
		return 2
	}
	if n := len([]rune(source)); n > page.HardCap {
		fmt.Fprintf(os.Stderr, "text is %d characters; at most %d are translated at once\n", n, page.HardCap)
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

	translator := rt.translator()
	if err := translator.Ready(doc.Provider); err != nil {
		reportProviderError("Translate", err)
		return 1
	}

	printer := &streamPrinter{w: os.Stdout}
	result, err := translator.Translate(ctx, doc.Provider, source, printer.chunk)
	printer.finish(result.Text)
	if err != nil {
		reportProviderError("Translate", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "(%s)\n", result.Direction)
	return 0
}
