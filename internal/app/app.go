package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "serve":
		return runServe(args[1:])
	case "ask":
		return runAsk(args[1:])
	case "translate":
		return runTranslate(args[1:])
	case "replay":
		return runReplay(args[1:])
	case "validate":
		return runValidate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "glance CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  glance <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve      Start the side panel API server")
	fmt.Fprintln(os.Stderr, "  ask        Ask a question about a web page")
	fmt.Fprintln(os.Stderr, "  translate  Translate text between Chinese and English")
	fmt.Fprintln(os.Stderr, "  replay     Replay hover events against a saved page")
	fmt.Fprintln(os.Stderr, "  validate   Validate replay scripts against the schema")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"glance <command> -h\" for command-specific flags.")
}
