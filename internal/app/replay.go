package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/glance/internal/cli"
	"horse.fit/glance/internal/hover"
	"horse.fit/glance/internal/logging"
	"horse.fit/glance/internal/page"
	"horse.fit/glance/internal/schema"
)

type replayStats struct {
	Events   int
	Clicks   int
	Consumed int
	Cached   int
	State    hover.State
	Virtual  time.Duration
}

// replayer feeds scripted events to a controller. Timers run on the manual
// scheduler, so "wait" events decide when activation fires. With serial set
// every event waits for the attempts it started before the next one runs.
type replayer struct {
	ctrl      *hover.Controller
	scheduler *hover.ManualScheduler
	serial    bool
}

func (r *replayer) run(ctx context.Context, script *schema.ReplayScript) (replayStats, error) {
	var stats replayStats
	for i, ev := range script.Events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		consumed, err := r.apply(ev)
		if err != nil {
			return stats, fmt.Errorf("event %d (%s): %w", i, ev.Type, err)
		}
		stats.Events++
		if ev.Type == "click" {
			stats.Clicks++
			if consumed {
				stats.Consumed++
			}
		}
		if r.serial {
			r.ctrl.Wait()
		}
	}

	r.ctrl.Wait()
	stats.Cached = r.ctrl.CacheLen()
	stats.State = r.ctrl.State()
	stats.Virtual = r.scheduler.Now()
	return stats, nil
}

// apply dispatches one event. It reports whether a click was consumed by an
// overlay control.
func (r *replayer) apply(ev schema.ReplayEvent) (bool, error) {
	switch ev.Type {
	case "keydown":
		r.ctrl.KeyDown(keyEvent(ev))
	case "keyup":
		r.ctrl.KeyUp(keyEvent(ev))
	case "wait":
		r.scheduler.Advance(time.Duration(ev.MS) * time.Millisecond)
	case "pointermove", "pointerover":
		n, err := page.ElementAt(r.ctrl.Document(), ev.Target)
		if err != nil {
			return false, err
		}
		if ev.Type == "pointerover" {
			r.ctrl.PointerOver(n)
		} else {
			r.ctrl.PointerMove(n)
		}
	case "select":
		n, err := page.ElementAt(r.ctrl.Document(), ev.Target)
		if err != nil {
			return false, err
		}
		r.ctrl.Select(hover.StaticSelection{Content: ev.Text, Ancestor: n})
	case "clear_selection":
		r.ctrl.Select(nil)
	case "click":
		n, err := page.ElementAt(r.ctrl.Document(), ev.Target)
		if err != nil {
			return false, err
		}
		return r.ctrl.Click(n), nil
	case "settle":
		r.ctrl.Wait()
	default:
		return false, fmt.Errorf("unsupported event type %q", ev.Type)
	}
	return false, nil
}

func keyEvent(ev schema.ReplayEvent) hover.KeyEvent {
	return hover.KeyEvent{
		Key:   ev.Key,
		Ctrl:  ev.Ctrl,
		Alt:   ev.Alt,
		Shift: ev.Shift,
		Meta:  ev.Meta,
	}
}

func loadReplayScript(path string) (*schema.ReplayScript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	script, err := schema.ValidateReplayScript(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid script %s: %w", path, err)
	}
	return script, nil
}

func runReplay(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	pagePath := fs.String("page", "", "Saved HTML page")
	scriptPath := fs.String("script", "", "Replay script (JSON)")
	outPath := fs.String("out", "", "Write the resulting HTML here instead of stdout")
	serial := fs.Bool("serial", true, "Wait for translations after every event")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	attemptTimeout := fs.Duration("attempt-timeout", time.Minute, "Timeout for one translation")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*pagePath) == "" || strings.TrimSpace(*scriptPath) == "" {
		fmt.Fprintln(os.Stderr, "replay requires --page and --script")
		return 2
	}

	script, err := loadReplayScript(strings.TrimSpace(*scriptPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	pageFile, err := os.Open(strings.TrimSpace(*pagePath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Open page failed: %v\n", err)
		return 1
	}
	doc, err := page.Parse(pageFile)
	_ = pageFile.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse page failed: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.Close()

	settingsDoc, err := rt.loadSettings(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	shortcut := settingsDoc.Shortcut
	if strings.TrimSpace(script.Shortcut) != "" {
		shortcut = script.Shortcut
	}
	modifier, err := hover.ParseModifier(shortcut)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	scheduler := &hover.ManualScheduler{}
	ctrl, err := hover.NewController(doc, hover.Options{
		Config:          rt.snapshot,
		Translator:      rt.translator(),
		Scheduler:       scheduler,
		Modifier:        modifier,
		ActivationDelay: rt.cfg.HoverActivationDelay,
		AttemptTimeout:  *attemptTimeout,
		Logger:          logging.Component(rt.logger, "hover"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build controller failed: %v\n", err)
		return 1
	}

	r := &replayer{ctrl: ctrl, scheduler: scheduler, serial: *serial}
	stats, err := r.run(ctx, script)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		return 1
	}

	var rendered bytes.Buffer
	if err := page.Render(&rendered, ctrl.Document()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if path := strings.TrimSpace(*outPath); path != "" {
		if err := os.WriteFile(path, rendered.Bytes(), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Write output failed: %v\n", err)
			return 1
		}
	} else if _, err := os.Stdout.Write(rendered.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "Write output failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(
		os.Stderr,
		"replay events=%d clicks=%d consumed=%d cached=%d state=%s virtual=%s\n",
		stats.Events,
		stats.Clicks,
		stats.Consumed,
		stats.Cached,
		stats.State,
		stats.Virtual,
	)
	return 0
}
