package hover

import (
	"fmt"
	"strings"
	"time"
)

// DefaultActivationDelay is how long the shortcut modifier must be held alone
// before translate mode turns on.
const DefaultActivationDelay = 150 * time.Millisecond

// State is the translate-mode state.
type State int

const (
	StateInactive State = iota
	StatePendingActivation
	StateActive
)

func (s State) String() string {
	switch s {
	case StatePendingActivation:
		return "pending"
	case StateActive:
		return "active"
	default:
		return "inactive"
	}
}

// Modifier is a shortcut modifier key.
type Modifier int

const (
	ModifierControl Modifier = iota + 1
	ModifierAlt
	ModifierShift
	ModifierMeta
)

// DefaultModifier is used when settings leave the shortcut blank.
const DefaultModifier = ModifierControl

// Key returns the key name a key event reports for the modifier itself.
func (m Modifier) Key() string {
	switch m {
	case ModifierControl:
		return "Control"
	case ModifierAlt:
		return "Alt"
	case ModifierShift:
		return "Shift"
	case ModifierMeta:
		return "Meta"
	default:
		return ""
	}
}

func (m Modifier) String() string {
	return m.Key()
}

// ParseModifier reads a shortcut name such as "Control", "ctrl" or "Alt".
// Blank input yields DefaultModifier.
func ParseModifier(raw string) (Modifier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return DefaultModifier, nil
	case "control", "ctrl":
		return ModifierControl, nil
	case "alt", "option":
		return ModifierAlt, nil
	case "shift":
		return ModifierShift, nil
	case "meta", "cmd", "command":
		return ModifierMeta, nil
	default:
		return 0, fmt.Errorf("unsupported shortcut modifier %q", raw)
	}
}

// KeyEvent is a keydown or keyup as the page reports it.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
}

// soleModifier reports the modifier when the event is exactly one modifier
// key held with no ordinary key and no other modifier.
func (e KeyEvent) soleModifier() (Modifier, bool) {
	held := make([]Modifier, 0, 4)
	if e.Ctrl {
		held = append(held, ModifierControl)
	}
	if e.Alt {
		held = append(held, ModifierAlt)
	}
	if e.Shift {
		held = append(held, ModifierShift)
	}
	if e.Meta {
		held = append(held, ModifierMeta)
	}
	if len(held) != 1 || held[0].Key() != e.Key {
		return 0, false
	}
	return held[0], true
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// RealScheduler schedules on the runtime timer.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Activation turns shortcut key events into the translate-mode state. It is
// not safe for concurrent use; the controller serializes access.
type Activation struct {
	modifier  Modifier
	delay     time.Duration
	scheduler Scheduler
	onElapsed func(generation uint64)

	state      State
	timer      Timer
	generation uint64
}

// NewActivation builds an inactive machine. onElapsed receives the generation
// of the timer that fired and must hand it back to Elapse.
func NewActivation(modifier Modifier, delay time.Duration, scheduler Scheduler, onElapsed func(generation uint64)) *Activation {
	if modifier == 0 {
		modifier = DefaultModifier
	}
	if delay <= 0 {
		delay = DefaultActivationDelay
	}
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	return &Activation{
		modifier:  modifier,
		delay:     delay,
		scheduler: scheduler,
		onElapsed: onElapsed,
	}
}

func (a *Activation) State() State {
	return a.state
}

func (a *Activation) Modifier() Modifier {
	return a.modifier
}

// SetModifier changes the shortcut and drops back to inactive.
func (a *Activation) SetModifier(m Modifier) {
	if m == 0 || m == a.modifier {
		return
	}
	a.reset()
	a.modifier = m
}

// KeyDown applies a keydown and returns the resulting state.
func (a *Activation) KeyDown(ev KeyEvent) State {
	mod, sole := ev.soleModifier()
	matches := sole && mod == a.modifier

	switch a.state {
	case StateInactive:
		if matches {
			a.schedule()
		}
	case StatePendingActivation:
		if !matches {
			a.reset()
		}
	}
	return a.state
}

// KeyUp applies a keyup and returns the resulting state. Only the configured
// modifier's release has an effect.
func (a *Activation) KeyUp(ev KeyEvent) State {
	if ev.Key != a.modifier.Key() {
		return a.state
	}
	if a.state != StateInactive {
		a.reset()
	}
	return a.state
}

// Elapse moves a pending machine to active when generation belongs to the
// current timer. It reports whether the transition happened.
func (a *Activation) Elapse(generation uint64) bool {
	if a.state != StatePendingActivation || generation != a.generation {
		return false
	}
	a.state = StateActive
	a.timer = nil
	return true
}

func (a *Activation) schedule() {
	a.generation++
	generation := a.generation
	a.state = StatePendingActivation
	a.timer = a.scheduler.AfterFunc(a.delay, func() {
		if a.onElapsed != nil {
			a.onElapsed(generation)
		}
	})
}

func (a *Activation) reset() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	// Invalidate any timer that already fired but has not been applied.
	a.generation++
	a.state = StateInactive
}
