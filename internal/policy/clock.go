package policy

import (
	"time"
)

// Intent is the desired playback state, set only by explicit commands
type Intent int

const (
	IntentUnset Intent = iota
	IntentPlaying
	IntentPaused
)

// String returns the string representation of Intent
func (i Intent) String() string {
	switch i {
	case IntentPlaying:
		return "playing"
	case IntentPaused:
		return "paused"
	default:
		return "unset"
	}
}

// WindowKind is the kind of a suppression window
type WindowKind int

const (
	// HardPause blocks play attempts unless a fresher explicit play exists
	HardPause WindowKind = iota
	// IgnorePause swallows reactive pause events from the streaming engine
	IgnorePause
	// GestureGuard protects freshly started playback from context-switch pauses
	GestureGuard
)

// String returns the string representation of WindowKind
func (k WindowKind) String() string {
	switch k {
	case HardPause:
		return "hardPause"
	case IgnorePause:
		return "ignorePause"
	case GestureGuard:
		return "gestureGuard"
	default:
		return "unknown"
	}
}

// Window is a time-boxed suppression flag. A window at or past ExpiresAt is inert.
// A held window has a zero ExpiresAt and stays open until released.
type Window struct {
	Kind      WindowKind
	OpenedSeq uint64
	ExpiresAt time.Time
}

// Active reports whether the window still applies at now
func (w Window) Active(now time.Time) bool {
	return w.ExpiresAt.IsZero() || now.Before(w.ExpiresAt)
}

// Clock owns the gesture record, the current intent and the open suppression
// windows. Decisions are functions of (Clock, now); the clock has no timers
// and expired windows are dropped lazily when read.
type Clock struct {
	seq         uint64
	intent      Intent
	intentSeq   uint64
	lastGesture time.Time
	windows     []Window
}

// NewClock creates an empty clock with intent unset
func NewClock() *Clock {
	return &Clock{}
}

// Command records an explicit command setting intent and returns its sequence number.
// The sequence number is the cancellation token for deferred work issued by the command.
func (c *Clock) Command(intent Intent) uint64 {
	c.seq++
	c.intent = intent
	c.intentSeq = c.seq
	return c.seq
}

// Intent returns the current intent
func (c *Clock) Intent() Intent {
	return c.intent
}

// IntentSeq returns the sequence number of the command that set the current intent
func (c *Clock) IntentSeq() uint64 {
	return c.intentSeq
}

// Seq returns the latest sequence number handed out
func (c *Clock) Seq() uint64 {
	return c.seq
}

// Current reports whether token still identifies the latest command
func (c *Clock) Current(token uint64) bool {
	return token == c.intentSeq
}

// RecordGesture stores the time of a user-initiated action
func (c *Clock) RecordGesture(now time.Time) {
	c.lastGesture = now
}

// GestureFresh reports whether a user action happened within validity of now
func (c *Clock) GestureFresh(now time.Time, validity time.Duration) bool {
	if c.lastGesture.IsZero() {
		return false
	}
	return now.Sub(c.lastGesture) <= validity
}

// Open starts a suppression window of kind lasting d from now
func (c *Clock) Open(kind WindowKind, now time.Time, d time.Duration) Window {
	c.seq++
	w := Window{Kind: kind, OpenedSeq: c.seq, ExpiresAt: now.Add(d)}
	c.windows = append(c.windows, w)
	return w
}

// Hold opens a window of kind that only Release closes
func (c *Clock) Hold(kind WindowKind) Window {
	c.seq++
	w := Window{Kind: kind, OpenedSeq: c.seq}
	c.windows = append(c.windows, w)
	return w
}

// Release drops the window opened with w's sequence number
func (c *Clock) Release(w Window) {
	kept := c.windows[:0]
	for _, open := range c.windows {
		if open.OpenedSeq != w.OpenedSeq {
			kept = append(kept, open)
		}
	}
	c.windows = kept
}

// Active reports whether any window of kind is open at now
func (c *Clock) Active(kind WindowKind, now time.Time) bool {
	_, ok := c.Latest(kind, now)
	return ok
}

// Latest returns the most recently opened live window of kind
func (c *Clock) Latest(kind WindowKind, now time.Time) (Window, bool) {
	c.prune(now)
	var (
		found  Window
		exists bool
	)
	for _, w := range c.windows {
		if w.Kind == kind && (!exists || w.OpenedSeq > found.OpenedSeq) {
			found = w
			exists = true
		}
	}
	return found, exists
}

// Remaining returns how long the longest live timed window of kind stays open
func (c *Clock) Remaining(kind WindowKind, now time.Time) time.Duration {
	c.prune(now)
	var longest time.Duration
	for _, w := range c.windows {
		if w.Kind == kind && !w.ExpiresAt.IsZero() {
			if d := w.ExpiresAt.Sub(now); d > longest {
				longest = d
			}
		}
	}
	return longest
}

// Windows returns the live windows at now
func (c *Clock) Windows(now time.Time) []Window {
	c.prune(now)
	return append([]Window(nil), c.windows...)
}

// HardPauseBlocks reports whether a hard pause outranks the current intent.
// An explicit play issued after the newest hard pause wins; anything else loses.
func (c *Clock) HardPauseBlocks(now time.Time) bool {
	w, ok := c.Latest(HardPause, now)
	if !ok {
		return false
	}
	if c.intent == IntentPlaying && c.intentSeq > w.OpenedSeq {
		return false
	}
	return true
}

func (c *Clock) prune(now time.Time) {
	kept := c.windows[:0]
	for _, w := range c.windows {
		if w.Active(now) {
			kept = append(kept, w)
		}
	}
	c.windows = kept
}
