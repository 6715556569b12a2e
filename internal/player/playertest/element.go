// Package playertest provides an in-memory player.MediaElement for tests.
package playertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justchokingaround/vguide/internal/player"
)

// Element is a scriptable media element. Every call is recorded in Calls.
type Element struct {
	mu sync.Mutex

	Name     string
	URL      string
	Playing  bool
	Muted    bool
	Volume   int
	Position time.Duration
	Visible  bool
	Closed   bool

	// RejectUnmuted makes Play fail with player.ErrPlayRejected while audible
	RejectUnmuted bool
	// RejectAll makes every Play fail with player.ErrPlayRejected
	RejectAll bool
	// SeekDrift is added to every seek target to simulate imprecise seeking
	SeekDrift time.Duration

	LoadErr  error
	MuteErr   error
	VolumeErr error
	SeekErr   error
	PauseErr error

	Calls []string

	callback func(player.Event)
}

// New creates a new test element
func New(name string) *Element {
	return &Element{Name: name, Volume: 100}
}

var _ player.MediaElement = (*Element)(nil)

func (e *Element) record(format string, args ...any) {
	e.Calls = append(e.Calls, fmt.Sprintf(format, args...))
}

// Load implements player.MediaElement
func (e *Element) Load(ctx context.Context, url string, options player.LoadOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("load %s", url)
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.URL = url
	e.Position = options.StartTime
	e.Muted = options.Muted
	e.Playing = false
	return nil
}

// Close implements player.MediaElement
func (e *Element) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("close")
	e.Closed = true
	e.Playing = false
	return nil
}

// Play implements player.MediaElement
func (e *Element) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("play muted=%t", e.Muted)
	if e.RejectAll || (e.RejectUnmuted && !e.Muted) {
		return player.ErrPlayRejected
	}
	e.Playing = true
	return nil
}

// Pause implements player.MediaElement
func (e *Element) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("pause")
	if e.PauseErr != nil {
		return e.PauseErr
	}
	e.Playing = false
	return nil
}

// Seek implements player.MediaElement
func (e *Element) Seek(ctx context.Context, position time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("seek %s", position)
	if e.SeekErr != nil {
		return e.SeekErr
	}
	e.Position = position + e.SeekDrift
	return nil
}

// CurrentTime implements player.MediaElement
func (e *Element) CurrentTime(ctx context.Context) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Position, nil
}

// SetMuted implements player.MediaElement
func (e *Element) SetMuted(ctx context.Context, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("mute %t", muted)
	if e.MuteErr != nil {
		return e.MuteErr
	}
	e.Muted = muted
	return nil
}

// SetVolume implements player.MediaElement
func (e *Element) SetVolume(ctx context.Context, volume int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("volume %d", volume)
	if e.VolumeErr != nil {
		return e.VolumeErr
	}
	e.Volume = volume
	return nil
}

// SetVisible implements player.MediaElement
func (e *Element) SetVisible(ctx context.Context, visible bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("visible %t", visible)
	e.Visible = visible
	return nil
}

// OnEvent implements player.MediaElement
func (e *Element) OnEvent(callback func(event player.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = callback
}

// Emit delivers an event to the registered callback
func (e *Element) Emit(event player.Event) {
	e.mu.Lock()
	callback := e.callback
	if event.Kind == player.EventPaused {
		e.Playing = false
	}
	e.mu.Unlock()
	if callback != nil {
		callback(event)
	}
}

// IsPlaying reports the playing flag under the lock
func (e *Element) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Playing
}

// CallCount counts recorded calls with the given prefix
func (e *Element) CallCount(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.Calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log
func (e *Element) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = nil
}
