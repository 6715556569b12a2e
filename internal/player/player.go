package player

import (
	"context"
	"errors"
	"time"
)

// ErrPlayRejected is returned by MediaElement.Play when the platform refuses to
// start playback (for example audio without a fresh user gesture)
var ErrPlayRejected = errors.New("play request rejected by platform")

// MediaElement defines the interface for a single playback surface.
// Implementations are driven from one goroutine (the coordinator loop) and
// report asynchronous changes through the OnEvent callback.
type MediaElement interface {
	// Source control
	Load(ctx context.Context, url string, options LoadOptions) error
	Close(ctx context.Context) error

	// Playback control
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	CurrentTime(ctx context.Context) (time.Duration, error)

	// Audio
	SetMuted(ctx context.Context, muted bool) error
	SetVolume(ctx context.Context, volume int) error

	// Window
	SetVisible(ctx context.Context, visible bool) error

	// Callbacks
	OnEvent(callback func(event Event))
}

// LoadOptions contains options for loading a source into a surface
type LoadOptions struct {
	StartTime time.Duration `json:"start_time,omitempty"`
	Muted     bool          `json:"muted"`
	Volume    int           `json:"volume,omitempty"` // 0-100
	Loop      bool          `json:"loop"`
	Paused    bool          `json:"paused"`

	// Headers for HTTP requests
	Referer   string `json:"referer,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// Metadata for display
	Title string `json:"title,omitempty"`
}

// EventKind identifies what happened on a media element
type EventKind string

const (
	EventLoadedMetadata EventKind = "loadedmetadata"
	EventCanPlay        EventKind = "canplay"
	EventCanPlayThrough EventKind = "canplaythrough"
	EventPlaying        EventKind = "playing"
	EventPaused         EventKind = "pause"
	EventTimeUpdate     EventKind = "timeupdate"
	EventEnded          EventKind = "ended"
	EventError          EventKind = "error"
)

// Event is a media element notification
type Event struct {
	Kind     EventKind     `json:"kind"`
	Position time.Duration `json:"position"`
	Err      error         `json:"-"`
}

// Readiness is how far a surface has progressed in loading its source
type Readiness int

const (
	ReadinessUnattached Readiness = iota
	ReadinessMetadataLoaded
	ReadinessCanPlay
	ReadinessCanPlayThrough
)

// String returns the string representation of Readiness
func (r Readiness) String() string {
	switch r {
	case ReadinessMetadataLoaded:
		return "metadataLoaded"
	case ReadinessCanPlay:
		return "canPlay"
	case ReadinessCanPlayThrough:
		return "canPlayThrough"
	default:
		return "unattached"
	}
}

// ReadinessFor maps a readiness event to its tier, ok is false for other events
func ReadinessFor(kind EventKind) (Readiness, bool) {
	switch kind {
	case EventLoadedMetadata:
		return ReadinessMetadataLoaded, true
	case EventCanPlay:
		return ReadinessCanPlay, true
	case EventCanPlayThrough:
		return ReadinessCanPlayThrough, true
	}
	return ReadinessUnattached, false
}

// PlayerInfo contains information about the player binary
type PlayerInfo struct {
	Name    string `json:"name"` // mpv
	Version string `json:"version"`
	Path    string `json:"path"` // Full path to binary
}
