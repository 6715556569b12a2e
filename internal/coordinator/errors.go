package coordinator

import (
	"errors"
	"fmt"

	"github.com/justchokingaround/vguide/internal/policy"
	"github.com/justchokingaround/vguide/internal/stream"
)

var (
	// ErrStreamUnavailable means a surface failed to load or play its stream
	ErrStreamUnavailable = errors.New("stream unavailable")
	// ErrResolutionExhausted means the fallback ladder has no candidates left
	ErrResolutionExhausted = stream.ErrResolutionExhausted
	// ErrAutoplayBlocked means the platform refused audible and muted playback
	ErrAutoplayBlocked = policy.ErrAutoplayBlocked
	// ErrSyncDrift means the surfaces disagree on time after a swap
	ErrSyncDrift = errors.New("surface time drift exceeds tolerance")
)

// ErrorKind classifies errors reported to collaborators
type ErrorKind string

const (
	KindStreamUnavailable   ErrorKind = "stream_unavailable"
	KindResolutionExhausted ErrorKind = "resolution_exhausted"
	KindAutoplayBlocked     ErrorKind = "autoplay_blocked"
	KindSyncDrift           ErrorKind = "sync_drift"
)

var kindSentinels = map[ErrorKind]error{
	KindStreamUnavailable:   ErrStreamUnavailable,
	KindResolutionExhausted: ErrResolutionExhausted,
	KindAutoplayBlocked:     ErrAutoplayBlocked,
	KindSyncDrift:           ErrSyncDrift,
}

// StreamError is a classified error attributed to one surface
type StreamError struct {
	Kind    ErrorKind
	Surface SurfaceKind
	Err     error
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s on %s surface", e.Kind, e.Surface)
	}
	return fmt.Sprintf("%s on %s surface: %v", e.Kind, e.Surface, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *StreamError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func newStreamError(kind ErrorKind, surface SurfaceKind, err error) *StreamError {
	return &StreamError{Kind: kind, Surface: surface, Err: err}
}
