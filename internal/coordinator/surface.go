package coordinator

import (
	"time"

	"github.com/justchokingaround/vguide/internal/player"
	"github.com/justchokingaround/vguide/internal/stream"
)

// SurfaceKind names one of the two playback surfaces
type SurfaceKind int

const (
	Primary SurfaceKind = iota
	Secondary
)

// String returns the string representation of SurfaceKind
func (k SurfaceKind) String() string {
	if k == Secondary {
		return "secondary"
	}
	return "primary"
}

// Other returns the opposite surface
func (k SurfaceKind) Other() SurfaceKind {
	if k == Primary {
		return Secondary
	}
	return Primary
}

// surface is the record the Synchronizer keeps per media element.
// Nothing outside the Synchronizer holds a pointer to it.
type surface struct {
	kind       SurfaceKind
	element    player.MediaElement
	descriptor stream.Descriptor
	muted      bool
	playing    bool
	position   time.Duration
	readiness  player.Readiness
	exhausted  bool
}

// SurfaceSnapshot is a read-only copy of a surface record
type SurfaceSnapshot struct {
	Kind       string            `json:"kind"`
	Visible    bool              `json:"visible"`
	Playing    bool              `json:"playing"`
	Muted      bool              `json:"muted"`
	Position   float64           `json:"position_seconds"`
	Readiness  string            `json:"readiness"`
	Descriptor stream.Descriptor `json:"stream"`
	Exhausted  bool              `json:"exhausted,omitempty"`
}
