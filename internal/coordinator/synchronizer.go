package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/justchokingaround/vguide/internal/metrics"
	"github.com/justchokingaround/vguide/internal/player"
	"github.com/justchokingaround/vguide/internal/stream"
)

// SwapResult describes a finished visibility swap
type SwapResult struct {
	From       SurfaceKind
	To         SurfaceKind
	Anchor     time.Duration
	Seeked     bool
	Drift      time.Duration
	WasPlaying bool
	// DriftErr is set when the incoming surface is still off after seeking. It is not fatal.
	DriftErr *StreamError
}

// Synchronizer exclusively owns both surfaces. It keeps exactly one surface
// visible, never lets both play, and mirrors audibility across them.
type Synchronizer struct {
	surfaces  [2]*surface
	visible   SurfaceKind
	tolerance time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// desiredMuted is the user's preference, effectiveMuted what the elements have
	desiredMuted   bool
	effectiveMuted bool
	volume         int
}

// NewSynchronizer takes ownership of the two elements. The primary surface starts visible.
func NewSynchronizer(primary, secondary player.MediaElement, tolerance time.Duration, logger *slog.Logger, m *metrics.Metrics) *Synchronizer {
	if tolerance <= 0 {
		tolerance = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		surfaces: [2]*surface{
			{kind: Primary, element: primary},
			{kind: Secondary, element: secondary},
		},
		visible:   Primary,
		tolerance: tolerance,
		logger:    logger,
		metrics:   m,
		volume:    100,
	}
}

func (s *Synchronizer) get(kind SurfaceKind) *surface {
	return s.surfaces[kind]
}

// Visible returns the surface currently shown to the user
func (s *Synchronizer) Visible() SurfaceKind {
	return s.visible
}

// IsPlaying reports whether the surface is playing
func (s *Synchronizer) IsPlaying(kind SurfaceKind) bool {
	return s.get(kind).playing
}

// PlayingCount returns how many surfaces are playing
func (s *Synchronizer) PlayingCount() int {
	n := 0
	for _, sf := range s.surfaces {
		if sf.playing {
			n++
		}
	}
	return n
}

// Descriptor returns the stream loaded into the surface
func (s *Synchronizer) Descriptor(kind SurfaceKind) stream.Descriptor {
	return s.get(kind).descriptor
}

// Position returns the last known position of the surface
func (s *Synchronizer) Position(kind SurfaceKind) time.Duration {
	return s.get(kind).position
}

// Exhausted reports whether the surface's ladder already ran out for the loaded stream
func (s *Synchronizer) Exhausted(kind SurfaceKind) bool {
	return s.get(kind).exhausted
}

// MarkExhausted records that the surface's ladder ran out. It returns false if it already had.
func (s *Synchronizer) MarkExhausted(kind SurfaceKind) bool {
	sf := s.get(kind)
	if sf.exhausted {
		return false
	}
	sf.exhausted = true
	return true
}

// DesiredMuted returns the user's mute preference
func (s *Synchronizer) DesiredMuted() bool {
	return s.desiredMuted
}

// EffectiveMuted returns the mute state both elements currently have
func (s *Synchronizer) EffectiveMuted() bool {
	return s.effectiveMuted
}

// Volume returns the mirrored volume
func (s *Synchronizer) Volume() int {
	return s.volume
}

// Load attaches desc to the surface. A fresh stream clears the exhausted flag;
// a fallback candidate keeps it so exhaustion is only reported once per stream.
func (s *Synchronizer) Load(ctx context.Context, kind SurfaceKind, desc stream.Descriptor, opts player.LoadOptions, fresh bool) error {
	sf := s.get(kind)
	opts.Muted = s.effectiveMuted
	if opts.Volume == 0 {
		opts.Volume = s.volume
	}
	opts.Paused = true

	sf.descriptor = desc
	sf.playing = false
	sf.readiness = player.ReadinessUnattached
	sf.position = opts.StartTime
	if fresh {
		sf.exhausted = false
	}

	if err := sf.element.Load(ctx, desc.ResolvedURL, opts); err != nil {
		return newStreamError(KindStreamUnavailable, kind, err)
	}
	sf.muted = s.effectiveMuted

	s.logger.Debug("surface loaded", "surface", kind, "stream", desc.String())
	return nil
}

// Play starts the surface. The other surface is paused first so the two are
// never playing at once; if it cannot be paused the play is not issued.
func (s *Synchronizer) Play(ctx context.Context, kind SurfaceKind) error {
	if kind != s.visible {
		return fmt.Errorf("cannot play hidden %s surface", kind)
	}
	if other := s.get(kind.Other()); other.playing {
		if err := s.Pause(ctx, other.kind); err != nil {
			return err
		}
	}

	sf := s.get(kind)
	if err := sf.element.Play(ctx); err != nil {
		return err
	}
	sf.playing = true
	return nil
}

// Pause pauses the surface
func (s *Synchronizer) Pause(ctx context.Context, kind SurfaceKind) error {
	sf := s.get(kind)
	if err := sf.element.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause %s surface: %w", kind, err)
	}
	sf.playing = false
	return nil
}

// PauseAll pauses both surfaces
func (s *Synchronizer) PauseAll(ctx context.Context) error {
	var errs []error
	for _, sf := range s.surfaces {
		if err := s.Pause(ctx, sf.kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SeekAll moves both surfaces to position
func (s *Synchronizer) SeekAll(ctx context.Context, position time.Duration) error {
	var errs []error
	for _, sf := range s.surfaces {
		if err := sf.element.Seek(ctx, position); err != nil {
			errs = append(errs, fmt.Errorf("failed to seek %s surface: %w", sf.kind, err))
			continue
		}
		sf.position = position
	}
	return errors.Join(errs...)
}

// Swap makes `to` the visible surface. The outgoing surface's position is the
// anchor; the incoming surface is only seeked when it is more than the
// tolerance away. The outgoing surface is paused before anything else happens.
func (s *Synchronizer) Swap(ctx context.Context, to SurfaceKind) (SwapResult, error) {
	from := s.visible
	result := SwapResult{From: from, To: to}
	if to == from {
		return result, nil
	}

	out, in := s.get(from), s.get(to)
	result.WasPlaying = out.playing

	anchor, err := out.element.CurrentTime(ctx)
	if err != nil {
		s.logger.Debug("falling back to recorded position", "surface", from, "error", err)
		anchor = out.position
	}
	result.Anchor = anchor

	if out.playing {
		if err := s.Pause(ctx, from); err != nil {
			return result, err
		}
	}

	current, err := in.element.CurrentTime(ctx)
	if err != nil {
		current = in.position
	}
	if absDuration(anchor-current) > s.tolerance {
		if err := in.element.Seek(ctx, anchor); err != nil {
			return result, fmt.Errorf("failed to align %s surface: %w", to, err)
		}
		result.Seeked = true
		if after, err := in.element.CurrentTime(ctx); err == nil {
			current = after
		} else {
			current = anchor
		}
	}
	in.position = current

	result.Drift = absDuration(anchor - current)
	if result.Drift > s.tolerance {
		result.DriftErr = newStreamError(KindSyncDrift, to,
			fmt.Errorf("%w: %s after seeking to %s", ErrSyncDrift, result.Drift, anchor))
		s.logger.Warn("surface drift after swap",
			"from", from,
			"to", to,
			"anchor", anchor,
			"drift", result.Drift)
	}

	if err := s.get(Secondary).element.SetVisible(ctx, to == Secondary); err != nil {
		return result, fmt.Errorf("failed to toggle secondary surface: %w", err)
	}
	s.visible = to
	s.metrics.RecordSwap(to.String(), result.Drift.Seconds())

	return result, nil
}

// SetDesiredMuted records the user's preference and applies it to both elements
func (s *Synchronizer) SetDesiredMuted(ctx context.Context, muted bool) error {
	if err := s.SetEffectiveMuted(ctx, muted); err != nil {
		return err
	}
	s.desiredMuted = muted
	return nil
}

// PreferMuted changes the preference only; the next play attempt applies it
func (s *Synchronizer) PreferMuted(muted bool) {
	s.desiredMuted = muted
}

// InitMuted sets both mute states without touching the elements. Used before the first load.
func (s *Synchronizer) InitMuted(muted bool) {
	s.desiredMuted = muted
	s.effectiveMuted = muted
}

// SetEffectiveMuted applies muted to both elements or to neither. If the
// second element fails the first one is rolled back.
func (s *Synchronizer) SetEffectiveMuted(ctx context.Context, muted bool) error {
	var applied []*surface
	for _, sf := range s.surfaces {
		if err := sf.element.SetMuted(ctx, muted); err != nil {
			for _, done := range applied {
				if rbErr := done.element.SetMuted(ctx, !muted); rbErr != nil {
					s.logger.Error("failed to roll back mute", "surface", done.kind, "error", rbErr)
				} else {
					done.muted = !muted
				}
			}
			return fmt.Errorf("failed to set mute on %s surface: %w", sf.kind, err)
		}
		sf.muted = muted
		applied = append(applied, sf)
	}
	s.effectiveMuted = muted
	return nil
}

// SetVolume applies volume to both elements, rolling back on partial failure
func (s *Synchronizer) SetVolume(ctx context.Context, volume int) error {
	previous := s.volume
	var applied []*surface
	for _, sf := range s.surfaces {
		if err := sf.element.SetVolume(ctx, volume); err != nil {
			for _, done := range applied {
				if rbErr := done.element.SetVolume(ctx, previous); rbErr != nil {
					s.logger.Error("failed to roll back volume", "surface", done.kind, "volume", previous, "error", rbErr)
				}
			}
			return fmt.Errorf("failed to set volume on %s surface: %w", sf.kind, err)
		}
		applied = append(applied, sf)
	}
	s.volume = volume
	return nil
}

// Observe folds a media event into the surface record. A hidden surface that
// reports playing is paused immediately; so is the other surface when the
// visible one starts. It returns true if it had to pause something.
func (s *Synchronizer) Observe(ctx context.Context, kind SurfaceKind, ev player.Event) bool {
	sf := s.get(kind)
	if readiness, ok := player.ReadinessFor(ev.Kind); ok {
		if readiness > sf.readiness {
			sf.readiness = readiness
		}
		return false
	}

	switch ev.Kind {
	case player.EventTimeUpdate:
		sf.position = ev.Position
	case player.EventPaused, player.EventEnded:
		sf.playing = false
		if ev.Position > 0 {
			sf.position = ev.Position
		}
	case player.EventError:
		sf.playing = false
	case player.EventPlaying:
		sf.playing = true
		if sf.readiness < player.ReadinessCanPlay {
			sf.readiness = player.ReadinessCanPlay
		}
		if kind != s.visible {
			if err := s.Pause(ctx, kind); err != nil {
				s.logger.Error("failed to pause hidden surface", "surface", kind, "error", err)
			}
			return true
		}
		if other := s.get(kind.Other()); other.playing {
			if err := s.Pause(ctx, other.kind); err != nil {
				s.logger.Error("failed to pause inactive surface", "surface", other.kind, "error", err)
			}
			return true
		}
	}
	return false
}

// Snapshot copies both surface records
func (s *Synchronizer) Snapshot() []SurfaceSnapshot {
	out := make([]SurfaceSnapshot, 0, len(s.surfaces))
	for _, sf := range s.surfaces {
		out = append(out, SurfaceSnapshot{
			Kind:       sf.kind.String(),
			Visible:    sf.kind == s.visible,
			Playing:    sf.playing,
			Muted:      sf.muted,
			Position:   sf.position.Seconds(),
			Readiness:  sf.readiness.String(),
			Descriptor: sf.descriptor,
			Exhausted:  sf.exhausted,
		})
	}
	return out
}

// Close releases both elements
func (s *Synchronizer) Close(ctx context.Context) error {
	var errs []error
	for _, sf := range s.surfaces {
		if err := sf.element.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s surface: %w", sf.kind, err))
		}
		sf.playing = false
	}
	return errors.Join(errs...)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
