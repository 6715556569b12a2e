package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrResolutionExhausted means every lower tier has been tried
	ErrResolutionExhausted = errors.New("resolution ladder exhausted")
	// ErrFallbackInFlight means a fallback for the same surface has not finished yet
	ErrFallbackInFlight = errors.New("resolution fallback already in flight")
)

// DefaultTiers is the static resolution ladder, highest first
var DefaultTiers = []int{1080, 720, 480, 360, 240}

// Prober checks that a URL exists without downloading it
type Prober interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// Step is the outcome of one fallback request
type Step struct {
	From   Descriptor
	To     Descriptor
	Probes int
}

// Ladder proposes lower-resolution candidates for failing streams
type Ladder struct {
	tiers  []int
	prober Prober
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewLadder creates a ladder. Tiers are sorted highest first; nil means DefaultTiers.
func NewLadder(tiers []int, prober Prober, logger *slog.Logger) *Ladder {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	sorted := append([]int(nil), tiers...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	if logger == nil {
		logger = slog.Default()
	}
	return &Ladder{
		tiers:    sorted,
		prober:   prober,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// Tiers returns a copy of the ladder
func (l *Ladder) Tiers() []int {
	return append([]int(nil), l.tiers...)
}

// Next returns the next candidate for current after it failed on surface.
// Only one call per surface key may be running at a time. Callers that reload
// streams put a generation in the key so a stale probe does not block the new one.
func (l *Ladder) Next(ctx context.Context, surface string, current Descriptor) (Step, error) {
	l.mu.Lock()
	if l.inFlight[surface] {
		l.mu.Unlock()
		return Step{}, ErrFallbackInFlight
	}
	l.inFlight[surface] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.inFlight, surface)
		l.mu.Unlock()
	}()

	switch current.Form {
	case FormManifest:
		return l.probeDirect(ctx, surface, current)
	case FormDirect:
		return l.stepDown(surface, current)
	default:
		return Step{From: current}, ErrResolutionExhausted
	}
}

// InFlight reports whether a fallback is running for surface
func (l *Ladder) InFlight(surface string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[surface]
}

// probeDirect walks the direct-file endpoints of a manifest stream, highest first
func (l *Ladder) probeDirect(ctx context.Context, surface string, current Descriptor) (Step, error) {
	step := Step{From: current}
	if !HasDirectFiles(current.Provider) {
		return step, ErrResolutionExhausted
	}

	for _, res := range l.tiers {
		candidate, err := Direct(current, res)
		if err != nil {
			return step, fmt.Errorf("%w: %v", ErrResolutionExhausted, err)
		}

		step.Probes++
		ok, err := l.prober.Exists(ctx, candidate.ResolvedURL)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return step, ctxErr
		}
		if err != nil {
			l.logger.Debug("direct file probe failed",
				"surface", surface,
				"resolution", res,
				"url", candidate.ResolvedURL,
				"error", err)
			continue
		}
		if ok {
			step.To = candidate
			return step, nil
		}
	}

	return step, ErrResolutionExhausted
}

// stepDown moves a direct-file stream to the next lower tier
func (l *Ladder) stepDown(surface string, current Descriptor) (Step, error) {
	step := Step{From: current}
	for _, res := range l.tiers {
		if res >= current.Resolution {
			continue
		}
		next, err := Direct(current, res)
		if err != nil {
			return step, fmt.Errorf("%w: %v", ErrResolutionExhausted, err)
		}
		step.To = next
		return step, nil
	}
	l.logger.Debug("no lower tier left", "surface", surface, "resolution", current.Resolution)
	return step, ErrResolutionExhausted
}
