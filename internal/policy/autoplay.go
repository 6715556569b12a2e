package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/justchokingaround/vguide/internal/eventloop"
	"github.com/justchokingaround/vguide/internal/player"
)

// ErrAutoplayBlocked means the platform refused both the audible and the muted attempt
var ErrAutoplayBlocked = errors.New("autoplay blocked by platform")

// Outcome is the tri-state result of a play attempt
type Outcome int

const (
	// Played means the surface accepted the play request
	Played Outcome = iota
	// Rejected means the surface refused and no further retry will happen
	Rejected
	// SkippedBySuppression means policy refused before touching the surface
	SkippedBySuppression
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case Played:
		return "played"
	case Rejected:
		return "rejected"
	case SkippedBySuppression:
		return "skippedBySuppression"
	default:
		return "unknown"
	}
}

// Reason explains a Decision
type Reason string

const (
	ReasonAllowed      Reason = "allowed"
	ReasonHardPause    Reason = "hard_pause"
	ReasonPaused       Reason = "intent_paused"
	ReasonStaleGesture Reason = "stale_gesture"
)

// Decision is the policy verdict for a play request
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Config holds the policy timings
type Config struct {
	// GestureValidity is how long a user action unlocks restricted playback
	GestureValidity time.Duration
	// MuteRestoreDelay is the grace period before restoring audio after a muted retry
	MuteRestoreDelay time.Duration
	// CallTimeout bounds each media element call
	CallTimeout time.Duration
}

// DefaultConfig returns the standard timings
func DefaultConfig() Config {
	return Config{
		GestureValidity:  800 * time.Millisecond,
		MuteRestoreDelay: 250 * time.Millisecond,
		CallTimeout:      3 * time.Second,
	}
}

// Target is the surface a play attempt is made on. Mute changes go through the
// owner of both surfaces so audibility stays mirrored.
type Target interface {
	Play(ctx context.Context) error
	DesiredMuted() bool
	EffectiveMuted() bool
	SetEffectiveMuted(ctx context.Context, muted bool) error
}

// Result describes a finished attempt
type Result struct {
	Outcome     Outcome
	Reason      Reason
	ForcedMuted bool
	Err         error
}

// Engine gates every play request
type Engine struct {
	cfg         Config
	loop        eventloop.Loop
	logger      *slog.Logger
	restrictive bool
}

// NewEngine creates a policy engine scheduling deferred work on loop
func NewEngine(cfg Config, loop eventloop.Loop, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.GestureValidity <= 0 {
		cfg.GestureValidity = def.GestureValidity
	}
	if cfg.MuteRestoreDelay <= 0 {
		cfg.MuteRestoreDelay = def.MuteRestoreDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, loop: loop, logger: logger}
}

// SetRestrictive marks the platform as gesture-restrictive
func (e *Engine) SetRestrictive(restrictive bool) {
	e.restrictive = restrictive
}

// Restrictive reports whether the platform is gesture-restrictive
func (e *Engine) Restrictive() bool {
	return e.restrictive
}

// Config returns the engine timings
func (e *Engine) Config() Config {
	return e.cfg
}

// Decide applies the policy rules to the clock at now. It has no side effects
// apart from pruning expired windows.
func (e *Engine) Decide(clock *Clock, now time.Time) Decision {
	if clock.HardPauseBlocks(now) {
		return Decision{Reason: ReasonHardPause}
	}
	intent := clock.Intent()
	if intent == IntentPaused {
		return Decision{Reason: ReasonPaused}
	}
	if e.restrictive && intent != IntentPlaying && !clock.GestureFresh(now, e.cfg.GestureValidity) {
		return Decision{Reason: ReasonStaleGesture}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// Attempt decides and, when allowed, plays target. A platform rejection while
// audible is retried once muted; audio is restored after the grace delay if the
// command that issued the attempt is still current.
func (e *Engine) Attempt(ctx context.Context, clock *Clock, target Target) Result {
	now := e.loop.Now()
	decision := e.Decide(clock, now)
	if !decision.Allowed {
		e.logger.Debug("play attempt skipped", "reason", decision.Reason, "intent", clock.Intent())
		return Result{Outcome: SkippedBySuppression, Reason: decision.Reason}
	}

	desiredMuted := target.DesiredMuted()
	if target.EffectiveMuted() != desiredMuted {
		if err := e.call(ctx, func(ctx context.Context) error {
			return target.SetEffectiveMuted(ctx, desiredMuted)
		}); err != nil {
			e.logger.Warn("failed to apply mute before play", "error", err)
		}
	}

	err := e.call(ctx, target.Play)
	if err == nil {
		return Result{Outcome: Played, Reason: ReasonAllowed}
	}
	if !errors.Is(err, player.ErrPlayRejected) {
		return Result{Outcome: Rejected, Reason: ReasonAllowed, Err: err}
	}
	if desiredMuted {
		return Result{Outcome: Rejected, Reason: ReasonAllowed, Err: fmt.Errorf("%w: %v", ErrAutoplayBlocked, err)}
	}

	e.logger.Debug("audible play rejected, retrying muted")
	if err := e.call(ctx, func(ctx context.Context) error {
		return target.SetEffectiveMuted(ctx, true)
	}); err != nil {
		return Result{Outcome: Rejected, Reason: ReasonAllowed, Err: fmt.Errorf("%w: mute for retry: %v", ErrAutoplayBlocked, err)}
	}
	if err := e.call(ctx, target.Play); err != nil {
		return Result{Outcome: Rejected, Reason: ReasonAllowed, ForcedMuted: true, Err: fmt.Errorf("%w: %v", ErrAutoplayBlocked, err)}
	}

	token := clock.IntentSeq()
	e.loop.AfterFunc(e.cfg.MuteRestoreDelay, func() {
		if !clock.Current(token) {
			return
		}
		want := target.DesiredMuted()
		if target.EffectiveMuted() == want {
			return
		}
		if err := e.call(context.Background(), func(ctx context.Context) error {
			return target.SetEffectiveMuted(ctx, want)
		}); err != nil {
			e.logger.Warn("failed to restore mute state after muted retry", "error", err)
		}
	})

	return Result{Outcome: Played, Reason: ReasonAllowed, ForcedMuted: true}
}

func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}
