// Package coordinator drives the two playback surfaces of a video guide.
//
// All state lives on a single event loop: public methods post a task and
// return immediately, media element callbacks are posted back onto the loop,
// and deferred checks are loop timers keyed by the command sequence number
// that issued them. Read-only state is published after every task through
// Snapshot and Subscribe.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/justchokingaround/vguide/internal/eventloop"
	"github.com/justchokingaround/vguide/internal/metrics"
	"github.com/justchokingaround/vguide/internal/player"
	"github.com/justchokingaround/vguide/internal/policy"
	"github.com/justchokingaround/vguide/internal/stream"
)

// Config holds the coordinator timings and behaviour switches
type Config struct {
	Policy policy.Config

	// IgnorePauseWindow swallows echo pause events after a pause, restart or swap
	IgnorePauseWindow time.Duration
	// HardPauseWindow blocks automatic play attempts after a user pause
	HardPauseWindow time.Duration
	// GestureGuardWindow defers context-driven pauses after playback starts
	GestureGuardWindow time.Duration
	// Enforcement are the delays at which a command's intent is re-applied
	Enforcement []time.Duration
	// SyncTolerance is the largest time difference tolerated between surfaces
	SyncTolerance time.Duration

	Breakpoints Breakpoints

	Autoplay      bool
	StartMuted    bool
	UnmuteOnPlay  bool
	Loop          bool
	FallbackAsset string
	Title         string
	// Referer and UserAgent are sent with every stream request the surfaces make
	Referer   string
	UserAgent string
}

// DefaultConfig returns the standard configuration
func DefaultConfig() Config {
	return Config{
		Policy:             policy.DefaultConfig(),
		IgnorePauseWindow:  1200 * time.Millisecond,
		HardPauseWindow:    1500 * time.Millisecond,
		GestureGuardWindow: 800 * time.Millisecond,
		Enforcement:        []time.Duration{0, 150 * time.Millisecond, 600 * time.Millisecond},
		SyncTolerance:      200 * time.Millisecond,
		Breakpoints:        DefaultBreakpoints(),
		Autoplay:           true,
		StartMuted:         true,
		UnmuteOnPlay:       true,
		Loop:               true,
	}
}

// Options wires a Coordinator to its collaborators
type Options struct {
	Config    Config
	Loop      eventloop.Loop
	Primary   player.MediaElement
	Secondary player.MediaElement
	Ladder    *stream.Ladder
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// WindowSnapshot is a live suppression window
type WindowSnapshot struct {
	Kind      string  `json:"kind"`
	Remaining float64 `json:"remaining_seconds"`
	Held      bool    `json:"held,omitempty"`
}

// Snapshot is the published read-only state
type Snapshot struct {
	State              string            `json:"state"`
	Intent             string            `json:"intent"`
	Muted              bool              `json:"muted"`
	EffectiveMuted     bool              `json:"effective_muted"`
	Volume             int               `json:"volume"`
	Visible            string            `json:"visible"`
	Device             string            `json:"device"`
	Overlays           []string          `json:"overlays"`
	SecondaryDismissed bool              `json:"secondary_dismissed"`
	Platform           policy.Platform   `json:"platform"`
	Windows            []WindowSnapshot  `json:"windows"`
	Surfaces           []SurfaceSnapshot `json:"surfaces"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Coordinator is the single owner of playback state
type Coordinator struct {
	cfg     Config
	loop    eventloop.Loop
	logger  *slog.Logger
	metrics *metrics.Metrics

	clock   *policy.Clock
	policy  *policy.Engine
	machine *Machine
	sync    *Synchronizer
	vis     *Visibility
	ladder  *stream.Ladder
	hub     *Hub

	platform           policy.Platform
	userMuted          bool
	resumeAfterContext bool
	holding            bool
	orientationHold    policy.Window
	deferred           eventloop.Timer
	streamGen          uint64
	fallbackPending    [2]bool
	fallbackCancel     [2]context.CancelFunc

	snapshot atomic.Pointer[Snapshot]
}

// New creates a coordinator and registers for media events on both elements
func New(opts Options) (*Coordinator, error) {
	if opts.Loop == nil {
		return nil, errors.New("coordinator requires an event loop")
	}
	if opts.Primary == nil || opts.Secondary == nil {
		return nil, errors.New("coordinator requires two media elements")
	}
	if opts.Ladder == nil {
		return nil, errors.New("coordinator requires a resolution ladder")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := withDefaults(opts.Config)

	c := &Coordinator{
		cfg:     cfg,
		loop:    opts.Loop,
		logger:  logger,
		metrics: opts.Metrics,
		clock:   policy.NewClock(),
		machine: NewMachine(),
		sync:    NewSynchronizer(opts.Primary, opts.Secondary, cfg.SyncTolerance, logger, opts.Metrics),
		vis:     NewVisibility(),
		ladder:  opts.Ladder,
		hub:     NewHub(opts.Metrics.SetSubscribers),
	}
	c.policy = policy.NewEngine(cfg.Policy, publishingLoop{Loop: opts.Loop, publish: c.publish}, logger)
	c.sync.InitMuted(cfg.StartMuted)

	opts.Primary.OnEvent(c.mediaCallback(Primary))
	opts.Secondary.OnEvent(c.mediaCallback(Secondary))

	c.publish()
	return c, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.IgnorePauseWindow <= 0 {
		cfg.IgnorePauseWindow = def.IgnorePauseWindow
	}
	if cfg.HardPauseWindow <= 0 {
		cfg.HardPauseWindow = def.HardPauseWindow
	}
	if cfg.GestureGuardWindow <= 0 {
		cfg.GestureGuardWindow = def.GestureGuardWindow
	}
	if len(cfg.Enforcement) == 0 {
		cfg.Enforcement = def.Enforcement
	}
	if cfg.SyncTolerance <= 0 {
		cfg.SyncTolerance = def.SyncTolerance
	}
	if cfg.Breakpoints.Mobile <= 0 || cfg.Breakpoints.Tablet <= 0 {
		cfg.Breakpoints = def.Breakpoints
	}
	return cfg
}

// Play records a user gesture and an explicit intent to play
func (c *Coordinator) Play() {
	c.post(c.handlePlay)
}

// Pause records an explicit intent to pause and suppresses automatic resumes for a while
func (c *Coordinator) Pause() {
	c.post(c.handlePause)
}

// Restart seeks both surfaces to the start and plays
func (c *Coordinator) Restart() {
	c.post(c.handleRestart)
}

// SetMuted changes the user's mute preference on both surfaces
func (c *Coordinator) SetMuted(muted bool) {
	c.post(func() { c.handleSetMuted(muted) })
}

// SetVolume changes the volume on both surfaces
func (c *Coordinator) SetVolume(volume int) {
	c.post(func() { c.handleSetVolume(volume) })
}

// ShowSecondarySurface clears a previous dismissal of the secondary surface
func (c *Coordinator) ShowSecondarySurface() {
	c.post(func() {
		c.clock.RecordGesture(c.loop.Now())
		c.vis.Undismiss()
		c.applyContext()
	})
}

// HideSecondarySurface dismisses the secondary surface until every overlay closes
func (c *Coordinator) HideSecondarySurface() {
	c.post(func() {
		c.clock.RecordGesture(c.loop.Now())
		if !c.vis.Dismiss() {
			c.logger.Debug("no overlay open, ignoring secondary dismissal")
			return
		}
		c.applyContext()
	})
}

// NotifyContextChange updates the viewing context. Identical context is a no-op.
func (c *Coordinator) NotifyContextChange(device DeviceClass, overlays Overlay) {
	c.post(func() {
		if change := c.vis.Update(device, overlays); !change.Changed {
			return
		}
		c.logger.Debug("viewing context changed", "device", device, "overlays", overlays)
		c.applyContext()
	})
}

// NotifyViewport classifies width and updates the viewing context
func (c *Coordinator) NotifyViewport(width int, overlays Overlay) {
	c.NotifyContextChange(ClassifyViewport(width, c.cfg.Breakpoints), overlays)
}

// LoadStream attaches desc to both surfaces
func (c *Coordinator) LoadStream(desc stream.Descriptor) {
	c.post(func() { c.handleLoad(desc) })
}

// SetUserAgent detects the platform and its autoplay restrictions
func (c *Coordinator) SetUserAgent(ua string) {
	c.post(func() {
		c.platform = policy.DetectPlatform(ua)
		c.policy.SetRestrictive(c.platform.Restrictive)
		c.logger.Info("platform detected",
			"browser", c.platform.Browser,
			"os", c.platform.OS,
			"restrictive", c.platform.Restrictive)
	})
}

// Subscribe returns a channel of events and a func to stop receiving them
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	return c.hub.Subscribe(buffer)
}

// Snapshot returns the state published after the last loop task
func (c *Coordinator) Snapshot() Snapshot {
	if s := c.snapshot.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Close releases both surfaces and ends every subscription
func (c *Coordinator) Close(ctx context.Context) error {
	done := make(chan error, 1)
	c.loop.Post(func() {
		if c.deferred != nil {
			c.deferred.Stop()
			c.deferred = nil
		}
		c.cancelFallbacks()
		done <- c.sync.Close(ctx)
	})
	defer c.hub.Close()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) post(task func()) {
	c.loop.Post(func() {
		task()
		c.publish()
	})
}

func (c *Coordinator) mediaCallback(kind SurfaceKind) func(player.Event) {
	return func(ev player.Event) {
		c.post(func() { c.handleMediaEvent(kind, ev) })
	}
}

func (c *Coordinator) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.cfg.Policy.CallTimeout)
}

func (c *Coordinator) handlePlay() {
	c.clock.RecordGesture(c.loop.Now())
	token := c.clock.Command(policy.IntentPlaying)
	c.resumeAfterContext = false

	if c.cfg.UnmuteOnPlay && c.sync.DesiredMuted() && !c.userMuted {
		c.sync.PreferMuted(false)
		c.emitMuted(false)
	}

	c.startVisible("command")
	c.scheduleEnforcement(token)
}

func (c *Coordinator) handlePause() {
	now := c.loop.Now()
	c.clock.RecordGesture(now)
	token := c.clock.Command(policy.IntentPaused)
	c.resumeAfterContext = false
	c.clock.Open(policy.IgnorePause, now, c.cfg.IgnorePauseWindow)
	c.clock.Open(policy.HardPause, now, c.cfg.HardPauseWindow)

	ctx, cancel := c.callCtx()
	defer cancel()
	if err := c.sync.PauseAll(ctx); err != nil {
		c.logger.Warn("failed to pause surfaces", "error", err)
	}

	c.fire(InputUserPaused)
	c.scheduleEnforcement(token)
}

func (c *Coordinator) handleRestart() {
	now := c.loop.Now()
	c.clock.RecordGesture(now)
	token := c.clock.Command(policy.IntentPlaying)
	c.resumeAfterContext = false
	c.clock.Open(policy.IgnorePause, now, c.cfg.IgnorePauseWindow)

	ctx, cancel := c.callCtx()
	if err := c.sync.SeekAll(ctx, 0); err != nil {
		c.logger.Warn("failed to rewind surfaces", "error", err)
	}
	cancel()

	c.startVisible("restart")
	c.scheduleEnforcement(token)
}

func (c *Coordinator) handleSetMuted(muted bool) {
	c.clock.RecordGesture(c.loop.Now())
	c.userMuted = muted
	if muted == c.sync.DesiredMuted() && muted == c.sync.EffectiveMuted() {
		return
	}

	ctx, cancel := c.callCtx()
	defer cancel()
	if err := c.sync.SetDesiredMuted(ctx, muted); err != nil {
		c.logger.Error("failed to change mute state", "muted", muted, "error", err)
		return
	}
	c.emitMuted(muted)
}

func (c *Coordinator) handleSetVolume(volume int) {
	volume = max(0, min(100, volume))
	if volume == c.sync.Volume() {
		return
	}
	ctx, cancel := c.callCtx()
	defer cancel()
	if err := c.sync.SetVolume(ctx, volume); err != nil {
		c.logger.Error("failed to change volume", "volume", volume, "error", err)
	}
}

func (c *Coordinator) handleLoad(desc stream.Descriptor) {
	c.streamGen++
	c.cancelFallbacks()

	for _, kind := range []SurfaceKind{Primary, Secondary} {
		if err := c.load(kind, desc, 0, true); err != nil {
			c.handleStreamError(kind, err)
		}
	}
	c.logger.Info("stream loaded", "stream", desc.String())

	intent := c.clock.Intent()
	if intent == policy.IntentPlaying || (intent == policy.IntentUnset && c.cfg.Autoplay) {
		c.startVisible("load")
	}
}

func (c *Coordinator) load(kind SurfaceKind, desc stream.Descriptor, start time.Duration, fresh bool) error {
	ctx, cancel := c.callCtx()
	defer cancel()
	return c.sync.Load(ctx, kind, desc, player.LoadOptions{
		StartTime: start,
		Loop:      c.cfg.Loop,
		Title:     c.cfg.Title,
		Referer:   c.cfg.Referer,
		UserAgent: c.cfg.UserAgent,
	}, fresh)
}

// startVisible asks policy to play the visible surface and folds the outcome into the machine
func (c *Coordinator) startVisible(trigger string) policy.Result {
	kind := c.sync.Visible()
	res := c.policy.Attempt(context.Background(), c.clock, surfaceTarget{c: c, kind: kind})
	c.metrics.RecordPlayAttempt(res.Outcome.String())
	c.logger.Debug("play attempt",
		"trigger", trigger,
		"surface", kind,
		"outcome", res.Outcome,
		"reason", res.Reason,
		"forced_muted", res.ForcedMuted)

	switch res.Outcome {
	case policy.Played:
		c.fire(InputPlayed)
	case policy.SkippedBySuppression:
		c.fire(InputSkipped)
	case policy.Rejected:
		c.fire(InputRejected)
		if errors.Is(res.Err, ErrAutoplayBlocked) {
			c.logger.Warn("autoplay blocked", "surface", kind, "error", res.Err)
			c.reportError(newStreamError(KindAutoplayBlocked, kind, res.Err))
		} else {
			c.handleStreamError(kind, res.Err)
		}
	}
	return res
}

func (c *Coordinator) fire(in Input) {
	from, changed := c.machine.Fire(in)
	if !changed {
		return
	}
	to := c.machine.State()
	if to == StatePlaying {
		c.clock.Open(policy.GestureGuard, c.loop.Now(), c.cfg.GestureGuardWindow)
	}
	c.metrics.RecordTransition(from.String(), to.String())
	c.logger.Debug("playback state changed", "from", from, "to", to, "input", in)
	c.emit(Event{Type: EventPlaybackStateChanged, State: to.String()})
}

func (c *Coordinator) scheduleEnforcement(token uint64) {
	for _, delay := range c.cfg.Enforcement {
		task := func() {
			c.enforce(token)
			c.publish()
		}
		if delay <= 0 {
			c.loop.Post(task)
			continue
		}
		c.loop.AfterFunc(delay, task)
	}
}

// enforce re-applies the intent of the command identified by token
func (c *Coordinator) enforce(token uint64) {
	if !c.clock.Current(token) {
		return
	}
	if c.clock.HardPauseBlocks(c.loop.Now()) {
		return
	}

	visible := c.sync.Visible()
	ctx, cancel := c.callCtx()
	defer cancel()

	if c.sync.IsPlaying(visible.Other()) {
		if err := c.sync.Pause(ctx, visible.Other()); err != nil {
			c.logger.Warn("failed to pause inactive surface", "error", err)
		}
	}

	switch c.clock.Intent() {
	case policy.IntentPlaying:
		if !c.sync.IsPlaying(visible) {
			c.startVisible("enforcement")
		}
	case policy.IntentPaused:
		if c.sync.IsPlaying(visible) {
			if err := c.sync.Pause(ctx, visible); err != nil {
				c.logger.Warn("failed to re-apply pause", "error", err)
				return
			}
			c.fire(InputUserPaused)
		}
	}
}

// applyContext reconciles the surfaces with the viewing context
func (c *Coordinator) applyContext() {
	now := c.loop.Now()
	warning := c.vis.OrientationWarning()
	target := c.vis.Target()

	needsPause := warning && !c.holding
	needsResume := !warning && c.holding
	needsSwap := target != c.sync.Visible()
	if !needsPause && !needsResume && !needsSwap {
		return
	}

	if (needsPause || needsSwap) && c.clock.Active(policy.GestureGuard, now) {
		c.deferContext(c.clock.Remaining(policy.GestureGuard, now))
		return
	}
	if c.deferred != nil {
		c.deferred.Stop()
		c.deferred = nil
	}

	if needsPause {
		c.contextPause()
	}
	if needsResume {
		c.clock.Release(c.orientationHold)
		c.holding = false
	}
	if needsSwap {
		c.swap(target)
	}
	if needsResume && c.resumeAfterContext {
		c.resumeAfterContext = false
		c.startVisible("context")
		c.scheduleEnforcement(c.clock.IntentSeq())
	}
}

func (c *Coordinator) deferContext(wait time.Duration) {
	if c.deferred != nil {
		c.deferred.Stop()
	}
	c.logger.Debug("deferring context change until gesture guard expires", "wait", wait)
	c.deferred = c.loop.AfterFunc(wait, func() {
		c.deferred = nil
		c.applyContext()
		c.publish()
	})
}

// contextPause pauses playback for the orientation warning without touching intent
func (c *Coordinator) contextPause() {
	c.orientationHold = c.clock.Hold(policy.HardPause)
	c.holding = true
	if c.sync.IsPlaying(c.sync.Visible()) {
		c.resumeAfterContext = true
	}

	ctx, cancel := c.callCtx()
	defer cancel()
	if err := c.sync.PauseAll(ctx); err != nil {
		c.logger.Warn("failed to pause for orientation warning", "error", err)
	}
	c.fire(InputContextPaused)
}

func (c *Coordinator) swap(target SurfaceKind) {
	ctx, cancel := c.callCtx()
	result, err := c.sync.Swap(ctx, target)
	cancel()
	if err != nil {
		c.logger.Error("failed to swap surfaces", "to", target, "error", err)
		return
	}

	c.clock.Open(policy.IgnorePause, c.loop.Now(), c.cfg.IgnorePauseWindow)
	c.logger.Info("surface swapped",
		"from", result.From,
		"to", result.To,
		"anchor", result.Anchor,
		"seeked", result.Seeked)
	c.emit(Event{Type: EventSurfaceSwapped, Surface: result.To.String()})
	if result.DriftErr != nil {
		c.reportError(result.DriftErr)
	}

	if c.holding {
		return
	}
	intent := c.clock.Intent()
	if intent == policy.IntentPlaying || (intent == policy.IntentUnset && result.WasPlaying) {
		c.startVisible("swap")
		c.scheduleEnforcement(c.clock.IntentSeq())
		return
	}
	if result.WasPlaying {
		c.fire(InputContextPaused)
	}
}

func (c *Coordinator) handleMediaEvent(kind SurfaceKind, ev player.Event) {
	ctx, cancel := c.callCtx()
	defer cancel()

	switch ev.Kind {
	case player.EventPaused:
		c.sync.Observe(ctx, kind, ev)
		if kind != c.sync.Visible() {
			return
		}
		reaction := ReactToPause(c.clock, c.loop.Now())
		c.metrics.RecordPauseEvent(reaction.String())
		switch reaction {
		case PauseSuppressed:
			c.logger.Debug("pause event suppressed", "surface", kind)
		case PauseResume:
			c.startVisible("resume")
		case PauseAcknowledged:
			c.fire(InputPauseObserved)
		}

	case player.EventPlaying:
		c.sync.Observe(ctx, kind, ev)
		if kind != c.sync.Visible() {
			return
		}
		if c.clock.Intent() == policy.IntentPaused || c.holding {
			if err := c.sync.Pause(ctx, kind); err != nil {
				c.logger.Warn("failed to pause unexpected playback", "error", err)
			}
			return
		}
		c.fire(InputPlayObserved)

	case player.EventEnded:
		c.sync.Observe(ctx, kind, ev)
		if kind == c.sync.Visible() {
			c.fire(InputPauseObserved)
		}

	case player.EventError:
		c.sync.Observe(ctx, kind, ev)
		c.handleStreamError(kind, ev.Err)

	default:
		c.sync.Observe(ctx, kind, ev)
	}
}

func (c *Coordinator) handleStreamError(kind SurfaceKind, err error) {
	var serr *StreamError
	if !errors.As(err, &serr) {
		serr = newStreamError(KindStreamUnavailable, kind, err)
	}
	c.reportError(serr)
	if kind == c.sync.Visible() {
		c.fire(InputStreamFailed)
	}
	c.fallback(kind)
}

// fallback asks the ladder for the next candidate off the loop
func (c *Coordinator) fallback(kind SurfaceKind) {
	if c.fallbackPending[kind] {
		c.logger.Debug("fallback already in flight", "surface", kind)
		return
	}
	current := c.sync.Descriptor(kind)
	if current.ResolvedURL == "" {
		return
	}
	if current.Form == stream.FormLocal {
		c.logger.Error("fallback asset failed to play", "surface", kind, "path", current.ResolvedURL)
		return
	}

	gen := c.streamGen
	slot := fmt.Sprintf("%s/%d", kind, gen)
	probeCtx, cancel := context.WithCancel(context.Background())
	c.fallbackPending[kind] = true
	c.fallbackCancel[kind] = cancel
	var (
		step stream.Step
		err  error
	)
	c.loop.Async(func(ctx context.Context) {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		step, err = c.ladder.Next(probeCtx, slot, current)
	}, func() {
		cancel()
		if gen != c.streamGen {
			c.logger.Debug("dropping fallback for replaced stream", "surface", kind)
			return
		}
		defer c.publish()
		c.fallbackPending[kind] = false
		c.fallbackCancel[kind] = nil
		switch {
		case err == nil:
			c.switchTo(kind, step)
		case errors.Is(err, stream.ErrFallbackInFlight):
			c.logger.Debug("fallback already in flight", "surface", kind)
		case errors.Is(err, stream.ErrResolutionExhausted):
			c.exhaust(kind, err)
		default:
			c.logger.Warn("fallback aborted", "surface", kind, "error", err)
		}
	})
}

// cancelFallbacks abandons probes started for the previous stream
func (c *Coordinator) cancelFallbacks() {
	for i, cancel := range c.fallbackCancel {
		if cancel != nil {
			cancel()
		}
		c.fallbackCancel[i] = nil
	}
	c.fallbackPending = [2]bool{}
}

func (c *Coordinator) switchTo(kind SurfaceKind, step stream.Step) {
	c.metrics.RecordFallbackStep(kind.String())
	c.logger.Info("falling back to lower resolution",
		"surface", kind,
		"from", step.From.String(),
		"to", step.To.String(),
		"probes", step.Probes)

	if err := c.load(kind, step.To, c.sync.Position(kind), false); err != nil {
		c.handleStreamError(kind, err)
		return
	}
	c.resumeSurface(kind)
}

func (c *Coordinator) exhaust(kind SurfaceKind, cause error) {
	if !c.sync.MarkExhausted(kind) {
		return
	}
	c.metrics.RecordExhausted(kind.String())
	c.logger.Warn("resolution ladder exhausted", "surface", kind, "stream", c.sync.Descriptor(kind).String())
	c.emit(Event{
		Type:    EventResolutionExhausted,
		Kind:    KindResolutionExhausted,
		Surface: kind.String(),
		Message: cause.Error(),
	})

	if c.cfg.FallbackAsset == "" {
		return
	}
	if err := c.load(kind, stream.Local(c.cfg.FallbackAsset), 0, false); err != nil {
		c.logger.Error("failed to load fallback asset", "surface", kind, "error", err)
		c.reportError(newStreamError(KindStreamUnavailable, kind, err))
		return
	}
	c.resumeSurface(kind)
}

// resumeSurface restarts a reloaded surface if it is visible and should be playing
func (c *Coordinator) resumeSurface(kind SurfaceKind) {
	if kind != c.sync.Visible() || c.holding {
		return
	}
	intent := c.clock.Intent()
	if intent == policy.IntentPlaying || (intent == policy.IntentUnset && c.cfg.Autoplay) {
		c.startVisible("fallback")
	}
}

func (c *Coordinator) reportError(serr *StreamError) {
	c.metrics.RecordStreamError(string(serr.Kind), serr.Surface.String())
	c.emit(Event{
		Type:    EventStreamError,
		Kind:    serr.Kind,
		Surface: serr.Surface.String(),
		Message: serr.Error(),
	})
}

func (c *Coordinator) emitMuted(muted bool) {
	c.emit(Event{Type: EventMuteChanged, Muted: &muted})
}

func (c *Coordinator) emit(ev Event) {
	ev.At = c.loop.Now()
	c.hub.Publish(ev)
}

func (c *Coordinator) publish() {
	now := c.loop.Now()
	windows := []WindowSnapshot{}
	for _, w := range c.clock.Windows(now) {
		ws := WindowSnapshot{Kind: w.Kind.String(), Held: w.ExpiresAt.IsZero()}
		if !ws.Held {
			ws.Remaining = w.ExpiresAt.Sub(now).Seconds()
		}
		windows = append(windows, ws)
	}

	c.snapshot.Store(&Snapshot{
		State:              c.machine.State().String(),
		Intent:             c.clock.Intent().String(),
		Muted:              c.sync.DesiredMuted(),
		EffectiveMuted:     c.sync.EffectiveMuted(),
		Volume:             c.sync.Volume(),
		Visible:            c.sync.Visible().String(),
		Device:             string(c.vis.Device()),
		Overlays:           c.vis.Overlays().Names(),
		SecondaryDismissed: c.vis.Dismissed(),
		Platform:           c.platform,
		Windows:            windows,
		Surfaces:           c.sync.Snapshot(),
		UpdatedAt:          now,
	})
}

// publishingLoop republishes the snapshot after timers owned by collaborators fire
type publishingLoop struct {
	eventloop.Loop
	publish func()
}

func (l publishingLoop) AfterFunc(d time.Duration, task func()) eventloop.Timer {
	return l.Loop.AfterFunc(d, func() {
		task()
		l.publish()
	})
}

// surfaceTarget lets the policy engine play one surface while mute stays mirrored
type surfaceTarget struct {
	c    *Coordinator
	kind SurfaceKind
}

func (t surfaceTarget) Play(ctx context.Context) error {
	return t.c.sync.Play(ctx, t.kind)
}

func (t surfaceTarget) DesiredMuted() bool {
	return t.c.sync.DesiredMuted()
}

func (t surfaceTarget) EffectiveMuted() bool {
	return t.c.sync.EffectiveMuted()
}

func (t surfaceTarget) SetEffectiveMuted(ctx context.Context, muted bool) error {
	return t.c.sync.SetEffectiveMuted(ctx, muted)
}
