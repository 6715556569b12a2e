package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/vguide/internal/eventloop"
	"github.com/justchokingaround/vguide/internal/player"
)

type fakeTarget struct {
	desired       bool
	effective     bool
	rejectAudible bool
	rejectAll     bool
	playErr       error
	plays         int
	muteCalls     []bool
}

func (f *fakeTarget) Play(ctx context.Context) error {
	f.plays++
	if f.playErr != nil {
		return f.playErr
	}
	if f.rejectAll || (f.rejectAudible && !f.effective) {
		return player.ErrPlayRejected
	}
	return nil
}

func (f *fakeTarget) DesiredMuted() bool   { return f.desired }
func (f *fakeTarget) EffectiveMuted() bool { return f.effective }
func (f *fakeTarget) SetEffectiveMuted(ctx context.Context, muted bool) error {
	f.muteCalls = append(f.muteCalls, muted)
	f.effective = muted
	return nil
}

func newTestEngine(restrictive bool) (*Engine, *eventloop.Manual) {
	loop := eventloop.NewManual(epoch)
	e := NewEngine(DefaultConfig(), loop, nil)
	e.SetRestrictive(restrictive)
	return e, loop
}

func TestEngine_Decide(t *testing.T) {
	tests := []struct {
		name        string
		restrictive bool
		setup       func(c *Clock)
		at          time.Duration
		allowed     bool
		reason      Reason
	}{
		{
			name:    "unset intent on permissive platform",
			setup:   func(c *Clock) {},
			allowed: true,
			reason:  ReasonAllowed,
		},
		{
			name: "paused intent refuses",
			setup: func(c *Clock) {
				c.Command(IntentPaused)
			},
			reason: ReasonPaused,
		},
		{
			name: "hard pause refuses unset intent",
			setup: func(c *Clock) {
				c.Open(HardPause, epoch, time.Second)
			},
			reason: ReasonHardPause,
		},
		{
			name: "hard pause expired",
			setup: func(c *Clock) {
				c.Open(HardPause, epoch, time.Second)
			},
			at:      time.Second,
			allowed: true,
			reason:  ReasonAllowed,
		},
		{
			name: "explicit play bypasses older hard pause",
			setup: func(c *Clock) {
				c.Open(HardPause, epoch, time.Second)
				c.Command(IntentPlaying)
			},
			allowed: true,
			reason:  ReasonAllowed,
		},
		{
			name:        "restrictive platform with stale gesture",
			restrictive: true,
			setup: func(c *Clock) {
				c.RecordGesture(epoch)
			},
			at:     2 * time.Second,
			reason: ReasonStaleGesture,
		},
		{
			name:        "restrictive platform with fresh gesture",
			restrictive: true,
			setup: func(c *Clock) {
				c.RecordGesture(epoch)
			},
			at:      500 * time.Millisecond,
			allowed: true,
			reason:  ReasonAllowed,
		},
		{
			name:        "restrictive platform with playing intent",
			restrictive: true,
			setup: func(c *Clock) {
				c.RecordGesture(epoch)
				c.Command(IntentPlaying)
			},
			at:      5 * time.Second,
			allowed: true,
			reason:  ReasonAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(tt.restrictive)
			c := NewClock()
			tt.setup(c)

			d := e.Decide(c, epoch.Add(tt.at))
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestEngine_AttemptPlaysAudible(t *testing.T) {
	e, loop := newTestEngine(false)
	c := NewClock()
	c.Command(IntentPlaying)
	target := &fakeTarget{desired: false, effective: true}

	res := e.Attempt(context.Background(), c, target)

	assert.Equal(t, Played, res.Outcome)
	assert.False(t, res.ForcedMuted)
	assert.False(t, target.effective, "desired mute applied before playing")
	assert.Equal(t, 1, target.plays)
	assert.Equal(t, 0, loop.Pending())
}

func TestEngine_AttemptSkipsWithoutTouchingSurface(t *testing.T) {
	e, loop := newTestEngine(true)
	c := NewClock()
	c.RecordGesture(epoch)
	loop.Advance(2 * time.Second)
	target := &fakeTarget{}

	res := e.Attempt(context.Background(), c, target)

	assert.Equal(t, SkippedBySuppression, res.Outcome)
	assert.Equal(t, ReasonStaleGesture, res.Reason)
	assert.Zero(t, target.plays)
	assert.Empty(t, target.muteCalls)
}

func TestEngine_AttemptRetriesMutedAndRestores(t *testing.T) {
	e, loop := newTestEngine(false)
	c := NewClock()
	c.Command(IntentPlaying)
	target := &fakeTarget{desired: false, effective: false, rejectAudible: true}

	res := e.Attempt(context.Background(), c, target)

	require.Equal(t, Played, res.Outcome)
	assert.True(t, res.ForcedMuted)
	assert.Equal(t, 2, target.plays)
	assert.True(t, target.effective)

	loop.Advance(100 * time.Millisecond)
	assert.True(t, target.effective, "audio stays off during the grace delay")

	loop.Advance(200 * time.Millisecond)
	assert.False(t, target.effective, "audio restored after the grace delay")
}

func TestEngine_MuteRestoreCancelledByNewerCommand(t *testing.T) {
	e, loop := newTestEngine(false)
	c := NewClock()
	c.Command(IntentPlaying)
	target := &fakeTarget{desired: false, rejectAudible: true}

	res := e.Attempt(context.Background(), c, target)
	require.Equal(t, Played, res.Outcome)

	c.Command(IntentPaused)
	loop.Advance(time.Second)
	assert.True(t, target.effective, "stale restore is a no-op")
}

func TestEngine_MuteRestoreHonoursLaterUserMute(t *testing.T) {
	e, loop := newTestEngine(false)
	c := NewClock()
	c.Command(IntentPlaying)
	target := &fakeTarget{desired: false, rejectAudible: true}

	require.Equal(t, Played, e.Attempt(context.Background(), c, target).Outcome)
	target.desired = true
	calls := len(target.muteCalls)

	loop.Advance(time.Second)
	assert.True(t, target.effective)
	assert.Len(t, target.muteCalls, calls)
}

func TestEngine_AttemptBlocked(t *testing.T) {
	e, _ := newTestEngine(false)
	c := NewClock()
	c.Command(IntentPlaying)

	t.Run("muted retry also rejected", func(t *testing.T) {
		target := &fakeTarget{rejectAll: true}
		res := e.Attempt(context.Background(), c, target)

		assert.Equal(t, Rejected, res.Outcome)
		assert.True(t, res.ForcedMuted)
		assert.ErrorIs(t, res.Err, ErrAutoplayBlocked)
		assert.Equal(t, 2, target.plays)
		assert.Equal(t, IntentPlaying, c.Intent(), "a rejection leaves intent alone")
	})

	t.Run("already muted rejection is not retried", func(t *testing.T) {
		target := &fakeTarget{desired: true, effective: true, rejectAll: true}
		res := e.Attempt(context.Background(), c, target)

		assert.Equal(t, Rejected, res.Outcome)
		assert.ErrorIs(t, res.Err, ErrAutoplayBlocked)
		assert.Equal(t, 1, target.plays)
	})

	t.Run("non platform error is not retried", func(t *testing.T) {
		target := &fakeTarget{playErr: errors.New("ipc closed")}
		res := e.Attempt(context.Background(), c, target)

		assert.Equal(t, Rejected, res.Outcome)
		assert.NotErrorIs(t, res.Err, ErrAutoplayBlocked)
		assert.Equal(t, 1, target.plays)
	})
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		name        string
		ua          string
		restrictive bool
	}{
		{
			name:        "empty",
			ua:          "",
			restrictive: false,
		},
		{
			name:        "desktop chrome",
			ua:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			restrictive: false,
		},
		{
			name:        "iphone safari",
			ua:          "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			restrictive: true,
		},
		{
			name:        "android chrome",
			ua:          "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			restrictive: true,
		},
		{
			name:        "desktop safari",
			ua:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			restrictive: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DetectPlatform(tt.ua)
			assert.Equal(t, tt.restrictive, p.Restrictive)
		})
	}
}
