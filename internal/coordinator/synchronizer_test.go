package coordinator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/vguide/internal/player"
	"github.com/justchokingaround/vguide/internal/player/playertest"
	"github.com/justchokingaround/vguide/internal/stream"
)

var testStream = stream.Descriptor{
	Provider:    stream.ProviderBunny,
	RawURL:      "https://vz-test.b-cdn.net/abc123/playlist.m3u8",
	ResolvedURL: "https://vz-test.b-cdn.net/abc123/playlist.m3u8",
	Form:        stream.FormManifest,
	VideoID:     "abc123",
	Host:        "vz-test.b-cdn.net",
}

func newTestSynchronizer() (*Synchronizer, *playertest.Element, *playertest.Element) {
	primary := playertest.New("primary")
	secondary := playertest.New("secondary")
	return NewSynchronizer(primary, secondary, 200*time.Millisecond, nil, nil), primary, secondary
}

func TestSynchronizer_PlayPausesOtherFirst(t *testing.T) {
	ctx := context.Background()
	s, primary, secondary := newTestSynchronizer()

	require.NoError(t, s.Play(ctx, Primary))
	assert.True(t, primary.IsPlaying())

	_, err := s.Swap(ctx, Secondary)
	require.NoError(t, err)
	assert.False(t, primary.IsPlaying(), "swap pauses the outgoing surface")

	require.NoError(t, s.Play(ctx, Secondary))
	assert.True(t, secondary.IsPlaying())
	assert.Equal(t, 1, s.PlayingCount())
}

func TestSynchronizer_PlayRefusesHiddenSurface(t *testing.T) {
	s, _, secondary := newTestSynchronizer()
	assert.Error(t, s.Play(context.Background(), Secondary))
	assert.Zero(t, secondary.CallCount("play"))
}

func TestSynchronizer_SwapAbortsWhenOutgoingCannotPause(t *testing.T) {
	ctx := context.Background()
	s, primary, secondary := newTestSynchronizer()
	require.NoError(t, s.Play(ctx, Primary))

	primary.PauseErr = errors.New("ipc gone")
	_, err := s.Swap(ctx, Secondary)
	assert.Error(t, err)
	assert.Equal(t, Primary, s.Visible())
	assert.False(t, secondary.Visible)
	assert.Zero(t, secondary.CallCount("seek"))
}

func TestSynchronizer_SwapSeeksOnlyBeyondTolerance(t *testing.T) {
	tests := []struct {
		name       string
		outgoing   time.Duration
		incoming   time.Duration
		wantSeeked bool
	}{
		{name: "far apart", outgoing: 42300 * time.Millisecond, incoming: 0, wantSeeked: true},
		{name: "within tolerance", outgoing: 10 * time.Second, incoming: 10*time.Second + 150*time.Millisecond},
		{name: "exactly at tolerance", outgoing: 10 * time.Second, incoming: 10*time.Second - 200*time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, primary, secondary := newTestSynchronizer()
			primary.Position = tt.outgoing
			secondary.Position = tt.incoming

			res, err := s.Swap(context.Background(), Secondary)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeeked, res.Seeked)
			assert.Equal(t, tt.outgoing, res.Anchor)
			assert.Equal(t, boolToInt(tt.wantSeeked), secondary.CallCount("seek"))
			assert.True(t, secondary.Visible)
			assert.Nil(t, res.DriftErr)
		})
	}
}

func TestSynchronizer_SwapReportsDrift(t *testing.T) {
	s, primary, secondary := newTestSynchronizer()
	primary.Position = 30 * time.Second
	secondary.SeekDrift = time.Second

	res, err := s.Swap(context.Background(), Secondary)
	require.NoError(t, err, "drift is not fatal")
	assert.Equal(t, Secondary, s.Visible())
	require.NotNil(t, res.DriftErr)
	assert.ErrorIs(t, res.DriftErr, ErrSyncDrift)
	assert.Equal(t, KindSyncDrift, res.DriftErr.Kind)
	assert.Equal(t, Secondary, res.DriftErr.Surface)
	assert.Equal(t, time.Second, res.Drift)
}

func TestSynchronizer_SwapToVisibleIsNoop(t *testing.T) {
	s, primary, secondary := newTestSynchronizer()
	res, err := s.Swap(context.Background(), Primary)
	require.NoError(t, err)
	assert.False(t, res.Seeked)
	assert.Empty(t, primary.Calls)
	assert.Empty(t, secondary.Calls)
}

func TestSynchronizer_MuteMirroredWithRollback(t *testing.T) {
	ctx := context.Background()
	s, primary, secondary := newTestSynchronizer()

	require.NoError(t, s.SetDesiredMuted(ctx, true))
	assert.True(t, primary.Muted)
	assert.True(t, secondary.Muted)

	secondary.MuteErr = errors.New("property unavailable")
	err := s.SetDesiredMuted(ctx, false)
	require.Error(t, err)
	assert.True(t, primary.Muted, "first surface rolled back")
	assert.True(t, s.DesiredMuted())
	assert.True(t, s.EffectiveMuted())
}

// brokenRollback accepts the first volume change and fails every later one
type brokenRollback struct {
	*playertest.Element
	calls int
}

func (b *brokenRollback) SetVolume(ctx context.Context, volume int) error {
	b.calls++
	if b.calls > 1 {
		return errors.New("ipc connection closed")
	}
	return b.Element.SetVolume(ctx, volume)
}

func TestSynchronizer_VolumeRollback(t *testing.T) {
	ctx := context.Background()

	t.Run("restores applied surface", func(t *testing.T) {
		s, primary, secondary := newTestSynchronizer()
		secondary.VolumeErr = errors.New("property unavailable")

		require.Error(t, s.SetVolume(ctx, 40))
		assert.Equal(t, 100, primary.Volume)
		assert.Equal(t, 2, primary.CallCount("volume"))
		assert.Equal(t, 100, s.Volume())
	})

	t.Run("logs failed rollback", func(t *testing.T) {
		var logs bytes.Buffer
		primary := &brokenRollback{Element: playertest.New("primary")}
		secondary := playertest.New("secondary")
		secondary.VolumeErr = errors.New("property unavailable")
		s := NewSynchronizer(primary, secondary, 200*time.Millisecond, slog.New(slog.NewTextHandler(&logs, nil)), nil)

		require.Error(t, s.SetVolume(ctx, 40))
		assert.Equal(t, 100, s.Volume())
		assert.Contains(t, logs.String(), "failed to roll back volume")
		assert.Contains(t, logs.String(), "ipc connection closed")
	})
}

func TestSynchronizer_ObservePausesHiddenPlayback(t *testing.T) {
	ctx := context.Background()
	s, _, secondary := newTestSynchronizer()

	paused := s.Observe(ctx, Secondary, player.Event{Kind: player.EventPlaying})
	assert.True(t, paused)
	assert.False(t, s.IsPlaying(Secondary))
	assert.Equal(t, 1, secondary.CallCount("pause"))
}

func TestSynchronizer_ObserveReadinessIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSynchronizer()

	s.Observe(ctx, Primary, player.Event{Kind: player.EventCanPlayThrough})
	s.Observe(ctx, Primary, player.Event{Kind: player.EventLoadedMetadata})
	s.Observe(ctx, Primary, player.Event{Kind: player.EventTimeUpdate, Position: 5 * time.Second})

	snap := s.Snapshot()
	assert.Equal(t, "canPlayThrough", snap[0].Readiness)
	assert.Equal(t, 5.0, snap[0].Position)
	assert.Equal(t, "unattached", snap[1].Readiness)
}

func TestSynchronizer_LoadResetsExhaustionOnlyWhenFresh(t *testing.T) {
	ctx := context.Background()
	s, primary, _ := newTestSynchronizer()

	require.NoError(t, s.Load(ctx, Primary, testStream, player.LoadOptions{}, true))
	assert.Equal(t, testStream.ResolvedURL, primary.URL)
	assert.True(t, s.MarkExhausted(Primary))
	assert.False(t, s.MarkExhausted(Primary))

	require.NoError(t, s.Load(ctx, Primary, stream.Local("/srv/fallback.mp4"), player.LoadOptions{}, false))
	assert.True(t, s.Exhausted(Primary))

	require.NoError(t, s.Load(ctx, Primary, testStream, player.LoadOptions{}, true))
	assert.False(t, s.Exhausted(Primary))

	primary.LoadErr = errors.New("connection refused")
	err := s.Load(ctx, Primary, testStream, player.LoadOptions{}, true)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
