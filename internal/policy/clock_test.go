package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClock_WindowsExpireLazily(t *testing.T) {
	c := NewClock()
	c.Open(IgnorePause, epoch, 1200*time.Millisecond)
	c.Open(GestureGuard, epoch, 800*time.Millisecond)

	assert.True(t, c.Active(IgnorePause, epoch.Add(400*time.Millisecond)))
	assert.True(t, c.Active(GestureGuard, epoch.Add(400*time.Millisecond)))

	at := epoch.Add(900 * time.Millisecond)
	assert.True(t, c.Active(IgnorePause, at))
	assert.False(t, c.Active(GestureGuard, at))
	assert.Len(t, c.Windows(at), 1)

	// exactly at expiresAt the window is inert
	assert.False(t, c.Active(IgnorePause, epoch.Add(1200*time.Millisecond)))
	assert.Empty(t, c.Windows(epoch.Add(1200*time.Millisecond)))
}

func TestClock_ConcurrentWindowsIndependent(t *testing.T) {
	c := NewClock()
	c.Open(HardPause, epoch, time.Second)
	c.Open(HardPause, epoch.Add(500*time.Millisecond), time.Second)

	assert.Equal(t, 1500*time.Millisecond, c.Remaining(HardPause, epoch))
	assert.True(t, c.Active(HardPause, epoch.Add(1200*time.Millisecond)))
	assert.False(t, c.Active(HardPause, epoch.Add(1500*time.Millisecond)))

	guard := c.Open(GestureGuard, epoch, time.Second)
	c.Release(guard)
	assert.False(t, c.Active(GestureGuard, epoch))
	assert.True(t, c.Active(HardPause, epoch), "releasing one window leaves the others")
}

func TestClock_CommandTokens(t *testing.T) {
	c := NewClock()
	assert.Equal(t, IntentUnset, c.Intent())

	first := c.Command(IntentPlaying)
	assert.True(t, c.Current(first))
	assert.Equal(t, IntentPlaying, c.Intent())

	c.Open(GestureGuard, epoch, time.Second)
	assert.True(t, c.Current(first), "opening a window does not supersede the command")

	second := c.Command(IntentPaused)
	assert.False(t, c.Current(first))
	assert.True(t, c.Current(second))
	assert.Greater(t, second, first)
}

func TestClock_GestureFresh(t *testing.T) {
	c := NewClock()
	assert.False(t, c.GestureFresh(epoch, 800*time.Millisecond))

	c.RecordGesture(epoch)
	assert.True(t, c.GestureFresh(epoch.Add(800*time.Millisecond), 800*time.Millisecond))
	assert.False(t, c.GestureFresh(epoch.Add(801*time.Millisecond), 800*time.Millisecond))
}

func TestClock_HardPauseFreshestCommandWins(t *testing.T) {
	t.Run("play after hard pause bypasses it", func(t *testing.T) {
		c := NewClock()
		c.Command(IntentPaused)
		c.Open(HardPause, epoch, 1500*time.Millisecond)
		require.True(t, c.HardPauseBlocks(epoch))

		c.Command(IntentPlaying)
		assert.False(t, c.HardPauseBlocks(epoch))
	})

	t.Run("hard pause after play outranks it", func(t *testing.T) {
		c := NewClock()
		c.Command(IntentPlaying)
		c.Open(HardPause, epoch, 1500*time.Millisecond)
		assert.True(t, c.HardPauseBlocks(epoch))
		assert.False(t, c.HardPauseBlocks(epoch.Add(1500*time.Millisecond)))
	})

	t.Run("unset intent is blocked", func(t *testing.T) {
		c := NewClock()
		c.Open(HardPause, epoch, time.Second)
		assert.True(t, c.HardPauseBlocks(epoch))
	})
}

func TestClock_HoldUntilReleased(t *testing.T) {
	c := NewClock()
	c.Command(IntentPlaying)
	held := c.Hold(HardPause)
	timed := c.Open(HardPause, epoch, time.Second)

	assert.Equal(t, time.Second, c.Remaining(HardPause, epoch), "held windows have no remaining time")
	c.Release(timed)
	require.Len(t, c.Windows(epoch), 1)
	assert.Equal(t, held.OpenedSeq, c.Windows(epoch)[0].OpenedSeq)

	far := epoch.Add(time.Hour)
	assert.True(t, c.Active(HardPause, far))
	assert.True(t, c.HardPauseBlocks(far), "hold outranks the older play")

	c.Release(held)
	assert.False(t, c.Active(HardPause, far))
}
