package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyViewport(t *testing.T) {
	bp := DefaultBreakpoints()
	tests := []struct {
		width int
		want  DeviceClass
	}{
		{width: 320, want: DeviceMobile},
		{width: 767, want: DeviceMobile},
		{width: 768, want: DeviceTablet},
		{width: 1023, want: DeviceTablet},
		{width: 1024, want: DeviceDesktop},
		{width: 2560, want: DeviceDesktop},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyViewport(tt.width, bp), "width %d", tt.width)
	}
}

func TestShowSecondary(t *testing.T) {
	tests := []struct {
		name      string
		device    DeviceClass
		overlays  Overlay
		dismissed bool
		want      bool
	}{
		{name: "desktop never", device: DeviceDesktop, overlays: OverlayChat, want: false},
		{name: "mobile chat", device: DeviceMobile, overlays: OverlayChat, want: true},
		{name: "tablet human chat", device: DeviceTablet, overlays: OverlayHumanChat, want: true},
		{name: "mobile form", device: DeviceMobile, overlays: OverlayForm, want: true},
		{name: "mobile no overlay", device: DeviceMobile, overlays: 0, want: false},
		{name: "modal hides", device: DeviceMobile, overlays: OverlayChat | OverlayModal, want: false},
		{name: "orientation hides", device: DeviceMobile, overlays: OverlayForm | OverlayOrientationWarning, want: false},
		{name: "modal alone", device: DeviceMobile, overlays: OverlayModal, want: false},
		{name: "dismissed", device: DeviceMobile, overlays: OverlayChat, dismissed: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShowSecondary(tt.device, tt.overlays, tt.dismissed))
		})
	}
}

func TestVisibility_Update(t *testing.T) {
	v := NewVisibility()
	assert.Equal(t, Primary, v.Target())

	change := v.Update(DeviceMobile, OverlayChat)
	assert.True(t, change.Changed)
	assert.Equal(t, Secondary, v.Target())

	assert.False(t, v.Update(DeviceMobile, OverlayChat).Changed, "identical context is a no-op")

	assert.True(t, v.Dismiss())
	assert.Equal(t, Primary, v.Target())
	v.Update(DeviceMobile, OverlayChat|OverlayForm)
	assert.True(t, v.Dismissed(), "dismissal survives while overlays stay open")

	v.Update(DeviceMobile, 0)
	assert.False(t, v.Dismissed(), "closing every overlay clears the dismissal")

	v.Update(DeviceMobile, OverlayForm)
	assert.Equal(t, Secondary, v.Target())
}

func TestVisibility_DismissWithoutOverlayIsIgnored(t *testing.T) {
	v := NewVisibility()
	v.Update(DeviceMobile, 0)

	assert.False(t, v.Dismiss())
	assert.False(t, v.Dismissed())

	v.Update(DeviceMobile, OverlayChat)
	assert.Equal(t, Secondary, v.Target(), "an earlier dismissal must not hide the next overlay")
}

func TestVisibility_OrientationEdges(t *testing.T) {
	v := NewVisibility()
	change := v.Update(DeviceMobile, OverlayOrientationWarning)
	assert.True(t, change.OrientationActivated)
	assert.True(t, v.OrientationWarning())

	change = v.Update(DeviceMobile, OverlayOrientationWarning|OverlayChat)
	assert.False(t, change.OrientationActivated)
	assert.False(t, change.OrientationCleared)

	change = v.Update(DeviceMobile, OverlayChat)
	assert.True(t, change.OrientationCleared)
}

func TestParseOverlays(t *testing.T) {
	set, err := ParseOverlays([]string{"chat", " Modal ", ""})
	require.NoError(t, err)
	assert.True(t, set.Has(OverlayChat|OverlayModal))
	assert.Equal(t, []string{"chat", "modal"}, set.Names())
	assert.Equal(t, "chat,modal", set.String())

	_, err = ParseOverlays([]string{"chat", "popup"})
	assert.ErrorContains(t, err, "popup")

	assert.Equal(t, "none", Overlay(0).String())
}

func TestParseDeviceClass(t *testing.T) {
	d, err := ParseDeviceClass("Tablet")
	require.NoError(t, err)
	assert.Equal(t, DeviceTablet, d)

	_, err = ParseDeviceClass("watch")
	assert.Error(t, err)
}
