package coordinator

import (
	"fmt"
	"sort"
	"strings"
)

// DeviceClass is the viewport class derived from width
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceTablet  DeviceClass = "tablet"
	DeviceMobile  DeviceClass = "mobile"
)

// ParseDeviceClass parses a device class name
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch DeviceClass(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceDesktop:
		return DeviceDesktop, nil
	case DeviceTablet:
		return DeviceTablet, nil
	case DeviceMobile:
		return DeviceMobile, nil
	}
	return "", fmt.Errorf("unknown device class %q", s)
}

// Breakpoints are the viewport widths separating device classes
type Breakpoints struct {
	// Mobile is the first width that is no longer mobile
	Mobile int
	// Tablet is the first width that is desktop
	Tablet int
}

// DefaultBreakpoints returns the standard breakpoints
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{Mobile: 768, Tablet: 1024}
}

// ClassifyViewport maps a viewport width to a device class
func ClassifyViewport(width int, bp Breakpoints) DeviceClass {
	switch {
	case width < bp.Mobile:
		return DeviceMobile
	case width < bp.Tablet:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// Overlay is a UI layer that can cover the primary surface
type Overlay uint8

const (
	OverlayChat Overlay = 1 << iota
	OverlayHumanChat
	OverlayForm
	OverlayModal
	OverlayOrientationWarning
)

var overlayNames = []struct {
	overlay Overlay
	name    string
}{
	{OverlayChat, "chat"},
	{OverlayHumanChat, "human_chat"},
	{OverlayForm, "form"},
	{OverlayModal, "modal"},
	{OverlayOrientationWarning, "orientation_warning"},
}

// Has reports whether every overlay in o is set
func (s Overlay) Has(o Overlay) bool {
	return s&o == o
}

// Any reports whether at least one overlay in o is set
func (s Overlay) Any(o Overlay) bool {
	return s&o != 0
}

// Names returns the set overlays by name
func (s Overlay) Names() []string {
	names := []string{}
	for _, entry := range overlayNames {
		if s.Has(entry.overlay) {
			names = append(names, entry.name)
		}
	}
	return names
}

// String returns the string representation of the overlay set
func (s Overlay) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), ",")
}

// ParseOverlays builds a set from overlay names
func ParseOverlays(names []string) (Overlay, error) {
	var set Overlay
	var unknown []string
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, entry := range overlayNames {
			if entry.name == name {
				set |= entry.overlay
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return set, fmt.Errorf("unknown overlays: %s", strings.Join(unknown, ", "))
	}
	return set, nil
}

const (
	conversational = OverlayChat | OverlayHumanChat | OverlayForm
	obscuring      = OverlayModal | OverlayOrientationWarning
)

// ShowSecondary is the visibility decision. The secondary surface is shown on
// small viewports while a conversational overlay covers the primary, unless a
// modal or the orientation warning is up or the user dismissed it.
func ShowSecondary(device DeviceClass, overlays Overlay, dismissed bool) bool {
	return device != DeviceDesktop &&
		overlays.Any(conversational) &&
		!overlays.Any(obscuring) &&
		!dismissed
}

// ContextChange describes what an update changed
type ContextChange struct {
	Changed              bool
	OrientationActivated bool
	OrientationCleared   bool
}

// Visibility tracks the viewing context. It is owned by the coordinator loop.
type Visibility struct {
	device    DeviceClass
	overlays  Overlay
	dismissed bool
}

// NewVisibility starts on a desktop viewport with no overlays
func NewVisibility() *Visibility {
	return &Visibility{device: DeviceDesktop}
}

// Update replaces the context. Identical input changes nothing.
func (v *Visibility) Update(device DeviceClass, overlays Overlay) ContextChange {
	if device == v.device && overlays == v.overlays {
		return ContextChange{}
	}
	wasWarning := v.overlays.Has(OverlayOrientationWarning)
	isWarning := overlays.Has(OverlayOrientationWarning)

	v.device = device
	v.overlays = overlays
	if overlays == 0 {
		v.dismissed = false
	}
	return ContextChange{
		Changed:              true,
		OrientationActivated: !wasWarning && isWarning,
		OrientationCleared:   wasWarning && !isWarning,
	}
}

// Dismiss hides the secondary surface until every overlay closes. With no
// overlay open there is nothing to dismiss and it reports false.
func (v *Visibility) Dismiss() bool {
	if v.overlays == 0 {
		return false
	}
	v.dismissed = true
	return true
}

// Undismiss clears a previous dismissal
func (v *Visibility) Undismiss() {
	v.dismissed = false
}

// Dismissed reports whether the user hid the secondary surface
func (v *Visibility) Dismissed() bool {
	return v.dismissed
}

// Device returns the current device class
func (v *Visibility) Device() DeviceClass {
	return v.device
}

// Overlays returns the current overlay set
func (v *Visibility) Overlays() Overlay {
	return v.overlays
}

// OrientationWarning reports whether the orientation warning is up
func (v *Visibility) OrientationWarning() bool {
	return v.overlays.Has(OverlayOrientationWarning)
}

// Target returns the surface that should be visible
func (v *Visibility) Target() SurfaceKind {
	if ShowSecondary(v.device, v.overlays, v.dismissed) {
		return Secondary
	}
	return Primary
}
