// Package selection implements the drag gesture that turns pointer input and
// the camera bearing into a camera-aligned rectangle.
package selection

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/MeKo-Tech/selectmap/internal/geo"
)

// DefaultMinArea is the smallest usable ring area.
const DefaultMinArea = geo.DefaultMinArea

// Cursor values passed to the surface.
const (
	CursorDefault   = ""
	CursorCrosshair = "crosshair"
)

// Button identifies a pointer button.
type Button int

// PrimaryButton is the only button that starts a drag.
const PrimaryButton Button = 0

// State is the gesture state.
type State int

const (
	Idle State = iota
	Armed
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{Idle, Armed, Dragging} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown selection state %q", text)
}

// Surface is the part of the map view the tool drives.
type Surface interface {
	Bearing() float64
	SetPanEnabled(enabled bool)
	SetCursor(cursor string)
}

// Snapshot is a read-only copy of the tool state.
type Snapshot struct {
	State   State      `json:"state"`
	Anchor  *orb.Point `json:"anchor,omitempty"`
	Bearing float64    `json:"bearing"`
	Ring    orb.Ring   `json:"ring,omitempty"`
}

// Tool is the selection state machine. It is not safe for concurrent use;
// the owning session serialises calls.
type Tool struct {
	surface Surface
	minArea float64
	logger  *slog.Logger

	state   State
	anchor  orb.Point
	bearing float64
	basis   geo.Basis

	ring    orb.Ring
	polygon orb.Polygon
}

// Option configures a Tool.
type Option func(*Tool)

// WithMinArea overrides DefaultMinArea.
func WithMinArea(minArea float64) Option {
	return func(t *Tool) {
		if minArea > 0 {
			t.minArea = minArea
		}
	}
}

// WithLogger sets the logger used for gesture events.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tool) {
		t.logger = logger
	}
}

// NewTool creates an idle tool bound to surface.
func NewTool(surface Surface, opts ...Option) *Tool {
	t := &Tool{
		surface: surface,
		minArea: DefaultMinArea,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the current gesture state.
func (t *Tool) State() State {
	return t.state
}

// Arm waits for the next primary press. Arming during a drag drops the
// preview and gives panning back to the camera.
func (t *Tool) Arm() {
	if t.state == Dragging {
		t.discard()
		t.surface.SetPanEnabled(true)
		t.surface.SetCursor(CursorDefault)
	}
	t.state = Armed
}

// Press starts a drag at lngLat. Only the primary button while armed does
// anything.
func (t *Tool) Press(button Button, lngLat orb.Point) {
	if t.state != Armed || button != PrimaryButton {
		return
	}

	t.anchor = lngLat
	t.bearing = t.surface.Bearing()
	t.basis = geo.NewBasis(lngLat, t.bearing)
	t.discard()

	t.surface.SetPanEnabled(false)
	t.surface.SetCursor(CursorCrosshair)
	t.state = Dragging
}

// Move rebuilds the preview rectangle from the anchor to lngLat.
func (t *Tool) Move(lngLat orb.Point) {
	if t.state != Dragging {
		return
	}

	a, b := t.basis.Project(t.anchor, lngLat)
	ring := t.basis.Corners(t.anchor, a, b)

	t.ring = ring
	t.polygon = orb.Polygon{ring}
}

// Release ends the drag and commits whatever ring the last move produced.
func (t *Tool) Release() {
	if t.state != Dragging {
		return
	}

	t.state = Idle
	t.surface.SetPanEnabled(true)
	t.surface.SetCursor(CursorDefault)

	if t.ring == nil {
		t.log().Debug("drag released without movement")
		return
	}

	t.log().Info("selection committed",
		"width_m", fmt.Sprintf("%.1f", orbgeo.Distance(t.ring[0], t.ring[1])),
		"depth_m", fmt.Sprintf("%.1f", orbgeo.Distance(t.ring[0], t.ring[3])),
		"bearing", t.bearing,
		"usable", t.Usable(),
	)
}

// Clear drops every piece of selection state.
func (t *Tool) Clear() {
	t.discard()
	t.anchor = orb.Point{}
	t.bearing = 0
	t.basis = geo.Basis{}
	t.state = Idle
	t.surface.SetPanEnabled(true)
	t.surface.SetCursor(CursorDefault)
}

// SurfaceReset handles the map surface being rebuilt. An in-progress drag is
// aborted without committing its preview.
func (t *Tool) SurfaceReset() {
	switch t.state {
	case Dragging:
		t.discard()
		t.state = Idle
		t.surface.SetPanEnabled(true)
		t.surface.SetCursor(CursorDefault)
		t.log().Debug("drag aborted by surface reset")
	case Armed:
		t.state = Idle
	}
}

// Ring returns the current ring, or nil.
func (t *Tool) Ring() orb.Ring {
	return t.ring
}

// Polygon returns the current selection polygon, or nil.
func (t *Tool) Polygon() orb.Polygon {
	return t.polygon
}

// Usable reports whether the current polygon encloses a non-degenerate area.
func (t *Tool) Usable() bool {
	return geo.Usable(t.polygon, t.minArea)
}

// Snapshot copies the tool state.
func (t *Tool) Snapshot() Snapshot {
	s := Snapshot{
		State:   t.state,
		Bearing: t.bearing,
	}
	if t.ring != nil {
		s.Ring = t.ring.Clone()
	}
	if t.ring != nil || t.state == Dragging {
		anchor := t.anchor
		s.Anchor = &anchor
	}
	return s
}

func (t *Tool) discard() {
	t.ring = nil
	t.polygon = nil
}

func (t *Tool) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}
