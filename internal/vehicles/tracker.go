package vehicles

import (
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/MeKo-Tech/selectmap/internal/geo"
)

// DefaultAnimationDuration is the time to glide from the previous to the
// current snapshot.
const DefaultAnimationDuration = 4500 * time.Millisecond

// Window is the interpolation window opened by the latest snapshot.
type Window struct {
	Start    time.Time
	Duration time.Duration
}

// Progress returns the eased interpolation factor at now, in [0, 1].
func (w Window) Progress(now time.Time) float64 {
	if w.Duration <= 0 {
		return 1
	}
	t := float64(now.Sub(w.Start)) / float64(w.Duration)
	return Smoothstep(min(max(t, 0), 1))
}

// Smoothstep eases t with t²(3−2t).
func Smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

// Position is an interpolated vehicle position inside the selection.
type Position struct {
	ID      string
	Lon     float64
	Lat     float64
	Bearing *float64
	Speed   *float64
	RouteID string
	TripID  string
}

// Point returns the position as an orb point.
func (p Position) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Tracker keeps the previous and current snapshot generations and
// interpolates between them.
type Tracker struct {
	mu       sync.RWMutex
	previous *Snapshot
	current  *Snapshot
	window   Window
}

// NewTracker creates a tracker with the given animation duration. Zero uses
// DefaultAnimationDuration.
func NewTracker(duration time.Duration) *Tracker {
	if duration == 0 {
		duration = DefaultAnimationDuration
	}
	return &Tracker{
		previous: NewSnapshot(nil),
		current:  NewSnapshot(nil),
		window:   Window{Duration: duration},
	}
}

// Apply rotates the generations and restarts the window at now.
func (t *Tracker) Apply(s *Snapshot, now time.Time) {
	if s == nil {
		s = NewSnapshot(nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.previous = t.current
	t.current = s
	t.window.Start = now
}

// Generations returns the previous and current snapshots.
func (t *Tracker) Generations() (previous, current *Snapshot) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.previous, t.current
}

// Window returns the active interpolation window.
func (t *Tracker) Window() Window {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.window
}

// Frame interpolates every current vehicle at now and keeps those inside
// poly, boundary included. Vehicles only present in the previous
// generation are dropped. An empty or zero-area polygon yields no
// positions.
func (t *Tracker) Frame(now time.Time, poly orb.Polygon) []Position {
	if !geo.Usable(poly, geo.DefaultMinArea) {
		return nil
	}

	t.mu.RLock()
	previous, current, window := t.previous, t.current, t.window
	t.mu.RUnlock()

	f := window.Progress(now)
	positions := make([]Position, 0, current.Len())
	for _, id := range current.ids {
		curr := current.vehicles[id]
		prev, ok := previous.Get(id)
		if !ok {
			prev = curr
		}

		p := Position{
			ID:      id,
			Lon:     prev.Lon + (curr.Lon-prev.Lon)*f,
			Lat:     prev.Lat + (curr.Lat-prev.Lat)*f,
			Bearing: curr.Bearing,
			Speed:   curr.Speed,
			RouteID: curr.RouteID,
			TripID:  curr.TripID,
		}
		if !planar.PolygonContains(poly, p.Point()) {
			continue
		}
		positions = append(positions, p)
	}
	return positions
}
