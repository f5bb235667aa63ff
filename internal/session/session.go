// Package session holds the interactive state of one map view: the
// selection gesture, the matched buildings, and the vehicle overlay.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/selectmap/internal/buildings"
	"github.com/MeKo-Tech/selectmap/internal/geojson"
	"github.com/MeKo-Tech/selectmap/internal/selection"
	"github.com/MeKo-Tech/selectmap/internal/vehicles"
)

// ErrNoDataset is returned by Build when no building dataset is loaded.
var ErrNoDataset = errors.New("building dataset is not loaded")

// Camera is the view state reported by the client.
type Camera struct {
	Center  orb.Point `json:"center"`
	Zoom    float64   `json:"zoom"`
	Pitch   float64   `json:"pitch"`
	Bearing float64   `json:"bearing"`
}

// Visibility holds the layer toggles. A hidden layer renders as an empty
// source; the underlying state is kept.
type Visibility struct {
	Selection bool `json:"selection"`
	Buildings bool `json:"buildings"`
	Vehicles  bool `json:"vehicles"`
}

// VisibilityUpdate changes the toggles that are set.
type VisibilityUpdate struct {
	Selection *bool `json:"selection,omitempty"`
	Buildings *bool `json:"buildings,omitempty"`
	Vehicles  *bool `json:"vehicles,omitempty"`
}

// State is a read-only summary of the session.
type State struct {
	Selection       selection.Snapshot `json:"selection"`
	Usable          bool               `json:"usable"`
	Camera          Camera             `json:"camera"`
	PanEnabled      bool               `json:"pan_enabled"`
	Cursor          string             `json:"cursor"`
	Visibility      Visibility         `json:"visibility"`
	VehiclesEnabled bool               `json:"vehicles_enabled"`
	Dataset         int                `json:"dataset"`
	Buildings       int                `json:"buildings"`
	Highlighted     string             `json:"highlighted,omitempty"`
}

// Config configures a Session.
type Config struct {
	Dataset *buildings.Dataset
	Matcher *buildings.Matcher
	Tracker *vehicles.Tracker
	Camera  Camera
	MinArea float64
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// surface records what the selection tool asks of the map view.
type surface struct {
	camera     *Camera
	panEnabled bool
	cursor     string
}

func (s *surface) Bearing() float64           { return s.camera.Bearing }
func (s *surface) SetPanEnabled(enabled bool) { s.panEnabled = enabled }
func (s *surface) SetCursor(cursor string)    { s.cursor = cursor }

// Session serialises every operation behind one mutex.
type Session struct {
	mu sync.Mutex

	camera  Camera
	surface *surface
	tool    *selection.Tool

	dataset *buildings.Dataset
	matcher *buildings.Matcher
	tracker *vehicles.Tracker
	clock   clockwork.Clock
	logger  *slog.Logger

	built           []buildings.Building
	highlighted     string
	vehiclesEnabled bool
	visibility      Visibility
}

// New creates an idle session. Nil collaborators degrade to an empty
// dataset and no vehicles.
func New(cfg Config) *Session {
	if cfg.Matcher == nil {
		cfg.Matcher = buildings.NewMatcher(buildings.DefaultConfig())
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		camera:     cfg.Camera,
		dataset:    cfg.Dataset,
		matcher:    cfg.Matcher,
		tracker:    cfg.Tracker,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		visibility: Visibility{Selection: true, Buildings: true, Vehicles: true},
	}
	s.surface = &surface{camera: &s.camera, panEnabled: true}

	opts := []selection.Option{selection.WithLogger(cfg.Logger)}
	if cfg.MinArea > 0 {
		opts = append(opts, selection.WithMinArea(cfg.MinArea))
	}
	s.tool = selection.NewTool(s.surface, opts...)
	return s
}

// SetCamera replaces the camera state. A drag in progress keeps the bearing
// it started with.
func (s *Session) SetCamera(c Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = c
}

// Camera returns the camera state.
func (s *Session) Camera() Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// Arm prepares the next primary press to start a selection.
func (s *Session) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool.Arm()
}

// PointerDown forwards a press at lngLat.
func (s *Session) PointerDown(button selection.Button, lngLat orb.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool.Press(button, lngLat)
}

// PointerMove forwards a pointer movement to lngLat.
func (s *Session) PointerMove(lngLat orb.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool.Move(lngLat)
}

// PointerUp forwards a release.
func (s *Session) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool.Release()
}

// SurfaceReset handles a style reload of the map view.
func (s *Session) SurfaceReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool.SurfaceReset()
}

// Clear drops the selection, the built buildings and the vehicle overlay.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tool.Clear()
	s.built = nil
	s.highlighted = ""
	s.vehiclesEnabled = false
	s.logger.Info("selection, buildings and vehicles cleared")
}

// Build matches the dataset against the current selection, caches the
// result and enables the vehicle overlay. Without a dataset or a usable
// selection it changes nothing and returns ErrNoDataset or
// buildings.ErrNoUsableSelection.
func (s *Session) Build(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataset.Len() == 0 {
		s.logger.Warn("build skipped, buildings not loaded")
		return 0, ErrNoDataset
	}
	if !s.tool.Usable() {
		s.logger.Warn("build skipped, no usable selection rectangle")
		return 0, buildings.ErrNoUsableSelection
	}

	matched, err := s.matcher.Match(ctx, s.dataset, s.tool.Polygon())
	if err != nil {
		return 0, fmt.Errorf("failed to match buildings: %w", err)
	}

	s.built = matched
	s.highlighted = ""
	s.vehiclesEnabled = true
	s.logger.Info("buildings built", "count", len(matched))
	return len(matched), nil
}

// Buildings returns the cached match result.
func (s *Session) Buildings() []buildings.Building {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.built)
}

// BuildingAt highlights the topmost built footprint covering p. A point
// outside every footprint clears the highlight.
func (s *Session) BuildingAt(p orb.Point) (buildings.Building, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.built) - 1; i >= 0; i-- {
		if s.built[i].Contains(p) {
			s.highlighted = s.built[i].StableID
			return s.built[i], true
		}
	}
	s.highlighted = ""
	return buildings.Building{}, false
}

// SetVisibility applies the set toggles and returns the result.
func (s *Session) SetVisibility(u VisibilityUpdate) Visibility {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Selection != nil {
		s.visibility.Selection = *u.Selection
	}
	if u.Buildings != nil {
		s.visibility.Buildings = *u.Buildings
	}
	if u.Vehicles != nil {
		s.visibility.Vehicles = *u.Vehicles
	}
	return s.visibility
}

// Frame returns the vehicle positions to draw now. It is empty unless
// buildings were built, vehicles are visible and the selection is usable.
func (s *Session) Frame() []vehicles.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

func (s *Session) frameLocked() []vehicles.Position {
	if s.tracker == nil || !s.vehiclesEnabled || !s.visibility.Vehicles || !s.tool.Usable() {
		return nil
	}
	return s.tracker.Frame(s.clock.Now(), s.tool.Polygon())
}

// Source renders a named display source. Hidden layers render empty.
func (s *Session) Source(name geojson.SourceName) (*orbjson.FeatureCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case geojson.SourceSelection:
		if !s.visibility.Selection {
			return geojson.SelectionToGeoJSON(nil), nil
		}
		return geojson.SelectionToGeoJSON(s.tool.Ring()), nil
	case geojson.SourceBuildings:
		if !s.visibility.Buildings {
			return geojson.BuildingsToGeoJSON(nil), nil
		}
		return geojson.BuildingsToGeoJSON(s.built), nil
	case geojson.SourceVehicles:
		return geojson.PositionsToGeoJSON(s.frameLocked()), nil
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}

// State summarises the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Selection:       s.tool.Snapshot(),
		Usable:          s.tool.Usable(),
		Camera:          s.camera,
		PanEnabled:      s.surface.panEnabled,
		Cursor:          s.surface.cursor,
		Visibility:      s.visibility,
		VehiclesEnabled: s.vehiclesEnabled,
		Dataset:         s.dataset.Len(),
		Buildings:       len(s.built),
		Highlighted:     s.highlighted,
	}
}
