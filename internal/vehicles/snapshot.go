package vehicles

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// ErrMissingVehicles is returned when a feed payload has no vehicles array.
var ErrMissingVehicles = errors.New("feed payload has no vehicles")

// Vehicle is one entity position as reported by the feed.
type Vehicle struct {
	ID      string   `json:"id"`
	Lon     float64  `json:"lon"`
	Lat     float64  `json:"lat"`
	Bearing *float64 `json:"bearing,omitempty"`
	Speed   *float64 `json:"speed,omitempty"`
	RouteID string   `json:"routeId,omitempty"`
	TripID  string   `json:"tripId,omitempty"`
}

// Snapshot is one immutable generation of vehicle positions keyed by id.
type Snapshot struct {
	vehicles  map[string]Vehicle
	ids       []string
	discarded int
}

// NewSnapshot indexes vehicles by id. A later entry replaces an earlier one
// with the same id.
func NewSnapshot(vehicles []Vehicle) *Snapshot {
	s := &Snapshot{vehicles: make(map[string]Vehicle, len(vehicles))}
	for _, v := range vehicles {
		s.vehicles[v.ID] = v
	}
	s.ids = make([]string, 0, len(s.vehicles))
	for id := range s.vehicles {
		s.ids = append(s.ids, id)
	}
	slices.Sort(s.ids)
	return s
}

// Len returns the number of vehicles. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.vehicles)
}

// Get returns the vehicle with the given id.
func (s *Snapshot) Get(id string) (Vehicle, bool) {
	if s == nil {
		return Vehicle{}, false
	}
	v, ok := s.vehicles[id]
	return v, ok
}

// IDs returns the vehicle ids in ascending order.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.ids)
}

// Discarded reports how many feed entries were dropped while decoding.
func (s *Snapshot) Discarded() int {
	if s == nil {
		return 0
	}
	return s.discarded
}

// DecodeFeed parses a {"vehicles": [...]} payload. Entries without numeric
// lon/lat are discarded. Entries without an id are keyed "lon,lat".
func DecodeFeed(data []byte) (*Snapshot, error) {
	var payload struct {
		Vehicles *[]json.RawMessage `json:"vehicles"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode vehicle feed: %w", err)
	}
	if payload.Vehicles == nil {
		return nil, ErrMissingVehicles
	}

	entries := *payload.Vehicles
	vehicles := make([]Vehicle, 0, len(entries))
	discarded := 0
	for _, raw := range entries {
		v, ok := decodeVehicle(raw)
		if !ok {
			discarded++
			continue
		}
		vehicles = append(vehicles, v)
	}

	s := NewSnapshot(vehicles)
	s.discarded = discarded
	return s, nil
}

func decodeVehicle(raw json.RawMessage) (Vehicle, bool) {
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
		return Vehicle{}, false
	}

	lon, ok := finite(entry["lon"])
	if !ok {
		return Vehicle{}, false
	}
	lat, ok := finite(entry["lat"])
	if !ok {
		return Vehicle{}, false
	}

	v := Vehicle{
		ID:      identifier(entry["id"]),
		Lon:     lon,
		Lat:     lat,
		RouteID: identifier(entry["routeId"]),
		TripID:  identifier(entry["tripId"]),
	}
	if v.ID == "" {
		v.ID = formatNumber(lon) + "," + formatNumber(lat)
	}
	if b, ok := finite(entry["bearing"]); ok {
		v.Bearing = &b
	}
	if sp, ok := finite(entry["speed"]); ok {
		v.Speed = &sp
	}
	return v, true
}

func finite(value any) (float64, bool) {
	f, ok := value.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// identifier renders string and numeric ids. Zero and empty values count
// as absent.
func identifier(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == 0 {
			return ""
		}
		return formatNumber(v)
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
