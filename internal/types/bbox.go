// Package types holds small value types shared across packages.
package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// BoundingBox represents a geographic bounding box in WGS84 (EPSG:4326)
type BoundingBox struct {
	MinLon float64 // Western edge (degrees)
	MinLat float64 // Southern edge (degrees)
	MaxLon float64 // Eastern edge (degrees)
	MaxLat float64 // Northern edge (degrees)
}

// ParseBoundingBox parses "minLon,minLat,maxLon,maxLat".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var v [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		v[i] = val
	}

	b := BoundingBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate checks the edge ordering and coordinate ranges.
func (b BoundingBox) Validate() error {
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("bbox %s is outside WGS84 range", b)
	}
	return nil
}

// String returns a human-readable representation of the bounding box
func (b BoundingBox) String() string {
	return fmt.Sprintf("bbox(%.6f,%.6f,%.6f,%.6f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Center returns the center point of the bounding box
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Width returns the width of the bounding box in degrees
func (b BoundingBox) Width() float64 {
	return b.MaxLon - b.MinLon
}

// Height returns the height of the bounding box in degrees
func (b BoundingBox) Height() float64 {
	return b.MaxLat - b.MinLat
}

// Bound converts to an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// FromBound converts an orb.Bound.
func FromBound(bound orb.Bound) BoundingBox {
	return BoundingBox{
		MinLon: bound.Min.Lon(),
		MinLat: bound.Min.Lat(),
		MaxLon: bound.Max.Lon(),
		MaxLat: bound.Max.Lat(),
	}
}

// Tiles lists the web mercator tiles at zoom that cover the box, row by row
// from the north-west corner.
func (b BoundingBox) Tiles(zoom maptile.Zoom) []maptile.Tile {
	nw := maptile.At(orb.Point{b.MinLon, b.MaxLat}, zoom)
	se := maptile.At(orb.Point{b.MaxLon, b.MinLat}, zoom)

	tiles := make([]maptile.Tile, 0, int(se.X-nw.X+1)*int(se.Y-nw.Y+1))
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// TileBox returns the geographic box of t clipped to b.
func (b BoundingBox) TileBox(t maptile.Tile) BoundingBox {
	tb := t.Bound()
	return BoundingBox{
		MinLon: max(b.MinLon, tb.Min.Lon()),
		MinLat: max(b.MinLat, tb.Min.Lat()),
		MaxLon: min(b.MaxLon, tb.Max.Lon()),
		MaxLat: min(b.MaxLat, tb.Max.Lat()),
	}
}
