package types

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestParseBoundingBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    BoundingBox
		wantErr bool
	}{
		{
			name:  "valid",
			input: "18.05,59.31,18.09,59.34",
			want:  BoundingBox{MinLon: 18.05, MinLat: 59.31, MaxLon: 18.09, MaxLat: 59.34},
		},
		{
			name:  "spaces",
			input: " 18.05 , 59.31 , 18.09 , 59.34 ",
			want:  BoundingBox{MinLon: 18.05, MinLat: 59.31, MaxLon: 18.09, MaxLat: 59.34},
		},
		{name: "too few values", input: "1,2,3", wantErr: true},
		{name: "not a number", input: "a,2,3,4", wantErr: true},
		{name: "lon inverted", input: "18.09,59.31,18.05,59.34", wantErr: true},
		{name: "lat inverted", input: "18.05,59.34,18.09,59.31", wantErr: true},
		{name: "out of range", input: "-190,0,10,10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBoundingBox(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBoundingBoxBoundRoundTrip(t *testing.T) {
	b := BoundingBox{MinLon: 18.05, MinLat: 59.31, MaxLon: 18.09, MaxLat: 59.34}

	bound := b.Bound()
	if bound.Min != (orb.Point{18.05, 59.31}) || bound.Max != (orb.Point{18.09, 59.34}) {
		t.Fatalf("unexpected bound: %+v", bound)
	}
	if FromBound(bound) != b {
		t.Fatalf("round trip mismatch: %+v", FromBound(bound))
	}

	lat, lon := b.Center()
	if lat != (59.31+59.34)/2 || lon != (18.05+18.09)/2 {
		t.Errorf("unexpected center %v,%v", lat, lon)
	}
}

func TestBoundingBoxTiles(t *testing.T) {
	b := BoundingBox{MinLon: 18.05, MinLat: 59.31, MaxLon: 18.09, MaxLat: 59.34}

	tiles := b.Tiles(13)
	if len(tiles) == 0 {
		t.Fatal("expected tiles")
	}

	covered := tiles[0].Bound()
	for _, tile := range tiles {
		if tile.Z != maptile.Zoom(13) {
			t.Fatalf("unexpected zoom %d", tile.Z)
		}
		covered = covered.Union(tile.Bound())

		clipped := b.TileBox(tile)
		if clipped.MinLon < b.MinLon || clipped.MaxLon > b.MaxLon ||
			clipped.MinLat < b.MinLat || clipped.MaxLat > b.MaxLat {
			t.Errorf("tile box %s escapes %s", clipped, b)
		}
	}

	if !covered.Contains(orb.Point{b.MinLon, b.MinLat}) || !covered.Contains(orb.Point{b.MaxLon, b.MaxLat}) {
		t.Errorf("tiles %v do not cover %s", covered, b)
	}

	if got := b.Tiles(0); len(got) != 1 {
		t.Errorf("expected a single tile at zoom 0, got %d", len(got))
	}
}
