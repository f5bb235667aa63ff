package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

const tol = 1e-12

func TestBasisFromBearingIsOrthonormal(t *testing.T) {
	for _, bearing := range []float64{-180, -135, -60, -0.5, 0, 17.3, 45, 90, 179.9, 360, 725} {
		u, v := BasisFromBearing(bearing)
		require.InDelta(t, 0, u.Dot(v), tol, "bearing %v", bearing)
		require.InDelta(t, 1, u.Len(), tol, "bearing %v", bearing)
		require.InDelta(t, 1, v.Len(), tol, "bearing %v", bearing)
		// V is U rotated counter-clockwise.
		require.InDelta(t, 1, u.X*v.Y-u.Y*v.X, tol, "bearing %v", bearing)
	}
}

func TestBasisFromBearingCardinal(t *testing.T) {
	tests := []struct {
		bearing float64
		u, v    Vec
	}{
		{0, Vec{0, 1}, Vec{-1, 0}},
		{90, Vec{1, 0}, Vec{0, 1}},
		{180, Vec{0, -1}, Vec{1, 0}},
		{-90, Vec{-1, 0}, Vec{0, -1}},
	}

	for _, tt := range tests {
		u, v := BasisFromBearing(tt.bearing)
		require.InDelta(t, tt.u.X, u.X, tol)
		require.InDelta(t, tt.u.Y, u.Y, tol)
		require.InDelta(t, tt.v.X, v.X, tol)
		require.InDelta(t, tt.v.Y, v.Y, tol)
	}
}

func TestToLocalToGeoRoundTrip(t *testing.T) {
	anchor := orb.Point{18.0686, 59.3293}
	points := []orb.Point{
		{18.0686, 59.3293},
		{18.07, 59.33},
		{18.05, 59.31},
		{-3.2, 40.1},
	}

	for _, p := range points {
		back := ToGeo(anchor, ToLocal(anchor, p))
		require.InDelta(t, p.Lon(), back.Lon(), 1e-9)
		require.InDelta(t, p.Lat(), back.Lat(), 1e-9)
	}
}

func TestToLocalScalesLongitude(t *testing.T) {
	anchor := orb.Point{18, 60}
	d := ToLocal(anchor, orb.Point{18.002, 60.001})

	require.InDelta(t, 0.001, d.X, 1e-9) // cos(60°) = 0.5
	require.InDelta(t, 0.001, d.Y, 1e-9)
}

func TestCornersScenarioBearingZero(t *testing.T) {
	anchor := orb.Point{18.000, 59.000}
	b := NewBasis(anchor, 0)

	require.InDelta(t, 0, b.U.X, tol)
	require.InDelta(t, 1, b.U.Y, tol)
	require.InDelta(t, -1, b.V.X, tol)
	require.InDelta(t, 0, b.V.Y, tol)

	ring := b.Corners(anchor, 0.001, 0.0005)
	require.Len(t, ring, 5)
	require.Equal(t, anchor, ring[0])
	require.Equal(t, ring[0], ring[4])

	// B = anchor + a·U
	require.InDelta(t, 18.000, ring[1].Lon(), tol)
	require.InDelta(t, 59.001, ring[1].Lat(), tol)

	// D = anchor + b·V, which is (-0.0005, 0) in the local plane.
	d := ToLocal(anchor, ring[3])
	require.InDelta(t, -0.0005, d.X, tol)
	require.InDelta(t, 0, d.Y, tol)
	require.InDelta(t, 18.000-0.0005/math.Cos(59*math.Pi/180), ring[3].Lon(), tol)
	require.InDelta(t, 59.000, ring[3].Lat(), tol)

	// C = B + D - anchor
	require.InDelta(t, ring[3].Lon(), ring[2].Lon(), tol)
	require.InDelta(t, 59.001, ring[2].Lat(), tol)
}

func TestCornersSidesFollowBearing(t *testing.T) {
	anchor := orb.Point{18.0686, 59.3293}

	for _, bearing := range []float64{-60, 0, 33, 90, 145} {
		b := NewBasis(anchor, bearing)
		ring := b.Corners(anchor, 0.004, -0.0025)

		side1 := ToLocal(anchor, ring[1])
		side2 := ToLocal(anchor, ring[3])

		// Side A-B is parallel to U, side A-D parallel to V.
		require.InDelta(t, 0, side1.X*b.U.Y-side1.Y*b.U.X, 1e-12, "bearing %v", bearing)
		require.InDelta(t, 0, side2.X*b.V.Y-side2.Y*b.V.X, 1e-12, "bearing %v", bearing)
		require.InDelta(t, 0, side1.Dot(side2), 1e-12, "bearing %v", bearing)

		a, bb := b.Project(anchor, ring[2])
		require.InDelta(t, 0.004, a, 1e-12)
		require.InDelta(t, -0.0025, bb, 1e-12)
	}
}

func TestCornersDeterministic(t *testing.T) {
	anchor := orb.Point{18.0686, 59.3293}
	pointer := orb.Point{18.0712, 59.3311}

	build := func() orb.Ring {
		b := NewBasis(anchor, -60)
		a, bb := b.Project(anchor, pointer)
		return b.Corners(anchor, a, bb)
	}

	first := build()
	for i := 0; i < 10; i++ {
		require.Equal(t, first, build())
	}
}

func TestUsable(t *testing.T) {
	anchor := orb.Point{18, 59}
	b := NewBasis(anchor, 30)

	require.True(t, Usable(orb.Polygon{b.Corners(anchor, 0.001, 0.001)}, 1e-12))
	require.False(t, Usable(orb.Polygon{b.Corners(anchor, 0.001, 0)}, 1e-12))
	require.False(t, Usable(orb.Polygon{b.Corners(anchor, 0, 0)}, 1e-12))
	require.False(t, Usable(nil, 1e-12))
	require.False(t, Usable(orb.Polygon{{{18, 59}, {18.1, 59}, {18, 59}}}, 1e-12))
}
