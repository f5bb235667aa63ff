// Package geo converts between geographic coordinates and a small, locally
// isotropic plane anchored at a point and rotated to a camera bearing.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultMinArea is the smallest ring area, in squared local-plane degrees,
// that still counts as a usable selection.
const DefaultMinArea = 1e-12

// minCosLat keeps longitude scaling finite at the poles.
const minCosLat = 1e-12

// Vec is a vector in the local plane. X grows east, Y grows north, both in
// latitude-degree units.
type Vec struct {
	X float64
	Y float64
}

// Dot returns the scalar product of v and o.
func (v Vec) Dot(o Vec) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Scale returns v multiplied by s.
func (v Vec) Scale(s float64) Vec {
	return Vec{X: v.X * s, Y: v.Y * s}
}

// Add returns v + o.
func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y}
}

// Len returns the euclidean length of v.
func (v Vec) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Basis is an orthonormal frame for one drag: U points along the camera
// bearing, V is U rotated 90° counter-clockwise.
type Basis struct {
	U       Vec
	V       Vec
	CosLat0 float64
}

// BasisFromBearing returns the unit axes for a bearing in degrees clockwise
// from north.
func BasisFromBearing(bearingDeg float64) (u, v Vec) {
	theta := bearingDeg * math.Pi / 180
	u = Vec{X: math.Sin(theta), Y: math.Cos(theta)}
	v = Vec{X: -u.Y, Y: u.X}
	return u, v
}

// NewBasis fixes the axes for bearingDeg and the longitude scale at anchor.
func NewBasis(anchor orb.Point, bearingDeg float64) Basis {
	u, v := BasisFromBearing(bearingDeg)
	return Basis{U: u, V: v, CosLat0: cosLat(anchor.Lat())}
}

// ToLocal maps point into the plane anchored at anchor.
func ToLocal(anchor, point orb.Point) Vec {
	return Vec{
		X: (point.Lon() - anchor.Lon()) * cosLat(anchor.Lat()),
		Y: point.Lat() - anchor.Lat(),
	}
}

// ToGeo is the inverse of ToLocal.
func ToGeo(anchor orb.Point, local Vec) orb.Point {
	return orb.Point{
		anchor.Lon() + local.X/cosLat(anchor.Lat()),
		anchor.Lat() + local.Y,
	}
}

// Decompose projects d onto u and v.
func Decompose(d, u, v Vec) (a, b float64) {
	return d.Dot(u), d.Dot(v)
}

// Project returns the (a, b) coordinates of point along U and V.
func (bs Basis) Project(anchor, point orb.Point) (a, b float64) {
	return Decompose(ToLocal(anchor, point), bs.U, bs.V)
}

// Corners builds the closed rectangle spanned by a·U and b·V from anchor.
// Corner order is anchor, anchor+a·U, anchor+a·U+b·V, anchor+b·V, anchor.
func (bs Basis) Corners(anchor orb.Point, a, b float64) orb.Ring {
	au := bs.U.Scale(a)
	bv := bs.V.Scale(b)

	start := orb.Point{anchor.Lon(), anchor.Lat()}
	return orb.Ring{
		start,
		ToGeo(anchor, au),
		ToGeo(anchor, au.Add(bv)),
		ToGeo(anchor, bv),
		start,
	}
}

// RingArea returns the area of ring in squared local-plane units, using the
// latitude of the first vertex for the longitude scale.
func RingArea(ring orb.Ring) float64 {
	if len(ring) < 4 {
		return 0
	}
	return math.Abs(planar.Area(ring)) * cosLat(ring[0].Lat())
}

// Usable reports whether poly is a closed selection of at least five points
// whose outer ring area exceeds minArea.
func Usable(poly orb.Polygon, minArea float64) bool {
	if len(poly) == 0 || len(poly[0]) < 5 {
		return false
	}
	outer := poly[0]
	if outer[0] != outer[len(outer)-1] {
		return false
	}
	return RingArea(outer) > minArea
}

func cosLat(latDeg float64) float64 {
	c := math.Cos(latDeg * math.Pi / 180)
	if c < minCosLat {
		return minCosLat
	}
	return c
}
