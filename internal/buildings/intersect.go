package buildings

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Intersects reports whether g shares at least one point with poly. Shared
// boundary points count, so a footprint that only touches the selection
// edge intersects it.
func Intersects(g orb.Geometry, poly orb.Polygon) bool {
	if g == nil || len(poly) == 0 || len(poly[0]) == 0 {
		return false
	}
	if !g.Bound().Intersects(poly.Bound()) {
		return false
	}

	switch geom := g.(type) {
	case orb.Point:
		return planar.PolygonContains(poly, geom)
	case orb.MultiPoint:
		for _, p := range geom {
			if planar.PolygonContains(poly, p) {
				return true
			}
		}
		return false
	case orb.LineString:
		return lineIntersects(geom, poly)
	case orb.MultiLineString:
		for _, ls := range geom {
			if lineIntersects(ls, poly) {
				return true
			}
		}
		return false
	case orb.Ring:
		return polygonsIntersect(orb.Polygon{geom}, poly)
	case orb.Polygon:
		return polygonsIntersect(geom, poly)
	case orb.MultiPolygon:
		for _, p := range geom {
			if polygonsIntersect(p, poly) {
				return true
			}
		}
		return false
	case orb.Bound:
		return polygonsIntersect(geom.ToPolygon(), poly)
	case orb.Collection:
		for _, child := range geom {
			if Intersects(child, poly) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Supported reports whether Intersects understands g.
func Supported(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString,
		orb.Ring, orb.Polygon, orb.MultiPolygon, orb.Bound, orb.Collection:
		return true
	default:
		return false
	}
}

// ContainsPoint reports whether the areal parts of g cover p, boundary
// included. Points and lines cover nothing.
func ContainsPoint(g orb.Geometry, p orb.Point) bool {
	switch geom := g.(type) {
	case orb.Ring:
		return planar.RingContains(geom, p)
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	case orb.Bound:
		return geom.Contains(p)
	case orb.Collection:
		for _, child := range geom {
			if ContainsPoint(child, p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func lineIntersects(ls orb.LineString, poly orb.Polygon) bool {
	for _, p := range ls {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	for i := 0; i+1 < len(ls); i++ {
		for _, ring := range poly {
			if segmentCrossesRing(ls[i], ls[i+1], ring) {
				return true
			}
		}
	}
	return false
}

func polygonsIntersect(a, b orb.Polygon) bool {
	if len(a) == 0 || len(a[0]) == 0 || len(b) == 0 || len(b[0]) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	// One polygon inside the other, or touching at a vertex.
	for _, p := range a[0] {
		if planar.PolygonContains(b, p) {
			return true
		}
	}
	for _, p := range b[0] {
		if planar.PolygonContains(a, p) {
			return true
		}
	}

	// Crossing or touching edges.
	for _, ra := range a {
		for i := 0; i+1 < len(ra); i++ {
			for _, rb := range b {
				if segmentCrossesRing(ra[i], ra[i+1], rb) {
					return true
				}
			}
		}
	}
	return false
}

func segmentCrossesRing(p, q orb.Point, ring orb.Ring) bool {
	for i := 0; i+1 < len(ring); i++ {
		if segmentsIntersect(p, q, ring[i], ring[i+1]) {
			return true
		}
	}
	return false
}

// segmentsIntersect is the closed-segment test: shared endpoints and
// collinear overlap both count.
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment assumes c is collinear with a-b.
func onSegment(a, b, c orb.Point) bool {
	return c[0] >= min(a[0], b[0]) && c[0] <= max(a[0], b[0]) &&
		c[1] >= min(a[1], b[1]) && c[1] <= max(a[1], b[1])
}
