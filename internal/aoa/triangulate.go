package aoa

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ParallelEpsilon is the determinant magnitude below which two rays are
// treated as parallel, in both the planar and the 3D solve.
const ParallelEpsilon = 1e-6

// Point3D is a position in the anchor frame, metres.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Result is a single triangulated estimate. Anchor 1 sits at the origin and
// anchor 2 at (D, 0, 0).
type Result struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Height  float64 `json:"height"`
	Point3D Point3D `json:"intersection3d"`
	// Fallback3D is set when the 3D rays were parallel and Point3D is the
	// planar fix lifted to the averaged height.
	Fallback3D bool `json:"fallback3d"`
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// planarDirection is the unit azimuth direction in the XY plane. Azimuth 0
// points along +Y and grows towards +X.
func planarDirection(azDeg float64) r2.Vec {
	az := deg2rad(azDeg)
	return r2.Vec{X: math.Sin(az), Y: math.Cos(az)}
}

// PlanarRay returns the unit XY direction an anchor reports for azDeg.
func PlanarRay(azDeg float64) (dx, dy float64) {
	d := planarDirection(azDeg)
	return d.X, d.Y
}

// rayDirection is the unit 3D direction for an azimuth/elevation pair.
func rayDirection(azDeg, elDeg float64) r3.Vec {
	az, el := deg2rad(azDeg), deg2rad(elDeg)
	return r3.Vec{
		X: math.Sin(az) * math.Cos(el),
		Y: math.Cos(az) * math.Cos(el),
		Z: math.Sin(el),
	}
}

// Intersect2D intersects the two azimuth rays in the XY plane.
func Intersect2D(az1Deg, az2Deg, separation float64) (x, y float64, err error) {
	p1 := r2.Vec{}
	p2 := r2.Vec{X: separation}
	d1 := planarDirection(az1Deg)
	d2 := planarDirection(az2Deg)

	denom := r2.Cross(d1, d2)
	if math.Abs(denom) < ParallelEpsilon {
		return 0, 0, ErrParallelRays
	}

	t := r2.Cross(r2.Sub(p2, p1), d2) / denom
	fix := r2.Add(p1, r2.Scale(t, d1))
	return fix.X, fix.Y, nil
}

// Height averages the per-anchor height implied by each elevation angle and
// the planar distance from that anchor to (x, y).
func Height(x, y, el1Deg, el2Deg, separation float64) float64 {
	d1 := math.Hypot(x, y)
	d2 := math.Hypot(x-separation, y)
	z1 := math.Tan(deg2rad(el1Deg)) * d1
	z2 := math.Tan(deg2rad(el2Deg)) * d2
	return (z1 + z2) / 2
}

// Closest3D returns the midpoint of the shortest segment between the two
// anchor rays. ok is false when the rays are parallel and no unique
// midpoint exists.
func Closest3D(r1, r2 AnchorReading, separation float64) (p Point3D, ok bool) {
	p1 := r3.Vec{}
	p2 := r3.Vec{X: separation}
	d1 := rayDirection(r1.AzimuthDeg, r1.ElevationDeg)
	d2 := rayDirection(r2.AzimuthDeg, r2.ElevationDeg)

	w0 := r3.Sub(p1, p2)
	a := r3.Dot(d1, d1)
	b := r3.Dot(d1, d2)
	c := r3.Dot(d2, d2)
	d := r3.Dot(d1, w0)
	e := r3.Dot(d2, w0)

	denom := a*c - b*b
	if math.Abs(denom) < ParallelEpsilon {
		return Point3D{}, false
	}

	t1 := (b*e - c*d) / denom
	t2 := (a*e - b*d) / denom
	q1 := r3.Add(p1, r3.Scale(t1, d1))
	q2 := r3.Add(p2, r3.Scale(t2, d2))
	mid := r3.Scale(0.5, r3.Add(q1, q2))
	return Point3D{X: mid.X, Y: mid.Y, Z: mid.Z}, true
}

// Triangulate combines the planar fix, the averaged height and the 3D
// closest-approach estimate. Only a planar degeneracy is an error; parallel
// 3D rays fall back to (x, y, height).
func Triangulate(r1, r2 AnchorReading, separation float64) (Result, error) {
	if math.IsNaN(separation) || math.IsInf(separation, 0) {
		return Result{}, ErrInvalidSeparation
	}

	x, y, err := Intersect2D(r1.AzimuthDeg, r2.AzimuthDeg, separation)
	if err != nil {
		return Result{}, err
	}
	h := Height(x, y, r1.ElevationDeg, r2.ElevationDeg, separation)

	res := Result{X: x, Y: y, Height: h}
	if p, ok := Closest3D(r1, r2, separation); ok {
		res.Point3D = p
	} else {
		res.Point3D = Point3D{X: x, Y: y, Z: h}
		res.Fallback3D = true
	}
	return res, nil
}

// AnchorPosition returns where anchor n (1 or 2) sits for a given separation.
func AnchorPosition(n int, separation float64) Point3D {
	if n == 2 {
		return Point3D{X: separation}
	}
	return Point3D{}
}

// Bearing returns the azimuth and elevation, in degrees, an anchor at from
// would observe towards target. It is the inverse of rayDirection.
func Bearing(from, target Point3D) (azDeg, elDeg float64) {
	v := r3.Sub(r3.Vec(target), r3.Vec(from))
	azDeg = rad2deg(math.Atan2(v.X, v.Y))
	elDeg = rad2deg(math.Atan2(v.Z, math.Hypot(v.X, v.Y)))
	return azDeg, elDeg
}
