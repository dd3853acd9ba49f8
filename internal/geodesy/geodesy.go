// Package geodesy converts between geodetic coordinates on an ellipsoid
// and earth-centred Cartesian coordinates.
package geodesy

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Ellipsoid is a reference ellipsoid of revolution.
type Ellipsoid struct {
	A float64 // semi-major axis in metres
	F float64 // flattening
}

// WGS84 is the GPS reference ellipsoid.
var WGS84 = Ellipsoid{A: 6378137, F: 1 / 298.257223563}

// B returns the semi-minor axis.
func (e Ellipsoid) B() float64 { return e.A * (1 - e.F) }

// E2 returns the first eccentricity squared.
func (e Ellipsoid) E2() float64 { return e.F * (2 - e.F) }

// radius of curvature in the prime vertical
func (e Ellipsoid) primeVertical(sinLat float64) float64 {
	return e.A / math.Sqrt(1-e.E2()*sinLat*sinLat)
}

// ToCartesian returns the earth-centred position of a point at height
// metres above the ellipsoid.
func (e Ellipsoid) ToCartesian(ll s2.LatLng, height float64) r3.Vec {
	sinLat, cosLat := math.Sincos(ll.Lat.Radians())
	sinLon, cosLon := math.Sincos(ll.Lng.Radians())
	n := e.primeVertical(sinLat)
	return r3.Vec{
		X: (n + height) * cosLat * cosLon,
		Y: (n + height) * cosLat * sinLon,
		Z: (n*(1-e.E2()) + height) * sinLat,
	}
}

// ToGeodetic inverts ToCartesian by iterating Bowring's formula on the
// parametric latitude.
func (e Ellipsoid) ToGeodetic(p r3.Vec) (s2.LatLng, float64) {
	lon := math.Atan2(p.Y, p.X)
	r := math.Hypot(p.X, p.Y)
	a, b, e2 := e.A, e.B(), e.E2()
	if r == 0 {
		lat := math.Copysign(math.Pi/2, p.Z)
		return latLng(lat, lon), math.Abs(p.Z) - b
	}
	ep2 := (a*a - b*b) / (b * b)

	beta := math.Atan2(a*p.Z, b*r)
	lat := beta
	for i := 0; i < 10; i++ {
		sinB, cosB := math.Sincos(beta)
		next := math.Atan2(p.Z+ep2*b*sinB*sinB*sinB, r-e2*a*cosB*cosB*cosB)
		done := math.Abs(next-lat) < 1e-15
		lat = next
		if done {
			break
		}
		beta = math.Atan2((1-e.F)*math.Sin(lat), math.Cos(lat))
	}

	sinLat, cosLat := math.Sincos(lat)
	h := r*cosLat + p.Z*sinLat - a*math.Sqrt(1-e2*sinLat*sinLat)
	return latLng(lat, lon), h
}

func latLng(lat, lon float64) s2.LatLng {
	return s2.LatLng{Lat: s1.Angle(lat), Lng: s1.Angle(lon)}
}

// enu returns the east, north and up unit vectors at p, taking the
// geocentric direction as up.
func enu(p r3.Vec) (east, north, up r3.Vec) {
	up = r3.Unit(p)
	lon := math.Atan2(p.Y, p.X)
	sinLon, cosLon := math.Sincos(lon)
	east = r3.Vec{X: -sinLon, Y: cosLon}
	north = r3.Cross(up, east)
	return east, north, up
}

// VectorToCartesian rotates a vector given in the local east, north, up
// frame at the Cartesian position p into earth-centred axes.
//
// The frame uses the geocentric rather than the geodetic vertical, which
// is exact only for zero flattening. On WGS84 "up" tilts by at most about
// 0.19 degrees.
func VectorToCartesian(p, v r3.Vec) r3.Vec {
	if r3.Norm(p) == 0 {
		return v
	}
	east, north, up := enu(p)
	return r3.Add(r3.Add(r3.Scale(v.X, east), r3.Scale(v.Y, north)), r3.Scale(v.Z, up))
}

// VectorToLocal is the inverse of VectorToCartesian.
func VectorToLocal(p, v r3.Vec) r3.Vec {
	if r3.Norm(p) == 0 {
		return v
	}
	east, north, up := enu(p)
	return r3.Vec{X: r3.Dot(v, east), Y: r3.Dot(v, north), Z: r3.Dot(v, up)}
}

// Projector maps data set coordinates read as (longitude, latitude,
// height) in degrees and metres to earth-centred Cartesian positions.
type Projector struct {
	Ellipsoid Ellipsoid
	// Scale multiplies the result, for example 1e-6 to work in
	// thousands of kilometres.
	Scale float64
}

// Project converts one point.
func (pr Projector) Project(p r3.Vec) r3.Vec {
	e := pr.Ellipsoid
	if e.A == 0 {
		e = WGS84
	}
	scale := pr.Scale
	if scale == 0 {
		scale = 1
	}
	return r3.Scale(scale, e.ToCartesian(s2.LatLngFromDegrees(p.Y, p.X), p.Z))
}
