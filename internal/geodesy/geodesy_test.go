package geodesy

import (
	"math"
	"testing"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestToCartesianKnownPoints(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		height   float64
		want     r3.Vec
	}{
		{"equator prime meridian", 0, 0, 0, r3.Vec{X: WGS84.A}},
		{"equator 90E", 0, 90, 0, r3.Vec{Y: WGS84.A}},
		{"north pole", 90, 0, 0, r3.Vec{Z: WGS84.B()}},
		{"south pole raised", -90, 0, 100, r3.Vec{Z: -WGS84.B() - 100}},
		{"equator raised", 0, 180, 1000, r3.Vec{X: -WGS84.A - 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WGS84.ToCartesian(s2.LatLngFromDegrees(tt.lat, tt.lon), tt.height)
			assert.InDelta(t, 0, r3.Norm(r3.Sub(got, tt.want)), 1e-6, "got %v", got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, lat := range []float64{-89.5, -45, -1, 0, 12.5, 51.48, 89.9} {
		for _, lon := range []float64{-179, -30, 0, 37.6, 120} {
			for _, h := range []float64{-100, 0, 8848, 400e3} {
				p := WGS84.ToCartesian(s2.LatLngFromDegrees(lat, lon), h)
				ll, gotH := WGS84.ToGeodetic(p)
				if !scalar.EqualWithinAbs(ll.Lat.Degrees(), lat, 1e-9) ||
					!scalar.EqualWithinAbs(ll.Lng.Degrees(), lon, 1e-9) ||
					!scalar.EqualWithinAbs(gotH, h, 1e-3) {
					t.Errorf("(%g, %g, %g) came back as (%g, %g, %g)",
						lat, lon, h, ll.Lat.Degrees(), ll.Lng.Degrees(), gotH)
				}
			}
		}
	}
}

func TestToGeodeticOnAxis(t *testing.T) {
	ll, h := WGS84.ToGeodetic(r3.Vec{Z: WGS84.B() + 10})
	assert.InDelta(t, 90, ll.Lat.Degrees(), 1e-12)
	assert.InDelta(t, 10, h, 1e-9)
}

func TestSphereHasNoFlattening(t *testing.T) {
	s := Ellipsoid{A: 1}
	assert.Equal(t, 1.0, s.B())
	assert.Equal(t, 0.0, s.E2())
	p := s.ToCartesian(s2.LatLngFromDegrees(30, 60), 0)
	assert.InDelta(t, 1, r3.Norm(p), 1e-15)
}

func TestVectorFrame(t *testing.T) {
	p := WGS84.ToCartesian(s2.LatLngFromDegrees(0, 90), 0)

	east := VectorToCartesian(p, r3.Vec{X: 1})
	north := VectorToCartesian(p, r3.Vec{Y: 1})
	up := VectorToCartesian(p, r3.Vec{Z: 1})
	assert.InDelta(t, 0, r3.Norm(r3.Sub(east, r3.Vec{X: -1})), 1e-12)
	assert.InDelta(t, 0, r3.Norm(r3.Sub(north, r3.Vec{Z: 1})), 1e-12)
	assert.InDelta(t, 0, r3.Norm(r3.Sub(up, r3.Vec{Y: 1})), 1e-12)

	v := r3.Vec{X: 3, Y: -2, Z: 0.5}
	q := WGS84.ToCartesian(s2.LatLngFromDegrees(48, 11), 500)
	back := VectorToLocal(q, VectorToCartesian(q, v))
	assert.InDelta(t, 0, r3.Norm(r3.Sub(back, v)), 1e-12)
	assert.InDelta(t, r3.Norm(v), r3.Norm(VectorToCartesian(q, v)), 1e-12)
}

func TestVectorFrameUsesGeocentricUp(t *testing.T) {
	q := WGS84.ToCartesian(s2.LatLngFromDegrees(45, 0), 0)
	up := VectorToCartesian(q, r3.Vec{Z: 1})
	tilt := math.Atan2(up.Z, up.X) * 180 / math.Pi
	// Geocentric latitude at 45 degrees geodetic is about 44.81.
	assert.InDelta(t, 44.81, tilt, 0.01)
}

func TestProjector(t *testing.T) {
	pr := Projector{Scale: 1e-3}
	got := pr.Project(r3.Vec{X: 90, Y: 0, Z: 0})
	assert.InDelta(t, WGS84.A*1e-3, got.Y, 1e-9)
	assert.InDelta(t, 0, got.X, 1e-6)
}
