package field_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/field"
	"github.com/Faultbox/fieldx/internal/grid"
)

func TestProbe(t *testing.T) {
	g, err := grid.NewBox(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 3, 3, 3)
	require.NoError(t, err)
	data := grid.Sample(g,
		func(p r3.Vec) float64 { return p.X + 2*p.Y },
		func(p r3.Vec) r3.Vec { return r3.Vec{X: 1, Z: p.Z} })

	s, err := field.Probe(g, data, r3.Vec{X: 0.25, Y: 0.5, Z: 0.75})
	require.NoError(t, err)
	assert.NotEqual(t, field.NoCell, s.Cell)
	assert.InDelta(t, 1.25, s.Scalar, 1e-12)
	assert.InDelta(t, 0.75, s.Vector.Z, 1e-12)

	_, err = field.Probe(g, data, r3.Vec{X: 2})
	assert.ErrorIs(t, err, field.ErrOutsideDomain)
}
