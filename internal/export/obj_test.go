package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/pkg/math"
)

func sinkOf(kind geometry.Kind, n int) *geometry.Sink {
	s := geometry.NewSink(kind, 2)
	for i := 0; i < n; i++ {
		s.Add(geometry.Vertex{Position: math.Vec3{X: float32(i), Y: 1, Z: 2}, Value: float32(i)})
	}
	s.Commit()
	return s
}

func lines(t *testing.T, s *geometry.Sink, opts Options) map[string][]string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteOBJ(&buf, s, opts))
	out := make(map[string][]string)
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		kind, rest, _ := strings.Cut(l, " ")
		out[kind] = append(out[kind], rest)
	}
	return out
}

func TestWriteTriangles(t *testing.T) {
	got := lines(t, sinkOf(geometry.Triangles, 6), Options{Name: "iso"})
	assert.Equal(t, []string{"iso"}, got["o"])
	assert.Len(t, got["v"], 6)
	assert.Equal(t, "0 1 2", got["v"][0])
	assert.Equal(t, []string{"1/1 2/2 3/3", "4/4 5/5 6/6"}, got["f"])
	assert.Equal(t, "0 0", got["vt"][0])
	assert.Equal(t, "1 0", got["vt"][5])
}

func TestWriteLinesAndPolyline(t *testing.T) {
	got := lines(t, sinkOf(geometry.Lines, 4), Options{})
	assert.Equal(t, []string{"1/1 2/2", "3/3 4/4"}, got["l"])

	got = lines(t, sinkOf(geometry.Polyline, 3), Options{})
	assert.Equal(t, []string{"1/1 2/2 3/3"}, got["l"])

	got = lines(t, sinkOf(geometry.Polyline, 1), Options{})
	assert.Empty(t, got["l"])
}

func TestWritePoints(t *testing.T) {
	got := lines(t, sinkOf(geometry.Points, 3), Options{ValueMin: 0, ValueMax: 4})
	assert.Equal(t, []string{"1", "2", "3"}, got["p"])
	assert.Equal(t, "0.5 0", got["vt"][2])
}

func TestWriteTransform(t *testing.T) {
	got := lines(t, sinkOf(geometry.Points, 1), Options{
		Transform: func(p r3.Vec) r3.Vec { return r3.Scale(10, p) },
	})
	assert.Equal(t, []string{"0 10 20"}, got["v"])
}

func TestSaveOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.obj")
	require.NoError(t, SaveOBJ(path, sinkOf(geometry.Triangles, 3), Options{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "f 1/1 2/2 3/3")

	assert.Error(t, SaveOBJ(filepath.Join(t.TempDir(), "missing", "out.obj"), sinkOf(geometry.Points, 1), Options{}))
}
