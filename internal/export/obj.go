// Package export writes geometry sinks to interchange formats.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/fieldx/internal/geometry"
)

// Options configures an export.
type Options struct {
	// Name is written as the OBJ object name.
	Name string
	// Transform, when set, maps every vertex position before writing.
	Transform func(r3.Vec) r3.Vec
	// ValueMin and ValueMax map vertex scalars to texture coordinates
	// in [0, 1]. An empty range is taken from the data.
	ValueMin, ValueMax float32
}

// WriteOBJ writes r as a Wavefront OBJ stream. Vertex scalars become the
// u texture coordinate so a colour ramp texture can show them. Triangles
// become faces, segments and polylines become lines, points become
// point elements.
func WriteOBJ(w io.Writer, r geometry.Reader, opts Options) error {
	bw := bufio.NewWriter(w)
	n := r.NumVertices()
	lo, hi := opts.ValueMin, opts.ValueMax
	if lo == hi {
		lo, hi = valueRange(r)
	}

	fmt.Fprintf(bw, "# fieldx %s, %d vertices, %d primitives\n", r.Kind(), n, r.NumPrimitives())
	if opts.Name != "" {
		fmt.Fprintf(bw, "o %s\n", opts.Name)
	}
	for b := 0; b < r.NumBlocks(); b++ {
		for _, v := range r.Block(b) {
			p := v.Position.R3()
			if opts.Transform != nil {
				p = opts.Transform(p)
			}
			fmt.Fprintf(bw, "v %g %g %g\n", p.X, p.Y, p.Z)
		}
	}
	for b := 0; b < r.NumBlocks(); b++ {
		for _, v := range r.Block(b) {
			u := float32(0)
			if hi > lo {
				u = (v.Value - lo) / (hi - lo)
			}
			fmt.Fprintf(bw, "vt %g 0\n", u)
		}
	}

	// OBJ indices are 1-based.
	switch r.Kind() {
	case geometry.Triangles:
		for i := 1; i+2 <= n; i += 3 {
			fmt.Fprintf(bw, "f %d/%d %d/%d %d/%d\n", i, i, i+1, i+1, i+2, i+2)
		}
	case geometry.Lines:
		for i := 1; i+1 <= n; i += 2 {
			fmt.Fprintf(bw, "l %d/%d %d/%d\n", i, i, i+1, i+1)
		}
	case geometry.Polyline:
		if n >= 2 {
			fmt.Fprint(bw, "l")
			for i := 1; i <= n; i++ {
				fmt.Fprintf(bw, " %d/%d", i, i)
			}
			fmt.Fprintln(bw)
		}
	case geometry.Points:
		for i := 1; i <= n; i++ {
			fmt.Fprintf(bw, "p %d\n", i)
		}
	default:
		return fmt.Errorf("export obj: unsupported kind %s", r.Kind())
	}
	return bw.Flush()
}

// SaveOBJ writes r to path.
func SaveOBJ(path string, r geometry.Reader, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteOBJ(f, r, opts); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func valueRange(r geometry.Reader) (lo, hi float32) {
	first := true
	for b := 0; b < r.NumBlocks(); b++ {
		for _, v := range r.Block(b) {
			if first || v.Value < lo {
				lo = v.Value
			}
			if first || v.Value > hi {
				hi = v.Value
			}
			first = false
		}
	}
	return lo, hi
}
