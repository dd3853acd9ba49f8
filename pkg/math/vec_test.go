package math

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestVec3Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	got := x.Cross(y)
	want := Vec3{0, 0, 1}
	if got != want {
		t.Errorf("Vec3.Cross() = %v, want %v", got, want)
	}
}

func TestVec3R3RoundTrip(t *testing.T) {
	v := r3.Vec{X: 1.5, Y: -2.25, Z: 8}
	if got := FromR3(v).R3(); got != v {
		t.Errorf("round trip = %v, want %v", got, v)
	}
}

func TestTriangleNormal(t *testing.T) {
	n := TriangleNormal(Vec3{0, 0, 0}, Vec3{0, 1, 0}, Vec3{0, 0, 1})
	if n.X <= 0 || n.Y != 0 || n.Z != 0 {
		t.Errorf("TriangleNormal() = %v, want +X", n)
	}
}

func TestBoxExtend(t *testing.T) {
	b := EmptyBox()
	if !b.IsEmpty() {
		t.Fatal("new box should be empty")
	}
	b.Extend(Vec3{1, 2, 3})
	b.Extend(Vec3{-1, 5, 0})

	if b.IsEmpty() {
		t.Fatal("extended box should not be empty")
	}
	if b.Min != (Vec3{-1, 2, 0}) || b.Max != (Vec3{1, 5, 3}) {
		t.Errorf("box = %+v", b)
	}
	if !b.Contains(Vec3{0, 3, 1}) {
		t.Error("expected center point inside")
	}
	if b.Contains(Vec3{2, 3, 1}) {
		t.Error("expected outside point rejected")
	}
	if c := b.Center(); c != (Vec3{0, 3.5, 1.5}) {
		t.Errorf("Center() = %v", c)
	}
}

