package pointcloud

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestKDTreeNearest(t *testing.T) {
	pts := []r3.Vector{
		NewVector(0, 0, 0),
		NewVector(1, 0, 0),
		NewVector(0, 2, 0),
		NewVector(5, 5, 5),
	}
	kd := NewKDTreeFromPoints(pts)
	test.That(t, kd.Size(), test.ShouldEqual, 4)

	idx, dist, ok := kd.Nearest(NewVector(0.9, 0.1, 0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, idx, test.ShouldEqual, 1)
	test.That(t, dist, test.ShouldAlmostEqual, 0.14142135623, 1e-6)

	idx, dist, ok = kd.Nearest(NewVector(5, 5, 5))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, idx, test.ShouldEqual, 3)
	test.That(t, dist, test.ShouldAlmostEqual, 0)
}

func TestKDTreeRadiusSearch(t *testing.T) {
	pts := []r3.Vector{
		NewVector(0, 0, 0),
		NewVector(0.5, 0, 0),
		NewVector(1, 0, 0),
		NewVector(3, 0, 0),
	}
	kd := NewKDTreeFromPoints(pts)

	got := kd.RadiusSearch(NewVector(0, 0, 0), 1.0)
	test.That(t, got, test.ShouldResemble, []int{0, 1, 2})

	got = kd.RadiusSearch(NewVector(0, 0, 0), 0.1)
	test.That(t, got, test.ShouldResemble, []int{0})

	got = kd.RadiusSearch(NewVector(10, 0, 0), 0.5)
	test.That(t, got, test.ShouldHaveLength, 0)
}

func TestKDTreeFromCloud(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Set(NewVector(0, 0, 0), nil), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(2, 0, 0), nil), test.ShouldBeNil)
	kd := NewKDTree(cloud)

	idx, _, ok := kd.Nearest(NewVector(1.9, 0, 0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, idx, test.ShouldEqual, 1)
}

func TestKDTreeEmpty(t *testing.T) {
	kd := NewKDTreeFromPoints(nil)
	test.That(t, kd.Size(), test.ShouldEqual, 0)
	_, _, ok := kd.Nearest(NewVector(0, 0, 0))
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, kd.RadiusSearch(NewVector(0, 0, 0), 1), test.ShouldHaveLength, 0)
}
