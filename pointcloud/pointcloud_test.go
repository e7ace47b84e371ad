package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()

	p0 := NewVector(0, 0, 0)
	d0 := NewValueData(5)

	test.That(t, pc.Set(p0, d0), test.ShouldBeNil)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d0)

	_, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeFalse)

	p1 := NewVector(1, 0, 1)
	d1 := NewValueData(17)
	test.That(t, pc.Set(p1, d1), test.ShouldBeNil)

	d, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p2 := NewVector(-1, -2, 1)
	d2 := NewValueData(81)
	test.That(t, pc.Set(p2, d2), test.ShouldBeNil)
	d, got = pc.At(-1, -2, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d2)

	count := 0
	pc.Iterate(func(p r3.Vector, d Data) bool {
		switch p.X {
		case 0:
			test.That(t, p, test.ShouldResemble, p0)
		case 1:
			test.That(t, p, test.ShouldResemble, p1)
		case -1:
			test.That(t, p, test.ShouldResemble, p2)
		}
		count++
		return true
	})
	test.That(t, count, test.ShouldEqual, 3)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	test.That(t, CloudContains(pc, 1, 1, 1), test.ShouldBeFalse)
	test.That(t, CloudContains(pc, 1, 0, 1), test.ShouldBeTrue)
}

func TestPointCloudInsertionOrder(t *testing.T) {
	pc := New()
	pts := []r3.Vector{
		NewVector(3, 0, 0),
		NewVector(1, 0, 0),
		NewVector(2, 0, 0),
		NewVector(0, 5, 0),
	}
	for i, p := range pts {
		test.That(t, pc.Set(p, NewValueData(i)), test.ShouldBeNil)
	}

	// resetting an existing point must not change its position in the order
	test.That(t, pc.Set(pts[1], NewValueData(42)), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 4)

	got := make([]r3.Vector, 0, 4)
	pc.Iterate(func(p r3.Vector, d Data) bool {
		got = append(got, p)
		return true
	})
	test.That(t, got, test.ShouldResemble, pts)

	d, ok := pc.At(1, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 42)
}

func TestPointCloudMetaData(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(NewVector(1, 2, 3), NewBasicData()), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(-1, -2, -3), NewColoredData(color.NRGBA{R: 10, A: 255})), test.ShouldBeNil)

	meta := pc.MetaData()
	test.That(t, meta.MinX, test.ShouldEqual, -1)
	test.That(t, meta.MaxX, test.ShouldEqual, 1)
	test.That(t, meta.MinY, test.ShouldEqual, -2)
	test.That(t, meta.MaxY, test.ShouldEqual, 2)
	test.That(t, meta.MinZ, test.ShouldEqual, -3)
	test.That(t, meta.MaxZ, test.ShouldEqual, 3)
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.HasNormal, test.ShouldBeFalse)
	test.That(t, meta.HasValue, test.ShouldBeFalse)
	test.That(t, meta.Center(pc.Size()), test.ShouldResemble, r3.Vector{})
}

func TestDataPayloads(t *testing.T) {
	d := NewBasicData()
	test.That(t, d.HasColor(), test.ShouldBeFalse)
	test.That(t, d.HasNormal(), test.ShouldBeFalse)
	test.That(t, d.HasValue(), test.ShouldBeFalse)

	d = d.SetColor(color.NRGBA{R: 5, G: 6, B: 7, A: 255})
	r, g, b := d.RGB255()
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{5, 6, 7})

	n := NewVector(0, 0, 1)
	d = d.SetNormal(n)
	test.That(t, d.HasNormal(), test.ShouldBeTrue)
	test.That(t, d.Normal(), test.ShouldResemble, n)

	d = d.SetValue(12)
	test.That(t, d.HasValue(), test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 12)

	cn := NewColoredNormalData(color.NRGBA{R: 1, A: 255}, n)
	test.That(t, cn.HasColor(), test.ShouldBeTrue)
	test.That(t, cn.HasNormal(), test.ShouldBeTrue)
	test.That(t, cn.Normal(), test.ShouldResemble, n)
}
