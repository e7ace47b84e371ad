package segmentation

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/jpapon/supervoxel/pointcloud"
)

func leavesAt(positions ...r3.Vector) []*LeafContainer {
	leaves := make([]*LeafContainer, len(positions))
	for i, p := range positions {
		leaves[i] = &LeafContainer{idx: i, centroid: VoxelCentroid{Position: p}, distance: math.Inf(1)}
	}
	return leaves
}

func TestComputePointNormalPlane(t *testing.T) {
	// a tilted-free plane at z = 1
	leaves := leavesAt(
		r3.Vector{X: 0, Y: 0, Z: 1},
		r3.Vector{X: 1, Y: 0, Z: 1},
		r3.Vector{X: 0, Y: 1, Z: 1},
		r3.Vector{X: 1, Y: 1, Z: 1},
		r3.Vector{X: 2, Y: 1, Z: 1},
	)
	normal, curvature, ok := computePointNormal(leaves, []int{0, 1, 2, 3, 4})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(normal.Z), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, curvature, test.ShouldAlmostEqual, 0, 1e-9)

	flipped := flipNormalTowardsViewpoint(normal, r3.Vector{X: 0, Y: 0, Z: 1}, r3.Vector{})
	test.That(t, flipped.Z, test.ShouldAlmostEqual, -1, 1e-9)
}

func TestComputePointNormalDegenerate(t *testing.T) {
	leaves := leavesAt(
		r3.Vector{X: 0, Y: 0, Z: 0},
		r3.Vector{X: 1, Y: 1, Z: 1},
		r3.Vector{X: 2, Y: 2, Z: 2},
	)
	// fewer than four contributors
	_, _, ok := computePointNormal(leaves, []int{0, 1, 2})
	test.That(t, ok, test.ShouldBeFalse)

	// four coincident centroids give no preferred direction
	same := leavesAt(
		r3.Vector{X: 1, Y: 1, Z: 1},
		r3.Vector{X: 1, Y: 1, Z: 1},
		r3.Vector{X: 1, Y: 1, Z: 1},
		r3.Vector{X: 1, Y: 1, Z: 1},
	)
	_, _, ok = computePointNormal(same, []int{0, 1, 2, 3})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFlipNormalZeroUnchanged(t *testing.T) {
	zero := flipNormalTowardsViewpoint(r3.Vector{}, r3.Vector{X: 1}, r3.Vector{})
	test.That(t, zero, test.ShouldResemble, r3.Vector{})

	kept := flipNormalTowardsViewpoint(r3.Vector{X: -1}, r3.Vector{X: 1}, r3.Vector{})
	test.That(t, kept, test.ShouldResemble, r3.Vector{X: -1})
}

func TestComputeVoxelNormalsOnWall(t *testing.T) {
	cloud := pointcloud.New()
	for i := 0; i <= 10; i++ {
		for j := 0; j <= 10; j++ {
			p := pointcloud.NewVector(float64(i)*0.01, float64(j)*0.01, 1)
			test.That(t, cloud.Set(p, nil), test.ShouldBeNil)
		}
	}
	vg, err := NewVoxelGridFromPointCloud(cloud, 0.01, false, false)
	test.That(t, err, test.ShouldBeNil)
	computeVoxelNormals(vg)

	for _, leaf := range vg.Leaves() {
		c := leaf.Centroid()
		test.That(t, math.Abs(c.Normal.Z), test.ShouldAlmostEqual, 1, 1e-6)
		// oriented toward the origin, which lies on the -z side of the wall
		test.That(t, c.Normal.Z, test.ShouldBeLessThan, 0)
		test.That(t, c.Curvature, test.ShouldAlmostEqual, 0, 1e-9)
	}
}

func TestComputeVoxelNormalsTooFewNeighbors(t *testing.T) {
	cloud := pointcloud.New()
	test.That(t, cloud.Set(pointcloud.NewVector(0.05, 0.05, 0.05), nil), test.ShouldBeNil)
	vg, err := NewVoxelGridFromPointCloud(cloud, 0.1, false, false)
	test.That(t, err, test.ShouldBeNil)
	computeVoxelNormals(vg)

	c := vg.Leaves()[0].Centroid()
	test.That(t, c.Normal, test.ShouldResemble, r3.Vector{})
	test.That(t, c.Curvature, test.ShouldEqual, 0)
}

func TestComputeVoxelNormalsKeepsInputNormals(t *testing.T) {
	cloud := pointcloud.New()
	n := r3.Vector{X: 1, Y: 0, Z: 0}
	for _, x := range []float64{0.01, 0.11, 0.21, 0.31} {
		test.That(t, cloud.Set(pointcloud.NewVector(x, 0, 0), pointcloud.NewNormalData(n)), test.ShouldBeNil)
	}
	vg, err := NewVoxelGridFromPointCloud(cloud, 0.1, false, false)
	test.That(t, err, test.ShouldBeNil)
	computeVoxelNormals(vg)

	// a normal was already known for each leaf, estimation must not replace it
	for _, leaf := range vg.Leaves() {
		test.That(t, leaf.Centroid().Normal, test.ShouldResemble, n)
	}
}
