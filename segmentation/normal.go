package segmentation

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// minNormalIndices is the fewest contributing voxels for a meaningful plane
// fit; below it a leaf keeps a zero normal and zero curvature.
const minNormalIndices = 4

// computePointNormal fits a plane through the centroids selected by indices
// using principal component analysis and returns the direction of smallest
// variance together with the curvature, the smallest eigenvalue over the sum.
// Duplicate indices are allowed and weigh their centroid accordingly.
func computePointNormal(leaves []*LeafContainer, indices []int) (r3.Vector, float64, bool) {
	if len(indices) < minNormalIndices {
		return r3.Vector{}, 0, false
	}

	var centroid r3.Vector
	for _, i := range indices {
		centroid = centroid.Add(leaves[i].centroid.Position)
	}
	n := float64(len(indices))
	centroid = centroid.Mul(1 / n)

	var xx, xy, xz, yy, yz, zz float64
	for _, i := range indices {
		d := leaves[i].centroid.Position.Sub(centroid)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	cov := mat.NewSymDense(3, []float64{
		xx / n, xy / n, xz / n,
		xy / n, yy / n, yz / n,
		xz / n, yz / n, zz / n,
	})

	var eigen mat.EigenSym
	if ok := eigen.Factorize(cov, true); !ok {
		return r3.Vector{}, 0, false
	}
	vals := eigen.Values(nil)
	if !(vals[2] > vals[0]) {
		// all eigenvalues equal: no preferred direction to call a normal
		return r3.Vector{}, 0, false
	}
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	// Eigenvalues come back in ascending order; the smallest spans the normal.
	normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	if normal.Norm() == 0 {
		return r3.Vector{}, 0, false
	}
	normal = normal.Normalize()

	sum := vals[0] + vals[1] + vals[2]
	curvature := 0.0
	if sum > 0 {
		curvature = vals[0] / sum
	}
	return normal, curvature, true
}

// flipNormalTowardsViewpoint orients a normal so it points from the given
// position toward the viewpoint. Zero normals are left unchanged.
func flipNormalTowardsViewpoint(normal, position, viewpoint r3.Vector) r3.Vector {
	if normal.Norm() == 0 {
		return normal
	}
	if viewpoint.Sub(position).Dot(normal) < 0 {
		return normal.Mul(-1)
	}
	return normal
}

// twoRingIndices gathers the dense indices of a leaf, its neighbors and its
// neighbors' neighbors. Duplicates are intentionally kept, matching the weight
// each voxel contributes through multiple adjacency paths. When owner is
// non-nil the ring is restricted to leaves owned by that cluster, except the
// leaf itself which always contributes.
func twoRingIndices(leaf *LeafContainer, owner *supervoxelHelper) []int {
	indices := make([]int, 0, 81)
	indices = append(indices, leaf.idx)
	for _, nb := range leaf.neighbors {
		if owner != nil && nb.owner != owner {
			continue
		}
		indices = append(indices, nb.idx)
		for _, nb2 := range nb.neighbors {
			if owner != nil && nb2.owner != owner {
				continue
			}
			indices = append(indices, nb2.idx)
		}
	}
	return indices
}

// computeVoxelNormals estimates a normal and curvature for every leaf that
// does not already carry one, from the PCA of its 2-ring neighborhood, and
// orients it toward the sensor origin.
func computeVoxelNormals(vg *VoxelGrid) {
	leaves := vg.Leaves()
	for _, leaf := range leaves {
		if leaf.centroid.Normal.Norm() > 0 {
			continue
		}
		indices := twoRingIndices(leaf, nil)
		normal, curvature, ok := computePointNormal(leaves, indices)
		if !ok {
			leaf.centroid.Normal = r3.Vector{}
			leaf.centroid.Curvature = 0
			continue
		}
		leaf.centroid.Normal = flipNormalTowardsViewpoint(normal, leaf.centroid.Position, r3.Vector{})
		leaf.centroid.Curvature = curvature
	}
}
