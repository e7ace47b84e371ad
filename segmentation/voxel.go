// Package segmentation implements supervoxel clustering over 3D point clouds.
//
// A cloud is quantised into a sparse voxel grid, each occupied voxel is
// summarised by a centroid with color, surface normal and curvature, and
// clusters are grown outward from seed voxels across the 26-connected voxel
// adjacency under a weighted spatial/color/normal distance.
package segmentation

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/jpapon/supervoxel/pointcloud"
)

// VoxelCoords stores voxel coordinates in VoxelGrid axes.
type VoxelCoords struct {
	I, J, K int64
}

// IsEqual tests if two VoxelCoords are the same.
func (c VoxelCoords) IsEqual(c2 VoxelCoords) bool {
	return c.I == c2.I && c.J == c2.J && c.K == c2.K
}

// VoxelCentroid is the aggregated state of one occupied voxel: mean position
// and color of the constituent points, plus the surface normal and PCA
// curvature once those are known.
type VoxelCentroid struct {
	Position  r3.Vector
	Color     r3.Vector // RGB components in [0, 255]
	Normal    r3.Vector
	Curvature float64
}

// LeafContainer is the engine's record for one occupied voxel: its centroid,
// its index into the dense centroid array, the cluster currently owning it and
// the distance to that cluster, and links to the occupied 26-neighborhood.
type LeafContainer struct {
	key      VoxelCoords
	centroid VoxelCentroid

	idx      int
	owner    *supervoxelHelper
	distance float64

	// neighbors are non-owning links into the grid, symmetric by construction.
	neighbors []*LeafContainer

	posSum     r3.Vector
	colorSum   r3.Vector
	normalSum  r3.Vector
	count      int
	hasNormals bool
}

// Key returns the voxel coordinates of the leaf.
func (l *LeafContainer) Key() VoxelCoords {
	return l.key
}

// Centroid returns the aggregated voxel state.
func (l *LeafContainer) Centroid() VoxelCentroid {
	return l.centroid
}

// Index returns the leaf's index into the dense centroid array.
func (l *LeafContainer) Index() int {
	return l.idx
}

// Neighbors returns the occupied voxels adjacent to this one.
func (l *LeafContainer) Neighbors() []*LeafContainer {
	return l.neighbors
}

func (l *LeafContainer) addPoint(p r3.Vector, d pointcloud.Data) {
	l.posSum = l.posSum.Add(p)
	if d != nil && d.HasColor() {
		r, g, b := d.RGB255()
		l.colorSum = l.colorSum.Add(r3.Vector{X: float64(r), Y: float64(g), Z: float64(b)})
	}
	if d != nil && d.HasNormal() {
		l.normalSum = l.normalSum.Add(d.Normal())
		l.hasNormals = true
	}
	l.count++
}

// computeData turns the accumulated sums into the leaf centroid. Averaged
// normals are renormalised; a zero sum stays a zero normal.
func (l *LeafContainer) computeData() {
	if l.count == 0 {
		return
	}
	n := 1.0 / float64(l.count)
	l.centroid.Position = l.posSum.Mul(n)
	l.centroid.Color = l.colorSum.Mul(n)
	if l.hasNormals && l.normalSum.Norm() > 0 {
		l.centroid.Normal = l.normalSum.Normalize()
	}
}

// VoxelGrid is the sparse voxelising adjacency grid. Leaves live in a slice in
// insertion order; the key map only resolves coordinates to slice positions.
type VoxelGrid struct {
	resolution    float64
	transform     bool
	ignoreNormals bool

	leaves []*LeafContainer
	index  map[VoxelCoords]int
}

// NewVoxelGrid returns an empty grid with the given voxel resolution. If
// useSingleCameraTransform is set, points are remapped to (x/z, y/z, ln z)
// before quantisation, which keeps voxel density roughly invariant to the
// distance from a single viewpoint.
func NewVoxelGrid(resolution float64, useSingleCameraTransform, ignoreInputNormals bool) *VoxelGrid {
	return &VoxelGrid{
		resolution:    resolution,
		transform:     useSingleCameraTransform,
		ignoreNormals: ignoreInputNormals,
		index:         make(map[VoxelCoords]int),
	}
}

// VoxelKey quantises a point to its voxel coordinates. Under the single camera
// transform, points must have z > 0.
func (vg *VoxelGrid) VoxelKey(p r3.Vector) (VoxelCoords, error) {
	if vg.transform {
		if p.Z <= 0 {
			return VoxelCoords{}, errors.Errorf(
				"point (%.4f, %.4f, %.4f) has non-positive z; the single camera transform requires z > 0",
				p.X, p.Y, p.Z)
		}
		p = r3.Vector{X: p.X / p.Z, Y: p.Y / p.Z, Z: math.Log(p.Z)}
	}
	return VoxelCoords{
		I: int64(math.Floor(p.X / vg.resolution)),
		J: int64(math.Floor(p.Y / vg.resolution)),
		K: int64(math.Floor(p.Z / vg.resolution)),
	}, nil
}

// AddPoint inserts a point into the grid, creating its leaf if the voxel was
// unoccupied so far.
func (vg *VoxelGrid) AddPoint(p r3.Vector, d pointcloud.Data) error {
	k, err := vg.VoxelKey(p)
	if err != nil {
		return err
	}
	if vg.ignoreNormals {
		d = stripNormal(d)
	}
	i, ok := vg.index[k]
	if !ok {
		i = len(vg.leaves)
		vg.index[k] = i
		vg.leaves = append(vg.leaves, &LeafContainer{key: k, idx: i, distance: math.Inf(1)})
	}
	vg.leaves[i].addPoint(p, d)
	return nil
}

// LeafCount returns the number of occupied voxels.
func (vg *VoxelGrid) LeafCount() int {
	return len(vg.leaves)
}

// Leaves returns the leaves in insertion order. The slice doubles as the dense
// centroid array: leaf i has Index() == i.
func (vg *VoxelGrid) Leaves() []*LeafContainer {
	return vg.leaves
}

// LeafAt returns the leaf for the given coordinates, or nil.
func (vg *VoxelGrid) LeafAt(k VoxelCoords) *LeafContainer {
	if i, ok := vg.index[k]; ok {
		return vg.leaves[i]
	}
	return nil
}

// LeafAtPoint returns the leaf whose voxel contains the given point, or nil.
func (vg *VoxelGrid) LeafAtPoint(p r3.Vector) (*LeafContainer, error) {
	k, err := vg.VoxelKey(p)
	if err != nil {
		return nil, err
	}
	return vg.LeafAt(k), nil
}

// computeData finalizes every leaf's centroid.
func (vg *VoxelGrid) computeData() {
	for _, leaf := range vg.leaves {
		leaf.computeData()
	}
}

// linkNeighbors populates every leaf's neighbor set with the occupied voxels
// whose keys differ by at most one in each coordinate, in 26-connectivity.
func (vg *VoxelGrid) linkNeighbors() {
	for _, leaf := range vg.leaves {
		leaf.neighbors = leaf.neighbors[:0]
		for di := int64(-1); di <= 1; di++ {
			for dj := int64(-1); dj <= 1; dj++ {
				for dk := int64(-1); dk <= 1; dk++ {
					if di == 0 && dj == 0 && dk == 0 {
						continue
					}
					k := VoxelCoords{I: leaf.key.I + di, J: leaf.key.J + dj, K: leaf.key.K + dk}
					if i, ok := vg.index[k]; ok {
						leaf.neighbors = append(leaf.neighbors, vg.leaves[i])
					}
				}
			}
		}
	}
}

// NewVoxelGridFromPointCloud creates and fills a VoxelGrid from a point cloud,
// computes the leaf centroids and links the voxel adjacency. Non-finite points
// are skipped.
func NewVoxelGridFromPointCloud(
	cloud pointcloud.PointCloud,
	resolution float64,
	useSingleCameraTransform, ignoreInputNormals bool,
) (*VoxelGrid, error) {
	vg := NewVoxelGrid(resolution, useSingleCameraTransform, ignoreInputNormals)
	var insertErr error
	cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		if !isFinite(p) {
			return true
		}
		if err := vg.AddPoint(p, d); err != nil {
			insertErr = err
			return false
		}
		return true
	})
	if insertErr != nil {
		return nil, insertErr
	}
	vg.computeData()
	vg.linkNeighbors()
	return vg, nil
}

func isFinite(p r3.Vector) bool {
	finite := func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
	return finite(p.X) && finite(p.Y) && finite(p.Z)
}

// stripNormal drops the normal from a point payload, keeping its color.
func stripNormal(d pointcloud.Data) pointcloud.Data {
	if d == nil || !d.HasNormal() {
		return d
	}
	if d.HasColor() {
		r, g, b := d.RGB255()
		return pointcloud.NewColoredData(color.NRGBA{R: r, G: g, B: b, A: 255})
	}
	return pointcloud.NewBasicData()
}
