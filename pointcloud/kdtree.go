package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// kdPoint is a position in a cloud together with its insertion index, so that
// query results can be mapped back to whatever dense structure parallels the
// cloud. It satisfies kdtree.Comparable with squared euclidean distances.
type kdPoint struct {
	pos r3.Vector
	idx int
}

func (p kdPoint) dim(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.pos.X
	case 1:
		return p.pos.Y
	default:
		return p.pos.Z
	}
}

// Compare returns the signed distance of p from the plane passing through c
// perpendicular to the dimension d.
func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	return p.dim(d) - q.dim(d)
}

// Dims returns the number of dimensions described by the point.
func (p kdPoint) Dims() int { return 3 }

// Distance returns the squared euclidean distance between the points.
func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	diff := p.pos.Sub(q.pos)
	return diff.Dot(diff)
}

// kdPoints satisfies kdtree.Interface.
type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Pivot(d kdtree.Dim) int                { return kdPlane{points: p, Dim: d}.Pivot() }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// kdPlane is required by the gonum kdtree builder for median partitioning.
type kdPlane struct {
	kdtree.Dim
	points kdPoints
}

func (p kdPlane) Len() int { return len(p.points) }
func (p kdPlane) Less(i, j int) bool {
	return p.points[i].dim(p.Dim) < p.points[j].dim(p.Dim)
}
func (p kdPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p kdPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// KDTree extends a PointCloud with a gonum kd-tree over its positions for
// nearest neighbor and radius queries. Query results are reported as indices
// into the cloud's insertion order.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// NewKDTree creates a KDTree from the points of an existing PointCloud.
func NewKDTree(cloud PointCloud) *KDTree {
	pts := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(func(p r3.Vector, d Data) bool {
		pts = append(pts, p)
		return true
	})
	return NewKDTreeFromPoints(pts)
}

// NewKDTreeFromPoints creates a KDTree from a slice of positions. Queries
// report indices into the given slice.
func NewKDTreeFromPoints(pts []r3.Vector) *KDTree {
	ps := make(kdPoints, len(pts))
	for i, p := range pts {
		ps[i] = kdPoint{pos: p, idx: i}
	}
	var tree *kdtree.Tree
	if len(ps) > 0 {
		tree = kdtree.New(ps, false)
	}
	return &KDTree{tree: tree, size: len(ps)}
}

// Size returns the number of points indexed by the tree.
func (kd *KDTree) Size() int {
	return kd.size
}

// Nearest returns the index of the point closest to p and its euclidean
// distance. The third return is false if the tree is empty.
func (kd *KDTree) Nearest(p r3.Vector) (int, float64, bool) {
	if kd.tree == nil {
		return 0, 0, false
	}
	got, dist := kd.tree.Nearest(kdPoint{pos: p, idx: -1})
	if got == nil {
		return 0, 0, false
	}
	return got.(kdPoint).idx, math.Sqrt(dist), true
}

// RadiusSearch returns the indices of all points within radius of p,
// sorted ascending, including any point exactly at p.
func (kd *KDTree) RadiusSearch(p r3.Vector, radius float64) []int {
	if kd.tree == nil {
		return nil
	}
	keep := kdtree.NewDistKeeper(radius * radius)
	kd.tree.NearestSet(keep, kdPoint{pos: p, idx: -1})
	indices := make([]int, 0, keep.Heap.Len())
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		indices = append(indices, c.Comparable.(kdPoint).idx)
	}
	sort.Ints(indices)
	return indices
}
