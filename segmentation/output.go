package segmentation

import (
	"image/color"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/jpapon/supervoxel/pointcloud"
)

// Supervoxel is one cluster of the output partition: a label, the cluster
// centroid and the member voxel centroids as a cloud.
type Supervoxel struct {
	Label    uint32
	Centroid VoxelCentroid
	Voxels   pointcloud.PointCloud
}

// makeSupervoxels materialises the per-label summaries from the live helpers.
func (svc *SupervoxelClustering) makeSupervoxels() map[uint32]*Supervoxel {
	out := make(map[uint32]*Supervoxel)
	for _, h := range svc.liveHelpers() {
		voxels := pointcloud.NewWithPrealloc(h.size())
		for _, leaf := range h.voxels() {
			//nolint:errcheck
			voxels.Set(leaf.centroid.Position, centroidData(leaf.centroid))
		}
		out[h.label] = &Supervoxel{
			Label:    h.label,
			Centroid: h.centroid,
			Voxels:   voxels,
		}
	}
	return out
}

// SupervoxelAdjacency returns, for each label, the sorted labels of the
// supervoxels owning a neighbor of any of its voxels. Every undirected
// adjacency appears under both labels.
func (svc *SupervoxelClustering) SupervoxelAdjacency() map[uint32][]uint32 {
	adjacency := make(map[uint32][]uint32)
	for _, h := range svc.liveHelpers() {
		if neighbors := h.neighborLabels(); len(neighbors) > 0 {
			adjacency[h.label] = neighbors
		}
	}
	return adjacency
}

// SupervoxelAdjacencyGraph returns the adjacency as an undirected weighted
// graph with one node per label; edge weights are the distance metric
// evaluated between the two cluster centroids.
func (svc *SupervoxelClustering) SupervoxelAdjacencyGraph() *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	live := svc.liveHelpers()
	byLabel := make(map[uint32]*supervoxelHelper, len(live))
	for _, h := range live {
		byLabel[h.label] = h
		g.AddNode(simple.Node(h.label))
	}
	for _, h := range live {
		for _, neighbor := range h.neighborLabels() {
			if neighbor <= h.label {
				continue // undirected, one edge per unordered pair
			}
			w := svc.voxelDistance(h.centroid, byLabel[neighbor].centroid)
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(h.label), simple.Node(neighbor), w))
		}
	}
	return g
}

// VoxelCentroidCloud returns the voxel centroids in dense index order, with
// their averaged colors and estimated normals.
func (svc *SupervoxelClustering) VoxelCentroidCloud() pointcloud.PointCloud {
	if svc.grid == nil {
		return pointcloud.New()
	}
	cloud := pointcloud.NewWithPrealloc(svc.grid.LeafCount())
	for _, leaf := range svc.grid.Leaves() {
		//nolint:errcheck
		cloud.Set(leaf.centroid.Position, centroidData(leaf.centroid))
	}
	return cloud
}

// LabeledCloud returns the input cloud with each point annotated with the
// label of the supervoxel owning its voxel, or 0 when the voxel was never
// reached. Non-finite points are labeled 0 without lookup.
func (svc *SupervoxelClustering) LabeledCloud() (pointcloud.PointCloud, error) {
	if svc.input == nil || svc.grid == nil {
		svc.logger.Warn("no extraction to label the cloud from, returning empty cloud")
		return pointcloud.New(), nil
	}
	labeled := pointcloud.NewWithPrealloc(svc.input.Size())
	var lookupErr error
	svc.input.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		label := 0
		if isFinite(p) {
			leaf, err := svc.grid.LeafAtPoint(p)
			if err != nil {
				lookupErr = err
				return false
			}
			if leaf != nil && leaf.owner != nil {
				label = int(leaf.owner.label)
			}
		}
		lookupErr = labeled.Set(p, pointcloud.NewValueData(label))
		return lookupErr == nil
	})
	if lookupErr != nil {
		return nil, lookupErr
	}
	return labeled, nil
}

// LabeledVoxelCloud returns one point per owned voxel centroid, annotated
// with its owner's label, in label order.
func (svc *SupervoxelClustering) LabeledVoxelCloud() pointcloud.PointCloud {
	cloud := pointcloud.New()
	for _, h := range svc.liveHelpers() {
		for _, leaf := range h.voxels() {
			//nolint:errcheck
			cloud.Set(leaf.centroid.Position, pointcloud.NewValueData(int(h.label)))
		}
	}
	return cloud
}

// ColoredVoxelCloud returns one point per owned voxel centroid, painted with
// a distinct deterministic color per label.
func (svc *SupervoxelClustering) ColoredVoxelCloud() pointcloud.PointCloud {
	cloud := pointcloud.New()
	for _, h := range svc.liveHelpers() {
		c := labelColor(h.label)
		for _, leaf := range h.voxels() {
			//nolint:errcheck
			cloud.Set(leaf.centroid.Position, pointcloud.NewColoredData(c))
		}
	}
	return cloud
}

// ColoredCloud returns the input cloud painted with its supervoxel's label
// color. Unlabeled and non-finite points are painted black.
func (svc *SupervoxelClustering) ColoredCloud() (pointcloud.PointCloud, error) {
	labeled, err := svc.LabeledCloud()
	if err != nil {
		return nil, err
	}
	colored := pointcloud.NewWithPrealloc(labeled.Size())
	var setErr error
	labeled.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		c := color.NRGBA{A: 255}
		if d != nil && d.HasValue() && d.Value() > 0 {
			c = labelColor(uint32(d.Value()))
		}
		setErr = colored.Set(p, pointcloud.NewColoredData(c))
		return setErr == nil
	})
	if setErr != nil {
		return nil, setErr
	}
	return colored, nil
}

// SupervoxelNormalCloud returns one point per supervoxel, at the cluster
// centroid, carrying the cluster normal, in ascending label order.
func (svc *SupervoxelClustering) SupervoxelNormalCloud(supervoxels map[uint32]*Supervoxel) pointcloud.PointCloud {
	labels := make([]uint32, 0, len(supervoxels))
	for label := range supervoxels {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	cloud := pointcloud.NewWithPrealloc(len(labels))
	for _, label := range labels {
		sv := supervoxels[label]
		//nolint:errcheck
		cloud.Set(sv.Centroid.Position, pointcloud.NewNormalData(sv.Centroid.Normal))
	}
	return cloud
}

// MaxLabel returns the highest label among the live supervoxels, 0 if none.
func (svc *SupervoxelClustering) MaxLabel() uint32 {
	var maxLabel uint32
	for _, h := range svc.liveHelpers() {
		if h.label > maxLabel {
			maxLabel = h.label
		}
	}
	return maxLabel
}

// centroidData packages a voxel centroid's color and normal as a point payload.
func centroidData(c VoxelCentroid) pointcloud.Data {
	return pointcloud.NewColoredNormalData(color.NRGBA{
		R: uint8(clampColor(c.Color.X)),
		G: uint8(clampColor(c.Color.Y)),
		B: uint8(clampColor(c.Color.Z)),
		A: 255,
	}, c.Normal)
}

func clampColor(v float64) float64 {
	return math.Max(0, math.Min(255, math.Round(v)))
}

// labelColor produces a stable, well-spread color for a label by stepping the
// hue by the golden angle.
func labelColor(label uint32) color.NRGBA {
	hue := math.Mod(float64(label)*137.50776405, 360)
	sat := 0.55 + 0.15*float64(label%3)
	val := 0.95 - 0.1*float64(label%2)
	r, g, b := colorful.Hsv(hue, sat, val).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
