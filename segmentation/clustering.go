package segmentation

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/jpapon/supervoxel/pointcloud"
)

// Default importance weights of the voxel distance metric.
const (
	DefaultColorImportance   = 0.1
	DefaultSpatialImportance = 0.4
	DefaultNormalImportance  = 1.0
)

// Option configures a SupervoxelClustering at construction.
type Option func(*SupervoxelClustering)

// WithSingleCameraTransform controls whether input points are reprojected to
// (x/z, y/z, ln z) before voxelisation. Defaults to true.
func WithSingleCameraTransform(use bool) Option {
	return func(svc *SupervoxelClustering) {
		svc.useSingleCameraTransform = use
	}
}

// WithSeedPruning controls whether seeds lying within half a seed resolution
// of another seed are pruned before growth. Defaults to true.
func WithSeedPruning(use bool) Option {
	return func(svc *SupervoxelClustering) {
		svc.pruneCloseSeeds = use
	}
}

// SupervoxelClustering partitions a point cloud into supervoxels: compact,
// locally coherent clusters of voxels grown from seeds under a weighted
// spatial/color/normal distance. A single instance may be reused across
// clouds; each Extract recomputes everything from the current input.
type SupervoxelClustering struct {
	logger golog.Logger

	resolution     float64
	seedResolution float64

	colorImportance   float64
	spatialImportance float64
	normalImportance  float64

	useSingleCameraTransform bool
	pruneCloseSeeds          bool
	ignoreInputNormals       bool

	input   pointcloud.PointCloud
	grid    *VoxelGrid
	kdtree  *pointcloud.KDTree
	helpers []*supervoxelHelper
}

// New returns a SupervoxelClustering with the given voxel and seed
// resolutions, in the units of the input cloud. The seed resolution is the
// approximate target supervoxel size and must exceed the voxel resolution.
func New(voxelResolution, seedResolution float64, logger golog.Logger, opts ...Option) (*SupervoxelClustering, error) {
	var err error
	if voxelResolution <= 0 {
		err = multierr.Append(err, errors.Errorf("voxel resolution must be positive, got %f", voxelResolution))
	}
	if seedResolution <= voxelResolution {
		err = multierr.Append(err, errors.Errorf(
			"seed resolution (%f) must be greater than voxel resolution (%f)", seedResolution, voxelResolution))
	}
	if err != nil {
		return nil, err
	}
	svc := &SupervoxelClustering{
		logger:                   logger,
		resolution:               voxelResolution,
		seedResolution:           seedResolution,
		colorImportance:          DefaultColorImportance,
		spatialImportance:        DefaultSpatialImportance,
		normalImportance:         DefaultNormalImportance,
		useSingleCameraTransform: true,
		pruneCloseSeeds:          true,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// VoxelResolution returns the voxel resolution.
func (svc *SupervoxelClustering) VoxelResolution() float64 {
	return svc.resolution
}

// SeedResolution returns the seed resolution.
func (svc *SupervoxelClustering) SeedResolution() float64 {
	return svc.seedResolution
}

// SetInputCloud sets the cloud to segment. An empty cloud is rejected with a
// warning and leaves any previous input in place.
func (svc *SupervoxelClustering) SetInputCloud(cloud pointcloud.PointCloud) {
	if cloud == nil || cloud.Size() == 0 {
		svc.logger.Warn("empty cloud set as input, doing nothing")
		return
	}
	svc.input = cloud
}

// SetColorImportance sets the weight of the color term of the distance metric.
func (svc *SupervoxelClustering) SetColorImportance(w float64) {
	svc.colorImportance = w
}

// SetSpatialImportance sets the weight of the spatial term of the distance metric.
func (svc *SupervoxelClustering) SetSpatialImportance(w float64) {
	svc.spatialImportance = w
}

// SetNormalImportance sets the weight of the normal term of the distance metric.
func (svc *SupervoxelClustering) SetNormalImportance(w float64) {
	svc.normalImportance = w
}

// SetIgnoreInputNormals forces internal normal estimation even when the input
// points carry normals.
func (svc *SupervoxelClustering) SetIgnoreInputNormals(ignore bool) {
	svc.ignoreInputNormals = ignore
}

// Extract runs the full pipeline on the current input cloud and returns the
// supervoxels keyed by label. Without input, or with an empty input, it
// returns an empty map. Precondition violations (a point with non-positive z
// under the single camera transform) fail the whole extraction.
func (svc *SupervoxelClustering) Extract() (map[uint32]*Supervoxel, error) {
	svc.grid = nil
	svc.kdtree = nil
	svc.helpers = nil

	if svc.input == nil || svc.input.Size() == 0 {
		svc.logger.Warn("no input cloud to extract supervoxels from, returning empty map")
		return map[uint32]*Supervoxel{}, nil
	}

	if err := svc.prepareForSegmentation(); err != nil {
		svc.grid = nil
		svc.kdtree = nil
		return nil, err
	}

	seeds := svc.selectInitialSupervoxelSeeds()
	svc.createSupervoxelHelpers(seeds)
	svc.expandSupervoxels(svc.maxExpansionDepth())
	return svc.makeSupervoxels(), nil
}

// RefineSupervoxels re-estimates per-voxel normals within each supervoxel,
// reseeds every supervoxel at the voxel nearest its centroid and regrows, for
// the given number of iterations. Valid only after Extract.
func (svc *SupervoxelClustering) RefineSupervoxels(iterations int) (map[uint32]*Supervoxel, error) {
	if len(svc.liveHelpers()) == 0 {
		svc.logger.Warn("supervoxels not extracted, call Extract before RefineSupervoxels; returning empty map")
		return map[uint32]*Supervoxel{}, nil
	}
	depth := svc.maxExpansionDepth()
	for i := 0; i < iterations; i++ {
		for _, h := range svc.liveHelpers() {
			h.refineNormals()
		}
		svc.reseedSupervoxels()
		svc.expandSupervoxels(depth)
	}
	return svc.makeSupervoxels(), nil
}

// prepareForSegmentation voxelises the input, finalizes leaf centroids and
// adjacency, estimates the missing normals and indexes the centroids for
// nearest neighbor queries.
func (svc *SupervoxelClustering) prepareForSegmentation() error {
	grid, err := NewVoxelGridFromPointCloud(svc.input, svc.resolution, svc.useSingleCameraTransform, svc.ignoreInputNormals)
	if err != nil {
		return errors.Wrap(err, "cannot voxelise input cloud")
	}
	svc.grid = grid
	computeVoxelNormals(grid)

	positions := make([]r3.Vector, grid.LeafCount())
	for i, leaf := range grid.Leaves() {
		positions[i] = leaf.centroid.Position
	}
	svc.kdtree = pointcloud.NewKDTreeFromPoints(positions)
	return nil
}

// maxExpansionDepth is the number of growth rounds; 1.8 seed resolutions of
// frontier travel is enough for neighboring clusters to meet and compete.
func (svc *SupervoxelClustering) maxExpansionDepth() int {
	return int(1.8 * svc.seedResolution / svc.resolution)
}

// createSupervoxelHelpers creates one helper per seed, labeled 1..N in seed
// order, each owning its seed leaf and centered on it.
func (svc *SupervoxelClustering) createSupervoxelHelpers(seeds []int) {
	svc.helpers = make([]*supervoxelHelper, 0, len(seeds))
	leaves := svc.grid.Leaves()
	for i, seedIdx := range seeds {
		h := newSupervoxelHelper(uint32(i+1), svc)
		h.addLeaf(leaves[seedIdx])
		h.centroid = leaves[seedIdx].centroid
		svc.helpers = append(svc.helpers, h)
	}
}

// expandSupervoxels runs the growth competition. Each round every helper, in
// label order, expands by one ring; emptied helpers are discarded and the
// survivors recompute their centroids.
func (svc *SupervoxelClustering) expandSupervoxels(depth int) {
	for i := 0; i < depth; i++ {
		for _, h := range svc.helpers {
			if h != nil {
				h.expand()
			}
		}
		for j, h := range svc.helpers {
			if h == nil {
				continue
			}
			if h.size() == 0 {
				svc.helpers[j] = nil
				continue
			}
			h.updateCentroid()
		}
	}
}

// reseedSupervoxels drops every helper's leaves and re-adds, per helper, the
// single voxel nearest its current centroid.
func (svc *SupervoxelClustering) reseedSupervoxels() {
	live := svc.liveHelpers()
	for _, h := range live {
		h.removeAllLeaves()
	}
	leaves := svc.grid.Leaves()
	for _, h := range live {
		idx, _, ok := svc.kdtree.Nearest(h.centroid.Position)
		if !ok {
			continue
		}
		h.addLeaf(leaves[idx])
	}
}

// liveHelpers returns the helpers that still own leaves, in label order.
func (svc *SupervoxelClustering) liveHelpers() []*supervoxelHelper {
	live := make([]*supervoxelHelper, 0, len(svc.helpers))
	for _, h := range svc.helpers {
		if h != nil {
			live = append(live, h)
		}
	}
	return live
}

// voxelDistance is the weighted distance between two voxel centroids. The
// normal term is sign-independent; the color and spatial terms are normalised
// to roughly [0, 1] by the RGB range and the seed resolution.
func (svc *SupervoxelClustering) voxelDistance(a, b VoxelCentroid) float64 {
	spatialDist := a.Position.Sub(b.Position).Norm() / svc.seedResolution
	colorDist := a.Color.Sub(b.Color).Norm() / 255.0
	cosAngle := 1.0 - math.Abs(a.Normal.Dot(b.Normal))
	return cosAngle*svc.normalImportance + colorDist*svc.colorImportance + spatialDist*svc.spatialImportance
}
