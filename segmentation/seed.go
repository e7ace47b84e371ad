package segmentation

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/jpapon/supervoxel/pointcloud"
)

// selectInitialSupervoxelSeeds distributes seeds over the voxel centroid
// cloud: one candidate per occupied cell of a coarser grid at the seed
// resolution, snapped to the nearest voxel, shifted onto low-curvature voxels
// and then optionally pruned so no two seeds lie within half a seed
// resolution of each other. Returns dense voxel indices in stable order.
func (svc *SupervoxelClustering) selectInitialSupervoxelSeeds() []int {
	leaves := svc.grid.Leaves()
	if len(leaves) == 0 {
		return nil
	}

	// Occupied coarse cells, in first-seen order.
	occupied := make(map[VoxelCoords]bool)
	cells := make([]VoxelCoords, 0)
	for _, leaf := range leaves {
		p := leaf.centroid.Position
		k := VoxelCoords{
			I: int64(math.Floor(p.X / svc.seedResolution)),
			J: int64(math.Floor(p.Y / svc.seedResolution)),
			K: int64(math.Floor(p.Z / svc.seedResolution)),
		}
		if !occupied[k] {
			occupied[k] = true
			cells = append(cells, k)
		}
	}

	// Snap each cell center to its nearest voxel centroid.
	seeds := make([]int, 0, len(cells))
	for _, k := range cells {
		center := r3.Vector{
			X: (float64(k.I) + 0.5) * svc.seedResolution,
			Y: (float64(k.J) + 0.5) * svc.seedResolution,
			Z: (float64(k.K) + 0.5) * svc.seedResolution,
		}
		if idx, _, ok := svc.kdtree.Nearest(center); ok {
			seeds = append(seeds, idx)
		}
	}

	// Shift each seed onto the locally flattest voxel. The shift count bounds
	// the total travel to about one seed resolution.
	searchDepth := int(svc.seedResolution / svc.resolution)
	for i, idx := range seeds {
		for k := 0; k < searchDepth; k++ {
			idx = svc.findNeighborMinCurvature(idx)
		}
		seeds[i] = idx
	}

	// Shifting can funnel two cells onto the same voxel; keep the first.
	taken := make(map[int]bool, len(seeds))
	unique := seeds[:0]
	for _, idx := range seeds {
		if !taken[idx] {
			taken[idx] = true
			unique = append(unique, idx)
		}
	}
	seeds = unique

	if !svc.pruneCloseSeeds {
		return seeds
	}
	return pruneSeeds(seeds, leaves, svc.seedResolution/2)
}

// findNeighborMinCurvature returns, among a voxel and its neighbors, the
// dense index of the one with minimum curvature. The strict comparison keeps
// the earlier candidate on ties.
func (svc *SupervoxelClustering) findNeighborMinCurvature(idx int) int {
	leaves := svc.grid.Leaves()
	minIdx := idx
	minCurvature := leaves[idx].centroid.Curvature
	for _, neighbor := range leaves[idx].neighbors {
		if neighbor.centroid.Curvature < minCurvature {
			minCurvature = neighbor.centroid.Curvature
			minIdx = neighbor.idx
		}
	}
	return minIdx
}

// seedNeighborhood tracks, for one seed, which other seeds sit within the
// prune radius and how many of those are still alive. A seed always counts
// itself, so an isolated seed has numActive == 1.
type seedNeighborhood struct {
	voxelIdx  int
	neighbors []int // seed list indices within radius, sorted
	numActive int
	removed   bool
}

// pruneSeeds repeatedly removes the seed with the most live seeds in its
// radius until every survivor sees only itself. Ties are broken by insertion
// order, which keeps the outcome deterministic.
func pruneSeeds(seeds []int, leaves []*LeafContainer, radius float64) []int {
	positions := make([]r3.Vector, len(seeds))
	for i, idx := range seeds {
		positions[i] = leaves[idx].centroid.Position
	}
	seedTree := pointcloud.NewKDTreeFromPoints(positions)

	nhoods := make([]seedNeighborhood, len(seeds))
	for i, idx := range seeds {
		neighbors := seedTree.RadiusSearch(positions[i], radius)
		nhoods[i] = seedNeighborhood{
			voxelIdx:  idx,
			neighbors: neighbors,
			numActive: len(neighbors),
		}
	}

	for {
		mostActive := -1
		for i := range nhoods {
			if nhoods[i].removed || nhoods[i].numActive <= 1 {
				continue
			}
			if mostActive < 0 || nhoods[i].numActive > nhoods[mostActive].numActive {
				mostActive = i
			}
		}
		if mostActive < 0 {
			break
		}
		nhoods[mostActive].removed = true
		for i := range nhoods {
			if nhoods[i].removed {
				continue
			}
			j := sort.SearchInts(nhoods[i].neighbors, mostActive)
			if j < len(nhoods[i].neighbors) && nhoods[i].neighbors[j] == mostActive {
				nhoods[i].numActive--
			}
		}
	}

	survivors := make([]int, 0, len(nhoods))
	for i := range nhoods {
		if !nhoods[i].removed {
			survivors = append(survivors, nhoods[i].voxelIdx)
		}
	}
	return survivors
}
