package segmentation

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// leafSet is an insertion-ordered set of leaves. Removal tombstones the slot
// so that surviving iteration order never changes; slots are compacted once
// they outnumber the live entries.
type leafSet struct {
	items []*LeafContainer
	index map[*LeafContainer]int
	dead  int
}

func newLeafSet() *leafSet {
	return &leafSet{index: make(map[*LeafContainer]int)}
}

func (s *leafSet) Len() int {
	return len(s.index)
}

func (s *leafSet) Contains(leaf *LeafContainer) bool {
	_, ok := s.index[leaf]
	return ok
}

func (s *leafSet) Add(leaf *LeafContainer) {
	if _, ok := s.index[leaf]; ok {
		return
	}
	s.index[leaf] = len(s.items)
	s.items = append(s.items, leaf)
}

func (s *leafSet) Remove(leaf *LeafContainer) {
	i, ok := s.index[leaf]
	if !ok {
		return
	}
	s.items[i] = nil
	delete(s.index, leaf)
	s.dead++
	if s.dead > len(s.index) {
		s.compact()
	}
}

func (s *leafSet) Clear() {
	s.items = s.items[:0]
	s.index = make(map[*LeafContainer]int)
	s.dead = 0
}

func (s *leafSet) compact() {
	live := s.items[:0]
	for _, leaf := range s.items {
		if leaf != nil {
			s.index[leaf] = len(live)
			live = append(live, leaf)
		}
	}
	s.items = live
	s.dead = 0
}

// Range visits the live leaves in insertion order.
func (s *leafSet) Range(fn func(leaf *LeafContainer) bool) {
	for _, leaf := range s.items {
		if leaf == nil {
			continue
		}
		if !fn(leaf) {
			return
		}
	}
}

// centroidAccumulator computes running means without accumulating a large sum,
// so long clusters do not lose precision.
type centroidAccumulator struct {
	pos       r3.Vector
	color     r3.Vector
	normal    r3.Vector
	curvature float64
	n         int
}

func (a *centroidAccumulator) add(c VoxelCentroid) {
	a.n++
	w := 1 / float64(a.n)
	a.pos = a.pos.Add(c.Position.Sub(a.pos).Mul(w))
	a.color = a.color.Add(c.Color.Sub(a.color).Mul(w))
	a.normal = a.normal.Add(c.Normal.Sub(a.normal).Mul(w))
	a.curvature += (c.Curvature - a.curvature) * w
}

func (a *centroidAccumulator) get() VoxelCentroid {
	c := VoxelCentroid{
		Position:  a.pos,
		Color:     a.color,
		Curvature: a.curvature,
	}
	if a.normal.Norm() > 0 {
		c.Normal = a.normal.Normalize()
	}
	return c
}

// supervoxelHelper is the working representation of one growing supervoxel:
// a label, the set of leaves it currently owns and a running centroid.
type supervoxelHelper struct {
	label    uint32
	parent   *SupervoxelClustering
	leaves   *leafSet
	centroid VoxelCentroid
}

func newSupervoxelHelper(label uint32, parent *SupervoxelClustering) *supervoxelHelper {
	return &supervoxelHelper{label: label, parent: parent, leaves: newLeafSet()}
}

func (h *supervoxelHelper) size() int {
	return h.leaves.Len()
}

// addLeaf takes ownership of a leaf, removing it from any previous owner
// first so a leaf is never listed by two helpers.
func (h *supervoxelHelper) addLeaf(leaf *LeafContainer) {
	if leaf.owner == h {
		return
	}
	if leaf.owner != nil {
		leaf.owner.leaves.Remove(leaf)
	}
	leaf.owner = h
	leaf.distance = 0
	h.leaves.Add(leaf)
}

func (h *supervoxelHelper) removeLeaf(leaf *LeafContainer) {
	h.leaves.Remove(leaf)
}

// removeAllLeaves releases ownership of every leaf, resetting each to the
// unowned state.
func (h *supervoxelHelper) removeAllLeaves() {
	h.leaves.Range(func(leaf *LeafContainer) bool {
		leaf.owner = nil
		leaf.distance = math.Inf(1)
		return true
	})
	h.leaves.Clear()
}

// expand grows the supervoxel by one round: every neighbor of every owned
// leaf is measured against this helper's centroid, and is stolen from its
// current owner when strictly closer. Newly won leaves are staged and only
// inserted after the sweep so the set being iterated never changes.
func (h *supervoxelHelper) expand() {
	newOwned := make([]*LeafContainer, 0, h.leaves.Len()*9)
	h.leaves.Range(func(leaf *LeafContainer) bool {
		for _, neighbor := range leaf.neighbors {
			if neighbor.owner == h {
				continue
			}
			dist := h.parent.voxelDistance(h.centroid, neighbor.centroid)
			if dist < neighbor.distance {
				neighbor.distance = dist
				if neighbor.owner != nil {
					neighbor.owner.removeLeaf(neighbor)
				}
				neighbor.owner = h
				newOwned = append(newOwned, neighbor)
			}
		}
		return true
	})
	for _, leaf := range newOwned {
		h.leaves.Add(leaf)
	}
}

// updateCentroid recomputes the running centroid from the currently owned
// leaves.
func (h *supervoxelHelper) updateCentroid() {
	var acc centroidAccumulator
	h.leaves.Range(func(leaf *LeafContainer) bool {
		acc.add(leaf.centroid)
		return true
	})
	h.centroid = acc.get()
}

// refineNormals re-estimates each owned leaf's normal using only the part of
// its 2-ring that belongs to this supervoxel. Leaves whose restricted ring is
// too small keep their current normal.
func (h *supervoxelHelper) refineNormals() {
	leaves := h.parent.grid.Leaves()
	h.leaves.Range(func(leaf *LeafContainer) bool {
		indices := twoRingIndices(leaf, h)
		normal, curvature, ok := computePointNormal(leaves, indices)
		if ok {
			leaf.centroid.Normal = flipNormalTowardsViewpoint(normal, leaf.centroid.Position, r3.Vector{})
			leaf.centroid.Curvature = curvature
		}
		return true
	})
}

// neighborLabels returns the sorted labels of all other supervoxels owning a
// neighbor of any owned leaf. Unowned neighbors do not contribute.
func (h *supervoxelHelper) neighborLabels() []uint32 {
	seen := make(map[uint32]bool)
	h.leaves.Range(func(leaf *LeafContainer) bool {
		for _, neighbor := range leaf.neighbors {
			if neighbor.owner != nil && neighbor.owner != h {
				seen[neighbor.owner.label] = true
			}
		}
		return true
	})
	labels := make([]uint32, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// voxels returns the owned leaves, in the order the leaves joined the
// supervoxel.
func (h *supervoxelHelper) voxels() []*LeafContainer {
	out := make([]*LeafContainer, 0, h.leaves.Len())
	h.leaves.Range(func(leaf *LeafContainer) bool {
		out = append(out, leaf)
		return true
	})
	return out
}
