// Package pointcloud holds the lidar-side data model and per-point edge
// scoring (spec §3, §4.3): the immutable per-frame point/reflectance
// arrays, a KD-tree over a frame's points, and the centrality/planarity
// edge scorer that the projector and cost functions consume.
package pointcloud

import (
	"sort"

	"github.com/golang/geo/r3"
)

// PointAndIndex pairs a point with its index into the original slice the
// KDTree was built from, mirroring the teacher's PointAndData shape
// (pointcloud.PointAndData in go.viam.com/rdk) but keyed by index rather
// than an opaque data payload, since every caller here already has a
// parallel array (reflectance, edge score, ...) indexed the same way.
type PointAndIndex struct {
	P     r3.Vector
	Index int
}

// kdNode is one node of a classic axis-aligned binary space partition over
// a static point set. Built once per frame; never mutated afterwards.
type kdNode struct {
	point       r3.Vector
	index       int
	axis        int
	left, right *kdNode
}

// KDTree is a static KD-tree over a frame's points, built once and queried
// many times during edge scoring (spec §4.3.1: "Build a KD-tree over pc").
type KDTree struct {
	root   *kdNode
	points []r3.Vector
}

// NewKDTree builds a balanced KD-tree over points. Construction is
// O(N log² N): each level sorts its points along its axis and picks the
// median.
func NewKDTree(points []r3.Vector) *KDTree {
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	return &KDTree{
		root:   buildKDNode(points, idx, 0),
		points: points,
	}
}

func buildKDNode(points []r3.Vector, idx []int, depth int) *kdNode {
	if len(idx) == 0 {
		return nil
	}
	axis := depth % 3
	sort.Slice(idx, func(i, j int) bool {
		return axisValue(points[idx[i]], axis) < axisValue(points[idx[j]], axis)
	})
	mid := len(idx) / 2
	node := &kdNode{
		point: points[idx[mid]],
		index: idx[mid],
		axis:  axis,
	}
	node.left = buildKDNode(points, idx[:mid], depth+1)
	node.right = buildKDNode(points, idx[mid+1:], depth+1)
	return node
}

func axisValue(p r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// knnHeap is a bounded, unordered buffer used to track the K closest
// candidates seen so far during a KNN descent; once full, a closer
// candidate replaces the farthest one, found by a linear scan.
type knnHeap struct {
	items []PointAndIndex
	dists []float64
	k     int
}

func (h *knnHeap) consider(p r3.Vector, idx int, d float64) {
	if len(h.items) < h.k {
		h.items = append(h.items, PointAndIndex{P: p, Index: idx})
		h.dists = append(h.dists, d)
		return
	}
	if len(h.items) == 0 {
		return
	}
	worst := 0
	for i, dd := range h.dists {
		if dd > h.dists[worst] {
			worst = i
		}
	}
	if d < h.dists[worst] {
		h.items[worst] = PointAndIndex{P: p, Index: idx}
		h.dists[worst] = d
	}
}

func (h *knnHeap) worstDist() float64 {
	if len(h.items) < h.k {
		return -1 // not yet full: must keep searching everything
	}
	worst := 0.0
	for _, d := range h.dists {
		if d > worst {
			worst = d
		}
	}
	return worst
}

func (h *knnHeap) sorted() []PointAndIndex {
	order := make([]int, len(h.items))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return h.dists[order[i]] < h.dists[order[j]] })
	out := make([]PointAndIndex, len(order))
	for i, o := range order {
		out[i] = h.items[o]
	}
	return out
}

// KNearestNeighbors returns the k closest points to target, sorted nearest
// first. len(points) <= k returns every point.
func (t *KDTree) KNearestNeighbors(target r3.Vector, k int) []PointAndIndex {
	if k <= 0 || t.root == nil {
		return []PointAndIndex{}
	}
	h := &knnHeap{k: k}
	t.knnSearch(t.root, target, h)
	return h.sorted()
}

func (t *KDTree) knnSearch(n *kdNode, target r3.Vector, h *knnHeap) {
	if n == nil {
		return
	}
	d := n.point.Sub(target).Norm2()
	h.consider(n.point, n.index, d)

	diff := axisValue(target, n.axis) - axisValue(n.point, n.axis)
	near, far := n.left, n.right
	if diff > 0 {
		near, far = n.right, n.left
	}
	t.knnSearch(near, target, h)

	worst := h.worstDist()
	if worst < 0 || diff*diff <= worst {
		t.knnSearch(far, target, h)
	}
}

// RadiusNeighbors returns every point within radius of target (inclusive),
// unordered.
func (t *KDTree) RadiusNeighbors(target r3.Vector, radius float64) []PointAndIndex {
	if t.root == nil || radius < 0 {
		return []PointAndIndex{}
	}
	r2 := radius * radius
	var out []PointAndIndex
	t.radiusSearch(t.root, target, r2, &out)
	return out
}

func (t *KDTree) radiusSearch(n *kdNode, target r3.Vector, r2 float64, out *[]PointAndIndex) {
	if n == nil {
		return
	}
	if n.point.Sub(target).Norm2() <= r2 {
		*out = append(*out, PointAndIndex{P: n.point, Index: n.index})
	}
	diff := axisValue(target, n.axis) - axisValue(n.point, n.axis)
	if diff <= 0 {
		t.radiusSearch(n.left, target, r2, out)
		if diff*diff <= r2 {
			t.radiusSearch(n.right, target, r2, out)
		}
	} else {
		t.radiusSearch(n.right, target, r2, out)
		if diff*diff <= r2 {
			t.radiusSearch(n.left, target, r2, out)
		}
	}
}
