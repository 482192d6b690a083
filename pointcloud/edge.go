package pointcloud

import (
	"errors"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyEdgeSet names the condition in which every point in a frame
// scores below the configured threshold. ScoreEdges itself never returns it
// (it never fails on a degenerate frame per spec §7); a caller that finds
// an empty Idx may surface it.
var ErrEmptyEdgeSet = errors.New("pointcloud: no points scored above the edge threshold")

// EdgeConfig controls the per-point saliency scoring of spec §4.3.
type EdgeConfig struct {
	// NumNN is K, the number of nearest neighbors in the KNN part of each
	// point's neighborhood (pc_ed_num_nn).
	NumNN int
	// RadiusNN is the radius, in meters, of the supplemental radius
	// neighborhood (pc_ed_rad_nn).
	RadiusNN float64
	// AbsoluteThreshold, if Percentile == 0, is the absolute score cutoff
	// (score >= AbsoluteThreshold).
	AbsoluteThreshold float64
	// Percentile, in (0, 100], selects the percentile-based cutoff instead
	// of AbsoluteThreshold (score >= P_q). Spec's Python default is the
	// 55th percentile.
	Percentile float64
}

// EdgeScores holds the per-frame edge-scoring tables of spec §3: the full
// combined score per point, the boolean threshold mask, and the filtered
// index list of points that passed the threshold.
type EdgeScores struct {
	Score []float64 // len == N, aligned with the input points
	Mask  []bool    // len == N
	Idx   []int     // indices of points with Mask[i] == true
}

// ScoreEdges computes the centrality/planarity saliency score of spec §4.3
// for every point in points, using kd as the neighborhood index (kd must
// have been built from the same points slice). It never returns an error:
// a frame with zero candidate neighborhoods degenerates to all-zero scores,
// consistent with the EmptyEdgeSet propagation policy in spec §7 (the
// caller decides whether to log/surface ErrEmptyEdgeSet after inspecting
// the returned Idx).
func ScoreEdges(points []r3.Vector, kd *KDTree, cfg EdgeConfig) EdgeScores {
	n := len(points)
	centrality := make([]float64, n)
	planarity := make([]float64, n)

	for i, p := range points {
		neighbors := gatherNeighborhood(kd, p, i, cfg)
		if len(neighbors) < 3 {
			// Too few neighbors to define a centroid/covariance that means
			// anything; leave both scores at zero for this point.
			continue
		}
		centrality[i] = centralityScore(p, neighbors)
		planarity[i] = planarityScore(p, neighbors)
	}

	normalizeInPlace(centrality)
	normalizeInPlace(planarity)

	score := make([]float64, n)
	for i := range score {
		score[i] = 0.5 * (centrality[i] + planarity[i])
	}

	thr := cfg.AbsoluteThreshold
	if cfg.Percentile > 0 {
		thr = percentile(score, cfg.Percentile)
	}

	mask := make([]bool, n)
	idx := make([]int, 0, n)
	for i, s := range score {
		if s >= thr {
			mask[i] = true
			idx = append(idx, i)
		}
	}

	return EdgeScores{Score: score, Mask: mask, Idx: idx}
}

// gatherNeighborhood returns I = I1 (K nearest) union I2 (radius neighbors
// not already in I1), excluding the query point itself, per spec §4.3.2.
func gatherNeighborhood(kd *KDTree, p r3.Vector, selfIdx int, cfg EdgeConfig) []PointAndIndex {
	knn := kd.KNearestNeighbors(p, cfg.NumNN+1) // +1: query point is its own neighbor
	inKNN := make(map[int]bool, len(knn))
	out := make([]PointAndIndex, 0, len(knn))
	for _, n := range knn {
		if n.Index == selfIdx {
			continue
		}
		inKNN[n.Index] = true
		out = append(out, n)
	}

	if cfg.RadiusNN > 0 {
		radial := kd.RadiusNeighbors(p, cfg.RadiusNN)
		for _, n := range radial {
			if n.Index == selfIdx || inKNN[n.Index] {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}

// centralityScore is c_i = ||mean(neighborhood) - p|| / max(neighbor
// distance), spec §4.3.2.d.
func centralityScore(p r3.Vector, neighbors []PointAndIndex) float64 {
	var sum r3.Vector
	maxDist := 0.0
	for _, n := range neighbors {
		sum = sum.Add(n.P)
		if d := n.P.Sub(p).Norm(); d > maxDist {
			maxDist = d
		}
	}
	if maxDist == 0 {
		return 0
	}
	mean := sum.Mul(1 / float64(len(neighbors)))
	return mean.Sub(p).Norm() / maxDist
}

// planarityScore is the surface-variation ratio (smallest eigenvalue / sum
// of eigenvalues) of the neighborhood covariance, spec §4.3.2.e — larger
// means more edge-like. A flat plane's neighborhood covariance is rank-2
// (lambda_min ~= 0), scoring near 0; a crease between two planes bends the
// neighborhood into a rank-3 covariance with a non-negligible lambda_min,
// scoring higher.
func planarityScore(p r3.Vector, neighbors []PointAndIndex) float64 {
	pts := make([]r3.Vector, len(neighbors)+1)
	pts[0] = p
	for i, n := range neighbors {
		pts[i+1] = n.P
	}

	var mean r3.Vector
	for _, q := range pts {
		mean = mean.Add(q)
	}
	mean = mean.Mul(1 / float64(len(pts)))

	cov := mat.NewSymDense(3, nil)
	for a := 0; a < 3; a++ {
		for b := a; b < 3; b++ {
			var s float64
			for _, q := range pts {
				d := q.Sub(mean)
				s += axisValue(d, a) * axisValue(d, b)
			}
			cov.SetSym(a, b, s/float64(len(pts)))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return 0
	}
	values := eig.Values(nil)
	sort.Float64s(values)
	sum := values[0] + values[1] + values[2]
	if sum <= 0 {
		return 0
	}
	return values[0] / sum
}

func normalizeInPlace(v []float64) {
	if len(v) == 0 {
		return
	}
	max := floats.Max(v)
	if max <= 0 {
		return
	}
	for i := range v {
		v[i] /= max
	}
}

// percentile returns the score value at the given percentile (0, 100] of
// scores, using linear interpolation between closest ranks.
func percentile(scores []float64, p float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
