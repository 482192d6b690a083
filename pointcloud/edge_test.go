package pointcloud

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

// syntheticEdgeScene builds a dense flat plane at x=0 and a second dense
// flat plane at y=0 crossing it along the line x=0,y=0; the points on that
// shared line belong to both planes. This is the "synthetic straight edge
// between two planes" construction of spec §8's P3.
func syntheticEdgeScene() (points []r3.Vector, edgeIdx []int, planeIdx []int) {
	const n = 12
	const step = 0.05

	// Plane 1: y-z plane at x=0, spanning z in [0, n*step), y in [-n/2, n/2)*step.
	for i := 0; i < n; i++ {
		for j := -n / 2; j < n/2; j++ {
			points = append(points, r3.Vector{X: 0, Y: float64(j) * step, Z: float64(i) * step})
		}
	}
	// Plane 2: x-z plane at y=0, spanning z in [0, n*step), x in [-n/2, n/2)*step.
	for i := 0; i < n; i++ {
		for j := -n / 2; j < n/2; j++ {
			points = append(points, r3.Vector{X: float64(j) * step, Y: 0, Z: float64(i) * step})
		}
	}

	// Record a few indices squarely in the interior of each plane (away
	// from all borders, including the shared edge) and on the shared edge
	// line itself (x=0, y=0).
	for i := 3; i < n-3; i++ {
		planeIdx = append(planeIdx, i*n+n/2+2) // interior of plane 1
	}
	for i := 3; i < n-3; i++ {
		// points on the shared edge line are the j==0 column of plane 1,
		// which coincides with x=0,y=0,z=i*step.
		edgeIdx = append(edgeIdx, i*n+n/2)
	}
	return points, edgeIdx, planeIdx
}

func TestEdgeScoreMonotonicityOnSyntheticEdge(t *testing.T) {
	points, edgeIdx, planeIdx := syntheticEdgeScene()
	kd := NewKDTree(points)
	cfg := EdgeConfig{NumNN: 20, RadiusNN: 0.08, AbsoluteThreshold: 0}
	scores := ScoreEdges(points, kd, cfg)

	minEdgeScore := 1.0
	for _, i := range edgeIdx {
		if scores.Score[i] < minEdgeScore {
			minEdgeScore = scores.Score[i]
		}
	}
	maxPlaneScore := 0.0
	for _, i := range planeIdx {
		if scores.Score[i] > maxPlaneScore {
			maxPlaneScore = scores.Score[i]
		}
	}
	test.That(t, minEdgeScore, test.ShouldBeGreaterThanOrEqualTo, maxPlaneScore)
}

func TestScoreEdgesThresholdModes(t *testing.T) {
	points, _, _ := syntheticEdgeScene()
	kd := NewKDTree(points)

	abs := ScoreEdges(points, kd, EdgeConfig{NumNN: 20, RadiusNN: 0.08, AbsoluteThreshold: 2})
	test.That(t, abs.Idx, test.ShouldHaveLength, 0)

	pct := ScoreEdges(points, kd, EdgeConfig{NumNN: 20, RadiusNN: 0.08, Percentile: 90})
	test.That(t, len(pct.Idx) > 0, test.ShouldBeTrue)
	for _, i := range pct.Idx {
		test.That(t, pct.Mask[i], test.ShouldBeTrue)
	}
}

func TestScoreEdgesNormalizedToUnitRange(t *testing.T) {
	points, _, _ := syntheticEdgeScene()
	kd := NewKDTree(points)
	scores := ScoreEdges(points, kd, EdgeConfig{NumNN: 20, RadiusNN: 0.08})
	for _, s := range scores.Score {
		test.That(t, s >= 0 && s <= 1, test.ShouldBeTrue)
	}
}
