package cost

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/viam-labs/lidarcam-extrinsics/project"
	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

// Correspondence computes the user-picked pixel/point re-projection cost
// (component F, spec §4.6). lidarPoints is re-projected through the
// current transform internally rather than taking pre-built tables,
// because the correspondence set is a separate, much smaller point
// selection than the edge-scored cloud the other cost terms share.
func Correspondence(pixelPairs [][2]float64, lidarPoints []r3.Vector, t tau.Tau, k project.Intrinsics) float64 {
	offset := 3 * math.Hypot(float64(k.Width), float64(k.Height))

	p := len(pixelPairs)
	if p == 0 || len(lidarPoints) != p {
		return -offset
	}

	tables := project.Project(lidarPoints, t, k)

	var sum float64
	for i, pair := range pixelPairs {
		lp := tables.Pixels[i]
		d := math.Abs(pair[0]-lp[0]) + math.Abs(pair[1]-lp[1])
		sum += softL1(d)
	}
	avg := sum / float64(p)

	return -offset + 3*avg
}

// softL1 is rho(d) of spec §4.6: linear below the 5-pixel gross-misalignment
// threshold, quadratic above it.
func softL1(d float64) float64 {
	if d <= 5 {
		return d
	}
	return d * d
}
