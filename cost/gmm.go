// Package cost implements the four alignment cost terms the optimizer shell
// (package calibrate) sums: edge-convolution (§4.4), mutual information
// (§4.5), correspondence (§4.6), and chamfer (§4.7). Every cost function
// takes the projection tables as an explicit argument rather than reaching
// into shared state (spec §9's "coupled costs read derived tables"), so the
// per-iteration rebuild-then-cost dependency is visible at every call site.
package cost

import (
	"math"

	"github.com/viam-labs/lidarcam-extrinsics/imgedge"
	"github.com/viam-labs/lidarcam-extrinsics/pointcloud"
	"github.com/viam-labs/lidarcam-extrinsics/project"
)

// GMMParams configures the Gaussian-kernel edge-convolution cost of spec
// §4.4.
type GMMParams struct {
	// SigmaIn is sigma_in, the base kernel width in pixels.
	SigmaIn float64
	// DistanceScale enables sigma = SigmaIn / ||cam_point|| (spec §4.4.1);
	// when false, sigma is constant at SigmaIn for every edge point.
	DistanceScale bool
}

// EdgeConvolution computes the GMM/conv cost (component D) for one frame:
// a Gaussian-weighted accumulation of image-edge score around each
// projected, in-frustum lidar edge pixel, returned negated so larger
// alignment yields a more-negative (better, minimized) value.
func EdgeConvolution(
	pc pointcloud.EdgeScores,
	tables project.Tables,
	edgeIdx []int,
	detected imgedge.Result,
	params GMMParams,
) float64 {
	w, h := detected.Width(), detected.Height()
	var total float64

	for _, j := range edgeIdx {
		if !tables.InFrustum[j] {
			continue
		}
		mu := tables.Pixels[j]
		camNorm := tables.CamPoints[j].Norm()

		sigma := params.SigmaIn
		if params.DistanceScale && camNorm > 0 {
			sigma = params.SigmaIn / camNorm
		}
		if sigma <= 0 {
			continue
		}

		minX := clampInt(int(mu[0]-3*sigma), 0, w)
		maxX := clampInt(int(mu[0]+3*sigma)+1, 0, w)
		minY := clampInt(int(mu[1]-3*sigma), 0, h)
		maxY := clampInt(int(mu[1]+3*sigma)+1, 0, h)

		numEdgePixels := 0
		for y := minY; y < maxY; y++ {
			for x := minX; x < maxX; x++ {
				if isEdge, _ := detected.At(x, y); isEdge {
					numEdgePixels++
				}
			}
		}
		if numEdgePixels == 0 {
			continue
		}

		wi := pc.Score[j]
		var accum float64
		for y := minY; y < maxY; y++ {
			for x := minX; x < maxX; x++ {
				isEdge, wj := detected.At(x, y)
				if !isEdge {
					continue
				}
				wij := 0.5 * (wi + wj) / float64(numEdgePixels)
				accum += wij * gaussian2D(float64(x), float64(y), mu[0], mu[1], sigma)
			}
		}
		total += accum / (2 * float64(numEdgePixels))
	}

	return -total
}

// gaussian2D evaluates the isotropic Gaussian kernel of spec §4.4.4. The
// normalizer is deliberately the 1D constant 1/(sigma*sqrt(2*pi)), not the
// 2D constant 1/(2*pi*sigma^2): the optimizer only cares about relative
// magnitudes, and this matches the Python source's use of
// scipy.stats.multivariate_normal with a diagonal covariance evaluated as
// a separable product collapsed to a single scale factor.
func gaussian2D(x, y, muX, muY, sigma float64) float64 {
	dx := x - muX
	dy := y - muY
	norm := 1 / (sigma * math.Sqrt(2*math.Pi))
	return norm * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
