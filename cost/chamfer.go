package cost

import (
	"math"

	"github.com/viam-labs/lidarcam-extrinsics/imgedge"
	"github.com/viam-labs/lidarcam-extrinsics/project"
)

// Chamfer computes the distance-transform cost (component G, spec §4.7):
// build the distance transform of the inverted edge mask once per frame,
// then sample it at every in-frustum projected lidar-edge pixel and
// average.
func Chamfer(detected imgedge.Result, tables project.Tables, edgeIdx []int) float64 {
	dt := distanceTransform(detected)

	var sum float64
	var n int
	for _, j := range edgeIdx {
		if !tables.InFrustum[j] {
			continue
		}
		px := tables.Pixels[j]
		x := clampInt(int(px[0]), 0, detected.Width()-1)
		y := clampInt(int(px[1]), 0, detected.Height()-1)
		sum += dt[y][x]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// distanceTransform approximates the L2 distance transform of the inverted
// edge mask (edge pixels at 0, distance growing away from them) with a
// two-pass chamfer sweep: orthogonal step 1.0, diagonal step sqrt(2), which
// converges to within a few percent of the exact Euclidean transform and
// avoids pulling in a dedicated image-processing dependency for one term.
func distanceTransform(detected imgedge.Result) [][]float64 {
	w, h := detected.Width(), detected.Height()
	const inf = math.MaxFloat64 / 2
	const diag = math.Sqrt2

	dt := make([][]float64, h)
	for y := 0; y < h; y++ {
		dt[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			if isEdge, _ := detected.At(x, y); isEdge {
				dt[y][x] = 0
			} else {
				dt[y][x] = inf
			}
		}
	}

	// forward pass: top-left to bottom-right
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := dt[y][x]
			best = minNeighbor(dt, best, x-1, y, w, h, 1)
			best = minNeighbor(dt, best, x, y-1, w, h, 1)
			best = minNeighbor(dt, best, x-1, y-1, w, h, diag)
			best = minNeighbor(dt, best, x+1, y-1, w, h, diag)
			dt[y][x] = best
		}
	}
	// backward pass: bottom-right to top-left
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			best := dt[y][x]
			best = minNeighbor(dt, best, x+1, y, w, h, 1)
			best = minNeighbor(dt, best, x, y+1, w, h, 1)
			best = minNeighbor(dt, best, x+1, y+1, w, h, diag)
			best = minNeighbor(dt, best, x-1, y+1, w, h, diag)
			dt[y][x] = best
		}
	}
	return dt
}

func minNeighbor(dt [][]float64, best float64, x, y, w, h int, step float64) float64 {
	if x < 0 || x >= w || y < 0 || y >= h {
		return best
	}
	cand := dt[y][x] + step
	if cand < best {
		return cand
	}
	return best
}
