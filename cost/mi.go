package cost

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/viam-labs/lidarcam-extrinsics/project"
)

// miGridSize is the 510-point discretization grid on [0, 255] named in
// spec §4.5.2.
const miGridSize = 510

// minMISamples is the "fewer than a handful of valid projected points"
// edge case of spec §4.5's Edge case: below this many samples the frame
// contributes nothing rather than fitting a degenerate KDE.
const minMISamples = 5

// MutualInformation computes the grayscale/reflectance MI cost (component
// E) for one frame: sample grayscale and matched reflectance at every
// in-frustum projected pixel, fit 1D and 2D kernel density estimates with
// Silverman bandwidths, and return the negated mutual information so lower
// (more negative) is better. Returns 0 for a frame with too few samples,
// per spec §4.5's fail-gracefully edge case.
func MutualInformation(img image.Image, reflectance []float64, tables project.Tables) float64 {
	var gray, refl []float64
	bounds := img.Bounds()

	for i, in := range tables.InFrustum {
		if !in {
			continue
		}
		px, py := tables.Pixels[i][0], tables.Pixels[i][1]
		x := int(px) + bounds.Min.X
		y := int(py) + bounds.Min.Y
		if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		gray = append(gray, grayscaleAt(img, x, y))
		refl = append(refl, reflectance[i]*255)
	}

	if len(gray) < minMISamples {
		return 0
	}

	grayDensity := kde1D(gray)
	reflDensity := kde1D(refl)
	jointDensity := kde2D(gray, refl)

	hGray := shannonEntropy(grayDensity)
	hRefl := shannonEntropy(reflDensity)
	hJoint := shannonEntropy2D(jointDensity)

	mi := hGray + hRefl - hJoint
	return -mi
}

func grayscaleAt(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	gray := color.GrayModel.Convert(color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: 0xffff}).(color.Gray)
	return float64(gray.Y)
}

// silvermanBandwidth is Silverman's rule of thumb:
// h = 0.9 * min(std, IQR/1.34) * n^(-1/5).
func silvermanBandwidth(samples []float64) float64 {
	n := float64(len(samples))
	std := stat.StdDev(samples, nil)

	sorted := append([]float64(nil), samples...)
	sortFloats(sorted)
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1

	spread := std
	if iqr > 0 && iqr/1.34 < spread {
		spread = iqr / 1.34
	}
	if spread <= 0 {
		spread = 1
	}
	return 0.9 * spread * math.Pow(n, -0.2)
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

// kde1D fits a Gaussian KDE over a miGridSize-point grid on [0, 255] and
// normalizes it to a proper probability mass (spec §4.5.2/.4).
func kde1D(samples []float64) []float64 {
	h := silvermanBandwidth(samples)
	grid := make([]float64, miGridSize)
	step := 255.0 / float64(miGridSize-1)

	for gi := 0; gi < miGridSize; gi++ {
		x := float64(gi) * step
		var sum float64
		for _, s := range samples {
			d := (x - s) / h
			sum += math.Exp(-0.5 * d * d)
		}
		grid[gi] = sum
	}
	normalizeToMass(grid)
	return grid
}

// kde2D fits a 2D Gaussian KDE (product of independently-bandwidthed
// kernels) over the miGridSize x miGridSize grid for the joint (g, r)
// distribution (spec §4.5.3).
func kde2D(g, r []float64) [][]float64 {
	hg := silvermanBandwidth(g)
	hr := silvermanBandwidth(r)
	step := 255.0 / float64(miGridSize-1)

	grid := make([][]float64, miGridSize)
	for i := range grid {
		grid[i] = make([]float64, miGridSize)
	}

	for n := range g {
		gs, rs := g[n], r[n]
		for gi := 0; gi < miGridSize; gi++ {
			x := float64(gi) * step
			dg := (x - gs) / hg
			kg := math.Exp(-0.5 * dg * dg)
			if kg < 1e-6 {
				continue
			}
			for ri := 0; ri < miGridSize; ri++ {
				y := float64(ri) * step
				dr := (y - rs) / hr
				kr := math.Exp(-0.5 * dr * dr)
				grid[gi][ri] += kg * kr
			}
		}
	}
	normalizeToMass2D(grid)
	return grid
}

func normalizeToMass(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}

func normalizeToMass2D(v [][]float64) {
	var sum float64
	for _, row := range v {
		for _, x := range row {
			sum += x
		}
	}
	if sum <= 0 {
		return
	}
	for _, row := range v {
		for i := range row {
			row[i] /= sum
		}
	}
}

func shannonEntropy(p []float64) float64 {
	var h float64
	for _, x := range p {
		if x <= 0 {
			continue
		}
		h -= x * math.Log2(x)
	}
	return h
}

func shannonEntropy2D(p [][]float64) float64 {
	var h float64
	for _, row := range p {
		for _, x := range row {
			if x <= 0 {
				continue
			}
			h -= x * math.Log2(x)
		}
	}
	return h
}
