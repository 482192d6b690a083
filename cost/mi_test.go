package cost

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/lidarcam-extrinsics/project"
)

func grayImage(pixels [][]uint8) *image.Gray {
	h := len(pixels)
	w := len(pixels[0])
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: pixels[y][x]})
		}
	}
	return img
}

func frustumTablesForGrid(w, h int) project.Tables {
	var tables project.Tables
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tables.CamPoints = append(tables.CamPoints, r3.Vector{X: 0, Y: 0, Z: 10})
			tables.Pixels = append(tables.Pixels, [2]float64{float64(x), float64(y)})
			tables.InFrustum = append(tables.InFrustum, true)
		}
	}
	return tables
}

// TestMutualInformationUncorrelatedNoise is end-to-end scenario 4 of spec
// §8: random grayscale and random reflectance, statistically independent,
// should yield |MI| < 0.05 bits.
func TestMutualInformationUncorrelatedNoise(t *testing.T) {
	const w, h = 24, 24
	rng := rand.New(rand.NewSource(7))

	pixels := make([][]uint8, h)
	reflectance := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		pixels[y] = make([]uint8, w)
		for x := 0; x < w; x++ {
			pixels[y][x] = uint8(rng.Intn(256))
			reflectance = append(reflectance, rng.Float64())
		}
	}
	img := grayImage(pixels)
	tables := frustumTablesForGrid(w, h)

	mi := MutualInformation(img, reflectance, tables)
	test.That(t, math.Abs(mi), test.ShouldBeLessThan, 0.05)
}

// TestMutualInformationCorrelatedSignal checks the opposite end: when
// reflectance is a deterministic function of grayscale, |MI| should be
// meaningfully larger than in the uncorrelated case.
func TestMutualInformationCorrelatedSignal(t *testing.T) {
	const w, h = 24, 24
	pixels := make([][]uint8, h)
	reflectance := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		pixels[y] = make([]uint8, w)
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / (w - 1))
			pixels[y][x] = v
			reflectance = append(reflectance, float64(v)/255)
		}
	}
	img := grayImage(pixels)
	tables := frustumTablesForGrid(w, h)

	mi := MutualInformation(img, reflectance, tables)
	test.That(t, math.Abs(mi), test.ShouldBeGreaterThan, 0.3)
}

func TestMutualInformationTooFewSamples(t *testing.T) {
	img := grayImage([][]uint8{{10, 20}, {30, 40}})
	tables := project.Tables{
		CamPoints: []r3.Vector{{X: 0, Y: 0, Z: 10}},
		Pixels:    [][2]float64{{0, 0}},
		InFrustum: []bool{true},
	}
	got := MutualInformation(img, []float64{0.5}, tables)
	test.That(t, got, test.ShouldEqual, 0.0)
}
