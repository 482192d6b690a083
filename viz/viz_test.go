package viz

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/lidarcam-extrinsics/project"
)

func TestColorizeByRangeDrawsOnlyInFrustumPoints(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 32, 32))
	tables := project.Tables{
		CamPoints: []r3.Vector{{X: 0, Y: 0, Z: 5}, {X: 0, Y: 0, Z: 50}},
		Pixels:    [][2]float64{{10, 10}, {20, 20}},
		InFrustum: []bool{true, false},
	}
	out := ColorizeByRange(base, tables)
	test.That(t, out.Bounds(), test.ShouldResemble, base.Bounds())

	r, g, b, _ := out.At(20, 20).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0))
	test.That(t, g, test.ShouldEqual, uint32(0))
	test.That(t, b, test.ShouldEqual, uint32(0))
}

func TestRangeToRGBNearIsRedFarIsBlue(t *testing.T) {
	rNear, gNear, bNear := rangeToRGB(0)
	test.That(t, rNear, test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, bNear, test.ShouldAlmostEqual, 0.0, 1e-9)

	rFar, _, bFar := rangeToRGB(MaxRangeMeters * 2)
	test.That(t, rFar, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, bFar, test.ShouldAlmostEqual, 1.0, 1e-9)
	_ = gNear
}

func TestLossHistoryWritesPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loss.png")
	err := LossHistory(path, []float64{5, 4, 3, 2.5, 2.4})
	test.That(t, err, test.ShouldBeNil)

	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
}
