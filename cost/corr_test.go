package cost

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/lidarcam-extrinsics/project"
	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

// TestCorrespondencePerfectMatch is end-to-end scenario 3 of spec §8: a
// single perfectly-matched pair with every other cost weight at zero gives
// cost = -3*sqrt(W^2+H^2).
func TestCorrespondencePerfectMatch(t *testing.T) {
	k := project.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	zero := tau.New(r3.Vector{}, r3.Vector{})

	// A point straight down the optical axis at Z=10 projects exactly to
	// the principal point under the identity transform.
	lidarPoints := []r3.Vector{{X: 0, Y: 0, Z: 10}}
	pixelPairs := [][2]float64{{320, 240}}

	got := Correspondence(pixelPairs, lidarPoints, zero, k)
	want := -3 * math.Hypot(640, 480)
	test.That(t, got, test.ShouldAlmostEqual, want, 1e-9)
}

func TestCorrespondenceEmptySet(t *testing.T) {
	k := project.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	zero := tau.New(r3.Vector{}, r3.Vector{})

	got := Correspondence(nil, nil, zero, k)
	want := -3 * math.Hypot(640, 480)
	test.That(t, got, test.ShouldAlmostEqual, want, 1e-9)
}

func TestCorrespondencePenalizesMisalignment(t *testing.T) {
	k := project.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	zero := tau.New(r3.Vector{}, r3.Vector{})

	lidarPoints := []r3.Vector{{X: 0, Y: 0, Z: 10}}
	nearMiss := [][2]float64{{322, 240}}  // d=2, sub-threshold, linear
	farMiss := [][2]float64{{340, 240}}   // d=20, quadratic

	nearCost := Correspondence(nearMiss, lidarPoints, zero, k)
	farCost := Correspondence(farMiss, lidarPoints, zero, k)
	test.That(t, farCost > nearCost, test.ShouldBeTrue)
}
