package project

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

func identityIntrinsics() Intrinsics {
	return Intrinsics{Width: 4, Height: 4, Fx: 1, Fy: 1, Ppx: 0, Ppy: 0}
}

// TestIdentityRoundtrip is end-to-end scenario 1 of spec §8: tau=0, K=I,
// pc = {(1,0,5),(0,1,5),(0,0,5)} -> pixels = {(0.2,0,1),(0,0.2,1),(0,0,1)}
// after normalization (scaled so z=5 maps the first two points' x/y=1/5=0.2).
func TestIdentityRoundtrip(t *testing.T) {
	k := Intrinsics{Width: 100, Height: 100, Fx: 1, Fy: 1, Ppx: 0, Ppy: 0}
	points := []r3.Vector{
		{X: 1, Y: 0, Z: 5},
		{X: 0, Y: 1, Z: 5},
		{X: 0, Y: 0, Z: 5},
	}
	tables := Project(points, tau.Tau{}, k)
	test.That(t, tables.Pixels[0][0], test.ShouldAlmostEqual, 0.2)
	test.That(t, tables.Pixels[0][1], test.ShouldAlmostEqual, 0.0)
	test.That(t, tables.Pixels[1][0], test.ShouldAlmostEqual, 0.0)
	test.That(t, tables.Pixels[1][1], test.ShouldAlmostEqual, 0.2)
	test.That(t, tables.Pixels[2][0], test.ShouldAlmostEqual, 0.0)
	test.That(t, tables.Pixels[2][1], test.ShouldAlmostEqual, 0.0)
	for _, in := range tables.InFrustum {
		test.That(t, in, test.ShouldBeTrue)
	}
}

// TestProjectionConsistency is property P1: for in-frustum points,
// re-projecting cam_points with K reproduces Pixels to within 1e-4 px.
func TestProjectionConsistency(t *testing.T) {
	k := identityIntrinsics()
	tt := tau.Tau{0.2, -0.1, 0.05, 0.3, 0.1, -0.2}
	points := []r3.Vector{{X: 0.5, Y: 0.2, Z: 3}, {X: -1, Y: 1, Z: 2}}
	tables := Project(points, tt, k)

	for i, in := range tables.InFrustum {
		if !in {
			continue
		}
		cam := tables.CamPoints[i]
		u := k.Fx*cam.X/cam.Z + k.Ppx
		v := k.Fy*cam.Y/cam.Z + k.Ppy
		test.That(t, u, test.ShouldAlmostEqual, tables.Pixels[i][0], 1e-4)
		test.That(t, v, test.ShouldAlmostEqual, tables.Pixels[i][1], 1e-4)
	}
}

// TestIdempotence is property P4: calling Project twice with an unchanged
// tau yields bit-identical derived tables.
func TestIdempotence(t *testing.T) {
	k := identityIntrinsics()
	tt := tau.Tau{0.1, 0.2, -0.3, 1, -1, 2}
	points := []r3.Vector{{X: 1, Y: 2, Z: 5}, {X: -2, Y: 0.5, Z: 8}}

	a := Project(points, tt, k)
	b := Project(points, tt, k)
	test.That(t, a, test.ShouldResemble, b)
}

func TestZNearClamp(t *testing.T) {
	k := identityIntrinsics()
	points := []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}}
	tables := Project(points, tau.Tau{}, k)
	test.That(t, tables.InFrustum[0], test.ShouldBeFalse)
	test.That(t, tables.InFrustum[1], test.ShouldBeFalse)
}

func TestProjectFramesBadProjection(t *testing.T) {
	k := Intrinsics{Width: 10, Height: 10, Fx: 1, Fy: 1, Ppx: 0, Ppy: 0}
	// Every point lands far outside the 10x10 frustum.
	points := []r3.Vector{{X: 1000, Y: 1000, Z: 1}, {X: 1000, Y: 1000, Z: 1}}
	_, err := ProjectFrames([][]r3.Vector{points}, tau.Tau{}, k, DefaultDegeneracyFloor())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProjectFramesHealthy(t *testing.T) {
	k := Intrinsics{Width: 4000, Height: 4000, Fx: 1, Fy: 1, Ppx: 0, Ppy: 0}
	points := make([]r3.Vector, 20000)
	for i := range points {
		points[i] = r3.Vector{X: 0, Y: 0, Z: 5}
	}
	tables, err := ProjectFrames([][]r3.Vector{points}, tau.Tau{}, k, DefaultDegeneracyFloor())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tables[0].NumInView, test.ShouldEqual, 20000)
}
