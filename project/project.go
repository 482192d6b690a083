// Package project implements component B of the extrinsic calibration
// core: transforming lidar points into the camera frame, pinhole
// projecting them to pixels, masking the result to the image frustum, and
// raising BadProjection on degenerate transforms (spec §4.2).
package project

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

// ErrBadProjection is the taxonomy entry of spec §7: a degenerate τ leaves
// too few points inside the camera frustum to trust any cost term. Only
// the Projector raises it; only the optimizer (package calibrate) catches
// it.
var ErrBadProjection = errors.New("project: degenerate projection")

// zNear is the pinhole-singularity clamp of spec §9: points with
// cam.Z below this are rejected outright rather than projected, to avoid a
// gradient blow-up at the z_c -> 0 singularity.
const zNear = 1e-3

// Intrinsics is the pinhole camera matrix K, named the way the teacher's
// rimage/transform.PinholeCameraIntrinsics does (Width/Height/Fx/Fy/Ppx/Ppy)
// but trimmed to the fields spec §4.2's pinhole model actually uses — this
// spec is explicitly out-of-scope for lens distortion (see spec §1).
type Intrinsics struct {
	Width, Height int
	Fx, Fy        float64
	Ppx, Ppy      float64
}

// DegeneracyFloor configures when a projection is judged too degenerate to
// trust, per spec §4.2: an individual frame falling below MinFraction of
// its own points in-frustum, or the batch falling below MinTotal in-frustum
// points overall, raises ErrBadProjection.
type DegeneracyFloor struct {
	MinFraction float64 // design default 0.10
	MinTotal    int     // design default 10000
}

// DefaultDegeneracyFloor matches the design defaults named in spec §4.2.
func DefaultDegeneracyFloor() DegeneracyFloor {
	return DegeneracyFloor{MinFraction: 0.10, MinTotal: 10000}
}

// Tables are the derived, per-frame tables of spec §3 that every τ change
// must rebuild before any cost term runs: cam-frame points, projected
// pixels, and the in-frustum mask. Owned by the calibrator; mutated only by
// Project.
type Tables struct {
	CamPoints  []r3.Vector
	Pixels     [][2]float64
	InFrustum  []bool
	NumInView  int
}

// Project applies (R, T) and K to points, producing the derived tables of
// spec §3/§4.2. It is idempotent: calling it twice with the same τ and
// points yields bit-identical tables (spec P4), since it performs no
// in-place accumulation and every output element is a pure function of its
// input index.
func Project(points []r3.Vector, t tau.Tau, k Intrinsics) Tables {
	r, trans := tau.ToRT(t)
	n := len(points)
	out := Tables{
		CamPoints: make([]r3.Vector, n),
		Pixels:    make([][2]float64, n),
		InFrustum: make([]bool, n),
	}

	for i, p := range points {
		cam := applyRT(r, trans, p)
		out.CamPoints[i] = cam

		if cam.Z <= zNear {
			continue
		}
		u := k.Fx*cam.X/cam.Z + k.Ppx
		v := k.Fy*cam.Y/cam.Z + k.Ppy
		out.Pixels[i] = [2]float64{u, v}

		if u >= 0 && u <= float64(k.Width) && v >= 0 && v <= float64(k.Height) {
			out.InFrustum[i] = true
			out.NumInView++
		}
	}
	return out
}

// ProjectFrames runs Project over every frame's points and checks the
// batch against floor, returning ErrBadProjection if any single frame or
// the aggregate falls below the configured degeneracy floor (spec §4.2).
func ProjectFrames(framePoints [][]r3.Vector, t tau.Tau, k Intrinsics, floor DegeneracyFloor) ([]Tables, error) {
	tables := make([]Tables, len(framePoints))
	total := 0
	for i, pts := range framePoints {
		tables[i] = Project(pts, t, k)
		total += tables[i].NumInView
		if len(pts) > 0 && float64(tables[i].NumInView)/float64(len(pts)) < floor.MinFraction {
			return tables, fmt.Errorf("%w: frame %d has %d/%d points in frustum (< %.0f%%)",
				ErrBadProjection, i, tables[i].NumInView, len(pts), floor.MinFraction*100)
		}
	}
	if total < floor.MinTotal {
		return tables, fmt.Errorf("%w: %d total points in frustum (< %d)", ErrBadProjection, total, floor.MinTotal)
	}
	return tables, nil
}

func applyRT(r matRowAt, trans r3.Vector, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z + trans.X,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z + trans.Y,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z + trans.Z,
	}
}

// matRowAt is the minimal slice of gonum's mat.Matrix interface applyRT
// needs, so this package doesn't have to import gonum/mat just to read
// three rows back out of tau.ToRT's result.
type matRowAt interface {
	At(i, j int) float64
}
