// Package tau implements component A of the extrinsic calibration core: the
// codec between the 6-parameter extrinsic representation τ (axis-angle
// rotation concatenated with translation) and a (R, T) rigid transform, plus
// the SO(3) machinery (skew matrix, left Jacobian) that the analytical
// gradient in package gradient builds on.
package tau

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// smallAngle is the threshold below which the Rodrigues map and its Jacobian
// switch to their Taylor-series branch to avoid a 0/0 at the identity
// rotation (spec §9, "axis-angle zero-angle singularity").
const smallAngle = 1e-8

// Tau is the 6-vector extrinsic parameterization: Tau[0:3] is the axis-angle
// rotation vector (radians, magnitude = rotation angle), Tau[3:6] is the
// translation (meters).
type Tau [6]float64

// Omega returns the rotation part of τ.
func (t Tau) Omega() r3.Vector {
	return r3.Vector{X: t[0], Y: t[1], Z: t[2]}
}

// Translation returns the translation part of τ.
func (t Tau) Translation() r3.Vector {
	return r3.Vector{X: t[3], Y: t[4], Z: t[5]}
}

// New builds a Tau from a separate rotation vector and translation.
func New(omega, trans r3.Vector) Tau {
	return Tau{omega.X, omega.Y, omega.Z, trans.X, trans.Y, trans.Z}
}

// Skew returns the 3x3 skew-symmetric cross-product matrix [v]_x such that
// [v]_x * w == v.Cross(w) for any w.
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// ToRT converts τ to a rotation matrix R (3x3, row-major via gonum) and
// translation vector T, using the Rodrigues exponential map on τ[0:3].
func ToRT(t Tau) (*mat.Dense, r3.Vector) {
	return RodriguesToMatrix(t.Omega()), t.Translation()
}

// RodriguesToMatrix computes the rotation matrix for an axis-angle vector
// omega (magnitude = angle in radians) via the closed-form Rodrigues
// formula, with a Taylor-series branch near the identity rotation.
func RodriguesToMatrix(omega r3.Vector) *mat.Dense {
	theta := omega.Norm()
	k := Skew(omega)

	var a, b float64 // coefficients of [omega]_x and [omega]_x^2
	if theta < smallAngle {
		theta2 := theta * theta
		a = 1 - theta2/6
		b = 0.5 - theta2/24
	} else {
		a = math.Sin(theta) / theta
		b = (1 - math.Cos(theta)) / (theta * theta)
	}

	var k2 mat.Dense
	k2.Mul(k, k)

	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		r.Set(i, i, 1)
	}
	var scaledK, scaledK2 mat.Dense
	scaledK.Scale(a, k)
	scaledK2.Scale(b, &k2)
	r.Add(r, &scaledK)
	r.Add(r, &scaledK2)
	return r
}

// RTToTau inverts ToRT: it recovers τ from a rotation matrix and
// translation, choosing the smaller of the two equivalent rotation angles
// (angle in [0, π]) per spec §4.1.
func RTToTau(r *mat.Dense, trans r3.Vector) Tau {
	omega := MatrixToRodrigues(r)
	return New(omega, trans)
}

// MatrixToRodrigues recovers the axis-angle rotation vector from a rotation
// matrix (inverse Rodrigues map). Angle is taken in [0, π]; the axis is the
// zero vector at the identity (angle == 0), consistent with the invariant in
// spec §3 ("the axis is undefined when the angle is zero").
func MatrixToRodrigues(r *mat.Dense) r3.Vector {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := (trace - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)

	if theta < smallAngle {
		return r3.Vector{}
	}

	if math.Pi-theta < smallAngle {
		// Near the π singularity sin(theta) ~ 0, so the usual
		// (R - R^T) construction loses precision; recover the axis from
		// the symmetric part instead, since at theta=pi, R = 2*axis*axis^T - I.
		var sym mat.Dense
		sym.Add(r, mat.DenseCopyOf(r.T()))
		sym.Scale(0.5, &sym)
		axis := r3.Vector{
			X: math.Sqrt(math.Max(0, (sym.At(0, 0)+1)/2)),
			Y: math.Sqrt(math.Max(0, (sym.At(1, 1)+1)/2)),
			Z: math.Sqrt(math.Max(0, (sym.At(2, 2)+1)/2)),
		}
		// Fix the relative signs using the off-diagonal terms.
		if sym.At(0, 1) < 0 {
			axis.Y = -axis.Y
		}
		if sym.At(0, 2) < 0 {
			axis.Z = -axis.Z
		}
		return axis.Normalize().Mul(theta)
	}

	s := 2 * math.Sin(theta)
	axis := r3.Vector{
		X: (r.At(2, 1) - r.At(1, 2)) / s,
		Y: (r.At(0, 2) - r.At(2, 0)) / s,
		Z: (r.At(1, 0) - r.At(0, 1)) / s,
	}
	return axis.Mul(theta)
}

// LeftJacobian returns the left Jacobian of SO(3), J_L(omega), used by the
// analytical gradient (spec §4.8) to relate a perturbation of τ's rotation
// part to the resulting perturbation of R*p. Taylor-series branch near the
// identity avoids the 1/theta and 1/theta^3 singularities.
func LeftJacobian(omega r3.Vector) *mat.Dense {
	theta := omega.Norm()
	k := Skew(omega)

	var a, b float64 // coefficients of [omega]_x and [omega]_x^2
	if theta < smallAngle {
		theta2 := theta * theta
		a = 0.5 - theta2/24
		b = 1.0/6 - theta2/120
	} else {
		a = (1 - math.Cos(theta)) / (theta * theta)
		b = (theta - math.Sin(theta)) / (theta * theta * theta)
	}

	var k2 mat.Dense
	k2.Mul(k, k)

	jl := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		jl.Set(i, i, 1)
	}
	var scaledK, scaledK2 mat.Dense
	scaledK.Scale(a, k)
	scaledK2.Scale(b, &k2)
	jl.Add(jl, &scaledK)
	jl.Add(jl, &scaledK2)
	return jl
}
