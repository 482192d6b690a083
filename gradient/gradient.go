// Package gradient implements component H of the extrinsic calibration
// core: the analytical gradient of the edge-convolution cost with respect
// to τ (spec §4.8), built by chain rule through the SO(3) left Jacobian,
// the pinhole projection derivatives, and the Gaussian kernel's partials.
//
// The source this was distilled from has a known bug in its equivalent of
// this chain rule, where the y-camera-coordinate partial is silently
// overwritten by a second assignment to the z-camera-coordinate partial.
// This package does not replicate that: dCamDTau[1] below is the y-row
// derivative throughout, not a duplicate of the z-row.
package gradient

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/viam-labs/lidarcam-extrinsics/cost"
	"github.com/viam-labs/lidarcam-extrinsics/imgedge"
	"github.com/viam-labs/lidarcam-extrinsics/pointcloud"
	"github.com/viam-labs/lidarcam-extrinsics/project"
	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

// EdgeConvolution returns d(cost)/d(tau) for the edge-convolution cost
// (spec §4.4/§4.8), matching the weighting and windowing of
// cost.EdgeConvolution exactly so the two stay consistent under a finite
// difference check.
func EdgeConvolution(
	pc pointcloud.EdgeScores,
	t tau.Tau,
	k project.Intrinsics,
	tables project.Tables,
	edgeIdx []int,
	detected imgedge.Result,
	params cost.GMMParams,
) tau.Tau {
	w, h := detected.Width(), detected.Height()
	omega := t.Omega()
	jl := tau.LeftJacobian(omega)

	var grad [6]float64

	for _, j := range edgeIdx {
		if !tables.InFrustum[j] {
			continue
		}
		cam := tables.CamPoints[j]
		if cam.Z <= 0 {
			continue
		}
		mu := tables.Pixels[j]
		camNorm := cam.Norm()

		sigma := params.SigmaIn
		if params.DistanceScale && camNorm > 0 {
			sigma = params.SigmaIn / camNorm
		}
		if sigma <= 0 {
			continue
		}

		// dCamDTau is the 3x6 jacobian of the camera-frame point w.r.t. tau:
		// columns 0:3 are -[cam]_x * J_L(omega) (rotation part, spec §4.8),
		// columns 3:6 are the identity (translation part).
		dCamDTau := cameraPointJacobian(cam.Sub(t.Translation()), jl)

		// Pinhole derivatives of (u, v) w.r.t. (x_c, y_c, z_c).
		invZ := 1 / cam.Z
		invZ2 := invZ * invZ
		duDCam := [3]float64{k.Fx * invZ, 0, -k.Fx * cam.X * invZ2}
		dvDCam := [3]float64{0, k.Fy * invZ, -k.Fy * cam.Y * invZ2}

		var duDTau, dvDTau [6]float64
		for col := 0; col < 6; col++ {
			duDTau[col] = duDCam[0]*dCamDTau[0][col] + duDCam[1]*dCamDTau[1][col] + duDCam[2]*dCamDTau[2][col]
			dvDTau[col] = dvDCam[0]*dCamDTau[0][col] + dvDCam[1]*dCamDTau[1][col] + dvDCam[2]*dCamDTau[2][col]
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
		for y := minY; y < maxY; y++ {
			for x := minX; x < maxX; x++ {
				isEdge, wj := detected.At(x, y)
				if !isEdge {
					continue
				}
				wij := 0.5 * (wi + wj) / float64(numEdgePixels)
				g := gaussian2D(float64(x), float64(y), mu[0], mu[1], sigma)
				// dG/dmu_x = G*(x-mu_x)/sigma^2, dG/dmu_y = G*(y-mu_y)/sigma^2
				dGdMuX := g * (float64(x) - mu[0]) / (sigma * sigma)
				dGdMuY := g * (float64(y) - mu[1]) / (sigma * sigma)

				scale := wij / (2 * float64(numEdgePixels))
				for col := 0; col < 6; col++ {
					grad[col] += scale * (dGdMuX*duDTau[col] + dGdMuY*dvDTau[col])
				}
			}
		}
	}

	for col := range grad {
		grad[col] = -grad[col]
	}
	return tau.Tau(grad)
}

// cameraPointJacobian builds the 3x6 d(cam_point)/d(tau) jacobian: the
// rotation block is -[R*p]_x * J_L(omega) (spec §4.8), the translation
// block is the identity. rotatedPoint is cam minus the translation part of
// tau, i.e. R*p alone, since the rotation block's skew excludes translation.
func cameraPointJacobian(rotatedPoint r3.Vector, jl rowAt) [3][6]float64 {
	var out [3][6]float64
	skew := negSkew(rotatedPoint)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			var sum float64
			for m := 0; m < 3; m++ {
				sum += skew[row][m] * jl.At(m, col)
			}
			out[row][col] = sum
		}
		out[row][3+row] = 1
	}
	return out
}

// negSkew returns -[v]_x, the skew-symmetric matrix of the negated vector.
func negSkew(v r3.Vector) [3][3]float64 {
	return [3][3]float64{
		{0, v.Z, -v.Y},
		{-v.Z, 0, v.X},
		{v.Y, -v.X, 0},
	}
}

type rowAt interface {
	At(i, j int) float64
}

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
