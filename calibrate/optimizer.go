// Package calibrate implements component I of the extrinsic calibration
// core (the Nelder-Mead optimizer shell of spec §4.9) and the transform
// state machine of spec §4.10, orchestrating the cost terms in package
// cost over the frames loaded by the caller.
package calibrate

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/go-nlopt/nlopt"
	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/viam-labs/lidarcam-extrinsics/cost"
	"github.com/viam-labs/lidarcam-extrinsics/imgedge"
	"github.com/viam-labs/lidarcam-extrinsics/pointcloud"
	"github.com/viam-labs/lidarcam-extrinsics/project"
	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

// rescale is s = (1,1,1,1e-2,1e-2,1e-2) of spec §4.9.1: the fixed per-axis
// scale that brings rotation (radians, O(1e-2..1e-1)) and translation
// (meters, often an order of magnitude larger) into comparable numerical
// ranges for the simplex.
var rescale = [6]float64{1, 1, 1, 1e-2, 1e-2, 1e-2}

func toWorking(t tau.Tau) []float64 {
	x := make([]float64, 6)
	for i := range x {
		x[i] = t[i] * rescale[i]
	}
	return x
}

func fromWorking(x []float64) tau.Tau {
	var t tau.Tau
	for i := range t {
		t[i] = x[i] / rescale[i]
	}
	return t
}

// DefaultRotationStep and DefaultTranslationStep are the design-default
// per-axis simplex step sizes of spec §4.9.2, in τ units (radians,
// meters) before rescaling.
const (
	DefaultRotationStep    = 0.05
	DefaultTranslationStep = 0.5
)

// PerturbRotation and PerturbTranslation are the uniform noise half-widths
// of spec §4.9.4 applied around the pre-optimize τ on BadProjection.
const (
	PerturbRotation    = 0.005
	PerturbTranslation = 0.5
)

// badProjectionPenalty is returned to nlopt in place of a real cost when
// the Projector raises BadProjection, standing in for the Python source's
// exception-driven restart (spec §9): nlopt sees a cost so large it drives
// the simplex away from that region, while the outer loop inspects the
// badProjection flag set by the closure to decide whether to perturb and
// restart per spec §4.9.4.
const badProjectionPenalty = 1e18

// Weights are the per-cost-term coefficients of spec §4.9's loss
// L(tau) = alphaMI*MI + alphaGMM*conv + alphaCorr*corr + chamfer.
// Chamfer carries an implicit weight of 1 in the spec's formula; Chamfer
// here lets that be overridden too (0 disables the term entirely, as
// end-to-end scenario 3 of spec §8 requires for an alpha_corr=1-only run).
type Weights struct {
	MI      float64
	GMM     float64
	Corr    float64
	Chamfer float64
}

// Problem bundles everything one L(tau) evaluation needs: the frames'
// derived inputs, the weights, and the current sigma (edge-convolution
// kernel width). Fields are read-only across an optimization run.
type Problem struct {
	Frames      []pointcloud.Frame
	EdgeScores  []pointcloud.EdgeScores
	Detected    []imgedge.Result
	Corrs       []pointcloud.FrameCorrespondences
	Reflectance [][]float64
	K           project.Intrinsics
	Floor       project.DegeneracyFloor
	Weights     Weights
	Sigma       float64
	DistScale   bool

	// FixedOmega, if non-nil, freezes the rotation part of tau at this
	// value for every evaluation: the translation-only refinement pass of
	// spec §4.9.5.
	FixedOmega *r3.Vector
}

// Result is the outcome of one Run call: the recovered τ, the final loss,
// the number of BadProjection restarts consumed, the state machine's
// terminal state, and the loss-vs-iteration history of the winning attempt
// (spec §4.9's "loss-vs-iteration plot" observable side effect).
type Result struct {
	Tau       tau.Tau
	Loss      float64
	Restarts  int
	Converged bool
	History   []float64
}

// ErrRestartsExhausted is the fatal taxonomy entry of spec §7: BadProjection
// is locally recoverable by perturb-and-restart, but only up to a restart
// budget, after which it is surfaced to the caller.
var ErrRestartsExhausted = errors.New("calibrate: exhausted restart budget recovering from BadProjection")

// Run minimizes L(tau) starting from init, using a gradient-free
// Nelder-Mead simplex (spec §4.9.2/.3) and perturb-and-restart recovery
// from BadProjection (spec §4.9.4). maxEval bounds the iteration count per
// attempt; maxRestarts bounds the number of perturb-and-retry cycles. Each
// restart perturbs around the original pre-optimize init, not around the
// previous attempt's starting point, per spec §4.9.4.
func Run(p Problem, init tau.Tau, maxEval, maxRestarts int, logger *zap.Logger) (Result, error) {
	m := newMachine()
	m.advance(Projecting, false)

	current := init
	rng := rand.New(rand.NewSource(1))

	for attempt := 0; ; attempt++ {
		res, badProjection, err := runOnce(p, current, maxEval, logger)
		if err != nil {
			return Result{}, fmt.Errorf("calibrate: nlopt optimize: %w", err)
		}
		if !badProjection {
			m.advance(Costing, false)
			m.advance(Stepping, false)
			m.advance(Converged, false)
			return Result{Tau: res.Tau, Loss: res.Loss, Restarts: attempt, Converged: true, History: res.History}, nil
		}

		if attempt >= maxRestarts {
			logger.Error("calibrate: restart budget exhausted", zap.Int("restarts", attempt))
			return Result{}, ErrRestartsExhausted
		}
		logger.Warn("calibrate: BadProjection, perturbing and restarting",
			zap.Int("attempt", attempt))
		m.advance(Perturbing, true) // reachable from any state on BadProjection
		current = perturb(init, rng)
		m.advance(Projecting, false)
	}
}

// runOnce runs a single Nelder-Mead attempt from start and reports whether
// any evaluation along the way hit BadProjection.
func runOnce(p Problem, start tau.Tau, maxEval int, logger *zap.Logger) (Result, bool, error) {
	badProjection := false
	history := make([]float64, 0, maxEval)

	opt, err := nlopt.NewNLopt(nlopt.LN_NELDERMEAD, 6)
	if err != nil {
		return Result{}, false, err
	}
	defer opt.Destroy()

	objective := func(x, gradient []float64) float64 {
		t := fromWorking(x)
		if p.FixedOmega != nil {
			t = tau.New(*p.FixedOmega, t.Translation())
		}
		l, bad := evaluate(p, t)
		if bad {
			badProjection = true
			return badProjectionPenalty
		}
		history = append(history, l)
		return l
	}
	if err := opt.SetMinObjective(objective); err != nil {
		return Result{}, false, err
	}

	rotStep, transStep := DefaultRotationStep, DefaultTranslationStep
	if p.FixedOmega != nil {
		// Translation-only refinement pass (spec §4.9.5): rotation is
		// frozen, and the translation simplex is tightened since this pass
		// starts near a value the coarse-to-fine sigma passes already
		// converged on.
		transStep *= 0.2
	}
	steps := []float64{
		rotStep * rescale[0], rotStep * rescale[1], rotStep * rescale[2],
		transStep * rescale[3], transStep * rescale[4], transStep * rescale[5],
	}
	if err := opt.SetInitialStep(steps); err != nil {
		return Result{}, false, err
	}
	if err := opt.SetMaxEval(maxEval); err != nil {
		return Result{}, false, err
	}
	if err := opt.SetXtolRel(1e-6); err != nil {
		return Result{}, false, err
	}

	x0 := toWorking(start)
	xopt, minf, err := opt.Optimize(x0)
	if err != nil {
		return Result{}, badProjection, err
	}

	best := fromWorking(xopt)
	if p.FixedOmega != nil {
		best = tau.New(*p.FixedOmega, best.Translation())
	}

	logger.Debug("calibrate: nlopt attempt finished", zap.Float64("loss", minf))
	return Result{Tau: best, Loss: minf, History: history}, badProjection, nil
}

// evaluate computes L(tau) over every frame, or reports BadProjection if
// the Projector rejects tau for any frame/the batch as a whole.
func evaluate(p Problem, t tau.Tau) (float64, bool) {
	var total float64
	batchInView := 0

	for i, frame := range p.Frames {
		tables := project.Project(frame.Points, t, p.K)
		batchInView += tables.NumInView

		if len(frame.Points) > 0 && float64(tables.NumInView)/float64(len(frame.Points)) < p.Floor.MinFraction {
			return 0, true
		}

		edgeScores := p.EdgeScores[i]
		detected := p.Detected[i]
		w, h := frame.Bounds()

		var frameLoss float64
		if p.Weights.GMM != 0 {
			frameLoss += p.Weights.GMM * cost.EdgeConvolution(edgeScores, tables, edgeScores.Idx, detected, cost.GMMParams{
				SigmaIn:       p.Sigma,
				DistanceScale: p.DistScale,
			})
		}
		if p.Weights.Chamfer != 0 {
			frameLoss += p.Weights.Chamfer * cost.Chamfer(detected, tables, edgeScores.Idx)
		}
		if p.Weights.MI != 0 && frame.Image != nil {
			frameLoss += p.Weights.MI * cost.MutualInformation(frame.Image, p.Reflectance[i], tables)
		}
		if p.Weights.Corr != 0 && i < len(p.Corrs) {
			pairs := make([][2]float64, len(p.Corrs[i]))
			points := make([]r3.Vector, len(p.Corrs[i]))
			for j, c := range p.Corrs[i] {
				pairs[j] = c.Pixel
				points[j] = c.Lidar
			}
			frameLoss += p.Weights.Corr * cost.Correspondence(pairs, points, t, project.Intrinsics{
				Width: w, Height: h, Fx: p.K.Fx, Fy: p.K.Fy, Ppx: p.K.Ppx, Ppy: p.K.Ppy,
			})
		}
		total += frameLoss
	}

	if batchInView < p.Floor.MinTotal {
		return 0, true
	}
	return total, false
}

func perturb(t tau.Tau, rng *rand.Rand) tau.Tau {
	var out tau.Tau
	for i := 0; i < 3; i++ {
		out[i] = t[i] + (rng.Float64()*2-1)*PerturbRotation
	}
	for i := 3; i < 6; i++ {
		out[i] = t[i] + (rng.Float64()*2-1)*PerturbTranslation
	}
	return out
}
