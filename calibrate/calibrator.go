package calibrate

import (
	"go.uber.org/zap"

	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

// Schedule is the sigma coarse-to-fine schedule of spec §4.9.6, e.g.
// [3.0, 2.0, 1.0].
type Schedule []float64

// RunOptions bundles the iteration/restart budgets and optional passes
// spec §4.9 names, kept separate from Problem since they govern the loop
// rather than a single L(tau) evaluation.
type RunOptions struct {
	MaxEval         int
	MaxRestarts     int
	Sigma           Schedule
	TranslationOnly bool
	Logger          *zap.Logger
}

// Calibrate runs the full optimizer shell of spec §4.9: one Nelder-Mead
// minimization per sigma in the schedule (each starting from the previous
// best tau), optionally followed by a translation-only refinement pass
// with a tighter simplex and the rotation axes frozen.
func Calibrate(p Problem, init tau.Tau, opts RunOptions) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sigmas := opts.Sigma
	if len(sigmas) == 0 {
		sigmas = Schedule{p.Sigma}
	}

	current := init
	var last Result
	var history []float64
	for _, sigma := range sigmas {
		p.Sigma = sigma
		logger.Info("calibrate: starting sigma pass", zap.Float64("sigma", sigma))
		res, err := Run(p, current, opts.MaxEval, opts.MaxRestarts, logger)
		if err != nil {
			return Result{}, err
		}
		current = res.Tau
		last = res
		history = append(history, res.History...)
	}

	if opts.TranslationOnly {
		logger.Info("calibrate: starting translation-only refinement pass")
		res, err := runTranslationOnly(p, current, opts.MaxEval, opts.MaxRestarts, logger)
		if err != nil {
			return Result{}, err
		}
		last = res
		history = append(history, res.History...)
	}

	last.History = history
	return last, nil
}

// runTranslationOnly re-runs Run with the rotation axes of tau frozen at
// their current value (spec §4.9.5) by setting Problem.FixedOmega: the
// simplex still spans all six working components, but every evaluation
// and the returned tau use the frozen rotation in place of the simplex's.
func runTranslationOnly(p Problem, start tau.Tau, maxEval, maxRestarts int, logger *zap.Logger) (Result, error) {
	frozenOmega := start.Omega()
	wrapped := p
	wrapped.FixedOmega = &frozenOmega
	return Run(wrapped, start, maxEval, maxRestarts, logger)
}
