// Command lidarcam-extrinsics is the CLI entrypoint of spec §6: it wires
// config.Config into the optimizer shell (package calibrate) and the
// visualization helpers (package viz), over frames supplied by an injected
// pointcloud.Loader and an injected imgedge.Detector. Both are external
// collaborators per spec §1 ("file I/O for point clouds and images" and
// "image edge detection" are explicitly out of scope for this module) —
// DefaultLoader/DefaultDetector are the seam a deployment wires a concrete
// implementation into.
package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/viam-labs/lidarcam-extrinsics/calibrate"
	"github.com/viam-labs/lidarcam-extrinsics/config"
	"github.com/viam-labs/lidarcam-extrinsics/imgedge"
	"github.com/viam-labs/lidarcam-extrinsics/pointcloud"
	"github.com/viam-labs/lidarcam-extrinsics/project"
	"github.com/viam-labs/lidarcam-extrinsics/viz"
)

// DefaultLoader and DefaultDetector are the injection points for the
// out-of-scope external collaborators named in spec §1. A deployment that
// needs this CLI to actually run against files on disk sets these (e.g. in
// an init() of a sibling file built with a deployment-specific tag); left
// nil, the CLI fails fast with a clear error rather than silently no-op'ing.
var (
	DefaultLoader   pointcloud.Loader
	DefaultDetector imgedge.Detector
)

func main() {
	app := buildApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildApp() *cli.App {
	flags := config.CLIFlags()
	flags = append(flags,
		&cli.Float64Flag{Name: "alpha-mi", Usage: "mutual-information cost weight", Value: 1},
		&cli.Float64Flag{Name: "alpha-gmm", Usage: "edge-convolution cost weight", Value: 1},
		&cli.Float64Flag{Name: "alpha-corr", Usage: "correspondence cost weight", Value: 0},
		&cli.Float64Flag{Name: "alpha-chamfer", Usage: "chamfer cost weight", Value: 1},
		&cli.IntFlag{Name: "max-eval", Usage: "max evaluations per Nelder-Mead attempt", Value: 2000},
		&cli.IntFlag{Name: "max-restarts", Usage: "max BadProjection perturb-and-restart attempts", Value: 10},
		&cli.BoolFlag{Name: "translation-only-refine", Usage: "run a translation-only refinement pass after the sigma schedule"},
		&cli.StringFlag{Name: "out", Usage: "output directory for the loss plot and reprojection overlay", Value: "."},
	)

	return &cli.App{
		Name:  "lidarcam-extrinsics",
		Usage: "estimate the camera-lidar extrinsic transform (tau) from a directory of synchronized frames",
		Flags: flags,
		Action: func(c *cli.Context) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("main: build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			cfg, err := config.FromCLI(c)
			if err != nil {
				return err
			}

			weights := calibrate.Weights{
				MI:      c.Float64("alpha-mi"),
				GMM:     c.Float64("alpha-gmm"),
				Corr:    c.Float64("alpha-corr"),
				Chamfer: c.Float64("alpha-chamfer"),
			}

			res, err := run(c.Context, cfg, weights, runOptions{
				maxEval:         c.Int("max-eval"),
				maxRestarts:     c.Int("max-restarts"),
				translationOnly: c.Bool("translation-only-refine"),
				outDir:          c.String("out"),
			}, DefaultLoader, DefaultDetector, logger)
			if err != nil {
				return err
			}

			logger.Info("main: calibration converged",
				zap.Float64("loss", res.Loss),
				zap.Int("restarts", res.Restarts),
				zap.Float64s("tau", res.Tau[:]))
			return nil
		},
	}
}

type runOptions struct {
	maxEval         int
	maxRestarts     int
	translationOnly bool
	outDir          string
}

// run implements the CLI's Action (spec §6: "directory path (required),
// optional overrides... exit code 0 on successful minimize; non-zero if
// all restart attempts fail"). Split out from the cli.Action closure so it
// can be exercised without building a *cli.Context.
func run(
	ctx context.Context,
	cfg config.Config,
	weights calibrate.Weights,
	opts runOptions,
	loader pointcloud.Loader,
	detector imgedge.Detector,
	logger *zap.Logger,
) (calibrate.Result, error) {
	if loader == nil {
		return calibrate.Result{}, fmt.Errorf("main: no pointcloud.Loader configured: " +
			"frame loading is an out-of-scope external collaborator that a deployment must inject")
	}
	if detector == nil {
		return calibrate.Result{}, fmt.Errorf("main: no imgedge.Detector configured: " +
			"image edge detection is an out-of-scope external collaborator that a deployment must inject")
	}

	frames, err := loader.Load(ctx, cfg.Dir, cfg.Frames)
	if err != nil {
		return calibrate.Result{}, fmt.Errorf("%w: %s", pointcloud.ErrIODependency, err)
	}

	problem, err := buildProblem(frames, cfg, weights, detector, logger)
	if err != nil {
		return calibrate.Result{}, err
	}

	result, err := calibrate.Calibrate(problem, cfg.TauInit, calibrate.RunOptions{
		MaxEval:         opts.maxEval,
		MaxRestarts:     opts.maxRestarts,
		Sigma:           calibrate.Schedule(cfg.SigIn),
		TranslationOnly: opts.translationOnly,
		Logger:          logger,
	})
	if err != nil {
		return calibrate.Result{}, fmt.Errorf("main: calibrate: %w", err)
	}

	if err := writeOutputs(opts.outDir, frames, problem, result); err != nil {
		logger.Warn("main: failed to write visualization outputs", zap.Error(err))
	}
	return result, nil
}

// buildProblem derives the edge-scoring and detector tables every frame
// needs before optimization starts (spec's "frames -> (C) once -> (B)
// every tau change" data flow), aggregating any per-frame failure with
// multierr rather than aborting on the first bad frame.
func buildProblem(
	frames []*pointcloud.Frame,
	cfg config.Config,
	weights calibrate.Weights,
	detector imgedge.Detector,
	logger *zap.Logger,
) (calibrate.Problem, error) {
	edgeCfg := pointcloud.EdgeConfig{
		NumNN:      cfg.PCEdgeNumNN,
		RadiusNN:   cfg.PCEdgeRadiusNN,
		Percentile: cfg.PCEdgeScoreThreshold,
	}
	detectorParams := imgedge.Params{
		Method:            imgedge.Method(cfg.ImageEdgeMethod),
		SEDScoreThreshold: cfg.ImageSEDScoreThreshold,
		CannyLower:        cfg.ImageCannyLower,
		CannyUpper:        cfg.ImageCannyUpper,
	}

	p := calibrate.Problem{
		Frames:      make([]pointcloud.Frame, len(frames)),
		EdgeScores:  make([]pointcloud.EdgeScores, len(frames)),
		Detected:    make([]imgedge.Result, len(frames)),
		Reflectance: make([][]float64, len(frames)),
		K:           cfg.Intrinsics(0, 0),
		Floor:       project.DefaultDegeneracyFloor(),
		Weights:     weights,
	}

	var loadErrs error
	for i, f := range frames {
		kd := pointcloud.NewKDTree(f.Points)
		p.EdgeScores[i] = pointcloud.ScoreEdges(f.Points, kd, edgeCfg)
		if len(p.EdgeScores[i].Idx) == 0 {
			logger.Warn("main: frame has no points above the edge threshold", zap.Int("frame", i))
		}

		detected, err := detector.Detect(f.Image, detectorParams)
		if err != nil {
			loadErrs = multierr.Append(loadErrs, fmt.Errorf("main: frame %d: %w", i, err))
			continue
		}

		p.Frames[i] = *f
		p.Detected[i] = detected
		p.Reflectance[i] = f.Reflectance

		w, h := f.Bounds()
		if i == 0 {
			p.K = cfg.Intrinsics(w, h)
		}
	}
	if loadErrs != nil {
		return calibrate.Problem{}, loadErrs
	}
	return p, nil
}

// writeOutputs persists the observable side effects named in spec §4.9
// ("periodic image dumps... and a loss-vs-iteration plot"): here, one
// reprojection overlay and one range-colorized image of the first frame at
// the final tau, and a plot of the loss history Calibrate returns (a single
// point, the final loss, when that history is empty).
func writeOutputs(outDir string, frames []*pointcloud.Frame, p calibrate.Problem, res calibrate.Result) error {
	if len(frames) == 0 {
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("main: create output dir: %w", err)
	}

	tables := project.Project(frames[0].Points, res.Tau, p.K)
	overlay := viz.ReprojectionOverlay(frames[0].Image, tables, p.EdgeScores[0].Idx)
	if err := saveImage(filepath.Join(outDir, "reprojection.png"), overlay); err != nil {
		return err
	}

	colorized := viz.ColorizeByRange(frames[0].Image, tables)
	if err := saveImage(filepath.Join(outDir, "colorized.png"), colorized); err != nil {
		return err
	}

	history := res.History
	if len(history) == 0 {
		history = []float64{res.Loss}
	}
	return viz.LossHistory(filepath.Join(outDir, "loss.png"), history)
}

func saveImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("main: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("main: encode %s: %w", path, err)
	}
	return nil
}
