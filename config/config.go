// Package config implements the configuration surface of spec §6's
// "Configuration (enumerated options)" table and CLI contract, as a typed,
// validated struct instead of the Python original's raw argparse
// namespace (see SPEC_FULL.md §2.3/§4).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/viam-labs/lidarcam-extrinsics/project"
	"github.com/viam-labs/lidarcam-extrinsics/tau"
)

// ErrInvalidConfig is the taxonomy entry of spec §7 for a configuration
// that can never produce a valid calibration run: fatal, surfaced before
// optimization begins.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config mirrors utils/config.py's flag set (spec §6's "Configuration"
// table), defaulting to the Python source's literal defaults.
type Config struct {
	// Dir is the required directory containing point clouds, images and
	// an optional initial calibration file (--dir).
	Dir string `json:"dir"`

	// Frames is the list of frame indices to use (--frames).
	Frames []int `json:"frames"`

	// TauInit is the 6-vector initial guess tau_init (--tau-init).
	TauInit tau.Tau `json:"tau_init"`

	// K is the 3x3 camera intrinsics matrix, row-major (--k).
	K [3][3]float64 `json:"k"`

	// SigIn is the sigma schedule, coarse to fine (--sig-in).
	SigIn []float64 `json:"sig_in"`

	// PCEdgeRadiusNN is pc_ed_rad_nn.
	PCEdgeRadiusNN float64 `json:"pc_ed_rad_nn"`
	// PCEdgeNumNN is pc_ed_num_nn.
	PCEdgeNumNN int `json:"pc_ed_num_nn"`
	// PCEdgeScoreThreshold is pc_ed_score_thr, a percentile in (0, 100].
	PCEdgeScoreThreshold float64 `json:"pc_ed_score_thr"`

	// ImageEdgeMethod is im_ed_method: "sed" or "canny".
	ImageEdgeMethod string `json:"im_ed_method"`
	// ImageSEDScoreThreshold is im_sed_score_thr.
	ImageSEDScoreThreshold float64 `json:"im_sed_score_thr"`
	// ImageCannyLower/Upper are im_ced_score_lower_thr/im_ced_score_upper_thr.
	ImageCannyLower float64 `json:"im_ced_score_lower_thr"`
	ImageCannyUpper float64 `json:"im_ced_score_upper_thr"`
}

// Default returns the Python source's literal defaults: frames [1, 6, 19],
// tau_init the zero vector, K the KITTI-style intrinsics literal, sig_in
// [3, 2, 1], pc_ed_rad_nn 0.1, pc_ed_num_nn 75, pc_ed_score_thr the 55th
// percentile, im_ed_method "sed".
func Default() Config {
	return Config{
		Frames:  []int{1, 6, 19},
		TauInit: tau.Tau{},
		K: [3][3]float64{
			{7.215377e+02, 0.000000e+00, 6.095593e+02},
			{0.000000e+00, 7.215377e+02, 1.728540e+02},
			{0.000000e+00, 0.000000e+00, 1.000000e+00},
		},
		SigIn:                  []float64{3.0, 2.0, 1.0},
		PCEdgeRadiusNN:         0.1,
		PCEdgeNumNN:            75,
		PCEdgeScoreThreshold:   55,
		ImageEdgeMethod:        "sed",
		ImageSEDScoreThreshold: 0.25,
		ImageCannyLower:        100,
		ImageCannyUpper:        200,
	}
}

// Intrinsics converts the raw 3x3 K matrix into the project package's
// Intrinsics shape. Width/Height are filled in by the caller once the
// first frame's image is loaded, since K alone doesn't carry them.
func (c Config) Intrinsics(width, height int) project.Intrinsics {
	return project.Intrinsics{
		Width: width, Height: height,
		Fx: c.K[0][0], Fy: c.K[1][1],
		Ppx: c.K[0][2], Ppy: c.K[1][2],
	}
}

// Validate enforces the InvalidConfig taxonomy entry of spec §7: bad K,
// negative sigma, empty frames, and the other malformed-configuration
// cases that must fail before optimization begins rather than mid-run.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir is required", ErrInvalidConfig)
	}
	if len(c.Frames) == 0 {
		return fmt.Errorf("%w: frames is empty", ErrInvalidConfig)
	}
	if c.K[2][2] == 0 {
		return fmt.Errorf("%w: K is singular (K[2][2] == 0)", ErrInvalidConfig)
	}
	if c.K[0][0] <= 0 || c.K[1][1] <= 0 {
		return fmt.Errorf("%w: K has non-positive focal length", ErrInvalidConfig)
	}
	if len(c.SigIn) == 0 {
		return fmt.Errorf("%w: sig_in is empty", ErrInvalidConfig)
	}
	for _, s := range c.SigIn {
		if s <= 0 {
			return fmt.Errorf("%w: sig_in contains a non-positive sigma (%f)", ErrInvalidConfig, s)
		}
	}
	if c.PCEdgeNumNN <= 0 {
		return fmt.Errorf("%w: pc_ed_num_nn must be positive", ErrInvalidConfig)
	}
	if c.PCEdgeRadiusNN < 0 {
		return fmt.Errorf("%w: pc_ed_rad_nn must be non-negative", ErrInvalidConfig)
	}
	if c.PCEdgeScoreThreshold <= 0 || c.PCEdgeScoreThreshold > 100 {
		return fmt.Errorf("%w: pc_ed_score_thr must be in (0, 100]", ErrInvalidConfig)
	}
	switch c.ImageEdgeMethod {
	case "sed", "canny":
	default:
		return fmt.Errorf("%w: im_ed_method must be sed or canny, got %q", ErrInvalidConfig, c.ImageEdgeMethod)
	}
	return nil
}

// Load reads a Config from a JSON file at path, applying Default() for any
// field the file omits by unmarshaling over a default-initialized value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// CLIFlags returns the urfave/cli/v2 flags for every field of Config, named
// after the Python source's argparse parser (utils/config.py) but using
// Go-CLI-idiomatic hyphenated names (--tau-init, --sig-in, --pc-ed-rad-nn,
// ...) in place of the Python's underscored ones, per SPEC_FULL.md §2.3.
// The array/matrix-valued flags (--frames, --tau-init, --k, --sig-in)
// accept a JSON literal, matching the Python parser's json.loads(...)
// argument type.
func CLIFlags() []cli.Flag {
	d := Default()
	framesJSON, _ := json.Marshal(d.Frames)
	tauJSON, _ := json.Marshal(d.TauInit)
	kJSON, _ := json.Marshal(d.K)
	sigJSON, _ := json.Marshal(d.SigIn)

	return []cli.Flag{
		&cli.StringFlag{Name: "dir", Usage: "directory containing point clouds and images", Required: true},
		&cli.StringFlag{Name: "frames", Usage: "JSON array of frame indices to use", Value: string(framesJSON)},
		&cli.StringFlag{Name: "tau-init", Usage: "JSON 6-vector initial guess [wx,wy,wz,tx,ty,tz]", Value: string(tauJSON)},
		&cli.StringFlag{Name: "k", Usage: "JSON 3x3 camera intrinsics matrix", Value: string(kJSON)},
		&cli.StringFlag{Name: "sig-in", Usage: "JSON sigma schedule, coarse to fine", Value: string(sigJSON)},
		&cli.Float64Flag{Name: "pc-ed-rad-nn", Usage: "point-cloud edge scorer radius neighborhood (m)", Value: d.PCEdgeRadiusNN},
		&cli.IntFlag{Name: "pc-ed-num-nn", Usage: "point-cloud edge scorer KNN count", Value: d.PCEdgeNumNN},
		&cli.Float64Flag{Name: "pc-ed-score-thr", Usage: "point-cloud edge score percentile threshold", Value: d.PCEdgeScoreThreshold},
		&cli.StringFlag{Name: "im-ed-method", Usage: "image edge detector method: sed or canny", Value: d.ImageEdgeMethod},
		&cli.Float64Flag{Name: "im-sed-score-thr", Usage: "structured-edge detector score threshold", Value: d.ImageSEDScoreThreshold},
		&cli.Float64Flag{Name: "im-ced-lower", Usage: "Canny detector lower hysteresis threshold", Value: d.ImageCannyLower},
		&cli.Float64Flag{Name: "im-ced-upper", Usage: "Canny detector upper hysteresis threshold", Value: d.ImageCannyUpper},
	}
}

// FromCLI builds a Config from a urfave/cli/v2 context populated by the
// flags CLIFlags returns.
func FromCLI(c *cli.Context) (Config, error) {
	cfg := Default()
	cfg.Dir = c.String("dir")

	if err := json.Unmarshal([]byte(c.String("frames")), &cfg.Frames); err != nil {
		return Config{}, fmt.Errorf("%w: --frames: %s", ErrInvalidConfig, err)
	}
	if err := json.Unmarshal([]byte(c.String("tau-init")), &cfg.TauInit); err != nil {
		return Config{}, fmt.Errorf("%w: --tau-init: %s", ErrInvalidConfig, err)
	}
	if err := json.Unmarshal([]byte(c.String("k")), &cfg.K); err != nil {
		return Config{}, fmt.Errorf("%w: --k: %s", ErrInvalidConfig, err)
	}
	if err := json.Unmarshal([]byte(c.String("sig-in")), &cfg.SigIn); err != nil {
		return Config{}, fmt.Errorf("%w: --sig-in: %s", ErrInvalidConfig, err)
	}

	cfg.PCEdgeRadiusNN = c.Float64("pc-ed-rad-nn")
	cfg.PCEdgeNumNN = c.Int("pc-ed-num-nn")
	cfg.PCEdgeScoreThreshold = c.Float64("pc-ed-score-thr")
	cfg.ImageEdgeMethod = c.String("im-ed-method")
	cfg.ImageSEDScoreThreshold = c.Float64("im-sed-score-thr")
	cfg.ImageCannyLower = c.Float64("im-ced-lower")
	cfg.ImageCannyUpper = c.Float64("im-ced-upper")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
