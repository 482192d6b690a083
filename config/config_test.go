package config

import (
	"encoding/json"
	"errors"
	"flag"
	"testing"

	"github.com/urfave/cli/v2"
	"go.viam.com/test"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestValidateRejectsMissingDir(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	test.That(t, errors.Is(err, ErrInvalidConfig), test.ShouldBeTrue)
}

func TestValidateRejectsEmptyFrames(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	cfg.Frames = nil
	test.That(t, errors.Is(cfg.Validate(), ErrInvalidConfig), test.ShouldBeTrue)
}

func TestValidateRejectsSingularK(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	cfg.K[2][2] = 0
	test.That(t, errors.Is(cfg.Validate(), ErrInvalidConfig), test.ShouldBeTrue)
}

func TestValidateRejectsNonPositiveFocalLength(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	cfg.K[0][0] = 0
	test.That(t, errors.Is(cfg.Validate(), ErrInvalidConfig), test.ShouldBeTrue)
}

func TestValidateRejectsNegativeSigma(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	cfg.SigIn = []float64{3.0, -1.0}
	test.That(t, errors.Is(cfg.Validate(), ErrInvalidConfig), test.ShouldBeTrue)
}

func TestValidateRejectsNonPositiveNumNN(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	cfg.PCEdgeNumNN = 0
	test.That(t, errors.Is(cfg.Validate(), ErrInvalidConfig), test.ShouldBeTrue)
}

func TestValidateRejectsOutOfRangePercentile(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	cfg.PCEdgeScoreThreshold = 150
	test.That(t, errors.Is(cfg.Validate(), ErrInvalidConfig), test.ShouldBeTrue)
}

func TestValidateRejectsUnknownEdgeMethod(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"
	cfg.ImageEdgeMethod = "hough"
	test.That(t, errors.Is(cfg.Validate(), ErrInvalidConfig), test.ShouldBeTrue)
}

func TestJSONRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/data/run1"

	data, err := json.Marshal(cfg)
	test.That(t, err, test.ShouldBeNil)

	var out Config
	test.That(t, json.Unmarshal(data, &out), test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, cfg)
}

func TestFromCLIUsesDefaultsWhenUnset(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	app := &cli.App{Flags: CLIFlags()}
	for _, f := range app.Flags {
		test.That(t, f.Apply(set), test.ShouldBeNil)
	}
	test.That(t, set.Parse([]string{"--dir", "/data/run1"}), test.ShouldBeNil)

	c := cli.NewContext(app, set, nil)
	cfg, err := FromCLI(c)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Dir, test.ShouldEqual, "/data/run1")
	test.That(t, cfg.Frames, test.ShouldResemble, Default().Frames)
	test.That(t, cfg.ImageEdgeMethod, test.ShouldEqual, "sed")
}

func TestFromCLIParsesOverrides(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	app := &cli.App{Flags: CLIFlags()}
	for _, f := range app.Flags {
		test.That(t, f.Apply(set), test.ShouldBeNil)
	}
	test.That(t, set.Parse([]string{
		"--dir", "/data/run1",
		"--frames", "[2,3]",
		"--sig-in", "[1.5]",
		"--im-ed-method", "canny",
	}), test.ShouldBeNil)

	c := cli.NewContext(app, set, nil)
	cfg, err := FromCLI(c)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Frames, test.ShouldResemble, []int{2, 3})
	test.That(t, cfg.SigIn, test.ShouldResemble, []float64{1.5})
	test.That(t, cfg.ImageEdgeMethod, test.ShouldEqual, "canny")
}
