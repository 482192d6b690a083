// Package viz implements component J of the extrinsic calibration core:
// the visualization helpers of spec §6's persisted-outputs contract
// (periodic PNG reprojections, a loss-history plot) plus the
// distance-colorized point overlay supplemented from
// `camera_lidar_calibrator.py`'s draw_points/pc_to_colors.
package viz

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/viam-labs/lidarcam-extrinsics/project"
)

// MaxRangeMeters is the 120 m clip named by the Python source's
// draw_points/pc_to_colors for the near(red)-to-far(blue) hue ramp.
const MaxRangeMeters = 120.0

// ColorizeByRange renders base with every in-frustum projected point drawn
// as a small filled circle, hue-mapped from range: near points are red,
// far points (at or beyond MaxRangeMeters) are blue.
func ColorizeByRange(base image.Image, tables project.Tables) image.Image {
	dc := gg.NewContextForImage(base)

	for i, in := range tables.InFrustum {
		if !in {
			continue
		}
		px := tables.Pixels[i]
		rng := tables.CamPoints[i].Norm()
		r, g, b := rangeToRGB(rng)
		dc.SetRGB(r, g, b)
		dc.DrawCircle(px[0], px[1], 2)
		dc.Fill()
	}
	return dc.Image()
}

// rangeToRGB maps a range in meters to an RGB triple via a red(near) to
// blue(far) hue ramp, clipped at MaxRangeMeters, mirroring pc_to_colors.
func rangeToRGB(rangeMeters float64) (r, g, b float64) {
	t := rangeMeters / MaxRangeMeters
	if t > 1 {
		t = 1
	}
	if t < 0 {
		t = 0
	}
	// Hue sweeps from 0 (red) to 2/3 (blue) as t goes 0 -> 1.
	hue := t * (2.0 / 3.0)
	return hsvToRGB(hue, 1, 1)
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	switch int(i) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

// ReprojectionOverlay draws the projected lidar-edge pixels of a frame (in
// white) over the base image, for the periodic PNG dumps spec §4.9 and §6
// name as an observable side effect of the optimizer.
func ReprojectionOverlay(base image.Image, tables project.Tables, edgeIdx []int) image.Image {
	dc := gg.NewContextForImage(base)
	dc.SetRGB(1, 1, 1)
	for _, j := range edgeIdx {
		if !tables.InFrustum[j] {
			continue
		}
		px := tables.Pixels[j]
		dc.DrawCircle(px[0], px[1], 1.5)
		dc.Fill()
	}
	return dc.Image()
}

// LossHistory renders a loss-vs-iteration plot to path as a PNG, the loss
// history side effect named in spec §4.9 and persisted per spec §6.
func LossHistory(path string, losses []float64) error {
	p := plot.New()
	p.Title.Text = "calibration loss"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "loss"

	pts := make(plotter.XYs, len(losses))
	for i, l := range losses {
		pts[i] = plotter.XY{X: float64(i), Y: l}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("viz: build loss line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("viz: save loss plot: %w", err)
	}
	return nil
}
