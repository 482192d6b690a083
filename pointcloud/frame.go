package pointcloud

import (
	"errors"
	"fmt"
	"image"

	"github.com/golang/geo/r3"
)

// ErrInvalidConfig is the taxonomy entry of spec §7 for a malformed frame:
// mismatched array lengths, an empty point set, or reflectance out of
// [0, 1]. Raised at load time, before optimization begins.
var ErrInvalidConfig = errors.New("pointcloud: invalid frame")

// ErrIODependency is the taxonomy entry of spec §7 for a Loader failure:
// fatal, surfaced to the caller rather than retried, since there's no
// locally recoverable fallback for a missing or corrupt frame on disk.
var ErrIODependency = errors.New("pointcloud: frame load failed")

// Frame is a single synchronized image + point-cloud capture (spec §3).
// Immutable once constructed; never aliased between frames.
type Frame struct {
	Image       image.Image
	Points      []r3.Vector
	Reflectance []float64 // len == len(Points), each in [0, 1]
}

// NewFrame validates and constructs a Frame. It is the boundary at which
// a malformed frame becomes a fatal, caller-visible error wrapping
// ErrInvalidConfig.
func NewFrame(img image.Image, points []r3.Vector, reflectance []float64) (*Frame, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: frame has zero points", ErrInvalidConfig)
	}
	if len(reflectance) != len(points) {
		return nil, fmt.Errorf("%w: reflectance length %d != point count %d",
			ErrInvalidConfig, len(reflectance), len(points))
	}
	for i, r := range reflectance {
		if r < 0 || r > 1 {
			return nil, fmt.Errorf("%w: reflectance[%d]=%f out of [0,1]", ErrInvalidConfig, i, r)
		}
	}
	if img == nil {
		return nil, fmt.Errorf("%w: frame has no image", ErrInvalidConfig)
	}
	return &Frame{Image: img, Points: points, Reflectance: reflectance}, nil
}

// Bounds returns the frame image's pixel width and height.
func (f *Frame) Bounds() (w, h int) {
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Correspondence is one user-picked 2D pixel <-> 3D lidar point pair (spec
// §3's C_k), immutable after selection.
type Correspondence struct {
	Pixel [2]float64
	Lidar r3.Vector
}

// FrameCorrespondences is the full correspondence set for one frame.
type FrameCorrespondences []Correspondence
