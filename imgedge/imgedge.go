// Package imgedge defines the external image-edge-detector contract of
// spec §1/§6. The detector itself (structured-edge or Canny) is an
// out-of-scope collaborator; this package only fixes the pure-function
// shape every cost function in package cost depends on:
// (image) -> (binary_mask[H][W], score_map[H][W] in [0,1]).
package imgedge

import "image"

// Method selects which external detector implementation produces the
// mask/score pair, mirroring the Python source's `--im_ed_method` flag.
type Method string

// The two detector methods named in spec §6's configuration table.
const (
	MethodSED   Method = "sed"
	MethodCanny Method = "canny"
)

// Params carries the pass-through knobs of spec §6 for each detector
// method. Only the fields relevant to Method are read by a given detector.
type Params struct {
	Method Method

	// SEDScoreThreshold is im_sed_score_thr.
	SEDScoreThreshold float64

	// CannyLower/CannyUpper are im_ced_lower/im_ced_upper.
	CannyLower, CannyUpper float64
}

// Result is the (binary_mask, score_map) pair spec §1 fixes as the
// detector's output contract, and spec §3 calls image_edge_mask /
// image_edge_score.
type Result struct {
	Mask  [][]bool    // [H][W]
	Score [][]float64 // [H][W], each in [0, 1]
}

// Width and Height of the detector's output grid (matches the source
// image's dimensions).
func (r Result) Width() int {
	if len(r.Mask) == 0 {
		return 0
	}
	return len(r.Mask[0])
}

// Height returns the number of rows in the result.
func (r Result) Height() int {
	return len(r.Mask)
}

// At reports whether (x, y) is a detected edge pixel and its score. Out of
// bounds coordinates report (false, 0).
func (r Result) At(x, y int) (isEdge bool, score float64) {
	if y < 0 || y >= len(r.Mask) || x < 0 || x >= len(r.Mask[y]) {
		return false, 0
	}
	return r.Mask[y][x], r.Score[y][x]
}

// Detector is the external collaborator interface of spec §6:
// img_edge_detect(image, method, params) -> (binary_mask, score_map). A
// concrete structured-edge or Canny implementation is out of scope for
// this module (spec §1); callers inject one (or a test double) here.
type Detector interface {
	Detect(img image.Image, params Params) (Result, error)
}
