package pointcloud

import "context"

// Loader is the external per-frame data source of spec §1/§6: "file I/O for
// point clouds and images" is explicitly out of scope for this module, so a
// concrete implementation (KITTI-style .bin/.png on disk, a ROS bag reader,
// whatever the deployment needs) is injected by the caller rather than
// built here, the same way package imgedge only fixes the detector's
// contract and leaves the detector itself external.
type Loader interface {
	// Load returns the frames at the given indices, in the same order, or
	// an error wrapping ErrIODependency for any frame that can't be read.
	Load(ctx context.Context, dir string, frameIdx []int) ([]*Frame, error)
}
