package pipeline

import (
	"context"
	"time"

	"github.com/capable-vision/percept/internal/fuse"
	"github.com/capable-vision/percept/internal/track"
)

// Frame is one camera frame handed to the pipeline. The pixel payload is
// opaque here; only the models interpret it.
type Frame struct {
	Seq    int64
	Pixels []byte
	Width  int
	Height int
	Taken  time.Time
}

// Detector produces raw per-frame observations. An empty slice is a valid
// result; errors are degraded to "no detections this frame" by the caller.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]track.Detection, error)
}

// DepthEstimator produces a dense relative-depth snapshot. A nil snapshot
// with a nil error means "unavailable" and leaves the previous published
// snapshot in place.
type DepthEstimator interface {
	Estimate(ctx context.Context, frame Frame) (*fuse.DepthSnapshot, error)
}

// Segmenter produces a per-pixel semantic-class snapshot. Nil means
// unavailable, same contract as DepthEstimator.
type Segmenter interface {
	Segment(ctx context.Context, frame Frame) (*fuse.SegSnapshot, error)
}
