package fuse

import (
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/capable-vision/percept/internal/geom"
)

// DepthSnapshot is an immutable dense relative-depth buffer produced by the
// background depth model. Values are normalized to [0,1] with 1 = nearest.
// Once published a snapshot is never mutated; consumers treat it as
// read-only.
type DepthSnapshot struct {
	Width  int
	Height int
	Data   []float32 // row-major, len = Width*Height
	Taken  time.Time
}

// At returns the depth value at pixel (x, y). Out-of-range coordinates
// return 0 (farthest).
func (s *DepthSnapshot) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return 0
	}
	return s.Data[y*s.Width+x]
}

// MeanRegion returns the average depth inside a normalized-coordinate
// region. Large regions are subsampled on a stride so the per-frame cost
// stays bounded. ok is false when the region covers no pixels.
func (s *DepthSnapshot) MeanRegion(r geom.Rect) (mean float64, ok bool) {
	samples := s.sampleRegion(r)
	if len(samples) == 0 {
		return 0, false
	}
	return stat.Mean(samples, nil), true
}

// maxRegionSamplesPerAxis bounds the sampling grid for region statistics.
const maxRegionSamplesPerAxis = 32

func (s *DepthSnapshot) sampleRegion(r geom.Rect) []float64 {
	r = r.Clamp()
	x1 := int(r.X1 * float64(s.Width))
	x2 := int(r.X2 * float64(s.Width))
	y1 := int(r.Y1 * float64(s.Height))
	y2 := int(r.Y2 * float64(s.Height))
	if x2 > s.Width {
		x2 = s.Width
	}
	if y2 > s.Height {
		y2 = s.Height
	}
	if x2 <= x1 || y2 <= y1 {
		return nil
	}

	sx := (x2 - x1 + maxRegionSamplesPerAxis - 1) / maxRegionSamplesPerAxis
	sy := (y2 - y1 + maxRegionSamplesPerAxis - 1) / maxRegionSamplesPerAxis
	if sx < 1 {
		sx = 1
	}
	if sy < 1 {
		sy = 1
	}

	out := make([]float64, 0, maxRegionSamplesPerAxis*maxRegionSamplesPerAxis)
	for y := y1; y < y2; y += sy {
		for x := x1; x < x2; x += sx {
			out = append(out, float64(s.Data[y*s.Width+x]))
		}
	}
	return out
}

// SegSnapshot is an immutable per-pixel semantic-class buffer produced by
// the background segmentation model. Class identifiers index the closed
// segmentation vocabulary in labels.go.
type SegSnapshot struct {
	Width   int
	Height  int
	Classes []uint8 // row-major, len = Width*Height
	Taken   time.Time
}

// At returns the class id at pixel (x, y), or SegUnknown out of range.
func (s *SegSnapshot) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return SegUnknown
	}
	return s.Classes[y*s.Width+x]
}

// GroupCoverage tallies the fraction of pixels per surface group inside a
// normalized region, subsampled on the same grid as MeanRegion. ok is
// false when the region covers no pixels.
func (s *SegSnapshot) GroupCoverage(r geom.Rect) (cov map[SurfaceGroup]float64, ok bool) {
	r = r.Clamp()
	x1 := int(r.X1 * float64(s.Width))
	x2 := int(r.X2 * float64(s.Width))
	y1 := int(r.Y1 * float64(s.Height))
	y2 := int(r.Y2 * float64(s.Height))
	if x2 > s.Width {
		x2 = s.Width
	}
	if y2 > s.Height {
		y2 = s.Height
	}
	if x2 <= x1 || y2 <= y1 {
		return nil, false
	}

	sx := (x2 - x1 + maxRegionSamplesPerAxis - 1) / maxRegionSamplesPerAxis
	sy := (y2 - y1 + maxRegionSamplesPerAxis - 1) / maxRegionSamplesPerAxis
	if sx < 1 {
		sx = 1
	}
	if sy < 1 {
		sy = 1
	}

	counts := make(map[SurfaceGroup]int)
	total := 0
	for y := y1; y < y2; y += sy {
		for x := x1; x < x2; x += sx {
			counts[SurfaceGroupOf(s.Classes[y*s.Width+x])]++
			total++
		}
	}
	if total == 0 {
		return nil, false
	}

	cov = make(map[SurfaceGroup]float64, len(counts))
	for g, c := range counts {
		cov[g] = float64(c) / float64(total)
	}
	return cov, true
}

// Latest is a single-slot publication cell for snapshots crossing from the
// background inference worker to the frame-processing goroutine. Publish
// performs one atomic pointer swap, so a reader observes either the
// previous complete snapshot or the new one, never a buffer mid-write.
// Peek never blocks; staleness of one or more cycles is expected.
type Latest[T any] struct {
	p atomic.Pointer[T]
}

// Publish makes snap the current snapshot. The caller must not mutate snap
// afterwards.
func (l *Latest[T]) Publish(snap *T) {
	l.p.Store(snap)
}

// Peek returns the most recently published snapshot, or nil if none has
// been published yet.
func (l *Latest[T]) Peek() *T {
	return l.p.Load()
}
