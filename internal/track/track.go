// Package track implements frame-to-frame multi-object association over
// detector output. Detections are matched to persistent tracks by greedy
// IoU in two confidence bands, with a lost pool that lets briefly occluded
// objects recover their original identity.
package track

import (
	"math"

	"github.com/capable-vision/percept/internal/geom"
)

// Detection is one raw per-frame observation from the object detector.
// Detections are transient: produced and consumed within a single frame.
type Detection struct {
	Label string
	Score float64
	Box   geom.Rect
}

// Track is a persistent object hypothesis carried across frames.
//
// The velocity fields are per-coordinate exponential moving averages of the
// frame-to-frame displacement of the box center (VX, VY) and box size
// (VW, VH), in normalized units per frame.
type Track struct {
	ID    int64
	Label string
	Score float64
	Box   geom.Rect

	VX float64
	VY float64
	VW float64
	VH float64

	Age         int // frames since creation
	Hits        int // successful associations
	SinceUpdate int // frames since last association
	Activated   bool

	// Box as of the last association, before prediction. Velocity deltas
	// are measured against this so prediction does not bias them to zero.
	prevBox geom.Rect
}

// Speed returns the magnitude of the center velocity in normalized units
// per frame.
func (t *Track) Speed() float64 {
	return math.Hypot(t.VX, t.VY)
}

// predict advances the box by the current velocity estimate and ages the
// track by one frame.
func (t *Track) predict() {
	t.prevBox = t.Box

	cx, cy := t.Box.Center()
	w := t.Box.Width() + t.VW
	h := t.Box.Height() + t.VH
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	cx += t.VX
	cy += t.VY

	t.Box = geom.Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
	t.Age++
	t.SinceUpdate++
}

// absorb replaces the track's box with a matched detection and folds the
// observed displacement into the velocity EMA.
func (t *Track) absorb(det Detection, alpha float64, minHits int) {
	pcx, pcy := t.prevBox.Center()
	ncx, ncy := det.Box.Center()

	t.VX = (1-alpha)*t.VX + alpha*(ncx-pcx)
	t.VY = (1-alpha)*t.VY + alpha*(ncy-pcy)
	t.VW = (1-alpha)*t.VW + alpha*(det.Box.Width()-t.prevBox.Width())
	t.VH = (1-alpha)*t.VH + alpha*(det.Box.Height()-t.prevBox.Height())

	t.Box = det.Box
	t.prevBox = det.Box
	t.Label = det.Label
	t.Score = det.Score
	t.Hits++
	t.SinceUpdate = 0
	if t.Hits >= minHits {
		t.Activated = true
	}
}
