// Package fuse merges tracked objects with the latest depth and
// segmentation snapshots into a priority-ordered hazard list. It is the
// middle stage of the perception pipeline: tracks come in every frame,
// snapshots arrive asynchronously and may be stale, hazards go out to the
// announcement stabilizer.
package fuse

import (
	"sort"

	"github.com/capable-vision/percept/internal/geom"
	"github.com/capable-vision/percept/internal/track"
)

// Config holds fusion tuning parameters. The depth-based and box-area
// distance tables are independently tuned constants; they are preserved
// verbatim and deliberately not unified into one formula.
type Config struct {
	// Direction sector boundaries on normalized center X.
	LeftMax  float64
	RightMin float64

	// Depth-based distance buckets (depth mean inside the box, 1=nearest).
	DepthVeryClose float64
	DepthClose     float64
	DepthMedium    float64

	// Box-area fallback buckets (fraction of frame area), used when no
	// depth snapshot is available.
	AreaVeryClose float64
	AreaClose     float64
	AreaMedium    float64

	// MotionThresh is the center-velocity norm above which a track counts
	// as moving, in normalized units per frame.
	MotionThresh float64

	// Sector-scan vertical band and trigger thresholds.
	BandTop             float64
	BandBottom          float64
	WallDepthMin        float64
	ObstacleDepthMin    float64
	ObstacleCoverageMin float64
}

// DefaultConfig returns production-default fusion parameters.
func DefaultConfig() Config {
	return Config{
		LeftMax:  0.33,
		RightMin: 0.66,

		DepthVeryClose: 0.8,
		DepthClose:     0.6,
		DepthMedium:    0.3,

		AreaVeryClose: 0.25,
		AreaClose:     0.10,
		AreaMedium:    0.03,

		MotionThresh: 0.015,

		BandTop:             0.3,
		BandBottom:          0.7,
		WallDepthMin:        0.65,
		ObstacleDepthMin:    0.55,
		ObstacleCoverageMin: 0.15,
	}
}

// Engine builds hazard lists from tracks and snapshots. It holds no
// mutable state between calls; all persistence lives in the tracker and
// the stabilizer.
type Engine struct {
	config Config
}

// NewEngine creates a fusion engine with the given configuration.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// BuildHazards fuses activated tracks with the latest snapshots into a
// hazard list sorted by priority descending. Either snapshot may be nil:
// without depth, distance falls back to box-area buckets; the sector scan
// needs both snapshots because its triggers are depth-gated.
func (e *Engine) BuildHazards(tracks []track.Track, depth *DepthSnapshot, seg *SegSnapshot) []Hazard {
	hazards := make([]Hazard, 0, len(tracks)+len(Directions))
	covered := make(map[Direction]bool, len(Directions))

	for _, t := range tracks {
		h := e.trackHazard(t, depth)
		covered[h.Direction] = true
		hazards = append(hazards, h)
	}

	if depth != nil && seg != nil {
		for _, dir := range Directions {
			if covered[dir] {
				continue
			}
			if h, ok := e.sectorHazard(dir, depth, seg); ok {
				hazards = append(hazards, h)
			}
		}
	}

	// Stable sort keeps relative input order for equal priorities.
	sort.SliceStable(hazards, func(i, j int) bool {
		return hazards[i].Priority > hazards[j].Priority
	})
	return hazards
}

func (e *Engine) trackHazard(t track.Track, depth *DepthSnapshot) Hazard {
	cx, _ := t.Box.Center()
	dir := e.direction(cx)
	dist := e.trackDistance(t.Box, depth)

	moving := t.Speed() > e.config.MotionThresh
	label := t.Label
	if moving && IsVehicle(label) {
		label = "moving " + label
	}

	return Hazard{
		Label:     label,
		Score:     t.Score,
		Distance:  dist,
		Direction: dir,
		Priority:  priorityFor(t.Label, moving, dist),
		Moving:    moving,
		TrackID:   t.ID,
	}
}

func (e *Engine) direction(cx float64) Direction {
	switch {
	case cx < e.config.LeftMax:
		return DirectionLeft
	case cx > e.config.RightMin:
		return DirectionRight
	default:
		return DirectionCenter
	}
}

// trackDistance buckets the track's distance from the depth snapshot when
// one is available, else from the box's share of the frame area. Both
// tables produce the same bucket names so downstream behavior is defined
// either way.
func (e *Engine) trackDistance(box geom.Rect, depth *DepthSnapshot) DistanceClass {
	if depth != nil {
		if mean, ok := depth.MeanRegion(box); ok {
			return e.depthBucket(mean)
		}
	}
	return e.areaBucket(box.Area())
}

func (e *Engine) depthBucket(mean float64) DistanceClass {
	switch {
	case mean > e.config.DepthVeryClose:
		return DistanceVeryClose
	case mean > e.config.DepthClose:
		return DistanceClose
	case mean > e.config.DepthMedium:
		return DistanceMedium
	default:
		return DistanceFar
	}
}

func (e *Engine) areaBucket(area float64) DistanceClass {
	switch {
	case area > e.config.AreaVeryClose:
		return DistanceVeryClose
	case area > e.config.AreaClose:
		return DistanceClose
	case area > e.config.AreaMedium:
		return DistanceMedium
	default:
		return DistanceFar
	}
}

// sectorHazard scans one direction sector's vertical band for wall-like or
// obstacle-like surfaces. Sectors already covered by a tracked object are
// skipped by the caller; tracked objects narrate better than surfaces.
func (e *Engine) sectorHazard(dir Direction, depth *DepthSnapshot, seg *SegSnapshot) (Hazard, bool) {
	band := e.sectorBand(dir)

	cov, ok := seg.GroupCoverage(band)
	if !ok {
		return Hazard{}, false
	}
	bandDepth, ok := depth.MeanRegion(band)
	if !ok {
		return Hazard{}, false
	}

	dominant := SurfaceBackground
	best := 0.0
	for g, c := range cov {
		if c > best || (c == best && g > dominant) {
			dominant = g
			best = c
		}
	}

	if dominant == SurfaceWallLike && bandDepth > e.config.WallDepthMin {
		dist := e.depthBucket(bandDepth)
		return Hazard{
			Label:     "wall",
			Score:     cov[SurfaceWallLike],
			Distance:  dist,
			Direction: dir,
			Priority:  30 + wallBonus[dist],
			TrackID:   SurfaceTrackID,
		}, true
	}

	if cov[SurfaceObstacleLike] > e.config.ObstacleCoverageMin && bandDepth > e.config.ObstacleDepthMin {
		dist := e.depthBucket(bandDepth)
		return Hazard{
			Label:     "obstacle",
			Score:     cov[SurfaceObstacleLike],
			Distance:  dist,
			Direction: dir,
			Priority:  25 + wallBonus[dist],
			TrackID:   SurfaceTrackID,
		}, true
	}

	return Hazard{}, false
}

func (e *Engine) sectorBand(dir Direction) geom.Rect {
	band := geom.Rect{Y1: e.config.BandTop, Y2: e.config.BandBottom}
	switch dir {
	case DirectionLeft:
		band.X1, band.X2 = 0, e.config.LeftMax
	case DirectionCenter:
		band.X1, band.X2 = e.config.LeftMax, e.config.RightMin
	default:
		band.X1, band.X2 = e.config.RightMin, 1
	}
	return band
}
