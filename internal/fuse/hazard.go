package fuse

// DistanceClass is the discretized distance of a hazard.
type DistanceClass string

const (
	DistanceVeryClose DistanceClass = "very_close"
	DistanceClose     DistanceClass = "close"
	DistanceMedium    DistanceClass = "medium"
	DistanceFar       DistanceClass = "far"
)

// Direction is the discretized horizontal sector of a hazard.
type Direction string

const (
	DirectionLeft   Direction = "left"
	DirectionCenter Direction = "center"
	DirectionRight  Direction = "right"
)

// Directions lists the fixed sectors in left-to-right order.
var Directions = [3]Direction{DirectionLeft, DirectionCenter, DirectionRight}

// Hazard is one fused, directional narration candidate. Hazards are
// transient values rebuilt every frame from tracks and snapshots.
type Hazard struct {
	Label     string
	Score     float64
	Distance  DistanceClass
	Direction Direction
	Priority  int
	Moving    bool

	// TrackID links back to the originating track, or SurfaceTrackID for
	// hazards derived from the segmentation sector scan.
	TrackID int64
}

// SurfaceTrackID marks hazards that did not originate from a track.
const SurfaceTrackID int64 = -1

// Group returns the hazard's label group.
func (h Hazard) Group() LabelGroup {
	if h.TrackID == SurfaceTrackID {
		return GroupSurface
	}
	return GroupOf(h.Label)
}

// MovingVehicle reports whether the hazard is a vehicle in motion, the
// class that bypasses announcement stability.
func (h Hazard) MovingVehicle() bool {
	return h.Moving && IsVehicle(h.Label)
}

// distance bonus rows, indexed by DistanceClass.

var vehicleBonus = map[DistanceClass]int{
	DistanceVeryClose: 50, DistanceClose: 30, DistanceMedium: 15, DistanceFar: 5,
}

var movableBonus = map[DistanceClass]int{
	DistanceVeryClose: 40, DistanceClose: 25, DistanceMedium: 10, DistanceFar: 0,
}

var obstacleBonus = map[DistanceClass]int{
	DistanceVeryClose: 25, DistanceClose: 15, DistanceMedium: 5, DistanceFar: 0,
}

var wallBonus = map[DistanceClass]int{
	DistanceVeryClose: 15, DistanceClose: 10, DistanceMedium: 5, DistanceFar: 0,
}

var defaultBonus = map[DistanceClass]int{
	DistanceVeryClose: 20, DistanceClose: 10, DistanceMedium: 5, DistanceFar: 0,
}

// priorityFor computes the integer priority for a track-derived hazard.
// The rule order is significant: motion dominates, then known-obstacle
// classes, then wall/obstacle wording, then the generic fallback.
func priorityFor(label string, moving bool, dist DistanceClass) int {
	group := GroupOf(label)
	switch {
	case moving && group == GroupVehicle:
		return 200 + vehicleBonus[dist]
	case moving && group == GroupMovable:
		return 100 + movableBonus[dist]
	case group == GroupObstacle:
		return 20 + obstacleBonus[dist]
	case group == GroupSurface:
		return 5 + wallBonus[dist]
	default:
		return 30 + defaultBonus[dist]
	}
}
