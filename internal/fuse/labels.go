package fuse

import "strings"

// LabelGroup is the closed set of semantic groups detector labels map to.
// Grouping exists so that related labels (car vs truck) do not re-trigger
// each other as "new" objects downstream.
type LabelGroup string

const (
	GroupVehicle  LabelGroup = "vehicle"
	GroupMovable  LabelGroup = "movable"
	GroupObstacle LabelGroup = "obstacle"
	GroupSurface  LabelGroup = "surface"
	GroupOther    LabelGroup = "other"
)

// labelGroups maps the detector vocabulary to groups. The vocabulary is
// fixed at build time, so this is a static closed table rather than an
// extensible registry.
var labelGroups = map[string]LabelGroup{
	"car":        GroupVehicle,
	"truck":      GroupVehicle,
	"bus":        GroupVehicle,
	"motorcycle": GroupVehicle,
	"train":      GroupVehicle,

	"person":  GroupMovable,
	"bicycle": GroupMovable,
	"dog":     GroupMovable,
	"cat":     GroupMovable,
	"horse":   GroupMovable,
	"bird":    GroupMovable,

	"chair":        GroupObstacle,
	"couch":        GroupObstacle,
	"bench":        GroupObstacle,
	"bed":          GroupObstacle,
	"dining table": GroupObstacle,
	"potted plant": GroupObstacle,
	"suitcase":     GroupObstacle,
	"refrigerator": GroupObstacle,
	"toilet":       GroupObstacle,
	"tv":           GroupObstacle,
	"fire hydrant": GroupObstacle,
	"stop sign":    GroupObstacle,
}

// GroupOf returns the group for a detector label. Labels outside the
// closed table map to GroupSurface when they carry wall/obstacle wording,
// else GroupOther. The "moving " urgency prefix is ignored.
func GroupOf(label string) LabelGroup {
	base := strings.TrimPrefix(label, "moving ")
	if g, ok := labelGroups[base]; ok {
		return g
	}
	if strings.Contains(base, "wall") || strings.Contains(base, "obstacle") {
		return GroupSurface
	}
	return GroupOther
}

// IsVehicle reports whether the label belongs to the vehicle group.
func IsVehicle(label string) bool { return GroupOf(label) == GroupVehicle }

// IsMovable reports whether the label belongs to the movable group
// (objects that move under their own power; vehicles score separately).
func IsMovable(label string) bool { return GroupOf(label) == GroupMovable }

// Segmentation class identifiers for the fixed per-pixel vocabulary.
// The subset named here is what fusion reasons about; everything else is
// treated as background.
const (
	SegWall     uint8 = 0
	SegBuilding uint8 = 1
	SegSky      uint8 = 2
	SegFloor    uint8 = 3
	SegTree     uint8 = 4
	SegRoad     uint8 = 6
	SegPerson   uint8 = 12
	SegDoor     uint8 = 14
	SegTable    uint8 = 15
	SegPlant    uint8 = 17
	SegChair    uint8 = 19
	SegCar      uint8 = 20
	SegFence    uint8 = 32
	SegRock     uint8 = 34
	SegRailing  uint8 = 38
	SegColumn   uint8 = 42

	// SegUnknown marks out-of-range lookups; it is outside the model's
	// class range.
	SegUnknown uint8 = 255
)

// SurfaceGroup buckets segmentation classes for the sector scan.
type SurfaceGroup uint8

const (
	SurfaceBackground SurfaceGroup = iota
	SurfaceWallLike
	SurfaceObstacleLike
)

var surfaceGroups = map[uint8]SurfaceGroup{
	SegWall:     SurfaceWallLike,
	SegBuilding: SurfaceWallLike,
	SegDoor:     SurfaceWallLike,
	SegFence:    SurfaceWallLike,

	SegTable:   SurfaceObstacleLike,
	SegPlant:   SurfaceObstacleLike,
	SegChair:   SurfaceObstacleLike,
	SegRock:    SurfaceObstacleLike,
	SegRailing: SurfaceObstacleLike,
	SegColumn:  SurfaceObstacleLike,
}

// SurfaceGroupOf returns the surface group for a segmentation class id.
func SurfaceGroupOf(class uint8) SurfaceGroup {
	if g, ok := surfaceGroups[class]; ok {
		return g
	}
	return SurfaceBackground
}
