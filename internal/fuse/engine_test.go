package fuse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capable-vision/percept/internal/geom"
	"github.com/capable-vision/percept/internal/track"
)

func flatDepth(w, h int, v float32) *DepthSnapshot {
	d := &DepthSnapshot{Width: w, Height: h, Data: make([]float32, w*h), Taken: time.Now()}
	for i := range d.Data {
		d.Data[i] = v
	}
	return d
}

func flatSeg(w, h int, class uint8) *SegSnapshot {
	s := &SegSnapshot{Width: w, Height: h, Classes: make([]uint8, w*h), Taken: time.Now()}
	for i := range s.Classes {
		s.Classes[i] = class
	}
	return s
}

func trackAt(id int64, label string, box geom.Rect, vx float64) track.Track {
	return track.Track{ID: id, Label: label, Score: 0.9, Box: box, VX: vx, Activated: true}
}

func TestDirectionSectors(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	cases := []struct {
		name string
		box  geom.Rect
		want Direction
	}{
		{"left", geom.Rect{X1: 0.0, Y1: 0.4, X2: 0.2, Y2: 0.6}, DirectionLeft},
		{"center", geom.Rect{X1: 0.40, Y1: 0.4, X2: 0.60, Y2: 0.6}, DirectionCenter},
		{"right", geom.Rect{X1: 0.8, Y1: 0.4, X2: 1.0, Y2: 0.6}, DirectionRight},
		{"boundary left edge is center", geom.Rect{X1: 0.23, Y1: 0.4, X2: 0.43, Y2: 0.6}, DirectionCenter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hz := e.BuildHazards([]track.Track{trackAt(1, "person", tc.box, 0)}, nil, nil)
			require.Len(t, hz, 1)
			assert.Equal(t, tc.want, hz[0].Direction)
		})
	}
}

func TestAreaFallbackBuckets(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	cases := []struct {
		name string
		box  geom.Rect
		want DistanceClass
	}{
		{"very close", geom.Rect{X1: 0.2, Y1: 0.2, X2: 0.8, Y2: 0.8}, DistanceVeryClose}, // area 0.36
		{"close", geom.Rect{X1: 0.3, Y1: 0.3, X2: 0.7, Y2: 0.7}, DistanceClose},          // area 0.16
		{"medium", geom.Rect{X1: 0.4, Y1: 0.4, X2: 0.6, Y2: 0.6}, DistanceMedium},        // area 0.04
		{"far", geom.Rect{X1: 0.48, Y1: 0.48, X2: 0.52, Y2: 0.52}, DistanceFar},          // area 0.0016
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hz := e.BuildHazards([]track.Track{trackAt(1, "person", tc.box, 0)}, nil, nil)
			require.Len(t, hz, 1)
			assert.Equal(t, tc.want, hz[0].Distance)
		})
	}
}

func TestDepthBucketsOverrideArea(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	// Tiny box (area bucket would say far) but depth says very close.
	box := geom.Rect{X1: 0.48, Y1: 0.48, X2: 0.52, Y2: 0.52}
	hz := e.BuildHazards([]track.Track{trackAt(1, "person", box, 0)}, flatDepth(64, 64, 0.9), flatSeg(64, 64, SegSky))
	require.NotEmpty(t, hz)
	assert.Equal(t, DistanceVeryClose, hz[0].Distance)
}

// TestStationaryChairScenario reproduces the end-to-end obstacle case: a
// chair at [0.40,0.40,0.60,0.60] with no depth lands at medium distance
// (area 0.04) and priority 20 + 5.
func TestStationaryChairScenario(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	box := geom.Rect{X1: 0.40, Y1: 0.40, X2: 0.60, Y2: 0.60}
	hz := e.BuildHazards([]track.Track{trackAt(7, "chair", box, 0)}, nil, nil)
	require.Len(t, hz, 1)
	assert.Equal(t, "chair", hz[0].Label)
	assert.Equal(t, DirectionCenter, hz[0].Direction)
	assert.Equal(t, DistanceMedium, hz[0].Distance)
	assert.Equal(t, 25, hz[0].Priority)
	assert.False(t, hz[0].Moving)
	assert.Equal(t, int64(7), hz[0].TrackID)
}

// TestMovingCarScenario reproduces the moving-vehicle case: a car moving
// faster than the motion threshold at very_close distance scores 250 and
// gets the urgency prefix.
func TestMovingCarScenario(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	box := geom.Rect{X1: 0.2, Y1: 0.2, X2: 0.8, Y2: 0.8} // area 0.36: very_close
	hz := e.BuildHazards([]track.Track{trackAt(3, "car", box, 0.03)}, nil, nil)
	require.Len(t, hz, 1)
	assert.Equal(t, "moving car", hz[0].Label)
	assert.True(t, hz[0].Moving)
	assert.True(t, hz[0].MovingVehicle())
	assert.Equal(t, 250, hz[0].Priority)
	assert.GreaterOrEqual(t, hz[0].Priority, 230)
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	big := geom.Rect{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.9}
	hz := e.BuildHazards([]track.Track{
		trackAt(1, "chair", big, 0),                                         // stationary obstacle, very_close: 45
		trackAt(2, "person", geom.Rect{X1: 0, Y1: 0.3, X2: 0.2, Y2: 0.7}, 0.05), // moving movable
		trackAt(3, "car", big, 0.05),                                        // moving vehicle, very_close: 250
	}, nil, nil)
	require.Len(t, hz, 3)
	assert.Equal(t, "moving car", hz[0].Label, "moving vehicle must outrank everything")
	assert.Equal(t, "person", hz[1].Label)
	assert.Equal(t, "chair", hz[2].Label)
	for i := 1; i < len(hz); i++ {
		assert.GreaterOrEqual(t, hz[i-1].Priority, hz[i].Priority)
	}
}

func TestPriorityTiesKeepInputOrder(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	box := geom.Rect{X1: 0.40, Y1: 0.40, X2: 0.60, Y2: 0.60}
	hz := e.BuildHazards([]track.Track{
		trackAt(1, "chair", box, 0),
		trackAt(2, "bench", box, 0),
	}, nil, nil)
	require.Len(t, hz, 2)
	assert.Equal(t, int64(1), hz[0].TrackID)
	assert.Equal(t, int64(2), hz[1].TrackID)
}

func TestWallSectorHazard(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	hz := e.BuildHazards(nil, flatDepth(64, 64, 0.7), flatSeg(64, 64, SegWall))
	require.Len(t, hz, 3, "all three uncovered sectors see the wall")
	for _, h := range hz {
		assert.Equal(t, "wall", h.Label)
		assert.Equal(t, SurfaceTrackID, h.TrackID)
		assert.Equal(t, DistanceClose, h.Distance)
		assert.Equal(t, 30+10, h.Priority)
	}
}

func TestObstacleSectorHazard(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	hz := e.BuildHazards(nil, flatDepth(64, 64, 0.58), flatSeg(64, 64, SegChair))
	require.Len(t, hz, 3)
	for _, h := range hz {
		assert.Equal(t, "obstacle", h.Label)
		assert.Equal(t, DistanceMedium, h.Distance)
		assert.Equal(t, 25+5, h.Priority)
	}
}

func TestSectorScanRequiresBothSnapshots(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	assert.Empty(t, e.BuildHazards(nil, nil, flatSeg(64, 64, SegWall)))
	assert.Empty(t, e.BuildHazards(nil, flatDepth(64, 64, 0.9), nil))
}

func TestSectorScanSkipsFarAndBackground(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	// Wall visible but too far away for the depth gate.
	assert.Empty(t, e.BuildHazards(nil, flatDepth(64, 64, 0.4), flatSeg(64, 64, SegWall)))
	// Near but only background classes.
	assert.Empty(t, e.BuildHazards(nil, flatDepth(64, 64, 0.9), flatSeg(64, 64, SegSky)))
}

func TestTrackedSectorSuppressesSurfaceHazard(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	// A person covers the center sector; wall hazards appear on the sides only.
	person := trackAt(1, "person", geom.Rect{X1: 0.40, Y1: 0.40, X2: 0.60, Y2: 0.60}, 0)
	hz := e.BuildHazards([]track.Track{person}, flatDepth(64, 64, 0.7), flatSeg(64, 64, SegWall))
	dirs := map[Direction]string{}
	for _, h := range hz {
		dirs[h.Direction] = h.Label
	}
	assert.Equal(t, "person", dirs[DirectionCenter])
	assert.Equal(t, "wall", dirs[DirectionLeft])
	assert.Equal(t, "wall", dirs[DirectionRight])
}

func TestGroupTables(t *testing.T) {
	t.Parallel()

	assert.Equal(t, GroupVehicle, GroupOf("car"))
	assert.Equal(t, GroupVehicle, GroupOf("moving car"))
	assert.Equal(t, GroupMovable, GroupOf("person"))
	assert.Equal(t, GroupObstacle, GroupOf("chair"))
	assert.Equal(t, GroupSurface, GroupOf("wall"))
	assert.Equal(t, GroupSurface, GroupOf("obstacle"))
	assert.Equal(t, GroupOther, GroupOf("kite"))

	assert.True(t, IsVehicle("bus"))
	assert.False(t, IsVehicle("person"))
	assert.True(t, IsMovable("dog"))
	assert.False(t, IsMovable("truck"))
}
