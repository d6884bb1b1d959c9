// Package announce converts the fused hazard stream into a small number of
// debounced narration events. A per-direction state machine suppresses
// flicker and repeats, with a moving-vehicle override that bypasses
// stability entirely for the one class of hazard where latency matters
// more than polish.
package announce

import (
	"fmt"
	"time"

	"github.com/capable-vision/percept/internal/fuse"
	"github.com/capable-vision/percept/internal/timeutil"
)

// Level is the narration urgency handed to the sink.
type Level int

const (
	LevelNormal Level = iota
	LevelHigh
	LevelUrgent
)

func (l Level) String() string {
	switch l {
	case LevelUrgent:
		return "urgent"
	case LevelHigh:
		return "high"
	default:
		return "normal"
	}
}

// Utterance is one narration request emitted by the stabilizer.
type Utterance struct {
	Text      string
	Level     Level
	Interrupt bool

	// Source metadata for logging and persistence.
	Direction fuse.Direction
	Label     string
	Priority  int
}

// Config holds stabilizer tuning parameters.
type Config struct {
	PurgeAfter    time.Duration // direction state dropped when unseen this long
	RepeatAfter   time.Duration // re-announcement allowed after unseen this long
	StreakMoving  int           // consecutive observations required when moving
	StreakStill   int           // consecutive observations required when stationary
	MaxPerCycle   int           // hazards considered per fusion cycle
}

// DefaultConfig returns production-default stabilizer parameters.
func DefaultConfig() Config {
	return Config{
		PurgeAfter:   2000 * time.Millisecond,
		RepeatAfter:  8000 * time.Millisecond,
		StreakMoving: 2,
		StreakStill:  3,
		MaxPerCycle:  2,
	}
}

// regionState is the per-direction stability record. It is the only
// long-lived mutable state in the core besides tracks, and only the
// stabilizer touches it.
type regionState struct {
	group     fuse.LabelGroup
	label     string
	moving    bool
	streak    int
	lastSeen  time.Time
	announced bool
}

// Stabilizer runs one state machine per direction. It is owned by the
// frame-processing goroutine and is not safe for concurrent use.
type Stabilizer struct {
	config  Config
	clock   timeutil.Clock
	regions map[fuse.Direction]*regionState
}

// NewStabilizer creates a stabilizer using the given clock.
func NewStabilizer(config Config, clock timeutil.Clock) *Stabilizer {
	return &Stabilizer{
		config:  config,
		clock:   clock,
		regions: make(map[fuse.Direction]*regionState, len(fuse.Directions)),
	}
}

// Observe processes one fusion cycle's hazard list (sorted by priority
// descending) and returns zero or more narration requests.
func (s *Stabilizer) Observe(hazards []fuse.Hazard) []Utterance {
	now := s.clock.Now()

	// Drop direction state that has gone unseen too long.
	for dir, st := range s.regions {
		if now.Sub(st.lastSeen) > s.config.PurgeAfter {
			delete(s.regions, dir)
		}
	}

	// Moving-vehicle override: announce immediately and skip everything
	// else this cycle, including streak bookkeeping.
	if len(hazards) > 0 {
		top := hazards[0]
		if top.MovingVehicle() && top.Distance != fuse.DistanceFar {
			return []Utterance{s.utterance(top, LevelUrgent, true)}
		}
	}

	touched := make(map[fuse.Direction]bool, len(fuse.Directions))
	var out []Utterance

	taken := 0
	for _, h := range hazards {
		if taken >= s.config.MaxPerCycle {
			break
		}
		if h.Distance == fuse.DistanceFar && !h.Moving {
			continue
		}
		// One hazard per direction per cycle. The list is priority-sorted,
		// so the first hazard wins its direction; a lower-priority hazard
		// sharing it must not knock over the streak being built there.
		if touched[h.Direction] {
			continue
		}
		taken++

		if u, ok := s.observeOne(h, now); ok {
			out = append(out, u)
		}
		touched[h.Direction] = true
	}

	// A direction not touched this cycle loses its streak but keeps its
	// identity until the purge fires, so a momentarily-occluded object
	// must re-accumulate while a continuously-visible one is unaffected.
	for dir, st := range s.regions {
		if !touched[dir] {
			st.streak = 0
		}
	}

	return out
}

func (s *Stabilizer) observeOne(h fuse.Hazard, now time.Time) (Utterance, bool) {
	group := h.Group()
	st := s.regions[h.Direction]

	if st == nil || st.group != group {
		s.regions[h.Direction] = &regionState{
			group:    group,
			label:    h.Label,
			moving:   h.Moving,
			streak:   1,
			lastSeen: now,
		}
		return Utterance{}, false
	}

	// Same group still present: extend the streak. Re-announcement of a
	// still-present object unlocks only after it went unseen long enough,
	// measured from the previous sighting.
	if st.announced && now.Sub(st.lastSeen) > s.config.RepeatAfter {
		st.announced = false
	}
	st.streak++
	st.lastSeen = now
	st.label = h.Label
	st.moving = h.Moving

	needed := s.config.StreakStill
	if st.moving {
		needed = s.config.StreakMoving
	}
	if st.streak < needed || st.announced {
		return Utterance{}, false
	}

	st.announced = true
	level := LevelNormal
	if h.Distance == fuse.DistanceVeryClose {
		level = LevelHigh
	}
	return s.utterance(h, level, false), true
}

func (s *Stabilizer) utterance(h fuse.Hazard, level Level, interrupt bool) Utterance {
	return Utterance{
		Text:      Phrase(h),
		Level:     level,
		Interrupt: interrupt,
		Direction: h.Direction,
		Label:     h.Label,
		Priority:  h.Priority,
	}
}

var distancePhrases = map[fuse.DistanceClass]string{
	fuse.DistanceVeryClose: "very close",
	fuse.DistanceClose:     "close",
	fuse.DistanceMedium:    "nearby",
	fuse.DistanceFar:       "far away",
}

var directionPhrases = map[fuse.Direction]string{
	fuse.DirectionLeft:   "on your left",
	fuse.DirectionCenter: "ahead",
	fuse.DirectionRight:  "on your right",
}

// Phrase renders a hazard as narration text.
func Phrase(h fuse.Hazard) string {
	return fmt.Sprintf("%s %s %s", h.Label, distancePhrases[h.Distance], directionPhrases[h.Direction])
}
