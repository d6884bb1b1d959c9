package track

import (
	"github.com/capable-vision/percept/internal/geom"
)

// Config holds tracker tuning parameters.
type Config struct {
	HighConfThresh float64 // detections at or above this score drive association round one
	LowConfThresh  float64 // floor for the low-confidence band; below this detections are discarded
	MatchThresh    float64 // minimum IoU for any association
	MinHits        int     // associations required before a track is exposed downstream
	MaxTimeLost    int     // frames a lost track survives before expiry
	VelocityAlpha  float64 // EMA smoothing factor for velocity updates
}

// DefaultConfig returns production-default tracker parameters.
func DefaultConfig() Config {
	return Config{
		HighConfThresh: 0.5,
		LowConfThresh:  0.1,
		MatchThresh:    0.3,
		MinHits:        3,
		MaxTimeLost:    30,
		VelocityAlpha:  0.4,
	}
}

// Tracker owns all track state. It is driven by a single logical caller:
// Update is called once per processed frame and is not reentrant.
type Tracker struct {
	config Config
	active []*Track
	lost   []*Track
	nextID int64
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(config Config) *Tracker {
	return &Tracker{config: config, nextID: 1}
}

// Update runs one association round and returns the activated tracks as
// value copies. An empty detection list is valid input: existing tracks age
// and eventually expire.
func (tk *Tracker) Update(detections []Detection) []Track {
	// Step 1: predict all tracks forward by their velocity estimate.
	for _, t := range tk.active {
		t.predict()
	}
	for _, t := range tk.lost {
		t.predict()
	}

	// Step 2: split detections into confidence bands.
	var high, low []Detection
	for _, d := range detections {
		switch {
		case d.Score >= tk.config.HighConfThresh:
			high = append(high, d)
		case d.Score >= tk.config.LowConfThresh:
			low = append(low, d)
		}
	}

	// Step 3: first association, active tracks against the high band.
	matchedA, remActive, remHigh := greedyMatch(tk.active, high, tk.config.MatchThresh)
	for _, m := range matchedA {
		m.track.absorb(m.det, tk.config.VelocityAlpha, tk.config.MinHits)
	}

	// Step 5: second association, remaining active tracks against the low
	// band. Leftover low-confidence detections are discarded.
	matchedB, remActive, _ := greedyMatch(remActive, low, tk.config.MatchThresh)
	for _, m := range matchedB {
		m.track.absorb(m.det, tk.config.VelocityAlpha, tk.config.MinHits)
	}

	// Step 6: unmatched active tracks move to the lost pool if they ever
	// activated; tentative tracks are dropped outright.
	survivors := tk.active[:0]
	for _, t := range tk.active {
		if t.SinceUpdate == 0 {
			survivors = append(survivors, t)
			continue
		}
		if t.Activated {
			tk.lost = append(tk.lost, t)
		}
	}
	tk.active = survivors

	// Step 7: third association, the lost pool against high-confidence
	// detections that round one left unmatched. A match restores the track
	// with its original identifier and smoothed velocity.
	matchedC, _, remHigh := greedyMatch(tk.lost, remHigh, tk.config.MatchThresh)
	for _, m := range matchedC {
		m.track.absorb(m.det, tk.config.VelocityAlpha, tk.config.MinHits)
		tk.active = append(tk.active, m.track)
		tk.lost = removeTrack(tk.lost, m.track)
	}

	// Step 8: remaining high-confidence detections start new tracks.
	for _, d := range remHigh {
		t := &Track{
			ID:      tk.nextID,
			Label:   d.Label,
			Score:   d.Score,
			Box:     d.Box,
			prevBox: d.Box,
			Age:     1,
			Hits:    1,
		}
		tk.nextID++
		if t.Hits >= tk.config.MinHits {
			t.Activated = true
		}
		tk.active = append(tk.active, t)
	}

	// Step 9: expire lost tracks past their time budget.
	kept := tk.lost[:0]
	for _, t := range tk.lost {
		if t.SinceUpdate <= tk.config.MaxTimeLost {
			kept = append(kept, t)
		}
	}
	tk.lost = kept

	// Step 10: expose activated tracks as value copies.
	out := make([]Track, 0, len(tk.active))
	for _, t := range tk.active {
		if t.Activated {
			out = append(out, *t)
		}
	}
	return out
}

// ActiveCount returns the number of tracks in the active pool, including
// tentative ones not yet exposed.
func (tk *Tracker) ActiveCount() int { return len(tk.active) }

// LostCount returns the number of tracks in the lost pool.
func (tk *Tracker) LostCount() int { return len(tk.lost) }

type match struct {
	track *Track
	det   Detection
}

// greedyMatch associates tracks with detections by repeatedly taking the
// globally highest-IoU pair above thresh among unused rows and columns.
// Ties keep the first pair in iteration order, so results are deterministic
// for a fixed input order. Returns the matches plus the unmatched tracks
// and detections in their original order.
func greedyMatch(tracks []*Track, dets []Detection, thresh float64) ([]match, []*Track, []Detection) {
	if len(tracks) == 0 || len(dets) == 0 {
		return nil, tracks, dets
	}

	iou := make([][]float64, len(tracks))
	for i, t := range tracks {
		iou[i] = make([]float64, len(dets))
		for j, d := range dets {
			iou[i][j] = geom.IoU(t.Box, d.Box)
		}
	}

	usedT := make([]bool, len(tracks))
	usedD := make([]bool, len(dets))
	var matches []match

	for {
		best := thresh
		bi, bj := -1, -1
		for i := range tracks {
			if usedT[i] {
				continue
			}
			for j := range dets {
				if usedD[j] {
					continue
				}
				if iou[i][j] > best {
					best = iou[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi < 0 {
			break
		}
		usedT[bi] = true
		usedD[bj] = true
		matches = append(matches, match{track: tracks[bi], det: dets[bj]})
	}

	var remT []*Track
	for i, t := range tracks {
		if !usedT[i] {
			remT = append(remT, t)
		}
	}
	var remD []Detection
	for j, d := range dets {
		if !usedD[j] {
			remD = append(remD, d)
		}
	}
	return matches, remT, remD
}

func removeTrack(pool []*Track, target *Track) []*Track {
	for i, t := range pool {
		if t == target {
			return append(pool[:i], pool[i+1:]...)
		}
	}
	return pool
}
