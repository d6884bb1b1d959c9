// Package config loads pipeline tuning parameters from JSON. All fields
// are optional pointers so a partial file overrides only what it names;
// the Get-style accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/capable-vision/percept/internal/announce"
	"github.com/capable-vision/percept/internal/fuse"
	"github.com/capable-vision/percept/internal/track"
)

// TuningConfig is the root tuning document. Field names match the JSON
// file one-to-one so the same document can be used for startup
// configuration and for recorded run metadata.
type TuningConfig struct {
	// Tracker params
	HighConfThresh *float64 `json:"high_conf_thresh,omitempty"`
	LowConfThresh  *float64 `json:"low_conf_thresh,omitempty"`
	MatchThresh    *float64 `json:"match_thresh,omitempty"`
	MinHits        *int     `json:"min_hits,omitempty"`
	MaxTimeLost    *int     `json:"max_time_lost,omitempty"`
	VelocityAlpha  *float64 `json:"velocity_alpha,omitempty"`

	// Fusion params
	MotionThresh        *float64 `json:"motion_thresh,omitempty"`
	WallDepthMin        *float64 `json:"wall_depth_min,omitempty"`
	ObstacleDepthMin    *float64 `json:"obstacle_depth_min,omitempty"`
	ObstacleCoverageMin *float64 `json:"obstacle_coverage_min,omitempty"`

	// Stabilizer params (durations in milliseconds)
	PurgeAfterMs  *int `json:"purge_after_ms,omitempty"`
	RepeatAfterMs *int `json:"repeat_after_ms,omitempty"`
	StreakMoving  *int `json:"streak_moving,omitempty"`
	StreakStill   *int `json:"streak_still,omitempty"`

	// Pipeline cadence params
	DepthEvery     *int `json:"depth_every,omitempty"`
	SegEvery       *int `json:"seg_every,omitempty"`
	NarrationQueue *int `json:"narration_queue,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// maxFileSize bounds the config file read for safety.
const maxFileSize = 1 * 1024 * 1024

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set values are in range.
func (c *TuningConfig) Validate() error {
	checkUnit := func(name string, v *float64) error {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
		return nil
	}
	if err := checkUnit("high_conf_thresh", c.HighConfThresh); err != nil {
		return err
	}
	if err := checkUnit("low_conf_thresh", c.LowConfThresh); err != nil {
		return err
	}
	if err := checkUnit("match_thresh", c.MatchThresh); err != nil {
		return err
	}
	if err := checkUnit("velocity_alpha", c.VelocityAlpha); err != nil {
		return err
	}
	if err := checkUnit("wall_depth_min", c.WallDepthMin); err != nil {
		return err
	}
	if err := checkUnit("obstacle_depth_min", c.ObstacleDepthMin); err != nil {
		return err
	}
	if err := checkUnit("obstacle_coverage_min", c.ObstacleCoverageMin); err != nil {
		return err
	}

	checkPositive := func(name string, v *int) error {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
		return nil
	}
	for name, v := range map[string]*int{
		"min_hits":        c.MinHits,
		"max_time_lost":   c.MaxTimeLost,
		"purge_after_ms":  c.PurgeAfterMs,
		"repeat_after_ms": c.RepeatAfterMs,
		"streak_moving":   c.StreakMoving,
		"streak_still":    c.StreakStill,
		"depth_every":     c.DepthEvery,
		"seg_every":       c.SegEvery,
		"narration_queue": c.NarrationQueue,
	} {
		if err := checkPositive(name, v); err != nil {
			return err
		}
	}

	return nil
}

// TrackerConfig materializes the tracker parameters, applying defaults
// for unset fields.
func (c *TuningConfig) TrackerConfig() track.Config {
	out := track.DefaultConfig()
	if c.HighConfThresh != nil {
		out.HighConfThresh = *c.HighConfThresh
	}
	if c.LowConfThresh != nil {
		out.LowConfThresh = *c.LowConfThresh
	}
	if c.MatchThresh != nil {
		out.MatchThresh = *c.MatchThresh
	}
	if c.MinHits != nil {
		out.MinHits = *c.MinHits
	}
	if c.MaxTimeLost != nil {
		out.MaxTimeLost = *c.MaxTimeLost
	}
	if c.VelocityAlpha != nil {
		out.VelocityAlpha = *c.VelocityAlpha
	}
	return out
}

// FusionConfig materializes the fusion parameters.
func (c *TuningConfig) FusionConfig() fuse.Config {
	out := fuse.DefaultConfig()
	if c.MotionThresh != nil {
		out.MotionThresh = *c.MotionThresh
	}
	if c.WallDepthMin != nil {
		out.WallDepthMin = *c.WallDepthMin
	}
	if c.ObstacleDepthMin != nil {
		out.ObstacleDepthMin = *c.ObstacleDepthMin
	}
	if c.ObstacleCoverageMin != nil {
		out.ObstacleCoverageMin = *c.ObstacleCoverageMin
	}
	return out
}

// StabilizerConfig materializes the stabilizer parameters.
func (c *TuningConfig) StabilizerConfig() announce.Config {
	out := announce.DefaultConfig()
	if c.PurgeAfterMs != nil {
		out.PurgeAfter = msToDuration(*c.PurgeAfterMs)
	}
	if c.RepeatAfterMs != nil {
		out.RepeatAfter = msToDuration(*c.RepeatAfterMs)
	}
	if c.StreakMoving != nil {
		out.StreakMoving = *c.StreakMoving
	}
	if c.StreakStill != nil {
		out.StreakStill = *c.StreakStill
	}
	return out
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// GetDepthEvery returns the depth inference cadence in frames.
func (c *TuningConfig) GetDepthEvery() int {
	if c.DepthEvery == nil {
		return 3
	}
	return *c.DepthEvery
}

// GetSegEvery returns the segmentation inference cadence in frames.
func (c *TuningConfig) GetSegEvery() int {
	if c.SegEvery == nil {
		return 5
	}
	return *c.SegEvery
}

// GetNarrationQueue returns the narration queue depth.
func (c *TuningConfig) GetNarrationQueue() int {
	if c.NarrationQueue == nil {
		return 16
	}
	return *c.NarrationQueue
}
