package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEmptyConfigYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg := EmptyTuningConfig()

	tr := cfg.TrackerConfig()
	assert.InDelta(t, 0.5, tr.HighConfThresh, 1e-12)
	assert.InDelta(t, 0.3, tr.MatchThresh, 1e-12)
	assert.Equal(t, 3, tr.MinHits)
	assert.Equal(t, 30, tr.MaxTimeLost)
	assert.InDelta(t, 0.4, tr.VelocityAlpha, 1e-12)

	fu := cfg.FusionConfig()
	assert.InDelta(t, 0.015, fu.MotionThresh, 1e-12)
	assert.InDelta(t, 0.65, fu.WallDepthMin, 1e-12)

	st := cfg.StabilizerConfig()
	assert.Equal(t, 2*time.Second, st.PurgeAfter)
	assert.Equal(t, 8*time.Second, st.RepeatAfter)
	assert.Equal(t, 2, st.StreakMoving)
	assert.Equal(t, 3, st.StreakStill)

	assert.Equal(t, 3, cfg.GetDepthEvery())
	assert.Equal(t, 5, cfg.GetSegEvery())
	assert.Equal(t, 16, cfg.GetNarrationQueue())
}

func TestPartialOverride(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"min_hits": 2, "motion_thresh": 0.02, "purge_after_ms": 1500}`)
	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.TrackerConfig().MinHits)
	assert.Equal(t, 30, cfg.TrackerConfig().MaxTimeLost, "unset fields keep defaults")
	assert.InDelta(t, 0.02, cfg.FusionConfig().MotionThresh, 1e-12)
	assert.Equal(t, 1500*time.Millisecond, cfg.StabilizerConfig().PurgeAfter)
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig("tuning.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"min_hits": `)
	_, err := LoadTuningConfig(path)
	assert.Error(t, err)
}

func TestValidateRanges(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
	}{
		{"match_thresh above one", `{"match_thresh": 1.5}`},
		{"negative velocity_alpha", `{"velocity_alpha": -0.1}`},
		{"zero min_hits", `{"min_hits": 0}`},
		{"negative depth_every", `{"depth_every": -3}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, tc.content)
			_, err := LoadTuningConfig(path)
			assert.Error(t, err)
		})
	}
}
