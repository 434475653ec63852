package scenes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRequiredScenes_KnownDurations(t *testing.T) {
	cases := []struct {
		duration  int
		wantCount int
		wantAvg   int
	}{
		{15, 3, 5},
		{60, 8, 7},
		{20, 3, 6},
		{24, 3, 8},
		{25, 4, 6},
		{1, 3, 0},
	}
	for _, tc := range cases {
		count, avg := CalculateRequiredScenes(tc.duration)
		assert.Equal(t, tc.wantCount, count, "scenes for %ds", tc.duration)
		assert.Equal(t, tc.wantAvg, avg, "avg for %ds", tc.duration)
	}
}

func TestCalculateRequiredScenes_NeverExceedsTarget(t *testing.T) {
	for d := 1; d <= 600; d++ {
		count, avg := CalculateRequiredScenes(d)
		require.GreaterOrEqual(t, count, MinScenes, "duration %d", d)
		require.LessOrEqual(t, count*avg, d, "duration %d", d)
		require.LessOrEqual(t, avg, DefaultSceneCap, "duration %d", d)
	}
}

func TestPartition_FallsBackToDefaultCap(t *testing.T) {
	count, avg := Partition(60, 0)
	assert.Equal(t, 8, count)
	assert.Equal(t, 7, avg)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, []string{"setup", "usage", "showcase"}, Labels(3))
	assert.Equal(t, []string{"setup", "beat_1", "beat_2", "showcase"}, Labels(4))
	assert.Equal(t, []string{"setup", "usage", "showcase"}, Labels(1))
}

func TestBuildPlan(t *testing.T) {
	plan, err := BuildPlan(60, DefaultSceneCap)
	require.NoError(t, err)
	assert.Equal(t, 8, plan.Scenes)
	require.Len(t, plan.Beats, 8)
	assert.Equal(t, "setup", plan.Beats[0].Label)
	assert.Equal(t, "beat_6", plan.Beats[6].Label)
	assert.Equal(t, "showcase", plan.Beats[7].Label)
	assert.Equal(t, 56, plan.TotalDuration())

	_, err = BuildPlan(0, DefaultSceneCap)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}
