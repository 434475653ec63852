// Package scenes splits a requested ad duration into a fixed narrative of scenes
// that each fit inside the video model's per-clip limit.
package scenes

import (
	"errors"
	"fmt"
)

const (
	// DefaultSceneCap is the longest clip, in seconds, the video model will produce.
	DefaultSceneCap = 8
	// MinScenes is the floor for every plan: setup, at least one middle beat, showcase.
	MinScenes = 3

	LabelSetup    = "setup"
	LabelUsage    = "usage"
	LabelShowcase = "showcase"
)

var ErrInvalidDuration = errors.New("target duration must be a positive number of seconds")

// Beat is one scene slot in a plan.
type Beat struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Duration int    `json:"duration"`
}

// Plan is the scene structure for a single generation.
type Plan struct {
	TargetDuration int    `json:"target_duration"`
	SceneCap       int    `json:"scene_cap"`
	Scenes         int    `json:"scenes"`
	AvgDuration    int    `json:"avg_duration"`
	Beats          []Beat `json:"beats"`
}

// CalculateRequiredScenes returns (scene count, whole seconds per scene) using the default cap.
func CalculateRequiredScenes(targetDuration int) (int, int) {
	return Partition(targetDuration, DefaultSceneCap)
}

// Partition computes max(MinScenes, ceil(target/cap)) scenes and floor(target/scenes) seconds each.
// A non-positive cap falls back to DefaultSceneCap; a non-positive target yields MinScenes at 0s.
func Partition(targetDuration, sceneCap int) (int, int) {
	if sceneCap <= 0 {
		sceneCap = DefaultSceneCap
	}
	if targetDuration <= 0 {
		return MinScenes, 0
	}
	required := (targetDuration + sceneCap - 1) / sceneCap
	if required < MinScenes {
		required = MinScenes
	}
	return required, targetDuration / required
}

// Labels returns the narrative label for each of n scenes. The remainder seconds are not
// spread across beats, so scenes*avg never exceeds the target.
func Labels(n int) []string {
	if n < MinScenes {
		n = MinScenes
	}
	labels := make([]string, 0, n)
	labels = append(labels, LabelSetup)
	middle := n - 2
	if middle == 1 {
		labels = append(labels, LabelUsage)
	} else {
		for i := 1; i <= middle; i++ {
			labels = append(labels, fmt.Sprintf("beat_%d", i))
		}
	}
	return append(labels, LabelShowcase)
}

// BuildPlan partitions targetDuration and attaches narrative labels to every beat.
func BuildPlan(targetDuration, sceneCap int) (*Plan, error) {
	if targetDuration <= 0 {
		return nil, ErrInvalidDuration
	}
	if sceneCap <= 0 {
		sceneCap = DefaultSceneCap
	}
	n, avg := Partition(targetDuration, sceneCap)
	plan := &Plan{
		TargetDuration: targetDuration,
		SceneCap:       sceneCap,
		Scenes:         n,
		AvgDuration:    avg,
		Beats:          make([]Beat, n),
	}
	for i, label := range Labels(n) {
		plan.Beats[i] = Beat{Index: i, Label: label, Duration: avg}
	}
	return plan, nil
}

// TotalDuration is the sum of all beat durations.
func (p *Plan) TotalDuration() int {
	total := 0
	for _, b := range p.Beats {
		total += b.Duration
	}
	return total
}
