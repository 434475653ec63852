package pipeline

import (
	"fmt"
	"strings"

	"github.com/adreel/adreel-api/pkg/scenes"
)

const (
	StageBlueprint = "stage_1_blueprint"
	StageProfile   = "stage_2_scent_profile"
	StageAssembly  = "stage_3_scene_assembly"
)

const systemBlueprint = `You are a senior creative director for short-form video advertising.
You turn a rough product brief into a tight ad blueprint. Answer with JSON only.`

const systemProfile = `You are a cinematographer specialising in sensory product films.
You describe how footage should feel: textures, motion physics, colour and light. Answer with JSON only.`

const systemAssembly = `You write prompts for a text-to-video model. Every prompt is one continuous block
describing subject, action, setting and a specific camera movement. Answer with JSON only.`

func blueprintPrompt(brief string, plan *scenes.Plan) string {
	return fmt.Sprintf(`Product brief: %q

The ad runs %d seconds across %d scenes with the beats: %s.
Produce the blueprint: product, audience, tone, key_message and a narrative_arc with one line per beat.`,
		brief, plan.TargetDuration, plan.Scenes, strings.Join(beatLabels(plan), ", "))
}

func profilePrompt(brief string, bp *Blueprint) string {
	return fmt.Sprintf(`Product brief: %q
Product: %s
Audience: %s
Tone: %s
Key message: %s

Describe the scent/physics profile for the footage: sensory_notes, motion_cues, color_palette and lighting.`,
		brief, bp.Product, bp.Audience, bp.Tone, bp.KeyMessage)
}

func assemblyPrompt(brief string, bp *Blueprint, profile *ScentProfile, plan *scenes.Plan) string {
	var beats strings.Builder
	for i, beat := range plan.Beats {
		arc := ""
		if i < len(bp.NarrativeArc) {
			arc = bp.NarrativeArc[i]
		}
		fmt.Fprintf(&beats, "%d. %s (%ds) %s\n", beat.Index, beat.Label, beat.Duration, arc)
	}
	return fmt.Sprintf(`Product brief: %q
Key message: %s
Tone: %s
Sensory notes: %s
Motion cues: %s
Palette: %s
Lighting: %s

Write exactly %d scenes, one per beat, in this order:
%s
Keep styling and colour grading consistent across scenes.`,
		brief, bp.KeyMessage, bp.Tone,
		strings.Join(profile.SensoryNotes, "; "),
		strings.Join(profile.MotionCues, "; "),
		strings.Join(profile.ColorPalette, ", "),
		profile.Lighting,
		plan.Scenes, beats.String())
}

func withFeedback(prompt, feedback string) string {
	if strings.TrimSpace(feedback) == "" {
		return prompt
	}
	return prompt + "\n\nThe reviewer rejected the previous draft with this feedback, address it:\n" + feedback
}

// withValidationError asks the model to correct the problem its previous answer had.
func withValidationError(prompt string, vErr *ValidationError) string {
	return prompt + "\n\nYour previous answer was rejected (" + vErr.Error() + "). " +
		"Return corrected JSON that matches the schema with every required field filled in."
}

func beatLabels(plan *scenes.Plan) []string {
	labels := make([]string, len(plan.Beats))
	for i, b := range plan.Beats {
		labels[i] = b.Label
	}
	return labels
}
