package pipeline

import (
	"context"
	"strings"

	"github.com/adreel/adreel-api/pkg/progress"
	"github.com/adreel/adreel-api/pkg/scenes"
	"github.com/google/uuid"
)

// Blueprint is the Stage 1 output: what the ad is about and how it unfolds.
type Blueprint struct {
	Product      string   `json:"product" jsonschema_description:"The product being advertised."`
	Audience     string   `json:"audience" jsonschema_description:"Who the ad is for."`
	Tone         string   `json:"tone" jsonschema_description:"Overall mood, e.g. playful, luxurious, urgent."`
	KeyMessage   string   `json:"key_message" jsonschema_description:"The single idea the viewer should remember."`
	NarrativeArc []string `json:"narrative_arc" jsonschema_description:"Ordered one-line story beats from setup to showcase."`
}

func (b *Blueprint) check() (string, bool) {
	switch {
	case strings.TrimSpace(b.Product) == "":
		return "product", false
	case strings.TrimSpace(b.KeyMessage) == "":
		return "key_message", false
	case len(b.NarrativeArc) == 0:
		return "narrative_arc", false
	}
	return "", true
}

// ScentProfile is the Stage 2 output: the sensory and physical texture of the footage.
type ScentProfile struct {
	SensoryNotes []string `json:"sensory_notes" jsonschema_description:"Smells, textures and feelings the visuals should evoke."`
	MotionCues   []string `json:"motion_cues" jsonschema_description:"Physics and motion details: liquids, fabric, particles, camera moves."`
	ColorPalette []string `json:"color_palette" jsonschema_description:"Dominant colours as names or hex codes."`
	Lighting     string   `json:"lighting" jsonschema_description:"Lighting setup shared by every scene."`
}

func (p *ScentProfile) check() (string, bool) {
	switch {
	case len(p.SensoryNotes) == 0:
		return "sensory_notes", false
	case len(p.MotionCues) == 0:
		return "motion_cues", false
	case strings.TrimSpace(p.Lighting) == "":
		return "lighting", false
	}
	return "", true
}

// ScenePrompt is one text-to-video prompt.
type ScenePrompt struct {
	Index    int    `json:"index" jsonschema_description:"Zero-based scene position."`
	Label    string `json:"label" jsonschema_description:"Narrative beat label of this scene."`
	Prompt   string `json:"prompt" jsonschema_description:"A single detailed text-to-video prompt including camera movement."`
	Duration int    `json:"duration" jsonschema_description:"Scene length in seconds."`
}

// SceneAssembly is the Stage 3 output.
type SceneAssembly struct {
	Scenes []ScenePrompt `json:"scenes" jsonschema_description:"Exactly one entry per planned scene, in order."`
}

// Specification is everything the LLM stages produced, persisted as llm_specification.
type Specification struct {
	Blueprint *Blueprint     `json:"blueprint"`
	Profile   *ScentProfile  `json:"scent_profile"`
	Assembly  *SceneAssembly `json:"scene_assembly"`
	Plan      *scenes.Plan   `json:"plan"`
	// Clips are the rendered scene files, in plan order. Empty until rendering finishes.
	Clips []string `json:"clips,omitempty"`
}

// Job is one generation to run.
type Job struct {
	GenerationID   uuid.UUID
	UserID         uuid.UUID
	Prompt         string
	TargetDuration int
	Seed           *int64
}

// Result is what a completed run produced.
type Result struct {
	VideoPath     string
	VideoURL      string
	Cost          float64
	Specification *Specification
}

// Store persists pipeline progress on the generation row.
type Store interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, status string, progress int, step string) error
	SaveSpecification(ctx context.Context, id uuid.UUID, spec, plan []byte) error
	IsCancellationRequested(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, videoPath, videoURL string, cost float64) error
	MarkFailed(ctx context.Context, id uuid.UUID, step, message string) error
}

// Renderer produces a local clip for one scene.
type Renderer interface {
	RenderScene(ctx context.Context, generationID uuid.UUID, sceneIndex int, prompt string, duration int, seed *int64) (string, error)
}

// Stitcher joins clips into the final video.
type Stitcher interface {
	Stitch(ctx context.Context, clips []string, out string) error
}

// SceneCache short-circuits rendering for cacheable prompts.
type SceneCache interface {
	Lookup(prompt string, sceneIndex int) (string, bool)
	Store(prompt string, sceneIndex int, srcPath string) error
}

// CostRecorder prices footage and bills it to the user.
type CostRecorder interface {
	Estimate(seconds float64) float64
	Record(ctx context.Context, userID uuid.UUID, cost float64) error
}

// Publisher receives progress events.
type Publisher interface {
	Publish(ctx context.Context, ev progress.Event) error
}

// Verdict is a reviewer's answer to one stage output.
type Verdict struct {
	Approved bool
	Feedback string
}

// Reviewer is consulted after each LLM stage in interactive mode.
type Reviewer interface {
	Review(ctx context.Context, stage string, output any) (Verdict, error)
}
