// Package pipeline runs a generation end to end: three LLM stages, scene renders,
// the ffmpeg stitch and the bookkeeping in between.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adreel/adreel-api/pkg/generation"
	"github.com/adreel/adreel-api/pkg/llm"
	"github.com/adreel/adreel-api/pkg/progress"
	"github.com/adreel/adreel-api/pkg/scenes"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Progress checkpoints written to the generation row.
const (
	progressPlanned   = 5
	progressBlueprint = 25
	progressProfile   = 40
	progressAssembly  = 55
	progressRendered  = 90
	progressStitching = 95
)

const (
	stepPlanning  = "planning"
	stepRendering = "rendering"
	stepStitching = "stitching"
)

const failTimeout = 10 * time.Second

// Orchestrator wires the collaborators a run needs. Cache, Costs and Events are optional.
type Orchestrator struct {
	LLM      llm.Client
	Store    Store
	Renderer Renderer
	Stitcher Stitcher
	Cache    SceneCache
	Costs    CostRecorder
	Events   Publisher

	SceneCap     int
	WorkDir      string
	MediaBaseURL string
}

type run struct {
	o        *Orchestrator
	job      Job
	reviewer Reviewer
	step     string
}

// Run executes the job without a reviewer.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Result, error) {
	return o.RunInteractive(ctx, job, nil)
}

// RunInteractive executes the job, consulting reviewer after each LLM stage when non-nil.
// Any failure leaves the row failed; a cancellation leaves it failed with step "cancelled".
func (o *Orchestrator) RunInteractive(ctx context.Context, job Job, reviewer Reviewer) (*Result, error) {
	r := &run{o: o, job: job, reviewer: reviewer, step: stepPlanning}
	log.Infof("Pipeline: starting generation %s (%ds)", job.GenerationID, job.TargetDuration)

	res, err := r.execute(ctx)
	switch {
	case err == nil:
		generationsFinished.WithLabelValues(generation.StatusCompleted).Inc()
		log.Infof("Pipeline: generation %s completed: %s", job.GenerationID, res.VideoURL)
		return res, nil
	case errors.Is(err, ErrCancelled):
		generationsFinished.WithLabelValues(generation.StepCancelled).Inc()
		log.Infof("Pipeline: generation %s cancelled during %s", job.GenerationID, r.step)
	default:
		generationsFinished.WithLabelValues(generation.StatusFailed).Inc()
		log.Errorf("Pipeline: generation %s failed during %s: %v", job.GenerationID, r.step, err)
		r.fail(r.step, err.Error())
	}
	return nil, err
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	o, job := r.o, r.job

	plan, err := scenes.BuildPlan(job.TargetDuration, o.SceneCap)
	if err != nil {
		return nil, err
	}
	if err := r.advance(ctx, progressPlanned, stepPlanning, ""); err != nil {
		return nil, err
	}

	bp, err := reviewed(ctx, r, StageBlueprint, progressBlueprint, func(feedback string) stage[Blueprint] {
		return stage[Blueprint]{
			name: StageBlueprint, system: systemBlueprint, schema: blueprintSchema,
			prompt: withFeedback(blueprintPrompt(job.Prompt, plan), feedback),
		}
	})
	if err != nil {
		return nil, err
	}

	profile, err := reviewed(ctx, r, StageProfile, progressProfile, func(feedback string) stage[ScentProfile] {
		return stage[ScentProfile]{
			name: StageProfile, system: systemProfile, schema: profileSchema,
			prompt: withFeedback(profilePrompt(job.Prompt, bp), feedback),
		}
	})
	if err != nil {
		return nil, err
	}

	assembly, err := reviewed(ctx, r, StageAssembly, progressAssembly, func(feedback string) stage[SceneAssembly] {
		return stage[SceneAssembly]{
			name: StageAssembly, system: systemAssembly, schema: assemblySchema,
			prompt:   withFeedback(assemblyPrompt(job.Prompt, bp, profile, plan), feedback),
			validate: matchPlan(plan),
		}
	})
	if err != nil {
		return nil, err
	}

	spec := &Specification{Blueprint: bp, Profile: profile, Assembly: assembly, Plan: plan}
	if err := r.saveSpecification(ctx, spec); err != nil {
		return nil, err
	}

	clips, err := r.renderScenes(ctx, assembly)
	if err != nil {
		return nil, err
	}
	spec.Clips = clips
	if err := r.saveSpecification(ctx, spec); err != nil {
		return nil, err
	}

	r.step = stepStitching
	if err := r.checkCancelled(ctx); err != nil {
		return nil, err
	}
	if err := r.advance(ctx, progressStitching, stepStitching, ""); err != nil {
		return nil, err
	}
	out := filepath.Join(o.WorkDir, job.GenerationID.String(), "final.mp4")
	if err := o.Stitcher.Stitch(ctx, clips, out); err != nil {
		return nil, fmt.Errorf("stitching failed: %w", err)
	}

	res := &Result{VideoPath: out, VideoURL: o.videoURL(job.GenerationID), Specification: spec}
	if o.Costs != nil {
		res.Cost = o.Costs.Estimate(float64(plan.TotalDuration()))
	}
	if err := o.Store.MarkCompleted(ctx, job.GenerationID, res.VideoPath, res.VideoURL, res.Cost); err != nil {
		return nil, fmt.Errorf("failed to mark generation completed: %w", err)
	}
	r.publish(ctx, generation.StatusCompleted, 100, generation.StatusCompleted, "")

	if o.Costs != nil {
		if err := o.Costs.Record(ctx, job.UserID, res.Cost); err != nil {
			log.Warnf("Pipeline: cost for generation %s not recorded: %v", job.GenerationID, err)
		}
	}
	return res, nil
}

// reviewed runs a stage and, with a reviewer attached, re-runs it with the reviewer's
// feedback until approved. After MaxRetries rejections the last draft is kept.
func reviewed[T any](ctx context.Context, r *run, name string, done int, build func(feedback string) stage[T]) (*T, error) {
	r.step = name
	if err := r.checkCancelled(ctx); err != nil {
		return nil, err
	}
	if err := r.advance(ctx, done-10, name, name); err != nil {
		return nil, err
	}

	feedback := ""
	var out *T
	for round := 1; ; round++ {
		var err error
		out, err = runStage(ctx, r.o.LLM, build(feedback))
		if err != nil {
			return nil, err
		}
		if r.reviewer == nil {
			break
		}
		verdict, err := r.reviewer.Review(ctx, name, out)
		if err != nil {
			return nil, fmt.Errorf("review of %s failed: %w", name, err)
		}
		if verdict.Approved {
			break
		}
		if round >= MaxRetries {
			log.Warnf("Pipeline: %s still rejected after %d rounds, keeping last draft", name, round)
			break
		}
		feedback = verdict.Feedback
		if err := r.checkCancelled(ctx); err != nil {
			return nil, err
		}
	}

	if err := r.advance(ctx, done, name, name); err != nil {
		return nil, err
	}
	return out, nil
}

// matchPlan enforces one scene per beat and pins labels and durations to the plan.
func matchPlan(plan *scenes.Plan) func(*SceneAssembly) *ValidationError {
	return func(a *SceneAssembly) *ValidationError {
		if len(a.Scenes) != plan.Scenes {
			return &ValidationError{Field: "scenes", Err: fmt.Errorf("want %d scenes, got %d", plan.Scenes, len(a.Scenes))}
		}
		for i := range a.Scenes {
			if strings.TrimSpace(a.Scenes[i].Prompt) == "" {
				return &ValidationError{Field: fmt.Sprintf("scenes[%d].prompt", i)}
			}
			a.Scenes[i].Index = plan.Beats[i].Index
			a.Scenes[i].Label = plan.Beats[i].Label
			a.Scenes[i].Duration = plan.Beats[i].Duration
		}
		return nil
	}
}

func (r *run) saveSpecification(ctx context.Context, spec *Specification) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode specification: %w", err)
	}
	planJSON, err := json.Marshal(spec.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode scene plan: %w", err)
	}
	if err := r.o.Store.SaveSpecification(ctx, r.job.GenerationID, specJSON, planJSON); err != nil {
		return fmt.Errorf("failed to save specification: %w", err)
	}
	return nil
}

func (r *run) renderScenes(ctx context.Context, assembly *SceneAssembly) ([]string, error) {
	job := r.job
	r.step = stepRendering
	n := len(assembly.Scenes)
	clips := make([]string, 0, n)

	for i, sc := range assembly.Scenes {
		if err := r.checkCancelled(ctx); err != nil {
			return nil, err
		}

		path, err := r.renderScene(ctx, i, sc)
		if err != nil {
			return nil, fmt.Errorf("scene %d render failed: %w", i, err)
		}
		clips = append(clips, path)

		pct := progressAssembly + (i+1)*(progressRendered-progressAssembly)/n
		if err := r.advance(ctx, pct, fmt.Sprintf("%s_scene_%d_of_%d", stepRendering, i+1, n), ""); err != nil {
			return nil, err
		}
	}
	log.Debugf("Pipeline: rendered %d scenes for %s", n, job.GenerationID)
	return clips, nil
}

func (r *run) renderScene(ctx context.Context, i int, sc ScenePrompt) (string, error) {
	o, job := r.o, r.job
	if o.Cache != nil {
		if path, ok := o.Cache.Lookup(job.Prompt, i); ok {
			sceneCacheHits.Inc()
			log.Debugf("Pipeline: scene %d of %s served from cache", i, job.GenerationID)
			return path, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path, err := o.Renderer.RenderScene(ctx, job.GenerationID, i, sc.Prompt, sc.Duration, job.Seed)
		if err == nil {
			if o.Cache != nil {
				if err := o.Cache.Store(job.Prompt, i, path); err != nil {
					log.Warnf("Pipeline: caching scene %d failed: %v", i, err)
				}
			}
			return path, nil
		}
		lastErr = err
		log.Warnf("Pipeline: scene %d attempt %d/%d failed: %v", i, attempt, MaxRetries, err)
	}
	return "", lastErr
}

// checkCancelled polls the cancellation flag. When set, the row is failed with step
// "cancelled" and ErrCancelled is returned.
func (r *run) checkCancelled(ctx context.Context) error {
	requested, err := r.o.Store.IsCancellationRequested(ctx, r.job.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to poll cancellation: %w", err)
	}
	if !requested {
		return nil
	}
	r.fail(generation.StepCancelled, "cancelled by user during "+r.step)
	return ErrCancelled
}

func (r *run) advance(ctx context.Context, pct int, step, stageName string) error {
	pct = generation.ClampProgress(pct)
	if err := r.o.Store.UpdateProgress(ctx, r.job.GenerationID, generation.StatusProcessing, pct, step); err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	r.publish(ctx, generation.StatusProcessing, pct, step, stageName)
	return nil
}

// fail marks the row failed on a fresh context, since ctx may be the reason we are failing.
func (r *run) fail(step, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), failTimeout)
	defer cancel()
	if err := r.o.Store.MarkFailed(ctx, r.job.GenerationID, step, message); err != nil {
		log.Errorf("Pipeline: failed to mark generation %s failed: %v", r.job.GenerationID, err)
	}
	r.publish(ctx, generation.StatusFailed, 0, step, "")
}

func (r *run) publish(ctx context.Context, status string, pct int, step, stageName string) {
	if r.o.Events == nil {
		return
	}
	ev := progress.Event{GenerationID: r.job.GenerationID, Status: status, Progress: pct, Step: step, Stage: stageName}
	if err := r.o.Events.Publish(ctx, ev); err != nil {
		log.Debugf("Pipeline: progress event for %s not published: %v", r.job.GenerationID, err)
	}
}

func (o *Orchestrator) videoURL(id uuid.UUID) string {
	return strings.TrimRight(o.MediaBaseURL, "/") + "/" + id.String() + "/final.mp4"
}
