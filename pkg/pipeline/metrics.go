package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_pipeline_stage_runs_total",
		Help: "LLM stage runs by outcome.",
	}, []string{"stage", "outcome"})

	stageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_pipeline_llm_retries_total",
		Help: "LLM attempts that failed and were retried.",
	}, []string{"stage"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adreel_pipeline_stage_duration_seconds",
		Help:    "Wall time of each pipeline stage including retries.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"stage"})

	generationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_generations_finished_total",
		Help: "Generations that reached a terminal state.",
	}, []string{"status"})

	sceneCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adreel_scene_cache_hits_total",
		Help: "Scenes served from the development clip cache.",
	})
)
