package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adreel/adreel-api/pkg/llm"
	log "github.com/sirupsen/logrus"
)

// MaxRetries bounds attempts per LLM stage and per scene render. No backoff.
const MaxRetries = 3

type checker interface {
	check() (field string, ok bool)
}

// stage describes one structured LLM call.
type stage[T any] struct {
	name   string
	system string
	schema any
	prompt string
	// validate runs after the generic required-field check, for cross-field rules.
	validate func(*T) *ValidationError
}

var (
	blueprintSchema = llm.GenerateSchema[Blueprint]()
	profileSchema   = llm.GenerateSchema[ScentProfile]()
	assemblySchema  = llm.GenerateSchema[SceneAssembly]()
)

// runStage calls the model until it returns a valid T or MaxRetries attempts are spent.
// The last error is returned; a *ValidationError carries the offending payload.
func runStage[T any](ctx context.Context, client llm.Client, st stage[T]) (*T, error) {
	started := time.Now()
	defer func() { stageDuration.WithLabelValues(st.name).Observe(time.Since(started).Seconds()) }()

	basePrompt := st.prompt
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			stageRetries.WithLabelValues(st.name).Inc()
		}

		out, err := attemptStage(ctx, client, st)
		if err == nil {
			stageRuns.WithLabelValues(st.name, "ok").Inc()
			return out, nil
		}
		lastErr = err
		log.Warnf("runStage: %s attempt %d/%d failed: %v", st.name, attempt, MaxRetries, err)

		var vErr *ValidationError
		if errors.As(err, &vErr) {
			st.prompt = withValidationError(basePrompt, vErr)
		}
	}

	stageRuns.WithLabelValues(st.name, "failed").Inc()
	var vErr *ValidationError
	if errors.As(lastErr, &vErr) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s failed after %d attempts: %w", st.name, MaxRetries, lastErr)
}

func attemptStage[T any](ctx context.Context, client llm.Client, st stage[T]) (*T, error) {
	raw, err := client.Complete(ctx, st.system, st.prompt, st.schema)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), out); err != nil {
		return nil, &ValidationError{Stage: st.name, Raw: raw, Err: err}
	}
	if c, ok := any(out).(checker); ok {
		if field, valid := c.check(); !valid {
			return nil, &ValidationError{Stage: st.name, Field: field, Raw: raw}
		}
	}
	if st.validate != nil {
		if vErr := st.validate(out); vErr != nil {
			vErr.Stage, vErr.Raw = st.name, raw
			return nil, vErr
		}
	}
	return out, nil
}
