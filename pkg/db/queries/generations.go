package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/adreel/adreel-api/pkg/generation"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
)

const generationColumns = `id, user_id, prompt, status, progress, current_step, target_duration,
	video_path, video_url, thumbnail_url, llm_specification, scene_plan, cancellation_requested,
	seed, parent_generation_id, error_message, cost, created_at, updated_at, completed_at`

var emptyJSON = types.JSONText("{}")

// CreateGeneration inserts a new generation row. Status defaults to pending.
func CreateGeneration(ctx context.Context, g *db.Generation) (*db.Generation, error) {
	if g.Status == "" {
		g.Status = generation.StatusPending
	}
	if len(g.LLMSpecification) == 0 {
		g.LLMSpecification = emptyJSON
	}
	if len(g.ScenePlan) == 0 {
		g.ScenePlan = emptyJSON
	}

	query := `
		INSERT INTO generations (user_id, prompt, status, progress, current_step, target_duration,
			video_path, video_url, llm_specification, scene_plan, seed, parent_generation_id, cost, completed_at)
		VALUES (:user_id, :prompt, :status, :progress, :current_step, :target_duration,
			:video_path, :video_url, :llm_specification, :scene_plan, :seed, :parent_generation_id, :cost, :completed_at)
		RETURNING id, created_at, updated_at`

	rows, err := db.DB.NamedQueryContext(ctx, query, g)
	if err != nil {
		log.Errorf("Error creating generation: %v", err)
		return nil, fmt.Errorf("failed to create generation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		log.Error("No rows returned after generation creation.")
		return nil, errors.New("no rows returned after generation creation")
	}
	if err := rows.StructScan(g); err != nil {
		log.Errorf("Error scanning generation after creation: %v", err)
		return nil, fmt.Errorf("error scanning generation after creation: %w", err)
	}

	log.Infof("Generation %s created for user %s.", g.ID.String(), g.UserID.String())
	return g, nil
}

// FindGenerationByID returns (nil, nil) when the generation does not exist.
func FindGenerationByID(ctx context.Context, id uuid.UUID) (*db.Generation, error) {
	g := &db.Generation{}
	err := db.DB.GetContext(ctx, g, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Generation with ID '%s' not found.", id.String())
			return nil, nil
		}
		log.Errorf("Error finding generation by ID '%s': %v", id.String(), err)
		return nil, fmt.Errorf("error finding generation by ID: %w", err)
	}
	return g, nil
}

// FindGenerationsByUserID lists a user's generations, newest first.
func FindGenerationsByUserID(ctx context.Context, userID uuid.UUID) ([]db.Generation, error) {
	var gens []db.Generation
	query := `SELECT ` + generationColumns + ` FROM generations WHERE user_id = $1 ORDER BY created_at DESC`
	if err := db.DB.SelectContext(ctx, &gens, query, userID); err != nil {
		log.Errorf("Error finding generations for user ID '%s': %v", userID.String(), err)
		return nil, fmt.Errorf("error finding generations by user ID: %w", err)
	}
	return gens, nil
}

// FindGenerationsByParentID lists edited derivatives of a generation, oldest first.
func FindGenerationsByParentID(ctx context.Context, parentID uuid.UUID) ([]db.Generation, error) {
	var gens []db.Generation
	query := `SELECT ` + generationColumns + ` FROM generations WHERE parent_generation_id = $1 ORDER BY created_at ASC`
	if err := db.DB.SelectContext(ctx, &gens, query, parentID); err != nil {
		log.Errorf("Error finding derivatives of generation '%s': %v", parentID.String(), err)
		return nil, fmt.Errorf("error finding generations by parent ID: %w", err)
	}
	return gens, nil
}

// UpdateGenerationProgress writes status, progress and current step in one statement.
// Rows that already reached a terminal status are left alone.
func UpdateGenerationProgress(ctx context.Context, id uuid.UUID, status string, progress int, step string) error {
	query := `
		UPDATE generations
		SET status = $1, progress = $2, current_step = $3, updated_at = $4
		WHERE id = $5 AND status NOT IN ('completed', 'failed')`

	result, err := db.DB.ExecContext(ctx, query, status, generation.ClampProgress(progress), step, time.Now().UTC(), id)
	if err != nil {
		log.Errorf("Error updating progress for generation '%s': %v", id.String(), err)
		return fmt.Errorf("failed to update generation progress: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		log.Warnf("No active generation '%s' for progress update.", id.String())
		return sql.ErrNoRows
	}
	return nil
}

// SaveGenerationSpecification stores the stage outputs and the scene plan.
func SaveGenerationSpecification(ctx context.Context, id uuid.UUID, spec, plan []byte) error {
	query := `
		UPDATE generations
		SET llm_specification = $1, scene_plan = $2, updated_at = $3
		WHERE id = $4`

	result, err := db.DB.ExecContext(ctx, query, types.JSONText(spec), types.JSONText(plan), time.Now().UTC(), id)
	if err != nil {
		log.Errorf("Error saving specification for generation '%s': %v", id.String(), err)
		return fmt.Errorf("failed to save generation specification: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkGenerationCompleted records the final artifact and cost.
func MarkGenerationCompleted(ctx context.Context, id uuid.UUID, videoPath, videoURL string, cost float64) error {
	now := time.Now().UTC()
	query := `
		UPDATE generations
		SET status = 'completed', progress = 100, current_step = 'completed',
		    video_path = $1, video_url = $2, cost = $3, updated_at = $4, completed_at = $4
		WHERE id = $5`

	result, err := db.DB.ExecContext(ctx, query, videoPath, videoURL, cost, now, id)
	if err != nil {
		log.Errorf("Error completing generation '%s': %v", id.String(), err)
		return fmt.Errorf("failed to complete generation: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return sql.ErrNoRows
	}
	log.Infof("Generation %s completed. Video: %s", id.String(), videoURL)
	return nil
}

// MarkGenerationFailed moves a generation to failed with the step and reason.
func MarkGenerationFailed(ctx context.Context, id uuid.UUID, step, message string) error {
	query := `
		UPDATE generations
		SET status = 'failed', current_step = $1, error_message = $2, updated_at = $3
		WHERE id = $4`

	result, err := db.DB.ExecContext(ctx, query, step, message, time.Now().UTC(), id)
	if err != nil {
		log.Errorf("Error failing generation '%s': %v", id.String(), err)
		return fmt.Errorf("failed to mark generation failed: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return sql.ErrNoRows
	}
	log.Warnf("Generation %s failed at step '%s': %s", id.String(), step, message)
	return nil
}

// RequestCancellation flips cancellation_requested on a pending or processing row.
// It returns false when the row exists but is already terminal, and sql.ErrNoRows
// when there is no such row.
func RequestCancellation(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE generations
		SET cancellation_requested = TRUE, updated_at = $1
		WHERE id = $2 AND status IN ('pending', 'processing')`

	result, err := db.DB.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		log.Errorf("Error requesting cancellation for generation '%s': %v", id.String(), err)
		return false, fmt.Errorf("failed to request cancellation: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected > 0 {
		log.Infof("Cancellation requested for generation %s.", id.String())
		return true, nil
	}

	var exists bool
	if err := db.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM generations WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("failed to check generation existence: %w", err)
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	log.Debugf("Generation %s is terminal; cancellation ignored.", id.String())
	return false, nil
}

// ClaimGeneration moves a pending, uncancelled generation to processing. It returns
// false when another request already started it or it was cancelled first.
func ClaimGeneration(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE generations
		SET status = 'processing', current_step = 'queued', updated_at = $1
		WHERE id = $2 AND status = 'pending' AND cancellation_requested = FALSE`

	result, err := db.DB.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		log.Errorf("Error claiming generation '%s': %v", id.String(), err)
		return false, fmt.Errorf("failed to claim generation: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// FailPendingGeneration terminates a generation that was cancelled before any
// pipeline picked it up. Started generations are left to the pipeline's poll.
func FailPendingGeneration(ctx context.Context, id uuid.UUID, step, message string) (bool, error) {
	query := `
		UPDATE generations
		SET status = 'failed', current_step = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status = 'pending'`

	result, err := db.DB.ExecContext(ctx, query, step, message, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to fail pending generation: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// IsCancellationRequested is the pipeline's cooperative cancellation poll.
func IsCancellationRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := db.DB.GetContext(ctx, &requested, `SELECT cancellation_requested FROM generations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sql.ErrNoRows
		}
		return false, fmt.Errorf("failed to poll cancellation flag: %w", err)
	}
	return requested, nil
}

// ErrGenerationFinished is returned when a write targets a completed or failed generation.
var ErrGenerationFinished = errors.New("generation already finished")

// UpdateGenerationVideo applies a renderer callback to a generation that is still
// active. Terminal rows are never reopened: the call returns ErrGenerationFinished
// for them and sql.ErrNoRows when the row does not exist.
func UpdateGenerationVideo(ctx context.Context, id uuid.UUID, status string, videoURL sql.NullString, errorMessage sql.NullString) error {
	query := `
		UPDATE generations
		SET status = $1, video_url = $2, error_message = $3, updated_at = $4,
		    progress = GREATEST(progress, $5)
		WHERE id = $6 AND status NOT IN ('completed', 'failed')`

	floor := 0
	if status == generation.StatusCompleted {
		floor = 100
	}
	result, err := db.DB.ExecContext(ctx, query, status, videoURL, errorMessage, time.Now().UTC(), floor, id)
	if err != nil {
		log.Errorf("Error applying render result to generation '%s': %v", id.String(), err)
		return fmt.Errorf("failed to update generation video: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected > 0 {
		return nil
	}

	var exists bool
	if err := db.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM generations WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check generation existence: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	log.Warnf("Render result for finished generation %s ignored.", id.String())
	return ErrGenerationFinished
}

// DeleteGeneration deletes by id and owner.
func DeleteGeneration(ctx context.Context, id, userID uuid.UUID) error {
	result, err := db.DB.ExecContext(ctx, `DELETE FROM generations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		log.Errorf("Error deleting generation '%s' for user '%s': %v", id.String(), userID.String(), err)
		return err
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		log.Warnf("No generation '%s' owned by user '%s' for deletion.", id.String(), userID.String())
		return sql.ErrNoRows
	}
	log.Infof("Generation %s deleted.", id.String())
	return nil
}

// GenerationStore exposes the pipeline-facing queries as a value the pipeline can depend on.
type GenerationStore struct{}

func (GenerationStore) UpdateProgress(ctx context.Context, id uuid.UUID, status string, progress int, step string) error {
	return UpdateGenerationProgress(ctx, id, status, progress, step)
}

func (GenerationStore) SaveSpecification(ctx context.Context, id uuid.UUID, spec, plan []byte) error {
	return SaveGenerationSpecification(ctx, id, spec, plan)
}

func (GenerationStore) IsCancellationRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	return IsCancellationRequested(ctx, id)
}

func (GenerationStore) MarkCompleted(ctx context.Context, id uuid.UUID, videoPath, videoURL string, cost float64) error {
	return MarkGenerationCompleted(ctx, id, videoPath, videoURL, cost)
}

func (GenerationStore) MarkFailed(ctx context.Context, id uuid.UUID, step, message string) error {
	return MarkGenerationFailed(ctx, id, step, message)
}
