package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/adreel/adreel-api/pkg/db/queries"
	"github.com/adreel/adreel-api/pkg/generation"
	"github.com/adreel/adreel-api/pkg/pipeline"
	"github.com/adreel/adreel-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
)

const defaultTargetDuration = 15

type CreateGenerationRequest struct {
	Prompt             string `json:"prompt" binding:"required,min=10,max=2000"`
	TargetDuration     int    `json:"target_duration" binding:"omitempty,min=1,max=180"`
	Seed               *int64 `json:"seed"`
	ParentGenerationID string `json:"parent_generation_id" binding:"omitempty,uuid"`
	// Start kicks the pipeline off immediately instead of waiting for POST /:id/start.
	Start bool `json:"start"`
}

// RenderCallbackRequest is what an asynchronous renderer POSTs when it finishes.
type RenderCallbackRequest struct {
	GenerationID string `json:"generation_id" binding:"required"`
	Status       string `json:"status" binding:"required"`
	VideoURL     string `json:"video_url"`
	Message      string `json:"message"`
	ErrorDetails string `json:"error_details"`
}

type GenerationResponse struct {
	ID                    string         `json:"id"`
	Prompt                string         `json:"prompt"`
	Status                string         `json:"status"`
	Progress              int            `json:"progress"`
	CurrentStep           string         `json:"current_step"`
	TargetDuration        int            `json:"target_duration"`
	VideoURL              *string        `json:"video_url,omitempty"`
	ThumbnailURL          *string        `json:"thumbnail_url,omitempty"`
	Specification         types.JSONText `json:"llm_specification,omitempty"`
	ScenePlan             types.JSONText `json:"scene_plan,omitempty"`
	CancellationRequested bool           `json:"cancellation_requested"`
	Seed                  *int64         `json:"seed,omitempty"`
	ParentGenerationID    *string        `json:"parent_generation_id,omitempty"`
	ErrorMessage          *string        `json:"error_message,omitempty"`
	Cost                  float64        `json:"cost"`
	CreatedAt             string         `json:"created_at"`
	UpdatedAt             string         `json:"updated_at"`
	CompletedAt           *string        `json:"completed_at,omitempty"`
}

type ProgressResponse struct {
	GenerationID          string  `json:"generation_id"`
	Status                string  `json:"status"`
	Progress              int     `json:"progress"`
	CurrentStep           string  `json:"current_step"`
	CancellationRequested bool    `json:"cancellation_requested"`
	ErrorMessage          *string `json:"error_message,omitempty"`
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func newGenerationResponse(g *db.Generation) GenerationResponse {
	resp := GenerationResponse{
		ID:                    g.ID.String(),
		Prompt:                g.Prompt,
		Status:                g.Status,
		Progress:              g.Progress,
		CurrentStep:           g.CurrentStep,
		TargetDuration:        g.TargetDuration,
		VideoURL:              nullString(g.VideoURL),
		ThumbnailURL:          nullString(g.ThumbnailURL),
		Specification:         g.LLMSpecification,
		ScenePlan:             g.ScenePlan,
		CancellationRequested: g.CancellationRequested,
		ErrorMessage:          nullString(g.ErrorMessage),
		Cost:                  g.Cost,
		CreatedAt:             g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             g.UpdatedAt.Format(time.RFC3339),
	}
	if g.Seed.Valid {
		resp.Seed = &g.Seed.Int64
	}
	if g.ParentGenerationID.Valid {
		parent := g.ParentGenerationID.UUID.String()
		resp.ParentGenerationID = &parent
	}
	if g.CompletedAt.Valid {
		completed := g.CompletedAt.Time.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

func newProgressResponse(g *db.Generation) ProgressResponse {
	return ProgressResponse{
		GenerationID:          g.ID.String(),
		Status:                g.Status,
		Progress:              g.Progress,
		CurrentStep:           g.CurrentStep,
		CancellationRequested: g.CancellationRequested,
		ErrorMessage:          nullString(g.ErrorMessage),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ownedGeneration loads the :id generation and checks the caller owns it. It writes
// the error response itself and returns nil when the handler should stop.
func ownedGeneration(c *gin.Context, caller string) *db.Generation {
	userID, ok := currentUserID(c, caller)
	if !ok {
		return nil
	}
	id, ok := uuidParam(c, "id", caller)
	if !ok {
		return nil
	}

	g, err := queries.FindGenerationByID(c.Request.Context(), id)
	if err != nil {
		log.Errorf("%s: Failed to fetch generation %s: %v", caller, id, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve generation", nil)
		return nil
	}
	if g == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Generation not found", nil)
		return nil
	}
	if g.UserID != userID {
		log.Warnf("%s: User %s attempted to access generation %s owned by %s.", caller, userID, id, g.UserID)
		utils.ResponseWithError(c, http.StatusForbidden, "You do not have permission to access this generation", nil)
		return nil
	}
	return g
}

func (h *Handlers) CreateGeneration(c *gin.Context) {
	userID, ok := currentUserID(c, "CreateGeneration")
	if !ok {
		return
	}
	var req CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("CreateGeneration: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.TargetDuration == 0 {
		req.TargetDuration = defaultTargetDuration
	}

	g := &db.Generation{
		UserID:         userID,
		Prompt:         req.Prompt,
		Status:         generation.StatusPending,
		TargetDuration: req.TargetDuration,
	}
	if req.Seed != nil {
		g.Seed = sql.NullInt64{Int64: *req.Seed, Valid: true}
	}
	if req.ParentGenerationID != "" {
		parentID := uuid.MustParse(req.ParentGenerationID)
		parent, err := queries.FindGenerationByID(c.Request.Context(), parentID)
		if err != nil {
			utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to check parent generation", nil)
			return
		}
		if parent == nil || parent.UserID != userID {
			utils.ResponseWithError(c, http.StatusNotFound, "Parent generation not found", nil)
			return
		}
		g.ParentGenerationID = uuid.NullUUID{UUID: parentID, Valid: true}
	}

	created, err := queries.CreateGeneration(c.Request.Context(), g)
	if err != nil {
		log.Errorf("CreateGeneration: Failed to create generation: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create generation", nil)
		return
	}

	if req.Start {
		if started := h.startPipeline(c.Request.Context(), created); started {
			created.Status = generation.StatusProcessing
			created.CurrentStep = "queued"
		}
	}
	utils.ResponseWithSuccess(c, http.StatusCreated, "Generation created successfully", newGenerationResponse(created))
}

func (h *Handlers) ListGenerations(c *gin.Context) {
	userID, ok := currentUserID(c, "ListGenerations")
	if !ok {
		return
	}
	gens, err := queries.FindGenerationsByUserID(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("ListGenerations: Failed to list generations for user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve generations", nil)
		return
	}
	out := make([]GenerationResponse, 0, len(gens))
	for i := range gens {
		out = append(out, newGenerationResponse(&gens[i]))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Generations retrieved successfully", out)
}

func (h *Handlers) GetGeneration(c *gin.Context) {
	g := ownedGeneration(c, "GetGeneration")
	if g == nil {
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Generation retrieved successfully", newGenerationResponse(g))
}

// ListDerivatives returns the generations exported from editing sessions on :id.
func (h *Handlers) ListDerivatives(c *gin.Context) {
	g := ownedGeneration(c, "ListDerivatives")
	if g == nil {
		return
	}
	gens, err := queries.FindGenerationsByParentID(c.Request.Context(), g.ID)
	if err != nil {
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve derived generations", nil)
		return
	}
	out := make([]GenerationResponse, 0, len(gens))
	for i := range gens {
		out = append(out, newGenerationResponse(&gens[i]))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Derived generations retrieved successfully", out)
}

func (h *Handlers) DeleteGeneration(c *gin.Context) {
	userID, ok := currentUserID(c, "DeleteGeneration")
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "DeleteGeneration")
	if !ok {
		return
	}
	if err := queries.DeleteGeneration(c.Request.Context(), id, userID); err != nil {
		if isNotFound(err) {
			utils.ResponseWithError(c, http.StatusNotFound, "Generation not found or you do not have permission to delete it", nil)
			return
		}
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to delete generation", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Generation deleted successfully", nil)
}

// StartGeneration runs the pipeline in the background and answers 202 straight away.
func (h *Handlers) StartGeneration(c *gin.Context) {
	g := ownedGeneration(c, "StartGeneration")
	if g == nil {
		return
	}
	if g.Status != generation.StatusPending {
		utils.ResponseWithError(c, http.StatusConflict, "Generation has already been started", gin.H{"status": g.Status})
		return
	}
	if !h.startPipeline(c.Request.Context(), g) {
		utils.ResponseWithError(c, http.StatusConflict, "Generation has already been started or was cancelled", nil)
		return
	}

	log.Infof("StartGeneration: Pipeline initiated for generation %s.", g.ID)
	utils.ResponseWithSuccess(c, http.StatusAccepted, "Generation started", gin.H{
		"generation_id": g.ID.String(),
		"status":        generation.StatusProcessing,
		"message":       "Generation is in progress. Poll /progress or connect to the progress WebSocket.",
	})
}

// startPipeline claims the row and launches the pipeline on the server's base context.
func (h *Handlers) startPipeline(ctx context.Context, g *db.Generation) bool {
	claimed, err := queries.ClaimGeneration(ctx, g.ID)
	if err != nil || !claimed {
		if err != nil {
			log.Errorf("startPipeline: Failed to claim generation %s: %v", g.ID, err)
		}
		return false
	}
	job := jobFor(g)
	h.goBackground("startPipeline", func(ctx context.Context) {
		if _, err := h.Pipeline.Run(ctx, job); err != nil && !errors.Is(err, pipeline.ErrCancelled) {
			log.Warnf("startPipeline: generation %s ended with error: %v", job.GenerationID, err)
		}
	})
	return true
}

func jobFor(g *db.Generation) pipeline.Job {
	job := pipeline.Job{
		GenerationID:   g.ID,
		UserID:         g.UserID,
		Prompt:         g.Prompt,
		TargetDuration: g.TargetDuration,
	}
	if g.Seed.Valid {
		seed := g.Seed.Int64
		job.Seed = &seed
	}
	return job
}

// CancelGeneration requests cooperative cancellation. Terminal generations are a no-op.
func (h *Handlers) CancelGeneration(c *gin.Context) {
	g := ownedGeneration(c, "CancelGeneration")
	if g == nil {
		return
	}
	ctx := c.Request.Context()

	requested, err := queries.RequestCancellation(ctx, g.ID)
	if err != nil {
		if isNotFound(err) {
			utils.ResponseWithError(c, http.StatusNotFound, "Generation not found", nil)
			return
		}
		log.Errorf("CancelGeneration: Failed to request cancellation for %s: %v", g.ID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to cancel generation", nil)
		return
	}
	if !requested {
		utils.ResponseWithSuccess(c, http.StatusOK, "Generation already finished; nothing to cancel", gin.H{
			"generation_id":          g.ID.String(),
			"cancellation_requested": false,
			"status":                 g.Status,
		})
		return
	}

	// Nobody will poll a generation that was never started, so finish it here.
	if failed, err := queries.FailPendingGeneration(ctx, g.ID, generation.StepCancelled, "cancelled by user before start"); err != nil {
		log.Warnf("CancelGeneration: Failed to close pending generation %s: %v", g.ID, err)
	} else if failed && h.Broker != nil {
		_ = h.Broker.Publish(ctx, progressEvent(g.ID, generation.StatusFailed, g.Progress, generation.StepCancelled))
	}

	log.Infof("CancelGeneration: Cancellation requested for generation %s.", g.ID)
	utils.ResponseWithSuccess(c, http.StatusAccepted, "Cancellation requested", gin.H{
		"generation_id":          g.ID.String(),
		"cancellation_requested": true,
	})
}

func (h *Handlers) GetGenerationProgress(c *gin.Context) {
	g := ownedGeneration(c, "GetGenerationProgress")
	if g == nil {
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Progress retrieved successfully", newProgressResponse(g))
}

// HandleRenderCallback receives the result of an asynchronous render.
func (h *Handlers) HandleRenderCallback(c *gin.Context) {
	var callback RenderCallbackRequest
	if err := c.ShouldBindJSON(&callback); err != nil {
		log.Errorf("HandleRenderCallback: Invalid callback request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid callback request body", err.Error())
		return
	}
	id, err := uuid.Parse(callback.GenerationID)
	if err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid generation_id in callback", nil)
		return
	}
	// A renderer only ever reports an outcome.
	if !generation.IsTerminal(callback.Status) {
		utils.ResponseWithError(c, http.StatusBadRequest, "Callback status must be completed or failed", gin.H{"status": callback.Status})
		return
	}

	log.Infof("Received render callback for generation %s, status: %s, video: %s", id, callback.Status, callback.VideoURL)

	var videoURL, errMsg sql.NullString
	if callback.Status == generation.StatusCompleted {
		if callback.VideoURL != "" && callback.VideoURL != "N/A" {
			videoURL = sql.NullString{String: callback.VideoURL, Valid: true}
		} else {
			log.Warnf("HandleRenderCallback: Generation %s completed without a video URL.", id)
		}
	} else if callback.ErrorDetails != "" || callback.Message != "" {
		details := callback.ErrorDetails
		if details == "" {
			details = callback.Message
		}
		errMsg = sql.NullString{String: details, Valid: true}
	}

	if err := queries.UpdateGenerationVideo(c.Request.Context(), id, callback.Status, videoURL, errMsg); err != nil {
		if isNotFound(err) {
			utils.ResponseWithError(c, http.StatusNotFound, "Generation not found for callback", nil)
			return
		}
		if errors.Is(err, queries.ErrGenerationFinished) {
			utils.ResponseWithError(c, http.StatusConflict, "Generation has already finished", nil)
			return
		}
		log.Errorf("HandleRenderCallback: Failed to update generation %s: %v", id, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to update generation after rendering callback", nil)
		return
	}
	if h.Broker != nil {
		pct := 0
		if callback.Status == generation.StatusCompleted {
			pct = 100
		}
		_ = h.Broker.Publish(c.Request.Context(), progressEvent(id, callback.Status, pct, "render_callback"))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Callback processed successfully", nil)
}
