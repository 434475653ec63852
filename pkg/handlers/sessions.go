package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/adreel/adreel-api/pkg/db/queries"
	"github.com/adreel/adreel-api/pkg/editing"
	"github.com/adreel/adreel-api/pkg/generation"
	"github.com/adreel/adreel-api/pkg/pipeline"
	"github.com/adreel/adreel-api/pkg/render"
	"github.com/adreel/adreel-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type MoveClipRequest struct {
	StartTime *float64 `json:"start_time" binding:"required"`
	Track     *int     `json:"track" binding:"omitempty,min=0"`
}

type TrimClipRequest struct {
	TrimStart *float64 `json:"trim_start" binding:"required"`
	TrimEnd   *float64 `json:"trim_end" binding:"required"`
}

type SplitClipRequest struct {
	At float64 `json:"at" binding:"required,gt=0"`
}

type MergeClipsRequest struct {
	FirstClipID  string `json:"first_clip_id" binding:"required"`
	SecondClipID string `json:"second_clip_id" binding:"required"`
}

type SessionResponse struct {
	ID                   string         `json:"id"`
	GenerationID         string         `json:"generation_id"`
	Status               string         `json:"status"`
	State                *editing.State `json:"editing_state"`
	ExportedGenerationID *string        `json:"exported_generation_id,omitempty"`
	CreatedAt            string         `json:"created_at"`
	UpdatedAt            string         `json:"updated_at"`
}

func newSessionResponse(row *db.EditingSession, st *editing.State) SessionResponse {
	resp := SessionResponse{
		ID:           row.ID.String(),
		GenerationID: row.GenerationID.String(),
		Status:       row.Status,
		State:        st,
		CreatedAt:    row.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    row.UpdatedAt.Format(time.RFC3339),
	}
	if row.ExportedGenerationID.Valid {
		exported := row.ExportedGenerationID.UUID.String()
		resp.ExportedGenerationID = &exported
	}
	return resp
}

// editStatus maps editing errors onto HTTP status codes.
func editStatus(err error) int {
	switch {
	case errors.Is(err, editing.ErrClipNotFound):
		return http.StatusNotFound
	case errors.Is(err, editing.ErrSessionExported):
		return http.StatusConflict
	case errors.Is(err, editing.ErrInvalidPosition),
		errors.Is(err, editing.ErrInvalidTrim),
		errors.Is(err, editing.ErrInvalidSplit),
		errors.Is(err, editing.ErrNotMergeable):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// CreateEditingSession opens a timeline over a completed generation's rendered scenes.
func (h *Handlers) CreateEditingSession(c *gin.Context) {
	g := ownedGeneration(c, "CreateEditingSession")
	if g == nil {
		return
	}
	if g.Status != generation.StatusCompleted {
		utils.ResponseWithError(c, http.StatusConflict, "Only completed generations can be edited", gin.H{"status": g.Status})
		return
	}

	var spec pipeline.Specification
	if err := json.Unmarshal(g.LLMSpecification, &spec); err != nil || spec.Plan == nil || len(spec.Clips) == 0 {
		log.Warnf("CreateEditingSession: Generation %s has no rendered scenes (err=%v).", g.ID, err)
		utils.ResponseWithError(c, http.StatusConflict, "Generation has no rendered scenes to edit", nil)
		return
	}

	clips := make([]editing.SceneClip, 0, len(spec.Clips))
	for i, path := range spec.Clips {
		if i >= len(spec.Plan.Beats) {
			break
		}
		clips = append(clips, editing.SceneClip{SceneIndex: i, Path: path, Duration: float64(spec.Plan.Beats[i].Duration)})
	}
	st := editing.InitialState(clips)
	encoded, err := st.Encode()
	if err != nil {
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to encode editing state", nil)
		return
	}

	row, err := queries.CreateEditingSession(c.Request.Context(), &db.EditingSession{
		GenerationID: g.ID,
		UserID:       g.UserID,
		EditingState: encoded,
		Status:       editing.StatusActive,
	})
	if err != nil {
		log.Errorf("CreateEditingSession: Failed to create session for %s: %v", g.ID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create editing session", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusCreated, "Editing session created", newSessionResponse(row, st))
}

func (h *Handlers) ListEditingSessions(c *gin.Context) {
	g := ownedGeneration(c, "ListEditingSessions")
	if g == nil {
		return
	}
	rows, err := queries.FindEditingSessionsByGenerationID(c.Request.Context(), g.ID)
	if err != nil {
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve editing sessions", nil)
		return
	}
	out := make([]SessionResponse, 0, len(rows))
	for i := range rows {
		st, err := editing.ParseState(rows[i].EditingState)
		if err != nil {
			log.Warnf("ListEditingSessions: Session %s has an unreadable state: %v", rows[i].ID, err)
			continue
		}
		out = append(out, newSessionResponse(&rows[i], st))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Editing sessions retrieved successfully", out)
}

// ownedSession loads the :id session, checks ownership and parses its state.
func ownedSession(c *gin.Context, caller string) (*db.EditingSession, *editing.Session) {
	userID, ok := currentUserID(c, caller)
	if !ok {
		return nil, nil
	}
	id, ok := uuidParam(c, "id", caller)
	if !ok {
		return nil, nil
	}

	row, err := queries.FindEditingSessionByID(c.Request.Context(), id)
	if err != nil {
		log.Errorf("%s: Failed to fetch editing session %s: %v", caller, id, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve editing session", nil)
		return nil, nil
	}
	if row == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Editing session not found", nil)
		return nil, nil
	}
	if row.UserID != userID {
		utils.ResponseWithError(c, http.StatusForbidden, "You do not have permission to access this editing session", nil)
		return nil, nil
	}

	st, err := editing.ParseState(row.EditingState)
	if err != nil {
		log.Errorf("%s: Session %s has an unreadable state: %v", caller, id, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Editing session state is corrupt", nil)
		return nil, nil
	}
	sess, err := editing.NewSession(row.Status, st)
	if err != nil {
		utils.ResponseWithError(c, http.StatusInternalServerError, "Editing session status is invalid", nil)
		return nil, nil
	}
	return row, sess
}

// persist rewrites the whole state document; concurrent editors race and the last write wins.
func persist(ctx context.Context, row *db.EditingSession, sess *editing.Session, exported uuid.NullUUID) error {
	encoded, err := sess.State.Encode()
	if err != nil {
		return err
	}
	if err := queries.UpdateEditingSession(ctx, row.ID, encoded, sess.Status, exported); err != nil {
		return err
	}
	row.EditingState = encoded
	row.Status = sess.Status
	if exported.Valid {
		row.ExportedGenerationID = exported
	}
	return nil
}

// applyEdit loads the session, applies one mutation and saves the result.
func (h *Handlers) applyEdit(c *gin.Context, caller, message string, edit func(*editing.Session) (gin.H, error)) {
	row, sess := ownedSession(c, caller)
	if row == nil {
		return
	}
	extra, err := edit(sess)
	if err != nil {
		log.Debugf("%s: edit rejected on session %s: %v", caller, row.ID, err)
		utils.ResponseWithError(c, editStatus(err), err.Error(), gin.H{"version": sess.State.Version})
		return
	}
	if err := persist(c.Request.Context(), row, sess, uuid.NullUUID{}); err != nil {
		log.Errorf("%s: Failed to save session %s: %v", caller, row.ID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to save editing session", nil)
		return
	}
	resp := gin.H{"session": newSessionResponse(row, sess.State)}
	for k, v := range extra {
		resp[k] = v
	}
	utils.ResponseWithSuccess(c, http.StatusOK, message, resp)
}

func (h *Handlers) GetEditingSession(c *gin.Context) {
	row, sess := ownedSession(c, "GetEditingSession")
	if row == nil {
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Editing session retrieved successfully", newSessionResponse(row, sess.State))
}

func (h *Handlers) SaveEditingSession(c *gin.Context) {
	h.applyEdit(c, "SaveEditingSession", "Editing session saved", func(s *editing.Session) (gin.H, error) {
		return nil, s.Save()
	})
}

func (h *Handlers) DeleteClip(c *gin.Context) {
	clipID := c.Param("clipId")
	h.applyEdit(c, "DeleteClip", "Clip deleted", func(s *editing.Session) (gin.H, error) {
		return nil, s.DeleteClip(clipID)
	})
}

func (h *Handlers) MoveClip(c *gin.Context) {
	var req MoveClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	clipID := c.Param("clipId")
	h.applyEdit(c, "MoveClip", "Clip moved", func(s *editing.Session) (gin.H, error) {
		return nil, s.MoveClip(clipID, *req.StartTime, req.Track)
	})
}

func (h *Handlers) TrimClip(c *gin.Context) {
	var req TrimClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	clipID := c.Param("clipId")
	h.applyEdit(c, "TrimClip", "Clip trimmed", func(s *editing.Session) (gin.H, error) {
		return nil, s.TrimClip(clipID, *req.TrimStart, *req.TrimEnd)
	})
}

func (h *Handlers) SplitClip(c *gin.Context) {
	var req SplitClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	clipID := c.Param("clipId")
	h.applyEdit(c, "SplitClip", "Clip split", func(s *editing.Session) (gin.H, error) {
		left, right, err := s.SplitClip(clipID, req.At)
		return gin.H{"clip_ids": []string{left, right}}, err
	})
}

func (h *Handlers) MergeClips(c *gin.Context) {
	var req MergeClipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	h.applyEdit(c, "MergeClips", "Clips merged", func(s *editing.Session) (gin.H, error) {
		merged, err := s.MergeClips(req.FirstClipID, req.SecondClipID)
		return gin.H{"clip_id": merged}, err
	})
}

// timelineSegments orders clips by timeline position and maps them onto source ranges.
func timelineSegments(st *editing.State) []render.Segment {
	clips := append([]editing.Clip(nil), st.Clips...)
	sort.SliceStable(clips, func(i, j int) bool {
		if clips[i].StartTime != clips[j].StartTime {
			return clips[i].StartTime < clips[j].StartTime
		}
		return clips[i].Track < clips[j].Track
	})
	segs := make([]render.Segment, 0, len(clips))
	for _, clip := range clips {
		seg := render.Segment{Path: clip.SourcePath}
		if clip.TrimStart != nil && clip.TrimEnd != nil {
			seg.Start, seg.End = *clip.TrimStart, *clip.TrimEnd
		}
		segs = append(segs, seg)
	}
	return segs
}

// ExportEditingSession freezes the session and renders its timeline into a new
// generation whose parent is the edited one.
func (h *Handlers) ExportEditingSession(c *gin.Context) {
	row, sess := ownedSession(c, "ExportEditingSession")
	if row == nil {
		return
	}
	if len(sess.State.Clips) == 0 {
		utils.ResponseWithError(c, http.StatusBadRequest, "Cannot export an empty timeline", nil)
		return
	}
	if err := sess.Export(); err != nil {
		utils.ResponseWithError(c, editStatus(err), err.Error(), nil)
		return
	}
	ctx := c.Request.Context()

	source, err := queries.FindGenerationByID(ctx, row.GenerationID)
	if err != nil || source == nil {
		log.Errorf("ExportEditingSession: Source generation %s unavailable: %v", row.GenerationID, err)
		utils.ResponseWithError(c, http.StatusConflict, "Source generation no longer exists", nil)
		return
	}

	total := 0.0
	for _, clip := range sess.State.Clips {
		total += clip.Duration()
	}
	child, err := queries.CreateGeneration(ctx, &db.Generation{
		UserID:             row.UserID,
		Prompt:             source.Prompt,
		Status:             generation.StatusProcessing,
		CurrentStep:        "exporting",
		TargetDuration:     int(math.Max(1, math.Round(total))),
		Seed:               source.Seed,
		ParentGenerationID: uuid.NullUUID{UUID: source.ID, Valid: true},
	})
	if err != nil {
		log.Errorf("ExportEditingSession: Failed to create export generation: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create export generation", nil)
		return
	}

	if err := persist(ctx, row, sess, uuid.NullUUID{UUID: child.ID, Valid: true}); err != nil {
		log.Errorf("ExportEditingSession: Failed to save session %s: %v", row.ID, err)
		// Nothing will ever stitch the child now; close it instead of leaving it processing.
		if mErr := queries.MarkGenerationFailed(context.WithoutCancel(ctx), child.ID, "exporting", "export aborted: "+err.Error()); mErr != nil {
			log.Errorf("ExportEditingSession: Failed to close orphaned export %s: %v", child.ID, mErr)
		}
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to save editing session", nil)
		return
	}

	segs := timelineSegments(sess.State)
	childID := child.ID
	h.goBackground("ExportEditingSession", func(ctx context.Context) {
		h.renderExport(ctx, childID, segs)
	})

	utils.ResponseWithSuccess(c, http.StatusAccepted, "Export started", gin.H{
		"session":       newSessionResponse(row, sess.State),
		"generation_id": childID.String(),
	})
}

// renderExport stitches an exported timeline. Re-stitching existing clips is not billed.
// The cancellation flag is honoured before the stitch and before the result is published.
func (h *Handlers) renderExport(ctx context.Context, id uuid.UUID, segs []render.Segment) {
	if h.exportCancelled(ctx, id) {
		return
	}
	out := filepath.Join(h.Config.WorkDir, id.String(), "final.mp4")
	if err := h.Stitcher.StitchSegments(ctx, segs, out); err != nil {
		log.Errorf("renderExport: Stitching export %s failed: %v", id, err)
		if mErr := queries.MarkGenerationFailed(context.WithoutCancel(ctx), id, "exporting", err.Error()); mErr != nil {
			log.Errorf("renderExport: Failed to mark export %s failed: %v", id, mErr)
		}
		return
	}
	if h.exportCancelled(ctx, id) {
		return
	}
	url := h.Config.MediaBaseURL + "/" + id.String() + "/final.mp4"
	if err := queries.MarkGenerationCompleted(ctx, id, out, url, 0); err != nil {
		log.Errorf("renderExport: Failed to mark export %s completed: %v", id, err)
		return
	}
	if h.Broker != nil {
		_ = h.Broker.Publish(ctx, progressEvent(id, generation.StatusCompleted, 100, generation.StatusCompleted))
	}
	log.Infof("renderExport: Export %s completed: %s", id, url)
}

// exportCancelled fails the export row when the user asked to cancel it.
func (h *Handlers) exportCancelled(ctx context.Context, id uuid.UUID) bool {
	requested, err := queries.IsCancellationRequested(ctx, id)
	if err != nil {
		log.Warnf("exportCancelled: Failed to poll cancellation for export %s: %v", id, err)
		return false
	}
	if !requested {
		return false
	}
	if err := queries.MarkGenerationFailed(context.WithoutCancel(ctx), id, generation.StepCancelled, "cancelled by user during export"); err != nil {
		log.Errorf("exportCancelled: Failed to mark export %s cancelled: %v", id, err)
	}
	if h.Broker != nil {
		_ = h.Broker.Publish(ctx, progressEvent(id, generation.StatusFailed, 0, generation.StepCancelled))
	}
	log.Infof("exportCancelled: Export %s cancelled.", id)
	return true
}
