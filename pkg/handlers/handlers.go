package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/adreel/adreel-api/pkg/config"
	"github.com/adreel/adreel-api/pkg/middleware"
	"github.com/adreel/adreel-api/pkg/pipeline"
	"github.com/adreel/adreel-api/pkg/progress"
	"github.com/adreel/adreel-api/pkg/render"
	"github.com/adreel/adreel-api/pkg/services"
	"github.com/adreel/adreel-api/pkg/storage"
	"github.com/adreel/adreel-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SegmentStitcher renders an edited timeline.
type SegmentStitcher interface {
	StitchSegments(ctx context.Context, segs []render.Segment, out string) error
}

// Handlers holds the dependencies shared by the HTTP and WebSocket endpoints.
type Handlers struct {
	Config   *config.Config
	Tokens   *services.TokenService
	Pipeline *pipeline.Orchestrator
	Broker   progress.Broker
	Stitcher SegmentStitcher
	Images   *storage.ImageStore

	// baseCtx outlives requests; background pipelines run on it and stop on shutdown.
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewHandlers(baseCtx context.Context, cfg *config.Config, tokens *services.TokenService) *Handlers {
	return &Handlers{Config: cfg, Tokens: tokens, baseCtx: baseCtx}
}

// Wait blocks until background jobs started by the handlers have returned.
func (h *Handlers) Wait() {
	h.wg.Wait()
}

func (h *Handlers) goBackground(name string, fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("%s: background job panicked: %v", name, r)
			}
		}()
		fn(h.baseCtx)
	}()
}

// currentUserID returns the authenticated user's id, answering 500 if the middleware did not run.
func currentUserID(c *gin.Context, caller string) (uuid.UUID, bool) {
	claims, ok := middleware.GetUserClaimsFromContext(c)
	if !ok {
		log.Errorf("%s: User claims not found in context.", caller)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: User claims not found", nil)
		return uuid.Nil, false
	}
	return claims.UserID, true
}

func uuidParam(c *gin.Context, name, caller string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Warnf("%s: Invalid %s format '%s': %v", caller, name, raw, err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid "+name+" format", nil)
		return uuid.Nil, false
	}
	return id, true
}
