package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/adreel/adreel-api/pkg/config"
	"github.com/adreel/adreel-api/pkg/db"
	"github.com/adreel/adreel-api/pkg/generation"
	"github.com/adreel/adreel-api/pkg/middleware"
	"github.com/adreel/adreel-api/pkg/progress"
	"github.com/adreel/adreel-api/pkg/render"
	"github.com/adreel/adreel-api/pkg/services"
	"github.com/adreel/adreel-api/pkg/storage"
	"github.com/adreel/adreel-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	userCols       = []string{"id", "username", "email", "password_hash", "total_generations", "total_cost", "created_at", "updated_at"}
	generationCols = []string{"id", "user_id", "prompt", "status", "progress", "current_step", "target_duration",
		"video_path", "video_url", "thumbnail_url", "llm_specification", "scene_plan", "cancellation_requested",
		"seed", "parent_generation_id", "error_message", "cost", "created_at", "updated_at", "completed_at"}
	sessionCols = []string{"id", "generation_id", "user_id", "editing_state", "status", "exported_generation_id", "created_at", "updated_at"}

	selectGeneration = regexp.QuoteMeta(`FROM generations WHERE id = $1`)
	selectSession    = regexp.QuoteMeta(`FROM editing_sessions WHERE id = $1`)
	updateSession    = regexp.QuoteMeta(`UPDATE editing_sessions`)
)

type recordingStitcher struct {
	mu   sync.Mutex
	segs []render.Segment
	out  string
}

func (s *recordingStitcher) StitchSegments(_ context.Context, segs []render.Segment, out string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segs, s.out = segs, out
	return nil
}

type testEnv struct {
	router   *gin.Engine
	mock     sqlmock.Sqlmock
	h        *Handlers
	stitcher *recordingStitcher
	userID   uuid.UUID
	token    string
}

func setupMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	prev := db.DB
	db.DB = sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.DB.Close()
		db.DB = prev
	})
	return mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mock := setupMockDB(t)

	cfg := &config.Config{
		WorkDir:      t.TempDir(),
		MediaBaseURL: "/media",
		CORSOrigins:  []string{"http://localhost:3000"},
	}
	tokens := services.NewTokenService("test-secret", time.Hour)
	h := NewHandlers(context.Background(), cfg, tokens)
	h.Broker = progress.NewLocalBroker()
	stitcher := &recordingStitcher{}
	h.Stitcher = stitcher
	images, err := storage.NewImageStore(t.TempDir(), 1<<20)
	require.NoError(t, err)
	h.Images = images

	userID := uuid.New()
	token, err := tokens.GenerateToken(userID, "owner@example.com", "owner")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/auth/register", h.RegisterUser)
	r.POST("/auth/login", h.LoginUser)
	r.POST("/api/generations/render-callback", h.HandleRenderCallback)
	api := r.Group("/api", middleware.AuthMiddleware(tokens))
	api.POST("/generations", h.CreateGeneration)
	api.GET("/generations/:id", h.GetGeneration)
	api.POST("/generations/:id/start", h.StartGeneration)
	api.POST("/generations/:id/cancel", h.CancelGeneration)
	api.POST("/generations/:id/sessions", h.CreateEditingSession)
	api.DELETE("/sessions/:id/clips/:clipId", h.DeleteClip)
	api.POST("/sessions/:id/export", h.ExportEditingSession)
	api.POST("/uploads/images", h.UploadImage)
	ws := r.Group("/ws", middleware.AuthMiddleware(tokens))
	ws.GET("/generations/:id/progress", h.ProgressWebSocket)

	return &testEnv{router: r, mock: mock, h: h, stitcher: stitcher, userID: userID, token: token}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (utils.JSONResponse, map[string]interface{}) {
	t.Helper()
	var resp utils.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return resp, data
}

func generationRow(id, owner uuid.UUID, status, spec string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(generationCols).AddRow(
		id.String(), owner.String(), "A fizzy lemon soda for long summer evenings", status, int64(40), "scent_profile", int64(16),
		nil, nil, nil, []byte(spec), []byte("{}"), false,
		nil, nil, nil, 0.0, now, now, nil,
	)
}

func sessionRow(id, genID, owner uuid.UUID, state, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(sessionCols).AddRow(id.String(), genID.String(), owner.String(), []byte(state), status, nil, now, now)
}

const renderedSpec = `{"plan":{"target_duration":16,"scene_cap":8,"scenes":2,"avg_duration":8,
	"beats":[{"index":0,"label":"hook","duration":8},{"index":1,"label":"cta","duration":8}]},
	"clips":["/work/g/scene_0.mp4","/work/g/scene_1.mp4"]}`

func TestRegisterUser(t *testing.T) {
	t.Run("email already taken", func(t *testing.T) {
		env := newTestEnv(t)
		now := time.Now()
		env.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
			WithArgs("taken@example.com").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(uuid.NewString(), "someone", "taken@example.com", "hash", int64(0), 0.0, now, now))

		w := env.do(http.MethodPost, "/auth/register", gin.H{"username": "newbie", "email": "Taken@Example.com", "password": "long-enough-pw"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/auth/register", gin.H{"username": "x", "email": "not-an-email"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decode(t, w)
		assert.False(t, resp.Success)
	})
}

func TestLoginUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	id := uuid.New()
	now := time.Now()
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows(userCols).AddRow(id.String(), "alice", "alice@example.com", string(hash), int64(2), 1.6, now, now)
	}

	t.Run("valid credentials", func(t *testing.T) {
		env := newTestEnv(t)
		env.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).WithArgs("alice@example.com").WillReturnRows(rows())

		w := env.do(http.MethodPost, "/auth/login", gin.H{"email": "alice@example.com", "password": "correct-horse"})
		require.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		claims, err := env.h.Tokens.ValidateToken(data["token"].(string))
		require.NoError(t, err)
		assert.Equal(t, id, claims.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		env := newTestEnv(t)
		env.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).WithArgs("alice@example.com").WillReturnRows(rows())

		w := env.do(http.MethodPost, "/auth/login", gin.H{"email": "alice@example.com", "password": "wrong-horse"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCreateGenerationValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/generations", gin.H{"prompt": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/generations", gin.H{"prompt": "A fizzy lemon soda for summer", "target_duration": 999})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetGenerationOwnership(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.mock.ExpectQuery(selectGeneration).WithArgs(id).WillReturnRows(generationRow(id, uuid.New(), generation.StatusPending, "{}"))

	w := env.do(http.MethodGet, "/api/generations/"+id.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/api/generations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartGenerationAlreadyRunning(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.mock.ExpectQuery(selectGeneration).WithArgs(id).WillReturnRows(generationRow(id, env.userID, generation.StatusProcessing, "{}"))

	w := env.do(http.MethodPost, "/api/generations/"+id.String()+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelGeneration(t *testing.T) {
	cancelExec := regexp.QuoteMeta(`SET cancellation_requested = TRUE`)

	t.Run("completed generation is a no-op", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectQuery(selectGeneration).WithArgs(id).WillReturnRows(generationRow(id, env.userID, generation.StatusCompleted, "{}"))
		env.mock.ExpectExec(cancelExec).WithArgs(sqlmock.AnyArg(), id).WillReturnResult(sqlmock.NewResult(0, 0))
		env.mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		w := env.do(http.MethodPost, "/api/generations/"+id.String()+"/cancel", nil)
		require.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, false, data["cancellation_requested"])
	})

	t.Run("pending generation is closed immediately", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		events, unsubscribe, err := env.h.Broker.Subscribe(context.Background(), id)
		require.NoError(t, err)
		defer unsubscribe()

		env.mock.ExpectQuery(selectGeneration).WithArgs(id).WillReturnRows(generationRow(id, env.userID, generation.StatusPending, "{}"))
		env.mock.ExpectExec(cancelExec).WithArgs(sqlmock.AnyArg(), id).WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $4 AND status = 'pending'`)).
			WithArgs(generation.StepCancelled, sqlmock.AnyArg(), sqlmock.AnyArg(), id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := env.do(http.MethodPost, "/api/generations/"+id.String()+"/cancel", nil)
		require.Equal(t, http.StatusAccepted, w.Code)

		select {
		case ev := <-events:
			assert.Equal(t, generation.StatusFailed, ev.Status)
			assert.Equal(t, generation.StepCancelled, ev.Step)
		case <-time.After(time.Second):
			t.Fatal("no failure event published")
		}
	})
}

func TestHandleRenderCallback(t *testing.T) {
	for _, status := range []string{"exploded", generation.StatusPending, generation.StatusProcessing} {
		t.Run("rejects status "+status, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(http.MethodPost, "/api/generations/render-callback", gin.H{"generation_id": uuid.NewString(), "status": status})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	t.Run("finished generation is not reopened", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $6 AND status NOT IN ('completed', 'failed')`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		env.mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		w := env.do(http.MethodPost, "/api/generations/render-callback", gin.H{
			"generation_id": id.String(), "status": "failed", "error_details": "late retry from renderer",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("completed render", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectExec(regexp.QuoteMeta(`progress = GREATEST(progress, $5)`)).
			WithArgs(generation.StatusCompleted, "https://cdn.example.com/v.mp4", nil, sqlmock.AnyArg(), 100, id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := env.do(http.MethodPost, "/api/generations/render-callback", gin.H{
			"generation_id": id.String(), "status": "completed", "video_url": "https://cdn.example.com/v.mp4",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown generation", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectExec(regexp.QuoteMeta(`progress = GREATEST(progress, $5)`)).WillReturnResult(sqlmock.NewResult(0, 0))
		env.mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		w := env.do(http.MethodPost, "/api/generations/render-callback", gin.H{
			"generation_id": id.String(), "status": "failed", "error_details": "renderer crashed",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateEditingSession(t *testing.T) {
	t.Run("generation not finished", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectQuery(selectGeneration).WithArgs(id).WillReturnRows(generationRow(id, env.userID, generation.StatusProcessing, "{}"))

		w := env.do(http.MethodPost, "/api/generations/"+id.String()+"/sessions", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("seeds one clip per rendered scene", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		now := time.Now()
		env.mock.ExpectQuery(selectGeneration).WithArgs(id).WillReturnRows(generationRow(id, env.userID, generation.StatusCompleted, renderedSpec))
		env.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO editing_sessions`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(uuid.NewString(), now, now))

		w := env.do(http.MethodPost, "/api/generations/"+id.String()+"/sessions", nil)
		require.Equal(t, http.StatusCreated, w.Code)
		_, data := decode(t, w)
		state := data["editing_state"].(map[string]interface{})
		clips := state["clips"].([]interface{})
		require.Len(t, clips, 2)
		second := clips[1].(map[string]interface{})
		assert.Equal(t, 8.0, second["start_time"])
		assert.Equal(t, "/work/g/scene_1.mp4", second["source_path"])
	})
}

func TestDeleteClip(t *testing.T) {
	state := `{"version":0,"clips":[{"id":"c1","source_path":"/w/a.mp4","scene_index":0,"start_time":0,"end_time":8,"track":0}]}`

	t.Run("unknown clip leaves the session untouched", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectQuery(selectSession).WithArgs(id).WillReturnRows(sessionRow(id, uuid.New(), env.userID, state, "active"))

		w := env.do(http.MethodDelete, "/api/sessions/"+id.String()+"/clips/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("deletes and persists", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectQuery(selectSession).WithArgs(id).WillReturnRows(sessionRow(id, uuid.New(), env.userID, state, "active"))
		env.mock.ExpectExec(updateSession).WillReturnResult(sqlmock.NewResult(0, 1))

		w := env.do(http.MethodDelete, "/api/sessions/"+id.String()+"/clips/c1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		sess := data["session"].(map[string]interface{})
		st := sess["editing_state"].(map[string]interface{})
		assert.Empty(t, st["clips"])
		assert.Equal(t, 1.0, st["version"])
	})

	t.Run("exported session is read only", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.mock.ExpectQuery(selectSession).WithArgs(id).WillReturnRows(sessionRow(id, uuid.New(), env.userID, state, "exported"))

		w := env.do(http.MethodDelete, "/api/sessions/"+id.String()+"/clips/c1", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestExportEditingSession(t *testing.T) {
	state := `{"version":2,"clips":[
		{"id":"b","source_path":"/w/b.mp4","scene_index":1,"start_time":4,"end_time":8,"trim_start":1,"trim_end":5,"track":0},
		{"id":"a","source_path":"/w/a.mp4","scene_index":0,"start_time":0,"end_time":4,"track":0}]}`
	pollCancel := regexp.QuoteMeta(`SELECT cancellation_requested FROM generations WHERE id = $1`)
	markFailed := regexp.QuoteMeta(`SET status = 'failed', current_step = $1`)

	// expectChildCreated queues the reads and the insert every export starts with.
	expectChildCreated := func(env *testEnv, id, source, child uuid.UUID) {
		now := time.Now()
		env.mock.ExpectQuery(selectSession).WithArgs(id).WillReturnRows(sessionRow(id, source, env.userID, state, "saved"))
		env.mock.ExpectQuery(selectGeneration).WithArgs(source).WillReturnRows(generationRow(source, env.userID, generation.StatusCompleted, renderedSpec))
		env.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO generations`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(child.String(), now, now))
	}
	cancelFlag := func(v bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"cancellation_requested"}).AddRow(v)
	}

	t.Run("stitches the timeline in order", func(t *testing.T) {
		env := newTestEnv(t)
		id, source, child := uuid.New(), uuid.New(), uuid.New()
		expectChildCreated(env, id, source, child)
		env.mock.ExpectExec(updateSession).WithArgs(sqlmock.AnyArg(), "exported", uuid.NullUUID{UUID: child, Valid: true}, sqlmock.AnyArg(), id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectQuery(pollCancel).WithArgs(child).WillReturnRows(cancelFlag(false))
		env.mock.ExpectQuery(pollCancel).WithArgs(child).WillReturnRows(cancelFlag(false))
		env.mock.ExpectExec(regexp.QuoteMeta(`SET status = 'completed'`)).
			WithArgs(sqlmock.AnyArg(), "/media/"+child.String()+"/final.mp4", 0.0, sqlmock.AnyArg(), child).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := env.do(http.MethodPost, "/api/sessions/"+id.String()+"/export", nil)
		require.Equal(t, http.StatusAccepted, w.Code)
		env.h.Wait()

		_, data := decode(t, w)
		assert.Equal(t, child.String(), data["generation_id"])

		env.stitcher.mu.Lock()
		defer env.stitcher.mu.Unlock()
		require.Len(t, env.stitcher.segs, 2)
		assert.Equal(t, render.Segment{Path: "/w/a.mp4"}, env.stitcher.segs[0])
		assert.Equal(t, render.Segment{Path: "/w/b.mp4", Start: 1, End: 5}, env.stitcher.segs[1])
	})

	t.Run("failed session save closes the child generation", func(t *testing.T) {
		env := newTestEnv(t)
		id, source, child := uuid.New(), uuid.New(), uuid.New()
		expectChildCreated(env, id, source, child)
		env.mock.ExpectExec(updateSession).WillReturnError(errors.New("connection reset"))
		env.mock.ExpectExec(markFailed).
			WithArgs("exporting", sqlmock.AnyArg(), sqlmock.AnyArg(), child).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := env.do(http.MethodPost, "/api/sessions/"+id.String()+"/export", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		env.h.Wait()

		env.stitcher.mu.Lock()
		defer env.stitcher.mu.Unlock()
		assert.Empty(t, env.stitcher.segs)
	})

	t.Run("cancelled export is not stitched", func(t *testing.T) {
		env := newTestEnv(t)
		id, source, child := uuid.New(), uuid.New(), uuid.New()
		expectChildCreated(env, id, source, child)
		env.mock.ExpectExec(updateSession).WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectQuery(pollCancel).WithArgs(child).WillReturnRows(cancelFlag(true))
		env.mock.ExpectExec(markFailed).
			WithArgs(generation.StepCancelled, sqlmock.AnyArg(), sqlmock.AnyArg(), child).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := env.do(http.MethodPost, "/api/sessions/"+id.String()+"/export", nil)
		require.Equal(t, http.StatusAccepted, w.Code)
		env.h.Wait()

		env.stitcher.mu.Lock()
		defer env.stitcher.mu.Unlock()
		assert.Empty(t, env.stitcher.segs)
	})
}

func TestUploadImage(t *testing.T) {
	upload := func(env *testEnv, content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("image", "product.png")
		require.NoError(t, err)
		_, _ = part.Write(content)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/uploads/images", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+env.token)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	t.Run("rejects non images", func(t *testing.T) {
		env := newTestEnv(t)
		w := upload(env, []byte("#!/bin/sh\necho definitely not a picture\n"))
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("stores png", func(t *testing.T) {
		env := newTestEnv(t)
		png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
		env.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO uploaded_images`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.NewString(), time.Now()))

		w := upload(env, png)
		require.Equal(t, http.StatusCreated, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, "image/png", data["content_type"])
		assert.Equal(t, "product.png", data["filename"])
	})
}
