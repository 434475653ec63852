package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

type User struct {
	ID               uuid.UUID `db:"id"`
	Username         string    `db:"username"`
	Email            string    `db:"email"`
	PasswordHash     string    `db:"password_hash"`
	TotalGenerations int       `db:"total_generations"` // maintained by the cost tracker
	TotalCost        float64   `db:"total_cost"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Generation is one video-ad job.
type Generation struct {
	ID                    uuid.UUID      `db:"id"`
	UserID                uuid.UUID      `db:"user_id"`
	Prompt                string         `db:"prompt"`
	Status                string         `db:"status"` // pending | processing | completed | failed
	Progress              int            `db:"progress"`
	CurrentStep           string         `db:"current_step"`
	TargetDuration        int            `db:"target_duration"`
	VideoPath             sql.NullString `db:"video_path"`
	VideoURL              sql.NullString `db:"video_url"`
	ThumbnailURL          sql.NullString `db:"thumbnail_url"`
	LLMSpecification      types.JSONText `db:"llm_specification"`
	ScenePlan             types.JSONText `db:"scene_plan"`
	CancellationRequested bool           `db:"cancellation_requested"`
	Seed                  sql.NullInt64  `db:"seed"`
	ParentGenerationID    uuid.NullUUID  `db:"parent_generation_id"` // set on edited derivatives
	ErrorMessage          sql.NullString `db:"error_message"`
	Cost                  float64        `db:"cost"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
	CompletedAt           sql.NullTime   `db:"completed_at"`
}

type EditingSession struct {
	ID                   uuid.UUID      `db:"id"`
	GenerationID         uuid.UUID      `db:"generation_id"`
	UserID               uuid.UUID      `db:"user_id"`
	EditingState         types.JSONText `db:"editing_state"`
	Status               string         `db:"status"` // active | saved | exported
	ExportedGenerationID uuid.NullUUID  `db:"exported_generation_id"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

type UploadedImage struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Filename    string    `db:"filename"`
	StoredPath  string    `db:"stored_path"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	CreatedAt   time.Time `db:"created_at"`
}
