package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
)

const editingSessionColumns = `id, generation_id, user_id, editing_state, status, exported_generation_id, created_at, updated_at`

// CreateEditingSession opens a session on a generation with an initial state document.
func CreateEditingSession(ctx context.Context, s *db.EditingSession) (*db.EditingSession, error) {
	if s.Status == "" {
		s.Status = "active"
	}
	if len(s.EditingState) == 0 {
		s.EditingState = emptyJSON
	}

	query := `
		INSERT INTO editing_sessions (generation_id, user_id, editing_state, status)
		VALUES (:generation_id, :user_id, :editing_state, :status)
		RETURNING id, created_at, updated_at`

	rows, err := db.DB.NamedQueryContext(ctx, query, s)
	if err != nil {
		log.Errorf("Error creating editing session: %v", err)
		return nil, fmt.Errorf("failed to create editing session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		log.Error("No rows returned after editing session creation.")
		return nil, errors.New("no rows returned after editing session creation")
	}
	if err := rows.StructScan(s); err != nil {
		return nil, fmt.Errorf("error scanning editing session after creation: %w", err)
	}

	log.Infof("Editing session %s opened on generation %s.", s.ID.String(), s.GenerationID.String())
	return s, nil
}

// FindEditingSessionByID returns (nil, nil) when the session does not exist.
func FindEditingSessionByID(ctx context.Context, id uuid.UUID) (*db.EditingSession, error) {
	s := &db.EditingSession{}
	err := db.DB.GetContext(ctx, s, `SELECT `+editingSessionColumns+` FROM editing_sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Editing session with ID '%s' not found.", id.String())
			return nil, nil
		}
		log.Errorf("Error finding editing session '%s': %v", id.String(), err)
		return nil, fmt.Errorf("error finding editing session by ID: %w", err)
	}
	return s, nil
}

// FindEditingSessionsByGenerationID lists sessions opened on a generation, newest first.
func FindEditingSessionsByGenerationID(ctx context.Context, generationID uuid.UUID) ([]db.EditingSession, error) {
	var sessions []db.EditingSession
	query := `SELECT ` + editingSessionColumns + ` FROM editing_sessions WHERE generation_id = $1 ORDER BY created_at DESC`
	if err := db.DB.SelectContext(ctx, &sessions, query, generationID); err != nil {
		return nil, fmt.Errorf("error finding editing sessions by generation ID: %w", err)
	}
	return sessions, nil
}

// UpdateEditingSession overwrites the stored state and status. Concurrent writers
// race; the last one wins.
func UpdateEditingSession(ctx context.Context, id uuid.UUID, state []byte, status string, exportedGenerationID uuid.NullUUID) error {
	query := `
		UPDATE editing_sessions
		SET editing_state = $1, status = $2,
		    exported_generation_id = COALESCE($3, exported_generation_id),
		    updated_at = $4
		WHERE id = $5`

	result, err := db.DB.ExecContext(ctx, query, types.JSONText(state), status, exportedGenerationID, time.Now().UTC(), id)
	if err != nil {
		log.Errorf("Error updating editing session '%s': %v", id.String(), err)
		return fmt.Errorf("failed to update editing session: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		log.Warnf("No editing session found with ID '%s' for update.", id.String())
		return sql.ErrNoRows
	}
	return nil
}
