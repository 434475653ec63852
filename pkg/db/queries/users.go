package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const userColumns = `id, username, email, password_hash, total_generations, total_cost, created_at, updated_at`

// CreateUser inserts a new user and fills in the generated id and timestamps.
func CreateUser(ctx context.Context, user *db.User) (*db.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES (:username, :email, :password_hash)
		RETURNING id, total_generations, total_cost, created_at, updated_at`

	rows, err := db.DB.NamedQueryContext(ctx, query, user)
	if err != nil {
		log.Errorf("Error creating user: %v", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		log.Error("No rows returned after user creation.")
		return nil, errors.New("no rows returned after user creation")
	}
	if err := rows.StructScan(user); err != nil {
		log.Errorf("Error scanning user data after creation: %v", err)
		return nil, fmt.Errorf("error scanning user after creation: %w", err)
	}

	log.Infof("User %s created with ID: %s", user.Email, user.ID.String())
	return user, nil
}

// FindUserByEmail returns (nil, nil) when no user has that email.
func FindUserByEmail(ctx context.Context, email string) (*db.User, error) {
	user := &db.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	err := db.DB.GetContext(ctx, user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("User with email '%s' not found.", email)
			return nil, nil
		}
		log.Errorf("Error finding user by email '%s': %v", email, err)
		return nil, err
	}
	return user, nil
}

// FindUserByID returns (nil, nil) when the user does not exist.
func FindUserByID(ctx context.Context, id uuid.UUID) (*db.User, error) {
	user := &db.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	err := db.DB.GetContext(ctx, user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("User with ID '%s' not found.", id.String())
			return nil, nil
		}
		log.Errorf("Error finding user by ID '%s': %v", id.String(), err)
		return nil, err
	}
	return user, nil
}

// IncrementUserUsage adds one generation and its cost to the user's running totals.
func IncrementUserUsage(ctx context.Context, userID uuid.UUID, cost float64) error {
	query := `
		UPDATE users
		SET total_generations = total_generations + 1,
		    total_cost = total_cost + $1,
		    updated_at = $2
		WHERE id = $3`

	result, err := db.DB.ExecContext(ctx, query, cost, time.Now().UTC(), userID)
	if err != nil {
		log.Errorf("Error updating usage for user '%s': %v", userID.String(), err)
		return fmt.Errorf("failed to update user usage: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		log.Warnf("No user found with ID '%s' for usage update.", userID.String())
		return sql.ErrNoRows
	}
	return nil
}

// DeleteUser removes a user; generations and sessions cascade.
func DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := db.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		log.Errorf("Error deleting user with ID '%s': %v", id.String(), err)
		return err
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		log.Warnf("No user found with ID '%s' for deletion.", id.String())
		return sql.ErrNoRows
	}
	log.Infof("User with ID '%s' deleted.", id.String())
	return nil
}
