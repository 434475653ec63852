package queries

import (
	"context"
	"errors"
	"fmt"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CreateUploadedImage records a stored product image.
func CreateUploadedImage(ctx context.Context, img *db.UploadedImage) (*db.UploadedImage, error) {
	query := `
		INSERT INTO uploaded_images (user_id, filename, stored_path, content_type, size_bytes)
		VALUES (:user_id, :filename, :stored_path, :content_type, :size_bytes)
		RETURNING id, created_at`

	rows, err := db.DB.NamedQueryContext(ctx, query, img)
	if err != nil {
		log.Errorf("Error recording uploaded image: %v", err)
		return nil, fmt.Errorf("failed to record uploaded image: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.New("no rows returned after image insert")
	}
	if err := rows.StructScan(img); err != nil {
		return nil, fmt.Errorf("error scanning uploaded image: %w", err)
	}
	return img, nil
}

// FindUploadedImagesByUserID lists a user's uploads, newest first.
func FindUploadedImagesByUserID(ctx context.Context, userID uuid.UUID) ([]db.UploadedImage, error) {
	var images []db.UploadedImage
	query := `SELECT id, user_id, filename, stored_path, content_type, size_bytes, created_at
		FROM uploaded_images WHERE user_id = $1 ORDER BY created_at DESC`
	if err := db.DB.SelectContext(ctx, &images, query, userID); err != nil {
		return nil, fmt.Errorf("error finding uploaded images: %w", err)
	}
	return images, nil
}
