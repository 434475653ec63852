package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/adreel/adreel-api/pkg/db/queries"
	"github.com/adreel/adreel-api/pkg/storage"
	"github.com/adreel/adreel-api/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type ImageResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	CreatedAt   string `json:"created_at"`
}

func newImageResponse(img *db.UploadedImage) ImageResponse {
	return ImageResponse{
		ID:          img.ID.String(),
		Filename:    img.Filename,
		ContentType: img.ContentType,
		SizeBytes:   img.SizeBytes,
		CreatedAt:   img.CreatedAt.Format(time.RFC3339),
	}
}

// UploadImage accepts a multipart "image" field. Content is sniffed; only images are kept.
func (h *Handlers) UploadImage(c *gin.Context) {
	userID, ok := currentUserID(c, "UploadImage")
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Missing image file", err.Error())
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Unreadable image file", nil)
		return
	}
	defer f.Close()

	stored, err := h.Images.Save(userID, f)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotAnImage):
			utils.ResponseWithError(c, http.StatusUnsupportedMediaType, "Only image uploads are accepted", nil)
		case errors.Is(err, storage.ErrTooLarge):
			utils.ResponseWithError(c, http.StatusRequestEntityTooLarge, "Image is too large", nil)
		default:
			log.Errorf("UploadImage: Failed to store upload for user %s: %v", userID, err)
			utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to store image", nil)
		}
		return
	}

	img, err := queries.CreateUploadedImage(c.Request.Context(), &db.UploadedImage{
		UserID:      userID,
		Filename:    filepath.Base(fileHeader.Filename),
		StoredPath:  stored.Path,
		ContentType: stored.ContentType,
		SizeBytes:   stored.Size,
	})
	if err != nil {
		log.Errorf("UploadImage: Failed to record upload for user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to record image", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusCreated, "Image uploaded successfully", newImageResponse(img))
}

func (h *Handlers) ListImages(c *gin.Context) {
	userID, ok := currentUserID(c, "ListImages")
	if !ok {
		return
	}
	images, err := queries.FindUploadedImagesByUserID(c.Request.Context(), userID)
	if err != nil {
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve images", nil)
		return
	}
	out := make([]ImageResponse, 0, len(images))
	for i := range images {
		out = append(out, newImageResponse(&images[i]))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Images retrieved successfully", out)
}
