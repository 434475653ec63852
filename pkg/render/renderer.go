// Package render talks to the external scene renderer and stitches clips with ffmpeg.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SceneRequest is the body POSTed to the renderer's /render endpoint.
type SceneRequest struct {
	GenerationID string `json:"generation_id"`
	SceneIndex   int    `json:"scene_index"`
	Prompt       string `json:"prompt"`
	Duration     int    `json:"duration"`
	Seed         *int64 `json:"seed,omitempty"`
}

// SceneResponse is what the renderer answers once a clip is ready.
type SceneResponse struct {
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

// HTTPRenderer renders one scene synchronously and downloads the clip into WorkDir.
type HTTPRenderer struct {
	BaseURL string
	WorkDir string
	Client  *http.Client
}

func NewHTTPRenderer(baseURL, workDir string) *HTTPRenderer {
	return &HTTPRenderer{
		BaseURL: baseURL,
		WorkDir: workDir,
		Client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// ScenePath is where the clip for a generation's scene is written.
func (r *HTTPRenderer) ScenePath(generationID uuid.UUID, sceneIndex int) string {
	return filepath.Join(r.WorkDir, generationID.String(), fmt.Sprintf("scene_%d.mp4", sceneIndex))
}

// RenderScene asks the renderer for one clip and returns the local path of the download.
func (r *HTTPRenderer) RenderScene(ctx context.Context, generationID uuid.UUID, sceneIndex int, prompt string, duration int, seed *int64) (string, error) {
	if r.BaseURL == "" {
		return "", errors.New("VIDEO_RENDERER_URL is not configured")
	}

	body, err := json.Marshal(SceneRequest{
		GenerationID: generationID.String(),
		SceneIndex:   sceneIndex,
		Prompt:       prompt,
		Duration:     duration,
		Seed:         seed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to prepare render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to renderer: %w", err)
	}
	defer resp.Body.Close()

	var out SceneResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("invalid renderer response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := out.Error
		if msg == "" {
			msg = "Unknown error from renderer."
		}
		return "", fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, msg)
	}
	if out.VideoURL == "" || out.VideoURL == "N/A" {
		return "", errors.New("renderer returned no video url")
	}

	videoURL, err := r.resolve(out.VideoURL)
	if err != nil {
		return "", err
	}
	dest := r.ScenePath(generationID, sceneIndex)
	if err := r.download(ctx, videoURL, dest); err != nil {
		return "", err
	}
	log.Debugf("HTTPRenderer: scene %d of %s downloaded to %s", sceneIndex, generationID, dest)
	return dest, nil
}

func (r *HTTPRenderer) resolve(videoURL string) (string, error) {
	ref, err := url.Parse(videoURL)
	if err != nil {
		return "", fmt.Errorf("invalid video url %q: %w", videoURL, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(r.BaseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid renderer base url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (r *HTTPRenderer) download(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to prepare download: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download clip: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clip download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create scene dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write clip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush clip: %w", err)
	}
	return os.Rename(tmp.Name(), dest)
}
