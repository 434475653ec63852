// Package cache keeps rendered scene clips on disk for the development prompt so
// repeated local runs skip the video model.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// SceneCache is a write-once directory of clips named by SceneKey. Entries never expire.
type SceneCache struct {
	dir       string
	devPrompt string
}

// NewSceneCache returns a cache rooted at dir that only accepts devPrompt.
// An empty devPrompt disables the cache entirely.
func NewSceneCache(dir, devPrompt string) (*SceneCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	return &SceneCache{dir: dir, devPrompt: strings.TrimSpace(devPrompt)}, nil
}

// Cacheable reports whether prompt is the exact development prompt.
func (c *SceneCache) Cacheable(prompt string) bool {
	return c != nil && c.devPrompt != "" && strings.TrimSpace(prompt) == c.devPrompt
}

func (c *SceneCache) path(prompt string, sceneIndex int) string {
	return filepath.Join(c.dir, SceneKey(strings.TrimSpace(prompt), sceneIndex)+".mp4")
}

// Lookup returns the cached clip for (prompt, sceneIndex) if one exists.
func (c *SceneCache) Lookup(prompt string, sceneIndex int) (string, bool) {
	if !c.Cacheable(prompt) {
		return "", false
	}
	p := c.path(prompt, sceneIndex)
	info, err := os.Stat(p)
	if err != nil || info.Size() == 0 {
		return "", false
	}
	log.Debugf("Scene cache hit for scene %d: %s", sceneIndex, p)
	return p, true
}

// Store copies srcPath into the cache. Non-cacheable prompts are ignored.
func (c *SceneCache) Store(prompt string, sceneIndex int, srcPath string) error {
	if !c.Cacheable(prompt) {
		return nil
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open clip %s: %w", srcPath, err)
	}
	defer src.Close()

	dst := c.path(prompt, sceneIndex)
	tmp, err := os.CreateTemp(c.dir, ".clip-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to copy clip into cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize cache entry: %w", err)
	}
	log.Infof("Cached scene %d clip at %s", sceneIndex, dst)
	return nil
}
