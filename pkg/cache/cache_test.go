package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const devPrompt = "Luxury perfume bottle on marble, golden hour"

func TestSceneKey_IsStable(t *testing.T) {
	assert.Equal(t, SceneKey(devPrompt, 2), SceneKey(devPrompt, 2))
	assert.Len(t, SceneKey(devPrompt, 0), 32)
}

func TestSceneKey_DistinguishesIndexAndPrompt(t *testing.T) {
	assert.NotEqual(t, SceneKey(devPrompt, 0), SceneKey(devPrompt, 1))
	assert.NotEqual(t, SceneKey(devPrompt, 0), SceneKey(devPrompt+"!", 0))
	assert.NotEqual(t, SceneKey("ad1", 1), SceneKey("ad", 11))
}

func TestSceneCache_StoreAndLookup(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSceneCache(filepath.Join(dir, "cache"), devPrompt)
	require.NoError(t, err)

	_, ok := c.Lookup(devPrompt, 0)
	assert.False(t, ok)

	clip := filepath.Join(dir, "scene_0.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("fake-mp4"), 0o644))
	require.NoError(t, c.Store(devPrompt, 0, clip))

	cached, ok := c.Lookup(devPrompt, 0)
	require.True(t, ok)
	data, err := os.ReadFile(cached)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp4", string(data))

	_, ok = c.Lookup(devPrompt, 1)
	assert.False(t, ok)
}

func TestSceneCache_IgnoresOtherPrompts(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSceneCache(dir, devPrompt)
	require.NoError(t, err)

	clip := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("x"), 0o644))
	require.NoError(t, c.Store("some other ad", 0, clip))

	_, ok := c.Lookup("some other ad", 0)
	assert.False(t, ok)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSceneCache_DisabledWithoutDevPrompt(t *testing.T) {
	c, err := NewSceneCache(t.TempDir(), "")
	require.NoError(t, err)
	assert.False(t, c.Cacheable(""))
	assert.False(t, c.Cacheable(devPrompt))

	var nilCache *SceneCache
	assert.False(t, nilCache.Cacheable(devPrompt))
}
