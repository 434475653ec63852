package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// SceneKey maps a prompt and a zero-based scene index to a stable hex key.
func SceneKey(prompt string, sceneIndex int) string {
	sum := md5.Sum([]byte(prompt + "_scene_" + strconv.Itoa(sceneIndex)))
	return hex.EncodeToString(sum[:])
}
