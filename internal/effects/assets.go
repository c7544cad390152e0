package effects

import (
	"os"
	"path/filepath"
	"sort"
)

// AssetLocator finds the stock clips some effects splice in.
type AssetLocator interface {
	// FlashClip returns the stock flash clip path, and whether it exists.
	FlashClip() (string, bool)
	// MemeClips returns the available stock meme clips, sorted by name.
	MemeClips() []string
}

// FSAssets locates stock clips on the local filesystem.
type FSAssets struct {
	flashClip string
	memesDir  string
}

// NewFSAssets creates a filesystem asset locator.
func NewFSAssets(flashClip, memesDir string) *FSAssets {
	return &FSAssets{flashClip: flashClip, memesDir: memesDir}
}

// FlashClip returns the configured flash clip if it exists.
func (a *FSAssets) FlashClip() (string, bool) {
	if a.flashClip == "" {
		return "", false
	}
	info, err := os.Stat(a.flashClip)
	if err != nil || info.IsDir() {
		return "", false
	}
	return a.flashClip, true
}

// MemeClips returns the mp4 files in the meme directory, sorted by name.
func (a *FSAssets) MemeClips() []string {
	if a.memesDir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(a.memesDir, "*.mp4"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}
