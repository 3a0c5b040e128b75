package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact is a named on-disk WAV resource. The component that created an
// artifact owns it and removes it once consumed; the final artifact returned
// to the client outlives its request.
type Artifact struct {
	Path string
}

// NewArtifact reserves a collision-resistant WAV path under dir.
// The name combines a timestamp and a fresh UUID so repeated calls within the
// same instant never overwrite each other.
func NewArtifact(dir, prefix string) (Artifact, error) {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "audio"
	}
	name := fmt.Sprintf("%s-%d-%s.wav", prefix, time.Now().UnixNano(), uuid.NewString())
	return Artifact{Path: filepath.Join(dir, name)}, nil
}

// WriteClip encodes the clip and writes it to the artifact path.
func (a Artifact) WriteClip(clip Clip) error {
	wav, err := EncodeWAV(clip)
	if err != nil {
		return err
	}
	return os.WriteFile(a.Path, wav, 0o644)
}

// WriteBytes writes an already-encoded WAV body to the artifact path.
func (a Artifact) WriteBytes(wav []byte) error {
	return os.WriteFile(a.Path, wav, 0o644)
}

// Remove deletes the artifact file. A missing file is not an error.
func (a Artifact) Remove() error {
	if strings.TrimSpace(a.Path) == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether the artifact file is present on disk.
func (a Artifact) Exists() bool {
	if strings.TrimSpace(a.Path) == "" {
		return false
	}
	_, err := os.Stat(a.Path)
	return err == nil
}
