package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/comfybridge/api/internal/model"
)

// ArtifactStore persists generated images on local disk, one file per job,
// named {promptID}_{filename}. The naming convention is the only index:
// retrieval needs nothing but the prompt id.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the backing directory when absent.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &ArtifactStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Save writes one artifact and returns its path.
func (s *ArtifactStore) Save(promptID, filename string, r io.Reader) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s", promptID, filepath.Base(filename)))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}

// FindByPromptID locates a stored artifact by prefix match on the naming
// convention. Ids shaped like paths are rejected outright so lookups can
// never leave the store directory.
func (s *ArtifactStore) FindByPromptID(promptID string) (string, error) {
	if !safeID(promptID) {
		return "", model.NewNotFoundError(fmt.Sprintf("No image found for prompt ID: %s", promptID))
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, promptID+"_*"))
	if err != nil {
		return "", model.NewInternalError("failed to scan output directory", err)
	}
	if len(matches) == 0 {
		return "", model.NewNotFoundError(fmt.Sprintf("No image found for prompt ID: %s", promptID))
	}
	return matches[0], nil
}

func safeID(id string) bool {
	if id == "" || strings.Contains(id, "..") {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
