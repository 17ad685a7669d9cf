package ebookbot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names written to the output directory.
const (
	ArtifactStructure = "structured_document.json"
	ArtifactTokens    = "layout_structure.json"
	ArtifactRequests  = "image_hooks.json"
	ArtifactImages    = "image_placement.json"
	ArtifactPlan      = "aligned_layout.json"
	ArtifactRender    = "final_ebook_metadata.json"
	ArtifactPDF       = "final_ebook.pdf"
	ArtifactSummary   = "workflow_result_summary.json"

	lockFile = ".ebookbot.lock"
)

// ArtifactStore reads and writes a run's JSON artifacts.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

func (s *ArtifactStore) Dir() string { return s.dir }

func (s *ArtifactStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *ArtifactStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Remove deletes an artifact. A missing file is not an error.
func (s *ArtifactStore) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// Save writes v as indented JSON, replacing any previous file atomically.
func (s *ArtifactStore) Save(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("saving %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}

func (s *ArtifactStore) Load(name string, v interface{}) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return fmt.Errorf("loading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

// Lock claims the output directory for one run. The returned function
// releases it.
func (s *ArtifactStore) Lock(runID string) (func() error, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	path := s.Path(lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, s.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("locking output directory: %w", err)
	}
	_, werr := f.WriteString(runID + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing lock file: %w", werr)
	}
	return func() error { return os.Remove(path) }, nil
}
