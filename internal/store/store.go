// Package store persists capture artifacts for the daemon, one output file
// plus a JSON metadata sidecar per capture.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/pagecap/pagecap/internal/format"
)

// ErrNotFound reports that no capture exists for the requested id.
var ErrNotFound = errors.New("capture not found")

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// CaptureMeta describes a stored capture.
type CaptureMeta struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Format    string    `json:"format"` // format identifier, e.g. "png"
	Width     int64     `json:"width"`
	Height    int64     `json:"height"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// Store manages capture files on disk.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("invalid capture id: %q", id)
	}
	return nil
}

// ArtifactPath returns the on-disk path a capture with the given id and
// format is written to.
func (s *Store) ArtifactPath(id string, f format.Format) string {
	return filepath.Join(s.dir, id+f.Extension())
}

// SaveMeta writes the metadata sidecar for an artifact already on disk.
func (s *Store) SaveMeta(meta CaptureMeta) error {
	if err := s.validateID(meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("capture store: marshal meta: %w", err)
	}
	jsonPath := filepath.Join(s.dir, meta.ID+".json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("capture store: write meta: %w", err)
	}
	return nil
}

// Get reads capture metadata by ID.
func (s *Store) Get(id string) (CaptureMeta, error) {
	if err := s.validateID(id); err != nil {
		return CaptureMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	jsonPath := filepath.Join(s.dir, id+".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return CaptureMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return CaptureMeta{}, fmt.Errorf("capture store: read meta: %w", err)
	}

	var meta CaptureMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return CaptureMeta{}, fmt.Errorf("capture store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all captures sorted by creation time (newest first).
func (s *Store) List() ([]CaptureMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("capture store: glob: %w", err)
	}

	metas := make([]CaptureMeta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta CaptureMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	return metas, nil
}

// ReadArtifact reads the raw output bytes and returns the format identifier.
func (s *Store) ReadArtifact(id string) ([]byte, string, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.ArtifactPath(id, format.FromIdentifier(meta.Format))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: artifact %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("capture store: read artifact: %w", err)
	}
	return data, meta.Format, nil
}

// Delete removes both the artifact and metadata files.
func (s *Store) Delete(id string) error {
	meta, err := s.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	artifactPath := s.ArtifactPath(id, format.FromIdentifier(meta.Format))
	jsonPath := filepath.Join(s.dir, id+".json")

	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		slog.Debug("capture artifact cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(jsonPath); err != nil {
		return fmt.Errorf("capture store: remove meta: %w", err)
	}
	return nil
}
