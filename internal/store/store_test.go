package store

import (
	"os"
	"testing"
	"time"

	"github.com/pagecap/pagecap/internal/format"
)

const testID = "123e4567-e89b-12d3-a456-426614174000"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	return s
}

func writeArtifact(t *testing.T, s *Store, meta CaptureMeta, data []byte) {
	t.Helper()
	path := s.ArtifactPath(meta.ID, format.FromIdentifier(meta.Format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
	if err := s.SaveMeta(meta); err != nil {
		t.Fatalf("SaveMeta() failed: %v", err)
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	meta := CaptureMeta{
		ID:        testID,
		URL:       "https://example.org/",
		Format:    "png",
		Width:     1024,
		Height:    768,
		SizeBytes: 3,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	writeArtifact(t, s, meta, []byte{1, 2, 3})

	got, err := s.Get(testID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.URL != meta.URL || got.Format != "png" || got.Width != 1024 {
		t.Errorf("Get() = %+v; want %+v", got, meta)
	}

	data, id, err := s.ReadArtifact(testID)
	if err != nil {
		t.Fatalf("ReadArtifact() failed: %v", err)
	}
	if id != "png" || len(data) != 3 {
		t.Errorf("ReadArtifact() = %d bytes of %q", len(data), id)
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("../../etc/passwd"); err == nil {
		t.Fatal("Get() accepted a path-traversal id")
	}
	if _, err := s.Get("not-a-uuid"); err == nil {
		t.Fatal("Get() accepted a malformed id")
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	older := CaptureMeta{
		ID:        "11111111-1111-1111-1111-111111111111",
		Format:    "png",
		CreatedAt: time.Now().Add(-time.Hour),
	}
	newer := CaptureMeta{
		ID:        "22222222-2222-2222-2222-222222222222",
		Format:    "pdf",
		CreatedAt: time.Now(),
	}
	writeArtifact(t, s, older, []byte("a"))
	writeArtifact(t, s, newer, []byte("b"))

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List() returned %d entries; want 2", len(metas))
	}
	if metas[0].ID != newer.ID {
		t.Errorf("List()[0].ID = %s; want newest first", metas[0].ID)
	}
}

func TestDeleteRemovesBothFiles(t *testing.T) {
	s := newTestStore(t)
	meta := CaptureMeta{ID: testID, Format: "png", CreatedAt: time.Now()}
	writeArtifact(t, s, meta, []byte("x"))

	if err := s.Delete(testID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(testID); err == nil {
		t.Error("Get() succeeded after Delete()")
	}
	if _, err := os.Stat(s.ArtifactPath(testID, format.PNG)); !os.IsNotExist(err) {
		t.Error("artifact still on disk after Delete()")
	}
}
