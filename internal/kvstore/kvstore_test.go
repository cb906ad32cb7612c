package kvstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state", "store.json"))

	v, ok, err := s.Get("deviceId")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || v != "" {
		t.Errorf("Get on empty store: got (%q, %v), want (\"\", false)", v, ok)
	}
}

func TestFileStore_RoundTripAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "store.json")

	first := NewFileStore(path)
	if err := first.Set("deviceId", "abc-123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := first.Set("other", "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh instance reads what the first one wrote.
	second := NewFileStore(path)
	v, ok, err := second.Get("deviceId")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || v != "abc-123" {
		t.Errorf("Get: got (%q, %v), want (\"abc-123\", true)", v, ok)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat store: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("store permissions: got %o, want 600", perm)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if _, _, err := s.Get("deviceId"); err == nil {
		t.Error("expected decode error for corrupt store")
	}
	if err := s.Set("deviceId", "x"); err == nil {
		t.Error("Set should refuse to overwrite a corrupt store")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if _, ok, _ := s.Get("k"); ok {
		t.Fatal("new store should be empty")
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, ok, _ := s.Get("k"); !ok || v != "v" {
		t.Errorf("Get: got (%q, %v)", v, ok)
	}
}
