package taskcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "1_abc")
	if err := os.MkdirAll(snapshot, 0o755); err != nil {
		t.Fatal(err)
	}

	cache := New(dir, nil, nil)
	cache.pathDict[1] = snapshot
	cache.checksums[1] = "deadbeef"

	stateFile := filepath.Join(t.TempDir(), "state.json")
	if err := cache.SaveState(stateFile); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded := New(dir, nil, nil)
	if err := loaded.LoadState(stateFile); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.pathDict[1] != snapshot {
		t.Errorf("pathDict[1] = %q, want %q", loaded.pathDict[1], snapshot)
	}
	if loaded.checksums[1] != "deadbeef" {
		t.Errorf("checksums[1] = %q, want deadbeef", loaded.checksums[1])
	}
}

func TestLoadStateDropsMissingFilesAndSweepsOrphans(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "orphan.tar.zst")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	stateFile := filepath.Join(t.TempDir(), "state.json")
	missing := filepath.Join(dir, "7_missing")
	content := `{"7":{"path":"` + missing + `","checksum":"abc"}}`
	if err := os.WriteFile(stateFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := New(dir, nil, nil)
	if err := cache.LoadState(stateFile); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if _, ok := cache.pathDict[7]; ok {
		t.Error("expected entry referencing a missing directory to be dropped")
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("expected unreferenced file to be swept")
	}
}
