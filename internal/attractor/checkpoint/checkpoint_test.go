package checkpoint

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAbsentReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	cp, err := Load(filepath.Join(dir, "nonexistent"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Fatalf("expected nil checkpoint, got %+v", cp)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cp := New("review", []string{"start"}, map[string]any{"start": "success"}, map[string]any{"workdir": "/tmp"})
	if err := Save(cp, dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a checkpoint, got nil")
	}
	if got.CurrentNodeID != "review" {
		t.Fatalf("CurrentNodeID = %q, want review", got.CurrentNodeID)
	}
	if got.ContentHash == "" {
		t.Fatalf("expected a non-empty content hash")
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	cp := New("review", nil, map[string]any{}, map[string]any{})
	if err := Save(cp, dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	raw.CurrentNodeID = "tampered"
	tampered := *raw
	tamperedRaw, _ := contentHash(tampered)
	if tamperedRaw == raw.ContentHash {
		t.Fatalf("expected tampering to change the computed hash")
	}

	// Tamper with the file on disk: Load must refuse it.
	onDisk, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	onDisk = bytes.Replace(onDisk, []byte(`"review"`), []byte(`"tamper"`), 1)
	if err := os.WriteFile(filepath.Join(dir, fileName), onDisk, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected Load to reject a checkpoint whose body no longer matches its hash")
	}
}

func TestClearRemovesFile(t *testing.T) {
	dir := t.TempDir()
	cp := New("start", nil, map[string]any{}, map[string]any{})
	if err := Save(cp, dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := Clear(dir); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after Clear: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil checkpoint after Clear, got %+v", got)
	}
}

func TestClearOnAbsentFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	if err := Clear(dir); err != nil {
		t.Fatalf("Clear on absent file: %v", err)
	}
}
