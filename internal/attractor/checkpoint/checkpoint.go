// Package checkpoint persists the engine's resumable state snapshot as
// pretty-printed JSON at <dir>/checkpoint.json, written atomically via a
// temp-file rename. A blake3 content hash lets Load detect a truncated or
// corrupted write before the engine trusts current_node_id.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

const fileName = "checkpoint.json"

// Checkpoint is the persisted engine snapshot.
type Checkpoint struct {
	CurrentNodeID   string         `json:"current_node_id"`
	CompletedNodes  []string       `json:"completed_nodes"`
	NodeOutcomes    map[string]any `json:"node_outcomes"`
	ContextSnapshot map[string]any `json:"context_snapshot"`
	Timestamp       string         `json:"timestamp"`
	ContentHash     string         `json:"content_hash,omitempty"`
}

// New builds a Checkpoint stamped with the current UTC time in RFC 3339.
func New(currentNodeID string, completedNodes []string, nodeOutcomes, contextSnapshot map[string]any) Checkpoint {
	return Checkpoint{
		CurrentNodeID:   currentNodeID,
		CompletedNodes:  completedNodes,
		NodeOutcomes:    nodeOutcomes,
		ContextSnapshot: contextSnapshot,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}

// path returns dir/checkpoint.json.
func path(dir string) string {
	return filepath.Join(dir, fileName)
}

// contentHash hashes the checkpoint's JSON body with ContentHash cleared, so
// the hash commits to everything else in the file. The body is re-encoded
// through generic JSON values first, so object keys are always sorted: a
// struct stored in a map hashes the same at Save as the decoded map does at
// Load.
func contentHash(cp Checkpoint) (string, error) {
	cp.ContentHash = ""
	raw, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	raw, err = json.Marshal(generic)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(raw)
	return fmt.Sprintf("%x", sum), nil
}

// Save creates dir (recursively, if absent) and atomically writes cp as
// pretty-printed JSON to dir/checkpoint.json: it writes to a temp file in
// the same directory and renames over the destination, so a reader never
// observes a partially-written file.
func Save(cp Checkpoint, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}
	hash, err := contentHash(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: hash: %w", err)
	}
	cp.ContentHash = hash

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	dst := path(dir)
	tmp, err := os.CreateTemp(dir, fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("checkpoint: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return nil
}

// Load returns (nil, nil) if dir/checkpoint.json is absent. If present but
// its content hash no longer matches its body (a truncated or corrupted
// write), Load returns an error rather than a checkpoint the caller might
// trust.
func Load(dir string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}
	if cp.ContentHash != "" {
		want := cp.ContentHash
		got, err := contentHash(cp)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: hash: %w", err)
		}
		if got != want {
			return nil, fmt.Errorf("checkpoint: content hash mismatch, file may be truncated or corrupted")
		}
	}
	return &cp, nil
}

// Clear removes dir/checkpoint.json if present; a missing file is not an
// error.
func Clear(dir string) error {
	err := os.Remove(path(dir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: remove: %w", err)
	}
	return nil
}
