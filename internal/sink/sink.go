// Package sink implements the (out-of-core-scope) file-based inner-block
// sink (spec §6): write-to-`.PARTIAL`-then-rename persistence, plus an
// atomically-updated `.REFINER_LAST_BLOCK` sentinel, guarded by a file
// lock during the write-then-rename sequence. Grounded on spec §6's exact
// persistence protocol and on the teacher's already-required but
// previously unused `gofrs/flock` dependency.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/aurora-is-near/go-refiner/internal/innerblock"
	"github.com/aurora-is-near/go-refiner/internal/stream"
)

// BatchSize groups blocks into height-range directories: <root>/<height -
// height mod batch>/<height>.json (spec §6).
const BatchSize = 10_000

// FileSink is the file-based Sink spec §6 describes.
type FileSink struct {
	root string
	lock *flock.Flock
}

// NewFileSink builds a FileSink rooted at root, creating it if absent.
func NewFileSink(root string) (*FileSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("sink: mkdir %s: %w", root, err)
	}
	return &FileSink{root: root, lock: flock.New(filepath.Join(root, ".REFINER_LAST_BLOCK.lock"))}, nil
}

// Emit persists block under its batch directory and advances the last-
// block sentinel, both via write-to-temp-then-rename (spec §6). ctx is
// unused: the write/rename sequence is local filesystem work the teacher's
// own storage layer likewise never threads a context through.
func (s *FileSink) Emit(ctx context.Context, block *innerblock.Block, meta stream.EmitMetadata) error {
	return s.emit(block, meta)
}

func (s *FileSink) emit(block *innerblock.Block, meta stream.EmitMetadata) error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("sink: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("sink: sentinel lock held by another writer")
	}
	defer s.lock.Unlock()

	batchDir := filepath.Join(s.root, fmt.Sprintf("%d", block.Height-block.Height%BatchSize))
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return fmt.Errorf("sink: mkdir %s: %w", batchDir, err)
	}

	partial := filepath.Join(s.root, ".PARTIAL")
	encoded, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("sink: marshal block %d: %w", block.Height, err)
	}
	if err := writeFsync(partial, encoded); err != nil {
		return fmt.Errorf("sink: write partial: %w", err)
	}
	finalPath := filepath.Join(batchDir, fmt.Sprintf("%d.json", block.Height))
	if err := os.Rename(partial, finalPath); err != nil {
		return fmt.Errorf("sink: rename to %s: %w", finalPath, err)
	}

	return s.updateSentinel(meta.NearHeight)
}

func (s *FileSink) updateSentinel(height uint64) error {
	tmp := filepath.Join(s.root, ".REFINER_LAST_BLOCK.h")
	final := filepath.Join(s.root, ".REFINER_LAST_BLOCK")
	if err := writeFsync(tmp, []byte(fmt.Sprintf("%d", height))); err != nil {
		return fmt.Errorf("sink: write sentinel temp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("sink: rename sentinel: %w", err)
	}
	return nil
}

// ReadSentinel returns the last height successfully emitted, for resuming
// after a restart.
func ReadSentinel(root string) (uint64, bool, error) {
	data, err := os.ReadFile(filepath.Join(root, ".REFINER_LAST_BLOCK"))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sink: read sentinel: %w", err)
	}
	var height uint64
	if _, err := fmt.Sscanf(string(data), "%d", &height); err != nil {
		return 0, false, fmt.Errorf("sink: parse sentinel: %w", err)
	}
	return height, true, nil
}

func writeFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
