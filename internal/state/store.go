// Package state persists the durable snapshot of applied resources: the
// diff baseline for every planning cycle. Records are written after each
// completed provider operation, so a crash mid-apply leaves the snapshot
// reflecting only operations that fully finished.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/cairnhq/cairn/internal/ir"
	"github.com/cairnhq/cairn/internal/logging"
)

// Store is the engine's view of durable state. Save and Remove are atomic
// with respect to concurrent writes; the engine guarantees no two
// concurrent operations target the same address (single writer per node).
// Load returns a private copy: callers own what they get, and the store's
// persisted view changes only through Save, Remove and SetOutputs.
type Store interface {
	Load(ctx context.Context) (*ir.State, error)
	Save(ctx context.Context, addr string, rec *ir.ResourceState) error
	Remove(ctx context.Context, addr string) error
	SetOutputs(ctx context.Context, outputs map[string]any) error

	// Lock/Unlock guard a whole run against concurrent processes.
	Lock() error
	Unlock() error
}

// FileStore keeps state in a local JSON file. Writes go through a temp file
// and rename so a crash never leaves a torn snapshot.
type FileStore struct {
	path string

	mu   sync.Mutex // guards snap and file flushes
	snap *ir.State

	nodeMu sync.Mutex
	nodes  map[string]*sync.Mutex // per-address write locks
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, nodes: make(map[string]*sync.Mutex)}
}

// Load reads the snapshot from disk, returning a fresh empty state when no
// file exists yet. The returned snapshot is a deep copy; mutating it never
// touches what the store flushes.
func (s *FileStore) Load(ctx context.Context) (*ir.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap != nil {
		return s.snap.Clone(), nil
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.snap = ir.NewState()
		s.snap.Lineage = uuid.NewString()
		return s.snap.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}

	snap, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", s.path, err)
	}
	s.snap = snap
	return s.snap.Clone(), nil
}

// Save upserts the record for addr and flushes the snapshot. The record is
// copied on the way in, so the caller may keep mutating its own instance.
func (s *FileStore) Save(ctx context.Context, addr string, rec *ir.ResourceState) error {
	unlock := s.lockNode(addr)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return fmt.Errorf("state not loaded")
	}
	upsert(s.snap, addr, rec.Clone())
	return s.flushLocked()
}

// Remove deletes the record for addr and flushes the snapshot.
func (s *FileStore) Remove(ctx context.Context, addr string) error {
	unlock := s.lockNode(addr)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return fmt.Errorf("state not loaded")
	}
	remove(s.snap, addr)
	return s.flushLocked()
}

// SetOutputs replaces the module-level output values.
func (s *FileStore) SetOutputs(ctx context.Context, outputs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return fmt.Errorf("state not loaded")
	}
	s.snap.Outputs = ir.CopyValues(outputs)
	return s.flushLocked()
}

func (s *FileStore) lockNode(addr string) func() {
	s.nodeMu.Lock()
	l, ok := s.nodes[addr]
	if !ok {
		l = &sync.Mutex{}
		s.nodes[addr] = l
	}
	s.nodeMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *FileStore) flushLocked() error {
	s.snap.Serial++
	data, err := encodeState(s.snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	logging.Debug("state flushed", "path", s.path, "serial", s.snap.Serial)
	return nil
}

func upsert(snap *ir.State, addr string, rec *ir.ResourceState) {
	for i, r := range snap.Resources {
		if r.Address() == addr {
			snap.Resources[i] = rec
			return
		}
	}
	snap.Resources = append(snap.Resources, rec)
}

func remove(snap *ir.State, addr string) {
	for i, r := range snap.Resources {
		if r.Address() == addr {
			snap.Resources = append(snap.Resources[:i], snap.Resources[i+1:]...)
			return
		}
	}
}

func encodeState(snap *ir.State) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeState(raw []byte) (*ir.State, error) {
	var snap ir.State
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	if snap.Version > ir.StateVersion {
		return nil, fmt.Errorf("state version %d is newer than supported version %d", snap.Version, ir.StateVersion)
	}
	if snap.Version == 0 {
		snap.Version = ir.StateVersion
	}
	return &snap, nil
}
