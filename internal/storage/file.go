package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

// Snapshot is the on-disk form of the file store.
type Snapshot struct {
	UpdatedAt string                     `json:"updated_at"`
	Retreats  map[string]retreat.Retreat `json:"retreats"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Retreats: make(map[string]retreat.Retreat)}
}

// Storage handles persistence of retreat snapshots as JSON.
type Storage struct {
	mu      sync.Mutex
	dataDir string
}

// New creates a new Storage instance
func New(dataDir string) (*Storage, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	dataDir, err := expandHome(dataDir)
	if err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
	}, nil
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

func (s *Storage) snapshotPath() string {
	return filepath.Join(s.dataDir, "snapshot.json")
}

// LoadSnapshot loads the snapshot from disk. A missing file is an empty snapshot.
func (s *Storage) LoadSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Storage) load() (*Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if snapshot.Retreats == nil {
		snapshot.Retreats = make(map[string]retreat.Retreat)
	}
	return &snapshot, nil
}

// save writes through a temporary file so a crash never leaves a torn snapshot.
func (s *Storage) save(snapshot *Snapshot) error {
	snapshot.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, "snapshot-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.snapshotPath()); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Upsert merges records into the snapshot. Only uniqueness_key is supported
// as the conflict key. The whole batch is written or nothing is.
func (s *Storage) Upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error) {
	if conflictKey != "uniqueness_key" {
		return 0, fmt.Errorf("file store only resolves conflicts on uniqueness_key, got %q", conflictKey)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	n, err := s.upsert(records)
	observe(DriverFile, start, n, err)
	return n, err
}

func (s *Storage) upsert(records []retreat.Retreat) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.load()
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if r.UniquenessKey == "" {
			return 0, fmt.Errorf("record %q has no uniqueness key", r.Title)
		}
		snapshot.Retreats[r.UniquenessKey] = r
	}
	if err := s.save(snapshot); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close implements Store.
func (s *Storage) Close() error {
	return nil
}
