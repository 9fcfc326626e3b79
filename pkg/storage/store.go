// Package storage persists topic snapshots as one JSON file per topic.
//
// Writes go to a temp file in the same directory followed by an atomic
// rename, so readers and a restarted process never observe a torn blob.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeready-toolchain/oasis/pkg/models"
)

// Store reads and writes topic snapshot blobs under a single directory.
type Store struct {
	dir string
}

// NewStore creates the snapshot directory if needed and returns a Store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the snapshot directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(topicID string) string {
	return filepath.Join(s.dir, topicID+".json")
}

// Save writes the snapshot atomically (temp file + rename).
func (s *Store) Save(snap models.TopicSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", snap.TopicID, err)
	}

	tmp, err := os.CreateTemp(s.dir, snap.TopicID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot for %s: %w", snap.TopicID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot %s: %w", snap.TopicID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot %s: %w", snap.TopicID, err)
	}
	if err := os.Rename(tmpName, s.path(snap.TopicID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename snapshot %s: %w", snap.TopicID, err)
	}
	return nil
}

// Load reads one topic snapshot. os.IsNotExist holds for the returned error
// when the blob is absent.
func (s *Store) Load(topicID string) (models.TopicSnapshot, error) {
	var snap models.TopicSnapshot
	data, err := os.ReadFile(s.path(topicID))
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot %s: %w", topicID, err)
	}
	return snap, nil
}

// LoadAll reads every snapshot in the directory. Unreadable blobs are logged
// and skipped so one corrupt file does not block startup.
func (s *Store) LoadAll() ([]models.TopicSnapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot dir %s: %w", s.dir, err)
	}

	var snaps []models.TopicSnapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		topicID := strings.TrimSuffix(name, ".json")
		snap, err := s.Load(topicID)
		if err != nil {
			slog.Warn("Skipping unreadable topic snapshot",
				"file", name, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Delete removes a topic's blob. Missing files are not an error.
func (s *Store) Delete(topicID string) error {
	if err := os.Remove(s.path(topicID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot %s: %w", topicID, err)
	}
	return nil
}
