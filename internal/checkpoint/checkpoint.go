// Package checkpoint persists model weight snapshots and the loss history,
// and restores them across schema revisions. Legacy snapshots are migrated
// by inspecting their key sets before loading, never by intercepting load
// failures.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"restframe/internal/autoenc"
	"restframe/internal/history"
)

// CurrentVersion identifies the on-disk schema written by Save. Version 0
// files predate the version field and the history Done counter.
const CurrentVersion = 1

// File is the serialized checkpoint record: one weight snapshot per
// encoder, in encoder order, plus the full loss history.
type File struct {
	Version int
	Model   []map[string][]float64
	Losses  *history.History
}

// Save writes a checkpoint, replacing any existing file. The write goes
// through a temporary file in the same directory so a crash mid-write
// cannot corrupt an existing checkpoint.
func Save(path string, models []*autoenc.Model, hist *history.History) error {
	record := File{
		Version: CurrentVersion,
		Model:   make([]map[string][]float64, len(models)),
		Losses:  hist,
	}
	for i, m := range models {
		record.Model[i] = m.State()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := gob.NewEncoder(tmp).Encode(&record); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace checkpoint %s: %w", path, err)
	}
	return nil
}

// Read decodes a checkpoint record without installing it into models.
func Read(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	defer file.Close()
	var record File
	if err := gob.NewDecoder(file).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return &record, nil
}

// Load reads a checkpoint and installs the recovered weights into the given
// models, migrating legacy snapshots first. Returns the recovered loss
// history.
func Load(path string, models []*autoenc.Model) (*history.History, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	defer file.Close()

	var record File
	if err := gob.NewDecoder(file).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if len(record.Model) != len(models) {
		return nil, fmt.Errorf("checkpoint %s holds %d model snapshots, trainer has %d encoders", path, len(record.Model), len(models))
	}
	if record.Losses == nil {
		return nil, fmt.Errorf("checkpoint %s carries no loss history", path)
	}
	if err := record.Losses.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}

	for i, m := range models {
		snapshot := Migrate(record.Model[i], m)
		if err := m.LoadState(snapshot); err != nil {
			return nil, fmt.Errorf("load snapshot %d: %w", i, err)
		}
	}
	return record.Losses, nil
}
