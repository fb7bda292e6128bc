package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rental-scraper/pkg/models"
	"rental-scraper/pkg/utils"
)

// Writer persists the full current accumulation of extracted records as one
// JSON snapshot. Save is guarded by a mutex so two concurrent calls cannot
// interleave, and the write is whole-file replace via temp file + rename so
// a torn write never mixes old and new content.
type Writer struct {
	mu    sync.Mutex
	path  string
	runID string
	log   *logrus.Entry
}

// NewWriter creates a checkpoint writer targeting path. Each writer carries
// a unique run ID so snapshots and backups from different runs can be told
// apart in logs.
func NewWriter(path string, log *logrus.Entry) *Writer {
	runID := uuid.NewString()
	return &Writer{
		path:  path,
		runID: runID,
		log:   log.WithField("run_id", runID),
	}
}

// Path returns the checkpoint file path.
func (w *Writer) Path() string { return w.path }

// Save serializes records to the checkpoint file, replacing any previous
// snapshot. Failures are returned wrapped in ErrCheckpoint; callers treat
// them as warnings (persistence is best-effort), never as run-fatal.
func (w *Writer) Save(records []models.Listing) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if records == nil {
		records = []models.Listing{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling %d records: %w", utils.ErrCheckpoint, len(records), err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating checkpoint dir '%s': %w", utils.ErrCheckpoint, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in '%s': %w", utils.ErrCheckpoint, dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing temp file '%s': %w", utils.ErrCheckpoint, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: syncing temp file '%s': %w", utils.ErrCheckpoint, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file '%s': %w", utils.ErrCheckpoint, tmpName, err)
	}

	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing '%s': %w", utils.ErrCheckpoint, w.path, err)
	}

	w.log.WithFields(logrus.Fields{"path": w.path, "records": len(records)}).Debug("Checkpoint written")
	return nil
}

// Load reads the current checkpoint, returning an empty slice when the file
// does not exist yet (fresh run).
func (w *Writer) Load() ([]models.Listing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return load(w.path)
}

// Load reads a snapshot file without needing a Writer (dedupe/import read
// paths). A missing file yields an empty slice, not an error.
func Load(path string) ([]models.Listing, error) {
	return load(path)
}

func load(path string) ([]models.Listing, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading '%s': %w", utils.ErrFilesystem, path, err)
	}

	var records []models.Listing
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decoding JSON checkpoint '%s': %w", utils.ErrParsing, path, err)
	}
	return records, nil
}

// Backup copies the current checkpoint aside with a timestamped name before
// a force re-scrape replaces it. Returns the backup path, or "" when there
// was nothing to back up.
func (w *Writer) Backup(now time.Time) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading '%s' for backup: %w", utils.ErrFilesystem, w.path, err)
	}

	backupPath := fmt.Sprintf("%s.backup_%d", w.path, now.Unix())
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("%w: writing backup '%s': %w", utils.ErrFilesystem, backupPath, err)
	}

	w.log.WithField("backup", backupPath).Info("Checkpoint backed up before force re-scrape")
	return backupPath, nil
}
