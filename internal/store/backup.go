package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const backupsKey = "backups"

// BackupRecord describes one retained pre-update backup.
type BackupRecord struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Platform  string    `json:"platform"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

// BackupManager snapshots the install target before a destructive step and
// restores it when an apply fails. Backups beyond the retention limit are
// pruned oldest-first.
type BackupManager struct {
	dir   string
	store Store
	limit int
}

// NewBackupManager creates the backup directory if needed. A limit of zero
// disables pruning.
func NewBackupManager(dir string, s Store, limit int) (*BackupManager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &BackupManager{dir: dir, store: s, limit: limit}, nil
}

// Create copies sourcePath into the backup directory and records it.
func (b *BackupManager) Create(sourcePath, version, platformID string, at time.Time) (*BackupRecord, error) {
	rec := BackupRecord{
		ID:        uuid.New().String(),
		Version:   version,
		Platform:  platformID,
		CreatedAt: at.UTC(),
	}
	rec.Path = filepath.Join(b.dir, rec.ID+".bak")

	if err := copyFile(sourcePath, rec.Path); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", sourcePath, err)
	}

	records, err := b.Records()
	if err != nil {
		os.Remove(rec.Path)
		return nil, err
	}
	records = append(records, rec)

	records, pruned := b.prune(records)
	for _, old := range pruned {
		os.Remove(old.Path)
	}

	if err := b.save(records); err != nil {
		os.Remove(rec.Path)
		return nil, err
	}
	return &rec, nil
}

// Restore copies a backup back over destPath.
func (b *BackupManager) Restore(rec *BackupRecord, destPath string) error {
	if rec == nil {
		return fmt.Errorf("no backup to restore")
	}
	if err := copyFile(rec.Path, destPath); err != nil {
		return fmt.Errorf("restore backup %s: %w", rec.ID, err)
	}
	return nil
}

// Latest returns the most recent backup record, or nil when none exist.
func (b *BackupManager) Latest() (*BackupRecord, error) {
	records, err := b.Records()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	rec := records[len(records)-1]
	return &rec, nil
}

// Records returns all retained backups, oldest first.
func (b *BackupManager) Records() ([]BackupRecord, error) {
	data, ok, err := b.store.Get(backupsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []BackupRecord{}, nil
	}

	var records []BackupRecord
	if err := open(data, &records); err != nil {
		return nil, fmt.Errorf("read backup records: %w", err)
	}
	return records, nil
}

func (b *BackupManager) prune(records []BackupRecord) (kept, pruned []BackupRecord) {
	if b.limit <= 0 || len(records) <= b.limit {
		return records, nil
	}
	cut := len(records) - b.limit
	return records[cut:], records[:cut]
}

func (b *BackupManager) save(records []BackupRecord) error {
	data, err := seal(records)
	if err != nil {
		return fmt.Errorf("seal backup records: %w", err)
	}
	return b.store.Set(backupsKey, data)
}

// copyFile copies src to dst through a temporary file, preserving the
// source mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmpPath := dst + ".tmp"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
