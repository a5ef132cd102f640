package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// BackupInfo describes one retained backup file.
type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	AgeHours  float64   `json:"age_hours"`
}

// backupEnvelope is the on-disk backup shape. Recovery also accepts bare
// documents for backups taken by other tools.
type backupEnvelope struct {
	Metadata backupMetadata  `json:"backup_metadata"`
	Database json.RawMessage `json:"database"`
}

type backupMetadata struct {
	CreatedAt    time.Time `json:"created_at"`
	OriginalFile string    `json:"original_file"`
	BackupType   string    `json:"backup_type"`
	Version      string    `json:"version"`
}

// Backup snapshots the current valid document into the backup set. A
// document that fails integrity validation is refused rather than copied.
func (s *Store) Backup(ctx context.Context, name string) (*BackupInfo, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	return s.backupLocked(name, "manual")
}

func (s *Store) backupLocked(name, backupType string) (*BackupInfo, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, errors.Wrap(err, "refusing to back up invalid document")
	}

	if name == "" {
		name = fmt.Sprintf("hermes_backup_%s.json", time.Now().Format("20060102_150405"))
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid backup name %q", name)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode backup document")
	}

	envelope := backupEnvelope{
		Metadata: backupMetadata{
			CreatedAt:    time.Now(),
			OriginalFile: s.path,
			BackupType:   backupType,
			Version:      documentVersion,
		},
		Database: raw,
	}

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode backup envelope")
	}

	backupPath := filepath.Join(s.backupDir, name)
	if err := os.WriteFile(backupPath, out, 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write backup")
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("backup", name).Int64("size_bytes", info.Size()).Msg("backup created")

	return &BackupInfo{
		Name:      name,
		Path:      backupPath,
		SizeBytes: info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// ListBackups returns backup metadata, newest first.
func (s *Store) ListBackups() ([]BackupInfo, error) {
	entries, err := filepath.Glob(filepath.Join(s.backupDir, "*.json"))
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, path := range entries {
		info, err := os.Stat(path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable backup")
			continue
		}
		backups = append(backups, BackupInfo{
			Name:      filepath.Base(path),
			Path:      path,
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
			AgeHours:  time.Since(info.ModTime()).Hours(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Recover scans backups newest-first and restores the first structurally
// valid one as the primary document. Returns ErrNoValidBackup when every
// candidate fails, which is fatal and needs operator intervention.
func (s *Store) Recover() error {
	backups, err := s.ListBackups()
	if err != nil {
		return err
	}

	for _, b := range backups {
		doc, err := s.readBackupDocument(b.Path)
		if err != nil {
			s.log.Warn().Err(err).Str("backup", b.Name).Msg("backup rejected during recovery")
			continue
		}

		if err := s.writeAtomic(doc); err != nil {
			s.log.Error().Err(err).Str("backup", b.Name).Msg("failed to install recovered document")
			continue
		}

		s.log.Info().Str("backup", b.Name).Msg("document recovered from backup")
		return nil
	}

	return ErrNoValidBackup
}

// readBackupDocument parses either an enveloped or a bare document backup
// and validates its structure. Checksums are not required of backups; the
// structure check plus the fresh checksum written on restore is the contract.
func (s *Store) readBackupDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var envelope backupEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Database) > 0 {
		raw = envelope.Database
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "invalid backup json")
	}
	if err := doc.validateStructure(); err != nil {
		return nil, errors.Wrap(err, "invalid backup structure")
	}
	doc.normalize()
	return &doc, nil
}

// RestoreFromBackup installs the named backup as the primary document,
// taking a safety backup of the current one first.
func (s *Store) RestoreFromBackup(ctx context.Context, name string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	backupPath := filepath.Join(s.backupDir, filepath.Base(name))
	doc, err := s.readBackupDocument(backupPath)
	if err != nil {
		return errors.Wrapf(ErrNoValidBackup, "%s: %v", name, err)
	}

	safetyName := fmt.Sprintf("pre_restore_%s.json", time.Now().Format("20060102_150405"))
	if _, err := s.backupLocked(safetyName, "pre_restore"); err != nil {
		s.log.Warn().Err(err).Msg("could not take pre-restore safety backup")
	}

	if err := s.writeAtomic(doc); err != nil {
		return err
	}

	s.doc = doc
	s.log.Info().Str("backup", name).Msg("document restored from backup")
	return nil
}

// pruneBackups keeps the newest maxBackups files and evicts the rest.
func (s *Store) pruneBackups() error {
	backups, err := s.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= s.maxBackups {
		return nil
	}

	for _, b := range backups[s.maxBackups:] {
		if err := os.Remove(b.Path); err != nil {
			s.log.Error().Err(err).Str("backup", b.Name).Msg("failed to remove old backup")
			continue
		}
		s.log.Info().Str("backup", b.Name).Msg("old backup removed")
	}
	return nil
}
