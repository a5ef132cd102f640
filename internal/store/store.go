package store

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/seralis/hermes/internal/config"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrCorrupted reports a checksum or structure mismatch on load.
	ErrCorrupted = errors.New("store: document corrupted")
	// ErrLockTimeout reports that the write lock could not be acquired
	// within the configured bound. Safe to retry.
	ErrLockTimeout = errors.New("store: write lock timeout")
	// ErrNoValidBackup reports that recovery exhausted every backup.
	ErrNoValidBackup = errors.New("store: no valid backup available")
)

// Store owns the protected document: a single checksummed JSON file written
// atomically, with timestamped backups beside it. All mutations go through
// WriteLocked so ledger and order state changes are linearized.
type Store struct {
	path        string
	backupDir   string
	maxBackups  int
	lockTimeout time.Duration
	loadRetries int

	// Buffered channel of size one used as a mutex that supports a
	// bounded, cancellable acquire.
	sem chan struct{}
	doc *Document
	log zerolog.Logger
}

func Open(cfg *config.StoreConfig, log zerolog.Logger) (*Store, error) {
	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(cfg.Path), "backups")
	}

	s := &Store{
		path:        cfg.Path,
		backupDir:   backupDir,
		maxBackups:  cfg.MaxBackups,
		lockTimeout: cfg.LockTimeout,
		loadRetries: cfg.LoadRetries,
		sem:         make(chan struct{}, 1),
		log:         log,
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create backup directory")
	}

	doc, err := s.Load()
	if errors.Is(err, ErrCorrupted) {
		log.Warn().Err(err).Msg("document corrupted on startup, attempting recovery")
		if recErr := s.Recover(); recErr != nil {
			return nil, recErr
		}
		doc, err = s.Load()
	}
	if err != nil {
		return nil, err
	}

	s.doc = doc
	log.Info().Str("path", cfg.Path).Msg("store opened")
	return s, nil
}

// Load reads the document from disk and verifies both structure and
// checksum. A missing file yields a fresh empty document written in place.
func (s *Store) Load() (*Document, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		doc := NewDocument()
		if wErr := s.writeAtomic(doc); wErr != nil {
			return nil, wErr
		}
		s.log.Info().Msg("created new empty document")
		return doc, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read document")
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(ErrCorrupted, "invalid json: %v", err)
	}

	if err := doc.validateStructure(); err != nil {
		return nil, errors.Wrapf(ErrCorrupted, "structure: %v", err)
	}
	doc.normalize()

	if doc.Protection.Checksum != "" {
		actual, err := doc.Checksum()
		if err != nil {
			return nil, err
		}
		if actual != doc.Protection.Checksum {
			return nil, errors.Wrapf(ErrCorrupted, "checksum mismatch: expected %s got %s",
				doc.Protection.Checksum, actual)
		}
	}

	return &doc, nil
}

// acquire takes the write lock, waiting at most lockTimeout.
func (s *Store) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.sem
}

// WriteLocked runs fn against the in-memory document under the process-wide
// write lock and persists the result atomically. If fn returns an error, or
// the write itself fails, nothing is kept: the in-memory document is
// reloaded from disk so a mutation the caller saw fail cannot leak into a
// later save.
func (s *Store) WriteLocked(ctx context.Context, fn func(doc *Document) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := fn(s.doc); err != nil {
		s.reloadAfterFailure(ctx, "rejected mutation")
		return err
	}

	if err := s.writeAtomic(s.doc); err != nil {
		s.reloadAfterFailure(ctx, "failed save")
		return err
	}
	return nil
}

// reloadAfterFailure discards the in-memory document in favor of the last
// state that reached disk. Caller must hold the write lock.
func (s *Store) reloadAfterFailure(ctx context.Context, cause string) {
	reloaded, err := s.loadWithRetry(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("cause", cause).Msg("failed to reload document after failed write")
		return
	}
	s.doc = reloaded
}

// View runs fn read-only under the same lock, so reads that feed a decision
// are consistent with concurrent writers.
func (s *Store) View(ctx context.Context, fn func(doc *Document) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	return fn(s.doc)
}

// loadWithRetry retries transient load failures with backoff before
// surfacing. Corruption is not retried; it needs recovery.
func (s *Store) loadWithRetry(ctx context.Context) (*Document, error) {
	var doc *Document
	backoff := retry.WithMaxRetries(uint64(s.loadRetries), retry.NewExponential(50*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		d, err := s.Load()
		if err != nil {
			if errors.Is(err, ErrCorrupted) {
				return err
			}
			return retry.RetryableError(err)
		}
		doc = d
		return nil
	})
	return doc, err
}

// writeAtomic persists the document so an observer never sees a partial
// write: stamp protection metadata, write to a temp file, keep the previous
// primary aside until the rename lands, and restore it if anything fails.
func (s *Store) writeAtomic(doc *Document) error {
	checksum, err := doc.Checksum()
	if err != nil {
		return err
	}
	doc.Protection.Checksum = checksum
	doc.Protection.LastModified = time.Now()
	doc.Protection.Version = documentVersion

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode document")
	}

	tmpPath := s.path + ".tmp"
	prevPath := s.path + ".prev"

	if _, statErr := os.Stat(s.path); statErr == nil {
		if err := copyFile(s.path, prevPath); err != nil {
			return errors.Wrap(err, "failed to preserve previous document")
		}
	}

	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write temp document")
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		if _, statErr := os.Stat(prevPath); statErr == nil {
			if rErr := os.Rename(prevPath, s.path); rErr != nil {
				s.log.Error().Err(rErr).Msg("failed to restore previous document after failed write")
			}
		}
		return errors.Wrap(err, "atomic replace failed")
	}

	os.Remove(prevPath)
	return nil
}

// ValidateIntegrity re-reads the primary file and reports whether it passes
// structure and checksum validation.
func (s *Store) ValidateIntegrity() (bool, error) {
	_, err := s.Load()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrCorrupted) {
		return false, err
	}
	return false, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
