package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler creates a backup every interval and prunes the retained set.
// One failed cycle is logged and the loop continues on its next tick.
type Scheduler struct {
	store    *Store
	interval time.Duration
	logger   *zerolog.Logger
}

func NewScheduler(store *Store, interval time.Duration, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (sc *Scheduler) Run(ctx context.Context) error {
	sc.logger.Info().Dur("interval", sc.interval).Msg("starting backup scheduler")
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info().Msg("stopping backup scheduler")
			return nil
		case <-ticker.C:
			if err := sc.runCycle(ctx); err != nil {
				sc.logger.Error().Err(err).Msg("backup cycle failed")
			}
		}
	}
}

func (sc *Scheduler) runCycle(ctx context.Context) error {
	name := fmt.Sprintf("auto_backup_%s.json", time.Now().Format("20060102_150405"))

	info, err := sc.store.Backup(ctx, name)
	if err != nil {
		return err
	}
	sc.logger.Info().Str("backup", info.Name).Int64("size_bytes", info.SizeBytes).Msg("automated backup completed")

	if err := sc.store.pruneBackups(); err != nil {
		sc.logger.Error().Err(err).Msg("backup pruning failed")
	}
	return nil
}
