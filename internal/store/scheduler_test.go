package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTakesPeriodicBackups(t *testing.T) {
	cfg := testConfig(t)
	s := openTestStore(t, cfg)
	seedWallet(t, s, 7, 500)

	log := zerolog.Nop()
	sc := NewScheduler(s, 20*time.Millisecond, &log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()

	require.Eventually(t, func() bool {
		backups, err := s.ListBackups()
		return err == nil && len(backups) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	backups, err := s.ListBackups()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(backups[0].Name, "auto_backup_"))
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	s := openTestStore(t, cfg)

	log := zerolog.Nop()
	sc := NewScheduler(s, time.Hour, &log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sc.Run(ctx)
	require.NoError(t, err)
}
