package wallet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seralis/hermes/internal/config"
	"github.com/seralis/hermes/internal/store"
	"github.com/seralis/hermes/pkg/constants"
)

func newTestService(t *testing.T) *WalletService {
	dir := t.TempDir()
	st, err := store.Open(&config.StoreConfig{
		Path:        filepath.Join(dir, "hermes.json"),
		BackupDir:   filepath.Join(dir, "backups"),
		MaxBackups:  3,
		LockTimeout: 2 * time.Second,
		LoadRetries: 1,
	}, zerolog.Nop())
	require.NoError(t, err)
	return NewWalletService(st)
}

func fund(t *testing.T, ws *WalletService, userID, amount int64) {
	require.NoError(t, ws.AdminCredit(context.Background(), userID, amount, "test funding"))
}

func TestBalanceCreatesWalletLazily(t *testing.T) {
	ws := newTestService(t)

	balance, err := ws.Balance(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestReserveDoesNotMoveMoney(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()
	fund(t, ws, 1, 1000)

	require.NoError(t, ws.Reserve(ctx, 1, 300, "rsv-1", "test order"))

	balance, err := ws.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance, "reserve must not change the balance")

	history, err := ws.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, constants.TxnReservation, history[0].Type)
	assert.Equal(t, int64(1000), history[0].BalanceAfter)
}

func TestReserveInsufficientFunds(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()
	fund(t, ws, 1, 100)

	err := ws.Reserve(ctx, 1, 300, "rsv-1", "test order")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// The failed reservation must leave no trace.
	history, err := ws.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestConfirmDeductsOnce(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()
	fund(t, ws, 1, 1000)

	require.NoError(t, ws.Reserve(ctx, 1, 300, "rsv-1", "test order"))
	require.NoError(t, ws.Confirm(ctx, 1, 300, "rsv-1", "test order"))

	balance, err := ws.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)

	// Confirming a settled reservation must fail without side effects.
	err = ws.Confirm(ctx, 1, 300, "rsv-1", "test order")
	require.ErrorIs(t, err, ErrReservationSettled)

	balance, err = ws.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)
}

func TestCancelReleasesWithoutDeducting(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()
	fund(t, ws, 1, 1000)

	require.NoError(t, ws.Reserve(ctx, 1, 300, "rsv-1", "test order"))
	require.NoError(t, ws.Cancel(ctx, 1, 300, "rsv-1", "user cancelled"))

	balance, err := ws.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	// No double settlement in either direction.
	require.ErrorIs(t, ws.Confirm(ctx, 1, 300, "rsv-1", "x"), ErrReservationSettled)
	require.ErrorIs(t, ws.Cancel(ctx, 1, 300, "rsv-1", "x"), ErrReservationSettled)
}

func TestConfirmUnknownReservation(t *testing.T) {
	ws := newTestService(t)

	err := ws.Confirm(context.Background(), 1, 300, "ghost", "x")
	require.ErrorIs(t, err, ErrReservationNotFound)
}

func TestRefundIsIdempotentPerOrder(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()

	require.NoError(t, ws.Refund(ctx, 1, 250, "order-9", "no SMS"))

	balance, err := ws.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)

	err = ws.Refund(ctx, 1, 250, "order-9", "no SMS")
	require.ErrorIs(t, err, ErrDuplicateRefund)

	balance, err = ws.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance, "duplicate refund must not credit twice")
}

func TestDepositLifecycle(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()

	dep, err := ws.CreateDepositRequest(ctx, 1, 5000, "usdt", "tx-abc")
	require.NoError(t, err)
	assert.Equal(t, constants.DepositPendingPayment, dep.Status)

	pending, err := ws.PendingDeposits(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, ws.ApproveDeposit(ctx, dep.ID, 99))

	balance, err := ws.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	summary, err := ws.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), summary.TotalDeposited)

	// Second approval is rejected.
	err = ws.ApproveDeposit(ctx, dep.ID, 99)
	require.ErrorIs(t, err, ErrDepositProcessed)
}

func TestDepositBounds(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()

	_, err := ws.CreateDepositRequest(ctx, 1, constants.MinDepositCents-1, "usdt", "low")
	require.ErrorIs(t, err, ErrDepositOutOfBounds)

	_, err = ws.CreateDepositRequest(ctx, 1, constants.MaxDepositCents+1, "usdt", "high")
	require.ErrorIs(t, err, ErrDepositOutOfBounds)

	_, err = ws.CreateDepositRequest(ctx, 1, constants.MinDepositCents, "usdt", "edge")
	require.NoError(t, err)
}

func TestApproveUnknownDeposit(t *testing.T) {
	ws := newTestService(t)

	err := ws.ApproveDeposit(context.Background(), "DEP_ghost", 99)
	require.ErrorIs(t, err, ErrDepositNotFound)
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		fund(t, ws, 1, 100)
		time.Sleep(2 * time.Millisecond)
	}

	history, err := ws.History(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.True(t, !history[i-1].Timestamp.Before(history[i].Timestamp))
	}
}

func TestAdminOverviewAggregates(t *testing.T) {
	ws := newTestService(t)
	ctx := context.Background()

	fund(t, ws, 1, 1000)
	fund(t, ws, 2, 2000)
	_, err := ws.CreateDepositRequest(ctx, 1, 500, "manual", "ref")
	require.NoError(t, err)

	overview, err := ws.AdminOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, overview.TotalUsers)
	assert.Equal(t, int64(3000), overview.TotalBalance)
	assert.Equal(t, 1, overview.PendingDeposits)
}

func TestLedgerSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StoreConfig{
		Path:        filepath.Join(dir, "hermes.json"),
		BackupDir:   filepath.Join(dir, "backups"),
		MaxBackups:  3,
		LockTimeout: 2 * time.Second,
		LoadRetries: 1,
	}
	ctx := context.Background()

	st, err := store.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	ws := NewWalletService(st)
	fund(t, ws, 1, 1000)
	require.NoError(t, ws.Reserve(ctx, 1, 300, "rsv-1", "order"))

	st2, err := store.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	ws2 := NewWalletService(st2)

	balance, err := ws2.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	// The reservation survives too and can still be confirmed.
	require.NoError(t, ws2.Confirm(ctx, 1, 300, "rsv-1", "order"))
	balance, err = ws2.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)
}
