package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/seralis/hermes/internal/middleware"
	"github.com/seralis/hermes/internal/model"
	"github.com/seralis/hermes/internal/store"
	"github.com/seralis/hermes/pkg/constants"
	"github.com/seralis/hermes/pkg/types"
)

var (
	ErrInsufficientFunds   = errors.New("wallet: insufficient funds")
	ErrReservationNotFound = errors.New("wallet: reservation not found")
	ErrReservationSettled  = errors.New("wallet: reservation already settled")
	ErrDuplicateRefund     = errors.New("wallet: order already refunded")
	ErrDepositNotFound     = errors.New("wallet: deposit not found")
	ErrDepositExpired      = errors.New("wallet: deposit expired")
	ErrDepositProcessed    = errors.New("wallet: deposit already processed")
	ErrDepositOutOfBounds  = errors.New("wallet: deposit amount out of bounds")
)

// WalletService is the ledger: wallet balances, the reserve/confirm/cancel
// lifecycle and the append-only transaction log. Every mutation runs inside
// the store's write lock, so balance checks and the mutations they guard are
// a single critical section.
type WalletService struct {
	store *store.Store
}

func NewWalletService(st *store.Store) *WalletService {
	return &WalletService{store: st}
}

func walletKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// walletFor lazily creates a zero-balance wallet on first access.
func walletFor(doc *store.Document, userID int64) *model.Wallet {
	key := walletKey(userID)
	if w, ok := doc.Wallets[key]; ok {
		return w
	}
	now := time.Now()
	w := &model.Wallet{
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
	}
	doc.Wallets[key] = w
	return w
}

func appendTransaction(doc *store.Document, txn *model.Transaction) {
	txn.ID = fmt.Sprintf("TXN_%d_%s", txn.UserID, uuid.New().String())
	txn.Timestamp = time.Now()
	doc.Transactions[txn.ID] = txn
}

// Balance returns the user's current balance, creating the wallet if needed.
func (ws *WalletService) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		balance = walletFor(doc, userID).Balance
		return nil
	})
	return balance, err
}

// Reserve places a logical hold on funds for an order. The balance is not
// changed; the hold exists as a Reservation record plus a reservation
// transaction whose balance_after equals the untouched balance.
func (ws *WalletService) Reserve(ctx context.Context, userID, amount int64, orderID, description string) error {
	logger := middleware.GetLogger(ctx)

	return ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		w := walletFor(doc, userID)
		if w.Balance < amount {
			logger.Warn().
				Int64("user_id", userID).
				Int64("balance", w.Balance).
				Int64("amount", amount).
				Msg("insufficient balance for reservation")
			return ErrInsufficientFunds
		}

		now := time.Now()
		doc.Reservations[orderID] = &model.Reservation{
			ID:        orderID,
			UserID:    userID,
			Amount:    amount,
			OrderID:   orderID,
			State:     constants.ReservationReserved,
			CreatedAt: now,
			UpdatedAt: now,
		}

		appendTransaction(doc, &model.Transaction{
			UserID:       userID,
			Type:         constants.TxnReservation,
			Amount:       amount,
			Description:  "Reserved for " + description,
			OrderID:      orderID,
			BalanceAfter: w.Balance,
		})

		w.LastActivity = now
		logger.Info().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("order_id", orderID).
			Msg("funds reserved")
		return nil
	})
}

// Confirm settles a reservation: the single point where money actually moves.
// Only a reservation in state "reserved" can be confirmed; re-invoking after
// either terminal transition fails without side effects.
func (ws *WalletService) Confirm(ctx context.Context, userID, amount int64, orderID, description string) error {
	logger := middleware.GetLogger(ctx)

	return ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		res, ok := doc.Reservations[orderID]
		if !ok {
			return ErrReservationNotFound
		}
		if res.State != constants.ReservationReserved {
			return ErrReservationSettled
		}

		w := walletFor(doc, userID)
		if w.Balance < amount {
			// A hold is logical, so a concurrent spend can drain the
			// balance underneath it. This should not happen while all
			// spends reserve first; treat it as a critical ledger fault.
			logger.Error().
				Int64("user_id", userID).
				Int64("balance", w.Balance).
				Int64("amount", amount).
				Str("order_id", orderID).
				Msg("insufficient balance at confirmation")
			return ErrInsufficientFunds
		}

		now := time.Now()
		res.State = constants.ReservationConfirmed
		res.UpdatedAt = now

		w.Balance -= amount
		w.TotalSpent += amount
		w.LastActivity = now

		appendTransaction(doc, &model.Transaction{
			UserID:       userID,
			Type:         constants.TxnDeduction,
			Amount:       amount,
			Description:  "Confirmed: " + description,
			OrderID:      orderID,
			BalanceAfter: w.Balance,
		})

		logger.Info().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("order_id", orderID).
			Int64("new_balance", w.Balance).
			Msg("reservation confirmed")
		return nil
	})
}

// Cancel releases a reservation. Nothing was ever deducted so the balance is
// untouched; a cancellation transaction is appended for the audit trail.
func (ws *WalletService) Cancel(ctx context.Context, userID, amount int64, orderID, reason string) error {
	logger := middleware.GetLogger(ctx)

	return ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		res, ok := doc.Reservations[orderID]
		if !ok {
			return ErrReservationNotFound
		}
		if res.State != constants.ReservationReserved {
			return ErrReservationSettled
		}

		now := time.Now()
		res.State = constants.ReservationCancelled
		res.UpdatedAt = now

		w := walletFor(doc, userID)
		w.LastActivity = now

		appendTransaction(doc, &model.Transaction{
			UserID:       userID,
			Type:         constants.TxnCancellation,
			Amount:       amount,
			Description:  "Cancelled reservation: " + reason,
			OrderID:      orderID,
			BalanceAfter: w.Balance,
		})

		logger.Info().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("order_id", orderID).
			Msg("reservation cancelled")
		return nil
	})
}

// Refund credits a user for an order that was actually charged outside the
// reserve/confirm path. At most one refund may ever exist per order.
func (ws *WalletService) Refund(ctx context.Context, userID, amount int64, orderID, reason string) error {
	logger := middleware.GetLogger(ctx)

	return ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		for _, txn := range doc.Transactions {
			if txn.Type == constants.TxnRefund && txn.OrderID == orderID {
				logger.Warn().
					Str("order_id", orderID).
					Int64("user_id", userID).
					Msg("duplicate refund blocked")
				return ErrDuplicateRefund
			}
		}

		now := time.Now()
		w := walletFor(doc, userID)
		w.Balance += amount
		w.TotalRefunded += amount
		w.LastActivity = now

		appendTransaction(doc, &model.Transaction{
			UserID:       userID,
			Type:         constants.TxnRefund,
			Amount:       amount,
			Description:  fmt.Sprintf("Refund for order %s: %s", orderID, reason),
			OrderID:      orderID,
			BalanceAfter: w.Balance,
		})

		refundID := fmt.Sprintf("REF_%d_%s", userID, uuid.New().String())
		doc.Refunds[refundID] = &model.Refund{
			ID:          refundID,
			UserID:      userID,
			OrderID:     orderID,
			Amount:      amount,
			Reason:      reason,
			ProcessedAt: now,
		}

		logger.Info().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("order_id", orderID).
			Msg("refund processed")
		return nil
	})
}

// AdminCredit credits a wallet directly, outside the deposit flow.
func (ws *WalletService) AdminCredit(ctx context.Context, userID, amount int64, description string) error {
	return ws.credit(ctx, userID, amount, description, constants.TxnAdminCredit)
}

func (ws *WalletService) credit(ctx context.Context, userID, amount int64, description, txnType string) error {
	return ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		creditLocked(doc, userID, amount, description, txnType)
		return nil
	})
}

func creditLocked(doc *store.Document, userID, amount int64, description, txnType string) {
	w := walletFor(doc, userID)
	w.Balance += amount
	if txnType == constants.TxnDeposit {
		w.TotalDeposited += amount
	}
	w.LastActivity = time.Now()

	appendTransaction(doc, &model.Transaction{
		UserID:       userID,
		Type:         txnType,
		Amount:       amount,
		Description:  description,
		BalanceAfter: w.Balance,
	})
}

// CreateDepositRequest records a bounds-checked deposit awaiting admin
// approval. Funds are credited only on approval.
func (ws *WalletService) CreateDepositRequest(ctx context.Context, userID, amount int64, method, reference string) (*model.Deposit, error) {
	logger := middleware.GetLogger(ctx)

	if amount < constants.MinDepositCents || amount > constants.MaxDepositCents {
		return nil, ErrDepositOutOfBounds
	}

	var dep *model.Deposit
	err := ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		now := time.Now()
		dep = &model.Deposit{
			ID:        fmt.Sprintf("DEP_%d_%d", userID, now.Unix()),
			UserID:    userID,
			Amount:    amount,
			Method:    method,
			Reference: reference,
			Status:    constants.DepositPendingPayment,
			CreatedAt: now,
			ExpiresAt: now.Add(2 * time.Hour),
		}
		doc.Deposits[dep.ID] = dep
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int64("user_id", userID).
		Int64("amount", amount).
		Str("deposit_id", dep.ID).
		Msg("deposit request created")
	return dep, nil
}

// ApproveDeposit marks a pending deposit as approved and credits the wallet.
func (ws *WalletService) ApproveDeposit(ctx context.Context, depositID string, adminID int64) error {
	logger := middleware.GetLogger(ctx)

	err := ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		dep, ok := doc.Deposits[depositID]
		if !ok {
			return ErrDepositNotFound
		}
		if dep.Status != constants.DepositPendingPayment {
			return ErrDepositProcessed
		}
		if time.Now().After(dep.ExpiresAt) {
			return ErrDepositExpired
		}

		now := time.Now()
		dep.Status = constants.DepositApproved
		dep.PaidAt = &now
		dep.AdminApprovedAt = &now
		dep.AdminApprovedBy = adminID

		creditLocked(doc, dep.UserID, dep.Amount,
			fmt.Sprintf("Deposit approved by admin (ID: %s)", depositID),
			constants.TxnDeposit)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("deposit_id", depositID).
		Int64("admin_id", adminID).
		Msg("deposit approved")
	return nil
}

// PendingDeposits returns unexpired deposits awaiting approval.
func (ws *WalletService) PendingDeposits(ctx context.Context) ([]*model.Deposit, error) {
	var pending []*model.Deposit
	err := ws.store.View(ctx, func(doc *store.Document) error {
		now := time.Now()
		for _, dep := range doc.Deposits {
			if dep.Status == constants.DepositPendingPayment && now.Before(dep.ExpiresAt) {
				pending = append(pending, dep)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// History returns the user's transactions, newest first.
func (ws *WalletService) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	var txns []*model.Transaction
	err := ws.store.View(ctx, func(doc *store.Document) error {
		for _, txn := range doc.Transactions {
			if txn.UserID == userID {
				txns = append(txns, txn)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(txns, func(i, j int) bool {
		return txns[i].Timestamp.After(txns[j].Timestamp)
	})
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

// Summary returns balance, totals and the five most recent transactions.
func (ws *WalletService) Summary(ctx context.Context, userID int64) (*types.WalletSummary, error) {
	var summary *types.WalletSummary
	err := ws.store.WriteLocked(ctx, func(doc *store.Document) error {
		w := walletFor(doc, userID)
		summary = &types.WalletSummary{
			Balance:        w.Balance,
			TotalDeposited: w.TotalDeposited,
			TotalSpent:     w.TotalSpent,
			TotalRefunded:  w.TotalRefunded,
			WalletCreated:  w.CreatedAt,
			LastActivity:   w.LastActivity,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recent, err := ws.History(ctx, userID, 5)
	if err != nil {
		return nil, err
	}
	summary.RecentTransactions = recent
	return summary, nil
}

// AdminOverview aggregates all wallets for the admin dashboard.
func (ws *WalletService) AdminOverview(ctx context.Context) (*types.AdminOverview, error) {
	overview := &types.AdminOverview{}
	err := ws.store.View(ctx, func(doc *store.Document) error {
		now := time.Now()
		overview.TotalUsers = len(doc.Wallets)
		for _, w := range doc.Wallets {
			overview.TotalBalance += w.Balance
			overview.TotalDeposited += w.TotalDeposited
			overview.TotalSpent += w.TotalSpent
			overview.TotalRefunded += w.TotalRefunded
		}
		for _, dep := range doc.Deposits {
			if dep.Status == constants.DepositPendingPayment && now.Before(dep.ExpiresAt) {
				overview.PendingDeposits++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return overview, nil
}
