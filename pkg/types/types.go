package types

import (
	"time"

	"github.com/seralis/hermes/internal/model"
)

type PurchaseRequest struct {
	UserID    int64 `json:"user_id" validate:"required,gt=0"`
	ServiceID int   `json:"service_id" validate:"required,gt=0"`
	CountryID int   `json:"country_id" validate:"required,gt=0"`
}

type PurchaseResponse struct {
	OrderID     string `json:"order_id"`
	PhoneNumber string `json:"phone_number"`
	Cost        int64  `json:"cost"`
	ExpiresAt   string `json:"expires_at"`
}

type CancelRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Reason string `json:"reason,omitempty"`
}

type RefundRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Reason string `json:"reason,omitempty"`
}

type DepositRequest struct {
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Method    string `json:"method" validate:"required,oneof=binance usdt manual"`
	Reference string `json:"reference" validate:"required"`
}

type DepositResponse struct {
	DepositID string    `json:"deposit_id"`
	Amount    int64     `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ApproveDepositRequest struct {
	AdminID int64 `json:"admin_id" validate:"required,gt=0"`
}

type WalletSummary struct {
	Balance            int64                `json:"balance"`
	TotalDeposited     int64                `json:"total_deposited"`
	TotalSpent         int64                `json:"total_spent"`
	TotalRefunded      int64                `json:"total_refunded"`
	RecentTransactions []*model.Transaction `json:"recent_transactions"`
	WalletCreated      time.Time            `json:"wallet_created"`
	LastActivity       time.Time            `json:"last_activity"`
}

type AdminOverview struct {
	TotalUsers      int   `json:"total_users"`
	TotalBalance    int64 `json:"total_balance"`
	TotalDeposited  int64 `json:"total_deposited"`
	TotalSpent      int64 `json:"total_spent"`
	TotalRefunded   int64 `json:"total_refunded"`
	PendingDeposits int   `json:"pending_deposits"`
}

type BackupRequest struct {
	Name string `json:"name,omitempty"`
}

type IntegrityResponse struct {
	Valid  bool   `json:"valid"`
	Detail string `json:"detail,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
