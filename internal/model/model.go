package model

import (
	"time"
)

// All monetary amounts are int64 cents.

type Wallet struct {
	UserID         int64     `json:"user_id" validate:"required"`
	Balance        int64     `json:"balance" validate:"gte=0"`
	TotalDeposited int64     `json:"total_deposited" validate:"gte=0"`
	TotalSpent     int64     `json:"total_spent" validate:"gte=0"`
	TotalRefunded  int64     `json:"total_refunded" validate:"gte=0"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// Reservation is a logical hold on wallet funds. While in state "reserved"
// the wallet balance is untouched; money moves only on confirmation.
type Reservation struct {
	ID        string    `json:"reservation_id" validate:"required"`
	UserID    int64     `json:"user_id" validate:"required"`
	Amount    int64     `json:"amount" validate:"gt=0"`
	OrderID   string    `json:"order_id" validate:"required"`
	State     string    `json:"state" validate:"required,oneof=reserved confirmed cancelled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is an immutable ledger log entry.
type Transaction struct {
	ID           string    `json:"transaction_id" validate:"required"`
	UserID       int64     `json:"user_id" validate:"required"`
	Type         string    `json:"type" validate:"required,oneof=reservation deduction refund cancellation deposit admin_credit"`
	Amount       int64     `json:"amount" validate:"gt=0"`
	Description  string    `json:"description"`
	OrderID      string    `json:"order_id,omitempty"`
	BalanceAfter int64     `json:"balance_after" validate:"gte=0"`
	Timestamp    time.Time `json:"timestamp"`
}

type Order struct {
	ID            string     `json:"order_id" validate:"required"`
	UserID        int64      `json:"user_id" validate:"required"`
	PhoneNumber   string     `json:"phone_number"`
	ServiceID     int        `json:"service_id"`
	ServiceName   string     `json:"service_name"`
	CountryID     int        `json:"country_id"`
	CountryName   string     `json:"country_name"`
	Cost          int64      `json:"cost"`        // amount reserved from the wallet
	ActualCost    int64      `json:"actual_cost"` // what the provider reported charging
	Status        string     `json:"status" validate:"required,oneof=pending processing completed timeout cancelled error refunded"`
	OTP           string     `json:"otp,omitempty"`
	OTPReceivedAt *time.Time `json:"otp_received_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	ReservationID string     `json:"reservation_id,omitempty"`
	PollCount     int        `json:"poll_count"`
}

type Deposit struct {
	ID              string     `json:"deposit_id" validate:"required"`
	UserID          int64      `json:"user_id" validate:"required"`
	Amount          int64      `json:"amount" validate:"gt=0"`
	Method          string     `json:"method"`
	Reference       string     `json:"reference"`
	Status          string     `json:"status" validate:"required,oneof=pending_payment approved"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	AdminApprovedAt *time.Time `json:"admin_approved_at,omitempty"`
	AdminApprovedBy int64      `json:"admin_approved_by,omitempty"`
}

type Refund struct {
	ID          string    `json:"refund_id" validate:"required"`
	UserID      int64     `json:"user_id" validate:"required"`
	OrderID     string    `json:"order_id" validate:"required"`
	Amount      int64     `json:"amount" validate:"gt=0"`
	Reason      string    `json:"reason"`
	ProcessedAt time.Time `json:"processed_at"`
}
