package constants

// Transaction types recorded in the ledger log.
const (
	TxnReservation  = "reservation"
	TxnDeduction    = "deduction"
	TxnRefund       = "refund"
	TxnCancellation = "cancellation"
	TxnDeposit      = "deposit"
	TxnAdminCredit  = "admin_credit"
)

// Order statuses.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderCompleted  = "completed"
	OrderTimeout    = "timeout"
	OrderCancelled  = "cancelled"
	OrderError      = "error"
	OrderRefunded   = "refunded"
)

// Reservation states.
const (
	ReservationReserved  = "reserved"
	ReservationConfirmed = "confirmed"
	ReservationCancelled = "cancelled"
)

// Deposit statuses.
const (
	DepositPendingPayment = "pending_payment"
	DepositApproved       = "approved"
)

// Deposit limits in cents.
const (
	MinDepositCents int64 = 100    // $1
	MaxDepositCents int64 = 100000 // $1000
)
