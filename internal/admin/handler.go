package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/seralis/hermes/internal/middleware"
	"github.com/seralis/hermes/internal/provider"
	"github.com/seralis/hermes/internal/store"
	"github.com/seralis/hermes/internal/wallet"
	"github.com/seralis/hermes/pkg/types"
)

// AdminHandler exposes operational endpoints: deposit approval, backups,
// integrity checks and the provider account balance. It sits behind the
// admin API key middleware.
type AdminHandler struct {
	Wallets  *wallet.WalletService
	Store    *store.Store
	Provider provider.Client
}

func NewAdminHandler(ws *wallet.WalletService, st *store.Store, client provider.Client) *AdminHandler {
	return &AdminHandler{
		Wallets:  ws,
		Store:    st,
		Provider: client,
	}
}

var validate = validator.New()

// ListDeposits returns pending, unexpired deposit requests.
func (ah *AdminHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	deposits, err := ah.Wallets.PendingDeposits(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list pending deposits")
		http.Error(w, "Failed to list deposits", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"deposits": deposits,
	})
}

// ApproveDeposit credits a pending deposit to its user's wallet.
func (ah *AdminHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	var req types.ApproveDepositRequest
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	depositID := chi.URLParam(r, "depositID")

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := ah.Wallets.ApproveDeposit(ctx, depositID, req.AdminID)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrDepositNotFound):
			http.Error(w, "Deposit not found", http.StatusNotFound)
		case errors.Is(err, wallet.ErrDepositExpired):
			http.Error(w, "Deposit request expired", http.StatusGone)
		case errors.Is(err, wallet.ErrDepositProcessed):
			http.Error(w, "Deposit already processed", http.StatusConflict)
		default:
			logger.Error().Err(err).Str("deposit_id", depositID).Msg("Failed to approve deposit")
			http.Error(w, "Failed to approve deposit", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    "Deposit approved",
		"deposit_id": depositID,
	})
}

// Overview returns aggregate wallet metrics across all users.
func (ah *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	overview, err := ah.Wallets.AdminOverview(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build admin overview")
		http.Error(w, "Failed to build overview", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(overview)
}

// CreateBackup snapshots the store on demand.
func (ah *AdminHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var req types.BackupRequest
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	// Body is optional; an empty one keeps the default name.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	info, err := ah.Store.Backup(ctx, req.Name)
	if err != nil {
		logger.Error().Err(err).Msg("Manual backup failed")
		http.Error(w, "Backup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(info)
}

// ListBackups returns available backups, newest first.
func (ah *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	backups, err := ah.Store.ListBackups()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to list backups", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"backups": backups,
	})
}

// RestoreBackup replaces the live document with a named backup. A safety
// snapshot of the current state is taken first.
func (ah *AdminHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	name := chi.URLParam(r, "name")

	if err := ah.Store.RestoreFromBackup(ctx, name); err != nil {
		if errors.Is(err, store.ErrNoValidBackup) {
			http.Error(w, "Backup not found or invalid", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Str("backup", name).Msg("Restore failed")
		http.Error(w, "Restore failed", http.StatusInternalServerError)
		return
	}

	logger.Warn().Str("backup", name).Msg("Store restored from backup")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Restore complete",
		"backup":  name,
	})
}

// Integrity verifies the live document's checksum and structure.
func (ah *AdminHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	valid, err := ah.Store.ValidateIntegrity()
	resp := types.IntegrityResponse{Valid: valid}
	if err != nil {
		resp.Detail = err.Error()
		logger.Warn().Err(err).Msg("Integrity check failed")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ProviderBalance returns the upstream account balance in cents.
func (ah *AdminHandler) ProviderBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	balance, err := ah.Provider.AccountBalance(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch provider balance")
		http.Error(w, "Provider unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance": balance,
	})
}

// Credit tops up a user's wallet directly.
func (ah *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      int64  `json:"user_id" validate:"required,gt=0"`
		Amount      int64  `json:"amount" validate:"required,gt=0"`
		Description string `json:"description"`
	}
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Description == "" {
		req.Description = "Admin credit"
	}
	if err := ah.Wallets.AdminCredit(ctx, req.UserID, req.Amount, req.Description); err != nil {
		logger.Error().Err(err).Int64("user_id", req.UserID).Msg("Admin credit failed")
		http.Error(w, "Credit failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Wallet credited",
		"user_id": req.UserID,
		"amount":  req.Amount,
	})
}
