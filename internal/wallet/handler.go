package wallet

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/seralis/hermes/internal/middleware"
	"github.com/seralis/hermes/pkg/types"
)

type WalletHandler struct {
	Service *WalletService
}

func NewWalletHandler(service *WalletService) *WalletHandler {
	return &WalletHandler{
		Service: service,
	}
}

var validate = validator.New()

// GetWallet returns the wallet summary for a user.
func (wh *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	summary, err := wh.Service.Summary(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load wallet summary")
		http.Error(w, "Failed to load wallet", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// GetHistory returns a user's transaction log, newest first.
func (wh *WalletHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	history, err := wh.Service.History(ctx, userID, limit)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load transaction history")
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":      userID,
		"transactions": history,
	})
}

// CreateDeposit opens a pending deposit request for admin approval.
func (wh *WalletHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req types.DepositRequest
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode deposit request")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(&req); err != nil {
		logger.Error().Err(err).Msg("Validation error on deposit request")
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	dep, err := wh.Service.CreateDepositRequest(ctx, req.UserID, req.Amount, req.Method, req.Reference)
	if err != nil {
		if errors.Is(err, ErrDepositOutOfBounds) {
			http.Error(w, "Deposit amount out of bounds", http.StatusBadRequest)
			return
		}
		logger.Error().Err(err).Int64("user_id", req.UserID).Msg("Failed to create deposit request")
		http.Error(w, "Failed to create deposit request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(types.DepositResponse{
		DepositID: dep.ID,
		Amount:    dep.Amount,
		ExpiresAt: dep.ExpiresAt,
	})
	logger.Info().Str("deposit_id", dep.ID).Int64("user_id", req.UserID).Msg("Deposit request created")
}
