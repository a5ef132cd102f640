package order

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/seralis/hermes/internal/middleware"
	"github.com/seralis/hermes/internal/provider"
	"github.com/seralis/hermes/internal/redis"
	"github.com/seralis/hermes/internal/store"
	"github.com/seralis/hermes/internal/wallet"
	"github.com/seralis/hermes/pkg/types"
)

const idempotencyTTL = 10 * time.Minute

type OrderHandler struct {
	Service *OrderService
	Redis   *redis.Client // nil when redis is disabled
}

func NewOrderHandler(service *OrderService, rdb *redis.Client) *OrderHandler {
	return &OrderHandler{
		Service: service,
		Redis:   rdb,
	}
}

var validate = validator.New()

// CreateOrder purchases a number and starts watching for its SMS. An
// Idempotency-Key header makes retries safe: a replay returns the cached
// response instead of buying a second number.
func (oh *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req types.PurchaseRequest
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode purchase request")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(&req); err != nil {
		logger.Error().Err(err).Msg("Validation error on purchase request")
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && oh.Redis != nil {
		cached, err := oh.Redis.CheckAndSetIdempotency(ctx, idemKey, idempotencyTTL)
		if err != nil {
			if errors.Is(err, redis.ErrKeyExists) {
				http.Error(w, "Request already in progress", http.StatusConflict)
				return
			}
			logger.Warn().Err(err).Msg("Idempotency check failed, proceeding without it")
		} else if cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
	}

	ord, err := oh.Service.Purchase(ctx, req.UserID, req.ServiceID, req.CountryID)
	if err != nil {
		if idemKey != "" && oh.Redis != nil {
			oh.Redis.MarkIdempotencyFailed(ctx, idemKey)
		}
		oh.writePurchaseError(w, logger, err)
		return
	}

	resp := types.PurchaseResponse{
		OrderID:     ord.ID,
		PhoneNumber: ord.PhoneNumber,
		Cost:        ord.Cost,
		ExpiresAt:   ord.ExpiresAt.Format(time.RFC3339),
	}
	body, _ := json.Marshal(resp)

	if idemKey != "" && oh.Redis != nil {
		if err := oh.Redis.MarkIdempotencyComplete(ctx, idemKey, body, idempotencyTTL); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache idempotent response")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(body)
}

func (oh *OrderHandler) writePurchaseError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		http.Error(w, "Insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, ErrUnknownService):
		http.Error(w, "Unknown service", http.StatusBadRequest)
	case errors.Is(err, ErrUnknownCountry):
		http.Error(w, "Unknown country", http.StatusBadRequest)
	case errors.Is(err, provider.ErrProviderUnavailable):
		logger.Warn().Err(err).Msg("Provider unavailable for purchase")
		http.Error(w, "Number provider unavailable", http.StatusBadGateway)
	case errors.Is(err, store.ErrLockTimeout):
		http.Error(w, "Service busy, retry shortly", http.StatusServiceUnavailable)
	default:
		logger.Error().Err(err).Msg("Failed to create order")
		http.Error(w, "Failed to create order", http.StatusInternalServerError)
	}
}

// GetOrder returns a single order owned by the requesting user.
func (oh *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	orderID := chi.URLParam(r, "orderID")

	ord, err := oh.Service.Get(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to load order")
		http.Error(w, "Failed to load order", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ord)
}

// ListOrders returns a user's orders, newest first.
func (oh *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	orders, err := oh.Service.UserOrders(ctx, userID, limit)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to list orders")
		http.Error(w, "Failed to list orders", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id": userID,
		"orders":  orders,
	})
}

// CancelOrder stops an active order and releases the held funds.
func (oh *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req types.CancelRequest
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	orderID := chi.URLParam(r, "orderID")

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	ord, err := oh.Service.RequestCancel(ctx, req.UserID, orderID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, ErrNotCancellable):
			http.Error(w, "Order can no longer be cancelled", http.StatusConflict)
		default:
			logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to cancel order")
			http.Error(w, "Failed to cancel order", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ord)
}

// RefundOrder credits back an order that ended without an SMS.
func (oh *OrderHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	var req types.RefundRequest
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	orderID := chi.URLParam(r, "orderID")

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	ord, err := oh.Service.RequestRefund(ctx, req.UserID, orderID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, ErrNotRefundable):
			http.Error(w, "Order is not eligible for a refund", http.StatusConflict)
		case errors.Is(err, ErrAlreadyRefunded):
			http.Error(w, "Order already refunded", http.StatusConflict)
		default:
			logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to refund order")
			http.Error(w, "Failed to refund order", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ord)
}

// ListServices returns the purchasable service catalog.
func (oh *OrderHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"services": provider.Services,
	})
}

// ListCountries returns supported number origin countries.
func (oh *OrderHandler) ListCountries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"countries": provider.Countries,
	})
}
