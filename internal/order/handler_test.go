package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/seralis/hermes/internal/provider"
	"github.com/seralis/hermes/pkg/types"
)

func newHandlerRouter(t *testing.T) (*chi.Mux, *engineFixture) {
	svc, f := newServiceFixture(t)
	h := NewOrderHandler(svc, nil)

	r := chi.NewRouter()
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{orderID}", h.GetOrder)
	r.Post("/orders/{orderID}/cancel", h.CancelOrder)
	r.Post("/orders/{orderID}/refund", h.RefundOrder)
	r.Get("/catalog/services", h.ListServices)
	return r, f
}

func postJSON(t *testing.T, router *chi.Mux, path string, body interface{}) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrderHandler(t *testing.T) {
	router, f := newHandlerRouter(t)
	require.NoError(t, f.wallets.AdminCredit(context.Background(), 1, 1000, "funding"))

	f.client.On("PurchaseNumber", mock.Anything, 1574, 1).Return(&provider.PurchaseResult{
		OrderID:     "prov-1",
		PhoneNumber: "15551234567",
		Cost:        25,
	}, nil)
	f.client.On("CheckStatus", mock.Anything, "prov-1").Return(statusOf(provider.StatusPending), nil)

	w := postJSON(t, router, "/orders", types.PurchaseRequest{UserID: 1, ServiceID: 1574, CountryID: 1})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp types.PurchaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "prov-1", resp.OrderID)
	assert.Equal(t, "15551234567", resp.PhoneNumber)
	assert.Equal(t, int64(30), resp.Cost)

	f.engine.CancelWatch("prov-1")
}

func TestCreateOrderHandlerValidation(t *testing.T) {
	router, _ := newHandlerRouter(t)

	w := postJSON(t, router, "/orders", map[string]interface{}{"user_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderHandlerInsufficientFunds(t *testing.T) {
	router, _ := newHandlerRouter(t)

	w := postJSON(t, router, "/orders", types.PurchaseRequest{UserID: 1, ServiceID: 1574, CountryID: 1})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestCreateOrderHandlerProviderDown(t *testing.T) {
	router, f := newHandlerRouter(t)
	require.NoError(t, f.wallets.AdminCredit(context.Background(), 1, 1000, "funding"))

	f.client.On("PurchaseNumber", mock.Anything, 1574, 1).Return(nil, provider.ErrProviderUnavailable)

	w := postJSON(t, router, "/orders", types.PurchaseRequest{UserID: 1, ServiceID: 1574, CountryID: 1})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetOrderHandler(t *testing.T) {
	router, f := newHandlerRouter(t)
	f.seedOrder(t, "ord-1")

	req, _ := http.NewRequest(http.MethodGet, "/orders/ord-1?user_id=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Another user cannot see it.
	req, _ = http.NewRequest(http.MethodGet, "/orders/ord-1?user_id=2", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelOrderHandlerConflict(t *testing.T) {
	router, f := newHandlerRouter(t)
	f.seedOrder(t, "ord-1")
	f.client.On("CancelOrder", mock.Anything, "ord-1").Return(nil)

	w := postJSON(t, router, "/orders/ord-1/cancel", types.CancelRequest{UserID: 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/orders/ord-1/cancel", types.CancelRequest{UserID: 1})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRefundOrderHandlerStates(t *testing.T) {
	router, f := newHandlerRouter(t)
	f.seedOrder(t, "ord-1")

	// Pending orders are not refundable.
	w := postJSON(t, router, "/orders/ord-1/refund", types.RefundRequest{UserID: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, router, "/orders/ghost/refund", types.RefundRequest{UserID: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListServicesHandler(t *testing.T) {
	router, _ := newHandlerRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/catalog/services", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Services []provider.Service `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Services)
}
