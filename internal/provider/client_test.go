package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seralis/hermes/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := zerolog.Nop()
	return NewHTTPClient(&config.ProviderConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		MarkupPct:   20,
		HTTPTimeout: 2 * time.Second,
	}, &log)
}

func TestPurchaseNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/purchase/sms", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "test-key", r.PostForm.Get("key"))
		assert.Equal(t, "1574", r.PostForm.Get("service"))
		assert.Equal(t, "1", r.PostForm.Get("country"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":1,"order_id":"abc123","number":"15551234567","cost":"0.25"}`))
	})

	result, err := client.PurchaseNumber(context.Background(), 1574, 1)
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.OrderID)
	assert.Equal(t, "15551234567", result.PhoneNumber)
	assert.Equal(t, int64(25), result.Cost)
}

func TestPurchaseNumberRefused(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"message":"out of stock"}`))
	})

	_, err := client.PurchaseNumber(context.Background(), 1574, 1)
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "out of stock")
}

func TestPurchaseNumberHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.PurchaseNumber(context.Background(), 1574, 1)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCheckStatusDelivered(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/sms/check", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("orderid"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Write([]byte(`{"status":2,"sms":"Your code is 482913"}`))
	})

	result, err := client.CheckStatus(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, result.Status.Code)
	assert.Equal(t, "Your code is 482913", result.SMS)
}

func TestCheckStatusStringForm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	})

	result, err := client.CheckStatus(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status.Code)
	assert.Empty(t, result.SMS)
}

func TestCheckStatusRequiresOrderID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.CheckStatus(context.Background(), "")
	require.Error(t, err)
}

func TestCheckStatusTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"status":1}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.CheckStatus(ctx, "abc123")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCancelOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sms/cancel", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "abc123", r.PostForm.Get("orderid"))

		w.Write([]byte(`{"success":1}`))
	})

	require.NoError(t, client.CancelOrder(context.Background(), "abc123"))
}

func TestCancelOrderRefused(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"message":"already delivered"}`))
	})

	err := client.CancelOrder(context.Background(), "abc123")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestAccountBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/request/balance", r.URL.Path)
		w.Write([]byte(`{"balance":"42.50"}`))
	})

	balance, err := client.AccountBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4250), balance)
}

func TestMissingAPIKey(t *testing.T) {
	log := zerolog.Nop()
	client := NewHTTPClient(&config.ProviderConfig{
		BaseURL:     "http://localhost:0",
		HTTPTimeout: time.Second,
	}, &log)

	_, err := client.PurchaseNumber(context.Background(), 1574, 1)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestNopClient(t *testing.T) {
	c := NewNopClient()
	ctx := context.Background()

	_, err := c.PurchaseNumber(ctx, 1574, 1)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	result, err := c.CheckStatus(ctx, "any")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status.Code)

	require.NoError(t, c.CancelOrder(ctx, "any"))

	balance, err := c.AccountBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}
