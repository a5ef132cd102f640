package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/seralis/hermes/internal/config"
)

var (
	// ErrProviderUnavailable covers failed, timed-out or rejected upstream
	// calls. The caller decides whether to retry within its budget.
	ErrProviderUnavailable = errors.New("provider: upstream unavailable")
)

// PurchaseResult is a successfully provisioned number.
type PurchaseResult struct {
	OrderID     string
	PhoneNumber string
	Cost        int64 // cents, as reported by the provider
}

// StatusResult is one poll of an in-flight order.
type StatusResult struct {
	Status Status
	SMS    string
}

// Client is the upstream number-provisioning boundary. All calls may time
// out, error or return ambiguous statuses and must not be assumed idempotent.
type Client interface {
	PurchaseNumber(ctx context.Context, serviceID, countryID int) (*PurchaseResult, error)
	CheckStatus(ctx context.Context, orderID string) (*StatusResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	AccountBalance(ctx context.Context) (int64, error)
}

// HTTPClient talks to the SMS pool API.
type HTTPClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	log        *zerolog.Logger
}

func NewHTTPClient(cfg *config.ProviderConfig, log *zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     log,
	}
}

func (c *HTTPClient) PurchaseNumber(ctx context.Context, serviceID, countryID int) (*PurchaseResult, error) {
	params := url.Values{}
	params.Set("service", strconv.Itoa(serviceID))
	params.Set("country", strconv.Itoa(countryID))

	respBody, err := c.doRequest(ctx, http.MethodPost, "/purchase/sms", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success int        `json:"success"`
		OrderID string     `json:"order_id"`
		Number  string     `json:"number"`
		Cost    flexNumber `json:"cost"`
		Message string     `json:"message"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse purchase response: %v", ErrProviderUnavailable, err)
	}

	if resp.Success != 1 {
		c.log.Warn().Str("message", resp.Message).Msg("provider refused purchase")
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, resp.Message)
	}
	if resp.OrderID == "" {
		return nil, fmt.Errorf("%w: purchase response missing order id", ErrProviderUnavailable)
	}

	return &PurchaseResult{
		OrderID:     resp.OrderID,
		PhoneNumber: resp.Number,
		Cost:        dollarsToCents(resp.Cost),
	}, nil
}

func (c *HTTPClient) CheckStatus(ctx context.Context, orderID string) (*StatusResult, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}

	params := url.Values{}
	params.Set("orderid", orderID)

	respBody, err := c.doRequest(ctx, http.MethodGet, "/sms/check", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status json.RawMessage `json:"status"`
		SMS    string          `json:"sms"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse status response: %v", ErrProviderUnavailable, err)
	}

	status := DecodeStatus(resp.Status)
	if status.Code == StatusUnknown {
		c.log.Warn().Str("order_id", orderID).Str("raw", status.Raw).Msg("unknown provider status")
	}

	return &StatusResult{Status: status, SMS: resp.SMS}, nil
}

func (c *HTTPClient) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("orderid", orderID)

	respBody, err := c.doRequest(ctx, http.MethodPost, "/sms/cancel", params)
	if err != nil {
		return err
	}

	var resp struct {
		Success int    `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("%w: failed to parse cancel response: %v", ErrProviderUnavailable, err)
	}
	if resp.Success != 1 {
		return fmt.Errorf("%w: cancel refused: %s", ErrProviderUnavailable, resp.Message)
	}

	c.log.Info().Str("order_id", orderID).Msg("provider order cancelled")
	return nil
}

func (c *HTTPClient) AccountBalance(ctx context.Context) (int64, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/request/balance", url.Values{})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Balance flexNumber `json:"balance"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("%w: failed to parse balance response: %v", ErrProviderUnavailable, err)
	}
	return dollarsToCents(resp.Balance), nil
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: API key not configured", ErrProviderUnavailable)
	}
	params.Set("key", c.apiKey)

	var req *http.Request
	var err error
	fullURL := c.baseURL + path

	switch method {
	case http.MethodGet:
		req, err = http.NewRequestWithContext(ctx, method, fullURL+"?"+params.Encode(), nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		c.log.Error().Err(err).
			Str("method", method).
			Str("path", path).
			Int64("duration_ms", duration).
			Msg("provider request failed")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error().Err(err).
			Str("method", method).
			Str("path", path).
			Int64("duration_ms", duration).
			Msg("failed to read provider response")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Int64("duration_ms", duration).
			Str("body", truncate(string(respBody), 200)).
			Msg("provider API error response")
		return nil, fmt.Errorf("%w: status=%d", ErrProviderUnavailable, resp.StatusCode)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", method).
		Str("path", path).
		Int64("duration_ms", duration).
		Msg("provider API request completed")

	return respBody, nil
}

// flexNumber tolerates the provider sending amounts either bare or quoted.
type flexNumber string

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	*f = flexNumber(strings.Trim(string(b), `"`))
	return nil
}

func dollarsToCents(n flexNumber) int64 {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
