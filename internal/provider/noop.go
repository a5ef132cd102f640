package provider

import "context"

// NopClient stands in when no API key is configured. Purchases fail
// loudly, status checks stay pending and cancels succeed, so the rest of
// the system can run without an upstream account.
type NopClient struct{}

func NewNopClient() *NopClient {
	return &NopClient{}
}

func (c *NopClient) PurchaseNumber(ctx context.Context, serviceID, countryID int) (*PurchaseResult, error) {
	return nil, ErrProviderUnavailable
}

func (c *NopClient) CheckStatus(ctx context.Context, orderID string) (*StatusResult, error) {
	return &StatusResult{Status: Status{Code: StatusPending, Raw: "1"}}, nil
}

func (c *NopClient) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

func (c *NopClient) AccountBalance(ctx context.Context) (int64, error) {
	return 0, nil
}
