package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

type walletBalanceResponse struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// WalletClient reads stored-value balances. Debits happen only inside order
// finalization.
type WalletClient struct {
	svc *ServiceClient
}

func NewWalletClient(svc *ServiceClient) *WalletClient {
	return &WalletClient{svc: svc}
}

// Balance sends GET /wallets/{userID}/balance.
func (c *WalletClient) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var resp walletBalanceResponse
	if err := c.svc.DoJSON(ctx, http.MethodGet, "/wallets/"+url.PathEscape(userID)+"/balance", nil, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}
