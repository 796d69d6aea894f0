package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gu-corp/nft-cart-backend/pkg/config"
)

const (
	defaultRequestTimeout       = 30 * time.Second
	defaultMinePollInterval     = 2 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errEndpointRequired = errors.New("exchange: gateway endpoint is required")

// httpClient talks to the exchange gateway REST API. The gateway signs
// and broadcasts the bulk fill; this client only submits orders and
// polls the resulting transaction.
type httpClient struct {
	httpClient   *http.Client
	baseURL      string
	chainID      int
	pollInterval time.Duration
}

// NewHTTPClient returns a Client backed by the exchange gateway at
// cfg.Endpoint. Orders are submitted against chainID.
func NewHTTPClient(cfg config.ExchangeConfig, chainID int) (Client, error) {
	base := strings.TrimSpace(cfg.Endpoint)
	if base == "" {
		return nil, errEndpointRequired
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &httpClient{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(base, "/"),
		chainID:      chainID,
		pollInterval: defaultMinePollInterval,
	}, nil
}

type bulkOrder struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

type bulkExecuteRequest struct {
	Taker   string      `json:"taker"`
	ChainID int         `json:"chain_id"`
	Orders  []bulkOrder `json:"orders"`
}

func (c *httpClient) ExecuteBulk(ctx context.Context, taker string, orders []Order) (string, error) {
	if len(orders) == 0 {
		return "", errors.New("exchange: no orders to fill")
	}

	req := bulkExecuteRequest{
		Taker:   strings.ToLower(taker),
		ChainID: c.chainID,
		Orders:  make([]bulkOrder, 0, len(orders)),
	}
	for _, o := range orders {
		req.Orders = append(req.Orders, bulkOrder{
			Contract: strings.ToLower(o.Contract),
			TokenID:  o.TokenID,
			Price:    o.Price,
			Currency: o.Currency,
		})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("exchange: marshal bulk execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders/bulk-execute", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("exchange: build bulk execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("exchange: execute bulk request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", gatewayError(resp)
	}

	var out struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("exchange: decode bulk execute response: %w", err)
	}
	if out.TxHash == "" {
		return "", errors.New("exchange: gateway returned no transaction hash")
	}
	return out.TxHash, nil
}

func (c *httpClient) WaitMined(ctx context.Context, txHash string) error {
	if txHash == "" {
		return errors.New("exchange: empty transaction hash")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		mined, err := c.pollTransaction(ctx, txHash)
		if err != nil {
			return err
		}
		if mined {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *httpClient) pollTransaction(ctx context.Context, txHash string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transactions/"+url.PathEscape(txHash), nil)
	if err != nil {
		return false, fmt.Errorf("exchange: build transaction status request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("exchange: transaction status request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, gatewayError(resp)
	}

	var out struct {
		Status string `json:"status"`
		Error  struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("exchange: decode transaction status: %w", err)
	}

	switch strings.ToLower(out.Status) {
	case "mined":
		return true, nil
	case "failed":
		if sentinel := sentinelForCode(out.Error.Code); sentinel != nil {
			return false, fmt.Errorf("%w: %s", sentinel, out.Error.Message)
		}
		return false, fmt.Errorf("exchange: transaction failed: %s", out.Error.Message)
	default:
		return false, nil
	}
}

// gatewayError maps a non-success gateway response onto the sentinel
// failures when the error code is recognized.
func gatewayError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))

	var apiErr struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		if sentinel := sentinelForCode(apiErr.Error.Code); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, apiErr.Error.Message)
		}
	}
	return fmt.Errorf("exchange: gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

func sentinelForCode(code string) error {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "PRICE_MISMATCH":
		return ErrPriceMismatch
	case "INSUFFICIENT_BALANCE":
		return ErrInsufficientBalance
	case "USER_DENIED":
		return ErrUserDenied
	default:
		return nil
	}
}
