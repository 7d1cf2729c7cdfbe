// Package binance implements the exchange gateway against the Binance USD-M
// futures REST API. Failures are classified as transient or permanent so
// callers know which calls are worth retrying.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"
)

// Config holds API credentials and endpoint selection.
type Config struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	Timeout   time.Duration
}

// Client is the Binance futures gateway.
type Client struct {
	apiKey    string
	secretKey string
	baseURL   string
	http      *http.Client
	logger    *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := mainnetBaseURL
	if cfg.Testnet {
		baseURL = testnetBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With(slog.String("component", "binance")),
	}
}

// GetMarkPrice returns the current mark price for a symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp premiumIndexResponse
	if err := c.call(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, false, &resp); err != nil {
		return 0, fmt.Errorf("binance: mark price %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(resp.MarkPrice, 64)
	if err != nil {
		return 0, domain.Permanent(fmt.Errorf("binance: parse mark price %q: %w", resp.MarkPrice, err))
	}
	return price, nil
}

// GetPosition returns the live position for a symbol, or nil when the
// exchange reports a flat book for it.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*domain.LivePosition, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp []positionRiskResponse
	if err := c.call(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true, &resp); err != nil {
		return nil, fmt.Errorf("binance: position risk %s: %w", symbol, err)
	}

	for _, pr := range resp {
		if pr.Symbol != symbol {
			continue
		}
		amt, err := strconv.ParseFloat(pr.PositionAmt, 64)
		if err != nil {
			return nil, domain.Permanent(fmt.Errorf("binance: parse position amount %q: %w", pr.PositionAmt, err))
		}
		if amt == 0 {
			return nil, nil
		}
		entry, _ := strconv.ParseFloat(pr.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(pr.MarkPrice, 64)
		if amt < 0 {
			amt = -amt
		}
		return &domain.LivePosition{
			Quantity:   amt,
			EntryPrice: entry,
			MarkPrice:  mark,
		}, nil
	}
	return nil, nil
}

// ClosePosition submits a reduce-only market order against the position. A
// LONG position is closed by selling, a SHORT by buying.
func (c *Client) ClosePosition(ctx context.Context, symbol string, quantity float64, side domain.Side) (domain.CloseFill, error) {
	orderSide := "SELL"
	if side == domain.SideShort {
		orderSide = "BUY"
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", orderSide)
	params.Set("type", "MARKET")
	params.Set("reduceOnly", "true")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("newOrderRespType", "RESULT")

	var resp orderResponse
	if err := c.call(ctx, http.MethodPost, "/fapi/v1/order", params, true, &resp); err != nil {
		return domain.CloseFill{}, fmt.Errorf("binance: close order %s: %w", symbol, err)
	}

	fillPrice, err := strconv.ParseFloat(resp.AvgPrice, 64)
	if err != nil || fillPrice <= 0 {
		return domain.CloseFill{}, domain.Permanent(fmt.Errorf("binance: order %d filled without usable price (%q)", resp.OrderID, resp.AvgPrice))
	}

	c.logger.InfoContext(ctx, "close order filled",
		slog.String("symbol", symbol),
		slog.String("side", orderSide),
		slog.Int64("order_id", resp.OrderID),
		slog.Float64("fill_price", fillPrice),
	)

	return domain.CloseFill{
		FillPrice: fillPrice,
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
	}, nil
}

// call performs one REST request. Signed requests get a timestamp and an
// HMAC-SHA256 signature over the query string, per the Binance API contract.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		params.Set("signature", c.sign(params.Encode()))
	}

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return domain.Permanent(fmt.Errorf("build request: %w", err))
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are worth another attempt.
		return domain.Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// classifyStatus maps an HTTP failure to the retry taxonomy. Rate limits,
// server errors, and gateway timeouts are transient; everything else is a
// request the exchange has rejected and will keep rejecting.
func classifyStatus(status int, body []byte) error {
	var apiErr apiError
	msg := string(body)
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
		msg = fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Msg)
	}

	err := fmt.Errorf("http %d: %s", status, msg)
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= http.StatusInternalServerError:
		return domain.Transient(err)
	default:
		return domain.Permanent(err)
	}
}

// Compile-time interface check.
var _ domain.ExchangeGateway = (*Client)(nil)
