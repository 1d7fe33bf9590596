// Package alice implements the brokerage gateway against the Alice
// Blue ANT REST API.
package alice

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/instruments"
	"github.com/rtpalgo/terminal/internal/types"
)

// DefaultBaseURL is the production ANT API endpoint.
const DefaultBaseURL = "https://ant.aliceblueonline.com/rest/AliceBlueAPIService/api"

// Config holds client settings.
type Config struct {
	BaseURL         string
	CredentialsFile string
	RequestTimeout  time.Duration
}

// DefaultConfig returns default client settings.
func DefaultConfig(credentialsFile string) Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		CredentialsFile: credentialsFile,
		RequestTimeout:  10 * time.Second,
	}
}

// Credentials is the on-disk credentials file.
type Credentials struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// Client talks to the ANT API. It implements gateway.Gateway; wrap it
// in a gateway.Placer for retries and throttling.
type Client struct {
	cfg       Config
	creds     Credentials
	contracts *instruments.Store
	http      *http.Client
	logger    *slog.Logger

	sessionID string
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a client. Login must be called before any order
// call.
func NewClient(cfg Config, contracts *instruments.Store, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.UserID == "" || creds.APIKey == "" {
		return nil, fmt.Errorf("credentials file must carry user_id and api_key")
	}

	return &Client{
		cfg:       cfg,
		creds:     creds,
		contracts: contracts,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		logger:    logger,
	}, nil
}

// Login performs the two-step session handshake: fetch the encryption
// key, then trade it plus the hashed api key for a session id.
func (c *Client) Login(ctx context.Context) error {
	var encResp struct {
		EncKey string `json:"encKey"`
		Emsg   string `json:"emsg"`
	}
	err := c.post(ctx, "/customer/getAPIEncpkey",
		map[string]string{"userId": c.creds.UserID}, &encResp)
	if err != nil {
		return fmt.Errorf("fetch encryption key: %w", err)
	}
	if encResp.EncKey == "" {
		return fmt.Errorf("%w: %s", types.ErrNotConnected, encResp.Emsg)
	}

	sum := sha256.Sum256([]byte(c.creds.UserID + c.creds.APIKey + encResp.EncKey))
	var sidResp struct {
		SessionID string `json:"sessionID"`
		Emsg      string `json:"emsg"`
	}
	err = c.post(ctx, "/customer/getUserSID", map[string]string{
		"userId":   c.creds.UserID,
		"userData": hex.EncodeToString(sum[:]),
	}, &sidResp)
	if err != nil {
		return fmt.Errorf("fetch session id: %w", err)
	}
	if sidResp.SessionID == "" {
		return fmt.Errorf("%w: %s", types.ErrNotConnected, sidResp.Emsg)
	}

	c.sessionID = sidResp.SessionID
	c.logger.Info("brokerage login successful", "user_id", c.creds.UserID)
	return nil
}

// SessionKey returns the "user session" pair used by the streaming
// feed for its own handshake.
func (c *Client) SessionKey() (userID, sessionID string) {
	return c.creds.UserID, c.sessionID
}

type orderPayload struct {
	Complexity    string `json:"complexty"`
	DiscQty       string `json:"discqty"`
	Exchange      string `json:"exch"`
	ProductCode   string `json:"pCode"`
	PriceType     string `json:"prctyp"`
	Price         string `json:"price"`
	Quantity      int    `json:"qty"`
	Retention     string `json:"ret"`
	SymbolID      string `json:"symbol_id"`
	TradingSymbol string `json:"trading_symbol"`
	TransType     string `json:"transtype"`
	TriggerPrice  string `json:"trigPrice"`
}

func (c *Client) payload(ctx context.Context, req gateway.OrderRequest) (orderPayload, error) {
	contract, err := c.contracts.ByTradingSymbol(ctx, req.Instrument)
	if err != nil {
		return orderPayload{}, err
	}

	priceType := "MKT"
	price := ""
	if req.Kind() == types.OrderLimit {
		priceType = "L"
		price = req.LimitPrice.String()
	}

	return orderPayload{
		Complexity:    "regular",
		DiscQty:       "0",
		Exchange:      contract.Exchange,
		ProductCode:   req.Product.String(),
		PriceType:     priceType,
		Price:         price,
		Quantity:      req.Quantity,
		Retention:     "DAY",
		SymbolID:      fmt.Sprintf("%d", contract.Token),
		TradingSymbol: contract.TradingSymbol,
		TransType:     req.Side.String(),
		TriggerPrice:  "",
	}, nil
}

// Place submits one order and returns the brokerage order number.
func (c *Client) Place(ctx context.Context, req gateway.OrderRequest) (string, error) {
	payload, err := c.payload(ctx, req)
	if err != nil {
		return "", err
	}

	var resp []struct {
		Stat        string `json:"stat"`
		OrderNumber string `json:"NOrdNo"`
		Emsg        string `json:"emsg"`
	}
	if err := c.post(ctx, "/placeOrder/executePlaceOrder", []orderPayload{payload}, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 || resp[0].Stat != "Ok" {
		msg := "empty response"
		if len(resp) > 0 {
			msg = resp[0].Emsg
		}
		return "", fmt.Errorf("%w: %s", types.ErrPlacementFailed, msg)
	}
	return resp[0].OrderNumber, nil
}

// Modify rewrites price, quantity and order type of a resting order.
func (c *Client) Modify(ctx context.Context, orderID string, req gateway.OrderRequest) error {
	payload, err := c.payload(ctx, req)
	if err != nil {
		return err
	}

	body := map[string]any{
		"transtype":       payload.TransType,
		"discqty":         payload.DiscQty,
		"exch":            payload.Exchange,
		"trading_symbol":  payload.TradingSymbol,
		"nestOrderNumber": orderID,
		"prctyp":          payload.PriceType,
		"price":           payload.Price,
		"qty":             payload.Quantity,
		"trigPrice":       payload.TriggerPrice,
		"pCode":           payload.ProductCode,
	}

	var resp struct {
		Stat string `json:"stat"`
		Emsg string `json:"emsg"`
	}
	if err := c.post(ctx, "/placeOrder/modifyOrder", body, &resp); err != nil {
		return err
	}
	if resp.Stat != "Ok" {
		return fmt.Errorf("%w: %s", types.ErrModificationFailed, resp.Emsg)
	}
	return nil
}

// Cancel withdraws a resting order.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	hist, err := c.history(ctx, orderID)
	if err != nil {
		return err
	}

	body := map[string]string{
		"exch":            hist.Exchange,
		"nestOrderNumber": orderID,
		"trading_symbol":  hist.TradingSymbol,
	}

	var resp struct {
		Stat string `json:"stat"`
		Emsg string `json:"emsg"`
	}
	if err := c.post(ctx, "/placeOrder/cancelOrder", body, &resp); err != nil {
		return err
	}
	if resp.Stat != "Ok" {
		return fmt.Errorf("%w: %s", types.ErrCancellationFailed, resp.Emsg)
	}
	return nil
}

type orderHistory struct {
	Stat          string `json:"stat"`
	Status        string `json:"Status"`
	RejectReason  string `json:"RejReason"`
	Exchange      string `json:"Exchange"`
	TradingSymbol string `json:"Trsym"`
	Emsg          string `json:"Emsg"`
}

func (c *Client) history(ctx context.Context, orderID string) (orderHistory, error) {
	var resp []orderHistory
	err := c.post(ctx, "/placeOrder/orderHistory",
		map[string]string{"nestOrderNumber": orderID}, &resp)
	if err != nil {
		return orderHistory{}, err
	}
	if len(resp) == 0 {
		return orderHistory{}, fmt.Errorf("%w: order %s", types.ErrStatusUnavailable, orderID)
	}
	// The first record is the most recent state.
	h := resp[0]
	if h.Emsg != "" {
		return orderHistory{}, fmt.Errorf("%w: %s", types.ErrStatusUnavailable, h.Emsg)
	}
	return h, nil
}

// OrderStatus queries the order's most recent state.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (gateway.OrderStatus, error) {
	hist, err := c.history(ctx, orderID)
	if err != nil {
		return gateway.OrderStatus{State: gateway.OrderUnknown}, err
	}

	switch strings.ToLower(hist.Status) {
	case "complete":
		return gateway.OrderStatus{State: gateway.OrderComplete}, nil
	case "rejected":
		return gateway.OrderStatus{State: gateway.OrderRejected, RejectReason: hist.RejectReason}, nil
	case "cancelled":
		return gateway.OrderStatus{State: gateway.OrderRejected, RejectReason: "cancelled"}, nil
	default:
		return gateway.OrderStatus{State: gateway.OrderOpen}, nil
	}
}

// Margin fetches the RMS limits and account id.
func (c *Client) Margin(ctx context.Context) (gateway.MarginSummary, error) {
	var limits []struct {
		CashMargin     string `json:"cashmarginavailable"`
		Credits        string `json:"credits"`
		ExposureMargin string `json:"exposuremargin"`
		Net            string `json:"net"`
		GrossExposure  string `json:"grossexposurevalue"`
	}
	if err := c.post(ctx, "/limits/getRmsLimits", map[string]string{}, &limits); err != nil {
		return gateway.MarginSummary{}, err
	}
	if len(limits) == 0 {
		return gateway.MarginSummary{}, fmt.Errorf("empty limits response")
	}

	var profile struct {
		AccountID string `json:"accountId"`
	}
	if err := c.post(ctx, "/customer/accountDetails", map[string]string{}, &profile); err != nil {
		c.logger.Warn("account details query failed", "err", err)
	}

	return gateway.MarginSummary{
		AccountID:      profile.AccountID,
		CashMargin:     parseMoney(limits[0].CashMargin),
		Credits:        parseMoney(limits[0].Credits),
		ExposureMargin: parseMoney(limits[0].ExposureMargin),
		Net:            parseMoney(limits[0].Net),
		GrossExposure:  parseMoney(limits[0].GrossExposure),
	}, nil
}

func parseMoney(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.UserID+" "+c.sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotConnected, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
