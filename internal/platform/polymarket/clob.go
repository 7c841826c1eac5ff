// Package polymarket is the exchange boundary: a REST client for the
// Polymarket CLOB implementing domain.Exchange.
package polymarket

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kaelsz/Polymarket-Sniper/internal/crypto"
	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// Marketable limit prices: a buy at 0.999 and a sell at 0.001 cross the
// whole book.
var (
	buyLimit  = decimal.RequireFromString("0.999")
	sellLimit = decimal.RequireFromString("0.001")
	baseUnits = decimal.New(1, 6) // USDC and outcome shares have 6 decimals
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Limiter throttles outbound calls.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config configures the client.
type Config struct {
	BaseURL       string // e.g. https://clob.polymarket.com
	DryRun        bool
	Timeout       time.Duration
	SignatureType int    // 0 EOA
	Funder        string // maker address when trading through a proxy wallet
	OrderType     string // FOK by default
}

// Client implements domain.Exchange. The signer may be nil in dry-run
// mode; read endpoints need no credentials.
type Client struct {
	cfg     Config
	http    *http.Client
	signer  *crypto.Signer
	creds   crypto.APICreds
	limiter Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient builds a CLOB client. A nil limiter disables throttling.
func NewClient(cfg Config, signer *crypto.Signer, creds crypto.APICreds, limiter Limiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://clob.polymarket.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "FOK"
	}
	if limiter == nil {
		limiter = unlimited{}
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		signer:  signer,
		creds:   creds,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "clob")),
		now:     time.Now,
	}
}

// CanTrade reports whether the client holds everything needed to post
// orders.
func (c *Client) CanTrade() bool {
	return c.signer != nil && c.creds.Valid()
}

// BestAsk returns the lowest ask for tokenID. ok is false when the book
// has no asks.
func (c *Client) BestAsk(ctx context.Context, tokenID string) (float64, bool, error) {
	var book bookResponse
	if err := c.getJSON(ctx, "/book?token_id="+url.QueryEscape(tokenID), &book); err != nil {
		return 0, false, fmt.Errorf("polymarket/clob: book %s: %w", tokenID, err)
	}
	best, ok := book.bestAsk()
	if !ok {
		return 0, false, nil
	}
	return best.InexactFloat64(), true, nil
}

// MarketBuy spends amount collateral on tokenID at the marketable limit.
func (c *Client) MarketBuy(ctx context.Context, tokenID string, amount float64) (*domain.OrderReceipt, error) {
	if c.cfg.DryRun {
		c.logger.WarnContext(ctx, "[DRY RUN] would buy", slog.String("token_id", tokenID), slog.Float64("amount", amount))
		return nil, nil
	}
	collateral := decimal.NewFromFloat(amount).RoundDown(2)
	shares := collateral.DivRound(buyLimit, 4)
	return c.placeOrder(ctx, tokenID, domain.OrderSideBuy, buyLimit, collateral, shares, amount)
}

// MarketSell sells shares of tokenID at the marketable limit.
func (c *Client) MarketSell(ctx context.Context, tokenID string, shares float64) (*domain.OrderReceipt, error) {
	if c.cfg.DryRun {
		c.logger.WarnContext(ctx, "[DRY RUN] would sell", slog.String("token_id", tokenID), slog.Float64("shares", shares))
		return nil, nil
	}
	size := decimal.NewFromFloat(shares).RoundDown(2)
	proceeds := size.Mul(sellLimit).RoundDown(4)
	return c.placeOrder(ctx, tokenID, domain.OrderSideSell, sellLimit, size, proceeds, shares)
}

// Resolution reports the outcome of a closed market. An open market
// returns ok=false.
func (c *Client) Resolution(ctx context.Context, conditionID string) (domain.MarketResolution, bool, error) {
	var m marketResponse
	if err := c.getJSON(ctx, "/markets/"+url.PathEscape(conditionID), &m); err != nil {
		return domain.MarketResolution{}, false, fmt.Errorf("polymarket/clob: market %s: %w", conditionID, err)
	}
	if !bool(m.Closed) && !bool(m.Resolved) {
		return domain.MarketResolution{}, false, nil
	}
	for _, tok := range m.Tokens {
		if tok.Winner {
			return domain.MarketResolution{WinningTokenID: tok.TokenID, Outcome: tok.Outcome}, true, nil
		}
	}
	// Closed but no winner flagged yet.
	return domain.MarketResolution{}, false, nil
}

// Balance returns the collateral balance in dollars.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if !c.CanTrade() {
		return 0, fmt.Errorf("polymarket/clob: balance: %w", domain.ErrUnauthorized)
	}
	q := url.Values{"asset_type": {"COLLATERAL"}, "signature_type": {strconv.Itoa(c.cfg.SignatureType)}}
	body, err := c.do(ctx, http.MethodGet, "/balance-allowance", "?"+q.Encode(), nil, true)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: balance: %w", err)
	}
	var bal balanceResponse
	if err := json.Unmarshal(body, &bal); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	return bal.Balance.Div(baseUnits).InexactFloat64(), nil
}

// DeriveAPIKey runs the L1 flow against /auth/derive-api-key and keeps the
// returned credentials.
func (c *Client) DeriveAPIKey(ctx context.Context) (crypto.APICreds, error) {
	if c.signer == nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: %w", domain.ErrUnauthorized)
	}
	ts := strconv.FormatInt(c.now().Unix(), 10)
	sig, err := c.signer.SignAuth(ts, 0)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: sign auth: %w: %v", domain.ErrSigningFailed, err)
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return crypto.APICreds{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	body, err := c.send(req)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	var creds crypto.APICreds
	if err := json.Unmarshal(body, &creds); err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: decode api key: %w", err)
	}
	if !creds.Valid() {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: incomplete credentials: %w", domain.ErrUnauthorized)
	}
	c.creds = creds
	c.logger.InfoContext(ctx, "api key derived", slog.String("key", creds.String()))
	return creds, nil
}

func (c *Client) placeOrder(ctx context.Context, tokenID string, side domain.OrderSide, limit, makerAmt, takerAmt decimal.Decimal, requested float64) (*domain.OrderReceipt, error) {
	if !c.CanTrade() {
		return nil, fmt.Errorf("polymarket/clob: %s %s: no api credentials: %w", side, tokenID, domain.ErrUnauthorized)
	}
	if !makerAmt.IsPositive() || !takerAmt.IsPositive() {
		return nil, fmt.Errorf("polymarket/clob: %s %s: amount %.6f too small: %w", side, tokenID, requested, domain.ErrOrderRejected)
	}

	maker := c.signer.Address().Hex()
	if c.cfg.Funder != "" {
		maker = c.cfg.Funder
	}
	sideCode := crypto.SideBuy
	if side == domain.OrderSideSell {
		sideCode = crypto.SideSell
	}
	u := uuid.New()
	salt := int64(binary.BigEndian.Uint64(u[:8]) >> 12) // stays exact in a JSON number

	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         maker,
		Signer:        c.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmt.Mul(baseUnits).Truncate(0).String(),
		TakerAmount:   takerAmt.Mul(baseUnits).Truncate(0).String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideCode,
		SignatureType: c.cfg.SignatureType,
	}
	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}

	reqBody := orderRequest{
		Order: signedOrder{
			Salt:          salt,
			Maker:         payload.Maker,
			Signer:        payload.Signer,
			Taker:         payload.Taker,
			TokenID:       payload.TokenID,
			MakerAmount:   payload.MakerAmount,
			TakerAmount:   payload.TakerAmount,
			Expiration:    payload.Expiration,
			Nonce:         payload.Nonce,
			FeeRateBps:    payload.FeeRateBps,
			Side:          string(side),
			SignatureType: payload.SignatureType,
			Signature:     sig,
		},
		Owner:     c.creds.Key,
		OrderType: c.cfg.OrderType,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: marshal order: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/order", "", raw, true)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	var res orderResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, res.ErrorMsg)
	}

	c.logger.InfoContext(ctx, "order posted",
		slog.String("order_id", res.OrderID),
		slog.String("side", string(side)),
		slog.String("token_id", tokenID),
		slog.Float64("amount", requested),
		slog.String("status", res.Status),
	)
	return &domain.OrderReceipt{
		OrderID:  res.OrderID,
		TokenID:  tokenID,
		Side:     side,
		Price:    limit.InexactFloat64(),
		Amount:   requested,
		Status:   res.Status,
		PlacedAt: c.now(),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, pathAndQuery string, out any) error {
	body, err := c.do(ctx, http.MethodGet, pathAndQuery, "", nil, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do acquires the limiter, builds the request and, when auth is set,
// signs path+body with the L2 headers. query is not part of the signed
// path.
func (c *Client) do(ctx context.Context, method, path, query string, body []byte, auth bool) ([]byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path+query, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		for k, v := range c.creds.L2Headers(c.signer.Address().Hex(), method, path, string(body), c.now().Unix()) {
			req.Header.Set(k, v)
		}
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes onto domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

type unlimited struct{}

func (unlimited) Acquire(ctx context.Context) error { return ctx.Err() }

var _ domain.Exchange = (*Client)(nil)
