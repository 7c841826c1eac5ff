package domain

import (
	"context"
	"strings"
	"time"
)

// OrderSide is BUY or SELL.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderReceipt describes an order accepted by the exchange.
type OrderReceipt struct {
	OrderID  string
	TokenID  string
	Side     OrderSide
	Price    float64 // limit price sent
	Amount   float64 // collateral for buys, shares for sells
	Status   string
	PlacedAt time.Time
}

// MarketResolution is the official outcome of a resolved market.
type MarketResolution struct {
	WinningTokenID string
	Outcome        string // label of the winning outcome, e.g. "Yes"
}

// Wins reports whether holding tokenID pays out under this resolution.
// Without a winning token id it falls back to a "yes" outcome label.
func (r MarketResolution) Wins(tokenID string) bool {
	if r.WinningTokenID != "" {
		return r.WinningTokenID == tokenID
	}
	return strings.EqualFold(r.Outcome, "yes")
}

// Exchange is the boundary to the prediction-market venue. Implementations
// throttle every call through a shared rate limiter. "No data yet" is
// reported through the ok return value; failures are errors. A nil receipt
// with a nil error means the order was simulated (dry run).
type Exchange interface {
	BestAsk(ctx context.Context, tokenID string) (price float64, ok bool, err error)
	MarketBuy(ctx context.Context, tokenID string, amount float64) (*OrderReceipt, error)
	MarketSell(ctx context.Context, tokenID string, shares float64) (*OrderReceipt, error)
	Resolution(ctx context.Context, conditionID string) (res MarketResolution, ok bool, err error)
	Balance(ctx context.Context) (float64, error)
}
