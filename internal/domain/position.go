package domain

import "time"

// Position is a committed, currently open trade. Positions are owned by the
// risk ledger: created when an order is confirmed, removed when the market
// resolves or the position is stopped out.
type Position struct {
	TokenID     string    `json:"token_id"`
	ConditionID string    `json:"condition_id"`
	Group       string    `json:"group"`
	Outcome     string    `json:"outcome"`
	Question    string    `json:"question,omitempty"`
	Amount      float64   `json:"amount"`    // collateral committed (USDC)
	BuyPrice    float64   `json:"buy_price"` // average fill price
	OpenedAt    time.Time `json:"opened_at"`
}

// Shares returns the number of outcome shares implied by the committed
// collateral at the buy price.
func (p Position) Shares() float64 {
	if p.BuyPrice <= 0 {
		return 0
	}
	return p.Amount / p.BuyPrice
}

// CloseSource tags how a position was closed.
type CloseSource string

const (
	CloseSourceAPI      CloseSource = "api"
	CloseSourcePrice    CloseSource = "price"
	CloseSourceStopLoss CloseSource = "stop-loss"
)
