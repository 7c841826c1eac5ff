package domain

import "time"

// TradeRecord is an append-only log entry for an executed (or simulated)
// trade. It is kept for observability and never consulted by risk checks.
type TradeRecord struct {
	ID            string    `json:"id"`
	SignalID      string    `json:"signal_id"`
	Source        string    `json:"source"`
	TokenID       string    `json:"token_id"`
	ConditionID   string    `json:"condition_id"`
	Group         string    `json:"group"`
	Outcome       string    `json:"outcome"`
	Question      string    `json:"question"`
	AskPrice      float64   `json:"ask_price"`
	Amount        float64   `json:"amount"`
	OrderID       string    `json:"order_id,omitempty"`
	DryRun        bool      `json:"dry_run"`
	LatencyMs     float64   `json:"latency_ms"`
	OpenPositions int       `json:"open_positions"`
	Exposure      float64   `json:"exposure"`
	CreatedAt     time.Time `json:"created_at"`
}
