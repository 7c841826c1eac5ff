package domain

import (
	"fmt"
	"time"
)

// Signal asserts that a contract should be bought. Signals are produced by
// feeds (live match listeners, market scanners) and consumed exactly once by
// the execution engine.
type Signal struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`       // producing feed, e.g. "lol" or "scanner"
	TokenID     string    `json:"token_id"`     // outcome token to buy
	ConditionID string    `json:"condition_id"` // market the token belongs to
	Group       string    `json:"group"`        // grouping key for per-group limits (game, category)
	Outcome     string    `json:"outcome"`      // human label: winning team or outcome name
	Question    string    `json:"question"`
	Price       float64   `json:"price"`      // price observed by the producer
	Confidence  float64   `json:"confidence"` // 0-100 match score; 0 means unspecified
	Volume      float64   `json:"volume"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarketID is the key used for single-market and cooldown checks.
func (s Signal) MarketID() string {
	return s.ConditionID
}

// Validate reports whether the signal carries enough information to trade.
func (s Signal) Validate() error {
	if s.TokenID == "" {
		return fmt.Errorf("%w: missing token_id", ErrInvalidSignal)
	}
	if s.ConditionID == "" {
		return fmt.Errorf("%w: missing condition_id", ErrInvalidSignal)
	}
	return nil
}
