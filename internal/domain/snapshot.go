package domain

import "time"

// SnapshotVersion is the current ledger snapshot schema version.
const SnapshotVersion = 1

// LedgerSnapshot is the serializable bundle of session ledger state.
type LedgerSnapshot struct {
	Version    int                  `json:"version"`
	Timestamp  time.Time            `json:"timestamp"`
	SessionPnL float64              `json:"session_pnl"`
	Halted     bool                 `json:"halted"`
	HaltReason string               `json:"halt_reason"`
	Positions  []Position           `json:"positions"`
	DedupKeys  map[string]time.Time `json:"dedup_keys"`
	Cooldowns  map[string]time.Time `json:"cooldowns"`
}
