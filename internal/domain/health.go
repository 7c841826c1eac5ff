package domain

import "time"

// SourceState is the circuit-breaker state of a single signal source.
type SourceState string

const (
	SourceClosed   SourceState = "CLOSED"    // healthy, data flowing
	SourceOpen     SourceState = "OPEN"      // failed or stale
	SourceHalfOpen SourceState = "HALF_OPEN" // recovering
)

// AdapterHealth is the health record the breaker keeps per registered source.
type AdapterHealth struct {
	Name                string      `json:"name"`
	State               SourceState `json:"state"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	HalfOpenSuccesses   int         `json:"half_open_successes"`
	LastSuccess         time.Time   `json:"last_success"`
	LastFailure         time.Time   `json:"last_failure"`
	LastEvent           time.Time   `json:"last_event"`
	LastError           string      `json:"last_error,omitempty"`
	TotalEvents         int64       `json:"total_events"`
	TotalFailures       int64       `json:"total_failures"`
}
