package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrOrderRejected = errors.New("order rejected")
	ErrSigningFailed = errors.New("signing failed")
	ErrInvalidSignal = errors.New("invalid signal")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrSourceClosed  = errors.New("source closed")
	ErrCorruptState  = errors.New("corrupt state")
	ErrInvalidConfig = errors.New("invalid config")
)
