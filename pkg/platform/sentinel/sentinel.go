package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Token stores and the API plumbing
// return these (optionally wrapped) so the session layer and consumers can
// translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store or remote API
// - ErrExpired: token has expired
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: store or remote API temporarily unavailable
// - ErrClosed: the store or watcher was already shut down
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
)
