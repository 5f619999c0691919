package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// Detection pipeline errors
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrClassifierTimeout     = errors.New("classifier call timed out")
	ErrStorageWrite          = errors.New("security event storage write failed")
	ErrLedgerDisabled        = errors.New("ledger sink disabled")
	ErrLedgerSubmit          = errors.New("ledger submission failed")
	ErrInvalidConfig         = errors.New("invalid configuration")
)
