package domain

import "errors"

// Ledger failures. They are returned wrapped; match with errors.Is.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPositionNotFound    = errors.New("no open position")
	ErrDuplicateTradeID    = errors.New("duplicate trade id")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrPartialClose        = errors.New("sell size does not match position shares")
	ErrPersistence         = errors.New("persistence failed")
)
