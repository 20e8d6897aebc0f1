package engine

import "errors"

var (
	// ErrTxConflict indicates a transaction lost a race with a concurrent
	// commit and can be retried from scratch.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrWinnerRequired indicates settlement was requested without a
	// winning option that belongs to the market.
	ErrWinnerRequired = errors.New("winning option is required and must belong to the market")
)
