package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrInvalidID    = errors.New("invalid ID format")
)

// ValidationError represents a request that can never succeed as given
// (bad option, non-positive stake, deadline passed). Terminal, returned
// verbatim to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed [%s]: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientFundsError represents a stake exceeding the user's balance
type InsufficientFundsError struct {
	Balance int64
	Needed  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, needed %d", e.Balance, e.Needed)
}

// NewInsufficientFundsError creates a new insufficient funds error
func NewInsufficientFundsError(balance, needed int64) *InsufficientFundsError {
	return &InsufficientFundsError{Balance: balance, Needed: needed}
}

// MarketClosedError represents a wager against a market that has already
// reached a terminal state, including one that lost the race to a
// concurrent settlement. Clients should refresh and retry elsewhere.
type MarketClosedError struct {
	MarketID string
	Status   MarketStatus
}

func (e *MarketClosedError) Error() string {
	return fmt.Sprintf("market closed [%s]: status %s", e.MarketID, e.Status)
}

// NewMarketClosedError creates a new market closed error
func NewMarketClosedError(marketID string, status MarketStatus) *MarketClosedError {
	return &MarketClosedError{MarketID: marketID, Status: status}
}

// ConcurrencyConflictError represents an optimistic-concurrency conflict
// that survived the engine's bounded retries. Transient; callers may retry.
type ConcurrencyConflictError struct {
	Attempts int
	Cause    error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict after %d attempts", e.Attempts)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Cause
}

// NewConcurrencyConflictError creates a new concurrency conflict error
func NewConcurrencyConflictError(attempts int, cause error) *ConcurrencyConflictError {
	return &ConcurrencyConflictError{Attempts: attempts, Cause: cause}
}

// PersistenceError represents an underlying I/O failure
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a new persistence error
func NewPersistenceError(op string, cause error) *PersistenceError {
	return &PersistenceError{Op: op, Cause: cause}
}
