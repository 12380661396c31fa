package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConversion         = errors.New("conversion error")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrBelowDustThreshold = errors.New("below dust threshold")
	ErrSigning            = errors.New("signing error")
	ErrNetwork            = errors.New("network error")
	ErrRoundFailed        = errors.New("round failed")
	ErrEventTimeout       = errors.New("timed out waiting for round event")

	ErrWalletNotFound = errors.New("wallet not found")
	ErrInvalidRequest = errors.New("invalid request")
)

func NewConversionError(field string, err error) error {
	return fmt.Errorf("%w: invalid %s: %w", ErrConversion, field, err)
}

func NewInvalidRequestError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func NewSigningError(err error) error {
	if errors.Is(err, ErrSigning) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSigning, err)
}

func NewNetworkError(op string, err error) error {
	if errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
}

// ProtocolViolationError reports an event that does not fit the round state.
type ProtocolViolationError struct {
	State  string
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrProtocolViolation, e.State, e.Reason)
}

func (e *ProtocolViolationError) Unwrap() error {
	return ErrProtocolViolation
}

// InsufficientFundsError reports the shortfall of a selection.
type InsufficientFundsError struct {
	Available uint64
	Required  uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s: available %d, required %d", ErrInsufficientFunds, e.Available, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

func NewBelowDustError(what string, amount, dust uint64) error {
	return fmt.Errorf("%w: %s %d < %d", ErrBelowDustThreshold, what, amount, dust)
}
