package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds means the contract rejected a write because the
	// sender's balance does not cover the payment.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadySold means the contract rejected a purchase of a property
	// that has already been sold.
	ErrAlreadySold = errors.New("property already sold")

	// ErrNoAccount means no wallet account is connected to sign the write.
	ErrNoAccount = errors.New("no wallet account connected")
)

// NetworkError wraps a transport-level failure talking to the ledger RPC.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ledger network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RevertError carries the reason the contract reverted a transaction.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("contract revert: %s", e.Reason)
}
