package types

import (
	"errors"
	"strings"
)

// ErrKind is the machine-readable classification of a swap failure.
type ErrKind string

const (
	ErrWalletNotConnected ErrKind = "wallet_not_connected"
	ErrNoRouteFound       ErrKind = "no_route_found"
	ErrSignatureRejected  ErrKind = "signature_rejected"
	ErrInsufficientBal    ErrKind = "insufficient_balance"
	ErrInsufficientAllow  ErrKind = "insufficient_allowance"
	ErrSlippageExceeded   ErrKind = "slippage_exceeded"
	ErrTxExpired          ErrKind = "transaction_expired"
	ErrIdenticalTokens    ErrKind = "identical_tokens"
	ErrUserRejectedTx     ErrKind = "user_rejected"
	ErrUnknownSwapFailure ErrKind = "unknown"
)

// SwapError carries both the classification and a message fit for the UI.
type SwapError struct {
	Kind    ErrKind
	Message string
	cause   error
}

func (e *SwapError) Error() string { return e.Message }
func (e *SwapError) Unwrap() error { return e.cause }

func NewSwapError(kind ErrKind, msg string) *SwapError {
	return &SwapError{Kind: kind, Message: msg}
}

// Sentinels for the common guard failures.
var (
	ErrNoWallet   = NewSwapError(ErrWalletNotConnected, "Wallet not connected")
	ErrNoRoute    = NewSwapError(ErrNoRouteFound, "No route found for this pair")
	ErrSigDenied  = NewSwapError(ErrSignatureRejected, "Signature request was rejected")
	ErrSameTokens = NewSwapError(ErrIdenticalTokens, "Cannot swap identical tokens")
)

// KindOf extracts the classification from any error in a chain.
func KindOf(err error) ErrKind {
	var se *SwapError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrUnknownSwapFailure
}

// DecodeSwapError maps raw provider/contract error text onto the taxonomy.
// Substring matching mirrors what the router contracts actually revert with.
func DecodeSwapError(err error) *SwapError {
	if err == nil {
		return nil
	}
	var se *SwapError
	if errors.As(err, &se) {
		return se
	}

	msg := err.Error()
	wrap := func(kind ErrKind, human string) *SwapError {
		return &SwapError{Kind: kind, Message: human, cause: err}
	}
	switch {
	case strings.Contains(msg, "INSUFFICIENT_OUTPUT_AMOUNT"),
		strings.Contains(msg, "Too little received"):
		return wrap(ErrSlippageExceeded, "Insufficient output amount - try increasing slippage tolerance")
	case strings.Contains(msg, "EXPIRED"),
		strings.Contains(msg, "TransactionDeadlinePassed"),
		strings.Contains(msg, "deadline"):
		return wrap(ErrTxExpired, "Transaction expired - please try again")
	case strings.Contains(msg, "exceeds balance"),
		strings.Contains(msg, "insufficient funds"):
		return wrap(ErrInsufficientBal, "Insufficient token balance")
	case strings.Contains(msg, "exceeds allowance"),
		strings.Contains(msg, "InsufficientAllowance"),
		strings.Contains(msg, "allowance"):
		return wrap(ErrInsufficientAllow, "Insufficient token allowance - please approve first")
	case strings.Contains(msg, "IDENTICAL_ADDRESSES"):
		return wrap(ErrIdenticalTokens, "Cannot swap identical tokens")
	case strings.Contains(msg, "InvalidNonce"),
		strings.Contains(msg, "SignatureExpired"):
		return wrap(ErrSignatureRejected, "Permit signature is stale - please sign again")
	case strings.Contains(msg, "User rejected"),
		strings.Contains(msg, "user denied"):
		return wrap(ErrUserRejectedTx, "Transaction was rejected by user")
	default:
		return wrap(ErrUnknownSwapFailure, "Swap failed - please try again")
	}
}
