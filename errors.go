package txgate

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	ErrMissingRecipient = errors.New("txgate: recipient is required")
	ErrMissingToken     = errors.New("txgate: token address is required")
	ErrMissingAmount    = errors.New("txgate: amount or price is required")
	ErrInvalidAmount    = errors.New("txgate: invalid amount")
	ErrInvalidAddress   = errors.New("txgate: invalid address")
	ErrInvalidMaxAge    = errors.New("txgate: max age must not be negative")
)

// Payment processing errors
var (
	ErrMissingCredential   = errors.New("txgate: payment credential is required")
	ErrMalformedCredential = errors.New("txgate: malformed payment credential")
	ErrReplay              = errors.New("txgate: transaction already used")
	ErrTransactionNotFound = errors.New("txgate: transaction not found")
	ErrTransactionExpired  = errors.New("txgate: transaction expired")
	ErrPaymentMismatch     = errors.New("txgate: transaction data mismatch")
	ErrChainUnavailable    = errors.New("txgate: chain provider unavailable")
	ErrStoreUnavailable    = errors.New("txgate: idempotency store unavailable")
)

// ErrorKind groups payment errors by how the gate reacts to them.
type ErrorKind int

const (
	KindClientInput ErrorKind = iota + 1
	KindReplay
	KindVerification
	KindInfrastructure
)

func (k ErrorKind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindReplay:
		return "replay"
	case KindVerification:
		return "verification"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Common error codes
const (
	ErrCodeMissingCredential   = "missing_credential"
	ErrCodeMalformedCredential = "malformed_credential"
	ErrCodeReplay              = "transaction_already_used"
	ErrCodeNotFound            = "transaction_not_found"
	ErrCodeExpired             = "transaction_expired"
	ErrCodeMismatch            = "payment_mismatch"
	ErrCodeValidationFailed    = "validation_failed"
)

// PaymentError represents a rejected payment proof
type PaymentError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new payment error
func NewPaymentError(kind ErrorKind, code string, err error) *PaymentError {
	return &PaymentError{
		Kind: kind,
		Code: code,
		Err:  err,
	}
}

// KindOf returns the kind of a payment error, or zero if err is not one.
func KindOf(err error) ErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
