package txgate

import "net/http"

// OutcomeKind is the terminal state of one verification attempt.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomePaymentRequired
	OutcomeReplay
	OutcomeNotFound
	OutcomeExpired
	OutcomeMismatch
	OutcomeInternalError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomePaymentRequired:
		return "payment_required"
	case OutcomeReplay:
		return "replay"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Response messages
const (
	MessagePaymentRequired = "Payment required"
	MessageSubmitTxHash    = "Please submit a TxHash"
	MessageAlreadyUsed     = "Transaction already used"
	MessageNotFound        = "Transaction not found in Mempool or Chain"
	MessageExpired         = "Transaction expired (too old)"
	MessageMismatch        = "Transaction data mismatch (Wrong amount/recipient)"
	MessageInternalError   = "Validation failed"
)

// Outcome is the gate's decision for one request. HTTP adapters render it
// with Status and Body, and forward the request only when Accepted.
type Outcome struct {
	Kind   OutcomeKind
	TxHash string
	// Err is a *PaymentError for every kind except OutcomeAccepted.
	Err error

	quote PaymentInfo
}

// Accepted reports whether the request may be forwarded downstream.
func (o *Outcome) Accepted() bool {
	return o.Kind == OutcomeAccepted
}

// Status returns the HTTP status code for the outcome.
func (o *Outcome) Status() int {
	switch o.Kind {
	case OutcomeAccepted:
		return http.StatusOK
	case OutcomePaymentRequired:
		return http.StatusPaymentRequired
	case OutcomeReplay:
		return http.StatusConflict
	case OutcomeNotFound, OutcomeExpired, OutcomeMismatch:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Body returns the JSON response body, or nil when the request is accepted.
func (o *Outcome) Body() any {
	switch o.Kind {
	case OutcomeAccepted:
		return nil
	case OutcomePaymentRequired:
		return PaymentRequiredResponse{
			Error:       MessagePaymentRequired,
			Message:     MessageSubmitTxHash,
			PaymentInfo: o.quote,
		}
	case OutcomeReplay:
		return ErrorResponse{Error: MessageAlreadyUsed}
	case OutcomeNotFound:
		return ErrorResponse{Error: MessageNotFound}
	case OutcomeExpired:
		return ErrorResponse{Error: MessageExpired}
	case OutcomeMismatch:
		return ErrorResponse{Error: MessageMismatch}
	default:
		return ErrorResponse{Error: MessageInternalError}
	}
}
