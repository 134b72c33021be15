// Package http exposes a txgate.Gate as net/http middleware and holds the
// response helpers shared by the framework adapters.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	txgate "github.com/x402-foundation/txgate"
)

const (
	// HeaderAuthorization carries the "Bearer <txHash>" proof.
	HeaderAuthorization = "Authorization"

	// HeaderRequestID correlates a request across logs. An incoming value is
	// reused, otherwise one is generated.
	HeaderRequestID = "X-Request-ID"

	// ContextKeyTxHash is the key framework adapters store the accepted hash
	// under in their own request context.
	ContextKeyTxHash = "txgate.txHash"
)

// RequestID returns the request id from header, or a new random one.
func RequestID(header string) string {
	if header != "" && len(header) <= 128 {
		return header
	}
	return uuid.NewString()
}

// Check runs the gate for one request. It returns the context downstream
// handlers should see, carrying the request id and, once accepted, the
// transaction hash.
func Check(ctx context.Context, gate *txgate.Gate, requestID, authorization string) (context.Context, *txgate.Outcome) {
	ctx = txgate.WithRequestID(ctx, requestID)
	outcome := gate.Verify(ctx, authorization)
	if outcome.Accepted() {
		ctx = txgate.WithTxHash(ctx, outcome.TxHash)
	}
	return ctx, outcome
}

// MarshalOutcome encodes the outcome body. HTML escaping is off so the
// instruction text keeps its literal "<txHash>".
func MarshalOutcome(outcome *txgate.Outcome) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(outcome.Body()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteOutcome writes a rejection as a JSON response.
func WriteOutcome(w http.ResponseWriter, outcome *txgate.Outcome) {
	body, err := MarshalOutcome(outcome)
	if err != nil {
		http.Error(w, `{"error":"`+txgate.MessageInternalError+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(outcome.Status())
	_, _ = w.Write(body)
}

// Middleware protects next with gate. Accepted requests are forwarded
// unmodified apart from their context; everything else is answered here.
func Middleware(gate *txgate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := RequestID(r.Header.Get(HeaderRequestID))
			w.Header().Set(HeaderRequestID, requestID)

			ctx, outcome := Check(r.Context(), gate, requestID, r.Header.Get(HeaderAuthorization))
			if !outcome.Accepted() {
				WriteOutcome(w, outcome)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Handler is a convenience for Middleware(gate)(next).
func Handler(gate *txgate.Gate, next http.Handler) http.Handler {
	return Middleware(gate)(next)
}
