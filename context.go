package txgate

import "context"

type contextKey int

const (
	txHashKey contextKey = iota
	requestIDKey
)

// WithTxHash returns a context carrying the accepted transaction hash.
func WithTxHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, txHashKey, hash)
}

// TxHashFromContext returns the transaction hash that paid for the request.
func TxHashFromContext(ctx context.Context) (string, bool) {
	hash, ok := ctx.Value(txHashKey).(string)
	return hash, ok
}

// WithRequestID returns a context carrying a request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id set by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
