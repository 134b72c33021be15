// Package echo adapts a txgate.Gate to echo.
package echo

import (
	"github.com/labstack/echo/v4"

	txgate "github.com/x402-foundation/txgate"
	txhttp "github.com/x402-foundation/txgate/http"
)

// Middleware protects the routes it is attached to with gate.
func Middleware(gate *txgate.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := txhttp.RequestID(req.Header.Get(txhttp.HeaderRequestID))
			c.Response().Header().Set(txhttp.HeaderRequestID, requestID)

			ctx, outcome := txhttp.Check(req.Context(), gate, requestID, req.Header.Get(txhttp.HeaderAuthorization))
			if !outcome.Accepted() {
				body, err := txhttp.MarshalOutcome(outcome)
				if err != nil {
					return err
				}
				return c.JSONBlob(outcome.Status(), body)
			}

			c.Set(txhttp.ContextKeyTxHash, outcome.TxHash)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
