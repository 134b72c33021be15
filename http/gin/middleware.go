// Package gin adapts a txgate.Gate to gin.
package gin

import (
	"github.com/gin-gonic/gin"

	txgate "github.com/x402-foundation/txgate"
	txhttp "github.com/x402-foundation/txgate/http"
)

// Middleware protects the routes it is attached to with gate. The accepted
// hash is available to handlers through c.Get(txhttp.ContextKeyTxHash) and
// txgate.TxHashFromContext(c.Request.Context()).
func Middleware(gate *txgate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := txhttp.RequestID(c.GetHeader(txhttp.HeaderRequestID))
		c.Header(txhttp.HeaderRequestID, requestID)

		ctx, outcome := txhttp.Check(c.Request.Context(), gate, requestID, c.GetHeader(txhttp.HeaderAuthorization))
		if !outcome.Accepted() {
			c.Abort()
			c.PureJSON(outcome.Status(), outcome.Body())
			return
		}

		c.Set(txhttp.ContextKeyTxHash, outcome.TxHash)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TxHash returns the hash that paid for the request.
func TxHash(c *gin.Context) (string, bool) {
	hash := c.GetString(txhttp.ContextKeyTxHash)
	return hash, hash != ""
}
