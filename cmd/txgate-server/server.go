package main

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	ginfw "github.com/gin-gonic/gin"
	"go.uber.org/zap"

	txgate "github.com/x402-foundation/txgate"
	"github.com/x402-foundation/txgate/config"
	txhttp "github.com/x402-foundation/txgate/http"
	"github.com/x402-foundation/txgate/http/gin"
	"github.com/x402-foundation/txgate/idempotency"
)

// WeatherReport is the demo payload behind GET /weather.
type WeatherReport struct {
	Location    string `json:"location"`
	Weather     string `json:"weather"`
	Temperature int    `json:"temperature"`
	Note        string `json:"note"`
}

// newRouter wires the gated routes, health check and optional admin
// endpoint onto a gin engine.
func newRouter(cfg *config.Config, gates []config.RouteGate, store idempotency.Store, logger *zap.Logger) *ginfw.Engine {
	r := ginfw.New()
	r.Use(ginfw.Recovery())
	r.Use(accessLog(logger))

	for _, rg := range gates {
		handler := paidHandler
		if rg.Path == "/weather" {
			handler = weatherHandler
		}
		r.Handle(rg.Method, rg.Path, gin.Middleware(rg.Gate), handler)
	}

	r.GET("/healthz", func(c *ginfw.Context) {
		c.JSON(http.StatusOK, ginfw.H{
			"status":    "ok",
			"networkId": cfg.Chain.NetworkID,
			"routes":    len(gates),
		})
	})

	if cfg.Admin.Enabled {
		r.GET("/claims/:hash", adminAuth(cfg.Admin.Token), claimHandler(store, cfg.Store.KeyPrefix))
	}
	return r
}

func weatherHandler(c *ginfw.Context) {
	c.JSON(http.StatusOK, ginfw.H{
		"report": WeatherReport{
			Location:    "Vietnam",
			Weather:     "sunny",
			Temperature: 70,
			Note:        "Served instantly via Optimistic Payment (TxHash)",
		},
	})
}

func paidHandler(c *ginfw.Context) {
	hash, _ := gin.TxHash(c)
	c.JSON(http.StatusOK, ginfw.H{
		"message": "Payment accepted",
		"txHash":  hash,
	})
}

// claimHandler reports the idempotency state of a transaction hash.
func claimHandler(store idempotency.Store, keyPrefix string) ginfw.HandlerFunc {
	return func(c *ginfw.Context) {
		hash, err := txgate.ParseCredential("Bearer " + c.Param("hash"))
		if err != nil {
			c.JSON(http.StatusBadRequest, txgate.ErrorResponse{Error: "Invalid transaction hash"})
			return
		}

		state, err := store.State(c.Request.Context(), keyPrefix+hash)
		if err != nil {
			c.JSON(http.StatusInternalServerError, txgate.ErrorResponse{Error: "Store unavailable"})
			return
		}
		if state == idempotency.StateNone {
			state = "none"
		}
		c.JSON(http.StatusOK, ginfw.H{
			"txHash": hash,
			"state":  state,
		})
	}
}

func adminAuth(token string) ginfw.HandlerFunc {
	return func(c *ginfw.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader(txhttp.HeaderAuthorization), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, txgate.ErrorResponse{Error: "Unauthorized"})
			return
		}
		c.Next()
	}
}

func accessLog(logger *zap.Logger) ginfw.HandlerFunc {
	return func(c *ginfw.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.Writer.Header().Get(txhttp.HeaderRequestID)),
		)
	}
}

// auditAccepted records every accepted payment on the audit logger.
func auditAccepted(gates []config.RouteGate, logger *zap.Logger) {
	audit := logger.Named("audit")
	for _, rg := range gates {
		rg.Gate.OnAccepted(func(rc txgate.VerifyResultContext) {
			audit.Info("payment accepted",
				zap.String("route", rc.Route),
				zap.String("tx_hash", rc.TxHash),
				zap.String("request_id", txgate.RequestIDFromContext(rc.Ctx)),
				zap.Duration("duration", rc.Duration),
			)
		})
	}
}
