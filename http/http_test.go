package http_test

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txgate "github.com/x402-foundation/txgate"
	txhttp "github.com/x402-foundation/txgate/http"
	"github.com/x402-foundation/txgate/idempotency"
	"github.com/x402-foundation/txgate/mechanisms/evm"
	"github.com/x402-foundation/txgate/test/mocks/chain"
)

const recipient = "0xd5de8324D526A201672B30584e495C71BeBb3e9A"

func newGate(t *testing.T, ledger *chain.Ledger) *txgate.Gate {
	t.Helper()
	req, err := txgate.NewPaymentRequirement(txgate.RouteConfig{
		NetworkID: evm.ChainIDSepolia,
		Recipient: recipient,
		Token: txgate.TokenConfig{
			Address:  "0x940A4894a2c72231c9AD70E6D32B7edadC8F76e3",
			Symbol:   "USD Coin",
			Decimals: 18,
		},
		Price: "1",
	})
	require.NoError(t, err)

	gate, err := txgate.NewGate(req, idempotency.NewMemoryStore(), ledger, evm.NewSubstringVerifier())
	require.NoError(t, err)
	return gate
}

func payment(t *testing.T) []byte {
	t.Helper()
	data, err := evm.EncodeTransfer(common.HexToAddress(recipient), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	require.NoError(t, err)
	return data
}

func newServer(t *testing.T, ledger *chain.Ledger) (http.Handler, *[]string) {
	t.Helper()
	var seen []string
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash, ok := txgate.TxHashFromContext(r.Context())
		assert.True(t, ok, "downstream should see the tx hash")
		seen = append(seen, hash)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"weather":"sunny"}`))
	})
	return txhttp.Handler(newGate(t, ledger), downstream), &seen
}

func do(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_PaymentRequired(t *testing.T) {
	handler, seen := newServer(t, chain.NewLedger())

	rec := do(handler, "")

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(txhttp.HeaderRequestID))

	var body txgate.PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Payment required", body.Error)
	assert.Equal(t, "Please submit a TxHash", body.Message)
	assert.Equal(t, "TxHashPayment", body.PaymentInfo.Type)
	assert.Equal(t, uint64(11155111), body.PaymentInfo.NetworkID)
	assert.Equal(t, "1000000000000000000", body.PaymentInfo.Amount)
	assert.Equal(t, uint8(18), body.PaymentInfo.Token.Decimals)
	assert.Empty(t, *seen)
}

func TestMiddleware_RawJSONShape(t *testing.T) {
	handler, _ := newServer(t, chain.NewLedger())

	rec := do(handler, "Bearer nope")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	info, ok := raw["paymentInfo"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"type", "networkId", "receiver", "token", "amount", "instruction"} {
		assert.Contains(t, info, key)
	}
	token, ok := info["token"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"symbol", "address", "decimals"} {
		assert.Contains(t, token, key)
	}
}

func TestMiddleware_Flow(t *testing.T) {
	ledger := chain.NewLedger()
	handler, seen := newServer(t, ledger)
	hash := chain.Hash(1)

	rec := do(handler, "Bearer "+hash)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Transaction not found in Mempool or Chain"}`, rec.Body.String())

	ledger.Submit(hash, payment(t))
	ledger.Mine(hash, time.Now().Add(-time.Minute))

	rec = do(handler, "Bearer "+hash)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"weather":"sunny"}`, rec.Body.String())

	rec = do(handler, "Bearer "+hash)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"Transaction already used"}`, rec.Body.String())

	assert.Equal(t, []string{hash}, *seen)
}

func TestMiddleware_Rejections(t *testing.T) {
	ledger := chain.NewLedger()
	handler, seen := newServer(t, ledger)

	expired := chain.Hash(2)
	ledger.Submit(expired, payment(t))
	ledger.Mine(expired, time.Now().Add(-time.Hour))

	underpaid := chain.Hash(3)
	data, err := evm.EncodeTransfer(common.HexToAddress(recipient), big.NewInt(1))
	require.NoError(t, err)
	ledger.Submit(underpaid, data)

	rec := do(handler, "Bearer "+expired)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Transaction expired (too old)"}`, rec.Body.String())

	rec = do(handler, "Bearer "+underpaid)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Transaction data mismatch (Wrong amount/recipient)"}`, rec.Body.String())

	ledger.Fail(assert.AnError)
	rec = do(handler, "Bearer "+chain.Hash(4))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Validation failed"}`, rec.Body.String())

	assert.Empty(t, *seen)
}

func TestMiddleware_RequestID(t *testing.T) {
	handler, _ := newServer(t, chain.NewLedger())

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set(txhttp.HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(txhttp.HeaderRequestID))
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "abc", txhttp.RequestID("abc"))
	assert.Len(t, txhttp.RequestID(""), 36)
	assert.NotEqual(t, txhttp.RequestID(""), txhttp.RequestID(""))
}

func TestWriteOutcome_KeepsInstructionLiteral(t *testing.T) {
	handler, _ := newServer(t, chain.NewLedger())

	rec := do(handler, "")

	assert.Contains(t, rec.Body.String(), "'Authorization: Bearer <txHash>' header")
}
