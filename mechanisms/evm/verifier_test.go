package evm

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txgate "github.com/x402-foundation/txgate"
)

const (
	testRecipient = "0xd5de8324D526A201672B30584e495C71BeBb3e9A"
	testToken     = "0x940A4894a2c72231c9AD70E6D32B7edadC8F76e3"
	otherAddress  = "0x1111111111111111111111111111111111111111"
)

func testRequirement(t *testing.T) *txgate.PaymentRequirement {
	t.Helper()
	req, err := txgate.NewPaymentRequirement(txgate.RouteConfig{
		NetworkID: ChainIDSepolia,
		Recipient: testRecipient,
		Token: txgate.TokenConfig{
			Address:  testToken,
			Symbol:   "USD Coin",
			Decimals: 18,
		},
		Amount: "1000000000000000000",
	})
	require.NoError(t, err)
	return req
}

func mustEncodeTransfer(t *testing.T, to string, amount *big.Int) []byte {
	t.Helper()
	data, err := EncodeTransfer(common.HexToAddress(to), amount)
	require.NoError(t, err)
	return data
}

func oneToken() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func TestEncodeTransfer_Layout(t *testing.T) {
	data := mustEncodeTransfer(t, testRecipient, oneToken())

	require.Len(t, data, 68)
	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Equal(t, strings.ToLower(testRecipient[2:]), hex.EncodeToString(data[16:36]))
	assert.Equal(t, 0, new(big.Int).SetBytes(data[36:]).Cmp(oneToken()))
}

func TestSubstringVerifier(t *testing.T) {
	req := testRequirement(t)
	exact := mustEncodeTransfer(t, testRecipient, oneToken())

	// A smart-account execute() wrapping the transfer somewhere inside.
	batched := append([]byte{0xb6, 0x1d, 0x27, 0xf6}, bytes.Repeat([]byte{0x00}, 96)...)
	batched = append(batched, exact...)
	batched = append(batched, bytes.Repeat([]byte{0xff}, 28)...)

	tests := []struct {
		name     string
		callData []byte
		want     bool
	}{
		{"exact transfer", exact, true},
		{"batched transfer", batched, true},
		{"wrong recipient", mustEncodeTransfer(t, otherAddress, oneToken()), false},
		{"wrong amount", mustEncodeTransfer(t, testRecipient, big.NewInt(1)), false},
		{"empty", nil, false},
		{"truncated", exact[:40], false},
	}

	verifier := NewSubstringVerifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, verifier.Matches(req, tt.callData))
		})
	}
}

func TestSubstringVerifier_CachesPattern(t *testing.T) {
	req := testRequirement(t)
	verifier := NewSubstringVerifier()

	verifier.Matches(req, nil)
	verifier.Matches(req, nil)

	verifier.mu.RLock()
	defer verifier.mu.RUnlock()
	assert.Len(t, verifier.expected, 1)
}

func TestStrictVerifier(t *testing.T) {
	req := testRequirement(t)
	exact := mustEncodeTransfer(t, testRecipient, oneToken())

	tests := []struct {
		name     string
		callData []byte
		want     bool
	}{
		{"exact transfer", exact, true},
		{"batched transfer", append([]byte{0xb6, 0x1d, 0x27, 0xf6}, exact...), false},
		{"trailing bytes", append(append([]byte{}, exact...), 0x00), false},
		{"wrong recipient", mustEncodeTransfer(t, otherAddress, oneToken()), false},
		{"wrong amount", mustEncodeTransfer(t, testRecipient, new(big.Int).Add(oneToken(), big.NewInt(1))), false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StrictVerifier{}.Matches(req, tt.callData))
		})
	}
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier("")
	require.NoError(t, err)
	assert.IsType(t, &SubstringVerifier{}, v)

	v, err = NewVerifier(PolicyStrict)
	require.NoError(t, err)
	assert.IsType(t, StrictVerifier{}, v)

	_, err = NewVerifier("fuzzy")
	assert.Error(t, err)
}
