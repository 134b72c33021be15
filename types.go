package txgate

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentType is the quote type advertised in payment-required responses.
const PaymentType = "TxHashPayment"

// Instruction tells a caller how to present proof of payment.
const Instruction = "Send a Transaction Hash (txHash) in 'Authorization: Bearer <txHash>' header"

// TokenInfo identifies the ERC-20 token a requirement is denominated in.
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TransactionRecord is the subset of an on-chain transaction the gate needs.
// BlockNumber is nil while the transaction is still pending.
type TransactionRecord struct {
	Hash        common.Hash
	BlockNumber *big.Int
	Input       []byte
}

// Pending reports whether the transaction has not been mined yet.
func (t *TransactionRecord) Pending() bool {
	return t.BlockNumber == nil
}

// PaymentInfo is the machine-readable quote returned with a payment-required response.
type PaymentInfo struct {
	Type        string       `json:"type"`
	NetworkID   uint64       `json:"networkId"`
	Receiver    string       `json:"receiver"`
	Token       PaymentToken `json:"token"`
	Amount      string       `json:"amount"`
	Instruction string       `json:"instruction"`
}

// PaymentToken is the token section of PaymentInfo.
type PaymentToken struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// PaymentRequiredResponse is the body of a 402 response.
type PaymentRequiredResponse struct {
	Error       string      `json:"error"`
	Message     string      `json:"message"`
	PaymentInfo PaymentInfo `json:"paymentInfo"`
}

// ErrorResponse is the body of every other rejection.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default timing parameters
const (
	// DefaultMaxAge is how old a mined payment transaction may be.
	DefaultMaxAge = 10 * time.Minute
	// DefaultGrace is added to the max age to form the claim TTL.
	DefaultGrace = 2 * time.Minute
)
