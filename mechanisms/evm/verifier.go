package evm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	txgate "github.com/x402-foundation/txgate"
)

var erc20TransferABI = mustParseABI(ERC20TransferABI)

func mustParseABI(raw []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("evm: invalid built-in ABI: %v", err))
	}
	return parsed
}

// EncodeTransfer returns the call data of transfer(to, amount).
func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20TransferABI.Pack(FunctionTransfer, to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer calldata: %w", err)
	}
	return data, nil
}

// NewVerifier returns the verifier for a policy name.
func NewVerifier(policy string) (txgate.Verifier, error) {
	switch policy {
	case "", PolicySubstring:
		return NewSubstringVerifier(), nil
	case PolicyStrict:
		return StrictVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown verifier policy %q", policy)
	}
}

// SubstringVerifier accepts call data that contains the expected transfer
// invocation anywhere in its hex encoding. This tolerates transfers batched
// inside multicall or smart-account payloads, at the cost of matching
// coincidental overlaps in large unrelated payloads.
type SubstringVerifier struct {
	mu       sync.RWMutex
	expected map[*txgate.PaymentRequirement]string
}

// NewSubstringVerifier creates a verifier with an empty call data cache.
func NewSubstringVerifier() *SubstringVerifier {
	return &SubstringVerifier{
		expected: make(map[*txgate.PaymentRequirement]string),
	}
}

// Matches reports whether callData contains the requirement's transfer.
func (v *SubstringVerifier) Matches(req *txgate.PaymentRequirement, callData []byte) bool {
	pattern, err := v.pattern(req)
	if err != nil {
		return false
	}
	// EncodeToString is lower-case, so the comparison ignores the case
	// the provider returned the input in.
	return strings.Contains(hex.EncodeToString(callData), pattern)
}

// pattern returns the cached lower-case hex of the expected call data.
func (v *SubstringVerifier) pattern(req *txgate.PaymentRequirement) (string, error) {
	v.mu.RLock()
	pattern, ok := v.expected[req]
	v.mu.RUnlock()
	if ok {
		return pattern, nil
	}

	data, err := EncodeTransfer(req.Recipient(), req.Amount())
	if err != nil {
		return "", err
	}
	pattern = hex.EncodeToString(data)

	v.mu.Lock()
	v.expected[req] = pattern
	v.mu.Unlock()
	return pattern, nil
}

// StrictVerifier accepts only call data that is exactly one
// transfer(recipient, amount) invocation.
type StrictVerifier struct{}

// Matches decodes callData and compares selector, recipient and amount.
func (StrictVerifier) Matches(req *txgate.PaymentRequirement, callData []byte) bool {
	to, amount, err := DecodeTransfer(callData)
	if err != nil {
		return false
	}
	return to == req.Recipient() && amount.Cmp(req.Amount()) == 0
}

// DecodeTransfer decodes call data of a single transfer(address,uint256).
func DecodeTransfer(callData []byte) (common.Address, *big.Int, error) {
	method := erc20TransferABI.Methods[FunctionTransfer]
	if len(callData) != len(method.ID)+64 {
		return common.Address{}, nil, fmt.Errorf("unexpected calldata length %d", len(callData))
	}
	if !bytes.Equal(callData[:4], method.ID) {
		return common.Address{}, nil, fmt.Errorf("unexpected selector %x", callData[:4])
	}

	args, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to decode transfer arguments: %w", err)
	}
	to, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected recipient type %T", args[0])
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected amount type %T", args[1])
	}
	return to, amount, nil
}

var (
	_ txgate.Verifier = (*SubstringVerifier)(nil)
	_ txgate.Verifier = StrictVerifier{}
)
