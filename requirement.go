package txgate

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RouteConfig describes the payment a single protected route requires.
// Exactly one of Amount (smallest token units) or Price (human units) is set.
type RouteConfig struct {
	Pattern       string      `json:"pattern" mapstructure:"pattern"`
	NetworkID     uint64      `json:"networkId" mapstructure:"network_id"`
	Recipient     string      `json:"recipient" mapstructure:"recipient"`
	Token         TokenConfig `json:"token" mapstructure:"token"`
	Amount        string      `json:"amount,omitempty" mapstructure:"amount"`
	Price         string      `json:"price,omitempty" mapstructure:"price"`
	MaxAgeSeconds int         `json:"maxAgeSeconds,omitempty" mapstructure:"max_age_seconds"`
}

// TokenConfig is the configuration form of TokenInfo.
type TokenConfig struct {
	Address  string `json:"address" mapstructure:"address"`
	Symbol   string `json:"symbol" mapstructure:"symbol"`
	Decimals int    `json:"decimals" mapstructure:"decimals"`
}

// PaymentRequirement is the immutable payment a gate enforces.
type PaymentRequirement struct {
	networkID uint64
	recipient common.Address
	token     TokenInfo
	amount    *big.Int
	maxAge    time.Duration
}

// NewPaymentRequirement validates cfg and builds a requirement from it.
func NewPaymentRequirement(cfg RouteConfig) (*PaymentRequirement, error) {
	if cfg.Recipient == "" {
		return nil, ErrMissingRecipient
	}
	if !common.IsHexAddress(cfg.Recipient) {
		return nil, fmt.Errorf("%w: recipient %q", ErrInvalidAddress, cfg.Recipient)
	}
	if cfg.Token.Address == "" {
		return nil, ErrMissingToken
	}
	if !common.IsHexAddress(cfg.Token.Address) {
		return nil, fmt.Errorf("%w: token %q", ErrInvalidAddress, cfg.Token.Address)
	}
	if cfg.Token.Decimals < 0 || cfg.Token.Decimals > 77 {
		return nil, fmt.Errorf("txgate: token decimals out of range: %d", cfg.Token.Decimals)
	}
	if cfg.MaxAgeSeconds < 0 {
		return nil, ErrInvalidMaxAge
	}

	var (
		amount *big.Int
		err    error
	)
	switch {
	case cfg.Amount != "" && cfg.Price != "":
		return nil, fmt.Errorf("txgate: route %q sets both amount and price", cfg.Pattern)
	case cfg.Amount != "":
		amount, err = ParseAmount(cfg.Amount)
	case cfg.Price != "":
		amount, err = ParsePrice(cfg.Price, cfg.Token.Decimals)
	default:
		return nil, ErrMissingAmount
	}
	if err != nil {
		return nil, err
	}

	maxAge := DefaultMaxAge
	if cfg.MaxAgeSeconds > 0 {
		maxAge = time.Duration(cfg.MaxAgeSeconds) * time.Second
	}

	return &PaymentRequirement{
		networkID: cfg.NetworkID,
		recipient: common.HexToAddress(cfg.Recipient),
		token: TokenInfo{
			Address:  common.HexToAddress(cfg.Token.Address),
			Symbol:   cfg.Token.Symbol,
			Decimals: uint8(cfg.Token.Decimals),
		},
		amount: amount,
		maxAge: maxAge,
	}, nil
}

// ParseAmount parses a positive integer amount in the token's smallest unit.
func ParseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, s)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, s)
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %q does not fit in uint256", ErrInvalidAmount, s)
	}
	return amount, nil
}

// ParsePrice converts a human-readable price such as "0.01" to smallest
// token units. Prices finer than the token's precision are rejected rather
// than rounded.
func ParsePrice(price string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	units := d.Shift(int32(decimals))
	if !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s exceeds %d decimals", ErrInvalidAmount, price, decimals)
	}
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, price)
	}
	amount := units.BigInt()
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s does not fit in uint256", ErrInvalidAmount, price)
	}
	return amount, nil
}

func (r *PaymentRequirement) NetworkID() uint64 { return r.networkID }

func (r *PaymentRequirement) Recipient() common.Address { return r.recipient }

func (r *PaymentRequirement) Token() TokenInfo { return r.token }

// Amount returns a copy of the required amount in smallest token units.
func (r *PaymentRequirement) Amount() *big.Int { return new(big.Int).Set(r.amount) }

func (r *PaymentRequirement) MaxAge() time.Duration { return r.maxAge }

// Quote builds the payment info advertised to callers without proof.
func (r *PaymentRequirement) Quote() PaymentInfo {
	return PaymentInfo{
		Type:      PaymentType,
		NetworkID: r.networkID,
		Receiver:  r.recipient.Hex(),
		Token: PaymentToken{
			Symbol:   r.token.Symbol,
			Address:  r.token.Address.Hex(),
			Decimals: r.token.Decimals,
		},
		Amount:      r.amount.String(),
		Instruction: Instruction,
	}
}
