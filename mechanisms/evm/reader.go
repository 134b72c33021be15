package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	txgate "github.com/x402-foundation/txgate"
)

// Reader implements txgate.ChainReader over Ethereum JSON-RPC.
// Each call gets its own deadline so a stalled provider fails the request
// instead of hanging it.
type Reader struct {
	rpc         *rpc.Client
	eth         *ethclient.Client
	callTimeout time.Duration
	tracer      trace.Tracer
}

const tracerName = "github.com/x402-foundation/txgate/mechanisms/evm"

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithCallTimeout sets the deadline applied to each RPC call.
func WithCallTimeout(timeout time.Duration) ReaderOption {
	return func(r *Reader) {
		r.callTimeout = timeout
	}
}

// WithTracerProvider sets the provider used to trace RPC calls.
func WithTracerProvider(tp trace.TracerProvider) ReaderOption {
	return func(r *Reader) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// Dial connects to an RPC endpoint (http, ws or ipc).
func Dial(ctx context.Context, rawURL string, opts ...ReaderOption) (*Reader, error) {
	client, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rawURL, err)
	}
	return NewReader(client, opts...), nil
}

// NewReader creates a reader on an existing RPC client.
func NewReader(client *rpc.Client, opts ...ReaderOption) *Reader {
	r := &Reader{
		rpc:         client,
		eth:         ethclient.NewClient(client),
		callTimeout: DefaultCallTimeout,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// rpcTransaction holds the fields of eth_getTransactionByHash the gate uses.
type rpcTransaction struct {
	Hash        common.Hash   `json:"hash"`
	BlockNumber *hexutil.Big  `json:"blockNumber"`
	Input       hexutil.Bytes `json:"input"`
}

// startCall opens a span for one RPC method and applies the call deadline.
func (r *Reader) startCall(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span, context.CancelFunc) {
	ctx, span := r.tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("rpc.method", method))...),
	)
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	return ctx, span, cancel
}

func endCall(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetTransaction looks a transaction up in the pool and the chain.
func (r *Reader) GetTransaction(ctx context.Context, hash string) (record *txgate.TransactionRecord, err error) {
	ctx, span, cancel := r.startCall(ctx, "eth_getTransactionByHash", attribute.String("txgate.tx_hash", hash))
	defer cancel()
	defer func() {
		// An unknown hash is a normal answer, not a failed call.
		if errors.Is(err, txgate.ErrTransactionNotFound) {
			span.SetAttributes(attribute.Bool("txgate.tx_found", false))
			endCall(span, nil)
			return
		}
		endCall(span, err)
	}()

	var raw *rpcTransaction
	if err := r.rpc.CallContext(ctx, &raw, "eth_getTransactionByHash", common.HexToHash(hash)); err != nil {
		return nil, fmt.Errorf("%w: eth_getTransactionByHash: %w", txgate.ErrChainUnavailable, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", txgate.ErrTransactionNotFound, hash)
	}

	record = &txgate.TransactionRecord{
		Hash:  raw.Hash,
		Input: raw.Input,
	}
	if raw.BlockNumber != nil {
		record.BlockNumber = raw.BlockNumber.ToInt()
	}
	return record, nil
}

// GetBlockTimestamp returns the timestamp of the block with the given number.
func (r *Reader) GetBlockTimestamp(ctx context.Context, number *big.Int) (_ time.Time, err error) {
	ctx, span, cancel := r.startCall(ctx, "eth_getBlockByNumber", attribute.String("eth.block_number", number.String()))
	defer cancel()
	defer func() { endCall(span, err) }()

	header, err := r.eth.HeaderByNumber(ctx, number)
	if errors.Is(err, ethereum.NotFound) {
		// A mined transaction whose block vanished was most likely reorged.
		return time.Time{}, fmt.Errorf("%w: block %s not found", txgate.ErrChainUnavailable, number)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: eth_getBlockByNumber: %w", txgate.ErrChainUnavailable, err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

// ChainID returns the chain id reported by the provider.
func (r *Reader) ChainID(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	id, err := r.eth.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_chainId: %w", txgate.ErrChainUnavailable, err)
	}
	return id.Uint64(), nil
}

// Close closes the underlying RPC client.
func (r *Reader) Close() {
	r.rpc.Close()
}

var _ txgate.ChainReader = (*Reader)(nil)
