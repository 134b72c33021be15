// Package chain provides an in-memory txgate.ChainReader for tests.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	txgate "github.com/x402-foundation/txgate"
)

// Hash returns a deterministic transaction hash for n.
func Hash(n uint64) string {
	return fmt.Sprintf("0x%064x", n)
}

type transaction struct {
	input []byte
	block *big.Int
}

// Ledger is a scriptable chain: transactions are submitted to a mempool and
// later mined into blocks with chosen timestamps.
type Ledger struct {
	mu     sync.Mutex
	txs    map[string]*transaction
	blocks map[uint64]time.Time
	height uint64
	err    error

	lookups atomic.Int64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		txs:    make(map[string]*transaction),
		blocks: make(map[uint64]time.Time),
	}
}

// Submit adds a pending transaction.
func (l *Ledger) Submit(hash string, input []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs[strings.ToLower(hash)] = &transaction{input: input}
}

// Mine includes a submitted transaction in a new block stamped at.
func (l *Ledger) Mine(hash string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.txs[strings.ToLower(hash)]
	if !ok {
		panic("chain: mining unknown transaction " + hash)
	}
	l.height++
	l.blocks[l.height] = at
	tx.block = new(big.Int).SetUint64(l.height)
}

// Fail makes every following call fail as an unreachable provider would.
// A nil err restores normal operation.
func (l *Ledger) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Lookups returns how many transaction lookups were served.
func (l *Ledger) Lookups() int64 {
	return l.lookups.Load()
}

func (l *Ledger) GetTransaction(_ context.Context, hash string) (*txgate.TransactionRecord, error) {
	l.lookups.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, fmt.Errorf("%w: %w", txgate.ErrChainUnavailable, l.err)
	}
	tx, ok := l.txs[strings.ToLower(hash)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", txgate.ErrTransactionNotFound, hash)
	}
	record := &txgate.TransactionRecord{
		Hash:  common.HexToHash(hash),
		Input: append([]byte(nil), tx.input...),
	}
	if tx.block != nil {
		record.BlockNumber = new(big.Int).Set(tx.block)
	}
	return record, nil
}

func (l *Ledger) GetBlockTimestamp(_ context.Context, number *big.Int) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", txgate.ErrChainUnavailable, l.err)
	}
	ts, ok := l.blocks[number.Uint64()]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: block %s not found", txgate.ErrChainUnavailable, number)
	}
	return ts, nil
}

var _ txgate.ChainReader = (*Ledger)(nil)
