// Package chain wraps the Algorand algod and indexer clients behind a
// small interface so the daemon's pipeline can be driven by fakes in
// tests. All methods take a context and may block on the network.
package chain

import (
	"context"

	"github.com/algorand/go-algorand-sdk/types"
)

// AppCall is one confirmed application-call transaction against the
// oracle application, with the logs it emitted.
type AppCall struct {
	TxID  string
	Block uint64
	Logs  [][]byte
}

// Client is the oracle's view of the chain.
type Client interface {
	// AppCalls returns application calls confirmed at or after minBlock,
	// along with the highest block the scan is complete through.
	AppCalls(ctx context.Context, minBlock uint64) ([]AppCall, uint64, error)

	// BlockSeed returns the 32-byte seed of the given block.
	BlockSeed(ctx context.Context, block uint64) ([]byte, error)

	// RoundCounter reads the application's request counter from global
	// state. The counter is ground truth during reconciliation.
	RoundCounter(ctx context.Context) (uint64, error)

	// LastBlock returns the latest block the node has seen.
	LastBlock(ctx context.Context) (uint64, error)

	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)
	SendRawTransaction(ctx context.Context, stx []byte) (string, error)

	// PendingInfo reports the block a transaction was confirmed in (zero
	// while still pending) and any pool error that kicked it out.
	PendingInfo(ctx context.Context, txid string) (confirmed uint64, poolError string, err error)

	// WaitAfterBlock blocks until the node has seen a block past the
	// given one.
	WaitAfterBlock(ctx context.Context, block uint64) error
}
