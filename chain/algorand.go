package chain

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/algorand/go-algorand-sdk/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/client/v2/indexer"
	"github.com/algorand/go-algorand-sdk/types"
)

const searchPageLimit = 100

// roundCounterKey is the global state key the application keeps its
// request counter under.
var roundCounterKey = base64.StdEncoding.EncodeToString([]byte("round"))

// algorandClient implements Client over algod and indexer.
type algorandClient struct {
	algod   *algod.Client
	indexer *indexer.Client
	appID   uint64
}

// NewAlgorand builds a Client talking to the given algod and indexer
// endpoints, scoped to a single application ID.
func NewAlgorand(algodAddress, algodToken, indexerAddress, indexerToken string, appID uint64) (Client, error) {
	algodClient, err := algod.MakeClient(algodAddress, algodToken)
	if err != nil {
		return nil, fmt.Errorf("failed creating algod client: %v", err)
	}
	indexerClient, err := indexer.MakeClient(indexerAddress, indexerToken)
	if err != nil {
		return nil, fmt.Errorf("failed creating indexer client: %v", err)
	}
	return &algorandClient{algod: algodClient, indexer: indexerClient, appID: appID}, nil
}

func (c *algorandClient) AppCalls(ctx context.Context, minBlock uint64) ([]AppCall, uint64, error) {
	var (
		calls     []AppCall
		nextToken string
		scanned   uint64
	)

	for {
		query := c.indexer.SearchForTransactions().
			ApplicationId(c.appID).
			TxType("appl").
			MinRound(minBlock).
			Limit(searchPageLimit)
		if nextToken != "" {
			query = query.NextToken(nextToken)
		}

		resp, err := query.Do(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("indexer search failed: %v", err)
		}
		if scanned == 0 {
			scanned = resp.CurrentRound
		}

		for _, txn := range resp.Transactions {
			calls = append(calls, AppCall{
				TxID:  txn.Id,
				Block: txn.ConfirmedRound,
				Logs:  txn.Logs,
			})
		}

		if resp.NextToken == "" || len(resp.Transactions) == 0 {
			break
		}
		nextToken = resp.NextToken
	}

	return calls, scanned, nil
}

func (c *algorandClient) BlockSeed(ctx context.Context, block uint64) ([]byte, error) {
	blk, err := c.algod.Block(block).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed getting block %d: %v", block, err)
	}
	seed := make([]byte, len(blk.BlockHeader.Seed))
	copy(seed, blk.BlockHeader.Seed[:])
	return seed, nil
}

func (c *algorandClient) RoundCounter(ctx context.Context) (uint64, error) {
	app, err := c.algod.GetApplicationByID(c.appID).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed reading application %d: %v", c.appID, err)
	}
	for _, kv := range app.Params.GlobalState {
		if kv.Key == roundCounterKey {
			return kv.Value.Uint, nil
		}
	}
	return 0, fmt.Errorf("application %d has no round counter in global state", c.appID)
}

func (c *algorandClient) LastBlock(ctx context.Context) (uint64, error) {
	status, err := c.algod.Status().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed getting status: %v", err)
	}
	return status.LastRound, nil
}

func (c *algorandClient) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	return c.algod.SuggestedParams().Do(ctx)
}

func (c *algorandClient) SendRawTransaction(ctx context.Context, stx []byte) (string, error) {
	return c.algod.SendRawTransaction(stx).Do(ctx)
}

func (c *algorandClient) PendingInfo(ctx context.Context, txid string) (uint64, string, error) {
	res, _, err := c.algod.PendingTransactionInformation(txid).Do(ctx)
	if err != nil {
		return 0, "", err
	}
	return res.ConfirmedRound, res.PoolError, nil
}

func (c *algorandClient) WaitAfterBlock(ctx context.Context, block uint64) error {
	_, err := c.algod.StatusAfterBlock(block).Do(ctx)
	return err
}
