package daemon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedworks/vrf-oracle/models"
)

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		processed bool
		retryable bool
	}{
		{"already in ledger", errors.New("TransactionPool.Remember: transaction already in ledger"), true, false},
		{"overlapping lease", errors.New("TransactionPool.Remember: overlapping lease"), true, false},
		{"txn dead", errors.New("txn dead: round 5000 outside of 4000--4999"), false, true},
		{"overspend", errors.New("overspend: account X tried to spend more than it has"), false, false},
		{"logic eval error", errors.New("transaction rejected: logic eval error: assert failed"), false, false},
		{"bad signature", errors.New("signature validation failed"), false, false},
		{"wrong signer", errors.New("should have been authorized by X but was actually authorized by Y"), false, false},
		{"transport", errors.New("Post http://localhost:4001: connection refused"), false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			classified := classifySendError(tc.err)

			if tc.processed {
				assert.True(t, errors.Is(classified, errAlreadyProcessed))
				return
			}

			var subErr *SubmissionError
			require.True(t, errors.As(classified, &subErr))
			assert.Equal(t, tc.retryable, subErr.Retryable())
			assert.True(t, errors.Is(classified, tc.err), "classification must preserve the cause")
		})
	}
}

func TestFulfillLeasePerRound(t *testing.T) {
	a, b := fulfillLease(5), fulfillLease(6)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, fulfillLease(5), "lease must be stable across rebuilds of the same round")
}

func TestBuildFulfillTxn(t *testing.T) {
	fake := newFakeChain()
	d := testDaemon(t, fake)

	req := testRequest(t, d, 21, d.ServiceAccount.Address, 170)
	proof, output := d.VRFKey.Prove(req.Seed[:])

	sp, err := fake.SuggestedParams(context.Background())
	require.NoError(t, err)

	txn, err := d.buildFulfillTxn(sp, req, models.VrfProof{Round: 21, Proof: proof, Output: output})
	require.NoError(t, err)

	assert.EqualValues(t, d.AppID, txn.ApplicationID)
	assert.Equal(t, fulfillLease(21), txn.Lease)
	assert.EqualValues(t, sp.FirstRoundValid+fulfillValidityWindow, txn.LastValid)
	require.Len(t, txn.ApplicationArgs, 5)
	assert.Equal(t, []byte("fulfill"), txn.ApplicationArgs[0])
	assert.Equal(t, proof[:], txn.ApplicationArgs[3])
	assert.Equal(t, output[:], txn.ApplicationArgs[4])
}
