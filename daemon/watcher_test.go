package daemon

import (
	"context"
	"testing"

	"github.com/algorand/go-algorand-sdk/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedworks/vrf-oracle/chain"
	"github.com/seedworks/vrf-oracle/ledger"
	"github.com/seedworks/vrf-oracle/models"
)

func TestDecodeRequestLog(t *testing.T) {
	requester := crypto.GenerateAccount().Address

	valid := append([]byte{}, requestLogPrefix...)
	valid = append(valid, models.RoundBytes(42)...)
	valid = append(valid, requester[:]...)

	round, decoded, isRequest, err := decodeRequestLog(valid)
	require.NoError(t, err)
	assert.True(t, isRequest)
	assert.Equal(t, uint64(42), round)
	assert.Equal(t, requester, decoded)
}

func TestDecodeRequestLogIgnoresUnrelatedOutput(t *testing.T) {
	for _, entry := range [][]byte{
		nil,
		[]byte("debug: state updated"),
		[]byte("vrf"), // shorter than the tag
	} {
		_, _, isRequest, err := decodeRequestLog(entry)
		assert.NoError(t, err)
		assert.False(t, isRequest)
	}
}

func TestDecodeRequestLogRejectsMalformed(t *testing.T) {
	truncated := append([]byte{}, requestLogPrefix...)
	truncated = append(truncated, models.RoundBytes(42)...)

	_, _, isRequest, err := decodeRequestLog(truncated)
	assert.True(t, isRequest, "the tag marks it as a request even when malformed")
	assert.Error(t, err)
}

// A malformed log in a batch must not block the valid entries around it.
func TestDecodeRequestSkipsPoisonEntries(t *testing.T) {
	fake := newFakeChain()
	d := testDaemon(t, fake)

	requester := crypto.GenerateAccount().Address
	valid := append([]byte{}, requestLogPrefix...)
	valid = append(valid, models.RoundBytes(7)...)
	valid = append(valid, requester[:]...)

	call := chain.AppCall{
		TxID:  "BATCH",
		Block: 150,
		Logs: [][]byte{
			append(append([]byte{}, requestLogPrefix...), 0xde, 0xad), // truncated
			[]byte("unrelated output"),
			valid,
		},
	}

	var decoded []models.VrfRequest
	for _, entry := range call.Logs {
		if req, ok := d.decodeRequest(context.Background(), call, entry); ok {
			decoded = append(decoded, req)
		}
	}

	require.Len(t, decoded, 1)
	assert.Equal(t, uint64(7), decoded[0].Round)
	assert.Equal(t, requester, decoded[0].Requester)
}

func TestDecodeRequestDropsTerminalRounds(t *testing.T) {
	fake := newFakeChain()
	d := testDaemon(t, fake)

	requester := crypto.GenerateAccount().Address
	require.NoError(t, d.Ledger.Record(&ledger.Entry{
		Round:     8,
		Status:    ledger.StatusConfirmed,
		Requester: requester.String(),
		Block:     151,
	}))

	entry := append([]byte{}, requestLogPrefix...)
	entry = append(entry, models.RoundBytes(8)...)
	entry = append(entry, requester[:]...)

	_, ok := d.decodeRequest(context.Background(), chain.AppCall{TxID: "DUP", Block: 151}, entry)
	assert.False(t, ok, "terminal rounds are dropped at decode time")
}

func TestSeedDerivationIsStable(t *testing.T) {
	fake := newFakeChain()
	d := testDaemon(t, fake)

	requester := crypto.GenerateAccount().Address
	first, err := d.seedForRound(context.Background(), 12, 160, requester)
	require.NoError(t, err)
	second, err := d.seedForRound(context.Background(), 12, 160, requester)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := d.seedForRound(context.Background(), 13, 160, requester)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "seed must bind the round")
}
