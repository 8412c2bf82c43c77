package daemon

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/algorand/go-algorand-sdk/types"
	log "github.com/sirupsen/logrus"

	"github.com/seedworks/vrf-oracle/chain"
	"github.com/seedworks/vrf-oracle/models"
	"github.com/seedworks/vrf-oracle/tools"
)

// Request logs emitted by the application: an 8-byte tag, the round as
// 8 big-endian bytes and the 32-byte requester address.
var requestLogPrefix = []byte("vrf/req1")

const requestLogLen = 8 + 8 + 32

// DecodeError marks a log entry that carried the request tag but could
// not be decoded. Decode failures are logged and skipped, they never stop
// the watch loop or affect other rounds.
type DecodeError struct {
	TxID string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable request log in %s: %v", e.TxID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// decodeRequestLog extracts (round, requester) from a single log entry.
// The bool reports whether the entry was a request log at all; entries
// without the tag are unrelated application output.
func decodeRequestLog(entry []byte) (uint64, types.Address, bool, error) {
	var requester types.Address

	if len(entry) < len(requestLogPrefix) || !bytes.Equal(entry[:len(requestLogPrefix)], requestLogPrefix) {
		return 0, requester, false, nil
	}
	if len(entry) != requestLogLen {
		return 0, requester, true, fmt.Errorf("request log is %d bytes, want %d", len(entry), requestLogLen)
	}

	round := binary.BigEndian.Uint64(entry[8:16])
	copy(requester[:], entry[16:48])
	return round, requester, true, nil
}

// watch polls the indexer for new application calls, decodes request logs
// and emits VrfRequests downstream. The scan position is persisted as a
// ledger watermark only after a batch has been fully enqueued, so delivery
// is at-least-once and the ledger dedupes.
func (d *VRFDaemon) watch(ctx context.Context, out chan<- models.VrfRequest) error {
	minBlock, err := d.Ledger.Watermark()
	if err != nil {
		return fmt.Errorf("failed reading watcher watermark: %v", err)
	}
	minBlock++

	for {
		if err := tools.Sleep(ctx, d.PollInterval); err != nil {
			return nil
		}

		calls, scanned, err := d.Chain.AppCalls(ctx, minBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("failed scanning for requests from block %d: %v", minBlock, err)
			continue
		}

		for _, call := range calls {
			for _, entry := range call.Logs {
				req, ok := d.decodeRequest(ctx, call, entry)
				if !ok {
					continue
				}

				requestsSeen.Inc()
				select {
				case out <- req:
				case <-ctx.Done():
					return nil
				}
			}
			if call.Block > scanned {
				scanned = call.Block
			}
		}

		if scanned >= minBlock {
			if err := d.Ledger.SetWatermark(scanned); err != nil {
				log.Errorf("failed persisting watermark %d: %v", scanned, err)
			} else {
				minBlock = scanned + 1
			}
		}
	}
}

// decodeRequest turns one log entry into a fully derived VrfRequest,
// consulting the ledger first so already-terminal rounds don't trigger new
// work on duplicate delivery.
func (d *VRFDaemon) decodeRequest(ctx context.Context, call chain.AppCall, entry []byte) (models.VrfRequest, bool) {
	var req models.VrfRequest

	round, requester, isRequest, err := decodeRequestLog(entry)
	if !isRequest {
		return req, false
	}
	if err != nil {
		decodeFailures.Inc()
		log.Warnf("skipping malformed request log: %v", &DecodeError{TxID: call.TxID, Err: err})
		return req, false
	}

	if known, err := d.Ledger.Get(round); err == nil && known != nil && known.Status.Terminal() {
		log.Debugf("round %d already %s, ignoring duplicate delivery", round, known.Status)
		return req, false
	}

	seed, err := d.seedForRound(ctx, round, call.Block, requester)
	if err != nil {
		log.Warnf("failed deriving seed for round %d: %v", round, err)
		return req, false
	}

	return models.VrfRequest{
		Round:     round,
		Requester: requester,
		Block:     call.Block,
		Seed:      seed,
	}, true
}

// seedForRound re-derives the VRF input from chain history. The same
// derivation serves the watcher and the reconciler, so recovery never
// depends on a seed that only lived in memory.
func (d *VRFDaemon) seedForRound(ctx context.Context, round, block uint64, requester types.Address) ([models.SeedByteLen]byte, error) {
	var blockSeed []byte
	err := tools.Retry(ctx, 5, d.BackoffBase, d.BackoffCap,
		func() error {
			var err error
			blockSeed, err = d.Chain.BlockSeed(ctx, block)
			return err
		},
		func(err error) {
			log.Warnf("can't retrieve block %d, trying again...: %v", block, err)
		},
	)
	if err != nil {
		return [models.SeedByteLen]byte{}, err
	}
	return models.DeriveSeed(round, blockSeed, requester), nil
}
