package daemon

import (
	"bytes"
	"context"

	"github.com/algorand/go-algorand-sdk/types"
	log "github.com/sirupsen/logrus"

	"github.com/seedworks/vrf-oracle/models"
	"github.com/seedworks/vrf-oracle/tools"
)

// reconcile runs once on startup. It reads the on-chain round counter,
// re-queues every ledger round that never reached a terminal status, and
// leaves rounds the ledger has never seen to the watcher, whose watermark
// only advances after a batch is fully enqueued. The chain counter is
// ground truth when the two disagree.
func (d *VRFDaemon) reconcile(ctx context.Context) ([]models.VrfRequest, error) {
	var counter uint64
	err := tools.Retry(ctx, 5, d.BackoffBase, d.BackoffCap,
		func() error {
			var err error
			counter, err = d.Chain.RoundCounter(ctx)
			return err
		},
		func(err error) {
			log.Warnf("failed reading on-chain round counter, trying again...: %v", err)
		},
	)
	if err != nil {
		return nil, err
	}

	unresolved, err := d.Ledger.Unresolved()
	if err != nil {
		return nil, err
	}

	var resumed []models.VrfRequest
	for _, entry := range unresolved {
		if entry.Round > counter {
			// The ledger is ahead of the chain counter. That shouldn't be
			// possible for a confirmed request; warn and trust the chain.
			log.Warnf("ledger has round %d in status %s but chain counter is %d, skipping",
				entry.Round, entry.Status, counter)
			continue
		}

		requester, err := types.DecodeAddress(entry.Requester)
		if err != nil {
			log.Warnf("ledger round %d has undecodable requester %q, skipping: %v",
				entry.Round, entry.Requester, err)
			continue
		}

		// Seeds are always re-derived from chain history rather than
		// trusted from memory of a previous run.
		seed, err := d.seedForRound(ctx, entry.Round, entry.Block, requester)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("failed re-deriving seed for round %d, skipping: %v", entry.Round, err)
			continue
		}
		if len(entry.Seed) > 0 && !bytes.Equal(entry.Seed, seed[:]) {
			log.Warnf("round %d stored seed disagrees with re-derivation, using chain history", entry.Round)
		}

		resumed = append(resumed, models.VrfRequest{
			Round:     entry.Round,
			Requester: requester,
			Block:     entry.Block,
			Seed:      seed,
		})
	}

	if err := d.rewindWatch(counter); err != nil {
		return nil, err
	}

	if len(resumed) > 0 {
		log.Infof("reconciliation resuming %d unresolved round(s), chain counter is %d", len(resumed), counter)
	} else {
		log.Infof("reconciliation found nothing to resume, chain counter is %d", counter)
	}

	return resumed, nil
}

// rewindWatch moves the watch position back when the chain counter is ahead
// of every round the ledger knows. That gap means requests were lost between
// the watermark advancing and their rounds being recorded, so the watcher
// must re-scan from the last block known to be fully handled. Re-delivery of
// rounds already in the ledger is harmless, dedup drops them.
func (d *VRFDaemon) rewindWatch(counter uint64) error {
	maxRound, err := d.Ledger.MaxRound()
	if err != nil {
		return err
	}
	if counter <= maxRound {
		return nil
	}

	var start uint64
	last, err := d.Ledger.LastConfirmed()
	if err != nil {
		return err
	}
	if last != nil && last.Block > 0 {
		// Requests for later rounds can only sit in blocks at or after the
		// block of the last confirmed request.
		start = last.Block - 1
	}

	watermark, err := d.Ledger.Watermark()
	if err != nil {
		return err
	}
	if watermark <= start {
		return nil
	}

	log.Warnf("chain counter is %d but highest ledger round is %d, rewinding scan from block %d to %d",
		counter, maxRound, watermark, start)
	return d.Ledger.SetWatermark(start)
}
