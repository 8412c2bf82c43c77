package daemon

import (
	"context"
	"crypto/sha512"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/algorand/go-algorand-sdk/crypto"
	"github.com/algorand/go-algorand-sdk/future"
	"github.com/algorand/go-algorand-sdk/types"
	log "github.com/sirupsen/logrus"

	"github.com/seedworks/vrf-oracle/ledger"
	"github.com/seedworks/vrf-oracle/models"
	"github.com/seedworks/vrf-oracle/tools"
)

// fulfillValidityWindow is the number of blocks a fulfillment transaction
// stays valid for. Past it the transaction is dead and can safely be
// rebuilt with the same proof.
const fulfillValidityWindow = 1000

// SubmissionError classifies a failed send so the retry loop can decide
// what to do with the round.
type SubmissionError struct {
	Reason    string
	Err       error
	retryable bool
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed (%s): %v", e.Reason, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Retryable reports whether resending the same proof in a fresh
// transaction may succeed.
func (e *SubmissionError) Retryable() bool { return e.retryable }

// errAlreadyProcessed marks an "already in ledger" / "overlapping lease"
// response: the fulfillment landed in an earlier attempt, which is
// success, not an error.
var errAlreadyProcessed = errors.New("fulfillment already processed")

// errTxnDead marks a transaction whose validity window passed without
// confirmation. Retryable with fresh params.
var errTxnDead = errors.New("transaction validity window expired")

// classifySendError sorts an algod send failure into the taxonomy:
// already-processed responses are success, transport trouble and expired
// validity windows are retryable, everything the node actively rejected
// (bad accounts, failed program, underfunded sender) is not.
func classifySendError(err error) error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "already in ledger"),
		strings.Contains(msg, "overlapping lease"):
		return errAlreadyProcessed
	case strings.Contains(msg, "txn dead"):
		return &SubmissionError{Reason: "validity window expired", Err: err, retryable: true}
	case strings.Contains(msg, "overspend"),
		strings.Contains(msg, "below min"),
		strings.Contains(msg, "logic eval error"),
		strings.Contains(msg, "rejected by approvalprogram"),
		strings.Contains(msg, "should have been authorized"),
		strings.Contains(msg, "signature validation failed"):
		return &SubmissionError{Reason: "rejected by node", Err: err, retryable: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &SubmissionError{Reason: "network failure", Err: err, retryable: true}
	}

	// Unknown node responses are treated as retryable up to the attempt
	// budget; the lease makes a duplicate landing impossible.
	return &SubmissionError{Reason: "send failed", Err: err, retryable: true}
}

// fulfillLease derives the per-round lease. Two transactions from the same
// sender with the same lease cannot both be confirmed inside a validity
// window, which makes retries idempotent at the protocol level.
func fulfillLease(round uint64) [32]byte {
	return sha512.Sum512_256(append([]byte("vrf/lease"), models.RoundBytes(round)...))
}

// buildFulfillTxn constructs the application call that delivers the proof
// and output on-chain, referencing the requester account.
func (d *VRFDaemon) buildFulfillTxn(sp types.SuggestedParams, req models.VrfRequest, proof models.VrfProof) (types.Transaction, error) {
	appArgs := [][]byte{
		[]byte("fulfill"), models.RoundBytes(req.Round), req.Seed[:], proof.Proof[:], proof.Output[:],
	}

	sp.LastRoundValid = sp.FirstRoundValid + fulfillValidityWindow

	return future.MakeApplicationNoOpTx(
		d.AppID, appArgs, []string{req.Requester.String()}, nil, nil, sp,
		d.ServiceAccount.Address, nil, types.Digest{}, fulfillLease(req.Round), types.ZeroAddress,
	)
}

// submit sends the fulfillment and drives the round to a terminal status.
// Every attempt resends the SAME proof in a freshly built transaction; the
// proof is never regenerated with different input. The attempt counter is
// persisted so the budget survives a crash.
func (d *VRFDaemon) submit(ctx context.Context, entry *ledger.Entry, req models.VrfRequest, proof models.VrfProof) {
	for entry.Attempts < d.MaxAttempts {
		if entry.Attempts > 0 {
			if err := tools.Sleep(ctx, tools.Backoff(entry.Attempts, d.BackoffBase, d.BackoffCap)); err != nil {
				return
			}
		}

		var sp types.SuggestedParams
		err := tools.Retry(ctx, 3, d.BackoffBase, d.BackoffCap,
			func() error {
				var err error
				sp, err = d.Chain.SuggestedParams(ctx)
				return err
			},
			func(err error) {
				log.Warnf("failed getting suggested params, trying again...: %v", err)
			},
		)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("giving up on round %d for now, params unavailable: %v", req.Round, err)
			return
		}

		txn, err := d.buildFulfillTxn(sp, req, proof)
		if err != nil {
			d.fail(entry, fmt.Sprintf("failed building fulfillment: %v", err))
			return
		}
		txid, stx, err := crypto.SignTransaction(d.ServiceAccount.PrivateKey, txn)
		if err != nil {
			d.fail(entry, fmt.Sprintf("failed signing fulfillment: %v", err))
			return
		}

		entry.Status = ledger.StatusSubmitted
		entry.Attempts++
		entry.LastAttempt = time.Now().Unix()
		entry.TxID = txid
		if err := d.Ledger.Record(entry); err != nil {
			log.Errorf("failed recording round %d submission: %v", req.Round, err)
			return
		}
		submissionAttempts.Inc()
		log.Infof("sending fulfillment for round %d, attempt %d, txn %s", req.Round, entry.Attempts, txid)

		if _, err := d.Chain.SendRawTransaction(ctx, stx); err != nil {
			classified := classifySendError(err)
			if errors.Is(classified, errAlreadyProcessed) {
				log.Infof("round %d was already fulfilled on-chain", req.Round)
				d.confirm(entry, txid)
				return
			}

			var subErr *SubmissionError
			if errors.As(classified, &subErr) && subErr.Retryable() {
				if ctx.Err() != nil {
					return
				}
				submissionRetries.Inc()
				log.Warnf("retryable failure on round %d: %v", req.Round, classified)
				continue
			}

			d.fail(entry, classified.Error())
			return
		}

		err = d.waitForConfirmation(ctx, txid, uint64(txn.LastValid))
		if err == nil {
			d.confirm(entry, txid)
			return
		}
		if ctx.Err() != nil {
			// Shutdown with a submission in flight: the round stays
			// Submitted and the reconciler resumes it on next startup.
			return
		}
		if errors.Is(err, errTxnDead) {
			submissionRetries.Inc()
			log.Warnf("fulfillment for round %d went dead, resending same proof: %v", req.Round, err)
			continue
		}
		log.Warnf("confirmation trouble on round %d: %v", req.Round, err)
	}

	d.fail(entry, fmt.Sprintf("attempt budget (%d) exhausted", d.MaxAttempts))
}

// waitForConfirmation polls until the transaction is confirmed and then
// waits out the configured confirmation depth. Returns errTxnDead if the
// validity window passes unconfirmed.
func (d *VRFDaemon) waitForConfirmation(ctx context.Context, txid string, lastValid uint64) error {
	var confirmed uint64
	for confirmed == 0 {
		block, poolErr, err := d.Chain.PendingInfo(ctx, txid)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debugf("pending info for %s unavailable: %v, trying again...", txid, err)
		} else if poolErr != "" {
			return fmt.Errorf("%w: %s", errTxnDead, poolErr)
		} else if block > 0 {
			confirmed = block
			break
		}

		last, err := d.Chain.LastBlock(ctx)
		if err == nil && last > lastValid {
			return errTxnDead
		}
		if err := tools.Sleep(ctx, d.PollInterval); err != nil {
			return err
		}
	}

	// Confirmed; now wait until the chain is ConfirmationDepth blocks past
	// the confirming block.
	for {
		last, err := d.Chain.LastBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debugf("status unavailable while waiting for depth: %v", err)
			if err := tools.Sleep(ctx, d.PollInterval); err != nil {
				return err
			}
			continue
		}
		if last >= confirmed+d.ConfirmationDepth-1 {
			return nil
		}
		if err := d.Chain.WaitAfterBlock(ctx, last); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := tools.Sleep(ctx, d.PollInterval); err != nil {
				return err
			}
		}
	}
}

func (d *VRFDaemon) confirm(entry *ledger.Entry, txid string) {
	entry.Status = ledger.StatusConfirmed
	entry.TxID = txid
	if err := d.Ledger.Record(entry); err != nil {
		log.Errorf("failed recording round %d as confirmed: %v", entry.Round, err)
		return
	}
	roundsConfirmed.Inc()
	log.Infof("round %d confirmed with txn %s", entry.Round, txid)
}

// fail marks the round Failed and surfaces it for operator action. Failed
// rounds are never retried automatically.
func (d *VRFDaemon) fail(entry *ledger.Entry, reason string) {
	entry.Status = ledger.StatusFailed
	entry.Reason = reason
	if err := d.Ledger.Record(entry); err != nil {
		log.Errorf("failed recording round %d as failed: %v", entry.Round, err)
		return
	}
	roundsFailed.Inc()
	log.Errorf("round %d failed, operator action required: %s", entry.Round, reason)
}
