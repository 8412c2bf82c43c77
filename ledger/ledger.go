// Package ledger tracks per-round fulfillment state. It is the single
// source of truth for whether a round has been handled: the watcher and
// the reconciler both consult it before triggering new work, and the
// submission path records every transition through it.
package ledger

import (
	"errors"
	"fmt"
)

// Status is the fulfillment state of a single round. Rounds only move
// forward through statuses; Confirmed and Failed are terminal.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProofGenerated Status = "proof-generated"
	StatusSubmitted      Status = "submitted"
	StatusConfirmed      Status = "confirmed"
	StatusFailed         Status = "failed"
)

var statusRank = map[Status]int{
	StatusPending:        0,
	StatusProofGenerated: 1,
	StatusSubmitted:      2,
	StatusConfirmed:      3,
	StatusFailed:         3,
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// ErrRegression is returned when a Record call would move a round
// backwards or out of a terminal status.
var ErrRegression = errors.New("ledger: status transition would regress")

// Entry is the durable record for one round.
type Entry struct {
	Round     uint64 `json:"round"`
	Status    Status `json:"status"`
	Requester string `json:"requester"`
	Block     uint64 `json:"block"`
	Seed      []byte `json:"seed,omitempty"`
	Proof     []byte `json:"proof,omitempty"`
	Output    []byte `json:"output,omitempty"`

	Attempts    int    `json:"attempts"`
	LastAttempt int64  `json:"last-attempt,omitempty"`
	TxID        string `json:"txid,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Store is the interface both ledger implementations satisfy. Record is
// the only mutation path for entries; implementations serialize it so that
// no two callers can advance the same round concurrently.
type Store interface {
	// Get returns the entry for round, or nil if the round is unknown.
	Get(round uint64) (*Entry, error)

	// Record persists entry, enforcing forward-only status transitions.
	// Re-recording the same status is allowed so attempt counters and
	// timestamps can be updated in place.
	Record(entry *Entry) error

	// Unresolved returns all entries that are not in a terminal status,
	// ordered by round. The reconciler re-queues these on startup.
	Unresolved() ([]*Entry, error)

	// MaxRound returns the highest round any entry exists for, or zero if
	// the ledger is empty. The reconciler compares it against the on-chain
	// counter to spot rounds the ledger never saw.
	MaxRound() (uint64, error)

	// LastConfirmed returns the Confirmed entry with the highest round, or
	// nil if no round has been confirmed yet.
	LastConfirmed() (*Entry, error)

	// Watermark returns the highest chain block the watcher has fully
	// scanned, or zero if no scan has completed.
	Watermark() (uint64, error)
	SetWatermark(block uint64) error

	Close() error
}

// checkTransition enforces the forward-only rule shared by all stores.
func checkTransition(prev *Entry, next *Entry) error {
	if prev == nil {
		return nil
	}
	if prev.Status.Terminal() && prev.Status != next.Status {
		return fmt.Errorf("%w: round %d is already %s", ErrRegression, prev.Round, prev.Status)
	}
	if statusRank[next.Status] < statusRank[prev.Status] {
		return fmt.Errorf("%w: round %d cannot move %s -> %s", ErrRegression, prev.Round, prev.Status, next.Status)
	}
	return nil
}
