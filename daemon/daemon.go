// Package daemon implements the oracle process: it watches the chain for
// randomness requests, computes VRF proofs and submits fulfillment
// transactions, tracking every round through the ledger so that each
// request is fulfilled at most once even across crashes.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/algorand/go-algorand-sdk/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/seedworks/vrf-oracle/chain"
	"github.com/seedworks/vrf-oracle/ledger"
	"github.com/seedworks/vrf-oracle/models"
	"github.com/seedworks/vrf-oracle/vrf"
)

type VRFDaemon struct {
	Chain  chain.Client // Client used to interact with the chain
	Ledger ledger.Store // Durable per-round fulfillment state

	AppID uint64 // Application that requests and stores randomness

	VRFKey         *vrf.SecretKey // Generates VRF proofs
	ServiceAccount crypto.Account // Signs and sends fulfillments

	PollInterval      time.Duration
	ConfirmationDepth uint64
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	Workers           int

	inflight sync.Map // round -> struct{}, one worker per round
}

// New wires a daemon from its collaborators and tuning options.
func New(client chain.Client, store ledger.Store, key *vrf.SecretKey, service crypto.Account, conf *Config) *VRFDaemon {
	return &VRFDaemon{
		Chain:  client,
		Ledger: store,

		AppID: conf.AppID,

		VRFKey:         key,
		ServiceAccount: service,

		PollInterval:      conf.pollInterval(),
		ConfirmationDepth: conf.ConfirmationDepth,
		MaxAttempts:       conf.MaxAttempts,
		BackoffBase:       conf.backoffBase(),
		BackoffCap:        conf.backoffCap(),
		Workers:           conf.Workers,
	}
}

// NewFromConfig builds a daemon with production collaborators from a JSON
// config file.
func NewFromConfig(path string) (*VRFDaemon, error) {
	conf, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewFromLoadedConfig(conf)
}

// NewFromLoadedConfig builds a daemon with production collaborators from an
// already loaded configuration.
func NewFromLoadedConfig(conf *Config) (*VRFDaemon, error) {
	client, err := chain.NewAlgorand(conf.AlgodAddress, conf.AlgodToken, conf.IndexerAddress, conf.IndexerToken, conf.AppID)
	if err != nil {
		return nil, err
	}

	store, err := ledger.OpenLevelDB(conf.LedgerPath)
	if err != nil {
		return nil, err
	}

	rawKey, err := conf.VRFSecret()
	if err != nil {
		return nil, err
	}
	key, err := vrf.NewSecretKey(rawKey)
	if err != nil {
		return nil, err
	}

	service, err := AccountFromMnemonic(conf.Service)
	if err != nil {
		return nil, err
	}

	return New(client, store, key, service, conf), nil
}

// Run reconciles the ledger against the chain, then watches for requests
// and processes them with a bounded worker pool until ctx is cancelled.
// Rounds still in flight at shutdown are left in the ledger and resumed by
// the next reconciliation.
func (d *VRFDaemon) Run(ctx context.Context) error {
	resumed, err := d.reconcile(ctx)
	if err != nil {
		return err
	}

	requests := make(chan models.VrfRequest)

	var wg sync.WaitGroup
	for i := 0; i < d.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range requests {
				d.handle(ctx, req)
			}
		}()
	}

	var watchErr error
	go func() {
		defer close(requests)
		for _, req := range resumed {
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
		watchErr = d.watch(ctx, requests)
	}()

	wg.Wait()
	if watchErr != nil {
		return watchErr
	}
	log.Info("daemon stopped")
	return nil
}

// handle drives one round from decoded request to terminal status. Rounds
// are independent; the inflight map keeps duplicate deliveries of the same
// round from racing each other.
func (d *VRFDaemon) handle(ctx context.Context, req models.VrfRequest) {
	if _, loaded := d.inflight.LoadOrStore(req.Round, struct{}{}); loaded {
		return
	}
	defer d.inflight.Delete(req.Round)

	entry, err := d.Ledger.Get(req.Round)
	if err != nil {
		log.Errorf("failed reading ledger for round %d: %v", req.Round, err)
		return
	}
	if entry != nil && entry.Status.Terminal() {
		log.Debugf("round %d is already %s, skipping", req.Round, entry.Status)
		return
	}
	if entry == nil {
		entry = &ledger.Entry{
			Round:     req.Round,
			Status:    ledger.StatusPending,
			Requester: req.Requester.String(),
			Block:     req.Block,
			Seed:      req.Seed[:],
		}
		if err := d.Ledger.Record(entry); err != nil {
			log.Errorf("failed recording round %d as pending: %v", req.Round, err)
			return
		}
	}

	proof, err := d.proofForRound(entry, req)
	if errors.Is(err, vrf.ErrInvalidKey) || errors.Is(err, vrf.ErrInvalidProof) {
		// Crypto failures are fatal for the round. The seed must never be
		// altered to force success, that would break the binding between
		// request and proof.
		log.Errorf("crypto failure on round %d: %v", req.Round, err)
		entry.Status = ledger.StatusFailed
		entry.Reason = err.Error()
		if rerr := d.Ledger.Record(entry); rerr != nil {
			log.Errorf("failed recording round %d failure: %v", req.Round, rerr)
		}
		roundsFailed.Inc()
		return
	} else if err != nil {
		// Ledger I/O trouble, leave the round for the reconciler.
		log.Errorf("failed persisting proof for round %d: %v", req.Round, err)
		return
	}

	d.submit(ctx, entry, req, proof)
}

// proofForRound returns the proof for the round, reusing persisted bytes
// when a previous run already generated them. Proofs are deterministic, so
// a resumed round regenerates the exact same bytes, but reusing the stored
// proof keeps the invariant inspectable.
func (d *VRFDaemon) proofForRound(entry *ledger.Entry, req models.VrfRequest) (models.VrfProof, error) {
	proof := models.VrfProof{Round: req.Round}

	if len(entry.Proof) == models.ProofByteLen && len(entry.Output) == models.OutputByteLen {
		copy(proof.Proof[:], entry.Proof)
		copy(proof.Output[:], entry.Output)
		return proof, nil
	}

	proof.Proof, proof.Output = d.VRFKey.Prove(req.Seed[:])

	// Self-consistency check: the proof we are about to publish must
	// verify against our own public key.
	verified, err := d.VRFKey.Public().Verify(req.Seed[:], proof.Proof[:])
	if err != nil {
		return proof, err
	}
	if verified != proof.Output {
		return proof, vrf.ErrInvalidProof
	}

	entry.Status = ledger.StatusProofGenerated
	entry.Proof = proof.Proof[:]
	entry.Output = proof.Output[:]
	if err := d.Ledger.Record(entry); err != nil {
		return proof, err
	}
	proofsGenerated.Inc()
	log.Debugf("generated proof for round %d, output %x", req.Round, proof.Output)

	return proof, nil
}
