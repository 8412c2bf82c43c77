package models

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/algorand/go-algorand-sdk/types"
)

const (
	// SeedByteLen is the size of the VRF input seed.
	SeedByteLen = 32
	// ProofByteLen is the size of an ECVRF proof (gamma || c || s).
	ProofByteLen = 80
	// OutputByteLen is the size of the VRF output hash.
	OutputByteLen = 32
)

// VrfRequest is a single decoded randomness request. Round is the
// application's own request counter, Block is the chain block the request
// transaction was confirmed in. Immutable once decoded.
type VrfRequest struct {
	Round     uint64
	Requester types.Address
	Block     uint64
	Seed      [SeedByteLen]byte
}

// VrfProof holds the proof and derived output for a single round.
type VrfProof struct {
	Round  uint64
	Proof  [ProofByteLen]byte
	Output [OutputByteLen]byte
}

// RoundBytes returns the round number as 8 big-endian bytes, the encoding
// used both in request logs and fulfillment arguments.
func RoundBytes(round uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, round)
	return b
}

// DeriveSeed computes the VRF input seed for a request. The block seed is
// taken from the block the request landed in, so the seed can always be
// re-derived from round + requester + chain history after a restart.
func DeriveSeed(round uint64, blockSeed []byte, requester types.Address) [SeedByteLen]byte {
	toHash := append(RoundBytes(round), blockSeed...)
	toHash = append(toHash, requester[:]...)
	return sha512.Sum512_256(toHash)
}
