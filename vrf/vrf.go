// Package vrf implements the ECVRF-EDWARDS25519-SHA512-TAI cipher suite
// from RFC 9381, truncating the VRF output from 64 to 32 bytes. Proofs are
// deterministic: the same (key, seed) pair always produces the same proof
// and output bytes.
package vrf

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// SecretKeyLen is the length of a raw VRF secret key.
	SecretKeyLen = 32
	// PublicKeyLen is the length of an encoded public key point.
	PublicKeyLen = 32
	// ProofLen is the length of an encoded proof (gamma || c || s).
	ProofLen = 32 + 16 + 32
	// OutputLen is the length of the truncated VRF output.
	OutputLen = 32
)

var (
	// ErrInvalidKey is returned when secret or public key material cannot
	// be decoded. Callers must treat it as fatal for the round, never
	// retry with altered input.
	ErrInvalidKey = errors.New("vrf: invalid key material")
	// ErrInvalidProof is returned when a proof fails to decode or verify.
	ErrInvalidProof = errors.New("vrf: proof verification failed")
)

// encodeToCurve implements the trial-and-increment algorithm for encoding
// a byte string to a curve point.
func encodeToCurve(salt, m []byte) *edwards25519.Point {
	counter := 0

	for {
		buf := &bytes.Buffer{}
		buf.WriteByte(0x03) // Suite string
		buf.WriteByte(0x01) // Front domain separator
		buf.Write(salt)
		buf.Write(m)
		buf.WriteByte(byte(counter))
		buf.WriteByte(0x00) // Back domain separator

		hashStr := sha512.Sum512(buf.Bytes())

		// SetBytes verifies the point is on the curve. A small-subgroup
		// point is permissible here; MultByCofactor clears it.
		point, err := new(edwards25519.Point).SetBytes(hashStr[:32])
		if err == nil {
			point.MultByCofactor(point)
			return point
		} else if counter == 255 {
			panic("vrf: encode to curve failed unexpectedly")
		}

		counter++
	}
}

// generateNonce deterministically derives the proof nonce from the secret
// key's upper hash half and the encoded input point.
func generateNonce(upper, hStr []byte) *edwards25519.Scalar {
	kStr := sha512.Sum512(append(upper, hStr...))

	k, err := new(edwards25519.Scalar).SetUniformBytes(kStr[:])
	if err != nil {
		panic(err)
	}

	return k
}

// generateChallenge deterministically derives the proof challenge from the
// given curve points.
func generateChallenge(p1, p2, p3, p4, p5 *edwards25519.Point) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(0x03) // Suite string
	buf.WriteByte(0x02) // Front domain separator
	buf.Write(p1.Bytes())
	buf.Write(p2.Bytes())
	buf.Write(p3.Bytes())
	buf.Write(p4.Bytes())
	buf.Write(p5.Bytes())
	buf.WriteByte(0x00) // Back domain separator

	cStr := sha512.Sum512(buf.Bytes())
	for i := 16; i < 32; i++ {
		cStr[i] = 0
	}

	return cStr[:32]
}

// proofToHash converts the gamma point of a proof into the VRF output.
func proofToHash(gamma *edwards25519.Point) [OutputLen]byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(0x03) // Suite string
	buf.WriteByte(0x03) // Front domain separator
	buf.Write(new(edwards25519.Point).MultByCofactor(gamma).Bytes())
	buf.WriteByte(0x00) // Back domain separator

	h := sha512.Sum512(buf.Bytes())

	out := [OutputLen]byte{}
	copy(out[:], h[:32])
	return out
}

// SecretKey is the oracle's VRF secret key. It is immutable configuration
// state, constructed once at startup and passed in explicitly.
type SecretKey struct {
	scalar *edwards25519.Scalar
	point  *edwards25519.Point
	upper  []byte
}

// GenerateSecretKey returns 32 fresh random bytes suitable for
// NewSecretKey.
func GenerateSecretKey() []byte {
	k := make([]byte, SecretKeyLen)
	rand.Read(k)
	return k
}

// NewSecretKey decodes a raw 32-byte secret key.
func NewSecretKey(raw []byte) (*SecretKey, error) {
	if len(raw) != SecretKeyLen {
		return nil, fmt.Errorf("%w: secret key is %d bytes, want %d", ErrInvalidKey, len(raw), SecretKeyLen)
	}

	h := sha512.Sum512(raw)
	scalar, err := new(edwards25519.Scalar).SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	point := new(edwards25519.Point).ScalarBaseMult(scalar)

	return &SecretKey{scalar: scalar, point: point, upper: h[32:]}, nil
}

// Prove computes the proof and output for seed. The result is
// bit-identical across calls with the same key and seed.
func (k *SecretKey) Prove(seed []byte) (proof [ProofLen]byte, output [OutputLen]byte) {
	H := encodeToCurve(k.point.Bytes(), seed)
	hStr := H.Bytes()

	gamma := new(edwards25519.Point).ScalarMult(k.scalar, H)

	nonce := generateNonce(k.upper, hStr)
	nonceB := new(edwards25519.Point).ScalarBaseMult(nonce)
	nonceH := new(edwards25519.Point).ScalarMult(nonce, H)

	c := generateChallenge(k.point, H, gamma, nonceB, nonceH)

	s, err := new(edwards25519.Scalar).SetCanonicalBytes(c)
	if err != nil {
		panic(err)
	}
	s.MultiplyAdd(s, k.scalar, nonce)

	copy(proof[:32], gamma.Bytes())
	copy(proof[32:48], c[:16])
	copy(proof[48:], s.Bytes())

	output = proofToHash(gamma)

	return
}

// Public returns the public key matching the secret key.
func (k *SecretKey) Public() *PublicKey {
	return &PublicKey{point: k.point}
}

// PublicKey verifies proofs produced by the matching SecretKey. The oracle
// itself only uses it for self-consistency checks; the on-chain program
// does not verify proofs.
type PublicKey struct {
	point *edwards25519.Point
}

// NewPublicKey decodes an encoded public key point, rejecting
// small-subgroup points.
func NewPublicKey(raw []byte) (*PublicKey, error) {
	point, err := new(edwards25519.Point).SetBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	temp := new(edwards25519.Point).MultByCofactor(point)
	if edwards25519.NewIdentityPoint().Equal(temp) == 1 {
		return nil, fmt.Errorf("%w: public key is in a small subgroup", ErrInvalidKey)
	}
	return &PublicKey{point: point}, nil
}

// Bytes returns the encoded public key point.
func (p *PublicKey) Bytes() []byte {
	return p.point.Bytes()
}

// Verify checks proof against seed and returns the VRF output it commits
// to. The returned output agrees with Prove for a valid proof.
func (p *PublicKey) Verify(seed, proof []byte) ([OutputLen]byte, error) {
	if len(proof) != ProofLen {
		return [OutputLen]byte{}, fmt.Errorf("%w: proof is %d bytes, want %d", ErrInvalidProof, len(proof), ProofLen)
	}

	gamma, err := new(edwards25519.Point).SetBytes(proof[:32])
	if err != nil {
		return [OutputLen]byte{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	cBytes := make([]byte, 32)
	copy(cBytes[:16], proof[32:48])
	c, err := new(edwards25519.Scalar).SetCanonicalBytes(cBytes)
	if err != nil {
		return [OutputLen]byte{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	s, err := new(edwards25519.Scalar).SetCanonicalBytes(proof[48:])
	if err != nil {
		return [OutputLen]byte{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	H := encodeToCurve(p.point.Bytes(), seed)

	U := new(edwards25519.Point).ScalarBaseMult(s)
	temp := new(edwards25519.Point).ScalarMult(c, p.point)
	temp.Negate(temp)
	U.Add(U, temp)

	V := new(edwards25519.Point).ScalarMult(s, H)
	temp.ScalarMult(c, gamma).Negate(temp)
	V.Add(V, temp)

	cPrime := generateChallenge(p.point, H, gamma, U, V)
	if !bytes.Equal(cBytes, cPrime) {
		return [OutputLen]byte{}, ErrInvalidProof
	}

	return proofToHash(gamma), nil
}
