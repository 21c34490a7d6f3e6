package rscoin

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ErrBadSignature is the failure kind named by §4.A. PublicKeyFromBytes wraps
// it around key parse failures; Signature.Verify reports a failed or
// unparsable signature through its bool result instead.
var ErrBadSignature = errors.New("rscoin: bad signature")

// SecretKey is an asymmetric signing key (secp256k1, via btcec).
type SecretKey struct {
	key *btcec.PrivateKey
}

// PublicKey wraps the verifying half of a keypair.
type PublicKey struct {
	key *btcec.PublicKey
}

// GenerateSecretKey creates a fresh random keypair.
func GenerateSecretKey() (SecretKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return SecretKey{}, fmt.Errorf("rscoin: generate key: %w", err)
	}
	return SecretKey{key: key}, nil
}

// SecretKeyFromBytes parses a 32-byte scalar into a SecretKey.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	if len(b) != 32 {
		return SecretKey{}, fmt.Errorf("rscoin: secret key must be 32 bytes, got %d", len(b))
	}
	key, pub := btcec.PrivKeyFromBytes(b)
	_ = pub
	return SecretKey{key: key}, nil
}

// Bytes returns the raw 32-byte scalar.
func (sk SecretKey) Bytes() []byte {
	return sk.key.Serialize()
}

// Public derives the public half of sk.
func (sk SecretKey) Public() PublicKey {
	return PublicKey{key: sk.key.PubKey()}
}

// PublicKeyFromBytes parses a compressed (33-byte) secp256k1 public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return PublicKey{key: key}, nil
}

// Bytes returns the compressed SEC1 encoding of the public key.
func (pk PublicKey) Bytes() []byte {
	if pk.key == nil {
		return nil
	}
	return pk.key.SerializeCompressed()
}

// Equal reports whether two public keys encode the same point.
func (pk PublicKey) Equal(other PublicKey) bool {
	if pk.key == nil || other.key == nil {
		return pk.key == other.key
	}
	return pk.key.IsEqual(other.key)
}

func (pk PublicKey) String() string {
	return fmt.Sprintf("%x", pk.Bytes())
}

// IsZero reports whether pk is the unset public key.
func (pk PublicKey) IsZero() bool {
	return pk.key == nil
}

// Signature is a signature over the canonical encoding of a T.
//
// It carries no reference to T at runtime — the type parameter exists
// purely to prevent a Signature<Transaction> from being handed to a
// verifier expecting a Signature<AddrId>, catching the mistake at compile
// time rather than only surfacing it as a verification failure.
type Signature[T Marshaler] struct {
	der []byte
}

// Sign produces a Signature<T> over the canonical encoding of v.
func Sign[T Marshaler](sk SecretKey, v T) (Signature[T], error) {
	h, err := HashOf(v)
	if err != nil {
		return Signature[T]{}, err
	}
	sig := ecdsa.Sign(sk.key, h[:])
	return Signature[T]{der: sig.Serialize()}, nil
}

// Verify checks sig against v under pk.
func (sig Signature[T]) Verify(pk PublicKey, v T) bool {
	if len(sig.der) == 0 || pk.key == nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig.der)
	if err != nil {
		return false
	}
	h, err := HashOf(v)
	if err != nil {
		return false
	}
	return parsed.Verify(h[:], pk.key)
}

// Bytes returns the DER-encoded signature.
func (sig Signature[T]) Bytes() []byte {
	return sig.der
}

// SignatureFromBytes wraps a previously-serialized DER signature.
func SignatureFromBytes[T Marshaler](b []byte) Signature[T] {
	return Signature[T]{der: append([]byte(nil), b...)}
}

// IsZero reports whether sig carries no bytes (an absent/unset signature).
func (sig Signature[T]) IsZero() bool {
	return len(sig.der) == 0
}
