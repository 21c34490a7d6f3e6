// Package rscoin holds the cryptographic envelope and wire types shared by
// the Bank and every Mintette: hashes, keys, signatures, transactions,
// addrids and blocks. Everything here is pure data plus canonical encoding —
// no storage, no RPC, no concurrency.
package rscoin

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash is a 256-bit digest of a canonical serialization (see Marshaler).
type Hash [chainhash.HashSize]byte

// ZeroHash is the distinguished all-zero hash used as the prevHash of the
// first action-log entry and as the prevHBlockHash of the genesis HBlock.
var ZeroHash Hash

// HashBytes hashes raw bytes with a single SHA-256 (chainhash.HashH).
func HashBytes(b []byte) Hash {
	return Hash(chainhash.HashH(b))
}

// HashOf hashes the canonical encoding of any Marshaler.
func HashOf(m Marshaler) (Hash, error) {
	b, err := m.MarshalCanonical()
	if err != nil {
		return Hash{}, fmt.Errorf("rscoin: marshal for hash: %w", err)
	}
	return HashBytes(b), nil
}

// EmissionHash is the distinguished input hash used by the single emission
// transaction of a period: a hash of the periodId alone, never producible by
// a real transaction since no transaction hashes to it without also being
// the canonical encoding of a bare uint64.
func EmissionHash(periodID uint64) Hash {
	return HashBytes(encodeUint64(periodID))
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the distinguished zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Marshaler produces the canonical, fixed-field-order, length-prefixed
// encoding of a value. Hash(T) and Signature<T> both operate over this
// encoding, so MarshalCanonical must be deterministic for equal values.
type Marshaler interface {
	MarshalCanonical() ([]byte, error)
}
