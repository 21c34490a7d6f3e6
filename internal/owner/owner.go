// Package owner implements the deterministic owner-selection rule shared by
// the Bank and every Mintette (§4.B). Both sides must compute identical
// results from identical inputs — this is the one place where Bank/Mintette
// protocol compatibility is load-bearing, so the algorithm is fixed here
// rather than left as a pluggable strategy.
package owner

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/rawblock/rscoin/pkg/rscoin"
)

// maxProbes bounds the HMAC-probing loop before falling back to a
// deterministic fill of the smallest unused indices. With a 64-bit HMAC
// output space this is never hit in practice; it exists so Owners always
// terminates even against a pathological/malicious txHash.
const maxProbes = 4096

// Owners returns a deterministic, ordered, distinct subset of mintette ids
// in [0, mintetteCount), of size min(fanout, mintetteCount), selected by
// taking the first-k distinct indices from HMAC-SHA256(txHash, i) mod N as i
// increments from 0.
func Owners(mintetteCount int, txHash rscoin.Hash, fanout int) []rscoin.MintetteID {
	if mintetteCount <= 0 {
		return nil
	}
	k := fanout
	if k > mintetteCount {
		k = mintetteCount
	}
	if k <= 0 {
		return nil
	}

	seen := make(map[int]bool, k)
	out := make([]rscoin.MintetteID, 0, k)

	for i := 0; len(out) < k && i < maxProbes; i++ {
		idx := probeIndex(txHash, i, mintetteCount)
		if !seen[idx] {
			seen[idx] = true
			out = append(out, rscoin.MintetteID(idx))
		}
	}

	// Deterministic fallback: fill any remaining slots with the smallest
	// unused indices, in order.
	for idx := 0; len(out) < k; idx++ {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, rscoin.MintetteID(idx))
		}
	}

	return out
}

// IsOwner reports whether id is among the owners of txHash.
func IsOwner(mintetteCount int, txHash rscoin.Hash, fanout int, id rscoin.MintetteID) bool {
	for _, owner := range Owners(mintetteCount, txHash, fanout) {
		if owner == id {
			return true
		}
	}
	return false
}

// HasMajority reports whether committers contains a strict majority
// (> half) of owners(txHash).
func HasMajority(mintetteCount int, txHash rscoin.Hash, fanout int, committers map[rscoin.MintetteID]bool) bool {
	owners := Owners(mintetteCount, txHash, fanout)
	if len(owners) == 0 {
		return false
	}
	count := 0
	for _, o := range owners {
		if committers[o] {
			count++
		}
	}
	return count*2 > len(owners)
}

func probeIndex(txHash rscoin.Hash, i int, mintetteCount int) int {
	mac := hmac.New(sha256.New, txHash[:])
	var iBytes [8]byte
	binary.BigEndian.PutUint64(iBytes[:], uint64(i))
	mac.Write(iBytes[:])
	sum := mac.Sum(nil)
	v := binary.BigEndian.Uint64(sum[:8])
	return int(v % uint64(mintetteCount))
}
