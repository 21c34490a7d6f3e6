package rscoin

import "sort"

// AddressBook is the Address -> TxStrategy map. Address wraps a pointer-typed
// PublicKey, so it cannot be used directly as a Go map key (two wrappers
// around the same point would not compare equal); AddressBook keys by the
// address's compressed byte encoding instead.
type AddressBook struct {
	entries map[string]addressEntry
}

type addressEntry struct {
	addr     Address
	strategy TxStrategy
}

// NewAddressBook returns an empty book.
func NewAddressBook() AddressBook {
	return AddressBook{entries: make(map[string]addressEntry)}
}

func addrKey(a Address) string { return string(a.Key.Bytes()) }

// Set records the strategy for addr, overwriting any prior entry.
func (b *AddressBook) Set(addr Address, strategy TxStrategy) {
	if b.entries == nil {
		b.entries = make(map[string]addressEntry)
	}
	b.entries[addrKey(addr)] = addressEntry{addr: addr, strategy: strategy}
}

// Get returns the strategy for addr, defaulting to StrategyDefault when the
// address has no explicit entry.
func (b AddressBook) Get(addr Address) TxStrategy {
	if e, ok := b.entries[addrKey(addr)]; ok {
		return e.strategy
	}
	return DefaultStrategy()
}

// Len reports the number of explicit entries.
func (b AddressBook) Len() int { return len(b.entries) }

// Clone returns an independent copy.
func (b AddressBook) Clone() AddressBook {
	out := NewAddressBook()
	for k, v := range b.entries {
		out.entries[k] = v
	}
	return out
}

// Merge returns a new book containing b's entries overlaid with other's
// (other wins on key collision) — used to fold the Bank's pending address
// set into the live set at a period boundary.
func (b AddressBook) Merge(other AddressBook) AddressBook {
	out := b.Clone()
	for k, v := range other.entries {
		out.entries[k] = v
	}
	return out
}

// sortedKeys returns the entry keys in deterministic (byte-lexicographic) order.
func (b AddressBook) sortedKeys() []string {
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b AddressBook) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	keys := b.sortedKeys()
	e.putUint32(uint32(len(keys)))
	for _, k := range keys {
		entry := b.entries[k]
		addrBytes, err := entry.addr.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		e.putBytes(addrBytes)
		e.putUint32(uint32(entry.strategy.Kind))
		e.putUint32(uint32(entry.strategy.M))
		e.putUint32(uint32(len(entry.strategy.Keys)))
		for _, key := range entry.strategy.Keys {
			e.putBytes(key.Bytes())
		}
	}
	return e.bytes(), nil
}
