package rscoin

import "sort"

// EntryKind tags which variant of LogEntry is populated.
type EntryKind int

const (
	EntryQuery EntryKind = iota
	EntryCommit
	EntryCloseEpoch
)

// QueryEntryData records a successful checkNotDoubleSpent.
type QueryEntryData struct {
	Tx           Transaction
	AddrID       AddrId
	Confirmation CheckConfirmation
}

// CommitEntryData records a successful commitTx, including the confirmations
// the client supplied from every owner.
type CommitEntryData struct {
	Tx            Transaction
	Confirmations map[MintetteID]CheckConfirmation
}

// CloseEpochEntryData seals an epoch's worth of commits into an LBlock.
type CloseEpochEntryData struct {
	LBlockHash Hash
}

// LogEntry is one node of a mintette's hash-chained action log.
type LogEntry struct {
	PrevHash   Hash
	Kind       EntryKind
	Query      *QueryEntryData
	Commit     *CommitEntryData
	CloseEpoch *CloseEpochEntryData
}

// Hash returns the digest chained into the next entry's PrevHash.
func (e LogEntry) Hash() (Hash, error) {
	return HashOf(e)
}

func (e LogEntry) MarshalCanonical() ([]byte, error) {
	enc := newEncoder()
	enc.putHash(e.PrevHash)
	enc.putUint32(uint32(e.Kind))
	switch e.Kind {
	case EntryQuery:
		if e.Query == nil {
			return nil, errNilVariant("Query")
		}
		txBytes, err := e.Query.Tx.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		enc.putBytes(txBytes)
		addrBytes, err := e.Query.AddrID.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		enc.putBytes(addrBytes)
		enc.putHash(e.Query.Confirmation.LogHead)
		enc.putUint64(e.Query.Confirmation.PeriodID)
		enc.putBytes(e.Query.Confirmation.MintetteSig.Bytes())
	case EntryCommit:
		if e.Commit == nil {
			return nil, errNilVariant("Commit")
		}
		txBytes, err := e.Commit.Tx.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		enc.putBytes(txBytes)
		ids := make([]int, 0, len(e.Commit.Confirmations))
		for id := range e.Commit.Confirmations {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		enc.putUint32(uint32(len(ids)))
		for _, id := range ids {
			enc.putUint32(uint32(id))
			conf := e.Commit.Confirmations[MintetteID(id)]
			enc.putHash(conf.LogHead)
			enc.putUint64(conf.PeriodID)
			enc.putBytes(conf.MintetteSig.Bytes())
		}
	case EntryCloseEpoch:
		if e.CloseEpoch == nil {
			return nil, errNilVariant("CloseEpoch")
		}
		enc.putHash(e.CloseEpoch.LBlockHash)
	}
	return enc.bytes(), nil
}

func errNilVariant(name string) error {
	return &nilVariantError{name}
}

type nilVariantError struct{ name string }

func (e *nilVariantError) Error() string {
	return "rscoin: LogEntry.Kind set but " + e.name + " variant is nil"
}

// ActionLog is an ordered, hash-chained sequence of entries, oldest first.
type ActionLog struct {
	Entries []LogEntry
}

// HeadHash returns the hash of the last entry, or ZeroHash if empty.
func (l ActionLog) HeadHash() (Hash, error) {
	if len(l.Entries) == 0 {
		return ZeroHash, nil
	}
	return l.Entries[len(l.Entries)-1].Hash()
}

// Append returns a copy of the log with a new entry chained from the
// current head.
func (l ActionLog) Append(kind EntryKind, query *QueryEntryData, commit *CommitEntryData, closeEpoch *CloseEpochEntryData) (ActionLog, error) {
	head, err := l.HeadHash()
	if err != nil {
		return l, err
	}
	entry := LogEntry{PrevHash: head, Kind: kind, Query: query, Commit: commit, CloseEpoch: closeEpoch}
	out := ActionLog{Entries: append(append([]LogEntry(nil), l.Entries...), entry)}
	return out, nil
}

// LastCloseEpochIndex returns the index of the most recent CloseEpochEntry,
// or -1 if none exists.
func (l ActionLog) LastCloseEpochIndex() int {
	for i := len(l.Entries) - 1; i >= 0; i-- {
		if l.Entries[i].Kind == EntryCloseEpoch {
			return i
		}
	}
	return -1
}

// VerifyChain checks that every entry's PrevHash links correctly to the one
// before it, and that the very first entry chains from expectedHead.
func (l ActionLog) VerifyChain(expectedHead Hash) (bool, error) {
	prev := expectedHead
	for _, entry := range l.Entries {
		if entry.PrevHash != prev {
			return false, nil
		}
		h, err := entry.Hash()
		if err != nil {
			return false, err
		}
		prev = h
	}
	return true, nil
}
