// Package mintette implements the Mintette transactional state machine
// (§4.C/§4.D): the UTXO + pending-spend-set bookkeeping, the action log, and
// the check-then-commit two-phase transaction acceptance protocol.
package mintette

import (
	"sync"

	"github.com/rawblock/rscoin/pkg/rscoin"
)

// Phase is the mintette-level lifecycle state named in §4.C: Idle only ever
// holds at periodId 0 before the first startPeriod; thereafter the node
// alternates Running/Sealing.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseSealing
)

// utxoEntry is one unspent output this mintette is responsible for.
type utxoEntry struct {
	AddrID rscoin.AddrId
	Owner  rscoin.Address
}

// State is the pure, serializable record a Mintette carries. Every
// operation in statemachine.go is a function of (State, inputs) ->
// (Result, State); Storage below is the only place that takes a lock and
// mutates in place.
type State struct {
	Phase Phase

	UTXO map[rscoin.AddrKey]utxoEntry
	PSet map[rscoin.AddrKey]rscoin.Transaction

	ActionLog rscoin.ActionLog
	// LBlocks accumulated for the current period only, most recent first.
	LBlocks []rscoin.LBlock
	// CommittedTxs tracks commitTx idempotency within the current period:
	// hash(tx) -> the acknowledgment returned the first time it committed.
	CommittedTxs map[rscoin.Hash]rscoin.CommitAcknowledgment

	PeriodID           uint64
	CurrentMintetteID  rscoin.MintetteID
	PreviousMintetteID *rscoin.MintetteID

	Mintettes   []rscoin.Address // roster, by position = MintetteID
	DPK         []rscoin.DPKEntry
	OwnerFanout int
	// Addresses is the spend-strategy book pushed down by the Bank at the
	// last period boundary; storage of the authoritative book is external
	// to this package (it lives at the Bank, see §3's "storage of the
	// strategy map itself is external").
	Addresses rscoin.AddressBook

	LastHBlockHash rscoin.Hash

	// Archived holds, per closed periodId, the sealed action log and
	// LBlocks produced by finishPeriod — the source for getLogs/getBlocks.
	Archived map[uint64]ArchivedPeriod
}

// ArchivedPeriod is what finishPeriod snapshots for a closed period.
type ArchivedPeriod struct {
	ActionLog rscoin.ActionLog
	LBlocks   []rscoin.LBlock
}

// NewState returns a freshly-initialized Idle mintette with no history.
func NewState(id rscoin.MintetteID, mintettes []rscoin.Address, dpk []rscoin.DPKEntry, fanout int) State {
	return State{
		Phase:             PhaseIdle,
		UTXO:              make(map[rscoin.AddrKey]utxoEntry),
		PSet:              make(map[rscoin.AddrKey]rscoin.Transaction),
		CommittedTxs:      make(map[rscoin.Hash]rscoin.CommitAcknowledgment),
		CurrentMintetteID: id,
		Mintettes:         mintettes,
		DPK:               dpk,
		OwnerFanout:       fanout,
		Addresses:         rscoin.NewAddressBook(),
		Archived:          make(map[uint64]ArchivedPeriod),
	}
}

// clone returns a deep-enough copy for atomic publish-on-success semantics:
// maps are copied so a failed operation never mutates the storage's live
// state, matching §8's atomicity invariant.
func (s State) clone() State {
	out := s
	out.UTXO = make(map[rscoin.AddrKey]utxoEntry, len(s.UTXO))
	for k, v := range s.UTXO {
		out.UTXO[k] = v
	}
	out.PSet = make(map[rscoin.AddrKey]rscoin.Transaction, len(s.PSet))
	for k, v := range s.PSet {
		out.PSet[k] = v
	}
	out.CommittedTxs = make(map[rscoin.Hash]rscoin.CommitAcknowledgment, len(s.CommittedTxs))
	for k, v := range s.CommittedTxs {
		out.CommittedTxs[k] = v
	}
	out.LBlocks = append([]rscoin.LBlock(nil), s.LBlocks...)
	out.Mintettes = append([]rscoin.Address(nil), s.Mintettes...)
	out.DPK = append([]rscoin.DPKEntry(nil), s.DPK...)
	out.Archived = make(map[uint64]ArchivedPeriod, len(s.Archived))
	for k, v := range s.Archived {
		out.Archived[k] = v
	}
	out.ActionLog = rscoin.ActionLog{Entries: append([]rscoin.LogEntry(nil), s.ActionLog.Entries...)}
	out.Addresses = s.Addresses.Clone()
	return out
}

// Storage is the single-writer store wrapping State: every RPC handler
// suspends on acquiring this lock (§5 "Suspension points"), never holding it
// across network I/O — only across the in-memory state transition itself.
type Storage struct {
	mu    sync.RWMutex
	state State
}

// NewStorage wraps an initial State.
func NewStorage(initial State) *Storage {
	return &Storage{state: initial}
}

// View runs fn against a read-only snapshot of the current state, allowing
// concurrent readers alongside a writer that is between transactions.
func (s *Storage) View(fn func(State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Snapshot returns a copy of the current state, for persistence.
func (s *Storage) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// mutate runs fn against a clone of the current state; if fn returns a nil
// error the clone is published as the new live state, otherwise the live
// state is left untouched. This is the mechanism behind §8's "atomic
// commit" invariant: a failing check never leaves partial state behind.
func (s *Storage) mutate(fn func(State) (State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state.clone())
	if err != nil {
		return err
	}
	s.state = next
	return nil
}
