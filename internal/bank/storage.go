// Package bank implements the Bank's authoritative storage and period
// engine (§4.E/§4.F): the mintette roster and DPK, the live address/strategy
// book, the canonical HBlock chain, the global UTXO index used to compute
// each period's repartition, and the set of registered explorer ids.
package bank

import (
	"sync"

	"github.com/rawblock/rscoin/internal/mintette"
	"github.com/rawblock/rscoin/pkg/rscoin"
)

// Phase mirrors internal/mintette's lifecycle naming at the Bank: Idle only
// holds before the genesis HBlock is built.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseSealing
)

// maxMissedPeriods is the eviction threshold: a mintette that fails to
// submit a period result this many periods in a row is dropped from the
// roster at the next startNewPeriod.
const maxMissedPeriods = 3

// emissionPerPeriod is the fixed amount the Bank credits to itself each
// period via the synthetic emission transaction.
var emissionPerPeriod = rscoin.CoinFromInt(1000)

type utxoRecord struct {
	AddrID rscoin.AddrId
	Owner  rscoin.Address
}

// State is the Bank's pure, serializable record.
type State struct {
	Phase    Phase
	PeriodID uint64

	Mintettes     []rscoin.Address
	DPK           []rscoin.DPKEntry
	MissedPeriods map[rscoin.MintetteID]int

	OwnerFanout int

	Addresses        rscoin.AddressBook // live, authoritative strategy book
	PendingAddresses rscoin.AddressBook // accumulated since the last boundary

	UTXO map[rscoin.AddrKey]utxoRecord // global authoritative unspent set

	HBlocks []rscoin.HBlock

	// PendingResults holds this period's submitted mintette results, keyed
	// by the reporting mintette, until startNewPeriod consumes them.
	PendingResults map[rscoin.MintetteID]mintette.PeriodResult

	// Explorers is the set of registered explorer/dashboard subscriber ids.
	// The notifier (notify.go) does not consult it: period events go to
	// every connected websocket client.
	Explorers map[string]bool

	BankAddress rscoin.Address
}

// NewState returns a freshly-initialized Idle bank with no history.
func NewState(bankAddress rscoin.Address, fanout int) State {
	return State{
		Phase:            PhaseIdle,
		Mintettes:        nil,
		DPK:              nil,
		MissedPeriods:    make(map[rscoin.MintetteID]int),
		OwnerFanout:      fanout,
		Addresses:        rscoin.NewAddressBook(),
		PendingAddresses: rscoin.NewAddressBook(),
		UTXO:             make(map[rscoin.AddrKey]utxoRecord),
		HBlocks:          nil,
		PendingResults:   make(map[rscoin.MintetteID]mintette.PeriodResult),
		Explorers:        make(map[string]bool),
		BankAddress:      bankAddress,
	}
}

func (s State) clone() State {
	out := s
	out.Mintettes = append([]rscoin.Address(nil), s.Mintettes...)
	out.DPK = append([]rscoin.DPKEntry(nil), s.DPK...)
	out.MissedPeriods = make(map[rscoin.MintetteID]int, len(s.MissedPeriods))
	for k, v := range s.MissedPeriods {
		out.MissedPeriods[k] = v
	}
	out.Addresses = s.Addresses.Clone()
	out.PendingAddresses = s.PendingAddresses.Clone()
	out.UTXO = make(map[rscoin.AddrKey]utxoRecord, len(s.UTXO))
	for k, v := range s.UTXO {
		out.UTXO[k] = v
	}
	out.HBlocks = append([]rscoin.HBlock(nil), s.HBlocks...)
	out.PendingResults = make(map[rscoin.MintetteID]mintette.PeriodResult, len(s.PendingResults))
	for k, v := range s.PendingResults {
		out.PendingResults[k] = v
	}
	out.Explorers = make(map[string]bool, len(s.Explorers))
	for k, v := range s.Explorers {
		out.Explorers[k] = v
	}
	return out
}

// Storage is the single-writer store wrapping State, matching
// internal/mintette.Storage's clone-then-publish-on-success discipline.
type Storage struct {
	mu    sync.RWMutex
	state State
}

// NewStorage wraps an initial State.
func NewStorage(initial State) *Storage {
	return &Storage{state: initial}
}

// View runs fn against a read-only snapshot of the current state.
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

// RegisterExplorer adds id to the explorer set.
func (s *Storage) RegisterExplorer(id string) {
	_ = s.mutate(func(st State) (State, error) {
		st.Explorers[id] = true
		return st, nil
	})
}

// UnregisterExplorer removes id from the explorer set.
func (s *Storage) UnregisterExplorer(id string) {
	_ = s.mutate(func(st State) (State, error) {
		delete(st.Explorers, id)
		return st, nil
	})
}

// GetMintettes returns the current roster.
func (s *Storage) GetMintettes() []rscoin.Address {
	var out []rscoin.Address
	s.View(func(st State) { out = append([]rscoin.Address(nil), st.Mintettes...) })
	return out
}

// GetHBlock returns the HBlock for periodID, if present.
func (s *Storage) GetHBlock(periodID uint64) (rscoin.HBlock, bool) {
	var out rscoin.HBlock
	found := false
	s.View(func(st State) {
		if int(periodID) < len(st.HBlocks) {
			out = st.HBlocks[periodID]
			found = true
		}
	})
	return out, found
}

// Height returns the number of HBlocks in the canonical chain.
func (s *Storage) Height() int {
	n := 0
	s.View(func(st State) { n = len(st.HBlocks) })
	return n
}
