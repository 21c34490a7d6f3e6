package mintette

import (
	"sort"

	"github.com/rawblock/rscoin/internal/owner"
	"github.com/rawblock/rscoin/pkg/rscoin"
)

// SpendCommittee is the owner committee of the UTXO(s) tx spends — the
// mintettes a client actually gathers checkTx confirmations from. It is the
// union, in order of first appearance, of Owners(addrId.TxHash) over every
// input of tx.
//
// This is deliberately distinct from Owners(Hash(tx)): that second
// committee decides which mintette will shard-own tx's newly-created
// outputs at the next repartition (see formPayload in internal/bank), a
// forward-looking assignment that has nothing to do with who validated the
// spend. §4.C/§4.F/§8 all refer to "owners of tx" when discussing the
// commit quorum; this package implements that as SpendCommittee.
func SpendCommittee(mintetteCount int, tx rscoin.Transaction, fanout int) []rscoin.MintetteID {
	seen := make(map[rscoin.MintetteID]bool)
	var out []rscoin.MintetteID
	for _, in := range tx.Inputs {
		for _, id := range owner.Owners(mintetteCount, in.TxHash, fanout) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func containsAddrKey(inputs []rscoin.AddrId, key rscoin.AddrKey) (rscoin.AddrId, bool) {
	for _, in := range inputs {
		if in.Key() == key {
			return in, true
		}
	}
	return rscoin.AddrId{}, false
}

// checkOne runs the 5-step validation of §4.C's checkNotDoubleSpent against
// st and, on success, returns the updated state and confirmation. st is
// never mutated in place; the caller decides whether to adopt the result.
func checkOne(st State, sk rscoin.SecretKey, tx rscoin.Transaction, addrID rscoin.AddrId, sigs []rscoin.AddrSig) (State, rscoin.CheckConfirmation, error) {
	if _, ok := containsAddrKey(tx.Inputs, addrID.Key()); !ok {
		return st, rscoin.CheckConfirmation{}, newErr(CodeInvalidTxInput, "addrId is not among tx.Inputs")
	}

	entry, ok := st.UTXO[addrID.Key()]
	if !ok {
		return st, rscoin.CheckConfirmation{}, newErr(CodeNotUnspent, "addrId is not in this mintette's utxo")
	}

	if _, exists := st.PSet[addrID.Key()]; exists {
		return st, rscoin.CheckConfirmation{}, newErr(CodeDoubleSpend, "addrId already tentatively spent this period")
	}

	if !tx.Balances(false) {
		return st, rscoin.CheckConfirmation{}, newErr(CodeInvalidSum, "sum(inputs) != sum(outputs)")
	}

	strategy := st.Addresses.Get(entry.Owner)
	if !rscoin.CheckSpendAuthorization(strategy, entry.Owner, tx, sigs) {
		return st, rscoin.CheckConfirmation{}, newErr(CodeUnauthorizedSpend, "spend authorization not satisfied")
	}

	head, err := st.ActionLog.HeadHash()
	if err != nil {
		return st, rscoin.CheckConfirmation{}, newErr(CodeInternal, err.Error())
	}
	payload := rscoin.QueryPayload{Tx: tx, AddrID: addrID, PrevLogHash: head}
	sig, err := rscoin.Sign(sk, payload)
	if err != nil {
		return st, rscoin.CheckConfirmation{}, newErr(CodeInternal, err.Error())
	}
	conf := rscoin.CheckConfirmation{MintetteSig: sig, LogHead: head, PeriodID: st.PeriodID}

	st.PSet[addrID.Key()] = tx
	newLog, err := st.ActionLog.Append(rscoin.EntryQuery, &rscoin.QueryEntryData{Tx: tx, AddrID: addrID, Confirmation: conf}, nil, nil)
	if err != nil {
		return st, rscoin.CheckConfirmation{}, newErr(CodeInternal, err.Error())
	}
	st.ActionLog = newLog

	return st, conf, nil
}

// CheckNotDoubleSpent implements §4.C's checkNotDoubleSpent.
func (s *Storage) CheckNotDoubleSpent(sk rscoin.SecretKey, tx rscoin.Transaction, addrID rscoin.AddrId, sigs []rscoin.AddrSig) (rscoin.CheckConfirmation, error) {
	var result rscoin.CheckConfirmation
	err := s.mutate(func(st State) (State, error) {
		if st.Phase != PhaseRunning {
			return st, newErr(CodeWrongPeriod, "mintette is not accepting checks outside Running")
		}
		next, conf, err := checkOne(st, sk, tx, addrID, sigs)
		if err != nil {
			return st, err
		}
		result = conf
		return next, nil
	})
	return result, err
}

// BatchEntryResult is one per-addrId outcome of CheckTxBatch.
type BatchEntryResult struct {
	Confirmation rscoin.CheckConfirmation
	Err          error
}

// CheckTxBatch implements §4.C's checkTxBatch: each addrId entry succeeds or
// fails independently; failure of one never rolls back another. Log
// entries for successes are appended in addrId natural order (by TxHash
// then OutputIndex), not submission order.
func (s *Storage) CheckTxBatch(sk rscoin.SecretKey, tx rscoin.Transaction, sigs map[rscoin.AddrKey][]rscoin.AddrSig) (map[rscoin.AddrKey]BatchEntryResult, error) {
	results := make(map[rscoin.AddrKey]BatchEntryResult, len(sigs))

	keys := make([]rscoin.AddrKey, 0, len(sigs))
	for k := range sigs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TxHash != keys[j].TxHash {
			return keys[i].TxHash.String() < keys[j].TxHash.String()
		}
		return keys[i].OutputIndex < keys[j].OutputIndex
	})

	err := s.mutate(func(st State) (State, error) {
		if st.Phase != PhaseRunning {
			return st, newErr(CodeWrongPeriod, "mintette is not accepting checks outside Running")
		}
		for _, key := range keys {
			addrID, ok := containsAddrKey(tx.Inputs, key)
			if !ok {
				results[key] = BatchEntryResult{Err: newErr(CodeInvalidTxInput, "addrId is not among tx.Inputs")}
				continue
			}
			next, conf, err := checkOne(st, sk, tx, addrID, sigs[key])
			if err != nil {
				results[key] = BatchEntryResult{Err: err}
				continue
			}
			st = next
			results[key] = BatchEntryResult{Confirmation: conf}
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CommitTx implements §4.C's commitTx.
func (s *Storage) CommitTx(sk rscoin.SecretKey, tx rscoin.Transaction, confirmations map[rscoin.MintetteID]rscoin.CheckConfirmation) (rscoin.CommitAcknowledgment, error) {
	var result rscoin.CommitAcknowledgment
	err := s.mutate(func(st State) (State, error) {
		if st.Phase != PhaseRunning {
			return st, newErr(CodeWrongPeriod, "mintette is not accepting commits outside Running")
		}

		txHash, err := tx.Hash()
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}

		if ack, ok := st.CommittedTxs[txHash]; ok {
			result = ack
			return st, nil // idempotent: no state change, prior ack returned
		}

		committee := SpendCommittee(len(st.Mintettes), tx, st.OwnerFanout)
		for _, id := range committee {
			conf, ok := confirmations[id]
			if !ok {
				return st, newErr(CodeNotAllOwnersConfirmed, "missing confirmation from an owner mintette")
			}
			if int(id) >= len(st.DPK) {
				return st, newErr(CodeNotAllOwnersConfirmed, "owner mintette has no dpk entry")
			}
			// Full addrId-level re-verification of conf.MintetteSig already
			// happened at that owner's own checkNotDoubleSpent; here we only
			// confirm a confirmation was actually produced, and that the
			// reporting mintette is a DPK-vouched member of the roster.
			if conf.MintetteSig.IsZero() {
				return st, newErr(CodeNotAllOwnersConfirmed, "owner confirmation carries no signature")
			}
			if st.DPK[id].BankSig.IsZero() {
				return st, newErr(CodeNotAllOwnersConfirmed, "owner mintette is not dpk-vouched")
			}
		}

		var spentHere []rscoin.AddrKey
		for _, in := range tx.Inputs {
			key := in.Key()
			if _, held := st.UTXO[key]; held {
				if _, checked := st.PSet[key]; !checked {
					return st, newErr(CodeCommitWithoutCheck, "input held by this mintette was never checked")
				}
				spentHere = append(spentHere, key)
			}
		}

		for _, key := range spentHere {
			delete(st.UTXO, key)
			delete(st.PSet, key)
		}

		outputOwners := owner.Owners(len(st.Mintettes), txHash, st.OwnerFanout)
		mine := false
		for _, id := range outputOwners {
			if id == st.CurrentMintetteID {
				mine = true
				break
			}
		}
		if mine {
			for i, out := range tx.Outputs {
				addrID := rscoin.AddrId{TxHash: txHash, OutputIndex: uint32(i), Value: out.Value}
				st.UTXO[addrID.Key()] = utxoEntry{AddrID: addrID, Owner: out.Address}
			}
		}

		st.LBlocks = append([]rscoin.LBlock{{Transactions: []rscoin.Transaction{tx}}}, st.LBlocks...)

		newLog, err := st.ActionLog.Append(rscoin.EntryCommit, nil, &rscoin.CommitEntryData{Tx: tx, Confirmations: confirmations}, nil)
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}
		st.ActionLog = newLog

		ack := rscoin.CommitAcknowledgment{}
		if len(st.DPK) > int(st.CurrentMintetteID) {
			ack.BankSig = st.DPK[st.CurrentMintetteID].BankSig
		}
		mintetteSig, err := rscoin.Sign(sk, tx)
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}
		ack.MintetteSig = mintetteSig

		st.CommittedTxs[txHash] = ack
		result = ack
		return st, nil
	})
	return result, err
}

// FinishPeriod implements §4.C's finishPeriod.
func (s *Storage) FinishPeriod(sk rscoin.SecretKey, periodID uint64) (uint64, []rscoin.LBlock, rscoin.ActionLog, error) {
	var (
		resultBlocks []rscoin.LBlock
		resultLog    rscoin.ActionLog
	)
	err := s.mutate(func(st State) (State, error) {
		if periodID != st.PeriodID {
			return st, newErr(CodeWrongPeriod, "requested periodId does not match current period")
		}
		if st.Phase != PhaseRunning {
			return st, newErr(CodeWrongPeriod, "finishPeriod called outside Running")
		}

		// LBlocks were accumulated most-recent-first by CommitTx; seal them
		// in commit order (oldest first) as a single epoch for this period.
		ordered := make([]rscoin.Transaction, 0, len(st.LBlocks))
		for i := len(st.LBlocks) - 1; i >= 0; i-- {
			ordered = append(ordered, st.LBlocks[i].Transactions...)
		}

		var sealed []rscoin.LBlock
		if len(ordered) > 0 {
			head, err := st.ActionLog.HeadHash()
			if err != nil {
				return st, newErr(CodeInternal, err.Error())
			}
			lb, err := rscoin.SealLBlock(sk, st.LastHBlockHash, ordered, head)
			if err != nil {
				return st, newErr(CodeInternal, err.Error())
			}
			sealed = []rscoin.LBlock{lb}
		}

		for _, lb := range sealed {
			lbHash, err := lb.Hash()
			if err != nil {
				return st, newErr(CodeInternal, err.Error())
			}
			newLog, err := st.ActionLog.Append(rscoin.EntryCloseEpoch, nil, nil, &rscoin.CloseEpochEntryData{LBlockHash: lbHash})
			if err != nil {
				return st, newErr(CodeInternal, err.Error())
			}
			st.ActionLog = newLog
		}

		st.Archived[periodID] = ArchivedPeriod{
			ActionLog: rscoin.ActionLog{Entries: append([]rscoin.LogEntry(nil), st.ActionLog.Entries...)},
			LBlocks:   sealed,
		}

		resultBlocks = sealed
		resultLog = st.Archived[periodID].ActionLog

		st.PSet = make(map[rscoin.AddrKey]rscoin.Transaction)
		st.LBlocks = nil
		st.Phase = PhaseSealing

		return st, nil
	})
	return periodID, resultBlocks, resultLog, err
}

// NewPeriodData is what the Bank pushes to a mintette at a period boundary
// (§4.C's startPeriod parameter).
type NewPeriodData struct {
	PeriodID   uint64
	Mintettes  []rscoin.Address
	LastHBlock rscoin.HBlock
	// Payload carries the mintette's new id, its restricted utxo slice and
	// the live address book. internal/bank's StartNewPeriod sets it for
	// every mintette in the new roster, not only those whose ownership
	// assignment changed; when it is nil, StartPeriod derives the utxo
	// from LastHBlock instead.
	Payload *Payload
	DPK     []rscoin.DPKEntry
}

// Payload carries a mintette's post-repartition id, utxo slice and address
// book, per §3's NewPeriodData.payload.
type Payload struct {
	MintetteID rscoin.MintetteID
	UTXO       map[rscoin.AddrKey]rscoin.AddrId // addrId -> addrId (value + identity)
	Owners     map[rscoin.AddrKey]rscoin.Address
	Addresses  rscoin.AddressBook
}

// StartPeriod implements §4.C's startPeriod.
func (s *Storage) StartPeriod(npd NewPeriodData) error {
	return s.mutate(func(st State) (State, error) {
		prevID := st.CurrentMintetteID
		st.PreviousMintetteID = &prevID
		if npd.Payload != nil {
			id := npd.Payload.MintetteID
			st.CurrentMintetteID = id
		}

		if npd.Payload != nil {
			newUTXO := make(map[rscoin.AddrKey]utxoEntry, len(npd.Payload.UTXO))
			for key, addrID := range npd.Payload.UTXO {
				newUTXO[key] = utxoEntry{AddrID: addrID, Owner: npd.Payload.Owners[key]}
			}
			st.UTXO = newUTXO
			st.Addresses = npd.Payload.Addresses
		} else {
			next := make(map[rscoin.AddrKey]utxoEntry, len(st.UTXO))
			for k, v := range st.UTXO {
				next[k] = v
			}
			for _, tx := range npd.LastHBlock.Transactions {
				for _, in := range tx.Inputs {
					delete(next, in.Key())
				}
				txHash, err := tx.Hash()
				if err != nil {
					return st, newErr(CodeInternal, err.Error())
				}
				outputOwners := owner.Owners(len(npd.Mintettes), txHash, st.OwnerFanout)
				mine := false
				for _, id := range outputOwners {
					if id == st.CurrentMintetteID {
						mine = true
						break
					}
				}
				if mine {
					for i, out := range tx.Outputs {
						addrID := rscoin.AddrId{TxHash: txHash, OutputIndex: uint32(i), Value: out.Value}
						next[addrID.Key()] = utxoEntry{AddrID: addrID, Owner: out.Address}
					}
				}
			}
			st.UTXO = next
		}

		st.DPK = npd.DPK
		st.Mintettes = npd.Mintettes
		st.PSet = make(map[rscoin.AddrKey]rscoin.Transaction)
		st.LBlocks = nil
		st.CommittedTxs = make(map[rscoin.Hash]rscoin.CommitAcknowledgment)

		hbHash, err := npd.LastHBlock.Hash()
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}
		st.LastHBlockHash = hbHash

		st.PeriodID = npd.PeriodID
		st.Phase = PhaseRunning
		return st, nil
	})
}

// GetUTXO returns this mintette's current utxo shard.
func (s *Storage) GetUTXO() map[rscoin.AddrKey]rscoin.AddrId {
	out := map[rscoin.AddrKey]rscoin.AddrId{}
	s.View(func(st State) {
		for k, v := range st.UTXO {
			out[k] = v.AddrID
		}
	})
	return out
}

// GetBlocks returns the LBlocks archived for periodID.
func (s *Storage) GetBlocks(periodID uint64) ([]rscoin.LBlock, bool) {
	var out []rscoin.LBlock
	found := false
	s.View(func(st State) {
		if p, ok := st.Archived[periodID]; ok {
			out = p.LBlocks
			found = true
		}
	})
	return out, found
}

// GetLogs returns the ActionLog archived for periodID.
func (s *Storage) GetLogs(periodID uint64) (rscoin.ActionLog, bool) {
	var out rscoin.ActionLog
	found := false
	s.View(func(st State) {
		if p, ok := st.Archived[periodID]; ok {
			out = p.ActionLog
			found = true
		}
	})
	return out, found
}

// GetPeriod reports the current periodId, addressing §9's Open Question:
// callers can distinguish "no period yet" (Idle, ok=false) from a genuine
// store failure, which would surface as a non-nil error from a persistence
// -backed Storage rather than being swallowed.
func (s *Storage) GetPeriod() (periodID uint64, ok bool) {
	s.View(func(st State) {
		periodID = st.PeriodID
		ok = st.Phase != PhaseIdle
	})
	return periodID, ok
}

// PeriodResult is what the mintette reports to the Bank in response to
// periodFinished (§4.F).
type PeriodResult struct {
	PeriodID  uint64
	LBlocks   []rscoin.LBlock
	ActionLog rscoin.ActionLog
}

// PeriodFinished implements the mintette side of §4.G's periodFinished RPC:
// it is finishPeriod plus packaging the triple for transport.
func (s *Storage) PeriodFinished(sk rscoin.SecretKey, periodID uint64) (PeriodResult, error) {
	pid, blocks, log, err := s.FinishPeriod(sk, periodID)
	if err != nil {
		return PeriodResult{}, err
	}
	return PeriodResult{PeriodID: pid, LBlocks: blocks, ActionLog: log}, nil
}
