package bank

import (
	"sort"

	"github.com/rawblock/rscoin/internal/owner"
	"github.com/rawblock/rscoin/internal/mintette"
	"github.com/rawblock/rscoin/pkg/rscoin"
)

// Init builds the genesis HBlock and transitions the bank out of Idle, with
// an initial mintette roster and DPK. It is the Bank-side analogue of
// mintette.NewState followed by a first startPeriod.
func (s *Storage) Init(sk rscoin.SecretKey, mintettes []rscoin.Address, dpk []rscoin.DPKEntry) (rscoin.HBlock, error) {
	var genesis rscoin.HBlock
	err := s.mutate(func(st State) (State, error) {
		if st.Phase != PhaseIdle {
			return st, newErr(CodeWrongPeriod, "bank already initialized")
		}
		g, err := rscoin.MkGenesisHBlock(sk, st.BankAddress)
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}
		st.HBlocks = []rscoin.HBlock{g}
		st.Mintettes = mintettes
		st.DPK = dpk
		st.PeriodID = 0
		st.Phase = PhaseRunning
		genesis = g
		return st, nil
	})
	return genesis, err
}

// SubmitPeriodResult implements the Bank's reception of a mintette's
// periodFinished response (§4.F step 1-3): checkActionLog validates the
// submitted log's hash chain, checkLBlock validates every sealed LBlock's
// signature against the reporting mintette's own key.
func (s *Storage) SubmitPeriodResult(mintetteID rscoin.MintetteID, result mintette.PeriodResult) error {
	return s.mutate(func(st State) (State, error) {
		if st.Phase != PhaseRunning && st.Phase != PhaseSealing {
			return st, newErr(CodeWrongPeriod, "bank is not collecting period results")
		}
		if int(mintetteID) >= len(st.Mintettes) {
			return st, newErr(CodeUnknownMintette, "mintette id out of range")
		}
		if result.PeriodID != st.PeriodID {
			return st, newErr(CodeWrongPeriod, "period result does not match current period")
		}

		if ok, err := checkActionLog(result.ActionLog); err != nil {
			return st, newErr(CodeInternal, err.Error())
		} else if !ok {
			return st, newErr(CodeBadPeriodResult, "action log hash chain does not verify")
		}

		addr := st.Mintettes[mintetteID]
		for _, lb := range result.LBlocks {
			if !checkLBlock(lb, addr) {
				return st, newErr(CodeBadPeriodResult, "lblock signature does not verify against reporting mintette's key")
			}
		}

		st.Phase = PhaseSealing
		st.PendingResults[mintetteID] = result
		return st, nil
	})
}

func checkActionLog(log rscoin.ActionLog) (bool, error) {
	return log.VerifyChain(rscoin.ZeroHash)
}

func checkLBlock(lb rscoin.LBlock, mintetteAddr rscoin.Address) bool {
	return lb.Verify(mintetteAddr.Key)
}

// allocateCoins builds the period's synthetic emission transaction,
// crediting the Bank's own address (§4.F's coin-allocation step).
func allocateCoins(periodID uint64, bankAddress rscoin.Address) rscoin.Transaction {
	return rscoin.Transaction{
		Inputs: []rscoin.AddrId{{
			TxHash:      rscoin.EmissionHash(periodID),
			OutputIndex: 0,
			Value:       emissionPerPeriod,
		}},
		Outputs: []rscoin.TxOutput{{Address: bankAddress, Value: emissionPerPeriod}},
	}
}

// mergeTransactions implements §4.F's mergeTransactions/§8's majority-commit
// invariant: a transaction is admitted into the period's canonical set only
// if a strict majority of owner.Owners(Hash(tx)) — the committee that
// shard-owns its outputs — reported committing it in a submitted LBlock.
func mergeTransactions(st State) ([]rscoin.Transaction, error) {
	committers := make(map[rscoin.Hash]map[rscoin.MintetteID]bool)
	byHash := make(map[rscoin.Hash]rscoin.Transaction)

	for mintetteID, result := range st.PendingResults {
		for _, lb := range result.LBlocks {
			for _, tx := range lb.Transactions {
				h, err := tx.Hash()
				if err != nil {
					return nil, err
				}
				byHash[h] = tx
				if committers[h] == nil {
					committers[h] = make(map[rscoin.MintetteID]bool)
				}
				committers[h][mintetteID] = true
			}
		}
	}

	hashes := make([]rscoin.Hash, 0, len(byHash))
	for h := range byHash {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].String() < hashes[j].String() })

	var merged []rscoin.Transaction
	for _, h := range hashes {
		tx := byHash[h]
		if owner.HasMajority(len(st.Mintettes), h, st.OwnerFanout, committers[h]) {
			merged = append(merged, tx)
		}
	}
	return merged, nil
}

// updateMintettes applies the eviction policy: a mintette absent from
// PendingResults this period has its miss counter incremented; one present
// has it reset. A mintette at maxMissedPeriods consecutive misses is
// dropped from the roster returned for the next period.
func updateMintettes(st State) ([]rscoin.Address, map[rscoin.MintetteID]int) {
	nextMissed := make(map[rscoin.MintetteID]int, len(st.Mintettes))
	var kept []rscoin.Address
	for i, addr := range st.Mintettes {
		id := rscoin.MintetteID(i)
		missed := st.MissedPeriods[id]
		if _, reported := st.PendingResults[id]; reported {
			missed = 0
		} else {
			missed++
		}
		if missed >= maxMissedPeriods {
			continue // evicted
		}
		nextMissed[rscoin.MintetteID(len(kept))] = missed
		kept = append(kept, addr)
	}
	return kept, nextMissed
}

// formPayload implements §4.F step 10: slice the Bank's global UTXO set by
// which mintette now owns each addrId (owner.Owners keyed on the addrId's
// creating transaction hash), producing one Payload for every mintette in
// newMintettes. Payloads are not limited to mintettes whose shard changed;
// every mintette receives its full slice.
func formPayload(st State, newMintettes []rscoin.Address) map[rscoin.MintetteID]*mintette.Payload {
	payloads := make(map[rscoin.MintetteID]*mintette.Payload, len(newMintettes))
	for i := range newMintettes {
		id := rscoin.MintetteID(i)
		payloads[id] = &mintette.Payload{
			MintetteID: id,
			UTXO:       make(map[rscoin.AddrKey]rscoin.AddrId),
			Owners:     make(map[rscoin.AddrKey]rscoin.Address),
			Addresses:  st.Addresses,
		}
	}

	for key, rec := range st.UTXO {
		owners := owner.Owners(len(newMintettes), rec.AddrID.TxHash, st.OwnerFanout)
		for _, id := range owners {
			p, ok := payloads[id]
			if !ok {
				continue
			}
			p.UTXO[key] = rec.AddrID
			p.Owners[key] = rec.Owner
		}
	}
	return payloads
}

// StartNewPeriod implements §4.F's startNewPeriod: merges this period's
// committed transactions, allocates the emission, builds and signs the next
// HBlock, applies the eviction policy, repartitions the global UTXO across
// the (possibly changed) roster, and returns the per-mintette NewPeriodData
// to push out.
func (s *Storage) StartNewPeriod(sk rscoin.SecretKey, dpk []rscoin.DPKEntry) (rscoin.HBlock, map[rscoin.MintetteID]mintette.NewPeriodData, error) {
	var (
		hblock rscoin.HBlock
		out    map[rscoin.MintetteID]mintette.NewPeriodData
	)
	err := s.mutate(func(st State) (State, error) {
		if dpk == nil {
			dpk = st.DPK
		}
		merged, err := mergeTransactions(st)
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}
		emission := allocateCoins(st.PeriodID, st.BankAddress)
		periodTxs := append([]rscoin.Transaction{emission}, merged...)

		lastHash, err := st.HBlocks[len(st.HBlocks)-1].Hash()
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}

		newMintettes, newMissed := updateMintettes(st)

		mergedAddresses := st.Addresses.Merge(st.PendingAddresses)

		nb, err := rscoin.MkHBlock(sk, st.PeriodID+1, lastHash, periodTxs, mergedAddresses)
		if err != nil {
			return st, newErr(CodeInternal, err.Error())
		}

		// Apply committed transactions (including emission) to the global
		// UTXO: remove spent inputs, add new outputs.
		nextUTXO := make(map[rscoin.AddrKey]utxoRecord, len(st.UTXO))
		for k, v := range st.UTXO {
			nextUTXO[k] = v
		}
		for _, tx := range periodTxs {
			if !tx.IsEmission(st.PeriodID) {
				for _, in := range tx.Inputs {
					delete(nextUTXO, in.Key())
				}
			}
			txHash, err := tx.Hash()
			if err != nil {
				return st, newErr(CodeInternal, err.Error())
			}
			for i, o := range tx.Outputs {
				addrID := rscoin.AddrId{TxHash: txHash, OutputIndex: uint32(i), Value: o.Value}
				nextUTXO[addrID.Key()] = utxoRecord{AddrID: addrID, Owner: o.Address}
			}
		}
		st.UTXO = nextUTXO
		st.Addresses = mergedAddresses

		payloads := formPayload(st, newMintettes)

		npd := make(map[rscoin.MintetteID]mintette.NewPeriodData, len(newMintettes))
		for i := range newMintettes {
			id := rscoin.MintetteID(i)
			npd[id] = mintette.NewPeriodData{
				PeriodID:   st.PeriodID + 1,
				Mintettes:  newMintettes,
				LastHBlock: nb,
				Payload:    payloads[id],
				DPK:        dpk,
			}
		}

		st.HBlocks = append(st.HBlocks, nb)
		st.Mintettes = newMintettes
		st.MissedPeriods = newMissed
		st.DPK = dpk
		st.PendingAddresses = rscoin.NewAddressBook()
		st.PendingResults = make(map[rscoin.MintetteID]mintette.PeriodResult)
		st.PeriodID++
		st.Phase = PhaseRunning

		hblock = nb
		out = npd
		return st, nil
	})
	return hblock, out, err
}

// SetPendingStrategy records addr's strategy to take effect at the next
// period boundary, implementing the Bank-side half of the address book
// update path named in §3.
func (s *Storage) SetPendingStrategy(addr rscoin.Address, strategy rscoin.TxStrategy) {
	_ = s.mutate(func(st State) (State, error) {
		st.PendingAddresses.Set(addr, strategy)
		return st, nil
	})
}
