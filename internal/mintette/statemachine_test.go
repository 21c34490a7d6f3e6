package mintette

import (
	"testing"

	"github.com/rawblock/rscoin/pkg/rscoin"
)

func mustSK(t *testing.T) rscoin.SecretKey {
	t.Helper()
	sk, err := rscoin.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return sk
}

// newRunningStorage builds a single-mintette Storage already in Running
// phase, with one utxo entry of value 10 owned by owner, ready to be spent.
// The mintette is its own sole DPK entry, vouched by a throwaway bank key.
func newRunningStorage(t *testing.T, sk rscoin.SecretKey, owner rscoin.Address, addrID rscoin.AddrId) *Storage {
	t.Helper()
	bankSK := mustSK(t)
	bankSig, err := rscoin.Sign(bankSK, sk.Public())
	if err != nil {
		t.Fatalf("sign dpk entry: %v", err)
	}
	dpk := []rscoin.DPKEntry{{Key: sk.Public(), BankSig: bankSig}}

	st := NewState(0, []rscoin.Address{owner}, dpk, 3)
	st.Phase = PhaseRunning
	st.UTXO[addrID.Key()] = utxoEntry{AddrID: addrID, Owner: owner}
	return NewStorage(st)
}

func mkOutput(t *testing.T, addr rscoin.Address, amount int64) rscoin.TxOutput {
	t.Helper()
	coin := rscoin.CoinFromInt(uint64(amount))
	return rscoin.TxOutput{Address: addr, Value: coin}
}

func TestCheckNotDoubleSpentHappyPath(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{mkOutput(t, recipient, 10)},
	}

	sig, err := rscoin.Sign(ownerSK, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigs := []rscoin.AddrSig{{Address: owner, Sig: sig}}

	storage := newRunningStorage(t, sk, owner, addrID)
	conf, err := storage.CheckNotDoubleSpent(sk, tx, addrID, sigs)
	if err != nil {
		t.Fatalf("checkNotDoubleSpent: %v", err)
	}
	if conf.PeriodID != 0 {
		t.Fatalf("expected periodId 0, got %d", conf.PeriodID)
	}

	storage.View(func(st State) {
		if _, stillUnspent := st.UTXO[addrID.Key()]; !stillUnspent {
			t.Fatalf("utxo entry must remain until commit")
		}
		if _, pending := st.PSet[addrID.Key()]; !pending {
			t.Fatalf("expected addrId to be tentatively spent")
		}
		if len(st.ActionLog.Entries) != 1 {
			t.Fatalf("expected one action log entry, got %d", len(st.ActionLog.Entries))
		}
	})
}

func TestCheckNotDoubleSpentRejectsSecondCheck(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{mkOutput(t, recipient, 10)},
	}
	sig, err := rscoin.Sign(ownerSK, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigs := []rscoin.AddrSig{{Address: owner, Sig: sig}}

	storage := newRunningStorage(t, sk, owner, addrID)
	if _, err := storage.CheckNotDoubleSpent(sk, tx, addrID, sigs); err != nil {
		t.Fatalf("first check: %v", err)
	}

	_, err = storage.CheckNotDoubleSpent(sk, tx, addrID, sigs)
	if err == nil {
		t.Fatalf("expected double-spend rejection on second check")
	}
	if CodeOf(err) != CodeDoubleSpend {
		t.Fatalf("expected CodeDoubleSpend, got %v", CodeOf(err))
	}
}

func TestCheckNotDoubleSpentRejectsUnauthorized(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())
	attackerSK := mustSK(t)

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{mkOutput(t, recipient, 10)},
	}
	badSig, err := rscoin.Sign(attackerSK, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigs := []rscoin.AddrSig{{Address: owner, Sig: badSig}}

	storage := newRunningStorage(t, sk, owner, addrID)
	_, err = storage.CheckNotDoubleSpent(sk, tx, addrID, sigs)
	if CodeOf(err) != CodeUnauthorizedSpend {
		t.Fatalf("expected CodeUnauthorizedSpend, got %v", CodeOf(err))
	}
}

func TestCheckNotDoubleSpentRejectsUnbalancedSum(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{mkOutput(t, recipient, 11)},
	}
	sig, err := rscoin.Sign(ownerSK, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigs := []rscoin.AddrSig{{Address: owner, Sig: sig}}

	storage := newRunningStorage(t, sk, owner, addrID)
	_, err = storage.CheckNotDoubleSpent(sk, tx, addrID, sigs)
	if CodeOf(err) != CodeInvalidSum {
		t.Fatalf("expected CodeInvalidSum, got %v", CodeOf(err))
	}
}

func TestCommitTxIdempotent(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{mkOutput(t, recipient, 10)},
	}
	sig, err := rscoin.Sign(ownerSK, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigs := []rscoin.AddrSig{{Address: owner, Sig: sig}}

	storage := newRunningStorage(t, sk, owner, addrID)
	conf, err := storage.CheckNotDoubleSpent(sk, tx, addrID, sigs)
	if err != nil {
		t.Fatalf("checkNotDoubleSpent: %v", err)
	}

	confirmations := map[rscoin.MintetteID]rscoin.CheckConfirmation{0: conf}
	ack1, err := storage.CommitTx(sk, tx, confirmations)
	if err != nil {
		t.Fatalf("commitTx: %v", err)
	}

	ack2, err := storage.CommitTx(sk, tx, confirmations)
	if err != nil {
		t.Fatalf("commitTx (replay): %v", err)
	}
	if ack1.MintetteSig.Bytes() == nil || ack2.MintetteSig.Bytes() == nil {
		t.Fatalf("expected both acknowledgments to carry a signature")
	}

	storage.View(func(st State) {
		if _, stillUTXO := st.UTXO[addrID.Key()]; stillUTXO {
			t.Fatalf("spent input must be removed from utxo")
		}
		if count := len(st.LBlocks); count != 1 {
			// only 1 LBlock chunk should have been appended, not 2, proving
			// the replay took the idempotent early-return path.
			t.Fatalf("expected exactly one pending LBlock chunk, got %d", count)
		}
	})
}

func TestCommitTxRejectsWithoutCheck(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{mkOutput(t, recipient, 10)},
	}

	storage := newRunningStorage(t, sk, owner, addrID)

	sig, err := rscoin.Sign(sk, rscoin.QueryPayload{Tx: tx, AddrID: addrID, PrevLogHash: rscoin.ZeroHash})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	conf := rscoin.CheckConfirmation{MintetteSig: sig, LogHead: rscoin.ZeroHash, PeriodID: 0}
	confirmations := map[rscoin.MintetteID]rscoin.CheckConfirmation{0: conf}

	_, err = storage.CommitTx(sk, tx, confirmations)
	if CodeOf(err) != CodeCommitWithoutCheck {
		t.Fatalf("expected CodeCommitWithoutCheck, got %v", CodeOf(err))
	}
}

func TestFinishPeriodSealsLBlockAndArchives(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{mkOutput(t, recipient, 10)},
	}
	sig, err := rscoin.Sign(ownerSK, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigs := []rscoin.AddrSig{{Address: owner, Sig: sig}}

	storage := newRunningStorage(t, sk, owner, addrID)
	conf, err := storage.CheckNotDoubleSpent(sk, tx, addrID, sigs)
	if err != nil {
		t.Fatalf("checkNotDoubleSpent: %v", err)
	}
	if _, err := storage.CommitTx(sk, tx, map[rscoin.MintetteID]rscoin.CheckConfirmation{0: conf}); err != nil {
		t.Fatalf("commitTx: %v", err)
	}

	periodID, blocks, log, err := storage.FinishPeriod(sk, 0)
	if err != nil {
		t.Fatalf("finishPeriod: %v", err)
	}
	if periodID != 0 {
		t.Fatalf("expected periodId 0, got %d", periodID)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected exactly one sealed LBlock, got %d", len(blocks))
	}
	if len(blocks[0].Transactions) != 1 {
		t.Fatalf("expected the LBlock to carry the committed tx")
	}
	if len(log.Entries) == 0 {
		t.Fatalf("expected archived log to be non-empty")
	}

	storedBlocks, ok := storage.GetBlocks(0)
	if !ok || len(storedBlocks) != 1 {
		t.Fatalf("expected GetBlocks(0) to return the sealed LBlock")
	}
	storedLog, ok := storage.GetLogs(0)
	if !ok || len(storedLog.Entries) == 0 {
		t.Fatalf("expected GetLogs(0) to return the archived log")
	}

	storage.View(func(st State) {
		if st.Phase != PhaseSealing {
			t.Fatalf("expected phase Sealing after finishPeriod, got %v", st.Phase)
		}
		if len(st.PSet) != 0 {
			t.Fatalf("expected pset cleared after finishPeriod")
		}
	})
}

func TestStartPeriodTransitionsToRunning(t *testing.T) {
	sk := mustSK(t)
	owner := rscoin.NewAddress(mustSK(t).Public())
	st := NewState(0, []rscoin.Address{owner}, nil, 3)
	storage := NewStorage(st)

	genesis, err := rscoin.MkGenesisHBlock(sk, owner)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}

	err = storage.StartPeriod(NewPeriodData{
		PeriodID:   1,
		Mintettes:  []rscoin.Address{owner},
		LastHBlock: genesis,
		DPK:        nil,
	})
	if err != nil {
		t.Fatalf("startPeriod: %v", err)
	}

	periodID, ok := storage.GetPeriod()
	if !ok || periodID != 1 {
		t.Fatalf("expected period 1 after startPeriod, got %d ok=%v", periodID, ok)
	}

	storage.View(func(st State) {
		if st.Phase != PhaseRunning {
			t.Fatalf("expected phase Running after startPeriod, got %v", st.Phase)
		}
	})
}

func TestGetPeriodReportsIdleBeforeFirstStart(t *testing.T) {
	owner := rscoin.NewAddress(mustSK(t).Public())
	storage := NewStorage(NewState(0, []rscoin.Address{owner}, nil, 3))
	_, ok := storage.GetPeriod()
	if ok {
		t.Fatalf("expected ok=false before any startPeriod")
	}
}
