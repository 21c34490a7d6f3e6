package rscoin

// DPKEntry is one row of the Bank-signed delegation public-key list: a
// mintette's public key together with the Bank's signature vouching for it.
type DPKEntry struct {
	Key    PublicKey
	BankSig Signature[PublicKey]
}

// QueryPayload is what a mintette signs when it issues a CheckConfirmation:
// the transaction, the addrid it is confirming as spendable, and the log
// head at the moment of the check (so a confirmation cannot be replayed
// against a different log history).
type QueryPayload struct {
	Tx          Transaction
	AddrID      AddrId
	PrevLogHash Hash
}

func (q QueryPayload) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	txBytes, err := q.Tx.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	e.putBytes(txBytes)
	addrBytes, err := q.AddrID.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	e.putBytes(addrBytes)
	e.putHash(q.PrevLogHash)
	return e.bytes(), nil
}

// CheckConfirmation is returned by a successful checkNotDoubleSpent: proof
// that this mintette has tentatively accepted tx as spending addrId.
type CheckConfirmation struct {
	MintetteSig Signature[QueryPayload]
	LogHead     Hash
	PeriodID    uint64
}

// CommitAcknowledgment is returned by a successful commitTx.
type CommitAcknowledgment struct {
	MintetteSig Signature[Transaction]
	BankSig     Signature[PublicKey]
}
