package rscoin

// lblockPayload is what a mintette signs when sealing an LBlock: the
// transactions of the epoch plus the HBlock this epoch builds on top of.
type lblockPayload struct {
	PrevHBlockHash Hash
	Transactions   []Transaction
}

func (p lblockPayload) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	e.putHash(p.PrevHBlockHash)
	e.putUint32(uint32(len(p.Transactions)))
	for _, tx := range p.Transactions {
		b, err := tx.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		e.putBytes(b)
	}
	return e.bytes(), nil
}

// LBlock is a mintette-local block: one epoch's worth of committed
// transactions, signed by the mintette that sealed it.
type LBlock struct {
	PrevHBlockHash Hash
	Transactions   []Transaction
	MintetteSig    Signature[lblockPayload]
	// LogHead is the action-log head hash at the moment this LBlock was
	// sealed — lets the Bank slice the mintette's action log into epochs
	// that line up one-to-one with its LBlocks.
	LogHead Hash
}

// SealLBlock builds and signs a new LBlock.
func SealLBlock(sk SecretKey, prevHBlockHash Hash, txs []Transaction, logHead Hash) (LBlock, error) {
	payload := lblockPayload{PrevHBlockHash: prevHBlockHash, Transactions: txs}
	sig, err := Sign(sk, payload)
	if err != nil {
		return LBlock{}, err
	}
	return LBlock{
		PrevHBlockHash: prevHBlockHash,
		Transactions:   txs,
		MintetteSig:    sig,
		LogHead:        logHead,
	}, nil
}

// Verify checks the mintette's signature over the LBlock's committed set
// against prevHBlockHash and the transactions it claims.
func (b LBlock) Verify(key PublicKey) bool {
	payload := lblockPayload{PrevHBlockHash: b.PrevHBlockHash, Transactions: b.Transactions}
	return b.MintetteSig.Verify(key, payload)
}

func (b LBlock) Hash() (Hash, error) {
	return HashOf(lblockPayload{PrevHBlockHash: b.PrevHBlockHash, Transactions: b.Transactions})
}

// hblockPayload is what the Bank signs: everything in the block except the
// signature itself.
type hblockPayload struct {
	PeriodID      uint64
	PrevHash      Hash
	Transactions  []Transaction
	MerkleRoot    Hash
	AddressesRoot Hash
}

func (p hblockPayload) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	e.putUint64(p.PeriodID)
	e.putHash(p.PrevHash)
	e.putUint32(uint32(len(p.Transactions)))
	for _, tx := range p.Transactions {
		b, err := tx.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		e.putBytes(b)
	}
	e.putHash(p.MerkleRoot)
	e.putHash(p.AddressesRoot)
	return e.bytes(), nil
}

// HBlock is the Bank-signed, period-final block forming the canonical
// chain. It commits to the address/strategy book via AddressesRoot rather
// than embedding the (potentially large) book itself; the live book travels
// to mintettes separately, as NewPeriodData.Payload.Addresses.
type HBlock struct {
	PeriodID      uint64
	PrevHash      Hash
	Transactions  []Transaction
	MerkleRoot    Hash
	AddressesRoot Hash
	BankSig       Signature[hblockPayload]
}

// MerkleRoot computes a simple binary Merkle root over transaction hashes.
// Odd levels duplicate the last node, matching the classic Bitcoin-style
// construction the teacher's chainhash dependency is built for.
func MerkleRoot(txs []Transaction) (Hash, error) {
	if len(txs) == 0 {
		return ZeroHash, nil
	}
	level := make([]Hash, len(txs))
	for i, tx := range txs {
		h, err := tx.Hash()
		if err != nil {
			return Hash{}, err
		}
		level[i] = h
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			concat := append(append([]byte(nil), level[2*i][:]...), level[2*i+1][:]...)
			next[i] = HashBytes(concat)
		}
		level = next
	}
	return level[0], nil
}

// MkHBlock builds and Bank-signs a new HBlock atop lastHash.
func MkHBlock(sk SecretKey, periodID uint64, lastHash Hash, txs []Transaction, addresses AddressBook) (HBlock, error) {
	root, err := MerkleRoot(txs)
	if err != nil {
		return HBlock{}, err
	}
	addrBytes, err := addresses.MarshalCanonical()
	if err != nil {
		return HBlock{}, err
	}
	payload := hblockPayload{
		PeriodID:      periodID,
		PrevHash:      lastHash,
		Transactions:  txs,
		MerkleRoot:    root,
		AddressesRoot: HashBytes(addrBytes),
	}
	sig, err := Sign(sk, payload)
	if err != nil {
		return HBlock{}, err
	}
	return HBlock{
		PeriodID:      periodID,
		PrevHash:      lastHash,
		Transactions:  txs,
		MerkleRoot:    root,
		AddressesRoot: payload.AddressesRoot,
		BankSig:       sig,
	}, nil
}

// MkGenesisHBlock builds period 0's block: an empty transaction list, no
// emission id, prevHash ZeroHash.
func MkGenesisHBlock(sk SecretKey, bankAddress Address) (HBlock, error) {
	return MkHBlock(sk, 0, ZeroHash, nil, NewAddressBook())
}

// Verify checks the Bank's signature over an HBlock against key.
func (b HBlock) Verify(key PublicKey) bool {
	payload := hblockPayload{
		PeriodID:      b.PeriodID,
		PrevHash:      b.PrevHash,
		Transactions:  b.Transactions,
		MerkleRoot:    b.MerkleRoot,
		AddressesRoot: b.AddressesRoot,
	}
	return b.BankSig.Verify(key, payload)
}

// Hash returns the block's own identity hash.
func (b HBlock) Hash() (Hash, error) {
	payload := hblockPayload{
		PeriodID:      b.PeriodID,
		PrevHash:      b.PrevHash,
		Transactions:  b.Transactions,
		MerkleRoot:    b.MerkleRoot,
		AddressesRoot: b.AddressesRoot,
	}
	return HashOf(payload)
}
