package rscoin

import "fmt"

// Address wraps a public key as a spend destination.
type Address struct {
	Key PublicKey
}

// NewAddress wraps pk as an Address.
func NewAddress(pk PublicKey) Address { return Address{Key: pk} }

func (a Address) String() string { return a.Key.String() }

// Equal reports whether two addresses name the same key.
func (a Address) Equal(other Address) bool { return a.Key.Equal(other.Key) }

func (a Address) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	e.putBytes(a.Key.Bytes())
	return e.bytes(), nil
}

// AddrId uniquely identifies one transaction output: which transaction,
// which output index, and the value it carries (carried on the wire so a
// mintette can validate the claimed amount without a separate lookup).
type AddrId struct {
	TxHash      Hash
	OutputIndex uint32
	Value       Coin
}

func (a AddrId) String() string {
	return fmt.Sprintf("%s:%d", a.TxHash, a.OutputIndex)
}

// Equal compares the identifying fields (hash, index); Value is carried
// alongside for convenience but two AddrIds naming the same output must
// agree on it by construction, so it does not participate in map keys.
func (a AddrId) Equal(other AddrId) bool {
	return a.TxHash == other.TxHash && a.OutputIndex == other.OutputIndex
}

// AddrKey is the comparable identity of an AddrId, suitable as a Go map key.
// AddrId itself carries a Coin (a pointer-backed big.Rat) in Value, so two
// AddrIds naming the same output but built through different code paths
// would not compare `==` if used directly as a map key; AddrKey strips
// Value down to the hash+index identity.
type AddrKey struct {
	TxHash      Hash
	OutputIndex uint32
}

// Key returns a's comparable identity for use as a map key.
func (a AddrId) Key() AddrKey {
	return AddrKey{TxHash: a.TxHash, OutputIndex: a.OutputIndex}
}

func (a AddrId) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	e.putHash(a.TxHash)
	e.putUint32(a.OutputIndex)
	valBytes, err := a.Value.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	e.putBytes(valBytes)
	return e.bytes(), nil
}

// TxOutput pairs a destination address with the coin value sent to it.
type TxOutput struct {
	Address Address
	Value   Coin
}

func (o TxOutput) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	addrBytes, err := o.Address.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	e.putBytes(addrBytes)
	valBytes, err := o.Value.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	e.putBytes(valBytes)
	return e.bytes(), nil
}

// Transaction is the fundamental unit of value transfer. Invariant: unless
// it is the distinguished bank-issued emission transaction of a period
// (single input whose TxHash is EmissionHash(periodId)), sum(inputs.Value)
// must equal sum(outputs.Value).
type Transaction struct {
	Inputs  []AddrId
	Outputs []TxOutput
}

// MarshalCanonical encodes inputs then outputs, each length-prefixed.
func (t Transaction) MarshalCanonical() ([]byte, error) {
	e := newEncoder()
	e.putUint32(uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		b, err := in.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		e.putBytes(b)
	}
	e.putUint32(uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		b, err := out.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		e.putBytes(b)
	}
	return e.bytes(), nil
}

// Hash returns Hash(tx) over its canonical encoding.
func (t Transaction) Hash() (Hash, error) {
	return HashOf(t)
}

// InputSum sums the declared value of every input.
func (t Transaction) InputSum() Coin {
	sum := ZeroCoin
	for _, in := range t.Inputs {
		sum = sum.Add(in.Value)
	}
	return sum
}

// OutputSum sums every output value.
func (t Transaction) OutputSum() Coin {
	sum := ZeroCoin
	for _, out := range t.Outputs {
		sum = sum.Add(out.Value)
	}
	return sum
}

// IsEmission reports whether tx is a period's synthetic emission
// transaction: exactly one input whose hash is the EmissionHash of some
// period (the caller supplies the expected period to check against).
func (t Transaction) IsEmission(periodID uint64) bool {
	return len(t.Inputs) == 1 && t.Inputs[0].TxHash == EmissionHash(periodID)
}

// Balances reports whether the value invariant holds for tx, given
// whether it is being checked as the period's emission transaction.
func (t Transaction) Balances(isEmission bool) bool {
	if isEmission {
		return true
	}
	return t.InputSum().Equal(t.OutputSum())
}

// StrategyKind distinguishes the two spend policies a TxStrategy can encode.
type StrategyKind int

const (
	// StrategyDefault requires a single signature from the owning address.
	StrategyDefault StrategyKind = iota
	// StrategyMOfN requires m valid, distinct signatures from a fixed key set.
	StrategyMOfN
)

// TxStrategy is the spend policy attached to an address. Storage of the
// strategy map itself (Address -> TxStrategy) is external to this package —
// see internal/bank for the Bank-side addresses map that owns it.
type TxStrategy struct {
	Kind StrategyKind
	M    int
	Keys []PublicKey
}

// DefaultStrategy is the ordinary single-signature policy.
func DefaultStrategy() TxStrategy { return TxStrategy{Kind: StrategyDefault} }

// MOfNStrategy requires m valid signatures out of the given key set.
func MOfNStrategy(m int, keys []PublicKey) TxStrategy {
	return TxStrategy{Kind: StrategyMOfN, M: m, Keys: keys}
}
