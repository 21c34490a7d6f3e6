package rscoin

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// JSON encodings for the wire types the RPC surface (internal/api)
// exchanges with clients and between Bank/Mintette. Everything that is
// fundamentally a byte string (hashes, keys, signatures) is hex-encoded in
// byte order, as Hash.String() produces it (unlike chainhash.Hash.String(),
// which reverses the bytes).

// MarshalText/UnmarshalText (rather than just MarshalJSON) let Hash double
// as a JSON object key — CommittedTxs and similar maps are keyed by Hash.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	decoded, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("rscoin: invalid hash hex: %w", err)
	}
	if len(decoded) != len(h) {
		return fmt.Errorf("rscoin: hash must be %d bytes, got %d", len(h), len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}

func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(pk.Bytes()))
}

func (pk *PublicKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("rscoin: invalid public key hex: %w", err)
	}
	parsed, err := PublicKeyFromBytes(decoded)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

func (sig Signature[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(sig.Bytes()))
}

func (sig *Signature[T]) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("rscoin: invalid signature hex: %w", err)
	}
	*sig = SignatureFromBytes[T](decoded)
	return nil
}

// AddrKey implements encoding.TextMarshaler/TextUnmarshaler so it can be used
// directly as a JSON object key (encoding/json requires map keys to be a
// string, an integer type, or a TextMarshaler) — needed for endpoints like
// getUtxo that return a map[AddrKey]AddrId.
func (a AddrKey) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%s:%d", a.TxHash, a.OutputIndex)), nil
}

func (a *AddrKey) UnmarshalText(b []byte) error {
	s := string(b)
	idx := len(s)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			idx = i
			break
		}
	}
	if idx == len(s) {
		return fmt.Errorf("rscoin: invalid addrkey %q", s)
	}
	hashHex, indexPart := s[:idx], s[idx+1:]
	decoded, err := hex.DecodeString(hashHex)
	if err != nil {
		return fmt.Errorf("rscoin: invalid addrkey hash hex: %w", err)
	}
	if len(decoded) != len(a.TxHash) {
		return fmt.Errorf("rscoin: addrkey hash must be %d bytes, got %d", len(a.TxHash), len(decoded))
	}
	copy(a.TxHash[:], decoded)
	var outIdx uint32
	if _, err := fmt.Sscanf(indexPart, "%d", &outIdx); err != nil {
		return fmt.Errorf("rscoin: invalid addrkey output index: %w", err)
	}
	a.OutputIndex = outIdx
	return nil
}

// Coin marshals as its canonical numerator/denominator pair so a client can
// reconstruct the exact rational value without floating-point rounding.
type coinJSON struct {
	Num   int64 `json:"num"`
	Denom int64 `json:"denom"`
}

func (c Coin) MarshalJSON() ([]byte, error) {
	r := c.rat()
	return json.Marshal(coinJSON{Num: r.Num().Int64(), Denom: r.Denom().Int64()})
}

func (c *Coin) UnmarshalJSON(b []byte) error {
	var cj coinJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return err
	}
	coin, err := NewCoin(cj.Num, cj.Denom)
	if err != nil {
		return err
	}
	*c = coin
	return nil
}
