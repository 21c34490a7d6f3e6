package rscoin

import (
	"encoding/json"
	"testing"
)

func TestHashJSONRoundTrip(t *testing.T) {
	h := HashBytes([]byte("round-trip"))
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Hash
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != h {
		t.Fatalf("round trip mismatch: got %s want %s", out, h)
	}
}

func TestHashAsMapKeyRoundTrip(t *testing.T) {
	m := map[Hash]int{
		HashBytes([]byte("a")): 1,
		HashBytes([]byte("b")): 2,
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[Hash]int
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	for k, v := range m {
		if out[k] != v {
			t.Fatalf("mismatch for key %s: got %d want %d", k, out[k], v)
		}
	}
}

func TestPublicKeyJSONRoundTrip(t *testing.T) {
	sk, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pk := sk.Public()

	b, err := json.Marshal(pk)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out PublicKey
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Equal(pk) {
		t.Fatalf("round trip mismatch")
	}
}

func TestSignatureJSONRoundTrip(t *testing.T) {
	sk, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx := Transaction{
		Inputs:  []AddrId{{TxHash: HashBytes([]byte("in")), OutputIndex: 0, Value: CoinFromInt(1)}},
		Outputs: []TxOutput{{Address: NewAddress(sk.Public()), Value: CoinFromInt(1)}},
	}
	sig, err := Sign(sk, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	b, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Signature[Transaction]
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Verify(sk.Public(), tx) {
		t.Fatalf("round-tripped signature failed to verify")
	}
}

func TestAddrKeyJSONMapRoundTrip(t *testing.T) {
	addrID := AddrId{TxHash: HashBytes([]byte("seed")), OutputIndex: 2, Value: CoinFromInt(7)}
	m := map[AddrKey]AddrId{addrID.Key(): addrID}

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[AddrKey]AddrId
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := out[addrID.Key()]
	if !ok {
		t.Fatalf("expected addrKey entry present after round trip")
	}
	if got.OutputIndex != addrID.OutputIndex || got.TxHash != addrID.TxHash {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, addrID)
	}
}

func TestCoinJSONRoundTripExactFraction(t *testing.T) {
	coin, err := NewCoin(1, 3)
	if err != nil {
		t.Fatalf("new coin: %v", err)
	}
	b, err := json.Marshal(coin)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Coin
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Equal(coin) {
		t.Fatalf("round trip mismatch: got %v want %v", out, coin)
	}
}
