package rscoin

import (
	"fmt"
	"math/big"
)

// Coin is a non-negative rational amount. RSCoin runs a single currency, so
// no currency tag is carried on the wire — the tag is implicit in every
// balance this package deals with.
type Coin struct {
	r *big.Rat
}

// ZeroCoin is the additive identity.
var ZeroCoin = Coin{r: new(big.Rat)}

// NewCoin builds a Coin from an integer numerator and denominator.
func NewCoin(num, denom int64) (Coin, error) {
	if denom == 0 {
		return Coin{}, fmt.Errorf("rscoin: coin denominator must be non-zero")
	}
	r := big.NewRat(num, denom)
	if r.Sign() < 0 {
		return Coin{}, fmt.Errorf("rscoin: coin must be non-negative, got %s", r.String())
	}
	return Coin{r: r}, nil
}

// CoinFromInt builds an integral Coin, e.g. for satoshi-like whole units.
func CoinFromInt(v uint64) Coin {
	return Coin{r: new(big.Rat).SetInt64(int64(v))}
}

func (c Coin) rat() *big.Rat {
	if c.r == nil {
		return new(big.Rat)
	}
	return c.r
}

// Add returns c + other.
func (c Coin) Add(other Coin) Coin {
	return Coin{r: new(big.Rat).Add(c.rat(), other.rat())}
}

// Sub returns c - other.
func (c Coin) Sub(other Coin) Coin {
	return Coin{r: new(big.Rat).Sub(c.rat(), other.rat())}
}

// Cmp compares c to other: -1, 0, +1.
func (c Coin) Cmp(other Coin) int {
	return c.rat().Cmp(other.rat())
}

// Equal reports whether c and other denote the same rational value.
func (c Coin) Equal(other Coin) bool {
	return c.Cmp(other) == 0
}

// IsZero reports whether c is exactly zero.
func (c Coin) IsZero() bool {
	return c.rat().Sign() == 0
}

// MulFrac scales c by num/denom, used for reward-splitting arithmetic.
func (c Coin) MulFrac(num, denom int64) Coin {
	frac := big.NewRat(num, denom)
	return Coin{r: new(big.Rat).Mul(c.rat(), frac)}
}

func (c Coin) String() string {
	return c.rat().RatString()
}

// MarshalCanonical encodes numerator/denominator as fixed-width big-endian
// uint64 pairs. RSCoin amounts never need more than 64 bits per side in
// practice (periodic emission splits, not arbitrary-precision ledgers).
func (c Coin) MarshalCanonical() ([]byte, error) {
	r := c.rat()
	if !r.IsInt() && r.Denom().BitLen() > 63 {
		return nil, fmt.Errorf("rscoin: coin denominator overflows 63 bits: %s", r.String())
	}
	if r.Num().BitLen() > 63 {
		return nil, fmt.Errorf("rscoin: coin numerator overflows 63 bits: %s", r.String())
	}
	e := newEncoder()
	e.putUint64(r.Num().Uint64())
	e.putUint64(r.Denom().Uint64())
	return e.bytes(), nil
}

// CoinFromCanonical is the inverse of MarshalCanonical: it reconstructs a
// Coin from its canonical bytes.
func CoinFromCanonical(b []byte) (Coin, error) {
	d := newDecoder(b)
	num, err := d.getUint64()
	if err != nil {
		return Coin{}, err
	}
	denom, err := d.getUint64()
	if err != nil {
		return Coin{}, err
	}
	if denom == 0 {
		return Coin{}, fmt.Errorf("rscoin: decoded coin has zero denominator")
	}
	return Coin{r: big.NewRat(int64(num), int64(denom))}, nil
}
