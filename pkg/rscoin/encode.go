package rscoin

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encoder accumulates the canonical, fixed-width, length-prefixed encoding
// used for every hashed or signed wire type. Field order follows declaration
// order of the Go struct it encodes, except for the CheckConfirmation fields
// inside a LogEntry, which are written as LogHead, PeriodID, MintetteSig.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) putUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// putBytes writes a uint32 length prefix followed by the raw bytes.
func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) putHash(h Hash) {
	e.buf.Write(h[:])
}

func encodeUint64(v uint64) []byte {
	e := newEncoder()
	e.putUint64(v)
	return e.bytes()
}

// decoder walks the canonical encoding produced by encoder. It is only used
// by CoinFromCanonical, never by the hashing/signing path
// (which only ever needs to produce bytes, not consume them).
type decoder struct {
	b   []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{b: b} }

func (d *decoder) getUint32() (uint32, error) {
	if d.pos+4 > len(d.b) {
		return 0, fmt.Errorf("rscoin: truncated uint32 at offset %d", d.pos)
	}
	v := binary.BigEndian.Uint32(d.b[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) getUint64() (uint64, error) {
	if d.pos+8 > len(d.b) {
		return 0, fmt.Errorf("rscoin: truncated uint64 at offset %d", d.pos)
	}
	v := binary.BigEndian.Uint64(d.b[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *decoder) getBytes() ([]byte, error) {
	n, err := d.getUint32()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.b) {
		return nil, fmt.Errorf("rscoin: truncated bytes field at offset %d", d.pos)
	}
	out := d.b[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return out, nil
}

func (d *decoder) getHash() (Hash, error) {
	var h Hash
	if d.pos+len(h) > len(d.b) {
		return h, fmt.Errorf("rscoin: truncated hash at offset %d", d.pos)
	}
	copy(h[:], d.b[d.pos:d.pos+len(h)])
	d.pos += len(h)
	return h, nil
}
