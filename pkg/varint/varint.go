// Package varint implements the LEB128-style unsigned-128 varint codec used
// by the Runes protocol's tag/value stream (spec §4.1): seven data bits per
// byte, high bit set means "another byte follows", little-endian byte order.
package varint

import (
	"errors"
	"math/big"
)

// MaxBytes is the maximum number of bytes a single encoded value may occupy.
// 19 bytes * 7 bits = 133 bits, of which only the low 128 are legal; the
// 19th byte may therefore only carry its two least-significant data bits.
const MaxBytes = 19

// ErrOverflow is returned when a decoded value would exceed 128 bits.
var ErrOverflow = errors.New("varint: value overflows 128 bits")

// ErrUnterminated is returned when the input ends (or MaxBytes is reached)
// before a byte without its continuation bit set is found.
var ErrUnterminated = errors.New("varint: unterminated sequence")

var one = big.NewInt(1)

// MaxValue is the largest value representable (2^128 - 1).
var MaxValue = new(big.Int).Sub(new(big.Int).Lsh(one, 128), one)

// Encode serializes n as an unsigned LEB128 byte sequence. n must be
// non-negative and fit within 128 bits; callers that cannot guarantee this
// should check against MaxValue first. Encoding zero produces a single
// zero byte.
func Encode(n *big.Int) []byte {
	v := new(big.Int).Set(n)
	out := make([]byte, 0, MaxBytes)
	mask := big.NewInt(0x7f)
	tmp := new(big.Int)
	for {
		tmp.And(v, mask)
		b := byte(tmp.Uint64())
		v.Rsh(v, 7)
		if v.Sign() != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v.Sign() == 0 {
			break
		}
	}
	return out
}

// Decode reads a single varint from the front of buf, returning the decoded
// value and the number of bytes consumed. It reads at most MaxBytes bytes;
// if the final byte still carries a continuation bit, or the value would
// need more than 128 bits, decoding fails.
func Decode(buf []byte) (*big.Int, int, error) {
	n := new(big.Int)
	shifted := new(big.Int)
	for i := 0; i < len(buf) && i < MaxBytes; i++ {
		b := buf[i]
		value := int64(b & 0x7f)

		if i == MaxBytes-1 && value&0b0111_1100 != 0 {
			// Only the two least-significant bits of the 19th byte fit
			// within 128 bits; anything else overflows.
			return nil, 0, ErrOverflow
		}

		shifted.Lsh(big.NewInt(value), uint(7*i))
		n.Or(n, shifted)

		if b&0x80 == 0 {
			return n, i + 1, nil
		}
	}
	return nil, 0, ErrUnterminated
}

// DecodeAll decodes a full buffer into a sequence of varints, requiring
// every byte to be consumed by some value (no trailing garbage, no
// truncated final value).
func DecodeAll(buf []byte) ([]*big.Int, error) {
	var values []*big.Int
	for len(buf) > 0 {
		v, n, err := Decode(buf)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		buf = buf[n:]
	}
	return values, nil
}
