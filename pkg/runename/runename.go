// Package runename implements the bijection between rune names (strings
// over A..Z) and the 128-bit integer name space, plus the height-indexed
// minimum-name anti-squatting schedule (spec §4.2).
package runename

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/runeindex/runeindexd/pkg/varint"
)

// MaxNameLength is the longest name the bijection can address without
// exceeding 128 bits.
const MaxNameLength = 28

var (
	ErrEmptyName   = errors.New("runename: empty name")
	ErrInvalidChar = errors.New("runename: name must contain only A-Z")
	ErrTooLong     = errors.New("runename: name exceeds maximum length")
	ErrOutOfRange  = errors.New("runename: integer exceeds the name space")
)

var big26 = big.NewInt(26)
var big1 = big.NewInt(1)

// Reserved is the threshold above which an integer names a reserved rune —
// one that can only be assigned automatically (§4.5), never etched
// explicitly.
var Reserved, _ = new(big.Int).SetString("6402364363415443603228541259936211926", 10)

// IsReserved reports whether n falls in the reserved sub-range.
func IsReserved(n *big.Int) bool {
	return n.Cmp(Reserved) >= 0
}

// Encode maps a name to its integer value: start at -1 (so the first
// character's "+1" lands on zero), then for each character left to right,
// n = (n+1)*26 + index(c), with index('A') = 0.
func Encode(name string) (*big.Int, error) {
	if len(name) == 0 {
		return nil, ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return nil, ErrTooLong
	}
	n := big.NewInt(-1)
	for _, c := range name {
		if c < 'A' || c > 'Z' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChar, c)
		}
		n.Add(n, big1)
		n.Mul(n, big26)
		n.Add(n, big.NewInt(int64(c-'A')))
	}
	if n.Cmp(varint.MaxValue) > 0 {
		return nil, ErrOutOfRange
	}
	return n, nil
}

// Decode maps an integer back to its name via Horner's decomposition:
// repeatedly take n%26 as a character, then n = n/26 - 1, until that would
// go negative.
func Decode(n *big.Int) (string, error) {
	if n.Sign() < 0 {
		return "", ErrOutOfRange
	}
	if n.Cmp(varint.MaxValue) > 0 {
		return "", ErrOutOfRange
	}

	var chars []byte
	cur := new(big.Int).Set(n)
	for {
		quot := new(big.Int)
		rem := new(big.Int)
		quot.QuoRem(cur, big26, rem)
		chars = append(chars, byte('A')+byte(rem.Int64()))

		next := new(big.Int).Sub(quot, big1)
		if next.Sign() < 0 {
			break
		}
		cur = next
	}

	// Reverse in place.
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars), nil
}

// FormatSpaced renders name with a bullet inserted before each bit position
// set in spacers (0-indexed, counted from the first gap after character 0).
func FormatSpaced(name string, spacers uint32) (string, error) {
	if len(name) == 0 {
		return "", ErrEmptyName
	}
	var b strings.Builder
	for i, c := range name {
		b.WriteRune(c)
		if i == len(name)-1 {
			continue
		}
		if spacers&(1<<uint(i)) != 0 {
			b.WriteRune('•')
		}
	}
	return b.String(), nil
}

// ParseSpaced strips bullet separators from s, returning the bare name and
// the spacer bitmask that reproduces the original rendering.
func ParseSpaced(s string) (name string, spacers uint32, err error) {
	var b strings.Builder
	pos := 0
	for _, c := range s {
		if c == '•' {
			if pos == 0 {
				return "", 0, errors.New("runename: leading spacer")
			}
			spacers |= 1 << uint(pos-1)
			continue
		}
		b.WriteRune(c)
		pos++
	}
	name = b.String()
	if len(name) == 0 {
		return "", 0, ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return "", 0, ErrTooLong
	}
	return name, spacers, nil
}

// Schedule parameterizes the minimum-name anti-squatting curve per network
// (§4.2, §9 "must be parameterised by the configured network").
type Schedule struct {
	// ActivationHeight is the block at which Runes etching begins on this
	// network (a halving boundary).
	ActivationHeight uint64
	// HalvingInterval is the network's subsidy halving interval in blocks.
	HalvingInterval uint64
}

// maxMinimumLength is the minimum name length enforced at activation; it
// shrinks to 1 by the next halving.
const maxMinimumLength = 13

// MinimumAtHeight returns the smallest rune integer that may be explicitly
// etched at the given height. Before activation there is effectively no
// valid minimum (etching isn't permitted yet), so the strictest value (the
// 13-character floor) is returned. The minimum shrinks one character per
// HalvingInterval/12 blocks after activation, floors at a single
// character, and stays there forever after.
func MinimumAtHeight(height uint64, s Schedule) *big.Int {
	length := maxMinimumLength
	if height >= s.ActivationHeight {
		step := s.HalvingInterval / 12
		if step == 0 {
			step = 1
		}
		elapsed := height - s.ActivationHeight
		steps := elapsed / step
		length = maxMinimumLength - int(steps)
		if length < 1 {
			length = 1
		}
	}
	v, err := Encode(strings.Repeat("A", length))
	if err != nil {
		// length is always in [1, maxMinimumLength], always encodable.
		panic(fmt.Sprintf("runename: minimum-length string did not encode: %v", err))
	}
	return v
}
