package varint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeZero(t *testing.T) {
	require.Equal(t, []byte{0x00}, Encode(big.NewInt(0)))
}

func TestRoundTripSmallValues(t *testing.T) {
	for _, n := range []int64{0, 1, 127, 128, 129, 16384, 1 << 20} {
		enc := Encode(big.NewInt(n))
		dec, consumed, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, len(enc), consumed)
		require.Equal(t, big.NewInt(n), dec)
	}
}

func TestRoundTripMaxValue(t *testing.T) {
	enc := Encode(MaxValue)
	dec, consumed, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, MaxValue, dec)
	require.LessOrEqual(t, consumed, MaxBytes)
}

func TestDecodeUnterminated(t *testing.T) {
	_, _, err := Decode([]byte{0x80, 0x80, 0x80})
	require.ErrorIs(t, err, ErrUnterminated)
}

func TestDecodeOverflowAt19thByte(t *testing.T) {
	buf := make([]byte, MaxBytes)
	for i := 0; i < MaxBytes-1; i++ {
		buf[i] = 0xff
	}
	buf[MaxBytes-1] = 0x04 // bit 2 set, illegal in the final byte
	_, _, err := Decode(buf)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeAcceptsLegalFinalByte(t *testing.T) {
	buf := make([]byte, MaxBytes)
	for i := 0; i < MaxBytes-1; i++ {
		buf[i] = 0xff
	}
	buf[MaxBytes-1] = 0x03 // only the two low bits, legal
	v, consumed, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, MaxBytes, consumed)
	require.Equal(t, MaxValue, v)
}

func TestDecodeAllConsumesSequence(t *testing.T) {
	var buf []byte
	buf = append(buf, Encode(big.NewInt(1))...)
	buf = append(buf, Encode(big.NewInt(300))...)
	buf = append(buf, Encode(big.NewInt(0))...)

	values, err := DecodeAll(buf)
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.Equal(t, big.NewInt(1), values[0])
	require.Equal(t, big.NewInt(300), values[1])
	require.Equal(t, big.NewInt(0), values[2])
}

func TestRoundTripExhaustiveSmallRange(t *testing.T) {
	for n := int64(0); n < 100000; n += 37 {
		enc := Encode(big.NewInt(n))
		dec, consumed, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, len(enc), consumed)
		require.Equal(t, big.NewInt(n), dec)
	}
}
