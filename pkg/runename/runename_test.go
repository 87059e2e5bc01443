package runename

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeKnownValues(t *testing.T) {
	cases := map[string]int64{
		"A":  0,
		"B":  1,
		"Z":  25,
		"AA": 26,
		"AB": 27,
		"ZZ": 701,
	}
	for name, want := range cases {
		got, err := Encode(name)
		require.NoError(t, err)
		require.Equalf(t, big.NewInt(want), got, "Encode(%q)", name)
	}
}

func TestDecodeKnownValues(t *testing.T) {
	cases := map[int64]string{
		0:   "A",
		1:   "B",
		25:  "Z",
		26:  "AA",
		27:  "AB",
		701: "ZZ",
	}
	for n, want := range cases {
		got, err := Decode(big.NewInt(n))
		require.NoError(t, err)
		require.Equalf(t, want, got, "Decode(%d)", n)
	}
}

func TestRoundTrip(t *testing.T) {
	names := []string{"A", "Z", "AA", "UNCOMMONGOODS", "ZZZZZZZZZZZZZ"}
	for _, name := range names {
		n, err := Encode(name)
		require.NoError(t, err)
		back, err := Decode(n)
		require.NoError(t, err)
		require.Equal(t, name, back)
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := Encode("")
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = Encode("abc")
	require.ErrorIs(t, err, ErrInvalidChar)

	_, err = Encode("A1")
	require.ErrorIs(t, err, ErrInvalidChar)
}

func TestIsReserved(t *testing.T) {
	require.False(t, IsReserved(big.NewInt(0)))
	require.True(t, IsReserved(Reserved))
	above := new(big.Int).Add(Reserved, big.NewInt(1))
	require.True(t, IsReserved(above))
}

func TestFormatAndParseSpaced(t *testing.T) {
	spaced, err := FormatSpaced("UNCOMMONGOODS", 1<<7) // spacer after 8th char
	require.NoError(t, err)
	require.Equal(t, "UNCOMMON•GOODS", spaced)

	name, spacers, err := ParseSpaced(spaced)
	require.NoError(t, err)
	require.Equal(t, "UNCOMMONGOODS", name)
	require.Equal(t, uint32(1<<7), spacers)
}

func TestParseSpacedRejectsLeadingSpacer(t *testing.T) {
	_, _, err := ParseSpaced("•ABC")
	require.Error(t, err)
}

func TestMinimumAtHeightSchedule(t *testing.T) {
	sched := Schedule{ActivationHeight: 840000, HalvingInterval: 210000}
	step := sched.HalvingInterval / 12

	atActivation := MinimumAtHeight(840000, sched)
	wantAt0, _ := Encode("AAAAAAAAAAAAA") // 13 chars
	require.Equal(t, wantAt0, atActivation)

	afterOneStep := MinimumAtHeight(840000+step, sched)
	wantAfterOne, _ := Encode("AAAAAAAAAAAA") // 12 chars
	require.Equal(t, wantAfterOne, afterOneStep)

	farFuture := MinimumAtHeight(840000+step*20, sched)
	wantFloor, _ := Encode("A")
	require.Equal(t, wantFloor, farFuture)

	beforeActivation := MinimumAtHeight(0, sched)
	require.Equal(t, wantAt0, beforeActivation)
}
