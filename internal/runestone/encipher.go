package runestone

import (
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"github.com/runeindex/runeindexd/pkg/varint"
)

// Encipher serializes a Runestone into its canonical OP_RETURN script
// (spec §4.3 Encipher): flags, then each optional etching field, then
// Mint, then Pointer, then Body=0, then edicts sorted by RuneId ascending
// with deltas encoded from (0,0).
func (r *Runestone) Encipher() ([]byte, error) {
	var ints []*big.Int
	push := func(tag Tag, v *big.Int) { ints = append(ints, big.NewInt(int64(tag)), v) }

	var flags uint64
	if r.Etching != nil {
		flags |= FlagEtching
		if r.Etching.Terms != nil {
			flags |= FlagTerms
		}
	}
	if flags != 0 {
		push(TagFlags, new(big.Int).SetUint64(flags))
	}

	if e := r.Etching; e != nil {
		if e.Rune != nil {
			push(TagRune, e.Rune)
		}
		if e.Divisibility != 0 {
			push(TagDivisibility, big.NewInt(int64(e.Divisibility)))
		}
		if e.Premine != nil && e.Premine.Sign() != 0 {
			push(TagPremine, e.Premine)
		}
		if e.Spacers != 0 {
			push(TagSpacers, big.NewInt(int64(e.Spacers)))
		}
		if e.Symbol != nil {
			push(TagSymbol, big.NewInt(int64(*e.Symbol)))
		}
		if t := e.Terms; t != nil {
			if t.Amount != nil {
				push(TagAmount, t.Amount)
			}
			if t.Cap != nil {
				push(TagCap, t.Cap)
			}
			if t.HeightStart != nil {
				push(TagHeightStart, new(big.Int).SetUint64(*t.HeightStart))
			}
			if t.HeightEnd != nil {
				push(TagHeightEnd, new(big.Int).SetUint64(*t.HeightEnd))
			}
			if t.OffsetStart != nil {
				push(TagOffsetStart, new(big.Int).SetUint64(*t.OffsetStart))
			}
			if t.OffsetEnd != nil {
				push(TagOffsetEnd, new(big.Int).SetUint64(*t.OffsetEnd))
			}
		}
	}

	if r.Mint != nil {
		push(TagMint, new(big.Int).SetUint64(r.Mint.Block))
		push(TagMint, new(big.Int).SetUint64(uint64(r.Mint.Tx)))
	}

	if r.Pointer != nil {
		push(TagPointer, new(big.Int).SetUint64(uint64(*r.Pointer)))
	}

	ints = append(ints, big.NewInt(int64(TagBody)))

	sorted := make([]Edict, len(r.Edicts))
	copy(sorted, r.Edicts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })

	prev := RuneId{}
	for _, edict := range sorted {
		blockDelta, txDelta := deltaRuneID(prev, edict.ID)
		ints = append(ints, blockDelta, txDelta, edict.Amount, new(big.Int).SetUint64(uint64(edict.Output)))
		prev = edict.ID
	}

	var payload []byte
	for _, n := range ints {
		payload = append(payload, varint.Encode(n)...)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddOp(txscript.OP_13)
	for len(payload) > 0 {
		n := len(payload)
		if n > MaxScriptElementSize {
			n = MaxScriptElementSize
		}
		builder.AddData(payload[:n])
		payload = payload[n:]
	}
	return builder.Script()
}

// deltaRuneID is the inverse of nextRuneID: it computes the delta pair
// that would advance prev to id.
func deltaRuneID(prev, id RuneId) (blockDelta, txDelta *big.Int) {
	if id.Block == prev.Block {
		return big.NewInt(0), new(big.Int).SetUint64(uint64(id.Tx - prev.Tx))
	}
	return new(big.Int).SetUint64(id.Block - prev.Block), new(big.Int).SetUint64(uint64(id.Tx))
}
