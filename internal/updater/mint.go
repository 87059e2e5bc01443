package updater

import (
	"math/big"

	"github.com/runeindex/runeindexd/internal/store"
)

// Mintable implements the `mintable()` eligibility check of spec §4.6: it
// returns the amount a successful mint of entry would add to the
// recipient's unallocated balance, or ok=false if no mint is currently
// allowed (unset terms, before the window opens, at/after it closes, or
// the cap has been reached).
func Mintable(entry *store.RuneEntry, height uint64) (*big.Int, bool) {
	if entry.Terms == nil {
		return nil, false
	}
	terms := entry.Terms

	var start, hasStart uint64
	if terms.HeightStart != nil {
		start, hasStart = *terms.HeightStart, 1
	}
	if terms.OffsetStart != nil {
		candidate := entry.Block + *terms.OffsetStart
		if hasStart == 0 || candidate > start {
			start = candidate
		}
		hasStart = 1
	}
	if hasStart == 1 && height < start {
		return nil, false
	}

	var end uint64
	hasEnd := false
	if terms.HeightEnd != nil {
		end, hasEnd = *terms.HeightEnd, true
	}
	if terms.OffsetEnd != nil {
		candidate := entry.Block + *terms.OffsetEnd
		if !hasEnd || candidate < end {
			end = candidate
		}
		hasEnd = true
	}
	if hasEnd && height >= end {
		return nil, false
	}

	// A missing cap defaults to zero, same as an explicit cap of zero:
	// mint_count(0) >= cap(0) holds immediately, so terms with an amount
	// but no cap are unmintable forever, not unlimited.
	cap := terms.Cap
	if cap == nil {
		cap = new(big.Int)
	}
	count := new(big.Int).SetUint64(entry.MintCount)
	if count.Cmp(cap) >= 0 {
		return nil, false
	}

	amount := terms.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return new(big.Int).Set(amount), true
}
