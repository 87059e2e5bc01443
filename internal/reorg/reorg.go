// Package reorg implements the fork detector of spec §4.8: before
// indexing a block, it confirms the locally stored chain still agrees
// with the source chain's previous-block hash, and when it doesn't,
// walks back to find the common ancestor and rolls the store back to it.
package reorg

import (
	"context"
	"errors"
	"fmt"

	"github.com/runeindex/runeindexd/internal/btcrpc"
	"github.com/runeindex/runeindexd/internal/store"
)

// MaxReorgDepth bounds how far back the detector will walk looking for a
// common ancestor before giving up as a fatal condition (§4.8, §6 exit
// code 4).
const MaxReorgDepth = 20

// ErrReorgTooDeep is returned when no matching ancestor is found within
// MaxReorgDepth blocks of the tip.
var ErrReorgTooDeep = errors.New("reorg: exceeded max reorg depth without finding a common ancestor")

// Detector compares the indexer's own Block rows against a live source
// chain to catch forks before they corrupt the relations.
type Detector struct {
	RPC   *btcrpc.Client
	Store *store.RuneStore
}

func New(rpc *btcrpc.Client, s *store.RuneStore) *Detector {
	return &Detector{RPC: rpc, Store: s}
}

// Check is run immediately before indexing the block at height h whose
// header's previous-block hash is prevHash. If the store's own Block(h-1)
// agrees with prevHash, there is nothing to do. Otherwise it walks back
// depth=1..MaxReorgDepth, asking the source chain for its hash at h-depth
// and comparing it to the locally stored one; the first match is the
// common ancestor, and the store is rolled back to that height.
//
// reorged reports whether a rollback happened; rolledBackTo is only
// meaningful when reorged is true. h=0 (genesis) never forks.
func (d *Detector) Check(ctx context.Context, h uint64, prevHash string) (rolledBackTo uint64, reorged bool, err error) {
	if h == 0 {
		return 0, false, nil
	}

	local, err := d.Store.GetBlockByHeight(h - 1)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil // nothing indexed yet at h-1; first block for this run
	}
	if err != nil {
		return 0, false, fmt.Errorf("reorg: load block %d: %w", h-1, err)
	}
	if local.Hash == prevHash {
		return 0, false, nil
	}

	for depth := uint64(1); depth <= MaxReorgDepth; depth++ {
		if depth > h {
			break // would walk below genesis
		}
		candidate := h - depth
		stored, err := d.Store.GetBlockByHeight(candidate)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("reorg: load block %d: %w", candidate, err)
		}
		sourceHash, err := d.RPC.GetBlockHash(ctx, int64(candidate))
		if err != nil {
			return 0, false, fmt.Errorf("reorg: fetch source hash at %d: %w", candidate, err)
		}
		if stored.Hash != sourceHash {
			continue
		}
		if err := d.Store.RollbackToHeight(candidate); err != nil {
			return 0, false, fmt.Errorf("reorg: rollback to %d: %w", candidate, err)
		}
		return candidate, true, nil
	}

	return 0, false, ErrReorgTooDeep
}
