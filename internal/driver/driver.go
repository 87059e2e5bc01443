// Package driver implements the reorg-safe block driver of spec §4.9: the
// outer loop that advances a persistent cursor block by block, checking
// for forks before each block and handing confirmed transactions to the
// updater in order.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/runeindex/runeindexd/internal/btcrpc"
	"github.com/runeindex/runeindexd/internal/reorg"
	"github.com/runeindex/runeindexd/internal/rlog"
	"github.com/runeindex/runeindexd/internal/runestone"
	"github.com/runeindex/runeindexd/internal/store"
	"github.com/runeindex/runeindexd/internal/updater"
)

// ErrRPCUnreachable wraps a Bitcoin Core RPC failure that survived the
// client's own backoff and retry budget (maps to exit code 2 at the
// entrypoint).
var ErrRPCUnreachable = errors.New("driver: bitcoin rpc unreachable")

// ErrStoreConsistency wraps a failure writing or reading the indexer's own
// relations — something the store layer itself should never return short
// of disk corruption or a broken invariant (maps to exit code 3).
var ErrStoreConsistency = errors.New("driver: store consistency error")

// Driver drives the indexing loop described by spec §4.9: recover the
// cursor, walk forward to the source chain's tip, and for each block
// check for a fork before indexing its transactions.
type Driver struct {
	RPC     *btcrpc.Client
	Store   *store.RuneStore
	Updater *updater.Updater
	Reorg   *reorg.Detector

	// ActivationHeight seeds a fresh cursor when the store has never
	// indexed a block, per §4.9 "On start: ... if none, set cursor =
	// activation height".
	ActivationHeight uint64
}

func New(rpc *btcrpc.Client, s *store.RuneStore, u *updater.Updater, r *reorg.Detector, activationHeight uint64) *Driver {
	return &Driver{RPC: rpc, Store: s, Updater: u, Reorg: r, ActivationHeight: activationHeight}
}

// cursor loads the persisted cursor or, if the store has never indexed a
// block, seeds it at ActivationHeight-1 so the first catch-up pass starts
// at ActivationHeight. With ActivationHeight 0 the cursor is seeded at 0,
// so the first pass starts at block 1.
func (d *Driver) cursor() (uint64, error) {
	h, ok, err := d.Store.Cursor()
	if err != nil {
		return 0, fmt.Errorf("%w: load cursor: %v", ErrStoreConsistency, err)
	}
	if !ok {
		if d.ActivationHeight == 0 {
			return 0, nil
		}
		return d.ActivationHeight - 1, nil
	}
	return h, nil
}

// CatchUp runs one pass of the §4.9 loop: it walks from the current
// cursor to the source chain's tip (re-read on every iteration, since new
// blocks can arrive mid-pass), checking for a fork before indexing each
// block. It returns the number of blocks indexed. A rollback restarts the
// walk from the new, lower cursor rather than continuing forward, exactly
// as spec §4.9 describes ("if rollback occurred, restart the loop").
func (d *Driver) CatchUp(ctx context.Context) (int, error) {
	indexed := 0
	for {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}

		cursor, err := d.cursor()
		if err != nil {
			return indexed, err
		}

		tip, err := d.RPC.GetBlockCount(ctx)
		if err != nil {
			return indexed, fmt.Errorf("%w: get tip height: %v", ErrRPCUnreachable, err)
		}
		if cursor >= uint64(tip) {
			return indexed, nil
		}

		rolledBack, err := d.indexOne(ctx, cursor+1)
		if err != nil {
			return indexed, err
		}
		if rolledBack {
			// Common ancestor found below cursor+1; restart from the new cursor.
			continue
		}
		indexed++
	}
}

// indexOne fetches and indexes the block at height, after first checking
// the reorg detector. It reports whether a rollback occurred, in which
// case the caller should recompute the cursor and retry rather than
// advancing past height.
func (d *Driver) indexOne(ctx context.Context, height uint64) (rolledBack bool, err error) {
	hash, err := d.RPC.GetBlockHash(ctx, int64(height))
	if err != nil {
		return false, fmt.Errorf("%w: get block hash at %d: %v", ErrRPCUnreachable, height, err)
	}
	header, err := d.RPC.GetBlockHeader(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("%w: get block header %s: %v", ErrRPCUnreachable, hash, err)
	}

	_, reorged, err := d.Reorg.Check(ctx, height, header.PreviousBlockHash)
	if err != nil {
		if errors.Is(err, reorg.ErrReorgTooDeep) {
			return false, err // exit code 4, left unwrapped so callers can errors.Is against it directly
		}
		return false, fmt.Errorf("%w: reorg check at %d: %v", ErrStoreConsistency, height, err)
	}
	if reorged {
		rlog.Reorg.Warn().Uint64("height", height).Msg("fork detected, rolled back to common ancestor")
		return true, nil
	}

	blk, err := d.RPC.GetBlock(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("%w: get block %s: %v", ErrRPCUnreachable, hash, err)
	}

	burned := make(map[runestone.RuneId]*big.Int)
	for i, tx := range blk.Transactions {
		if err := d.Updater.ProcessTransaction(ctx, tx, height, header.Time, i, burned); err != nil {
			return false, fmt.Errorf("%w: process tx %s at height %d: %v", ErrStoreConsistency, tx.TxHash(), height, err)
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}

	coinbaseTxID := ""
	if len(blk.Transactions) > 0 {
		coinbaseTxID = blk.Transactions[0].TxHash().String()
	}
	if err := d.Updater.FlushBlockBurns(burned, height, header.Time, coinbaseTxID); err != nil {
		return false, fmt.Errorf("%w: flush block burns at %d: %v", ErrStoreConsistency, height, err)
	}

	if err := d.Store.PutBlock(store.BlockRecord{Height: height, Hash: hash, Timestamp: header.Time}); err != nil {
		return false, fmt.Errorf("%w: commit block row at %d: %v", ErrStoreConsistency, height, err)
	}

	rlog.Driver.Info().Uint64("height", height).Int("txs", len(blk.Transactions)).Msg("indexed block")
	return false, nil
}

// Run repeatedly catches up to the source chain's tip, polling at the
// given interval for new blocks once caught up ("Exit condition: cursor
// == tip with no new tip arriving; caller may schedule", §4.9). It
// returns when ctx is cancelled, or immediately on the first terminal
// error from CatchUp (RPC unreachable, store consistency, or reorg too
// deep) so the caller can map it to the exit codes of §6.
func (d *Driver) Run(ctx context.Context, pollInterval time.Duration) error {
	if _, err := d.CatchUp(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.CatchUp(ctx); err != nil {
				return err
			}
		}
	}
}
