// Package updater implements the per-transaction rune state transition
// (spec §4.5): it deciphers a transaction's Runestone, seeds unallocated
// balances from spent inputs, applies mints and etchings, distributes
// edicts, and persists the result through internal/store's typed
// relations.
package updater

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/runeindex/runeindexd/internal/btcrpc"
	"github.com/runeindex/runeindexd/internal/runestone"
	"github.com/runeindex/runeindexd/internal/store"
	"github.com/runeindex/runeindexd/pkg/runename"
)

// Updater drives the rune state transition against one store, scoped to
// one Bitcoin network's activation/minimum-name schedule.
type Updater struct {
	Store    *store.RuneStore
	RPC      *btcrpc.Client
	Params   *chaincfg.Params
	Schedule runename.Schedule
}

func New(s *store.RuneStore, rpc *btcrpc.Client, params *chaincfg.Params, schedule runename.Schedule) *Updater {
	return &Updater{Store: s, RPC: rpc, Params: params, Schedule: schedule}
}

// outputInfo is computed once per transaction and reused across the
// mint/etch/edict/residual/emit steps.
type outputInfo struct {
	isOpReturn bool
	address    string
}

func classifyOutputs(tx *wire.MsgTx, params *chaincfg.Params) []outputInfo {
	infos := make([]outputInfo, len(tx.TxOut))
	for i, out := range tx.TxOut {
		infos[i].isOpReturn = len(out.PkScript) > 0 && out.PkScript[0] == txscript.OP_RETURN
		if infos[i].isOpReturn {
			continue
		}
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, params)
		if err == nil && len(addrs) == 1 {
			infos[i].address = addrs[0].EncodeAddress()
		}
	}
	return infos
}

const coinbaseIndex = math.MaxUint32

var zeroHash chainhash.Hash

func isCoinbaseInput(in *wire.TxIn) bool {
	return in.PreviousOutPoint.Index == coinbaseIndex && in.PreviousOutPoint.Hash.IsEqual(&zeroHash)
}

// ProcessTransaction is step §4.5 applied to a single transaction. burned
// accumulates per-rune burn totals across the whole block; the driver
// flushes it via FlushBlockBurns once every transaction in the block has
// been processed.
func (u *Updater) ProcessTransaction(ctx context.Context, tx *wire.MsgTx, blockHeight uint64, blockTime int64, txIndex int, burned map[runestone.RuneId]*big.Int) error {
	txID := tx.TxHash().String()

	artifact, err := runestone.Decipher(tx)
	if err != nil {
		return fmt.Errorf("updater: decipher %s: %w", txID, err)
	}

	unallocated := make(map[runestone.RuneId]*big.Int)
	for _, in := range tx.TxIn {
		if isCoinbaseInput(in) {
			continue
		}
		prevTxID := in.PreviousOutPoint.Hash.String()
		prevVout := in.PreviousOutPoint.Index
		rows, err := u.Store.GetRuneTXOsAtOutpoint(prevTxID, prevVout)
		if err != nil {
			return fmt.Errorf("updater: seed unallocated from %s:%d: %w", prevTxID, prevVout, err)
		}
		for _, rt := range rows {
			addBalance(unallocated, rt.RuneID, rt.Amount)
		}
		if len(rows) > 0 || hasTXO(u.Store, prevTxID, prevVout) {
			if err := u.Store.MarkSpent(prevTxID, prevVout, txID, blockHeight); err != nil {
				return fmt.Errorf("updater: mark spent %s:%d: %w", prevTxID, prevVout, err)
			}
		}
	}

	outputs := classifyOutputs(tx, u.Params)

	for i, out := range tx.TxOut {
		if err := u.Store.PutTXO(store.TXO{
			TxID:        txID,
			Vout:        uint32(i),
			BlockHeight: blockHeight,
			Value:       out.Value,
			Address:     outputs[i].address,
			IsUnspent:   true,
			Timestamp:   blockTime,
		}); err != nil {
			return fmt.Errorf("updater: put txo %s:%d: %w", txID, i, err)
		}
	}

	if artifact == nil {
		return u.disposeResidual(tx, txID, nil, false, outputs, unallocated, nil, blockHeight, blockTime, burned)
	}

	isCenotaph := artifact.IsCenotaph()
	var etching *runestone.Etching
	var mint *runestone.RuneId
	var pointer *uint32
	if artifact.Runestone != nil {
		etching = artifact.Runestone.Etching
		mint = artifact.Runestone.Mint
		pointer = artifact.Runestone.Pointer
	} else {
		etching = artifact.Cenotaph.Etching
		mint = artifact.Cenotaph.Mint
	}

	var cenotaphMessage string
	if isCenotaph {
		cenotaphMessage = artifact.Cenotaph.Message()
	}

	// 3c: mint.
	if !isCenotaph && mint != nil {
		if err := u.applyMint(*mint, txID, blockHeight, blockTime, unallocated); err != nil {
			return err
		}
	}

	// 3d: etching determination.
	var etchedID *runestone.RuneId
	var etchedName *big.Int
	var etchedRawName string
	if etching != nil {
		id, name, rawName, err := u.resolveEtching(ctx, tx, etching, blockHeight, txIndex)
		if err != nil {
			return fmt.Errorf("updater: resolve etching %s: %w", txID, err)
		}
		if id != nil {
			etchedID = id
			etchedName = name
			etchedRawName = rawName
		}
	}

	// 3e: premine.
	if !isCenotaph && etchedID != nil {
		addBalance(unallocated, *etchedID, etching.Premine)
	}

	// 3f: edicts (Runestone only).
	allocated := make(map[uint32]map[runestone.RuneId]*big.Int)
	if !isCenotaph && artifact.Runestone != nil {
		applyEdicts(artifact.Runestone.Edicts, etchedID, unallocated, allocated, outputs)
	}

	// 3g: persist the RuneEntry for a successful etching.
	if etchedID != nil {
		if err := u.createRuneEntry(*etchedID, etchedName, etchedRawName, txID, blockHeight, blockTime, etching, isCenotaph); err != nil {
			return fmt.Errorf("updater: create rune entry %s: %w", txID, err)
		}
	}

	// 3a: classification row.
	record := store.TransactionRecord{
		TxID:            txID,
		BlockHeight:     blockHeight,
		Timestamp:       blockTime,
		IsRunestone:     !isCenotaph,
		IsCenotaph:      isCenotaph,
		CenotaphMessage: cenotaphMessage,
		EtchedRuneID:    etchedID,
	}
	if err := u.Store.PutTransaction(record); err != nil {
		return fmt.Errorf("updater: put transaction %s: %w", txID, err)
	}

	return u.disposeResidual(tx, txID, pointer, isCenotaph, outputs, unallocated, allocated, blockHeight, blockTime, burned)
}

func (u *Updater) disposeResidual(tx *wire.MsgTx, txID string, pointer *uint32, isCenotaph bool, outputs []outputInfo, unallocated map[runestone.RuneId]*big.Int, allocated map[uint32]map[runestone.RuneId]*big.Int, blockHeight uint64, blockTime int64, burned map[runestone.RuneId]*big.Int) error {
	if allocated == nil {
		allocated = make(map[uint32]map[runestone.RuneId]*big.Int)
	}

	var voutStar *uint32
	if !isCenotaph {
		if pointer != nil {
			voutStar = pointer
		} else {
			for i, o := range outputs {
				if !o.isOpReturn {
					v := uint32(i)
					voutStar = &v
					break
				}
			}
		}
	}

	ids := sortedRuneIDs(unallocated)
	for _, id := range ids {
		balance := unallocated[id]
		if balance.Sign() <= 0 {
			continue
		}
		if voutStar != nil {
			allocateTo(allocated, *voutStar, id, balance)
		} else {
			addBalance(burned, id, balance)
		}
	}

	return u.emitAllocations(tx, txID, outputs, allocated, blockHeight, blockTime, burned)
}

func (u *Updater) emitAllocations(tx *wire.MsgTx, txID string, outputs []outputInfo, allocated map[uint32]map[runestone.RuneId]*big.Int, blockHeight uint64, blockTime int64, burned map[runestone.RuneId]*big.Int) error {
	for i := range outputs {
		perOutput := allocated[uint32(i)]
		if len(perOutput) == 0 {
			continue
		}
		if outputs[i].isOpReturn {
			for id, amt := range perOutput {
				addBalance(burned, id, amt)
			}
			continue
		}

		ids := sortedRuneIDs(perOutput)
		vout := uint32(i)
		var runeTXOs []store.RuneTXO
		var events []store.RuneEvent
		for _, id := range ids {
			amt := perOutput[id]
			if amt.Sign() <= 0 {
				continue
			}
			runeTXOs = append(runeTXOs, store.RuneTXO{
				TxID:        txID,
				Vout:        vout,
				BlockHeight: blockHeight,
				RuneID:      id,
				Amount:      new(big.Int).Set(amt),
				Address:     outputs[i].address,
				IsUnspent:   true,
				Timestamp:   blockTime,
			})
			events = append(events, store.RuneEvent{
				TxID:        txID,
				RuneID:      id,
				BlockHeight: blockHeight,
				Amount:      new(big.Int).Set(amt),
				Kind:        store.EventTransfer,
				Vout:        &vout,
				Address:     outputs[i].address,
				Timestamp:   blockTime,
			})
		}
		if len(runeTXOs) == 0 {
			continue
		}
		txo, err := u.Store.GetTXO(txID, vout)
		if err != nil {
			return fmt.Errorf("updater: load txo %s:%d: %w", txID, vout, err)
		}
		if err := u.Store.AllocateOutput(*txo, runeTXOs, events); err != nil {
			return fmt.Errorf("updater: allocate output %s:%d: %w", txID, vout, err)
		}
	}
	return nil
}

// FlushBlockBurns is the end-of-block step (§4.5 closing paragraph): it
// merges the block-level burn accumulator into each affected RuneEntry's
// running total and records a burn event per rune.
func (u *Updater) FlushBlockBurns(burned map[runestone.RuneId]*big.Int, blockHeight uint64, blockTime int64, blockTxID string) error {
	for _, id := range sortedRuneIDs(burned) {
		amt := burned[id]
		if amt.Sign() <= 0 {
			continue
		}
		event := store.RuneEvent{
			TxID:        blockTxID,
			RuneID:      id,
			BlockHeight: blockHeight,
			Amount:      new(big.Int).Set(amt),
			Kind:        store.EventBurn,
			Timestamp:   blockTime,
		}
		if err := u.Store.BurnRune(id, amt, event); err != nil {
			return fmt.Errorf("updater: flush burn for %s: %w", id, err)
		}
	}
	return nil
}

func (u *Updater) applyMint(id runestone.RuneId, txID string, blockHeight uint64, blockTime int64, unallocated map[runestone.RuneId]*big.Int) error {
	entry, err := u.Store.GetRuneEntry(id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("updater: load mint target %s: %w", id, err)
	}
	amount, ok := Mintable(entry, blockHeight)
	if !ok {
		return nil
	}
	addBalance(unallocated, id, amount)
	event := store.RuneEvent{TxID: txID, RuneID: id, BlockHeight: blockHeight, Amount: new(big.Int).Set(amount), Kind: store.EventMint, Timestamp: blockTime}
	if err := u.Store.ApplyMint(id, event); err != nil {
		return fmt.Errorf("updater: apply mint %s: %w", id, err)
	}
	return nil
}

// resolveEtching implements step 3d. A nil *runestone.RuneId return (with
// nil error) means the etching attempt failed one of its preconditions
// and is simply dropped, per spec ("Failures anywhere -> etched=None").
// On success it also returns the resolved name integer, since an
// unsupplied name is assigned automatically and the caller needs the
// actual value, not etching.Rune (which stays nil in that case).
func (u *Updater) resolveEtching(ctx context.Context, tx *wire.MsgTx, etching *runestone.Etching, blockHeight uint64, txIndex int) (*runestone.RuneId, *big.Int, string, error) {
	id := runestone.RuneId{Block: blockHeight, Tx: uint32(txIndex)}

	if etching.Rune == nil {
		name := reservedNameFor(blockHeight, txIndex)
		rawName, err := runename.Decode(name)
		if err != nil {
			return nil, nil, "", fmt.Errorf("decode reserved name: %w", err)
		}
		return &id, name, rawName, nil
	}

	name := etching.Rune
	minimum := runename.MinimumAtHeight(blockHeight, u.Schedule)
	if name.Cmp(minimum) < 0 {
		return nil, nil, "", nil
	}
	if runename.IsReserved(name) {
		return nil, nil, "", nil
	}
	rawName, err := runename.Decode(name)
	if err != nil {
		return nil, nil, "", nil
	}
	if _, err := u.Store.GetRuneEntryByName(rawName); err == nil {
		return nil, nil, "", nil // name already taken
	} else if err != store.ErrNotFound {
		return nil, nil, "", fmt.Errorf("check rune name: %w", err)
	}

	committed, err := hasCommitment(tx, name, blockHeight, u.Store.GetTXO, commitSource{ctx: ctx, rpc: u.RPC})
	if err != nil {
		return nil, nil, "", fmt.Errorf("commitment check: %w", err)
	}
	if !committed {
		return nil, nil, "", nil
	}
	return &id, name, rawName, nil
}

// reservedNameFor computes the automatic reserved-rune integer for an
// etching with no explicit name, deterministic from (block, tx) (spec
// §4.5 step 3d, §4.2 "Reserved runes can only come into being via the
// no-name-supplied path").
func reservedNameFor(blockHeight uint64, txIndex int) *big.Int {
	n := new(big.Int).Lsh(new(big.Int).SetUint64(blockHeight), 32)
	n.Or(n, big.NewInt(int64(txIndex)))
	return new(big.Int).Add(runename.Reserved, n)
}

func (u *Updater) createRuneEntry(id runestone.RuneId, name *big.Int, rawName, etchingTxID string, blockHeight uint64, blockTime int64, etching *runestone.Etching, isCenotaph bool) error {
	spaced, err := runename.FormatSpaced(rawName, etching.Spacers)
	if err != nil {
		spaced = rawName
	}
	entry := store.RuneEntry{
		ID:            id,
		EtchingTxID:   etchingTxID,
		Block:         blockHeight,
		Name:          name,
		RawName:       rawName,
		SpacedRawName: spaced,
		Symbol:        etching.Symbol,
		Divisibility:  etching.Divisibility,
		Premine:       big.NewInt(0),
		Burned:        big.NewInt(0),
		Timestamp:     blockTime,
		IsCenotaph:    isCenotaph,
	}
	if !isCenotaph {
		entry.Premine = nonNilOrZero(etching.Premine)
		entry.Terms = etching.Terms
	}
	event := store.RuneEvent{TxID: etchingTxID, RuneID: id, BlockHeight: blockHeight, Amount: entry.Premine, Kind: store.EventEtch, Timestamp: blockTime}
	return u.Store.AddEtching(entry, event)
}

func nonNilOrZero(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return n
}

func addBalance(m map[runestone.RuneId]*big.Int, id runestone.RuneId, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		if _, ok := m[id]; !ok {
			m[id] = new(big.Int)
		}
		return
	}
	if cur, ok := m[id]; ok {
		cur.Add(cur, amount)
	} else {
		m[id] = new(big.Int).Set(amount)
	}
}

func allocateTo(allocated map[uint32]map[runestone.RuneId]*big.Int, vout uint32, id runestone.RuneId, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	perOutput, ok := allocated[vout]
	if !ok {
		perOutput = make(map[runestone.RuneId]*big.Int)
		allocated[vout] = perOutput
	}
	if cur, ok := perOutput[id]; ok {
		cur.Add(cur, amount)
	} else {
		perOutput[id] = new(big.Int).Set(amount)
	}
}

func applyEdicts(edicts []runestone.Edict, etchedID *runestone.RuneId, unallocated map[runestone.RuneId]*big.Int, allocated map[uint32]map[runestone.RuneId]*big.Int, outputs []outputInfo) {
	numOutputs := uint32(len(outputs))
	for _, edict := range edicts {
		id := edict.ID
		if id.IsSentinel() {
			if etchedID == nil {
				continue
			}
			id = *etchedID
		}
		balance, ok := unallocated[id]
		if !ok {
			continue
		}

		if edict.Output == numOutputs {
			var destinations []uint32
			for i, o := range outputs {
				if !o.isOpReturn {
					destinations = append(destinations, uint32(i))
				}
			}
			if len(destinations) == 0 {
				continue
			}
			if edict.Amount.Sign() == 0 {
				count := big.NewInt(int64(len(destinations)))
				quotient := new(big.Int)
				remainder := new(big.Int)
				quotient.QuoRem(balance, count, remainder)
				r := int(remainder.Int64())
				for idx, outIdx := range destinations {
					amt := new(big.Int).Set(quotient)
					if idx < r {
						amt.Add(amt, big.NewInt(1))
					}
					if amt.Sign() > 0 {
						allocateTo(allocated, outIdx, id, amt)
						balance.Sub(balance, amt)
					}
				}
			} else {
				for _, outIdx := range destinations {
					if balance.Sign() <= 0 {
						break
					}
					give := new(big.Int).Set(edict.Amount)
					if give.Cmp(balance) > 0 {
						give.Set(balance)
					}
					allocateTo(allocated, outIdx, id, give)
					balance.Sub(balance, give)
				}
			}
		} else {
			var give *big.Int
			if edict.Amount.Sign() == 0 {
				give = new(big.Int).Set(balance)
			} else {
				give = new(big.Int).Set(edict.Amount)
				if give.Cmp(balance) > 0 {
					give.Set(balance)
				}
			}
			allocateTo(allocated, edict.Output, id, give)
			balance.Sub(balance, give)
		}
		unallocated[id] = balance
	}
}

func sortedRuneIDs[V any](m map[runestone.RuneId]V) []runestone.RuneId {
	ids := make([]runestone.RuneId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

func hasTXO(s *store.RuneStore, txID string, vout uint32) bool {
	_, err := s.GetTXO(txID, vout)
	return err == nil
}
