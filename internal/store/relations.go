package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/runeindex/runeindexd/internal/runestone"
)

// ErrDuplicateRuneName is returned when an etching's raw name collides with
// an already-indexed rune (the uniqueness invariant on rune_entries.raw_name).
var ErrDuplicateRuneName = errors.New("store: rune name already indexed")

// ErrNotFound is returned by the typed lookups below when no row exists.
var ErrNotFound = errors.New("store: not found")

// RuneStore is the typed relational layer sitting on top of a DB. All
// writes that must be visible atomically go through a Batch obtained from
// a Batcher-capable DB (PrefixDB and the Memory/Badger backends all
// implement Batcher); on a DB that does not implement Batcher every write
// returns an error.
type RuneStore struct {
	db DB
}

func New(db DB) *RuneStore {
	return &RuneStore{db: db}
}

func (s *RuneStore) newBatch() (Batch, error) {
	b, ok := s.db.(Batcher)
	if !ok {
		return nil, fmt.Errorf("store: %T does not support atomic batches", s.db)
	}
	return b.NewBatch(), nil
}

// --- RuneEntry -------------------------------------------------------------

func (s *RuneStore) GetRuneEntry(id runestone.RuneId) (*RuneEntry, error) {
	raw, err := s.db.Get(runeEntryKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rune entry: %w", err)
	}
	var e RuneEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode rune entry: %w", err)
	}
	return &e, nil
}

func (s *RuneStore) GetRuneEntryByName(rawName string) (*RuneEntry, error) {
	idBytes, err := s.db.Get(runeByNameKey(rawName))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rune by name: %w", err)
	}
	id, err := decodeRuneIDKey(idBytes)
	if err != nil {
		return nil, err
	}
	return s.GetRuneEntry(id)
}

func (s *RuneStore) GetRuneEntryByEtchingTx(txID string) (*RuneEntry, error) {
	idBytes, err := s.db.Get(runeByEtchTxKey(txID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rune by etching tx: %w", err)
	}
	id, err := decodeRuneIDKey(idBytes)
	if err != nil {
		return nil, err
	}
	return s.GetRuneEntry(id)
}

func (s *RuneStore) ListRuneEntries(fn func(*RuneEntry) error) error {
	return s.db.ForEach(prefixRuneEntry, func(_, value []byte) error {
		var e RuneEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode rune entry: %w", err)
		}
		return fn(&e)
	})
}

// nextRuneNumber returns the next 0-based sequence number for a freshly
// etched rune. Callers must hold the single-writer discipline described
// in spec §5 (the updater is the only writer).
func (s *RuneStore) nextRuneNumber() (uint64, error) {
	raw, err := s.db.Get(keyRuneSeq)
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read rune sequence: %w", err)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// AddEtching is the "Add etching" transactional bundle (§4.4): it creates
// the RuneEntry row, its two secondary indexes, and an etch RuneEvent,
// atomically. Returns ErrDuplicateRuneName if the raw name is already
// taken.
func (s *RuneStore) AddEtching(entry RuneEntry, event RuneEvent) error {
	if has, err := s.db.Has(runeByNameKey(entry.RawName)); err != nil {
		return fmt.Errorf("check rune name: %w", err)
	} else if has {
		return ErrDuplicateRuneName
	}

	number, err := s.nextRuneNumber()
	if err != nil {
		return err
	}
	entry.RuneNumber = number

	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode rune entry: %w", err)
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode rune event: %w", err)
	}

	batch, err := s.newBatch()
	if err != nil {
		return err
	}
	idKey := runeIDKey(entry.ID)
	if err := batch.Put(runeEntryKey(entry.ID), entryBytes); err != nil {
		return err
	}
	if err := batch.Put(runeByNameKey(entry.RawName), idKey); err != nil {
		return err
	}
	if err := batch.Put(runeByEtchTxKey(entry.EtchingTxID), idKey); err != nil {
		return err
	}
	if err := batch.Put(keyRuneSeq, beUint64(number+1)); err != nil {
		return err
	}
	if err := putRuneEvent(batch, entry.ID, event, eventBytes); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit add-etching: %w", err)
	}
	return nil
}

// ApplyMint is the "Apply mint" transactional bundle (§4.4): it
// increments the entry's mint_count and appends a mint RuneEvent
// atomically.
func (s *RuneStore) ApplyMint(id runestone.RuneId, event RuneEvent) error {
	entry, err := s.GetRuneEntry(id)
	if err != nil {
		return err
	}
	entry.MintCount++

	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode rune entry: %w", err)
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode rune event: %w", err)
	}

	batch, err := s.newBatch()
	if err != nil {
		return err
	}
	if err := batch.Put(runeEntryKey(id), entryBytes); err != nil {
		return err
	}
	if err := putRuneEvent(batch, id, event, eventBytes); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit apply-mint: %w", err)
	}
	return nil
}

// BurnRune records burned supply against a rune entry (used when an edict
// routes amounts to an OP_RETURN output or no valid output exists at
// all), atomically with the corresponding burn RuneEvent.
func (s *RuneStore) BurnRune(id runestone.RuneId, amount *big.Int, event RuneEvent) error {
	entry, err := s.GetRuneEntry(id)
	if err != nil {
		return err
	}
	if entry.Burned == nil {
		entry.Burned = new(big.Int)
	}
	entry.Burned = new(big.Int).Add(entry.Burned, amount)

	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode rune entry: %w", err)
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode rune event: %w", err)
	}

	batch, err := s.newBatch()
	if err != nil {
		return err
	}
	if err := batch.Put(runeEntryKey(id), entryBytes); err != nil {
		return err
	}
	if err := putRuneEvent(batch, id, event, eventBytes); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit burn: %w", err)
	}
	return nil
}

func putRuneEvent(batch Batch, id runestone.RuneId, event RuneEvent, eventBytes []byte) error {
	vout := uint32(0)
	if event.Vout != nil {
		vout = *event.Vout
	}
	if err := batch.Put(runeEventKey(id, event.BlockHeight, event.TxID, vout), eventBytes); err != nil {
		return err
	}
	if event.Address != "" {
		if err := batch.Put(eventByAddrKey(event.Address, id, event.BlockHeight, event.TxID, vout), eventBytes); err != nil {
			return err
		}
	}
	return nil
}

func (s *RuneStore) ListRuneEvents(id runestone.RuneId, fn func(*RuneEvent) error) error {
	prefix := append(append([]byte{}, prefixRuneEvent...), runeIDKey(id)...)
	return s.db.ForEach(prefix, func(_, value []byte) error {
		var ev RuneEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode rune event: %w", err)
		}
		return fn(&ev)
	})
}

func (s *RuneStore) ListRuneEventsByAddress(address string, id runestone.RuneId, fn func(*RuneEvent) error) error {
	return s.db.ForEach(eventByAddrPrefix(address, id), func(_, value []byte) error {
		var ev RuneEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode rune event: %w", err)
		}
		return fn(&ev)
	})
}

// --- TXO ---------------------------------------------------------------

func (s *RuneStore) PutTXO(t TXO) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode txo: %w", err)
	}
	if err := s.db.Put(txoKey(t.TxID, t.Vout), b); err != nil {
		return fmt.Errorf("put txo: %w", err)
	}
	return nil
}

func (s *RuneStore) GetTXO(txID string, vout uint32) (*TXO, error) {
	raw, err := s.db.Get(txoKey(txID, vout))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get txo: %w", err)
	}
	var t TXO
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode txo: %w", err)
	}
	return &t, nil
}

func (s *RuneStore) MarkTXOSpent(txID string, vout uint32, spentBy string, spentHeight uint64) error {
	t, err := s.GetTXO(txID, vout)
	if err != nil {
		return err
	}
	t.IsUnspent = false
	t.SpentTxID = spentBy
	t.SpentHeight = spentHeight
	return s.PutTXO(*t)
}

// --- RuneTXO -------------------------------------------------------------

// AllocateOutput is the "Allocate output" transactional bundle (§4.4): it
// records the plain TXO row plus zero or more RuneTXO rows (and their
// address indexes and transfer/mint events) for a single transaction
// output, atomically.
func (s *RuneStore) AllocateOutput(txo TXO, runeTXOs []RuneTXO, events []RuneEvent) error {
	txoBytes, err := json.Marshal(txo)
	if err != nil {
		return fmt.Errorf("encode txo: %w", err)
	}

	batch, err := s.newBatch()
	if err != nil {
		return err
	}
	if err := batch.Put(txoKey(txo.TxID, txo.Vout), txoBytes); err != nil {
		return err
	}
	for _, rt := range runeTXOs {
		if err := putRuneTXO(batch, rt); err != nil {
			return err
		}
	}
	for _, ev := range events {
		evBytes, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode rune event: %w", err)
		}
		if err := putRuneEvent(batch, ev.RuneID, ev, evBytes); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit allocate-output: %w", err)
	}
	return nil
}

func putRuneTXO(batch Batch, rt RuneTXO) error {
	b, err := json.Marshal(rt)
	if err != nil {
		return fmt.Errorf("encode rune txo: %w", err)
	}
	if err := batch.Put(runeTXOKey(rt.TxID, rt.Vout, rt.RuneID), b); err != nil {
		return err
	}
	if rt.Address != "" {
		if err := batch.Put(runeTXOByAddrKey(rt.Address, rt.RuneID, rt.TxID, rt.Vout), b); err != nil {
			return err
		}
	}
	return nil
}

// GetRuneTXOsAtOutpoint returns every rune balance sitting at (txID,
// vout), used by the updater to seed the unallocated balances of a
// transaction's inputs (§4.5 step 2).
func (s *RuneStore) GetRuneTXOsAtOutpoint(txID string, vout uint32) ([]RuneTXO, error) {
	var out []RuneTXO
	err := s.db.ForEach(runeTXOOutpointPrefix(txID, vout), func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		out = append(out, rt)
		return nil
	})
	return out, err
}

// RuneTXOsByTx returns every RuneTXO row created as an output of txID,
// across all of its vouts — the "outputs" side of the read API's
// transaction detail enrichment (spec §6).
func (s *RuneStore) RuneTXOsByTx(txID string) ([]RuneTXO, error) {
	var out []RuneTXO
	err := s.db.ForEach(runeTXOByTxPrefix(txID), func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		out = append(out, rt)
		return nil
	})
	return out, err
}

// RuneTXOsSpentByTx returns every RuneTXO row that txID consumed as an
// input — the "inputs" side of the read API's transaction detail
// enrichment (spec §6). It scans every rune TXO the same way the reorg
// rollback helpers do, since spent-by is not otherwise indexed.
func (s *RuneStore) RuneTXOsSpentByTx(txID string) ([]RuneTXO, error) {
	var out []RuneTXO
	err := s.db.ForEach(prefixRuneTXO, func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		if rt.SpentTxID == txID {
			out = append(out, rt)
		}
		return nil
	})
	return out, err
}

// MarkSpent is the "Mark spent" transactional bundle (§4.4): it flips
// is_unspent to false (recording the spending tx) on the plain TXO row
// and on every RuneTXO row at that outpoint, including their address
// index entries, atomically.
func (s *RuneStore) MarkSpent(txID string, vout uint32, spentBy string, spentHeight uint64) error {
	rows, err := s.GetRuneTXOsAtOutpoint(txID, vout)
	if err != nil {
		return fmt.Errorf("mark spent: %w", err)
	}
	txo, err := s.GetTXO(txID, vout)
	if err != nil {
		return err
	}

	batch, err := s.newBatch()
	if err != nil {
		return err
	}
	txo.IsUnspent = false
	txo.SpentTxID = spentBy
	txo.SpentHeight = spentHeight
	txoBytes, err := json.Marshal(txo)
	if err != nil {
		return fmt.Errorf("encode txo: %w", err)
	}
	if err := batch.Put(txoKey(txID, vout), txoBytes); err != nil {
		return err
	}
	for _, rt := range rows {
		rt.IsUnspent = false
		rt.SpentTxID = spentBy
		rt.SpentHeight = spentHeight
		if err := putRuneTXO(batch, rt); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit mark-spent: %w", err)
	}
	return nil
}

// BalanceList sums every unspent RuneTXO held by an address, grouped by
// rune, satisfying `runes_txos(address,is_unspent)`.
func (s *RuneStore) BalanceList(address string) (map[runestone.RuneId]*big.Int, error) {
	totals := make(map[runestone.RuneId]*big.Int)
	err := s.db.ForEach(runeTXOByAddrAnyPrefix(address), func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		if !rt.IsUnspent {
			return nil
		}
		if cur, ok := totals[rt.RuneID]; ok {
			cur.Add(cur, rt.Amount)
		} else {
			totals[rt.RuneID] = new(big.Int).Set(rt.Amount)
		}
		return nil
	})
	return totals, err
}

// Balance sums every unspent RuneTXO held by an address for one rune,
// satisfying `runes_txos(address,rune_id,is_unspent)`.
func (s *RuneStore) Balance(address string, id runestone.RuneId) (*big.Int, error) {
	total := new(big.Int)
	err := s.db.ForEach(runeTXOByAddrPrefix(address, id), func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		if rt.IsUnspent {
			total.Add(total, rt.Amount)
		}
		return nil
	})
	return total, err
}

// UnspentByAddressAndRune lists the individual unspent RuneTXO rows for
// an address/rune pair, used by the `/address/{address}/runes/{rune_id}/utxo`
// route.
func (s *RuneStore) UnspentByAddressAndRune(address string, id runestone.RuneId) ([]RuneTXO, error) {
	var out []RuneTXO
	err := s.db.ForEach(runeTXOByAddrPrefix(address, id), func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		if rt.IsUnspent {
			out = append(out, rt)
		}
		return nil
	})
	return out, err
}

// --- Transaction / Block / Cursor ---------------------------------------

func (s *RuneStore) PutTransaction(t TransactionRecord) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	if err := s.db.Put(txKey(t.TxID), b); err != nil {
		return fmt.Errorf("put transaction: %w", err)
	}
	return nil
}

func (s *RuneStore) GetTransaction(txID string) (*TransactionRecord, error) {
	raw, err := s.db.Get(txKey(txID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	var t TransactionRecord
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &t, nil
}

func (s *RuneStore) ListTransactions(fn func(*TransactionRecord) error) error {
	return s.db.ForEach(prefixTx, func(_, value []byte) error {
		var t TransactionRecord
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("decode transaction: %w", err)
		}
		return fn(&t)
	})
}

func (s *RuneStore) PutBlock(b BlockRecord) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	batch, err := s.newBatch()
	if err != nil {
		return err
	}
	if err := batch.Put(blockByHeightKey(b.Height), raw); err != nil {
		return err
	}
	if err := batch.Put(blockByHashKey(b.Hash), beUint64(b.Height)); err != nil {
		return err
	}
	if err := batch.Put(keyCursor, beUint64(b.Height)); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit put-block: %w", err)
	}
	return nil
}

func (s *RuneStore) GetBlockByHeight(height uint64) (*BlockRecord, error) {
	raw, err := s.db.Get(blockByHeightKey(height))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	var b BlockRecord
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &b, nil
}

func (s *RuneStore) GetBlockByHash(hash string) (*BlockRecord, error) {
	raw, err := s.db.Get(blockByHashKey(hash))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block by hash: %w", err)
	}
	return s.GetBlockByHeight(binary.BigEndian.Uint64(raw))
}

// Cursor returns the height of the last fully-committed block, or
// (0, false) if the store is empty.
func (s *RuneStore) Cursor() (uint64, bool, error) {
	raw, err := s.db.Get(keyCursor)
	if errors.Is(err, ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// RollbackToHeight is the "Rollback to height h" transactional bundle
// (§4.4, §4.8): it deletes every row whose block_height exceeds h across
// all relations and restores spent outpoints whose spending transaction
// was rolled back. It is idempotent: rolling back to a height at or
// above the current cursor is a no-op.
//
// The teacher's reorg path (`internal/chain/reorg.go`) scans its undo log
// in reverse per block; this store instead does a bounded full-table scan
// per relation, which is simpler and correct at the MAX_REORG_DEPTH scale
// this indexer operates at (a handful of blocks, never the whole chain).
func (s *RuneStore) RollbackToHeight(h uint64) error {
	cursor, ok, err := s.Cursor()
	if err != nil {
		return err
	}
	if !ok || cursor <= h {
		return nil
	}

	batch, err := s.newBatch()
	if err != nil {
		return err
	}

	if err := restoreSpentTXOs(s.db, batch, h); err != nil {
		return err
	}
	if err := restoreSpentRuneTXOs(s.db, batch, h); err != nil {
		return err
	}
	if err := rollbackTXOs(s.db, batch, h); err != nil {
		return err
	}
	if err := rollbackRuneTXOs(s.db, batch, h); err != nil {
		return err
	}
	if err := rollbackRuneEvents(s.db, batch, h); err != nil {
		return err
	}
	if err := rollbackRuneEntries(s.db, batch, h); err != nil {
		return err
	}
	if err := rollbackTransactions(s.db, batch, h); err != nil {
		return err
	}
	if err := rollbackBlocks(s.db, batch, h); err != nil {
		return err
	}
	if err := batch.Put(keyCursor, beUint64(h)); err != nil {
		return err
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}
	return nil
}

// restoreSpentTXOs reopens TXO rows created at or before h but spent by a
// transaction whose own block is being rolled back, undoing the
// "Mark spent" bundle for exactly those rows (§4.4, §4.8). Rows created
// after h are left alone here; rollbackTXOs deletes them outright.
func restoreSpentTXOs(db DB, batch Batch, h uint64) error {
	var stale []TXO
	if err := db.ForEach(prefixTXO, func(_, value []byte) error {
		var t TXO
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("decode txo: %w", err)
		}
		if t.BlockHeight <= h && !t.IsUnspent && t.SpentHeight > h {
			stale = append(stale, t)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, t := range stale {
		t.IsUnspent = true
		t.SpentTxID = ""
		t.SpentHeight = 0
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode txo: %w", err)
		}
		if err := batch.Put(txoKey(t.TxID, t.Vout), b); err != nil {
			return err
		}
	}
	return nil
}

// restoreSpentRuneTXOs is restoreSpentTXOs' counterpart for RuneTXO rows,
// also refreshing the address-indexed copy.
func restoreSpentRuneTXOs(db DB, batch Batch, h uint64) error {
	var stale []RuneTXO
	if err := db.ForEach(prefixRuneTXO, func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		if rt.BlockHeight <= h && !rt.IsUnspent && rt.SpentHeight > h {
			stale = append(stale, rt)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, rt := range stale {
		rt.IsUnspent = true
		rt.SpentTxID = ""
		rt.SpentHeight = 0
		if err := putRuneTXO(batch, rt); err != nil {
			return err
		}
	}
	return nil
}

func rollbackTXOs(db DB, batch Batch, h uint64) error {
	var stale [][]byte
	if err := db.ForEach(prefixTXO, func(key, value []byte) error {
		var t TXO
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("decode txo: %w", err)
		}
		if t.BlockHeight > h {
			stale = append(stale, append([]byte{}, key...))
		}
		return nil
	}); err != nil {
		return err
	}
	for _, k := range stale {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func rollbackRuneTXOs(db DB, batch Batch, h uint64) error {
	var stale []RuneTXO
	if err := db.ForEach(prefixRuneTXO, func(_, value []byte) error {
		var rt RuneTXO
		if err := json.Unmarshal(value, &rt); err != nil {
			return fmt.Errorf("decode rune txo: %w", err)
		}
		if rt.BlockHeight > h {
			stale = append(stale, rt)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, rt := range stale {
		if err := batch.Delete(runeTXOKey(rt.TxID, rt.Vout, rt.RuneID)); err != nil {
			return err
		}
		if rt.Address != "" {
			if err := batch.Delete(runeTXOByAddrKey(rt.Address, rt.RuneID, rt.TxID, rt.Vout)); err != nil {
				return err
			}
		}
	}
	return nil
}

func rollbackRuneEvents(db DB, batch Batch, h uint64) error {
	var stale []RuneEvent
	if err := db.ForEach(prefixRuneEvent, func(_, value []byte) error {
		var ev RuneEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode rune event: %w", err)
		}
		if ev.BlockHeight > h {
			stale = append(stale, ev)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, ev := range stale {
		vout := uint32(0)
		if ev.Vout != nil {
			vout = *ev.Vout
		}
		if err := batch.Delete(runeEventKey(ev.RuneID, ev.BlockHeight, ev.TxID, vout)); err != nil {
			return err
		}
		if ev.Address != "" {
			if err := batch.Delete(eventByAddrKey(ev.Address, ev.RuneID, ev.BlockHeight, ev.TxID, vout)); err != nil {
				return err
			}
		}
	}
	return nil
}

// rollbackRuneEntries deletes rune entries etched after h, along with
// their name/etching-tx indexes. It intentionally does not attempt to
// rewind the rune sequence counter: rune numbers are monotone and never
// reused, even across a reorg, mirroring real-world indexer behavior
// where a rolled-back etching's slot is simply skipped.
func rollbackRuneEntries(db DB, batch Batch, h uint64) error {
	var stale []RuneEntry
	if err := db.ForEach(prefixRuneEntry, func(_, value []byte) error {
		var e RuneEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode rune entry: %w", err)
		}
		if e.Block > h {
			stale = append(stale, e)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, e := range stale {
		if err := batch.Delete(runeEntryKey(e.ID)); err != nil {
			return err
		}
		if err := batch.Delete(runeByNameKey(e.RawName)); err != nil {
			return err
		}
		if err := batch.Delete(runeByEtchTxKey(e.EtchingTxID)); err != nil {
			return err
		}
	}
	return nil
}

func rollbackTransactions(db DB, batch Batch, h uint64) error {
	var stale [][]byte
	if err := db.ForEach(prefixTx, func(key, value []byte) error {
		var t TransactionRecord
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("decode transaction: %w", err)
		}
		if t.BlockHeight > h {
			stale = append(stale, append([]byte{}, key...))
		}
		return nil
	}); err != nil {
		return err
	}
	for _, k := range stale {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func rollbackBlocks(db DB, batch Batch, h uint64) error {
	var stale []BlockRecord
	if err := db.ForEach(prefixBlockByHeight, func(_, value []byte) error {
		var b BlockRecord
		if err := json.Unmarshal(value, &b); err != nil {
			return fmt.Errorf("decode block: %w", err)
		}
		if b.Height > h {
			stale = append(stale, b)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, b := range stale {
		if err := batch.Delete(blockByHeightKey(b.Height)); err != nil {
			return err
		}
		if err := batch.Delete(blockByHashKey(b.Hash)); err != nil {
			return err
		}
	}
	return nil
}

func decodeRuneIDKey(b []byte) (runestone.RuneId, error) {
	if len(b) != 12 {
		return runestone.RuneId{}, fmt.Errorf("store: malformed rune id key (%d bytes)", len(b))
	}
	return runestone.RuneId{
		Block: binary.BigEndian.Uint64(b[0:8]),
		Tx:    binary.BigEndian.Uint32(b[8:12]),
	}, nil
}
