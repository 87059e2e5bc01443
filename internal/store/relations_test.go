package store

import (
	"math/big"
	"testing"

	"github.com/runeindex/runeindexd/internal/runestone"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RuneStore {
	t.Helper()
	return New(NewMemory())
}

func TestAddEtchingAndLookups(t *testing.T) {
	s := newTestStore(t)
	id := runestone.RuneId{Block: 840000, Tx: 1}
	entry := RuneEntry{
		ID:          id,
		EtchingTxID: "txA",
		Block:       840000,
		Name:        big.NewInt(12345),
		RawName:     "AAAAAZ",
		Premine:     big.NewInt(1000),
		Timestamp:   1700000000,
	}
	event := RuneEvent{TxID: "txA", RuneID: id, BlockHeight: 840000, Amount: big.NewInt(1000), Kind: EventEtch}

	require.NoError(t, s.AddEtching(entry, event))

	got, err := s.GetRuneEntry(id)
	require.NoError(t, err)
	require.Equal(t, "AAAAAZ", got.RawName)
	require.EqualValues(t, 0, got.RuneNumber)

	byName, err := s.GetRuneEntryByName("AAAAAZ")
	require.NoError(t, err)
	require.Equal(t, id, byName.ID)

	byTx, err := s.GetRuneEntryByEtchingTx("txA")
	require.NoError(t, err)
	require.Equal(t, id, byTx.ID)

	var events []RuneEvent
	require.NoError(t, s.ListRuneEvents(id, func(e *RuneEvent) error {
		events = append(events, *e)
		return nil
	}))
	require.Len(t, events, 1)
	require.Equal(t, EventEtch, events[0].Kind)
}

func TestAddEtchingRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)
	id1 := runestone.RuneId{Block: 1, Tx: 1}
	id2 := runestone.RuneId{Block: 2, Tx: 1}
	entry1 := RuneEntry{ID: id1, EtchingTxID: "tx1", RawName: "SAME"}
	entry2 := RuneEntry{ID: id2, EtchingTxID: "tx2", RawName: "SAME"}

	require.NoError(t, s.AddEtching(entry1, RuneEvent{TxID: "tx1", RuneID: id1, Kind: EventEtch}))
	err := s.AddEtching(entry2, RuneEvent{TxID: "tx2", RuneID: id2, Kind: EventEtch})
	require.ErrorIs(t, err, ErrDuplicateRuneName)
}

func TestRuneNumbersAreSequential(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		id := runestone.RuneId{Block: uint64(i + 1), Tx: 0}
		entry := RuneEntry{ID: id, EtchingTxID: id.String(), RawName: id.String()}
		require.NoError(t, s.AddEtching(entry, RuneEvent{TxID: id.String(), RuneID: id, Kind: EventEtch}))
	}
	for i := 0; i < 3; i++ {
		id := runestone.RuneId{Block: uint64(i + 1), Tx: 0}
		got, err := s.GetRuneEntry(id)
		require.NoError(t, err)
		require.EqualValues(t, i, got.RuneNumber)
	}
}

func TestApplyMintIncrementsCount(t *testing.T) {
	s := newTestStore(t)
	id := runestone.RuneId{Block: 1, Tx: 1}
	require.NoError(t, s.AddEtching(RuneEntry{ID: id, EtchingTxID: "etch", RawName: "A"}, RuneEvent{TxID: "etch", RuneID: id, Kind: EventEtch}))

	require.NoError(t, s.ApplyMint(id, RuneEvent{TxID: "mint1", RuneID: id, Kind: EventMint, Amount: big.NewInt(10)}))
	require.NoError(t, s.ApplyMint(id, RuneEvent{TxID: "mint2", RuneID: id, Kind: EventMint, Amount: big.NewInt(10)}))

	got, err := s.GetRuneEntry(id)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.MintCount)
}

func TestAllocateOutputAndBalance(t *testing.T) {
	s := newTestStore(t)
	id := runestone.RuneId{Block: 1, Tx: 1}
	require.NoError(t, s.AddEtching(RuneEntry{ID: id, EtchingTxID: "etch", RawName: "A"}, RuneEvent{TxID: "etch", RuneID: id, Kind: EventEtch}))

	vout := uint32(0)
	txo := TXO{TxID: "tx1", Vout: 0, BlockHeight: 2, Value: 546, Address: "bc1qexample", IsUnspent: true}
	rt := RuneTXO{TxID: "tx1", Vout: 0, BlockHeight: 2, RuneID: id, Amount: big.NewInt(500), Address: "bc1qexample", IsUnspent: true}
	ev := RuneEvent{TxID: "tx1", RuneID: id, BlockHeight: 2, Amount: big.NewInt(500), Kind: EventTransfer, Vout: &vout, Address: "bc1qexample"}

	require.NoError(t, s.AllocateOutput(txo, []RuneTXO{rt}, []RuneEvent{ev}))

	bal, err := s.Balance("bc1qexample", id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), bal)

	balList, err := s.BalanceList("bc1qexample")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), balList[id])

	// address comparison is case-insensitive
	bal, err = s.Balance("BC1QEXAMPLE", id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), bal)

	rows, err := s.GetRuneTXOsAtOutpoint("tx1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMarkSpentRemovesFromBalance(t *testing.T) {
	s := newTestStore(t)
	id := runestone.RuneId{Block: 1, Tx: 1}
	require.NoError(t, s.AddEtching(RuneEntry{ID: id, EtchingTxID: "etch", RawName: "A"}, RuneEvent{TxID: "etch", RuneID: id, Kind: EventEtch}))

	txo := TXO{TxID: "tx1", Vout: 0, BlockHeight: 2, Value: 546, Address: "addr1", IsUnspent: true}
	rt := RuneTXO{TxID: "tx1", Vout: 0, BlockHeight: 2, RuneID: id, Amount: big.NewInt(500), Address: "addr1", IsUnspent: true}
	require.NoError(t, s.AllocateOutput(txo, []RuneTXO{rt}, nil))

	require.NoError(t, s.MarkSpent("tx1", 0, "tx2", 3))

	bal, err := s.Balance("addr1", id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), bal)

	storedTXO, err := s.GetTXO("tx1", 0)
	require.NoError(t, err)
	require.False(t, storedTXO.IsUnspent)
	require.Equal(t, "tx2", storedTXO.SpentTxID)

	rows, err := s.GetRuneTXOsAtOutpoint("tx1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].IsUnspent)
}

func TestRollbackToHeightRemovesLaterRows(t *testing.T) {
	s := newTestStore(t)
	id1 := runestone.RuneId{Block: 1, Tx: 0}
	id2 := runestone.RuneId{Block: 5, Tx: 0}

	require.NoError(t, s.PutBlock(BlockRecord{Height: 1, Hash: "h1"}))
	require.NoError(t, s.AddEtching(RuneEntry{ID: id1, EtchingTxID: "etch1", RawName: "A", Block: 1}, RuneEvent{TxID: "etch1", RuneID: id1, BlockHeight: 1, Kind: EventEtch}))

	txo := TXO{TxID: "tx1", Vout: 0, BlockHeight: 1, Address: "addr1", IsUnspent: true}
	rt := RuneTXO{TxID: "tx1", Vout: 0, BlockHeight: 1, RuneID: id1, Amount: big.NewInt(100), Address: "addr1", IsUnspent: true}
	require.NoError(t, s.AllocateOutput(txo, []RuneTXO{rt}, nil))

	require.NoError(t, s.PutBlock(BlockRecord{Height: 5, Hash: "h5"}))
	require.NoError(t, s.AddEtching(RuneEntry{ID: id2, EtchingTxID: "etch2", RawName: "B", Block: 5}, RuneEvent{TxID: "etch2", RuneID: id2, BlockHeight: 5, Kind: EventEtch}))

	txo2 := TXO{TxID: "tx2", Vout: 0, BlockHeight: 5, Address: "addr1", IsUnspent: true}
	rt2 := RuneTXO{TxID: "tx2", Vout: 0, BlockHeight: 5, RuneID: id1, Amount: big.NewInt(50), Address: "addr1", IsUnspent: true}
	require.NoError(t, s.AllocateOutput(txo2, []RuneTXO{rt2}, nil))

	require.NoError(t, s.RollbackToHeight(1))

	cursor, ok, err := s.Cursor()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, cursor)

	_, err = s.GetRuneEntry(id2)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetBlockByHeight(5)
	require.ErrorIs(t, err, ErrNotFound)

	bal, err := s.Balance("addr1", id1)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), bal)

	got, err := s.GetRuneEntry(id1)
	require.NoError(t, err)
	require.Equal(t, "A", got.RawName)
}

func TestRollbackIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutBlock(BlockRecord{Height: 1, Hash: "h1"}))
	require.NoError(t, s.RollbackToHeight(10))

	cursor, ok, err := s.Cursor()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, cursor)
}
