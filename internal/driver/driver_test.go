package driver

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/runeindex/runeindexd/internal/btcrpc"
	"github.com/runeindex/runeindexd/internal/reorg"
	"github.com/runeindex/runeindexd/internal/runestone"
	"github.com/runeindex/runeindexd/internal/store"
	"github.com/runeindex/runeindexd/internal/updater"
	"github.com/runeindex/runeindexd/pkg/runename"
	"github.com/stretchr/testify/require"
)

// fakeNode is a minimal Bitcoin Core JSON-RPC stand-in serving a fixed set
// of blocks from in-memory maps, keyed by height and hash, so CatchUp can
// be exercised end to end without a real node.
type fakeNode struct {
	tip      int64
	hashes   map[int64]string
	headers  map[string]btcrpc.BlockHeader
	blockHex map[string]string
}

func (f *fakeNode) serve(t *testing.T) *btcrpc.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
			ID     string        `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "getblockcount":
			fmt.Fprintf(w, `{"result":%d,"error":null,"id":"%s"}`, f.tip, req.ID)
		case "getblockhash":
			height := int64(req.Params[0].(float64))
			hash, ok := f.hashes[height]
			if !ok {
				fmt.Fprintf(w, `{"result":null,"error":{"code":-8,"message":"height out of range"},"id":"%s"}`, req.ID)
				return
			}
			fmt.Fprintf(w, `{"result":%q,"error":null,"id":"%s"}`, hash, req.ID)
		case "getblockheader":
			hash := req.Params[0].(string)
			hdr, ok := f.headers[hash]
			if !ok {
				fmt.Fprintf(w, `{"result":null,"error":{"code":-5,"message":"block not found"},"id":"%s"}`, req.ID)
				return
			}
			b, err := json.Marshal(hdr)
			require.NoError(t, err)
			fmt.Fprintf(w, `{"result":%s,"error":null,"id":"%s"}`, b, req.ID)
		case "getblock":
			hash := req.Params[0].(string)
			raw, ok := f.blockHex[hash]
			if !ok {
				fmt.Fprintf(w, `{"result":null,"error":{"code":-5,"message":"block not found"},"id":"%s"}`, req.ID)
				return
			}
			fmt.Fprintf(w, `{"result":%q,"error":null,"id":"%s"}`, raw, req.ID)
		default:
			fmt.Fprintf(w, `{"result":null,"error":{"code":-32601,"message":"method not found"},"id":"%s"}`, req.ID)
		}
	}))
	t.Cleanup(srv.Close)
	return btcrpc.New(srv.URL, "", "")
}

func coinbaseInput() *wire.TxIn {
	return &wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: math.MaxUint32}}
}

func blockHex(t *testing.T, txs ...*wire.MsgTx) string {
	t.Helper()
	blk := wire.NewMsgBlock(&wire.BlockHeader{})
	for _, tx := range txs {
		require.NoError(t, blk.AddTransaction(tx))
	}
	var buf bytes.Buffer
	require.NoError(t, blk.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

func etchingTx(t *testing.T, premine int64) *wire.MsgTx {
	t.Helper()
	rs := &runestone.Runestone{Etching: &runestone.Etching{Premine: big.NewInt(premine)}}
	script, err := rs.Encipher()
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(coinbaseInput())
	tx.AddTxOut(wire.NewTxOut(0, script))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_TRUE}))
	return tx
}

func TestCatchUpIndexesBlocksToTip(t *testing.T) {
	s := store.New(store.NewMemory())
	tx1 := etchingTx(t, 1000)
	hex1 := blockHex(t, tx1)

	node := &fakeNode{
		tip:    1,
		hashes: map[int64]string{1: "hash-1"},
		headers: map[string]btcrpc.BlockHeader{
			"hash-1": {Hash: "hash-1", PreviousBlockHash: "hash-0", Time: 1_700_000_000},
		},
		blockHex: map[string]string{"hash-1": hex1},
	}
	rpc := node.serve(t)

	u := updater.New(s, rpc, &chaincfg.RegressionNetParams, runename.Schedule{ActivationHeight: 1, HalvingInterval: 12})
	d := New(rpc, s, u, reorg.New(rpc, s), 1)

	n, err := d.CatchUp(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cursor, ok, err := s.Cursor()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), cursor)

	entry, err := s.GetRuneEntryByEtchingTx(tx1.TxHash().String())
	require.NoError(t, err)
	require.Equal(t, 0, entry.Premine.Cmp(big.NewInt(1000)))

	// A second pass with no new tip indexes nothing further.
	n, err = d.CatchUp(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestCatchUpDetectsReorgAndRestartsFromAncestor(t *testing.T) {
	s := store.New(store.NewMemory())

	// The store is sitting at a stale tip (heights 1, 2) that the source
	// chain has since abandoned; only genesis (height 0) is still shared.
	require.NoError(t, s.PutBlock(store.BlockRecord{Height: 0, Hash: "hash-0", Timestamp: 0}))
	require.NoError(t, s.PutBlock(store.BlockRecord{Height: 1, Hash: "hash-1-stale", Timestamp: 1}))
	require.NoError(t, s.PutBlock(store.BlockRecord{Height: 2, Hash: "hash-2-stale", Timestamp: 2}))

	tx1 := etchingTx(t, 500)
	tx2 := etchingTx(t, 900)
	tx3 := etchingTx(t, 111)

	node := &fakeNode{
		tip: 3,
		hashes: map[int64]string{
			0: "hash-0",
			1: "hash-1-new",
			2: "hash-2-new",
			3: "hash-3-new",
		},
		headers: map[string]btcrpc.BlockHeader{
			"hash-1-new": {Hash: "hash-1-new", PreviousBlockHash: "hash-0", Time: 1_700_000_000},
			"hash-2-new": {Hash: "hash-2-new", PreviousBlockHash: "hash-1-new", Time: 1_700_000_100},
			"hash-3-new": {Hash: "hash-3-new", PreviousBlockHash: "hash-2-new", Time: 1_700_000_200},
		},
		blockHex: map[string]string{
			"hash-1-new": blockHex(t, tx1),
			"hash-2-new": blockHex(t, tx2),
			"hash-3-new": blockHex(t, tx3),
		},
	}
	rpc := node.serve(t)

	u := updater.New(s, rpc, &chaincfg.RegressionNetParams, runename.Schedule{ActivationHeight: 1, HalvingInterval: 12})
	d := New(rpc, s, u, reorg.New(rpc, s), 1)

	n, err := d.CatchUp(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n) // re-indexes 1, 2, then the new block 3

	cursor, ok, err := s.Cursor()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), cursor)

	blk2, err := s.GetBlockByHeight(2)
	require.NoError(t, err)
	require.Equal(t, "hash-2-new", blk2.Hash)

	_, err = s.GetRuneEntryByEtchingTx(tx1.TxHash().String())
	require.NoError(t, err)
	_, err = s.GetRuneEntryByEtchingTx(tx3.TxHash().String())
	require.NoError(t, err)
}
