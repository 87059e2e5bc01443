package store

import (
	"encoding/binary"
	"strings"

	"github.com/runeindex/runeindexd/internal/runestone"
)

// Key prefixes, following the teacher's short-ASCII-prefix-plus-slash
// convention (`b/`, `h/`, `x/`, `s/...`).
var (
	prefixRuneEntry     = []byte("re/")
	prefixRuneByEtchTx  = []byte("re_tx/")
	prefixRuneByName    = []byte("re_name/")
	keyRuneSeq          = []byte("re_seq")
	prefixTXO           = []byte("txo/")
	prefixRuneTXO       = []byte("rtxo/")
	prefixRuneTXOByAddr = []byte("rtxo_addr/")
	prefixRuneEvent     = []byte("revent/")
	prefixEventByAddr   = []byte("revent_addr/")
	prefixTx            = []byte("tx/")
	prefixBlockByHeight = []byte("blk_h/")
	prefixBlockByHash   = []byte("blk_x/")
	keyCursor           = []byte("s/cursor")
)

func beUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func beUint32(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

// runeIDKey renders a RuneId as a 12-byte sortable key component
// (8-byte block height, 4-byte tx index), matching the total order
// defined on RuneId.
func runeIDKey(id runestone.RuneId) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[0:8], id.Block)
	binary.BigEndian.PutUint32(b[8:12], id.Tx)
	return b
}

func runeEntryKey(id runestone.RuneId) []byte {
	return append(append([]byte{}, prefixRuneEntry...), runeIDKey(id)...)
}

func runeByEtchTxKey(txID string) []byte {
	return append(append([]byte{}, prefixRuneByEtchTx...), []byte(txID)...)
}

func runeByNameKey(rawName string) []byte {
	return append(append([]byte{}, prefixRuneByName...), []byte(rawName)...)
}

func txoKey(txID string, vout uint32) []byte {
	k := append([]byte{}, prefixTXO...)
	k = append(k, []byte(txID)...)
	k = append(k, '/')
	return append(k, beUint32(vout)...)
}

// runeTXOOutpointPrefix matches every RuneTXO row sitting at (txID, vout),
// regardless of which rune they carry.
func runeTXOOutpointPrefix(txID string, vout uint32) []byte {
	k := append([]byte{}, prefixRuneTXO...)
	k = append(k, []byte(txID)...)
	k = append(k, '/')
	return append(k, beUint32(vout)...)
}

// runeTXOByTxPrefix matches every RuneTXO row created by txID, at any
// vout and carrying any rune — the outputs a transaction created.
func runeTXOByTxPrefix(txID string) []byte {
	k := append([]byte{}, prefixRuneTXO...)
	return append(k, []byte(txID+"/")...)
}

func runeTXOKey(txID string, vout uint32, id runestone.RuneId) []byte {
	k := runeTXOOutpointPrefix(txID, vout)
	k = append(k, '/')
	return append(k, runeIDKey(id)...)
}

func normalizeAddress(address string) string {
	return strings.ToLower(address)
}

// runeTXOByAddrPrefix scopes the address index to one (address, rune)
// pair, used for the `runes_txos(address,rune_id,is_unspent)` index.
func runeTXOByAddrPrefix(address string, id runestone.RuneId) []byte {
	k := append([]byte{}, prefixRuneTXOByAddr...)
	k = append(k, []byte(normalizeAddress(address))...)
	k = append(k, '/')
	return append(k, runeIDKey(id)...)
}

// runeTXOByAddrAnyPrefix scopes the address index to every rune held by
// an address, used for `runes_txos(address,is_unspent)`.
func runeTXOByAddrAnyPrefix(address string) []byte {
	k := append([]byte{}, prefixRuneTXOByAddr...)
	k = append(k, []byte(normalizeAddress(address))...)
	return append(k, '/')
}

func runeTXOByAddrKey(address string, id runestone.RuneId, txID string, vout uint32) []byte {
	k := runeTXOByAddrPrefix(address, id)
	k = append(k, '/')
	k = append(k, []byte(txID)...)
	k = append(k, '/')
	return append(k, beUint32(vout)...)
}

func runeEventKey(id runestone.RuneId, blockHeight uint64, txID string, vout uint32) []byte {
	k := append([]byte{}, prefixRuneEvent...)
	k = append(k, runeIDKey(id)...)
	k = append(k, '/')
	k = append(k, beUint64(blockHeight)...)
	k = append(k, '/')
	k = append(k, []byte(txID)...)
	k = append(k, '/')
	return append(k, beUint32(vout)...)
}

func eventByAddrPrefix(address string, id runestone.RuneId) []byte {
	k := append([]byte{}, prefixEventByAddr...)
	k = append(k, []byte(normalizeAddress(address))...)
	k = append(k, '/')
	return append(k, runeIDKey(id)...)
}

func eventByAddrKey(address string, id runestone.RuneId, blockHeight uint64, txID string, vout uint32) []byte {
	k := eventByAddrPrefix(address, id)
	k = append(k, '/')
	k = append(k, beUint64(blockHeight)...)
	k = append(k, '/')
	k = append(k, []byte(txID)...)
	k = append(k, '/')
	return append(k, beUint32(vout)...)
}

func txKey(txID string) []byte {
	return append(append([]byte{}, prefixTx...), []byte(txID)...)
}

func blockByHeightKey(height uint64) []byte {
	return append(append([]byte{}, prefixBlockByHeight...), beUint64(height)...)
}

func blockByHashKey(hash string) []byte {
	return append(append([]byte{}, prefixBlockByHash...), []byte(hash)...)
}
