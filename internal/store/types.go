package store

import (
	"math/big"

	"github.com/runeindex/runeindexd/internal/runestone"
)

// EventKind classifies a RuneEvent (spec §3).
type EventKind string

const (
	EventEtch     EventKind = "etch"
	EventMint     EventKind = "mint"
	EventTransfer EventKind = "transfer"
	EventBurn     EventKind = "burn"
)

// RuneEntry is the persistent summary of an etched rune (spec §3).
type RuneEntry struct {
	ID            runestone.RuneId
	EtchingTxID   string
	Block         uint64
	Name          *big.Int // the bare integer name
	RawName       string   // base-26 rendering, unique across all entries
	Symbol        *rune
	Divisibility  uint8
	Premine       *big.Int
	Terms         *runestone.Terms
	Burned        *big.Int
	MintCount     uint64
	Timestamp     int64
	IsCenotaph    bool
	RuneNumber    uint64
	SpacedRawName string
}

// TXO is a plain Bitcoin output row, recorded for every transaction output
// seen (regardless of whether it carries a rune) so that input lookups are
// always well-defined (spec §4.5 step 3b, §9 Open Questions).
type TXO struct {
	TxID        string
	Vout        uint32
	BlockHeight uint64
	Value       int64
	Address     string // as encoded for the network; empty if the script has no known address
	IsUnspent   bool
	SpentTxID   string
	SpentHeight uint64 // height of the spending transaction's block; 0 if unspent
	Timestamp   int64
}

// RuneTXO is a single rune's balance sitting at one transaction output.
// Multiple rune IDs may share a (tx_id, vout) pair.
type RuneTXO struct {
	TxID        string
	Vout        uint32
	BlockHeight uint64
	RuneID      runestone.RuneId
	Amount      *big.Int
	Address     string
	IsUnspent   bool
	SpentTxID   string
	SpentHeight uint64 // height of the spending transaction's block; 0 if unspent
	Timestamp   int64
}

// RuneEvent is an append-only record of a balance-affecting action.
type RuneEvent struct {
	TxID        string
	RuneID      runestone.RuneId
	BlockHeight uint64
	Amount      *big.Int
	Kind        EventKind
	Vout        *uint32
	Address     string
	Timestamp   int64
}

// TransactionRecord classifies a transaction that carried a Runes payload.
type TransactionRecord struct {
	TxID            string
	BlockHeight     uint64
	Timestamp       int64
	IsRunestone     bool
	IsCenotaph      bool
	CenotaphMessage string
	EtchedRuneID    *runestone.RuneId
}

// BlockRecord is the minimal header data needed for reorg detection.
type BlockRecord struct {
	Height    uint64
	Hash      string
	Timestamp int64
}
