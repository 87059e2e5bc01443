package httpapi

import (
	"math/big"

	"github.com/runeindex/runeindexd/internal/runestone"
	"github.com/runeindex/runeindexd/internal/store"
)

// bigString renders n as its decimal string, or "0" if nil — spec §6
// "128-bit integers are serialized as strings".
func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

type termsView struct {
	Amount      string  `json:"amount"`
	Cap         string  `json:"cap"`
	HeightStart *uint64 `json:"height_start,omitempty"`
	HeightEnd   *uint64 `json:"height_end,omitempty"`
	OffsetStart *uint64 `json:"offset_start,omitempty"`
	OffsetEnd   *uint64 `json:"offset_end,omitempty"`
}

func newTermsView(t *runestone.Terms) *termsView {
	if t == nil {
		return nil
	}
	return &termsView{
		Amount:      bigString(t.Amount),
		Cap:         bigString(t.Cap),
		HeightStart: t.HeightStart,
		HeightEnd:   t.HeightEnd,
		OffsetStart: t.OffsetStart,
		OffsetEnd:   t.OffsetEnd,
	}
}

type runeEntryView struct {
	RuneID        string     `json:"rune_id"`
	EtchingTxID   string     `json:"etching_tx_id"`
	Block         uint64     `json:"block"`
	Name          string     `json:"name"`
	RawName       string     `json:"raw_name"`
	SpacedRawName string     `json:"spaced_raw_name"`
	Symbol        string     `json:"symbol,omitempty"`
	Divisibility  uint8      `json:"divisibility"`
	Premine       string     `json:"premine"`
	Terms         *termsView `json:"terms,omitempty"`
	Burned        string     `json:"burned"`
	MintCount     uint64     `json:"mint_count"`
	Timestamp     int64      `json:"timestamp"`
	IsCenotaph    bool       `json:"is_cenotaph"`
	RuneNumber    uint64     `json:"rune_number"`
}

func newRuneEntryView(e *store.RuneEntry) *runeEntryView {
	v := &runeEntryView{
		RuneID:        e.ID.String(),
		EtchingTxID:   e.EtchingTxID,
		Block:         e.Block,
		RawName:       e.RawName,
		SpacedRawName: e.SpacedRawName,
		Divisibility:  e.Divisibility,
		Premine:       bigString(e.Premine),
		Terms:         newTermsView(e.Terms),
		Burned:        bigString(e.Burned),
		MintCount:     e.MintCount,
		Timestamp:     e.Timestamp,
		IsCenotaph:    e.IsCenotaph,
		RuneNumber:    e.RuneNumber,
	}
	if e.Name != nil {
		v.Name = e.Name.String()
	}
	if e.Symbol != nil {
		v.Symbol = string(*e.Symbol)
	}
	return v
}

type runeTXOView struct {
	TxID        string `json:"tx_id"`
	Vout        uint32 `json:"vout"`
	BlockHeight uint64 `json:"block_height"`
	RuneID      string `json:"rune_id"`
	Amount      string `json:"amount"`
	Address     string `json:"address,omitempty"`
	IsUnspent   bool   `json:"is_unspent"`
	SpentTxID   string `json:"spent_tx_id,omitempty"`
	SpentHeight uint64 `json:"spent_height,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func newRuneTXOView(rt store.RuneTXO) runeTXOView {
	return runeTXOView{
		TxID:        rt.TxID,
		Vout:        rt.Vout,
		BlockHeight: rt.BlockHeight,
		RuneID:      rt.RuneID.String(),
		Amount:      bigString(rt.Amount),
		Address:     rt.Address,
		IsUnspent:   rt.IsUnspent,
		SpentTxID:   rt.SpentTxID,
		SpentHeight: rt.SpentHeight,
		Timestamp:   rt.Timestamp,
	}
}

func newRuneTXOViews(rows []store.RuneTXO) []runeTXOView {
	views := make([]runeTXOView, len(rows))
	for i, rt := range rows {
		views[i] = newRuneTXOView(rt)
	}
	return views
}

type transactionView struct {
	TxID            string        `json:"tx_id"`
	BlockHeight     uint64        `json:"block_height"`
	Timestamp       int64         `json:"timestamp"`
	IsRunestone     bool          `json:"is_runestone"`
	IsCenotaph      bool          `json:"is_cenotaph"`
	CenotaphMessage string        `json:"cenotaph_message,omitempty"`
	EtchedRuneID    string        `json:"etched_rune_id,omitempty"`
	Inputs          []runeTXOView `json:"inputs,omitempty"`
	Outputs         []runeTXOView `json:"outputs,omitempty"`
}

func newTransactionView(t *store.TransactionRecord) *transactionView {
	v := &transactionView{
		TxID:            t.TxID,
		BlockHeight:     t.BlockHeight,
		Timestamp:       t.Timestamp,
		IsRunestone:     t.IsRunestone,
		IsCenotaph:      t.IsCenotaph,
		CenotaphMessage: t.CenotaphMessage,
	}
	if t.EtchedRuneID != nil {
		v.EtchedRuneID = t.EtchedRuneID.String()
	}
	return v
}
