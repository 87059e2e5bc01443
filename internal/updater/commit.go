package updater

import (
	"bytes"
	"context"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/runeindex/runeindexd/internal/btcrpc"
	"github.com/runeindex/runeindexd/internal/store"
)

// CommitInterval is the number of confirmations a taproot output must
// have before its tapscript can satisfy the rune-name commitment check
// (spec §4.7).
const CommitInterval = 6

// commitmentBytes renders a rune integer as the little-endian, minimal
// (no trailing zero bytes) byte string an etching's tapscript must push
// to prove advance knowledge of the name.
func commitmentBytes(runeInt *big.Int) []byte {
	be := runeInt.Bytes() // big-endian, no leading zero bytes
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	for len(le) > 0 && le[len(le)-1] == 0 {
		le = le[:len(le)-1]
	}
	return le
}

// isTaprootAddress reports whether an address string is a v1 witness
// (taproot) address, inferred from its bech32m human-readable prefix.
// The store doesn't retain full pkScripts, only derived addresses, so
// this is how the commit check recognises taproot-capable prior outputs.
func isTaprootAddress(address string) bool {
	a := strings.ToLower(address)
	return strings.HasPrefix(a, "bc1p") || strings.HasPrefix(a, "tb1p") || strings.HasPrefix(a, "bcrt1p")
}

// txoLookup fetches a previously-indexed TXO row by outpoint.
type txoLookup func(txID string, vout uint32) (*store.TXO, error)

// commitSource resolves whether a not-yet-indexed prior output is
// taproot-capable and how many confirmations it has, by asking the node
// directly. This is the one RPC round trip spec §5 names as a
// permitted suspension point inside the per-transaction state
// transition.
type commitSource struct {
	ctx context.Context
	rpc *btcrpc.Client
}

func (c commitSource) confirmedTaproot(prevTxID string, vout uint32) (bool, uint64, bool) {
	if c.rpc == nil {
		return false, 0, false
	}
	info, err := c.rpc.GetRawTransactionInfo(c.ctx, prevTxID)
	if err != nil || info.Confirmations < CommitInterval {
		return false, 0, false
	}
	prevTx, err := c.rpc.GetRawTransaction(c.ctx, prevTxID)
	if err != nil || int(vout) >= len(prevTx.TxOut) {
		return false, 0, false
	}
	class := txscript.GetScriptClass(prevTx.TxOut[vout].PkScript)
	return class == txscript.WitnessV1TaprootTy, uint64(info.Confirmations), true
}

// hasCommitment reports whether tx contains, among its taproot
// script-path inputs, a committed (sufficiently confirmed) prior output
// whose revealed tapscript pushes the minimal little-endian encoding of
// the rune integer. This is the anti-front-running check gating an
// explicit etched name (spec §4.7).
func hasCommitment(tx *wire.MsgTx, runeInt *big.Int, currentHeight uint64, lookup txoLookup, rpcFallback commitSource) (bool, error) {
	commitment := commitmentBytes(runeInt)

	for _, in := range tx.TxIn {
		witness := in.Witness
		if len(witness) < 2 {
			continue // not a script-path spend
		}

		prevTxID := in.PreviousOutPoint.Hash.String()
		taproot := false
		if txo, err := lookup(prevTxID, in.PreviousOutPoint.Index); err == nil {
			taproot = isTaprootAddress(txo.Address) &&
				currentHeight >= txo.BlockHeight &&
				currentHeight-txo.BlockHeight+1 >= CommitInterval
		} else {
			isTR, _, ok := rpcFallback.confirmedTaproot(prevTxID, in.PreviousOutPoint.Index)
			taproot = ok && isTR
		}
		if !taproot {
			continue
		}

		tapscript, ok := tapscriptFromWitness(witness)
		if !ok {
			continue
		}
		tok := txscript.MakeScriptTokenizer(0, tapscript)
		for tok.Next() {
			if bytes.Equal(tok.Data(), commitment) {
				return true, nil
			}
		}
	}
	return false, nil
}

// annexMarker is the BIP341 prefix byte that marks a witness stack's last
// element as an annex rather than the control block.
const annexMarker = 0x50

// tapscriptFromWitness extracts the revealed tapscript from a taproot
// script-path witness stack, skipping the optional annex the same way
// the control block is skipped: [..., tapscript, control_block, annex?].
func tapscriptFromWitness(witness wire.TxWitness) ([]byte, bool) {
	n := len(witness)
	if n >= 3 && len(witness[n-1]) > 0 && witness[n-1][0] == annexMarker {
		n--
	}
	if n < 2 {
		return nil, false
	}
	return witness[n-2], true
}
