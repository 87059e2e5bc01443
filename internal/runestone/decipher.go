package runestone

import (
	"math/big"
	"unicode/utf8"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/runeindex/runeindexd/pkg/varint"
)

// Decipher extracts the Runes artifact from a transaction (spec §4.3). A
// nil, nil result means the transaction carries no Runes message at all;
// a non-nil Artifact always has exactly one of Runestone or Cenotaph set.
func Decipher(tx *wire.MsgTx) (*Artifact, error) {
	payload, found, invalid := findPayload(tx)
	if !found {
		return nil, nil
	}
	if invalid {
		return &Artifact{Cenotaph: &Cenotaph{Flaws: []Flaw{FlawOpcode}}}, nil
	}

	integers, err := varint.DecodeAll(payload)
	if err != nil {
		return &Artifact{Cenotaph: &Cenotaph{Flaws: []Flaw{FlawVarint}}}, nil
	}

	fields, edicts, flaws := parseTagStream(integers, tx)

	etching, etchFlaws := extractEtching(fields)
	flaws = append(flaws, etchFlaws...)

	mint := extractMint(fields)
	pointer := extractPointer(fields, tx)

	flaws = append(flaws, unrecognisedEvenTagFlaws(fields)...)

	if len(flaws) > 0 {
		return &Artifact{Cenotaph: &Cenotaph{Etching: etching, Mint: mint, Flaws: flaws}}, nil
	}
	return &Artifact{Runestone: &Runestone{
		Edicts:  edicts,
		Etching: etching,
		Mint:    mint,
		Pointer: pointer,
	}}, nil
}

// findPayload scans tx's outputs in order for the first one shaped
// OP_RETURN, OP_13, data..., data.... found reports whether such an output
// exists; invalid reports whether a non-data-push instruction followed the
// magic number (spec §4.3 step 1).
func findPayload(tx *wire.MsgTx) (payload []byte, found bool, invalid bool) {
	for _, out := range tx.TxOut {
		tok := txscript.MakeScriptTokenizer(0, out.PkScript)
		if !tok.Next() || tok.Opcode() != txscript.OP_RETURN {
			continue
		}
		if !tok.Next() || tok.Opcode() != txscript.OP_13 {
			continue
		}

		var buf []byte
		for tok.Next() {
			if !isDataPush(tok.Opcode()) {
				return nil, true, true
			}
			buf = append(buf, tok.Data()...)
		}
		if tok.Err() != nil {
			return nil, true, true
		}
		return buf, true, false
	}
	return nil, false, false
}

func isDataPush(opcode byte) bool {
	return opcode <= txscript.OP_PUSHDATA4
}

// parseTagStream walks the decoded integer sequence as a tag/value stream,
// switching into edict mode at Body (spec §4.3 steps 3-4). It returns the
// map of recognised-or-not field values by tag (for later extraction and
// unrecognised-even-tag detection), the parsed edicts, and any flaws
// accumulated along the way.
func parseTagStream(integers []*big.Int, tx *wire.MsgTx) (map[Tag][]*big.Int, []Edict, []Flaw) {
	fields := make(map[Tag][]*big.Int)
	var edicts []Edict
	var flaws []Flaw

	i := 0
	for i < len(integers) {
		tagInt := integers[i]
		i++
		if !tagInt.IsUint64() {
			// A tag value that doesn't fit uint64 can't name any known
			// tag; parsing stops here and the message is flagged
			// truncated_field.
			flaws = append(flaws, FlawTruncatedField)
			break
		}
		tag := Tag(tagInt.Uint64())

		if tag == TagBody {
			edicts, flaws = parseEdicts(integers[i:], tx, flaws)
			i = len(integers)
			break
		}

		if i >= len(integers) {
			flaws = append(flaws, FlawTruncatedField)
			break
		}
		value := integers[i]
		i++
		fields[tag] = append(fields[tag], value)
	}

	return fields, edicts, flaws
}

func parseEdicts(rest []*big.Int, tx *wire.MsgTx, flaws []Flaw) ([]Edict, []Flaw) {
	var edicts []Edict
	id := RuneId{}
	i := 0
	for i < len(rest) {
		if len(rest)-i < 4 {
			flaws = append(flaws, FlawTrailingIntegers)
			break
		}
		blockDelta, txDelta, amount, output := rest[i], rest[i+1], rest[i+2], rest[i+3]
		i += 4

		next, ok := nextRuneID(id, blockDelta, txDelta)
		if !ok {
			flaws = append(flaws, FlawEdictRuneID)
			continue
		}
		id = next

		if !output.IsUint64() || output.Uint64() > uint64(len(tx.TxOut)) {
			flaws = append(flaws, FlawEdictOutput)
			continue
		}

		edicts = append(edicts, Edict{ID: id, Amount: amount, Output: uint32(output.Uint64())})
	}
	return edicts, flaws
}

// nextRuneID applies one delta-encoded step: a zero block delta means the
// tx component accumulates; any other block delta resets the tx component
// to an absolute value (spec §9 "cycles and self-reference in edicts";
// concrete rule matches the reference Runes client's RuneId delta scheme).
func nextRuneID(prev RuneId, blockDelta, txDelta *big.Int) (RuneId, bool) {
	if !blockDelta.IsUint64() || !txDelta.IsUint64() {
		return RuneId{}, false
	}
	if blockDelta.Sign() == 0 {
		sum := new(big.Int).Add(big.NewInt(0).SetUint64(prev.Tx), txDelta)
		if !sum.IsUint64() || sum.Uint64() > uint64(^uint32(0)) {
			return RuneId{}, false
		}
		return RuneId{Block: prev.Block, Tx: uint32(sum.Uint64())}, true
	}
	block := new(big.Int).Add(big.NewInt(0).SetUint64(prev.Block), blockDelta)
	if !block.IsUint64() {
		return RuneId{}, false
	}
	if txDelta.Uint64() > uint64(^uint32(0)) {
		return RuneId{}, false
	}
	return RuneId{Block: block.Uint64(), Tx: uint32(txDelta.Uint64())}, true
}

func unrecognisedEvenTagFlaws(fields map[Tag][]*big.Int) []Flaw {
	var flaws []Flaw
	for tag := range fields {
		if recognisedTags[tag] {
			continue
		}
		if tag%2 == 0 {
			flaws = append(flaws, FlawUnrecognisedEvenTag)
		}
	}
	return flaws
}

func takeOne(fields map[Tag][]*big.Int, tag Tag) (*big.Int, bool) {
	vals := fields[tag]
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

func takeTwo(fields map[Tag][]*big.Int, tag Tag) (*big.Int, *big.Int, bool) {
	vals := fields[tag]
	if len(vals) < 2 {
		return nil, nil, false
	}
	return vals[0], vals[1], true
}

func extractEtching(fields map[Tag][]*big.Int) (*Etching, []Flaw) {
	flagsVal, _ := takeOne(fields, TagFlags)
	var flags uint64
	if flagsVal != nil && flagsVal.IsUint64() {
		flags = flagsVal.Uint64()
	}

	var flagFlaws []Flaw
	if flags&^(FlagEtching|FlagTerms) != 0 {
		// A Flags value with bits set beyond Etching/Terms asks for a
		// protocol feature this codec doesn't recognise.
		flagFlaws = append(flagFlaws, FlawUnrecognisedEvenTag)
	}

	if flags&FlagEtching == 0 {
		return nil, flagFlaws
	}

	e := &Etching{Premine: big.NewInt(0)}

	if divVal, ok := takeOne(fields, TagDivisibility); ok && divVal.IsUint64() && divVal.Uint64() <= MaxDivisibility {
		e.Divisibility = uint8(divVal.Uint64())
	}
	if runeVal, ok := takeOne(fields, TagRune); ok {
		e.Rune = runeVal
	}
	if premineVal, ok := takeOne(fields, TagPremine); ok {
		e.Premine = premineVal
	}
	if spacersVal, ok := takeOne(fields, TagSpacers); ok && spacersVal.IsUint64() && spacersVal.Uint64() <= MaxSpacers {
		e.Spacers = uint32(spacersVal.Uint64())
	}
	if symVal, ok := takeOne(fields, TagSymbol); ok && symVal.IsUint64() {
		if r := rune(symVal.Uint64()); symVal.Uint64() <= utf8.MaxRune && utf8.ValidRune(r) {
			e.Symbol = &r
		}
	}

	var flaws []Flaw
	if flags&FlagTerms != 0 {
		t := &Terms{}
		if amt, ok := takeOne(fields, TagAmount); ok {
			t.Amount = amt
		}
		if capVal, ok := takeOne(fields, TagCap); ok {
			t.Cap = capVal
		}
		t.HeightStart = takeHeight(fields, TagHeightStart)
		t.HeightEnd = takeHeight(fields, TagHeightEnd)
		t.OffsetStart = takeHeight(fields, TagOffsetStart)
		t.OffsetEnd = takeHeight(fields, TagOffsetEnd)
		e.Terms = t

		if t.Amount != nil && t.Cap != nil {
			product := new(big.Int).Mul(t.Amount, t.Cap)
			total := new(big.Int).Add(product, e.Premine)
			if total.Cmp(varint.MaxValue) > 0 {
				flaws = append(flaws, FlawSupplyOverflow)
			}
		}
	}

	return e, flaws
}

func takeHeight(fields map[Tag][]*big.Int, tag Tag) *uint64 {
	v, ok := takeOne(fields, tag)
	if !ok || !v.IsUint64() {
		return nil
	}
	h := v.Uint64()
	return &h
}

func extractMint(fields map[Tag][]*big.Int) *RuneId {
	blockVal, txVal, ok := takeTwo(fields, TagMint)
	if !ok || !blockVal.IsUint64() || !txVal.IsUint64() {
		return nil
	}
	if txVal.Uint64() > uint64(^uint32(0)) {
		return nil
	}
	id := RuneId{Block: blockVal.Uint64(), Tx: uint32(txVal.Uint64())}
	return &id
}

func extractPointer(fields map[Tag][]*big.Int, tx *wire.MsgTx) *uint32 {
	v, ok := takeOne(fields, TagPointer)
	if !ok || !v.IsUint64() {
		return nil
	}
	if v.Uint64() >= uint64(len(tx.TxOut)) {
		return nil
	}
	p := uint32(v.Uint64())
	return &p
}
