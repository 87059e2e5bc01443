package runestone

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// RuneId identifies an etching by the block and transaction index it
// occurred at. The zero value (0,0) is the sentinel for "the rune just
// etched in this transaction" inside an edict (spec §9).
type RuneId struct {
	Block uint64
	Tx    uint32
}

func (id RuneId) IsSentinel() bool {
	return id.Block == 0 && id.Tx == 0
}

func (id RuneId) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

// ParseRuneId parses the "block:tx" form produced by String, as accepted
// in the {rune_id} path parameter of the read API.
func ParseRuneId(s string) (RuneId, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return RuneId{}, fmt.Errorf("runestone: invalid rune id %q: want BLOCK:TX", s)
	}
	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return RuneId{}, fmt.Errorf("runestone: invalid rune id %q: %w", s, err)
	}
	tx, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return RuneId{}, fmt.Errorf("runestone: invalid rune id %q: %w", s, err)
	}
	return RuneId{Block: block, Tx: uint32(tx)}, nil
}

// Less gives RuneId its total order: lexicographic by (block, tx).
func (id RuneId) Less(other RuneId) bool {
	if id.Block != other.Block {
		return id.Block < other.Block
	}
	return id.Tx < other.Tx
}

// Edict instructs a transfer of amount units of a rune to an output.
// Output == the transaction's output count means "distribute to every
// non-OP_RETURN output" (spec §3, §4.5).
type Edict struct {
	ID     RuneId
	Amount *big.Int
	Output uint32
}

// Terms bounds an etching's deferred mint schedule.
type Terms struct {
	Amount      *big.Int
	Cap         *big.Int
	HeightStart *uint64
	HeightEnd   *uint64
	OffsetStart *uint64
	OffsetEnd   *uint64
}

// Etching describes the creation of a new rune.
type Etching struct {
	Rune         *big.Int // explicit name; nil means "assign a reserved rune"
	Divisibility uint8
	Premine      *big.Int
	Spacers      uint32
	Symbol       *rune
	Terms        *Terms
}

// Runestone is a well-formed Runes message.
type Runestone struct {
	Edicts  []Edict
	Etching *Etching
	Mint    *RuneId
	Pointer *uint32
}

// Flaw is one defect that demotes a message to a Cenotaph.
type Flaw string

const (
	FlawOpcode              Flaw = "opcode"
	FlawVarint              Flaw = "varint"
	FlawEdictOutput         Flaw = "edict_output"
	FlawEdictRuneID         Flaw = "edict_rune_id"
	FlawInvalidScript       Flaw = "invalid_script"
	FlawSupplyOverflow      Flaw = "supply_overflow"
	FlawTruncatedField      Flaw = "truncated_field"
	FlawUnrecognisedEvenTag Flaw = "unrecognised_even_tag"
	FlawTrailingIntegers    Flaw = "trailing_integers"
)

// Cenotaph is a malformed Runes message: it may still reserve a rune name
// via a surviving partial Etching, but it never mints or transfers — every
// balance it touches is burned (spec §4.3, §4.5).
type Cenotaph struct {
	Etching *Etching
	Mint    *RuneId
	Flaws   []Flaw
}

// Message renders the flaw set as the stable, comma-joined string stored
// as Transaction.cenotaph_message.
func (c *Cenotaph) Message() string {
	strs := make([]string, len(c.Flaws))
	for i, f := range c.Flaws {
		strs[i] = string(f)
	}
	return strings.Join(strs, ",")
}

// Artifact is the result of deciphering a transaction: exactly one of
// Runestone or Cenotaph is set, or both are nil when the transaction
// carries no Runes message at all.
type Artifact struct {
	Runestone *Runestone
	Cenotaph  *Cenotaph
}

func (a *Artifact) IsCenotaph() bool {
	return a != nil && a.Cenotaph != nil
}
