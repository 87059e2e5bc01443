package runestone

// Tag identifies a field within the Runestone integer stream. Tag parity
// carries meaning: even tags are mandatory-recognised (an unknown even tag
// makes the message a Cenotaph); odd tags are forward-compatible and are
// silently ignored when unrecognised (spec §4.3, §9 "tag stream as sum
// type").
type Tag uint64

const (
	TagBody         Tag = 0
	TagDivisibility Tag = 1
	TagFlags        Tag = 2
	TagSpacers      Tag = 3
	TagRune         Tag = 4
	TagSymbol       Tag = 5
	TagPremine      Tag = 6
	TagCap          Tag = 8
	TagAmount       Tag = 10
	TagHeightStart  Tag = 12
	TagHeightEnd    Tag = 14
	TagOffsetStart  Tag = 16
	TagOffsetEnd    Tag = 18
	TagMint         Tag = 20
	TagPointer      Tag = 22
)

// recognisedTags is every tag the codec understands. A tag not in this set
// that carries an even value is an unrecognised_even_tag flaw; odd values
// are quietly dropped.
var recognisedTags = map[Tag]bool{
	TagDivisibility: true,
	TagFlags:        true,
	TagSpacers:      true,
	TagRune:         true,
	TagSymbol:       true,
	TagPremine:      true,
	TagCap:          true,
	TagAmount:       true,
	TagHeightStart:  true,
	TagHeightEnd:    true,
	TagOffsetStart:  true,
	TagOffsetEnd:    true,
	TagMint:         true,
	TagPointer:      true,
}

// Flags bitfield values (§4.3 step 4).
const (
	FlagEtching uint64 = 1 << 0
	FlagTerms   uint64 = 1 << 1
)

// MaxDivisibility is the highest legal Etching.Divisibility value.
const MaxDivisibility = 38

// MaxSpacers is the highest legal Etching.Spacers bitmask value.
const MaxSpacers = 0x0007FFFF

// MaxScriptElementSize bounds a single data push in a Bitcoin script; the
// Encipher chunks long payloads to respect it.
const MaxScriptElementSize = 520
