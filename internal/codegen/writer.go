package codegen

import (
	"encoding/binary"
	"math"
)

// Kernel binary layout, little endian, 32-bit words:
//
//	word 0   magic
//	word 1   format version
//	word 2   device generation
//	word 3   flags
//	word 4   computation count
//	then one computation section per computation.
//
// Each record is (wordCount<<16 | opcode) followed by its operand words,
// so a reader can skip records it does not understand.
const (
	// Magic identifies a kernel binary ("CNDR" little endian).
	Magic = 0x52444e43

	// FormatVersion is the current binary format version.
	FormatVersion = 1
)

// Header flag bits.
const (
	// FlagRelocatable marks a binary assembled for later linking.
	FlagRelocatable = 1 << 0
)

// sectionOpcode tags the record that opens a computation section.
const sectionOpcode = 0xffff

// floatBits encodes a literal value as an f32 word.
func floatBits(v float64) uint32 {
	return math.Float32bits(float32(v))
}

// record is one encoded instruction: an opcode and its operand words.
type record struct {
	opcode uint16
	words  []uint32
}

// encode prepends the word-count/opcode word.
func (r record) encode() []uint32 {
	out := make([]uint32, 0, len(r.words)+1)
	out = append(out, uint32(len(r.words)+1)<<16|uint32(r.opcode))
	return append(out, r.words...)
}

// recordBuilder accumulates the operand words of one record.
type recordBuilder struct {
	words []uint32
}

func (b *recordBuilder) addWord(w uint32) {
	b.words = append(b.words, w)
}

func (b *recordBuilder) addWords(ws ...uint32) {
	b.words = append(b.words, ws...)
}

// addString appends a null-terminated string padded to a word boundary.
func (b *recordBuilder) addString(s string) {
	bytes := append([]byte(s), 0)
	for len(bytes)%4 != 0 {
		bytes = append(bytes, 0)
	}
	for i := 0; i < len(bytes); i += 4 {
		b.addWord(uint32(bytes[i]) |
			uint32(bytes[i+1])<<8 |
			uint32(bytes[i+2])<<16 |
			uint32(bytes[i+3])<<24)
	}
}

func (b *recordBuilder) build(opcode uint16) record {
	return record{opcode: opcode, words: b.words}
}

// binaryWriter assembles the header and sections into the final byte
// stream.
type binaryWriter struct {
	generation int
	flags      uint32
	sections   [][]uint32
}

func (w *binaryWriter) addSection(words []uint32) {
	w.sections = append(w.sections, words)
}

func (w *binaryWriter) bytes() []byte {
	total := 5
	for _, s := range w.sections {
		total += len(s)
	}
	words := make([]uint32, 0, total)
	words = append(words, Magic, FormatVersion, uint32(w.generation), w.flags, uint32(len(w.sections)))
	for _, s := range w.sections {
		words = append(words, s...)
	}

	out := make([]byte, 4*len(words))
	for i, word := range words {
		binary.LittleEndian.PutUint32(out[4*i:], word)
	}
	return out
}
