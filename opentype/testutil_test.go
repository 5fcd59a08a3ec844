package opentype

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeBuffer is an in-memory io.WriteSeeker for exercising the writer.
type writeBuffer struct {
	data []byte
	pos  int64
}

func (b *writeBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *writeBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d", pos)
	}
	b.pos = pos
	return pos, nil
}

func writeContainer(t *testing.T, ttc *TTCHeader) []byte {
	t.Helper()
	buf := &writeBuffer{}
	require.NoError(t, NewTTCWriter(buf).WriteTTC(ttc))
	return buf.data
}

func readContainer(t *testing.T, data []byte) *TTCHeader {
	t.Helper()
	ttc, err := NewTTCReader(bytes.NewReader(data)).ReadTTC()
	require.NoError(t, err)
	return ttc
}

// rawTable is one table of a hand-built font file.
type rawTable struct {
	tag  string
	data []byte
}

// buildRawSfnt serializes an sfnt file byte by byte, independent of the
// writer under test. Directory checksums are left zero; the reader must not
// care.
func buildRawSfnt(version Tag, tables []rawTable) []byte {
	sorted := make([]rawTable, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].tag < sorted[j].tag })

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(version))
	binary.Write(&buf, binary.BigEndian, uint16(len(sorted)))
	binary.Write(&buf, binary.BigEndian, uint16(0)) // searchRange, recomputed on write
	binary.Write(&buf, binary.BigEndian, uint16(0)) // entrySelector
	binary.Write(&buf, binary.BigEndian, uint16(0)) // rangeShift

	offset := 12 + 16*len(sorted)
	for _, table := range sorted {
		for offset%4 != 0 {
			offset++
		}
		buf.WriteString(table.tag)
		binary.Write(&buf, binary.BigEndian, uint32(0)) // checksum, unchecked
		binary.Write(&buf, binary.BigEndian, uint32(offset))
		binary.Write(&buf, binary.BigEndian, uint32(len(table.data)))
		offset += len(table.data)
	}
	for _, table := range sorted {
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
		buf.Write(table.data)
	}
	return buf.Bytes()
}

// makeHead builds a minimal 54-byte head table.
func makeHead(flags uint16, lowestRecPPEM uint16, indexToLocFormat int16) []byte {
	b := make([]byte, 54)
	binary.BigEndian.PutUint32(b[0:], 0x00010000)  // version
	binary.BigEndian.PutUint32(b[4:], 0x00010000)  // fontRevision
	binary.BigEndian.PutUint32(b[12:], 0x5F0F3CF5) // magicNumber
	binary.BigEndian.PutUint16(b[16:], flags)
	binary.BigEndian.PutUint16(b[18:], 2048) // unitsPerEm
	binary.BigEndian.PutUint16(b[46:], lowestRecPPEM)
	binary.BigEndian.PutUint16(b[50:], uint16(indexToLocFormat))
	return b
}

// makeMaxp builds a version 1.0 maxp table for numGlyphs glyphs with
// non-zero hinting limits.
func makeMaxp(numGlyphs uint16) []byte {
	b := make([]byte, 32)
	binary.BigEndian.PutUint32(b[0:], 0x00010000) // version
	binary.BigEndian.PutUint16(b[4:], numGlyphs)
	binary.BigEndian.PutUint16(b[14:], 2)   // maxZones
	binary.BigEndian.PutUint16(b[16:], 16)  // maxTwilightPoints
	binary.BigEndian.PutUint16(b[18:], 64)  // maxStorage
	binary.BigEndian.PutUint16(b[20:], 10)  // maxFunctionDefs
	binary.BigEndian.PutUint16(b[22:], 0)   // maxInstructionDefs
	binary.BigEndian.PutUint16(b[24:], 255) // maxStackElements
	binary.BigEndian.PutUint16(b[26:], 800) // maxSizeOfInstructions
	return b
}

// makeSimpleGlyph builds a one-contour, three-point simple glyph carrying
// the given instructions. The flags array uses REPEAT_FLAG, so the repeat
// count path of the flag decoding is exercised; all coordinates are
// full-width.
func makeSimpleGlyph(instructions []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, int16(1))  // numberOfContours
	binary.Write(&buf, binary.BigEndian, int16(0))  // xMin
	binary.Write(&buf, binary.BigEndian, int16(0))  // yMin
	binary.Write(&buf, binary.BigEndian, int16(10)) // xMax
	binary.Write(&buf, binary.BigEndian, int16(10)) // yMax
	binary.Write(&buf, binary.BigEndian, uint16(2)) // endPtsOfContours[0]
	binary.Write(&buf, binary.BigEndian, uint16(len(instructions)))
	buf.Write(instructions)
	// one flag byte with REPEAT_FLAG covering all three points,
	// full-width coordinates
	buf.Write([]byte{0x01 | flagRepeat, 0x02})
	buf.Write([]byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03}) // x deltas
	buf.Write([]byte{0x00, 0x04, 0x00, 0x05, 0x00, 0x06}) // y deltas
	return buf.Bytes()
}

// glyphTail returns the flags+coordinates byte range of a glyph built by
// makeSimpleGlyph.
func glyphTail(glyph []byte, instructionCount int) []byte {
	return glyph[12+2+instructionCount:]
}

// makeCompositeGlyph builds a two-component composite glyph; the last
// component carries WE_HAVE_INSTRUCTIONS followed by the given instructions.
func makeCompositeGlyph(instructions []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, int16(-1)) // numberOfContours
	binary.Write(&buf, binary.BigEndian, int16(0))  // xMin
	binary.Write(&buf, binary.BigEndian, int16(0))  // yMin
	binary.Write(&buf, binary.BigEndian, int16(20)) // xMax
	binary.Write(&buf, binary.BigEndian, int16(20)) // yMax
	// component 0: word arguments, more components follow
	binary.Write(&buf, binary.BigEndian, uint16(compArg1And2AreWords|compMoreComponents))
	binary.Write(&buf, binary.BigEndian, uint16(1)) // glyph index
	binary.Write(&buf, binary.BigEndian, int16(5))  // argument1
	binary.Write(&buf, binary.BigEndian, int16(6))  // argument2
	// component 1: short arguments, a scale, trailing instructions
	binary.Write(&buf, binary.BigEndian, uint16(compWeHaveAScale|compWeHaveInstructions))
	binary.Write(&buf, binary.BigEndian, uint16(2))      // glyph index
	buf.Write([]byte{0x01, 0x02})                        // argument1, argument2
	binary.Write(&buf, binary.BigEndian, uint16(0x4000)) // scale = 1.0 in F2Dot14
	binary.Write(&buf, binary.BigEndian, uint16(len(instructions)))
	buf.Write(instructions)
	return buf.Bytes()
}

// buildGlyfFont assembles a single-font model around the given glyphs, with
// a short-format loca and hinting support tables present.
func buildGlyfFont(glyphs [][]byte) *TTCHeader {
	var glyf bytes.Buffer
	offsets := make([]uint32, 0, len(glyphs)+1)
	for _, g := range glyphs {
		if glyf.Len()%2 == 1 {
			glyf.WriteByte(0)
		}
		offsets = append(offsets, uint32(glyf.Len()))
		glyf.Write(g)
	}
	if glyf.Len()%2 == 1 {
		glyf.WriteByte(0)
	}
	offsets = append(offsets, uint32(glyf.Len()))
	loca := make([]byte, 2*len(offsets))
	for i, offset := range offsets {
		binary.BigEndian.PutUint16(loca[2*i:], uint16(offset/2))
	}

	sfnt := NewSfntHeader(SfntVersionTrueTypeOpenType)
	sfnt.Put(tagHead, &TableRecord{RawData: makeHead(0x0003, 9, 0)})
	sfnt.Put(tagMaxp, &TableRecord{RawData: makeMaxp(uint16(len(glyphs)))})
	sfnt.Put(tagLoca, &TableRecord{RawData: loca})
	sfnt.Put(tagGlyf, &TableRecord{RawData: glyf.Bytes()})
	sfnt.Put(String2Tag("cvt "), &TableRecord{RawData: []byte{0x00, 0x10, 0x00, 0x20}})
	sfnt.Put(String2Tag("fpgm"), &TableRecord{RawData: []byte{0xB0, 0x00}})
	sfnt.Put(tagPrep, &TableRecord{RawData: []byte{0xB0, 0x01}})
	return &TTCHeader{
		TTCTag:           SfntVersionTTCHeader,
		MajorVersion:     1,
		MinorVersion:     0,
		TableDirectories: []*SfntHeader{sfnt},
		DsigTag:          TagZero,
		DsigData:         []byte{},
	}
}

// applyPipeline runs the full mutation pipeline in its contract order.
func applyPipeline(ttc *TTCHeader) {
	RemoveDSIG(ttc)
	RemoveBitmap(ttc)
	RemoveHinting(ttc)
	RegenerateGasp(ttc)
	PatchHead(ttc)
}
