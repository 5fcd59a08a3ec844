package opentype

import (
	"encoding/binary"
	"fmt"
)

// Simple glyph flags.
const (
	flagRepeat        = 0x08
	flagXShortVector  = 0x02
	flagXIsSameOrSign = 0x10
	flagYShortVector  = 0x04
	flagYIsSameOrSign = 0x20
)

// Composite glyph component flags.
const (
	compArg1And2AreWords   = 0x0001
	compWeHaveAScale       = 0x0008
	compMoreComponents     = 0x0020
	compWeHaveAnXAndYScale = 0x0040
	compWeHaveATwoByTwo    = 0x0080
	compWeHaveInstructions = 0x0100
)

// shortLocaLimit is the smallest glyf stream length whose end offset no
// longer fits the short format's uint16 half-offsets; shorter streams use the
// short format.
const shortLocaLimit = 0x20000

// dehintGlyf excises the instruction blob from every glyph of a font and
// rebuilds loca to match. The head table supplies indexToLocFormat and
// glyphDataFormat; unknown formats leave the tables unmodified (a warning,
// not an error), as does a glyf stream that no longer fits 2 GiB after the
// rewrite. Individual unparseable glyphs are preserved byte for byte. If no
// glyph changed (no instructions to strip and no non-empty zero-contour glyph
// to collapse), glyf and loca are left untouched.
func dehintGlyf(sfnt *SfntHeader) {
	head, hasHead := sfnt.Get(tagHead)
	locaRec, hasLoca := sfnt.Get(tagLoca)
	glyfRec, hasGlyf := sfnt.Get(tagGlyf)
	if !hasHead || !hasLoca || !hasGlyf || len(head.RawData) < 54 {
		return
	}
	indexToLocFormat := int16(binary.BigEndian.Uint16(head.RawData[50:52]))
	glyphDataFormat := int16(binary.BigEndian.Uint16(head.RawData[52:54]))
	if glyphDataFormat != 0 {
		tracer().Infof("[ WARN ] unknown glyphDataFormat %d, glyf left unmodified", glyphDataFormat)
		return
	}
	offsets, ok := decodeLoca(indexToLocFormat, locaRec.RawData)
	if !ok || len(offsets) < 2 {
		return
	}

	glyfData := glyfRec.RawData
	glyphs := make([][]byte, 0, len(offsets)-1)
	modified := false
	for i := 0; i+1 < len(offsets); i++ {
		original := sliceGlyph(glyfData, i, offsets[i], offsets[i+1])
		out, changed, err := dehintGlyph(original)
		if err != nil {
			tracer().Errorf("[ FAIL ] glyph %d: %v, original bytes kept", i, err)
			out = original
			changed = false
		}
		glyphs = append(glyphs, out)
		modified = modified || changed
	}
	if !modified {
		return
	}

	newGlyf, locaOffsets := rebuildGlyfStream(glyphs)
	if int64(len(newGlyf)) > 0x7FFFFFFF {
		tracer().Infof("[ WARN ] rebuilt glyf stream (%d bytes) exceeds 2 GiB, glyf left unmodified",
			len(newGlyf))
		return
	}
	newFormat := int16(1)
	if len(newGlyf) < shortLocaLimit {
		newFormat = 0
	}
	sfnt.Put(tagGlyf, &TableRecord{RawData: newGlyf})
	sfnt.Put(tagLoca, &TableRecord{RawData: encodeLoca(newFormat, locaOffsets)})

	patchedHead := make([]byte, len(head.RawData))
	copy(patchedHead, head.RawData)
	binary.BigEndian.PutUint16(patchedHead[50:52], uint16(newFormat))
	sfnt.Put(tagHead, &TableRecord{RawData: patchedHead})
}

// decodeLoca expands a loca table into absolute glyf offsets. Short offsets
// are stored halved; a trailing partial entry is dropped with a warning.
func decodeLoca(indexToLocFormat int16, data []byte) ([]uint32, bool) {
	switch indexToLocFormat {
	case 0:
		if len(data)%2 != 0 {
			tracer().Infof("[ WARN ] loca length %d is not a multiple of 2", len(data))
		}
		offsets := make([]uint32, len(data)/2)
		for i := range offsets {
			offsets[i] = 2 * uint32(binary.BigEndian.Uint16(data[2*i:]))
		}
		return offsets, true
	case 1:
		if len(data)%4 != 0 {
			tracer().Infof("[ WARN ] loca length %d is not a multiple of 4", len(data))
		}
		offsets := make([]uint32, len(data)/4)
		for i := range offsets {
			offsets[i] = binary.BigEndian.Uint32(data[4*i:])
		}
		return offsets, true
	default:
		tracer().Infof("[ WARN ] unknown indexToLocFormat %d, glyf left unmodified", indexToLocFormat)
		return nil, false
	}
}

// encodeLoca serializes glyf offsets in the requested format.
func encodeLoca(indexToLocFormat int16, offsets []uint32) []byte {
	if indexToLocFormat == 0 {
		data := make([]byte, 2*len(offsets))
		for i, offset := range offsets {
			binary.BigEndian.PutUint16(data[2*i:], uint16(offset/2))
		}
		return data
	}
	data := make([]byte, 4*len(offsets))
	for i, offset := range offsets {
		binary.BigEndian.PutUint32(data[4*i:], offset)
	}
	return data
}

// sliceGlyph cuts one glyph out of the glyf stream, clamping a loca range
// that points outside the stream to whatever is addressable.
func sliceGlyph(glyfData []byte, index int, start, end uint32) []byte {
	length := uint32(len(glyfData))
	if start > end || end > length {
		tracer().Errorf("[ FAIL ] glyph %d: loca range [%d, %d) exceeds glyf length %d",
			index, start, end, length)
		if start > length {
			start = length
		}
		if end > length || end < start {
			end = length
		}
		if start > end {
			end = start
		}
	}
	return glyfData[start:end]
}

// rebuildGlyfStream concatenates rewritten glyphs, keeping every glyph start
// (and the final end offset) on a 2-byte boundary with single zero-byte pads,
// and returns the stream plus the len(glyphs)+1 loca offsets.
func rebuildGlyfStream(glyphs [][]byte) ([]byte, []uint32) {
	total := 0
	for _, g := range glyphs {
		if total%2 == 1 {
			total++
		}
		total += len(g)
	}
	if total%2 == 1 {
		total++
	}

	newGlyf := make([]byte, 0, total)
	offsets := make([]uint32, 0, len(glyphs)+1)
	for _, g := range glyphs {
		if len(newGlyf)%2 == 1 {
			newGlyf = append(newGlyf, 0)
		}
		offsets = append(offsets, uint32(len(newGlyf)))
		newGlyf = append(newGlyf, g...)
	}
	if len(newGlyf)%2 == 1 {
		newGlyf = append(newGlyf, 0)
	}
	offsets = append(offsets, uint32(len(newGlyf)))
	return newGlyf, offsets
}

// dehintGlyph rewrites a single glyph without its instructions. A simple
// glyph keeps its header, endpoint array, flags and coordinates, with
// instructionLength forced to zero; a composite glyph is truncated before
// the trailing instruction block with WE_HAVE_INSTRUCTIONS cleared on the
// last component. The returned slice aliases the input when nothing changed
// (modified == false); a glyph with no contours collapses to the empty glyph.
func dehintGlyph(data []byte) (out []byte, modified bool, err error) {
	if len(data) == 0 {
		return data, false, nil
	}
	if len(data) < 2 {
		return nil, false, fmt.Errorf("%d bytes is too short for a glyph header", len(data))
	}
	numberOfContours := int16(binary.BigEndian.Uint16(data))
	if numberOfContours < 0 {
		return dehintCompositeGlyph(data)
	}
	if numberOfContours == 0 {
		return nil, true, nil
	}
	return dehintSimpleGlyph(data, int(numberOfContours))
}

func dehintSimpleGlyph(data []byte, numberOfContours int) (out []byte, modified bool, err error) {
	// numberOfContours, xMin, yMin, xMax, yMax, then the endpoint array.
	headerLen := 10 + 2*numberOfContours
	if len(data) < headerLen+2 {
		return nil, false, fmt.Errorf("truncated before instructionLength (%d bytes, %d contours)",
			len(data), numberOfContours)
	}
	numPoints := int(binary.BigEndian.Uint16(data[headerLen-2:])) + 1
	instructionLength := int(binary.BigEndian.Uint16(data[headerLen:]))
	flagsStart := headerLen + 2 + instructionLength
	if flagsStart > len(data) {
		return nil, false, fmt.Errorf("instructionLength %d exceeds glyph length %d",
			instructionLength, len(data))
	}

	// The flags array is variable length; its walk also determines how many
	// coordinate bytes follow it.
	pos := flagsStart
	points := 0
	xLen, yLen := 0, 0
	for points < numPoints {
		if pos >= len(data) {
			return nil, false, fmt.Errorf("truncated flags array at byte %d", pos)
		}
		flag := data[pos]
		pos++
		repeat := 1
		if flag&flagRepeat != 0 {
			if pos >= len(data) {
				return nil, false, fmt.Errorf("truncated repeat count at byte %d", pos)
			}
			repeat += int(data[pos])
			pos++
		}
		if points+repeat > numPoints {
			repeat = numPoints - points
		}
		points += repeat
		switch flag & (flagXShortVector | flagXIsSameOrSign) {
		case 0:
			xLen += 2 * repeat
		case flagXShortVector, flagXShortVector | flagXIsSameOrSign:
			xLen += repeat
		}
		switch flag & (flagYShortVector | flagYIsSameOrSign) {
		case 0:
			yLen += 2 * repeat
		case flagYShortVector, flagYShortVector | flagYIsSameOrSign:
			yLen += repeat
		}
	}
	tailEnd := pos + xLen + yLen
	if tailEnd > len(data) {
		return nil, false, fmt.Errorf("truncated coordinate arrays: need %d bytes, have %d",
			tailEnd, len(data))
	}
	if instructionLength == 0 {
		return data, false, nil
	}
	out = make([]byte, 0, headerLen+2+(tailEnd-flagsStart))
	out = append(out, data[:headerLen]...)
	out = append(out, 0, 0)
	out = append(out, data[flagsStart:tailEnd]...)
	return out, true, nil
}

func dehintCompositeGlyph(data []byte) (out []byte, modified bool, err error) {
	if len(data) < 10 {
		return nil, false, fmt.Errorf("%d bytes is too short for a composite glyph header", len(data))
	}
	pos := 10
	lastFlagPos := pos
	for {
		if pos+4 > len(data) {
			return nil, false, fmt.Errorf("truncated component at byte %d", pos)
		}
		flags := binary.BigEndian.Uint16(data[pos:])
		lastFlagPos = pos
		componentLen := 4 + 2 // flag word, glyph index, short arguments
		if flags&compArg1And2AreWords != 0 {
			componentLen += 2
		}
		if flags&compWeHaveAScale != 0 {
			componentLen += 2
		}
		if flags&compWeHaveAnXAndYScale != 0 {
			componentLen += 4
		}
		if flags&compWeHaveATwoByTwo != 0 {
			componentLen += 8
		}
		if pos+componentLen > len(data) {
			return nil, false, fmt.Errorf("truncated component at byte %d", pos)
		}
		pos += componentLen
		if flags&compMoreComponents == 0 {
			break
		}
	}
	lastFlags := binary.BigEndian.Uint16(data[lastFlagPos:])
	if lastFlags&compWeHaveInstructions == 0 {
		return data, false, nil
	}
	out = make([]byte, pos)
	copy(out, data[:pos])
	binary.BigEndian.PutUint16(out[lastFlagPos:], lastFlags&^compWeHaveInstructions)
	return out, true, nil
}
