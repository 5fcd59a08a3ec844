package opentype

import "encoding/binary"

// The mutators below are applied in a fixed order: RemoveDSIG first, then
// optionally RemoveBitmap, RemoveHinting and RegenerateGasp, and PatchHead
// last. Each one replaces whole table records instead of editing a payload in
// place; blobs still referenced by other records are never written to. Patched
// tables get freshly allocated copies, while the fixed DSIG, gasp and prep
// stubs are package-level slices shared by every record that uses them.

// dsigStub is a valid, empty signature table: version 1, 0 signatures,
// 0 flags.
var dsigStub = []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}

// RemoveDSIG replaces digital signatures, which the later mutations would
// invalidate, with dsigStub. The sfnt format stores DSIG inside the table directory
// while TTC version 2 stores it once at container level, hence the split:
// a single-font container gets a stub DSIG table inside its directory, a
// multi-font container is promoted to version 2 with a container-level stub
// and per-font DSIG entries removed.
func RemoveDSIG(ttc *TTCHeader) {
	if len(ttc.TableDirectories) == 1 {
		ttc.DsigTag = TagZero
		ttc.DsigData = []byte{}
		ttc.TableDirectories[0].Put(tagDSIG, &TableRecord{RawData: dsigStub})
		return
	}
	if ttc.MajorVersion < 2 {
		ttc.MajorVersion = 2
		ttc.MinorVersion = 0
	}
	ttc.DsigTag = tagDSIG
	ttc.DsigData = dsigStub
	for _, sfnt := range ttc.TableDirectories {
		sfnt.Remove(tagDSIG)
	}
}

// bitmapTables are the embedded-bitmap tables in their Apple (bdat, bloc)
// and Microsoft (EBDT, EBLC, EBSC) spellings.
var bitmapTables = []Tag{
	String2Tag("bdat"),
	String2Tag("bloc"),
	String2Tag("EBDT"),
	String2Tag("EBLC"),
	String2Tag("EBSC"),
}

// RemoveBitmap deletes embedded bitmap glyphs so rasterizers fall back to
// rendering outlines at every size.
func RemoveBitmap(ttc *TTCHeader) {
	for _, sfnt := range ttc.TableDirectories {
		for _, tableTag := range bitmapTables {
			sfnt.Remove(tableTag)
		}
	}
}

// gaspPatched is a one-range gasp table: version 1, all ppem sizes,
// GASP_DO_GRAY | GASP_SYMMETRIC_SMOOTHING.
var gaspPatched = []byte{
	0x00, 0x01, // version
	0x00, 0x01, // numRanges
	0xFF, 0xFF, // gaspRanges[0].rangeMaxPPEM = 65535
	0x00, 0x0A, // gaspRanges[0].rangeGaspBehavior = GASP_DO_GRAY | GASP_SYMMETRIC_SMOOTHING
}

// RegenerateGasp replaces (or inserts) the gasp table with a single range
// forcing anti-aliased grayscale rendering with symmetric smoothing at all
// sizes.
func RegenerateGasp(ttc *TTCHeader) {
	for _, sfnt := range ttc.TableDirectories {
		sfnt.Put(tagGasp, &TableRecord{RawData: gaspPatched})
	}
}

// PatchHead normalizes the Apple 'true' sfnt version to 0x00010000 and marks
// the head table: flags bit 11 (lossless conversion) and bit 13 (optimized
// for ClearType) are set, lowestRecPPEM is cleared so no minimum size is
// enforced.
func PatchHead(ttc *TTCHeader) {
	for _, sfnt := range ttc.TableDirectories {
		if sfnt.SfntVersion == SfntVersionAppleTrueType {
			sfnt.SfntVersion = SfntVersionTrueTypeOpenType
		}
		head, ok := sfnt.Get(tagHead)
		if !ok || len(head.RawData) < 18 {
			continue
		}
		patched := make([]byte, len(head.RawData))
		copy(patched, head.RawData)
		patched[16] |= 0x28
		if len(patched) >= 48 {
			patched[46] = 0
			patched[47] = 0
		}
		sfnt.Put(tagHead, &TableRecord{RawData: patched})
	}
}

// hintingTables are removed outright by RemoveHinting: the control values,
// the font program, and the pre-computed device metrics that only make sense
// for grid-fitted outlines.
var hintingTables = []Tag{
	String2Tag("cvar"),
	String2Tag("cvt "),
	String2Tag("fpgm"),
	String2Tag("hdmx"),
	String2Tag("LTSH"),
	String2Tag("VDMX"),
}

// prepPatched is the replacement Control Value Program. Any per-glyph
// instructions that survive become inert once grid-fitting is off.
var prepPatched = []byte{
	0xB1, 0x04, 0x03, // PUSHB[1] 4 3
	0x8E, // INSTCTRL[], turn ClearType on
	0xB8, 0x01, 0xFF, // PUSHW[0] 511
	0x85, // SCANCTRL[], turn dropout control on for all sizes
	0xB0, 0x04, // PUSHB[0] 4
	0x8D, // SCANTYPE[], smart dropout control with stubs
	0xB1, 0x01, 0x01, // PUSHB[1] 1 1
	0x8E, // INSTCTRL[], turn grid-fitting off
}

// RemoveHinting strips TrueType hinting from every font: the hinting support
// tables are dropped, prep is replaced with a stub that disables grid-fitting,
// maxp is rewritten to match the stub's resource usage, the ppem-dependent
// head flags are cleared, and the per-glyph instruction blobs are excised
// from the glyf stream with loca rebuilt alongside.
func RemoveHinting(ttc *TTCHeader) {
	for _, sfnt := range ttc.TableDirectories {
		for _, tableTag := range hintingTables {
			sfnt.Remove(tableTag)
		}
		sfnt.Put(tagPrep, &TableRecord{RawData: prepPatched})
		patchMaxpForStub(sfnt)
		dehintGlyf(sfnt)
		clearHeadHintingFlags(sfnt)
	}
}

// patchMaxpForStub describes a program that uses no storage, no functions,
// no twilight zone, and the 2-element stack the prep stub needs.
func patchMaxpForStub(sfnt *SfntHeader) {
	maxp, ok := sfnt.Get(tagMaxp)
	if !ok || len(maxp.RawData) < 32 {
		// maxp version 0.5 (CFF outlines) carries no hinting limits.
		return
	}
	patched := make([]byte, len(maxp.RawData))
	copy(patched, maxp.RawData)
	binary.BigEndian.PutUint16(patched[14:], 1)  // maxZones
	binary.BigEndian.PutUint16(patched[16:], 0)  // maxTwilightPoints
	binary.BigEndian.PutUint16(patched[18:], 0)  // maxStorage
	binary.BigEndian.PutUint16(patched[20:], 0)  // maxFunctionDefs
	binary.BigEndian.PutUint16(patched[22:], 0)  // maxInstructionDefs
	binary.BigEndian.PutUint16(patched[24:], 2)  // maxStackElements
	binary.BigEndian.PutUint16(patched[26:], 15) // maxSizeOfInstructions
	sfnt.Put(tagMaxp, &TableRecord{RawData: patched})
}

// clearHeadHintingFlags clears head flags bit 1 (instructions depend on
// ppem), bit 2 (force integer ppem) and bit 3 (instructions may alter the
// advance width).
func clearHeadHintingFlags(sfnt *SfntHeader) {
	head, ok := sfnt.Get(tagHead)
	if !ok || len(head.RawData) < 18 {
		return
	}
	patched := make([]byte, len(head.RawData))
	copy(patched, head.RawData)
	patched[17] &= 0xF1
	sfnt.Put(tagHead, &TableRecord{RawData: patched})
}
