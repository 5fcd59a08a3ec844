package opentype

import (
	"fmt"
	"io"
	"math"
)

// Tables are stored in an order that groups related payloads, while the
// directory entries that point at them stay in lexicographic tag order.
// Tables absent from the priority list follow in directory order.
var (
	storagePriorityTrueType = []Tag{
		String2Tag("head"), String2Tag("hhea"), String2Tag("maxp"),
		String2Tag("OS/2"), String2Tag("hmtx"), String2Tag("LTSH"),
		String2Tag("VDMX"), String2Tag("hdmx"), String2Tag("cmap"),
		String2Tag("fpgm"), String2Tag("prep"), String2Tag("cvt "),
		String2Tag("loca"), String2Tag("glyf"), String2Tag("kern"),
		String2Tag("name"), String2Tag("post"), String2Tag("gasp"),
		String2Tag("PCLT"), String2Tag("DSIG"),
	}
	storagePriorityCFF = []Tag{
		String2Tag("head"), String2Tag("hhea"), String2Tag("maxp"),
		String2Tag("OS/2"), String2Tag("name"), String2Tag("cmap"),
		String2Tag("post"), String2Tag("CFF "),
	}
)

// TTCWriter serializes a TTCHeader to a seekable stream: it assigns table
// offsets, inserts 4-byte alignment padding, deduplicates identical payloads
// across the fonts of a collection (a bare sfnt stores every table), recomputes table checksums and derived directory fields, and back-patches
// head.checksumAdjustment (bare sfnt) or the DSIG offset (TTC version 2).
// A collection holding exactly one table directory is written as a bare sfnt.
type TTCWriter struct {
	w *errWriter
	// assigned payload offsets, keyed by payload content as written
	rawDataCache          map[string]int64
	checksumAdjustmentPos int64
}

// NewTTCWriter creates a writer over an empty seekable sink.
func NewTTCWriter(w io.WriteSeeker) *TTCWriter {
	return &TTCWriter{
		w:                     newErrWriter(w),
		rawDataCache:          make(map[string]int64),
		checksumAdjustmentPos: -1,
	}
}

// WriteTTC serializes the whole container.
func (tw *TTCWriter) WriteTTC(ttc *TTCHeader) error {
	if len(ttc.TableDirectories) == 1 {
		return tw.writeSfnt(ttc.TableDirectories[0])
	}
	if ttc.MajorVersion > 2 {
		return fmt.Errorf("unsupported TTC version: %d.%d", ttc.MajorVersion, ttc.MinorVersion)
	}
	if len(ttc.TableDirectories) > math.MaxInt32 {
		return fmt.Errorf("TTC header: number of sfnt entries (%d) exceeds 2147483647",
			len(ttc.TableDirectories))
	}

	w := tw.w
	w.writeTag(ttc.TTCTag)
	w.writeU16(ttc.MajorVersion)
	w.writeU16(ttc.MinorVersion)
	w.writeU32(uint32(len(ttc.TableDirectories)))

	headerOffset := int64(12 + 4*len(ttc.TableDirectories))
	if ttc.MajorVersion >= 2 {
		headerOffset += 12
	}
	for index, sfnt := range ttc.TableDirectories {
		if headerOffset > math.MaxUint32 {
			return fmt.Errorf("sfnt %d header: offset (0x%x) exceeds 4 GiB", index, headerOffset)
		}
		w.writeU32(uint32(headerOffset))
		headerOffset += int64(12 + 16*sfnt.NumTables())
	}

	dsigHeaderPos := int64(-1)
	if ttc.MajorVersion >= 2 {
		w.writeTag(ttc.DsigTag)
		if int64(len(ttc.DsigData)) > math.MaxUint32 {
			return fmt.Errorf("TTC table %s: length (%d) exceeds 4 GiB", ttc.DsigTag, len(ttc.DsigData))
		}
		w.writeU32(uint32(len(ttc.DsigData)))
		if ttc.DsigTag != TagZero || len(ttc.DsigData) > 0 {
			dsigHeaderPos = w.pos
		}
		w.writeU32(0)
	}

	// First pass assigns payload offsets in storage order, sharing one
	// offset between identical payloads regardless of which font they
	// belong to.
	offset := headerOffset
	for _, sfnt := range ttc.TableDirectories {
		for _, tableTag := range storageOrder(sfnt) {
			tr, _ := sfnt.Get(tableTag)
			key := string(patchTTCTable(tableTag, tr.RawData))
			if _, ok := tw.rawDataCache[key]; !ok {
				offset += paddingSize(offset)
				tw.rawDataCache[key] = offset
				offset += int64(len(tr.RawData))
			}
		}
	}

	for index, sfnt := range ttc.TableDirectories {
		if sfnt.NumTables() > 65535 {
			return fmt.Errorf("sfnt %d header: number of tables (%d) exceeds 65535",
				index, sfnt.NumTables())
		}
		w.writeTag(sfnt.SfntVersion)
		w.writeU16(uint16(sfnt.NumTables()))
		w.writeU16(sfnt.SearchRange())
		w.writeU16(sfnt.EntrySelector())
		w.writeU16(sfnt.RangeShift())

		var dirErr error
		sfnt.Each(func(tableTag Tag, tr *TableRecord) {
			if dirErr != nil {
				return
			}
			key := string(patchTTCTable(tableTag, tr.RawData))
			cacheOffset := tw.rawDataCache[key]
			if cacheOffset > math.MaxUint32 {
				dirErr = fmt.Errorf("sfnt %d table %s: offset (0x%x) exceeds 4 GiB",
					index, tableTag, cacheOffset)
				return
			}
			if int64(len(tr.RawData)) > math.MaxUint32 {
				dirErr = fmt.Errorf("sfnt %d table %s: length (%d) exceeds 4 GiB",
					index, tableTag, len(tr.RawData))
				return
			}
			w.writeTag(tableTag)
			w.writeU32(checksumTable(tableTag, tr.RawData))
			w.writeU32(uint32(cacheOffset))
			w.writeU32(uint32(len(tr.RawData)))
		})
		if dirErr != nil {
			return dirErr
		}
	}

	written := make(map[string]bool, len(tw.rawDataCache))
	for _, sfnt := range ttc.TableDirectories {
		for _, tableTag := range storageOrder(sfnt) {
			tr, _ := sfnt.Get(tableTag)
			key := string(patchTTCTable(tableTag, tr.RawData))
			if written[key] {
				continue
			}
			written[key] = true
			w.writePadding()
			if cacheOffset := tw.rawDataCache[key]; w.pos != cacheOffset && !w.hasErr() {
				return fmt.Errorf("table %s: layout mismatch: offset 0x%x assigned, writing at 0x%x",
					tableTag, cacheOffset, w.pos)
			}
			tw.writeTTCTableData(tableTag, tr.RawData)
		}
	}

	if dsigHeaderPos >= 0 {
		w.writePadding()
		dataPos := w.pos
		w.write(ttc.DsigData)
		if dataPos > math.MaxUint32 {
			return fmt.Errorf("TTC table %s: offset (0x%x) exceeds 4 GiB", ttc.DsigTag, dataPos)
		}
		w.seekTo(dsigHeaderPos)
		w.writeU32(uint32(dataPos))
	}

	return w.err
}

func (tw *TTCWriter) writeSfnt(sfnt *SfntHeader) error {
	if sfnt.NumTables() > 65535 {
		return fmt.Errorf("sfnt 0 header: number of tables (%d) exceeds 65535", sfnt.NumTables())
	}
	w := tw.w
	w.writeTag(sfnt.SfntVersion)
	w.writeU16(uint16(sfnt.NumTables()))
	w.writeU16(sfnt.SearchRange())
	w.writeU16(sfnt.EntrySelector())
	w.writeU16(sfnt.RangeShift())

	// Offsets follow the storage order even though the directory entries
	// that carry them are sorted by tag.
	offsets := make(map[Tag]int64, sfnt.NumTables())
	offset := int64(12 + 16*sfnt.NumTables())
	for _, tableTag := range storageOrder(sfnt) {
		tr, _ := sfnt.Get(tableTag)
		offset += paddingSize(offset)
		offsets[tableTag] = offset
		offset += int64(len(tr.RawData))
	}

	var dirErr error
	sfnt.Each(func(tableTag Tag, tr *TableRecord) {
		if dirErr != nil {
			return
		}
		if offsets[tableTag] > math.MaxUint32 {
			dirErr = fmt.Errorf("sfnt 0 table %s: offset (0x%x) exceeds 4 GiB",
				tableTag, offsets[tableTag])
			return
		}
		if int64(len(tr.RawData)) > math.MaxUint32 {
			dirErr = fmt.Errorf("sfnt 0 table %s: length (%d) exceeds 4 GiB",
				tableTag, len(tr.RawData))
			return
		}
		w.writeTag(tableTag)
		w.writeU32(checksumTable(tableTag, tr.RawData))
		w.writeU32(uint32(offsets[tableTag]))
		w.writeU32(uint32(len(tr.RawData)))
	})
	if dirErr != nil {
		return dirErr
	}

	for _, tableTag := range storageOrder(sfnt) {
		tr, _ := sfnt.Get(tableTag)
		w.writePadding()
		tw.writeSfntTableData(tableTag, tr.RawData)
	}

	if tw.checksumAdjustmentPos >= 0 {
		mainChecksum := w.checksum.Sum32()
		w.seekTo(tw.checksumAdjustmentPos)
		w.writeU32(0xB1B0AFBA - mainChecksum)
	}

	return w.err
}

// storageOrder returns the table tags of a font in payload storage order:
// tables on the priority list for this sfnt version first, the rest in
// directory order.
func storageOrder(sfnt *SfntHeader) []Tag {
	priority := storagePriorityTrueType
	if sfnt.SfntVersion == SfntVersionCFFOpenType {
		priority = storagePriorityCFF
	}
	order := make([]Tag, 0, sfnt.NumTables())
	prioritized := make(map[Tag]bool, len(priority))
	for _, tableTag := range priority {
		if _, ok := sfnt.Get(tableTag); ok {
			order = append(order, tableTag)
			prioritized[tableTag] = true
		}
	}
	sfnt.Each(func(tableTag Tag, _ *TableRecord) {
		if !prioritized[tableTag] {
			order = append(order, tableTag)
		}
	})
	return order
}

// checksumTable computes the directory checksum of a table as it will appear
// on disk. head is summed with checksumAdjustment treated as zero.
func checksumTable(tableTag Tag, rawData []byte) uint32 {
	if tableTag != tagHead || len(rawData) <= 8 {
		return checksumOf(rawData)
	}
	var c Checksum
	c.Push(rawData[:8])
	if len(rawData) >= 12 {
		c.Push(rawData[12:])
	}
	return c.Sum32()
}

// patchTTCTable returns the payload bytes as they will be stored: for head,
// a copy with checksumAdjustment zeroed; anything else unchanged.
func patchTTCTable(tableTag Tag, rawData []byte) []byte {
	if tableTag != tagHead || len(rawData) < 12 ||
		(rawData[8] == 0 && rawData[9] == 0 && rawData[10] == 0 && rawData[11] == 0) {
		return rawData
	}
	patched := make([]byte, len(rawData))
	copy(patched, rawData)
	patched[8], patched[9], patched[10], patched[11] = 0, 0, 0, 0
	return patched
}

// writeTTCTableData stores a payload for collection output; head is stored
// with checksumAdjustment zeroed but no fix-up position is recorded, as the
// whole-file checksum convention does not apply to collections.
func (tw *TTCWriter) writeTTCTableData(tableTag Tag, rawData []byte) {
	w := tw.w
	if tableTag != tagHead || len(rawData) <= 8 {
		w.write(rawData)
		return
	}
	w.write(rawData[:8])
	if len(rawData) < 12 {
		w.write(rawData[8:])
		return
	}
	w.write(zeroAdjustment[:])
	w.write(rawData[12:])
}

// writeSfntTableData stores a payload for bare sfnt output; the position of
// head.checksumAdjustment is recorded for the final back-patch.
func (tw *TTCWriter) writeSfntTableData(tableTag Tag, rawData []byte) {
	w := tw.w
	if tableTag != tagHead || len(rawData) <= 8 {
		w.write(rawData)
		return
	}
	w.write(rawData[:8])
	if len(rawData) < 12 {
		w.write(rawData[8:])
		return
	}
	tw.checksumAdjustmentPos = w.pos
	w.write(zeroAdjustment[:])
	w.write(rawData[12:])
}

var zeroAdjustment = [4]byte{}
