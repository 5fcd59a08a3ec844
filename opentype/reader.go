package opentype

import (
	"fmt"
	"io"
)

// TTCReader parses a TTC version 1/2 font collection or a bare sfnt font
// from a seekable stream into a TTCHeader. A bare sfnt is wrapped in a
// synthetic version 1.0 collection holding a single table directory.
//
// Identical table payloads are shared: blobs are cached by their absolute
// (offset, length), so tables aliased across the fonts of a collection load
// once and keep a single backing slice in the model.
type TTCReader struct {
	r            *errReader
	rawDataCache map[blobKey][]byte
}

type blobKey struct {
	pos    int64
	length uint32
}

// NewTTCReader creates a reader over a stream positioned at the container
// start.
func NewTTCReader(r io.ReadSeeker) *TTCReader {
	return &TTCReader{
		r:            newErrReader(r),
		rawDataCache: make(map[blobKey][]byte),
	}
}

// ReadTTC parses the whole container.
func (tr *TTCReader) ReadTTC() (*TTCHeader, error) {
	r := tr.r
	oldPos := r.pos()
	ttcTag := r.readTag()
	if r.hasErr() {
		return nil, r.err
	}
	if ttcTag != SfntVersionTTCHeader {
		r.seek(oldPos)
		sfnt, err := tr.readSfnt()
		if err != nil {
			return nil, err
		}
		return &TTCHeader{
			TTCTag:           SfntVersionTTCHeader,
			MajorVersion:     1,
			MinorVersion:     0,
			TableDirectories: []*SfntHeader{sfnt},
			DsigTag:          TagZero,
			DsigData:         tr.emptyRawData(),
		}, nil
	}

	versionPos := r.pos()
	majorVersion := r.readU16()
	minorVersion := r.readU16()
	if r.hasErr() {
		return nil, r.err
	}
	if majorVersion > 2 {
		return nil, fmt.Errorf("file position 0x%08x: unsupported TTC version: %d.%d",
			versionPos, majorVersion, minorVersion)
	}
	numFonts := r.readU32()
	if r.hasErr() {
		return nil, r.err
	}
	tableDirectories := make([]*SfntHeader, 0, numFonts)
	for i := uint32(0); i < numFonts; i++ {
		offset := r.readU32()
		oldPos := r.pos()
		r.seek(int64(offset))
		if r.hasErr() {
			return nil, r.err
		}
		sfnt, err := tr.readSfnt()
		if err != nil {
			return nil, err
		}
		r.seek(oldPos)
		tableDirectories = append(tableDirectories, sfnt)
	}

	dsigTag := TagZero
	dsigLength := uint32(0)
	dsigOffset := uint32(0)
	if majorVersion >= 2 {
		dsigTag = r.readTag()
		dsigLength = r.readU32()
		dsigOffset = r.readU32()
	}
	var dsigData []byte
	if dsigTag == tagDSIG {
		dsigData = tr.readRawData(int64(dsigOffset), dsigLength)
	} else {
		dsigData = tr.emptyRawData()
	}
	if r.hasErr() {
		return nil, r.err
	}

	return &TTCHeader{
		TTCTag:           ttcTag,
		MajorVersion:     majorVersion,
		MinorVersion:     minorVersion,
		TableDirectories: tableDirectories,
		DsigTag:          dsigTag,
		DsigData:         dsigData,
	}, nil
}

func (tr *TTCReader) readSfnt() (*SfntHeader, error) {
	r := tr.r
	versionPos := r.pos()
	sfntVersion := r.readTag()
	if r.hasErr() {
		return nil, r.err
	}
	switch sfntVersion {
	case SfntVersionTrueTypeOpenType, SfntVersionCFFOpenType, SfntVersionAppleTrueType:
		// sfnt can also wrap other formats, none of which is supported here.
	default:
		return nil, fmt.Errorf("file position 0x%08x: unsupported sfnt version: %s",
			versionPos, sfntVersion)
	}

	numTables := r.readU16()
	// searchRange, entrySelector and rangeShift are derived fields; the
	// writer recomputes them, so their stored values are discarded.
	_ = r.readU16()
	_ = r.readU16()
	_ = r.readU16()
	if r.hasErr() {
		return nil, r.err
	}
	sfnt := NewSfntHeader(sfntVersion)
	for i := uint16(0); i < numTables; i++ {
		tableTag := r.readTag()
		checkSum := r.readU32()
		offset := r.readU32()
		length := r.readU32()
		rawData := tr.readRawData(int64(offset), length)
		if r.hasErr() {
			return nil, r.err
		}
		sfnt.Put(tableTag, &TableRecord{
			CheckSum: checkSum,
			Offset:   offset,
			RawData:  rawData,
		})
	}
	return sfnt, nil
}

// readRawData loads length bytes at an absolute position through the blob
// cache, restoring the stream position afterward.
func (tr *TTCReader) readRawData(pos int64, length uint32) []byte {
	if length == 0 {
		return tr.emptyRawData()
	}
	key := blobKey{pos: pos, length: length}
	if blob, ok := tr.rawDataCache[key]; ok {
		return blob
	}
	r := tr.r
	oldPos := r.pos()
	r.seek(pos)
	buf := make([]byte, length)
	r.readFull(buf)
	r.seek(oldPos)
	if r.hasErr() {
		return nil
	}
	tr.rawDataCache[key] = buf
	return buf
}

func (tr *TTCReader) emptyRawData() []byte {
	key := blobKey{}
	if blob, ok := tr.rawDataCache[key]; ok {
		return blob
	}
	blob := []byte{}
	tr.rawDataCache[key] = blob
	return blob
}
