package opentype

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

// TableRecord is one entry of an sfnt table directory: the table payload plus
// the two metadata fields that accompany it on disk. CheckSum and Offset hold
// the values as read; the writer recomputes both. RawData is shared between
// records and must be treated as immutable; a mutator that changes a table
// allocates a fresh slice.
type TableRecord struct {
	CheckSum uint32
	Offset   uint32
	RawData  []byte
}

func (tr *TableRecord) String() string {
	return fmt.Sprintf("tableRecord{checksum:0x%08x data:(%d bytes)}", tr.CheckSum, len(tr.RawData))
}

// SfntHeader is one font of a container: its sfnt version tag and the table
// directory, a mapping from table tag to record ordered lexicographically by
// tag. The map's iteration order is the directory order written out.
type SfntHeader struct {
	SfntVersion  Tag
	tableRecords *treemap.Map
}

// NewSfntHeader creates an empty font directory for the given sfnt version.
func NewSfntHeader(sfntVersion Tag) *SfntHeader {
	return &SfntHeader{
		SfntVersion:  sfntVersion,
		tableRecords: treemap.NewWith(tagComparator),
	}
}

// NumTables is the number of table records.
func (s *SfntHeader) NumTables() int {
	return s.tableRecords.Size()
}

// Get returns the table record for a tag.
func (s *SfntHeader) Get(tag Tag) (*TableRecord, bool) {
	v, ok := s.tableRecords.Get(tag)
	if !ok {
		return nil, false
	}
	return v.(*TableRecord), true
}

// Put inserts or replaces the table record for a tag.
func (s *SfntHeader) Put(tag Tag, tr *TableRecord) {
	s.tableRecords.Put(tag, tr)
}

// Remove deletes the table record for a tag, if present.
func (s *SfntHeader) Remove(tag Tag) {
	s.tableRecords.Remove(tag)
}

// Each visits all table records in lexicographic tag order.
func (s *SfntHeader) Each(f func(tag Tag, tr *TableRecord)) {
	it := s.tableRecords.Iterator()
	for it.Next() {
		f(it.Key().(Tag), it.Value().(*TableRecord))
	}
}

// Tags returns all table tags in lexicographic order.
func (s *SfntHeader) Tags() []Tag {
	tags := make([]Tag, 0, s.tableRecords.Size())
	it := s.tableRecords.Iterator()
	for it.Next() {
		tags = append(tags, it.Key().(Tag))
	}
	return tags
}

// SearchRange is (maximum power of 2 <= numTables) x 16, clamped so the field
// still fits uint16 for directories of 4096 tables and more.
func (s *SfntHeader) SearchRange() uint16 {
	n := s.NumTables()
	if n >= 4096 {
		return 32768
	}
	if n == 0 {
		return 0
	}
	return 16 << s.log2NumTables()
}

// EntrySelector is log2(maximum power of 2 <= numTables), zero for an empty
// directory.
func (s *SfntHeader) EntrySelector() uint16 {
	return uint16(s.log2NumTables())
}

// RangeShift is numTables x 16 - searchRange, clamped to 65520 so the field
// still fits uint16 for directories of 6144 tables and more.
func (s *SfntHeader) RangeShift() uint16 {
	n := s.NumTables()
	if n >= 6144 {
		return 65520
	}
	if n == 0 {
		return 0
	}
	return uint16(n*16) - s.SearchRange()
}

func (s *SfntHeader) log2NumTables() uint {
	n := s.NumTables()
	if n == 0 {
		return 0
	}
	return uint(bits.Len(uint(n)) - 1)
}

func (s *SfntHeader) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("sfnt{sfntVersion:%s tableRecords:{", s.SfntVersion))
	first := true
	s.Each(func(tag Tag, tr *TableRecord) {
		if !first {
			sb.WriteString(" ")
		}
		first = false
		sb.WriteString(fmt.Sprintf("%s:%s", tag, tr))
	})
	sb.WriteString("}}")
	return sb.String()
}

// TTCHeader is the in-memory model of a whole font container. A bare sfnt
// file is represented as a synthetic version 1.0 collection with a single
// table directory; the writer turns a single-directory collection back into a
// bare sfnt. DsigTag and DsigData carry the container-level signature block
// of TTC version 2; both are empty for version 1.
type TTCHeader struct {
	TTCTag           Tag
	MajorVersion     uint16
	MinorVersion     uint16
	TableDirectories []*SfntHeader
	DsigTag          Tag
	DsigData         []byte
}

func (ttc *TTCHeader) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("TTC{ttcTag:%s version:%d.%d tableDirectory:[",
		ttc.TTCTag, ttc.MajorVersion, ttc.MinorVersion))
	for i, sfnt := range ttc.TableDirectories {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(sfnt.String())
	}
	sb.WriteString(fmt.Sprintf("] dsigTag:%s dsigData:(%d bytes)}", ttc.DsigTag, len(ttc.DsigData)))
	return sb.String()
}
