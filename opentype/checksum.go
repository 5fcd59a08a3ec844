package opentype

// Checksum is a streaming accumulator for the OpenType table checksum: the
// input is treated as a sequence of big-endian uint32 values summed modulo
// 2^32, with the stream zero-padded on the right to a 4-byte boundary.
// Arbitrary-length pushes are supported, so the same accumulator serves both
// per-table checksums and the running whole-file checksum the writer tees
// every write into. The zero value is ready to use.
type Checksum struct {
	sum   [4]uint32
	index int
}

// Push feeds bytes into the accumulator.
func (c *Checksum) Push(buf []byte) *Checksum {
	for _, v := range buf {
		c.index &= 3
		c.sum[c.index] += uint32(v)
		c.index++
	}
	return c
}

// Sum32 returns the checksum of everything pushed so far. It does not consume
// the accumulator state, so intermediate sums may be taken.
func (c *Checksum) Sum32() uint32 {
	return (c.sum[0] << 24) +
		(c.sum[1] << 16) +
		(c.sum[2] << 8) +
		c.sum[3]
}

// Reset restores the zero state.
func (c *Checksum) Reset() {
	*c = Checksum{}
}

// Clone returns an independent copy of the accumulator.
func (c *Checksum) Clone() *Checksum {
	clone := *c
	return &clone
}

// Write implements io.Writer so the accumulator can tee a byte stream.
func (c *Checksum) Write(buf []byte) (int, error) {
	c.Push(buf)
	return len(buf), nil
}

// checksumOf is the one-shot form.
func checksumOf(buf []byte) uint32 {
	var c Checksum
	return c.Push(buf).Sum32()
}
