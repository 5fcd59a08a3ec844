/*
Package opentype reads, rewrites and re-serializes OpenType/TrueType font
containers (bare sfnt files as well as TTC font collections).

The package is organized as a linear pipeline:

	TTCReader → TTCHeader (in-memory model) → mutators → TTCWriter

The reader keeps every table as an opaque byte blob; the mutators patch the
handful of tables that control rasterizer behavior (DSIG, gasp, head, maxp,
prep, the embedded-bitmap tables, and the glyf/loca pair), and the writer
reconstructs a conformant container with fresh offsets, padding, table
checksums and the head.checksumAdjustment fixup.

Tracing output is sent to a tracer with key 'faithtype.fonts'.
*/
package opentype

import (
	"github.com/npillmayer/schuko/tracing"
)

// Useful resources:
// https://docs.microsoft.com/en-us/typography/opentype/spec/otff
// https://developer.apple.com/fonts/TrueType-Reference-Manual/

// tracer writes to trace with key 'faithtype.fonts'.
func tracer() tracing.Trace {
	return tracing.Select("faithtype.fonts")
}
