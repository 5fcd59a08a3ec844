package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/npillmayer/schuko/schukonf/testconfig"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/npillmayer/schuko/tracing/trace2go"
	"github.com/pterm/pterm"

	"github.com/m13253/FaithType/opentype"
)

// tracer traces with key 'faithtype.fonts'
func tracer() tracing.Trace {
	return tracing.Select("faithtype.fonts")
}

func main() {
	output := flag.String("o", "", "Output font file (.otf, .ttc, .ttf)")
	keepBitmap := flag.Bool("keep-bitmap", false, "Keep embedded bitmap glyphs")
	keepHinting := flag.Bool("keep-hinting", false, "Keep TrueType hinting instructions")
	keepGasp := flag.Bool("keep-gasp", false, "Keep the original gasp table")
	tlevel := flag.String("trace", "Info", "Trace level [Debug|Info|Error]")
	flag.Parse()

	// set up logging
	tracing.RegisterTraceAdapter("go", gologadapter.GetAdapter(), false)
	conf := testconfig.Conf{
		"tracing.adapter":       "go",
		"trace.faithtype.fonts": *tlevel,
	}
	if err := trace2go.ConfigureRoot(conf, "trace", trace2go.ReplaceTracers(true)); err != nil {
		fmt.Println("error configuring tracing")
		os.Exit(1)
	}
	tracing.SetTraceSelector(trace2go.Selector())

	if *output == "" || flag.NArg() != 1 {
		pterm.Info.Printf("Usage: %s [options] -o OUTPUT.<otf,ttc,ttf> INPUT.<otf,ttc,ttf>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err := cmdMain(flag.Arg(0), *output, *keepBitmap, *keepHinting, *keepGasp); err != nil {
		tracer().Errorf("%v", err)
		os.Exit(2)
	}
}

func cmdMain(inputName, outputName string, keepBitmap, keepHinting, keepGasp bool) (err error) {
	in, err := os.Open(inputName)
	if err != nil {
		return
	}
	defer in.Close()
	ttc, err := opentype.NewTTCReader(in).ReadTTC()
	if err != nil {
		return
	}
	tracer().Debugf("parsed container: %s", ttc)

	opentype.RemoveDSIG(ttc)
	if !keepBitmap {
		opentype.RemoveBitmap(ttc)
	}
	if !keepHinting {
		opentype.RemoveHinting(ttc)
	}
	if !keepGasp {
		opentype.RegenerateGasp(ttc)
	}
	opentype.PatchHead(ttc)

	out, err := os.Create(outputName)
	if err != nil {
		return
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return opentype.NewTTCWriter(out).WriteTTC(ttc)
}
