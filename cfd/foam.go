package cfd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

const foamBanner = `/*--------------------------------*- C++ -*----------------------------------*\
| =========                 |                                                 |
| \\      /  F ield         | OpenFOAM: The Open Source CFD Toolbox           |
|  \\    /   O peration     | Version:  v2312                                 |
|   \\  /    A nd           | Website:  www.openfoam.com                      |
|    \\/     M anipulation  |                                                 |
\*---------------------------------------------------------------------------*/
`

const (
	foamSeparator = "// * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * //"
	foamFooter    = "// ************************************************************************* //"
)

// foamWriter emits OpenFOAM dictionary text. The first write error sticks
// and is reported by flush.
type foamWriter struct {
	w      *bufio.Writer
	indent int
	err    error
}

func newFoamWriter(w io.Writer) *foamWriter {
	return &foamWriter{w: bufio.NewWriter(w)}
}

func (f *foamWriter) printf(format string, args ...any) {
	if f.err != nil {
		return
	}
	_, f.err = fmt.Fprintf(f.w, format, args...)
}

// line writes one indented line.
func (f *foamWriter) line(format string, args ...any) {
	if format == "" {
		f.printf("\n")
		return
	}
	f.printf("%s", strings.Repeat("    ", f.indent))
	f.printf(format, args...)
	f.printf("\n")
}

// entry writes "key value;" with the key padded to width.
func (f *foamWriter) entry(key string, width int, value string) {
	f.line("%-*s %s;", width, key, value)
}

func (f *foamWriter) open(name string) {
	if name != "" {
		f.line("%s", name)
	}
	f.line("{")
	f.indent++
}

func (f *foamWriter) close() {
	f.indent--
	f.line("}")
}

// openList starts a parenthesised list such as topoSet actions.
func (f *foamWriter) openList(name string) {
	f.line("%s", name)
	f.line("(")
	f.indent++
}

func (f *foamWriter) closeList() {
	f.indent--
	f.line(");")
}

// header writes the banner and FoamFile block. location may be empty.
func (f *foamWriter) header(object, location string) {
	f.printf("%s", foamBanner)
	f.open("FoamFile")
	f.entry("version", 11, "2.0")
	f.entry("format", 11, "ascii")
	f.entry("class", 11, "dictionary")
	if location != "" {
		f.entry("location", 11, fmt.Sprintf("%q", location))
	}
	f.entry("object", 11, object)
	f.close()
	f.line("%s", foamSeparator)
	f.line("")
}

func (f *foamWriter) footer() {
	f.line("")
	f.line("%s", foamFooter)
}

func (f *foamWriter) flush() error {
	if f.err != nil {
		return f.err
	}
	return f.w.Flush()
}

// foamVec formats a vector as an OpenFOAM tuple.
func foamVec(v r3.Vec) string {
	return fmt.Sprintf("(%.6f %.6f %.6f)", v.X, v.Y, v.Z)
}

// foamScalar formats a length with the same precision as foamVec.
func foamScalar(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
