package cfd

import (
	"fmt"
	"io"
	"strings"
)

// WriteMRFProperties writes constant/MRFProperties with one MRFSource entry
// per zone.
func WriteMRFProperties(w io.Writer, zones []RotatingZone) error {
	f := newFoamWriter(w)
	f.header("MRFProperties", "constant")

	for i, z := range zones {
		if i > 0 {
			f.line("")
		}
		f.open(z.Name)
		f.entry("type", 15, "MRFSource")
		f.entry("active", 15, "yes")
		f.line("")
		f.open("MRFSourceCoeffs")
		f.entry("selectionMode", 15, "cellZone")
		f.entry("cellZone", 15, z.CellZone.Name)
		f.line("")
		f.entry("origin", 15, foamVec(z.Origin))
		f.entry("axis", 15, foamVec(z.Axis))
		f.entry("omega", 15, z.Omega.String())
		f.line("")
		f.entry("nonRotatingPatches", 0, fmt.Sprintf("(%s)", strings.Join(z.NonRotatingPatches, " ")))
		f.close()
		f.close()
	}

	f.footer()
	return f.flush()
}
