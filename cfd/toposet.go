package cfd

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r3"
)

// WriteTopoSetDict writes system/topoSetDict. Every zone gets a cellSet
// action selecting its cells and a setToCellZone action turning that set
// into the named cell zone.
func WriteTopoSetDict(w io.Writer, zones []RotatingZone) error {
	f := newFoamWriter(w)
	f.header("topoSetDict", "system")

	f.openList("actions")
	for i, z := range zones {
		if i > 0 {
			f.line("")
		}
		if err := writeCellSetAction(f, z.CellZone); err != nil {
			return err
		}
		f.line("")
		f.open("")
		f.entry("name", 7, z.CellZone.Name)
		f.entry("type", 7, "cellZoneSet")
		f.entry("action", 7, "new")
		f.entry("source", 7, "setToCellZone")
		f.open("sourceInfo")
		f.entry("set", 0, z.CellZone.Name)
		f.close()
		f.close()
	}
	f.closeList()

	f.footer()
	return f.flush()
}

func writeCellSetAction(f *foamWriter, cz CellZone) error {
	f.open("")
	f.entry("name", 7, cz.Name)
	f.entry("type", 7, "cellSet")
	f.entry("action", 7, "new")
	switch cz.Shape {
	case ZoneCylinder, "":
		half := r3.Scale(cz.Height/2, cz.Axis)
		f.entry("source", 7, "cylinderToCell")
		f.open("sourceInfo")
		f.entry("p1", 7, foamVec(r3.Sub(cz.Origin, half)))
		f.entry("p2", 7, foamVec(r3.Add(cz.Origin, half)))
		f.entry("radius", 7, foamScalar(cz.Radius))
		f.close()
	case ZoneSphere:
		f.entry("source", 7, "sphereToCell")
		f.open("sourceInfo")
		f.entry("centre", 7, foamVec(cz.Origin))
		f.entry("radius", 7, foamScalar(cz.Radius))
		f.close()
	default:
		return fmt.Errorf("cell zone %s: unsupported shape %q", cz.Name, cz.Shape)
	}
	f.close()
	return nil
}
