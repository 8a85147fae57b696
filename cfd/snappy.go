package cfd

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
)

// SnappyOptions are the castellatedMeshControls written around the
// refinement regions.
type SnappyOptions struct {
	MaxLocalCells       int     `yaml:"maxLocalCells" json:"maxLocalCells"`
	MaxGlobalCells      int     `yaml:"maxGlobalCells" json:"maxGlobalCells"`
	MinRefinementCells  int     `yaml:"minRefinementCells" json:"minRefinementCells"`
	NCellsBetweenLevels int     `yaml:"nCellsBetweenLevels" json:"nCellsBetweenLevels"`
	ResolveFeatureAngle float64 `yaml:"resolveFeatureAngle" json:"resolveFeatureAngle"`
	LocationInMesh      r3.Vec  `yaml:"-" json:"locationInMesh"`
}

// DefaultSnappyOptions returns the controls used when none are configured.
func DefaultSnappyOptions() SnappyOptions {
	return SnappyOptions{
		MaxLocalCells:       1000000,
		MaxGlobalCells:      2000000,
		MinRefinementCells:  10,
		NCellsBetweenLevels: 3,
		ResolveFeatureAngle: 30,
	}
}

// WriteSnappyHexMeshDict writes a complete snappyHexMeshDict with one
// searchable geometry and one refinement region per region.
func WriteSnappyHexMeshDict(w io.Writer, regions []RefinementRegion, opts SnappyOptions) error {
	f := newFoamWriter(w)
	f.header("snappyHexMeshDict", "system")

	f.entry("castellatedMesh", 15, "true")
	f.entry("snap", 15, "true")
	f.entry("addLayers", 15, "false")
	f.line("")

	f.open("geometry")
	for _, r := range regions {
		writeSearchable(f, r)
	}
	f.close()
	f.line("")

	f.open("castellatedMeshControls")
	f.entry("maxLocalCells", 19, strconv.Itoa(opts.MaxLocalCells))
	f.entry("maxGlobalCells", 19, strconv.Itoa(opts.MaxGlobalCells))
	f.entry("minRefinementCells", 19, strconv.Itoa(opts.MinRefinementCells))
	f.entry("nCellsBetweenLevels", 19, strconv.Itoa(opts.NCellsBetweenLevels))
	f.entry("resolveFeatureAngle", 19, strconv.FormatFloat(opts.ResolveFeatureAngle, 'g', -1, 64))
	f.line("")
	writeRefinementRegions(f, regions)
	f.line("")
	f.entry("locationInMesh", 19, foamVec(opts.LocationInMesh))
	f.close()

	f.footer()
	return f.flush()
}

// WriteRefinementRegions writes only the refinementRegions block, for
// pasting into an existing dictionary.
func WriteRefinementRegions(w io.Writer, regions []RefinementRegion) error {
	f := newFoamWriter(w)
	writeRefinementRegions(f, regions)
	return f.flush()
}

func writeRefinementRegions(f *foamWriter, regions []RefinementRegion) {
	f.open("refinementRegions")
	for _, r := range regions {
		mode := r.Mode
		if mode == "" {
			mode = ModeInside
		}
		f.open(r.Name)
		f.entry("mode", 7, string(mode))
		f.entry("levels", 7, fmt.Sprintf("((%s %d))",
			strconv.FormatFloat(r.Levels.EdgeLength, 'g', -1, 64), r.Levels.Level))
		f.close()
	}
	f.close()
}

func writeSearchable(f *foamWriter, r RefinementRegion) {
	f.open(r.Name)
	switch r.Type {
	case RegionSphere:
		half := r3.Scale(0.5, r3.Sub(r.Bounds.Max, r.Bounds.Min))
		f.entry("type", 7, "searchableSphere")
		f.entry("centre", 7, foamVec(r.Transform.Apply(boxCenter(r.Bounds))))
		f.entry("radius", 7, foamScalar(math.Max(half.X, math.Max(half.Y, half.Z))))
	case RegionCylinder:
		c := boxCenter(r.Bounds)
		lo := r.Transform.Apply(r3.Vec{X: c.X, Y: c.Y, Z: r.Bounds.Min.Z})
		hi := r.Transform.Apply(r3.Vec{X: c.X, Y: c.Y, Z: r.Bounds.Max.Z})
		size := r3.Sub(r.Bounds.Max, r.Bounds.Min)
		f.entry("type", 7, "searchableCylinder")
		f.entry("point1", 7, foamVec(lo))
		f.entry("point2", 7, foamVec(hi))
		f.entry("radius", 7, foamScalar(math.Max(size.X, size.Y)/2))
	default:
		b := r.GlobalBounds()
		f.entry("type", 7, "searchableBox")
		f.entry("min", 7, foamVec(b.Min))
		f.entry("max", 7, foamVec(b.Max))
	}
	f.close()
}

func boxCenter(b r3.Box) r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}
