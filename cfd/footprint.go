package cfd

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r3"
)

// Footprint kinds stored in the "kind" property.
const (
	FootprintRefinement   = "refinement"
	FootprintRotatingZone = "rotating_zone"
)

// zoneFootprintSegments is the number of points sampled around each zone
// rim before taking the hull.
const zoneFootprintSegments = 32

// Footprints projects every region and zone onto the XY plane as a convex
// polygon. Properties carry the name, kind, vertical extent and plan area,
// so case reviewers can overlay the volumes on a plan view.
func Footprints(regions []RefinementRegion, zones []RotatingZone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, r := range regions {
		corners := r.Corners()
		pts := make([]orb.Point, len(corners))
		for i, c := range corners {
			pts[i] = orb.Point{c.X, c.Y}
		}
		b := r.GlobalBounds()
		f := footprintFeature(r.Name, FootprintRefinement, pts, b.Min.Z, b.Max.Z)
		if f == nil {
			continue
		}
		f.Properties["level"] = r.Levels.Level
		f.Properties["edgeLength"] = r.Levels.EdgeLength
		fc.Append(f)
	}

	for _, z := range zones {
		rim := zoneRim(z.CellZone)
		pts := make([]orb.Point, len(rim))
		zMin, zMax := math.Inf(1), math.Inf(-1)
		for i, p := range rim {
			pts[i] = orb.Point{p.X, p.Y}
			zMin = math.Min(zMin, p.Z)
			zMax = math.Max(zMax, p.Z)
		}
		f := footprintFeature(z.Name, FootprintRotatingZone, pts, zMin, zMax)
		if f == nil {
			continue
		}
		f.Properties["omega"] = z.Omega.String()
		fc.Append(f)
	}
	return fc
}

// WriteFootprints encodes a footprint collection as GeoJSON.
func WriteFootprints(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding footprints: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing footprints: %w", err)
	}
	return nil
}

func footprintFeature(name, kind string, pts []orb.Point, zMin, zMax float64) *geojson.Feature {
	hull := convexHull(pts)
	if len(hull) < 3 {
		return nil
	}
	hull = append(hull, hull[0])

	poly := orb.Polygon{orb.Ring(hull)}
	f := geojson.NewFeature(poly)
	f.ID = name
	f.Properties["name"] = name
	f.Properties["kind"] = kind
	f.Properties["zMin"] = zMin
	f.Properties["zMax"] = zMax
	f.Properties["area"] = math.Abs(planar.Area(poly))
	return f
}

// zoneRim samples the boundary of a cell zone in 3D.
func zoneRim(cz CellZone) []r3.Vec {
	axis := cz.Axis
	if cz.Shape == ZoneSphere || r3.Norm(axis) == 0 {
		axis = r3.Vec{Z: 1}
	}
	axis = r3.Unit(axis)

	ref := r3.Vec{X: 1}
	if math.Abs(axis.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	u := r3.Unit(r3.Cross(axis, ref))
	v := r3.Cross(axis, u)

	var ends []r3.Vec
	if cz.Shape == ZoneSphere {
		// The silhouette of a sphere seen from above is its equator.
		ends = []r3.Vec{cz.Origin}
	} else {
		half := r3.Scale(cz.Height/2, axis)
		ends = []r3.Vec{r3.Sub(cz.Origin, half), r3.Add(cz.Origin, half)}
	}

	rim := make([]r3.Vec, 0, len(ends)*zoneFootprintSegments+2)
	for _, c := range ends {
		for i := 0; i < zoneFootprintSegments; i++ {
			a := 2 * math.Pi * float64(i) / zoneFootprintSegments
			off := r3.Add(r3.Scale(cz.Radius*math.Cos(a), u), r3.Scale(cz.Radius*math.Sin(a), v))
			rim = append(rim, r3.Add(c, off))
		}
	}
	if cz.Shape == ZoneSphere {
		rim = append(rim,
			r3.Add(cz.Origin, r3.Vec{Z: cz.Radius}),
			r3.Sub(cz.Origin, r3.Vec{Z: cz.Radius}))
	}
	return rim
}

// convexHull returns the hull of points in counter-clockwise order without
// repeating the first point. Collinear points are dropped.
func convexHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		out := make([]orb.Point, len(points))
		copy(out, points)
		return out
	}

	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	hull := make([]orb.Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}
