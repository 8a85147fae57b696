package cfd

import (
	"math"

	"github.com/kwv/automesh/mesh"
	"github.com/kwv/automesh/recognition"
	"gonum.org/v1/gonum/spatial/r3"
)

// RegionType is the shape of a refinement volume.
type RegionType string

const (
	RegionBox      RegionType = "box"
	RegionSphere   RegionType = "sphere"
	RegionCylinder RegionType = "cylinder"
)

// Mode selects whether cells inside or outside a region are refined.
type Mode string

const (
	ModeInside  Mode = "inside"
	ModeOutside Mode = "outside"
)

// RefinementRegion is a volume where the mesher should use finer cells.
// Bounds are in the region's local frame; Transform places that frame in
// the target.
type RefinementRegion struct {
	Name      string         `json:"name"`
	Type      RegionType     `json:"type"`
	Transform mesh.Transform `json:"transform"`
	Levels    Levels         `json:"levels"`
	Bounds    r3.Box         `json:"bounds"`
	Mode      Mode           `json:"mode"`
	FeatureID string         `json:"featureId,omitempty"`
}

// Corners returns the eight local box corners mapped into the target frame.
func (r RefinementRegion) Corners() [8]r3.Vec {
	var out [8]r3.Vec
	lo, hi := r.Bounds.Min, r.Bounds.Max
	for i := 0; i < 8; i++ {
		p := lo
		if i&1 != 0 {
			p.X = hi.X
		}
		if i&2 != 0 {
			p.Y = hi.Y
		}
		if i&4 != 0 {
			p.Z = hi.Z
		}
		out[i] = r.Transform.Apply(p)
	}
	return out
}

// GlobalBounds returns the axis-aligned box enclosing the oriented region.
func (r RefinementRegion) GlobalBounds() r3.Box {
	corners := r.Corners()
	box := r3.Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, c := range corners {
		box.Min = r3.Vec{X: math.Min(box.Min.X, c.X), Y: math.Min(box.Min.Y, c.Y), Z: math.Min(box.Min.Z, c.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, c.X), Y: math.Max(box.Max.Y, c.Y), Z: math.Max(box.Max.Z, c.Z)}
	}
	return box
}

// unitBounds is the local box of a primary region.
var unitBounds = r3.Box{
	Min: r3.Vec{X: -0.5, Y: -0.5, Z: -0.5},
	Max: r3.Vec{X: 0.5, Y: 0.5, Z: 0.5},
}

// RegionGenerator turns detections into refinement regions using a rule
// table.
type RegionGenerator struct {
	rules RuleTable
}

// NewRegionGenerator returns a generator; nil rules select DefaultRules.
func NewRegionGenerator(rules RuleTable) *RegionGenerator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &RegionGenerator{rules: rules}
}

// Rules returns the table the generator uses.
func (g *RegionGenerator) Rules() RuleTable { return g.rules }

// Generate emits a primary region for every detection and a wake region
// for detections whose rule has one. Wakes without three-component offset
// and scale vectors are skipped; RuleTable.Validate reports them. Output
// follows detection order.
func (g *RegionGenerator) Generate(dets []recognition.DetectionResult) []RefinementRegion {
	regions := make([]RefinementRegion, 0, len(dets))
	for _, det := range dets {
		_, rule := g.rules.Lookup(det.FeatureID)

		regions = append(regions, RefinementRegion{
			Name:      det.FeatureID + "_ref",
			Type:      RegionBox,
			Transform: det.Transform,
			Levels:    rule.Levels,
			Bounds:    unitBounds,
			Mode:      ModeInside,
			FeatureID: det.FeatureID,
		})

		if rule.Wake.wellFormed() {
			regions = append(regions, wakeRegion(det, rule))
		}
	}
	return regions
}

// wellFormed reports whether w exists and has 3-D offset and scale vectors.
func (w *WakeRule) wellFormed() bool {
	return w != nil && len(w.Offset) == 3 && len(w.Scale) == 3
}

func wakeRegion(det recognition.DetectionResult, rule FeatureTypeRule) RefinementRegion {
	w := rule.Wake
	local := r3.Vec{X: w.Offset[0], Y: w.Offset[1], Z: w.Offset[2]}

	t := det.Transform
	t.SetTranslation(r3.Add(t.Translate(), t.Rotate(local)))

	scale := r3.Vec{X: w.Scale[0], Y: w.Scale[1], Z: w.Scale[2]}
	bounds := r3.Box{
		Min: mulElem(unitBounds.Min, scale),
		Max: mulElem(unitBounds.Max, scale),
	}

	level := rule.Levels.Level - 1
	if level < 1 {
		level = 1
	}
	return RefinementRegion{
		Name:      det.FeatureID + "_wake",
		Type:      RegionBox,
		Transform: t,
		Levels:    Levels{EdgeLength: rule.Levels.EdgeLength * 2, Level: level},
		Bounds:    bounds,
		Mode:      ModeInside,
		FeatureID: det.FeatureID,
	}
}

func mulElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}
