// Package qa scores generated refinement output.
package qa

import (
	"math"
	"sort"

	"github.com/kwv/automesh/cfd"
	"github.com/kwv/automesh/recognition"
	"gonum.org/v1/gonum/spatial/r3"
)

// IoU3D returns the intersection over union of two axis-aligned boxes.
// Disjoint boxes and boxes with no volume give 0.
func IoU3D(a, b r3.Box) float64 {
	lo := r3.Vec{X: math.Max(a.Min.X, b.Min.X), Y: math.Max(a.Min.Y, b.Min.Y), Z: math.Max(a.Min.Z, b.Min.Z)}
	hi := r3.Vec{X: math.Min(a.Max.X, b.Max.X), Y: math.Min(a.Max.Y, b.Max.Y), Z: math.Min(a.Max.Z, b.Max.Z)}
	if hi.X < lo.X || hi.Y < lo.Y || hi.Z < lo.Z {
		return 0
	}
	inter := volume(r3.Box{Min: lo, Max: hi})
	union := volume(a) + volume(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func volume(b r3.Box) float64 {
	d := r3.Sub(b.Max, b.Min)
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return 0
	}
	return d.X * d.Y * d.Z
}

// Overlap is a pair of outputs whose boxes intersect.
type Overlap struct {
	A   string  `json:"a"`
	B   string  `json:"b"`
	IoU float64 `json:"iou"`
}

// OverlappingRegions reports every pair of regions whose global bounding
// boxes have an IoU above threshold, highest first.
func OverlappingRegions(regions []cfd.RefinementRegion, threshold float64) []Overlap {
	boxes := make([]r3.Box, len(regions))
	for i, r := range regions {
		boxes[i] = r.GlobalBounds()
	}
	var out []Overlap
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if iou := IoU3D(boxes[i], boxes[j]); iou > threshold {
				out = append(out, Overlap{A: regions[i].Name, B: regions[j].Name, IoU: iou})
			}
		}
	}
	sortOverlaps(out)
	return out
}

// DuplicateDetections reports detection pairs whose template boxes, placed
// by their transforms, overlap above threshold. The ensemble keeps such
// duplicates; this makes them visible. Detections without extent metadata
// are skipped.
func DuplicateDetections(dets []recognition.DetectionResult, threshold float64) []Overlap {
	type placed struct {
		id  string
		box r3.Box
	}
	var boxes []placed
	for _, d := range dets {
		ext := r3.Vec{
			X: d.Metadata[recognition.MetaExtentX],
			Y: d.Metadata[recognition.MetaExtentY],
			Z: d.Metadata[recognition.MetaExtentZ],
		}
		if ext.X <= 0 || ext.Y <= 0 || ext.Z <= 0 {
			continue
		}
		half := r3.Scale(0.5, ext)
		region := cfd.RefinementRegion{
			Transform: d.Transform,
			Bounds:    r3.Box{Min: r3.Scale(-1, half), Max: half},
		}
		boxes = append(boxes, placed{id: d.FeatureID, box: region.GlobalBounds()})
	}

	var out []Overlap
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if iou := IoU3D(boxes[i].box, boxes[j].box); iou > threshold {
				out = append(out, Overlap{A: boxes[i].id, B: boxes[j].id, IoU: iou})
			}
		}
	}
	sortOverlaps(out)
	return out
}

func sortOverlaps(o []Overlap) {
	sort.SliceStable(o, func(i, j int) bool { return o[i].IoU > o[j].IoU })
}
