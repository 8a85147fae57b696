package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// degenerateArea is the face area below which a triangle counts as degenerate.
const degenerateArea = 1e-12

// QualityReport summarises basic mesh checks ahead of volume meshing.
type QualityReport struct {
	Watertight      bool    `json:"watertight"`
	VertexCount     int     `json:"vertex_count"`
	FaceCount       int     `json:"face_count"`
	DegenerateFaces int     `json:"degenerate_faces"`
	Bounds          r3.Box  `json:"bounds"`
	SurfaceArea     float64 `json:"surface_area"`
	// Volume is only computed for watertight meshes; it is 0 otherwise.
	Volume float64 `json:"volume"`
}

// CheckQuality inspects a mesh and reports counts, closure and degenerate faces.
func CheckQuality(m *Mesh) QualityReport {
	report := QualityReport{
		Watertight:  m.IsWatertight(),
		VertexCount: len(m.Vertices),
		FaceCount:   len(m.Faces),
		Bounds:      m.Bounds(),
		SurfaceArea: m.SurfaceArea(),
	}
	for i := range m.Faces {
		if m.FaceArea(i) < degenerateArea {
			report.DegenerateFaces++
		}
	}
	if report.Watertight {
		report.Volume = math.Abs(SignedVolume(m))
	}
	return report
}

// SignedVolume sums signed tetrahedron volumes against the origin. For a
// closed, outward-wound mesh this is the enclosed volume.
func SignedVolume(m *Mesh) float64 {
	var vol float64
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		vol += r3.Dot(a, r3.Cross(b, c)) / 6
	}
	return vol
}
