package mesh

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// SampleSurface draws n points uniformly by area over the mesh surface. Each
// sample carries the normal of the face it was drawn from.
//
// A mesh without faces, or whose faces have no area, falls back to its
// vertices (uniformly subsampled to n) with zero normals.
func SampleSurface(m *Mesh, n int, rng *rand.Rand) PointSample {
	if m == nil || n <= 0 || len(m.Vertices) == 0 {
		return PointSample{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(42))
	}

	cumulative := make([]float64, len(m.Faces))
	var total float64
	for i := range m.Faces {
		total += m.FaceArea(i)
		cumulative[i] = total
	}
	if total < 1e-15 {
		pts := subsample(m.Vertices, n)
		return PointSample{Points: pts, Normals: make([]r3.Vec, len(pts))}
	}

	sample := PointSample{
		Points:  make([]r3.Vec, n),
		Normals: make([]r3.Vec, n),
	}
	for i := 0; i < n; i++ {
		target := rng.Float64() * total
		face := sort.SearchFloat64s(cumulative, target)
		if face >= len(cumulative) {
			face = len(cumulative) - 1
		}
		a, b, c := m.Triangle(face)

		// Uniform barycentric point via the square-root trick.
		r1 := rng.Float64()
		r2 := rng.Float64()
		s := math.Sqrt(r1)
		u := 1 - s
		v := s * (1 - r2)
		w := s * r2
		sample.Points[i] = r3.Add(r3.Add(r3.Scale(u, a), r3.Scale(v, b)), r3.Scale(w, c))
		sample.Normals[i] = m.FaceNormal(face)
	}
	return sample
}

// VertexSample returns the mesh vertices in order together with vertex normals.
// Vertices of a face-less mesh get zero normals.
func VertexSample(m *Mesh) PointSample {
	if m == nil {
		return PointSample{}
	}
	pts := make([]r3.Vec, len(m.Vertices))
	copy(pts, m.Vertices)
	return PointSample{Points: pts, Normals: m.VertexNormals()}
}

// subsample picks max points at uniform index steps, keeping order.
func subsample(points []r3.Vec, max int) []r3.Vec {
	if len(points) <= max {
		out := make([]r3.Vec, len(points))
		copy(out, points)
		return out
	}
	result := make([]r3.Vec, max)
	if max == 1 {
		result[0] = points[0]
		return result
	}
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(float64(i) * step)
		result[i] = points[idx]
	}
	return result
}
