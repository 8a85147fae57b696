package mesh

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrFaceIndex is returned when a face references a vertex that does not exist.
var ErrFaceIndex = errors.New("face index out of range")

// Face is a triangle referencing three vertex indices.
type Face [3]int

// Mesh is an indexed triangle mesh. It is treated as immutable once built;
// Transformed and Merge return new meshes.
type Mesh struct {
	Vertices []r3.Vec
	Faces    []Face
}

// PointSample is an ordered point set with optional per-point normals.
// When Normals is non-nil it has the same length as Points.
type PointSample struct {
	Points  []r3.Vec
	Normals []r3.Vec
}

// Len returns the number of points in the sample.
func (s PointSample) Len() int {
	return len(s.Points)
}

// HasNormals reports whether the sample carries per-point normals.
func (s PointSample) HasNormals() bool {
	return len(s.Normals) == len(s.Points) && len(s.Points) > 0
}

// Centroid returns the mean of the sample points, or the zero vector when empty.
func (s PointSample) Centroid() r3.Vec {
	return Centroid(s.Points)
}

// New builds a mesh and validates that every face index is in range.
func New(vertices []r3.Vec, faces []Face) (*Mesh, error) {
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return nil, fmt.Errorf("face %d references vertex %d of %d: %w", i, idx, len(vertices), ErrFaceIndex)
			}
		}
	}
	return &Mesh{Vertices: vertices, Faces: faces}, nil
}

// Triangle returns the three corner positions of face i.
func (m *Mesh) Triangle(i int) (a, b, c r3.Vec) {
	f := m.Faces[i]
	return m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
}

// FaceNormal returns the unit normal of face i, or the zero vector for a
// degenerate triangle.
func (m *Mesh) FaceNormal(i int) r3.Vec {
	a, b, c := m.Triangle(i)
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(n)
	if l < 1e-15 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}

// FaceArea returns the area of face i.
func (m *Mesh) FaceArea(i int) float64 {
	a, b, c := m.Triangle(i)
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// SurfaceArea returns the total triangle area.
func (m *Mesh) SurfaceArea() float64 {
	var total float64
	for i := range m.Faces {
		total += m.FaceArea(i)
	}
	return total
}

// Bounds returns the axis-aligned bounding box of the vertices.
// An empty mesh returns the zero box.
func (m *Mesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	box := r3.Box{
		Min: r3.Vec{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max: r3.Vec{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
	for _, v := range m.Vertices {
		box.Min.X = math.Min(box.Min.X, v.X)
		box.Min.Y = math.Min(box.Min.Y, v.Y)
		box.Min.Z = math.Min(box.Min.Z, v.Z)
		box.Max.X = math.Max(box.Max.X, v.X)
		box.Max.Y = math.Max(box.Max.Y, v.Y)
		box.Max.Z = math.Max(box.Max.Z, v.Z)
	}
	return box
}

// Extents returns the size of the bounding box along each axis.
func (m *Mesh) Extents() r3.Vec {
	b := m.Bounds()
	return r3.Sub(b.Max, b.Min)
}

// Centroid returns the area-weighted centroid of the surface. Meshes without
// faces, or whose faces have no area, fall back to the vertex mean.
func (m *Mesh) Centroid() r3.Vec {
	var sum r3.Vec
	var total float64
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		area := m.FaceArea(i)
		center := r3.Scale(1.0/3.0, r3.Add(r3.Add(a, b), c))
		sum = r3.Add(sum, r3.Scale(area, center))
		total += area
	}
	if total < 1e-15 {
		return Centroid(m.Vertices)
	}
	return r3.Scale(1/total, sum)
}

// IsWatertight reports whether the mesh is closed with consistent winding:
// every directed edge appears exactly once and so does its reverse.
func (m *Mesh) IsWatertight() bool {
	if len(m.Faces) == 0 {
		return false
	}
	directed := make(map[[2]int]int, len(m.Faces)*3)
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			if a == b {
				return false
			}
			directed[[2]int{a, b}]++
		}
	}
	for edge, count := range directed {
		if count != 1 {
			return false
		}
		if directed[[2]int{edge[1], edge[0]}] != 1 {
			return false
		}
	}
	return true
}

// VertexNormals returns area-weighted vertex normals. Vertices not touched by
// any face get the zero vector.
func (m *Mesh) VertexNormals() []r3.Vec {
	normals := make([]r3.Vec, len(m.Vertices))
	for i, f := range m.Faces {
		a, b, c := m.Triangle(i)
		// Cross product magnitude is twice the area, which is the weighting we want.
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		for _, idx := range f {
			normals[idx] = r3.Add(normals[idx], n)
		}
	}
	for i, n := range normals {
		if l := r3.Norm(n); l > 1e-15 {
			normals[i] = r3.Scale(1/l, n)
		} else {
			normals[i] = r3.Vec{}
		}
	}
	return normals
}

// Transformed returns a copy of the mesh with every vertex mapped through t.
func (m *Mesh) Transformed(t Transform) *Mesh {
	vertices := make([]r3.Vec, len(m.Vertices))
	for i, v := range m.Vertices {
		vertices[i] = t.Apply(v)
	}
	faces := make([]Face, len(m.Faces))
	copy(faces, m.Faces)
	return &Mesh{Vertices: vertices, Faces: faces}
}

// Merge concatenates meshes into one vertex/face set, offsetting face indices.
func Merge(meshes ...*Mesh) *Mesh {
	out := &Mesh{}
	for _, m := range meshes {
		if m == nil {
			continue
		}
		offset := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, f := range m.Faces {
			out.Faces = append(out.Faces, Face{f[0] + offset, f[1] + offset, f[2] + offset})
		}
	}
	return out
}

// Centroid calculates the mean of a set of points.
func Centroid(points []r3.Vec) r3.Vec {
	if len(points) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for _, p := range points {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(points)), sum)
}

// Distance calculates Euclidean distance between two points.
func Distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}
