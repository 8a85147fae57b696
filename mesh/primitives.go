package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box builds a closed axis-aligned box centred on the origin with the given
// edge lengths. Faces wind counter-clockwise when seen from outside.
func Box(extents r3.Vec) *Mesh {
	h := r3.Scale(0.5, extents)
	vertices := make([]r3.Vec, 8)
	for i := range vertices {
		v := r3.Vec{X: -h.X, Y: -h.Y, Z: -h.Z}
		if i&1 != 0 {
			v.X = h.X
		}
		if i&2 != 0 {
			v.Y = h.Y
		}
		if i&4 != 0 {
			v.Z = h.Z
		}
		vertices[i] = v
	}
	faces := []Face{
		{0, 2, 1}, {1, 2, 3}, // -z
		{4, 5, 6}, {5, 7, 6}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{2, 6, 7}, {2, 7, 3}, // +y
		{0, 4, 6}, {0, 6, 2}, // -x
		{1, 3, 7}, {1, 7, 5}, // +x
	}
	return &Mesh{Vertices: vertices, Faces: faces}
}

// Cylinder builds a closed cylinder along Z centred on the origin.
// sections below 3 are raised to 3.
func Cylinder(radius, height float64, sections int) *Mesh {
	if sections < 3 {
		sections = 3
	}
	s := sections
	vertices := make([]r3.Vec, 0, 2*s+2)
	for i := 0; i < s; i++ {
		theta := 2 * math.Pi * float64(i) / float64(s)
		vertices = append(vertices, r3.Vec{X: radius * math.Cos(theta), Y: radius * math.Sin(theta), Z: -height / 2})
	}
	for i := 0; i < s; i++ {
		theta := 2 * math.Pi * float64(i) / float64(s)
		vertices = append(vertices, r3.Vec{X: radius * math.Cos(theta), Y: radius * math.Sin(theta), Z: height / 2})
	}
	bottom, top := 2*s, 2*s+1
	vertices = append(vertices, r3.Vec{Z: -height / 2}, r3.Vec{Z: height / 2})

	faces := make([]Face, 0, 4*s)
	for i := 0; i < s; i++ {
		j := (i + 1) % s
		bi, bj, ti, tj := i, j, s+i, s+j
		faces = append(faces,
			Face{bi, bj, tj},
			Face{bi, tj, ti},
			Face{bottom, bj, bi},
			Face{top, ti, tj},
		)
	}
	return &Mesh{Vertices: vertices, Faces: faces}
}

// UVSphere builds a closed latitude/longitude sphere centred on the origin.
// segments is the number of meridians (min 3) and rings the number of
// latitude bands (min 2).
func UVSphere(radius float64, segments, rings int) *Mesh {
	if segments < 3 {
		segments = 3
	}
	if rings < 2 {
		rings = 2
	}
	vertices := []r3.Vec{{Z: radius}}
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			vertices = append(vertices, r3.Vec{
				X: radius * math.Sin(phi) * math.Cos(theta),
				Y: radius * math.Sin(phi) * math.Sin(theta),
				Z: radius * math.Cos(phi),
			})
		}
	}
	south := len(vertices)
	vertices = append(vertices, r3.Vec{Z: -radius})

	at := func(r, s int) int {
		return 1 + (r-1)*segments + s%segments
	}
	var faces []Face
	for s := 0; s < segments; s++ {
		faces = append(faces, Face{0, at(1, s), at(1, s+1)})
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			faces = append(faces,
				Face{at(r, s), at(r+1, s), at(r+1, s+1)},
				Face{at(r, s), at(r+1, s+1), at(r, s+1)},
			)
		}
	}
	for s := 0; s < segments; s++ {
		faces = append(faces, Face{at(rings-1, s), south, at(rings-1, s+1)})
	}
	return &Mesh{Vertices: vertices, Faces: faces}
}

// WheelTemplate builds a wheel of the given outer diameter and tyre width:
// a tyre cylinder, a recessed rim and five spokes. The axle is the local Y axis.
func WheelTemplate(diameter, width float64) *Mesh {
	tyre := Cylinder(diameter/2, width, 32)
	rim := Cylinder(diameter*0.35/2, width*0.6, 32)
	parts := []*Mesh{tyre, rim}
	for i := 0; i < 5; i++ {
		angle := 2 * math.Pi * float64(i) / 5
		spoke := Box(r3.Vec{X: diameter * 0.05, Y: diameter * 0.4, Z: width * 0.3})
		parts = append(parts, spoke.Transformed(RotationAbout(r3.Vec{Z: 1}, angle)))
	}
	return Merge(parts...).Transformed(RotationAbout(r3.Vec{X: 1}, math.Pi/2))
}

// MirrorTemplate builds a side mirror: housing, glass and mounting arm.
func MirrorTemplate(height, width float64) *Mesh {
	housing := Box(r3.Vec{X: width, Y: height * 0.5, Z: height})
	glass := Box(r3.Vec{X: width * 0.05, Y: height * 0.8, Z: height * 0.8}).
		Transformed(Translation(r3.Vec{X: width * 0.4}))
	arm := Cylinder(height*0.1, height*0.3, 16).
		Transformed(Translation(r3.Vec{X: -width * 0.6}).Mul(RotationAbout(r3.Vec{Y: 1}, math.Pi/2)))
	return Merge(housing, glass, arm)
}

// IntakeTemplate builds an air intake: outer frame and inner duct along Z.
func IntakeTemplate(diameter, depth float64) *Mesh {
	outer := Cylinder(diameter/2, depth, 16)
	inner := Cylinder(diameter*0.4/2, depth*1.2, 16)
	return Merge(outer, inner)
}

// NamedMesh pairs a file name with a generated mesh.
type NamedMesh struct {
	Name string
	Mesh *Mesh
}

// AutomotiveTemplates returns the standard template library. File names follow
// the {type}_{variant}.stl convention used to label detections.
func AutomotiveTemplates() []NamedMesh {
	return []NamedMesh{
		{Name: "wheel_16inch.stl", Mesh: WheelTemplate(0.65, 0.225)},
		{Name: "wheel_18inch.stl", Mesh: WheelTemplate(0.72, 0.245)},
		{Name: "wheel_20inch.stl", Mesh: WheelTemplate(0.80, 0.265)},
		{Name: "mirror_standard.stl", Mesh: MirrorTemplate(0.15, 0.20)},
		{Name: "mirror_compact.stl", Mesh: MirrorTemplate(0.12, 0.16)},
		{Name: "intake_standard.stl", Mesh: IntakeTemplate(0.10, 0.15)},
		{Name: "intake_large.stl", Mesh: IntakeTemplate(0.15, 0.20)},
	}
}

// MockVehicle builds a simplified car: a body box raised above the ground,
// four wheels with lateral (Y) axles and two mirrors.
func MockVehicle() *Mesh {
	body := Box(r3.Vec{X: 4.5, Y: 1.8, Z: 1.4}).Transformed(Translation(r3.Vec{Z: 0.7}))
	parts := []*Mesh{body}
	wheel := Cylinder(0.325, 0.225, 16).Transformed(RotationAbout(r3.Vec{X: 1}, math.Pi/2))
	for _, pos := range []r3.Vec{
		{X: 1.3, Y: -0.9, Z: 0.3},
		{X: 1.3, Y: 0.9, Z: 0.3},
		{X: -1.3, Y: -0.9, Z: 0.3},
		{X: -1.3, Y: 0.9, Z: 0.3},
	} {
		parts = append(parts, wheel.Transformed(Translation(pos)))
	}
	mirror := Box(r3.Vec{X: 0.15, Y: 0.08, Z: 0.12})
	for _, pos := range []r3.Vec{{X: 1.5, Y: -1.0, Z: 1.2}, {X: 1.5, Y: 1.0, Z: 1.2}} {
		parts = append(parts, mirror.Transformed(Translation(pos)))
	}
	return Merge(parts...)
}
