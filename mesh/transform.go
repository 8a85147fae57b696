package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a 4x4 homogeneous transform stored row-major.
// Rigid transforms keep a rotation in the upper-left 3x3, the translation in
// the last column and [0 0 0 1] in the bottom row.
type Transform [4][4]float64

// Identity returns an identity transform (no transformation)
func Identity() Transform {
	return Transform{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Translation creates a translation-only transform
func Translation(v r3.Vec) Transform {
	t := Identity()
	t.SetTranslation(v)
	return t
}

// FromRotation builds a rigid transform from a row-major 3x3 rotation and a translation.
func FromRotation(rot [3][3]float64, translation r3.Vec) Transform {
	t := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] = rot[i][j]
		}
	}
	t.SetTranslation(translation)
	return t
}

// RotationAbout creates a rotation of angle radians about a unit axis
// (Rodrigues' formula), with no translation.
func RotationAbout(axis r3.Vec, angle float64) Transform {
	n := r3.Norm(axis)
	if n < 1e-15 {
		return Identity()
	}
	k := r3.Scale(1/n, axis)
	c, s := math.Cos(angle), math.Sin(angle)
	v := 1 - c
	rot := [3][3]float64{
		{c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s},
		{k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s},
		{k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v},
	}
	return FromRotation(rot, r3.Vec{})
}

// Rotation returns the upper-left 3x3 block.
func (t Transform) Rotation() [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = t[i][j]
		}
	}
	return r
}

// Column returns column j (0..2) of the rotation block as a vector.
func (t Transform) Column(j int) r3.Vec {
	return r3.Vec{X: t[0][j], Y: t[1][j], Z: t[2][j]}
}

// Translate returns the translation column.
func (t Transform) Translate() r3.Vec {
	return r3.Vec{X: t[0][3], Y: t[1][3], Z: t[2][3]}
}

// SetTranslation overwrites the translation column.
func (t *Transform) SetTranslation(v r3.Vec) {
	t[0][3], t[1][3], t[2][3] = v.X, v.Y, v.Z
}

// Apply maps a point through the transform.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0][0]*p.X + t[0][1]*p.Y + t[0][2]*p.Z + t[0][3],
		Y: t[1][0]*p.X + t[1][1]*p.Y + t[1][2]*p.Z + t[1][3],
		Z: t[2][0]*p.X + t[2][1]*p.Y + t[2][2]*p.Z + t[2][3],
	}
}

// Rotate maps a direction through the rotation block only.
func (t Transform) Rotate(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0][0]*v.X + t[0][1]*v.Y + t[0][2]*v.Z,
		Y: t[1][0]*v.X + t[1][1]*v.Y + t[1][2]*v.Z,
		Z: t[2][0]*v.X + t[2][1]*v.Y + t[2][2]*v.Z,
	}
}

// ApplyAll maps every point through the transform.
func (t Transform) ApplyAll(points []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(points))
	for i, p := range points {
		out[i] = t.Apply(p)
	}
	return out
}

// Mul composes two transforms: result = t * o.
// Applying result is equivalent to applying o first, then t.
func (t Transform) Mul(o Transform) Transform {
	var r Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += t[i][k] * o[k][j]
			}
			r[i][j] = s
		}
	}
	return r
}

// IsRigid reports whether the rotation block is orthonormal with determinant +1
// and the bottom row is [0 0 0 1], within tol.
func (t Transform) IsRigid(tol float64) bool {
	if math.Abs(t[3][0]) > tol || math.Abs(t[3][1]) > tol || math.Abs(t[3][2]) > tol || math.Abs(t[3][3]-1) > tol {
		return false
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d := r3.Dot(t.Column(i), t.Column(j))
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(d-want) > tol {
				return false
			}
		}
	}
	return math.Abs(det3(t.Rotation())-1) <= tol
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}
