package mesh

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSaveLoadSTLWeldsVertices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "box.stl")
	box := Box(r3.Vec{X: 1, Y: 1, Z: 1})

	require.NoError(t, Save(box, path))
	got, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, got.Vertices, 8, "STL soup should be welded back to 8 corners")
	assert.Len(t, got.Faces, 12)
	assert.True(t, got.IsWatertight())
	assert.InDelta(t, 6.0, got.SurfaceArea(), 1e-6)
}

func TestSaveLoadOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cyl.obj")
	cyl := Cylinder(0.5, 1, 12)

	require.NoError(t, Save(cyl, path))
	got, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, got.Vertices, len(cyl.Vertices))
	assert.Equal(t, cyl.Faces, got.Faces)
	for i := range cyl.Vertices {
		assert.InDelta(t, 0.0, Distance(cyl.Vertices[i], got.Vertices[i]), 1e-9)
	}
}

func TestReadOBJPolygonsAndIndexForms(t *testing.T) {
	src := `# quad with mixed index forms
o first
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vn 0 0 1
f 1/1/1 2//1 3 4
o second
v 0 0 1
v 1 0 1
v 0 1 1
f -3 -2 -1
`
	m, err := ReadOBJ(strings.NewReader(src))
	require.NoError(t, err)

	assert.Len(t, m.Vertices, 7)
	assert.Equal(t, []Face{{0, 1, 2}, {0, 2, 3}, {4, 5, 6}}, m.Faces)
}

func TestReadOBJErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"short vertex", "v 1 2\n"},
		{"bad coordinate", "v 1 x 2\n"},
		{"short face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
		{"out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n"},
		{"non numeric index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf a b c\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadOBJ(strings.NewReader(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load("model.ply")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	err = Save(Box(r3.Vec{X: 1, Y: 1, Z: 1}), filepath.Join(t.TempDir(), "box.step"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.stl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mesh file not found")
}

func TestLoadCorruptSTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.stl")
	require.NoError(t, os.WriteFile(path, []byte("not an stl"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteSTLStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSTL(&buf, Box(r3.Vec{X: 1, Y: 1, Z: 1})))

	assert.NotZero(t, buf.Len())

	m, err := ReadSTL(&buf)
	require.NoError(t, err)
	assert.Len(t, m.Faces, 12)
}
