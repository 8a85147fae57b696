package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unixpickle/model3d/model3d"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnsupportedFormat is returned for mesh files whose extension is not
// .stl or .obj.
var ErrUnsupportedFormat = errors.New("unsupported mesh format")

// Load reads a triangle mesh from disk. The format is chosen by extension.
// STL triangle soups have identical vertices welded; OBJ files with several
// objects or groups are merged into one mesh.
func Load(path string) (*Mesh, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".stl" && ext != ".obj" {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("mesh file not found: %s", path)
		}
		return nil, fmt.Errorf("opening mesh file: %w", err)
	}
	defer f.Close()

	var m *Mesh
	switch ext {
	case ".stl":
		m, err = ReadSTL(f)
	case ".obj":
		m, err = ReadOBJ(f)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}

// Save writes a mesh to disk in the format named by the extension.
func Save(m *Mesh, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".stl" && ext != ".obj" {
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating mesh file: %w", err)
	}
	w := bufio.NewWriter(f)
	switch ext {
	case ".stl":
		err = WriteSTL(w, m)
	case ".obj":
		err = WriteOBJ(w, m)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadSTL decodes a binary or ASCII STL stream and welds identical vertices.
func ReadSTL(r io.Reader) (*Mesh, error) {
	triangles, err := model3d.ReadSTL(r)
	if err != nil {
		return nil, err
	}
	m := &Mesh{}
	index := make(map[r3.Vec]int, len(triangles))
	weld := func(c model3d.Coord3D) int {
		v := r3.Vec{X: c.X, Y: c.Y, Z: c.Z}
		if idx, ok := index[v]; ok {
			return idx
		}
		idx := len(m.Vertices)
		m.Vertices = append(m.Vertices, v)
		index[v] = idx
		return idx
	}
	for _, t := range triangles {
		m.Faces = append(m.Faces, Face{weld(t[0]), weld(t[1]), weld(t[2])})
	}
	return m, nil
}

// WriteSTL encodes the mesh as a binary STL stream.
func WriteSTL(w io.Writer, m *Mesh) error {
	triangles := make([]*model3d.Triangle, len(m.Faces))
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		triangles[i] = &model3d.Triangle{toCoord(a), toCoord(b), toCoord(c)}
	}
	return model3d.WriteSTL(w, triangles)
}

func toCoord(v r3.Vec) model3d.Coord3D {
	return model3d.Coord3D{X: v.X, Y: v.Y, Z: v.Z}
}

// ReadOBJ parses the vertex and face records of a Wavefront OBJ stream.
// Polygons are fan-triangulated; texture and normal references are ignored,
// and negative (relative) indices are resolved.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", line)
			}
			var coords [3]float64
			for i := 0; i < 3; i++ {
				val, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: parsing vertex: %w", line, err)
				}
				coords[i] = val
			}
			m.Vertices = append(m.Vertices, r3.Vec{X: coords[0], Y: coords[1], Z: coords[2]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := parseOBJIndex(ref, len(m.Vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				idx = append(idx, i)
			}
			for k := 1; k+1 < len(idx); k++ {
				m.Faces = append(m.Faces, Face{idx[0], idx[k], idx[k+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(m.Vertices, m.Faces)
}

// parseOBJIndex resolves a "v", "v/vt", "v//vn" or "v/vt/vn" reference to a
// zero-based vertex index.
func parseOBJIndex(ref string, count int) (int, error) {
	if slash := strings.IndexByte(ref, '/'); slash >= 0 {
		ref = ref[:slash]
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("parsing face index %q: %w", ref, err)
	}
	switch {
	case n > 0:
		n--
	case n < 0:
		n = count + n
	default:
		return 0, fmt.Errorf("face index 0 is invalid: %w", ErrFaceIndex)
	}
	if n < 0 || n >= count {
		return 0, fmt.Errorf("face index %s of %d: %w", ref, count, ErrFaceIndex)
	}
	return n, nil
}

// WriteOBJ encodes the mesh as a Wavefront OBJ stream.
func WriteOBJ(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	for _, f := range m.Faces {
		fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return bw.Flush()
}
