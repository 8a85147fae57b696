package recognition

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// indexedPoint is a k-d tree element that remembers its position in the
// caller's slice, since kdtree.New reorders its input.
type indexedPoint struct {
	vec   []float64
	index int
}

// Compare returns the signed distance of p from the plane through c
// perpendicular to dimension d.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	return p.vec[d] - q.vec[d]
}

func (p indexedPoint) Dims() int { return len(p.vec) }

// Distance returns the squared Euclidean distance.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	var sum float64
	for i, v := range p.vec {
		d := v - q.vec[i]
		sum += d * d
	}
	return sum
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p indexedPoints) Len() int                      { return len(p) }

// Pivot sorts p along d and returns the median position. The tree shape
// depends only on the input order.
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return indexedPlane{Dim: d, indexedPoints: p}.Pivot()
}
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// indexedPlane orders points along one dimension, ties broken by original
// position, for median pivoting.
type indexedPlane struct {
	kdtree.Dim
	indexedPoints
}

func (p indexedPlane) Less(i, j int) bool {
	a, b := p.indexedPoints[i], p.indexedPoints[j]
	if a.vec[p.Dim] != b.vec[p.Dim] {
		return a.vec[p.Dim] < b.vec[p.Dim]
	}
	return a.index < b.index
}
func (p indexedPlane) Pivot() int {
	sort.Sort(p)
	return len(p.indexedPoints) / 2
}
func (p indexedPlane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// Neighbor is one nearest-neighbour hit: the position of the vector in the
// slice the index was built from, and its Euclidean distance to the query.
type Neighbor struct {
	Index int
	Dist  float64
}

// Index is a static k-d tree over equal-width vectors. It is read-only after
// construction and safe for concurrent queries.
type Index struct {
	tree *kdtree.Tree
	dims int
	n    int
}

// NewIndex builds an index over vectors; the slice is not retained.
func NewIndex(vectors [][]float64) *Index {
	ix := &Index{n: len(vectors)}
	if len(vectors) == 0 {
		return ix
	}
	ix.dims = len(vectors[0])
	pts := make(indexedPoints, len(vectors))
	for i, v := range vectors {
		c := make([]float64, len(v))
		copy(c, v)
		pts[i] = indexedPoint{vec: c, index: i}
	}
	ix.tree = kdtree.New(pts, false)
	return ix
}

// NewPointIndex builds a 3-D index over positions.
func NewPointIndex(points []r3.Vec) *Index {
	vectors := make([][]float64, len(points))
	for i, p := range points {
		vectors[i] = []float64{p.X, p.Y, p.Z}
	}
	return NewIndex(vectors)
}

// NewDescriptorIndex builds a DescriptorDim-wide index over a descriptor set.
func NewDescriptorIndex(set DescriptorSet) *Index {
	vectors := make([][]float64, len(set))
	for i := range set {
		vectors[i] = set[i][:]
	}
	return NewIndex(vectors)
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return ix.n }

// Nearest returns the position of the closest indexed vector and its distance.
// Equidistant vectors resolve to the lowest position. An empty index returns
// (-1, math.MaxFloat64).
func (ix *Index) Nearest(q []float64) (int, float64) {
	if ix.tree == nil {
		return -1, math.MaxFloat64
	}
	query := indexedPoint{vec: q, index: -1}
	c, d := ix.tree.Nearest(query)
	if c == nil {
		return -1, math.MaxFloat64
	}

	best := c.(indexedPoint).index
	keeper := kdtree.NewDistKeeper(d)
	ix.tree.NearestSet(keeper, query)
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil || cd.Dist > d {
			continue
		}
		if idx := cd.Comparable.(indexedPoint).index; idx < best {
			best = idx
		}
	}
	return best, math.Sqrt(d)
}

// NearestPoint is Nearest for a 3-D position.
func (ix *Index) NearestPoint(p r3.Vec) (int, float64) {
	return ix.Nearest([]float64{p.X, p.Y, p.Z})
}

// KNearest returns up to k neighbours of q ordered by increasing distance.
// A positive radius drops hits farther than radius.
func (ix *Index) KNearest(q []float64, k int, radius float64) []Neighbor {
	if ix.tree == nil || k <= 0 {
		return nil
	}
	keeper := kdtree.NewNKeeper(k)
	ix.tree.NearestSet(keeper, indexedPoint{vec: q, index: -1})

	limit := math.Inf(1)
	if radius > 0 {
		limit = radius * radius
	}
	out := make([]Neighbor, 0, len(keeper.Heap))
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil || cd.Dist > limit {
			continue
		}
		out = append(out, Neighbor{Index: cd.Comparable.(indexedPoint).index, Dist: math.Sqrt(cd.Dist)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist != out[j].Dist {
			return out[i].Dist < out[j].Dist
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// KNearestPoint is KNearest for a 3-D position.
func (ix *Index) KNearestPoint(p r3.Vec, k int, radius float64) []Neighbor {
	return ix.KNearest([]float64{p.X, p.Y, p.Z}, k, radius)
}
