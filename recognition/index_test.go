package recognition

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func randomPoints(n int, seed int64) []r3.Vec {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
	}
	return pts
}

func bruteNearest(pts []r3.Vec, q r3.Vec) (int, float64) {
	best, bestD := -1, math.MaxFloat64
	for i, p := range pts {
		if d := r3.Norm(r3.Sub(p, q)); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

func TestIndexNearestMatchesBruteForce(t *testing.T) {
	pts := randomPoints(400, 1)
	ix := NewPointIndex(pts)
	require.Equal(t, 400, ix.Len())

	for _, q := range randomPoints(100, 2) {
		wantIdx, wantD := bruteNearest(pts, q)
		gotIdx, gotD := ix.NearestPoint(q)
		assert.Equal(t, wantIdx, gotIdx)
		assert.InDelta(t, wantD, gotD, 1e-12)
	}
}

func TestIndexKeepsOriginalPositions(t *testing.T) {
	pts := []r3.Vec{{X: 5}, {X: 1}, {X: 3}, {X: 2}, {X: 4}}
	ix := NewPointIndex(pts)

	for i, p := range pts {
		idx, d := ix.NearestPoint(p)
		assert.Equal(t, i, idx)
		assert.Zero(t, d)
	}
	assert.Equal(t, r3.Vec{X: 5}, pts[0], "input must not be reordered")
}

func TestIndexKNearest(t *testing.T) {
	pts := make([]r3.Vec, 10)
	for i := range pts {
		pts[i] = r3.Vec{X: float64(i)}
	}
	ix := NewPointIndex(pts)

	got := ix.KNearestPoint(r3.Vec{X: 4.1}, 3, 0)
	require.Len(t, got, 3)
	assert.Equal(t, 4, got[0].Index)
	assert.Equal(t, 5, got[1].Index)
	assert.Equal(t, 3, got[2].Index)
	assert.InDelta(t, 0.1, got[0].Dist, 1e-12)

	// The radius cut drops hits beyond 1.0 even though k allows more.
	got = ix.KNearestPoint(r3.Vec{X: 4}, 10, 1.0)
	require.Len(t, got, 3)
	for _, nb := range got {
		assert.LessOrEqual(t, nb.Dist, 1.0)
	}

	// Fewer points than k.
	assert.Len(t, ix.KNearestPoint(r3.Vec{}, 50, 0), 10)
	assert.Empty(t, ix.KNearestPoint(r3.Vec{}, 0, 0))
}

func TestIndexHighDimensional(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	set := make(DescriptorSet, 200)
	for i := range set {
		for j := range set[i] {
			set[i][j] = rng.Float64()
		}
	}
	ix := NewDescriptorIndex(set)

	for i := 0; i < 20; i++ {
		q := set[i*7]
		idx, d := ix.Nearest(q[:])
		assert.Equal(t, i*7, idx)
		assert.Zero(t, d)
	}
}

func TestEmptyIndex(t *testing.T) {
	ix := NewIndex(nil)
	assert.Equal(t, 0, ix.Len())

	idx, d := ix.Nearest([]float64{1, 2, 3})
	assert.Equal(t, -1, idx)
	assert.Equal(t, math.MaxFloat64, d)
	assert.Nil(t, ix.KNearest([]float64{1, 2, 3}, 5, 0))
}

func TestIndexNearestTiesResolveToLowestPosition(t *testing.T) {
	// Many duplicates so ties land on both sides of several split planes.
	var vectors [][]float64
	for i := 0; i < 60; i++ {
		vectors = append(vectors, []float64{float64(i % 3), float64(i % 2), 0})
	}
	for build := 0; build < 5; build++ {
		ix := NewIndex(vectors)
		for want := 0; want < 6; want++ {
			idx, d := ix.Nearest(vectors[want])
			assert.Equal(t, want, idx, "build %d", build)
			assert.Zero(t, d)
		}
		// Equidistant from {0,0,0} and {1,0,0}.
		idx, d := ix.Nearest([]float64{0.5, 0, 0})
		assert.Equal(t, 0, idx, "build %d", build)
		assert.InDelta(t, 0.5, d, 1e-12)
	}
}

func TestIndexRebuildGivesSameAnswers(t *testing.T) {
	pts := randomPoints(300, 3)
	// Coarse grid snapping creates many exact ties.
	for i := range pts {
		pts[i] = r3.Vec{X: math.Round(pts[i].X * 4), Y: math.Round(pts[i].Y * 4), Z: math.Round(pts[i].Z * 4)}
	}
	queries := randomPoints(50, 4)
	for i := range queries {
		queries[i] = r3.Scale(4, queries[i])
	}

	first := NewPointIndex(pts)
	for build := 0; build < 5; build++ {
		again := NewPointIndex(pts)
		for _, q := range queries {
			wantIdx, wantD := first.NearestPoint(q)
			gotIdx, gotD := again.NearestPoint(q)
			assert.Equal(t, wantIdx, gotIdx)
			assert.Equal(t, wantD, gotD)
			assert.Equal(t, first.KNearestPoint(q, 5, 0), again.KNearestPoint(q, 5, 0))
		}
	}
}
