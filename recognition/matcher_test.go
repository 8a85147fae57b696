package recognition

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kwv/automesh/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newMatcher(t *testing.T, target *mesh.Mesh, method DescriptorMethod, coarse int) *Matcher {
	t.Helper()
	cfg := DefaultMatcherConfig()
	cfg.Descriptor.Method = method
	if coarse > 0 {
		cfg.CoarsePoints = coarse
	}
	m, err := NewMatcher(target, cfg)
	require.NoError(t, err)
	return m
}

func TestConfidenceFromDistance(t *testing.T) {
	tests := []struct {
		d    float64
		want float64
	}{
		{0, 1},
		{1, 0.5},
		{3, 0.25},
		{-2, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ConfidenceFromDistance(tt.d), 1e-12, "d=%g", tt.d)
	}
	assert.Less(t, ConfidenceFromDistance(math.MaxFloat64), 1e-300)

	prev := ConfidenceFromDistance(0)
	for d := 0.1; d < 10; d += 0.1 {
		c := ConfidenceFromDistance(d)
		assert.Less(t, c, prev, "confidence must decrease with distance")
		assert.Greater(t, c, 0.0)
		prev = c
	}
}

func TestMatchIdentityGeometric(t *testing.T) {
	sphere := mesh.UVSphere(1, 48, 24)
	m := newMatcher(t, sphere, DescriptorGeometric, 0)

	res := m.Match(sphere)
	assert.Greater(t, res.Confidence, 0.5)
	assert.Len(t, res.Correspondences, len(sphere.Vertices))
	assert.Len(t, res.TemplatePoints, len(sphere.Vertices))
	for _, idx := range res.Correspondences {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, len(m.TargetPoints()))
	}
	assert.Less(t, res.CoarseFeatureDistance, 1.0)

	scaled := sphere.Transformed(mesh.Transform{
		{1.01, 0, 0, 0},
		{0, 1.01, 0, 0},
		{0, 0, 1.01, 0},
		{0, 0, 0, 1},
	})
	assert.Greater(t, m.Match(scaled).Confidence, 0.5)
}

func TestMatchIdentityFPFH(t *testing.T) {
	sphere := mesh.UVSphere(1, 48, 24)
	m := newMatcher(t, sphere, DescriptorFPFH, 0)

	res := m.Match(sphere)
	assert.Greater(t, res.Confidence, 0.5)
	assert.Len(t, m.TargetPoints(), 500)
}

func TestMatchPrefersSameShape(t *testing.T) {
	sphere := mesh.UVSphere(1, 48, 24)
	// Box corners have no neighbours within the feature radius, so their
	// histograms are empty and far from any sphere histogram.
	box := mesh.Box(r3.Vec{X: 2, Y: 2, Z: 2})
	m := newMatcher(t, sphere, DescriptorFPFH, 1500)

	same := m.Match(sphere)
	other := m.Match(box)
	assert.Greater(t, same.Confidence, other.Confidence)
	assert.Less(t, same.MeanFeatureDistance, other.MeanFeatureDistance)
}

func TestMatchEmptyTemplate(t *testing.T) {
	m := newMatcher(t, mesh.UVSphere(1, 16, 8), DescriptorGeometric, 100)

	res := m.Match(&mesh.Mesh{})
	assert.Equal(t, math.MaxFloat64, res.MeanFeatureDistance)
	assert.Less(t, res.Confidence, 1e-300)
	assert.Empty(t, res.Correspondences)

	res = m.Match(nil)
	assert.Equal(t, math.MaxFloat64, res.MeanFeatureDistance)
}

func TestMatchEmptyTarget(t *testing.T) {
	m := newMatcher(t, &mesh.Mesh{}, DescriptorGeometric, 100)
	res := m.Match(mesh.UVSphere(1, 16, 8))
	assert.Equal(t, math.MaxFloat64, res.MeanFeatureDistance)
	assert.Empty(t, res.Correspondences)
}

func TestMatchDeterministicAndConcurrent(t *testing.T) {
	target := mesh.Merge(mesh.UVSphere(1, 24, 12), mesh.Box(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}).Transformed(mesh.Translation(r3.Vec{X: 2})))
	template := mesh.Cylinder(0.5, 1, 16)

	want := newMatcher(t, target, DescriptorFPFH, 300).Match(template)

	m := newMatcher(t, target, DescriptorFPFH, 300)
	results := make([]MatchResult, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Match(template)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("result %d differs (-want +got):\n%s", i, diff)
		}
	}
}

func TestNewMatcherInvalidConfig(t *testing.T) {
	cfg := DefaultMatcherConfig()
	cfg.Descriptor.FeatureRadius = 0.05
	_, err := NewMatcher(mesh.Box(r3.Vec{X: 1, Y: 1, Z: 1}), cfg)
	assert.Error(t, err)
}
