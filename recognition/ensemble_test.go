package recognition

import (
	"context"
	"errors"
	"testing"

	"github.com/kwv/automesh/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDetector struct{ err error }

func (f failingDetector) Name() string { return "failing" }
func (f failingDetector) Detect(context.Context, *mesh.Mesh) ([]DetectionResult, error) {
	return nil, f.err
}

func TestEnsembleMergesByConfidence(t *testing.T) {
	a := NewFixedDetector("a", []DetectionResult{
		{FeatureID: "a1", Confidence: 0.4},
		{FeatureID: "a2", Confidence: 0.9},
	})
	b := NewFixedDetector("b", []DetectionResult{
		{FeatureID: "b1", Confidence: 0.4},
		{FeatureID: "b2", Confidence: 0.6},
	})

	dets, err := NewEnsemble(nil, a, b).Detect(context.Background(), &mesh.Mesh{})
	require.NoError(t, err)

	var ids []string
	for _, d := range dets {
		ids = append(ids, d.FeatureID)
	}
	// Equal confidences keep detector order.
	assert.Equal(t, []string{"a2", "b2", "a1", "b1"}, ids)
	assert.Equal(t, "a", dets[0].Detector)
	assert.Equal(t, "b", dets[1].Detector)
}

func TestEnsembleKeepsOverlappingDetections(t *testing.T) {
	same := DetectionResult{FeatureID: "wheel", Transform: mesh.Identity(), Confidence: 0.8}
	e := NewEnsemble(nil,
		NewFixedDetector("a", []DetectionResult{same}),
		NewFixedDetector("b", []DetectionResult{same}),
	)

	dets, err := e.Detect(context.Background(), &mesh.Mesh{})
	require.NoError(t, err)
	assert.Len(t, dets, 2, "no deduplication across detectors")
}

func TestEnsembleEmpty(t *testing.T) {
	e := NewEnsemble(nil)
	assert.Equal(t, "ensemble", e.Name())
	assert.Empty(t, e.Detectors())

	dets, err := e.Detect(context.Background(), &mesh.Mesh{})
	require.NoError(t, err)
	assert.NotNil(t, dets)
	assert.Empty(t, dets)
}

func TestEnsembleStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	e := NewEnsemble(nil,
		NewFixedDetector("a", []DetectionResult{{FeatureID: "a1", Confidence: 1}}),
		failingDetector{err: boom},
	)

	_, err := e.Detect(context.Background(), &mesh.Mesh{})
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "failing")
}
