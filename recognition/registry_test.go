package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kwv/automesh/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryNames(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{TemplateDetectorName, LearnedDetectorName, MockPluginName}, r.Names())

	for _, name := range r.Names() {
		d, err := r.New(name, FactoryOptions{Template: DefaultTemplateDetectorConfig()})
		require.NoError(t, err, name)
		assert.Equal(t, name, d.Name())
	}
}

func TestRegistryIsolated(t *testing.T) {
	a := DefaultRegistry()
	b := NewRegistry()
	b.Register("custom", func(FactoryOptions) (Detector, error) { return NewFixedDetector("custom", nil), nil })

	_, ok := a.Lookup("custom")
	assert.False(t, ok, "registries must not share state")
	assert.Equal(t, []string{"custom"}, b.Names())
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	r.Register("x", func(FactoryOptions) (Detector, error) { return NewFixedDetector("first", nil), nil })
	r.Register("x", func(FactoryOptions) (Detector, error) { return NewFixedDetector("second", nil), nil })

	d, err := r.New("x", FactoryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "second", d.Name())
	assert.Len(t, r.Names(), 1)
}

func TestRegistryErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("missing", FactoryOptions{})
	assert.True(t, errors.Is(err, ErrUnknownDetector))

	boom := errors.New("boom")
	r.Register("broken", func(FactoryOptions) (Detector, error) { return nil, boom })
	_, err = r.New("broken", FactoryOptions{})
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "broken")
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("fixed", func(FactoryOptions) (Detector, error) { return NewFixedDetector("fixed", nil), nil })
		}()
		go func() {
			defer wg.Done()
			r.Names()
			r.Lookup("fixed")
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"fixed"}, r.Names())
}

func TestMockPluginDetector(t *testing.T) {
	d, err := DefaultRegistry().New(MockPluginName, FactoryOptions{})
	require.NoError(t, err)

	dets, err := d.Detect(context.Background(), &mesh.Mesh{})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "mock_plugin_feature", dets[0].FeatureID)
	assert.Equal(t, 0.95, dets[0].Confidence)
	assert.Equal(t, mesh.Identity(), dets[0].Transform)
	assert.Equal(t, MockPluginName, dets[0].Detector)
	assert.Equal(t, -1, dets[0].TemplateIndex)
}

func TestFixedDetectorCopiesResults(t *testing.T) {
	preset := []DetectionResult{
		{FeatureID: "low", Confidence: 0.1, Metadata: map[string]float64{"k": 1}},
		{FeatureID: "high", Confidence: 0.8},
	}
	d := NewFixedDetector("fixed", preset)

	dets, err := d.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "high", dets[0].FeatureID)

	dets[1].Metadata["k"] = 99
	assert.Equal(t, 1.0, preset[0].Metadata["k"])
	assert.Equal(t, "low", preset[0].FeatureID, "preset order must be untouched")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, nil)
	assert.Error(t, err)
}
