package recognition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kwv/automesh/mesh"
	"go.uber.org/zap"
)

// ErrUnknownDetector is returned when a registry has no factory for a name.
var ErrUnknownDetector = errors.New("unknown detector")

// FactoryOptions carries everything a detector factory may need.
type FactoryOptions struct {
	Templates []*mesh.Mesh
	Template  TemplateDetectorConfig
	Backend   LearnedBackend
	Log       *zap.Logger
}

// Factory builds a detector from shared options.
type Factory func(opts FactoryOptions) (Detector, error)

// Registry maps detector names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in detectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TemplateDetectorName, func(opts FactoryOptions) (Detector, error) {
		return NewTemplateDetector(opts.Templates, opts.Template, opts.Log)
	})
	r.Register(LearnedDetectorName, func(opts FactoryOptions) (Detector, error) {
		return NewLearnedDetector(opts.Templates, opts.Backend, opts.Log), nil
	})
	r.Register(MockPluginName, func(FactoryOptions) (Detector, error) {
		return NewFixedDetector(MockPluginName, []DetectionResult{{
			FeatureID:     "mock_plugin_feature",
			Transform:     mesh.Identity(),
			Confidence:    0.95,
			TemplateIndex: -1,
		}}), nil
	})
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the detector registered under name.
func (r *Registry) New(name string, opts FactoryOptions) (Detector, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownDetector)
	}
	d, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("creating detector %q: %w", name, err)
	}
	return d, nil
}

// MockPluginName is the registry key of the bundled example plugin.
const MockPluginName = "mock_plugin"

// FixedDetector returns a preset list of detections for every target. It is
// the smallest possible third-party detector and a convenient test double.
type FixedDetector struct {
	name       string
	detections []DetectionResult
}

// NewFixedDetector returns a detector named name that always reports dets.
func NewFixedDetector(name string, dets []DetectionResult) *FixedDetector {
	return &FixedDetector{name: name, detections: dets}
}

// Name returns the configured name.
func (d *FixedDetector) Name() string { return d.name }

// Detect returns a sorted copy of the preset detections.
func (d *FixedDetector) Detect(ctx context.Context, _ *mesh.Mesh) ([]DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]DetectionResult, len(d.detections))
	for i, det := range d.detections {
		if det.Detector == "" {
			det.Detector = d.name
		}
		if det.Metadata != nil {
			meta := make(map[string]float64, len(det.Metadata))
			for k, v := range det.Metadata {
				meta[k] = v
			}
			det.Metadata = meta
		}
		out[i] = det
	}
	SortDetections(out)
	return out, nil
}
