package recognition

import (
	"context"
	"fmt"
	"math"

	"github.com/kwv/automesh/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// LearnedDetectorName is the registry key of the embedding-based detector.
const LearnedDetectorName = "meshcnn"

// MetaLearned marks detections produced from a learned embedding.
const MetaLearned = "ml_based"

// LearnedBackend produces a global shape embedding for a mesh. The network
// behind it lives outside this module; implementations typically call an
// inference service or a bundled runtime.
type LearnedBackend interface {
	Embed(ctx context.Context, m *mesh.Mesh) ([]float64, error)
}

// LearnedDetector compares template embeddings against the target embedding
// by cosine similarity. Without a backend it detects nothing.
type LearnedDetector struct {
	templates []*mesh.Mesh
	backend   LearnedBackend
	log       *zap.Logger
}

// NewLearnedDetector returns a detector; backend may be nil.
func NewLearnedDetector(templates []*mesh.Mesh, backend LearnedBackend, log *zap.Logger) *LearnedDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &LearnedDetector{templates: templates, backend: backend, log: log}
}

// Name returns the registry key.
func (d *LearnedDetector) Name() string { return LearnedDetectorName }

// Available reports whether a backend is configured.
func (d *LearnedDetector) Available() bool { return d.backend != nil }

// Detect embeds the target once and every template in turn. Templates whose
// embedding fails are logged and skipped. A target embedding failure is
// logged and yields no detections so other ensemble members still report.
func (d *LearnedDetector) Detect(ctx context.Context, target *mesh.Mesh) ([]DetectionResult, error) {
	if d.backend == nil {
		d.log.Warn("learned detector has no backend, skipping detection")
		return []DetectionResult{}, nil
	}
	targetEmb, err := d.backend.Embed(ctx, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d.log.Warn("learned detector could not embed target, skipping detection", zap.Error(err))
		return []DetectionResult{}, nil
	}
	targetCentroid := target.Centroid()

	results := make([]DetectionResult, 0, len(d.templates))
	for i, tmpl := range d.templates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := d.backend.Embed(ctx, tmpl)
		if err != nil {
			d.log.Warn("learned detection failed for template",
				zap.Int("template", i),
				zap.Error(err))
			continue
		}
		sim, err := cosineSimilarity(targetEmb, emb)
		if err != nil {
			d.log.Warn("learned detection failed for template",
				zap.Int("template", i),
				zap.Error(err))
			continue
		}
		results = append(results, DetectionResult{
			FeatureID:     fmt.Sprintf("meshcnn_template_%d", i),
			Transform:     mesh.Translation(r3.Sub(targetCentroid, tmpl.Centroid())),
			Confidence:    (sim + 1) / 2,
			Metadata:      map[string]float64{MetaLearned: 1},
			TemplateIndex: i,
			Detector:      LearnedDetectorName,
		})
	}
	SortDetections(results)
	return results, nil
}

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding sizes differ: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("zero-length embedding")
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), -1, 1), nil
}
