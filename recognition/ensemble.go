package recognition

import (
	"context"
	"fmt"

	"github.com/kwv/automesh/mesh"
	"go.uber.org/zap"
)

// Ensemble runs several detectors and merges their output by confidence.
// Overlapping detections from different detectors are all kept.
type Ensemble struct {
	detectors []Detector
	log       *zap.Logger
}

// NewEnsemble returns an ensemble running detectors in the given order.
func NewEnsemble(log *zap.Logger, detectors ...Detector) *Ensemble {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ensemble{detectors: detectors, log: log}
}

// Name identifies the ensemble in logs and reports.
func (e *Ensemble) Name() string { return "ensemble" }

// Detectors returns the member detectors.
func (e *Ensemble) Detectors() []Detector { return e.detectors }

// Detect concatenates member results in detector order, then stably sorts
// them by confidence. The first member error aborts the run.
func (e *Ensemble) Detect(ctx context.Context, target *mesh.Mesh) ([]DetectionResult, error) {
	var all []DetectionResult
	for _, d := range e.detectors {
		dets, err := d.Detect(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("detector %s: %w", d.Name(), err)
		}
		e.log.Debug("detector finished",
			zap.String("detector", d.Name()),
			zap.Int("detections", len(dets)))
		all = append(all, dets...)
	}
	if all == nil {
		all = []DetectionResult{}
	}
	SortDetections(all)
	return all, nil
}
