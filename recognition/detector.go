package recognition

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/kwv/automesh/mesh"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Metadata keys attached to detections.
const (
	MetaMeanFeatureDist   = "mean_feature_dist"
	MetaCoarseFeatureDist = "coarse_feature_dist"
	MetaAlignmentCost     = "alignment_cost"
	MetaAlignmentDegraded = "alignment_degraded"
	MetaRefineError       = "refine_error"
	MetaExtentX           = "extent_x"
	MetaExtentY           = "extent_y"
	MetaExtentZ           = "extent_z"
	MetaRadius            = "radius"
	MetaHeight            = "height"
)

// DetectionResult is one detected feature instance: where the template sits
// in the target frame and how confident the detector is.
type DetectionResult struct {
	FeatureID  string             `json:"feature_id"`
	Transform  mesh.Transform     `json:"transform"`
	Confidence float64            `json:"confidence"`
	Metadata   map[string]float64 `json:"metadata,omitempty"`
	// TemplateIndex is the position of the matched template in the detector's
	// library, or -1 when the detection is not template driven.
	TemplateIndex int    `json:"template_index"`
	Detector      string `json:"detector"`
}

// Detector finds feature instances in a target mesh.
// Results are ordered by confidence, highest first.
type Detector interface {
	Name() string
	Detect(ctx context.Context, target *mesh.Mesh) ([]DetectionResult, error)
}

// SortDetections orders detections by descending confidence. Equal
// confidences keep their input order.
func SortDetections(dets []DetectionResult) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
}

// TemplateDetectorName is the registry key of the descriptor matching detector.
const TemplateDetectorName = "fpfh_template"

// TemplateDetectorConfig controls the descriptor matching detector.
type TemplateDetectorConfig struct {
	Matcher MatcherConfig
	Workers int  // concurrent template matches; 0 means GOMAXPROCS
	Refine  bool // run ICP after the descriptor pose
	ICP     RefineConfig
}

// DefaultTemplateDetectorConfig returns matcher defaults with ICP refinement on.
func DefaultTemplateDetectorConfig() TemplateDetectorConfig {
	return TemplateDetectorConfig{
		Matcher: DefaultMatcherConfig(),
		Refine:  true,
		ICP:     DefaultRefineConfig(),
	}
}

// TemplateDetector matches every template of a library against the target
// with coarse-to-fine descriptor search and estimates a pose for each one.
type TemplateDetector struct {
	templates []*mesh.Mesh
	cfg       TemplateDetectorConfig
	log       *zap.Logger
}

// NewTemplateDetector validates cfg and returns a detector over templates.
func NewTemplateDetector(templates []*mesh.Mesh, cfg TemplateDetectorConfig, log *zap.Logger) (*TemplateDetector, error) {
	if err := cfg.Matcher.Descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor config: %w", err)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TemplateDetector{templates: templates, cfg: cfg, log: log}, nil
}

// Name returns the registry key.
func (d *TemplateDetector) Name() string { return TemplateDetectorName }

// Detect returns one detection per template. It fails only when ctx ends.
func (d *TemplateDetector) Detect(ctx context.Context, target *mesh.Mesh) ([]DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matcher, err := NewMatcher(target, d.cfg.Matcher)
	if err != nil {
		return nil, err
	}
	d.log.Debug("matching templates",
		zap.Int("templates", len(d.templates)),
		zap.Stringer("matcher", d.cfg.Matcher))

	workers := d.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]DetectionResult, len(d.templates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range d.templates {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.detectOne(matcher, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortDetections(results)
	return results, nil
}

func (d *TemplateDetector) detectOne(matcher *Matcher, i int) DetectionResult {
	template := d.templates[i]
	match := matcher.Match(template)

	targetPts := matcher.TargetPoints()
	paired := make([]r3.Vec, len(match.Correspondences))
	for k, idx := range match.Correspondences {
		paired[k] = targetPts[idx]
	}
	pose := EstimatePose(match.TemplatePoints, paired)

	meta := map[string]float64{
		MetaMeanFeatureDist:   match.MeanFeatureDistance,
		MetaCoarseFeatureDist: match.CoarseFeatureDistance,
		MetaAlignmentCost:     pose.Cost,
		MetaAlignmentDegraded: 0,
	}
	if template != nil {
		ext := template.Extents()
		meta[MetaExtentX], meta[MetaExtentY], meta[MetaExtentZ] = ext.X, ext.Y, ext.Z
	}

	transform := pose.Transform
	if pose.Degraded {
		meta[MetaAlignmentDegraded] = 1
		d.log.Warn("pose estimation degraded, using centroid translation",
			zap.Int("template", i),
			zap.Int("pairs", len(paired)))
	} else if d.cfg.Refine {
		refined := RefinePose(match.TemplatePoints, targetPts, matcher.TargetIndex(), transform, d.cfg.ICP)
		transform = refined.Transform
		meta[MetaRefineError] = refined.Error
	}

	return DetectionResult{
		FeatureID:     fmt.Sprintf("template_%d", i),
		Transform:     transform,
		Confidence:    match.Confidence,
		Metadata:      meta,
		TemplateIndex: i,
		Detector:      TemplateDetectorName,
	}
}
