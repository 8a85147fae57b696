package recognition

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/kwv/automesh/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// MatcherConfig controls coarse sampling and descriptor computation.
type MatcherConfig struct {
	CoarsePoints int // surface samples per mesh for the coarse pass
	Descriptor   DescriptorConfig
	Seed         int64 // sampling seed; equal seeds give equal results
}

// DefaultMatcherConfig returns the matcher settings used by the template detector.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		CoarsePoints: 500,
		Descriptor:   DefaultDescriptorConfig(),
		Seed:         42,
	}
}

// MatchResult describes how well one template fits the target.
type MatchResult struct {
	Confidence            float64
	MeanFeatureDistance   float64
	CoarseFeatureDistance float64
	// Correspondences[i] is the coarse target point closest in descriptor
	// space to TemplatePoints[i].
	Correspondences []int
	TemplatePoints  []r3.Vec
}

// Matcher compares templates against one target through a descriptor index
// built once over the target's coarse surface sample. Match may be called
// concurrently.
type Matcher struct {
	cfg     MatcherConfig
	engine  *DescriptorEngine
	target  mesh.PointSample
	index   *Index
	spatial *Index
}

// NewMatcher samples and describes target. It fails only on an invalid config.
func NewMatcher(target *mesh.Mesh, cfg MatcherConfig) (*Matcher, error) {
	if cfg.CoarsePoints <= 0 {
		cfg.CoarsePoints = DefaultMatcherConfig().CoarsePoints
	}
	engine, err := NewDescriptorEngine(cfg.Descriptor)
	if err != nil {
		return nil, err
	}
	sample := mesh.SampleSurface(target, cfg.CoarsePoints, rand.New(rand.NewSource(cfg.Seed)))
	descriptors := engine.Compute(sample)
	return &Matcher{
		cfg:     cfg,
		engine:  engine,
		target:  sample,
		index:   NewDescriptorIndex(descriptors),
		spatial: NewPointIndex(sample.Points),
	}, nil
}

// TargetPoints returns the coarse target sample the correspondences index into.
func (m *Matcher) TargetPoints() []r3.Vec {
	return m.target.Points
}

// TargetIndex returns a 3-D index over TargetPoints.
func (m *Matcher) TargetIndex() *Index {
	return m.spatial
}

// Match scores template against the target. It never fails: an empty
// template or target yields math.MaxFloat64 distances and near-zero confidence.
func (m *Matcher) Match(template *mesh.Mesh) MatchResult {
	result := MatchResult{
		MeanFeatureDistance:   math.MaxFloat64,
		CoarseFeatureDistance: math.MaxFloat64,
	}
	if template == nil || len(template.Vertices) == 0 || m.index.Len() == 0 {
		result.Confidence = ConfidenceFromDistance(result.MeanFeatureDistance)
		return result
	}

	coarse := mesh.SampleSurface(template, m.cfg.CoarsePoints, rand.New(rand.NewSource(m.cfg.Seed+1)))
	result.CoarseFeatureDistance, _ = m.meanNearest(m.engine.Compute(coarse))

	fine := mesh.VertexSample(template)
	result.MeanFeatureDistance, result.Correspondences = m.meanNearest(m.engine.Compute(fine))
	result.TemplatePoints = fine.Points
	result.Confidence = ConfidenceFromDistance(result.MeanFeatureDistance)
	return result
}

func (m *Matcher) meanNearest(set DescriptorSet) (float64, []int) {
	if len(set) == 0 {
		return math.MaxFloat64, nil
	}
	corr := make([]int, len(set))
	var total float64
	for i := range set {
		idx, d := m.index.Nearest(set[i].vector())
		corr[i] = idx
		total += d
	}
	return total / float64(len(set)), corr
}

// ConfidenceFromDistance maps a mean descriptor distance to (0, 1]:
// 1/(1+d). Negative input is treated as 0 and NaN maps to 0.
func ConfidenceFromDistance(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}

func (c MatcherConfig) String() string {
	return fmt.Sprintf("coarse=%d method=%s normal_r=%g feature_r=%g seed=%d",
		c.CoarsePoints, c.Descriptor.withDefaults().Method, c.Descriptor.withDefaults().NormalRadius,
		c.Descriptor.withDefaults().FeatureRadius, c.Seed)
}
