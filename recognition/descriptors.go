package recognition

import (
	"fmt"
	"math"

	"github.com/kwv/automesh/mesh"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DescriptorDim is the width of every descriptor: three 11-bin histograms.
const DescriptorDim = 33

const fpfhBins = 11

// Descriptor is one fixed-width local shape signature.
type Descriptor [DescriptorDim]float64

// DescriptorSet holds one descriptor per sample point, in sample order.
type DescriptorSet []Descriptor

// DescriptorMethod selects how descriptors are computed.
type DescriptorMethod string

const (
	// DescriptorFPFH computes Fast Point Feature Histograms.
	DescriptorFPFH DescriptorMethod = "fpfh"
	// DescriptorGeometric computes [distance from centroid, normal, zero padding].
	DescriptorGeometric DescriptorMethod = "geometric"
)

// DescriptorConfig controls descriptor computation.
type DescriptorConfig struct {
	Method              DescriptorMethod
	NormalRadius        float64 // neighbourhood radius for normal estimation
	FeatureRadius       float64 // neighbourhood radius for histograms
	MaxNormalNeighbors  int
	MaxFeatureNeighbors int
}

// DefaultDescriptorConfig returns the FPFH settings used for vehicle-scale
// geometry in metres.
func DefaultDescriptorConfig() DescriptorConfig {
	return DescriptorConfig{
		Method:              DescriptorFPFH,
		NormalRadius:        0.1,
		FeatureRadius:       0.25,
		MaxNormalNeighbors:  30,
		MaxFeatureNeighbors: 100,
	}
}

// withDefaults fills zero fields from DefaultDescriptorConfig.
func (c DescriptorConfig) withDefaults() DescriptorConfig {
	def := DefaultDescriptorConfig()
	if c.Method == "" {
		c.Method = def.Method
	}
	if c.NormalRadius == 0 {
		c.NormalRadius = def.NormalRadius
	}
	if c.FeatureRadius == 0 {
		c.FeatureRadius = def.FeatureRadius
	}
	if c.MaxNormalNeighbors == 0 {
		c.MaxNormalNeighbors = def.MaxNormalNeighbors
	}
	if c.MaxFeatureNeighbors == 0 {
		c.MaxFeatureNeighbors = def.MaxFeatureNeighbors
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c DescriptorConfig) Validate() error {
	c = c.withDefaults()
	switch c.Method {
	case DescriptorFPFH, DescriptorGeometric:
	default:
		return fmt.Errorf("unknown descriptor method %q", c.Method)
	}
	if c.NormalRadius < 0 {
		return fmt.Errorf("normal radius must be positive, got %g", c.NormalRadius)
	}
	if c.FeatureRadius <= c.NormalRadius {
		return fmt.Errorf("feature radius (%g) must be larger than normal radius (%g)", c.FeatureRadius, c.NormalRadius)
	}
	if c.MaxNormalNeighbors < 0 || c.MaxFeatureNeighbors < 0 {
		return fmt.Errorf("neighbour limits must be positive")
	}
	return nil
}

// DescriptorEngine turns point samples into descriptor sets.
type DescriptorEngine struct {
	cfg DescriptorConfig
}

// NewDescriptorEngine validates cfg (zero fields take defaults) and returns an engine.
func NewDescriptorEngine(cfg DescriptorConfig) (*DescriptorEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor config: %w", err)
	}
	return &DescriptorEngine{cfg: cfg.withDefaults()}, nil
}

// Config returns the effective configuration.
func (e *DescriptorEngine) Config() DescriptorConfig {
	return e.cfg
}

// ComputeMesh describes every vertex of m, using vertex normals as priors.
func (e *DescriptorEngine) ComputeMesh(m *mesh.Mesh) DescriptorSet {
	return e.Compute(mesh.VertexSample(m))
}

// Compute returns one descriptor per sample point.
func (e *DescriptorEngine) Compute(s mesh.PointSample) DescriptorSet {
	if s.Len() == 0 {
		return DescriptorSet{}
	}
	normals := s.Normals
	if len(normals) != len(s.Points) {
		normals = make([]r3.Vec, len(s.Points))
	}
	if e.cfg.Method == DescriptorGeometric {
		return geometricDescriptors(s.Points, normals)
	}

	index := NewPointIndex(s.Points)
	normals = e.estimateNormals(s.Points, normals, index)
	return e.fpfh(s.Points, normals, index)
}

// geometricDescriptors is the cheap fallback signature.
func geometricDescriptors(points, normals []r3.Vec) DescriptorSet {
	centroid := mesh.Centroid(points)
	out := make(DescriptorSet, len(points))
	for i, p := range points {
		out[i][0] = mesh.Distance(p, centroid)
		out[i][1] = normals[i].X
		out[i][2] = normals[i].Y
		out[i][3] = normals[i].Z
	}
	return out
}

// estimateNormals fits a plane to each neighbourhood by PCA. The eigenvector
// of the smallest covariance eigenvalue is the normal, flipped to agree with
// the prior normal (or to face away from the sample centroid when the prior
// is zero). Points with fewer than three neighbours keep their prior.
func (e *DescriptorEngine) estimateNormals(points, prior []r3.Vec, index *Index) []r3.Vec {
	centroid := mesh.Centroid(points)
	out := make([]r3.Vec, len(points))
	for i, p := range points {
		out[i] = prior[i]
		nbrs := index.KNearestPoint(p, e.cfg.MaxNormalNeighbors, e.cfg.NormalRadius)
		if len(nbrs) < 3 {
			continue
		}
		n, ok := pcaNormal(points, nbrs)
		if !ok {
			continue
		}
		ref := prior[i]
		if r3.Norm(ref) < 1e-12 {
			ref = r3.Sub(p, centroid)
		}
		if r3.Dot(n, ref) < 0 {
			n = r3.Scale(-1, n)
		}
		out[i] = n
	}
	return out
}

func pcaNormal(points []r3.Vec, nbrs []Neighbor) (r3.Vec, bool) {
	var mean r3.Vec
	for _, nb := range nbrs {
		mean = r3.Add(mean, points[nb.Index])
	}
	mean = r3.Scale(1/float64(len(nbrs)), mean)

	var cov [6]float64 // xx xy xz yy yz zz
	for _, nb := range nbrs {
		d := r3.Sub(points[nb.Index], mean)
		cov[0] += d.X * d.X
		cov[1] += d.X * d.Y
		cov[2] += d.X * d.Z
		cov[3] += d.Y * d.Y
		cov[4] += d.Y * d.Z
		cov[5] += d.Z * d.Z
	}
	sym := mat.NewSymDense(3, []float64{
		cov[0], cov[1], cov[2],
		cov[1], cov[3], cov[4],
		cov[2], cov[4], cov[5],
	})
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return r3.Vec{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Eigenvalues come back in ascending order.
	n := r3.Vec{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	l := r3.Norm(n)
	if l < 1e-12 || math.IsNaN(l) {
		return r3.Vec{}, false
	}
	return r3.Scale(1/l, n), true
}

// fpfh computes the simplified point feature histogram of every point, then
// blends it with the inverse-distance weighted histograms of its neighbours.
func (e *DescriptorEngine) fpfh(points, normals []r3.Vec, index *Index) DescriptorSet {
	neighbors := make([][]Neighbor, len(points))
	spfh := make(DescriptorSet, len(points))
	for i, p := range points {
		// One extra slot for the query point itself, which is dropped.
		hits := index.KNearestPoint(p, e.cfg.MaxFeatureNeighbors+1, e.cfg.FeatureRadius)
		nbrs := make([]Neighbor, 0, len(hits))
		for _, h := range hits {
			if h.Index != i && len(nbrs) < e.cfg.MaxFeatureNeighbors {
				nbrs = append(nbrs, h)
			}
		}
		neighbors[i] = nbrs
		if len(nbrs) == 0 {
			continue
		}
		incr := 1 / float64(len(nbrs))
		for _, nb := range nbrs {
			f1, f2, f3 := pairFeatures(p, normals[i], points[nb.Index], normals[nb.Index])
			spfh[i][histBin(f1, -math.Pi, math.Pi)] += incr
			spfh[i][fpfhBins+histBin(f2, -1, 1)] += incr
			spfh[i][2*fpfhBins+histBin(f3, -1, 1)] += incr
		}
	}

	out := make(DescriptorSet, len(points))
	for i := range points {
		var weighted Descriptor
		var sums [3]float64
		for _, nb := range neighbors[i] {
			if nb.Dist < 1e-12 {
				continue
			}
			w := 1 / nb.Dist
			for f := 0; f < DescriptorDim; f++ {
				v := spfh[nb.Index][f] * w
				weighted[f] += v
				sums[f/fpfhBins] += v
			}
		}
		for f := 0; f < DescriptorDim; f++ {
			if s := sums[f/fpfhBins]; s > 0 {
				weighted[f] /= s
			}
			out[i][f] = 0.5 * (spfh[i][f] + weighted[f])
		}
	}
	return out
}

// pairFeatures returns the Darboux-frame angles between two oriented points.
// The frame is anchored on whichever point's normal is more aligned with the
// connecting line, so the features do not depend on argument order.
func pairFeatures(p1, n1, p2, n2 r3.Vec) (f1, f2, f3 float64) {
	d := r3.Sub(p2, p1)
	dist := r3.Norm(d)
	if dist < 1e-15 {
		return 0, 0, 0
	}
	a1 := r3.Dot(n1, d) / dist
	a2 := r3.Dot(n2, d) / dist
	u, other := n1, n2
	if math.Acos(clamp(math.Abs(a1), 0, 1)) > math.Acos(clamp(math.Abs(a2), 0, 1)) {
		u, other = n2, n1
		d = r3.Scale(-1, d)
		f3 = -a2
	} else {
		f3 = a1
	}
	v := r3.Cross(d, u)
	vn := r3.Norm(v)
	if vn < 1e-15 {
		return 0, 0, 0
	}
	v = r3.Scale(1/vn, v)
	w := r3.Cross(u, v)
	f2 = r3.Dot(v, other)
	f1 = math.Atan2(r3.Dot(w, other), r3.Dot(u, other))
	return f1, f2, f3
}

// histBin maps x in [lo, hi] to one of fpfhBins bins, clamping out-of-range values.
func histBin(x, lo, hi float64) int {
	b := int(math.Floor(float64(fpfhBins) * (x - lo) / (hi - lo)))
	if b < 0 {
		return 0
	}
	if b >= fpfhBins {
		return fpfhBins - 1
	}
	return b
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// vector returns d as a slice for index queries.
func (d *Descriptor) vector() []float64 {
	return d[:]
}

// FeatureDistance is the Euclidean distance between two descriptors.
func FeatureDistance(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
