package recognition

import (
	"math"
	"sort"

	"github.com/kwv/automesh/mesh"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DegradedCost marks a pose that fell back to a centroid-only translation.
// Real costs are mean squared residuals and therefore never negative.
const DegradedCost = -1.0

// minPosePairs is the smallest pair count for which a rotation is solved.
const minPosePairs = 3

// rankTolerance is the relative singular value below which the
// cross-covariance is treated as rank deficient.
const rankTolerance = 1e-9

// PoseResult is a rigid transform mapping template points onto target points.
type PoseResult struct {
	Transform mesh.Transform
	Cost      float64
	Degraded  bool
}

// EstimatePose solves the least-squares rigid transform (rotation and
// translation, no scale) taking templatePts[i] to targetPts[i]. Pairs are
// truncated to the shorter slice.
//
// Fewer than three pairs, or collinear or coincident points, give an identity
// rotation with a centroid-difference translation, Degraded=true and
// Cost=DegradedCost.
func EstimatePose(templatePts, targetPts []r3.Vec) PoseResult {
	n := len(templatePts)
	if len(targetPts) < n {
		n = len(targetPts)
	}
	src, tgt := templatePts[:n], targetPts[:n]
	srcC := mesh.Centroid(src)
	tgtC := mesh.Centroid(tgt)

	degraded := PoseResult{
		Transform: mesh.Translation(r3.Sub(tgtC, srcC)),
		Cost:      DegradedCost,
		Degraded:  true,
	}
	if n < minPosePairs {
		return degraded
	}

	// Cross-covariance H = sum (s - srcC)(t - tgtC)^T
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < n; i++ {
		s := r3.Sub(src[i], srcC)
		t := r3.Sub(tgt[i], tgtC)
		sv := [3]float64{s.X, s.Y, s.Z}
		tv := [3]float64{t.X, t.Y, t.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+sv[r]*tv[c])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return degraded
	}
	sigma := svd.Values(nil)
	// Rank below 2 means the rotation about the remaining axis is undetermined.
	if sigma[0] < 1e-15 || sigma[1] < rankTolerance*sigma[0] {
		return degraded
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	var vd, r mat.Dense
	vd.Mul(&v, mat.NewDiagDense(3, []float64{1, 1, d}))
	r.Mul(&vd, u.T())

	var rot [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[i][j] = r.At(i, j)
		}
	}
	tr := mesh.FromRotation(rot, r3.Vec{})
	tr.SetTranslation(r3.Sub(tgtC, tr.Apply(srcC)))

	return PoseResult{
		Transform: tr,
		Cost:      meanSquaredResidual(tr, src, tgt),
	}
}

func meanSquaredResidual(t mesh.Transform, src, tgt []r3.Vec) float64 {
	if len(src) == 0 {
		return 0
	}
	var sum float64
	for i := range src {
		d := r3.Sub(t.Apply(src[i]), tgt[i])
		sum += r3.Dot(d, d)
	}
	return sum / float64(len(src))
}

// RefineConfig controls iterative closest point refinement of a pose.
type RefineConfig struct {
	MaxIterations     int     // Maximum number of iterations
	ConvergenceThresh float64 // Stop when error improvement is below this
	MaxCorrespondDist float64 // Maximum distance for point correspondence; 0 disables the cut
	OutlierPercentile float64 // Reject correspondences above this percentile (0-1)
}

// DefaultRefineConfig returns the ICP settings used after the descriptor pose.
func DefaultRefineConfig() RefineConfig {
	return RefineConfig{
		MaxIterations:     30,
		ConvergenceThresh: 1e-7,
		OutlierPercentile: 0.8,
	}
}

// RefineResult is the outcome of RefinePose.
type RefineResult struct {
	Transform  mesh.Transform
	Error      float64 // mean squared nearest-point distance
	Iterations int
	Converged  bool
}

// RefinePose improves initial by point-to-point ICP of templatePts against
// the target points held in index. A step that increases the error is
// rejected and ends the refinement.
func RefinePose(templatePts []r3.Vec, targetPts []r3.Vec, index *Index, initial mesh.Transform, config RefineConfig) RefineResult {
	result := RefineResult{Transform: initial, Error: math.MaxFloat64}
	if len(templatePts) < minPosePairs || index == nil || index.Len() == 0 {
		return result
	}

	current := initial
	prevError := nearestError(current.ApplyAll(templatePts), index, config.MaxCorrespondDist)
	result.Error = prevError

	for iter := 0; iter < config.MaxIterations; iter++ {
		result.Iterations = iter + 1

		transformed := current.ApplyAll(templatePts)
		srcCorr, tgtCorr, distances := findCorrespondences(transformed, targetPts, index, config.MaxCorrespondDist)
		if len(srcCorr) < minPosePairs {
			break
		}
		srcCorr, tgtCorr = rejectOutliers(srcCorr, tgtCorr, distances, config.OutlierPercentile)
		if len(srcCorr) < minPosePairs {
			break
		}

		step := EstimatePose(srcCorr, tgtCorr)
		if step.Degraded {
			break
		}
		// Compose: new = incremental * current
		next := step.Transform.Mul(current)
		newError := nearestError(next.ApplyAll(templatePts), index, config.MaxCorrespondDist)
		if newError > prevError {
			break
		}

		improvement := prevError - newError
		current = next
		result.Transform = next
		result.Error = newError
		if improvement < config.ConvergenceThresh {
			result.Converged = true
			break
		}
		prevError = newError
	}
	return result
}

// findCorrespondences pairs each source point with its nearest target point,
// dropping pairs farther than maxDist when maxDist is positive.
func findCorrespondences(source, target []r3.Vec, index *Index, maxDist float64) (srcCorr, tgtCorr []r3.Vec, distances []float64) {
	for _, p := range source {
		idx, d := index.NearestPoint(p)
		if idx < 0 || (maxDist > 0 && d > maxDist) {
			continue
		}
		srcCorr = append(srcCorr, p)
		tgtCorr = append(tgtCorr, target[idx])
		distances = append(distances, d)
	}
	return srcCorr, tgtCorr, distances
}

// rejectOutliers keeps correspondences at or below the distance percentile.
func rejectOutliers(srcCorr, tgtCorr []r3.Vec, distances []float64, percentile float64) ([]r3.Vec, []r3.Vec) {
	if len(distances) == 0 || percentile <= 0 || percentile >= 1.0 {
		return srcCorr, tgtCorr
	}

	sorted := make([]float64, len(distances))
	copy(sorted, distances)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * percentile)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	threshold := sorted[idx]

	var filteredSrc, filteredTgt []r3.Vec
	for i, d := range distances {
		if d <= threshold {
			filteredSrc = append(filteredSrc, srcCorr[i])
			filteredTgt = append(filteredTgt, tgtCorr[i])
		}
	}
	return filteredSrc, filteredTgt
}

func nearestError(points []r3.Vec, index *Index, maxDist float64) float64 {
	var sum float64
	var count int
	for _, p := range points {
		_, d := index.NearestPoint(p)
		if maxDist > 0 && d > maxDist {
			continue
		}
		sum += d * d
		count++
	}
	if count == 0 {
		return math.MaxFloat64
	}
	return sum / float64(count)
}
