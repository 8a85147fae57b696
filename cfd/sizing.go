package cfd

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/kwv/automesh/recognition"
)

// SizingParams control the fTetWild sizing field.
type SizingParams struct {
	BaseSize         float64 `yaml:"baseSize" json:"base_size"`
	RefinementFactor float64 `yaml:"refinementFactor" json:"refinement_factor"`
}

// DefaultSizingParams returns a 0.1 base edge refined by a factor of 0.2.
func DefaultSizingParams() SizingParams {
	return SizingParams{BaseSize: 0.1, RefinementFactor: 0.2}
}

// defaultSizingRadius is used when a detection carries no size hint.
const defaultSizingRadius = 0.5

// SizingSphere asks the mesher for edge length Size within Radius of Center.
type SizingSphere struct {
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
	Size   float64    `json:"size"`
}

// SizingField returns one sizing sphere per detection. The sphere radius is
// the radius metadata when set, otherwise half the largest template extent,
// otherwise 0.5. This is the precedence rotating zones use.
func SizingField(dets []recognition.DetectionResult, params SizingParams) []SizingSphere {
	def := DefaultSizingParams()
	if params.BaseSize <= 0 {
		params.BaseSize = def.BaseSize
	}
	if params.RefinementFactor <= 0 {
		params.RefinementFactor = def.RefinementFactor
	}
	size := params.BaseSize * params.RefinementFactor

	field := make([]SizingSphere, 0, len(dets))
	for _, det := range dets {
		radius := defaultSizingRadius
		ext := math.Max(det.Metadata[recognition.MetaExtentX],
			math.Max(det.Metadata[recognition.MetaExtentY], det.Metadata[recognition.MetaExtentZ]))
		if ext > 0 {
			radius = ext / 2
		}
		if r, ok := det.Metadata[recognition.MetaRadius]; ok && r > 0 {
			radius = r
		}

		c := det.Transform.Translate()
		field = append(field, SizingSphere{
			Center: [3]float64{c.X, c.Y, c.Z},
			Radius: radius,
			Size:   size,
		})
	}
	return field
}

// WriteSizingField writes the spheres as the JSON array fTetWild reads.
func WriteSizingField(w io.Writer, field []SizingSphere) error {
	if field == nil {
		field = []SizingSphere{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(field); err != nil {
		return fmt.Errorf("encoding sizing field: %w", err)
	}
	return nil
}
