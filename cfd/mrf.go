package cfd

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/kwv/automesh/recognition"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNotRotating is returned when a zone is requested for a feature type
// without a rotation rule.
var ErrNotRotating = errors.New("feature type is not rotating")

// CellZoneShape is the geometry used to select the rotating cells.
type CellZoneShape string

const (
	ZoneCylinder CellZoneShape = "cylinder"
	ZoneSphere   CellZoneShape = "sphere"
)

// CellZone is the volume whose cells form a rotating zone. Axis and Height
// are unused for spheres.
type CellZone struct {
	Name   string        `json:"name"`
	Shape  CellZoneShape `json:"shape"`
	Origin r3.Vec        `json:"origin"`
	Axis   r3.Vec        `json:"axis,omitempty"`
	Radius float64       `json:"radius"`
	Height float64       `json:"height,omitempty"`
}

// Omega is an angular velocity in rad/s. An unresolved omega is written as
// a placeholder for the user to fill in.
type Omega struct {
	Value    float64 `json:"value"`
	Resolved bool    `json:"resolved"`
}

// ResolvedOmega returns a resolved angular velocity.
func ResolvedOmega(v float64) Omega { return Omega{Value: v, Resolved: true} }

// OmegaPlaceholder is written for zones with no known angular velocity.
const OmegaPlaceholder = "constant 0"

// String renders omega as it appears in MRFProperties.
func (o Omega) String() string {
	if !o.Resolved {
		return OmegaPlaceholder
	}
	return strconv.FormatFloat(o.Value, 'g', -1, 64)
}

// ZoneMetadata records what a zone was built from.
type ZoneMetadata struct {
	FeatureID   string  `json:"featureId"`
	FeatureType string  `json:"featureType"`
	Confidence  float64 `json:"confidence"`
	Radius      float64 `json:"radius"`
	Height      float64 `json:"height"`
}

// RotatingZone is one MRF zone definition.
type RotatingZone struct {
	Name               string       `json:"name"`
	CellZone           CellZone     `json:"cellZone"`
	Origin             r3.Vec       `json:"origin"`
	Axis               r3.Vec       `json:"axis"`
	Omega              Omega        `json:"omega"`
	NonRotatingPatches []string     `json:"nonRotatingPatches"`
	Metadata           ZoneMetadata `json:"metadata"`
}

// ZoneParams are caller overrides for zone creation. Nil pointers and
// non-positive scales fall back to the rule.
type ZoneParams struct {
	Omega              *float64
	LinearSpeed        *float64
	RadiusScale        float64
	HeightScale        float64
	NonRotatingPatches []string
}

// String implements fmt.Stringer for logging.
func (p ZoneParams) String() string {
	omega, speed := "auto", "none"
	if p.Omega != nil {
		omega = strconv.FormatFloat(*p.Omega, 'g', -1, 64)
	}
	if p.LinearSpeed != nil {
		speed = strconv.FormatFloat(*p.LinearSpeed, 'g', -1, 64)
	}
	return fmt.Sprintf("omega=%s linearSpeed=%s radiusScale=%g heightScale=%g", omega, speed, p.RadiusScale, p.HeightScale)
}

// MRFGenerator builds rotating zones from detections.
type MRFGenerator struct {
	rules RuleTable
}

// NewMRFGenerator returns a generator; nil rules select DefaultRules.
func NewMRFGenerator(rules RuleTable) *MRFGenerator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &MRFGenerator{rules: rules}
}

// DetectRotationAxis returns the spin axis of a detection: the column of its
// rotation named by the feature type's rule, normalized. Types without a
// rotation rule, and degenerate columns, give global Z.
func (g *MRFGenerator) DetectRotationAxis(det recognition.DetectionResult, featureType string) r3.Vec {
	rule, ok := g.rules[featureType]
	if !ok || rule.Rotation == nil {
		return r3.Vec{Z: 1}
	}
	col := det.Transform.Column(rule.Rotation.axisIndex())
	n := r3.Norm(col)
	if n < 1e-12 || math.IsNaN(n) {
		return r3.Vec{Z: 1}
	}
	return r3.Scale(1/n, col)
}

// CreateZone builds the rotating zone for one detection.
func (g *MRFGenerator) CreateZone(det recognition.DetectionResult, featureType string, params ZoneParams) (RotatingZone, error) {
	rule, ok := g.rules[featureType]
	if !ok || rule.Rotation == nil {
		return RotatingZone{}, fmt.Errorf("%q: %w", featureType, ErrNotRotating)
	}
	rot := rule.Rotation

	origin := det.Transform.Translate()
	axis := g.DetectRotationAxis(det, featureType)
	radius, height := featureSize(det, rot)

	radiusScale := rot.RadiusScale
	if params.RadiusScale > 1 {
		radiusScale = params.RadiusScale
	}
	heightScale := rot.HeightScale
	if params.HeightScale > 1 {
		heightScale = params.HeightScale
	}

	name := det.FeatureID + "_MRFZone"
	zone := CellZone{
		Name:   name,
		Shape:  CellZoneShape(rot.Zone),
		Origin: origin,
		Radius: radius * radiusScale,
	}
	if zone.Shape == "" {
		zone.Shape = ZoneCylinder
	}
	if zone.Shape == ZoneCylinder {
		zone.Axis = axis
		zone.Height = height * heightScale
	}

	patches := rot.NonRotatingPatches
	if len(params.NonRotatingPatches) > 0 {
		patches = params.NonRotatingPatches
	}

	return RotatingZone{
		Name:               name,
		CellZone:           zone,
		Origin:             origin,
		Axis:               axis,
		Omega:              resolveOmega(rot, params, radius),
		NonRotatingPatches: append([]string(nil), patches...),
		Metadata: ZoneMetadata{
			FeatureID:   det.FeatureID,
			FeatureType: featureType,
			Confidence:  det.Confidence,
			Radius:      radius,
			Height:      height,
		},
	}, nil
}

// Generate creates a zone for every detection whose feature type rotates,
// in detection order.
func (g *MRFGenerator) Generate(dets []recognition.DetectionResult, params ZoneParams) []RotatingZone {
	zones := make([]RotatingZone, 0)
	for _, det := range dets {
		ft := FeatureType(det.FeatureID)
		if !g.rules.IsRotating(ft) {
			continue
		}
		zone, err := g.CreateZone(det, ft, params)
		if err != nil {
			continue
		}
		zones = append(zones, zone)
	}
	return zones
}

// CalculateAngularVelocity returns the angular velocity of a wheel of
// radius r rolling without slip at speed v.
func CalculateAngularVelocity(v, r float64) float64 {
	return v / r
}

// featureSize returns the physical radius and height of a feature. Explicit
// metadata wins, then the matched template's extents, then rule defaults.
func featureSize(det recognition.DetectionResult, rot *RotationRule) (radius, height float64) {
	radius, height = rot.DefaultRadius, rot.DefaultHeight

	ext := [3]float64{
		det.Metadata[recognition.MetaExtentX],
		det.Metadata[recognition.MetaExtentY],
		det.Metadata[recognition.MetaExtentZ],
	}
	ai := rot.axisIndex()
	if ext[ai] > 0 {
		height = ext[ai]
	}
	var across float64
	for i, e := range ext {
		if i != ai && e > across {
			across = e
		}
	}
	if across > 0 {
		radius = across / 2
	}

	if r, ok := det.Metadata[recognition.MetaRadius]; ok && r > 0 {
		radius = r
	}
	if h, ok := det.Metadata[recognition.MetaHeight]; ok && h > 0 {
		height = h
	}
	return radius, height
}

func resolveOmega(rot *RotationRule, params ZoneParams, radius float64) Omega {
	switch {
	case params.Omega != nil:
		return ResolvedOmega(*params.Omega)
	case rot.Rolling && params.LinearSpeed != nil && radius > 0:
		return ResolvedOmega(CalculateAngularVelocity(*params.LinearSpeed, radius))
	case rot.RPM > 0:
		return ResolvedOmega(rot.RPM * 2 * math.Pi / 60)
	default:
		return Omega{}
	}
}
