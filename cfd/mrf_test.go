package cfd

import (
	"errors"
	"math"
	"testing"

	"github.com/kwv/automesh/mesh"
	"github.com/kwv/automesh/recognition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func float(v float64) *float64 { return &v }

func TestDetectRotationAxisConventions(t *testing.T) {
	g := NewMRFGenerator(nil)
	det := detection("x_0", mesh.Identity())

	tests := []struct {
		featureType string
		want        r3.Vec
	}{
		{"wheel", r3.Vec{Y: 1}},
		{"fan", r3.Vec{X: 1}},
		{"turbine", r3.Vec{Z: 1}},
		{"mirror", r3.Vec{Z: 1}},
		{"gizmo", r3.Vec{Z: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.featureType, func(t *testing.T) {
			axis := g.DetectRotationAxis(det, tt.featureType)
			vecNear(t, tt.want, axis, 1e-12)
			assert.InDelta(t, 1.0, r3.Norm(axis), 1e-12)
		})
	}
}

func TestDetectRotationAxisFollowsPose(t *testing.T) {
	g := NewMRFGenerator(nil)
	det := detection("wheel_0", mesh.RotationAbout(r3.Vec{Z: 1}, math.Pi/2))
	vecNear(t, r3.Vec{X: -1}, g.DetectRotationAxis(det, "wheel"), 1e-12)

	var degenerate mesh.Transform
	det = detection("wheel_0", degenerate)
	vecNear(t, r3.Vec{Z: 1}, g.DetectRotationAxis(det, "wheel"), 0)
}

func TestCalculateAngularVelocity(t *testing.T) {
	assert.InDelta(t, 79.37, CalculateAngularVelocity(27.78, 0.35), 0.01)
	v, r := 27.78, 0.35
	assert.Equal(t, v/r, CalculateAngularVelocity(v, r))
}

func TestCreateZoneWheelDefaults(t *testing.T) {
	g := NewMRFGenerator(nil)
	det := detection("wheel_0", mesh.Translation(r3.Vec{X: 1.3, Y: 0.9, Z: 0.3}))

	zone, err := g.CreateZone(det, "wheel", ZoneParams{})
	require.NoError(t, err)

	assert.Equal(t, "wheel_0_MRFZone", zone.Name)
	assert.Equal(t, zone.Name, zone.CellZone.Name)
	assert.Equal(t, ZoneCylinder, zone.CellZone.Shape)
	vecNear(t, r3.Vec{X: 1.3, Y: 0.9, Z: 0.3}, zone.Origin, 0)
	vecNear(t, r3.Vec{Y: 1}, zone.Axis, 1e-12)
	assert.InDelta(t, 0.35*1.2, zone.CellZone.Radius, 1e-12)
	assert.InDelta(t, 0.25*1.1, zone.CellZone.Height, 1e-12)
	assert.False(t, zone.Omega.Resolved)
	assert.Equal(t, OmegaPlaceholder, zone.Omega.String())
	assert.Equal(t, []string{"ground", "body", "wall"}, zone.NonRotatingPatches)

	assert.Equal(t, ZoneMetadata{
		FeatureID:   "wheel_0",
		FeatureType: "wheel",
		Confidence:  0.9,
		Radius:      0.35,
		Height:      0.25,
	}, zone.Metadata)
}

func TestCreateZoneSizeSources(t *testing.T) {
	g := NewMRFGenerator(nil)
	extents := map[string]float64{
		recognition.MetaExtentX: 0.65,
		recognition.MetaExtentY: 0.225,
		recognition.MetaExtentZ: 0.65,
	}

	det := detection("wheel_0", mesh.Identity())
	det.Metadata = extents
	zone, err := g.CreateZone(det, "wheel", ZoneParams{})
	require.NoError(t, err)
	assert.InDelta(t, 0.325, zone.Metadata.Radius, 1e-12)
	assert.InDelta(t, 0.225, zone.Metadata.Height, 1e-12)

	det.Metadata = map[string]float64{
		recognition.MetaExtentX: 0.65,
		recognition.MetaExtentY: 0.225,
		recognition.MetaExtentZ: 0.65,
		recognition.MetaRadius:  0.4,
		recognition.MetaHeight:  0.3,
	}
	zone, err = g.CreateZone(det, "wheel", ZoneParams{})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, zone.Metadata.Radius, 1e-12)
	assert.InDelta(t, 0.3, zone.Metadata.Height, 1e-12)
}

func TestCreateZoneScaleFactors(t *testing.T) {
	g := NewMRFGenerator(nil)
	det := detection("wheel_0", mesh.Identity())

	zone, err := g.CreateZone(det, "wheel", ZoneParams{RadiusScale: 1.5, HeightScale: 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.35*1.5, zone.CellZone.Radius, 1e-12)
	assert.InDelta(t, 0.25*2, zone.CellZone.Height, 1e-12)

	// Factors that would shrink the zone fall back to the rule.
	zone, err = g.CreateZone(det, "wheel", ZoneParams{RadiusScale: 0.9, HeightScale: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.35*1.2, zone.CellZone.Radius, 1e-12)
	assert.InDelta(t, 0.25*1.1, zone.CellZone.Height, 1e-12)
}

func TestCreateZoneOmegaPrecedence(t *testing.T) {
	g := NewMRFGenerator(nil)
	wheel := detection("wheel_0", mesh.Identity())
	wheel.Metadata = map[string]float64{recognition.MetaRadius: 0.35}
	fan := detection("fan_0", mesh.Identity())

	tests := []struct {
		name        string
		det         recognition.DetectionResult
		featureType string
		params      ZoneParams
		want        Omega
	}{
		{"explicit omega wins", wheel, "wheel", ZoneParams{Omega: float(12), LinearSpeed: float(27.78)}, ResolvedOmega(12)},
		{"rolling wheel", wheel, "wheel", ZoneParams{LinearSpeed: float(27.78)}, ResolvedOmega(27.78 / 0.35)},
		{"fan rpm", fan, "fan", ZoneParams{}, ResolvedOmega(3600 * 2 * math.Pi / 60)},
		{"fan ignores speed", fan, "fan", ZoneParams{LinearSpeed: float(10)}, ResolvedOmega(3600 * 2 * math.Pi / 60)},
		{"placeholder", wheel, "wheel", ZoneParams{}, Omega{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, err := g.CreateZone(tt.det, tt.featureType, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Resolved, zone.Omega.Resolved)
			assert.InDelta(t, tt.want.Value, zone.Omega.Value, 1e-9)
		})
	}

	zone, err := g.CreateZone(wheel, "wheel", ZoneParams{LinearSpeed: float(27.78)})
	require.NoError(t, err)
	assert.InDelta(t, 79.37, zone.Omega.Value, 0.01)
}

func TestCreateZonePatchOverride(t *testing.T) {
	g := NewMRFGenerator(nil)
	zone, err := g.CreateZone(detection("fan_0", mesh.Identity()), "fan", ZoneParams{NonRotatingPatches: []string{"shroud"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"shroud"}, zone.NonRotatingPatches)

	zone, err = g.CreateZone(detection("fan_0", mesh.Identity()), "fan", ZoneParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"duct", "casing"}, zone.NonRotatingPatches)
}

func TestCreateZoneSphere(t *testing.T) {
	rules := DefaultRules()
	turbine := rules["turbine"]
	rot := *turbine.Rotation
	rot.Zone = string(ZoneSphere)
	turbine.Rotation = &rot
	rules["turbine"] = turbine

	zone, err := NewMRFGenerator(rules).CreateZone(detection("turbine_0", mesh.Identity()), "turbine", ZoneParams{})
	require.NoError(t, err)
	assert.Equal(t, ZoneSphere, zone.CellZone.Shape)
	assert.InDelta(t, 1.1, zone.CellZone.Radius, 1e-12)
	assert.Zero(t, zone.CellZone.Height)
	assert.InDelta(t, 1800*2*math.Pi/60, zone.Omega.Value, 1e-9)
}

func TestCreateZoneNotRotating(t *testing.T) {
	g := NewMRFGenerator(nil)
	for _, ft := range []string{"mirror", "gizmo"} {
		_, err := g.CreateZone(detection(ft+"_0", mesh.Identity()), ft, ZoneParams{})
		assert.True(t, errors.Is(err, ErrNotRotating), ft)
	}
}

func TestGenerateZones(t *testing.T) {
	dets := []recognition.DetectionResult{
		detection("wheel_0", mesh.Translation(r3.Vec{X: 1})),
		detection("mirror_1", mesh.Identity()),
		detection("fan_2", mesh.Identity()),
		detection("wheel_3", mesh.Translation(r3.Vec{X: -1})),
	}
	zones := NewMRFGenerator(nil).Generate(dets, ZoneParams{})

	var names []string
	for _, z := range zones {
		names = append(names, z.Name)
	}
	assert.Equal(t, []string{"wheel_0_MRFZone", "fan_2_MRFZone", "wheel_3_MRFZone"}, names)

	assert.NotNil(t, NewMRFGenerator(nil).Generate(nil, ZoneParams{}))
}

func TestOmegaString(t *testing.T) {
	assert.Equal(t, "constant 0", Omega{}.String())
	assert.Equal(t, "79.5", ResolvedOmega(79.5).String())
	assert.Equal(t, "0", ResolvedOmega(0).String())
}
