package sdk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kwv/automesh/cfd"
	"github.com/kwv/automesh/recognition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{recognition.TemplateDetectorName}, cfg.Detection.Detectors)
	assert.Equal(t, 500, cfg.Detection.CoarsePoints)
	assert.Equal(t, "fpfh", cfg.Detection.Descriptor)
	assert.Equal(t, cfd.DefaultSnappyOptions(), cfg.SnappyOptions())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
detection:
  detectors: [fpfh_template, meshcnn]
  coarsePoints: 200
  timeout: 30s
rotation:
  omega: 50
  nonRotatingPatches: [floor]
snappy:
  maxGlobalCells: 5000000
  locationInMesh: [0, 0, 2]
mqtt:
  broker: tcp://localhost:1883
logging:
  level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"fpfh_template", "meshcnn"}, cfg.Detection.Detectors)
	assert.Equal(t, 200, cfg.Detection.CoarsePoints)
	assert.Equal(t, 30*time.Second, cfg.Detection.Timeout)
	assert.InDelta(t, 0.25, cfg.Detection.FeatureRadius, 1e-12)
	assert.True(t, cfg.Detection.Refine)

	params := cfg.ZoneParams()
	require.NotNil(t, params.Omega)
	assert.Equal(t, 50.0, *params.Omega)
	assert.Nil(t, params.LinearSpeed)
	assert.Equal(t, []string{"floor"}, params.NonRotatingPatches)

	snappy := cfg.SnappyOptions()
	assert.Equal(t, 5000000, snappy.MaxGlobalCells)
	assert.Equal(t, 1000000, snappy.MaxLocalCells)
	assert.Equal(t, r3.Vec{Z: 2}, snappy.LocationInMesh)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "automesh", cfg.MQTT.PublishPrefix)
	assert.Equal(t, "debug", cfg.Logging.Level)

	tc := cfg.TemplateDetectorConfig()
	assert.Equal(t, 200, tc.Matcher.CoarsePoints)
	assert.Equal(t, int64(42), tc.Matcher.Seed)
	assert.Equal(t, recognition.DescriptorFPFH, tc.Matcher.Descriptor.Method)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")

	_, err = LoadConfig(writeConfig(t, "detection: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config YAML")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"no detectors", "detection: {detectors: []}", "detection.detectors"},
		{"zero points", "detection: {coarsePoints: 0}", "detection.coarsePoints"},
		{"negative workers", "detection: {workers: -1}", "detection.workers"},
		{"bad descriptor", "detection: {descriptor: spin}", "unknown descriptor method"},
		{"radii", "detection: {normalRadius: 0.3, featureRadius: 0.2}", "feature radius"},
		{"negative omega", "rotation: {omega: -1}", "rotation.omega"},
		{"zero speed", "rotation: {linearSpeed: 0}", "rotation.linearSpeed"},
		{"sizing base", "sizing: {baseSize: 0}", "sizing.baseSize"},
		{"sizing factor", "sizing: {refinementFactor: 2}", "sizing.refinementFactor"},
		{"cell limits", "snappy: {maxLocalCells: 3000000}", "snappy.maxLocalCells"},
		{"location", "snappy: {locationInMesh: [1, 2]}", "snappy.locationInMesh"},
		{"log level", "logging: {level: loud}", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	omega := 79.37
	cfg.Rotation.Omega = &omega
	cfg.Detection.Timeout = 90 * time.Second
	cfg.Snappy.LocationInMesh = []float64{1, 0, 0.5}
	cfg.MQTT.Broker = "tcp://broker:1883"

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestConfigRuleTable(t *testing.T) {
	cfg := DefaultConfig()
	rules, err := cfg.RuleTable()
	require.NoError(t, err)
	assert.Equal(t, cfd.DefaultRules().Keys(), rules.Keys())

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spoiler:\n  levels: {edgeLength: 0.004, level: 5}\n"), 0644))
	cfg.Rules = path
	rules, err = cfg.RuleTable()
	require.NoError(t, err)
	key, rule := rules.Lookup("spoiler_0")
	assert.Equal(t, "spoiler", key)
	assert.Equal(t, 5, rule.Levels.Level)

	cfg.Rules = filepath.Join(t.TempDir(), "none.yaml")
	_, err = cfg.RuleTable()
	assert.Error(t, err)
}
