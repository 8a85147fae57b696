package sdk

import (
	"fmt"
	"os"
	"time"

	"github.com/kwv/automesh/cfd"
	"github.com/kwv/automesh/logger"
	"github.com/kwv/automesh/publish"
	"github.com/kwv/automesh/recognition"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Config is the automesh configuration file.
type Config struct {
	Detection DetectionConfig  `yaml:"detection"`
	Rules     string           `yaml:"rules,omitempty"`
	Rotation  RotationConfig   `yaml:"rotation"`
	Sizing    cfd.SizingParams `yaml:"sizing"`
	Snappy    SnappyConfig     `yaml:"snappy"`
	MQTT      publish.Config   `yaml:"mqtt"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// DetectionConfig selects detectors and tunes descriptor matching.
type DetectionConfig struct {
	Detectors     []string      `yaml:"detectors"`
	CoarsePoints  int           `yaml:"coarsePoints"`
	Descriptor    string        `yaml:"descriptor"`
	NormalRadius  float64       `yaml:"normalRadius"`
	FeatureRadius float64       `yaml:"featureRadius"`
	Workers       int           `yaml:"workers"`
	Seed          int64         `yaml:"seed"`
	Refine        bool          `yaml:"refine"`
	Timeout       time.Duration `yaml:"timeout"`
}

// RotationConfig supplies defaults for rotating zone creation.
type RotationConfig struct {
	Omega              *float64 `yaml:"omega"`
	LinearSpeed        *float64 `yaml:"linearSpeed"`
	RadiusScale        float64  `yaml:"radiusScale,omitempty"`
	HeightScale        float64  `yaml:"heightScale,omitempty"`
	NonRotatingPatches []string `yaml:"nonRotatingPatches"`
}

// SnappyConfig holds the castellatedMeshControls and the seed point.
type SnappyConfig struct {
	cfd.SnappyOptions `yaml:",inline"`
	LocationInMesh    []float64 `yaml:"locationInMesh,omitempty"`
}

// LoggingConfig sets the log level and optional rotating file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	match := recognition.DefaultMatcherConfig()
	return &Config{
		Detection: DetectionConfig{
			Detectors:     []string{recognition.TemplateDetectorName},
			CoarsePoints:  match.CoarsePoints,
			Descriptor:    string(match.Descriptor.Method),
			NormalRadius:  match.Descriptor.NormalRadius,
			FeatureRadius: match.Descriptor.FeatureRadius,
			Seed:          match.Seed,
			Refine:        true,
		},
		Rotation: RotationConfig{NonRotatingPatches: []string{}},
		Sizing:   cfd.DefaultSizingParams(),
		Snappy:   SnappyConfig{SnappyOptions: cfd.DefaultSnappyOptions()},
		MQTT:     publish.Config{ClientID: "automesh", PublishPrefix: publish.DefaultPrefix},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	d := c.Detection
	if len(d.Detectors) == 0 {
		return fmt.Errorf("detection.detectors must name at least one detector")
	}
	for i, name := range d.Detectors {
		if name == "" {
			return fmt.Errorf("detection.detectors[%d] is empty", i)
		}
	}
	if d.CoarsePoints <= 0 {
		return fmt.Errorf("detection.coarsePoints must be positive, got %d", d.CoarsePoints)
	}
	if d.Workers < 0 {
		return fmt.Errorf("detection.workers must not be negative, got %d", d.Workers)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("detection.timeout must not be negative, got %v", d.Timeout)
	}
	if err := c.descriptorConfig().Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}

	r := c.Rotation
	if r.Omega != nil && *r.Omega < 0 {
		return fmt.Errorf("rotation.omega must not be negative, got %g", *r.Omega)
	}
	if r.LinearSpeed != nil && *r.LinearSpeed <= 0 {
		return fmt.Errorf("rotation.linearSpeed must be positive, got %g", *r.LinearSpeed)
	}
	if r.RadiusScale < 0 || r.HeightScale < 0 {
		return fmt.Errorf("rotation scale factors must not be negative")
	}

	if c.Sizing.BaseSize <= 0 {
		return fmt.Errorf("sizing.baseSize must be positive, got %g", c.Sizing.BaseSize)
	}
	if c.Sizing.RefinementFactor <= 0 || c.Sizing.RefinementFactor > 1 {
		return fmt.Errorf("sizing.refinementFactor must be in (0, 1], got %g", c.Sizing.RefinementFactor)
	}

	s := c.Snappy
	if s.MaxLocalCells <= 0 || s.MaxGlobalCells <= 0 {
		return fmt.Errorf("snappy cell limits must be positive")
	}
	if s.MaxLocalCells > s.MaxGlobalCells {
		return fmt.Errorf("snappy.maxLocalCells (%d) exceeds snappy.maxGlobalCells (%d)", s.MaxLocalCells, s.MaxGlobalCells)
	}
	if s.LocationInMesh != nil && len(s.LocationInMesh) != 3 {
		return fmt.Errorf("snappy.locationInMesh needs 3 components, got %d", len(s.LocationInMesh))
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) descriptorConfig() recognition.DescriptorConfig {
	def := recognition.DefaultDescriptorConfig()
	def.Method = recognition.DescriptorMethod(c.Detection.Descriptor)
	def.NormalRadius = c.Detection.NormalRadius
	def.FeatureRadius = c.Detection.FeatureRadius
	return def
}

// TemplateDetectorConfig maps the detection section onto the template detector.
func (c *Config) TemplateDetectorConfig() recognition.TemplateDetectorConfig {
	cfg := recognition.DefaultTemplateDetectorConfig()
	cfg.Matcher.CoarsePoints = c.Detection.CoarsePoints
	cfg.Matcher.Seed = c.Detection.Seed
	cfg.Matcher.Descriptor = c.descriptorConfig()
	cfg.Workers = c.Detection.Workers
	cfg.Refine = c.Detection.Refine
	return cfg
}

// ZoneParams maps the rotation section onto zone creation overrides.
func (c *Config) ZoneParams() cfd.ZoneParams {
	return cfd.ZoneParams{
		Omega:              c.Rotation.Omega,
		LinearSpeed:        c.Rotation.LinearSpeed,
		RadiusScale:        c.Rotation.RadiusScale,
		HeightScale:        c.Rotation.HeightScale,
		NonRotatingPatches: c.Rotation.NonRotatingPatches,
	}
}

// SnappyOptions returns the snappy controls including the seed point.
func (c *Config) SnappyOptions() cfd.SnappyOptions {
	opts := c.Snappy.SnappyOptions
	if len(c.Snappy.LocationInMesh) == 3 {
		p := c.Snappy.LocationInMesh
		opts.LocationInMesh = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return opts
}

// RuleTable loads the rules file when one is configured, otherwise the
// built-in rules.
func (c *Config) RuleTable() (cfd.RuleTable, error) {
	if c.Rules == "" {
		return cfd.DefaultRules(), nil
	}
	return cfd.LoadRules(c.Rules)
}
