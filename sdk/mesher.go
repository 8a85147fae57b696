// Package sdk ties mesh loading, feature detection and CFD export into one
// session object.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kwv/automesh/cfd"
	"github.com/kwv/automesh/mesh"
	"github.com/kwv/automesh/publish"
	"github.com/kwv/automesh/recognition"
	"go.uber.org/zap"
)

// Session precondition errors.
var (
	ErrNoTarget    = errors.New("no target mesh loaded")
	ErrNotDetected = errors.New("feature detection has not run")
	ErrNoRegions   = errors.New("no refinement regions generated")
	ErrNoTemplates = errors.New("no template could be loaded")
)

// Options configure a new AutoMesher. Zero values select defaults.
type Options struct {
	Config   *Config
	Registry *recognition.Registry
	Backend  recognition.LearnedBackend
	Log      *zap.Logger
}

// AutoMesher is one meshing session: load a target, detect features, turn
// them into refinement regions and rotating zones, export an OpenFOAM case.
// It is not safe for concurrent use.
type AutoMesher struct {
	cfg      *Config
	registry *recognition.Registry
	backend  recognition.LearnedBackend
	rules    cfd.RuleTable
	log      *zap.Logger

	target     *mesh.Mesh
	targetPath string
	detections []recognition.DetectionResult
	detected   bool
	regions    []cfd.RefinementRegion
	zones      []cfd.RotatingZone
}

// New validates the configuration, loads the rule table and checks that
// every configured detector is registered.
func New(opts Options) (*AutoMesher, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry := opts.Registry
	if registry == nil {
		registry = recognition.DefaultRegistry()
	}
	for _, name := range cfg.Detection.Detectors {
		if _, ok := registry.Lookup(name); !ok {
			return nil, fmt.Errorf("detection.detectors: %q: %w", name, recognition.ErrUnknownDetector)
		}
	}
	rules, err := cfg.RuleTable()
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoMesher{
		cfg:      cfg,
		registry: registry,
		backend:  opts.Backend,
		rules:    rules,
		log:      log,
	}, nil
}

// Config returns the session configuration.
func (a *AutoMesher) Config() *Config { return a.cfg }

// Rules returns the rule table regions and zones are generated from.
func (a *AutoMesher) Rules() cfd.RuleTable { return a.rules }

// LoadTarget reads the geometry to analyse and resets earlier results.
func (a *AutoMesher) LoadTarget(path string) (*mesh.Mesh, error) {
	m, err := mesh.Load(path)
	if err != nil {
		return nil, err
	}
	a.SetTarget(m)
	a.targetPath = path
	a.log.Info("loaded target",
		zap.String("path", path),
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("faces", len(m.Faces)))
	return m, nil
}

// SetTarget uses an in-memory mesh as the target and resets earlier results.
func (a *AutoMesher) SetTarget(m *mesh.Mesh) {
	a.target = m
	a.targetPath = ""
	a.detections = nil
	a.detected = false
	a.regions = nil
	a.zones = nil
}

// Target returns the loaded target, or nil.
func (a *AutoMesher) Target() *mesh.Mesh { return a.target }

// Detections returns the results of the last DetectFeatures call.
func (a *AutoMesher) Detections() []recognition.DetectionResult { return a.detections }

// Regions returns the regions of the last GenerateRefinement call.
func (a *AutoMesher) Regions() []cfd.RefinementRegion { return a.regions }

// Zones returns the rotating zones of the last GenerateRefinement call.
func (a *AutoMesher) Zones() []cfd.RotatingZone { return a.zones }

// DetectFeatures loads the templates, runs the configured detectors as an
// ensemble over the target and relabels template detections as
// {type}_{position}. The type is the template file name up to its first
// underscore, so wheel_18inch.stl yields wheel. Unreadable templates are
// skipped with a warning.
func (a *AutoMesher) DetectFeatures(ctx context.Context, templatePaths []string) ([]recognition.DetectionResult, error) {
	if a.target == nil {
		return nil, ErrNoTarget
	}

	var templates []*mesh.Mesh
	var types []string
	for _, path := range templatePaths {
		m, err := mesh.Load(path)
		if err != nil {
			a.log.Warn("skipping template", zap.String("path", path), zap.Error(err))
			continue
		}
		templates = append(templates, m)
		types = append(types, FeatureTypeFromPath(path))
	}
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}

	dets, err := a.detect(ctx, templates)
	if err != nil {
		return nil, err
	}
	for i := range dets {
		if t := dets[i].TemplateIndex; t >= 0 && t < len(types) {
			dets[i].FeatureID = fmt.Sprintf("%s_%d", types[t], i)
		}
	}

	a.detections = dets
	a.detected = true
	a.regions = nil
	a.zones = nil
	a.log.Info("detected features",
		zap.Int("templates", len(templates)),
		zap.Int("detections", len(dets)))
	return dets, nil
}

func (a *AutoMesher) detect(ctx context.Context, templates []*mesh.Mesh) ([]recognition.DetectionResult, error) {
	opts := recognition.FactoryOptions{
		Templates: templates,
		Template:  a.cfg.TemplateDetectorConfig(),
		Backend:   a.backend,
		Log:       a.log,
	}
	detectors := make([]recognition.Detector, 0, len(a.cfg.Detection.Detectors))
	for _, name := range a.cfg.Detection.Detectors {
		d, err := a.registry.New(name, opts)
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, d)
	}

	if timeout := a.cfg.Detection.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dets, err := recognition.NewEnsemble(a.log, detectors...).Detect(ctx, a.target)
	if err != nil {
		return nil, fmt.Errorf("detecting features: %w", err)
	}
	return dets, nil
}

// FeatureTypeFromPath returns the lower-cased file name stem up to its first
// underscore, or "unknown" for an empty stem.
func FeatureTypeFromPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(stem, "_"); i >= 0 {
		stem = stem[:i]
	}
	if stem == "" || stem == "." {
		return "unknown"
	}
	return strings.ToLower(stem)
}

// GenerateRefinement builds refinement regions for every detection and, when
// enableRotatingZones is set, rotating zones for detections whose type
// rotates. customRules are merged over the session rules; params defaults
// to the rotation section of the config.
func (a *AutoMesher) GenerateRefinement(customRules cfd.RuleTable, enableRotatingZones bool, params *cfd.ZoneParams) ([]cfd.RefinementRegion, error) {
	if !a.detected {
		return nil, ErrNotDetected
	}

	rules := a.rules
	if len(customRules) > 0 {
		rules = rules.Merge(customRules)
		if err := rules.Validate(); err != nil {
			return nil, fmt.Errorf("custom rules: %w", err)
		}
	}

	a.regions = cfd.NewRegionGenerator(rules).Generate(a.detections)
	a.zones = nil
	if enableRotatingZones {
		p := a.cfg.ZoneParams()
		if params != nil {
			p = *params
		}
		a.zones = cfd.NewMRFGenerator(rules).Generate(a.detections, p)
		a.log.Debug("generated rotating zones", zap.Stringer("params", p), zap.Int("zones", len(a.zones)))
	}
	a.log.Info("generated refinement",
		zap.Int("regions", len(a.regions)),
		zap.Int("zones", len(a.zones)))
	return a.regions, nil
}

// IsCaseDir reports whether path names a case directory: an existing
// directory or a path ending in a separator.
func IsCaseDir(path string) bool {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ExportConfiguration writes the generated regions and returns the files
// written. A case directory receives system/snappyHexMeshDict and, with
// includeRotatingZones, constant/MRFProperties and system/topoSetDict plus
// the footprint GeoJSON. Any other path receives the snappyHexMeshDict only;
// rotating zones are then dropped with a warning.
func (a *AutoMesher) ExportConfiguration(path string, includeRotatingZones bool) ([]string, error) {
	if len(a.regions) == 0 {
		return nil, ErrNoRegions
	}

	snappy := a.cfg.SnappyOptions()
	if IsCaseDir(path) {
		opts := cfd.DefaultCaseOptions()
		opts.Snappy = snappy
		opts.RotatingZones = includeRotatingZones
		rel, err := cfd.ExportCase(path, a.regions, a.zones, opts)
		if err != nil {
			return nil, err
		}
		written := make([]string, len(rel))
		for i, r := range rel {
			written[i] = filepath.Join(path, r)
		}
		a.log.Info("exported case", zap.String("dir", path), zap.Strings("files", rel))
		return written, nil
	}

	if err := cfd.WriteSnappyFile(path, a.regions, snappy); err != nil {
		return nil, err
	}
	if includeRotatingZones && len(a.zones) > 0 {
		a.log.Warn("rotating zones need a case directory; only snappyHexMeshDict was written",
			zap.Int("zones", len(a.zones)),
			zap.String("hint", filepath.Dir(path)+string(os.PathSeparator)))
	}
	a.log.Info("exported snappyHexMeshDict", zap.String("path", path))
	return []string{path}, nil
}

// ExportSizingField writes the fTetWild sizing field for the detections.
func (a *AutoMesher) ExportSizingField(path string) error {
	if !a.detected {
		return ErrNotDetected
	}
	field := cfd.SizingField(a.detections, a.cfg.Sizing)
	if err := cfd.WriteSizingFile(path, field); err != nil {
		return err
	}
	a.log.Info("exported sizing field", zap.String("path", path), zap.Int("spheres", len(field)))
	return nil
}

// Report summarises the session for publishing.
func (a *AutoMesher) Report() publish.RunReport {
	return publish.NewRunReport(a.targetPath, a.detections, a.regions, a.zones)
}
