package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/automesh/cfd"
	"github.com/kwv/automesh/logger"
	"github.com/kwv/automesh/mesh"
	"github.com/kwv/automesh/publish"
	"github.com/kwv/automesh/qa"
	"github.com/kwv/automesh/recognition"
	"github.com/kwv/automesh/sdk"
	"go.uber.org/zap"
)

// overlapThreshold is the IoU above which the run summary flags regions or
// detections as overlapping.
const overlapThreshold = 0.5

// DialFunc connects to the report broker. A nil client disables publishing.
type DialFunc func(ctx context.Context, cfg publish.Config, log *zap.Logger) (mqtt.Client, error)

// App encapsulates the application state and dependencies
type App struct {
	Out      io.Writer
	Options  AppOptions
	Config   *sdk.Config
	Log      *zap.Logger
	Registry *recognition.Registry
	Backend  recognition.LearnedBackend
	Dial     DialFunc
	// LogConsole receives console logs; stdout stays free for results.
	LogConsole io.Writer
}

// NewApp creates a new App writing results to out
func NewApp(out io.Writer) *App {
	return &App{
		Out:        out,
		Registry:   recognition.DefaultRegistry(),
		Dial:       publish.Dial,
		LogConsole: os.Stderr,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.Options = opts
}

// Close flushes the logger.
func (a *App) Close() {
	logger.Sync(a.Log)
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (a *App) setup() error {
	cfg := sdk.DefaultConfig()
	if a.Options.ConfigFile != "" {
		loaded, err := sdk.LoadConfig(a.Options.ConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if a.Options.LogLevel != "" {
		cfg.Logging.Level = a.Options.LogLevel
	}
	if a.Options.LogFile != "" {
		cfg.Logging.File = a.Options.LogFile
	}
	if a.Options.Omega != nil {
		cfg.Rotation.Omega = a.Options.Omega
	}
	if a.Options.VehicleSpeed != nil {
		cfg.Rotation.LinearSpeed = a.Options.VehicleSpeed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.Config = cfg

	if a.Log == nil {
		log, err := logger.New(cfg.Logging.Level, cfg.Logging.File, a.LogConsole)
		if err != nil {
			return err
		}
		a.Log = log
	}
	return nil
}

func (a *App) newMesher() (*sdk.AutoMesher, error) {
	return sdk.New(sdk.Options{
		Config:   a.Config,
		Registry: a.Registry,
		Backend:  a.Backend,
		Log:      a.Log,
	})
}

// detect loads the target and runs detection over the templates.
func (a *App) detect(ctx context.Context) (*sdk.AutoMesher, []recognition.DetectionResult, error) {
	if err := a.setup(); err != nil {
		return nil, nil, err
	}
	m, err := a.newMesher()
	if err != nil {
		return nil, nil, err
	}
	if _, err := m.LoadTarget(a.Options.Input); err != nil {
		return nil, nil, err
	}
	dets, err := m.DetectFeatures(ctx, a.Options.Templates)
	if err != nil {
		return nil, nil, err
	}
	return m, dets, nil
}

// RunPipeline detects features, generates refinement and exports the case.
func (a *App) RunPipeline() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, dets, err := a.detect(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Detected %d feature(s):\n", len(dets))
	for _, d := range dets {
		fmt.Fprintf(a.Out, "  - %s: %.1f%% confidence (%s)\n", d.FeatureID, d.Confidence*100, d.Detector)
	}

	regions, err := m.GenerateRefinement(nil, a.Options.MRF, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Generated %d refinement region(s)\n", len(regions))
	if a.Options.MRF {
		for _, z := range m.Zones() {
			fmt.Fprintf(a.Out, "  - %s: omega %s, radius %.3f\n", z.Name, z.Omega, z.CellZone.Radius)
		}
	}
	a.printOverlaps(regions, dets)

	output := a.Options.Output
	if a.Options.FullCase && !sdk.IsCaseDir(output) {
		output += string(os.PathSeparator)
	}
	written, err := m.ExportConfiguration(output, a.Options.MRF)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintf(a.Out, "Wrote %s\n", path)
	}

	if a.Options.SizingFile != "" {
		if err := m.ExportSizingField(a.Options.SizingFile); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Wrote %s\n", a.Options.SizingFile)
	}

	a.publishReport(ctx, m.Report())
	return nil
}

func (a *App) printOverlaps(regions []cfd.RefinementRegion, dets []recognition.DetectionResult) {
	for _, o := range qa.DuplicateDetections(dets, overlapThreshold) {
		a.Log.Warn("detections overlap", zap.String("a", o.A), zap.String("b", o.B), zap.Float64("iou", o.IoU))
	}
	overlaps := qa.OverlappingRegions(regions, overlapThreshold)
	if len(overlaps) == 0 {
		return
	}
	fmt.Fprintf(a.Out, "%d overlapping region pair(s) above IoU %.2f:\n", len(overlaps), overlapThreshold)
	for _, o := range overlaps {
		fmt.Fprintf(a.Out, "  - %s / %s: %.2f\n", o.A, o.B, o.IoU)
	}
}

// publishReport sends the run report when a broker is configured. Failures
// are logged, never returned.
func (a *App) publishReport(ctx context.Context, report publish.RunReport) {
	if a.Dial == nil {
		return
	}
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := a.Dial(dialCtx, a.Config.MQTT, a.Log)
	if err != nil {
		a.Log.Warn("run report not published", zap.Error(err))
		return
	}
	if client == nil {
		return
	}
	defer client.Disconnect(250)

	p := publish.NewPublisher(client, a.Config.MQTT.Resolve().PublishPrefix, a.Log)
	if err := p.PublishReport(report); err != nil {
		a.Log.Warn("run report not published", zap.Error(err))
		return
	}
	fmt.Fprintf(a.Out, "Published run %s to %s\n", report.RunID, p.RunTopic(report.RunID))
}

// RunDetectOnly prints the detections as JSON.
func (a *App) RunDetectOnly() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, dets, err := a.detect(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dets); err != nil {
		return fmt.Errorf("encoding detections: %w", err)
	}
	return nil
}

// RunInspect prints a quality report for the input mesh.
func (a *App) RunInspect() error {
	m, err := mesh.Load(a.Options.Input)
	if err != nil {
		return err
	}
	q := mesh.CheckQuality(m)
	size := m.Extents()

	fmt.Fprintf(a.Out, "=== %s ===\n", filepath.Base(a.Options.Input))
	fmt.Fprintf(a.Out, "Vertices: %d, Faces: %d\n", q.VertexCount, q.FaceCount)
	fmt.Fprintf(a.Out, "Bounds: (%.4f, %.4f, %.4f) - (%.4f, %.4f, %.4f)\n",
		q.Bounds.Min.X, q.Bounds.Min.Y, q.Bounds.Min.Z, q.Bounds.Max.X, q.Bounds.Max.Y, q.Bounds.Max.Z)
	fmt.Fprintf(a.Out, "Size: %.4f x %.4f x %.4f\n", size.X, size.Y, size.Z)
	fmt.Fprintf(a.Out, "Surface area: %.6f\n", q.SurfaceArea)
	fmt.Fprintf(a.Out, "Watertight: %v\n", q.Watertight)
	if q.Watertight {
		fmt.Fprintf(a.Out, "Volume: %.6f\n", q.Volume)
	}
	fmt.Fprintf(a.Out, "Degenerate faces: %d\n", q.DegenerateFaces)
	return nil
}

// RunGenerateTemplates writes the built-in template library to dir.
func (a *App) RunGenerateTemplates(dir string) error {
	templates := mesh.AutomotiveTemplates()
	for _, t := range templates {
		path := filepath.Join(dir, t.Name)
		if err := mesh.Save(t.Mesh, path); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Wrote %s (%d faces)\n", path, len(t.Mesh.Faces))
	}
	fmt.Fprintf(a.Out, "Generated %d template(s) in %s\n", len(templates), dir)
	return nil
}

// RunListDetectors prints the registered detector names.
func (a *App) RunListDetectors() error {
	fmt.Fprintf(a.Out, "Detectors: %s\n", strings.Join(a.Registry.Names(), ", "))
	return nil
}
