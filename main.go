package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	Input             string
	Templates         []string
	Output            string
	MRF               bool
	Omega             *float64
	VehicleSpeed      *float64
	FullCase          bool
	SizingFile        string
	ConfigFile        string
	LogLevel          string
	LogFile           string
	DetectOnly        bool
	Inspect           bool
	GenerateTemplates string
	ListDetectors     bool
	ShowVersion       bool
}

// Runner executes one CLI mode.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunPipeline() error
	RunDetectOnly() error
	RunInspect() error
	RunGenerateTemplates(dir string) error
	RunListDetectors() error
}

// listFlag collects comma separated values; the flag may be repeated.
type listFlag struct{ values *[]string }

func (l listFlag) String() string {
	if l.values == nil {
		return ""
	}
	return strings.Join(*l.values, ",")
}

func (l listFlag) Set(s string) error {
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l.values = append(*l.values, v)
		}
	}
	return nil
}

// optionalFloat is a float flag that records whether it was given.
type optionalFloat struct{ value **float64 }

func (o optionalFloat) String() string {
	if o.value == nil || *o.value == nil {
		return ""
	}
	return strconv.FormatFloat(**o.value, 'g', -1, 64)
}

func (o optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*o.value = &v
	return nil
}

func run(args []string, out io.Writer, app Runner) error {
	var opts AppOptions
	fs := flag.NewFlagSet("automesh", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&opts.Input, "i", "", "Target geometry file (.stl or .obj)")
	fs.Var(listFlag{&opts.Templates}, "t", "Template files, comma separated or repeated (e.g. wheel_18inch.stl,mirror_std.stl)")
	fs.StringVar(&opts.Output, "o", "", "Output: a directory (existing or trailing /) for a full case, otherwise a snappyHexMeshDict file")
	fs.BoolVar(&opts.MRF, "mrf", false, "Generate MRF rotating zones for rotating features")
	fs.Var(optionalFloat{&opts.Omega}, "omega", "Angular velocity for rotating zones in rad/s (default: from rules or vehicle speed)")
	fs.Var(optionalFloat{&opts.VehicleSpeed}, "vehicle-speed", "Vehicle speed in m/s; rolling features get omega = speed / radius")
	fs.BoolVar(&opts.FullCase, "full-case", false, "Treat -o as a case directory")
	fs.StringVar(&opts.SizingFile, "sizing", "", "Also write an fTetWild sizing field to this file")
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to configuration file")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	fs.StringVar(&opts.LogFile, "log-file", "", "Also log to this rotating file (overrides config)")
	fs.BoolVar(&opts.DetectOnly, "detect-only", false, "Run detection and print the detections as JSON")
	fs.BoolVar(&opts.Inspect, "inspect", false, "Print a quality report for -i and exit")
	fs.StringVar(&opts.GenerateTemplates, "generate-templates", "", "Write the built-in template library to this directory and exit")
	fs.BoolVar(&opts.ListDetectors, "list-detectors", false, "List registered detectors and exit")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print the version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "automesh version: %s\n", Version)
	if opts.ShowVersion {
		return nil
	}

	app.ApplyOptions(opts)

	switch {
	case opts.ListDetectors:
		return app.RunListDetectors()
	case opts.GenerateTemplates != "":
		return app.RunGenerateTemplates(opts.GenerateTemplates)
	}

	if opts.Input == "" {
		fs.Usage()
		return errors.New("-i is required")
	}

	switch {
	case opts.Inspect:
		return app.RunInspect()
	case opts.DetectOnly:
		if len(opts.Templates) == 0 {
			return errors.New("-t is required with -detect-only")
		}
		return app.RunDetectOnly()
	}

	if len(opts.Templates) == 0 {
		return errors.New("-t is required")
	}
	if opts.Output == "" {
		return errors.New("-o is required")
	}
	return app.RunPipeline()
}

func main() {
	app := NewApp(os.Stdout)
	defer app.Close()

	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		app.Close()
		os.Exit(1)
	}
}
