package cfd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Case file locations relative to the case directory.
const (
	SnappyDictPath     = "system/snappyHexMeshDict"
	TopoSetDictPath    = "system/topoSetDict"
	MRFPropertiesPath  = "constant/MRFProperties"
	FootprintsFilePath = "constant/refinementFootprints.geojson"
)

// CaseOptions select what ExportCase writes.
type CaseOptions struct {
	Snappy SnappyOptions
	// RotatingZones writes MRFProperties and topoSetDict when zones exist.
	RotatingZones bool
	// Footprints writes the GeoJSON plan view of regions and zones.
	Footprints bool
}

// DefaultCaseOptions writes everything with the default snappy controls.
func DefaultCaseOptions() CaseOptions {
	return CaseOptions{
		Snappy:        DefaultSnappyOptions(),
		RotatingZones: true,
		Footprints:    true,
	}
}

// ExportCase writes an OpenFOAM case skeleton under dir and returns the
// files written, relative to dir.
func ExportCase(dir string, regions []RefinementRegion, zones []RotatingZone, opts CaseOptions) ([]string, error) {
	var written []string
	write := func(rel string, fn func(io.Writer) error) error {
		if err := writeFile(filepath.Join(dir, filepath.FromSlash(rel)), fn); err != nil {
			return err
		}
		written = append(written, rel)
		return nil
	}

	if err := write(SnappyDictPath, func(w io.Writer) error {
		return WriteSnappyHexMeshDict(w, regions, opts.Snappy)
	}); err != nil {
		return written, err
	}

	if opts.RotatingZones && len(zones) > 0 {
		if err := write(MRFPropertiesPath, func(w io.Writer) error {
			return WriteMRFProperties(w, zones)
		}); err != nil {
			return written, err
		}
		if err := write(TopoSetDictPath, func(w io.Writer) error {
			return WriteTopoSetDict(w, zones)
		}); err != nil {
			return written, err
		}
	}

	if opts.Footprints {
		var fz []RotatingZone
		if opts.RotatingZones {
			fz = zones
		}
		if err := write(FootprintsFilePath, func(w io.Writer) error {
			return WriteFootprints(w, Footprints(regions, fz))
		}); err != nil {
			return written, err
		}
	}
	return written, nil
}

// WriteSnappyFile writes a single snappyHexMeshDict to path.
func WriteSnappyFile(path string, regions []RefinementRegion, opts SnappyOptions) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSnappyHexMeshDict(w, regions, opts)
	})
}

// WriteSizingFile writes a sizing field JSON file to path.
func WriteSizingFile(path string, field []SizingSphere) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSizingField(w, field)
	})
}

func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
