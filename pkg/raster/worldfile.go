package raster

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// WorldFileName returns the sidecar name for a raster file, following the
// usual convention of first and last extension letters plus "w"
// (.tif -> .tfw, .png -> .pgw).
func WorldFileName(rasterPath string) string {
	ext := filepath.Ext(rasterPath)
	base := strings.TrimSuffix(rasterPath, ext)
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if len(ext) < 2 {
		return base + ".wld"
	}
	return base + "." + ext[:1] + ext[len(ext)-1:] + "w"
}

// WriteWorldFile writes the six-line world file describing extent for a
// width x height raster. Line 5 and 6 hold the center of the upper-left
// pixel.
func WriteWorldFile(fs afero.Fs, filename string, extent Extent, width, height int) error {
	px, py := extent.Resolution(width, height)

	var buf bytes.Buffer
	// World file format: pixel size x, rotation, rotation, pixel size y (negative), top left x, top left y
	fmt.Fprintf(&buf, "%24.10f\n", px)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", -py)
	fmt.Fprintf(&buf, "%24.10f\n", extent.XMin+px/2)
	fmt.Fprintf(&buf, "%24.10f\n", extent.YMax-py/2)

	return afero.WriteFile(fs, filename, buf.Bytes(), 0o644)
}

// ReadWorldFile parses a world file and returns the extent it gives a
// width x height raster. Rotated world files are rejected.
func ReadWorldFile(fs afero.Fs, filename string, width, height int) (Extent, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return Extent{}, err
	}

	var v []float64
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		f, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Extent{}, fmt.Errorf("world file %s line %d: %v", filename, len(v)+1, err)
		}
		v = append(v, f)
	}
	if err := sc.Err(); err != nil {
		return Extent{}, err
	}
	if len(v) != 6 {
		return Extent{}, fmt.Errorf("world file %s: expected 6 values, got %d", filename, len(v))
	}
	if v[1] != 0 || v[2] != 0 {
		return Extent{}, fmt.Errorf("world file %s: rotated rasters are not supported", filename)
	}

	px, py := v[0], -v[3]
	xMin := v[4] - px/2
	yMax := v[5] + py/2
	return Extent{
		XMin: xMin,
		YMin: yMax - py*float64(height),
		XMax: xMin + px*float64(width),
		YMax: yMax,
	}, nil
}
