// Package geotiff reads and writes the subset of GeoTIFF used for analysis
// rasters: a single IFD, strip-organised, uncompressed or Deflate samples of
// integer or IEEE floating point type, georeferenced by a pixel scale and a
// single tiepoint.
//
// Files outside that subset are reported with ErrUnsupported so callers can
// fall back to a general purpose decoder.
package geotiff

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTIFF is returned when the input does not start with a TIFF header.
	ErrNotTIFF = errors.New("geotiff: not a TIFF file")
	// ErrUnsupported is returned for valid TIFF files using features this
	// package does not implement.
	ErrUnsupported = errors.New("geotiff: unsupported feature")
	// ErrTooLarge is returned when an image holds more samples than the
	// decode limit.
	ErrTooLarge = errors.New("geotiff: image exceeds sample limit")
)

// FormatError reports a malformed file.
type FormatError string

func (e FormatError) Error() string { return "geotiff: invalid format: " + string(e) }

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnsupported}, args...)...)
}

// Image is a decoded multi-band raster. Bands are stored row-major.
type Image struct {
	Width  int
	Height int
	Bands  [][]float64
	Georef *Georef
}

// Georef places the image in a coordinate reference system. OriginX and
// OriginY are the outer corner of the upper-left pixel; ScaleX and ScaleY are
// positive pixel sizes, Y growing downward in pixel space.
type Georef struct {
	OriginX float64
	OriginY float64
	ScaleX  float64
	ScaleY  float64
	// EPSG is the code of the geographic or projected reference, 0 when
	// unknown.
	EPSG int
}

func (img *Image) validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("geotiff: invalid image size %dx%d", img.Width, img.Height)
	}
	if len(img.Bands) == 0 {
		return errors.New("geotiff: image has no bands")
	}
	if len(img.Bands) > 0xFFFF {
		return fmt.Errorf("geotiff: too many bands (%d)", len(img.Bands))
	}
	for i, b := range img.Bands {
		if len(b) != img.Width*img.Height {
			return fmt.Errorf("geotiff: band %d holds %d values, want %d", i, len(b), img.Width*img.Height)
		}
	}
	if img.Georef != nil && (img.Georef.EPSG < 0 || img.Georef.EPSG > 0xFFFF) {
		return fmt.Errorf("geotiff: EPSG code %d does not fit a GeoKey", img.Georef.EPSG)
	}
	return nil
}
