package raster

import "fmt"

// Source gives read access to the bands of a decoded raster
type Source interface {
	Width() int
	Height() int
	BandCount() int
	Extent() Extent
	// ValueAt returns the value of the pixel at (col, row) in the given band.
	ValueAt(band, col, row int) float64
}

// Extent represents geographic bounds in the raster's own coordinate units
type Extent struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Valid reports whether the extent has positive width and height.
func (e Extent) Valid() bool {
	return e.XMax > e.XMin && e.YMax > e.YMin
}

// Resolution returns the size of one pixel when the extent is divided
// into width x height cells
func (e Extent) Resolution(width, height int) (float64, float64) {
	return (e.XMax - e.XMin) / float64(width), (e.YMax - e.YMin) / float64(height)
}

func (e Extent) String() string {
	return fmt.Sprintf("%.17g,%.17g to %.17g,%.17g", e.XMin, e.YMin, e.XMax, e.YMax)
}

// PixelBox is an inclusive rectangle in pixel space
type PixelBox struct {
	MinCol int `json:"min_col"`
	MinRow int `json:"min_row"`
	MaxCol int `json:"max_col"`
	MaxRow int `json:"max_row"`
}

func (b PixelBox) Width() int  { return b.MaxCol - b.MinCol + 1 }
func (b PixelBox) Height() int { return b.MaxRow - b.MinRow + 1 }

// Layer is one entry of a host selection
type Layer interface {
	// Name is the display name; the output folder derives from it.
	Name() string
	// Location is the directory of the datastore holding the layer.
	Location() string
	// Open resolves the layer to a raster. It returns an *InvalidRasterError
	// when the layer is not a readable raster.
	Open() (Source, error)
}

// InvalidRasterError reports a layer that does not resolve to a raster dataset
type InvalidRasterError struct {
	Layer string
	Err   error
}

func (e *InvalidRasterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("layer %q is not a raster", e.Layer)
	}
	return fmt.Sprintf("layer %q is not a raster: %v", e.Layer, e.Err)
}

func (e *InvalidRasterError) Unwrap() error {
	return e.Err
}
