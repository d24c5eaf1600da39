package raster

import "fmt"

// Grid is an in-memory multi-band raster. Each band is stored row-major.
type Grid struct {
	width  int
	height int
	extent Extent
	epsg   int
	bands  [][]float64
}

var (
	_ Source     = (*Grid)(nil)
	_ Referenced = (*Grid)(nil)
)

// NewGrid allocates a zero-filled grid
func NewGrid(width, height, bands int, extent Extent) *Grid {
	g := &Grid{
		width:  width,
		height: height,
		extent: extent,
		bands:  make([][]float64, bands),
	}
	for i := range g.bands {
		g.bands[i] = make([]float64, width*height)
	}
	return g
}

// NewGridFromBands wraps existing row-major band buffers. Every buffer must
// hold exactly width*height values.
func NewGridFromBands(width, height int, extent Extent, bands ...[]float64) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster has no bands")
	}
	for i, b := range bands {
		if len(b) != width*height {
			return nil, fmt.Errorf("band %d holds %d values, want %d", i, len(b), width*height)
		}
	}
	return &Grid{width: width, height: height, extent: extent, bands: bands}, nil
}

func (g *Grid) Width() int     { return g.width }
func (g *Grid) Height() int    { return g.height }
func (g *Grid) BandCount() int { return len(g.bands) }
func (g *Grid) Extent() Extent { return g.extent }

func (g *Grid) ValueAt(band, col, row int) float64 {
	return g.bands[band][row*g.width+col]
}

// Set writes one pixel value.
func (g *Grid) Set(band, col, row int, v float64) {
	g.bands[band][row*g.width+col] = v
}

// Band returns the backing buffer of one band.
func (g *Grid) Band(band int) []float64 {
	return g.bands[band]
}

// SetExtent replaces the georeferencing of the grid.
func (g *Grid) SetExtent(e Extent) {
	g.extent = e
}

// EPSG returns the reference code read from the file, 0 when unknown.
func (g *Grid) EPSG() int { return g.epsg }
