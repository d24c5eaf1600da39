package crop

import (
	"fmt"

	"github.com/kiesman99/bandcrop/pkg/raster"
)

// ToGeoExtent maps a pixel box of src to georeferenced bounds.
func ToGeoExtent(src raster.Source, box raster.PixelBox) (raster.Extent, error) {
	return GeoExtent(src.Extent(), src.Width(), src.Height(), box)
}

// GeoExtent maps a pixel box of a width x height raster covering extent to
// georeferenced bounds. Rows grow downward while Y grows upward, so the last
// row gives the lower Y bound.
func GeoExtent(extent raster.Extent, width, height int, box raster.PixelBox) (raster.Extent, error) {
	resX, resY := extent.Resolution(width, height)

	out := raster.Extent{
		XMin: extent.XMin + resX*float64(box.MinCol),
		YMin: extent.YMax - resY*float64(box.MaxRow) - resY,
		XMax: extent.XMin + resX*float64(box.MaxCol) + resX,
		YMax: extent.YMax - resY*float64(box.MinRow),
	}
	if !out.Valid() {
		return out, fmt.Errorf("%w: %v", ErrDegenerateExtent, out)
	}
	return out, nil
}
