package crop

import (
	"math"

	"github.com/kiesman99/bandcrop/pkg/raster"
)

// Foreground decides whether a pixel value carries data
type Foreground func(v float64) bool

// NonZero treats every value that compares unequal to zero as data,
// including NaN.
func NonZero(v float64) bool {
	return v != 0
}

// Tolerance treats values within eps of zero as background. NaN stays
// foreground, as with NonZero.
func Tolerance(eps float64) Foreground {
	return func(v float64) bool {
		return !(math.Abs(v) <= eps)
	}
}

// Scanner finds the pixel bounding box of foreground values
type Scanner struct {
	Foreground Foreground
}

// Scan returns the smallest box holding every foreground pixel of every
// band. The second result is false when there is none.
func (s *Scanner) Scan(src raster.Source) (raster.PixelBox, bool) {
	fg := s.Foreground
	if fg == nil {
		fg = NonZero
	}
	width, height := src.Width(), src.Height()
	box := raster.PixelBox{MinCol: width, MinRow: height}
	found := false

	for band := 0; band < src.BandCount(); band++ {
		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				if !fg(src.ValueAt(band, col, row)) {
					continue
				}
				found = true
				box.MinCol = min(box.MinCol, col)
				box.MinRow = min(box.MinRow, row)
				box.MaxCol = max(box.MaxCol, col)
				box.MaxRow = max(box.MaxRow, row)
			}
		}
	}
	return box, found
}
