package crop

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kiesman99/bandcrop/internal/geotiff"
	"github.com/kiesman99/bandcrop/pkg/raster"
)

// BandOutput is the cropped pixel block of one band together with its
// placement. Data is row-major.
type BandOutput struct {
	Band   int
	Width  int
	Height int
	Extent raster.Extent
	Data   []float64
}

// ExtractBand copies the pixels of box out of one band of src.
func ExtractBand(src raster.Source, band int, box raster.PixelBox, extent raster.Extent) *BandOutput {
	out := &BandOutput{
		Band:   band,
		Width:  box.Width(),
		Height: box.Height(),
		Extent: extent,
	}
	out.Data = make([]float64, out.Width*out.Height)
	for j := 0; j < out.Width; j++ {
		for k := 0; k < out.Height; k++ {
			out.Data[k*out.Width+j] = src.ValueAt(band, box.MinCol+j, box.MinRow+k)
		}
	}
	return out
}

// Exporter writes cropped bands as single-band GeoTIFF files
type Exporter struct {
	fs        afero.Fs
	epsg      int
	inherit   bool
	worldFile bool
	log       *zap.Logger
}

// NewExporter creates an exporter writing to fs
func NewExporter(fs afero.Fs, opts Options) *Exporter {
	epsg := opts.EPSG
	if epsg == 0 {
		epsg = DefaultEPSG
	}
	return &Exporter{
		fs:        fs,
		epsg:      epsg,
		inherit:   opts.InheritReference,
		worldFile: opts.WorldFile,
		log:       opts.logger(),
	}
}

// BandFileName is the output file name of a band.
func BandFileName(band int) string {
	return strconv.Itoa(band) + ".tif"
}

// ExportBand crops one band of src and writes it to dir. It returns the
// path of the written file; failures are *WriteError.
func (e *Exporter) ExportBand(src raster.Source, band int, box raster.PixelBox, extent raster.Extent, dir string) (string, error) {
	out := ExtractBand(src, band, box, extent)
	path := filepath.Join(dir, BandFileName(band))

	epsg := e.epsg
	if r, ok := src.(raster.Referenced); ok && e.inherit && r.EPSG() != 0 {
		epsg = r.EPSG()
	}
	if err := e.write(path, out, epsg); err != nil {
		return "", &WriteError{Band: band, Path: path, Err: err}
	}

	if e.worldFile {
		wf := raster.WorldFileName(path)
		if err := raster.WriteWorldFile(e.fs, wf, out.Extent, out.Width, out.Height); err != nil {
			return "", &WriteError{Band: band, Path: wf, Err: err}
		}
	}

	e.log.Debug("band exported",
		zap.Int("band", band),
		zap.String("path", path),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
	)
	return path, nil
}

func (e *Exporter) write(path string, out *BandOutput, epsg int) (err error) {
	resX, resY := out.Extent.Resolution(out.Width, out.Height)
	img := &geotiff.Image{
		Width:  out.Width,
		Height: out.Height,
		Bands:  [][]float64{out.Data},
		Georef: &geotiff.Georef{
			OriginX: out.Extent.XMin,
			OriginY: out.Extent.YMax,
			ScaleX:  resX,
			ScaleY:  resY,
			EPSG:    epsg,
		},
	}

	f, err := e.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return geotiff.Encode(f, img)
}
