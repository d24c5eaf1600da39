package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	// Formats handled by image.Decode when geotiff cannot read a file.
	_ "image/jpeg"
	_ "image/png"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/kiesman99/bandcrop/internal/geotiff"
)

// Referenced is implemented by sources that know the EPSG code of their
// coordinate reference system.
type Referenced interface {
	EPSG() int
}

// Open decodes the raster file at path. Files ending in .zst are zstd
// decompressed first. Extents come from GeoTIFF tags, then a world file
// sidecar, and finally default to the pixel grid.
func Open(fs afero.Fs, path string) (*Grid, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	name := path
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		if data, err = unzstd(data); err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
		name = strings.TrimSuffix(path, filepath.Ext(path))
	}

	g, georeferenced, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if georeferenced {
		return g, nil
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, wf := range []string{WorldFileName(name), base + ".wld"} {
		ext, err := ReadWorldFile(fs, wf, g.Width(), g.Height())
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		g.SetExtent(ext)
		break
	}
	return g, nil
}

func unzstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func decode(data []byte) (*Grid, bool, error) {
	img, err := geotiff.Decode(bytes.NewReader(data))
	switch {
	case err == nil:
		return fromGeoTIFF(img), img.Georef != nil, nil
	case errors.Is(err, geotiff.ErrNotTIFF), errors.Is(err, geotiff.ErrUnsupported):
	default:
		return nil, false, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	if uint64(cfg.Width)*uint64(cfg.Height) > geotiff.DefaultMaxSamples {
		return nil, false, fmt.Errorf("%w: %dx%d pixels", geotiff.ErrTooLarge, cfg.Width, cfg.Height)
	}
	im, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	return fromImage(im), false, nil
}

func fromGeoTIFF(img *geotiff.Image) *Grid {
	g := &Grid{
		width:  img.Width,
		height: img.Height,
		bands:  img.Bands,
		extent: pixelExtent(img.Width, img.Height),
	}
	if r := img.Georef; r != nil {
		g.extent = Extent{
			XMin: r.OriginX,
			YMin: r.OriginY - r.ScaleY*float64(img.Height),
			XMax: r.OriginX + r.ScaleX*float64(img.Width),
			YMax: r.OriginY,
		}
		g.epsg = r.EPSG
	}
	return g
}

func pixelExtent(width, height int) Extent {
	return Extent{XMax: float64(width), YMax: float64(height)}
}

// fromImage splits a decoded image into bands. Gray and paletted images have
// one band, RGBA-type images four and everything else three (RGB).
func fromImage(im image.Image) *Grid {
	b := im.Bounds()
	w, h := b.Dx(), b.Dy()

	var g *Grid
	switch im := im.(type) {
	case *image.Gray:
		g = NewGrid(w, h, 1, pixelExtent(w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g.Set(0, x, y, float64(im.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray16:
		g = NewGrid(w, h, 1, pixelExtent(w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g.Set(0, x, y, float64(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Paletted:
		g = NewGrid(w, h, 1, pixelExtent(w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g.Set(0, x, y, float64(im.ColorIndexAt(b.Min.X+x, b.Min.Y+y)))
			}
		}
	case *image.RGBA, *image.NRGBA:
		g = NewGrid(w, h, 4, pixelExtent(w, h))
		pix, stride := rgbaPix(im)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*stride + x*4
				for c := 0; c < 4; c++ {
					g.Set(c, x, y, float64(pix[i+c]))
				}
			}
		}
	case *image.RGBA64, *image.NRGBA64:
		g = NewGrid(w, h, 4, pixelExtent(w, h))
		pix, stride := rgbaPix(im)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*stride + x*8
				for c := 0; c < 4; c++ {
					g.Set(c, x, y, float64(uint16(pix[i+2*c])<<8|uint16(pix[i+2*c+1])))
				}
			}
		}
	default:
		g = NewGrid(w, h, 3, pixelExtent(w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, gr, bl, _ := im.At(b.Min.X+x, b.Min.Y+y).RGBA()
				g.Set(0, x, y, float64(r>>8))
				g.Set(1, x, y, float64(gr>>8))
				g.Set(2, x, y, float64(bl>>8))
			}
		}
	}
	return g
}

// rgbaPix returns the pixel buffer of an RGBA-family image rebased so that
// index 0 is the first pixel of its bounds.
func rgbaPix(im image.Image) ([]uint8, int) {
	b := im.Bounds()
	switch im := im.(type) {
	case *image.RGBA:
		return im.Pix[im.PixOffset(b.Min.X, b.Min.Y):], im.Stride
	case *image.NRGBA:
		return im.Pix[im.PixOffset(b.Min.X, b.Min.Y):], im.Stride
	case *image.RGBA64:
		return im.Pix[im.PixOffset(b.Min.X, b.Min.Y):], im.Stride
	case *image.NRGBA64:
		return im.Pix[im.PixOffset(b.Min.X, b.Min.Y):], im.Stride
	}
	return nil, 0
}
