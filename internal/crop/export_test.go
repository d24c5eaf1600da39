package crop

import (
	"bytes"
	"math"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/bandcrop/internal/geotiff"
	"github.com/kiesman99/bandcrop/pkg/raster"
)

// encodeGrid returns a georeferenced 3x3 GeoTIFF with a single non-zero
// center pixel.
func encodeGrid(t *testing.T, epsg int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, geotiff.Encode(&buf, &geotiff.Image{
		Width:  3,
		Height: 3,
		Bands:  [][]float64{{0, 0, 0, 0, 7, 0, 0, 0, 0}},
		Georef: &geotiff.Georef{OriginX: 500000, OriginY: 6000030, ScaleX: 10, ScaleY: 10, EPSG: epsg},
	}))
	return buf.Bytes()
}

func TestExtractBand(t *testing.T) {
	g := raster.NewGrid(5, 4, 2, raster.Extent{XMax: 5, YMax: 4})
	for row := 0; row < 4; row++ {
		for col := 0; col < 5; col++ {
			g.Set(1, col, row, float64(row*10+col))
		}
	}
	box := raster.PixelBox{MinCol: 1, MinRow: 2, MaxCol: 3, MaxRow: 3}

	out := ExtractBand(g, 1, box, raster.Extent{XMin: 1, YMin: 0, XMax: 4, YMax: 2})
	assert.Equal(t, 1, out.Band)
	assert.Equal(t, 3, out.Width)
	assert.Equal(t, 2, out.Height)
	assert.Equal(t, []float64{21, 22, 23, 31, 32, 33}, out.Data)
}

func TestExportBandPreservesValues(t *testing.T) {
	values := []float64{math.Pi, -0.1, math.NaN(), math.Inf(1), 1e-310, 7}
	g, err := raster.NewGridFromBands(3, 2, raster.Extent{XMax: 3, YMax: 2}, values)
	require.NoError(t, err)
	fs := afero.NewMemMapFs()
	box := raster.PixelBox{MinCol: 0, MinRow: 0, MaxCol: 2, MaxRow: 1}

	path, err := NewExporter(fs, Options{}).ExportBand(g, 0, box, g.Extent(), "/out")
	require.NoError(t, err)
	assert.Equal(t, "/out/0.tif", path)

	out, err := raster.Open(fs, path)
	require.NoError(t, err)
	for i, want := range values {
		assert.Equal(t, math.Float64bits(want), math.Float64bits(out.Band(0)[i]), "value %d", i)
	}
}

func TestExportBandWorldFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	g := raster.NewGrid(4, 4, 1, raster.Extent{XMax: 40, YMax: 40})
	box := raster.PixelBox{MinCol: 1, MinRow: 1, MaxCol: 2, MaxRow: 2}
	extent := raster.Extent{XMin: 10, YMin: 10, XMax: 30, YMax: 30}

	_, err := NewExporter(fs, Options{WorldFile: true}).ExportBand(g, 0, box, extent, "/out")
	require.NoError(t, err)

	got, err := raster.ReadWorldFile(fs, "/out/0.tfw", 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got.XMin, 1e-9)
	assert.InDelta(t, 30.0, got.YMax, 1e-9)
}

func TestExportBandReadOnly(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	g := raster.NewGrid(1, 1, 1, raster.Extent{XMax: 1, YMax: 1})

	_, err := NewExporter(fs, Options{}).ExportBand(g, 0, raster.PixelBox{}, g.Extent(), "/out")
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 0, werr.Band)
	assert.Equal(t, "/out/0.tif", werr.Path)
}
