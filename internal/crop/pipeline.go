// Package crop trims multi-band rasters to the bounding box of their
// foreground pixels and writes every band to its own GeoTIFF.
package crop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kiesman99/bandcrop/pkg/raster"
)

// DefaultEPSG is the reference written to every output unless configured
// otherwise (WGS84).
const DefaultEPSG = 4326

// Status is the outcome of one layer
type Status string

const (
	StatusExported Status = "exported"
	StatusAborted  Status = "aborted"
	StatusFailed   Status = "failed"
)

// Notifier shows blocking messages to the user of the host application
type Notifier interface {
	Notify(message string)
}

// NotifyFunc adapts a function to Notifier
type NotifyFunc func(message string)

func (f NotifyFunc) Notify(message string) { f(message) }

// Options contains all configuration of a pipeline
type Options struct {
	// OutputRoot replaces the layer location as parent of the output
	// directory when set.
	OutputRoot string
	// EPSG is the reference stamped on outputs, DefaultEPSG when 0.
	EPSG int
	// InheritReference stamps the source reference instead of EPSG when
	// the source knows it.
	InheritReference bool
	// WorldFile also writes a .tfw next to every band.
	WorldFile bool
	// Foreground defaults to NonZero.
	Foreground Foreground
	Logger     *zap.Logger
	Notifier   Notifier
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Result describes what happened to one layer
type Result struct {
	Layer  string
	Status Status
	// Reason is set for aborted layers.
	Reason error
	Dir    string
	Box    raster.PixelBox
	Extent raster.Extent
	Files  []string
	// Err is set for failed layers by ProcessSelection.
	Err error
}

// Pipeline crops layers and exports their bands
type Pipeline struct {
	fs       afero.Fs
	opts     Options
	scanner  *Scanner
	exporter *Exporter
	log      *zap.Logger
}

// New creates a pipeline writing to fs
func New(fs afero.Fs, opts Options) *Pipeline {
	return &Pipeline{
		fs:       fs,
		opts:     opts,
		scanner:  &Scanner{Foreground: opts.Foreground},
		exporter: NewExporter(fs, opts),
		log:      opts.logger(),
	}
}

// OutputName derives the output folder name from a layer name: the part
// before the first '.'.
func OutputName(layerName string) string {
	name, _, _ := strings.Cut(layerName, ".")
	if name == "" {
		name = strings.Trim(layerName, ".")
	}
	if name == "" {
		return "layer"
	}
	return name
}

// Process crops one layer. Empty and degenerate crops return a result with
// StatusAborted and a nil error. The result is never nil.
func (p *Pipeline) Process(layer raster.Layer) (*Result, error) {
	res := &Result{Layer: layer.Name()}
	log := p.log.With(zap.String("layer", res.Layer))

	src, err := layer.Open()
	if err != nil {
		var invalid *raster.InvalidRasterError
		if !errors.As(err, &invalid) {
			err = &raster.InvalidRasterError{Layer: res.Layer, Err: err}
		}
		return res, err
	}
	if src.Width() <= 0 || src.Height() <= 0 || src.BandCount() == 0 {
		return res, &raster.InvalidRasterError{
			Layer: res.Layer,
			Err:   fmt.Errorf("empty raster %dx%d with %d bands", src.Width(), src.Height(), src.BandCount()),
		}
	}

	root := p.opts.OutputRoot
	if root == "" {
		root = layer.Location()
	}
	res.Dir = filepath.Join(root, OutputName(res.Layer))
	if err := p.fs.MkdirAll(res.Dir, 0o755); err != nil {
		return res, fmt.Errorf("create output directory %s: %w", res.Dir, err)
	}

	log.Info("scanning raster",
		zap.Int("width", src.Width()),
		zap.Int("height", src.Height()),
		zap.Int("bands", src.BandCount()),
	)
	box, ok := p.scanner.Scan(src)
	if !ok {
		return p.abort(log, res, ErrEmptyBoundingBox), nil
	}
	res.Box = box

	extent, err := ToGeoExtent(src, box)
	if err != nil {
		return p.abort(log, res, err), nil
	}
	res.Extent = extent

	for band := 0; band < src.BandCount(); band++ {
		path, err := p.exporter.ExportBand(src, band, box, extent, res.Dir)
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)
	}

	res.Status = StatusExported
	log.Info("layer exported",
		zap.String("dir", res.Dir),
		zap.Int("files", len(res.Files)),
		zap.Stringer("extent", res.Extent),
	)
	return res, nil
}

func (p *Pipeline) abort(log *zap.Logger, res *Result, reason error) *Result {
	log.Debug("crop aborted", zap.Error(reason))
	res.Status = StatusAborted
	res.Reason = reason
	return res
}

// ProcessSelection processes layers one after another. A failing layer
// never stops the ones after it; its result carries the error and the
// notifier gets a message.
func (p *Pipeline) ProcessSelection(ctx context.Context, layers []raster.Layer) []*Result {
	results := make([]*Result, 0, len(layers))
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			results = append(results, &Result{Layer: layer.Name(), Status: StatusFailed, Err: err})
			continue
		}

		res, err := p.Process(layer)
		if err != nil {
			res.Status = StatusFailed
			res.Err = err
			p.log.Warn("layer failed", zap.String("layer", res.Layer), zap.Error(err))
			p.notify(Message(res.Layer, err))
		}
		results = append(results, res)
	}
	return results
}

func (p *Pipeline) notify(msg string) {
	if p.opts.Notifier != nil {
		p.opts.Notifier.Notify(msg)
	}
}

// Message is the user-facing text for a failed layer.
func Message(layer string, err error) string {
	var invalid *raster.InvalidRasterError
	if errors.As(err, &invalid) {
		return "No raster layer selected. Please select one raster layer."
	}
	return fmt.Sprintf("Exception caught while processing layer %q: %v", layer, err)
}
