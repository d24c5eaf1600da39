package raster

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// FileLayer is a raster dataset stored as a file
type FileLayer struct {
	Fs   afero.Fs
	Path string
}

var _ Layer = (*FileLayer)(nil)

// NewFileLayer creates a layer for the file at path on fs
func NewFileLayer(fs afero.Fs, path string) *FileLayer {
	return &FileLayer{Fs: fs, Path: path}
}

func (l *FileLayer) Name() string     { return filepath.Base(l.Path) }
func (l *FileLayer) Location() string { return filepath.Dir(l.Path) }

func (l *FileLayer) Open() (Source, error) {
	g, err := Open(l.Fs, l.Path)
	if err != nil {
		return nil, &InvalidRasterError{Layer: l.Name(), Err: err}
	}
	return g, nil
}

// MemLayer wraps an already decoded source. A nil source behaves like a
// selection entry that is not a raster.
type MemLayer struct {
	LayerName string
	Dir       string
	Src       Source
}

var _ Layer = (*MemLayer)(nil)

func (l *MemLayer) Name() string     { return l.LayerName }
func (l *MemLayer) Location() string { return l.Dir }

func (l *MemLayer) Open() (Source, error) {
	if l.Src == nil {
		return nil, &InvalidRasterError{Layer: l.LayerName}
	}
	return l.Src, nil
}
