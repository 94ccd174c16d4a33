// Package convert reads microscopy image containers through a static
// loader registry and rewrites them into analysis-friendly formats.
//
// A container may hold several series (acquisitions); each series converts
// to its own output file.
package convert

import (
	"image"
	"image/gif"
	"os"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/sko/microbatch/pkg/errs"
	"github.com/sko/microbatch/pkg/processing"
)

// Loader reads one container format
type Loader interface {
	// Name identifies the loader in logs and metadata.
	Name() string
	// CanLoad reports whether the loader accepts the file, by extension.
	CanLoad(path string) bool
	// SeriesCount returns how many series the container holds.
	SeriesCount(path string) (int, error)
	// LoadSeries decodes one series.
	LoadSeries(path string, index int) (image.Image, error)
}

// DefaultLoaders returns the built-in loader set, ordered by specificity
func DefaultLoaders() []Loader {
	return []Loader{
		&TIFFLoader{},
		&GIFLoader{},
		&StillLoader{},
	}
}

// FindLoader returns the first loader accepting path, or an
// UnsupportedFormatError.
func FindLoader(loaders []Loader, path string) (Loader, error) {
	for _, l := range loaders {
		if l.CanLoad(path) {
			return l, nil
		}
	}
	return nil, &errs.UnsupportedFormatError{Path: path, Reason: "no registered loader"}
}

func hasExt(path string, exts ...string) bool {
	lower := strings.ToLower(path)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// TIFFLoader reads TIFF files. Only the first directory is exposed, as a
// single series.
type TIFFLoader struct{}

func (l *TIFFLoader) Name() string { return "tiff" }

func (l *TIFFLoader) CanLoad(path string) bool {
	return hasExt(path, ".tif", ".tiff")
}

func (l *TIFFLoader) SeriesCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &errs.NotFoundError{Path: path}
		}
		return 0, err
	}
	defer f.Close()

	if _, err := tiff.DecodeConfig(f); err != nil {
		return 0, &errs.UnsupportedFormatError{Path: path, Reason: err.Error()}
	}
	return 1, nil
}

func (l *TIFFLoader) LoadSeries(path string, index int) (image.Image, error) {
	if index != 0 {
		return nil, &errs.NotFoundError{Path: path}
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Path: path}
		}
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, &errs.UnsupportedFormatError{Path: path, Reason: err.Error()}
	}
	return img, nil
}

// GIFLoader reads GIF files and exposes each frame as a series. Frames map
// onto the time axis of the original acquisition.
type GIFLoader struct{}

func (l *GIFLoader) Name() string { return "gif" }

func (l *GIFLoader) CanLoad(path string) bool {
	return hasExt(path, ".gif")
}

func (l *GIFLoader) decodeAll(path string) (*gif.GIF, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Path: path}
		}
		return nil, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, &errs.UnsupportedFormatError{Path: path, Reason: err.Error()}
	}
	return g, nil
}

func (l *GIFLoader) SeriesCount(path string) (int, error) {
	g, err := l.decodeAll(path)
	if err != nil {
		return 0, err
	}
	return len(g.Image), nil
}

func (l *GIFLoader) LoadSeries(path string, index int) (image.Image, error) {
	g, err := l.decodeAll(path)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(g.Image) {
		return nil, &errs.NotFoundError{Path: path}
	}
	return g.Image[index], nil
}

// StillLoader reads single-image formats: PNG, JPEG, BMP and WebP
type StillLoader struct {
	proc processing.Processor
}

func (l *StillLoader) Name() string { return "still" }

func (l *StillLoader) CanLoad(path string) bool {
	return hasExt(path, ".png", ".jpg", ".jpeg", ".bmp", ".webp")
}

func (l *StillLoader) SeriesCount(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return 0, &errs.NotFoundError{Path: path}
		}
		return 0, err
	}
	return 1, nil
}

func (l *StillLoader) LoadSeries(path string, index int) (image.Image, error) {
	if index != 0 {
		return nil, &errs.NotFoundError{Path: path}
	}
	img, err := l.proc.LoadImage(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Path: path}
		}
		return nil, &errs.UnsupportedFormatError{Path: path, Reason: err.Error()}
	}
	return img, nil
}
