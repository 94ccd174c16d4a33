package convert

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/sko/microbatch/internal/utils"
	"github.com/sko/microbatch/pkg/processing"
	"github.com/sko/microbatch/pkg/registry"
)

// Converter rewrites container files series by series
type Converter struct {
	loaders []Loader
	proc    *processing.Processor

	// Format is the preferred output format; images whose decoded size
	// exceeds LargeImageBytes are forced to compressed TIFF.
	Format          string
	LargeImageBytes int64
	Quality         int
}

// NewConverter creates a converter over the default loader set
func NewConverter(format string, largeImageBytes int64, quality int) *Converter {
	if format == "" {
		format = "tif"
	}
	if quality <= 0 {
		quality = 90
	}
	return &Converter{
		loaders:         DefaultLoaders(),
		proc:            processing.NewProcessor(),
		Format:          format,
		LargeImageBytes: largeImageBytes,
		Quality:         quality,
	}
}

// SeriesCount reports how many series the container at path holds
func (c *Converter) SeriesCount(path string) (int, error) {
	loader, err := FindLoader(c.loaders, path)
	if err != nil {
		return 0, err
	}
	return loader.SeriesCount(path)
}

// outputFormat picks the container for one decoded series. Large images
// always land in TIFF, which handles them better than the lossy formats.
func (c *Converter) outputFormat(img image.Image) string {
	if c.LargeImageBytes > 0 {
		b := img.Bounds()
		decoded := int64(b.Dx()) * int64(b.Dy()) * 4
		if decoded > c.LargeImageBytes {
			return "tif"
		}
	}
	return c.Format
}

// ConvertFile converts every series in the container at sourcePath and
// returns one pending output per series. Naming follows
// "<stem>_series<N>.<ext>".
func (c *Converter) ConvertFile(ctx context.Context, sourcePath, outputRoot string) ([]registry.Output, error) {
	loader, err := FindLoader(c.loaders, sourcePath)
	if err != nil {
		return nil, err
	}

	count, err := loader.SeriesCount(sourcePath)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%s: container holds no series", sourcePath)
	}

	outputs := make([]registry.Output, 0, count)
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		img, err := loader.LoadSeries(sourcePath, i)
		if err != nil {
			return nil, err
		}

		format := c.outputFormat(img)
		suffix := fmt.Sprintf("_series%d", i)
		outPath := utils.DeriveOutputPath(sourcePath, outputRoot, suffix, format)
		outputs = append(outputs, registry.Output{
			Path:   outPath,
			Encode: c.proc.Encoder(img, outPath, c.Quality),
		})
	}

	return outputs, nil
}

// Register adds the "convert" processing function to r so conversion runs
// through the batch coordinator like any other function.
func Register(r *registry.Registry, c *Converter, outputRoot string) error {
	return r.Register(registry.Descriptor{
		ID:           "convert",
		DisplayName:  "Format Conversion",
		OutputSuffix: "_series0",
		OutputExt:    c.Format,
		Process: func(ctx context.Context, sourcePath string, params registry.Params) ([]registry.Output, error) {
			return c.ConvertFile(ctx, sourcePath, outputRoot)
		},
	})
}

// SeriesMeta describes one series of a container
type SeriesMeta struct {
	Loader string `json:"loader"`
	Series int    `json:"series"`
	Count  int    `json:"count"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Metadata reports the dimensions of one series without writing anything
func (c *Converter) Metadata(path string, index int) (SeriesMeta, error) {
	loader, err := FindLoader(c.loaders, path)
	if err != nil {
		return SeriesMeta{}, err
	}
	count, err := loader.SeriesCount(path)
	if err != nil {
		return SeriesMeta{}, err
	}
	img, err := loader.LoadSeries(path, index)
	if err != nil {
		return SeriesMeta{}, err
	}
	b := img.Bounds()
	return SeriesMeta{
		Loader: loader.Name(),
		Series: index,
		Count:  count,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// Describe summarizes a container for display: loader name and series
// count per matching file in a folder listing.
func (c *Converter) Describe(path string) (string, error) {
	loader, err := FindLoader(c.loaders, path)
	if err != nil {
		return "", err
	}
	count, err := loader.SeriesCount(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s, %d series", filepath.Base(path), loader.Name(), count), nil
}
