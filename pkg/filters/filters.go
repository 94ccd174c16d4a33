// Package filters provides the built-in catalog of per-file image
// processing functions: blurs, edge detection, thresholding and geometry.
package filters

import (
	"context"
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"

	"github.com/sko/microbatch/internal/utils"
	"github.com/sko/microbatch/pkg/processing"
	"github.com/sko/microbatch/pkg/registry"
)

// Options configures where and how filter outputs are written
type Options struct {
	// OutputRoot redirects outputs; empty keeps them next to the source.
	OutputRoot string
	// Quality applies to lossy output formats.
	Quality int
}

// applyFunc transforms a decoded image according to bound parameters
type applyFunc func(img image.Image, params registry.Params) (image.Image, error)

// RegisterAll adds every built-in filter descriptor to r
func RegisterAll(r *registry.Registry, opts Options) error {
	if opts.Quality <= 0 {
		opts.Quality = 90
	}

	proc := processing.NewProcessor()

	descriptors := []registry.Descriptor{
		{
			ID:           "gaussian-blur",
			DisplayName:  "Gaussian Blur",
			OutputSuffix: "_blur",
			Params: map[string]registry.ParamSpec{
				"radius": {Type: registry.ParamFloat, Default: 3.0, Min: 0.1, Max: 100},
			},
			Process: makeProcess(proc, opts, "_blur", "", func(img image.Image, params registry.Params) (image.Image, error) {
				return blur.Gaussian(img, params.Float("radius")), nil
			}),
		},
		{
			ID:           "box-blur",
			DisplayName:  "Box Blur",
			OutputSuffix: "_boxblur",
			Params: map[string]registry.ParamSpec{
				"radius": {Type: registry.ParamFloat, Default: 3.0, Min: 0.1, Max: 100},
			},
			Process: makeProcess(proc, opts, "_boxblur", "", func(img image.Image, params registry.Params) (image.Image, error) {
				return blur.Box(img, params.Float("radius")), nil
			}),
		},
		{
			ID:           "median",
			DisplayName:  "Median Filter",
			OutputSuffix: "_median",
			Params: map[string]registry.ParamSpec{
				"radius": {Type: registry.ParamFloat, Default: 3.0, Min: 1, Max: 50},
			},
			Process: makeProcess(proc, opts, "_median", "", func(img image.Image, params registry.Params) (image.Image, error) {
				return effect.Median(img, params.Float("radius")), nil
			}),
		},
		{
			ID:           "sharpen",
			DisplayName:  "Sharpen",
			OutputSuffix: "_sharp",
			Params: map[string]registry.ParamSpec{
				"sigma": {Type: registry.ParamFloat, Default: 1.0, Min: 0.1, Max: 10},
			},
			Process: makeProcess(proc, opts, "_sharp", "", func(img image.Image, params registry.Params) (image.Image, error) {
				return imaging.Sharpen(img, params.Float("sigma")), nil
			}),
		},
		{
			ID:           "sobel-edges",
			DisplayName:  "Sobel Edge Detection",
			OutputSuffix: "_edges",
			Process: makeProcess(proc, opts, "_edges", "", func(img image.Image, params registry.Params) (image.Image, error) {
				return effect.Sobel(img), nil
			}),
		},
		{
			ID:           "threshold",
			DisplayName:  "Binary Threshold",
			OutputSuffix: "_mask",
			// Threshold masks are written as TIFF so they slot into the
			// label-inspection pipeline.
			OutputExt: "tif",
			Params: map[string]registry.ParamSpec{
				"level": {Type: registry.ParamInt, Default: 128, Min: 0, Max: 255},
			},
			Process: makeProcess(proc, opts, "_mask", "tif", func(img image.Image, params registry.Params) (image.Image, error) {
				return segment.Threshold(img, uint8(params.Int("level"))), nil
			}),
		},
		{
			ID:           "grayscale",
			DisplayName:  "Grayscale",
			OutputSuffix: "_gray",
			Process: makeProcess(proc, opts, "_gray", "", func(img image.Image, params registry.Params) (image.Image, error) {
				return effect.Grayscale(img), nil
			}),
		},
		{
			ID:           "invert",
			DisplayName:  "Invert",
			OutputSuffix: "_inv",
			Process: makeProcess(proc, opts, "_inv", "", func(img image.Image, params registry.Params) (image.Image, error) {
				return effect.Invert(img), nil
			}),
		},
		{
			ID:           "resize",
			DisplayName:  "Resize",
			OutputSuffix: "_resized",
			Params: map[string]registry.ParamSpec{
				"width":  {Type: registry.ParamInt, Default: 0, Min: 0, Max: 65536},
				"height": {Type: registry.ParamInt, Default: 0, Min: 0, Max: 65536},
			},
			Process: makeProcess(proc, opts, "_resized", "", resizeApply),
		},
	}

	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func resizeApply(img image.Image, params registry.Params) (image.Image, error) {
	width := params.Int("width")
	height := params.Int("height")
	// Zero on one axis preserves the aspect ratio; zero on both is a no-op
	// guarded at bind time by the caller, so fall back to the original.
	if width == 0 && height == 0 {
		return img, nil
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

func makeProcess(proc *processing.Processor, opts Options, suffix, ext string, apply applyFunc) registry.ProcessFunc {
	return func(ctx context.Context, sourcePath string, params registry.Params) ([]registry.Output, error) {
		img, err := proc.LoadImage(sourcePath)
		if err != nil {
			return nil, err
		}

		result, err := apply(img, params)
		if err != nil {
			return nil, err
		}

		outPath := utils.DeriveOutputPath(sourcePath, opts.OutputRoot, suffix, ext)
		return []registry.Output{{
			Path:   outPath,
			Encode: proc.Encoder(result, outPath, opts.Quality),
		}}, nil
	}
}
