// Package microbatch provides batch processing of microscopy image
// folders: scanning worklists, running registered processing functions
// over them with per-file status tracking, converting container formats,
// stepping through label maps for inspection, and cropping objects
// proposed by a segmentation backend.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		"github.com/rs/zerolog"
//		"github.com/sko/microbatch"
//		"github.com/sko/microbatch/internal/config"
//	)
//
//	func main() {
//		cfg := config.Default()
//		cfg.Output.Policy = config.PolicySkip
//		cfg.Output.Root = "results"
//
//		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
//		app, err := microbatch.New(cfg, logger)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		wl, err := app.ScanFolder("images")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		summary, err := app.RunBatch(context.Background(), "gaussian-blur", nil, wl)
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("processed=%d failed=%d", summary.Processed, summary.Failed)
//	}
//
// The package consists of four main components:
//
//  1. Worklist (pkg/worklist): folder scanning and per-file status
//  2. Pipeline (pkg/pipeline): sequential batch execution with busy
//     guarding, cancellation and atomic output writes
//  3. Registry (pkg/registry): the catalog of processing functions with
//     typed parameter schemas
//  4. Labels and Crop (pkg/labels, pkg/crop): label inspection stepping
//     and model-proposed object cropping
package microbatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sko/microbatch/internal/config"
	"github.com/sko/microbatch/pkg/client"
	"github.com/sko/microbatch/pkg/convert"
	"github.com/sko/microbatch/pkg/crop"
	"github.com/sko/microbatch/pkg/detection"
	"github.com/sko/microbatch/pkg/errs"
	"github.com/sko/microbatch/pkg/filters"
	"github.com/sko/microbatch/pkg/labels"
	"github.com/sko/microbatch/pkg/llamacpp"
	"github.com/sko/microbatch/pkg/ollama"
	"github.com/sko/microbatch/pkg/pipeline"
	"github.com/sko/microbatch/pkg/plugin"
	"github.com/sko/microbatch/pkg/registry"
	"github.com/sko/microbatch/pkg/vision"
	"github.com/sko/microbatch/pkg/worklist"
)

// Version of the microbatch library
const Version = "1.0.0"

// App wires configuration, the function registry and the batch
// coordinator into one entry point.
type App struct {
	cfg         *config.Config
	log         zerolog.Logger
	registry    *registry.Registry
	coordinator *pipeline.Coordinator
	selector    *crop.Selector
}

// New builds an App from cfg. The configuration is validated first, so
// a missing overwrite policy fails here rather than mid-run.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := registry.New()
	if err := filters.RegisterAll(reg, filters.Options{
		OutputRoot: cfg.Output.Root,
		Quality:    cfg.Output.Quality,
	}); err != nil {
		return nil, err
	}

	converter := convert.NewConverter(cfg.Convert.Format, cfg.Convert.LargeImageBytes, cfg.Output.Quality)
	if err := convert.Register(reg, converter, cfg.Output.Root); err != nil {
		return nil, err
	}

	visionClient, err := newVisionClient(cfg.Vision)
	if err != nil {
		return nil, err
	}
	detector := detection.NewDetector(visionClient)
	if cfg.Crop.MinRegionRatio > 0 {
		detector.MinRegionRatio = cfg.Crop.MinRegionRatio
	}
	selector := crop.NewSelector(detector, cfg.Vision, cfg.Crop, cfg.Output.Quality)
	if err := crop.Register(reg, selector, cfg.Output.Root); err != nil {
		return nil, err
	}

	coordinator := pipeline.New(log)
	coordinator.Subscribe(&pipeline.LogObserver{Log: log})

	return &App{
		cfg:         cfg,
		log:         log,
		registry:    reg,
		coordinator: coordinator,
		selector:    selector,
	}, nil
}

// newVisionClient picks the segmentation backend from configuration
func newVisionClient(cfg config.VisionConfig) (client.VisionClient, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendLocal:
		return vision.NewClient(vision.New()), nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.Backend)
	}
}

// Registry exposes the function catalog
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Coordinator exposes the batch coordinator, for observer subscription
func (a *App) Coordinator() *pipeline.Coordinator {
	return a.coordinator
}

// Config returns the active configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// ScanFolder builds a worklist from the configured scan filter
func (a *App) ScanFolder(folder string) (*worklist.Worklist, error) {
	return worklist.Scan(folder, worklist.Filter{
		Extensions: a.cfg.Scan.Extensions,
		Pattern:    a.cfg.Scan.Pattern,
		Recursive:  a.cfg.Scan.Recursive,
	})
}

// StartBatch starts a run and returns its outcome stream. A BusyError
// is returned while another run is active.
func (a *App) StartBatch(ctx context.Context, functionID string, params map[string]any, wl *worklist.Worklist) (<-chan pipeline.Outcome, *pipeline.Job, error) {
	desc, ok := a.registry.Lookup(functionID)
	if !ok {
		return nil, nil, &errs.NotFoundError{Path: functionID}
	}

	job, err := pipeline.NewJob(desc, params, wl, a.cfg.Output.Policy)
	if err != nil {
		return nil, nil, err
	}

	outcomes, err := a.coordinator.Run(ctx, job)
	if err != nil {
		return nil, nil, err
	}
	return outcomes, job, nil
}

// RunBatch runs a function over the worklist and blocks until done,
// returning the summary. Cancel through ctx; the current item finishes
// first.
func (a *App) RunBatch(ctx context.Context, functionID string, params map[string]any, wl *worklist.Worklist) (pipeline.Summary, error) {
	outcomes, _, err := a.StartBatch(ctx, functionID, params, wl)
	if err != nil {
		return pipeline.Summary{}, err
	}

	var summary pipeline.Summary
	for outcome := range outcomes {
		switch {
		case outcome.Err != nil:
			summary.Failed++
		case outcome.Skipped:
			summary.Skipped++
			summary.Processed++
		default:
			summary.Processed++
		}
		summary.Elapsed += outcome.Elapsed
	}
	summary.Canceled = ctx.Err() != nil
	return summary, nil
}

// NewLabelSequencer steps through the worklist's label maps for review
func (a *App) NewLabelSequencer(wl *worklist.Worklist) *labels.Sequencer {
	return labels.NewSequencer(wl, a.log)
}

// NewCropSession proposes regions for one image and returns the
// interactive session
func (a *App) NewCropSession(ctx context.Context, path string) (*crop.Session, error) {
	return a.selector.Propose(ctx, path)
}

// CropOutputs applies a crop session's accept/reject decisions
func (a *App) CropOutputs(sess *crop.Session) ([]registry.Output, error) {
	return a.selector.Outputs(sess, a.cfg.Output.Root)
}

// Manifest builds the host contribution manifest for this App
func (a *App) Manifest() (*plugin.Manifest, error) {
	return plugin.BuildManifest(a.cfg, a.log)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
