package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sko/microbatch"
	"github.com/sko/microbatch/internal/config"
	"github.com/sko/microbatch/internal/utils"
	"github.com/sko/microbatch/pkg/worklist"
)

func main() {
	var configPath, in, out, fn, paramsJSON, policy string
	var backend, url, model, mode string
	var pattern string
	var recursive bool
	var quality int
	var list, labelAudit, debug bool

	flag.StringVar(&configPath, "config", "", "config file path (JSON), defaults applied when empty")
	flag.StringVar(&in, "in", "", "input folder to scan")
	flag.StringVar(&out, "out", "", "output root directory")
	flag.StringVar(&fn, "fn", "", "processing function id (see -list)")
	flag.StringVar(&paramsJSON, "params", "", "function parameters as JSON, e.g. '{\"radius\": 3}'")
	flag.StringVar(&policy, "policy", "", "existing-output policy: overwrite or skip")

	flag.StringVar(&backend, "backend", "", "segmentation backend: ollama, llamacpp or local")
	flag.StringVar(&url, "url", "", "backend server URL")
	flag.StringVar(&model, "model", "", "model name for remote backends")
	flag.StringVar(&mode, "mode", "", "crop mode: crop or mask")

	flag.StringVar(&pattern, "pattern", "", "filename glob filter, e.g. '*_ch1*'")
	flag.BoolVar(&recursive, "recursive", false, "scan subfolders")
	flag.IntVar(&quality, "quality", 0, "output quality for lossy formats (1-100)")

	flag.BoolVar(&list, "list", false, "list registered processing functions and exit")
	flag.BoolVar(&labelAudit, "labels", false, "audit label maps in the input folder instead of processing")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")

	flag.Parse()

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	applyOverrides(cfg, out, policy, backend, url, model, mode, pattern, recursive, quality)

	if cfg.Output.Root != "" {
		if err := utils.EnsureDir(cfg.Output.Root); err != nil {
			logger.Fatal().Err(err).Str("root", cfg.Output.Root).Msg("cannot create output root")
		}
	}

	app, err := microbatch.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	if list {
		printCatalog(app)
		return
	}

	if in == "" {
		logger.Fatal().Msgf("usage: %s -in folder -fn function [-params json] [-policy overwrite|skip] [-list]", filepath.Base(os.Args[0]))
	}
	if !utils.DirExists(in) {
		logger.Fatal().Str("folder", in).Msg("input folder does not exist")
	}

	wl, err := app.ScanFolder(in)
	if err != nil {
		logger.Fatal().Err(err).Str("folder", in).Msg("scan failed")
	}
	logger.Info().Int("files", wl.Len()).Str("folder", in).Msg("worklist built")

	if labelAudit {
		auditLabels(app, wl, logger)
		return
	}

	if fn == "" {
		logger.Fatal().Msg("no function selected, use -fn (see -list)")
	}

	var params map[string]any
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			logger.Fatal().Err(err).Msg("invalid -params JSON")
		}
	}

	// Stop after the current file on SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := app.RunBatch(ctx, fn, params, wl)
	if err != nil {
		logger.Fatal().Err(err).Msg("batch failed to start")
	}

	logger.Info().
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Bool("canceled", summary.Canceled).
		Dur("elapsed", summary.Elapsed).
		Msg("batch done")

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if !utils.FileExists(path) {
		return nil, fmt.Errorf("config file %s does not exist", path)
	}
	return config.LoadFromFile(path)
}

// applyOverrides layers non-empty flag values over the file config
func applyOverrides(cfg *config.Config, out, policy, backend, url, model, mode, pattern string, recursive bool, quality int) {
	if out != "" {
		cfg.Output.Root = out
	}
	if policy != "" {
		cfg.Output.Policy = policy
	}
	if backend != "" {
		cfg.Vision.Backend = backend
	}
	if url != "" {
		cfg.Vision.URL = url
	}
	if model != "" {
		cfg.Vision.Model = model
	}
	if mode != "" {
		cfg.Crop.Mode = mode
	}
	if pattern != "" {
		cfg.Scan.Pattern = pattern
	}
	if recursive {
		cfg.Scan.Recursive = true
	}
	if quality > 0 {
		cfg.Output.Quality = quality
	}
}

func printCatalog(app *microbatch.App) {
	for _, d := range app.Registry().List() {
		fmt.Printf("%-16s %s\n", d.ID, d.DisplayName)
		for name, spec := range d.Params {
			fmt.Printf("    %-12s %s (default %v)\n", name, spec.Type, spec.Default)
		}
	}
}

// auditLabels steps the sequencer over every label map and reports what
// it finds, without editing anything.
func auditLabels(app *microbatch.App, wl *worklist.Worklist, logger zerolog.Logger) {
	seq := app.NewLabelSequencer(wl)
	for !seq.Done() {
		path, _ := seq.CurrentPath()
		m, err := seq.Current()
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("label load failed")
			if err := seq.Skip(); err != nil {
				return
			}
			continue
		}
		ids := m.IDs()
		size := "?"
		if info, statErr := os.Stat(path); statErr == nil {
			size = utils.FormatFileSize(info.Size())
		}
		logger.Info().
			Str("path", path).
			Str("size", size).
			Int("labels", len(ids)).
			Int("width", m.Width).
			Int("height", m.Height).
			Msg("label map")
		if err := seq.Skip(); err != nil {
			return
		}
	}
}
