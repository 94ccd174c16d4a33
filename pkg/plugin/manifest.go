package plugin

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sko/microbatch/internal/config"
	"github.com/sko/microbatch/internal/fsx"
	"github.com/sko/microbatch/internal/utils"
	"github.com/sko/microbatch/pkg/labels"
	"github.com/sko/microbatch/pkg/processing"
	"github.com/sko/microbatch/pkg/session"
)

// PluginName identifies this plugin to hosts
const PluginName = "microbatch"

// BuildManifest assembles the full contribution set: readers for images
// and label maps, atomic writers for both layer kinds, synthetic sample
// data and the tool panels.
func BuildManifest(cfg *config.Config, log zerolog.Logger) (*Manifest, error) {
	m := NewManifest(PluginName)
	proc := processing.NewProcessor()

	imageExts := []string{".tif", ".tiff", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

	err := m.AddReader(Reader{
		Command:    "read-image",
		Extensions: imageExts,
		Read: func(s *session.Session, path string) error {
			name := utils.Stem(path)
			if utils.IsLabelFile(path) {
				labelMap, err := labels.Load(path)
				if err != nil {
					return err
				}
				s.AddLabels(name, path, labelMap)
				s.Status("loaded labels %s (%d ids)", filepath.Base(path), len(labelMap.IDs()))
				return nil
			}

			img, err := proc.LoadImage(path)
			if err != nil {
				return err
			}
			s.AddImage(name, path, img)
			s.Status("loaded %s", filepath.Base(path))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	err = m.AddWriter(Writer{
		Command:    "write-image",
		Kind:       session.LayerImage,
		Extensions: imageExts,
		Write: func(l *session.Layer, path string) error {
			overwrite := cfg.Output.Policy == config.PolicyOverwrite
			return fsx.WriteAtomic(path, overwrite, proc.Encoder(l.Image, path, cfg.Output.Quality))
		},
	})
	if err != nil {
		return nil, err
	}

	err = m.AddWriter(Writer{
		Command:    "write-labels",
		Kind:       session.LayerLabels,
		Extensions: []string{".tif", ".tiff"},
		Write: func(l *session.Layer, path string) error {
			overwrite := cfg.Output.Policy == config.PolicyOverwrite
			return fsx.WriteAtomic(path, overwrite, l.Labels.Encode)
		},
	})
	if err != nil {
		return nil, err
	}

	err = m.AddSample(Sample{
		Command:     "sample-cells",
		DisplayName: "Synthetic Cells",
		Generate: func(s *session.Session) error {
			s.AddImage("cells", "", SampleCells(256, 256))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	err = m.AddSample(Sample{
		Command:     "sample-cell-labels",
		DisplayName: "Synthetic Cell Labels",
		Generate: func(s *session.Session) error {
			s.AddLabels("cells_labels", "", SampleCellLabels(256, 256))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	widgets := []Widget{
		{Command: "batch-panel", DisplayName: "Batch Processing", Autogenerate: false},
		{Command: "label-review-panel", DisplayName: "Label Review", Autogenerate: false},
		{Command: "crop-panel", DisplayName: "Object Cropping", Autogenerate: false},
	}
	for _, w := range widgets {
		if err := m.AddWidget(w); err != nil {
			return nil, err
		}
	}

	log.Debug().Int("commands", len(m.Commands())).Msg("plugin manifest built")
	return m, nil
}
