// Package plugin declares the host-facing entry points as a static typed
// manifest. Contributions are registered once at startup and validated
// eagerly, so a broken registration fails fast instead of surfacing as a
// missing menu entry later.
package plugin

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"strings"

	"github.com/sko/microbatch/pkg/labels"
	"github.com/sko/microbatch/pkg/session"
)

// ReaderFunc loads a path into a session
type ReaderFunc func(s *session.Session, path string) error

// WriterFunc persists a layer to a path
type WriterFunc func(l *session.Layer, path string) error

// SampleFunc generates sample data and adds it to a session
type SampleFunc func(s *session.Session) error

// Reader matches paths by extension and loads them
type Reader struct {
	Command    string
	Extensions []string
	Read       ReaderFunc
}

// Accepts reports whether the reader claims the path
func (r Reader) Accepts(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range r.Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Writer persists one layer kind to matching paths
type Writer struct {
	Command    string
	Kind       session.LayerKind
	Extensions []string
	Write      WriterFunc
}

// Sample is a named sample-data provider
type Sample struct {
	Command     string
	DisplayName string
	Generate    SampleFunc
}

// Widget describes a dockable panel contribution. The host constructs
// the actual UI; the manifest only names it.
type Widget struct {
	Command      string
	DisplayName  string
	Autogenerate bool
}

// Manifest is the full set of contributions. It is populated at startup
// and read-only afterwards, so lookups need no locking.
type Manifest struct {
	name     string
	commands map[string]bool
	readers  []Reader
	writers  []Writer
	samples  []Sample
	widgets  []Widget
}

// NewManifest creates an empty manifest for the named plugin
func NewManifest(name string) *Manifest {
	return &Manifest{
		name:     name,
		commands: make(map[string]bool),
	}
}

// Name returns the plugin name
func (m *Manifest) Name() string {
	return m.name
}

func (m *Manifest) claim(command string) error {
	if command == "" {
		return fmt.Errorf("plugin %s: empty command id", m.name)
	}
	if m.commands[command] {
		return fmt.Errorf("plugin %s: duplicate command id %q", m.name, command)
	}
	m.commands[command] = true
	return nil
}

// AddReader registers a reader contribution
func (m *Manifest) AddReader(r Reader) error {
	if r.Read == nil {
		return fmt.Errorf("plugin %s: reader %q has no function", m.name, r.Command)
	}
	if len(r.Extensions) == 0 {
		return fmt.Errorf("plugin %s: reader %q matches no extensions", m.name, r.Command)
	}
	if err := m.claim(r.Command); err != nil {
		return err
	}
	m.readers = append(m.readers, r)
	return nil
}

// AddWriter registers a writer contribution
func (m *Manifest) AddWriter(w Writer) error {
	if w.Write == nil {
		return fmt.Errorf("plugin %s: writer %q has no function", m.name, w.Command)
	}
	if err := m.claim(w.Command); err != nil {
		return err
	}
	m.writers = append(m.writers, w)
	return nil
}

// AddSample registers a sample-data contribution
func (m *Manifest) AddSample(s Sample) error {
	if s.Generate == nil {
		return fmt.Errorf("plugin %s: sample %q has no function", m.name, s.Command)
	}
	if err := m.claim(s.Command); err != nil {
		return err
	}
	m.samples = append(m.samples, s)
	return nil
}

// AddWidget registers a widget contribution
func (m *Manifest) AddWidget(w Widget) error {
	if err := m.claim(w.Command); err != nil {
		return err
	}
	m.widgets = append(m.widgets, w)
	return nil
}

// FindReader returns the first reader accepting the path
func (m *Manifest) FindReader(path string) (Reader, bool) {
	for _, r := range m.readers {
		if r.Accepts(path) {
			return r, true
		}
	}
	return Reader{}, false
}

// FindWriter returns the first writer for the layer kind whose
// extensions match the path. Writers with no extensions match any path.
func (m *Manifest) FindWriter(kind session.LayerKind, path string) (Writer, bool) {
	lower := strings.ToLower(path)
	for _, w := range m.writers {
		if w.Kind != kind {
			continue
		}
		if len(w.Extensions) == 0 {
			return w, true
		}
		for _, ext := range w.Extensions {
			if strings.HasSuffix(lower, ext) {
				return w, true
			}
		}
	}
	return Writer{}, false
}

// Samples returns the sample providers sorted by command id
func (m *Manifest) Samples() []Sample {
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Widgets returns the widget contributions sorted by command id
func (m *Manifest) Widgets() []Widget {
	out := make([]Widget, len(m.widgets))
	copy(out, m.widgets)
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Commands returns every claimed command id in sorted order
func (m *Manifest) Commands() []string {
	out := make([]string, 0, len(m.commands))
	for c := range m.commands {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SampleCells generates a synthetic microscopy field: dim background
// with a grid of bright circular blobs, the kind of image the filters
// and label tools expect.
func SampleCells(width, height int) image.Image {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	background := color.Gray16{Y: 600}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, background)
		}
	}

	step := width / 4
	if step < 8 {
		step = 8
	}
	radius := step / 4
	bright := color.Gray16{Y: 52000}
	for cy := step / 2; cy < height; cy += step {
		for cx := step / 2; cx < width; cx += step {
			fillDisc(cx, cy, radius, width, height, func(x, y int) {
				img.SetGray16(x, y, bright)
			})
		}
	}
	return img
}

// SampleCellLabels generates the matching label map for SampleCells,
// each blob carrying its own id.
func SampleCellLabels(width, height int) *labels.LabelMap {
	m := labels.NewLabelMap(width, height)

	step := width / 4
	if step < 8 {
		step = 8
	}
	radius := step / 4
	id := uint16(0)
	for cy := step / 2; cy < height; cy += step {
		for cx := step / 2; cx < width; cx += step {
			id++
			label := id
			fillDisc(cx, cy, radius, width, height, func(x, y int) {
				m.Set(x, y, label)
			})
		}
	}
	return m
}

// fillDisc invokes set for every point of a filled circle clipped to the
// image bounds
func fillDisc(cx, cy, radius, width, height int, set func(x, y int)) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			x, y := cx+dx, cy+dy
			if x >= 0 && x < width && y >= 0 && y < height {
				set(x, y)
			}
		}
	}
}
