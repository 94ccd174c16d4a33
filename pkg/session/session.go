// Package session holds the explicit per-window state that host
// integrations pass around instead of reading ambient globals. Every
// component that needs the current layers or wants to report status
// receives a *Session.
package session

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sko/microbatch/pkg/labels"
)

// LayerKind discriminates what a layer holds
type LayerKind string

const (
	LayerImage  LayerKind = "image"
	LayerLabels LayerKind = "labels"
)

// Layer is one named entry in a session. Exactly one of Image or Labels
// is set, according to Kind.
type Layer struct {
	Name   string
	Kind   LayerKind
	Source string

	Image  image.Image
	Labels *labels.LabelMap
}

// StatusSink receives user-facing status lines. Hosts plug their status
// bar in here; the default sink logs.
type StatusSink interface {
	Status(msg string)
}

// LogSink is the default StatusSink, writing status lines to a logger
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Status(msg string) {
	s.Log.Info().Msg(msg)
}

// Session is the explicit state of one host window
type Session struct {
	mu     sync.Mutex
	layers map[string]*Layer
	active string
	sink   StatusSink
	log    zerolog.Logger
}

// New creates an empty session reporting status to sink. A nil sink
// falls back to logging.
func New(log zerolog.Logger, sink StatusSink) *Session {
	if sink == nil {
		sink = LogSink{Log: log}
	}
	return &Session{
		layers: make(map[string]*Layer),
		sink:   sink,
		log:    log,
	}
}

// AddImage adds or replaces an image layer and makes it active
func (s *Session) AddImage(name, source string, img image.Image) *Layer {
	return s.add(&Layer{Name: name, Kind: LayerImage, Source: source, Image: img})
}

// AddLabels adds or replaces a labels layer and makes it active
func (s *Session) AddLabels(name, source string, m *labels.LabelMap) *Layer {
	return s.add(&Layer{Name: name, Kind: LayerLabels, Source: source, Labels: m})
}

func (s *Session) add(l *Layer) *Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[l.Name] = l
	s.active = l.Name
	return l
}

// Remove drops a layer. Removing the active layer clears the active
// selection.
func (s *Session) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers, name)
	if s.active == name {
		s.active = ""
	}
}

// Layer looks up one layer by name
func (s *Session) Layer(name string) (*Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[name]
	return l, ok
}

// SetActive selects the active layer
func (s *Session) SetActive(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[name]; !ok {
		return fmt.Errorf("no layer named %q", name)
	}
	s.active = name
	return nil
}

// Active returns the active layer, or nil when none is selected
func (s *Session) Active() *Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return nil
	}
	return s.layers[s.active]
}

// ActiveLabels returns the active layer's label map. It fails when the
// active layer is missing or is not a labels layer, so callers get a
// clear error instead of operating on the wrong layer.
func (s *Session) ActiveLabels() (*labels.LabelMap, error) {
	l := s.Active()
	if l == nil {
		return nil, fmt.Errorf("no active layer")
	}
	if l.Kind != LayerLabels {
		return nil, fmt.Errorf("active layer %q is not a labels layer", l.Name)
	}
	return l.Labels, nil
}

// Names returns all layer names in sorted order
func (s *Session) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.layers))
	for name := range s.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status reports a user-facing status line through the sink
func (s *Session) Status(format string, args ...any) {
	s.sink.Status(fmt.Sprintf(format, args...))
}
