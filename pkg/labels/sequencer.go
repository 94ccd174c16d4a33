package labels

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sko/microbatch/internal/fsx"
	"github.com/sko/microbatch/pkg/errs"
	"github.com/sko/microbatch/pkg/worklist"
)

// State is the sequencer's position in the inspect/edit/save cycle
type State string

const (
	StateViewing State = "viewing"
	StateEditing State = "editing"
	StateSaving  State = "saving"
)

// Sequencer presents one label image at a time from a worklist, accepts
// in-place edits and persists them back to the source path before
// advancing.
//
// A failed save keeps the sequencer in the saving state so the edit is
// never silently lost; SaveAndContinue may be retried.
type Sequencer struct {
	items   []*worklist.Item
	index   int
	state   State
	current *LabelMap
	log     zerolog.Logger

	load func(path string) (*LabelMap, error)
	save func(path string, m *LabelMap) error
}

// NewSequencer builds a sequencer over the worklist's items. The first
// item is loaded lazily on the first Current call.
func NewSequencer(wl *worklist.Worklist, log zerolog.Logger) *Sequencer {
	return &Sequencer{
		items: wl.Items,
		state: StateViewing,
		log:   log,
		load:  Load,
		save: func(path string, m *LabelMap) error {
			// Edits go back to the original file, replacing it atomically.
			return fsx.WriteAtomic(path, true, m.Encode)
		},
	}
}

// State returns the current state
func (s *Sequencer) State() State { return s.state }

// Done reports whether every item has been visited and saved
func (s *Sequencer) Done() bool { return s.index >= len(s.items) }

// Remaining returns the number of items not yet completed, including the
// current one.
func (s *Sequencer) Remaining() int { return len(s.items) - s.index }

// Current returns the label map under inspection, loading it on first
// access.
func (s *Sequencer) Current() (*LabelMap, error) {
	if s.Done() {
		return nil, fmt.Errorf("sequencer is done")
	}
	if s.current == nil {
		m, err := s.load(s.items[s.index].SourcePath)
		if err != nil {
			return nil, err
		}
		s.current = m
	}
	return s.current, nil
}

// CurrentPath returns the source path of the item under inspection
func (s *Sequencer) CurrentPath() (string, error) {
	if s.Done() {
		return "", fmt.Errorf("sequencer is done")
	}
	return s.items[s.index].SourcePath, nil
}

// Edit applies fn to the current label map. The first edit moves the
// sequencer from viewing to editing; edits are rejected while a save is
// pending.
func (s *Sequencer) Edit(fn func(*LabelMap)) error {
	if s.state == StateSaving {
		return fmt.Errorf("cannot edit while a save is pending")
	}

	m, err := s.Current()
	if err != nil {
		return err
	}

	fn(m)
	s.state = StateEditing
	return nil
}

// SaveAndContinue writes the edited label map back to its source path and
// advances to the next item. Without pending edits it simply advances. On
// a write failure the sequencer stays in the saving state and the same
// call can be retried.
func (s *Sequencer) SaveAndContinue() error {
	if s.Done() {
		return fmt.Errorf("sequencer is done")
	}

	if s.state == StateViewing {
		// Nothing changed; advancing loses no data.
		s.advance()
		return nil
	}

	s.state = StateSaving
	path := s.items[s.index].SourcePath

	if err := s.save(path, s.current); err != nil {
		werr := &errs.WriteError{Path: path, Err: err}
		s.log.Warn().Str("path", path).Err(werr).Msg("label save failed")
		return werr
	}

	s.items[s.index].MarkProcessed(path)
	s.log.Info().Str("path", path).Msg("labels saved")
	s.advance()
	return nil
}

// Skip abandons edits to the current item and advances
func (s *Sequencer) Skip() error {
	if s.Done() {
		return fmt.Errorf("sequencer is done")
	}
	if s.state == StateSaving {
		return fmt.Errorf("cannot skip while a save is pending")
	}
	s.advance()
	return nil
}

func (s *Sequencer) advance() {
	s.index++
	s.current = nil
	s.state = StateViewing
}
