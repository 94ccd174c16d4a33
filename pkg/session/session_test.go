package session

import (
	"image"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sko/microbatch/pkg/labels"
)

// recordSink captures status lines for assertions
type recordSink struct {
	lines []string
}

func (r *recordSink) Status(msg string) {
	r.lines = append(r.lines, msg)
}

func TestLayerManagement(t *testing.T) {
	s := New(zerolog.Nop(), nil)

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	s.AddImage("field", "field.tif", img)
	s.AddLabels("field_labels", "field_labels.tif", labels.NewLabelMap(4, 4))

	names := s.Names()
	if len(names) != 2 || names[0] != "field" || names[1] != "field_labels" {
		t.Errorf("names %v", names)
	}

	// The last added layer is active
	if got := s.Active(); got == nil || got.Name != "field_labels" {
		t.Errorf("active layer %+v", got)
	}

	if err := s.SetActive("field"); err != nil {
		t.Fatal(err)
	}
	if got := s.Active(); got.Kind != LayerImage {
		t.Errorf("active kind %s", got.Kind)
	}
	if err := s.SetActive("missing"); err == nil {
		t.Error("SetActive accepted unknown layer")
	}

	s.Remove("field")
	if s.Active() != nil {
		t.Error("removed layer still active")
	}
	if _, ok := s.Layer("field"); ok {
		t.Error("removed layer still present")
	}
}

func TestActiveLabels(t *testing.T) {
	s := New(zerolog.Nop(), nil)

	if _, err := s.ActiveLabels(); err == nil {
		t.Error("ActiveLabels succeeded with no layers")
	}

	s.AddImage("field", "", image.NewGray(image.Rect(0, 0, 2, 2)))
	if _, err := s.ActiveLabels(); err == nil {
		t.Error("ActiveLabels succeeded on an image layer")
	}

	m := labels.NewLabelMap(2, 2)
	s.AddLabels("field_labels", "", m)
	got, err := s.ActiveLabels()
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Error("wrong label map returned")
	}
}

func TestStatusSink(t *testing.T) {
	sink := &recordSink{}
	s := New(zerolog.Nop(), sink)

	s.Status("loaded %d files", 3)
	if len(sink.lines) != 1 || sink.lines[0] != "loaded 3 files" {
		t.Errorf("sink lines %v", sink.lines)
	}
}
