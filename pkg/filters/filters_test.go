package filters

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sko/microbatch/internal/fsx"
	"github.com/sko/microbatch/pkg/processing"
	"github.com/sko/microbatch/pkg/registry"
)

func createTestImage(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if x < 16 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	path := filepath.Join(dir, "test.png")
	if err := processing.NewProcessor().SaveImage(img, path, 90); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegisterAll(t *testing.T) {
	r := registry.New()
	if err := RegisterAll(r, Options{}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"box-blur", "gaussian-blur", "grayscale", "invert", "median",
		"resize", "sharpen", "sobel-edges", "threshold",
	}
	list := r.List()
	if len(list) != len(want) {
		t.Fatalf("expected %d filters, got %d", len(want), len(list))
	}
	for i, d := range list {
		if d.ID != want[i] {
			t.Errorf("filter %d is %s, want %s", i, d.ID, want[i])
		}
		if d.DisplayName == "" {
			t.Errorf("filter %s has no display name", d.ID)
		}
	}
}

func TestFiltersProduceOutputs(t *testing.T) {
	srcDir := t.TempDir()
	src := createTestImage(t, srcDir)

	r := registry.New()
	outDir := t.TempDir()
	if err := RegisterAll(r, Options{OutputRoot: outDir, Quality: 90}); err != nil {
		t.Fatal(err)
	}

	proc := processing.NewProcessor()
	for _, d := range r.List() {
		params, err := registry.Bind(d, nil)
		if err != nil {
			t.Fatalf("%s: %v", d.ID, err)
		}

		outputs, err := d.Process(context.Background(), src, params)
		if err != nil {
			t.Fatalf("%s: %v", d.ID, err)
		}
		if len(outputs) != 1 {
			t.Fatalf("%s: %d outputs", d.ID, len(outputs))
		}

		out := outputs[0]
		if !strings.HasPrefix(filepath.Base(out.Path), "test"+d.OutputSuffix) {
			t.Errorf("%s: output named %s", d.ID, out.Path)
		}
		if err := fsx.WriteAtomic(out.Path, true, out.Encode); err != nil {
			t.Fatalf("%s: write: %v", d.ID, err)
		}
		if _, err := proc.LoadImage(out.Path); err != nil {
			t.Errorf("%s: output unreadable: %v", d.ID, err)
		}
	}
}

func TestThresholdOutputIsTIFF(t *testing.T) {
	src := createTestImage(t, t.TempDir())

	r := registry.New()
	if err := RegisterAll(r, Options{}); err != nil {
		t.Fatal(err)
	}
	d, _ := r.Lookup("threshold")

	params, err := registry.Bind(d, map[string]any{"level": 100})
	if err != nil {
		t.Fatal(err)
	}
	outputs, err := d.Process(context.Background(), src, params)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(outputs[0].Path, "_mask.tif") {
		t.Errorf("threshold output named %s", outputs[0].Path)
	}
}

func TestResizeChangesDimensions(t *testing.T) {
	src := createTestImage(t, t.TempDir())

	r := registry.New()
	outDir := t.TempDir()
	if err := RegisterAll(r, Options{OutputRoot: outDir}); err != nil {
		t.Fatal(err)
	}
	d, _ := r.Lookup("resize")

	params, err := registry.Bind(d, map[string]any{"width": 16, "height": 0})
	if err != nil {
		t.Fatal(err)
	}
	outputs, err := d.Process(context.Background(), src, params)
	if err != nil {
		t.Fatal(err)
	}
	if err := fsx.WriteAtomic(outputs[0].Path, true, outputs[0].Encode); err != nil {
		t.Fatal(err)
	}

	img, err := processing.NewProcessor().LoadImage(outputs[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("resized width %d", img.Bounds().Dx())
	}
}

func TestFilterFailsOnMissingFile(t *testing.T) {
	r := registry.New()
	if err := RegisterAll(r, Options{}); err != nil {
		t.Fatal(err)
	}
	d, _ := r.Lookup("grayscale")

	params, _ := registry.Bind(d, nil)
	if _, err := d.Process(context.Background(), filepath.Join(t.TempDir(), "nope.png"), params); err == nil {
		t.Fatal("expected error for missing source file")
	}
}
