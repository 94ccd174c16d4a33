package convert

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sko/microbatch/internal/fsx"
	"github.com/sko/microbatch/pkg/errs"
)

func writeTestGIF(t *testing.T, path string, frames int) {
	t.Helper()
	g := &gif.GIF{}
	palette := color.Palette{color.Black, color.White}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 16, 16), palette)
		frame.SetColorIndex(i, i, 1)
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 10)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatal(err)
	}
}

func writeTestPNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestFindLoader(t *testing.T) {
	loaders := DefaultLoaders()

	cases := map[string]string{
		"a.tif":  "tiff",
		"a.TIFF": "tiff",
		"a.gif":  "gif",
		"a.png":  "still",
		"a.webp": "still",
	}
	for path, want := range cases {
		l, err := FindLoader(loaders, path)
		if err != nil {
			t.Errorf("%s: %v", path, err)
			continue
		}
		if l.Name() != want {
			t.Errorf("%s: got loader %s, want %s", path, l.Name(), want)
		}
	}

	_, err := FindLoader(loaders, "scan.czi")
	var uf *errs.UnsupportedFormatError
	if !errors.As(err, &uf) {
		t.Errorf("expected UnsupportedFormatError for .czi, got %v", err)
	}
}

func TestConvertMultiFrameGIF(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "stack.gif")
	writeTestGIF(t, src, 3)

	c := NewConverter("png", 0, 90)

	count, err := c.SeriesCount(src)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 series, got %d", count)
	}

	outDir := t.TempDir()
	outputs, err := c.ConvertFile(context.Background(), src, outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}

	for i, out := range outputs {
		wantBase := filepath.Join(outDir, "stack_series"+string(rune('0'+i))+".png")
		if out.Path != wantBase {
			t.Errorf("output %d path %s, want %s", i, out.Path, wantBase)
		}
		if err := fsx.WriteAtomic(out.Path, true, out.Encode); err != nil {
			t.Fatalf("encoding series %d: %v", i, err)
		}
		f, err := os.Open(out.Path)
		if err != nil {
			t.Fatal(err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("series %d is not valid png: %v", i, err)
		}
		if img.Bounds().Dx() != 16 {
			t.Errorf("series %d has width %d", i, img.Bounds().Dx())
		}
	}
}

func TestConvertStillImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "field.png")
	writeTestPNG(t, src, 32, 24)

	c := NewConverter("tif", 0, 90)
	outputs, err := c.ConvertFile(context.Background(), src, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if !strings.HasSuffix(outputs[0].Path, "field_series0.tif") {
		t.Errorf("unexpected output path %s", outputs[0].Path)
	}
}

func TestLargeImageForcedToTIFF(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.png")
	writeTestPNG(t, src, 64, 64)

	// 64*64*4 = 16384 decoded bytes exceeds the 1 KiB threshold
	c := NewConverter("jpg", 1024, 90)
	outputs, err := c.ConvertFile(context.Background(), src, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(outputs[0].Path, ".tif") {
		t.Errorf("large image not forced to tif: %s", outputs[0].Path)
	}

	// Under the threshold the configured format wins
	c = NewConverter("jpg", 1<<30, 90)
	outputs, err = c.ConvertFile(context.Background(), src, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(outputs[0].Path, ".jpg") {
		t.Errorf("small image not written as jpg: %s", outputs[0].Path)
	}
}

func TestConvertUnsupportedFile(t *testing.T) {
	c := NewConverter("tif", 0, 90)
	_, err := c.ConvertFile(context.Background(), "scan.nd2", t.TempDir())
	var uf *errs.UnsupportedFormatError
	if !errors.As(err, &uf) {
		t.Errorf("expected UnsupportedFormatError, got %v", err)
	}
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "field.png")
	writeTestPNG(t, src, 40, 30)

	c := NewConverter("tif", 0, 90)
	meta, err := c.Metadata(src, 0)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Loader != "still" || meta.Count != 1 {
		t.Errorf("meta %+v", meta)
	}
	if meta.Width != 40 || meta.Height != 30 {
		t.Errorf("dimensions %dx%d", meta.Width, meta.Height)
	}

	if _, err := c.Metadata(src, 1); err == nil {
		t.Error("expected error for out-of-range series")
	}
}

func TestDescribe(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "stack.gif")
	writeTestGIF(t, src, 2)

	c := NewConverter("tif", 0, 90)
	desc, err := c.Describe(src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(desc, "gif") || !strings.Contains(desc, "2 series") {
		t.Errorf("unexpected description %q", desc)
	}
}
