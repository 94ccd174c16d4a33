package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/sko/microbatch/pkg/types"
)

func mustBase64(t *testing.T, s string) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// createTestImage creates a gradient image for round-trip tests
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 128, 255})
		}
	}
	return img
}

func TestFileFormat(t *testing.T) {
	cases := map[string]string{
		"a.tif":  "tiff",
		"a.TIFF": "tiff",
		"a.jpg":  "jpeg",
		"a.jpeg": "jpeg",
		"a.png":  "png",
		"a.webp": "webp",
		"a.bmp":  "bmp",
	}
	for path, want := range cases {
		if got := FileFormat(path); got != want {
			t.Errorf("FileFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	proc := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(24, 24)

	for _, name := range []string{"a.png", "a.tif", "a.jpg", "a.bmp", "a.webp"} {
		path := filepath.Join(dir, name)
		if err := proc.SaveImage(img, path, 90); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		back, err := proc.LoadImage(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if back.Bounds().Dx() != 24 || back.Bounds().Dy() != 24 {
			t.Errorf("%s: bounds changed to %v", name, back.Bounds())
		}
	}
}

func TestLoadImageMissing(t *testing.T) {
	proc := NewProcessor()
	if _, err := proc.LoadImage(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	proc := NewProcessor()
	var buf bytes.Buffer
	if err := proc.Encode(&buf, createTestImage(4, 4), "xyz", 90, false); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestCropToBox(t *testing.T) {
	proc := NewProcessor()
	img := createTestImage(100, 100)

	cropped, err := proc.CropToBox(img, types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if cropped.Bounds().Dx() != 50 || cropped.Bounds().Dy() != 50 {
		t.Errorf("crop bounds %v", cropped.Bounds())
	}

	if _, err := proc.CropToBox(img, types.Box{X: 0.5, Y: 0.5, W: 0, H: 0}); err == nil {
		t.Error("empty crop rectangle accepted")
	}
}

func TestZeroBox(t *testing.T) {
	proc := NewProcessor()
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 200
	}

	proc.ZeroBox(img, types.Box{X: 0.0, Y: 0.0, W: 0.5, H: 0.5})

	if c := img.NRGBAAt(2, 2); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("inside pixel not zeroed: %v", c)
	}
	if c := img.NRGBAAt(8, 8); c.R != 200 {
		t.Errorf("outside pixel modified: %v", c)
	}
}

func TestRegionOverlayLeavesOriginalIntact(t *testing.T) {
	proc := NewProcessor()
	img := createTestImage(50, 50)
	before := img.RGBAAt(25, 2)

	regions := []types.Region{
		{ID: 1, Box: types.Box{X: 0.1, Y: 0.1, W: 0.3, H: 0.3}},
		{ID: 2, Box: types.Box{X: 0.5, Y: 0.5, W: 0.3, H: 0.3}},
	}
	overlay := proc.RegionOverlay(img, regions, map[int]bool{1: true})

	if img.RGBAAt(25, 2) != before {
		t.Error("overlay modified the source image")
	}
	if overlay.Bounds() != image.Rect(0, 0, 50, 50) {
		t.Errorf("overlay bounds %v", overlay.Bounds())
	}

	// Accepted regions are drawn green, rejected ones red
	greenish := false
	reddish := false
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			c := overlay.NRGBAAt(x, y)
			if c.G == 255 && c.R == 0 {
				greenish = true
			}
			if c.R == 255 && c.G == 64 {
				reddish = true
			}
		}
	}
	if !greenish {
		t.Error("no green outline for accepted region")
	}
	if !reddish {
		t.Error("no red outline for rejected region")
	}
}

func TestPrepareImageForModelResizes(t *testing.T) {
	proc := NewProcessor()
	img := createTestImage(64, 32)

	b64, err := proc.PrepareImageForModel(img, "png", 32, 90)
	if err != nil {
		t.Fatal(err)
	}
	if b64 == "" {
		t.Fatal("empty base64 payload")
	}

	decoded, err := proc.DecodeBytes(mustBase64(t, b64))
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds().Dx() != 32 {
		t.Errorf("long side %d after resize to 32", decoded.Bounds().Dx())
	}
}
