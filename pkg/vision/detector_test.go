package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// createTestImage paints a bright square on a dark background
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{10, 10, 10, 255})
		}
	}
	for y := height / 4; y < height/2; y++ {
		for x := width / 4; x < width/2; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	return img
}

func TestDetectObjects(t *testing.T) {
	d := New()
	img := createTestImage(200, 200)

	regions, err := d.DetectObjects(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) == 0 {
		t.Fatal("no regions found on image with a clear object")
	}
	if len(regions) > 32 {
		t.Errorf("region cap exceeded: %d", len(regions))
	}

	// Highest scoring first
	for i := 1; i < len(regions); i++ {
		if regions[i].Score > regions[i-1].Score {
			t.Errorf("regions not sorted by score at %d", i)
			break
		}
	}

	// The best region should land on or near the bright square
	cx, cy := regions[0].Center()
	if cx < 25 || cx > 125 || cy < 25 || cy > 125 {
		t.Errorf("best region centered at (%d, %d), object is at (50..100, 50..100)", cx, cy)
	}
}

func TestDetectObjectsDeterministic(t *testing.T) {
	d := New()
	img := createTestImage(160, 160)

	first, err := d.DetectObjects(img)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.DetectObjects(img)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("runs disagree: %d vs %d regions", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("region %d differs between runs", i)
		}
	}
}

func TestSuppressOverlaps(t *testing.T) {
	d := New()
	regions := []Region{
		{X: 0, Y: 0, Width: 100, Height: 100, Score: 0.9},
		{X: 10, Y: 10, Width: 100, Height: 100, Score: 0.8}, // mostly inside the first
		{X: 300, Y: 300, Width: 100, Height: 100, Score: 0.7},
	}

	kept := d.suppressOverlaps(regions)
	if len(kept) != 2 {
		t.Fatalf("expected 2 regions after suppression, got %d", len(kept))
	}
	if kept[0].Score != 0.9 || kept[1].Score != 0.7 {
		t.Errorf("wrong survivors: %+v", kept)
	}
}

func TestOverlapRatio(t *testing.T) {
	a := Region{X: 0, Y: 0, Width: 100, Height: 100}
	b := Region{X: 50, Y: 0, Width: 100, Height: 100}
	if got := overlapRatio(a, b); got != 0.5 {
		t.Errorf("expected overlap 0.5, got %v", got)
	}

	c := Region{X: 200, Y: 200, Width: 10, Height: 10}
	if got := overlapRatio(a, c); got != 0 {
		t.Errorf("expected no overlap, got %v", got)
	}
}

func TestClientProposeRegions(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(200, 200)); err != nil {
		t.Fatal(err)
	}
	imgB64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	c := NewClient(nil)
	result, err := c.ProposeRegions(context.Background(), "ignored", "ignored", imgB64)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Regions) == 0 {
		t.Fatal("local backend found no regions")
	}

	for i, r := range result.Regions {
		if r.ID != i+1 {
			t.Errorf("region %d has id %d", i, r.ID)
		}
		if r.Box.X < 0 || r.Box.Y < 0 || r.Box.X+r.Box.W > 1.0001 || r.Box.Y+r.Box.H > 1.0001 {
			t.Errorf("region %d box not normalized: %+v", i, r.Box)
		}
	}
	if result.Description == "" {
		t.Error("empty description")
	}
}

func TestClientRejectsBadBase64(t *testing.T) {
	c := NewClient(New())
	if _, err := c.ProposeRegions(context.Background(), "m", "p", "not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}
