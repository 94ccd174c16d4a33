// Package labels models label images (integer object masks) and the
// one-at-a-time inspection flow used to review and correct them.
package labels

import (
	"fmt"
	"image"
	"io"
	"os"
	"sort"

	"golang.org/x/image/tiff"

	"github.com/sko/microbatch/pkg/errs"
	"github.com/sko/microbatch/pkg/processing"
)

// LabelMap is a dense raster of object ids; 0 is background
type LabelMap struct {
	Width  int
	Height int
	Pix    []uint16
}

// NewLabelMap creates an all-background label map
func NewLabelMap(width, height int) *LabelMap {
	return &LabelMap{
		Width:  width,
		Height: height,
		Pix:    make([]uint16, width*height),
	}
}

// At returns the label id at (x, y)
func (m *LabelMap) At(x, y int) uint16 {
	return m.Pix[y*m.Width+x]
}

// Set assigns the label id at (x, y)
func (m *LabelMap) Set(x, y int, id uint16) {
	m.Pix[y*m.Width+x] = id
}

// IDs returns the distinct non-background ids in ascending order
func (m *LabelMap) IDs() []uint16 {
	seen := make(map[uint16]struct{})
	for _, id := range m.Pix {
		if id != 0 {
			seen[id] = struct{}{}
		}
	}
	ids := make([]uint16, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of pixels carrying id
func (m *LabelMap) Count(id uint16) int {
	n := 0
	for _, v := range m.Pix {
		if v == id {
			n++
		}
	}
	return n
}

// Relabel rewrites every pixel of oldID to newID
func (m *LabelMap) Relabel(oldID, newID uint16) {
	for i, v := range m.Pix {
		if v == oldID {
			m.Pix[i] = newID
		}
	}
}

// Remove clears every pixel of id to background
func (m *LabelMap) Remove(id uint16) {
	m.Relabel(id, 0)
}

// Merge rewrites all given ids to target
func (m *LabelMap) Merge(target uint16, ids ...uint16) {
	for _, id := range ids {
		if id != target {
			m.Relabel(id, target)
		}
	}
}

// Clone returns a deep copy
func (m *LabelMap) Clone() *LabelMap {
	out := NewLabelMap(m.Width, m.Height)
	copy(out.Pix, m.Pix)
	return out
}

// FromImage builds a label map from a decoded image. 16-bit grayscale
// keeps its ids; paletted images use palette indices; anything else maps
// through 8-bit luminance.
func FromImage(img image.Image) *LabelMap {
	bounds := img.Bounds()
	m := NewLabelMap(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				m.Set(x, y, src.Gray16At(x+bounds.Min.X, y+bounds.Min.Y).Y)
			}
		}
	case *image.Paletted:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				m.Set(x, y, uint16(src.ColorIndexAt(x+bounds.Min.X, y+bounds.Min.Y)))
			}
		}
	default:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
				lum := (299*r + 587*g + 114*b) / 1000
				m.Set(x, y, uint16(lum>>8))
			}
		}
	}

	return m
}

// ToImage renders the label map as 16-bit grayscale, the on-disk form
func (m *LabelMap) ToImage() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			id := m.At(x, y)
			offset := y*img.Stride + x*2
			img.Pix[offset] = uint8(id >> 8)
			img.Pix[offset+1] = uint8(id)
		}
	}
	return img
}

// Load reads a label image from disk. A missing file is a NotFoundError;
// an existing file the decoders reject is an UnsupportedFormatError.
func Load(path string) (*LabelMap, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Path: path}
		}
		return nil, err
	}
	proc := processing.NewProcessor()
	img, err := proc.LoadImage(path)
	if err != nil {
		return nil, &errs.UnsupportedFormatError{Path: path, Reason: err.Error()}
	}
	return FromImage(img), nil
}

// Encode writes the label map as deflate-compressed 16-bit TIFF
func (m *LabelMap) Encode(w io.Writer) error {
	if err := tiff.Encode(w, m.ToImage(), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encoding label map: %w", err)
	}
	return nil
}
