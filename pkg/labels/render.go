package labels

import (
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Palette assigns stable, visually distinct colors to label ids
type Palette struct {
	Saturation float64
	Luminance  float64
}

// NewPalette creates a palette with the given HSL saturation and
// luminance, clamped to [0, 1].
func NewPalette(saturation, luminance float64) *Palette {
	return &Palette{
		Saturation: clamp01(saturation),
		Luminance:  clamp01(luminance),
	}
}

// Color returns the display color for a label id. Background is black.
// Hues advance by the golden angle so neighboring ids stay separable.
func (p *Palette) Color(id uint16) color.NRGBA {
	if id == 0 {
		return color.NRGBA{0, 0, 0, 255}
	}

	const goldenAngle = 137.50776405003785
	hue := math.Mod(float64(id)*goldenAngle, 360)

	c := colorful.Hsl(hue, p.Saturation, p.Luminance)
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{r, g, b, 255}
}

// Render draws the label map in palette colors for display
func (p *Palette) Render(m *LabelMap) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	cache := make(map[uint16]color.NRGBA)

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			id := m.At(x, y)
			c, ok := cache[id]
			if !ok {
				c = p.Color(id)
				cache[id] = c
			}
			i := y*img.Stride + x*4
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}

	return img
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
