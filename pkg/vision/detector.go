// Package vision provides a local, model-free region proposer based on
// saliency. It backs the crop selector when no vision-model server is
// reachable.
package vision

import (
	"image"
	"math"
	"sort"
)

// ObjectDetector proposes object regions from local image statistics
type ObjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for local object detection
type DetectionConfig struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinObjectRatio  float64
	MaxRegions      int
	OverlapSuppress float64
}

// New creates a new ObjectDetector with default configuration
func New() *ObjectDetector {
	return &ObjectDetector{
		config: DetectionConfig{
			EdgeThreshold:   0.01,
			ContrastWeight:  0.3,
			ColorWeight:     0.2,
			MinObjectRatio:  0.002,
			MaxRegions:      32,
			OverlapSuppress: 0.5,
		},
	}
}

// NewWithConfig creates a new ObjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *ObjectDetector {
	if config.MaxRegions <= 0 {
		config.MaxRegions = 32
	}
	if config.OverlapSuppress <= 0 {
		config.OverlapSuppress = 0.5
	}
	return &ObjectDetector{config: config}
}

// Region is a pixel-space rectangle with a saliency score
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// DetectObjects analyzes an image and returns candidate object regions,
// highest score first, with heavily overlapping candidates suppressed.
func (d *ObjectDetector) DetectObjects(img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := d.calculateSaliencyMap(img)
	candidates := d.findSalientRegions(saliencyMap, width, height)
	filtered := d.filterAndScoreRegions(candidates, width, height)
	kept := d.suppressOverlaps(filtered)

	if len(kept) > d.config.MaxRegions {
		kept = kept[:d.config.MaxRegions]
	}
	return kept, nil
}

func (d *ObjectDetector) calculateSaliencyMap(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := make([][]float64, height)
	for i := range saliencyMap {
		saliencyMap[i] = make([]float64, width)
	}

	// Edge strength from the 8-neighborhood plus brightness as a cheap
	// contrast term. Microscopy objects are usually brighter or darker
	// than their background, so this is enough for proposals.
	neighbors := [][]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			r1, g1, b1, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			var edgeStrength float64
			for _, offset := range neighbors {
				nx, ny := x+offset[0], y+offset[1]
				r2, g2, b2, _ := img.At(nx+bounds.Min.X, ny+bounds.Min.Y).RGBA()

				dr := float64(r1) - float64(r2)
				dg := float64(g1) - float64(g2)
				db := float64(b1) - float64(b2)
				edgeStrength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edgeStrength /= 8.0 * 65535.0

			brightness := (float64(r1) + float64(g1) + float64(b1)) / (3.0 * 65535.0)

			saliencyMap[y][x] = d.config.ContrastWeight*edgeStrength + d.config.ColorWeight*brightness
		}
	}

	return saliencyMap
}

func (d *ObjectDetector) findSalientRegions(saliencyMap [][]float64, width, height int) []Region {
	var regions []Region

	windowSizes := []int{width / 20, width / 12, width / 8, width / 4}

	for _, windowSize := range windowSizes {
		if windowSize < 8 {
			continue
		}

		for y := 0; y <= height-windowSize; y += windowSize / 4 {
			for x := 0; x <= width-windowSize; x += windowSize / 4 {
				score := d.regionScore(saliencyMap, x, y, windowSize, windowSize)
				if score > d.config.EdgeThreshold {
					regions = append(regions, Region{
						X:      x,
						Y:      y,
						Width:  windowSize,
						Height: windowSize,
						Score:  score,
					})
				}
			}
		}
	}

	return regions
}

func (d *ObjectDetector) regionScore(saliencyMap [][]float64, x, y, width, height int) float64 {
	var total float64
	count := 0

	for ry := y; ry < y+height && ry < len(saliencyMap); ry++ {
		for rx := x; rx < x+width && rx < len(saliencyMap[0]); rx++ {
			total += saliencyMap[ry][rx]
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func (d *ObjectDetector) filterAndScoreRegions(regions []Region, imageWidth, imageHeight int) []Region {
	var filtered []Region

	minArea := int(float64(imageWidth*imageHeight) * d.config.MinObjectRatio)
	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		// Stable tie-break so proposal order is deterministic.
		if filtered[i].Y != filtered[j].Y {
			return filtered[i].Y < filtered[j].Y
		}
		return filtered[i].X < filtered[j].X
	})

	return filtered
}

// suppressOverlaps keeps the best-scoring region of each overlapping
// cluster, greedily in score order.
func (d *ObjectDetector) suppressOverlaps(regions []Region) []Region {
	var kept []Region

	for _, candidate := range regions {
		overlapping := false
		for _, k := range kept {
			if overlapRatio(candidate, k) > d.config.OverlapSuppress {
				overlapping = true
				break
			}
		}
		if !overlapping {
			kept = append(kept, candidate)
		}
	}

	return kept
}

func overlapRatio(a, b Region) float64 {
	x0 := math.Max(float64(a.X), float64(b.X))
	y0 := math.Max(float64(a.Y), float64(b.Y))
	x1 := math.Min(float64(a.X+a.Width), float64(b.X+b.Width))
	y1 := math.Min(float64(a.Y+a.Height), float64(b.Y+b.Height))

	if x1 <= x0 || y1 <= y0 {
		return 0
	}

	inter := (x1 - x0) * (y1 - y0)
	smaller := math.Min(float64(a.Area()), float64(b.Area()))
	if smaller == 0 {
		return 0
	}
	return inter / smaller
}
