// Package detection turns a vision backend into deterministic region
// proposals for the crop selector.
package detection

import (
	"context"
	"fmt"

	"github.com/sko/microbatch/pkg/client"
	"github.com/sko/microbatch/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt is the default prompt for region proposals
const DefaultPrompt = `You are a microscopy object locator.

Return JSON only:
{
  "regions": [
    {
      "id": 1,
      "label": "string",
      "confidence": 0.0,
      "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
    }
  ],
  "description": "short neutral sentence (<= 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels).
- Return one entry per distinct object (cell, nucleus, organoid, particle).
- Boxes should tightly include each object; overlapping boxes are allowed.
- Order regions top-to-bottom, then left-to-right.
- Return at most 32 regions; prefer the largest/clearest objects.
- If no objects are found, return {"regions": [], "description": "no objects found"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Detector asks a vision backend for region proposals and cleans them up
type Detector struct {
	client client.VisionClient

	// MinRegionRatio drops proposals smaller than this fraction of the
	// image area.
	MinRegionRatio float64
}

// NewDetector creates a detector over a vision client
func NewDetector(c client.VisionClient) *Detector {
	return &Detector{client: c, MinRegionRatio: 0.001}
}

// ProposeRegions analyzes an image and returns candidate object regions,
// filtered and renumbered deterministically.
func (d *Detector) ProposeRegions(ctx context.Context, model, imageB64 string) (*types.ProposalResult, error) {
	return d.ProposeRegionsWithPrompt(ctx, model, imageB64, DefaultPrompt)
}

// ProposeRegionsWithPrompt analyzes an image with a custom prompt
func (d *Detector) ProposeRegionsWithPrompt(ctx context.Context, model, imageB64, prompt string) (*types.ProposalResult, error) {
	result, err := d.client.ProposeRegions(ctx, model, prompt, imageB64)
	if err != nil {
		return nil, fmt.Errorf("region proposal failed: %w", err)
	}

	return d.cleanResult(result), nil
}

// TestVision checks that the backend can actually see the image
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// cleanResult drops degenerate and tiny boxes, then renumbers so ids are
// 1..n in reading order regardless of what the model claimed.
func (d *Detector) cleanResult(result *types.ProposalResult) *types.ProposalResult {
	kept := result.Regions[:0]
	for _, region := range result.Regions {
		if region.Box.W <= 0 || region.Box.H <= 0 {
			continue
		}
		if region.Box.Area() < d.MinRegionRatio {
			continue
		}
		kept = append(kept, region)
	}
	result.Regions = kept

	types.SortRegions(result.Regions)
	for i := range result.Regions {
		result.Regions[i].ID = i + 1
	}

	return result
}
