package vision

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sko/microbatch/pkg/processing"
	"github.com/sko/microbatch/pkg/types"
)

// Client adapts the local detector to the segmentation-backend contract,
// so the crop selector can run without a model server. The model and
// prompt arguments are accepted and ignored.
type Client struct {
	detector *ObjectDetector
	proc     *processing.Processor
}

// NewClient creates a local backend over a detector
func NewClient(detector *ObjectDetector) *Client {
	if detector == nil {
		detector = New()
	}
	return &Client{detector: detector, proc: processing.NewProcessor()}
}

// SimpleQuery reports the number of detected objects as text
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	result, err := c.ProposeRegions(ctx, model, prompt, imgB64)
	if err != nil {
		return "", err
	}
	return result.Description, nil
}

// ProposeRegions runs the local detector over the image
func (c *Client) ProposeRegions(ctx context.Context, model, prompt, imgB64 string) (*types.ProposalResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	data, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %v", err)
	}

	img, err := c.proc.DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	pixelRegions, err := c.detector.DetectObjects(img)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	fw, fh := float64(bounds.Dx()), float64(bounds.Dy())

	regions := make([]types.Region, 0, len(pixelRegions))
	for _, r := range pixelRegions {
		regions = append(regions, types.Region{
			Label:      "object",
			Confidence: r.Score,
			Box: types.Box{
				X: float64(r.X) / fw,
				Y: float64(r.Y) / fh,
				W: float64(r.Width) / fw,
				H: float64(r.Height) / fh,
			},
		})
	}

	types.SortRegions(regions)
	for i := range regions {
		regions[i].ID = i + 1
	}

	return &types.ProposalResult{
		Regions:     regions,
		Description: fmt.Sprintf("%d objects found by local saliency detector", len(regions)),
	}, nil
}
