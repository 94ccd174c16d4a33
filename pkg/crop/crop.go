// Package crop implements the interactive object-cropping flow: a
// segmentation backend proposes regions, the user accepts or rejects them
// by clicking, and the decision is applied deterministically to produce
// cropped or masked outputs.
package crop

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/sko/microbatch/internal/config"
	"github.com/sko/microbatch/internal/utils"
	"github.com/sko/microbatch/pkg/detection"
	"github.com/sko/microbatch/pkg/processing"
	"github.com/sko/microbatch/pkg/registry"
	"github.com/sko/microbatch/pkg/types"
)

// Selection tracks the accept/reject state of proposed regions. All
// regions start accepted; a click toggles the region under the cursor.
type Selection struct {
	regions  []types.Region
	accepted map[int]bool
}

// NewSelection creates a selection with every region accepted
func NewSelection(regions []types.Region) *Selection {
	accepted := make(map[int]bool, len(regions))
	for _, r := range regions {
		accepted[r.ID] = true
	}
	return &Selection{regions: regions, accepted: accepted}
}

// Regions returns the proposals in id order
func (s *Selection) Regions() []types.Region {
	return s.regions
}

// Toggle flips the region containing the point. When regions overlap the
// smallest one wins, which matches what a user aiming at a nested object
// expects. Returns the toggled region id and its new state; ok is false
// when no region contains the point.
func (s *Selection) Toggle(p types.Point) (regionID int, nowAccepted bool, ok bool) {
	best := -1
	bestArea := 2.0 // normalized areas never exceed 1

	for _, r := range s.regions {
		if r.Box.Contains(p.X, p.Y) && r.Box.Area() < bestArea {
			best = r.ID
			bestArea = r.Box.Area()
		}
	}
	if best < 0 {
		return 0, false, false
	}

	s.accepted[best] = !s.accepted[best]
	return best, s.accepted[best], true
}

// IsAccepted reports the state of one region id
func (s *Selection) IsAccepted(id int) bool {
	return s.accepted[id]
}

// Accepted returns the accepted region ids in ascending order
func (s *Selection) Accepted() []int {
	return s.idsWhere(true)
}

// Rejected returns the rejected region ids in ascending order
func (s *Selection) Rejected() []int {
	return s.idsWhere(false)
}

func (s *Selection) idsWhere(state bool) []int {
	ids := make([]int, 0, len(s.accepted))
	for id, accepted := range s.accepted {
		if accepted == state {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// AcceptedMap returns the full id state map, for overlay rendering
func (s *Selection) AcceptedMap() map[int]bool {
	return s.accepted
}

// Session is the per-image state of one cropping interaction
type Session struct {
	SourcePath string
	Image      image.Image
	Selection  *Selection
}

// Selector drives the cropping flow per worklist item
type Selector struct {
	detector *detection.Detector
	proc     *processing.Processor

	Model       string
	SendFormat  string
	SendMaxDim  int
	SendQuality int

	// Mode decides how decisions are applied: "crop" writes one file per
	// accepted region, "mask" writes one file with rejected regions
	// zeroed.
	Mode    string
	Quality int
}

// NewSelector creates a selector over a detector
func NewSelector(d *detection.Detector, visionCfg config.VisionConfig, cropCfg config.CropConfig, quality int) *Selector {
	if quality <= 0 {
		quality = 90
	}
	return &Selector{
		detector:    d,
		proc:        processing.NewProcessor(),
		Model:       visionCfg.Model,
		SendFormat:  visionCfg.SendFormat,
		SendMaxDim:  visionCfg.SendMaxDim,
		SendQuality: visionCfg.SendQuality,
		Mode:        cropCfg.Mode,
		Quality:     quality,
	}
}

// Propose loads the image at path and asks the backend for regions,
// returning a session with everything accepted.
func (s *Selector) Propose(ctx context.Context, path string) (*Session, error) {
	img, err := s.proc.LoadImage(path)
	if err != nil {
		return nil, err
	}

	imgB64, err := s.proc.PrepareImageForModel(img, s.SendFormat, s.SendMaxDim, s.SendQuality)
	if err != nil {
		return nil, err
	}

	result, err := s.detector.ProposeRegions(ctx, s.Model, imgB64)
	if err != nil {
		return nil, err
	}

	return &Session{
		SourcePath: path,
		Image:      img,
		Selection:  NewSelection(result.Regions),
	}, nil
}

// Overlay renders the session's image with region outlines for display
func (s *Selector) Overlay(sess *Session) *image.NRGBA {
	return s.proc.RegionOverlay(sess.Image, sess.Selection.Regions(), sess.Selection.AcceptedMap())
}

// Outputs applies the selection and returns the pending outputs. The
// result depends only on the image and the selection state, never on the
// order of toggles that produced it.
func (s *Selector) Outputs(sess *Session, outputRoot string) ([]registry.Output, error) {
	switch s.Mode {
	case config.CropModeMask:
		return s.maskOutput(sess, outputRoot)
	case config.CropModeCrop:
		return s.cropOutputs(sess, outputRoot)
	default:
		return nil, fmt.Errorf("unknown crop mode %q", s.Mode)
	}
}

func (s *Selector) cropOutputs(sess *Session, outputRoot string) ([]registry.Output, error) {
	regionByID := make(map[int]types.Region, len(sess.Selection.Regions()))
	for _, r := range sess.Selection.Regions() {
		regionByID[r.ID] = r
	}

	accepted := sess.Selection.Accepted()
	if len(accepted) == 0 {
		return nil, fmt.Errorf("%s: no regions accepted", sess.SourcePath)
	}

	outputs := make([]registry.Output, 0, len(accepted))
	for i, id := range accepted {
		region, ok := regionByID[id]
		if !ok {
			continue
		}
		cropped, err := s.proc.CropToBox(sess.Image, region.Box)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", id, err)
		}

		suffix := fmt.Sprintf("_crop%d", i)
		outPath := utils.DeriveOutputPath(sess.SourcePath, outputRoot, suffix, "")
		outputs = append(outputs, registry.Output{
			Path:   outPath,
			Encode: s.proc.Encoder(cropped, outPath, s.Quality),
		})
	}

	return outputs, nil
}

func (s *Selector) maskOutput(sess *Session, outputRoot string) ([]registry.Output, error) {
	regionByID := make(map[int]types.Region, len(sess.Selection.Regions()))
	for _, r := range sess.Selection.Regions() {
		regionByID[r.ID] = r
	}

	masked := imaging.Clone(sess.Image)
	for _, id := range sess.Selection.Rejected() {
		if region, ok := regionByID[id]; ok {
			s.proc.ZeroBox(masked, region.Box)
		}
	}

	outPath := utils.DeriveOutputPath(sess.SourcePath, outputRoot, "_masked", "")
	return []registry.Output{{
		Path:   outPath,
		Encode: s.proc.Encoder(masked, outPath, s.Quality),
	}}, nil
}

// Register adds the "crop-objects" processing function to r. In batch
// mode every proposed region is accepted; the interactive path goes
// through Propose, Toggle and Outputs instead.
func Register(r *registry.Registry, s *Selector, outputRoot string) error {
	return r.Register(registry.Descriptor{
		ID:           "crop-objects",
		DisplayName:  "Object Cropping",
		OutputSuffix: "_crop0",
		Process: func(ctx context.Context, sourcePath string, params registry.Params) ([]registry.Output, error) {
			sess, err := s.Propose(ctx, sourcePath)
			if err != nil {
				return nil, err
			}
			return s.Outputs(sess, outputRoot)
		},
	})
}
