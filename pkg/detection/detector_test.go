package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/sko/microbatch/pkg/types"
)

// fakeClient returns canned proposals without a real backend
type fakeClient struct {
	result *types.ProposalResult
	err    error

	lastPrompt string
}

func (f *fakeClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.lastPrompt = prompt
	return "a gray field with bright blobs", f.err
}

func (f *fakeClient) ProposeRegions(ctx context.Context, model, prompt, imgB64 string) (*types.ProposalResult, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestProposeRegionsCleansResult(t *testing.T) {
	fake := &fakeClient{result: &types.ProposalResult{
		Regions: []types.Region{
			{ID: 7, Label: "lower", Box: types.Box{X: 0.1, Y: 0.6, W: 0.2, H: 0.2}},
			{ID: 7, Label: "upper", Box: types.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}},
			{ID: 2, Label: "degenerate", Box: types.Box{X: 0.5, Y: 0.5, W: 0, H: 0.3}},
			{ID: 3, Label: "speck", Box: types.Box{X: 0.9, Y: 0.9, W: 0.001, H: 0.001}},
		},
		Description: "several objects",
	}}
	d := NewDetector(fake)

	result, err := d.ProposeRegions(context.Background(), "model", "b64")
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Regions) != 2 {
		t.Fatalf("expected 2 regions after cleanup, got %d", len(result.Regions))
	}
	if result.Regions[0].Label != "upper" || result.Regions[0].ID != 1 {
		t.Errorf("first region %+v", result.Regions[0])
	}
	if result.Regions[1].Label != "lower" || result.Regions[1].ID != 2 {
		t.Errorf("second region %+v", result.Regions[1])
	}
	if fake.lastPrompt != DefaultPrompt {
		t.Error("detector did not use the default prompt")
	}
}

func TestProposeRegionsBackendError(t *testing.T) {
	wantErr := errors.New("connection refused")
	d := NewDetector(&fakeClient{err: wantErr})

	_, err := d.ProposeRegions(context.Background(), "model", "b64")
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestProposeRegionsWithPrompt(t *testing.T) {
	fake := &fakeClient{result: &types.ProposalResult{}}
	d := NewDetector(fake)

	custom := "count only nuclei"
	if _, err := d.ProposeRegionsWithPrompt(context.Background(), "model", "b64", custom); err != nil {
		t.Fatal(err)
	}
	if fake.lastPrompt != custom {
		t.Errorf("prompt %q sent instead of custom one", fake.lastPrompt)
	}
}

func TestTestVision(t *testing.T) {
	fake := &fakeClient{}
	d := NewDetector(fake)

	desc, err := d.TestVision(context.Background(), "model", "b64")
	if err != nil {
		t.Fatal(err)
	}
	if desc == "" {
		t.Error("empty description")
	}
	if fake.lastPrompt != SimpleTestPrompt {
		t.Error("vision test did not use the test prompt")
	}
}

func TestMinRegionRatio(t *testing.T) {
	fake := &fakeClient{result: &types.ProposalResult{
		Regions: []types.Region{
			{ID: 1, Label: "small", Box: types.Box{X: 0.1, Y: 0.1, W: 0.05, H: 0.05}},
			{ID: 2, Label: "large", Box: types.Box{X: 0.3, Y: 0.3, W: 0.4, H: 0.4}},
		},
	}}
	d := NewDetector(fake)
	d.MinRegionRatio = 0.01

	result, err := d.ProposeRegions(context.Background(), "model", "b64")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Regions) != 1 || result.Regions[0].Label != "large" {
		t.Errorf("size filter kept %+v", result.Regions)
	}
}
