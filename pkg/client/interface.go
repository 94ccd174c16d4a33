// Package client defines the contract every segmentation backend
// implements, plus the shared parsing of vision-model JSON output.
package client

import (
	"context"

	"github.com/sko/microbatch/pkg/types"
)

// VisionClient proposes object regions for an image. Implementations talk
// to a model server (Ollama, llama.cpp) or run locally; a failure surfaces
// as the worklist item's error, never as a crash.
type VisionClient interface {
	// SimpleQuery sends a free-form prompt with an image and returns the
	// raw text answer. Used to verify the model can see images at all.
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// ProposeRegions asks the backend for candidate object regions.
	ProposeRegions(ctx context.Context, model, prompt, imgB64 string) (*types.ProposalResult, error)
}
