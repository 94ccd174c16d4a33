package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sko/microbatch/pkg/types"
)

// ParseProposals parses the JSON region list returned by a vision model.
// Malformed output degrades to an empty proposal set with a descriptive
// note instead of an error; the caller decides whether that is acceptable.
func ParseProposals(raw string) (*types.ProposalResult, error) {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return &types.ProposalResult{
			Description: "model returned non-JSON response",
		}, nil
	}

	var result types.ProposalResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(raw[start:end+1]), &result); err2 != nil {
				return &types.ProposalResult{
					Description: "failed to parse model response",
				}, nil
			}
		} else {
			return &types.ProposalResult{
				Description: "no valid JSON found in response",
			}, nil
		}
	}

	// Boxes must land in [0,1]; ids must be unique and stable. Models get
	// both wrong often enough that we always renumber by position.
	for i := range result.Regions {
		result.Regions[i].Box = clampBox(result.Regions[i].Box)
	}
	types.SortRegions(result.Regions)
	for i := range result.Regions {
		result.Regions[i].ID = i + 1
	}

	return &result, nil
}

func clampBox(b types.Box) types.Box {
	return types.Box{
		X: clamp01(b.X),
		Y: clamp01(b.Y),
		W: clamp01(b.W),
		H: clamp01(b.H),
	}
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

// SanitizeModelJSON removes code fences, comments and trailing commas
// from a model's JSON response.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Remove /* ... */ block comments
	reBlock := regexp.MustCompile(`(?s)/\*.*?\*/`)
	raw = reBlock.ReplaceAllString(raw, "")

	// Remove // line/inline comments
	reLine := regexp.MustCompile(`(?m)^\s*//.*$`)
	raw = reLine.ReplaceAllString(raw, "")
	reInline := regexp.MustCompile(`(?m)//.*$`)
	raw = reInline.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	reTrailing := regexp.MustCompile(`,(\s*[}\]])`)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	return strings.TrimSpace(raw)
}
