package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Output policies for existing files at a derived output path. There is
// deliberately no default: the policy must be chosen explicitly before a
// batch run can start.
const (
	PolicyOverwrite = "overwrite"
	PolicySkip      = "skip"
)

// Config holds the application configuration
type Config struct {
	Scan    ScanConfig    `json:"scan"`
	Output  OutputConfig  `json:"output"`
	Convert ConvertConfig `json:"convert"`
	Vision  VisionConfig  `json:"vision"`
	Labels  LabelsConfig  `json:"labels"`
	Crop    CropConfig    `json:"crop"`
}

// ScanConfig controls worklist enumeration
type ScanConfig struct {
	Extensions []string `json:"extensions"`
	Pattern    string   `json:"pattern"`
	Recursive  bool     `json:"recursive"`
}

// OutputConfig controls where and how derived outputs are written
type OutputConfig struct {
	Root    string `json:"root"`
	Policy  string `json:"policy"`
	Format  string `json:"format"`
	Quality int    `json:"quality"`
}

// ConvertConfig controls format conversion
type ConvertConfig struct {
	// Images whose decoded size exceeds LargeImageBytes are always written
	// as compressed TIFF regardless of the configured output format.
	LargeImageBytes int64  `json:"large_image_bytes"`
	Format          string `json:"format"`
}

// VisionConfig selects and tunes the segmentation backend
type VisionConfig struct {
	Backend     string `json:"backend"`
	URL         string `json:"url"`
	Model       string `json:"model"`
	SendFormat  string `json:"send_format"`
	SendMaxDim  int    `json:"send_max_dim"`
	SendQuality int    `json:"send_quality"`
}

// LabelsConfig tunes label rendering
type LabelsConfig struct {
	Saturation float64 `json:"saturation"`
	Luminance  float64 `json:"luminance"`
}

// CropConfig controls how accept/reject decisions are applied
type CropConfig struct {
	Mode           string  `json:"mode"`
	MinRegionRatio float64 `json:"min_region_ratio"`
}

// Crop modes
const (
	CropModeCrop = "crop"
	CropModeMask = "mask"
)

// Vision backends
const (
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendLocal    = "local"
)

// Default returns a configuration with default values. Output.Policy is
// left empty on purpose and must be set before Validate passes.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Extensions: []string{"tif", "tiff", "png", "jpg", "jpeg"},
			Recursive:  true,
		},
		Output: OutputConfig{
			Format:  "tif",
			Quality: 90,
		},
		Convert: ConvertConfig{
			LargeImageBytes: 4 << 30,
			Format:          "tif",
		},
		Vision: VisionConfig{
			Backend:     BackendLocal,
			Model:       "openbmb/minicpm-v4.5",
			SendFormat:  "jpg",
			SendMaxDim:  1536,
			SendQuality: 85,
		},
		Labels: LabelsConfig{
			Saturation: 0.75,
			Luminance:  0.55,
		},
		Crop: CropConfig{
			Mode:           CropModeCrop,
			MinRegionRatio: 0.01,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Scan.Extensions) == 0 && c.Scan.Pattern == "" {
		return fmt.Errorf("scan: at least one of extensions or pattern must be set")
	}

	switch c.Output.Policy {
	case PolicyOverwrite, PolicySkip:
	case "":
		return fmt.Errorf("output.policy must be set explicitly to %q or %q", PolicyOverwrite, PolicySkip)
	default:
		return fmt.Errorf("output.policy %q is not one of %q, %q", c.Output.Policy, PolicyOverwrite, PolicySkip)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Convert.LargeImageBytes < 0 {
		return fmt.Errorf("convert.large_image_bytes must not be negative")
	}

	switch c.Vision.Backend {
	case BackendOllama, BackendLlamaCpp, BackendLocal:
	default:
		return fmt.Errorf("vision.backend %q is not one of %q, %q, %q",
			c.Vision.Backend, BackendOllama, BackendLlamaCpp, BackendLocal)
	}

	if c.Vision.SendQuality < 1 || c.Vision.SendQuality > 100 {
		return fmt.Errorf("vision.send_quality must be between 1 and 100")
	}

	if c.Labels.Saturation < 0 || c.Labels.Saturation > 1 {
		return fmt.Errorf("labels.saturation must be between 0 and 1")
	}

	if c.Labels.Luminance < 0 || c.Labels.Luminance > 1 {
		return fmt.Errorf("labels.luminance must be between 0 and 1")
	}

	switch c.Crop.Mode {
	case CropModeCrop, CropModeMask:
	default:
		return fmt.Errorf("crop.mode %q is not one of %q, %q", c.Crop.Mode, CropModeCrop, CropModeMask)
	}

	if c.Crop.MinRegionRatio < 0 || c.Crop.MinRegionRatio > 1 {
		return fmt.Errorf("crop.min_region_ratio must be between 0 and 1")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "microbatch", "config.json")
}
