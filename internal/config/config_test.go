package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Output.Policy = PolicySkip
	return cfg
}

func TestDefaultRequiresExplicitPolicy(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("default config validated without an output policy")
	}
	if !strings.Contains(err.Error(), "output.policy") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown policy", func(c *Config) { c.Output.Policy = "ask" }},
		{"zero quality", func(c *Config) { c.Output.Quality = 0 }},
		{"no scan filter", func(c *Config) { c.Scan.Extensions = nil; c.Scan.Pattern = "" }},
		{"unknown backend", func(c *Config) { c.Vision.Backend = "cloud" }},
		{"unknown crop mode", func(c *Config) { c.Crop.Mode = "blur" }},
		{"saturation out of range", func(c *Config) { c.Labels.Saturation = 1.5 }},
		{"negative size threshold", func(c *Config) { c.Convert.LargeImageBytes = -1 }},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := validConfig()
	cfg.Output.Root = "results"
	cfg.Vision.Backend = BackendOllama
	cfg.Vision.URL = "http://localhost:11434/api/chat"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Output.Root != "results" || loaded.Output.Policy != PolicySkip {
		t.Errorf("output section lost: %+v", loaded.Output)
	}
	if loaded.Vision.Backend != BackendOllama || loaded.Vision.URL != cfg.Vision.URL {
		t.Errorf("vision section lost: %+v", loaded.Vision)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("round-tripped config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
