// Package config loads the pipeline configuration from a YAML file,
// applying §6's defaults for anything the file omits.
package config

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v2"

	"github.com/kestrellabs/ctxfusion/internal/pipeline"
)

// Load reads a YAML config file at path and returns a defaulted
// pipeline.Config. A missing file is not an error: the caller gets
// pipeline.Default() back, the way an optional overlay file is meant to
// behave.
func Load(path string) (pipeline.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			pterm.Info.Printf("no config file at %s, using built-in defaults\n", path)
			return pipeline.Default(), nil
		}
		return pipeline.Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg pipeline.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return pipeline.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg = cfg.ApplyDefaults()
	if err := validate(cfg); err != nil {
		pterm.Error.Printf("invalid config in %s: %v\n", path, err)
		return pipeline.Config{}, err
	}
	pterm.Success.Printf("loaded pipeline config from %s\n", path)
	return cfg, nil
}

func validate(cfg pipeline.Config) error {
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", cfg.SimilarityThreshold)
	}
	if cfg.FinalCoreCount <= 0 {
		return fmt.Errorf("final_core_count must be positive, got %d", cfg.FinalCoreCount)
	}
	if cfg.Quotas.MaxPerSource <= 0 {
		return fmt.Errorf("quotas.max_per_source must be positive, got %d", cfg.Quotas.MaxPerSource)
	}
	if cfg.MaxMemoryLength > cfg.MaxContextLength {
		pterm.Warning.Printf("max_memory_length (%d) exceeds max_context_length (%d)\n", cfg.MaxMemoryLength, cfg.MaxContextLength)
	}
	return nil
}
