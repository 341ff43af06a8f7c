// Package pipeline implements the orchestrator (C11) that sequences
// intent classification, candidate retrieval, salience scoring, diversity
// enforcement, and fusion composition into one FusionEnvelope per query.
package pipeline

import (
	"time"

	"github.com/kestrellabs/ctxfusion/internal/retrieve"
	"github.com/kestrellabs/ctxfusion/internal/temporal"
)

// Config holds every recognized option from §6's configuration table.
type Config struct {
	InitialRetrievalCount int     `yaml:"initial_retrieval_count"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold"`
	FinalCoreCount        int     `yaml:"final_core_count"`
	OrchestratorViewCount int     `yaml:"orchestrator_view_count"`
	MaxContextLength      int     `yaml:"max_context_length"`
	MaxMemoryLength       int     `yaml:"max_memory_length"`

	Quotas            QuotasConfig     `yaml:"quotas"`
	ProvenancePenalty PenaltyConfig    `yaml:"provenance_penalty"`
	Temporal          TemporalConfig   `yaml:"temporal"`

	PilotMode bool `yaml:"pilot_mode"`

	StoreCallBudget    time.Duration `yaml:"-"`
	PipelineSoftCap    time.Duration `yaml:"-"`
	ExpansionTopK      int           `yaml:"expansion_top_k"`
	ExpansionPerSeed   int           `yaml:"expansion_per_seed"`
	ExpansionTotal     int           `yaml:"expansion_total"`
	ClockSkewTolerance time.Duration `yaml:"-"`
}

// QuotasConfig mirrors retrieve.Quotas for YAML decoding.
type QuotasConfig struct {
	MaxPerSource     int `yaml:"max_per_source"`
	MinUniqueTypes   int `yaml:"min_unique_types"`
	MinUniqueSources int `yaml:"min_unique_sources"`
}

// PenaltyConfig mirrors the provenance-penalty knobs.
type PenaltyConfig struct {
	Missing float64 `yaml:"missing"`
	Stale   float64 `yaml:"stale"`
}

// TemporalConfig mirrors temporal.Tuning for YAML decoding.
type TemporalConfig struct {
	HalfLifeTemporal float64 `yaml:"half_life_temporal_days"`
	HalfLifeRecent   float64 `yaml:"half_life_recent_days"`
	HalfLifeDefault  float64 `yaml:"half_life_default_days"`
	FloorTemporal    float64 `yaml:"floor_temporal"`
	FloorDefault     float64 `yaml:"floor_default"`
	FreshBoost       float64 `yaml:"fresh_boost"`
}

// Default returns the configuration with every default named in §6.
func Default() Config {
	return Config{
		InitialRetrievalCount: 500,
		SimilarityThreshold:   0.01,
		FinalCoreCount:        12,
		OrchestratorViewCount: 50,
		MaxContextLength:      6000,
		MaxMemoryLength:       800,
		Quotas: QuotasConfig{
			MaxPerSource:     2,
			MinUniqueTypes:   3,
			MinUniqueSources: 5,
		},
		ProvenancePenalty: PenaltyConfig{Missing: 0.8, Stale: 0.9},
		Temporal: TemporalConfig{
			HalfLifeTemporal: 14,
			HalfLifeRecent:   30,
			HalfLifeDefault:  90,
			FloorTemporal:    0.65,
			FloorDefault:     0.80,
			FreshBoost:       1.10,
		},
		PilotMode:          false,
		StoreCallBudget:    20 * time.Second,
		PipelineSoftCap:    30 * time.Second,
		ExpansionTopK:      3,
		ExpansionPerSeed:   10,
		ExpansionTotal:     20,
		ClockSkewTolerance: 5 * time.Minute,
	}
}

// ApplyDefaults fills zero-valued fields with §6 defaults, the way a
// loaded YAML document is expected to be sparse.
func (c Config) ApplyDefaults() Config {
	d := Default()
	if c.InitialRetrievalCount <= 0 {
		c.InitialRetrievalCount = d.InitialRetrievalCount
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.FinalCoreCount <= 0 {
		c.FinalCoreCount = d.FinalCoreCount
	}
	if c.OrchestratorViewCount <= 0 {
		c.OrchestratorViewCount = d.OrchestratorViewCount
	}
	if c.MaxContextLength <= 0 {
		c.MaxContextLength = d.MaxContextLength
	}
	if c.MaxMemoryLength <= 0 {
		c.MaxMemoryLength = d.MaxMemoryLength
	}
	if c.Quotas.MaxPerSource <= 0 {
		c.Quotas.MaxPerSource = d.Quotas.MaxPerSource
	}
	if c.Quotas.MinUniqueTypes <= 0 {
		c.Quotas.MinUniqueTypes = d.Quotas.MinUniqueTypes
	}
	if c.Quotas.MinUniqueSources <= 0 {
		c.Quotas.MinUniqueSources = d.Quotas.MinUniqueSources
	}
	if c.ProvenancePenalty.Missing <= 0 {
		c.ProvenancePenalty.Missing = d.ProvenancePenalty.Missing
	}
	if c.ProvenancePenalty.Stale <= 0 {
		c.ProvenancePenalty.Stale = d.ProvenancePenalty.Stale
	}
	if c.Temporal.HalfLifeTemporal <= 0 {
		c.Temporal.HalfLifeTemporal = d.Temporal.HalfLifeTemporal
	}
	if c.Temporal.HalfLifeRecent <= 0 {
		c.Temporal.HalfLifeRecent = d.Temporal.HalfLifeRecent
	}
	if c.Temporal.HalfLifeDefault <= 0 {
		c.Temporal.HalfLifeDefault = d.Temporal.HalfLifeDefault
	}
	if c.Temporal.FloorTemporal <= 0 {
		c.Temporal.FloorTemporal = d.Temporal.FloorTemporal
	}
	if c.Temporal.FloorDefault <= 0 {
		c.Temporal.FloorDefault = d.Temporal.FloorDefault
	}
	if c.Temporal.FreshBoost <= 0 {
		c.Temporal.FreshBoost = d.Temporal.FreshBoost
	}
	if c.StoreCallBudget <= 0 {
		c.StoreCallBudget = d.StoreCallBudget
	}
	if c.PipelineSoftCap <= 0 {
		c.PipelineSoftCap = d.PipelineSoftCap
	}
	if c.ExpansionTopK <= 0 {
		c.ExpansionTopK = d.ExpansionTopK
	}
	if c.ExpansionPerSeed <= 0 {
		c.ExpansionPerSeed = d.ExpansionPerSeed
	}
	if c.ExpansionTotal <= 0 {
		c.ExpansionTotal = d.ExpansionTotal
	}
	if c.ClockSkewTolerance <= 0 {
		c.ClockSkewTolerance = d.ClockSkewTolerance
	}
	return c
}

func (c Config) quotas() retrieve.Quotas {
	return retrieve.Quotas{
		MaxPerSource:     c.Quotas.MaxPerSource,
		MinUniqueTypes:   c.Quotas.MinUniqueTypes,
		MinUniqueSources: c.Quotas.MinUniqueSources,
	}
}

func (c Config) tuning() temporal.Tuning {
	return temporal.Tuning{
		HalfLifeTemporal: c.Temporal.HalfLifeTemporal,
		HalfLifeRecent:   c.Temporal.HalfLifeRecent,
		HalfLifeDefault:  c.Temporal.HalfLifeDefault,
		FloorTemporal:    c.Temporal.FloorTemporal,
		FloorDefault:     c.Temporal.FloorDefault,
		FreshBoost:       c.Temporal.FreshBoost,
	}
}
