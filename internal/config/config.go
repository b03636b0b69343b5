// Package config loads gumshoe configuration from YAML with defaults and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gumshoe configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Store         StoreConfig         `yaml:"store"`
	Investigation InvestigationConfig `yaml:"investigation"`
	LLM           LLMConfig           `yaml:"llm"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// StoreConfig configures the case/session store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	ArchivePath  string `yaml:"archive_path"`
	// Durations are kept as strings ("24h") and parsed on use.
	CaseTTL         string `yaml:"case_ttl"`
	SessionTTL      string `yaml:"session_ttl"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// InvestigationConfig configures the phase state machine and the ledgers.
type InvestigationConfig struct {
	// Hypothesis likelihood thresholds. Crossing the high threshold marks a
	// hypothesis validated; crossing the low threshold marks it refuted.
	LikelihoodHigh float64 `yaml:"likelihood_high"`
	LikelihoodLow  float64 `yaml:"likelihood_low"`

	// Completeness threshold at which an evidence request counts satisfied.
	CompletenessThreshold float64 `yaml:"completeness_threshold"`

	// Stall detection windows.
	StallTurnWindow      int `yaml:"stall_turn_window"`       // turns without a phase change
	HypothesisStallTurns int `yaml:"hypothesis_stall_turns"`  // turns in Hypothesis phase with zero hypotheses
	CriticalBlockedLimit int `yaml:"critical_blocked_limit"`  // blocked critical requests before stalling

	// Timeline phase advances after this many consumed turns even without an
	// identified trigger event.
	TimelineTurnCeiling int `yaml:"timeline_turn_ceiling"`

	// Hypothesis phase advances once this many ranked hypotheses exist.
	MinRankedHypotheses int `yaml:"min_ranked_hypotheses"`

	// Acquisition guidance caps.
	GuidanceListCap  int `yaml:"guidance_list_cap"`  // entries per guidance list
	GuidanceEntryCap int `yaml:"guidance_entry_cap"` // runes per entry
	KeyFindingsCap   int `yaml:"key_findings_cap"`

	// PlaybookPath points at the per-category guidance playbook YAML.
	PlaybookPath string `yaml:"playbook_path"`
}

// LLMConfig configures the generation collaborator.
type LLMConfig struct {
	Provider      string `yaml:"provider"` // openai, gemini, heuristic
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	Timeout       string `yaml:"timeout"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// RetrievalConfig configures the document-similarity collaborator.
type RetrievalConfig struct {
	Provider   string `yaml:"provider"` // genai, hash
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TopK       int    `yaml:"top_k"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gumshoe",
		Version: "0.3.0",

		Store: StoreConfig{
			DatabasePath:    "data/gumshoe.db",
			ArchivePath:     "data/gumshoe_archive.db",
			CaseTTL:         "168h", // one week
			SessionTTL:      "24h",
			CleanupInterval: "10m",
		},

		Investigation: InvestigationConfig{
			LikelihoodHigh:        0.9,
			LikelihoodLow:         0.2,
			CompletenessThreshold: 0.8,
			StallTurnWindow:       5,
			HypothesisStallTurns:  3,
			CriticalBlockedLimit:  3,
			TimelineTurnCeiling:   4,
			MinRankedHypotheses:   2,
			GuidanceListCap:       4,
			GuidanceEntryCap:      200,
			KeyFindingsCap:        8,
			PlaybookPath:          "playbook.yaml",
		},

		LLM: LLMConfig{
			Provider:      "heuristic",
			Model:         "gpt-4o-mini",
			BaseURL:       "https://api.openai.com/v1",
			Timeout:       "90s",
			MaxConcurrent: 4,
		},

		Retrieval: RetrievalConfig{
			Provider:   "hash",
			Model:      "gemini-embedding-001",
			Dimensions: 256,
			TopK:       5,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, merging over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ParseDurationOr parses s as a duration, returning fallback on empty or
// malformed input.
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
