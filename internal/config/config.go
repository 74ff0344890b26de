package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the persistent application configuration
type Config struct {
	// Monitoring cycle settings
	Cycle CycleConfig `yaml:"cycle"`

	// LLM enrichment settings
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// Quality gate thresholds
	Gates GateConfig `yaml:"gates"`

	// Evidence sources fetched each cycle
	Sources []SourceConfig `yaml:"sources"`

	// Database location
	DatabasePath string `yaml:"database_path"`

	// Optional override files for classification rules and gazetteers
	TaxonomyFile  string `yaml:"taxonomy_file,omitempty"`
	GazetteerFile string `yaml:"gazetteer_file,omitempty"`
}

// CycleConfig controls how a monitoring cycle runs
type CycleConfig struct {
	Interval         time.Duration `yaml:"interval"`
	ConnectorTimeout time.Duration `yaml:"connector_timeout"`
	MaxWorkers       int           `yaml:"max_workers"`
	RecencyWindow    time.Duration `yaml:"recency_window"`
	FuzzyMatchMin    float64       `yaml:"fuzzy_match_min"`
}

// SourceConfig declares one evidence connector.
type SourceConfig struct {
	Type    string `yaml:"type"` // "rss" or "reliefweb"
	Name    string `yaml:"name"`
	URL     string `yaml:"url,omitempty"`
	Tier    int    `yaml:"tier,omitempty"`    // 1 official, 2 media, 3 other
	Country string `yaml:"country,omitempty"` // optional ISO3 hint
}

// EnrichmentConfig holds LLM enrichment settings
type EnrichmentConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BatchSize      int           `yaml:"batch_size"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	RequestsPerMin int           `yaml:"requests_per_min"`
	APIKey         string        `yaml:"api_key,omitempty"`
	Endpoint       string        `yaml:"endpoint,omitempty"`
	Model          string        `yaml:"model,omitempty"`
}

// GateConfig holds the hardening gate thresholds
type GateConfig struct {
	HistoryCycles           int     `yaml:"history_cycles"`
	MaxDuplicateRate        float64 `yaml:"max_duplicate_rate"`
	MinTraceableRate        float64 `yaml:"min_traceable_rate"`
	MaxConnectorFailureRate float64 `yaml:"max_connector_failure_rate"`
	MinLLMEnrichmentRate    float64 `yaml:"min_llm_enrichment_rate"`
	MinCitationCoverageRate float64 `yaml:"min_citation_coverage_rate"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Cycle: CycleConfig{
			Interval:         15 * time.Minute,
			ConnectorTimeout: 30 * time.Second,
			MaxWorkers:       5,
			RecencyWindow:    72 * time.Hour,
			FuzzyMatchMin:    0.8,
		},
		Enrichment: EnrichmentConfig{
			Enabled:        false,
			BatchSize:      15,
			MaxConcurrent:  3,
			RetryBackoff:   2 * time.Second,
			RequestsPerMin: 30,
			Model:          "gemini-3-flash-preview",
		},
		Gates: GateConfig{
			HistoryCycles:           10,
			MaxDuplicateRate:        0.10,
			MinTraceableRate:        0.95,
			MaxConnectorFailureRate: 0.25,
			MinLLMEnrichmentRate:    0.50,
			MinCitationCoverageRate: 0.80,
		},
		Sources: []SourceConfig{
			{Type: "reliefweb", Name: "reliefweb", Tier: 1},
			{Type: "rss", Name: "rss:gdacs", URL: "https://www.gdacs.org/xml/rss.xml", Tier: 1},
			{Type: "rss", Name: "rss:bbc-africa", URL: "https://feeds.bbci.co.uk/news/world/africa/rss.xml", Tier: 2},
			{Type: "rss", Name: "rss:bbc-asia", URL: "https://feeds.bbci.co.uk/news/world/asia/rss.xml", Tier: 2},
		},
		DatabasePath: filepath.Join(home, ".reliefwatch", "reliefwatch.db"),
	}
}

// Path returns the path to the config file
func Path() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".reliefwatch", "config.yaml")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads config from an explicit path, or returns defaults when the
// file does not exist.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.AutoPopulateFromEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.AutoPopulateFromEnv()

	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path := Path()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv fills in API keys from environment variables
func (c *Config) AutoPopulateFromEnv() {
	if c.Enrichment.APIKey == "" {
		if key := os.Getenv("RELIEFWATCH_API_KEY"); key != "" {
			c.Enrichment.APIKey = key
			c.Enrichment.Enabled = true
		}
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.Enrichment.APIKey == "" {
		c.Enrichment.APIKey = key
	}
}
