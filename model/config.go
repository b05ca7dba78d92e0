package model

import "time"

// GenerationConfig configures the external text-generation service client.
type GenerationConfig struct {
	Provider          string        `json:"provider" mapstructure:"provider"`
	Model             string        `json:"model" mapstructure:"model"`
	APIKey            string        `json:"api_key" mapstructure:"api_key"`
	BaseURL           string        `json:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxTokens         int           `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries        int           `json:"max_retries" mapstructure:"max_retries"`
	BackoffBase       time.Duration `json:"backoff_base" mapstructure:"backoff_base"`
	RequestsPerSecond float64       `json:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `json:"burst" mapstructure:"burst"`
}

// ResolutionConfig configures the entity resolution engine.
type ResolutionConfig struct {
	SimilarityThreshold float64       `json:"similarity_threshold" mapstructure:"similarity_threshold"`
	EmbeddingDim        int           `json:"embedding_dim" mapstructure:"embedding_dim"`
	UseEmbeddings       bool          `json:"use_embeddings" mapstructure:"use_embeddings"`
	CacheTTL            time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
	SearchLimit         int           `json:"search_limit" mapstructure:"search_limit"`
}

// ContradictionConfig configures the contradiction detector.
type ContradictionConfig struct {
	// ProximityDays bounds how far apart two occurrence windows may lie and
	// still be compared.
	ProximityDays int `json:"proximity_days" mapstructure:"proximity_days"`
}

// ServerConfig configures the HTTP ingestion surface.
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// Config is the full service configuration.
type Config struct {
	Workers       int                 `json:"workers" mapstructure:"workers"`
	Generation    GenerationConfig    `json:"generation" mapstructure:"generation"`
	Resolution    ResolutionConfig    `json:"resolution" mapstructure:"resolution"`
	Contradiction ContradictionConfig `json:"contradiction" mapstructure:"contradiction"`
	Server        ServerConfig        `json:"server" mapstructure:"server"`
}

// DefaultConfig returns sensible defaults. Secrets (the generation API key)
// are expected from the environment.
func DefaultConfig() *Config {
	return &Config{
		Workers: 4,
		Generation: GenerationConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Timeout:           60 * time.Second,
			MaxTokens:         4000,
			MaxRetries:        3,
			BackoffBase:       time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Resolution: ResolutionConfig{
			SimilarityThreshold: 0.85,
			EmbeddingDim:        384,
			UseEmbeddings:       false,
			CacheTTL:            5 * time.Minute,
			SearchLimit:         10,
		},
		Contradiction: ContradictionConfig{
			ProximityDays: 30,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}
