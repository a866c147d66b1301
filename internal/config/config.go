package config

import "errors"

// Config is the top-level configuration for the ingestion core.
// Field tags use mapstructure for viper unmarshalling. The value is
// immutable after LoadConfig: constructors receive it, never mutate it.
type Config struct {
	Data          DataConfig                `mapstructure:"data"`
	Scraping      map[string]SourceScraping `mapstructure:"scraping"`
	Quality       QualityConfig             `mapstructure:"quality"`
	Logging       LoggingConfig             `mapstructure:"logging"`
	Pipeline      PipelineConfig            `mapstructure:"pipeline"`
	Observability ObservabilityConfig       `mapstructure:"observability"`
}

// DataConfig holds the roots of the on-disk data layout.
type DataConfig struct {
	RawDir     string `mapstructure:"raw_dir"`
	StagingDir string `mapstructure:"staging_dir"`
	SilverDir  string `mapstructure:"silver_dir"`
	LedgerPath string `mapstructure:"ledger_path"`
	DedupDir   string `mapstructure:"dedup_dir"`
	MetricsDir string `mapstructure:"metrics_dir"`
	ReportsDir string `mapstructure:"reports_dir"`
}

// SourceScraping holds per-source acquisition limits and politeness knobs.
// The API fields apply to sources acquired through an authenticated API
// (currently tiktok) and stay empty for the rest.
type SourceScraping struct {
	MaxItems           int    `mapstructure:"max_items"`
	MinDelaySec        int    `mapstructure:"min_delay_sec"`
	MaxDelaySec        int    `mapstructure:"max_delay_sec"`
	MaxRequestsPerHour int    `mapstructure:"max_requests_per_hour"`
	UserAgent          string `mapstructure:"user_agent"`

	APIBase  string   `mapstructure:"api_base"`
	APIKey   string   `mapstructure:"api_key"`
	VideoIDs []string `mapstructure:"video_ids"`
}

// QualityConfig holds filtering and deduplication thresholds.
type QualityConfig struct {
	MinLength           int     `mapstructure:"min_length"`
	LangIDConfidence    float64 `mapstructure:"langid_confidence"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	ShingleSize         int     `mapstructure:"shingle_size"`
	NumHashes           int     `mapstructure:"num_hashes"`
	LSHBands            int     `mapstructure:"lsh_bands"`
	LSHRows             int     `mapstructure:"lsh_rows"`
}

// LoggingConfig holds structured-logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// PipelineConfig holds orchestrator resource knobs.
type PipelineConfig struct {
	BatchSize         int `mapstructure:"batch_size"`
	FlushSoftCapBytes int `mapstructure:"flush_soft_cap_bytes"`
	ChannelBuffer     int `mapstructure:"channel_buffer"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	FetchTimeoutSec   int `mapstructure:"fetch_timeout_sec"`
	Workers           int `mapstructure:"workers"`
}

// ObservabilityConfig holds metrics-export settings.
type ObservabilityConfig struct {
	// OTLPEndpoint enables the OTLP gRPC exporter when non-empty.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidBatchSize indicates the writer batch size is not positive.
	ErrInvalidBatchSize = errors.New("pipeline.batch_size must be positive")
	// ErrInvalidFlushSoftCap indicates the flush soft cap is not positive.
	ErrInvalidFlushSoftCap = errors.New("pipeline.flush_soft_cap_bytes must be positive")
	// ErrInvalidChannelBuffer indicates the channel buffer is not positive.
	ErrInvalidChannelBuffer = errors.New("pipeline.channel_buffer must be positive")
	// ErrInvalidMaxAttempts indicates the attempt cap is not positive.
	ErrInvalidMaxAttempts = errors.New("pipeline.max_attempts must be positive")
	// ErrInvalidFetchTimeout indicates the fetch timeout is not positive.
	ErrInvalidFetchTimeout = errors.New("pipeline.fetch_timeout_sec must be positive")
	// ErrInvalidWorkers indicates the adapter worker count is not positive.
	ErrInvalidWorkers = errors.New("pipeline.workers must be positive")
	// ErrInvalidMinLength indicates the minimum length is negative.
	ErrInvalidMinLength = errors.New("quality.min_length must be non-negative")
	// ErrInvalidLangIDConfidence indicates the language-id threshold is out of range.
	ErrInvalidLangIDConfidence = errors.New("quality.langid_confidence must be between 0 and 1")
	// ErrInvalidSimilarityThreshold indicates the Jaccard threshold is out of range.
	ErrInvalidSimilarityThreshold = errors.New("quality.similarity_threshold must be between 0 and 1")
	// ErrInvalidShingleSize indicates the shingle size is not positive.
	ErrInvalidShingleSize = errors.New("quality.shingle_size must be positive")
	// ErrInvalidNumHashes indicates the MinHash permutation count is not positive.
	ErrInvalidNumHashes = errors.New("quality.num_hashes must be positive")
	// ErrInvalidLSHGeometry indicates bands*rows does not equal num_hashes.
	ErrInvalidLSHGeometry = errors.New("quality.lsh_bands * quality.lsh_rows must equal quality.num_hashes")
	// ErrInvalidLogLevel indicates the logging level is not recognized.
	ErrInvalidLogLevel = errors.New("logging.level must be one of DEBUG, INFO, WARN, ERROR")
	// ErrInvalidMaxItems indicates a per-source item cap is negative.
	ErrInvalidMaxItems = errors.New("scraping: max_items must be non-negative")
	// ErrInvalidDelayBounds indicates the per-request delay interval is malformed.
	ErrInvalidDelayBounds = errors.New("scraping: min_delay_sec must be non-negative and not exceed max_delay_sec")
	// ErrInvalidRequestsPerHour indicates a per-source hourly cap is negative.
	ErrInvalidRequestsPerHour = errors.New("scraping: max_requests_per_hour must be non-negative")
)

// Recognized logging levels.
var logLevels = map[string]struct{}{
	"DEBUG": {},
	"INFO":  {},
	"WARN":  {},
	"ERROR": {},
}

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	pipelineErr := c.validatePipeline()
	if pipelineErr != nil {
		return pipelineErr
	}

	qualityErr := c.validateQuality()
	if qualityErr != nil {
		return qualityErr
	}

	if _, ok := logLevels[c.Logging.Level]; !ok {
		return ErrInvalidLogLevel
	}

	return c.validateScraping()
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.Pipeline.FlushSoftCapBytes <= 0 {
		return ErrInvalidFlushSoftCap
	}

	if c.Pipeline.ChannelBuffer <= 0 {
		return ErrInvalidChannelBuffer
	}

	if c.Pipeline.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	if c.Pipeline.FetchTimeoutSec <= 0 {
		return ErrInvalidFetchTimeout
	}

	if c.Pipeline.Workers <= 0 {
		return ErrInvalidWorkers
	}

	return nil
}

func (c *Config) validateQuality() error {
	if c.Quality.MinLength < 0 {
		return ErrInvalidMinLength
	}

	if c.Quality.LangIDConfidence < 0 || c.Quality.LangIDConfidence > 1 {
		return ErrInvalidLangIDConfidence
	}

	if c.Quality.SimilarityThreshold < 0 || c.Quality.SimilarityThreshold > 1 {
		return ErrInvalidSimilarityThreshold
	}

	if c.Quality.ShingleSize <= 0 {
		return ErrInvalidShingleSize
	}

	if c.Quality.NumHashes <= 0 {
		return ErrInvalidNumHashes
	}

	if c.Quality.LSHBands*c.Quality.LSHRows != c.Quality.NumHashes {
		return ErrInvalidLSHGeometry
	}

	return nil
}

func (c *Config) validateScraping() error {
	for _, sc := range c.Scraping {
		if sc.MaxItems < 0 {
			return ErrInvalidMaxItems
		}

		if sc.MinDelaySec < 0 || sc.MinDelaySec > sc.MaxDelaySec {
			return ErrInvalidDelayBounds
		}

		if sc.MaxRequestsPerHour < 0 {
			return ErrInvalidRequestsPerHour
		}
	}

	return nil
}

// ScrapingFor returns the scraping settings for the named source, falling
// back to package defaults when the source has no configured section.
func (c *Config) ScrapingFor(source string) SourceScraping {
	if sc, ok := c.Scraping[source]; ok {
		if sc.UserAgent == "" {
			sc.UserAgent = DefaultUserAgent
		}

		return sc
	}

	return SourceScraping{
		MaxItems:           DefaultMaxItems,
		MinDelaySec:        DefaultMinDelaySec,
		MaxDelaySec:        DefaultMaxDelaySec,
		MaxRequestsPerHour: DefaultMaxRequestsPerHour,
		UserAgent:          DefaultUserAgent,
	}
}
