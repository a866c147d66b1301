package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
)

// validConfig returns a Config that passes Validate.
func validConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			BatchSize:         config.DefaultBatchSize,
			FlushSoftCapBytes: config.DefaultFlushSoftCapBytes,
			ChannelBuffer:     config.DefaultChannelBuffer,
			MaxAttempts:       config.DefaultMaxAttempts,
			FetchTimeoutSec:   config.DefaultFetchTimeoutSec,
			Workers:           config.DefaultWorkers,
		},
		Quality: config.QualityConfig{
			MinLength:           config.DefaultMinLength,
			LangIDConfidence:    config.DefaultLangIDConfidence,
			SimilarityThreshold: config.DefaultSimilarityThreshold,
			ShingleSize:         config.DefaultShingleSize,
			NumHashes:           config.DefaultNumHashes,
			LSHBands:            config.DefaultLSHBands,
			LSHRows:             config.DefaultLSHRows,
		},
		Logging: config.LoggingConfig{Level: config.DefaultLogLevel},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"zero batch size", func(c *config.Config) { c.Pipeline.BatchSize = 0 }, config.ErrInvalidBatchSize},
		{"negative flush cap", func(c *config.Config) { c.Pipeline.FlushSoftCapBytes = -1 }, config.ErrInvalidFlushSoftCap},
		{"zero channel buffer", func(c *config.Config) { c.Pipeline.ChannelBuffer = 0 }, config.ErrInvalidChannelBuffer},
		{"zero max attempts", func(c *config.Config) { c.Pipeline.MaxAttempts = 0 }, config.ErrInvalidMaxAttempts},
		{"zero fetch timeout", func(c *config.Config) { c.Pipeline.FetchTimeoutSec = 0 }, config.ErrInvalidFetchTimeout},
		{"zero workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, config.ErrInvalidWorkers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			require.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidateQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"negative min length", func(c *config.Config) { c.Quality.MinLength = -1 }, config.ErrInvalidMinLength},
		{"confidence above one", func(c *config.Config) { c.Quality.LangIDConfidence = 1.5 }, config.ErrInvalidLangIDConfidence},
		{"negative confidence", func(c *config.Config) { c.Quality.LangIDConfidence = -0.1 }, config.ErrInvalidLangIDConfidence},
		{"threshold above one", func(c *config.Config) { c.Quality.SimilarityThreshold = 1.01 }, config.ErrInvalidSimilarityThreshold},
		{"zero shingle size", func(c *config.Config) { c.Quality.ShingleSize = 0 }, config.ErrInvalidShingleSize},
		{"zero num hashes", func(c *config.Config) { c.Quality.NumHashes = 0 }, config.ErrInvalidNumHashes},
		{"bands times rows mismatch", func(c *config.Config) { c.Quality.LSHBands = 10 }, config.ErrInvalidLSHGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			require.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidateLogLevel(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		require.NoError(t, cfg.Validate(), "level %s", level)
	}

	cfg := validConfig()
	cfg.Logging.Level = "TRACE"
	require.ErrorIs(t, cfg.Validate(), config.ErrInvalidLogLevel)
}

func TestValidateScraping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sc      config.SourceScraping
		wantErr error
	}{
		{"negative max items", config.SourceScraping{MaxItems: -1, MaxDelaySec: 10}, config.ErrInvalidMaxItems},
		{"min delay above max", config.SourceScraping{MinDelaySec: 10, MaxDelaySec: 5}, config.ErrInvalidDelayBounds},
		{"negative min delay", config.SourceScraping{MinDelaySec: -1, MaxDelaySec: 5}, config.ErrInvalidDelayBounds},
		{"negative hourly cap", config.SourceScraping{MaxDelaySec: 10, MaxRequestsPerHour: -1}, config.ErrInvalidRequestsPerHour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.Scraping = map[string]config.SourceScraping{"bbc": tt.sc}

			require.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestScrapingForConfiguredSource(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Scraping = map[string]config.SourceScraping{
		"bbc": {MaxItems: 50, MinDelaySec: 1, MaxDelaySec: 2, MaxRequestsPerHour: 60, UserAgent: "custom-agent"},
	}

	sc := cfg.ScrapingFor("bbc")
	assert.Equal(t, 50, sc.MaxItems)
	assert.Equal(t, "custom-agent", sc.UserAgent)
}

func TestScrapingForFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	sc := validConfig().ScrapingFor("unknown-source")

	assert.Equal(t, config.DefaultMaxItems, sc.MaxItems)
	assert.Equal(t, config.DefaultMinDelaySec, sc.MinDelaySec)
	assert.Equal(t, config.DefaultMaxDelaySec, sc.MaxDelaySec)
	assert.Equal(t, config.DefaultMaxRequestsPerHour, sc.MaxRequestsPerHour)
	assert.Equal(t, config.DefaultUserAgent, sc.UserAgent)
}

func TestScrapingForFillsEmptyUserAgent(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Scraping = map[string]config.SourceScraping{
		"wikipedia": {MaxDelaySec: 10},
	}

	assert.Equal(t, config.DefaultUserAgent, cfg.ScrapingFor("wikipedia").UserAgent)
}
