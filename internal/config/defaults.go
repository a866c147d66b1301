// Package config provides viper-loaded, validated, immutable configuration
// for the ingestion core: data layout roots, per-source scraping limits,
// quality thresholds, and pipeline resource knobs.
package config

import "github.com/somali-nlp/somali-dialect-classifier/pkg/units"

// Data layout defaults (relative to the working directory).
const (
	DefaultRawDir     = "data/raw"
	DefaultStagingDir = "data/staging"
	DefaultSilverDir  = "data/processed/silver"
	DefaultLedgerPath = "data/ledger"
	DefaultDedupDir   = "data/dedup"
	DefaultMetricsDir = "data/metrics"
	DefaultReportsDir = "data/reports"
)

// Pipeline defaults.
const (
	DefaultBatchSize         = 1000
	DefaultFlushSoftCapBytes = 10 * units.MiB
	DefaultChannelBuffer     = 64
	DefaultMaxAttempts       = 3
	DefaultFetchTimeoutSec   = 30
	DefaultWorkers           = 1
)

// Quality defaults. LSH geometry 16x8 retrieves Jaccard >= 0.85 pairs with
// probability about 0.994.
const (
	DefaultMinLength           = 20
	DefaultLangIDConfidence    = 0.3
	DefaultSimilarityThreshold = 0.85
	DefaultShingleSize         = 5
	DefaultNumHashes           = 128
	DefaultLSHBands            = 16
	DefaultLSHRows             = 8
)

// Logging defaults.
const (
	DefaultLogLevel = "INFO"
	DefaultLogJSON  = false
)

// Per-source scraping defaults. MaxItems 0 means unlimited.
const (
	DefaultMaxItems           = 0
	DefaultMinDelaySec        = 5
	DefaultMaxDelaySec        = 10
	DefaultMaxRequestsPerHour = 300
	DefaultUserAgent          = "SomaliDialectClassifierBot/1.0 (research corpus collection; +https://github.com/somali-nlp/somali-dialect-classifier)"
)

// SourceNames lists the sources that receive a pre-registered scraping
// section, so environment overrides bind for them without a config file.
var SourceNames = []string{"wikipedia", "bbc", "huggingface", "sprakbanken", "tiktok"}
