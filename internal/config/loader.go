package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".sdc"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for ingestion settings.
const envPrefix = "SDC"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
// Layering: defaults < file < environment, environment wins.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("data.raw_dir", DefaultRawDir)
	viperCfg.SetDefault("data.staging_dir", DefaultStagingDir)
	viperCfg.SetDefault("data.silver_dir", DefaultSilverDir)
	viperCfg.SetDefault("data.ledger_path", DefaultLedgerPath)
	viperCfg.SetDefault("data.dedup_dir", DefaultDedupDir)
	viperCfg.SetDefault("data.metrics_dir", DefaultMetricsDir)
	viperCfg.SetDefault("data.reports_dir", DefaultReportsDir)

	viperCfg.SetDefault("pipeline.batch_size", DefaultBatchSize)
	viperCfg.SetDefault("pipeline.flush_soft_cap_bytes", DefaultFlushSoftCapBytes)
	viperCfg.SetDefault("pipeline.channel_buffer", DefaultChannelBuffer)
	viperCfg.SetDefault("pipeline.max_attempts", DefaultMaxAttempts)
	viperCfg.SetDefault("pipeline.fetch_timeout_sec", DefaultFetchTimeoutSec)
	viperCfg.SetDefault("pipeline.workers", DefaultWorkers)

	viperCfg.SetDefault("quality.min_length", DefaultMinLength)
	viperCfg.SetDefault("quality.langid_confidence", DefaultLangIDConfidence)
	viperCfg.SetDefault("quality.similarity_threshold", DefaultSimilarityThreshold)
	viperCfg.SetDefault("quality.shingle_size", DefaultShingleSize)
	viperCfg.SetDefault("quality.num_hashes", DefaultNumHashes)
	viperCfg.SetDefault("quality.lsh_bands", DefaultLSHBands)
	viperCfg.SetDefault("quality.lsh_rows", DefaultLSHRows)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.json", DefaultLogJSON)

	viperCfg.SetDefault("observability.otlp_endpoint", "")

	// Register a section per known source so env overrides like
	// SDC_SCRAPING_BBC_MAX_ITEMS bind without a config file.
	for _, source := range SourceNames {
		viperCfg.SetDefault("scraping."+source+".max_items", DefaultMaxItems)
		viperCfg.SetDefault("scraping."+source+".min_delay_sec", DefaultMinDelaySec)
		viperCfg.SetDefault("scraping."+source+".max_delay_sec", DefaultMaxDelaySec)
		viperCfg.SetDefault("scraping."+source+".max_requests_per_hour", DefaultMaxRequestsPerHour)
		viperCfg.SetDefault("scraping."+source+".user_agent", DefaultUserAgent)
	}

	// API-backed sources additionally bind their credentials, e.g.
	// SDC_SCRAPING_TIKTOK_API_KEY.
	viperCfg.SetDefault("scraping.tiktok.api_base", "")
	viperCfg.SetDefault("scraping.tiktok.api_key", "")
	viperCfg.SetDefault("scraping.tiktok.video_ids", []string{})
}
