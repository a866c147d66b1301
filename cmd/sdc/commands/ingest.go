// Package commands implements the CLI command handlers for sdc.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
	"github.com/somali-nlp/somali-dialect-classifier/internal/dedup"
	"github.com/somali-nlp/somali-dialect-classifier/internal/fetch"
	"github.com/somali-nlp/somali-dialect-classifier/internal/ledger"
	"github.com/somali-nlp/somali-dialect-classifier/internal/observability"
	"github.com/somali-nlp/somali-dialect-classifier/internal/pipeline"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/silver"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources/bbc"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources/huggingface"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources/sprakbanken"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources/tiktok"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources/wikipedia"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/version"
)

// progressInterval is how often the spinner samples the run counters.
const progressInterval = 500 * time.Millisecond

// ErrUnknownSource is returned for a source name outside the catalog.
var ErrUnknownSource = errors.New("unknown source")

// IngestOptions are the resolved flags of one ingest invocation.
type IngestOptions struct {
	Source     string
	ConfigPath string
	Force      bool
	MaxItems   int
	Date       string
	NoProgress bool
}

type ingestExecutor func(ctx context.Context, opts IngestOptions, stdout, stderr io.Writer) error

// IngestCommand holds the flags and dependencies of the ingest command.
type IngestCommand struct {
	configPath string
	force      bool
	maxItems   int
	date       string
	noProgress bool

	exec ingestExecutor
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	return newIngestCommandWithDeps(runIngest)
}

func newIngestCommandWithDeps(exec ingestExecutor) *cobra.Command {
	ic := &IngestCommand{exec: exec}

	cmd := &cobra.Command{
		Use:   "ingest <source>",
		Short: "Run one source's ingestion pipeline end to end",
		Long: "Run discovery, acquisition, cleaning, filtering, deduplication, and\n" +
			"silver parquet writing for one source.\n\n" +
			"Sources: wikipedia, bbc, huggingface, sprakbanken, tiktok",
		Args: cobra.ExactArgs(1),
		RunE: ic.run,
	}

	cmd.Flags().StringVar(&ic.configPath, "config", "", "Config file path (default: .sdc.yaml in CWD or $HOME)")
	cmd.Flags().BoolVar(&ic.force, "force", false, "Refetch URLs the crawl ledger has already settled")
	cmd.Flags().IntVar(&ic.maxItems, "max-items", 0, "Cap emitted records this run (0 = config value)")
	cmd.Flags().StringVar(&ic.date, "date", "", "Partition date YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().BoolVar(&ic.noProgress, "no-progress", false, "Disable the progress spinner")

	return cmd
}

func (ic *IngestCommand) run(cmd *cobra.Command, args []string) error {
	opts := IngestOptions{
		Source:     args[0],
		ConfigPath: ic.configPath,
		Force:      ic.force,
		MaxItems:   ic.maxItems,
		Date:       ic.date,
		NoProgress: ic.noProgress,
	}

	return ic.exec(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// configErr wraps a pre-run failure as exit code 3.
func configErr(err error) error {
	return &ExitError{Code: pipeline.ExitConfig, Err: fmt.Errorf("%w: %v", pipeline.ErrConfiguration, err)}
}

// fatalErr wraps an environment failure as exit code 2.
func fatalErr(err error) error {
	return &ExitError{Code: pipeline.ExitFatal, Err: fmt.Errorf("%w: %v", pipeline.ErrFatalIngestion, err)}
}

func runIngest(ctx context.Context, opts IngestOptions, stdout, stderr io.Writer) error {
	if !slices.Contains(config.SourceNames, opts.Source) {
		return configErr(fmt.Errorf("%w: %q (known: %v)", ErrUnknownSource, opts.Source, config.SourceNames))
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return configErr(err)
	}

	dateAccessed := time.Now().UTC()
	if opts.Date != "" {
		dateAccessed, err = time.Parse(time.DateOnly, opts.Date)
		if err != nil {
			return configErr(fmt.Errorf("parse --date: %w", err))
		}
	}

	obs, err := observability.Init(observabilityConfig(cfg))
	if err != nil {
		return fatalErr(fmt.Errorf("init observability: %w", err))
	}
	defer func() {
		if shutdownErr := obs.Shutdown(context.Background()); shutdownErr != nil {
			fmt.Fprintf(stderr, "telemetry shutdown: %v\n", shutdownErr)
		}
	}()

	logger := obs.Logger

	metrics, err := observability.NewIngestMetrics(obs.Meter)
	if err != nil {
		logger.Warn("metric instruments unavailable", slog.String("error", err.Error()))
		metrics = nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(cfg.Data.LedgerPath, ledger.DefaultOptions())
	if err != nil {
		return fatalErr(fmt.Errorf("open ledger: %w", err))
	}
	defer store.Close()

	info := sourceCatalog[opts.Source]
	runID := pipeline.NewRunID(info.slug, time.Now())
	run := record.RunInfo{ID: runID, DateAccessed: dateAccessed}
	collector := quality.New(runID, info.name, info.ptype)

	adapter, err := buildAdapter(opts, cfg, store, collector, logger)
	if err != nil {
		return configErr(err)
	}

	deduper, err := dedup.New(dedup.Config{
		ShingleSize: cfg.Quality.ShingleSize,
		NumHashes:   cfg.Quality.NumHashes,
		NumBands:    cfg.Quality.LSHBands,
		NumRows:     cfg.Quality.LSHRows,
		Threshold:   cfg.Quality.SimilarityThreshold,
	}, logger)
	if err != nil {
		return configErr(err)
	}

	p, err := pipeline.New(cfg, adapter, pipeline.Deps{
		Ledger:    store,
		Dedup:     deduper,
		Writer:    silver.New(cfg.Data.SilverDir, adapter.Descriptor(), run, logger),
		Collector: collector,
		Metrics:   metrics,
		Tracer:    obs.Tracer,
		Logger:    logger,
		Run:       run,
		DedupDir:  cfg.Data.DedupDir,
	})
	if err != nil {
		return configErr(err)
	}

	stopProgress := startProgress(collector, stderr, opts.NoProgress)

	res, runErr := p.Run(ctx, opts.Force)

	stopProgress()
	printSummary(stdout, cfg, res)

	code := pipeline.ExitCode(res, runErr)
	switch {
	case runErr != nil:
		return &ExitError{Code: code, Err: runErr}
	case code != pipeline.ExitOK:
		return &ExitError{Code: code, Err: fmt.Errorf(
			"run %s completed with %d failed units and %d failed flushes",
			res.RunID, res.UnitFailures, res.FlushFailures)}
	}

	return nil
}

// sourceCatalog maps CLI source names onto their canonical descriptors'
// identity, so the run id and collector can exist before the adapter does.
var sourceCatalog = map[string]struct {
	name  string
	slug  string
	ptype quality.PipelineType
}{
	"wikipedia":   {"Wikipedia-Somali", "wikipedia_somali", quality.PipelineFileProcessing},
	"bbc":         {"BBC-Somali", "bbc_somali", quality.PipelineWebScraping},
	"huggingface": {"HuggingFace-Somali", "huggingface_somali", quality.PipelineStreamProcessing},
	"sprakbanken": {"Sprakbanken-Somali", "sprakbanken_somali", quality.PipelineFileProcessing},
	"tiktok":      {"TikTok-Somali", "tiktok_somali", quality.PipelineStreamProcessing},
}

// buildAdapter wires the source's fetch client and adapter from config.
func buildAdapter(
	opts IngestOptions,
	cfg *config.Config,
	gate fetch.QuotaGate,
	col *quality.Collector,
	logger *slog.Logger,
) (sources.Adapter, error) {
	scr := cfg.ScrapingFor(opts.Source)

	maxItems := scr.MaxItems
	if opts.MaxItems > 0 {
		maxItems = opts.MaxItems
	}

	client := fetch.New(fetch.Config{
		Source:          sourceCatalog[opts.Source].name,
		UserAgent:       scr.UserAgent,
		Timeout:         time.Duration(cfg.Pipeline.FetchTimeoutSec) * time.Second,
		MinDelay:        time.Duration(scr.MinDelaySec) * time.Second,
		MaxDelay:        time.Duration(scr.MaxDelaySec) * time.Second,
		RequestsPerHour: scr.MaxRequestsPerHour,
	}, gate, logger)

	switch opts.Source {
	case "wikipedia":
		return wikipedia.New(wikipedia.Config{
			BronzeDir: filepath.Join(cfg.Data.RawDir, "wikipedia"),
			MaxItems:  maxItems,
			Quality:   cfg.Quality,
		}, client, col, logger)
	case "bbc":
		return bbc.New(bbc.Config{
			StagingDir: cfg.Data.StagingDir,
			MaxItems:   maxItems,
			Quality:    cfg.Quality,
		}, client, col, logger)
	case "huggingface":
		return huggingface.New(huggingface.Config{
			MaxItems: maxItems,
			Quality:  cfg.Quality,
		}, client, col, logger), nil
	case "sprakbanken":
		return sprakbanken.New(sprakbanken.Config{
			BronzeDir: filepath.Join(cfg.Data.RawDir, "sprakbanken"),
			MaxItems:  maxItems,
			Quality:   cfg.Quality,
		}, client, col, logger), nil
	case "tiktok":
		return tiktok.New(tiktok.Config{
			APIBase:  scr.APIBase,
			APIKey:   scr.APIKey,
			VideoIDs: scr.VideoIDs,
			MaxItems: maxItems,
			Quality:  cfg.Quality,
		}, client, col, logger)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, opts.Source)
}

// observabilityConfig maps the loaded config onto the telemetry settings.
func observabilityConfig(cfg *config.Config) observability.Config {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}

	return observability.Config{
		ServiceName:    "sdc",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		LogLevel:       level,
		LogJSON:        cfg.Logging.JSON,
	}
}

// startProgress runs a spinner fed from the run counters on interactive
// terminals. The returned func stops it; it is a no-op otherwise.
func startProgress(col *quality.Collector, stderr io.Writer, disabled bool) func() {
	f, isFile := stderr.(*os.File)
	if disabled || !isFile || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetWriter(stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Set64(col.Counter(quality.CounterRecordsExtracted))
			}
		}
	}()

	return func() {
		close(done)
		_ = bar.Finish()
		fmt.Fprintln(stderr)
	}
}

// printSummary writes the run outcome for humans; machine consumers read the
// metrics JSON instead.
func printSummary(w io.Writer, cfg *config.Config, res pipeline.Result) {
	healthColors := map[quality.Health]*color.Color{
		quality.HealthHealthy:   color.New(color.FgGreen),
		quality.HealthDegraded:  color.New(color.FgYellow),
		quality.HealthUnhealthy: color.New(color.FgRed),
	}

	c, ok := healthColors[res.Snapshot.Health]
	if !ok {
		c = color.New(color.FgRed)
	}

	fmt.Fprintf(w, "run %s finished\n", res.RunID)
	fmt.Fprintf(w, "  health:    %s\n", c.Sprint(string(res.Snapshot.Health)))
	fmt.Fprintf(w, "  written:   %d records\n", res.Written)
	if res.UnitFailures > 0 || res.FlushFailures > 0 {
		fmt.Fprintf(w, "  failures:  %d units, %d flushes\n", res.UnitFailures, res.FlushFailures)
	}
	if res.Canceled {
		fmt.Fprintf(w, "  canceled:  yes\n")
	}
	fmt.Fprintf(w, "  partition: %s\n", res.PartitionDir)
	fmt.Fprintf(w, "  report:    %s\n", filepath.Join(cfg.Data.ReportsDir, res.RunID+"_ingestion_quality_report.md"))
}
