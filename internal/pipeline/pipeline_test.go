package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
	"github.com/somali-nlp/somali-dialect-classifier/internal/dedup"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter"
	"github.com/somali-nlp/somali-dialect-classifier/internal/ledger"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/silver"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
	"github.com/somali-nlp/somali-dialect-classifier/internal/textclean"
)

const testRunID = "20260115_093000_test_somali_deadbeef"

var testRunDate = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

// Somali sentences long enough to clear shingling and min-length checks.
const (
	textA = "Soomaaliya waa waddan ku yaal Geeska Afrika oo leh xeeb dheer."
	textB = "Muqdisho waa caasimadda Soomaaliya iyo magaalada ugu weyn dalka."
	textC = "Hargeysa waa magaalo weyn oo ku taal waqooyiga dalka Soomaaliya."
)

// stubAdapter scripts discovery and acquisition for orchestrator tests.
type stubAdapter struct {
	desc        record.SourceDescriptor
	ptype       quality.PipelineType
	filters     []filter.Predicate
	units       []sources.WorkUnit
	discoverErr error
	acquire     func(ctx context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error
}

func (s *stubAdapter) Descriptor() record.SourceDescriptor { return s.desc }
func (s *stubAdapter) PipelineType() quality.PipelineType  { return s.ptype }
func (s *stubAdapter) Cleaner() *textclean.Cleaner         { return textclean.NewPlainCleaner() }
func (s *stubAdapter) Filters() []filter.Predicate         { return s.filters }

func (s *stubAdapter) Discover(_ context.Context) ([]sources.WorkUnit, error) {
	if s.discoverErr != nil {
		return nil, s.discoverErr
	}

	return s.units, nil
}

func (s *stubAdapter) Acquire(ctx context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
	return s.acquire(ctx, unit, emit)
}

func newStub(texts map[string]string) *stubAdapter {
	a := &stubAdapter{
		desc: record.SourceDescriptor{
			Name:     "Test-Somali",
			Type:     record.TypeWeb,
			License:  "CC0-1.0",
			Register: record.RegisterFormal,
			Language: "so",
			Domain:   "test",
		},
		ptype: quality.PipelineWebScraping,
	}

	for url := range texts {
		a.units = append(a.units, sources.WorkUnit{URL: url})
	}

	a.acquire = func(_ context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
		return emit(record.Raw{
			Text:      texts[unit.URL],
			SourceURL: unit.URL,
		}, sources.Fetched{HTTPStatus: 200, Bytes: int64(len(texts[unit.URL])), Took: time.Millisecond})
	}

	return a
}

// env bundles one pipeline's collaborators rooted in a temp directory.
type env struct {
	cfg  *config.Config
	deps Deps
	led  *ledger.Store
}

func newEnv(t *testing.T, desc record.SourceDescriptor, ptype quality.PipelineType) *env {
	t.Helper()

	root := t.TempDir()

	cfg := &config.Config{
		Data: config.DataConfig{
			SilverDir:  filepath.Join(root, "silver"),
			LedgerPath: filepath.Join(root, "ledger"),
			DedupDir:   filepath.Join(root, "dedup"),
			MetricsDir: filepath.Join(root, "metrics"),
			ReportsDir: filepath.Join(root, "reports"),
		},
		Pipeline: config.PipelineConfig{
			BatchSize:         100,
			FlushSoftCapBytes: 10 << 20,
			ChannelBuffer:     8,
			MaxAttempts:       1,
			Workers:           1,
		},
	}

	led, err := ledger.Open(cfg.Data.LedgerPath, ledger.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	deduper, err := dedup.New(dedup.DefaultConfig(), nil)
	require.NoError(t, err)

	run := record.RunInfo{ID: testRunID, DateAccessed: testRunDate}

	return &env{
		cfg: cfg,
		led: led,
		deps: Deps{
			Ledger:    led,
			Dedup:     deduper,
			Writer:    silver.New(cfg.Data.SilverDir, desc, run, nil),
			Collector: quality.New(testRunID, desc.Name, ptype),
			Run:       run,
			DedupDir:  cfg.Data.DedupDir,
		},
	}
}

// freshRun rebuilds the per-run collaborators against the same ledger and
// dedup directory, the way the CLI wires a second invocation.
func (e *env) freshRun(t *testing.T, desc record.SourceDescriptor, ptype quality.PipelineType) *env {
	t.Helper()

	deduper, err := dedup.New(dedup.DefaultConfig(), nil)
	require.NoError(t, err)

	next := &env{cfg: e.cfg, led: e.led, deps: e.deps}
	next.deps.Dedup = deduper
	next.deps.Writer = silver.New(e.cfg.Data.SilverDir, desc, e.deps.Run, nil)
	next.deps.Collector = quality.New(testRunID, desc.Name, ptype)

	return next
}

func newTestPipeline(t *testing.T, a *stubAdapter, e *env) *Pipeline {
	t.Helper()

	p, err := New(e.cfg, a, e.deps)
	require.NoError(t, err)

	return p
}

func TestNew_RequiredDeps(t *testing.T) {
	t.Parallel()

	a := newStub(nil)
	e := newEnv(t, a.desc, a.ptype)

	tests := []struct {
		name   string
		mutate func(*Deps)
		want   error
	}{
		{"missing ledger", func(d *Deps) { d.Ledger = nil }, errNilLedger},
		{"missing dedup", func(d *Deps) { d.Dedup = nil }, errNilDedup},
		{"missing writer", func(d *Deps) { d.Writer = nil }, errNilWriter},
		{"missing collector", func(d *Deps) { d.Collector = nil }, errNilCollector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := e.deps
			tt.mutate(&deps)

			_, err := New(e.cfg, a, deps)

			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := New(e.cfg, nil, e.deps)
	require.ErrorIs(t, err, errNilAdapter)
}

func TestRun_WritesRecordsAndSettlesLedger(t *testing.T) {
	t.Parallel()

	a := newStub(map[string]string{
		"https://test.so/a": textA,
		"https://test.so/b": textB,
		"https://test.so/c": textC,
	})
	e := newEnv(t, a.desc, a.ptype)
	p := newTestPipeline(t, a, e)

	res, err := p.Run(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Written)
	assert.Zero(t, res.UnitFailures)
	assert.False(t, res.Canceled)
	assert.Equal(t, ExitOK, ExitCode(res, err))

	_, valErr := silver.ValidatePartition(res.PartitionDir)
	require.NoError(t, valErr)

	entry, err := e.led.Get(a.desc.Name, "https://test.so/a")
	require.NoError(t, err)
	assert.Equal(t, ledger.StateProcessed, entry.State)
	assert.NotEmpty(t, entry.SilverID)
	assert.Equal(t, record.TextHash(textA), entry.TextHash)

	snap := res.Snapshot
	assert.Equal(t, int64(3), snap.Counters[quality.CounterURLsDiscovered])
	assert.Equal(t, int64(3), snap.Counters[quality.CounterURLsProcessed])
	assert.Equal(t, int64(3), snap.Counters[quality.CounterRecordsExtracted])
	assert.Equal(t, quality.HealthHealthy, snap.Health)
}

func TestRun_SecondRunSkipsProcessedURLs(t *testing.T) {
	t.Parallel()

	texts := map[string]string{
		"https://test.so/a": textA,
		"https://test.so/b": textB,
	}
	a := newStub(texts)
	e := newEnv(t, a.desc, a.ptype)

	_, err := newTestPipeline(t, a, e).Run(context.Background(), false)
	require.NoError(t, err)

	e2 := e.freshRun(t, a.desc, a.ptype)
	res, err := newTestPipeline(t, newStub(texts), e2).Run(context.Background(), false)

	require.NoError(t, err)
	assert.Zero(t, res.Written, "processed URLs must not be refetched")
	assert.Equal(t, int64(2), res.Snapshot.Counters[quality.CounterSkippedDiscoveryDedup])
}

func TestRun_ForceRefetchLandsInDedup(t *testing.T) {
	t.Parallel()

	texts := map[string]string{"https://test.so/a": textA}
	a := newStub(texts)
	e := newEnv(t, a.desc, a.ptype)

	_, err := newTestPipeline(t, a, e).Run(context.Background(), false)
	require.NoError(t, err)

	e2 := e.freshRun(t, a.desc, a.ptype)
	res, err := newTestPipeline(t, newStub(texts), e2).Run(context.Background(), true)

	require.NoError(t, err)
	assert.Zero(t, res.Written, "forced refetch of unchanged content must dedup, not duplicate")
	assert.Equal(t, int64(1), res.Snapshot.Counters[quality.CounterExactDuplicates])

	entry, err := e.led.Get(a.desc.Name, "https://test.so/a")
	require.NoError(t, err)
	assert.Equal(t, ledger.StateDuplicate, entry.State)
}

func TestRun_FilteredRecordIsProcessedWithoutSilverID(t *testing.T) {
	t.Parallel()

	a := newStub(map[string]string{"https://test.so/short": "Waan yara."})
	a.filters = []filter.Predicate{filter.NewMinLength(20)}
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.NoError(t, err)
	assert.Zero(t, res.Written)
	assert.Equal(t, int64(1),
		res.Snapshot.Counters[quality.FilteredCounter(filter.NewMinLength(20).Name())])

	entry, err := e.led.Get(a.desc.Name, "https://test.so/short")
	require.NoError(t, err)
	assert.Equal(t, ledger.StateProcessed, entry.State,
		"a rejected record was still attempted and must not be refetched")
	assert.Empty(t, entry.SilverID)
	assert.NotEmpty(t, entry.TextHash)
}

func TestRun_ExactDuplicateWithinRun(t *testing.T) {
	t.Parallel()

	a := newStub(map[string]string{
		"https://test.so/a":      textA,
		"https://test.so/mirror": textA,
	})
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Written)
	assert.Equal(t, int64(1), res.Snapshot.Counters[quality.CounterExactDuplicates])

	states := map[ledger.State]int{}
	for _, url := range []string{"https://test.so/a", "https://test.so/mirror"} {
		entry, err := e.led.Get(a.desc.Name, url)
		require.NoError(t, err)
		states[entry.State]++
	}
	assert.Equal(t, map[ledger.State]int{ledger.StateProcessed: 1, ledger.StateDuplicate: 1}, states)
}

func TestRun_NearDuplicateWithinRun(t *testing.T) {
	t.Parallel()

	base := "Dhaqaalaha Soomaaliya ayaa si weyn u koraya sanadihii la soo dhaafay, " +
		"gaar ahaan ganacsiga xoolaha iyo beeraha oo ah laf-dhabarta dhaqaalaha dalka."

	// Same sentence minus its final period: far above the 0.85 bar.
	a := newStub(map[string]string{
		"https://test.so/a": base,
		"https://test.so/b": base[:len(base)-1],
	})
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Written)
	assert.Equal(t, int64(1), res.Snapshot.Counters[quality.CounterNearDuplicates])
}

func TestRun_DiscoverFailureIsFatal(t *testing.T) {
	t.Parallel()

	a := newStub(nil)
	a.discoverErr = errors.New("dump index unreachable")
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.ErrorIs(t, err, ErrFatalIngestion)
	assert.Equal(t, ExitFatal, ExitCode(res, err))

	// The run still leaves metrics and a report behind.
	metrics, globErr := filepath.Glob(filepath.Join(e.cfg.Data.MetricsDir, "*.json"))
	require.NoError(t, globErr)
	assert.NotEmpty(t, metrics)
}

func TestRun_UnitFailureYieldsPartialExit(t *testing.T) {
	t.Parallel()

	a := newStub(map[string]string{"https://test.so/a": textA})
	a.units = append(a.units, sources.WorkUnit{URL: "https://test.so/broken"})
	inner := a.acquire
	a.acquire = func(ctx context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
		if unit.URL == "https://test.so/broken" {
			return sources.Permanent(errors.New("markup beyond repair"))
		}

		return inner(ctx, unit, emit)
	}
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.NoError(t, err, "one bad unit must not end the run")
	assert.Equal(t, int64(1), res.Written)
	assert.Equal(t, int64(1), res.UnitFailures)
	assert.Equal(t, ExitPartial, ExitCode(res, err))

	entry, getErr := e.led.Get(a.desc.Name, "https://test.so/broken")
	require.NoError(t, getErr)
	assert.Equal(t, ledger.StateFailed, entry.State)
	assert.Contains(t, entry.FailureReason, "markup beyond repair")
}

func TestRun_GoneUnitIsSkippedNotFailed(t *testing.T) {
	t.Parallel()

	a := newStub(nil)
	a.units = []sources.WorkUnit{{URL: "https://test.so/deleted"}}
	a.acquire = func(_ context.Context, _ sources.WorkUnit, _ sources.EmitFunc) error {
		return sources.NotFound(errors.New("410 gone"))
	}
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.NoError(t, err)
	assert.Zero(t, res.UnitFailures)
	assert.Equal(t, ExitOK, ExitCode(res, err))

	entry, getErr := e.led.Get(a.desc.Name, "https://test.so/deleted")
	require.NoError(t, getErr)
	assert.Equal(t, ledger.StateSkipped, entry.State)
}

func TestRun_FlushFailureDropsBatchAndContinues(t *testing.T) {
	t.Parallel()

	a := newStub(map[string]string{
		"https://test.so/a": textA,
		"https://test.so/b": textB,
	})
	e := newEnv(t, a.desc, a.ptype)
	e.cfg.Pipeline.BatchSize = 2

	// A regular file where the silver root should be makes every
	// partition mkdir fail.
	require.NoError(t, os.WriteFile(e.cfg.Data.SilverDir, []byte("in the way"), 0o600))

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.NoError(t, err, "a single failed flush costs its batch, not the run")
	assert.Zero(t, res.Written)
	assert.Equal(t, int64(1), res.FlushFailures)
	assert.Equal(t, ExitPartial, ExitCode(res, err))
}

func TestRun_RepeatedFlushFailuresAbort(t *testing.T) {
	t.Parallel()

	texts := map[string]string{
		"https://test.so/a": textA + " kow.",
		"https://test.so/b": textB + " laba.",
		"https://test.so/c": textC + " saddex.",
	}
	a := newStub(texts)
	e := newEnv(t, a.desc, a.ptype)
	e.cfg.Pipeline.BatchSize = 1

	require.NoError(t, os.WriteFile(e.cfg.Data.SilverDir, []byte("in the way"), 0o600))

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.ErrorIs(t, err, ErrFatalIngestion)
	assert.Equal(t, ExitFatal, ExitCode(res, err))
}

func TestRun_CancellationFlushesBufferedRecords(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	a := newStub(nil)
	a.units = []sources.WorkUnit{
		{URL: "https://test.so/a"},
		{URL: "https://test.so/b"},
	}
	a.acquire = func(_ context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
		if err := emit(record.Raw{Text: textA, SourceURL: unit.URL}, sources.Fetched{HTTPStatus: 200}); err != nil {
			return err
		}
		// Simulate SIGINT arriving after the first unit.
		cancel()

		return nil
	}
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(ctx, false)

	require.NoError(t, err, "cancellation is an orderly stop, not a failure")
	assert.True(t, res.Canceled)
	assert.Equal(t, int64(1), res.Written, "buffered records drain before shutdown")
	assert.Equal(t, ExitOK, ExitCode(res, err))
}

func TestRun_ContainerRecordsGetOwnLedgerEntries(t *testing.T) {
	t.Parallel()

	a := newStub(nil)
	a.ptype = quality.PipelineFileProcessing
	a.units = []sources.WorkUnit{{URL: "dump://bundle", Container: true}}
	a.acquire = func(_ context.Context, _ sources.WorkUnit, emit sources.EmitFunc) error {
		for url, text := range map[string]string{
			"dump://bundle/page1": textA,
			"dump://bundle/page2": textB,
		} {
			if err := emit(record.Raw{Text: text, SourceURL: url}, sources.Fetched{}); err != nil {
				return err
			}
		}

		return nil
	}
	e := newEnv(t, a.desc, a.ptype)

	res, err := newTestPipeline(t, a, e).Run(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Written)

	for _, url := range []string{"dump://bundle", "dump://bundle/page1", "dump://bundle/page2"} {
		entry, getErr := e.led.Get(a.desc.Name, url)
		require.NoError(t, getErr)
		assert.Equal(t, ledger.StateProcessed, entry.State, url)
	}

	assert.Equal(t, int64(1), res.Snapshot.Counters[quality.CounterFilesProcessed])
}
