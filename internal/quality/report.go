package quality

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
)

// slowFetchP95Ms is the fetch p95 above which the report recommends
// connection tuning.
const slowFetchP95Ms = 10_000

// reviewFilterFloor is the quality-filter pass rate below which the report
// recommends reviewing filter configurations.
const reviewFilterFloor = 0.5

// renderReport renders the markdown quality report for one finalized run.
func renderReport(snap Snapshot) []byte {
	var b strings.Builder

	writeHeader(&b, snap)
	writeSummary(&b, snap)
	writeCounters(&b, snap)
	writePerformance(&b, snap)
	writeHTTPStatuses(&b, snap)
	writeDedup(&b, snap)
	writeTextLengths(&b, snap)
	writeRecommendations(&b, snap)

	return []byte(b.String())
}

func writeHeader(b *strings.Builder, snap Snapshot) {
	fmt.Fprintf(b, "# Quality Report: %s\n\n", snap.RunID)

	rows := []table.Row{
		{"Source", snap.Source},
		{"Pipeline type", string(snap.PipelineType)},
		{"Started", snap.StartedAt.Format(time.RFC3339)},
		{"Finished", snap.FinishedAt.Format(time.RFC3339)},
		{"Duration", formatSeconds(snap.DurationSeconds)},
		{"Health", string(snap.Health)},
	}

	b.WriteString(markdownTable(table.Row{"Run", ""}, rows))
	b.WriteString("\n")
}

func writeSummary(b *strings.Builder, snap Snapshot) {
	b.WriteString("## Executive Summary\n\n")

	written := snap.Counters[CounterRecordsWritten]
	extracted := snap.Counters[CounterRecordsExtracted]

	fmt.Fprintf(b, "Run **%s** finished **%s**: %s of %s extracted records were written to the silver layer.\n\n",
		snap.RunID, snap.Health, humanize.Comma(written), humanize.Comma(extracted))

	rows := make([]table.Row, 0, len(snap.Rates))
	for _, name := range mapx.SortedKeys(snap.Rates) {
		rows = append(rows, table.Row{name, formatRate(snap.Rates[name])})
	}

	b.WriteString(markdownTable(table.Row{"Rate", "Value"}, rows))
	b.WriteString("\n")
}

func writeCounters(b *strings.Builder, snap Snapshot) {
	b.WriteString("## Processing Statistics\n\n")

	rows := make([]table.Row, 0, len(snap.Counters))

	for _, name := range mapx.SortedKeys(snap.Counters) {
		// HTTP statuses get their own section.
		if strings.HasPrefix(name, httpStatusPrefix) {
			continue
		}

		rows = append(rows, table.Row{name, humanize.Comma(snap.Counters[name])})
	}

	if len(rows) == 0 {
		b.WriteString("No counters recorded.\n\n")

		return
	}

	b.WriteString(markdownTable(table.Row{"Counter", "Value"}, rows))
	b.WriteString("\n")
}

func writePerformance(b *strings.Builder, snap Snapshot) {
	fetch, hasFetch := snap.Histograms[HistFetchDuration]
	extraction, hasExtraction := snap.Histograms[HistExtractionDuration]

	if !hasFetch && !hasExtraction {
		return
	}

	b.WriteString("## Performance\n\n")

	var rows []table.Row

	if hasFetch && fetch.Count > 0 {
		rows = append(rows, durationRow("Fetch", fetch))
	}

	if hasExtraction && extraction.Count > 0 {
		rows = append(rows, durationRow("Extraction", extraction))
	}

	if len(rows) == 0 {
		return
	}

	b.WriteString(markdownTable(
		table.Row{"Stage", "Count", "Mean", "Median", "P95", "P99", "Min", "Max"},
		rows,
	))
	b.WriteString("\n")
}

func durationRow(stage string, h HistogramStats) table.Row {
	return table.Row{
		stage,
		humanize.Comma(int64(h.Count)),
		formatMillis(h.Mean),
		formatMillis(h.Median),
		formatMillis(h.P95),
		formatMillis(h.P99),
		formatMillis(h.Min),
		formatMillis(h.Max),
	}
}

func writeHTTPStatuses(b *strings.Builder, snap Snapshot) {
	type statusCount struct {
		code  int
		count int64
	}

	var statuses []statusCount

	for name, count := range snap.Counters {
		digits, ok := strings.CutPrefix(name, httpStatusPrefix)
		if !ok {
			continue
		}

		code, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}

		statuses = append(statuses, statusCount{code: code, count: count})
	}

	if len(statuses) == 0 {
		return
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].code < statuses[j].code })

	b.WriteString("## HTTP Status Distribution\n\n")

	rows := make([]table.Row, 0, len(statuses))
	for _, sc := range statuses {
		rows = append(rows, table.Row{strconv.Itoa(sc.code), humanize.Comma(sc.count)})
	}

	b.WriteString(markdownTable(table.Row{"Status", "Count"}, rows))
	b.WriteString("\n")
}

func writeDedup(b *strings.Builder, snap Snapshot) {
	b.WriteString("## Deduplication\n\n")

	rows := []table.Row{
		{"Skipped at discovery (ledger)", humanize.Comma(snap.Counters[CounterSkippedDiscoveryDedup])},
		{"Exact duplicates", humanize.Comma(snap.Counters[CounterExactDuplicates])},
		{"Near duplicates", humanize.Comma(snap.Counters[CounterNearDuplicates])},
	}

	b.WriteString(markdownTable(table.Row{"Phase", "Count"}, rows))
	b.WriteString("\n")
}

func writeTextLengths(b *strings.Builder, snap Snapshot) {
	lengths, ok := snap.Histograms[HistTextLength]
	if !ok || lengths.Count == 0 {
		return
	}

	b.WriteString("## Text Length Distribution\n\n")

	rows := []table.Row{
		{"Records measured", humanize.Comma(int64(lengths.Count))},
		{"Mean", formatRunes(lengths.Mean)},
		{"Std dev", formatRunes(lengths.StdDev)},
		{"Median", formatRunes(lengths.Median)},
		{"P95", formatRunes(lengths.P95)},
		{"Min", formatRunes(lengths.Min)},
		{"Max", formatRunes(lengths.Max)},
		{"Distinct tokens (estimated)", humanize.Comma(int64(snap.VocabularyEstimate))},
	}

	b.WriteString(markdownTable(table.Row{"Statistic", "Value"}, rows))
	b.WriteString("\n")
}

func writeRecommendations(b *strings.Builder, snap Snapshot) {
	b.WriteString("## Recommendations\n\n")

	for _, rec := range recommendations(snap) {
		fmt.Fprintf(b, "- %s\n", rec)
	}
}

// recommendations derives action items from the anomalies a snapshot shows.
func recommendations(snap Snapshot) []string {
	var recs []string

	if snap.PipelineType == PipelineStreamProcessing && snap.Rates[RateStreamConnectionSuccess] == 0 {
		recs = append(recs,
			"The stream connection never opened; verify the dataset endpoint and credentials before the next run.")
	}

	if extracted := snap.Counters[CounterRecordsExtracted]; extracted > 0 && snap.Rates[RateQualityFilterPass] < reviewFilterFloor {
		recs = append(recs, fmt.Sprintf(
			"Only %s of extracted records passed quality filters; review filter configurations and the length threshold for this source.",
			formatRate(snap.Rates[RateQualityFilterPass])))
	}

	if fetch, ok := snap.Histograms[HistFetchDuration]; ok && fetch.Count > 0 && fetch.P95 > slowFetchP95Ms {
		recs = append(recs, fmt.Sprintf(
			"Fetches are slow (p95 %s); consider connection pooling or reducing the per-request delay interval.",
			formatMillis(fetch.P95)))
	}

	if failed := snap.Counters[CounterURLsFailed]; failed > 0 {
		recs = append(recs, fmt.Sprintf(
			"%s fetches failed; inspect the ledger failure reasons and consider raising the retry budget.",
			humanize.Comma(failed)))
	}

	duplicates := snap.Counters[CounterExactDuplicates] + snap.Counters[CounterNearDuplicates]
	if written := snap.Counters[CounterRecordsWritten]; duplicates > written && duplicates > 0 {
		recs = append(recs,
			"Duplicates outnumber newly written records; discovery is revisiting known content, so consider narrowing discovery scope.")
	}

	if oversized := snap.Counters[CounterOversizedSkipped]; oversized > 0 {
		recs = append(recs, fmt.Sprintf(
			"%s pages exceeded the in-memory size cap; raise the cap if these documents matter to the corpus.",
			humanize.Comma(oversized)))
	}

	if flushFailures := snap.Counters[CounterFlushFailures]; flushFailures > 0 {
		recs = append(recs, fmt.Sprintf(
			"%s batch flushes failed; check silver directory permissions and free disk space.",
			humanize.Comma(flushFailures)))
	}

	if len(recs) == 0 {
		recs = append(recs, "No anomalies detected.")
	}

	return recs
}

// markdownTable renders header and rows as a GitHub-flavored markdown table.
func markdownTable(header table.Row, rows []table.Row) string {
	tbl := table.NewWriter()
	tbl.AppendHeader(header)
	tbl.AppendRows(rows)

	return tbl.RenderMarkdown() + "\n"
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func formatMillis(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2f s", ms/1000)
	}

	return fmt.Sprintf("%.0f ms", ms)
}

func formatSeconds(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond).String()
}

func formatRunes(runes float64) string {
	return humanize.Comma(int64(runes)) + " runes"
}
