// Package silver persists validated records as snappy-compressed parquet
// partitions with a JSON manifest sidecar per run. Writes are atomic: part
// files and the manifest land under temporary names and are renamed into
// place, so readers never observe a half-written file.
package silver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/persist"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/version"
)

// partDirPerm is the permission for partition directories.
const partDirPerm = 0o750

// partPadWidth is the zero-padding width of part numbers in file names.
const partPadWidth = 4

// manifestSuffix is the basename tail of the manifest sidecar, without the
// codec extension.
const manifestSuffix = "_silver_metadata"

// manifestCodec serializes manifest sidecars as indented JSON with the
// temp-then-rename discipline.
var manifestCodec = persist.NewJSONCodec()

// PartEntry describes one written part file in the manifest.
type PartEntry struct {
	// File is the part file name within the partition directory.
	File string `json:"file"`

	// SHA256 is the hex checksum of the file's bytes.
	SHA256 string `json:"sha256"`

	// SizeBytes is the file size.
	SizeBytes int64 `json:"size_bytes"`

	// RecordCount is the number of rows in the file.
	RecordCount int `json:"record_count"`
}

// Statistics is the manifest roll-up over all written records.
type Statistics struct {
	// MinTokenCount is the smallest token count written this run.
	MinTokenCount int32 `json:"min_token_count"`

	// MaxTokenCount is the largest token count written this run.
	MaxTokenCount int32 `json:"max_token_count"`

	// AvgTokenCount is the mean token count across written records.
	AvgTokenCount float64 `json:"avg_token_count"`

	// TotalBytes is the summed size of all part files.
	TotalBytes int64 `json:"total_bytes"`
}

// Manifest is the partition sidecar: run provenance plus per-file integrity
// entries. It is rewritten after every flush, so a crash never strands an
// unreferenced part file.
type Manifest struct {
	RunID           string      `json:"run_id"`
	Source          string      `json:"source"`
	PipelineVersion string      `json:"pipeline_version"`
	SchemaVersion   string      `json:"schema_version"`
	DateAccessed    string      `json:"date_accessed"`
	DateProcessed   time.Time   `json:"date_processed"`
	TotalRecords    int         `json:"total_records"`
	Partitions      []PartEntry `json:"partitions"`
	Statistics      Statistics  `json:"statistics"`
}

// Writer persists one source's records for one run. It is single-writer:
// the orchestrator is the only caller.
type Writer struct {
	desc   record.SourceDescriptor
	run    record.RunInfo
	dir    string
	logger *slog.Logger
	now    func() time.Time

	next        int
	totalTokens int64
	manifest    Manifest
}

// New creates a writer for one source and run rooted at silverDir. The
// partition directory is created on the first successful batch.
func New(silverDir string, desc record.SourceDescriptor, run record.RunInfo, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}

	date := run.DateAccessed.UTC().Format(time.DateOnly)

	return &Writer{
		desc:   desc,
		run:    run,
		dir:    filepath.Join(silverDir, "source="+desc.Name, "date_accessed="+date),
		logger: logger,
		now:    time.Now,
		manifest: Manifest{
			RunID:           run.ID,
			Source:          desc.Name,
			PipelineVersion: version.Version,
			SchemaVersion:   record.SchemaVersion,
			DateAccessed:    date,
			Partitions:      []PartEntry{},
		},
	}
}

// Dir returns the partition directory this writer flushes into.
func (w *Writer) Dir() string {
	return w.dir
}

// Manifest returns a copy of the manifest as of the last flush.
func (w *Writer) Manifest() Manifest {
	m := w.manifest
	m.Partitions = mapx.CloneSlice(w.manifest.Partitions)

	return m
}

// WriteBatch validates records and persists them as the run's next part
// file. The batch is all-or-nothing: the first violation rejects it whole
// and no file is produced. An empty batch is a no-op.
func (w *Writer) WriteBatch(records []record.Silver) (PartEntry, error) {
	if len(records) == 0 {
		return PartEntry{}, nil
	}

	if err := w.validateBatch(records); err != nil {
		return PartEntry{}, err
	}

	if err := os.MkdirAll(w.dir, partDirPerm); err != nil {
		return PartEntry{}, fmt.Errorf("silver: create partition dir: %w", err)
	}

	entry, err := w.writePart(w.partName(w.next), records)
	if err != nil {
		return PartEntry{}, err
	}

	w.next++
	w.extendManifest(records, entry)

	if err := w.writeManifest(); err != nil {
		return entry, err
	}

	w.logger.Debug("silver part written",
		"file", entry.File,
		"records", entry.RecordCount,
		"bytes", entry.SizeBytes)

	return entry, nil
}

// validateBatch runs schema validation plus partition conformance over the
// whole batch before any byte is written.
func (w *Writer) validateBatch(records []record.Silver) error {
	runDays := record.DaysSinceEpoch(w.run.DateAccessed)
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}

		if rec.Source != w.desc.Name {
			return violation(rec, "source",
				fmt.Sprintf("record belongs to %q, writer partitions %q", rec.Source, w.desc.Name))
		}

		if rec.DateAccessed != runDays {
			return violation(rec, "date_accessed", "does not match the run's partition date")
		}

		if _, dup := seen[rec.ID]; dup {
			return violation(rec, "id", "duplicate id in batch")
		}

		seen[rec.ID] = struct{}{}
	}

	return nil
}

// partName builds the file name of part n.
func (w *Writer) partName(n int) string {
	return fmt.Sprintf("%s_%s_silver_part-%0*d.parquet", w.desc.Slug(), w.run.ID, partPadWidth, n)
}

// writePart writes records to a temporary file in the partition directory
// and renames it to name once fully flushed.
func (w *Writer) writePart(name string, records []record.Silver) (PartEntry, error) {
	tmp, err := os.CreateTemp(w.dir, ".tmp-*")
	if err != nil {
		return PartEntry{}, fmt.Errorf("silver: create temp part file: %w", err)
	}

	tmpPath := tmp.Name()

	entry, err := writeRows(tmp, records)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return PartEntry{}, err
	}

	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return PartEntry{}, fmt.Errorf("silver: sync part file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		os.Remove(tmpPath)

		return PartEntry{}, fmt.Errorf("silver: close part file: %w", err)
	}

	err = os.Rename(tmpPath, filepath.Join(w.dir, name))
	if err != nil {
		os.Remove(tmpPath)

		return PartEntry{}, fmt.Errorf("silver: rename part file: %w", err)
	}

	entry.File = name

	return entry, nil
}

// writeRows streams records through the parquet encoder, hashing the bytes
// as they are produced so the checksum needs no second read.
func writeRows(f *os.File, records []record.Silver) (PartEntry, error) {
	hash := sha256.New()
	pw := parquet.NewGenericWriter[row](io.MultiWriter(f, hash), parquet.Compression(&parquet.Snappy))

	rows := make([]row, len(records))
	for i, rec := range records {
		rows[i] = newRow(rec)
	}

	if _, err := pw.Write(rows); err != nil {
		return PartEntry{}, fmt.Errorf("silver: write rows: %w", err)
	}

	if err := pw.Close(); err != nil {
		return PartEntry{}, fmt.Errorf("silver: finalize part: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return PartEntry{}, fmt.Errorf("silver: stat part file: %w", err)
	}

	return PartEntry{
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
		SizeBytes:   info.Size(),
		RecordCount: len(records),
	}, nil
}

// extendManifest folds one flushed part into the manifest totals.
func (w *Writer) extendManifest(records []record.Silver, entry PartEntry) {
	for _, rec := range records {
		if w.manifest.TotalRecords == 0 {
			w.manifest.Statistics.MinTokenCount = rec.TokenCount
			w.manifest.Statistics.MaxTokenCount = rec.TokenCount
		}

		if rec.TokenCount < w.manifest.Statistics.MinTokenCount {
			w.manifest.Statistics.MinTokenCount = rec.TokenCount
		}

		if rec.TokenCount > w.manifest.Statistics.MaxTokenCount {
			w.manifest.Statistics.MaxTokenCount = rec.TokenCount
		}

		w.totalTokens += int64(rec.TokenCount)
		w.manifest.TotalRecords++
	}

	w.manifest.Statistics.AvgTokenCount = float64(w.totalTokens) / float64(w.manifest.TotalRecords)
	w.manifest.Statistics.TotalBytes += entry.SizeBytes
	w.manifest.Partitions = append(w.manifest.Partitions, entry)
}

// writeManifest rewrites the sidecar with the current totals.
func (w *Writer) writeManifest() error {
	w.manifest.DateProcessed = w.now().UTC()

	basename := w.desc.Slug() + "_" + w.run.ID + manifestSuffix

	if err := persist.SaveState(w.dir, basename, manifestCodec, &w.manifest); err != nil {
		return fmt.Errorf("silver: write manifest: %w", err)
	}

	return nil
}
