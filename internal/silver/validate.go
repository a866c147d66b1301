package silver

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"github.com/xeipuuv/gojsonschema"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
)

// manifestSchema is the JSON Schema every manifest sidecar must satisfy.
//
//go:embed manifest-schema.json
var manifestSchema []byte

var (
	// ErrNoManifest reports a partition directory without a manifest
	// sidecar.
	ErrNoManifest = errors.New("silver: no manifest sidecar in partition")

	// ErrManifestSchema reports a manifest that fails its JSON schema.
	ErrManifestSchema = errors.New("silver: manifest fails schema")

	// ErrPartMismatch reports a part file that disagrees with its
	// manifest entry.
	ErrPartMismatch = errors.New("silver: part file disagrees with manifest")
)

// Report summarizes a partition validation pass.
type Report struct {
	// Manifests is the number of manifest sidecars checked.
	Manifests int

	// Files is the number of part files re-read.
	Files int

	// Records is the number of rows revalidated.
	Records int
}

// ValidatePartition re-reads a partition directory end to end: every
// manifest sidecar is checked against the embedded manifest schema, every
// referenced part file is re-hashed and re-read, and every row must satisfy
// the record schema. It stops at the first integrity failure.
func ValidatePartition(dir string) (Report, error) {
	var report Report

	manifests, err := filepath.Glob(filepath.Join(dir, "*"+manifestSuffix+manifestCodec.Extension()))
	if err != nil {
		return report, fmt.Errorf("silver: list manifests: %w", err)
	}

	if len(manifests) == 0 {
		return report, ErrNoManifest
	}

	sort.Strings(manifests)

	for _, path := range manifests {
		manifest, err := validateManifest(path)
		if err != nil {
			return report, err
		}

		report.Manifests++

		seen := make(map[string]struct{}, manifest.TotalRecords)

		for _, entry := range manifest.Partitions {
			count, err := validatePart(dir, entry, manifest, seen)
			if err != nil {
				return report, err
			}

			report.Files++
			report.Records += count
		}

		if len(seen) != manifest.TotalRecords {
			return report, fmt.Errorf("%w: manifest says %d records, files hold %d",
				ErrPartMismatch, manifest.TotalRecords, len(seen))
		}
	}

	return report, nil
}

// validateManifest checks the sidecar against the embedded JSON schema and
// decodes it.
func validateManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("silver: read manifest: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(manifestSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return Manifest{}, fmt.Errorf("silver: validate manifest: %w", err)
	}

	if !result.Valid() {
		verr := result.Errors()[0]

		return Manifest{}, fmt.Errorf("%w: %s: %s", ErrManifestSchema, verr.Field(), verr.Description())
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("silver: decode manifest: %w", err)
	}

	return manifest, nil
}

// validatePart re-hashes one part file, re-reads its rows, and checks each
// row against the record schema and the manifest's partition keys.
func validatePart(dir string, entry PartEntry, manifest Manifest, seen map[string]struct{}) (int, error) {
	if entry.File != filepath.Base(entry.File) {
		return 0, fmt.Errorf("%w: part name %q escapes the partition", ErrPartMismatch, entry.File)
	}

	raw, err := os.ReadFile(filepath.Join(dir, entry.File))
	if err != nil {
		return 0, fmt.Errorf("silver: read part file: %w", err)
	}

	if int64(len(raw)) != entry.SizeBytes {
		return 0, fmt.Errorf("%w: %s is %d bytes, manifest says %d",
			ErrPartMismatch, entry.File, len(raw), entry.SizeBytes)
	}

	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != entry.SHA256 {
		return 0, fmt.Errorf("%w: %s checksum differs", ErrPartMismatch, entry.File)
	}

	rows, err := parquet.Read[row](bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return 0, fmt.Errorf("silver: read rows of %s: %w", entry.File, err)
	}

	if len(rows) != entry.RecordCount {
		return 0, fmt.Errorf("%w: %s holds %d rows, manifest says %d",
			ErrPartMismatch, entry.File, len(rows), entry.RecordCount)
	}

	for _, r := range rows {
		rec := r.record()

		if err := validateRecord(rec); err != nil {
			return 0, err
		}

		if rec.Source != manifest.Source {
			return 0, fmt.Errorf("%w: record %s from source %q in partition of %q",
				ErrPartMismatch, rec.ID, rec.Source, manifest.Source)
		}

		if date := record.DateFromDays(rec.DateAccessed).Format(time.DateOnly); date != manifest.DateAccessed {
			return 0, fmt.Errorf("%w: record %s dated %s in partition of %s",
				ErrPartMismatch, rec.ID, date, manifest.DateAccessed)
		}

		if !strings.HasPrefix(rec.ID, record.SourcePrefix(manifest.Source)+"_") {
			return 0, fmt.Errorf("%w: record %s does not carry the %s prefix",
				ErrPartMismatch, rec.ID, record.SourcePrefix(manifest.Source))
		}

		if _, dup := seen[rec.ID]; dup {
			return 0, violation(rec, "id", "duplicate id in partition")
		}

		seen[rec.ID] = struct{}{}
	}

	return len(rows), nil
}
