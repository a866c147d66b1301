package silver_test

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/silver"
)

// writtenPartition writes one two-record batch and returns the partition
// directory and the part file path.
func writtenPartition(t *testing.T) (string, string) {
	t.Helper()

	w := silver.New(t.TempDir(), testDescriptor(), testRun(), testLogger())

	entry, err := w.WriteBatch(buildRecords(t, testTextA, testTextB))
	require.NoError(t, err)

	return w.Dir(), filepath.Join(w.Dir(), entry.File)
}

// tamperManifest rewrites one top-level manifest field in place.
func tamperManifest(t *testing.T, dir string, mutate func(map[string]any)) {
	t.Helper()

	path := filepath.Join(dir, "wikipedia_somali_"+testRunID+"_silver_metadata.json")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	mutate(doc)

	tampered, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o600))
}

func TestValidatePartition_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := silver.ValidatePartition(t.TempDir())
	require.ErrorIs(t, err, silver.ErrNoManifest)
}

func TestValidatePartition_FlippedByte(t *testing.T) {
	t.Parallel()

	dir, part := writtenPartition(t)

	raw, err := os.ReadFile(part)
	require.NoError(t, err)

	raw[len(raw)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(part, raw, 0o600))

	_, err = silver.ValidatePartition(dir)
	require.ErrorIs(t, err, silver.ErrPartMismatch)
	assert.ErrorContains(t, err, "checksum")
}

func TestValidatePartition_TruncatedPart(t *testing.T) {
	t.Parallel()

	dir, part := writtenPartition(t)

	raw, err := os.ReadFile(part)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(part, raw[:len(raw)-10], 0o600))

	_, err = silver.ValidatePartition(dir)
	require.ErrorIs(t, err, silver.ErrPartMismatch)
	assert.ErrorContains(t, err, "bytes")
}

func TestValidatePartition_MissingPart(t *testing.T) {
	t.Parallel()

	dir, part := writtenPartition(t)
	require.NoError(t, os.Remove(part))

	_, err := silver.ValidatePartition(dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, "read part file")
}

func TestValidatePartition_ManifestFailsSchema(t *testing.T) {
	t.Parallel()

	dir, _ := writtenPartition(t)

	tamperManifest(t, dir, func(doc map[string]any) {
		doc["schema_version"] = "3.0"
	})

	_, err := silver.ValidatePartition(dir)
	require.ErrorIs(t, err, silver.ErrManifestSchema)
	assert.ErrorContains(t, err, "schema_version")
}

func TestValidatePartition_TotalRecordsMismatch(t *testing.T) {
	t.Parallel()

	dir, _ := writtenPartition(t)

	tamperManifest(t, dir, func(doc map[string]any) {
		doc["total_records"] = 3
	})

	_, err := silver.ValidatePartition(dir)
	require.ErrorIs(t, err, silver.ErrPartMismatch)
	assert.ErrorContains(t, err, "manifest says 3")
}

func TestValidatePartition_DuplicateAcrossParts(t *testing.T) {
	t.Parallel()

	w := silver.New(t.TempDir(), testDescriptor(), testRun(), testLogger())

	_, err := w.WriteBatch(buildRecords(t, testTextA))
	require.NoError(t, err)
	_, err = w.WriteBatch(buildRecords(t, testTextA))
	require.NoError(t, err)

	_, err = silver.ValidatePartition(w.Dir())

	var sv *silver.SchemaViolationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "id", sv.Field)
	assert.Contains(t, sv.Reason, "duplicate")
}

func TestValidatePartition_ValidatesEveryRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	first := silver.New(root, testDescriptor(), testRun(), testLogger())
	_, err := first.WriteBatch(buildRecords(t, testTextA))
	require.NoError(t, err)

	secondRun := record.RunInfo{
		ID:           "20260115_110000_wikipedia_somali_99aabbcc",
		DateAccessed: testRunDate,
	}
	second := silver.New(root, testDescriptor(), secondRun, testLogger())

	builder := record.NewBuilder(testDescriptor(), secondRun)
	rec, err := builder.Build(testTextC, nil)
	require.NoError(t, err)

	_, err = second.WriteBatch([]record.Silver{rec})
	require.NoError(t, err)

	require.Equal(t, first.Dir(), second.Dir(), "same source and date share a partition")

	report, err := silver.ValidatePartition(first.Dir())
	require.NoError(t, err)
	assert.Equal(t, silver.Report{Manifests: 2, Files: 2, Records: 2}, report)
}
