package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/silver"
)

// writeTestPartition builds a one-part silver partition and returns its
// directory.
func writeTestPartition(t *testing.T) string {
	t.Helper()

	desc := record.SourceDescriptor{
		Name:     "Test-Somali",
		Type:     record.TypeWeb,
		License:  "CC0-1.0",
		Register: record.RegisterFormal,
		Language: "so",
		Domain:   "test",
	}
	run := record.RunInfo{
		ID:           "20260115_093000_test_somali_deadbeef",
		DateAccessed: time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
	}

	builder := record.NewBuilder(desc, run)
	rec, err := builder.Build("Soomaaliya waa waddan ku yaal Geeska Afrika.", nil)
	require.NoError(t, err)

	writer := silver.New(t.TempDir(), desc, run, nil)
	_, err = writer.WriteBatch([]record.Silver{rec})
	require.NoError(t, err)

	return writer.Dir()
}

func TestValidateSilverCommand_ValidPartition(t *testing.T) {
	t.Parallel()

	dir := writeTestPartition(t)

	var out bytes.Buffer
	cmd := NewValidateSilverCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "OK")
	assert.Contains(t, out.String(), "1 manifests, 1 files, 1 records")
}

func TestValidateSilverCommand_EmptyDirFails(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := NewValidateSilverCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()

	require.ErrorIs(t, err, silver.ErrNoManifest)
	assert.Contains(t, out.String(), "FAIL")
}

func TestValidateSilverCommand_RequiresPathArg(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := NewValidateSilverCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{})

	require.Error(t, cmd.Execute())
}
