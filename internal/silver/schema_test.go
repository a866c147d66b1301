package silver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
)

// validSilver returns a record that passes every schema check. The id is the
// WIKI prefix plus the first 16 hex of sha256("Soomaaliya waa waddan.").
func validSilver() record.Silver {
	return record.Silver{
		ID:           "WIKI_e1bd26cedbdd06b7",
		Text:         "Soomaaliya waa waddan.",
		Source:       "Wikipedia-Somali",
		SourceType:   string(record.TypeEncyclopedia),
		DateAccessed: 20468,
		Language:     "so",
		License:      "CC-BY-SA-4.0",
		TokenCount:   3,
		Metadata:     `{"title":"Soomaaliya"}`,
		Domain:       "encyclopedic",
		Embedding:    "",
		Register:     string(record.RegisterFormal),
		Version:      record.SchemaVersion,
	}
}

func TestValidateRecord_Valid(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateRecord(validSilver()))
}

func TestValidateRecord_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*record.Silver)
		wantField string
	}{
		{
			name:      "stale schema version",
			mutate:    func(r *record.Silver) { r.Version = "2.0" },
			wantField: "version",
		},
		{
			name:      "lowercase id prefix",
			mutate:    func(r *record.Silver) { r.ID = "wiki_e1bd26cedbdd06b7" },
			wantField: "id",
		},
		{
			name:      "short id hash",
			mutate:    func(r *record.Silver) { r.ID = "WIKI_e1bd26ce" },
			wantField: "id",
		},
		{
			name:      "empty text",
			mutate:    func(r *record.Silver) { r.Text = "" },
			wantField: "text",
		},
		{
			name: "decomposed text",
			mutate: func(r *record.Silver) {
				r.Text = "dhég iyo af"
			},
			wantField: "text",
		},
		{
			name:      "leading whitespace",
			mutate:    func(r *record.Silver) { r.Text = " Soomaaliya waa waddan." },
			wantField: "text",
		},
		{
			name:      "trailing newline",
			mutate:    func(r *record.Silver) { r.Text = "Soomaaliya waa waddan.\n" },
			wantField: "text",
		},
		{
			name:      "empty source",
			mutate:    func(r *record.Silver) { r.Source = "" },
			wantField: "source",
		},
		{
			name:      "unknown source type",
			mutate:    func(r *record.Silver) { r.SourceType = "blog" },
			wantField: "source_type",
		},
		{
			name:      "zero date",
			mutate:    func(r *record.Silver) { r.DateAccessed = 0 },
			wantField: "date_accessed",
		},
		{
			name:      "empty language",
			mutate:    func(r *record.Silver) { r.Language = "" },
			wantField: "language",
		},
		{
			name:      "empty license",
			mutate:    func(r *record.Silver) { r.License = "" },
			wantField: "license",
		},
		{
			name:      "negative token count",
			mutate:    func(r *record.Silver) { r.TokenCount = -3 },
			wantField: "token_count",
		},
		{
			name:      "token count disagrees with text",
			mutate:    func(r *record.Silver) { r.TokenCount = 5 },
			wantField: "token_count",
		},
		{
			name:      "metadata is an array",
			mutate:    func(r *record.Silver) { r.Metadata = `["title"]` },
			wantField: "metadata",
		},
		{
			name:      "metadata is not json",
			mutate:    func(r *record.Silver) { r.Metadata = "title=Soomaaliya" },
			wantField: "metadata",
		},
		{
			name:      "metadata is json null",
			mutate:    func(r *record.Silver) { r.Metadata = "null" },
			wantField: "metadata",
		},
		{
			name:      "empty domain",
			mutate:    func(r *record.Silver) { r.Domain = "" },
			wantField: "domain",
		},
		{
			name:      "embedding present",
			mutate:    func(r *record.Silver) { r.Embedding = "[0.1,0.2]" },
			wantField: "embedding",
		},
		{
			name:      "unknown register",
			mutate:    func(r *record.Silver) { r.Register = "slang" },
			wantField: "register",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := validSilver()
			tt.mutate(&rec)

			err := validateRecord(rec)
			require.Error(t, err)

			var sv *SchemaViolationError
			require.ErrorAs(t, err, &sv)
			assert.Equal(t, tt.wantField, sv.Field)
		})
	}
}

func TestSchemaViolationError_Error(t *testing.T) {
	t.Parallel()

	err := &SchemaViolationError{
		Field:    "token_count",
		RecordID: "WIKI_e1bd26cedbdd06b7",
		Reason:   "says 5, text has 3 whitespace tokens",
	}

	assert.Equal(t,
		`silver: schema violation in field "token_count" (record "WIKI_e1bd26cedbdd06b7"): says 5, text has 3 whitespace tokens`,
		err.Error())
}

func TestRow_RoundTrip(t *testing.T) {
	t.Parallel()

	rec := validSilver()
	got := newRow(rec).record()

	assert.Equal(t, rec, got)
}
