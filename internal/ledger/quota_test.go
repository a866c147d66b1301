package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRequest_AccumulatesWithinHour(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	setClock(store, time.Date(2026, time.January, 15, 9, 10, 0, 0, time.UTC))

	for range 3 {
		require.NoError(t, store.RecordRequest(testSource))
	}

	used, err := store.RequestsInWindow(testSource, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), used)

	remaining, err := store.QuotaRemaining(testSource, time.Hour, 60)
	require.NoError(t, err)
	assert.Equal(t, 57, remaining)
}

func TestRequestsInWindow_OldBucketsAgeOut(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	setClock(store, time.Date(2026, time.January, 15, 9, 10, 0, 0, time.UTC))
	require.NoError(t, store.RecordRequest(testSource))
	require.NoError(t, store.RecordRequest(testSource))

	setClock(store, time.Date(2026, time.January, 15, 10, 5, 0, 0, time.UTC))
	require.NoError(t, store.RecordRequest(testSource))

	used, err := store.RequestsInWindow(testSource, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), used, "window reaching into the 09:00 bucket counts it in full")

	setClock(store, time.Date(2026, time.January, 15, 11, 30, 0, 0, time.UTC))

	used, err = store.RequestsInWindow(testSource, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), used, "the 09:00 bucket has aged out")

	setClock(store, time.Date(2026, time.January, 15, 13, 30, 0, 0, time.UTC))

	used, err = store.RequestsInWindow(testSource, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestQuotaRemaining_FloorsAtZero(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	setClock(store, time.Date(2026, time.January, 15, 9, 10, 0, 0, time.UTC))

	for range 5 {
		require.NoError(t, store.RecordRequest(testSource))
	}

	remaining, err := store.QuotaRemaining(testSource, time.Hour, 3)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestQuotaRemaining_IsolatedPerSource(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	setClock(store, time.Date(2026, time.January, 15, 9, 10, 0, 0, time.UTC))

	for range 4 {
		require.NoError(t, store.RecordRequest(testSource))
	}

	remaining, err := store.QuotaRemaining("BBC-Somali", time.Hour, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, remaining)
}
