package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// quotaKeyPrefix scopes request-count buckets in the keyspace.
const quotaKeyPrefix = "quota:"

// quotaBucketLayout formats a bucket's UTC hour.
const quotaBucketLayout = "2006010215"

// RecordRequest counts one outbound request against the source's current
// hour bucket.
func (s *Store) RecordRequest(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := quotaKey(source, s.now().UTC())

	return s.db.Update(func(txn *badger.Txn) error {
		count, err := readBucket(txn, key)
		if err != nil {
			return err
		}

		return txn.Set(key, []byte(strconv.FormatInt(count+1, 10)))
	})
}

// RequestsInWindow sums the request buckets that intersect the trailing
// window. Accounting is at hour granularity, so a partially covered bucket
// counts in full; the estimate errs toward politeness.
func (s *Store) RequestsInWindow(source string, window time.Duration) (int64, error) {
	nowUTC := s.now().UTC()
	start := nowUTC.Add(-window).Truncate(time.Hour)

	var total int64

	err := s.db.View(func(txn *badger.Txn) error {
		for hour := start; !hour.After(nowUTC); hour = hour.Add(time.Hour) {
			count, err := readBucket(txn, quotaKey(source, hour))
			if err != nil {
				return err
			}

			total += count
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// QuotaRemaining reports how many requests the source may still issue inside
// the rolling window under the given cap. Never negative.
func (s *Store) QuotaRemaining(source string, window time.Duration, limit int) (int, error) {
	used, err := s.RequestsInWindow(source, window)
	if err != nil {
		return 0, err
	}

	remaining := int64(limit) - used
	if remaining < 0 {
		remaining = 0
	}

	return int(remaining), nil
}

// quotaKey builds the keyspace key for the source's hour bucket.
func quotaKey(source string, hour time.Time) []byte {
	return []byte(quotaKeyPrefix + source + ":" + hour.Format(quotaBucketLayout))
}

// readBucket returns the bucket's count, zero when the bucket is absent.
func readBucket(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("ledger: get quota bucket: %w", err)
	}

	var count int64

	err = item.Value(func(val []byte) error {
		parsed, parseErr := strconv.ParseInt(string(val), 10, 64)
		if parseErr != nil {
			return fmt.Errorf("ledger: parse quota bucket: %w", parseErr)
		}

		count = parsed

		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}
