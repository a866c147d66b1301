// Package ledger persists per-URL crawl state in an embedded Badger store so
// repeated runs never re-acquire settled URLs. Every transition is validated
// against the crawl state machine and committed in its own synchronous
// transaction: an entry only counts as advanced once the write is durable.
// Hour-bucketed request counters back the per-source rate quotas.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
)

// defaultMaxAttempts is the retry budget for failed entries.
const defaultMaxAttempts = 3

// ledgerValueLogSize bounds Badger value log files; ledger rows are tiny, so
// the 1 GiB default would be mostly preallocated dead weight.
const ledgerValueLogSize = 16 << 20

// entryKeyPrefix scopes crawl entries in the keyspace.
const entryKeyPrefix = "entry:"

var (
	// ErrNotFound reports a (source, url) pair without a ledger entry.
	ErrNotFound = errors.New("ledger: entry not found")

	// ErrInvalidTransition reports an illegal state edge, including
	// re-applying a transition that already happened.
	ErrInvalidTransition = errors.New("ledger: invalid state transition")
)

// Options tunes a ledger store.
type Options struct {
	// MaxAttempts caps retries for failed entries in ShouldFetch.
	// Zero selects the default of 3.
	MaxAttempts int

	// SyncWrites fsyncs every transaction so transitions are durable
	// before the in-memory state advances.
	SyncWrites bool

	// InMemory keeps the store off disk. Used by tests.
	InMemory bool
}

// DefaultOptions returns the production settings: three attempts, durable
// writes.
func DefaultOptions() Options {
	return Options{MaxAttempts: defaultMaxAttempts, SyncWrites: true}
}

// Store is the durable crawl ledger. All transitions serialize through the
// store, so adapters may call it from concurrent fetch workers.
type Store struct {
	db          *badger.DB
	mu          sync.Mutex
	maxAttempts int
	now         func() time.Time
}

// Open opens or creates the ledger database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	badgerOpts := badger.DefaultOptions(path)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}

	badgerOpts.SyncWrites = opts.SyncWrites && !opts.InMemory
	badgerOpts.ValueLogFileSize = ledgerValueLogSize
	badgerOpts.Logger = nil

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open store: %w", err)
	}

	return &Store{db: db, maxAttempts: opts.MaxAttempts, now: time.Now}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("ledger: close store: %w", err)
	}

	return nil
}

// Discover inserts url in the discovered state if absent. Re-discovery of a
// known URL is a no-op, so repeated runs never reset progress.
func (s *Store) Discover(source, url string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(source, url)

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}

		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("ledger: get entry: %w", err)
		}

		now := s.now().UTC()
		entry := Entry{
			Source:           source,
			URL:              url,
			State:            StateDiscovered,
			FirstSeenAt:      now,
			LastTransitionAt: now,
			Metadata:         metadata,
		}

		return putEntry(txn, key, &entry)
	})
}

// Get returns the entry for (source, url).
func (s *Store) Get(source, url string) (Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(source, url))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}

		if err != nil {
			return fmt.Errorf("ledger: get entry: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return Entry{}, err
	}

	return entry, nil
}

// ShouldFetch reports whether (source, url) needs acquisition this run.
// Unknown URLs, forced runs, in-flight entries left by an interrupted run,
// and failed entries with attempts remaining all do; terminal entries are
// settled and exhausted failures stay down until forced.
func (s *Store) ShouldFetch(source, url string, force bool) (bool, error) {
	entry, err := s.Get(source, url)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}

	if err != nil {
		return false, err
	}

	if force {
		return true, nil
	}

	switch entry.State {
	case StateFailed:
		return entry.AttemptCount < s.maxAttempts, nil
	case StateDiscovered, StateFetched:
		return true, nil
	case StateProcessed, StateSkipped, StateDuplicate:
		return false, nil
	}

	return false, nil
}

// MarkFetched transitions the entry to fetched and records the acquisition
// observables.
func (s *Store) MarkFetched(source, url string, httpStatus int, contentLength int64) error {
	return s.transition(source, url, StateFetched, func(entry *Entry) {
		entry.HTTPStatus = httpStatus
		entry.ContentLength = contentLength
	})
}

// MarkProcessed transitions the entry to processed and binds it to its
// silver identity. An empty silverID records that the fetch was attempted
// but the record was filtered out.
func (s *Store) MarkProcessed(source, url, textHash, silverID string) error {
	return s.transition(source, url, StateProcessed, func(entry *Entry) {
		entry.TextHash = textHash
		entry.SilverID = silverID
	})
}

// MarkFailed transitions the entry to failed, spending one attempt.
func (s *Store) MarkFailed(source, url, reason string) error {
	return s.transition(source, url, StateFailed, func(entry *Entry) {
		entry.FailureReason = reason
		entry.AttemptCount++
	})
}

// MarkSkipped transitions the entry to skipped.
func (s *Store) MarkSkipped(source, url string) error {
	return s.transition(source, url, StateSkipped, nil)
}

// MarkDuplicate transitions the entry to duplicate.
func (s *Store) MarkDuplicate(source, url string) error {
	return s.transition(source, url, StateDuplicate, nil)
}

// CountByState tallies the source's entries per state.
func (s *Store) CountByState(source string) (map[State]int, error) {
	counts := make(map[State]int)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryKeyPrefix + source + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return fmt.Errorf("ledger: decode entry: %w", err)
				}

				counts[entry.State]++

				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return counts, nil
}

// transition applies a state change with exactly-once effect: an illegal
// edge, including repeating a transition that already happened, returns
// ErrInvalidTransition and leaves the entry untouched.
func (s *Store) transition(source, url string, to State, mutate func(*Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(source, url)

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}

		if err != nil {
			return fmt.Errorf("ledger: get entry: %w", err)
		}

		var entry Entry

		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
		if err != nil {
			return fmt.Errorf("ledger: decode entry: %w", err)
		}

		if !canTransition(entry.State, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.State, to)
		}

		entry.State = to
		entry.LastTransitionAt = s.now().UTC()

		if mutate != nil {
			mutate(&entry)
		}

		return putEntry(txn, key, &entry)
	})
}

// putEntry serializes and stores an entry under key.
func putEntry(txn *badger.Txn, key []byte, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger: encode entry: %w", err)
	}

	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("ledger: set entry: %w", err)
	}

	return nil
}

// entryKey builds the keyspace key for (source, url).
func entryKey(source, url string) []byte {
	return []byte(entryKeyPrefix + source + ":" + url)
}
