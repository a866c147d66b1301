// Package dedup implements the two-layer content deduplication applied at
// record admission: an exact content-hash set in front of a MinHash/LSH
// near-duplicate index with exact Jaccard confirmation.
//
// The engine keeps the full shingle set of every admitted document so LSH
// candidates are confirmed against true Jaccard similarity rather than the
// MinHash estimate. State is snapshotted per source between runs; see
// snapshot.go.
package dedup

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/lsh"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/minhash"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
)

// Tuned defaults. 128 permutations in 16 bands of 8 rows retrieve a pair at
// Jaccard 0.85 as a candidate with probability ≈ 0.994.
const (
	DefaultShingleSize = 5
	DefaultNumHashes   = 128
	DefaultNumBands    = 16
	DefaultNumRows     = 8
	DefaultThreshold   = 0.85
)

// MinDedupRunes is the shortest text that participates in deduplication.
// Anything shorter bypasses both layers and is left for the filter chain.
const MinDedupRunes = 3

var (
	// ErrShingleSize reports a non-positive shingle size.
	ErrShingleSize = errors.New("dedup: shingle size must be positive")

	// ErrBandGeometry reports band/row parameters whose product is not the
	// signature size.
	ErrBandGeometry = errors.New("dedup: bands times rows must equal hash count")

	// ErrThreshold reports a similarity threshold outside (0, 1].
	ErrThreshold = errors.New("dedup: similarity threshold must be in (0, 1]")
)

// Config tunes both deduplication layers.
type Config struct {
	// ShingleSize is the rune n-gram width used to shingle documents.
	ShingleSize int

	// NumHashes is the number of MinHash permutations per signature.
	NumHashes int

	// NumBands and NumRows shape the LSH index; their product must equal
	// NumHashes.
	NumBands int
	NumRows  int

	// Threshold is the exact-Jaccard admission bar: a candidate at or
	// above it is a near-duplicate.
	Threshold float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		ShingleSize: DefaultShingleSize,
		NumHashes:   DefaultNumHashes,
		NumBands:    DefaultNumBands,
		NumRows:     DefaultNumRows,
		Threshold:   DefaultThreshold,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.ShingleSize <= 0 {
		return ErrShingleSize
	}

	if c.NumHashes <= 0 || c.NumBands*c.NumRows != c.NumHashes {
		return ErrBandGeometry
	}

	if c.Threshold <= 0 || c.Threshold > 1 {
		return ErrThreshold
	}

	return nil
}

// exactKey is the 16-byte content-hash prefix the exact set stores. The
// full hex hash still flows to the ledger; the set only needs enough of it
// to make collisions negligible, at half the resident size.
type exactKey [16]byte

// exactKeyFor decodes the leading 16 bytes of a hex content hash.
func exactKeyFor(hexHash string) exactKey {
	var key exactKey
	// record.TextHash always yields 64 hex characters.
	hex.Decode(key[:], []byte(hexHash[:2*len(key)]))

	return key
}

// Match identifies the stored document a near-duplicate query hit.
type Match struct {
	// ID is the stored document's record id.
	ID string

	// Similarity is the exact Jaccard index between the shingle sets.
	Similarity float64
}

// Engine deduplicates admitted records. It is not safe for concurrent use;
// the pipeline owns one engine per source.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	hashes   map[exactKey]struct{}
	index    *lsh.Index
	shingles map[string][]string
}

// New builds an empty engine. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	index, err := lsh.New(cfg.NumBands, cfg.NumRows)
	if err != nil {
		return nil, fmt.Errorf("dedup: build index: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		hashes:   make(map[exactKey]struct{}),
		index:    index,
		shingles: make(map[string][]string),
	}, nil
}

// CheckExact reports whether identical text was already admitted. The
// returned hash is the hex content hash recorded in the crawl ledger.
// Texts below MinDedupRunes bypass the lookup.
func (e *Engine) CheckExact(text string) (string, bool) {
	hash := record.TextHash(text)

	if bypass(text) {
		return hash, false
	}

	_, dup := e.hashes[exactKeyFor(hash)]

	return hash, dup
}

// CheckNear reports whether a stored document is a near-duplicate of text.
// LSH candidates are confirmed with exact Jaccard similarity against the
// stored shingle sets; the best confirmed match at or above the threshold
// wins, with ties resolving to the lowest id. The candidate equal to id is
// skipped so re-checking an admitted record never matches itself.
// Texts below MinDedupRunes bypass the check.
func (e *Engine) CheckNear(id, text string) (Match, bool, error) {
	if bypass(text) {
		return Match{}, false, nil
	}

	shingles := shingleSet(text, e.cfg.ShingleSize)

	sig, err := buildSignature(shingles, e.cfg.NumHashes)
	if err != nil {
		return Match{}, false, err
	}

	candidates, err := e.index.Query(sig)
	if err != nil {
		return Match{}, false, fmt.Errorf("dedup: query index: %w", err)
	}

	sort.Strings(candidates)

	var best Match

	for _, candidate := range candidates {
		if candidate == id {
			continue
		}

		similarity := jaccard(shingles, e.shingles[candidate])
		if similarity >= e.cfg.Threshold && similarity > best.Similarity {
			best = Match{ID: candidate, Similarity: similarity}
		}
	}

	if best.ID == "" {
		return Match{}, false, nil
	}

	return best, true, nil
}

// Insert admits text into both layers under the given record id.
// Texts below MinDedupRunes are never indexed.
func (e *Engine) Insert(id, text string) error {
	if bypass(text) {
		return nil
	}

	e.hashes[exactKeyFor(record.TextHash(text))] = struct{}{}

	shingles := shingleSet(text, e.cfg.ShingleSize)

	sig, err := buildSignature(shingles, e.cfg.NumHashes)
	if err != nil {
		return err
	}

	if err := e.index.Insert(id, sig); err != nil {
		return fmt.Errorf("dedup: index insert: %w", err)
	}

	e.shingles[id] = shingles

	return nil
}

// Size reports the number of exact hashes and indexed documents held.
func (e *Engine) Size() (exact, indexed int) {
	return len(e.hashes), e.index.Len()
}

// bypass reports whether text is too short to deduplicate.
func bypass(text string) bool {
	return utf8.RuneCountInString(text) < MinDedupRunes
}

// shingleSet returns the sorted distinct rune n-grams of text. Texts shorter
// than the shingle size collapse to a single whole-text shingle.
func shingleSet(text string, size int) []string {
	runes := []rune(text)

	if len(runes) < size {
		return []string{text}
	}

	set := make(map[string]struct{}, len(runes))

	for i := 0; i+size <= len(runes); i++ {
		set[string(runes[i:i+size])] = struct{}{}
	}

	return mapx.SortedKeys(set)
}

// buildSignature hashes every shingle into a fresh MinHash signature.
func buildSignature(shingles []string, numHashes int) (*minhash.Signature, error) {
	sig, err := minhash.New(numHashes)
	if err != nil {
		return nil, fmt.Errorf("dedup: build signature: %w", err)
	}

	for _, s := range shingles {
		sig.Add([]byte(s))
	}

	return sig, nil
}

// jaccard computes the exact Jaccard index of two sorted shingle sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	inter := 0
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	union := len(a) + len(b) - inter

	return float64(inter) / float64(union)
}
