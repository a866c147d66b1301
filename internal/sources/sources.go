// Package sources defines the acquisition contract the ingestion pipeline
// drives. An Adapter represents one corpus source: it discovers units of
// work without touching payloads, then acquires each admitted unit and
// emits raw records in stream order. Stream fans Acquire out over a
// bounded worker pool and serializes everything back onto one channel,
// so the pipeline always consumes a single ordered record stream.
//
// Subpackages implement one adapter per source.
package sources

import (
	"context"
	"errors"
	"time"

	"github.com/somali-nlp/somali-dialect-classifier/internal/filter"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/textclean"
)

// Acquisition failure classes. Every error an adapter returns wraps one
// of these so the pipeline can pick the right ledger transition and the
// stream can pick the right retry policy.
var (
	// ErrNotFound marks a unit that no longer exists upstream (HTTP 404
	// or 410, a deleted row). The unit is recorded as skipped and never
	// retried.
	ErrNotFound = errors.New("sources: not found")

	// ErrTransient marks a failure worth retrying with backoff: timeouts,
	// connection resets, HTTP 429 and 5xx.
	ErrTransient = errors.New("sources: transient failure")

	// ErrPermanent marks a failure retrying cannot fix: auth rejections,
	// malformed payloads, robots exclusion.
	ErrPermanent = errors.New("sources: permanent failure")

	// ErrBudgetExhausted halts acquisition when the per-source request
	// budget for the current window is spent. Units not yet attempted
	// keep their discovered ledger state and are picked up next run.
	ErrBudgetExhausted = errors.New("sources: request budget exhausted")
)

// WorkUnit is one acquirable piece of work produced by Discover.
type WorkUnit struct {
	// URL is the canonical URL of the unit, or a stable scheme-prefixed
	// identifier for units not addressable by URL (hf://, sprakbanken://).
	URL string

	// Container marks units whose payload fans out into many records:
	// dump files, corpus files, API row streams. Container units are
	// always acquired; ledger admission applies per emitted record.
	Container bool

	// Metadata seeds the ledger entry and the emitted records (title,
	// file name, video id).
	Metadata map[string]any
}

// Fetched describes how one emitted record's payload was obtained.
// Container adapters attribute the enclosing transfer to the unit and
// report zero values per record unless each record costs its own I/O.
type Fetched struct {
	// HTTPStatus is the upstream status code, 0 when the payload did not
	// travel over HTTP (local file replay).
	HTTPStatus int

	// Bytes is the payload size attributed to this record.
	Bytes int64

	// Took is the wall-clock time spent obtaining this record's payload.
	Took time.Duration
}

// EmitFunc delivers one raw record downstream in stream order. It blocks
// while the pipeline applies back-pressure and returns the context error
// once the run ends; adapters must stop acquiring on a non-nil return.
type EmitFunc func(rec record.Raw, f Fetched) error

// Adapter is one corpus source. Implementations are single-use per run
// and need not be safe for concurrent Acquire calls unless they opt into
// Workers > 1 via their stream options.
type Adapter interface {
	// Descriptor identifies the source on silver records and ledger keys.
	Descriptor() record.SourceDescriptor

	// PipelineType selects the success-rate formulas applied to the run.
	PipelineType() quality.PipelineType

	// Cleaner returns the text normalization chain for this source.
	Cleaner() *textclean.Cleaner

	// Filters returns the quality predicate chain, in evaluation order.
	Filters() []filter.Predicate

	// Discover enumerates units of work without fetching payloads. It
	// must be idempotent: discovering twice yields the same units.
	Discover(ctx context.Context) ([]WorkUnit, error)

	// Acquire obtains one unit's payload and emits its records in order.
	// Returned errors wrap one of the failure classes above; anything
	// else is treated as permanent.
	Acquire(ctx context.Context, unit WorkUnit, emit EmitFunc) error
}

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return joinClass(ErrTransient, err)
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return joinClass(ErrPermanent, err)
}

// NotFound wraps err as a missing-unit failure.
func NotFound(err error) error {
	if err == nil {
		return nil
	}

	return joinClass(ErrNotFound, err)
}

// Classified reports whether err already carries one of the failure
// classes.
func Classified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrBudgetExhausted)
}

func joinClass(class, err error) error {
	if errors.Is(err, class) {
		return err
	}

	return classifiedError{class: class, err: err}
}

// classifiedError attaches a failure class to an error without losing
// the original chain.
type classifiedError struct {
	class error
	err   error
}

func (e classifiedError) Error() string {
	return e.class.Error() + ": " + e.err.Error()
}

func (e classifiedError) Unwrap() []error {
	return []error{e.class, e.err}
}
