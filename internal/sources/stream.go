package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
)

// Stream defaults, applied by StreamConfig.normalize.
const (
	defaultStreamBuffer = 64
	defaultMaxAttempts  = 3
	defaultBackoffBase  = time.Second
)

// Item is one element of the acquisition stream: either a record or a
// unit completion marker carrying the unit's outcome.
type Item struct {
	// Unit is the work unit this item belongs to.
	Unit WorkUnit

	// Record reports whether Raw and Fetched are valid. False marks the
	// unit's completion.
	Record bool

	// Raw is the emitted record when Record is true.
	Raw record.Raw

	// Fetched describes how the record's payload was obtained.
	Fetched Fetched

	// Err is the unit's terminal error on completion markers: nil on
	// success, otherwise classified by the failure classes above.
	Err error

	// Attempts is the number of Acquire attempts spent on the unit.
	Attempts int

	// Took is the wall clock of the final Acquire attempt.
	Took time.Duration
}

// StreamConfig bounds acquisition fan-out and retry behavior.
type StreamConfig struct {
	// Workers is the number of concurrent Acquire calls. Adapters that
	// keep per-run cursors (dump readers, API pagination) require 1.
	Workers int

	// Buffer is the channel capacity between adapter and pipeline.
	Buffer int

	// MaxAttempts bounds Acquire attempts per unit. Transient failures
	// are retried with exponential backoff and full jitter; everything
	// else fails the unit immediately.
	MaxAttempts int

	// BackoffBase is the backoff ceiling of the first retry; each retry
	// doubles the ceiling.
	BackoffBase time.Duration

	// sleep is swapped in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func (c *StreamConfig) normalize() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Buffer < 1 {
		c.Buffer = defaultStreamBuffer
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.sleep == nil {
		c.sleep = ctxSleep
	}
}

// Stream drives Acquire over units with cfg.Workers goroutines and
// yields records plus per-unit outcomes on a bounded channel, closed
// once every unit is done or the context ends. Records within a unit
// arrive in emission order; unit interleaving follows worker scheduling.
//
// A unit that fails with ErrBudgetExhausted halts scheduling: units not
// yet started produce no items at all and keep their ledger state.
func Stream(ctx context.Context, a Adapter, units []WorkUnit, cfg StreamConfig, logger *slog.Logger) <-chan Item {
	cfg.normalize()
	out := make(chan Item, cfg.Buffer)
	unitCh := make(chan WorkUnit)

	var halted atomic.Bool

	go func() {
		defer close(unitCh)
		for _, u := range units {
			if halted.Load() {
				return
			}
			select {
			case unitCh <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range unitCh {
				item := acquireUnit(ctx, a, unit, out, cfg, logger)
				if errors.Is(item.Err, ErrBudgetExhausted) {
					halted.Store(true)
				}
				select {
				case out <- item:
				case <-ctx.Done():
					// The run is being torn down; the marker has no
					// consumer anymore.
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// acquireUnit runs Acquire with the retry policy and returns the unit's
// completion marker. Records are sent on out as the adapter emits them.
func acquireUnit(ctx context.Context, a Adapter, unit WorkUnit, out chan<- Item, cfg StreamConfig, logger *slog.Logger) Item {
	item := Item{Unit: unit}
	rng := newJitter(unit.URL)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		item.Attempts = attempt

		var emitted int64
		emit := func(rec record.Raw, f Fetched) error {
			select {
			case out <- Item{Unit: unit, Record: true, Raw: rec, Fetched: f}:
				emitted++

				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		err := safeAcquire(ctx, a, unit, emit)
		item.Took = time.Since(start)

		if err == nil {
			item.Err = nil

			return item
		}
		if ctx.Err() != nil {
			item.Err = Transient(ctx.Err())

			return item
		}
		if !errors.Is(err, ErrTransient) {
			if !Classified(err) {
				err = Permanent(err)
			}
			item.Err = err

			return item
		}
		if attempt == cfg.MaxAttempts {
			item.Err = err

			return item
		}
		if emitted > 0 {
			// Records from the broken attempt already flowed downstream;
			// replaying the unit would duplicate them. The ledger makes a
			// whole-unit retry safe on the next run, not within this one.
			item.Err = fmt.Errorf("%w: stream broke after %d records: %v", ErrPermanent, emitted, err)

			return item
		}

		backoff := jitteredBackoff(rng, cfg.BackoffBase, attempt)
		logger.Warn("acquire retry",
			slog.String("url", unit.URL),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))
		if serr := cfg.sleep(ctx, backoff); serr != nil {
			item.Err = Transient(serr)

			return item
		}
	}

	return item
}

// safeAcquire converts adapter panics into permanent failures so one
// malformed payload cannot take down the run.
func safeAcquire(ctx context.Context, a Adapter, unit WorkUnit, emit EmitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: adapter panic: %v", ErrPermanent, r)
		}
	}()

	return a.Acquire(ctx, unit, emit)
}

// jitteredBackoff returns a uniform duration in [0, base<<(attempt-1)),
// the full-jitter scheme: concurrent retries spread out instead of
// thundering together.
func jitteredBackoff(rng *jitter, base time.Duration, attempt int) time.Duration {
	ceiling := base << (attempt - 1)
	if ceiling <= 0 {
		return 0
	}

	return time.Duration(rng.next() % uint64(ceiling))
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
