// Package fetch provides the polite HTTP acquisition layer shared by the
// web-facing source adapters: token-bucket pacing, robots awareness,
// randomized crawl delays, a persistent per-source request budget, and
// failure classification into the acquisition error classes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
)

// Client defaults, applied by Config.normalize.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultRequestsPerHour = 300
	DefaultMaxBodyBytes    = 20 << 20

	// quotaWindow is the rolling window the persistent request budget
	// covers.
	quotaWindow = time.Hour

	secondsPerHour = 3600
)

// QuotaGate accounts requests against a persistent per-source budget
// that survives process restarts. *ledger.Store implements it; a nil
// gate leaves only the in-process token bucket.
type QuotaGate interface {
	RecordRequest(source string) error
	QuotaRemaining(source string, window time.Duration, limit int) (int, error)
}

// Config tunes one source's acquisition client.
type Config struct {
	// Source is the canonical source name used for budget accounting.
	Source string

	// UserAgent identifies the crawler on every request.
	UserAgent string

	// Timeout bounds a single Get exchange including the body read.
	// Download ignores it; long transfers are bounded by the caller's
	// context instead.
	Timeout time.Duration

	// MinDelay and MaxDelay bound the uniform random pause inserted
	// before every request, on top of the token bucket.
	MinDelay time.Duration
	MaxDelay time.Duration

	// RequestsPerHour sizes both the token bucket and the persistent
	// budget window.
	RequestsPerHour int

	// MaxBodyBytes caps one Get body read.
	MaxBodyBytes int64
}

func (c *Config) normalize() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RequestsPerHour <= 0 {
		c.RequestsPerHour = DefaultRequestsPerHour
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
}

// Result is one completed HTTP exchange. On status errors it still
// carries the code so callers can count it.
type Result struct {
	// Body is the response payload, capped at MaxBodyBytes.
	Body []byte

	// StatusCode is the final HTTP status after redirects.
	StatusCode int

	// Bytes is the number of body bytes read.
	Bytes int64

	// Took is the wall clock of the exchange itself, excluding pacing
	// waits so latency percentiles reflect the upstream, not our own
	// throttle.
	Took time.Duration

	// URL is the final URL after redirects.
	URL string
}

// Client is a polite HTTP client for one source. Safe for concurrent
// use; pacing is serialized through the shared token bucket.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	gate    QuotaGate
	logger  *slog.Logger

	mu     sync.Mutex
	robots map[string]robotsEntry
	rng    pacerRNG
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds a client from cfg. The token bucket refills at
// RequestsPerHour spread evenly across the hour with a burst of one, so
// request starts are spaced at least 3600/RequestsPerHour seconds apart.
func New(cfg Config, gate QuotaGate, logger *slog.Logger) *Client {
	cfg.normalize()
	perSecond := float64(cfg.RequestsPerHour) / secondsPerHour

	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		gate:    gate,
		logger:  logger,
		robots:  make(map[string]robotsEntry),
		rng:     newPacerRNG(cfg.Source),
		sleep:   ctxSleep,
	}
}

// Get fetches rawURL after clearing robots, the request budget, the
// token bucket, and the politeness delay, in that order.
func (c *Client) Get(ctx context.Context, rawURL string) (*Result, error) {
	if !c.Allowed(rawURL) {
		return nil, fmt.Errorf("fetch: %s: disallowed by robots.txt: %w", rawURL, sources.ErrPermanent)
	}
	if err := c.reserveBudget(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, sources.Transient(err)
	}
	if err := c.politeDelay(ctx); err != nil {
		return nil, sources.Transient(err)
	}

	return c.exchange(ctx, rawURL)
}

// reserveBudget burns one request from the persistent hourly budget,
// failing with ErrBudgetExhausted once the window is spent.
func (c *Client) reserveBudget() error {
	if c.gate == nil {
		return nil
	}

	remaining, err := c.gate.QuotaRemaining(c.cfg.Source, quotaWindow, c.cfg.RequestsPerHour)
	if err != nil {
		return sources.Transient(fmt.Errorf("fetch: request budget lookup: %w", err))
	}
	if remaining <= 0 {
		return fmt.Errorf("fetch: %s spent its hourly request budget (%d): %w",
			c.cfg.Source, c.cfg.RequestsPerHour, sources.ErrBudgetExhausted)
	}
	if err := c.gate.RecordRequest(c.cfg.Source); err != nil {
		return sources.Transient(fmt.Errorf("fetch: request budget record: %w", err))
	}

	return nil
}

// politeDelay sleeps a uniform random duration in [MinDelay, MaxDelay].
func (c *Client) politeDelay(ctx context.Context) error {
	if c.cfg.MaxDelay <= 0 {
		return nil
	}

	d := c.cfg.MinDelay
	if span := c.cfg.MaxDelay - c.cfg.MinDelay; span > 0 {
		c.mu.Lock()
		d += time.Duration(c.rng.next() % uint64(span))
		c.mu.Unlock()
	}

	return c.sleep(ctx, d)
}

// exchange performs the HTTP round trip and classifies the outcome.
func (c *Client) exchange(ctx context.Context, rawURL string) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, sources.Permanent(fmt.Errorf("fetch: build request for %s: %w", rawURL, err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Language", "so,en;q=0.5")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, c.classifyNetErr(ctx, rawURL, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, c.cfg.MaxBodyBytes))
	took := time.Since(start)
	result := &Result{
		Body:       body,
		StatusCode: res.StatusCode,
		Bytes:      int64(len(body)),
		Took:       took,
		URL:        res.Request.URL.String(),
	}
	if err != nil {
		return result, c.classifyNetErr(ctx, rawURL, err)
	}

	return result, classifyStatus(rawURL, res.StatusCode)
}

// classifyNetErr maps transport failures onto the acquisition classes.
// Timeouts keep the word "timeout" in the message so ledger failure
// reasons stay greppable.
func (c *Client) classifyNetErr(ctx context.Context, rawURL string, err error) error {
	var uerr *url.Error
	timedOut := errors.Is(err, context.DeadlineExceeded)
	if errors.As(err, &uerr) && uerr.Timeout() {
		timedOut = true
	}
	if timedOut && ctx.Err() == nil {
		return fmt.Errorf("fetch: get %s: timeout after %s: %w", rawURL, c.cfg.Timeout, sources.ErrTransient)
	}

	return sources.Transient(fmt.Errorf("fetch: get %s: %w", rawURL, err))
}

// StatusError is a non-2xx exchange. It unwraps to the acquisition
// class the status implies, and keeps the code addressable so failure
// statuses still land in the metrics distribution.
type StatusError struct {
	URL   string
	Code  int
	class error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: get %s: http %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return e.class }

// classifyStatus maps an HTTP status onto the acquisition classes.
func classifyStatus(rawURL string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return &StatusError{URL: rawURL, Code: code, class: sources.ErrNotFound}
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return &StatusError{URL: rawURL, Code: code, class: sources.ErrTransient}
	default:
		return &StatusError{URL: rawURL, Code: code, class: sources.ErrPermanent}
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pacerRNG is a fast, non-cryptographic PRNG for delay spreading. It
// avoids math/rand which triggers gosec G404.
type pacerRNG struct {
	state uint64
}

// splitmix64 mixing constants.
const (
	pacerInc    = 0x9e3779b97f4a7c15
	pacerMix1   = 0xbf58476d1ce4e5b9
	pacerMix2   = 0x94d049bb133111eb
	pacerShift1 = 30
	pacerShift2 = 27
	pacerShift3 = 31
)

func newPacerRNG(seed string) pacerRNG {
	var state uint64 = pacerInc
	for _, b := range []byte(seed) {
		state = (state ^ uint64(b)) * pacerMix1
	}

	return pacerRNG{state: state ^ uint64(time.Now().UnixNano())}
}

func (r *pacerRNG) next() uint64 {
	r.state += pacerInc

	z := r.state
	z = (z ^ (z >> pacerShift1)) * pacerMix1
	z = (z ^ (z >> pacerShift2)) * pacerMix2

	return z ^ (z >> pacerShift3)
}

// trimHostPort strips a default port from host for canonical forms.
func trimHostPort(scheme, host string) string {
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	default:
		return host
	}
}
