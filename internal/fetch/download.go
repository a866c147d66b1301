package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
)

// partSuffix marks an in-progress transfer next to its destination.
const partSuffix = ".part"

// Download streams rawURL to destPath, resuming a previous partial
// transfer via an HTTP Range request. The payload appears at destPath
// only after the transfer completes; partial state lives at
// destPath + ".part" and survives process crashes. An existing destPath
// short-circuits with zero bytes transferred.
//
// Unlike Get, no per-request timeout applies: multi-gigabyte dump
// transfers are bounded by ctx alone.
func (c *Client) Download(ctx context.Context, rawURL, destPath string) (int64, error) {
	if _, err := os.Stat(destPath); err == nil {
		c.logger.Debug("download already complete", "path", destPath)

		return 0, nil
	}
	if !c.Allowed(rawURL) {
		return 0, fmt.Errorf("fetch: %s: disallowed by robots.txt: %w", rawURL, sources.ErrPermanent)
	}
	if err := c.reserveBudget(); err != nil {
		return 0, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, sources.Transient(err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, sources.Permanent(fmt.Errorf("fetch: download dir: %w", err))
	}

	partPath := destPath + partSuffix
	part, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, sources.Permanent(fmt.Errorf("fetch: open partial %s: %w", partPath, err))
	}
	defer part.Close()

	info, err := part.Stat()
	if err != nil {
		return 0, sources.Permanent(fmt.Errorf("fetch: stat partial %s: %w", partPath, err))
	}
	offset := info.Size()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, sources.Permanent(fmt.Errorf("fetch: build request for %s: %w", rawURL, err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return 0, c.classifyNetErr(ctx, rawURL, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusPartialContent:
		if _, err := part.Seek(0, io.SeekEnd); err != nil {
			return 0, sources.Permanent(fmt.Errorf("fetch: seek partial: %w", err))
		}
	case http.StatusOK:
		// Server ignored the range; restart the payload from scratch.
		offset = 0
		if err := part.Truncate(0); err != nil {
			return 0, sources.Permanent(fmt.Errorf("fetch: truncate partial: %w", err))
		}
		if _, err := part.Seek(0, io.SeekStart); err != nil {
			return 0, sources.Permanent(fmt.Errorf("fetch: seek partial: %w", err))
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file already spans the payload.
		if err := part.Close(); err != nil {
			return 0, sources.Transient(fmt.Errorf("fetch: close partial: %w", err))
		}
		if err := os.Rename(partPath, destPath); err != nil {
			return 0, sources.Permanent(fmt.Errorf("fetch: finalize %s: %w", destPath, err))
		}

		return 0, nil
	default:
		return 0, classifyStatus(rawURL, res.StatusCode)
	}

	n, err := io.Copy(part, res.Body)
	if err != nil {
		// The partial stays on disk; the next attempt resumes at offset.
		return n, sources.Transient(fmt.Errorf("fetch: download %s interrupted at %s: %w",
			rawURL, humanize.IBytes(uint64(offset+n)), err))
	}
	if err := part.Sync(); err != nil {
		return n, sources.Transient(fmt.Errorf("fetch: sync partial: %w", err))
	}
	if err := part.Close(); err != nil {
		return n, sources.Transient(fmt.Errorf("fetch: close partial: %w", err))
	}
	if err := os.Rename(partPath, destPath); err != nil {
		return n, sources.Permanent(fmt.Errorf("fetch: finalize %s: %w", destPath, err))
	}

	c.logger.Info("download complete",
		"url", rawURL,
		"path", destPath,
		"bytes", humanize.IBytes(uint64(offset+n)),
		"resumed_at", offset,
		"took", time.Since(start).Round(time.Millisecond))

	return n, nil
}
