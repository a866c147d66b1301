package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
)

// robotsEntry is one host's cached crawl policy. A nil group with deny
// unset allows everything.
type robotsEntry struct {
	group *robotstxt.Group
	deny  bool
}

// LoadRobots fetches and caches the robots policy for pageURL's host.
// Adapters call it once per host before discovery; Get consults the
// cache on every request. A missing robots.txt (404) allows everything
// and a 5xx denies everything, per the crawler conventions the
// robotstxt library encodes. Hosts with no loaded policy are allowed.
func (c *Client) LoadRobots(ctx context.Context, pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return sources.Permanent(fmt.Errorf("fetch: robots: not an absolute url: %q", pageURL))
	}
	hostKey := strings.ToLower(u.Host)

	c.mu.Lock()
	_, loaded := c.robots[hostKey]
	c.mu.Unlock()
	if loaded {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return sources.Transient(err)
	}
	res, xerr := c.exchange(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
	if res == nil {
		return fmt.Errorf("fetch: robots for %s: %w", hostKey, xerr)
	}

	entry := robotsEntry{}
	data, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		// No usable policy; crawl nothing on this host.
		entry.deny = true
		c.logger.Warn("robots policy unusable, denying host",
			"host", hostKey, "status", res.StatusCode, "error", err.Error())
	} else {
		entry.group = data.FindGroup(c.cfg.UserAgent)
	}

	c.mu.Lock()
	c.robots[hostKey] = entry
	c.mu.Unlock()
	c.logger.Debug("robots policy loaded", "host", hostKey, "status", res.StatusCode)

	return nil
}

// Allowed reports whether the cached robots policy permits fetching
// rawURL. Hosts without a loaded policy are permitted; malformed URLs
// are not.
func (c *Client) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	c.mu.Lock()
	entry, ok := c.robots[strings.ToLower(u.Host)]
	c.mu.Unlock()

	switch {
	case !ok:
		return true
	case entry.deny:
		return false
	case entry.group == nil:
		return true
	default:
		return entry.group.Test(u.RequestURI())
	}
}
