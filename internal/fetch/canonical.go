package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

// Tracking query parameters stripped during canonicalization: the
// generic campaign tags plus the AT Internet and social-share tags BBC
// properties append to article links.
var (
	trackingExact = map[string]struct{}{
		"fbclid":  {},
		"gclid":   {},
		"msclkid": {},
		"mc_cid":  {},
		"mc_eid":  {},
		"igshid":  {},
		"ocid":    {},
		"xtor":    {},
	}

	trackingPrefixes = []string{"utm_", "at_"}
)

// CanonicalURL normalizes rawURL into the form used for ledger keys and
// discovery dedup: lowercase scheme and host, default port stripped,
// fragment dropped, tracking parameters removed, remaining query sorted
// by key, empty path mapped to "/". Two spellings of the same page
// canonicalize identically, so the ledger sees one entry for both.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("fetch: canonicalize %q: %w", rawURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("fetch: canonicalize %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("fetch: canonicalize %q: not absolute", rawURL)
	}

	u.Host = trimHostPort(u.Scheme, strings.ToLower(u.Host))
	u.Fragment = ""
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if _, ok := trackingExact[key]; ok {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}

	return false
}

// Resolve joins a possibly relative href against base and canonicalizes
// the result. Discovery uses it to normalize scraped links in one step.
func Resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("fetch: resolve %q: %w", href, err)
	}

	return CanonicalURL(base.ResolveReference(ref).String())
}
