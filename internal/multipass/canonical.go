package multipass

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// trackingParams are dropped from query strings before comparing URLs.
var trackingParams = map[string]bool{
	"gclid":  true,
	"fbclid": true,
}

// CanonicalURL normalizes a URL for dedup: scheme and host are lowercased,
// the fragment and tracking parameters (utm_*, gclid, fbclid) are removed,
// and the path and remaining query are kept in their original order. It
// returns "" when raw is empty or cannot be parsed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = stripTracking(u.RawQuery)
	u.ForceQuery = false
	return u.String()
}

func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		key = strings.ToLower(key)
		if strings.HasPrefix(key, "utm_") || trackingParams[key] {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	titleSuffix = regexp.MustCompile(`\s*\|\s*(home|docs|documentation)$`)
)

// NormalizeTitle folds a page title for approximate dedup.
func NormalizeTitle(title string) string {
	t := norm.NFKC.String(title)
	t = strings.ToLower(strings.TrimSpace(t))
	t = spaceRun.ReplaceAllString(t, " ")
	return titleSuffix.ReplaceAllString(t, "")
}

// Domain returns the lowercased host of raw, or "".
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
