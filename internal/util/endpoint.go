package util

import (
	"net/url"
	"strings"
)

// NormalizeEndpoint trims surrounding whitespace. Providers register exact URLs,
// so nothing else is rewritten.
func NormalizeEndpoint(raw string) string {
	return strings.TrimSpace(raw)
}

// IsHTTPURL reports whether raw is an absolute http(s) URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(NormalizeEndpoint(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// RedactEndpoint keeps scheme and host only, for logs.
func RedactEndpoint(raw string) string {
	u, err := url.Parse(NormalizeEndpoint(raw))
	if err != nil || u.Host == "" {
		return "invalid-endpoint"
	}
	return u.Scheme + "://" + u.Host
}
