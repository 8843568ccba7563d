package common

import (
	"net/url"
	"strings"
)

// IsValidURL reports whether the value parses as an absolute http(s) URL.
// Recipe sources are either web URLs or book titles; anything that fails
// this check is treated as a book title.
func IsValidURL(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// SiteNameFromURL derives the display name for a web source: the hostname
// with any leading "www." stripped and the port dropped.
// "https://www.example.com/recipe" -> "example.com".
func SiteNameFromURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	host := parsed.Hostname()
	host = strings.TrimPrefix(host, "www.")
	return host
}
