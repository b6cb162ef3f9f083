package services

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateReference checks that raw is an http(s) URL whose host is one of
// the allowed domains or a subdomain of one. It returns the normalized URL.
func ValidateReference(raw string, allowed []string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty link: %w", ErrInvalidReference)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, ErrInvalidReference)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("scheme %q not allowed: %w", u.Scheme, ErrInvalidReference)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return "", fmt.Errorf("missing host: %w", ErrInvalidReference)
	}
	for _, d := range allowed {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			u.Host = strings.ToLower(u.Host)
			u.Fragment = ""
			return u.String(), nil
		}
	}
	return "", fmt.Errorf("domain %q not allowed: %w", host, ErrInvalidReference)
}
