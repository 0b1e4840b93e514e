package types

import (
	"net/url"
	"strings"
)

// CanonicalizeURL lower-cases scheme/host, strips the fragment, removes
// port 80 or 443 (whatever the scheme), and normalizes http to https, matching §3's
// invariant and the GLOSSARY's "Canonical URL" entry. It is idempotent:
// CanonicalizeURL(CanonicalizeURL(u)) == CanonicalizeURL(u).
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if port == "80" || port == "443" {
		u.Host = host
	}
	return u.String(), nil
}

// SameOrSubdomain reports whether host equals root or is a subdomain of
// root (suffix match on "."+root), the default cross-domain policy of §4.1.
func SameOrSubdomain(host, root string) bool {
	host = strings.ToLower(host)
	root = strings.ToLower(root)
	if host == root {
		return true
	}
	return strings.HasSuffix(host, "."+root)
}
