package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CrawlPolicyConfig is the cross-source allow/disallow/paywall/attribution
// policy layered on top of each MonitorSource's own per-source settings:
// MonitorSource scopes what one source may do, CrawlPolicyConfig scopes
// what the whole deployment is permitted to touch.
type CrawlPolicyConfig struct {
	RespectRobots bool              `mapstructure:"respect_robots"`
	Allow         []string          `mapstructure:"allow"`
	Disallow      []string          `mapstructure:"disallow"`
	Paywall       []string          `mapstructure:"paywall"`
	Attribution   map[string]string `mapstructure:"attribution"`
}

// Normalize lowercases hosts, strips "www.", and de-duplicates each list.
func (c CrawlPolicyConfig) Normalize() CrawlPolicyConfig {
	norm := c
	norm.Allow = sanitizeDomainList(norm.Allow)
	norm.Disallow = sanitizeDomainList(norm.Disallow)
	norm.Paywall = sanitizeDomainList(norm.Paywall)
	normalizedAttr := make(map[string]string, len(norm.Attribution))
	for host, val := range norm.Attribution {
		key := normalizeHost(host)
		if key == "" {
			continue
		}
		normalizedAttr[key] = strings.TrimSpace(val)
	}
	norm.Attribution = normalizedAttr
	return norm
}

// Validate ensures configured policy entries do not conflict and are well-formed.
func (c CrawlPolicyConfig) Validate() error {
	norm := c.Normalize()

	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	disallow := make(map[string]struct{}, len(norm.Disallow))
	for _, host := range norm.Disallow {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("crawl policy conflict: host %q present in both allow and disallow lists", host)
		}
		disallow[host] = struct{}{}
	}
	for _, host := range norm.Paywall {
		if _, ok := disallow[host]; ok {
			return fmt.Errorf("crawl policy conflict: host %q marked disallow and paywall", host)
		}
	}
	return nil
}

// IsDisallowed reports whether host (or its bare URL) is blocked outright.
func (c CrawlPolicyConfig) IsDisallowed(hostOrURL string) bool {
	host := normalizeHost(hostOrURL)
	if host == "" {
		return false
	}
	norm := c.Normalize()
	if len(norm.Allow) > 0 {
		for _, h := range norm.Allow {
			if h == host {
				return false
			}
		}
		return true
	}
	for _, h := range norm.Disallow {
		if h == host {
			return true
		}
	}
	return false
}

// IsPaywalled reports whether host is on the paywall list. No pipeline
// phase consults it: Phase 2 summarizes a paywalled page from whatever
// text its fetch returns, like any other page.
func (c CrawlPolicyConfig) IsPaywalled(hostOrURL string) bool {
	host := normalizeHost(hostOrURL)
	if host == "" {
		return false
	}
	for _, h := range c.Normalize().Paywall {
		if h == host {
			return true
		}
	}
	return false
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		}
	}
	return strings.TrimPrefix(value, "www.")
}
