// Package browser is the headless-browser page fetcher: it renders a URL,
// extracts main text via readability, walks the link list via goquery,
// extracts publication dates from DOM text and URL patterns, and builds a
// speculative "candidates" list of article entries. It enforces per-host
// pacing and a configurable cross-domain policy.
package browser

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/policywatch/collector/internal/config"
	"github.com/policywatch/collector/internal/telemetry"
	"github.com/policywatch/collector/internal/types"
)

// metrics is nil until SetMetrics is called; every recording site below is
// nil-safe so callers/tests that skip telemetry wiring are unaffected.
var metrics *telemetry.Metrics

// SetMetrics wires the process-wide Prometheus instruments. Call once at
// startup, before BrowsePage is ever invoked concurrently.
func SetMetrics(m *telemetry.Metrics) { metrics = m }

type Status string

const (
	StatusSuccess    Status = "success"
	StatusLoadFailed Status = "load_failed"
	StatusTimeout    Status = "timeout"
)

type Link struct {
	AnchorText string
	AbsoluteURL string
}

// Candidate is a speculative article entry extracted by deterministic
// heuristics, before any LLM involvement.
type Candidate struct {
	Title     string
	URL       string
	DateGuess string // ISO YYYY-MM-DD, or "" if unresolved
}

type PageObservation struct {
	Text       string
	Links      []Link
	Candidates []Candidate
	FinalURL   string
	Status     Status
	Error      string
}

type Options struct {
	UserAgent        string
	AllowCrossDomain bool
	RootHost         string // used for the cross-domain filter
}

// Tool fetches and observes one page. It owns the per-host pacing map and
// is safe for concurrent use across goroutines: each call reserves the
// next pacing slot for its host under the mutex, so calls against one
// host start at least pacingDelay apart even when they come from
// concurrent goroutines (as Phase 2's summarization does).
type Tool struct {
	timeout     time.Duration
	maxChars    int
	userAgent   string
	pacingDelay time.Duration

	mu       sync.Mutex
	lastHit  map[string]time.Time
}

func New(cfg config.BrowserConfig) *Tool {
	timeout := cfg.TimeoutMS
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxChars := cfg.MaxChars
	if maxChars == 0 {
		maxChars = 15000
	}
	pacing := cfg.HostPacingDelay
	if pacing == 0 {
		pacing = 2 * time.Second
	}
	return &Tool{
		timeout:     timeout,
		maxChars:    maxChars,
		userAgent:   cfg.UserAgent,
		pacingDelay: pacing,
		lastHit:     make(map[string]time.Time),
	}
}

// BrowsePage renders rawURL and returns a structured observation. It never
// returns a Go error for page-load failures — those come back as a
// load_failed observation per §4.1 — only for a malformed input URL.
func (t *Tool) BrowsePage(ctx context.Context, rawURL string, opts Options) (PageObservation, error) {
	if strings.TrimSpace(rawURL) == "" {
		return PageObservation{}, types.NewTaxonomyError(types.KindInternal, "empty url", nil)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return PageObservation{}, types.NewTaxonomyError(types.KindInternal, "invalid url", err)
	}

	t.awaitHostPacing(u.Hostname())

	ctxTimeout, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	html, finalURL, err := t.fetchHTML(ctxTimeout, rawURL)
	if err != nil {
		if metrics != nil {
			metrics.FetchFailures.WithLabelValues(u.Hostname()).Inc()
		}
		return PageObservation{Status: StatusLoadFailed, Error: err.Error(), FinalURL: rawURL}, nil
	}
	if metrics != nil {
		metrics.PagesFetched.WithLabelValues(u.Hostname()).Inc()
	}

	obs := PageObservation{FinalURL: finalURL, Status: StatusSuccess}

	article, err := readability.FromReader(strings.NewReader(html), u)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) > t.maxChars {
			text = text[:t.maxChars] + "\n...[truncated]"
		}
		obs.Text = text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		rootHost := opts.RootHost
		if rootHost == "" {
			rootHost = u.Hostname()
		}
		obs.Links, obs.Candidates = extractLinksAndCandidates(doc, u, rootHost, opts.AllowCrossDomain)
	}

	return obs, nil
}

func (t *Tool) awaitHostPacing(host string) {
	t.mu.Lock()
	slot := time.Now()
	if last, seen := t.lastHit[host]; seen {
		if next := last.Add(t.pacingDelay); next.After(slot) {
			slot = next
		}
	}
	t.lastHit[host] = slot
	t.mu.Unlock()
	if wait := time.Until(slot); wait > 0 {
		time.Sleep(wait)
	}
}

func (t *Tool) fetchHTML(ctx context.Context, rawURL string) (string, string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(t.userAgentOrDefault()),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html, finalURL string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if finalURL == "" {
		finalURL = rawURL
	}
	return html, finalURL, err
}

func (t *Tool) userAgentOrDefault() string {
	if t.userAgent != "" {
		return t.userAgent
	}
	return "Mozilla/5.0 (compatible; policywatch/1.0)"
}

// HTMLHash is exposed for callers that want a stable fingerprint of a
// fetched page (e.g. change detection between runs); not used by the
// core phases but kept as a small, cheap utility in the teacher's idiom
// of hashing fetched HTML.
func HTMLHash(html string) string {
	sum := sha1.Sum([]byte(html))
	return hex.EncodeToString(sum[:])
}

// extractLinksAndCandidates walks every <a href> in the document. For each
// it resolves an absolute URL, reads the nearest date context (the
// enclosing <li> or parent's text), applies the cross-domain filter, and
// builds the candidates list from links carrying a resolvable date.
func extractLinksAndCandidates(doc *goquery.Document, base *url.URL, rootHost string, allowCrossDomain bool) ([]Link, []Candidate) {
	var links []Link
	var candidates []Candidate
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || strings.HasPrefix(href, "javascript") {
			return
		}
		abs, err := base.Parse(href)
		if err != nil {
			return
		}
		if !allowCrossDomain && !types.SameOrSubdomain(abs.Hostname(), rootHost) {
			return
		}

		text := strings.TrimSpace(sel.Text())
		if title, exists := sel.Attr("title"); exists && len(strings.TrimSpace(title)) > len(text) {
			text = strings.TrimSpace(title)
		}
		if len(text) > 150 {
			text = text[:150]
		}
		if text == "" {
			return
		}

		absStr := abs.String()
		if !seen[absStr] {
			seen[absStr] = true
			links = append(links, Link{AnchorText: text, AbsoluteURL: absStr})
		}

		date := extractDateFromText(contextText(sel))
		if date == "" {
			date = extractDateFromURL(absStr)
		}
		if date != "" && len(text) >= 8 {
			candidates = append(candidates, Candidate{Title: text, URL: absStr, DateGuess: date})
		}
	})

	if len(links) > 200 {
		links = links[:200]
	}
	return links, candidates
}

// contextText returns the enclosing <li>'s text if present, else the
// anchor's own parent's text, mirroring the original's "closest li or
// parentElement" DOM-distance heuristic.
func contextText(sel *goquery.Selection) string {
	if li := sel.Closest("li"); li.Length() > 0 {
		return li.Text()
	}
	return sel.Parent().Text()
}
