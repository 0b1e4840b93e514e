package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/policywatch/collector/internal/browser"
	"github.com/policywatch/collector/internal/types"
)

const maxSupplementarySections = 3

type section struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// phase1a runs the deterministic homepage fast-path plus the one-shot LLM
// section-discovery call described in §4.4. The bool return is true when
// the crawl policy disallows the root URL (no fetch is made) or the
// homepage load fails.
func (o *Orchestrator) phase1a(ctx context.Context, source types.MonitorSource) ([]section, []types.ArticleItem, bool) {
	if o.policy.IsDisallowed(source.RootURL) {
		return nil, nil, true
	}
	obs, err := o.browser.BrowsePage(ctx, source.RootURL, browser.Options{RootHost: rootHost(source.RootURL), AllowCrossDomain: source.AllowCrossDomain})
	if err != nil || obs.Status != browser.StatusSuccess {
		return nil, nil, true
	}

	homepageItems := candidatesToItems(obs.Candidates)
	homepageItems = qualityFilter(ctx, o, source, homepageItems)

	maxSections := o.cfg.MaxSections
	if maxSections <= 0 {
		maxSections = 5
	}

	sections := o.identifySections(ctx, source, obs, maxSections)
	return sections, homepageItems, false
}

// qualityFilter applies the original's "_filter_homepage_items" pass: when
// more than 3 fast-path candidates were harvested, ask the LLM which ones
// actually match the source's focus areas, falling back to keeping all of
// them on any parse failure.
func qualityFilter(ctx context.Context, o *Orchestrator, source types.MonitorSource, items []types.ArticleItem) []types.ArticleItem {
	if len(items) <= 3 {
		return items
	}
	var listing strings.Builder
	for i, it := range items {
		fmt.Fprintf(&listing, "[%d] %s\n", i, it.Title)
	}
	prompt := fmt.Sprintf("Focus areas: %s\n\nCandidate items:\n%s\nReturn a JSON array of the indices of items that are relevant to the focus areas. If unsure, include the item.", strings.Join(source.FocusAreas, ", "), listing.String())
	text, err := o.llm.CompleteText(ctx, "You are filtering a candidate article list for relevance.", prompt)
	if err != nil {
		return items
	}
	idxs, ok := parseIntArray(text)
	if !ok {
		return items
	}
	out := make([]types.ArticleItem, 0, len(idxs))
	for _, i := range idxs {
		if i >= 0 && i < len(items) {
			out = append(out, items[i])
		}
	}
	return out
}

// identifySections asks the LLM for the source's list-page section URLs.
// On parse failure or zero sections, degrades to a single synthetic
// section pointing at the source's own root URL.
func (o *Orchestrator) identifySections(ctx context.Context, source types.MonitorSource, obs browser.PageObservation, maxSections int) []section {
	degrade := []section{{Name: source.DisplayName, URL: source.RootURL}}

	prompt := fmt.Sprintf(
		"Focus areas: %s\n\nPage text:\n%s\n\nLinks:\n%s\n\nReturn a strict JSON array of objects {\"name\":...,\"url\":...} naming the list-page (section) URLs of this site, not individual article URLs.",
		strings.Join(source.FocusAreas, ", "), truncate(obs.Text, 4000), formatLinks(obs.Links))

	text, err := o.llm.CompleteText(ctx, "You identify navigational section pages on a government/news website.", prompt)
	if err != nil {
		return degrade
	}

	var sections []section
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &sections); err != nil {
		return degrade
	}

	sections = dedupSections(sections)
	if len(sections) == 0 {
		return degrade
	}
	if len(sections) > maxSections {
		sections = sections[:maxSections]
	}
	return sections
}

func dedupSections(in []section) []section {
	seen := map[string]bool{}
	out := make([]section, 0, len(in))
	for _, s := range in {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}

func candidatesToItems(cands []browser.Candidate) []types.ArticleItem {
	out := make([]types.ArticleItem, 0, len(cands))
	for _, c := range cands {
		item := types.ArticleItem{Title: cleanTitle(c.Title), URL: c.URL}
		if c.DateGuess != "" {
			if t, err := time.Parse("2006-01-02", c.DateGuess); err == nil {
				item.PublishedDate = &t
			}
		}
		out = append(out, item)
	}
	return out
}

func rootHost(rawURL string) string {
	u, err := urlParse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}

func formatLinks(links []browser.Link) string {
	var b strings.Builder
	limit := len(links)
	if limit > 100 {
		limit = 100
	}
	for _, l := range links[:limit] {
		fmt.Fprintf(&b, "- [%s](%s)\n", l.AnchorText, l.AbsoluteURL)
	}
	return b.String()
}
