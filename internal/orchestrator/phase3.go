package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/policywatch/collector/internal/types"
)

// phase3Rank orders items by strategic importance via a single LLM call,
// per §4.4: national-level policy outranks regional, recent outranks
// stale within a tier. Falls back to date-descending on any parse or
// validation failure so a Phase 3 hiccup never drops items.
func (o *Orchestrator) phase3Rank(ctx context.Context, items []types.ArticleItem) []types.ArticleItem {
	if len(items) <= 1 {
		return items
	}

	var listing strings.Builder
	for i, it := range items {
		summary := it.Summary
		if len(summary) > 80 {
			summary = summary[:80]
		}
		fmt.Fprintf(&listing, "[%d] [%s] %s | %s", i, it.ContentKind, publishedDateOrEmpty(it), it.Title)
		if summary != "" {
			fmt.Fprintf(&listing, " - %s", summary)
		}
		listing.WriteString("\n")
	}

	system := "You are a senior policy consultant who ranks policy and news items by strategic importance for enterprise clients, skilled at distinguishing national-level from local-level significance."
	user := fmt.Sprintf(
		"Order the following %d policy/news items from highest to lowest strategic importance.\n\n"+
			"Ranking rules (strict tiering, a higher tier always precedes a lower one):\n"+
			"Tier 1 (highest): national laws/regulations/plans/guidance from the State Council or ministries; "+
			"remarks, directives, or signed articles from senior national leaders; national leadership appointments.\n"+
			"Tier 2: major national conferences (State Council executive meetings, ministry work conferences, national industry conferences); "+
			"major national news (nationwide data releases, major projects, industry milestones); national industry standards.\n"+
			"Tier 3: ministry notices/announcements; industry statistics and development reports; policy interpretation and Q&A.\n"+
			"Tier 4: regional policy documents, provincial notices; regional project approvals, local conferences.\n"+
			"Tier 5 (lowest): routine work of local regulators; visits and research trips by non-senior leaders; routine work briefs.\n\n"+
			"A title mentioning \"State Council\", \"national\", or a ministry name is usually tier 1 or 2; a title naming a "+
			"province or a local bureau is usually tier 4 or 5. Within the same tier, prefer the more recent date.\n\n"+
			"Return only a JSON array of the item indices in ranked order, e.g. [3, 0, 7, 1, 5]. Output nothing else.\n\n"+
			"Items:\n%s", len(items), listing.String())

	text, err := o.llm.CompleteText(ctx, system, user)
	if err != nil {
		return sortByPublishedDateDescending(items)
	}

	order, ok := parseIntArray(text)
	if !ok {
		return sortByPublishedDateDescending(items)
	}
	seen := make(map[int]bool, len(order))
	for _, i := range order {
		if i < 0 || i >= len(items) || seen[i] {
			return sortByPublishedDateDescending(items)
		}
		seen[i] = true
	}

	ranked := applyRankOrder(items, order)
	for i := range ranked {
		ranked[i].ImportanceRank = i + 1
	}
	return ranked
}

// applyRankOrder reorders items per the (possibly partial, possibly
// invalid) index list the LLM returned: out-of-range or duplicate
// indices are dropped, then any item the LLM omitted is appended in its
// original order.
func applyRankOrder(items []types.ArticleItem, order []int) []types.ArticleItem {
	seen := make(map[int]bool, len(order))
	out := make([]types.ArticleItem, 0, len(items))
	for _, i := range order {
		if i < 0 || i >= len(items) || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, items[i])
	}
	for i, it := range items {
		if !seen[i] {
			out = append(out, it)
		}
	}
	return out
}

func publishedDateOrEmpty(item types.ArticleItem) string {
	if item.PublishedDate == nil {
		return ""
	}
	return item.PublishedDate.Format("2006-01-02")
}
