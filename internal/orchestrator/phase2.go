package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/policywatch/collector/internal/browser"
	"github.com/policywatch/collector/internal/types"
)

const (
	summaryMinLen      = 20
	summaryPageChars   = 6000
)

// phase2Summarize assigns summary/tags/content_kind to every item lacking
// a valid summary, bounded by the LLM concurrency semaphore, per §4.4.
// Items are never reordered here; only summary/tags/content_kind change,
// matching the §3 invariant.
func (o *Orchestrator) phase2Summarize(ctx context.Context, source types.MonitorSource, items []types.ArticleItem, cancelSignal <-chan struct{}) []types.ArticleItem {
	sem := make(chan struct{}, o.llmConcurrency())
	var wg sync.WaitGroup
	out := make([]types.ArticleItem, len(items))
	copy(out, items)

	for i := range out {
		if validSummary(out[i].Summary, out[i].Title) {
			continue
		}
		if isCancelled(cancelSignal) {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			out[idx] = o.summarizeOne(ctx, source, out[idx])
		}(i)
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) llmConcurrency() int {
	if o.llmCfg.MaxConcurrency > 0 {
		return o.llmCfg.MaxConcurrency
	}
	return 3
}

func (o *Orchestrator) summarizeOne(ctx context.Context, source types.MonitorSource, item types.ArticleItem) types.ArticleItem {
	obs, err := o.browser.BrowsePage(ctx, item.URL, browser.Options{RootHost: rootHost(source.RootURL), AllowCrossDomain: source.AllowCrossDomain})
	if err != nil || obs.Status != browser.StatusSuccess {
		return item
	}
	pageText := obs.Text
	if len(pageText) > summaryPageChars {
		pageText = pageText[:summaryPageChars]
	}

	summary, tags, kind := o.trySummarize(ctx, item.Title, pageText)
	if !validSummary(summary, item.Title) {
		summary, tags, kind = o.trySummarize(ctx, item.Title, pageText)
	}
	if validSummary(summary, item.Title) {
		item.Summary = summary
		item.Tags = tags
		if kind != "" {
			item.ContentKind = normalizeContentKind(kind)
		}
	}
	return item
}

func (o *Orchestrator) trySummarize(ctx context.Context, title, pageText string) (summary string, tags []string, kind string) {
	prompt := fmt.Sprintf("Title: %s\n\nPage text:\n%s\n\nReturn a JSON object {\"summary\":..., \"tags\":[...up to 5 short noun phrases...], \"content_kind\": one of policy|news|notice|file}.", title, pageText)
	text, err := o.llm.CompleteText(ctx, "You are a policy analyst who writes concise, factual summaries of government and news articles.", prompt)
	if err != nil {
		return "", nil, ""
	}
	return parseSummaryResponse(text)
}

func validSummary(summary, title string) bool {
	s := strings.TrimSpace(summary)
	return s != "" && !strings.EqualFold(s, strings.TrimSpace(title)) && len(s) > summaryMinLen
}
