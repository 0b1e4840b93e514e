package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/policywatch/collector/internal/agentrt"
	"github.com/policywatch/collector/internal/browser"
	"github.com/policywatch/collector/internal/llmclient"
	"github.com/policywatch/collector/internal/types"
)

var sectionTools = []llmclient.ToolSpec{
	{Name: "browse_page", Description: "Render a URL and return its text, link list, and candidate article entries.",
		Parameters: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`)},
	{Name: "save_results_batch", Description: "Save multiple discovered articles at once.",
		Parameters: json.RawMessage(`{"type":"object","properties":{"items":{"type":"array"}},"required":["items"]}`)},
	{Name: "save_result", Description: "Save one discovered article.",
		Parameters: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"url":{"type":"string"},"content_kind":{"type":"string"},"published_date":{"type":"string"},"summary":{"type":"string"}},"required":["title","url","content_kind"]}`)},
	{Name: "finish", Description: "Terminate the crawl for this section.",
		Parameters: json.RawMessage(`{"type":"object","properties":{"summary":{"type":"string"}}}`)},
}

// crawlSection runs the Agent Runtime over one section's list page,
// per §4.4. It mutates acc in place as items are accepted.
func (o *Orchestrator) crawlSection(ctx context.Context, source types.MonitorSource, sec section, acc *accumulator, cancelSignal <-chan struct{}) {
	rt := agentrt.New(o.llm)

	maxTurns := o.cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 15
	}

	seed := fmt.Sprintf(
		"Visit %s using browse_page. Use the candidates block it returns, filter to items within the last %s and of content kinds %v, and save within-window items with save_results_batch. You may paginate by browsing further list pages. Call finish when the section looks exhausted.",
		sec.URL, source.TimeWindow, source.AllowedKinds)

	executor := func(ctx context.Context, name, argsJSON string) string {
		switch name {
		case "browse_page":
			return o.execBrowsePage(ctx, source, argsJSON)
		case "save_results_batch":
			return o.execSaveBatch(argsJSON, acc, source)
		case "save_result":
			return o.execSaveOne(argsJSON, acc, source)
		default:
			return agentrt.ErrorToolResult("unknown tool: " + name)
		}
	}

	_, _ = rt.Run(ctx, agentrt.Spec{
		SystemPrompt:    "You are a crawler agent that discovers newly published articles on one section of a government/news website.",
		SeedUserMessage: seed,
		Tools:           sectionTools,
		MaxTurns:        maxTurns,
		EnablePruning:   true,
		CancelSignal:    cancelSignal,
		ToolExecutor:    executor,
	})
}

type browseArgs struct {
	URL string `json:"url"`
}

func (o *Orchestrator) execBrowsePage(ctx context.Context, source types.MonitorSource, argsJSON string) string {
	var args browseArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return agentrt.ErrorToolResult("malformed browse_page arguments")
	}
	if o.policy.IsDisallowed(args.URL) {
		return agentrt.ErrorToolResult("url is disallowed by crawl policy")
	}
	obs, err := o.browser.BrowsePage(ctx, args.URL, browser.Options{RootHost: rootHost(source.RootURL), AllowCrossDomain: source.AllowCrossDomain})
	if err != nil {
		return agentrt.ErrorToolResult(err.Error())
	}
	b, _ := json.Marshal(map[string]any{
		"text":       obs.Text,
		"links":      obs.Links,
		"candidates": obs.Candidates,
		"final_url":  obs.FinalURL,
		"status":     string(obs.Status),
	})
	return string(b)
}

type saveItemArgs struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	ContentKind   string `json:"content_kind"`
	PublishedDate string `json:"published_date"`
	Summary       string `json:"summary"`
}

type saveBatchArgs struct {
	Items []saveItemArgs `json:"items"`
}

func (o *Orchestrator) execSaveBatch(argsJSON string, acc *accumulator, source types.MonitorSource) string {
	var args saveBatchArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return agentrt.ErrorToolResult("malformed save_results_batch arguments")
	}
	accepted := 0
	for _, it := range args.Items {
		if o.acceptItem(it, acc, source) {
			accepted++
		}
	}
	b, _ := json.Marshal(map[string]int{"accepted_count": accepted})
	return string(b)
}

func (o *Orchestrator) execSaveOne(argsJSON string, acc *accumulator, source types.MonitorSource) string {
	var args saveItemArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return agentrt.ErrorToolResult("malformed save_result arguments")
	}
	ok := o.acceptItem(args, acc, source)
	reason := ""
	if !ok {
		reason = "duplicate"
	}
	b, _ := json.Marshal(map[string]any{"accepted": ok, "reason": reason})
	return string(b)
}

func (o *Orchestrator) acceptItem(args saveItemArgs, acc *accumulator, source types.MonitorSource) bool {
	if strings.TrimSpace(args.URL) == "" || strings.TrimSpace(args.Title) == "" {
		return false
	}
	item := types.ArticleItem{
		Title:       cleanTitle(args.Title),
		URL:         args.URL,
		ContentKind: normalizeContentKind(args.ContentKind),
		Summary:     args.Summary,
	}
	if args.PublishedDate != "" {
		if t, err := time.Parse("2006-01-02", args.PublishedDate); err == nil {
			item.PublishedDate = &t
		}
	}
	if item.PublishedDate == nil {
		if d := browser.ExtractDateFromURL(args.URL); d != "" {
			if t, err := time.Parse("2006-01-02", d); err == nil {
				item.PublishedDate = &t
			}
		}
	}
	if !withinWindow(item.PublishedDate, source) {
		return false
	}
	ok, _ := acc.add(item)
	return ok
}

func normalizeContentKind(k string) types.ContentKind {
	switch types.ContentKind(k) {
	case types.ContentKindPolicy, types.ContentKindNews, types.ContentKindNotice, types.ContentKindFile:
		return types.ContentKind(k)
	default:
		return types.ContentKindNews
	}
}
