// Package orchestrator is the per-source four-phase pipeline: homepage
// navigation, section crawl, summarization, and ranking. One Orchestrator
// serves a whole batch; RunSource is called once per (batch, source) pair,
// concurrently bounded by the caller (internal/scheduler).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/policywatch/collector/internal/browser"
	"github.com/policywatch/collector/internal/config"
	"github.com/policywatch/collector/internal/llmclient"
	"github.com/policywatch/collector/internal/report"
	"github.com/policywatch/collector/internal/telemetry"
	"github.com/policywatch/collector/internal/types"
)

var tracer = otel.Tracer("policywatch/orchestrator")

// metrics is nil until SetMetrics is called; every recording site is
// nil-safe so tests and callers that skip telemetry wiring still work.
var metrics *telemetry.Metrics

// SetMetrics wires the process-wide Prometheus instruments. Call once at
// startup, before RunSource is ever invoked concurrently.
func SetMetrics(m *telemetry.Metrics) { metrics = m }

// Persister is implemented by internal/store; the orchestrator only ever
// writes at end-of-task, per §5's "database writes are serialized... and
// occur only at end-of-task" rule.
type Persister interface {
	SaveTaskResult(ctx context.Context, task types.CrawlTask, items []types.ArticleItem, rep *types.Report) error
	ExistingURLs(ctx context.Context, sourceID string) (map[string]bool, error)
}

type Orchestrator struct {
	llm     *llmclient.Client
	browser *browser.Tool
	store   Persister
	log     *log.Logger
	cfg     config.AgentsConfig
	llmCfg  config.LLMConfig
	policy  config.CrawlPolicyConfig
}

func New(llm *llmclient.Client, br *browser.Tool, store Persister, cfg config.AgentsConfig, llmCfg config.LLMConfig, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{llm: llm, browser: br, store: store, cfg: cfg, llmCfg: llmCfg, log: logger}
}

// SetCrawlPolicy wires the deployment-wide allow/disallow/paywall policy
// checked before every fetch, on top of each MonitorSource's own settings.
func (o *Orchestrator) SetCrawlPolicy(p config.CrawlPolicyConfig) { o.policy = p }

// RunSource executes the full four-phase pipeline for one source within a
// batch and returns the task's final state plus any produced report. It
// has no error return: pipeline-level failures are reflected in the
// returned CrawlTask.Status/ErrorLog per §7.
func (o *Orchestrator) RunSource(ctx context.Context, batch types.CrawlBatch, source types.MonitorSource, cancelSignal <-chan struct{}) (types.CrawlTask, *types.Report) {
	ctx, span := tracer.Start(ctx, "orchestrator.run_source", trace.WithAttributes())
	defer span.End()

	start := time.Now()
	if metrics != nil {
		metrics.SourcesInFlight.Inc()
		defer metrics.SourcesInFlight.Dec()
		defer func() { metrics.ObservePhase("run_source", time.Since(start)) }()
	}

	now := time.Now()
	task := types.CrawlTask{
		ID:        uuid.NewString(),
		BatchID:   batch.ID,
		SourceID:  source.ID,
		Status:    types.TaskRunning,
		StartedAt: &now,
	}

	if isCancelled(cancelSignal) {
		return o.finishCancelled(task), nil
	}

	existingURLs, err := o.store.ExistingURLs(ctx, source.ID)
	if err != nil {
		existingURLs = map[string]bool{}
	}

	// Phase 1a
	sections, homepageItems, failed := o.phase1a(ctx, source)
	if failed {
		return o.finishFailed(task, types.NewTaxonomyError(types.KindPageLoad, "homepage load failed", nil)), nil
	}

	if isCancelled(cancelSignal) {
		return o.finishCancelled(task), nil
	}

	// Phase 1b
	acc := newAccumulator(source.ID, existingURLs)
	acc.addAll(filterByWindow(homepageItems, source))

	if !homepageItemsSufficient(homepageItems) {
		for i, sec := range sections {
			if i >= maxSupplementarySections {
				break
			}
			if isCancelled(cancelSignal) {
				return o.persistPartial(task, acc.items(), types.TaskCancelled, ""), nil
			}
			o.crawlSection(ctx, source, sec, acc, cancelSignal)
		}
	}

	// Zero sections discovered (or every section yielding nothing) is not
	// a failure: the pipeline completes with a zero-item report and Phase
	// 3 is skipped, per §4.4's boundary behavior.
	if len(acc.items()) == 0 {
		rep := o.buildReport(ctx, batch, source, nil)
		task.Status = types.TaskCompleted
		completed := time.Now()
		task.CompletedAt = &completed
		task.ItemsFound = 0
		if err := o.store.SaveTaskResult(ctx, task, nil, rep); err != nil {
			o.log.Printf("persist failed for task %s: %v", task.ID, err)
		}
		recordStatus(task.Status)
		return task, rep
	}

	if isCancelled(cancelSignal) {
		return o.persistPartial(task, acc.items(), types.TaskCancelled, ""), nil
	}

	// Phase 2
	items := o.phase2Summarize(ctx, source, acc.items(), cancelSignal)

	if isCancelled(cancelSignal) {
		return o.persistPartial(task, items, types.TaskCancelled, ""), nil
	}

	// Phase 3
	ranked := o.phase3Rank(ctx, items)
	rep := o.buildReport(ctx, batch, source, ranked)

	task.Status = types.TaskCompleted
	completed := time.Now()
	task.CompletedAt = &completed
	task.ItemsFound = len(ranked)

	if err := o.store.SaveTaskResult(ctx, task, ranked, rep); err != nil {
		o.log.Printf("persist failed for task %s: %v", task.ID, err)
	}
	if metrics != nil {
		metrics.ItemsSaved.Add(float64(len(ranked)))
	}
	recordStatus(task.Status)

	return task, rep
}

// buildReport renders the task's Report, including the narrative overview
// enrichment described in SPEC_FULL.md's "batch-level overview" section
// (scoped to this task's own items, since a Report row belongs to exactly
// one task/source per §3).
func (o *Orchestrator) buildReport(ctx context.Context, batch types.CrawlBatch, source types.MonitorSource, items []types.ArticleItem) *types.Report {
	overview := o.generateOverview(ctx, source, items)
	now := time.Now()

	htmlBody, plainText := report.Render(report.Input{
		SourceName:  source.DisplayName,
		Overview:    overview,
		Items:       items,
		GeneratedAt: now,
	})

	return &types.Report{
		BatchID:       batch.ID,
		Title:         fmt.Sprintf("%s update digest %s", source.DisplayName, now.Format("2006-01-02")),
		Overview:      overview,
		HTML:          htmlBody,
		PlainText:     plainText,
		GeneratedAt:   now,
		ItemsBySource: map[string][]types.ArticleItem{source.DisplayName: items},
	}
}

// generateOverview asks the LLM for a short narrative summary of the
// task's items. Returns "" (no overview section) on any failure or when
// there is nothing to summarize.
func (o *Orchestrator) generateOverview(ctx context.Context, source types.MonitorSource, items []types.ArticleItem) string {
	if len(items) == 0 {
		return ""
	}
	var listing strings.Builder
	for _, it := range items {
		fmt.Fprintf(&listing, "- [%s] %s", it.ContentKind, it.Title)
		if it.Summary != "" {
			summary := it.Summary
			if len(summary) > 150 {
				summary = summary[:150]
			}
			fmt.Fprintf(&listing, ": %s", summary)
		}
		listing.WriteString("\n")
	}

	system := "You are a senior consulting advisor who writes structured, focused policy intelligence briefs for enterprise executives and industry analysts who need to quickly grasp policy trends and industry developments."
	user := fmt.Sprintf(
		"Based on the following collected items from %s, write a structured policy intelligence overview (300-600 words).\n\n"+
			"Format as: a lone ## heading line, then body text starting on the next line, with a blank line between "+
			"paragraphs. Cover: the most important policy signal or industry change this period, the overall trend, "+
			"and anything requiring attention.\n\nItems:\n%s", source.DisplayName, listing.String())

	text, err := o.llm.CompleteText(ctx, system, user)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// recordStatus increments the terminal-status counter; a nil metrics
// provider (tests, or a caller that skipped SetMetrics) is a no-op.
func recordStatus(status types.TaskStatus) {
	if metrics != nil {
		metrics.TasksByStatus.WithLabelValues(string(status)).Inc()
	}
}

func (o *Orchestrator) finishFailed(task types.CrawlTask, err *types.TaxonomyError) types.CrawlTask {
	task.Status = types.TaskFailed
	task.ErrorLog = err.Error()
	completed := time.Now()
	task.CompletedAt = &completed
	recordStatus(task.Status)
	return task
}

func (o *Orchestrator) finishCancelled(task types.CrawlTask) types.CrawlTask {
	task.Status = types.TaskCancelled
	completed := time.Now()
	task.CompletedAt = &completed
	recordStatus(task.Status)
	return task
}

// persistPartial saves whatever items were accumulated so far under a
// cancelled/failed task without emitting a report, per §8's boundary
// behavior for mid-pipeline cancellation.
func (o *Orchestrator) persistPartial(task types.CrawlTask, items []types.ArticleItem, status types.TaskStatus, errMsg string) types.CrawlTask {
	task.Status = status
	task.ErrorLog = errMsg
	task.ItemsFound = len(items)
	completed := time.Now()
	task.CompletedAt = &completed
	if err := o.store.SaveTaskResult(context.Background(), task, items, nil); err != nil {
		o.log.Printf("persist partial failed for task %s: %v", task.ID, err)
	}
	recordStatus(task.Status)
	return task
}

func isCancelled(sig <-chan struct{}) bool {
	if sig == nil {
		return false
	}
	select {
	case <-sig:
		return true
	default:
		return false
	}
}

// homepageItemsSufficient short-circuits Phase 1b when the deterministic
// fast-path already harvested enough items, mirroring the original's
// early-exit before running any section agents.
func homepageItemsSufficient(items []types.ArticleItem) bool {
	return len(items) >= 10
}

// accumulator is the per-task URL-dedup set shared across Phase 1b
// sections; a canonical URL is accepted at most once.
type accumulator struct {
	mu       sync.Mutex
	sourceID string
	existing map[string]bool
	seen     map[string]bool
	list     []types.ArticleItem
}

func newAccumulator(sourceID string, existing map[string]bool) *accumulator {
	return &accumulator{sourceID: sourceID, existing: existing, seen: map[string]bool{}}
}

func (a *accumulator) add(item types.ArticleItem) (accepted bool, reason string) {
	canon, err := types.CanonicalizeURL(item.URL)
	if err != nil {
		return false, "invalid_url"
	}
	item.URL = canon

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.existing[canon] || a.seen[canon] {
		return false, "duplicate"
	}
	a.seen[canon] = true
	a.list = append(a.list, item)
	if metrics != nil {
		metrics.ItemsDiscovered.WithLabelValues(a.sourceID).Inc()
	}
	return true, ""
}

func (a *accumulator) addAll(items []types.ArticleItem) {
	for _, it := range items {
		a.add(it)
	}
}

func (a *accumulator) items() []types.ArticleItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.ArticleItem, len(a.list))
	copy(out, a.list)
	return out
}

// filterByWindow keeps only items that carry a published date within
// source.TimeWindow of now (see withinWindow); items with no date are
// dropped before Phase 2, per §4.4. It does no date inference itself:
// URL-derived dates are already filled in by the browser's candidate
// extraction.
func filterByWindow(items []types.ArticleItem, source types.MonitorSource) []types.ArticleItem {
	out := make([]types.ArticleItem, 0, len(items))
	for _, it := range items {
		if withinWindow(it.PublishedDate, source) {
			out = append(out, it)
		}
	}
	return out
}

// withinWindow is the §3/§8 time-window test shared by the homepage
// fast-path (filterByWindow) and the Phase 1b section agent (acceptItem):
// an item with no resolvable published date never passes, and with
// TimeWindow<=0 (no configured window) any dated item passes.
func withinWindow(published *time.Time, source types.MonitorSource) bool {
	if published == nil {
		return false
	}
	if source.TimeWindow <= 0 {
		return true
	}
	cutoff := time.Now().Add(-source.TimeWindow)
	return published.After(cutoff)
}

// sortByPublishedDateDescending is the Phase 3 fallback ordering.
func sortByPublishedDateDescending(items []types.ArticleItem) []types.ArticleItem {
	out := make([]types.ArticleItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].PublishedDate, out[j].PublishedDate
		if di == nil {
			return false
		}
		if dj == nil {
			return true
		}
		return di.After(*dj)
	})
	return out
}
