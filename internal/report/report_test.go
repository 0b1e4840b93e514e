package report

import (
	"strings"
	"testing"
	"time"

	"github.com/policywatch/collector/internal/types"
)

func TestRenderIncludesItemsAndOverview(t *testing.T) {
	published := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	in := Input{
		SourceName: "Ministry of Energy",
		Overview:   "## Core takeaway\n\nThe ministry raised subsidies.\n\n- point one\n- point two",
		Items: []types.ArticleItem{
			{Title: "Subsidy plan", URL: "https://x.gov/a", ContentKind: types.ContentKindPolicy, PublishedDate: &published, Summary: "Raises subsidies by 10%."},
		},
		GeneratedAt: time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC),
	}

	htmlBody, plainText := Render(in)

	if !strings.Contains(htmlBody, "Subsidy plan") {
		t.Error("html missing item title")
	}
	if !strings.Contains(htmlBody, "<h3") {
		t.Error("html missing overview heading conversion")
	}
	if !strings.Contains(htmlBody, "<li") {
		t.Error("html missing overview bullet conversion")
	}
	if !strings.Contains(plainText, "Subsidy plan") {
		t.Error("plaintext missing item title")
	}
	if !strings.Contains(plainText, "2026-02-03") {
		t.Error("plaintext missing published date")
	}
}

func TestRenderZeroItemsStillProducesTitle(t *testing.T) {
	htmlBody, plainText := Render(Input{SourceName: "Empty Source", GeneratedAt: time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)})
	if !strings.Contains(htmlBody, "Empty Source") {
		t.Error("expected source name in html even with zero items")
	}
	if !strings.Contains(plainText, "0 updates") {
		t.Error("expected zero-updates count in plaintext")
	}
}

func TestOverviewToHTMLFallsBackToPlainParagraph(t *testing.T) {
	got := overviewToHTML("just one line, no markdown")
	if !strings.HasPrefix(got, "<p") {
		t.Errorf("expected paragraph fallback, got %q", got)
	}
}
