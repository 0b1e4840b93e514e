package browser

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const samplePage = `
<html><body>
<ul>
  <li><a href="/pol/2026-02-01/a.html">Energy policy announcement</a> <span>(2026-02-01)</span></li>
  <li><a href="/pol/2026-02-02/b.html">Second notice about tariffs</a></li>
  <li><a href="https://other.example.com/x.html">External unrelated link</a></li>
  <li><a href="javascript:void(0)">no-op</a></li>
</ul>
</body></html>
`

func mustDoc(t *testing.T, html string) (*goquery.Document, *url.URL) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	base, _ := url.Parse("https://example.gov/section/")
	return doc, base
}

func TestExtractLinksAndCandidatesFiltersCrossDomain(t *testing.T) {
	doc, base := mustDoc(t, samplePage)
	links, candidates := extractLinksAndCandidates(doc, base, "example.gov", false)

	for _, l := range links {
		if strings.Contains(l.AbsoluteURL, "other.example.com") {
			t.Errorf("cross-domain link should have been filtered: %v", l)
		}
	}
	if len(links) != 2 {
		t.Errorf("expected 2 same-domain links, got %d: %v", len(links), links)
	}

	if len(candidates) != 1 {
		t.Fatalf("expected 1 dated candidate, got %d: %v", len(candidates), candidates)
	}
	if candidates[0].DateGuess != "2026-02-01" {
		t.Errorf("unexpected date guess %q", candidates[0].DateGuess)
	}
}

func TestExtractLinksAndCandidatesAllowsCrossDomainWhenEnabled(t *testing.T) {
	doc, base := mustDoc(t, samplePage)
	links, _ := extractLinksAndCandidates(doc, base, "example.gov", true)

	found := false
	for _, l := range links {
		if strings.Contains(l.AbsoluteURL, "other.example.com") {
			found = true
		}
	}
	if !found {
		t.Error("expected cross-domain link to be kept when allowed")
	}
}
