package orchestrator

import "testing"

func TestCleanTitleStripsDateStampAndNewlines(t *testing.T) {
	got := cleanTitle("2026-01-05  New policy on\nenergy subsidies")
	want := "New policy on energy subsidies"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseIntArrayTolerant(t *testing.T) {
	idxs, ok := parseIntArray("Here you go: [3, 0, 7, 1, 5] thanks")
	if !ok {
		t.Fatal("expected ok")
	}
	want := []int{3, 0, 7, 1, 5}
	if len(idxs) != len(want) {
		t.Fatalf("got %v, want %v", idxs, want)
	}
	for i := range want {
		if idxs[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, idxs[i], want[i])
		}
	}
}

func TestParseIntArrayRejectsNonArray(t *testing.T) {
	if _, ok := parseIntArray("no array here"); ok {
		t.Error("expected ok=false for missing array")
	}
}

func TestParseSummaryResponseHappyPath(t *testing.T) {
	text := "Sure, here it is:\n```json\n{\"summary\":\"A short summary.\",\"tags\":[\"energy\",\"subsidy\"],\"content_kind\":\"policy\"}\n```"
	summary, tags, kind := parseSummaryResponse(text)
	if summary != "A short summary." {
		t.Errorf("summary = %q", summary)
	}
	if len(tags) != 2 || tags[0] != "energy" {
		t.Errorf("tags = %v", tags)
	}
	if kind != "policy" {
		t.Errorf("kind = %q", kind)
	}
}

func TestParseSummaryResponseFallsBackToRawText(t *testing.T) {
	summary, tags, kind := parseSummaryResponse("just a plain sentence, no JSON here")
	if summary != "just a plain sentence, no JSON here" {
		t.Errorf("summary = %q", summary)
	}
	if tags != nil || kind != "" {
		t.Errorf("expected no tags/kind, got %v %q", tags, kind)
	}
}

func TestParseSummaryResponseCapsTagsAtFive(t *testing.T) {
	text := `{"summary":"ok summary text here","tags":["a","b","c","d","e","f"],"content_kind":"news"}`
	_, tags, _ := parseSummaryResponse(text)
	if len(tags) != 5 {
		t.Errorf("expected 5 tags, got %d", len(tags))
	}
}
