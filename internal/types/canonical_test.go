package types

import "testing"

func TestCanonicalizeURLIdempotent(t *testing.T) {
	cases := []string{
		"HTTP://Example.GOV/path#frag",
		"https://example.gov:443/path",
		"http://x.gov.cn:80/art/2026/2/3/",
	}
	for _, c := range cases {
		once, err := CanonicalizeURL(c)
		if err != nil {
			t.Fatalf("canonicalize %q: %v", c, err)
		}
		twice, err := CanonicalizeURL(once)
		if err != nil {
			t.Fatalf("canonicalize twice %q: %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", c, once, twice)
		}
	}
}

func TestCanonicalizeURLNormalizesSchemeAndHost(t *testing.T) {
	got, err := CanonicalizeURL("HTTP://Example.GOV/Path#section")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://example.gov/Path"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSameOrSubdomain(t *testing.T) {
	if !SameOrSubdomain("www.example.gov", "example.gov") {
		t.Error("expected subdomain match")
	}
	if !SameOrSubdomain("example.gov", "example.gov") {
		t.Error("expected exact match")
	}
	if SameOrSubdomain("evilexample.gov", "example.gov") {
		t.Error("expected no match for unrelated host sharing a suffix")
	}
}

func TestTaskTransitions(t *testing.T) {
	task := &CrawlTask{Status: TaskPending}
	if !task.CanTransitionTo(TaskRunning) {
		t.Error("pending -> running should be legal")
	}
	task.Status = TaskRunning
	if !task.CanTransitionTo(TaskCompleted) {
		t.Error("running -> completed should be legal")
	}
	task.Status = TaskCompleted
	if task.CanTransitionTo(TaskRunning) {
		t.Error("completed is terminal, should not transition")
	}
}
