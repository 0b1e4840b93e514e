package orchestrator

import (
	"testing"

	"github.com/policywatch/collector/internal/types"
)

func TestApplyRankOrderAppendsMissingIndices(t *testing.T) {
	items := []types.ArticleItem{{Title: "A"}, {Title: "B"}, {Title: "C"}, {Title: "D"}}
	out := applyRankOrder(items, []int{2, 0})

	want := []string{"C", "A", "B", "D"}
	if len(out) != len(want) {
		t.Fatalf("got %d items, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].Title != w {
			t.Errorf("position %d: got %q, want %q", i, out[i].Title, w)
		}
	}
}

func TestApplyRankOrderDropsOutOfRangeAndDuplicates(t *testing.T) {
	items := []types.ArticleItem{{Title: "A"}, {Title: "B"}}
	out := applyRankOrder(items, []int{1, 1, 5, -1, 0})

	want := []string{"B", "A"}
	if len(out) != len(want) {
		t.Fatalf("got %d items, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].Title != w {
			t.Errorf("position %d: got %q, want %q", i, out[i].Title, w)
		}
	}
}

func TestPhase3RankSingleItemSkipsLLM(t *testing.T) {
	o := &Orchestrator{}
	items := []types.ArticleItem{{Title: "only"}}
	out := o.phase3Rank(nil, items)
	if len(out) != 1 || out[0].Title != "only" {
		t.Fatalf("expected single item passthrough, got %+v", out)
	}
}
