package usecase

import (
	"math"
	"testing"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

func items(ids ...string) []domain.RankedItem {
	out := make([]domain.RankedItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RankedItem{ID: id, Kind: domain.KindChunk, Score: 0.5})
	}
	return out
}

func ids(list []domain.RankedItem) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, item.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFuseRRFConsensusItemFirst(t *testing.T) {
	fused := FuseRRF(items("a", "b"), items("c", "a"), 60, 0)

	if got := ids(fused); !equalIDs(got, []string{"a", "c", "b"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	want := 1.0/61 + 1.0/62
	if math.Abs(fused[0].Score-want) > 1e-12 {
		t.Fatalf("expected a score %.6f, got %.6f", want, fused[0].Score)
	}
}

func TestFuseRRFDeterministic(t *testing.T) {
	structured := items("s1", "s2", "shared", "s3")
	semantic := items("shared", "v1", "v2")

	first := FuseRRF(structured, semantic, 60, 0)
	for i := 0; i < 20; i++ {
		next := FuseRRF(structured, semantic, 60, 0)
		if !equalIDs(ids(first), ids(next)) {
			t.Fatalf("order changed between runs: %v vs %v", ids(first), ids(next))
		}
		for j := range first {
			if first[j].Score != next[j].Score {
				t.Fatalf("score changed at %d", j)
			}
		}
	}
}

func TestFuseRRFMonotonicScores(t *testing.T) {
	fused := FuseRRF(items("a", "b", "c", "d"), items("d", "e", "b"), 60, 0)
	for i := 1; i < len(fused); i++ {
		if fused[i].Score > fused[i-1].Score {
			t.Fatalf("scores not non-increasing at %d: %v > %v", i, fused[i].Score, fused[i-1].Score)
		}
	}
}

func TestFuseRRFConsensusBeatsSingleList(t *testing.T) {
	structured := items("x", "shared")
	semantic := items("y", "shared")

	both := scoreOf(FuseRRF(structured, semantic, 60, 0), "shared")
	onlyStructured := scoreOf(FuseRRF(structured, items("y"), 60, 0), "shared")
	onlySemantic := scoreOf(FuseRRF(items("x"), semantic, 60, 0), "shared")

	if both <= onlyStructured || both <= onlySemantic {
		t.Fatalf("expected consensus score %.6f above %.6f and %.6f", both, onlyStructured, onlySemantic)
	}
}

func TestFuseRRFOneSidedIdentity(t *testing.T) {
	list := items("p", "q", "r")

	if got := ids(FuseRRF(list, nil, 60, 0)); !equalIDs(got, []string{"p", "q", "r"}) {
		t.Fatalf("structured-only order changed: %v", got)
	}
	if got := ids(FuseRRF(nil, list, 60, 0)); !equalIDs(got, []string{"p", "q", "r"}) {
		t.Fatalf("semantic-only order changed: %v", got)
	}
	if got := FuseRRF(nil, nil, 60, 0); len(got) != 0 {
		t.Fatalf("expected empty output, got %v", ids(got))
	}
}

func TestFuseRRFCap(t *testing.T) {
	structured := items("a", "b", "c")
	semantic := items("c", "d")

	for _, tc := range []struct {
		limit int
		want  int
	}{{limit: 2, want: 2}, {limit: 4, want: 4}, {limit: 10, want: 4}, {limit: 0, want: 4}} {
		fused := FuseRRF(structured, semantic, 60, tc.limit)
		if len(fused) != tc.want {
			t.Fatalf("limit %d: expected %d items, got %d", tc.limit, tc.want, len(fused))
		}
		for i := 1; i < len(fused); i++ {
			if fused[i].Score > fused[i-1].Score {
				t.Fatalf("limit %d: output not sorted", tc.limit)
			}
		}
	}
}

func TestFuseRRFTieBreakStructuredFirst(t *testing.T) {
	fused := FuseRRF(items("s"), items("v"), 60, 0)
	if got := ids(fused); !equalIDs(got, []string{"s", "v"}) {
		t.Fatalf("expected structured item first on tie, got %v", got)
	}
}

func TestFuseRRFDefaultKAndPurity(t *testing.T) {
	structured := items("a")
	fused := FuseRRF(structured, nil, 0, 0)
	if math.Abs(fused[0].Score-1.0/61) > 1e-12 {
		t.Fatalf("expected default k=60, got score %.6f", fused[0].Score)
	}
	if structured[0].Score != 0.5 {
		t.Fatalf("input list was modified")
	}
}

func scoreOf(list []domain.RankedItem, id string) float64 {
	for _, item := range list {
		if item.ID == id {
			return item.Score
		}
	}
	return 0
}
