package coarse

import (
	"testing"

	"github.com/ivfgo/ivfindex/internal/metric"
)

func TestFlatQuantizerAssign(t *testing.T) {
	q := NewFlatQuantizer(2, metric.L2)
	if err := q.Add([][]float32{{0, 0}, {10, 0}, {0, 10}, {10, 10}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ids, err := q.Assign([][]float32{{0.1, 0.1}})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if ids[0] != 0 {
		t.Fatalf("expected nearest centroid 0, got %d", ids[0])
	}
}

func TestFlatQuantizerSearchPadsWithSentinel(t *testing.T) {
	q := NewFlatQuantizer(2, metric.L2)
	_ = q.Add([][]float32{{0, 0}})
	ids, scores, err := q.Search([][]float32{{1, 1}}, 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if ids[0][0] != 0 {
		t.Fatalf("expected first result id 0, got %d", ids[0][0])
	}
	for i := 1; i < 4; i++ {
		if ids[0][i] != -1 {
			t.Fatalf("expected sentinel -1 for unfilled probe slot, got %d", ids[0][i])
		}
	}
	if scores[0][1] != q.metric.Worst() {
		t.Fatalf("expected sentinel score for unfilled slot")
	}
}

func TestFlatQuantizerEmptyAssign(t *testing.T) {
	q := NewFlatQuantizer(2, metric.L2)
	ids, err := q.Assign([][]float32{{1, 1}})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if ids[0] != -1 {
		t.Fatalf("expected -1 for untrained quantizer, got %d", ids[0])
	}
}
