package ivfheap

import (
	"testing"

	"github.com/ivfgo/ivfindex/internal/metric"
)

func TestL2HeapKeepsSmallest(t *testing.T) {
	h := New(metric.L2, 3)
	vals := []struct {
		d float32
		l int64
	}{{5, 1}, {1, 2}, {9, 3}, {2, 4}, {0.5, 5}}
	for _, v := range vals {
		h.PushReplace(v.d, v.l)
	}
	sorted := h.Sorted()
	if len(sorted) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(sorted))
	}
	want := []float32{0.5, 1, 2}
	for i, e := range sorted {
		if e.Dist != want[i] {
			t.Fatalf("sorted[%d] = %v, want %v", i, e.Dist, want[i])
		}
	}
}

func TestInnerProductHeapKeepsLargest(t *testing.T) {
	h := New(metric.InnerProduct, 2)
	h.PushReplace(1, 1)
	h.PushReplace(5, 2)
	h.PushReplace(3, 3)
	sorted := h.Sorted()
	if sorted[0].Dist != 5 || sorted[1].Dist != 3 {
		t.Fatalf("unexpected order: %+v", sorted)
	}
}

func TestEmptySlotsSentinel(t *testing.T) {
	h := New(metric.L2, 4)
	h.PushReplace(1, 10)
	sorted := h.Sorted()
	if sorted[0].Label != 10 {
		t.Fatalf("expected first entry label 10, got %d", sorted[0].Label)
	}
	for _, e := range sorted[1:] {
		if e.Label != -1 {
			t.Fatalf("expected sentinel label -1, got %d", e.Label)
		}
	}
}

func TestTieKeepsFirstArrival(t *testing.T) {
	h := New(metric.L2, 1)
	h.PushReplace(1.0, 100)
	updated := h.PushReplace(1.0, 200)
	if updated {
		t.Fatalf("equal distance must not displace the incumbent")
	}
	if h.Root().Label != 100 {
		t.Fatalf("expected incumbent label 100 to survive, got %d", h.Root().Label)
	}
}

func TestAddNMerge(t *testing.T) {
	a := New(metric.L2, 2)
	a.PushReplace(3, 1)
	a.PushReplace(4, 2)

	b := New(metric.L2, 2)
	b.PushReplace(1, 3)
	b.PushReplace(2, 4)

	a.AddN(b)
	sorted := a.Sorted()
	if sorted[0].Dist != 1 || sorted[1].Dist != 2 {
		t.Fatalf("expected merge to keep the two smallest, got %+v", sorted)
	}
}
