package metric

import (
	"math"
	"testing"
)

func TestBetter(t *testing.T) {
	cases := []struct {
		name       string
		typ        Type
		a, b       float32
		wantBetter bool
	}{
		{"l2 smaller wins", L2, 1.0, 2.0, true},
		{"l2 larger loses", L2, 2.0, 1.0, false},
		{"ip larger wins", InnerProduct, 2.0, 1.0, true},
		{"ip smaller loses", InnerProduct, 1.0, 2.0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.typ.Better(c.a, c.b); got != c.wantBetter {
				t.Fatalf("Better(%v,%v) = %v, want %v", c.a, c.b, got, c.wantBetter)
			}
		})
	}
}

func TestWorstSentinel(t *testing.T) {
	if !math.IsInf(float64(L2.Worst()), 1) {
		t.Fatalf("L2 worst should be +Inf, got %v", L2.Worst())
	}
	if !math.IsInf(float64(InnerProduct.Worst()), -1) {
		t.Fatalf("InnerProduct worst should be -Inf, got %v", InnerProduct.Worst())
	}
	// The worst sentinel must never be "better" than a real score.
	if L2.Better(L2.Worst(), 0) {
		t.Fatalf("L2 worst sentinel must not beat a real value")
	}
	if InnerProduct.Better(InnerProduct.Worst(), 0) {
		t.Fatalf("InnerProduct worst sentinel must not beat a real value")
	}
}

func TestDistanceFuncs(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	if got := Of(L2)(a, b); got != 2.0 {
		t.Fatalf("l2(a,b) = %v, want 2.0", got)
	}
	if got := Of(InnerProduct)(a, b); got != 0.0 {
		t.Fatalf("ip(a,b) = %v, want 0.0", got)
	}
	same := []float32{3, 4, 0}
	if got := Of(InnerProduct)(same, same); got != 25.0 {
		t.Fatalf("ip(same,same) = %v, want 25.0", got)
	}
}

func TestMinHeapFlag(t *testing.T) {
	if L2.MinHeap() {
		t.Fatalf("L2 should use a max-heap")
	}
	if !InnerProduct.MinHeap() {
		t.Fatalf("InnerProduct should use a min-heap")
	}
}
