// Package ivfheap implements the bounded priority queue the IVF search
// core uses to keep the current top-k candidates per query: a min-heap
// over similarities for inner-product search, a max-heap over
// distances for L2 search, so the root is always the current worst
// kept candidate — the threshold the next candidate has to beat.
package ivfheap

import (
	"container/heap"
	"sort"

	"github.com/ivfgo/ivfindex/internal/metric"
)

// Entry is one kept candidate: a score and an opaque label. The label
// is either an external id or, in store-pairs mode, a packed lo-handle
// (see internal/dmap).
type Entry struct {
	Dist  float32
	Label int64
}

// Heap is a fixed-capacity bounded priority queue of size k for a
// single query. It is not safe for concurrent use; callers own one
// Heap per query per goroutine.
type Heap struct {
	m       metric.Type
	k       int
	entries []Entry
	updates int
}

// New creates a heap of capacity k, every slot pre-filled with the
// metric's worst sentinel and label -1 (§8: unused slots carry -1 /
// ±∞ until a candidate is pushed into them).
func New(m metric.Type, k int) *Heap {
	h := &Heap{m: m, k: k, entries: make([]Entry, k)}
	worst := m.Worst()
	for i := range h.entries {
		h.entries[i] = Entry{Dist: worst, Label: -1}
	}
	heap.Init(h)
	return h
}

// Len, Swap satisfy sort.Interface (embedded in heap.Interface).
func (h *Heap) Len() int      { return len(h.entries) }
func (h *Heap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

// Less orders the heap so the root is the current worst kept
// candidate: for a min-heap (inner product) that's the smallest
// score; for a max-heap (L2) that's the largest distance. Ties break
// on label so a fixed scan order yields deterministic root choice.
func (h *Heap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if a.Dist == b.Dist {
		return a.Label > b.Label
	}
	if h.m.MinHeap() {
		return a.Dist < b.Dist
	}
	return a.Dist > b.Dist
}

// Push/Pop implement heap.Interface; callers should use PushReplace
// instead of heap.Push directly, since the heap has fixed capacity.
func (h *Heap) Push(x interface{}) { h.entries = append(h.entries, x.(Entry)) }
func (h *Heap) Pop() interface{} {
	old := h.entries
	n := len(old)
	item := old[n-1]
	h.entries = old[:n-1]
	return item
}

// Root is the current worst kept candidate (the heap top).
func (h *Heap) Root() Entry { return h.entries[0] }

// Worse reports whether dist is worse than (or equal to, for strict
// exclusion) the current root, i.e. it cannot displace anything
// currently kept.
func (h *Heap) Worse(dist float32) bool {
	return !h.m.Better(dist, h.entries[0].Dist)
}

// PushReplace offers a new candidate to the heap. If it beats the
// current root it replaces the root and the heap is repaired;
// otherwise the candidate is discarded. Returns true iff the heap was
// actually updated, so callers can maintain the nheap_updates stat.
func (h *Heap) PushReplace(dist float32, label int64) bool {
	if !h.m.Better(dist, h.entries[0].Dist) {
		return false
	}
	h.entries[0] = Entry{Dist: dist, Label: label}
	heap.Fix(h, 0)
	h.updates++
	return true
}

// Updates returns the cumulative number of times PushReplace has
// actually displaced the root, feeding the C9 nheap_updates counter.
func (h *Heap) Updates() int { return h.updates }

// AddN merges another heap's entries into this one (k-way heap
// addition, §4.4.2 pmode 1 merge step). Merge order does not affect
// which scores are kept, but PushReplace never displaces an entry of
// equal score, so among candidates tied at the k-th score the one
// that arrived first is kept.
func (h *Heap) AddN(other *Heap) {
	for _, e := range other.entries {
		if e.Label < 0 {
			continue
		}
		h.PushReplace(e.Dist, e.Label)
	}
}

// Sorted reorders the heap contents in place into final output order
// — ascending distance for L2, descending similarity for inner
// product — and returns the backing slice. After calling Sorted the
// Heap must not be reused as a heap.
func (h *Heap) Sorted() []Entry {
	asc := !h.m.MinHeap() // L2: ascending distance. IP: descending similarity.
	sort.Slice(h.entries, func(i, j int) bool {
		a, b := h.entries[i], h.entries[j]
		if a.Dist == b.Dist {
			return a.Label < b.Label
		}
		if asc {
			return a.Dist < b.Dist
		}
		return a.Dist > b.Dist
	})
	return h.entries
}

// K returns the heap's configured capacity.
func (h *Heap) K() int { return h.k }
