package ivf

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/interrupt"
	"github.com/ivfgo/ivfindex/internal/ivferr"
	"github.com/ivfgo/ivfindex/internal/ivfheap"
)

// Search assigns each query to its nprobe nearest lists via the coarse
// quantizer, then dispatches to searchPreassigned (spec §4.4.2).
func (idx *Index) Search(ctx context.Context, queries [][]float32, k int, filter dmap.Selector) ([][]Result, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if !idx.trained {
		return nil, ivferr.New(ivferr.NotTrained, "ivf", "search", "index must be trained before search")
	}
	if k <= 0 {
		return nil, ivferr.New(ivferr.InvalidArgument, "ivf", "search", "k must be positive")
	}
	for i, q := range queries {
		if len(q) != idx.cfg.Dim {
			return nil, ivferr.New(ivferr.DimensionMismatch, "ivf", "search", fmt.Sprintf("query %d has dim %d, want %d", i, len(q), idx.cfg.Dim))
		}
	}

	keys, coarseDis, err := idx.level1.Quantizer.Search(queries, idx.cfg.NProbe)
	if err != nil {
		return nil, ivferr.New(ivferr.Internal, "ivf", "search", "coarse quantizer search failed").WithCause(err)
	}
	idx.lists.PrefetchLists(flattenKeys(keys))

	heaps, err := idx.searchPreassigned(ctx, queries, keys, coarseDis, k, false, filter, true, nil)
	if err != nil {
		return nil, err
	}

	out := make([][]Result, len(queries))
	for qi, h := range heaps {
		sorted := h.Sorted()
		row := make([]Result, len(sorted))
		for i, e := range sorted {
			row[i] = Result{ID: e.Label, Distance: e.Dist}
		}
		out[qi] = row
	}
	return out, nil
}

// searchPreassigned is C8's search_preassigned (spec §4.4.2): given
// per-query probe keys and coarse distances, scan each probed list and
// merge results into a per-query bounded heap under the configured
// parallel_mode. When heapInit is false the caller supplies
// pre-initialized heaps (PARALLEL_MODE_NO_HEAP_INIT), letting a
// composed index seed the heap itself.
func (idx *Index) searchPreassigned(ctx context.Context, queries [][]float32, keys [][]int, coarseDis [][]float32, k int, storePairs bool, filter dmap.Selector, heapInit bool, preheaps []*ivfheap.Heap) ([]*ivfheap.Heap, error) {
	nq := len(queries)
	heaps := preheaps
	if heaps == nil {
		heaps = make([]*ivfheap.Heap, nq)
	}
	if heapInit {
		for i := range heaps {
			heaps[i] = ivfheap.New(idx.cfg.Metric, k)
		}
	}

	hook := idx.hook
	interrupted := &interrupt.Flag{}

	var err error
	switch idx.cfg.ParallelMode {
	case ParallelOverQueries:
		err = idx.searchOverQueries(ctx, queries, keys, heaps, storePairs, filter, hook, interrupted)
	case ParallelOverProbes:
		err = idx.searchOverProbes(ctx, queries, keys, heaps, storePairs, filter, hook, interrupted)
	default:
		return nil, ivferr.New(ivferr.Unsupported, "ivf", "search", fmt.Sprintf("parallel_mode %d is not valid for search (2 is range-search only)", idx.cfg.ParallelMode))
	}
	if err != nil {
		return nil, err
	}
	if interrupted.IsInterrupted() {
		return nil, ivferr.New(ivferr.Interrupted, "ivf", "search", "computation interrupted")
	}
	return heaps, nil
}

// searchCounters accumulates the C9 reduction (nlistv, ndis,
// nheap_updates) across goroutines via atomics, flushed to the
// process-wide sink once after the parallel region joins (spec §4.5,
// §5: "flush itself is not atomic — callers accept eventual-consistent
// counter values").
type searchCounters struct {
	nlistv atomic.Int64
	ndis   atomic.Int64
	nheap  atomic.Int64
}

func (c *searchCounters) flush(s interface {
	AddListsScanned(int)
	AddDistances(int)
	AddHeapUpdates(int)
}) {
	s.AddListsScanned(int(c.nlistv.Load()))
	s.AddDistances(int(c.ndis.Load()))
	s.AddHeapUpdates(int(c.nheap.Load()))
}

// searchOverQueries implements parallel_mode 0: threads partition
// queries, each owning its heap end-to-end. max_codes, if set,
// short-circuits the per-query probe sweep once the cumulative
// scanned entry count reaches it.
func (idx *Index) searchOverQueries(ctx context.Context, queries [][]float32, keys [][]int, heaps []*ivfheap.Heap, storePairs bool, filter dmap.Selector, hook interrupt.Hook, interrupted *interrupt.Flag) error {
	nq := len(queries)
	T := idx.cfg.NumWorkers
	if T <= 0 {
		T = 1
	}
	if T > nq {
		T = nq
	}

	var counters searchCounters
	g, _ := errgroup.WithContext(ctx)
	for t := 0; t < T; t++ {
		t := t
		g.Go(func() error {
			sc, err := idx.newScanner()
			if err != nil {
				return err
			}
			for q := t; q < nq; q += T {
				if interrupted.IsInterrupted() {
					return nil
				}
				if hook.IsInterrupted() {
					interrupted.Set()
					return nil
				}

				h := heaps[q]
				sc.SetQuery(queries[q])
				scanned := 0
				for _, l := range keys[q] {
					if l < 0 {
						continue
					}
					if l >= idx.lists.NList() {
						return ivferr.New(ivferr.OutOfRange, "ivf", "search", fmt.Sprintf("probe list %d out of range [0,%d)", l, idx.lists.NList()))
					}
					if idx.lists.ListSize(l) == 0 {
						continue
					}
					if idx.cfg.MaxCodes > 0 && scanned >= idx.cfg.MaxCodes {
						break
					}
					if err := sc.SetList(l); err != nil {
						return err
					}
					before := h.Updates()
					n, listScanned := idx.scanList(sc, l, filter, storePairs, h)
					counters.nlistv.Add(1)
					counters.ndis.Add(int64(n))
					counters.nheap.Add(int64(h.Updates() - before))
					scanned += listScanned
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "search", "search_preassigned (pmode 0) failed").WithCause(err)
	}
	idx.stats.AddQueries(nq)
	counters.flush(idx.stats)
	return nil
}

// searchOverProbes implements parallel_mode 1: queries are processed
// sequentially, but each query's probe lists are fanned out across
// goroutines with private heaps, merged into the final heap via k-way
// heap addition after a barrier. max_codes is not enforceable here
// (spec §4.4.2).
func (idx *Index) searchOverProbes(ctx context.Context, queries [][]float32, keys [][]int, heaps []*ivfheap.Heap, storePairs bool, filter dmap.Selector, hook interrupt.Hook, interrupted *interrupt.Flag) error {
	T := idx.cfg.NumWorkers
	if T <= 0 {
		T = 1
	}

	var counters searchCounters
	for q, query := range queries {
		if interrupted.IsInterrupted() {
			break
		}
		if hook.IsInterrupted() {
			interrupted.Set()
			break
		}

		probes := keys[q]
		workers := T
		if workers > len(probes) {
			workers = len(probes)
		}
		if workers < 1 {
			workers = 1
		}

		k := heaps[q].K()
		partials := make([]*ivfheap.Heap, workers)

		g, _ := errgroup.WithContext(ctx)
		for t := 0; t < workers; t++ {
			t := t
			g.Go(func() error {
				sc, err := idx.newScanner()
				if err != nil {
					return err
				}
				sc.SetQuery(query)
				local := ivfheap.New(idx.cfg.Metric, k)
				for p := t; p < len(probes); p += workers {
					l := probes[p]
					if l < 0 {
						continue
					}
					if l >= idx.lists.NList() {
						return ivferr.New(ivferr.OutOfRange, "ivf", "search", fmt.Sprintf("probe list %d out of range [0,%d)", l, idx.lists.NList()))
					}
					if idx.lists.ListSize(l) == 0 {
						continue
					}
					if err := sc.SetList(l); err != nil {
						return err
					}
					n, _ := idx.scanList(sc, l, filter, storePairs, local)
					counters.nlistv.Add(1)
					counters.ndis.Add(int64(n))
				}
				partials[t] = local
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ivferr.New(ivferr.Internal, "ivf", "search", "search_preassigned (pmode 1) failed").WithCause(err)
		}

		// Barrier-guarded critical section: merge every worker's
		// private heap into the final per-query heap.
		before := heaps[q].Updates()
		for _, p := range partials {
			if p != nil {
				heaps[q].AddN(p)
			}
		}
		counters.nheap.Add(int64(heaps[q].Updates() - before))
	}

	idx.stats.AddQueries(len(queries))
	counters.flush(idx.stats)
	return nil
}

// scannerCodes is the narrow slice of the Scanner interface scanList
// needs, letting it serve both the full-heap path (search) and the
// private-heap-per-worker path (pmode 1) identically.
type scannerCodes interface {
	ScanCodes(ids []int64, codes []byte, h *ivfheap.Heap) int
}

// scanList scores every candidate in list l against the scanner's
// current query, applying filter before scoring and substituting
// lo-handles for external ids when storePairs is set (store-pairs
// mode, used by search_and_reconstruct). Returns the number of
// distances computed and the unfiltered list size (for max_codes
// bookkeeping, which counts scanned entries, not surviving ones).
func (idx *Index) scanList(sc scannerCodes, l int, filter dmap.Selector, storePairs bool, h *ivfheap.Heap) (ndis, listSize int) {
	allIDs := idx.lists.GetIDs(l)
	allCodes := idx.lists.GetCodes(l)
	codeSize := idx.lists.CodeSize()
	listSize = len(allIDs)

	ids, codes, offsets := filterList(allIDs, allCodes, codeSize, filter)
	if len(ids) == 0 {
		return 0, listSize
	}
	labels := ids
	if storePairs {
		labels = make([]int64, len(offsets))
		for i, off := range offsets {
			labels[i] = dmap.Pack(l, off)
		}
	}
	return sc.ScanCodes(labels, codes, h), listSize
}

// filterList returns the subset of ids/codes not excluded by filter,
// alongside each surviving entry's original offset in the list (spec
// §4.4.3). filter == nil is the common fast path: no copy is made.
func filterList(ids []int64, codes []byte, codeSize int, filter dmap.Selector) (outIDs []int64, outCodes []byte, offsets []int) {
	if filter == nil {
		offsets = make([]int, len(ids))
		for i := range offsets {
			offsets[i] = i
		}
		return ids, codes, offsets
	}
	outIDs = make([]int64, 0, len(ids))
	outCodes = make([]byte, 0, len(codes))
	offsets = make([]int, 0, len(ids))
	for i, id := range ids {
		if filter.Test(id) {
			continue
		}
		outIDs = append(outIDs, id)
		outCodes = append(outCodes, codes[i*codeSize:(i+1)*codeSize]...)
		offsets = append(offsets, i)
	}
	return outIDs, outCodes, offsets
}

func flattenKeys(keys [][]int) []int64 {
	var out []int64
	for _, row := range keys {
		for _, l := range row {
			if l >= 0 {
				out = append(out, int64(l))
			}
		}
	}
	return out
}
