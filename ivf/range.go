package ivf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/interrupt"
	"github.com/ivfgo/ivfindex/internal/ivferr"
)

// RangeSearch returns every database vector within radius of each
// query (spec §4.4.4): unlike Search, the result set per query is
// unbounded, so each list scan appends to a per-query result bucket
// instead of a fixed-size heap.
func (idx *Index) RangeSearch(ctx context.Context, queries [][]float32, radius float32, filter dmap.Selector) ([][]Result, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if !idx.trained {
		return nil, ivferr.New(ivferr.NotTrained, "ivf", "range_search", "index must be trained before range_search")
	}
	for i, q := range queries {
		if len(q) != idx.cfg.Dim {
			return nil, ivferr.New(ivferr.DimensionMismatch, "ivf", "range_search", fmt.Sprintf("query %d has dim %d, want %d", i, len(q), idx.cfg.Dim))
		}
	}

	keys, _, err := idx.level1.Quantizer.Search(queries, idx.cfg.NProbe)
	if err != nil {
		return nil, ivferr.New(ivferr.Internal, "ivf", "range_search", "coarse quantizer search failed").WithCause(err)
	}
	idx.lists.PrefetchLists(flattenKeys(keys))

	buckets := make([][]Result, len(queries))
	mus := make([]sync.Mutex, len(queries))

	hook := idx.hook
	interrupted := &interrupt.Flag{}
	var counters searchCounters

	switch idx.cfg.ParallelMode {
	case ParallelOverQueries:
		err = idx.rangeOverQueries(ctx, queries, keys, radius, filter, buckets, mus, hook, interrupted, &counters)
	case ParallelOverProbes:
		err = idx.rangeOverProbes(ctx, queries, keys, radius, filter, buckets, mus, hook, interrupted, &counters)
	case ParallelOverPairs:
		err = idx.rangeOverPairs(ctx, queries, keys, radius, filter, buckets, mus, hook, interrupted, &counters)
	default:
		return nil, ivferr.New(ivferr.Unsupported, "ivf", "range_search", fmt.Sprintf("unknown parallel_mode %d", idx.cfg.ParallelMode))
	}
	if err != nil {
		return nil, err
	}
	if interrupted.IsInterrupted() {
		return nil, ivferr.New(ivferr.Interrupted, "ivf", "range_search", "computation interrupted")
	}

	idx.stats.AddQueries(len(queries))
	counters.flush(idx.stats)
	return buckets, nil
}

// scanListRange scores every candidate in list l within radius of the
// scanner's current query and appends survivors to bucket under mu.
func (idx *Index) scanListRange(sc interface {
	ScanCodesRange(ids []int64, codes []byte, radius float32, collect func(id int64, dist float32)) int
}, l int, radius float32, filter dmap.Selector, bucket *[]Result, mu *sync.Mutex) int {
	allIDs := idx.lists.GetIDs(l)
	allCodes := idx.lists.GetCodes(l)
	codeSize := idx.lists.CodeSize()

	ids, codes, _ := filterList(allIDs, allCodes, codeSize, filter)
	if len(ids) == 0 {
		return 0
	}
	return sc.ScanCodesRange(ids, codes, radius, func(id int64, dist float32) {
		mu.Lock()
		*bucket = append(*bucket, Result{ID: id, Distance: dist})
		mu.Unlock()
	})
}

// rangeOverQueries is parallel_mode 0: threads partition queries.
func (idx *Index) rangeOverQueries(ctx context.Context, queries [][]float32, keys [][]int, radius float32, filter dmap.Selector, buckets [][]Result, mus []sync.Mutex, hook interrupt.Hook, interrupted *interrupt.Flag, counters *searchCounters) error {
	nq := len(queries)
	T := idx.cfg.NumWorkers
	if T <= 0 {
		T = 1
	}
	if T > nq {
		T = nq
	}

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
				sc.SetQuery(queries[q])
				for _, l := range keys[q] {
					if l < 0 {
						continue
					}
					if l >= idx.lists.NList() {
						return ivferr.New(ivferr.OutOfRange, "ivf", "range_search", fmt.Sprintf("probe list %d out of range [0,%d)", l, idx.lists.NList()))
					}
					if idx.lists.ListSize(l) == 0 {
						continue
					}
					if err := sc.SetList(l); err != nil {
						return err
					}
					n := idx.scanListRange(sc, l, radius, filter, &buckets[q], &mus[q])
					counters.nlistv.Add(1)
					counters.ndis.Add(int64(n))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "range_search", "range_search (pmode 0) failed").WithCause(err)
	}
	return nil
}

// rangeOverProbes is parallel_mode 1: sequential queries, parallel
// over that query's probes.
func (idx *Index) rangeOverProbes(ctx context.Context, queries [][]float32, keys [][]int, radius float32, filter dmap.Selector, buckets [][]Result, mus []sync.Mutex, hook interrupt.Hook, interrupted *interrupt.Flag, counters *searchCounters) error {
	T := idx.cfg.NumWorkers
	if T <= 0 {
		T = 1
	}

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

		g, _ := errgroup.WithContext(ctx)
		for t := 0; t < workers; t++ {
			t := t
			g.Go(func() error {
				sc, err := idx.newScanner()
				if err != nil {
					return err
				}
				sc.SetQuery(query)
				for p := t; p < len(probes); p += workers {
					l := probes[p]
					if l < 0 {
						continue
					}
					if l >= idx.lists.NList() {
						return ivferr.New(ivferr.OutOfRange, "ivf", "range_search", fmt.Sprintf("probe list %d out of range [0,%d)", l, idx.lists.NList()))
					}
					if idx.lists.ListSize(l) == 0 {
						continue
					}
					if err := sc.SetList(l); err != nil {
						return err
					}
					n := idx.scanListRange(sc, l, radius, filter, &buckets[q], &mus[q])
					counters.nlistv.Add(1)
					counters.ndis.Add(int64(n))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ivferr.New(ivferr.Internal, "ivf", "range_search", "range_search (pmode 1) failed").WithCause(err)
		}
	}
	return nil
}

// rangeOverPairs is parallel_mode 2: the flat (query, probe) cartesian
// product is split into contiguous runs across goroutines, each
// visiting queries in non-decreasing order and flushing its local
// per-query accumulation into the shared bucket whenever the query
// index advances (spec §4.4.4).
func (idx *Index) rangeOverPairs(ctx context.Context, queries [][]float32, keys [][]int, radius float32, filter dmap.Selector, buckets [][]Result, mus []sync.Mutex, hook interrupt.Hook, interrupted *interrupt.Flag, counters *searchCounters) error {
	type pair struct{ q, l int }
	var pairs []pair
	for q, row := range keys {
		for _, l := range row {
			pairs = append(pairs, pair{q, l})
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	T := idx.cfg.NumWorkers
	if T <= 0 {
		T = 1
	}
	if T > len(pairs) {
		T = len(pairs)
	}
	chunk := (len(pairs) + T - 1) / T

	g, _ := errgroup.WithContext(ctx)
	for t := 0; t < T; t++ {
		start := t * chunk
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			sc, err := idx.newScanner()
			if err != nil {
				return err
			}
			localQ := -1
			var local []Result
			var localNlistv, localNdis int64

			flush := func() {
				if localQ >= 0 && len(local) > 0 {
					mus[localQ].Lock()
					buckets[localQ] = append(buckets[localQ], local...)
					mus[localQ].Unlock()
				}
				local = nil
			}

			for _, pr := range pairs[start:end] {
				if pr.q != localQ {
					if interrupted.IsInterrupted() {
						flush()
						return nil
					}
					if hook.IsInterrupted() {
						interrupted.Set()
						flush()
						return nil
					}
					flush()
					localQ = pr.q
					sc.SetQuery(queries[pr.q])
				}
				l := pr.l
				if l < 0 {
					continue
				}
				if l >= idx.lists.NList() {
					return ivferr.New(ivferr.OutOfRange, "ivf", "range_search", fmt.Sprintf("probe list %d out of range [0,%d)", l, idx.lists.NList()))
				}
				if idx.lists.ListSize(l) == 0 {
					continue
				}
				if err := sc.SetList(l); err != nil {
					return err
				}
				allIDs := idx.lists.GetIDs(l)
				allCodes := idx.lists.GetCodes(l)
				codeSize := idx.lists.CodeSize()
				ids, codes, _ := filterList(allIDs, allCodes, codeSize, filter)
				if len(ids) == 0 {
					localNlistv++
					continue
				}
				n := sc.ScanCodesRange(ids, codes, radius, func(id int64, dist float32) {
					local = append(local, Result{ID: id, Distance: dist})
				})
				localNlistv++
				localNdis += int64(n)
			}
			flush()
			counters.nlistv.Add(localNlistv)
			counters.ndis.Add(localNdis)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "range_search", "range_search (pmode 2) failed").WithCause(err)
	}
	return nil
}
