// Package bitset implements the C8 id-exclusion filter search uses to
// skip candidates during a scan, backed by a compressed roaring
// bitmap instead of a plain map[int64]struct{} so that large,
// contiguous id ranges (a common exclusion pattern — "everything
// already returned", "everything from tenant X") cost close to
// nothing to store.
package bitset

import "github.com/RoaringBitmap/roaring/v2/roaring64"

// FilterBitset tests membership of an external id. It implements
// dmap.Selector so the same filter can also drive RemoveIDs.
type FilterBitset struct {
	bm *roaring64.Bitmap
}

// New creates an empty filter.
func New() *FilterBitset {
	return &FilterBitset{bm: roaring64.New()}
}

// FromIDs builds a filter containing exactly the given ids.
func FromIDs(ids []int64) *FilterBitset {
	f := New()
	for _, id := range ids {
		f.Add(id)
	}
	return f
}

func (f *FilterBitset) Add(id int64) { f.bm.Add(uint64(id)) }

func (f *FilterBitset) Remove(id int64) { f.bm.Remove(uint64(id)) }

// Test reports whether id is a member of the filter.
func (f *FilterBitset) Test(id int64) bool { return f.bm.Contains(uint64(id)) }

func (f *FilterBitset) Len() int { return int(f.bm.GetCardinality()) }

// IDs enumerates every member, letting RemoveIDs resolve them through
// a direct map instead of scanning every inverted list.
func (f *FilterBitset) IDs() []int64 {
	it := f.bm.Iterator()
	out := make([]int64, 0, f.bm.GetCardinality())
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out
}

// Union returns a new filter containing every id in f or other.
func (f *FilterBitset) Union(other *FilterBitset) *FilterBitset {
	out := &FilterBitset{bm: f.bm.Clone()}
	out.bm.Or(other.bm)
	return out
}
