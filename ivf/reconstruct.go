package ivf

import (
	"context"
	"fmt"
	"math"

	"github.com/ivfgo/ivfindex/internal/codec"
	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/ivferr"
)

// reconstructFromOffset decodes the code stored at (list, offset) back
// into a vector, per spec §4.4.5. Product codes are trained and
// encoded against the list's residual, so decoding adds the list
// centroid back; scalar codes are already in vector space.
func (idx *Index) reconstructFromOffset(list, offset int) ([]float32, error) {
	code, err := idx.lists.GetSingleCode(list, offset)
	if err != nil {
		return nil, err
	}
	decoded, err := idx.codec.Decode(code)
	if err != nil {
		return nil, err
	}
	if _, isProduct := idx.codec.(*codec.ProductCodec); !isProduct {
		return decoded, nil
	}
	centroid, err := idx.level1.Quantizer.Centroid(list)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(decoded))
	for d := range decoded {
		out[d] = decoded[d] + centroid[d]
	}
	return out, nil
}

// Reconstruct looks up id's (list, offset) via the direct map and
// decodes its stored code back into a vector (spec §4.4.5). Requires a
// direct map; the base contract has no fallback path.
func (idx *Index) Reconstruct(id int64) ([]float32, error) {
	if idx.dm.Mode() == dmap.None {
		return nil, ivferr.New(ivferr.Unsupported, "ivf", "reconstruct", "reconstruct requires a direct map (mode is none)")
	}
	lo, ok := idx.dm.Get(id)
	if !ok {
		return nil, ivferr.New(ivferr.OutOfRange, "ivf", "reconstruct", fmt.Sprintf("id %d not present in the index", id))
	}
	return idx.reconstructFromOffset(dmap.UnpackList(lo), dmap.UnpackOffset(lo))
}

// ReconstructN reconstructs every id in [i0, i0+ni) by scanning every
// list, regardless of whether a direct map is present — O(ntotal) by
// design (spec §9). Ids with no matching entry are left as a nil
// vector in the returned slice.
func (idx *Index) ReconstructN(i0 int64, ni int) ([][]float32, error) {
	if ni < 0 {
		return nil, ivferr.New(ivferr.InvalidArgument, "ivf", "reconstruct_n", "ni must be non-negative")
	}
	out := make([][]float32, ni)
	for l := 0; l < idx.lists.NList(); l++ {
		ids := idx.lists.GetIDs(l)
		for off, id := range ids {
			if id < i0 || id >= i0+int64(ni) {
				continue
			}
			v, err := idx.reconstructFromOffset(l, off)
			if err != nil {
				return nil, err
			}
			out[id-i0] = v
		}
	}
	return out, nil
}

// SearchAndReconstruct runs search_preassigned with store_pairs=true
// so the heap carries lo-handles instead of external ids, then
// resolves each surviving candidate's real id and reconstructed
// vector (spec §4.4.5). A -1 label (unfilled heap slot) is reported
// with id -1 and a NaN-filled vector, matching §8's sentinel rule.
func (idx *Index) SearchAndReconstruct(ctx context.Context, queries [][]float32, k int, filter dmap.Selector) ([][]ReconstructResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if !idx.trained {
		return nil, ivferr.New(ivferr.NotTrained, "ivf", "search_and_reconstruct", "index must be trained before search")
	}
	if k <= 0 {
		return nil, ivferr.New(ivferr.InvalidArgument, "ivf", "search_and_reconstruct", "k must be positive")
	}
	for i, q := range queries {
		if len(q) != idx.cfg.Dim {
			return nil, ivferr.New(ivferr.DimensionMismatch, "ivf", "search_and_reconstruct", fmt.Sprintf("query %d has dim %d, want %d", i, len(q), idx.cfg.Dim))
		}
	}

	keys, coarseDis, err := idx.level1.Quantizer.Search(queries, idx.cfg.NProbe)
	if err != nil {
		return nil, ivferr.New(ivferr.Internal, "ivf", "search_and_reconstruct", "coarse quantizer search failed").WithCause(err)
	}
	idx.lists.PrefetchLists(flattenKeys(keys))

	heaps, err := idx.searchPreassigned(ctx, queries, keys, coarseDis, k, true, filter, true, nil)
	if err != nil {
		return nil, err
	}

	out := make([][]ReconstructResult, len(queries))
	for qi, h := range heaps {
		sorted := h.Sorted()
		row := make([]ReconstructResult, len(sorted))
		for i, e := range sorted {
			if e.Label < 0 {
				row[i] = ReconstructResult{ID: -1, Distance: e.Dist, Vector: nanVector(idx.cfg.Dim)}
				continue
			}
			list, offset := dmap.UnpackList(e.Label), dmap.UnpackOffset(e.Label)
			realID, err := idx.lists.GetSingleID(list, offset)
			if err != nil {
				return nil, err
			}
			vec, err := idx.reconstructFromOffset(list, offset)
			if err != nil {
				return nil, err
			}
			row[i] = ReconstructResult{ID: realID, Distance: e.Dist, Vector: vec}
		}
		out[qi] = row
	}
	return out, nil
}

func nanVector(d int) []float32 {
	v := make([]float32, d)
	nan := float32(math.NaN())
	for i := range v {
		v[i] = nan
	}
	return v
}
