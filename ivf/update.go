package ivf

import (
	"context"
	"fmt"

	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/ivferr"
)

// RemoveIDs deletes every id the selector matches, swapping each
// victim with its list's tail entry and repairing the direct map for
// both the victim and the displaced tail entry (spec §4.3/§4.4.6). It
// requires a direct map; returns the count of ids actually removed.
func (idx *Index) RemoveIDs(sel dmap.Selector) (int, error) {
	n, err := idx.dm.RemoveIDs(sel, idx.lists)
	if err != nil {
		return n, ivferr.New(ivferr.Unsupported, "ivf", "remove_ids", err.Error())
	}
	idx.ntotal -= n
	return n, nil
}

// UpdateVectors relocates or re-encodes the stored entry for each id
// in ids to match vectors, following the direct-map-mode-dependent
// strategy in spec §4.4.6: Hashtable mode deletes then re-adds (every
// id must already exist); Array mode reassigns and re-encodes in
// place via DirectMap.UpdateCodes; None is unsupported.
func (idx *Index) UpdateVectors(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "update_vectors", "ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != idx.cfg.Dim {
			return ivferr.New(ivferr.DimensionMismatch, "ivf", "update_vectors", fmt.Sprintf("vector %d has dim %d, want %d", i, len(v), idx.cfg.Dim))
		}
	}

	switch idx.dm.Mode() {
	case dmap.None:
		return ivferr.New(ivferr.Unsupported, "ivf", "update_vectors", "update_vectors requires a direct map (mode is none)")

	case dmap.Hashtable:
		for _, id := range ids {
			if _, ok := idx.dm.Get(id); !ok {
				return ivferr.New(ivferr.InvalidArgument, "ivf", "update_vectors", fmt.Sprintf("id %d does not exist, hashtable update requires every id to be present", id))
			}
		}
		removed, err := idx.dm.RemoveIDs(dmap.NewIDSet(ids), idx.lists)
		if err != nil {
			return ivferr.New(ivferr.Internal, "ivf", "update_vectors", "delete phase failed").WithCause(err)
		}
		idx.ntotal -= removed
		return idx.Add(ctx, vectors, ids)

	default: // Array
		assign, err := idx.level1.Quantizer.Assign(vectors)
		if err != nil {
			return ivferr.New(ivferr.Internal, "ivf", "update_vectors", "coarse assignment failed").WithCause(err)
		}
		for i, l := range assign {
			if l < 0 {
				return ivferr.New(ivferr.Internal, "ivf", "update_vectors", fmt.Sprintf("vector %d could not be assigned to any list", i))
			}
		}
		codes, err := idx.encodeForAdd(vectors, assign)
		if err != nil {
			return ivferr.New(ivferr.Internal, "ivf", "update_vectors", "re-encoding failed").WithCause(err)
		}
		if err := idx.dm.UpdateCodes(idx.lists, ids, assign, codes); err != nil {
			return ivferr.New(ivferr.Internal, "ivf", "update_vectors", "update_codes failed").WithCause(err)
		}
		return nil
	}
}
