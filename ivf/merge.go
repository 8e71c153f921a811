package ivf

import (
	"fmt"

	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/ivferr"
)

// MergeFrom appends other's entries onto idx, shifting other's ids by
// addID, and empties other (spec §4.4.7). Both indexes must share d,
// nlist, and code_size, and neither may have a direct map enabled, so
// the merged index has no direct map and does not support Reconstruct,
// RemoveIDs or UpdateVectors.
func (idx *Index) MergeFrom(other *Index, addID int64) error {
	if other.cfg.Dim != idx.cfg.Dim {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "merge", fmt.Sprintf("dimension mismatch: %d vs %d", other.cfg.Dim, idx.cfg.Dim))
	}
	if other.lists.NList() != idx.lists.NList() {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "merge", fmt.Sprintf("nlist mismatch: %d vs %d", other.lists.NList(), idx.lists.NList()))
	}
	if other.lists.CodeSize() != idx.lists.CodeSize() {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "merge", fmt.Sprintf("code_size mismatch: %d vs %d", other.lists.CodeSize(), idx.lists.CodeSize()))
	}
	if idx.dm.Mode() != dmap.None || other.dm.Mode() != dmap.None {
		return ivferr.New(ivferr.Unsupported, "ivf", "merge", "merge requires direct maps disabled on both indexes")
	}

	if err := idx.lists.MergeFrom(other.lists, addID); err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "merge", "inverted-list merge failed").WithCause(err)
	}
	idx.ntotal += other.ntotal
	other.ntotal = 0
	return nil
}

// SubsetType selects how CopySubsetTo chooses which entries to copy.
type SubsetType int

const (
	// SubsetIDRange copies entries whose id lies in [a1, a2).
	SubsetIDRange SubsetType = iota
	// SubsetIDModulo copies entries where id % a1 == a2.
	SubsetIDModulo
	// SubsetProportional copies a contiguous per-list slice so the
	// total copied tends to the fractions a1/ntotal and a2/ntotal of
	// the full dataset, in list-encounter order.
	SubsetProportional
)

// CopySubsetTo copies a selected subset of idx's entries into other,
// per one of the three SubsetType strategies (spec §4.4.7). other must
// already share idx's code_size.
func (idx *Index) CopySubsetTo(other *Index, subsetType SubsetType, a1, a2 int64) error {
	if other.lists.CodeSize() != idx.lists.CodeSize() {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "copy_subset_to", fmt.Sprintf("code_size mismatch: %d vs %d", other.lists.CodeSize(), idx.lists.CodeSize()))
	}
	if other.lists.NList() != idx.lists.NList() {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "copy_subset_to", fmt.Sprintf("nlist mismatch: %d vs %d", other.lists.NList(), idx.lists.NList()))
	}

	codeSize := idx.lists.CodeSize()
	var copied int
	// Running cumulative counters for SubsetProportional: accuN is how
	// many entries have been visited across all lists so far, accuA1
	// and accuA2 are the boundary positions those fractions map to,
	// each recomputed with exact integer arithmetic per list to avoid
	// accumulating rounding drift (spec §4.4.7, §9).
	var accuN, accuA1, accuA2 int64

	for l := 0; l < idx.lists.NList(); l++ {
		ids := idx.lists.GetIDs(l)
		codes := idx.lists.GetCodes(l)
		n := len(ids)

		copyEntry := func(i int) error {
			offset, err := other.lists.AddEntry(l, ids[i], codes[i*codeSize:(i+1)*codeSize])
			if err != nil {
				return err
			}
			if other.dm.Mode() != dmap.None {
				if err := other.dm.Record(ids[i], l, offset); err != nil {
					return err
				}
			}
			copied++
			return nil
		}

		switch subsetType {
		case SubsetIDRange:
			for i := 0; i < n; i++ {
				if ids[i] >= a1 && ids[i] < a2 {
					if err := copyEntry(i); err != nil {
						return ivferr.New(ivferr.Internal, "ivf", "copy_subset_to", "append failed").WithCause(err)
					}
				}
			}

		case SubsetIDModulo:
			if a1 == 0 {
				return ivferr.New(ivferr.InvalidArgument, "ivf", "copy_subset_to", "id-modulo subset requires a1 != 0")
			}
			for i := 0; i < n; i++ {
				if ids[i]%a1 == a2 {
					if err := copyEntry(i); err != nil {
						return ivferr.New(ivferr.Internal, "ivf", "copy_subset_to", "append failed").WithCause(err)
					}
				}
			}

		case SubsetProportional:
			if idx.ntotal == 0 {
				continue
			}
			listSize := int64(n)
			nextN := accuN + listSize
			nextA1 := nextN * a1 / int64(idx.ntotal)
			nextA2 := nextN * a2 / int64(idx.ntotal)
			i1 := nextA1 - accuA1
			i2 := nextA2 - accuA2
			if i1 < 0 {
				i1 = 0
			}
			if i2 > listSize {
				i2 = listSize
			}
			for i := i1; i < i2; i++ {
				if err := copyEntry(int(i)); err != nil {
					return ivferr.New(ivferr.Internal, "ivf", "copy_subset_to", "append failed").WithCause(err)
				}
			}
			accuN, accuA1, accuA2 = nextN, nextA1, nextA2

		default:
			return ivferr.New(ivferr.InvalidArgument, "ivf", "copy_subset_to", fmt.Sprintf("unknown subset_type %d", subsetType))
		}
	}

	other.ntotal += copied
	return nil
}
