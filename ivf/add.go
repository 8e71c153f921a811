package ivf

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ivfgo/ivfindex/internal/ivferr"
)

// Add inserts vectors into the index, auto-assigning ids ntotal,
// ntotal+1, … when ids is nil, or using the caller's explicit ids
// otherwise (spec §4.4.1).
func (idx *Index) Add(ctx context.Context, vectors [][]float32, ids []int64) error {
	if len(vectors) == 0 {
		return nil
	}
	if ids != nil && len(ids) != len(vectors) {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "add", "ids length does not match vectors length")
	}

	// Split oversized batches so no single call holds more than
	// addChunkSize vectors in flight at once (spec §4.4.1 step 1).
	if len(vectors) > addChunkSize {
		for start := 0; start < len(vectors); start += addChunkSize {
			end := min(start+addChunkSize, len(vectors))
			var chunkIDs []int64
			if ids != nil {
				chunkIDs = ids[start:end]
			}
			if err := idx.Add(ctx, vectors[start:end], chunkIDs); err != nil {
				return err
			}
		}
		return nil
	}

	if !idx.trained {
		return ivferr.New(ivferr.NotTrained, "ivf", "add", "index must be trained before add")
	}
	for i, v := range vectors {
		if len(v) != idx.cfg.Dim {
			return ivferr.New(ivferr.DimensionMismatch, "ivf", "add", fmt.Sprintf("vector %d has dim %d, want %d", i, len(v), idx.cfg.Dim))
		}
	}
	if err := idx.dm.CheckCanAdd(idx.ntotal, ids); err != nil {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "add", err.Error())
	}

	n := len(vectors)
	finalIDs := make([]int64, n)
	if ids == nil {
		for i := 0; i < n; i++ {
			finalIDs[i] = int64(idx.ntotal + i)
		}
	} else {
		copy(finalIDs, ids)
	}

	assign, err := idx.level1.Quantizer.Assign(vectors)
	if err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "add", "coarse assignment failed").WithCause(err)
	}

	codes, err := idx.encodeForAdd(vectors, assign)
	if err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "add", "vector encoding failed").WithCause(err)
	}

	T := idx.cfg.NumWorkers
	if T <= 0 {
		T = 1
	}
	if T > n {
		T = n
	}

	// Partition appends by list_no mod T: each goroutine owns every
	// list whose id falls in its partition, so no two goroutines ever
	// write the same list and no lock is needed at this layer (spec
	// §4.4.1 step 5). Goroutine 0 additionally passes -1 assignments to
	// the direct map, whose Record leaves them unindexed.
	g, _ := errgroup.WithContext(ctx)
	for t := 0; t < T; t++ {
		t := t
		g.Go(func() error {
			for i := 0; i < n; i++ {
				l := assign[i]
				if l < 0 {
					if t == 0 {
						if err := idx.dm.Record(finalIDs[i], -1, 0); err != nil {
							return err
						}
					}
					continue
				}
				if l%T != t {
					continue
				}
				offset, err := idx.lists.AddEntry(l, finalIDs[i], codes[i])
				if err != nil {
					return err
				}
				if err := idx.dm.Record(finalIDs[i], l, offset); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "add", "partitioned append failed").WithCause(err)
	}

	// -1-assigned vectors still count toward ntotal (spec §9).
	idx.ntotal += n
	return nil
}
