// Package coarse implements the C2/C3 roles of the IVF search core:
// the coarse quantizer contract (a pluggable nearest-centroid index)
// and the Level-1 wrapper that owns its lifecycle, drives training,
// and codes list numbers into byte slots.
package coarse

import (
	"context"
	"fmt"

	"github.com/ivfgo/ivfindex/internal/metric"
)

// Quantizer is the external collaborator contract from spec §6: map
// vectors to the nearest centroid(s) out of nlist. Any concrete
// nearest-centroid index can implement it; FlatQuantizer below is the
// one concrete implementation this repository ships.
type Quantizer interface {
	Dim() int
	IsTrained() bool
	Ntotal() int

	// Train lets the quantizer train itself on the input vectors
	// (used by TrainAlone). Reset()+Add() is the alternative path
	// used by the other training strategies.
	Train(ctx context.Context, vectors [][]float32) error

	// Add appends centroids to the quantizer's internal store.
	Add(vectors [][]float32) error

	// Reset discards all centroids, returning the quantizer to an
	// untrained, empty state.
	Reset()

	// Assign returns, for each vector, the id of its single nearest
	// centroid, or -1 if the quantizer has no centroids at all.
	Assign(vectors [][]float32) ([]int, error)

	// Search returns, for each vector, the ids and scores of its k
	// nearest centroids in ascending-distance (or descending
	// similarity) order. Fewer than k results are padded with -1 ids
	// when the quantizer holds fewer than k centroids.
	Search(vectors [][]float32, k int) (ids [][]int, scores [][]float32, err error)

	// Centroid returns the stored vector for a centroid id, used by
	// product-quantization scanners to compute the residual a code was
	// trained and encoded against.
	Centroid(id int) ([]float32, error)
}

// FlatQuantizer is a brute-force nearest-centroid index: every
// Assign/Search call scans all stored centroids linearly. It plays the
// coarse-quantizer role for small-to-medium nlist, and also serves as
// the default "auxiliary clustering index" used during training.
type FlatQuantizer struct {
	dim       int
	metric    metric.Type
	centroids [][]float32
}

// NewFlatQuantizer creates an empty flat quantizer over vectors of the
// given dimension, scored under m.
func NewFlatQuantizer(dim int, m metric.Type) *FlatQuantizer {
	return &FlatQuantizer{dim: dim, metric: m}
}

func (f *FlatQuantizer) Dim() int       { return f.dim }
func (f *FlatQuantizer) IsTrained() bool { return len(f.centroids) > 0 }
func (f *FlatQuantizer) Ntotal() int    { return len(f.centroids) }

// Train is a no-op for FlatQuantizer: it never trains itself, it only
// stores whatever centroids are handed to it via Add.
func (f *FlatQuantizer) Train(ctx context.Context, vectors [][]float32) error {
	return nil
}

func (f *FlatQuantizer) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("coarse: centroid dimension %d does not match index dimension %d", len(v), f.dim)
		}
		cp := make([]float32, f.dim)
		copy(cp, v)
		f.centroids = append(f.centroids, cp)
	}
	return nil
}

func (f *FlatQuantizer) Reset() {
	f.centroids = nil
}

func (f *FlatQuantizer) Centroid(id int) ([]float32, error) {
	if id < 0 || id >= len(f.centroids) {
		return nil, fmt.Errorf("coarse: centroid id %d out of range [0,%d)", id, len(f.centroids))
	}
	return f.centroids[id], nil
}

func (f *FlatQuantizer) Assign(vectors [][]float32) ([]int, error) {
	ids, _, err := f.Search(vectors, 1)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vectors))
	for i, row := range ids {
		if len(row) == 0 {
			out[i] = -1
			continue
		}
		out[i] = row[0]
	}
	return out, nil
}

func (f *FlatQuantizer) Search(vectors [][]float32, k int) ([][]int, [][]float32, error) {
	score := metric.Of(f.metric)
	idsOut := make([][]int, len(vectors))
	scoresOut := make([][]float32, len(vectors))

	for qi, v := range vectors {
		if len(v) != f.dim {
			return nil, nil, fmt.Errorf("coarse: query dimension %d does not match index dimension %d", len(v), f.dim)
		}
		type cand struct {
			id    int
			score float32
		}
		cands := make([]cand, len(f.centroids))
		for ci, c := range f.centroids {
			cands[ci] = cand{id: ci, score: score(v, c)}
		}
		better := f.metric.Better
		// simple selection of the top-k; nlist is small relative to
		// query volume so a full sort is not worth avoiding here.
		for i := 0; i < len(cands); i++ {
			best := i
			for j := i + 1; j < len(cands); j++ {
				if better(cands[j].score, cands[best].score) {
					best = j
				}
			}
			cands[i], cands[best] = cands[best], cands[i]
		}
		n := k
		if n > len(cands) {
			n = len(cands)
		}
		ids := make([]int, k)
		scores := make([]float32, k)
		worst := f.metric.Worst()
		for i := 0; i < k; i++ {
			if i < n {
				ids[i] = cands[i].id
				scores[i] = cands[i].score
			} else {
				ids[i] = -1
				scores[i] = worst
			}
		}
		idsOut[qi] = ids
		scoresOut[qi] = scores
	}
	return idsOut, scoresOut, nil
}
