package coarse

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/ivfgo/ivfindex/internal/metric"
)

// TrainStrategy selects how the Level-1 quantizer is trained, per
// spec §4.1 (quantizer_trains_alone ∈ {0,1,2}).
type TrainStrategy int

const (
	// TrainJoint (0, default): run k-means on the input vectors,
	// reset the quantizer and add the resulting centroids.
	TrainJoint TrainStrategy = iota
	// TrainAlone (1): delegate fully to the quantizer's own Train.
	TrainAlone
	// TrainL2Explicit (2): require metric = L2; cluster with a fresh
	// flat L2 assigner (or the supplied auxiliary index) and add
	// centroids without resetting.
	TrainL2Explicit
)

// Level1 owns the coarse quantizer's lifecycle: training strategy,
// clustering parameters, and an optional auxiliary clustering index
// used only to accelerate nearest-centroid assignment during
// training (§4.1).
type Level1 struct {
	Quantizer     Quantizer
	NList         int
	Metric        metric.Type
	Strategy      TrainStrategy
	MaxIterations int
	Tolerance     float64
	RandomSeed    int64

	// Aux, if non-nil, is used as the nearest-centroid assigner
	// during k-means instead of the real quantizer under training.
	Aux Quantizer
}

// IsTrained reports whether the quantizer already holds nlist
// centroids.
func (l *Level1) IsTrained() bool {
	return l.Quantizer.IsTrained() && l.Quantizer.Ntotal() == l.NList
}

// Train runs the configured strategy. If the quantizer already
// reports ntotal == nlist, training is a no-op (§4.1).
func (l *Level1) Train(ctx context.Context, vectors [][]float32) error {
	if l.IsTrained() {
		return nil
	}
	if len(vectors) < l.NList {
		return fmt.Errorf("coarse: need at least %d training vectors for %d clusters, got %d", l.NList, l.NList, len(vectors))
	}

	switch l.Strategy {
	case TrainAlone:
		if err := l.Quantizer.Train(ctx, vectors); err != nil {
			return fmt.Errorf("coarse: quantizer training failed: %w", err)
		}
		if l.Quantizer.Ntotal() != l.NList {
			return fmt.Errorf("coarse: quantizer trained alone but reports ntotal=%d, want %d", l.Quantizer.Ntotal(), l.NList)
		}
		return nil

	case TrainL2Explicit:
		if l.Metric != metric.L2 {
			return fmt.Errorf("coarse: TrainL2Explicit requires L2 metric, got %s", l.Metric)
		}
		assigner := l.Aux
		if assigner == nil {
			assigner = NewFlatQuantizer(l.Quantizer.Dim(), metric.L2)
		}
		centroids, err := kmeans(ctx, vectors, l.NList, assigner, l.MaxIterations, l.Tolerance, l.RandomSeed, false)
		if err != nil {
			return err
		}
		return l.Quantizer.Add(centroids)

	default: // TrainJoint
		assigner := l.Aux
		if assigner == nil {
			assigner = l.Quantizer
		}
		spherical := l.Metric == metric.InnerProduct
		centroids, err := kmeans(ctx, vectors, l.NList, assigner, l.MaxIterations, l.Tolerance, l.RandomSeed, spherical)
		if err != nil {
			return err
		}
		l.Quantizer.Reset()
		return l.Quantizer.Add(centroids)
	}
}

// kmeans trains nlist centroids over vectors using k-means++
// initialization followed by Lloyd iterations, assigning points to
// their nearest centroid via assigner (which may be a different
// index than the one the centroids end up added to — §4.1's
// auxiliary clustering index). When spherical is true (inner-product
// metric), centroids are re-normalized to unit length after each
// update, matching FAISS's spherical k-means for IP.
func kmeans(ctx context.Context, vectors [][]float32, nlist int, assigner Quantizer, maxIter int, tol float64, seed int64, spherical bool) ([][]float32, error) {
	if len(vectors) < nlist {
		return nil, fmt.Errorf("coarse: not enough vectors (%d) to form %d clusters", len(vectors), nlist)
	}
	dim := len(vectors[0])
	r := rand.New(rand.NewSource(seed))

	centroids := make([][]float32, nlist)
	centroids[0] = cloneVec(vectors[r.Intn(len(vectors))])
	for k := 1; k < nlist; k++ {
		d2 := make([]float64, len(vectors))
		var total float64
		for i, v := range vectors {
			best := math.Inf(1)
			for j := 0; j < k; j++ {
				dist := float64(metric.Of(metric.L2)(v, centroids[j]))
				if dist < best {
					best = dist
				}
			}
			d2[i] = best
			total += d2[i]
		}
		target := r.Float64() * total
		var cum float64
		chosen := len(vectors) - 1
		for i, d := range d2 {
			cum += d
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids[k] = cloneVec(vectors[chosen])
	}

	prevInertia := math.Inf(1)

	for iter := 0; iter < maxIter; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Reload the assigner with the current centroid set so
		// nearest-centroid lookups reflect this iteration.
		assigner.Reset()
		if err := assigner.Add(centroids); err != nil {
			return nil, err
		}
		assignments, err := assigner.Assign(vectors)
		if err != nil {
			return nil, err
		}

		sums := make([][]float32, nlist)
		counts := make([]int, nlist)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		var inertia float64
		for i, v := range vectors {
			c := assignments[i]
			if c < 0 {
				continue
			}
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += v[d]
			}
			inertia += float64(metric.Of(metric.L2)(v, centroids[c]))
		}

		for c := 0; c < nlist; c++ {
			if counts[c] == 0 {
				centroids[c] = cloneVec(vectors[r.Intn(len(vectors))])
				continue
			}
			for d := 0; d < dim; d++ {
				sums[c][d] /= float32(counts[c])
			}
			if spherical {
				normalize(sums[c])
			}
			centroids[c] = sums[c]
		}

		if prevInertia > 0 && math.Abs(prevInertia-inertia)/prevInertia < tol {
			break
		}
		prevInertia = inertia
	}

	return centroids, nil
}

func cloneVec(v []float32) []float32 {
	cp := make([]float32, len(v))
	copy(cp, v)
	return cp
}

func normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
