package codec

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ivfgo/ivfindex/internal/metric"
)

// ProductCodec quantizes each vector's subspaces independently against
// a per-subspace codebook trained by k-means, generalizing the
// teacher's whole-vector product quantizer to encode residuals against
// an IVF list's coarse centroid instead of the raw vector.
type ProductCodec struct {
	dim       int
	subspaces int
	subDim    int
	bits      int
	m         metric.Type

	trained   bool
	centroids [][][]float32 // [subspace][code][subDim]

	seed int64
}

func NewProductCodec(cfg Config) (*ProductCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ProductCodec{
		dim:       cfg.Dim,
		subspaces: cfg.Subspaces,
		subDim:    cfg.Dim / cfg.Subspaces,
		bits:      cfg.Bits,
		m:         cfg.Metric,
	}, nil
}

func (c *ProductCodec) Dim() int { return c.dim }

func (c *ProductCodec) CodeSize() int {
	return (c.subspaces*c.bits + 7) / 8
}

func (c *ProductCodec) IsTrained() bool { return c.trained }

func (c *ProductCodec) numCentroids() int { return 1 << c.bits }

func (c *ProductCodec) Train(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return NewError(ErrTrainingDataInsufficient, "product", "train", "no training vectors")
	}
	if len(vectors[0]) != c.dim {
		return NewError(ErrDimensionMismatch, "product", "train", fmt.Sprintf("vector dim %d != configured %d", len(vectors[0]), c.dim))
	}

	k := c.numCentroids()
	if k > len(vectors) {
		k = len(vectors)
	}

	centroids := make([][][]float32, c.subspaces)
	rng := rand.New(rand.NewSource(c.seed))
	for s := 0; s < c.subspaces; s++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		start := s * c.subDim
		end := start + c.subDim
		sub := make([][]float32, len(vectors))
		for i, v := range vectors {
			sub[i] = v[start:end]
		}
		cb, err := trainSubCodebook(ctx, sub, k, rng)
		if err != nil {
			return NewError(ErrTrainingDataInsufficient, "product", "train", fmt.Sprintf("subspace %d", s)).WithCause(err)
		}
		centroids[s] = cb
	}

	c.centroids = centroids
	c.trained = true
	return nil
}

func trainSubCodebook(ctx context.Context, vectors [][]float32, k int, rng *rand.Rand) ([][]float32, error) {
	dim := len(vectors[0])
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = cloneVec(vectors[rng.Intn(len(vectors))])
	}

	const maxIterations = 25
	for iter := 0; iter < maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}

		for _, v := range vectors {
			best, bestDist := 0, float32(0)
			for d := 0; d < dim; d++ {
				diff := v[d] - centroids[0][d]
				bestDist += diff * diff
			}
			for j := 1; j < k; j++ {
				dist := float32(0)
				for d := 0; d < dim; d++ {
					diff := v[d] - centroids[j][d]
					dist += diff * diff
				}
				if dist < bestDist {
					bestDist, best = dist, j
				}
			}
			counts[best]++
			for d := 0; d < dim; d++ {
				sums[best][d] += v[d]
			}
		}

		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				centroids[j] = cloneVec(vectors[rng.Intn(len(vectors))])
				continue
			}
			for d := 0; d < dim; d++ {
				sums[j][d] /= float32(counts[j])
			}
			centroids[j] = sums[j]
		}
	}
	return centroids, nil
}

func cloneVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func (c *ProductCodec) encodeOne(v []float32, dst []byte) {
	bitOffset := 0
	for s := 0; s < c.subspaces; s++ {
		start := s * c.subDim
		sub := v[start : start+c.subDim]
		best, bestDist := 0, float32(0)
		for d := range sub {
			diff := sub[d] - c.centroids[s][0][d]
			bestDist += diff * diff
		}
		for code, centroid := range c.centroids[s] {
			if code == 0 {
				continue
			}
			dist := float32(0)
			for d := range sub {
				diff := sub[d] - centroid[d]
				dist += diff * diff
			}
			if dist < bestDist {
				bestDist, best = dist, code
			}
		}
		packBits(dst, bitOffset, c.bits, uint32(best))
		bitOffset += c.bits
	}
}

func (c *ProductCodec) EncodeVectors(vectors [][]float32) ([]byte, error) {
	if !c.trained {
		return nil, NewError(ErrNotTrained, "product", "encode", "codec not trained")
	}
	size := c.CodeSize()
	out := make([]byte, size*len(vectors))
	for i, v := range vectors {
		if len(v) != c.dim {
			return nil, NewError(ErrDimensionMismatch, "product", "encode", fmt.Sprintf("vector %d has dim %d, want %d", i, len(v), c.dim))
		}
		c.encodeOne(v, out[i*size:(i+1)*size])
	}
	return out, nil
}

func (c *ProductCodec) Decode(code []byte) ([]float32, error) {
	if !c.trained {
		return nil, NewError(ErrNotTrained, "product", "decode", "codec not trained")
	}
	if len(code) != c.CodeSize() {
		return nil, NewError(ErrCodeCorrupted, "product", "decode", fmt.Sprintf("code length %d != %d", len(code), c.CodeSize()))
	}
	out := make([]float32, c.dim)
	bitOffset := 0
	for s := 0; s < c.subspaces; s++ {
		cw := unpackBits(code, bitOffset, c.bits)
		bitOffset += c.bits
		if int(cw) >= len(c.centroids[s]) {
			return nil, NewError(ErrCodeCorrupted, "product", "decode", fmt.Sprintf("code %d out of range for subspace %d", cw, s))
		}
		copy(out[s*c.subDim:(s+1)*c.subDim], c.centroids[s][cw])
	}
	return out, nil
}

// productDistanceComputer holds per-subspace lookup tables built once
// per query instead of recomputing subvector distances per code,
// turning the O(subspaces*subDim) per-candidate cost into
// O(subspaces) table lookups.
type productDistanceComputer struct {
	codec  *ProductCodec
	tables [][]float32 // [subspace][code]
}

func (c *ProductCodec) NewDistanceComputer(query []float32) DistanceComputer {
	tables := make([][]float32, c.subspaces)
	for s := 0; s < c.subspaces; s++ {
		start := s * c.subDim
		qs := query[start : start+c.subDim]
		tables[s] = make([]float32, len(c.centroids[s]))
		for code, centroid := range c.centroids[s] {
			if c.m == metric.InnerProduct {
				dot := float32(0)
				for d := range qs {
					dot += qs[d] * centroid[d]
				}
				tables[s][code] = dot
			} else {
				dist := float32(0)
				for d := range qs {
					diff := qs[d] - centroid[d]
					dist += diff * diff
				}
				tables[s][code] = dist
			}
		}
	}
	return &productDistanceComputer{codec: c, tables: tables}
}

func (d *productDistanceComputer) Distance(code []byte) float32 {
	total := float32(0)
	bitOffset := 0
	for s := 0; s < d.codec.subspaces; s++ {
		cw := unpackBits(code, bitOffset, d.codec.bits)
		bitOffset += d.codec.bits
		total += d.tables[s][cw]
	}
	return total
}

func packBits(data []byte, bitOffset, numBits int, value uint32) {
	for i := 0; i < numBits; i++ {
		byteIdx := (bitOffset + i) / 8
		bitIdx := (bitOffset + i) % 8
		if byteIdx >= len(data) {
			return
		}
		if (value>>i)&1 == 1 {
			data[byteIdx] |= 1 << bitIdx
		}
	}
}

func unpackBits(data []byte, bitOffset, numBits int) uint32 {
	value := uint32(0)
	for i := 0; i < numBits; i++ {
		byteIdx := (bitOffset + i) / 8
		bitIdx := (bitOffset + i) % 8
		if byteIdx >= len(data) {
			break
		}
		if (data[byteIdx]>>bitIdx)&1 == 1 {
			value |= 1 << i
		}
	}
	return value
}

type productFactory struct{}

func (productFactory) Create(cfg Config) (Codec, error) { return NewProductCodec(cfg) }
func (productFactory) Supports(t Type) bool              { return t == Product }
func (productFactory) Name() string                      { return "ProductCodec" }
