package codec

import (
	"context"
	"fmt"

	"github.com/ivfgo/ivfindex/internal/metric"
)

// ScalarCodec linearly quantizes each dimension of the raw vector to a
// fixed bit width, independent of any list assignment — generalized
// from the teacher's whole-database scalar quantizer, which already
// worked per-dimension and needed no change to operate inside a list.
type ScalarCodec struct {
	dim  int
	bits int
	m    metric.Type

	trained  bool
	mins     []float32
	scales   []float32
	maxLevel uint32
}

func NewScalarCodec(cfg Config) (*ScalarCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ScalarCodec{
		dim:      cfg.Dim,
		bits:     cfg.Bits,
		m:        cfg.Metric,
		maxLevel: (1 << uint(cfg.Bits)) - 1,
	}, nil
}

func (c *ScalarCodec) Dim() int        { return c.dim }
func (c *ScalarCodec) CodeSize() int   { return (c.dim*c.bits + 7) / 8 }
func (c *ScalarCodec) IsTrained() bool { return c.trained }

func (c *ScalarCodec) Train(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return NewError(ErrTrainingDataInsufficient, "scalar", "train", "no training vectors")
	}
	if len(vectors[0]) != c.dim {
		return NewError(ErrDimensionMismatch, "scalar", "train", fmt.Sprintf("vector dim %d != configured %d", len(vectors[0]), c.dim))
	}

	mins := cloneVec(vectors[0])
	maxs := cloneVec(vectors[0])
	for _, v := range vectors[1:] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for d := 0; d < c.dim; d++ {
			if v[d] < mins[d] {
				mins[d] = v[d]
			}
			if v[d] > maxs[d] {
				maxs[d] = v[d]
			}
		}
	}

	scales := make([]float32, c.dim)
	for d := 0; d < c.dim; d++ {
		r := maxs[d] - mins[d]
		if r == 0 {
			scales[d] = 1
		} else {
			scales[d] = r / float32(c.maxLevel)
		}
	}

	c.mins = mins
	c.scales = scales
	c.trained = true
	return nil
}

func (c *ScalarCodec) quantizeDim(d int, value float32) uint32 {
	level := (value - c.mins[d]) / c.scales[d]
	if level < 0 {
		level = 0
	}
	if level > float32(c.maxLevel) {
		level = float32(c.maxLevel)
	}
	return uint32(level + 0.5)
}

func (c *ScalarCodec) dequantizeDim(d int, level uint32) float32 {
	return c.mins[d] + float32(level)*c.scales[d]
}

func (c *ScalarCodec) EncodeVectors(vectors [][]float32) ([]byte, error) {
	if !c.trained {
		return nil, NewError(ErrNotTrained, "scalar", "encode", "codec not trained")
	}
	size := c.CodeSize()
	out := make([]byte, size*len(vectors))
	for i, v := range vectors {
		if len(v) != c.dim {
			return nil, NewError(ErrDimensionMismatch, "scalar", "encode", fmt.Sprintf("vector %d has dim %d, want %d", i, len(v), c.dim))
		}
		dst := out[i*size : (i+1)*size]
		bitOffset := 0
		for d := 0; d < c.dim; d++ {
			packBits(dst, bitOffset, c.bits, c.quantizeDim(d, v[d]))
			bitOffset += c.bits
		}
	}
	return out, nil
}

func (c *ScalarCodec) Decode(code []byte) ([]float32, error) {
	if !c.trained {
		return nil, NewError(ErrNotTrained, "scalar", "decode", "codec not trained")
	}
	if len(code) != c.CodeSize() {
		return nil, NewError(ErrCodeCorrupted, "scalar", "decode", fmt.Sprintf("code length %d != %d", len(code), c.CodeSize()))
	}
	out := make([]float32, c.dim)
	bitOffset := 0
	for d := 0; d < c.dim; d++ {
		level := unpackBits(code, bitOffset, c.bits)
		bitOffset += c.bits
		out[d] = c.dequantizeDim(d, level)
	}
	return out, nil
}

type scalarDistanceComputer struct {
	codec *ScalarCodec
	query []float32
	fn    metric.Func
}

func (c *ScalarCodec) NewDistanceComputer(query []float32) DistanceComputer {
	return &scalarDistanceComputer{codec: c, query: query, fn: metric.Of(c.m)}
}

func (d *scalarDistanceComputer) Distance(code []byte) float32 {
	v, err := d.codec.Decode(code)
	if err != nil {
		return d.codec.m.Worst()
	}
	return d.fn(d.query, v)
}

type scalarFactory struct{}

func (scalarFactory) Create(cfg Config) (Codec, error) { return NewScalarCodec(cfg) }
func (scalarFactory) Supports(t Type) bool              { return t == Scalar }
func (scalarFactory) Name() string                      { return "ScalarCodec" }
