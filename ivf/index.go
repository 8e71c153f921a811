package ivf

import (
	"context"
	"fmt"

	"github.com/ivfgo/ivfindex/internal/codec"
	"github.com/ivfgo/ivfindex/internal/coarse"
	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/interrupt"
	"github.com/ivfgo/ivfindex/internal/invlists"
	"github.com/ivfgo/ivfindex/internal/ivferr"
	"github.com/ivfgo/ivfindex/internal/metric"
	"github.com/ivfgo/ivfindex/internal/scanner"
	"github.com/ivfgo/ivfindex/internal/stats"
)

// addChunkSize is the point at which Add splits a batch into several
// calls, bounding how much a single call holds in flight at once
// (spec §4.4.1).
const addChunkSize = 65536

// Index is the C8 IVF search core: a coarse quantizer, an inverted
// list store, a vector codec, and an optional direct map, wired
// together the way ivfpq.IVFPQ wires its Quantizer/Clusters/PQ
// fields, generalized to the spec's pluggable codec and multi-mode
// parallel search.
type Index struct {
	cfg Config

	level1  *coarse.Level1
	codec   codec.Codec
	lists   invlists.ListStore
	dm      *dmap.DirectMap
	stats   *stats.Sink
	hook    interrupt.Hook
	ntotal  int
	trained bool
}

// New constructs an untrained Index from cfg.
func New(cfg Config) (*Index, error) {
	if cfg.Dim <= 0 {
		return nil, ivferr.New(ivferr.InvalidArgument, "ivf", "new", "dim must be positive")
	}
	if cfg.NList <= 0 {
		return nil, ivferr.New(ivferr.InvalidArgument, "ivf", "new", "nlist must be positive")
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 1
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}

	cfg.Codec.Dim = cfg.Dim
	cfg.Codec.Metric = cfg.Metric
	c, err := codec.Create(cfg.Codec)
	if err != nil {
		return nil, ivferr.New(ivferr.InvalidArgument, "ivf", "new", "codec construction failed").WithCause(err)
	}

	quantizer := coarse.NewFlatQuantizer(cfg.Dim, cfg.Metric)
	level1 := &coarse.Level1{
		Quantizer:     quantizer,
		NList:         cfg.NList,
		Metric:        cfg.Metric,
		Strategy:      cfg.TrainStrategy,
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
		RandomSeed:    cfg.RandomSeed,
	}

	return &Index{
		cfg:    cfg,
		level1: level1,
		codec:  c,
		lists:  invlists.NewArray(cfg.NList, c.CodeSize()),
		dm:     dmap.New(cfg.DirectMapMode),
		stats:  stats.New(),
		hook:   interrupt.Never,
	}, nil
}

// Stats exposes the process-wide search counters.
func (idx *Index) Stats() *stats.Sink { return idx.stats }

// SetInterruptHook installs the cooperative-cancellation hook
// subsequent Search/RangeSearch calls poll.
func (idx *Index) SetInterruptHook(h interrupt.Hook) { idx.hook = h }

func (idx *Index) IsTrained() bool { return idx.trained }
func (idx *Index) Ntotal() int     { return idx.ntotal }
func (idx *Index) Dim() int        { return idx.cfg.Dim }
func (idx *Index) NList() int      { return idx.cfg.NList }

// Train fits the coarse quantizer and then the codec, per
// quantizer_trains_alone semantics (§4.1/§3): the codec sees residuals
// against each training vector's assigned list when it is a product
// codec, or the raw vectors when it is a scalar codec.
func (idx *Index) Train(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return ivferr.New(ivferr.InvalidArgument, "ivf", "train", "no training vectors")
	}
	for _, v := range vectors {
		if len(v) != idx.cfg.Dim {
			return ivferr.New(ivferr.DimensionMismatch, "ivf", "train", fmt.Sprintf("vector dim %d != index dim %d", len(v), idx.cfg.Dim))
		}
	}

	if err := idx.level1.Train(ctx, vectors); err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "train", "coarse quantizer training failed").WithCause(err)
	}

	codecInput, err := idx.codecTrainingInput(vectors)
	if err != nil {
		return err
	}
	if err := idx.codec.Train(ctx, codecInput); err != nil {
		return ivferr.New(ivferr.Internal, "ivf", "train", "codec training failed").WithCause(err)
	}

	idx.trained = idx.level1.IsTrained() && idx.codec.IsTrained()
	return nil
}

// codecTrainingInput residualizes vectors against their assigned
// list's centroid for a product codec, or passes them through
// unchanged for anything else (scalar quantization).
func (idx *Index) codecTrainingInput(vectors [][]float32) ([][]float32, error) {
	if _, ok := idx.codec.(*codec.ProductCodec); !ok {
		return vectors, nil
	}
	assign, err := idx.level1.Quantizer.Assign(vectors)
	if err != nil {
		return nil, ivferr.New(ivferr.Internal, "ivf", "train", "coarse assignment failed").WithCause(err)
	}
	out := make([][]float32, 0, len(vectors))
	for i, v := range vectors {
		l := assign[i]
		if l < 0 {
			continue
		}
		centroid, err := idx.level1.Quantizer.Centroid(l)
		if err != nil {
			return nil, err
		}
		residual := make([]float32, len(v))
		for d := range v {
			residual[d] = v[d] - centroid[d]
		}
		out = append(out, residual)
	}
	if len(out) == 0 {
		return nil, ivferr.New(ivferr.Internal, "ivf", "train", "every training vector was rejected by coarse assignment")
	}
	return out, nil
}

// newScanner builds a per-goroutine Scanner bound to idx's codec,
// concrete type resolved once so Search/RangeSearch never type-switch
// per candidate.
func (idx *Index) newScanner() (scanner.Scanner, error) {
	switch c := idx.codec.(type) {
	case *codec.ProductCodec:
		return scanner.NewProductScanner(c, idx.level1.Quantizer, idx.cfg.Metric), nil
	case *codec.ScalarCodec:
		return scanner.NewScalarScanner(c, idx.cfg.Metric), nil
	default:
		return nil, ivferr.New(ivferr.Unsupported, "ivf", "search", "codec type has no scanner binding")
	}
}

// encodeForAdd produces the per-vector code bytes, residualizing
// against each vector's assigned list centroid for a product codec.
func (idx *Index) encodeForAdd(vectors [][]float32, assign []int) ([][]byte, error) {
	product, isProduct := idx.codec.(*codec.ProductCodec)
	out := make([][]byte, len(vectors))
	for i, v := range vectors {
		l := assign[i]
		if l < 0 {
			continue
		}
		target := v
		if isProduct {
			centroid, err := idx.level1.Quantizer.Centroid(l)
			if err != nil {
				return nil, err
			}
			residual := make([]float32, len(v))
			for d := range v {
				residual[d] = v[d] - centroid[d]
			}
			target = residual
		}
		code, err := idx.codec.EncodeVectors([][]float32{target})
		if err != nil {
			return nil, err
		}
		out[i] = code
		_ = product
	}
	return out, nil
}
