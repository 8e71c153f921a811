// Package ivf implements the C8 IVF search core: the coarse-quantizer
// + inverted-list + codec pipeline the rest of internal/ supplies,
// wired into Add/Search/RangeSearch/Reconstruct/Update/Merge the way
// the teacher's ivfpq.IVFPQ wires together quant, clustering, and its
// Cluster slice.
package ivf

import (
	"math"
	"time"

	"github.com/ivfgo/ivfindex/internal/codec"
	"github.com/ivfgo/ivfindex/internal/coarse"
	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/metric"
)

// ParallelMode selects how searchPreassigned/RangeSearch fan work out
// across goroutines (spec §4.4.2/§4.4.4).
type ParallelMode int

const (
	// ParallelOverQueries (0, default): one goroutine per query, each
	// scanning all of that query's probes sequentially with its own
	// heap. Best when nq is large relative to nprobe.
	ParallelOverQueries ParallelMode = iota
	// ParallelOverProbes (1): queries processed sequentially, each
	// query's nprobe probes fanned out across goroutines with private
	// heaps merged via a k-way heap addition. Best when nq is small
	// (even 1) and nprobe is large.
	ParallelOverProbes
	// ParallelOverPairs (2, RangeSearch only; Search rejects it): the
	// (query, probe) cartesian product is flattened and processed by a
	// pool of goroutines, each owning a contiguous run of non-decreasing
	// query index so per-query state (result buffer, running ndis) can
	// be built lazily per worker.
	ParallelOverPairs
)

// Config holds an Index's configuration, mirroring the teacher's
// ivfpq.Config shape extended with the spec's search-fanout and
// direct-map knobs.
type Config struct {
	Dim    int
	NList  int
	NProbe int
	Metric metric.Type

	Codec codec.Config

	TrainStrategy coarse.TrainStrategy
	MaxIterations int
	Tolerance     float64
	RandomSeed    int64

	// DirectMapMode selects the C6 direct map kept alongside the
	// lists; None is cheapest but disables reconstruct/remove/update.
	DirectMapMode dmap.Mode

	// MaxCodes bounds how many candidate codes ParallelOverQueries
	// scans per query across its full probe list before stopping
	// early; 0 means unlimited.
	MaxCodes int

	ParallelMode ParallelMode

	// NumWorkers bounds goroutine fan-out for Add and the parallel
	// search modes; New replaces a value <=0 with 4.
	NumWorkers int
}

// DefaultConfig returns a reasonable configuration for the given
// dimensionality: nlist is dim clamped to [64, 4096] and nprobe is
// nlist/4 clamped to [1, 16].
func DefaultConfig(dim int) *Config {
	nlist := int(math.Max(64, math.Min(4096, float64(dim))))
	return &Config{
		Dim:    dim,
		NList:  nlist,
		NProbe: max(1, min(16, nlist/4)),
		Metric: metric.L2,
		Codec: codec.Config{
			Type:      codec.Product,
			Dim:       dim,
			Subspaces: max(1, dim/8),
			Bits:      8,
			Metric:    metric.L2,
		},
		TrainStrategy: coarse.TrainJoint,
		MaxIterations: 100,
		Tolerance:     1e-4,
		RandomSeed:    time.Now().UnixNano(),
		DirectMapMode: dmap.Array,
		MaxCodes:      0,
		ParallelMode:  ParallelOverQueries,
		NumWorkers:    4,
	}
}

// AutoTuneConfig scales cluster and probe counts to the estimated
// dataset size, the same size bands the teacher's ivfpq.AutoTuneConfig
// uses.
func AutoTuneConfig(dim, estimatedVectors int) *Config {
	cfg := DefaultConfig(dim)

	var nlist int
	switch {
	case estimatedVectors < 1000:
		nlist = max(4, estimatedVectors/50)
	case estimatedVectors < 100000:
		nlist = int(math.Sqrt(float64(estimatedVectors)))
	default:
		nlist = int(math.Pow(float64(estimatedVectors), 0.4))
	}
	nlist = max(4, min(nlist, 16384))

	var nprobe int
	switch {
	case estimatedVectors < 10000:
		nprobe = max(1, nlist/2)
	case estimatedVectors < 1000000:
		nprobe = max(1, nlist/4)
	default:
		nprobe = max(1, nlist/8)
	}
	nprobe = max(1, min(nprobe, nlist))

	cfg.NList = nlist
	cfg.NProbe = nprobe
	cfg.Codec.Subspaces = max(1, dim/8)
	return cfg
}
