// Command ivfbench trains an ivf.Index on randomly generated vectors,
// bulk-adds them, and runs a k-NN query benchmark against it, printing
// the internal/stats counters at the end. It exercises the library
// end to end the way libravdb/examples and hann/example/cmd do for
// their own indexes; it is not a production CLI or RPC façade.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ivfgo/ivfindex/internal/codec"
	"github.com/ivfgo/ivfindex/internal/metric"
	"github.com/ivfgo/ivfindex/ivf"
)

func main() {
	dim := flag.Int("dim", 128, "vector dimension")
	nlist := flag.Int("nlist", 256, "number of inverted lists")
	nprobe := flag.Int("nprobe", 8, "lists probed per query")
	ntrain := flag.Int("ntrain", 20000, "training vectors")
	nadd := flag.Int("nadd", 100000, "vectors added after training")
	nquery := flag.Int("nquery", 1000, "benchmark queries")
	k := flag.Int("k", 10, "neighbors per query")
	useL2 := flag.Bool("l2", true, "use L2 distance instead of inner product")
	useScalar := flag.Bool("scalar", false, "use scalar quantization instead of product quantization")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	cfg := *ivf.DefaultConfig(*dim)
	cfg.NList = *nlist
	cfg.NProbe = *nprobe
	if *useL2 {
		cfg.Metric = metric.L2
	} else {
		cfg.Metric = metric.InnerProduct
	}
	if *useScalar {
		cfg.Codec = codec.Config{Type: codec.Scalar, Dim: *dim, Bits: 8, Metric: cfg.Metric}
	} else {
		cfg.Codec.Metric = cfg.Metric
	}

	idx, err := ivf.New(cfg)
	if err != nil {
		log.Fatalf("ivf.New: %v", err)
	}

	fmt.Printf("training on %d vectors (dim=%d, nlist=%d)\n", *ntrain, *dim, *nlist)
	trainVecs := randomVectors(rng, *ntrain, *dim)
	start := time.Now()
	if err := idx.Train(context.Background(), trainVecs); err != nil {
		log.Fatalf("Train: %v", err)
	}
	fmt.Printf("trained in %s\n", time.Since(start))

	fmt.Printf("adding %d vectors\n", *nadd)
	bar := progressbar.Default(int64(*nadd))
	const chunk = 10000
	for start := 0; start < *nadd; start += chunk {
		end := start + chunk
		if end > *nadd {
			end = *nadd
		}
		if err := idx.Add(context.Background(), randomVectors(rng, end-start, *dim), nil); err != nil {
			log.Fatalf("Add: %v", err)
		}
		_ = bar.Add(end - start)
	}

	fmt.Printf("running %d queries (k=%d, nprobe=%d)\n", *nquery, *k, *nprobe)
	queries := randomVectors(rng, *nquery, *dim)
	start = time.Now()
	if _, err := idx.Search(context.Background(), queries, *k, nil); err != nil {
		log.Fatalf("Search: %v", err)
	}
	elapsed := time.Since(start)

	snap := idx.Stats().Snapshot()
	fmt.Printf("\nbenchmark results:\n")
	fmt.Printf("  ntotal:          %d\n", idx.Ntotal())
	fmt.Printf("  total query time: %s\n", elapsed)
	fmt.Printf("  avg query time:   %s\n", elapsed/time.Duration(*nquery))
	fmt.Printf("  nq:              %d\n", snap.NQ)
	fmt.Printf("  nlist scanned:   %d\n", snap.NList)
	fmt.Printf("  ndis:            %d\n", snap.NDis)
	fmt.Printf("  nheap_updates:   %d\n", snap.NHeapUpdates)
}

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()*2 - 1
		}
		vecs[i] = v
	}
	return vecs
}
