package ivf

import (
	"context"
	"math"
	"testing"

	"github.com/ivfgo/ivfindex/internal/codec"
	"github.com/ivfgo/ivfindex/internal/coarse"
	"github.com/ivfgo/ivfindex/internal/dmap"
	"github.com/ivfgo/ivfindex/internal/metric"
)

// gridVectors returns 12 points clustered around four well-separated
// centers, so a 4-list coarse quantizer trains deterministically.
func gridVectors() [][]float32 {
	return [][]float32{
		{0, 0}, {0.1, -0.1}, {-0.1, 0.1},
		{10, 0}, {10.1, 0.1}, {9.9, -0.1},
		{0, 10}, {0.1, 9.9}, {-0.1, 10.1},
		{10, 10}, {10.1, 9.9}, {9.9, 10.1},
	}
}

func testConfig() Config {
	return Config{
		Dim:    2,
		NList:  4,
		NProbe: 2,
		Metric: metric.L2,
		Codec: codec.Config{
			Type:   codec.Scalar,
			Dim:    2,
			Bits:   8,
			Metric: metric.L2,
		},
		TrainStrategy: coarse.TrainJoint,
		MaxIterations: 25,
		Tolerance:     1e-6,
		RandomSeed:    1,
		DirectMapMode: dmap.Array,
		ParallelMode:  ParallelOverQueries,
		NumWorkers:    2,
	}
}

func newTrainedIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Train(context.Background(), gridVectors()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !idx.IsTrained() {
		t.Fatalf("expected index to report trained")
	}
	return idx
}

func TestAddAndSearchFindsNearestCluster(t *testing.T) {
	idx := newTrainedIndex(t)
	if err := idx.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Ntotal() != 12 {
		t.Fatalf("expected ntotal 12, got %d", idx.Ntotal())
	}

	results, err := idx.Search(context.Background(), [][]float32{{0, 0}}, 3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || len(results[0]) != 3 {
		t.Fatalf("expected 1 row of 3 results, got %+v", results)
	}
	for _, r := range results[0] {
		if r.ID < 0 || r.ID > 2 {
			t.Errorf("expected a neighbor from the {0,0} cluster (ids 0-2), got id %d (dist %f)", r.ID, r.Distance)
		}
	}
}

func TestSearchOverProbesMatchesSearchOverQueries(t *testing.T) {
	base := newTrainedIndex(t)
	if err := base.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	base.cfg.ParallelMode = ParallelOverQueries
	want, err := base.Search(context.Background(), [][]float32{{10, 10}}, 3, nil)
	if err != nil {
		t.Fatalf("Search (pmode 0): %v", err)
	}
	base.cfg.ParallelMode = ParallelOverProbes
	got, err := base.Search(context.Background(), [][]float32{{10, 10}}, 3, nil)
	if err != nil {
		t.Fatalf("Search (pmode 1): %v", err)
	}
	for i, r := range got[0] {
		if r.ID < 9 || r.ID > 11 {
			t.Errorf("expected a neighbor from the {10,10} cluster (ids 9-11), got id %d", r.ID)
		}
		if r.ID != want[0][i].ID {
			t.Errorf("result %d: pmode 1 returned id %d, pmode 0 returned id %d", i, r.ID, want[0][i].ID)
		}
	}
}

func TestSearchRejectsUntrainedIndex(t *testing.T) {
	idx, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := idx.Search(context.Background(), [][]float32{{0, 0}}, 1, nil); err == nil {
		t.Fatalf("expected error searching an untrained index")
	}
}

func TestSearchWithFilterExcludesIDs(t *testing.T) {
	idx := newTrainedIndex(t)
	if err := idx.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	filter := dmap.NewIDSet([]int64{0, 1})
	results, err := idx.Search(context.Background(), [][]float32{{0, 0}}, 3, filter)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results[0] {
		if r.ID == 0 || r.ID == 1 {
			t.Errorf("expected ids 0 and 1 to be excluded by the filter, got id %d", r.ID)
		}
	}
}

func TestRangeSearchReturnsWithinRadius(t *testing.T) {
	idx := newTrainedIndex(t)
	if err := idx.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rows, err := idx.RangeSearch(context.Background(), [][]float32{{0, 0}}, 1.0, nil)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(rows[0]) == 0 {
		t.Fatalf("expected at least one neighbor within radius 1.0 of {0,0}")
	}
	for _, r := range rows[0] {
		if r.Distance > 1.0 {
			t.Errorf("result %+v exceeds radius 1.0", r)
		}
	}
}

func TestRangeSearchParallelModesAgree(t *testing.T) {
	idx := newTrainedIndex(t)
	if err := idx.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	counts := map[ParallelMode]int{}
	for _, pm := range []ParallelMode{ParallelOverQueries, ParallelOverProbes, ParallelOverPairs} {
		idx.cfg.ParallelMode = pm
		rows, err := idx.RangeSearch(context.Background(), [][]float32{{0, 0}, {10, 10}}, 5.0, nil)
		if err != nil {
			t.Fatalf("RangeSearch (pmode %d): %v", pm, err)
		}
		counts[pm] = len(rows[0]) + len(rows[1])
	}
	if counts[ParallelOverQueries] != counts[ParallelOverProbes] || counts[ParallelOverProbes] != counts[ParallelOverPairs] {
		t.Fatalf("expected all three parallel modes to find the same candidate count, got %+v", counts)
	}
}

func TestReconstructRoundTrips(t *testing.T) {
	idx := newTrainedIndex(t)
	vecs := gridVectors()
	if err := idx.Add(context.Background(), vecs, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := idx.Reconstruct(0)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	for d := range got {
		if math.Abs(float64(got[d]-vecs[0][d])) > 0.5 {
			t.Errorf("reconstructed vector %v too far from original %v", got, vecs[0])
		}
	}
}

func TestReconstructRequiresDirectMap(t *testing.T) {
	cfg := testConfig()
	cfg.DirectMapMode = dmap.None
	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Train(context.Background(), gridVectors()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if err := idx.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := idx.Reconstruct(0); err == nil {
		t.Fatalf("expected error reconstructing without a direct map")
	}
}

func TestSearchAndReconstruct(t *testing.T) {
	idx := newTrainedIndex(t)
	if err := idx.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rows, err := idx.SearchAndReconstruct(context.Background(), [][]float32{{0, 0}}, 2, nil)
	if err != nil {
		t.Fatalf("SearchAndReconstruct: %v", err)
	}
	if len(rows[0]) != 2 {
		t.Fatalf("expected 2 results, got %d", len(rows[0]))
	}
	for _, r := range rows[0] {
		if r.ID < 0 {
			continue
		}
		if len(r.Vector) != 2 {
			t.Errorf("expected a 2-dim reconstructed vector, got %v", r.Vector)
		}
	}
}

func TestRemoveIDsDecrementsNtotalAndHidesFromSearch(t *testing.T) {
	idx := newTrainedIndex(t)
	if err := idx.Add(context.Background(), gridVectors(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := idx.RemoveIDs(dmap.NewIDSet([]int64{0}))
	if err != nil {
		t.Fatalf("RemoveIDs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if idx.Ntotal() != 11 {
		t.Fatalf("expected ntotal 11, got %d", idx.Ntotal())
	}
	if _, err := idx.Reconstruct(0); err == nil {
		t.Fatalf("expected id 0 to no longer be reconstructible after removal")
	}
	results, err := idx.Search(context.Background(), [][]float32{{0, 0}}, 12, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results[0] {
		if r.ID == 0 {
			t.Fatalf("expected removed id 0 to be absent from search results")
		}
	}
}

func TestUpdateVectorsArrayModeReassignsCluster(t *testing.T) {
	idx := newTrainedIndex(t)
	vecs := gridVectors()
	if err := idx.Add(context.Background(), vecs, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Move id 0 from the {0,0} cluster into the {10,10} cluster.
	if err := idx.UpdateVectors(context.Background(), []int64{0}, [][]float32{{10, 10}}); err != nil {
		t.Fatalf("UpdateVectors: %v", err)
	}
	got, err := idx.Reconstruct(0)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if math.Abs(float64(got[0]-10)) > 0.5 || math.Abs(float64(got[1]-10)) > 0.5 {
		t.Errorf("expected id 0 to reconstruct near {10,10}, got %v", got)
	}
}

func TestUpdateVectorsHashtableModeRoundTrips(t *testing.T) {
	cfg := testConfig()
	cfg.DirectMapMode = dmap.Hashtable
	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Train(context.Background(), gridVectors()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	ids := []int64{100, 101, 102}
	if err := idx.Add(context.Background(), [][]float32{{0, 0}, {10, 0}, {0, 10}}, ids); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.UpdateVectors(context.Background(), []int64{101}, [][]float32{{10, 10}}); err != nil {
		t.Fatalf("UpdateVectors: %v", err)
	}
	got, err := idx.Reconstruct(101)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if math.Abs(float64(got[0]-10)) > 0.5 || math.Abs(float64(got[1]-10)) > 0.5 {
		t.Errorf("expected id 101 to reconstruct near {10,10}, got %v", got)
	}
}

func TestMergeFromCombinesIndexes(t *testing.T) {
	cfg := testConfig()
	cfg.DirectMapMode = dmap.None
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vecs := gridVectors()
	if err := a.Train(context.Background(), vecs); err != nil {
		t.Fatalf("Train a: %v", err)
	}
	if err := b.Train(context.Background(), vecs); err != nil {
		t.Fatalf("Train b: %v", err)
	}
	if err := a.Add(context.Background(), vecs[:6], nil); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := b.Add(context.Background(), vecs[6:], nil); err != nil {
		t.Fatalf("Add b: %v", err)
	}

	if err := a.MergeFrom(b, 1000); err != nil {
		t.Fatalf("MergeFrom: %v", err)
	}
	if a.Ntotal() != 12 {
		t.Fatalf("expected merged ntotal 12, got %d", a.Ntotal())
	}
	if b.Ntotal() != 0 {
		t.Fatalf("expected source index emptied after merge, got ntotal %d", b.Ntotal())
	}
}

func TestMergeFromRejectsDirectMapEnabled(t *testing.T) {
	a := newTrainedIndex(t)
	b := newTrainedIndex(t)
	if err := a.MergeFrom(b, 1000); err == nil {
		t.Fatalf("expected merge to be rejected when either index has a direct map")
	}
}

func TestCopySubsetToIDRange(t *testing.T) {
	idx := newTrainedIndex(t)
	vecs := gridVectors()
	ids := make([]int64, len(vecs))
	for i := range ids {
		ids[i] = int64(i)
	}
	if err := idx.Add(context.Background(), vecs, ids); err != nil {
		t.Fatalf("Add: %v", err)
	}

	other, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := other.Train(context.Background(), vecs); err != nil {
		t.Fatalf("Train other: %v", err)
	}

	if err := idx.CopySubsetTo(other, SubsetIDRange, 0, 6); err != nil {
		t.Fatalf("CopySubsetTo: %v", err)
	}
	if other.Ntotal() != 6 {
		t.Fatalf("expected 6 entries copied, got %d", other.Ntotal())
	}
	for id := int64(0); id < 6; id++ {
		if _, err := other.Reconstruct(id); err != nil {
			t.Errorf("expected id %d to be present in the subset copy: %v", id, err)
		}
	}
	if _, err := other.Reconstruct(6); err == nil {
		t.Errorf("expected id 6 to be excluded from the [0,6) subset copy")
	}
}

func TestCopySubsetToProportionalSplitsRoughlyInHalf(t *testing.T) {
	idx := newTrainedIndex(t)
	vecs := gridVectors()
	ids := make([]int64, len(vecs))
	for i := range ids {
		ids[i] = int64(i)
	}
	if err := idx.Add(context.Background(), vecs, ids); err != nil {
		t.Fatalf("Add: %v", err)
	}

	half, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := half.Train(context.Background(), vecs); err != nil {
		t.Fatalf("Train half: %v", err)
	}
	if err := idx.CopySubsetTo(half, SubsetProportional, 0, 6); err != nil {
		t.Fatalf("CopySubsetTo: %v", err)
	}
	if half.Ntotal() < 4 || half.Ntotal() > 8 {
		t.Fatalf("expected roughly half of 12 entries copied, got %d", half.Ntotal())
	}
}
