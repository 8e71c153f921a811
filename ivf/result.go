package ivf

// Result is one candidate returned by Search (ranked) or RangeSearch
// (in scan order): an external id paired with its score under the
// index's metric (a distance for L2, a similarity for inner product).
type Result struct {
	ID       int64
	Distance float32
}

// ReconstructResult extends Result with the reconstructed vector,
// returned by SearchAndReconstruct (spec §4.4.5). An ID of -1 marks an
// unfilled heap slot: Vector is filled with NaN, matching the
// "unused heap slots carry sentinel -1 / NaN" boundary behavior in §8.
type ReconstructResult struct {
	ID       int64
	Distance float32
	Vector   []float32
}
