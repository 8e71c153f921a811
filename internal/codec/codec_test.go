package codec

import (
	"context"
	"testing"

	"github.com/ivfgo/ivfindex/internal/metric"
)

func clusteredResiduals() [][]float32 {
	vecs := make([][]float32, 0, 40)
	for i := 0; i < 10; i++ {
		vecs = append(vecs, []float32{0.1, 0.1, 0.1, 0.1})
		vecs = append(vecs, []float32{5.1, 5.1, 5.1, 5.1})
		vecs = append(vecs, []float32{-5, -5, -5, -5})
		vecs = append(vecs, []float32{10, -10, 10, -10})
	}
	return vecs
}

func TestProductCodecEncodeDecodeRoundTrip(t *testing.T) {
	c, err := NewProductCodec(Config{Type: Product, Dim: 4, Subspaces: 2, Bits: 4, Metric: metric.L2})
	if err != nil {
		t.Fatalf("NewProductCodec: %v", err)
	}
	if err := c.Train(context.Background(), clusteredResiduals()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !c.IsTrained() {
		t.Fatalf("expected trained codec")
	}
	if c.CodeSize() != 1 {
		t.Fatalf("CodeSize = %d, want 1 (2 subspaces * 4 bits = 1 byte)", c.CodeSize())
	}

	codes, err := c.EncodeVectors([][]float32{{5, 5, 5, 5}})
	if err != nil {
		t.Fatalf("EncodeVectors: %v", err)
	}
	decoded, err := c.Decode(codes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != 4 {
		t.Fatalf("expected decoded dim 4, got %d", len(decoded))
	}
	// Decoded value should land close to the {5,5,5,5} cluster center.
	for _, v := range decoded {
		if v < 3 || v > 7 {
			t.Fatalf("decoded centroid %v not near the {5,5,5,5} cluster", decoded)
		}
	}
}

func TestProductCodecDistanceComputerPrefersNearestCluster(t *testing.T) {
	c, err := NewProductCodec(Config{Type: Product, Dim: 4, Subspaces: 2, Bits: 4, Metric: metric.L2})
	if err != nil {
		t.Fatalf("NewProductCodec: %v", err)
	}
	if err := c.Train(context.Background(), clusteredResiduals()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	codesNear, _ := c.EncodeVectors([][]float32{{5, 5, 5, 5}})
	codesFar, _ := c.EncodeVectors([][]float32{{-5, -5, -5, -5}})

	dc := c.NewDistanceComputer([]float32{5.1, 5.1, 5.1, 5.1})
	dNear := dc.Distance(codesNear)
	dFar := dc.Distance(codesFar)
	if dNear >= dFar {
		t.Fatalf("expected distance to the near cluster's code (%f) < far cluster's code (%f)", dNear, dFar)
	}
}

func TestScalarCodecEncodeDecodeRoundTrip(t *testing.T) {
	c, err := NewScalarCodec(Config{Type: Scalar, Dim: 3, Bits: 8, Metric: metric.L2})
	if err != nil {
		t.Fatalf("NewScalarCodec: %v", err)
	}
	train := [][]float32{{0, 0, 0}, {10, -10, 5}, {5, -5, 2.5}}
	if err := c.Train(context.Background(), train); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if c.CodeSize() != 3 {
		t.Fatalf("CodeSize = %d, want 3 (3 dims * 8 bits = 3 bytes)", c.CodeSize())
	}

	codes, err := c.EncodeVectors([][]float32{{5, -5, 2.5}})
	if err != nil {
		t.Fatalf("EncodeVectors: %v", err)
	}
	decoded, err := c.Decode(codes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, want := range []float32{5, -5, 2.5} {
		if diff := decoded[i] - want; diff > 0.2 || diff < -0.2 {
			t.Fatalf("dim %d decoded to %f, want close to %f", i, decoded[i], want)
		}
	}
}

func TestScalarCodecRejectsUntrainedUse(t *testing.T) {
	c, _ := NewScalarCodec(Config{Type: Scalar, Dim: 2, Bits: 8, Metric: metric.L2})
	if _, err := c.EncodeVectors([][]float32{{1, 1}}); err == nil {
		t.Fatalf("expected error encoding with an untrained codec")
	}
}

func TestRegistryDispatchesByType(t *testing.T) {
	pc, err := Create(Config{Type: Product, Dim: 4, Subspaces: 2, Bits: 4, Metric: metric.L2})
	if err != nil {
		t.Fatalf("Create(Product): %v", err)
	}
	if _, ok := pc.(*ProductCodec); !ok {
		t.Fatalf("expected *ProductCodec from registry")
	}

	sc, err := Create(Config{Type: Scalar, Dim: 4, Bits: 8, Metric: metric.L2})
	if err != nil {
		t.Fatalf("Create(Scalar): %v", err)
	}
	if _, ok := sc.(*ScalarCodec); !ok {
		t.Fatalf("expected *ScalarCodec from registry")
	}
}

func TestConfigValidateRejectsIndivisibleSubspaces(t *testing.T) {
	cfg := Config{Type: Product, Dim: 5, Subspaces: 2, Bits: 4, Metric: metric.L2}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error: dim 5 not divisible by subspaces 2")
	}
}
