// Package codec implements the C5 vector codecs: product quantization
// against a list's residual and scalar quantization against the raw
// vector, each producing a fixed-size byte code an inverted list can
// store per entry.
package codec

import (
	"context"
	"fmt"
	"sync"

	"github.com/ivfgo/ivfindex/internal/metric"
)

// Type identifies a codec implementation.
type Type int

const (
	Product Type = iota
	Scalar
)

func (t Type) String() string {
	switch t {
	case Product:
		return "product"
	case Scalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Config configures a codec's Build call.
type Config struct {
	Type Type

	// Dim is the (sub-)vector dimensionality the codec will see.
	Dim int

	// Subspaces is the number of PQ codebooks; ignored by Scalar.
	Subspaces int

	// Bits is the code width per PQ codebook entry, or per scalar
	// dimension.
	Bits int

	Metric metric.Type
}

func (c *Config) Validate() error {
	if c.Dim <= 0 {
		return NewError(ErrConfigInvalid, "codec", "validate", fmt.Sprintf("dim must be positive, got %d", c.Dim))
	}
	if c.Bits < 1 || c.Bits > 32 {
		return NewError(ErrConfigInvalid, "codec", "validate", fmt.Sprintf("bits must be in [1,32], got %d", c.Bits))
	}
	if c.Type == Product {
		if c.Subspaces < 1 {
			return NewError(ErrConfigInvalid, "codec", "validate", fmt.Sprintf("subspaces must be positive, got %d", c.Subspaces))
		}
		if c.Dim%c.Subspaces != 0 {
			return NewError(ErrConfigInvalid, "codec", "validate", fmt.Sprintf("dim %d not divisible by subspaces %d", c.Dim, c.Subspaces))
		}
	}
	return nil
}

// DistanceComputer answers asymmetric distance-to-query queries for
// codes drawn from one list, without ever decoding a full vector. The
// returned value orders the same way metric.Type's natural distance
// does (lower-is-better for L2, higher-is-better for inner product) so
// callers can push it straight onto an ivfheap.Heap.
type DistanceComputer interface {
	Distance(code []byte) float32
}

// Codec is the C5 contract: encode vectors into fixed-size codes given
// the list they were assigned to, and decode/score those codes without
// ever materializing the whole dataset in float32.
type Codec interface {
	Dim() int
	CodeSize() int
	IsTrained() bool

	// Train fits the codec on already-residualized training vectors
	// (list-centroid-subtracted for product quantization, raw for
	// scalar quantization — the caller decides which).
	Train(ctx context.Context, vectors [][]float32) error

	// EncodeVectors encodes a batch into a single flattened byte
	// slice, CodeSize() bytes per vector, in input order — the layout
	// invlists.ListStore.AddEntry expects.
	EncodeVectors(vectors [][]float32) ([]byte, error)

	// Decode reconstructs the (possibly residual) vector a code
	// represents.
	Decode(code []byte) ([]float32, error)

	// NewDistanceComputer precomputes whatever the codec needs (e.g.
	// PQ's per-subspace lookup tables) to score codes against query,
	// which is already in the same space Train's vectors were (a
	// residual for PQ, the raw query for scalar).
	NewDistanceComputer(query []float32) DistanceComputer
}

// Factory builds a Codec from a Config, the pattern the quantization
// registry below dispatches through.
type Factory interface {
	Create(cfg Config) (Codec, error)
	Supports(t Type) bool
	Name() string
}

// Registry dispatches codec construction by Type, mirroring the
// teacher's quantizer registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Type]Factory)}
}

func (r *Registry) Register(t Type, f Factory) error {
	if f == nil {
		return NewError(ErrConfigInvalid, "registry", "register", "factory cannot be nil")
	}
	if !f.Supports(t) {
		return NewError(ErrConfigInvalid, "registry", "register", fmt.Sprintf("factory %s does not support %s", f.Name(), t))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[t]; exists {
		return NewError(ErrConfigInvalid, "registry", "register", fmt.Sprintf("factory for %s already registered", t))
	}
	r.factories[t] = f
	return nil
}

func (r *Registry) Create(cfg Config) (Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, exists := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !exists {
		return nil, NewError(ErrConfigInvalid, "registry", "create", fmt.Sprintf("no factory registered for %s", cfg.Type))
	}
	return f.Create(cfg)
}

var globalRegistry = NewRegistry()

func Register(t Type, f Factory) error { return globalRegistry.Register(t, f) }
func Create(cfg Config) (Codec, error) { return globalRegistry.Create(cfg) }

func init() {
	if err := Register(Product, productFactory{}); err != nil {
		panic(fmt.Sprintf("codec: failed to register product factory: %v", err))
	}
	if err := Register(Scalar, scalarFactory{}); err != nil {
		panic(fmt.Sprintf("codec: failed to register scalar factory: %v", err))
	}
}
