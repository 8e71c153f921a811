package scanner

import (
	"encoding/binary"
	"math"

	"github.com/ivfgo/ivfindex/internal/ivfheap"
	"github.com/ivfgo/ivfindex/internal/metric"
)

// EncodeFloats serializes a float32 vector to its flat, uncompressed
// code representation (4 bytes per component, little-endian).
func EncodeFloats(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// DecodeFloats is the inverse of EncodeFloats.
func DecodeFloats(code []byte) []float32 {
	out := make([]float32, len(code)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(code[i*4:]))
	}
	return out
}

// FlatScanner stores full-precision vectors as their flat byte
// encoding, trading memory for exact rather than quantized distances —
// the scanner counterpart of a codec-less index.
type FlatScanner struct {
	dim int
	m   metric.Type
	fn  metric.Func

	query []float32
}

func NewFlatScanner(dim int, m metric.Type) *FlatScanner {
	return &FlatScanner{dim: dim, m: m, fn: metric.Of(m)}
}

func (s *FlatScanner) SetQuery(query []float32) { s.query = query }
func (s *FlatScanner) SetList(listID int) error { return nil }

func (s *FlatScanner) CodeSize() int { return s.dim * 4 }

func (s *FlatScanner) ScanCodes(ids []int64, codes []byte, h *ivfheap.Heap) int {
	size := s.CodeSize()
	n := len(ids)
	for i := 0; i < n; i++ {
		v := DecodeFloats(codes[i*size : (i+1)*size])
		dist := s.fn(s.query, v)
		h.PushReplace(dist, ids[i])
	}
	return n
}

func (s *FlatScanner) ScanCodesRange(ids []int64, codes []byte, radius float32, collect func(id int64, dist float32)) int {
	size := s.CodeSize()
	n := len(ids)
	for i := 0; i < n; i++ {
		v := DecodeFloats(codes[i*size : (i+1)*size])
		dist := s.fn(s.query, v)
		if withinRadius(s.m, dist, radius) {
			collect(ids[i], dist)
		}
	}
	return n
}
