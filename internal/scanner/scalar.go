package scanner

import (
	"github.com/ivfgo/ivfindex/internal/codec"
	"github.com/ivfgo/ivfindex/internal/ivfheap"
	"github.com/ivfgo/ivfindex/internal/metric"
)

// ScalarScanner drives a codec.ScalarCodec. Scalar quantization
// encodes the raw vector, not a residual, so SetList is a no-op: the
// distance computer only needs the query, built once in SetQuery.
type ScalarScanner struct {
	codec *codec.ScalarCodec
	m     metric.Type

	query []float32
	dc    codec.DistanceComputer
}

func NewScalarScanner(c *codec.ScalarCodec, m metric.Type) *ScalarScanner {
	return &ScalarScanner{codec: c, m: m}
}

func (s *ScalarScanner) SetQuery(query []float32) {
	s.query = query
	s.dc = s.codec.NewDistanceComputer(query)
}

func (s *ScalarScanner) SetList(listID int) error { return nil }

func (s *ScalarScanner) ScanCodes(ids []int64, codes []byte, h *ivfheap.Heap) int {
	size := s.codec.CodeSize()
	n := len(ids)
	for i := 0; i < n; i++ {
		code := codes[i*size : (i+1)*size]
		dist := s.dc.Distance(code)
		h.PushReplace(dist, ids[i])
	}
	return n
}

func (s *ScalarScanner) ScanCodesRange(ids []int64, codes []byte, radius float32, collect func(id int64, dist float32)) int {
	size := s.codec.CodeSize()
	n := len(ids)
	for i := 0; i < n; i++ {
		code := codes[i*size : (i+1)*size]
		dist := s.dc.Distance(code)
		if withinRadius(s.m, dist, radius) {
			collect(ids[i], dist)
		}
	}
	return n
}
