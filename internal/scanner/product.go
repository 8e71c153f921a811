package scanner

import (
	"github.com/ivfgo/ivfindex/internal/coarse"
	"github.com/ivfgo/ivfindex/internal/codec"
	"github.com/ivfgo/ivfindex/internal/ivfheap"
	"github.com/ivfgo/ivfindex/internal/metric"
)

// ProductScanner drives a codec.ProductCodec. Because PQ encodes
// residuals against the assigned list's centroid, SetList must run
// before any code in that list can be scored: it rebuilds the
// per-subspace distance tables against (query - centroid(list)).
type ProductScanner struct {
	codec  *codec.ProductCodec
	coarse coarse.Quantizer
	m      metric.Type

	query []float32
	dc    codec.DistanceComputer
}

func NewProductScanner(c *codec.ProductCodec, q coarse.Quantizer, m metric.Type) *ProductScanner {
	return &ProductScanner{codec: c, coarse: q, m: m}
}

func (s *ProductScanner) SetQuery(query []float32) {
	s.query = query
	s.dc = nil
}

func (s *ProductScanner) SetList(listID int) error {
	centroid, err := s.coarse.Centroid(listID)
	if err != nil {
		return err
	}
	residual := make([]float32, len(s.query))
	for i := range residual {
		residual[i] = s.query[i] - centroid[i]
	}
	s.dc = s.codec.NewDistanceComputer(residual)
	return nil
}

func (s *ProductScanner) ScanCodes(ids []int64, codes []byte, h *ivfheap.Heap) int {
	size := s.codec.CodeSize()
	n := len(ids)
	for i := 0; i < n; i++ {
		code := codes[i*size : (i+1)*size]
		dist := s.dc.Distance(code)
		h.PushReplace(dist, ids[i])
	}
	return n
}

func (s *ProductScanner) ScanCodesRange(ids []int64, codes []byte, radius float32, collect func(id int64, dist float32)) int {
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
