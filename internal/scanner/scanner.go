// Package scanner implements the C7 list scanners: per-codec drivers
// that walk one inverted list's codes against a query and push
// candidates onto a bounded ivfheap.Heap, or collect every candidate
// within a radius for range search.
package scanner

import (
	"fmt"

	"github.com/ivfgo/ivfindex/internal/ivfheap"
	"github.com/ivfgo/ivfindex/internal/metric"
)

// Scanner is the C7 contract. SetQuery and SetList are called once
// before a run of ScanCodes/ScanCodesRange calls across that list's
// chunk of ids.
type Scanner interface {
	SetQuery(query []float32)
	SetList(listID int) error

	// ScanCodes scores every (id, code) pair against the current query
	// and pushes it onto h. It returns the number of distances
	// computed, feeding the C9 ndis counter.
	ScanCodes(ids []int64, codes []byte, h *ivfheap.Heap) (ndis int)

	// ScanCodesRange scores every (id, code) pair and invokes collect
	// for any whose distance satisfies the metric's radius test
	// (<=radius for L2, >=radius for inner product).
	ScanCodesRange(ids []int64, codes []byte, radius float32, collect func(id int64, dist float32)) (ndis int)
}

// withinRadius applies the metric-appropriate comparison range search
// uses: "close enough" means "no farther than radius" for L2 and "at
// least as similar as radius" for inner product.
func withinRadius(m metric.Type, dist, radius float32) bool {
	if m == metric.L2 {
		return dist <= radius
	}
	return dist >= radius
}

func codeSizeMismatch(component string, codeSize, total int) error {
	if total%codeSize != 0 {
		return fmt.Errorf("scanner: %s code buffer length %d is not a multiple of code size %d", component, total, codeSize)
	}
	return nil
}
