package coarse

import "fmt"

// CodeSize returns the coarse code size in bytes: the minimum number
// of little-endian bytes sufficient to represent nlist-1 (spec §3,
// §4.1). nlist <= 1 still requires one byte.
func CodeSize(nlist int) int {
	maxID := nlist - 1
	if maxID < 1 {
		maxID = 1
	}
	bits := 0
	for (1 << bits) <= maxID {
		bits++
	}
	return (bits + 7) / 8
}

// EncodeListNo writes list id as unsigned little-endian into exactly
// CodeSize(nlist) bytes.
func EncodeListNo(listID, nlist int) []byte {
	size := CodeSize(nlist)
	out := make([]byte, size)
	EncodeListNoInto(out, listID, nlist)
	return out
}

// EncodeListNoInto writes into a caller-provided buffer of exactly
// CodeSize(nlist) bytes, avoiding an allocation per entry during bulk
// encoding.
func EncodeListNoInto(dst []byte, listID, nlist int) {
	size := CodeSize(nlist)
	v := uint64(listID)
	for i := 0; i < size; i++ {
		dst[i] = byte(v)
		v >>= 8
	}
}

// DecodeListNo inverts EncodeListNo and asserts the result lies in
// [0, nlist).
func DecodeListNo(code []byte, nlist int) (int, error) {
	size := CodeSize(nlist)
	if len(code) != size {
		return 0, fmt.Errorf("coarse: list code must be %d bytes, got %d", size, len(code))
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = (v << 8) | uint64(code[i])
	}
	id := int(v)
	if id < 0 || id >= nlist {
		return 0, fmt.Errorf("coarse: decoded list id %d out of range [0,%d)", id, nlist)
	}
	return id, nil
}
