// Package invlists implements the C4 inverted-list container: a
// fixed-size array of nlist growable (id, code) sequences, the posting
// lists an IVF index scans at query time.
package invlists

import (
	"fmt"
	"sync"
)

// ErrReadOnly is returned by any mutating call on a list store that
// has transitioned to read-only.
var ErrReadOnly = fmt.Errorf("invlists: list store is read-only")

// ListStore is the C4 contract (spec §4.2). Borrowed views returned by
// GetIDs/GetCodes are backed by the list's current storage and are
// only valid until the next mutation of that list.
type ListStore interface {
	NList() int
	CodeSize() int

	ListSize(l int) int
	AddEntry(l int, id int64, code []byte) (offset int, err error)
	GetIDs(l int) []int64
	GetCodes(l int) []byte
	GetSingleID(l, offset int) (int64, error)
	GetSingleCode(l, offset int) ([]byte, error)

	// SwapRemove deletes the entry at (l, offset) by swapping the
	// list's tail entry into its place and truncating, per §4.3's
	// remove/update contract. It reports the id that ended up at
	// offset after the swap (or -1 if offset was the last entry and
	// nothing needed to move) so the direct map can update the moved
	// entry's record.
	SwapRemove(l, offset int) (movedID int64, moved bool, err error)

	// SetCode overwrites the code bytes of an existing entry in
	// place (used by in-place update when the list assignment does
	// not change).
	SetCode(l, offset int, code []byte) error

	PrefetchLists(ids []int64)

	// MergeFrom appends other's list l onto self's list l for every
	// l, shifting external ids by idOffset, and empties other.
	MergeFrom(other ListStore, idOffset int64) error

	ToReadOnly() (ListStore, bool)
	IsReadOnly() bool
}

type list struct {
	ids   []int64
	codes []byte // flattened, codeSize bytes per entry
}

// Array is the concrete ListStore: a Go slice per list, growable by
// append, matching the teacher's per-cluster Entries slice but
// generalized to raw code bytes instead of full float32 vectors.
type Array struct {
	nlist    int
	codeSize int
	mu       []sync.Mutex
	lists    []list
	readOnly bool
}

// NewArray creates an empty inverted-list container for nlist lists,
// each entry occupying codeSize bytes.
func NewArray(nlist, codeSize int) *Array {
	return &Array{
		nlist:    nlist,
		codeSize: codeSize,
		mu:       make([]sync.Mutex, nlist),
		lists:    make([]list, nlist),
	}
}

func (a *Array) NList() int    { return a.nlist }
func (a *Array) CodeSize() int { return a.codeSize }

func (a *Array) checkList(l int) error {
	if l < 0 || l >= a.nlist {
		return fmt.Errorf("invlists: list id %d out of range [0,%d)", l, a.nlist)
	}
	return nil
}

func (a *Array) ListSize(l int) int {
	if err := a.checkList(l); err != nil {
		return 0
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	return len(a.lists[l].ids)
}

func (a *Array) AddEntry(l int, id int64, code []byte) (int, error) {
	if a.readOnly {
		return 0, ErrReadOnly
	}
	if err := a.checkList(l); err != nil {
		return 0, err
	}
	if len(code) != a.codeSize {
		return 0, fmt.Errorf("invlists: code length %d does not match code_size %d", len(code), a.codeSize)
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	offset := len(a.lists[l].ids)
	a.lists[l].ids = append(a.lists[l].ids, id)
	a.lists[l].codes = append(a.lists[l].codes, code...)
	return offset, nil
}

func (a *Array) GetIDs(l int) []int64 {
	if err := a.checkList(l); err != nil {
		return nil
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	return a.lists[l].ids
}

func (a *Array) GetCodes(l int) []byte {
	if err := a.checkList(l); err != nil {
		return nil
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	return a.lists[l].codes
}

func (a *Array) GetSingleID(l, offset int) (int64, error) {
	if err := a.checkList(l); err != nil {
		return 0, err
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	if offset < 0 || offset >= len(a.lists[l].ids) {
		return 0, fmt.Errorf("invlists: offset %d out of range for list %d (size %d)", offset, l, len(a.lists[l].ids))
	}
	return a.lists[l].ids[offset], nil
}

func (a *Array) GetSingleCode(l, offset int) ([]byte, error) {
	if err := a.checkList(l); err != nil {
		return nil, err
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	if offset < 0 || offset >= len(a.lists[l].ids) {
		return nil, fmt.Errorf("invlists: offset %d out of range for list %d (size %d)", offset, l, len(a.lists[l].ids))
	}
	start := offset * a.codeSize
	out := make([]byte, a.codeSize)
	copy(out, a.lists[l].codes[start:start+a.codeSize])
	return out, nil
}

func (a *Array) SwapRemove(l, offset int) (int64, bool, error) {
	if a.readOnly {
		return 0, false, ErrReadOnly
	}
	if err := a.checkList(l); err != nil {
		return 0, false, err
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	n := len(a.lists[l].ids)
	if offset < 0 || offset >= n {
		return 0, false, fmt.Errorf("invlists: offset %d out of range for list %d (size %d)", offset, l, n)
	}
	last := n - 1
	if offset == last {
		a.lists[l].ids = a.lists[l].ids[:last]
		a.lists[l].codes = a.lists[l].codes[:last*a.codeSize]
		return -1, false, nil
	}
	movedID := a.lists[l].ids[last]
	a.lists[l].ids[offset] = movedID
	copy(a.lists[l].codes[offset*a.codeSize:(offset+1)*a.codeSize], a.lists[l].codes[last*a.codeSize:n*a.codeSize])
	a.lists[l].ids = a.lists[l].ids[:last]
	a.lists[l].codes = a.lists[l].codes[:last*a.codeSize]
	return movedID, true, nil
}

func (a *Array) SetCode(l, offset int, code []byte) error {
	if a.readOnly {
		return ErrReadOnly
	}
	if err := a.checkList(l); err != nil {
		return err
	}
	if len(code) != a.codeSize {
		return fmt.Errorf("invlists: code length %d does not match code_size %d", len(code), a.codeSize)
	}
	a.mu[l].Lock()
	defer a.mu[l].Unlock()
	if offset < 0 || offset >= len(a.lists[l].ids) {
		return fmt.Errorf("invlists: offset %d out of range for list %d", offset, l)
	}
	copy(a.lists[l].codes[offset*a.codeSize:(offset+1)*a.codeSize], code)
	return nil
}

// PrefetchLists is an advisory no-op: Array's lists already live in
// process memory, so there is nothing to stage.
func (a *Array) PrefetchLists(ids []int64) {}

func (a *Array) MergeFrom(other ListStore, idOffset int64) error {
	if a.readOnly {
		return ErrReadOnly
	}
	o, ok := other.(*Array)
	if !ok {
		return fmt.Errorf("invlists: MergeFrom requires another *Array store")
	}
	if o.nlist != a.nlist || o.codeSize != a.codeSize {
		return fmt.Errorf("invlists: incompatible stores (nlist %d vs %d, code_size %d vs %d)", o.nlist, a.nlist, o.codeSize, a.codeSize)
	}
	for l := 0; l < a.nlist; l++ {
		o.mu[l].Lock()
		srcIDs := o.lists[l].ids
		srcCodes := o.lists[l].codes
		o.lists[l] = list{}
		o.mu[l].Unlock()

		if len(srcIDs) == 0 {
			continue
		}
		a.mu[l].Lock()
		for _, id := range srcIDs {
			a.lists[l].ids = append(a.lists[l].ids, id+idOffset)
		}
		a.lists[l].codes = append(a.lists[l].codes, srcCodes...)
		a.mu[l].Unlock()
	}
	return nil
}

// ToReadOnly freezes the store in place: further mutating calls
// return ErrReadOnly. Array always supports the transition.
func (a *Array) ToReadOnly() (ListStore, bool) {
	a.readOnly = true
	return a, true
}

func (a *Array) IsReadOnly() bool { return a.readOnly }
