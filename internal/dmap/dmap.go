// Package dmap implements the C6 direct map: an optional id -> (list,
// offset) index that turns reconstruct, remove_ids, and update_vectors
// from a full-index scan into a direct lookup.
package dmap

import (
	"fmt"
	"sync"

	"github.com/ivfgo/ivfindex/internal/invlists"
)

// Mode selects how the direct map is maintained. None keeps no index at
// all (the cheapest Add path); Array assumes dense, contiguous
// external ids starting at 0; Hashtable accepts arbitrary ids at the
// cost of a map lookup per access.
type Mode int

const (
	None Mode = iota
	Array
	Hashtable
)

func (m Mode) String() string {
	switch m {
	case Array:
		return "array"
	case Hashtable:
		return "hashtable"
	default:
		return "none"
	}
}

// Pack folds a (list, offset) pair into the lo-handle this package and
// its callers pass around instead of a bare struct: list in the high
// 32 bits, offset in the low 32 bits.
func Pack(list, offset int) int64 {
	if list < 0 || list > 0xFFFFFFFF {
		panic(fmt.Sprintf("dmap: list id %d out of range for lo-handle packing", list))
	}
	if offset < 0 || offset > 0xFFFFFFFF {
		panic(fmt.Sprintf("dmap: offset %d out of range for lo-handle packing", offset))
	}
	return int64(uint64(list)<<32 | uint64(uint32(offset)))
}

// UnpackList recovers the list id from a lo-handle produced by Pack.
func UnpackList(lo int64) int { return int(uint64(lo) >> 32) }

// UnpackOffset recovers the in-list offset from a lo-handle produced
// by Pack.
func UnpackOffset(lo int64) int { return int(uint32(lo)) }

// Selector identifies which ids RemoveIDs should delete. Implementing
// IDListSelector in addition lets RemoveIDs resolve victims through the
// direct map directly instead of scanning every list.
type Selector interface {
	Test(id int64) bool
}

// IDListSelector is a Selector that can also enumerate its ids
// up front, letting RemoveIDs skip the full-list scan when a direct
// map is available.
type IDListSelector interface {
	Selector
	IDs() []int64
}

// IDSet selects an explicit, small set of ids for removal.
type IDSet map[int64]struct{}

// NewIDSet builds an IDSet selector from a slice of ids.
func NewIDSet(ids []int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Test(id int64) bool { _, ok := s[id]; return ok }
func (s IDSet) IDs() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// PredicateFunc adapts a plain function into a Selector that has no
// enumerable id list, forcing RemoveIDs to scan every list.
type PredicateFunc func(id int64) bool

func (f PredicateFunc) Test(id int64) bool { return f(id) }

// DirectMap is the C6 id -> lo-handle index. The zero value is not
// usable; construct with New.
type DirectMap struct {
	mu    sync.RWMutex
	mode  Mode
	array []int64          // Array mode: indexed by id, -1 (unassigned) for holes
	hash  map[int64]int64  // Hashtable mode
}

const unassigned = -1

// New creates a direct map in the given mode.
func New(mode Mode) *DirectMap {
	d := &DirectMap{mode: mode}
	if mode == Hashtable {
		d.hash = make(map[int64]int64)
	}
	return d
}

func (d *DirectMap) Mode() Mode { return d.mode }

// SetType switches the map's mode and rebuilds its contents from the
// entries currently stored in lists. Rebuilding from scratch keeps the
// map consistent regardless of what mode it was in before.
func (d *DirectMap) SetType(mode Mode, lists invlists.ListStore, ntotal int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mode = mode
	switch mode {
	case None:
		d.array = nil
		d.hash = nil
		return nil
	case Hashtable:
		d.array = nil
		d.hash = make(map[int64]int64)
	case Array:
		d.hash = nil
		d.array = make([]int64, ntotal)
		for i := range d.array {
			d.array[i] = unassigned
		}
	default:
		return fmt.Errorf("dmap: unknown mode %v", mode)
	}

	for l := 0; l < lists.NList(); l++ {
		ids := lists.GetIDs(l)
		for off, id := range ids {
			if err := d.recordLocked(id, l, off); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *DirectMap) recordLocked(id int64, list, offset int) error {
	lo := Pack(list, offset)
	switch d.mode {
	case Array:
		if id < 0 {
			return fmt.Errorf("dmap: array mode requires non-negative ids, got %d", id)
		}
		if int(id) >= len(d.array) {
			grown := make([]int64, id+1)
			for i := range grown {
				grown[i] = unassigned
			}
			copy(grown, d.array)
			d.array = grown
		}
		d.array[id] = lo
	case Hashtable:
		d.hash[id] = lo
	case None:
		// no-op: record is a cache write, harmless to skip
	}
	return nil
}

// record is the locked entry point Add and the removal/update paths
// use to keep the map in sync with a mutation already applied to
// lists.
func (d *DirectMap) record(id int64, list, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recordLocked(id, list, offset)
}

// Record is the Add-time hook: callers invoke it once per successfully
// placed entry (an id assigned to no list, i.e. list -1, is skipped —
// it still counts toward ntotal but has no lo-handle to index).
func (d *DirectMap) Record(id int64, list, offset int) error {
	if list < 0 {
		return nil
	}
	return d.record(id, list, offset)
}

func (d *DirectMap) deleteLocked(id int64) {
	switch d.mode {
	case Array:
		if id >= 0 && int(id) < len(d.array) {
			d.array[id] = unassigned
		}
	case Hashtable:
		delete(d.hash, id)
	}
}

// Get resolves an id to its (list, offset) lo-handle.
func (d *DirectMap) Get(id int64) (lo int64, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch d.mode {
	case Array:
		if id < 0 || int(id) >= len(d.array) || d.array[id] == unassigned {
			return 0, false
		}
		return d.array[id], true
	case Hashtable:
		lo, ok := d.hash[id]
		return lo, ok
	default:
		return 0, false
	}
}

// CheckCanAdd validates that a batch of explicit ids about to be added
// is acceptable for the current mode. Array mode requires dense,
// contiguous ids starting at the current ntotal; auto-assigned ids
// (ids == nil) and Hashtable/None modes impose no restriction.
func (d *DirectMap) CheckCanAdd(ntotal int, ids []int64) error {
	if d.mode != Array || ids == nil {
		return nil
	}
	for i, id := range ids {
		if id != int64(ntotal+i) {
			return fmt.Errorf("dmap: array mode requires sequential ids starting at %d, got %d at position %d", ntotal, id, i)
		}
	}
	return nil
}

// Clear resets the map to empty without changing its mode.
func (d *DirectMap) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.mode {
	case Array:
		d.array = nil
	case Hashtable:
		d.hash = make(map[int64]int64)
	}
}

// RemoveIDs deletes every id the selector matches from lists, keeping
// lists contiguous via swap-with-tail and updating the map both for
// the deleted id and for whichever entry got swapped into its place.
func (d *DirectMap) RemoveIDs(sel Selector, lists invlists.ListStore) (int, error) {
	if d.mode == None {
		return 0, fmt.Errorf("dmap: remove_ids requires a direct map (mode is none)")
	}

	count := 0
	if idSel, ok := sel.(IDListSelector); ok {
		for _, id := range idSel.IDs() {
			lo, ok := d.Get(id)
			if !ok {
				continue
			}
			if err := d.removeOneFromList(lists, UnpackList(lo), id); err != nil {
				return count, err
			}
			count++
		}
		return count, nil
	}

	for l := 0; l < lists.NList(); l++ {
		ids := append([]int64(nil), lists.GetIDs(l)...) // snapshot: removal mutates the live view
		for _, id := range ids {
			if !sel.Test(id) {
				continue
			}
			if err := d.removeOneFromList(lists, l, id); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// removeOneFromList locates id's current offset within list l (it may
// have shifted from an earlier removal on the same list), removes it,
// and repairs both the victim and any tail entry that moved.
func (d *DirectMap) removeOneFromList(lists invlists.ListStore, l int, id int64) error {
	ids := lists.GetIDs(l)
	off := -1
	for i, x := range ids {
		if x == id {
			off = i
			break
		}
	}
	if off < 0 {
		return nil
	}
	movedID, moved, err := lists.SwapRemove(l, off)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.deleteLocked(id)
	d.mu.Unlock()
	if moved {
		return d.record(movedID, l, off)
	}
	return nil
}

// UpdateCodes rewrites the stored code for each id, moving it to a new
// list when newLists[i] differs from its current one. A same-list
// update is an in-place SetCode; a cross-list update removes the old
// entry (swap-with-tail) and appends the new one, updating the map for
// both the victim, the new entry, and any displaced tail entry.
func (d *DirectMap) UpdateCodes(lists invlists.ListStore, ids []int64, newLists []int, newCodes [][]byte) error {
	if d.mode == None {
		return fmt.Errorf("dmap: update_vectors requires a direct map (mode is none)")
	}
	if len(ids) != len(newLists) || len(ids) != len(newCodes) {
		return fmt.Errorf("dmap: UpdateCodes argument length mismatch")
	}

	for i, id := range ids {
		lo, ok := d.Get(id)
		if !ok {
			return fmt.Errorf("dmap: id %d not present in direct map", id)
		}
		oldList, oldOffset := UnpackList(lo), UnpackOffset(lo)
		newList := newLists[i]

		if newList == oldList {
			if err := lists.SetCode(oldList, oldOffset, newCodes[i]); err != nil {
				return err
			}
			continue
		}

		movedID, moved, err := lists.SwapRemove(oldList, oldOffset)
		if err != nil {
			return err
		}
		if moved {
			if err := d.record(movedID, oldList, oldOffset); err != nil {
				return err
			}
		}
		newOffset, err := lists.AddEntry(newList, id, newCodes[i])
		if err != nil {
			return err
		}
		if err := d.record(id, newList, newOffset); err != nil {
			return err
		}
	}
	return nil
}
