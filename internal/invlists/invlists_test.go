package invlists

import "testing"

func TestAddEntryAndRead(t *testing.T) {
	a := NewArray(4, 2)
	off, err := a.AddEntry(1, 100, []byte{1, 2})
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if off != 0 {
		t.Fatalf("expected offset 0, got %d", off)
	}
	off2, _ := a.AddEntry(1, 101, []byte{3, 4})
	if off2 != 1 {
		t.Fatalf("expected offset 1, got %d", off2)
	}
	if a.ListSize(1) != 2 {
		t.Fatalf("expected list size 2, got %d", a.ListSize(1))
	}
	id, err := a.GetSingleID(1, 1)
	if err != nil || id != 101 {
		t.Fatalf("GetSingleID(1,1) = %d, %v, want 101", id, err)
	}
	code, err := a.GetSingleCode(1, 0)
	if err != nil || code[0] != 1 || code[1] != 2 {
		t.Fatalf("GetSingleCode(1,0) = %v, %v", code, err)
	}
}

func TestSwapRemoveTailCase(t *testing.T) {
	a := NewArray(1, 1)
	a.AddEntry(0, 10, []byte{1})
	a.AddEntry(0, 20, []byte{2})
	a.AddEntry(0, 30, []byte{3})

	movedID, moved, err := a.SwapRemove(0, 0)
	if err != nil {
		t.Fatalf("SwapRemove: %v", err)
	}
	if !moved || movedID != 30 {
		t.Fatalf("expected tail id 30 moved into offset 0, got id=%d moved=%v", movedID, moved)
	}
	if a.ListSize(0) != 2 {
		t.Fatalf("expected size 2 after removal, got %d", a.ListSize(0))
	}
	id0, _ := a.GetSingleID(0, 0)
	if id0 != 30 {
		t.Fatalf("expected offset 0 to now hold id 30, got %d", id0)
	}
	code0, _ := a.GetSingleCode(0, 0)
	if code0[0] != 3 {
		t.Fatalf("expected offset 0 code to be moved tail's code, got %v", code0)
	}
}

func TestSwapRemoveLastEntry(t *testing.T) {
	a := NewArray(1, 1)
	a.AddEntry(0, 10, []byte{1})
	_, moved, err := a.SwapRemove(0, 0)
	if err != nil {
		t.Fatalf("SwapRemove: %v", err)
	}
	if moved {
		t.Fatalf("expected no move when removing the only/last entry")
	}
	if a.ListSize(0) != 0 {
		t.Fatalf("expected empty list, got size %d", a.ListSize(0))
	}
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	a := NewArray(2, 1)
	a.AddEntry(0, 1, []byte{9})
	ro, ok := a.ToReadOnly()
	if !ok {
		t.Fatalf("expected ToReadOnly to succeed for Array")
	}
	if !ro.IsReadOnly() {
		t.Fatalf("expected IsReadOnly true")
	}
	if _, err := ro.AddEntry(0, 2, []byte{1}); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestMergeFromShiftsIDsAndEmptiesSource(t *testing.T) {
	a := NewArray(2, 1)
	b := NewArray(2, 1)
	a.AddEntry(0, 1, []byte{1})
	b.AddEntry(0, 2, []byte{2})
	b.AddEntry(1, 3, []byte{3})

	if err := a.MergeFrom(b, 100); err != nil {
		t.Fatalf("MergeFrom: %v", err)
	}
	if a.ListSize(0) != 2 {
		t.Fatalf("expected list 0 size 2 after merge, got %d", a.ListSize(0))
	}
	id, _ := a.GetSingleID(0, 1)
	if id != 102 {
		t.Fatalf("expected shifted id 102, got %d", id)
	}
	if b.ListSize(0) != 0 || b.ListSize(1) != 0 {
		t.Fatalf("expected source lists emptied after merge")
	}
}
