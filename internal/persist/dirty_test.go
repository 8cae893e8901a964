package persist

import "testing"

func TestDirtySetMarkAndSwap(t *testing.T) {
	d := NewDirtySet[string]()
	d.MarkAdded("a")
	d.MarkAdded("b")
	d.MarkDeleted("b")

	if got := d.Len(); got != 2 {
		t.Fatalf("expected 2 pending keys, got %d", got)
	}

	snap := d.Swap()
	if len(snap) != 2 {
		t.Fatalf("expected swap to return 2 entries, got %d", len(snap))
	}
	if snap["a"] != OpAdd {
		t.Errorf("expected a to be OpAdd, got %v", snap["a"])
	}
	if snap["b"] != OpDelete {
		t.Errorf("expected last-op-wins delete for b, got %v", snap["b"])
	}
	if d.Len() != 0 {
		t.Errorf("expected empty set after swap, got %d", d.Len())
	}
}

func TestDirtySetRequeueDoesNotOverwriteNewer(t *testing.T) {
	d := NewDirtySet[int]()
	d.MarkAdded(1)

	failed := map[int]Op{1: OpDelete, 2: OpAdd}
	d.Requeue(failed)

	snap := d.Swap()
	if snap[1] != OpAdd {
		t.Errorf("expected key 1 to keep its newer OpAdd, got %v", snap[1])
	}
	if snap[2] != OpAdd {
		t.Errorf("expected requeued key 2 to carry over, got %v", snap[2])
	}
}

func TestDirtySetSwapIsEmptyWhenNothingPending(t *testing.T) {
	d := NewDirtySet[string]()
	snap := d.Swap()
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %d entries", len(snap))
	}
}
