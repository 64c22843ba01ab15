package object

import "testing"

// countLive walks the heap's allocation-order list and counts survivors.
func countLive(h *Heap) int {
	n := 0
	for o := h.head; o != nil; o = o.Hdr().Next {
		n++
	}
	return n
}

func TestCollect_FreesUnreachableObjects(t *testing.T) {
	h := NewHeap()
	h.NewString("garbage")
	before := countLive(h)

	h.Collect() // no roots registered: nothing survives
	after := countLive(h)

	if after != 0 {
		t.Errorf("expected 0 survivors with no roots, got %d (started with %d)", after, before)
	}
}

func TestCollect_KeepsObjectsReachableFromARoot(t *testing.T) {
	h := NewHeap()
	kept := h.NewString("kept")
	h.NewString("garbage")

	h.AddRoot(func(mark func(Obj), markValue func(Value)) {
		mark(kept)
	})
	h.Collect()

	found := false
	for o := h.head; o != nil; o = o.Hdr().Next {
		if o == Obj(kept) {
			found = true
		}
	}
	if !found {
		t.Error("rooted string should survive collection")
	}
	if countLive(h) != 1 {
		t.Errorf("expected exactly 1 survivor, got %d", countLive(h))
	}
}

func TestCollect_TracesThroughClosureAndFunction(t *testing.T) {
	h := NewHeap()
	fn := h.NewFunction()
	fn.Name = h.NewString("f")
	closure := h.NewClosure(fn)

	h.AddRoot(func(mark func(Obj), markValue func(Value)) {
		mark(closure)
	})
	h.Collect()

	if closure.Hdr().Marked {
		t.Error("survivors should have Marked cleared after sweep")
	}
	live := countLive(h)
	if live != 3 { // closure, function, name string
		t.Errorf("expected closure+function+name (3 objects) to survive, got %d", live)
	}
}

func TestCollect_ClearsMarkedFlagOnSurvivors(t *testing.T) {
	h := NewHeap()
	s := h.NewString("x")
	h.AddRoot(func(mark func(Obj), markValue func(Value)) { mark(s) })

	h.Collect()
	if s.Marked {
		t.Error("a survivor's Marked flag should be false once Collect returns")
	}
}

func TestCollect_SurvivesFunctionWithNilName(t *testing.T) {
	// A top-level script's ObjFunction is never given a Name (only
	// function() declarations get one) - blackenObject must not try to
	// mark a nil *ObjString through it.
	h := NewHeap()
	fn := h.NewFunction()
	closure := h.NewClosure(fn)

	h.AddRoot(func(mark func(Obj), markValue func(Value)) {
		mark(closure)
	})

	h.Collect()

	if countLive(h) != 2 { // closure, function (no name string to survive)
		t.Errorf("expected closure+function (2 objects) to survive, got %d", countLive(h))
	}
}

func TestCollect_InternTableDropsUnreferencedStrings(t *testing.T) {
	h := NewHeap()
	h.InternString("transient")
	if h.Strings.FindString("transient", FNV1a32("transient")) == nil {
		t.Fatal("setup: string should be interned before collection")
	}

	h.Collect() // nothing roots "transient"; RemoveWhite should drop it

	if h.Strings.FindString("transient", FNV1a32("transient")) != nil {
		t.Error("RemoveWhite should have pruned the unreferenced intern table entry")
	}
}
