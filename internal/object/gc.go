package object

// Collect runs one full mark-sweep cycle: mark every root, trace through
// the gray worklist until it drains, prune the string intern table of
// anything that didn't survive marking (a weak reference), then sweep
// the heap list and free whatever stayed white. This never runs
// reentrantly — Heap.MaybeCollect is called only by the VM, between
// bytecode instructions, and allocation never happens while a collection
// is itself in progress.
func (h *Heap) Collect() {
	h.gray = h.gray[:0]

	for _, root := range h.roots {
		if root != nil {
			root(h.markObject, h.markValue)
		}
	}

	h.traceReferences()
	h.Strings.RemoveWhite()
	collected, freedBytes := h.sweep()

	h.nextGC = h.bytesAllocated * 2
	if h.Log != nil {
		h.Log(collected, h.bytesAllocated, h.nextGC)
	}
	_ = freedBytes
}

func (h *Heap) markValue(v Value) {
	if v.Kind == KindObj && v.Obj != nil {
		h.markObject(v.Obj)
	}
}

func (h *Heap) markObject(o Obj) {
	if o == nil {
		return
	}
	hdr := o.Hdr()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	h.gray = append(h.gray, o)
}

func (h *Heap) markTable(t *Table) {
	t.Each(func(key *ObjString, value Value) {
		h.markObject(key)
		h.markValue(value)
	})
}

func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blackenObject(o)
	}
}

// blackenObject marks every object directly reachable from o, per the
// per-kind reference list in spec §4.6.
func (h *Heap) blackenObject(o Obj) {
	switch v := o.(type) {
	case *ObjString, *ObjNative:
		// No outgoing references.
	case *ObjUpvalue:
		h.markValue(v.Closed)
	case *ObjFunction:
		if v.Name != nil {
			h.markObject(v.Name)
		}
		for _, c := range v.Chunk.Constants {
			h.markValue(c)
		}
	case *ObjClosure:
		h.markObject(v.Function)
		for _, uv := range v.Upvalues {
			h.markObject(uv)
		}
	case *ObjClass:
		h.markObject(v.Name)
		h.markTable(v.Methods)
	case *ObjInstance:
		h.markObject(v.Class)
		h.markTable(v.Fields)
	case *ObjBoundMethod:
		h.markValue(v.Receiver)
		h.markObject(v.Method)
	}
}

// sweep walks the intrusive heap list, dropping every object that never
// got marked this cycle and unmarking every survivor so the next cycle
// starts clean.
func (h *Heap) sweep() (collected, freedBytes int) {
	var prev Obj
	cur := h.head
	for cur != nil {
		hdr := cur.Hdr()
		if hdr.Marked {
			hdr.Marked = false
			prev = cur
			cur = hdr.Next
			continue
		}
		unreached := cur
		cur = hdr.Next
		if prev != nil {
			prev.Hdr().Next = cur
		} else {
			h.head = cur
		}
		h.bytesAllocated -= sizeOf(unreached)
		freedBytes += sizeOf(unreached)
		collected++
	}
	return collected, freedBytes
}
