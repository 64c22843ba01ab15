package object

import "testing"

func str(h *Heap, s string) *ObjString { return h.InternString(s) }

func TestTable_SetGetDelete(t *testing.T) {
	h := NewHeap()
	table := NewTable()

	a := str(h, "a")
	if !table.Set(a, Number(1)) {
		t.Fatal("first Set of a new key should report isNew=true")
	}
	if table.Set(a, Number(2)) {
		t.Error("Set of an existing key should report isNew=false")
	}

	v, ok := table.Get(a)
	if !ok || v.AsNumber() != 2 {
		t.Errorf("Get(a) = %v, %v; want 2, true", v, ok)
	}

	if !table.Delete(a) {
		t.Error("Delete of a present key should succeed")
	}
	if _, ok := table.Get(a); ok {
		t.Error("Get after Delete should report not found")
	}
	if table.Delete(a) {
		t.Error("second Delete of an already-deleted key should fail")
	}
}

func TestTable_GrowsAndSurvivesRehash(t *testing.T) {
	h := NewHeap()
	table := NewTable()

	const n = 200
	keys := make([]*ObjString, n)
	for i := 0; i < n; i++ {
		keys[i] = str(h, string(rune('a'+i%26))+string(rune('A'+i%17))+string(rune('0'+i%10)))
		table.Set(keys[i], Number(float64(i)))
	}
	for i := 0; i < n; i++ {
		v, ok := table.Get(keys[i])
		if !ok || v.AsNumber() != float64(i) {
			t.Fatalf("key %d: got %v, %v; want %d, true", i, v, ok, i)
		}
	}
}

func TestTable_TombstoneKeepsProbeSequenceWorking(t *testing.T) {
	h := NewHeap()
	table := NewTable()

	a, b, c := str(h, "a"), str(h, "b"), str(h, "c")
	table.Set(a, Number(1))
	table.Set(b, Number(2))
	table.Set(c, Number(3))
	table.Delete(b)

	if v, ok := table.Get(c); !ok || v.AsNumber() != 3 {
		t.Errorf("Get(c) after deleting b = %v, %v; want 3, true", v, ok)
	}
}

func TestTable_FindString(t *testing.T) {
	h := NewHeap()
	table := NewTable()
	s := h.NewString("hello")
	table.Set(s, Nil())

	found := table.FindString("hello", FNV1a32("hello"))
	if found != s {
		t.Errorf("FindString returned a different *ObjString than was inserted")
	}
	if table.FindString("goodbye", FNV1a32("goodbye")) != nil {
		t.Error("FindString found a string that was never inserted")
	}
}

func TestTable_AddAll(t *testing.T) {
	h := NewHeap()
	from := NewTable()
	to := NewTable()

	from.Set(str(h, "x"), Number(1))
	from.Set(str(h, "y"), Number(2))
	to.Set(str(h, "y"), Number(99)) // should be overwritten

	to.AddAll(from)

	if v, _ := to.Get(str(h, "x")); v.AsNumber() != 1 {
		t.Errorf("x = %v, want 1", v)
	}
	if v, _ := to.Get(str(h, "y")); v.AsNumber() != 2 {
		t.Errorf("y = %v, want 2 (overwritten by AddAll)", v)
	}
}

func TestTable_RemoveWhite(t *testing.T) {
	h := NewHeap()
	table := NewTable()
	marked := h.NewString("kept")
	unmarked := h.NewString("dropped")
	marked.Marked = true

	table.Set(marked, Nil())
	table.Set(unmarked, Nil())
	table.RemoveWhite()

	if _, ok := table.Get(marked); !ok {
		t.Error("marked entry should survive RemoveWhite")
	}
	if _, ok := table.Get(unmarked); ok {
		t.Error("unmarked entry should be removed by RemoveWhite")
	}
}

func TestFNV1a32_Deterministic(t *testing.T) {
	if FNV1a32("abc") != FNV1a32("abc") {
		t.Error("hash of the same content should be stable")
	}
	if FNV1a32("abc") == FNV1a32("abd") {
		t.Error("hash collision between distinct short strings is suspicious for this test")
	}
}
