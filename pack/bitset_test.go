package pack

import "testing"

func TestBitsetSetClear(t *testing.T) {
	var b bitset
	b.set(0)
	b.set(63)
	b.set(64)
	b.set(slowpathBit)
	if b.isZero() {
		t.Fatal("expected non-zero bitset after set")
	}
	b.clear(0)
	b.clear(63)
	b.clear(64)
	b.clear(slowpathBit)
	if !b.isZero() {
		t.Fatal("expected zero bitset after clearing every set bit")
	}
}

func TestBitsetConflictsNeverFalseNegative(t *testing.T) {
	var rwInUse, wInUse, rw, w bitset
	rwInUse.set(5)
	rw.set(5)
	w.set(5)
	if !conflicts(rwInUse, wInUse, rw, w) {
		t.Fatal("a candidate writing a bit that is in use must be reported as a conflict")
	}
}

func TestBitsetConflictsDisjointIsFalse(t *testing.T) {
	var rwInUse, wInUse, rw, w bitset
	rwInUse.set(1)
	rw.set(2)
	if conflicts(rwInUse, wInUse, rw, w) {
		t.Fatal("disjoint bitsets must never conflict")
	}
}

func TestBitsetAndOr(t *testing.T) {
	var a, b bitset
	a.set(1)
	a.set(2)
	b.set(2)
	b.set(3)
	and := a.and(b)
	if and.isZero() {
		t.Fatal("expected bit 2 in intersection")
	}
	a.or(b)
	for _, i := range []int{1, 2, 3} {
		var probe bitset
		probe.set(i)
		if a.and(probe).isZero() {
			t.Fatalf("expected bit %d set after or", i)
		}
	}
}
