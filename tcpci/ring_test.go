package tcpci

import "testing"

func TestMessageRingFIFOOrder(t *testing.T) {
	r := newMessageRing(4)
	for i := uint16(0); i < 3; i++ {
		slot := r.reserve()
		if slot == nil {
			t.Fatalf("reserve() returned nil before ring was full")
		}
		slot.header = i
		r.publish()
	}
	for i := uint16(0); i < 3; i++ {
		m, ok := r.dequeue()
		if !ok {
			t.Fatalf("dequeue() reported empty with %d messages still pending", 3-i)
		}
		if m.header != i {
			t.Fatalf("dequeue() returned header %d, want %d (FIFO order violated)", m.header, i)
		}
	}
	if r.hasPending() {
		t.Fatal("hasPending() true after draining the ring")
	}
}

func TestMessageRingOverflowReturnsNil(t *testing.T) {
	r := newMessageRing(2)
	for i := 0; i < 2; i++ {
		if slot := r.reserve(); slot == nil {
			t.Fatalf("reserve() returned nil filling slot %d of a 2-capacity ring", i)
		}
		r.publish()
	}
	if !r.full() {
		t.Fatal("full() false after filling a 2-capacity ring")
	}
	if slot := r.reserve(); slot != nil {
		t.Fatal("reserve() returned a slot on a full ring")
	}

	if _, ok := r.dequeue(); !ok {
		t.Fatal("dequeue() failed on a full ring")
	}
	if r.full() {
		t.Fatal("full() true after dequeueing one slot")
	}
	if slot := r.reserve(); slot == nil {
		t.Fatal("reserve() returned nil after a slot was freed")
	}
}

func TestMessageRingClear(t *testing.T) {
	r := newMessageRing(4)
	for i := 0; i < 3; i++ {
		slot := r.reserve()
		slot.header = uint16(i)
		r.publish()
	}
	r.clear()
	if r.hasPending() {
		t.Fatal("hasPending() true after clear()")
	}
	slot := r.reserve()
	if slot == nil {
		t.Fatal("reserve() returned nil on an empty ring right after clear()")
	}
}

func TestNewMessageRingRejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("newMessageRing(3) did not panic")
		}
	}()
	newMessageRing(3)
}
