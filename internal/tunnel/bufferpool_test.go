package tunnel

import "testing"

func TestPacketBufferPoolReusesBuffers(t *testing.T) {
	pool := NewPacketBufferPool(2)

	a := pool.Get()
	a.Length = 42
	pool.Put(a)

	b := pool.Get()
	if b != a {
		t.Fatalf("expected Get to return the buffer just Put back")
	}
	if b.Length != 0 {
		t.Fatalf("Get should reset Length, got %d", b.Length)
	}
}

func TestPacketBufferPoolRespectsMax(t *testing.T) {
	pool := NewPacketBufferPool(1)

	a := pool.Get()
	b := pool.Get()

	pool.Put(a)
	pool.Put(b) // pool is already at max, this one is dropped

	c := pool.Get()
	d := pool.Get()
	if c != a {
		t.Fatalf("expected first Get to return the sole pooled buffer")
	}
	if d == b {
		t.Fatalf("second buffer should not have been pooled past max size")
	}
}
