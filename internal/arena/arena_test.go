package arena

import "testing"

func TestAllocateCopiesAndPersists(t *testing.T) {
	a := New()
	src := []byte("hello")
	got := a.Allocate(src)
	src[0] = 'X' // mutate the source; arena copy must be unaffected
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q (arena must copy, not alias)", got, "hello")
	}
}

func TestAllocateAcrossBlocks(t *testing.T) {
	a := New()
	big := make([]byte, BlockSize+100)
	for i := range big {
		big[i] = byte(i)
	}
	got := a.Allocate(big)
	if len(got) != len(big) {
		t.Fatalf("len = %d, want %d", len(got), len(big))
	}
	for i := range big {
		if got[i] != big[i] {
			t.Fatalf("byte %d mismatch", i)
		}
	}
	if a.MemoryUsage() < len(big) {
		t.Fatalf("MemoryUsage = %d, want >= %d", a.MemoryUsage(), len(big))
	}
}

func TestAllocateEmpty(t *testing.T) {
	a := New()
	if got := a.Allocate(nil); got != nil {
		t.Fatalf("Allocate(nil) = %v, want nil", got)
	}
}
