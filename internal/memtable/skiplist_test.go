package memtable

import (
	"bytes"
	"testing"
)

func TestSkipListInsertAndIterate(t *testing.T) {
	sl := newSkipList(bytes.Compare)
	for _, k := range []string{"c", "a", "b"} {
		sl.Insert([]byte(k))
	}
	if sl.Count() != 3 {
		t.Fatalf("Count = %d, want 3", sl.Count())
	}

	it := sl.newIterator()
	it.SeekToFirst()
	var got []string
	for it.Valid() {
		got = append(got, string(it.Entry()))
		it.Next()
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSkipListSeek(t *testing.T) {
	sl := newSkipList(bytes.Compare)
	for _, k := range []string{"a", "c", "e"} {
		sl.Insert([]byte(k))
	}
	it := sl.newIterator()
	it.Seek([]byte("b"))
	if !it.Valid() || string(it.Entry()) != "c" {
		t.Fatalf("Seek(b) landed on %q, want c", it.Entry())
	}
	it.Seek([]byte("z"))
	if it.Valid() {
		t.Fatal("Seek(z) should be invalid")
	}
}
