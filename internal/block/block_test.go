package block

import (
	"bytes"
	"testing"
)

func buildBlock(t *testing.T, pairs [][2]string) []byte {
	t.Helper()
	b := NewBuilder(4096)
	for _, p := range pairs {
		if !b.Append([]byte(p[0]), []byte(p[1])) {
			t.Fatalf("Append(%q) rejected in a fresh block", p[0])
		}
	}
	return b.Finish()
}

func TestBuilderReaderRoundTrip(t *testing.T) {
	pairs := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	data := buildBlock(t, pairs)

	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Count() != len(pairs) {
		t.Fatalf("Count = %d, want %d", r.Count(), len(pairs))
	}

	it := NewIterator(r, bytes.Compare)
	it.SeekToFirst()
	for _, p := range pairs {
		if !it.Valid() {
			t.Fatalf("iterator ended early, expected %q", p[0])
		}
		if string(it.Key()) != p[0] || string(it.Value()) != p[1] {
			t.Fatalf("got (%q,%q), want (%q,%q)", it.Key(), it.Value(), p[0], p[1])
		}
		it.Next()
	}
	if it.Valid() {
		t.Fatal("iterator should be exhausted")
	}
}

func TestSeek(t *testing.T) {
	data := buildBlock(t, [][2]string{{"a", "1"}, {"c", "3"}, {"e", "5"}})
	r, err := NewReader(data)
	if err != nil {
		t.Fatal(err)
	}
	it := NewIterator(r, bytes.Compare)

	it.Seek([]byte("b"))
	if !it.Valid() || string(it.Key()) != "c" {
		t.Fatalf("Seek(b) landed on %q, want c", it.Key())
	}

	it.Seek([]byte("z"))
	if it.Valid() {
		t.Fatal("Seek(z) should be invalid (past the end)")
	}

	it.Seek([]byte(""))
	if !it.Valid() || string(it.Key()) != "a" {
		t.Fatalf("Seek(empty) landed on %q, want a", it.Key())
	}
}

func TestBuilderSplitsOversizedBlock(t *testing.T) {
	b := NewBuilder(20)
	if !b.Append([]byte("k1"), []byte("v1")) {
		t.Fatal("first append must always succeed")
	}
	// A second, larger record should be rejected once the block is near
	// capacity, signalling the caller to start a new block.
	big := make([]byte, 64)
	if b.Append([]byte("k2"), big) {
		t.Fatal("expected Append to reject a record that would overflow the block")
	}
}

func TestEmptyBlock(t *testing.T) {
	b := NewBuilder(4096)
	data := b.Finish()
	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader on empty block: %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("Count = %d, want 0", r.Count())
	}
}
