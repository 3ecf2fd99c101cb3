package rockyardkv

import (
	"fmt"
	"path/filepath"
	"testing"
)

func tempDBOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	opts.SSTFileSize = 4 << 10
	opts.BlockSize = 1 << 10
	opts.Level0CompactionTrigger = 4
	opts.Level0StopWritesTrigger = 20
	return opts
}

func TestBasicPutGetDel(t *testing.T) {
	db, err := Open(tempDBOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	db.Put([]byte("a"), []byte("1"))
	db.Put([]byte("b"), []byte("2"))

	if v, ok := db.Get([]byte("a")); !ok || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if v, ok := db.Get([]byte("b")); !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v", v, ok)
	}
	if _, ok := db.Get([]byte("missing")); ok {
		t.Fatal("Get(missing) should be absent")
	}

	db.Del([]byte("a"))
	if _, ok := db.Get([]byte("a")); ok {
		t.Fatal("Get(a) should be absent after Del")
	}
}

func TestReopenRecoversState(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	opts.SSTFileSize = 4 << 10

	db, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		db.Put(key, key)
	}
	db.FlushAll()
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopenOpts := opts
	reopenOpts.CreateNew = false
	db2, err := Open(reopenOpts)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		v, ok := db2.Get(key)
		if !ok || string(v) != string(key) {
			t.Fatalf("Get(%s) after reopen = %q, %v", key, v, ok)
		}
	}
}

func TestOpenTwiceOnSameDirFails(t *testing.T) {
	opts := tempDBOptions(t)
	db, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	reopenOpts := opts
	reopenOpts.CreateNew = false
	if _, err := Open(reopenOpts); err == nil {
		t.Fatal("expected second Open on the same directory to fail while the first is still open")
	}
}

func TestOpenMissingDirWithoutCreateNew(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	opts := DefaultOptions(dir)
	opts.CreateNew = false
	if _, err := Open(opts); err != ErrNotExist {
		t.Fatalf("Open on missing dir = %v, want ErrNotExist", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	db, err := Open(tempDBOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	const n = 2000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k-%05d", i))
		db.Put(key, key)
	}

	it := db.Begin()
	defer it.Close()

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k-%05d", i))
		db.Del(key)
	}

	count := 0
	var prev []byte
	for it.Valid() {
		if prev != nil && string(it.Key()) <= string(prev) {
			t.Fatalf("iteration not strictly ascending at %q after %q", it.Key(), prev)
		}
		prev = append([]byte(nil), it.Key()...)
		count++
		it.Next()
	}
	if count != n {
		t.Fatalf("snapshot iterator yielded %d keys, want %d", count, n)
	}

	fresh := db.Begin()
	defer fresh.Close()
	if fresh.Valid() {
		t.Fatalf("fresh Begin() after deleting everything should be empty, got key %q", fresh.Key())
	}
}

func TestSeekPositionsAtFirstVisibleKeyGEQTarget(t *testing.T) {
	db, err := Open(tempDBOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for _, k := range []string{"a", "c", "e", "g"} {
		db.Put([]byte(k), []byte(k))
	}

	it := db.Seek([]byte("d"))
	defer it.Close()
	if !it.Valid() || string(it.Key()) != "e" {
		t.Fatalf("Seek(d) = %q, want e", it.Key())
	}
	it.Next()
	if !it.Valid() || string(it.Key()) != "g" {
		t.Fatalf("after Next, key = %q, want g", it.Key())
	}
	it.Next()
	if it.Valid() {
		t.Fatalf("expected end of iteration, got %q", it.Key())
	}
}

func TestFlushTriggersLevel0Growth(t *testing.T) {
	opts := tempDBOptions(t)
	opts.SSTFileSize = 2 << 10
	db, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("row-%05d", i))
		val := make([]byte, 64)
		db.Put(key, val)
	}
	db.FlushAll()

	sv := db.getSV()
	if len(sv.Current.Levels) == 0 || len(sv.Current.Levels[0].Runs) == 0 {
		t.Fatal("expected at least one run at L0 after flushing many writes")
	}
}

func TestWaitForFlushAndCompactionSettles(t *testing.T) {
	db, err := Open(tempDBOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 100; i++ {
		db.Put([]byte(fmt.Sprintf("w-%03d", i)), []byte("v"))
	}
	db.FlushAll()
	db.WaitForFlushAndCompaction()

	if v, ok := db.Get([]byte("w-050")); !ok || string(v) != "v" {
		t.Fatalf("Get(w-050) = %q, %v", v, ok)
	}
}
