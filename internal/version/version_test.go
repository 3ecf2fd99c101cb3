package version

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"rockyardkv/internal/cache"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/table"
	"rockyardkv/internal/vfs"
)

func buildTestSSTable(t *testing.T, dir string, id uint64, keys []string, seqStart int) *SSTable {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("%d.sst", id))
	fs := vfs.Default()
	wf, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	b := table.NewBuilder(wf, table.Options{BlockSize: 256, BloomBitsPerKey: 10, EnableBloomFilter: true})
	for i, k := range keys {
		ikey := dbformat.MakeInternalKey([]byte(k), dbformat.SequenceNumber(seqStart+i), dbformat.TypeValue)
		if err := b.Append(ikey, []byte("v-"+k)); err != nil {
			t.Fatal(err)
		}
	}
	info, err := b.Finish(id, path)
	if err != nil {
		t.Fatal(err)
	}
	raf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatal(err)
	}
	ikc := dbformat.NewInternalKeyComparator(nil)
	r, err := table.Open(id, raf, ikc, cache.New(1<<20))
	if err != nil {
		t.Fatal(err)
	}
	return NewSSTable(info, r)
}

func TestSSTableStartsAtZeroRefsAndOnlyVersionOwnershipKeepsItAlive(t *testing.T) {
	dir := t.TempDir()
	sst := buildTestSSTable(t, dir, 1, []string{"a", "b"}, 1)

	// A table never placed in a Version owns no reference of its own and
	// is never closed or deleted by Unref, since nothing ever Refs it.
	if sst.refs.Load() != 0 {
		t.Fatalf("expected fresh SSTable to start at refcount 0, got %d", sst.refs.Load())
	}

	v := NewVersion([]Level{
		{Runs: []*SortedRun{NewSortedRun([]*SSTable{sst})}},
	})
	if sst.refs.Load() != 1 {
		t.Fatalf("expected NewVersion's Ref cascade to bring refcount to 1, got %d", sst.refs.Load())
	}

	v.Ref()
	if sst.refs.Load() != 1 {
		t.Fatalf("Version.Ref alone must not re-Ref its tables, got %d", sst.refs.Load())
	}

	v.Unref()
	if sst.refs.Load() != 1 {
		t.Fatalf("one remaining Version reference should keep the table at refcount 1, got %d", sst.refs.Load())
	}

	path := sst.Info.Filename
	v.Unref()
	if sst.refs.Load() != 0 {
		t.Fatalf("expected refcount 0 after final Unref, got %d", sst.refs.Load())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("table was not marked obsolete, file should still exist: %v", err)
	}
}

func TestMarkObsoleteDeletesFileOnLastUnref(t *testing.T) {
	dir := t.TempDir()
	sst := buildTestSSTable(t, dir, 1, []string{"a"}, 1)
	v := NewVersion([]Level{
		{Runs: []*SortedRun{NewSortedRun([]*SSTable{sst})}},
	})

	sst.MarkObsolete()
	path := sst.Info.Filename
	v.Unref()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected obsolete table's file to be removed, stat err=%v", err)
	}
}

func TestVersionGetChecksLevelsInOrder(t *testing.T) {
	dir := t.TempDir()
	l0 := buildTestSSTable(t, dir, 1, []string{"a"}, 100) // newest
	l1 := buildTestSSTable(t, dir, 2, []string{"a"}, 1)   // older, shadowed

	v := NewVersion([]Level{
		{Runs: []*SortedRun{NewSortedRun([]*SSTable{l0})}},
		{Runs: []*SortedRun{NewSortedRun([]*SSTable{l1})}},
	})
	defer v.Unref()

	ikc := dbformat.NewInternalKeyComparator(nil)
	val, res, err := v.Get(ikc, []byte("a"), dbformat.SequenceNumber(1000))
	if err != nil {
		t.Fatal(err)
	}
	if res != dbformat.Found || string(val) != "v-a" {
		t.Fatalf("expected the L0 (newer) value to win, got %q res=%v", val, res)
	}
}

func TestWithLevelReplacesOnlyTargetLevel(t *testing.T) {
	dir := t.TempDir()
	l0 := buildTestSSTable(t, dir, 1, []string{"a"}, 1)
	l1 := buildTestSSTable(t, dir, 2, []string{"b"}, 1)

	v := NewVersion([]Level{
		{Runs: []*SortedRun{NewSortedRun([]*SSTable{l0})}},
		{Runs: []*SortedRun{NewSortedRun([]*SSTable{l1})}},
	})

	replacement := buildTestSSTable(t, dir, 3, []string{"a", "c"}, 50)
	v2 := v.WithLevel(0, []*SortedRun{NewSortedRun([]*SSTable{replacement})})

	if len(v2.Levels[1].Runs) != 1 || v2.Levels[1].Runs[0].Tables[0] != l1 {
		t.Fatal("expected level 1 to be untouched by WithLevel(0, ...)")
	}
	if len(v2.Levels[0].Runs) != 1 || v2.Levels[0].Runs[0].Tables[0] != replacement {
		t.Fatal("expected level 0 to hold the replacement table")
	}
	// v is untouched; both versions independently own references now.
	if l0.refs.Load() != 1 {
		t.Fatalf("expected old version's level-0 table to still be referenced once by v, got %d", l0.refs.Load())
	}
	if replacement.refs.Load() != 1 {
		t.Fatalf("expected v2 to hold one reference on the new table, got %d", replacement.refs.Load())
	}

	v.Unref()
	v2.Unref()
}
