package compaction

import (
	"fmt"
	"path/filepath"
	"testing"

	"rockyardkv/internal/cache"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/table"
	"rockyardkv/internal/vfs"
	"rockyardkv/internal/version"
)

func buildSST(t *testing.T, dir string, id uint64, keys []string, seqStart int) *version.SSTable {
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
	return version.NewSSTable(info, r)
}

func TestLeveledPickerTriggersOnL0Count(t *testing.T) {
	dir := t.TempDir()
	t0 := buildSST(t, dir, 1, []string{"a", "b"}, 1)
	t1 := buildSST(t, dir, 2, []string{"c", "d"}, 10)

	v := version.NewVersion([]version.Level{
		{Runs: []*version.SortedRun{
			version.NewSortedRun([]*version.SSTable{t0}),
			version.NewSortedRun([]*version.SSTable{t1}),
		}},
	})

	p := &LeveledPicker{IKC: dbformat.NewInternalKeyComparator(nil), Opts: Options{Level0CompactionTrigger: 2}}
	task, ok := p.Pick(v)
	if !ok {
		t.Fatal("expected a compaction task")
	}
	if task.SourceLevel != 0 || task.TargetLevel != 1 {
		t.Fatalf("unexpected levels: %+v", task)
	}
	if len(task.InputTables) != 2 {
		t.Fatalf("expected 2 input tables, got %d", len(task.InputTables))
	}
}

func TestLeveledPickerNoTriggerBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	t0 := buildSST(t, dir, 1, []string{"a"}, 1)

	v := version.NewVersion([]version.Level{
		{Runs: []*version.SortedRun{version.NewSortedRun([]*version.SSTable{t0})}},
	})
	p := &LeveledPicker{IKC: dbformat.NewInternalKeyComparator(nil), Opts: Options{Level0CompactionTrigger: 4}}
	if _, ok := p.Pick(v); ok {
		t.Fatal("expected no compaction task below threshold")
	}
}

func TestJobMergesAndSplits(t *testing.T) {
	dir := t.TempDir()
	keys := make([]string, 50)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%03d", i)
	}
	sst := buildSST(t, dir, 1, keys, 1)

	job := &Job{
		FS:          vfs.Default(),
		DBPath:      dir,
		TableOpts:   table.Options{BlockSize: 256, BloomBitsPerKey: 10, EnableBloomFilter: true},
		SSTFileSize: 512, // small enough to force multiple output files
		NextSSTID:   func() func() uint64 { n := uint64(100); return func() uint64 { n++; return n } }(),
	}

	it := sst.Reader().NewIterator()
	outputs, err := job.Run(it)
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) < 2 {
		t.Fatalf("expected output to split into multiple files, got %d", len(outputs))
	}

	var total uint64
	for _, o := range outputs {
		total += o.Count
	}
	if total != uint64(len(keys)) {
		t.Fatalf("expected %d total records across outputs, got %d", len(keys), total)
	}
}

func TestJobDropObsoleteKeepsOnlyNewestLiveVersion(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.Default()
	path := filepath.Join(dir, "1.sst")
	wf, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	b := table.NewBuilder(wf, table.Options{BlockSize: 256, BloomBitsPerKey: 10, EnableBloomFilter: true})

	// "a": two live versions, newest (seq 5) must survive, older (seq 1) dropped.
	mustAppend(t, b, "a", 5, dbformat.TypeValue, "a-new")
	mustAppend(t, b, "a", 1, dbformat.TypeValue, "a-old")
	// "b": newest version is a tombstone, so it and every older version vanish.
	mustAppend(t, b, "b", 9, dbformat.TypeDeletion, "")
	mustAppend(t, b, "b", 2, dbformat.TypeValue, "b-old")
	// "c": single live version, kept.
	mustAppend(t, b, "c", 3, dbformat.TypeValue, "c-val")

	info, err := b.Finish(1, path)
	if err != nil {
		t.Fatal(err)
	}
	raf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatal(err)
	}
	ikc := dbformat.NewInternalKeyComparator(nil)
	reader, err := table.Open(1, raf, ikc, cache.New(1<<20))
	if err != nil {
		t.Fatal(err)
	}

	job := &Job{
		FS:           fs,
		DBPath:       dir,
		TableOpts:    table.Options{BlockSize: 256, BloomBitsPerKey: 10, EnableBloomFilter: true},
		SSTFileSize:  1 << 20,
		NextSSTID:    func() func() uint64 { n := uint64(900); return func() uint64 { n++; return n } }(),
		DropObsolete: true,
	}
	outputs, err := job.Run(reader.NewIterator())
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 1 {
		t.Fatalf("expected one output file, got %d", len(outputs))
	}
	if outputs[0].Count != 2 {
		t.Fatalf("expected 2 surviving records (a, c), got %d", outputs[0].Count)
	}
}

func mustAppend(t *testing.T, b *table.Builder, key string, seq int, typ dbformat.ValueType, value string) {
	t.Helper()
	ikey := dbformat.MakeInternalKey([]byte(key), dbformat.SequenceNumber(seq), typ)
	if err := b.Append(ikey, []byte(value)); err != nil {
		t.Fatal(err)
	}
}
