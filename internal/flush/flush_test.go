package flush

import (
	"testing"

	"rockyardkv/internal/compaction"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/memtable"
	"rockyardkv/internal/table"
	"rockyardkv/internal/vfs"
)

func TestFlushJobProducesSSTable(t *testing.T) {
	dir := t.TempDir()
	ikc := dbformat.NewInternalKeyComparator(nil)
	mt := memtable.New(ikc)

	for i := 0; i < 20; i++ {
		mt.Put([]byte{byte('a' + i)}, dbformat.SequenceNumber(i+1), []byte("value"))
	}

	var nextID uint64
	job := Job{Compaction: &compaction.Job{
		FS:          vfs.Default(),
		DBPath:      dir,
		TableOpts:   table.Options{BlockSize: 4096, BloomBitsPerKey: 10, EnableBloomFilter: true},
		SSTFileSize: 64 << 20,
		NextSSTID:   func() uint64 { nextID++; return nextID },
	}}

	outputs, err := job.Run(mt)
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 1 {
		t.Fatalf("expected a single output file, got %d", len(outputs))
	}
	if outputs[0].Count != 20 {
		t.Fatalf("expected 20 records, got %d", outputs[0].Count)
	}
}
