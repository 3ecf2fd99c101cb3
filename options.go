package rockyardkv

import (
	"rockyardkv/internal/logging"
)

// Options configures a DB, matching the external interface in spec 6.
type Options struct {
	// DBPath is the directory the engine persists to. Required.
	DBPath string

	// SSTFileSize is the target SSTable and memtable size that triggers
	// a memtable switch / output file rollover.
	SSTFileSize uint64
	// BlockSize is the target size of one data block.
	BlockSize int
	// WriteBufferSize is stored but not read by the engine: output files
	// are written through vfs.WritableFile with no user-space buffer.
	WriteBufferSize int
	// UseDirectIO bypasses the OS page cache where the platform supports it.
	UseDirectIO bool
	// EnableBloomFilter turns on the per-SSTable bloom filter.
	EnableBloomFilter bool
	// CreateNew creates an empty database; false opens an existing one.
	CreateNew bool

	// MaxImmutableCount is the write-stall threshold on immutable memtables.
	MaxImmutableCount int
	// CompactionStrategyName selects "leveled" or "tiered".
	CompactionStrategyName string
	// Level0CompactionTrigger is the L0 run count that triggers compaction.
	Level0CompactionTrigger int
	// Level0StopWritesTrigger is the L0 run count that triggers a write stall.
	Level0StopWritesTrigger int
	// CompactionSizeRatio is the per-level growth factor.
	CompactionSizeRatio uint64
	// BloomBitsPerKey sizes the bloom filter.
	BloomBitsPerKey int
	// CacheCapacity is the block cache size in bytes.
	CacheCapacity uint64

	// Logger receives background-job and lifecycle diagnostics. Defaults
	// to a warn-level stderr logger when nil.
	Logger logging.Logger
}

// DefaultOptions returns Options with spec 6's documented defaults for
// the database at path.
func DefaultOptions(path string) Options {
	return Options{
		DBPath:                  path,
		SSTFileSize:             64 << 20,
		BlockSize:               4 << 10,
		WriteBufferSize:         1 << 20,
		UseDirectIO:             false,
		EnableBloomFilter:       true,
		CreateNew:               true,
		MaxImmutableCount:       4,
		CompactionStrategyName:  "leveled",
		Level0CompactionTrigger: 4,
		Level0StopWritesTrigger: 20,
		CompactionSizeRatio:     10,
		BloomBitsPerKey:         10,
		CacheCapacity:           8 << 20,
	}
}
