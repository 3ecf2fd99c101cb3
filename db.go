package rockyardkv

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"rockyardkv/internal/cache"
	"rockyardkv/internal/compaction"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/logging"
	"rockyardkv/internal/memtable"
	"rockyardkv/internal/table"
	"rockyardkv/internal/vfs"
	"rockyardkv/internal/version"
)

// lockFileName is the process-local lock file guarding against two DB
// instances opening the same directory at once.
const lockFileName = "LOCK"

// ErrNotExist is returned by Open when create_new is false and the
// database directory does not exist. A directory that exists without a
// metadata file makes Open return the file-open error from loading it.
var ErrNotExist = errors.New("rockyardkv: database does not exist")

// stopWriteDelay is how long a writer or background thread sleeps
// before retrying when a backpressure trigger is active.
const stopWriteDelay = 100 * time.Millisecond

// DB is an open handle to an LSM-tree key-value database. It is safe
// for concurrent use.
type DB struct {
	opts   Options
	logger logging.Logger
	ikc    dbformat.InternalKeyComparator

	fs         vfs.FS
	blockCache *cache.Cache
	picker     compaction.Picker

	seq       atomic.Uint64
	nextSSTID atomic.Uint64

	writeMu sync.Mutex

	dbMu        sync.Mutex
	flushCond   *sync.Cond
	compactCond *sync.Cond
	flushFlag   bool
	compactFlag bool
	stop        atomic.Bool

	svMu sync.RWMutex
	sv   *version.SuperVersion

	activeIterators atomic.Int32

	lock io.Closer

	wg sync.WaitGroup
}

// Open creates or recovers a database at opts.DBPath and starts its
// background flush and compaction threads.
func Open(opts Options) (*DB, error) {
	var fs vfs.FS = vfs.Default()
	if opts.UseDirectIO {
		fs = vfs.NewDirectIOFS()
	}
	if opts.CreateNew {
		if err := fs.MkdirAll(opts.DBPath, 0o755); err != nil {
			return nil, err
		}
	} else if !fs.Exists(opts.DBPath) {
		return nil, ErrNotExist
	}

	lock, err := fs.Lock(filepath.Join(opts.DBPath, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("rockyardkv: database at %s is already open: %w", opts.DBPath, err)
	}

	db := &DB{
		opts:       opts,
		logger:     logging.OrDefault(opts.Logger),
		ikc:        dbformat.NewInternalKeyComparator(nil),
		fs:         fs,
		blockCache: cache.New(opts.CacheCapacity),
		lock:       lock,
	}
	db.flushCond = sync.NewCond(&db.dbMu)
	db.compactCond = sync.NewCond(&db.dbMu)

	if opts.CreateNew {
		db.sv = newEmptySuperVersion(db.ikc)
	} else {
		v, nextSeq, nextSSTID, err := db.loadMetadata()
		if err != nil {
			_ = lock.Close()
			return nil, err
		}
		db.seq.Store(uint64(nextSeq))
		db.nextSSTID.Store(nextSSTID)
		db.sv = &version.SuperVersion{Mutable: memtable.New(db.ikc), Current: v}
	}

	pickerOpts := compaction.Options{
		Level0CompactionTrigger: opts.Level0CompactionTrigger,
		BaseLevelSize:           uint64(opts.Level0CompactionTrigger) * opts.SSTFileSize,
		CompactionSizeRatio:     opts.CompactionSizeRatio,
	}
	switch opts.CompactionStrategyName {
	case "tiered":
		db.picker = &compaction.TieredPicker{Opts: pickerOpts}
	default:
		db.picker = &compaction.LeveledPicker{IKC: db.ikc, Opts: pickerOpts}
	}

	db.wg.Add(2)
	go db.flushLoop()
	go db.compactionLoop()

	return db, nil
}

// Close stops background work, flushes outstanding state, and persists
// metadata.
func (db *DB) Close() error {
	db.FlushAll()
	db.stop.Store(true)
	db.dbMu.Lock()
	db.flushCond.Broadcast()
	db.compactCond.Broadcast()
	db.dbMu.Unlock()
	db.wg.Wait()
	err := db.Save()
	db.getSV().Current.Unref()
	if lockErr := db.lock.Close(); lockErr != nil && err == nil {
		err = lockErr
	}
	return err
}

// CurrentSeq returns the most recently assigned sequence number.
func (db *DB) CurrentSeq() uint64 {
	return db.seq.Load()
}

func (db *DB) getSV() *version.SuperVersion {
	db.svMu.RLock()
	defer db.svMu.RUnlock()
	return db.sv
}

func (db *DB) installSV(sv *version.SuperVersion) {
	db.svMu.Lock()
	db.sv = sv
	db.svMu.Unlock()
}

func (db *DB) newSSTID() uint64 {
	return db.nextSSTID.Add(1)
}

func (db *DB) tableOptions() table.Options {
	return table.Options{
		BlockSize:         db.opts.BlockSize,
		BloomBitsPerKey:   db.opts.BloomBitsPerKey,
		EnableBloomFilter: db.opts.EnableBloomFilter,
	}
}

// Put writes value for key, assigning it the next sequence number.
func (db *DB) Put(key, value []byte) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	seq := dbformat.SequenceNumber(db.seq.Add(1))
	sv := db.getSV()
	sv.Mutable.Put(key, seq, value)
	if sv.Mutable.Size() > int64(db.opts.SSTFileSize) {
		db.switchMemtable(false)
	}
}

// Del inserts a tombstone for key, assigning it the next sequence number.
func (db *DB) Del(key []byte) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	seq := dbformat.SequenceNumber(db.seq.Add(1))
	sv := db.getSV()
	sv.Mutable.Del(key, seq)
	if sv.Mutable.Size() > int64(db.opts.SSTFileSize) {
		db.switchMemtable(false)
	}
}

// Get looks up key as of the current sequence number. ok is false when
// the key is absent or its newest version is a tombstone.
func (db *DB) Get(key []byte) (value []byte, ok bool) {
	sv := db.getSV()
	seq := dbformat.SequenceNumber(db.seq.Load())
	v, res, err := sv.Get(db.ikc, key, seq)
	if err != nil {
		db.logger.Errorf(logging.NSDB+"get %q: %v", key, err)
		return nil, false
	}
	return v, res == dbformat.Found
}

// switchMemtable freezes the current mutable memtable onto the
// immutable list and installs a fresh one, stalling first if the
// immutable list is already at capacity. Requires writeMu held.
func (db *DB) switchMemtable(force bool) {
	sv := db.getSV()
	for len(sv.Immutables) >= db.opts.MaxImmutableCount {
		time.Sleep(stopWriteDelay)
		sv = db.getSV()
	}

	mt := sv.Mutable
	if !(force && mt.Size() > 0) && mt.Size() <= int64(db.opts.SSTFileSize) {
		return
	}

	newImms := make([]*memtable.MemTable, 0, len(sv.Immutables)+1)
	newImms = append(newImms, mt)
	newImms = append(newImms, sv.Immutables...)
	newSV := &version.SuperVersion{
		Mutable:    memtable.New(db.ikc),
		Immutables: newImms,
		Current:    sv.Current,
	}
	db.installSV(newSV)

	db.dbMu.Lock()
	db.flushFlag = true
	db.flushCond.Signal()
	db.dbMu.Unlock()
}

// Save persists the current sequence/sst-id counters and level tree to
// the database directory's metadata file.
func (db *DB) Save() error {
	return db.saveMetadata()
}

// FlushAll forces the current memtable to flush (even if under the size
// threshold) and blocks until it and every immutable memtable have
// drained.
func (db *DB) FlushAll() {
	db.writeMu.Lock()
	db.switchMemtable(true)
	db.writeMu.Unlock()

	for {
		sv := db.getSV()
		if sv.Mutable.Size() == 0 && len(sv.Immutables) == 0 {
			return
		}
		time.Sleep(stopWriteDelay)
	}
}

// WaitForFlushAndCompaction blocks until no flush or compaction job is
// currently running.
func (db *DB) WaitForFlushAndCompaction() {
	for {
		db.dbMu.Lock()
		busy := db.flushFlag || db.compactFlag
		db.dbMu.Unlock()
		if !busy {
			return
		}
		time.Sleep(stopWriteDelay)
	}
}
