/*
Package rockyardkv is an embedded, single-process key-value storage
engine organized as a log-structured merge (LSM) tree. It supports point
writes, point deletes, point lookups, and ordered range iteration over a
consistent snapshot, persisting to a single directory on a local
filesystem and recovering its logical state across restarts.

# Usage

	db, err := rockyardkv.Open(rockyardkv.DefaultOptions("/path/to/db"))
	if err != nil {
		// handle err
	}
	defer db.Close()

	db.Put([]byte("key"), []byte("value"))
	value, ok := db.Get([]byte("key"))

# Concurrency

A DB is safe for concurrent use by multiple goroutines. Individual
iterators are not; each goroutine should use its own.
*/
package rockyardkv
