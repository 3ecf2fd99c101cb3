// Package iterator provides the common scan interface implemented by
// memtables, SSTables, and the merging iterator that stacks them, plus
// the merging iterator itself.
package iterator

// Iterator scans a source of internal-key-ordered records.
type Iterator interface {
	// Valid reports whether the iterator is positioned at a record.
	Valid() bool
	// Key returns the current record's encoded internal key. Valid
	// only while the iterator is Valid(); the underlying memory may be
	// reused once the iterator advances or is released.
	Key() []byte
	// Value returns the current record's value.
	Value() []byte
	// Next advances to the next record in ascending internal-key order.
	Next()
	// SeekToFirst positions at the first record.
	SeekToFirst()
	// Seek positions at the first record with internal key >= target.
	Seek(target []byte)
	// Error returns any error encountered while scanning.
	Error() error
}
